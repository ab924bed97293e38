// Package checkpoint makes pipeline progress recoverable: checkpoints
// are written on a timer and at every batch boundary, and an interrupt
// forces a final checkpoint before the process surrenders.
package checkpoint

import (
	"context"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/franz/music-cleanup/internal/report"
	"github.com/franz/music-cleanup/internal/store"
	"github.com/franz/music-cleanup/internal/util"
)

// Checkpointer periodically snapshots pipeline progress into the store
type Checkpointer struct {
	store    *store.Store
	interval time.Duration
	logger   *report.EventLogger

	mu          sync.Mutex
	phase       string
	lastBatchID int64
	counters    map[string]int

	stopTicker context.CancelFunc
	done       chan struct{}
}

// Config holds checkpointer configuration
type Config struct {
	Store       *store.Store
	IntervalSec int // default 60
	Logger      *report.EventLogger
}

// New creates a checkpointer
func New(cfg *Config) *Checkpointer {
	if cfg.IntervalSec <= 0 {
		cfg.IntervalSec = 60
	}

	return &Checkpointer{
		store:    cfg.Store,
		interval: time.Duration(cfg.IntervalSec) * time.Second,
		logger:   cfg.Logger,
		counters: make(map[string]int),
	}
}

// SetProgress records the current phase and batch position. The next
// checkpoint, timed or forced, will carry it.
func (c *Checkpointer) SetProgress(phase string, lastBatchID int64, counters map[string]int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.phase = phase
	c.lastBatchID = lastBatchID
	for k, v := range counters {
		c.counters[k] = v
	}
}

// Write persists a checkpoint now. Called at every batch boundary and
// by the interval ticker.
func (c *Checkpointer) Write() error {
	c.mu.Lock()
	phase := c.phase
	lastBatchID := c.lastBatchID
	counters := make(map[string]int, len(c.counters))
	for k, v := range c.counters {
		counters[k] = v
	}
	c.mu.Unlock()

	if phase == "" {
		return nil // Nothing to record yet
	}

	open, err := c.store.GetTxnsByStatus(store.TxnOpen, store.TxnCommitting)
	if err != nil {
		return err
	}
	openIDs := make([]string, len(open))
	for i, t := range open {
		openIDs[i] = t.ID
	}

	cp := &store.Checkpoint{
		Phase:              phase,
		LastBatchID:        lastBatchID,
		Counters:           counters,
		OpenTransactionIDs: openIDs,
	}
	if err := c.store.InsertCheckpoint(cp); err != nil {
		return err
	}

	if c.logger != nil {
		c.logger.LogCheckpoint(phase, lastBatchID)
	}
	util.DebugLog("Checkpoint %d written (phase %s, batch %d)", cp.ID, phase, lastBatchID)
	return nil
}

// Start launches the interval ticker
func (c *Checkpointer) Start(ctx context.Context) {
	tickerCtx, cancel := context.WithCancel(ctx)
	c.stopTicker = cancel
	c.done = make(chan struct{})

	go func() {
		defer close(c.done)
		ticker := time.NewTicker(c.interval)
		defer ticker.Stop()

		for {
			select {
			case <-tickerCtx.Done():
				return
			case <-ticker.C:
				if err := c.Write(); err != nil {
					util.ErrorLog("Interval checkpoint failed: %v", err)
				}
			}
		}
	}()
}

// Stop halts the ticker and writes a final checkpoint
func (c *Checkpointer) Stop() {
	if c.stopTicker != nil {
		c.stopTicker()
		<-c.done
	}
	if err := c.Write(); err != nil {
		util.ErrorLog("Final checkpoint failed: %v", err)
	}
}

// NotifyShutdown installs the interrupt and termination handlers.
// Signal handling is the only entry point allowed to cancel the
// pipeline: on signal a final checkpoint is forced, then cancel fires
// so every worker finishes its current file and exits.
func (c *Checkpointer) NotifyShutdown(cancel context.CancelFunc) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	go func() {
		sig := <-sigCh
		util.WarnLog("Received %s: checkpointing and shutting down", sig)
		if err := c.Write(); err != nil {
			util.ErrorLog("Shutdown checkpoint failed: %v", err)
		}
		cancel()

		// A second signal aborts immediately
		<-sigCh
		util.ErrorLog("Second signal received, aborting")
		os.Exit(130)
	}()
}
