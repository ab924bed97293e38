// Package discover enumerates the configured source trees and feeds
// candidate files into the store. Traversal is depth-first, symlinks
// are not followed, and protected roots are never entered.
package discover

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/franz/music-cleanup/internal/report"
	"github.com/franz/music-cleanup/internal/store"
	"github.com/franz/music-cleanup/internal/util"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/afero"
)

// AudioExtensions are the default supported audio file extensions
var AudioExtensions = []string{
	".mp3",
	".flac",
	".m4a",
	".aac",
	".ogg",
	".opus",
	".wav",
	".aiff",
	".aif",
	".wma",
}

// Producer discovers audio files in the configured source roots
type Producer struct {
	store          *store.Store
	fs             afero.Fs
	extensions     map[string]bool
	protectedRoots []string
	minSizeBytes   int64
	maxSizeBytes   int64
	batchSize      int
	logger         *report.EventLogger
}

// Config holds discovery configuration
type Config struct {
	Store          *store.Store
	Fs             afero.Fs // defaults to the OS filesystem
	Extensions     []string
	ProtectedRoots []string
	MinSizeBytes   int64
	MaxSizeBytes   int64
	BatchSize      int
	Logger         *report.EventLogger
}

// New creates a discovery producer
func New(cfg *Config) *Producer {
	if cfg.Fs == nil {
		cfg.Fs = afero.NewOsFs()
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 1000
	}
	if cfg.MaxSizeBytes <= 0 {
		cfg.MaxSizeBytes = 500 * 1024 * 1024
	}

	exts := cfg.Extensions
	if len(exts) == 0 {
		exts = AudioExtensions
	}
	extMap := make(map[string]bool)
	for _, ext := range exts {
		extMap[strings.ToLower(ext)] = true
	}

	return &Producer{
		store:          cfg.Store,
		fs:             cfg.Fs,
		extensions:     extMap,
		protectedRoots: cfg.ProtectedRoots,
		minSizeBytes:   cfg.MinSizeBytes,
		maxSizeBytes:   cfg.MaxSizeBytes,
		batchSize:      cfg.BatchSize,
		logger:         cfg.Logger,
	}
}

// Result represents a discovery result
type Result struct {
	FilesDiscovered int
	FilesSkipped    int
	Errors          []error
}

// Discover walks the source roots and upserts candidate files with
// status discovered. Already-known paths are skipped, which makes the
// producer restartable.
func (p *Producer) Discover(ctx context.Context, sourceRoots []string) (*Result, error) {
	util.InfoLog("Starting discovery of %d source roots", len(sourceRoots))

	result := &Result{Errors: make([]error, 0)}

	// Pre-load known paths so resume skips them without a query per file
	existingPaths, err := p.store.GetAllFilePathsMap()
	if err != nil {
		return nil, fmt.Errorf("failed to load existing paths: %w", err)
	}
	if len(existingPaths) > 0 {
		util.InfoLog("Loaded %d already-discovered paths", len(existingPaths))
	}

	newFiles := make(chan *store.File, p.batchSize)

	var filesFound atomic.Int64
	var filesNew atomic.Int64
	var filesSkipped atomic.Int64

	var bar *progressbar.ProgressBar
	if util.IsTerminal(os.Stdout.Fd()) {
		barWidth := util.GetTerminalWidth() / 3
		if barWidth < 20 {
			barWidth = 20
		}
		bar = progressbar.NewOptions(-1,
			progressbar.OptionSetDescription("Discovering"),
			progressbar.OptionSetWidth(barWidth),
			progressbar.OptionShowCount(),
			progressbar.OptionShowIts(),
			progressbar.OptionSetItsString("files"),
			progressbar.OptionThrottle(200*time.Millisecond),
			progressbar.OptionClearOnFinish(),
		)
	}

	// Batch writer goroutine: flush on size or tick, like a WAL
	var writerWg sync.WaitGroup
	writerWg.Add(1)
	go func() {
		defer writerWg.Done()
		batch := make([]*store.File, 0, p.batchSize)
		ticker := time.NewTicker(500 * time.Millisecond)
		defer ticker.Stop()

		flush := func() {
			if len(batch) == 0 {
				return
			}
			if err := p.store.InsertFileBatch(batch); err != nil {
				util.ErrorLog("Failed to batch insert files: %v", err)
				result.Errors = append(result.Errors, err)
			}
			batch = batch[:0]
		}

		for {
			select {
			case file, ok := <-newFiles:
				if !ok {
					flush()
					return
				}
				batch = append(batch, file)
				if len(batch) >= p.batchSize {
					flush()
				}
			case <-ticker.C:
				flush()
			}
		}
	}()

	for _, root := range sourceRoots {
		if err := ctx.Err(); err != nil {
			break
		}

		walkErr := afero.Walk(p.fs, root, func(path string, info os.FileInfo, err error) error {
			select {
			case <-ctx.Done():
				return ctx.Err()
			default:
			}

			if err != nil {
				util.WarnLog("Error accessing path %s: %v", path, err)
				result.Errors = append(result.Errors, fmt.Errorf("access error: %s: %w", path, err))
				return nil // Continue walking
			}

			// Protected trees are strictly read-only and never even
			// enumerated
			if util.UnderAnyRoot(path, p.protectedRoots) {
				if info.IsDir() {
					return filepath.SkipDir
				}
				return nil
			}

			if info.IsDir() {
				return nil
			}
			if info.Mode()&os.ModeSymlink != 0 {
				return nil
			}

			if !p.accepts(path, info.Size()) {
				return nil
			}

			filesFound.Add(1)
			if bar != nil {
				bar.Add(1)
			}

			abs, err := filepath.Abs(path)
			if err != nil {
				abs = path
			}

			if existingPaths[abs] {
				filesSkipped.Add(1)
				return nil
			}
			existingPaths[abs] = true

			newFiles <- &store.File{
				Path:         abs,
				SizeBytes:    info.Size(),
				ModifiedTime: info.ModTime().Unix(),
				Status:       store.StatusDiscovered,
			}
			filesNew.Add(1)

			if p.logger != nil {
				p.logger.LogDiscover(abs, info.Size())
			}
			return nil
		})

		if walkErr != nil && walkErr != context.Canceled {
			result.Errors = append(result.Errors, fmt.Errorf("walk error on %s: %w", root, walkErr))
		}
	}

	close(newFiles)
	writerWg.Wait()

	if bar != nil {
		bar.Finish()
	}

	result.FilesDiscovered = int(filesNew.Load())
	result.FilesSkipped = int(filesSkipped.Load())

	util.SuccessLog("Discovery complete: %d found, %d new, %d already known, %d errors",
		filesFound.Load(), result.FilesDiscovered, result.FilesSkipped, len(result.Errors))

	return result, ctx.Err()
}

// accepts applies the extension and size filters. Size bounds are
// inclusive on both ends.
func (p *Producer) accepts(path string, size int64) bool {
	ext := strings.ToLower(filepath.Ext(path))
	if !p.extensions[ext] {
		return false
	}
	if size < p.minSizeBytes {
		return false
	}
	if p.maxSizeBytes > 0 && size > p.maxSizeBytes {
		return false
	}
	return true
}
