package report

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// EventType represents the type of event
type EventType string

const (
	EventDiscover   EventType = "discover"
	EventAnalyze    EventType = "analyze"
	EventQuarantine EventType = "quarantine"
	EventGroup      EventType = "group"
	EventOrganize   EventType = "organize"
	EventReject     EventType = "reject"
	EventTxnCommit  EventType = "txn_commit"
	EventTxnRollback EventType = "txn_rollback"
	EventCheckpoint EventType = "checkpoint"
	EventError      EventType = "error"
)

// EventLevel represents the severity level
type EventLevel string

const (
	LevelDebug   EventLevel = "debug"
	LevelInfo    EventLevel = "info"
	LevelWarning EventLevel = "warning"
	LevelError   EventLevel = "error"
)

var levelPriority = map[EventLevel]int{
	LevelDebug:   0,
	LevelInfo:    1,
	LevelWarning: 2,
	LevelError:   3,
}

// Event represents a single event in the pipeline
type Event struct {
	Timestamp     time.Time  `json:"ts"`
	Level         EventLevel `json:"level"`
	Event         EventType  `json:"event"`
	Path          string     `json:"path,omitempty"`
	DestPath      string     `json:"dest_path,omitempty"`
	SizeBytes     int64      `json:"size_bytes,omitempty"`
	GroupID       int64      `json:"group_id,omitempty"`
	TransactionID string     `json:"transaction_id,omitempty"`
	QualityScore  float64    `json:"quality_score,omitempty"`
	Grade         string     `json:"grade,omitempty"`
	Category      string     `json:"category,omitempty"`
	Phase         string     `json:"phase,omitempty"`
	Reason        string     `json:"reason,omitempty"`
	Error         string     `json:"error,omitempty"`
}

// EventLogger writes events to a JSONL file
type EventLogger struct {
	file     *os.File
	encoder  *json.Encoder
	mu       sync.Mutex
	path     string
	minLevel EventLevel
}

// NewEventLogger creates a new event logger with a minimum log level
func NewEventLogger(outputDir string, minLevel EventLevel) (*EventLogger, error) {
	if err := os.MkdirAll(outputDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create output directory: %w", err)
	}

	timestamp := time.Now().Format("20060102-150405")
	filename := fmt.Sprintf("events-%s.jsonl", timestamp)
	path := filepath.Join(outputDir, filename)

	file, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("failed to create event log: %w", err)
	}

	return &EventLogger{
		file:     file,
		encoder:  json.NewEncoder(file),
		path:     path,
		minLevel: minLevel,
	}, nil
}

// Log writes an event to the JSONL file
func (l *EventLogger) Log(event *Event) error {
	if l == nil || l.file == nil {
		return nil // Silently ignore if logger not initialized
	}

	if levelPriority[event.Level] < levelPriority[l.minLevel] {
		return nil
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	if err := l.encoder.Encode(event); err != nil {
		return fmt.Errorf("failed to encode event: %w", err)
	}
	return nil
}

// Path returns the event log file path
func (l *EventLogger) Path() string {
	if l == nil {
		return ""
	}
	return l.path
}

// Close flushes and closes the event log
func (l *EventLogger) Close() error {
	if l == nil || l.file == nil {
		return nil
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	err := l.file.Close()
	l.file = nil
	return err
}

// LogDiscover records a discovered file
func (l *EventLogger) LogDiscover(path string, sizeBytes int64) {
	l.Log(&Event{Level: LevelDebug, Event: EventDiscover, Path: path, SizeBytes: sizeBytes})
}

// LogAnalyze records a completed analysis
func (l *EventLogger) LogAnalyze(path string, score float64, grade string) {
	l.Log(&Event{Level: LevelDebug, Event: EventAnalyze, Path: path, QualityScore: score, Grade: grade})
}

// LogQuarantine records a quarantined file
func (l *EventLogger) LogQuarantine(path, destPath, reason string) {
	l.Log(&Event{Level: LevelWarning, Event: EventQuarantine, Path: path, DestPath: destPath, Reason: reason})
}

// LogGroup records a duplicate group membership
func (l *EventLogger) LogGroup(path string, groupID int64, score float64, isPrimary bool) {
	reason := "member"
	if isPrimary {
		reason = "primary"
	}
	l.Log(&Event{Level: LevelDebug, Event: EventGroup, Path: path, GroupID: groupID, QualityScore: score, Reason: reason})
}

// LogOrganize records a planned or performed organization
func (l *EventLogger) LogOrganize(path, destPath, txnID string) {
	l.Log(&Event{Level: LevelInfo, Event: EventOrganize, Path: path, DestPath: destPath, TransactionID: txnID})
}

// LogReject records a rejection
func (l *EventLogger) LogReject(path, destPath, category, reason string) {
	l.Log(&Event{Level: LevelInfo, Event: EventReject, Path: path, DestPath: destPath, Category: category, Reason: reason})
}

// LogTxnCommit records a committed transaction
func (l *EventLogger) LogTxnCommit(txnID string, opCount int) {
	l.Log(&Event{Level: LevelInfo, Event: EventTxnCommit, TransactionID: txnID, SizeBytes: int64(opCount)})
}

// LogTxnRollback records a rolled-back transaction
func (l *EventLogger) LogTxnRollback(txnID, reason string) {
	l.Log(&Event{Level: LevelWarning, Event: EventTxnRollback, TransactionID: txnID, Reason: reason})
}

// LogCheckpoint records a written checkpoint
func (l *EventLogger) LogCheckpoint(phase string, batchID int64) {
	l.Log(&Event{Level: LevelDebug, Event: EventCheckpoint, Phase: phase, GroupID: batchID})
}

// LogError records an error
func (l *EventLogger) LogError(path string, err error) {
	l.Log(&Event{Level: LevelError, Event: EventError, Path: path, Error: err.Error()})
}
