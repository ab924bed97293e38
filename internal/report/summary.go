package report

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/franz/music-cleanup/internal/store"
)

// Summary is the end-of-run report
type Summary struct {
	GeneratedAt time.Time
	Duration    time.Duration

	StatusCounts    map[string]int
	RejectionCounts map[string]int
	NeedsReview     int
	GroupCount      int
	BytesWritten    int64

	SourceRoots  []string
	TargetRoot   string
	RejectedRoot string
	DryRun       bool
	DatabasePath string
	EventLogPath string
}

// Build collects the summary counters from the store
func Build(s *store.Store) (*Summary, error) {
	statusCounts, err := s.StatusCounts()
	if err != nil {
		return nil, fmt.Errorf("failed to load status counts: %w", err)
	}

	rejectionCounts, err := s.CountRejectionsByCategory()
	if err != nil {
		return nil, fmt.Errorf("failed to load rejection counts: %w", err)
	}

	queue, err := s.GetNeedsReview()
	if err != nil {
		return nil, fmt.Errorf("failed to load needs-review queue: %w", err)
	}

	groups, err := s.GetAllDuplicateGroups()
	if err != nil {
		return nil, fmt.Errorf("failed to load groups: %w", err)
	}

	return &Summary{
		GeneratedAt:     time.Now(),
		StatusCounts:    statusCounts,
		RejectionCounts: rejectionCounts,
		NeedsReview:     len(queue),
		GroupCount:      len(groups),
	}, nil
}

// Render writes the summary as human-readable text
func (s *Summary) Render() string {
	var b strings.Builder

	fmt.Fprintf(&b, "Run summary (%s)\n", s.GeneratedAt.Format("2006-01-02 15:04:05"))
	if s.Duration > 0 {
		fmt.Fprintf(&b, "  Duration:      %s\n", s.Duration.Round(time.Second))
	}
	if s.DryRun {
		fmt.Fprintf(&b, "  Mode:          DRY-RUN (no filesystem changes)\n")
	}

	fmt.Fprintf(&b, "\nFiles by status:\n")
	for _, status := range sortedKeys(s.StatusCounts) {
		fmt.Fprintf(&b, "  %-12s %d\n", status, s.StatusCounts[status])
	}

	if s.GroupCount > 0 {
		fmt.Fprintf(&b, "\nDuplicate groups: %d\n", s.GroupCount)
	}

	if len(s.RejectionCounts) > 0 {
		fmt.Fprintf(&b, "\nRejections by category:\n")
		for _, cat := range sortedKeys(s.RejectionCounts) {
			fmt.Fprintf(&b, "  %-18s %d\n", cat, s.RejectionCounts[cat])
		}
	}

	if s.NeedsReview > 0 {
		fmt.Fprintf(&b, "\nNeeds review: %d files (missing artist/title, unresolvable genre or year)\n", s.NeedsReview)
	}

	if s.BytesWritten > 0 {
		fmt.Fprintf(&b, "\nBytes written: %s\n", humanize.Bytes(uint64(s.BytesWritten)))
	}

	if s.DatabasePath != "" {
		fmt.Fprintf(&b, "\nDatabase:  %s\n", s.DatabasePath)
	}
	if s.EventLogPath != "" {
		fmt.Fprintf(&b, "Event log: %s\n", s.EventLogPath)
	}

	return b.String()
}

func sortedKeys(m map[string]int) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
