package score

import "strings"

// Candidate carries the facts needed to rank duplicate-group members
type Candidate struct {
	FileID      int64
	Path        string
	Codec       string
	BitrateKbps int
	SizeBytes   int64
	FinalScore  float64
}

// DefaultFormatPriority is the preferred-format order used to break
// score ties, best first
var DefaultFormatPriority = []string{
	"flac", "wav", "aiff", "alac", "ape", "mp3", "aac", "ogg", "vorbis", "opus", "wma",
}

// Better reports whether a outranks b. The order is total: final score,
// then format priority, then bitrate, then size, then lexicographically
// smallest path — so primary selection is deterministic regardless of
// worker scheduling.
func Better(a, b *Candidate, formatPriority []string) bool {
	if a.FinalScore != b.FinalScore {
		return a.FinalScore > b.FinalScore
	}

	ra, rb := formatRank(a.Codec, formatPriority), formatRank(b.Codec, formatPriority)
	if ra != rb {
		return ra < rb
	}

	if a.BitrateKbps != b.BitrateKbps {
		return a.BitrateKbps > b.BitrateKbps
	}

	if a.SizeBytes != b.SizeBytes {
		return a.SizeBytes > b.SizeBytes
	}

	return a.Path < b.Path
}

// SelectPrimary returns the best candidate under the total order
func SelectPrimary(candidates []*Candidate, formatPriority []string) *Candidate {
	if len(candidates) == 0 {
		return nil
	}
	if len(formatPriority) == 0 {
		formatPriority = DefaultFormatPriority
	}

	best := candidates[0]
	for _, c := range candidates[1:] {
		if Better(c, best, formatPriority) {
			best = c
		}
	}
	return best
}

func formatRank(codec string, priority []string) int {
	codec = strings.ToLower(codec)
	for i, f := range priority {
		if f == codec {
			return i
		}
	}
	return len(priority)
}
