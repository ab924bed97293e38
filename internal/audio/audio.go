// Package audio defines the narrow interfaces through which the
// pipeline consumes external audio tooling: fingerprint computation,
// tag reading and writing, defect detection, and reference-quality
// lookup. The core never depends on a concrete analyzer; capability
// flags let a no-op fingerprinter or a tag-only reader stand in.
package audio

import "context"

// FingerprintResult is the fingerprinter output for one file. The
// fingerprint string is opaque; it is only ever compared by the
// similarity function. Deterministic for identical file content.
type FingerprintResult struct {
	Fingerprint  string
	DurationSec  float64
	SampleRateHz int
	BitDepth     int
	Channels     int
	Codec        string
	BitrateKbps  int
}

// Fingerprinter computes an acoustic fingerprint and technical audio
// attributes for a file. Enabled reports whether this implementation
// produces real fingerprints; when false, duplicate grouping falls
// back to content hashing only.
type Fingerprinter interface {
	Fingerprint(ctx context.Context, path string) (*FingerprintResult, error)
	Enabled() bool
}

// TrackMetadata is the tag-level description of a track
type TrackMetadata struct {
	Artist      string
	Title       string
	Album       string
	Year        int
	Genre       string
	TrackNumber int
	DiscNumber  int
	Source      string // tag, service, filename-parse
}

// MetadataReader reads track metadata from a file
type MetadataReader interface {
	ReadMetadata(ctx context.Context, path string) (*TrackMetadata, error)
}

// MetadataWriter writes tags to a file via temp-plus-rename. It is
// never called on protected paths.
type MetadataWriter interface {
	WriteTags(ctx context.Context, path string, tags map[string]string) error
}

// DefectReport is the defect detector output. HealthScore is in
// [0, 100]; lower means more defective. Ratios are in [0, 1] and
// negative when not reported.
type DefectReport struct {
	HealthScore   int
	Defects       []string
	ClippingRatio float64
	SilenceRatio  float64
}

// DefectDetector inspects a file for corruption
type DefectDetector interface {
	Detect(ctx context.Context, path string, sampleDurationSec float64) (*DefectReport, error)
}

// ReferenceVersion describes one known version of a recording
type ReferenceVersion struct {
	Format       string
	BitrateKbps  int
	QualityClass string
}

// ReferenceLookup resolves a fingerprint to the known versions of the
// same recording. Optional; a nil lookup yields the neutral reference
// score.
type ReferenceLookup interface {
	Lookup(ctx context.Context, fingerprint string) ([]ReferenceVersion, error)
}
