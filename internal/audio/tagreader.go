package audio

import (
	"context"
	"fmt"
	"os"

	"github.com/dhowden/tag"
	"github.com/franz/music-cleanup/internal/util"
)

// TagReader reads metadata from embedded tags, falling back to
// filename parsing when tags are missing. This is the default
// MetadataReader.
type TagReader struct {
	filenamePatterns []*FilenamePattern
}

// NewTagReader creates a tag-based metadata reader. Patterns are the
// configured filename-parse fallbacks; pass nil for the defaults.
func NewTagReader(patterns []*FilenamePattern) *TagReader {
	if patterns == nil {
		patterns = DefaultFilenamePatterns()
	}
	return &TagReader{filenamePatterns: patterns}
}

// ReadMetadata reads tags from the file, then fills any missing core
// fields from the filename.
func (r *TagReader) ReadMetadata(ctx context.Context, path string) (*TrackMetadata, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	meta := &TrackMetadata{Source: MetaSourceTag}

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open file: %w", err)
	}
	defer f.Close()

	m, err := tag.ReadFrom(f)
	if err != nil {
		// Unreadable tags are not fatal; the filename may still carry
		// enough to organize the file
		util.DebugLog("Tag read failed for %s: %v", path, err)
		meta.Source = MetaSourceFilename
	} else {
		meta.Artist = m.Artist()
		meta.Title = m.Title()
		meta.Album = m.Album()
		meta.Year = m.Year()
		meta.Genre = m.Genre()
		meta.TrackNumber, _ = m.Track()
		meta.DiscNumber, _ = m.Disc()
	}

	if meta.Artist == "" || meta.Title == "" {
		r.fillFromFilename(path, meta)
	}

	if meta.Artist == "" && meta.Title == "" {
		return meta, fmt.Errorf("%w: no usable metadata in %s", util.ErrNotFound, path)
	}

	return meta, nil
}

// fillFromFilename fills missing fields from the best filename match
func (r *TagReader) fillFromFilename(path string, meta *TrackMetadata) {
	parsed := ParseFilename(path, r.filenamePatterns)
	if parsed == nil {
		return
	}

	filled := false
	if meta.Artist == "" && parsed.Artist != "" {
		meta.Artist = parsed.Artist
		filled = true
	}
	if meta.Title == "" && parsed.Title != "" {
		meta.Title = parsed.Title
		filled = true
	}
	if meta.TrackNumber == 0 && parsed.Track > 0 {
		meta.TrackNumber = parsed.Track
		filled = true
	}
	if meta.Year == 0 && parsed.Year > 0 {
		meta.Year = parsed.Year
		filled = true
	}

	if filled && meta.Source == MetaSourceTag {
		// Tags alone were not enough
		meta.Source = MetaSourceFilename
	}
}

// Metadata source labels, mirrored from the store vocabulary
const (
	MetaSourceTag      = "tag"
	MetaSourceService  = "service"
	MetaSourceFilename = "filename-parse"
)
