package audio

import (
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
)

// FilenameMeta holds metadata parsed from a filename
type FilenameMeta struct {
	Artist     string
	Title      string
	Track      int
	Year       int
	Confidence float64 // 0.0-1.0 how confident we are in the parse
}

// FilenamePattern is one configurable filename-parse rule. The regex
// groups are mapped by the Fields list: each entry names the meaning of
// the corresponding capture group (artist, title, track, year).
type FilenamePattern struct {
	Regex      *regexp.Regexp
	Fields     []string
	Confidence float64
}

// DefaultFilenamePatterns returns the built-in parse rules, most
// specific first
func DefaultFilenamePatterns() []*FilenamePattern {
	return []*FilenamePattern{
		{
			// "01 - Artist - Title"
			Regex:      regexp.MustCompile(`^(\d{1,3})\s*[-_.]\s*(.+?)\s*-\s*(.+)$`),
			Fields:     []string{"track", "artist", "title"},
			Confidence: 0.8,
		},
		{
			// "Artist - Title (1995)"
			Regex:      regexp.MustCompile(`^(.+?)\s*-\s*(.+?)\s*\((\d{4})\)$`),
			Fields:     []string{"artist", "title", "year"},
			Confidence: 0.8,
		},
		{
			// "01 - Title"
			Regex:      regexp.MustCompile(`^(\d{1,3})\s*[-_.]\s*(.+)$`),
			Fields:     []string{"track", "title"},
			Confidence: 0.7,
		},
		{
			// "Artist - Title"
			Regex:      regexp.MustCompile(`^(.+?)\s*-\s*(.+)$`),
			Fields:     []string{"artist", "title"},
			Confidence: 0.5,
		},
	}
}

// CompileFilenamePatterns builds patterns from configured regex strings.
// Each string uses named groups: (?P<artist>...), (?P<title>...),
// (?P<track>...), (?P<year>...). Invalid patterns are skipped.
func CompileFilenamePatterns(exprs []string) []*FilenamePattern {
	var patterns []*FilenamePattern
	for _, expr := range exprs {
		re, err := regexp.Compile(expr)
		if err != nil {
			continue
		}
		var fields []string
		for _, name := range re.SubexpNames()[1:] {
			fields = append(fields, name)
		}
		patterns = append(patterns, &FilenamePattern{
			Regex:      re,
			Fields:     fields,
			Confidence: 0.6,
		})
	}
	if len(patterns) == 0 {
		return DefaultFilenamePatterns()
	}
	return patterns
}

// ParseFilename attempts to extract metadata from a filename using the
// first matching pattern. Returns nil when nothing matches.
func ParseFilename(path string, patterns []*FilenamePattern) *FilenameMeta {
	base := filepath.Base(path)
	name := strings.TrimSuffix(base, filepath.Ext(base))

	// Underscores are a common space substitute in ripped libraries
	cleaned := strings.ReplaceAll(name, "_", " ")
	cleaned = strings.TrimSpace(cleaned)

	for _, p := range patterns {
		matches := p.Regex.FindStringSubmatch(cleaned)
		if matches == nil {
			continue
		}

		meta := &FilenameMeta{Confidence: p.Confidence}
		for i, field := range p.Fields {
			if i+1 >= len(matches) {
				break
			}
			value := strings.TrimSpace(matches[i+1])
			switch field {
			case "artist":
				meta.Artist = value
			case "title":
				meta.Title = value
			case "track":
				meta.Track, _ = strconv.Atoi(value)
			case "year":
				meta.Year, _ = strconv.Atoi(value)
			}
		}

		if meta.Title != "" {
			return meta
		}
	}

	return nil
}
