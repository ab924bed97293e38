package organize

import (
	"fmt"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"golang.org/x/text/unicode/norm"
)

// Category is one genre bucket with the keywords that map into it
type Category struct {
	Name     string
	Keywords []string
}

// GenreTaxonomy is an ordered category list; the first matching
// category wins
type GenreTaxonomy []Category

// DefaultTaxonomy returns the built-in genre category mapping
func DefaultTaxonomy() GenreTaxonomy {
	return GenreTaxonomy{
		{"House", []string{"house", "deep house", "tech house", "progressive house", "electro house", "future house"}},
		{"Techno", []string{"techno", "minimal techno", "detroit techno", "acid techno"}},
		{"Hip-Hop", []string{"hip hop", "hip-hop", "rap", "trap", "boom bap"}},
		{"Trance", []string{"trance", "uplifting trance", "progressive trance", "psytrance"}},
		{"Drum & Bass", []string{"drum and bass", "drum & bass", "dnb", "jungle"}},
		{"Dubstep", []string{"dubstep", "brostep", "future garage"}},
		{"Pop", []string{"pop", "dance pop", "electropop", "synthpop"}},
		{"Reggae", []string{"reggae", "dub", "dancehall"}},
		{"Rock", []string{"rock", "alternative rock", "indie rock", "punk rock"}},
		{"Electronic", []string{"electronic", "edm", "electronica", "ambient", "experimental"}},
	}
}

// TaxonomyFromMap builds a taxonomy from configured category → keyword
// lists. Categories are ordered alphabetically so matching stays
// deterministic across runs.
func TaxonomyFromMap(m map[string][]string) GenreTaxonomy {
	if len(m) == 0 {
		return DefaultTaxonomy()
	}

	names := make([]string, 0, len(m))
	for name := range m {
		names = append(names, name)
	}
	sort.Strings(names)

	taxonomy := make(GenreTaxonomy, 0, len(names))
	for _, name := range names {
		taxonomy = append(taxonomy, Category{Name: name, Keywords: m[name]})
	}
	return taxonomy
}

// Resolve maps a raw genre string onto a category. The empty result
// means no category matched; such files are routed to needs-review,
// never into an "Unknown" output folder.
func (t GenreTaxonomy) Resolve(genre string) (string, bool) {
	genre = strings.ToLower(strings.TrimSpace(genre))
	if genre == "" {
		return "", false
	}

	for _, cat := range t {
		for _, keyword := range cat.Keywords {
			if strings.Contains(genre, keyword) {
				return cat.Name, true
			}
		}
	}
	return "", false
}

// Decade buckets a year into its decade folder name, e.g. 1987 → 1980s
func Decade(year int) string {
	if year <= 0 {
		return ""
	}
	if year < 1950 {
		return "Pre-1950s"
	}
	return fmt.Sprintf("%d0s", year/10)
}

// DefaultPattern is the destination filename template
const DefaultPattern = "{year} - {artist} - {title} [QS{score}%].{ext}"

// DefaultMaxFilenameLen caps generated filenames; most filesystems
// allow 255 bytes, leave headroom for the _dupN suffix
const DefaultMaxFilenameLen = 200

// PatternInputs are the fields substituted into the filename pattern
type PatternInputs struct {
	Year   int
	Artist string
	Title  string
	Score  int // integer percent of the final score
	Ext    string
}

// BuildFilename renders the destination filename from the pattern,
// sanitizing each substituted component
func BuildFilename(pattern string, in PatternInputs, maxLen int) string {
	if pattern == "" {
		pattern = DefaultPattern
	}
	if maxLen <= 0 {
		maxLen = DefaultMaxFilenameLen
	}

	ext := strings.TrimPrefix(strings.ToLower(in.Ext), ".")

	name := pattern
	name = strings.ReplaceAll(name, "{year}", fmt.Sprintf("%d", in.Year))
	name = strings.ReplaceAll(name, "{artist}", SanitizeComponent(in.Artist))
	name = strings.ReplaceAll(name, "{title}", SanitizeComponent(in.Title))
	name = strings.ReplaceAll(name, "{score}", fmt.Sprintf("%d", in.Score))
	name = strings.ReplaceAll(name, "{ext}", ext)

	// Cap length but keep the extension intact
	if len(name) > maxLen {
		suffix := "." + ext
		keep := maxLen - len(suffix)
		if keep < 1 {
			keep = 1
		}
		name = strings.TrimRight(name[:keep], " -.") + suffix
	}

	return name
}

var invalidFilenameChars = regexp.MustCompile(`[/\\:*?"<>|\x00-\x1f]`)

// SanitizeComponent makes a metadata value safe as a path component:
// unicode NFC, path separators and invalid characters replaced with
// '-', whitespace collapsed.
func SanitizeComponent(s string) string {
	s = norm.NFC.String(s)
	s = invalidFilenameChars.ReplaceAllString(s, "-")
	s = strings.Join(strings.Fields(s), " ")
	s = strings.Trim(s, " .")
	return s
}

// DuplicateRejectName builds the rejected-tree filename for a
// non-primary group member: {stem}_duplicate_{rank}{ext}
func DuplicateRejectName(srcPath string, rank int) string {
	base := filepath.Base(srcPath)
	ext := filepath.Ext(base)
	stem := strings.TrimSuffix(base, ext)
	return fmt.Sprintf("%s_duplicate_%d%s", stem, rank, ext)
}

// WithDupSuffix inserts " _dupN" before the extension
func WithDupSuffix(path string, n int) string {
	ext := filepath.Ext(path)
	return fmt.Sprintf("%s _dup%d%s", strings.TrimSuffix(path, ext), n, ext)
}
