package organize

import (
	"strings"
	"testing"
)

func TestTaxonomyResolve(t *testing.T) {
	taxonomy := DefaultTaxonomy()

	testCases := []struct {
		genre    string
		category string
		ok       bool
	}{
		{"Deep House", "House", true},
		{"HOUSE", "House", true},
		{"Minimal Techno", "Techno", true},
		{"hip-hop", "Hip-Hop", true},
		{"Progressive Trance", "Trance", true},
		{"drum & bass", "Drum & Bass", true},
		{"Polka", "", false},
		{"", "", false},
	}

	for _, tc := range testCases {
		t.Run(tc.genre, func(t *testing.T) {
			category, ok := taxonomy.Resolve(tc.genre)
			if ok != tc.ok || category != tc.category {
				t.Errorf("Resolve(%q) = (%q, %v), want (%q, %v)",
					tc.genre, category, ok, tc.category, tc.ok)
			}
		})
	}
}

func TestDecade(t *testing.T) {
	testCases := []struct {
		year     int
		expected string
	}{
		{1987, "1980s"},
		{1990, "1990s"},
		{2011, "2010s"},
		{2024, "2020s"},
		{1949, "Pre-1950s"},
		{0, ""},
		{-5, ""},
	}

	for _, tc := range testCases {
		if got := Decade(tc.year); got != tc.expected {
			t.Errorf("Decade(%d) = %q, want %q", tc.year, got, tc.expected)
		}
	}
}

func TestBuildFilename(t *testing.T) {
	got := BuildFilename(DefaultPattern, PatternInputs{
		Year:   2011,
		Artist: "Artist",
		Title:  "Title",
		Score:  70,
		Ext:    ".mp3",
	}, 0)

	want := "2011 - Artist - Title [QS70%].mp3"
	if got != want {
		t.Errorf("BuildFilename = %q, want %q", got, want)
	}
}

func TestBuildFilenameSanitizes(t *testing.T) {
	got := BuildFilename(DefaultPattern, PatternInputs{
		Year:   1999,
		Artist: "AC/DC",
		Title:  "Back: In? Black",
		Score:  88,
		Ext:    "MP3",
	}, 0)

	if strings.ContainsAny(got, `/\:*?"<>|`) {
		t.Errorf("filename contains invalid characters: %q", got)
	}
	if !strings.HasSuffix(got, ".mp3") {
		t.Errorf("extension must be lowercased: %q", got)
	}
}

func TestBuildFilenameLengthCap(t *testing.T) {
	longTitle := strings.Repeat("very long title ", 30)
	got := BuildFilename(DefaultPattern, PatternInputs{
		Year: 2000, Artist: "Artist", Title: longTitle, Score: 50, Ext: ".flac",
	}, 100)

	if len(got) > 100 {
		t.Errorf("filename length %d exceeds cap 100", len(got))
	}
	if !strings.HasSuffix(got, ".flac") {
		t.Errorf("extension must survive the cap: %q", got)
	}
}

func TestDuplicateRejectName(t *testing.T) {
	got := DuplicateRejectName("/music/in/b.mp3", 2)
	if got != "b_duplicate_2.mp3" {
		t.Errorf("DuplicateRejectName = %q, want b_duplicate_2.mp3", got)
	}
}

func TestWithDupSuffix(t *testing.T) {
	got := WithDupSuffix("/target/House/2010s/2011 - A - T.mp3", 2)
	want := "/target/House/2010s/2011 - A - T _dup2.mp3"
	if got != want {
		t.Errorf("WithDupSuffix = %q, want %q", got, want)
	}
}

func TestTaxonomyFromMapIsDeterministic(t *testing.T) {
	m := map[string][]string{
		"Zed":   {"shared"},
		"Alpha": {"shared"},
	}

	for i := 0; i < 10; i++ {
		taxonomy := TaxonomyFromMap(m)
		category, ok := taxonomy.Resolve("shared")
		if !ok || category != "Alpha" {
			t.Fatalf("expected alphabetically first category to win, got %q", category)
		}
	}
}
