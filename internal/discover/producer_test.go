package discover

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/franz/music-cleanup/internal/store"
	"github.com/spf13/afero"
)

func openTestStore(t *testing.T) *store.Store {
	t.Helper()
	s, err := store.Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("failed to open store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func memFsWith(t *testing.T, files map[string]int) afero.Fs {
	t.Helper()
	fs := afero.NewMemMapFs()
	for path, size := range files {
		if err := fs.MkdirAll(filepath.Dir(path), 0755); err != nil {
			t.Fatal(err)
		}
		if err := afero.WriteFile(fs, path, make([]byte, size), 0644); err != nil {
			t.Fatal(err)
		}
	}
	return fs
}

func TestDiscoverFiltersExtensions(t *testing.T) {
	s := openTestStore(t)
	fs := memFsWith(t, map[string]int{
		"/music/a.mp3":    5000,
		"/music/b.flac":   5000,
		"/music/notes.txt": 5000,
		"/music/cover.jpg": 5000,
	})

	p := New(&Config{Store: s, Fs: fs, MinSizeBytes: 0, BatchSize: 10})
	result, err := p.Discover(context.Background(), []string{"/music"})
	if err != nil {
		t.Fatalf("discover failed: %v", err)
	}

	if result.FilesDiscovered != 2 {
		t.Errorf("expected 2 audio files, got %d", result.FilesDiscovered)
	}

	if f, _ := s.GetFileByPath("/music/notes.txt"); f != nil {
		t.Error("non-audio file must not be recorded")
	}
}

func TestDiscoverSizeBoundsInclusive(t *testing.T) {
	s := openTestStore(t)
	fs := memFsWith(t, map[string]int{
		"/music/exact-min.mp3":  1000,
		"/music/below-min.mp3":  999,
		"/music/exact-max.mp3":  2000,
		"/music/above-max.mp3":  2001,
	})

	p := New(&Config{Store: s, Fs: fs, MinSizeBytes: 1000, MaxSizeBytes: 2000, BatchSize: 10})
	result, err := p.Discover(context.Background(), []string{"/music"})
	if err != nil {
		t.Fatalf("discover failed: %v", err)
	}

	if result.FilesDiscovered != 2 {
		t.Errorf("bounds must be inclusive: expected 2, got %d", result.FilesDiscovered)
	}

	for path, want := range map[string]bool{
		"/music/exact-min.mp3": true,
		"/music/below-min.mp3": false,
		"/music/exact-max.mp3": true,
		"/music/above-max.mp3": false,
	} {
		f, err := s.GetFileByPath(path)
		if err != nil {
			t.Fatal(err)
		}
		if (f != nil) != want {
			t.Errorf("%s: recorded=%v, want %v", path, f != nil, want)
		}
	}
}

func TestDiscoverSkipsProtectedRoots(t *testing.T) {
	s := openTestStore(t)
	fs := memFsWith(t, map[string]int{
		"/music/free/a.mp3":      5000,
		"/music/masters/b.mp3":   5000,
		"/music/masters/c/d.mp3": 5000,
	})

	p := New(&Config{
		Store:          s,
		Fs:             fs,
		ProtectedRoots: []string{"/music/masters"},
		BatchSize:      10,
	})
	result, err := p.Discover(context.Background(), []string{"/music"})
	if err != nil {
		t.Fatalf("discover failed: %v", err)
	}

	if result.FilesDiscovered != 1 {
		t.Errorf("expected only the unprotected file, got %d", result.FilesDiscovered)
	}
	if f, _ := s.GetFileByPath("/music/masters/b.mp3"); f != nil {
		t.Error("protected file must never be recorded")
	}
}

func TestDiscoverIsRestartable(t *testing.T) {
	s := openTestStore(t)
	fs := memFsWith(t, map[string]int{
		"/music/a.mp3": 5000,
		"/music/b.mp3": 5000,
	})

	p := New(&Config{Store: s, Fs: fs, BatchSize: 10})
	first, err := p.Discover(context.Background(), []string{"/music"})
	if err != nil {
		t.Fatal(err)
	}
	if first.FilesDiscovered != 2 {
		t.Fatalf("expected 2 on first run, got %d", first.FilesDiscovered)
	}

	// Second run over the same tree yields nothing new
	second, err := p.Discover(context.Background(), []string{"/music"})
	if err != nil {
		t.Fatal(err)
	}
	if second.FilesDiscovered != 0 {
		t.Errorf("expected 0 new files on resume, got %d", second.FilesDiscovered)
	}
	if second.FilesSkipped != 2 {
		t.Errorf("expected 2 already-known files, got %d", second.FilesSkipped)
	}
}
