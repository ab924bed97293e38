package util

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func TestHashFileContent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "f.bin")
	if err := os.WriteFile(path, []byte("hello"), 0644); err != nil {
		t.Fatal(err)
	}

	testCases := []struct {
		algorithm string
		expected  string
	}{
		{"sha256", "2cf24dba5fb0a30e26e83b2ac5b9e29e1b161e5c1fa7425e73043362938b9824"},
		{"", "2cf24dba5fb0a30e26e83b2ac5b9e29e1b161e5c1fa7425e73043362938b9824"},
		{"sha1", "aaf4c61ddcc5e8a2dabede0f3b482cd9aea9434d"},
		{"md5", "5d41402abc4b2a76b9719d911017c592"},
	}

	for _, tc := range testCases {
		t.Run(tc.algorithm, func(t *testing.T) {
			got, err := HashFileContent(path, tc.algorithm)
			if err != nil {
				t.Fatalf("hash failed: %v", err)
			}
			if got != tc.expected {
				t.Errorf("hash = %s, want %s", got, tc.expected)
			}
		})
	}
}

func TestHashUnknownAlgorithm(t *testing.T) {
	_, err := HashFileContent("/dev/null", "crc32")
	if !errors.Is(err, ErrInvalidConfig) {
		t.Errorf("expected ErrInvalidConfig, got %v", err)
	}
}

func TestHashMissingFile(t *testing.T) {
	if _, err := HashFileContent("/does/not/exist", "sha256"); err == nil {
		t.Error("expected error for missing file")
	}
}
