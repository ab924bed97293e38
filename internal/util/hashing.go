package util

import (
	"crypto/md5"
	"crypto/sha1"
	"crypto/sha256"
	"fmt"
	"hash"
	"io"
	"os"
)

// Hash buffer sized for streaming large audio files without
// holding them in memory.
const hashChunkSize = 256 * 1024

// NewContentHasher returns a hash.Hash for the configured algorithm.
// SHA-256 is the default; MD5 and SHA-1 are accepted for speed on
// trusted local storage.
func NewContentHasher(algorithm string) (hash.Hash, error) {
	switch algorithm {
	case "", "sha256":
		return sha256.New(), nil
	case "sha1":
		return sha1.New(), nil
	case "md5":
		return md5.New(), nil
	default:
		return nil, fmt.Errorf("%w: hash algorithm %q", ErrInvalidConfig, algorithm)
	}
}

// HashFileContent streams a file through the configured hash and returns
// the hex digest.
func HashFileContent(path string, algorithm string) (string, error) {
	h, err := NewContentHasher(algorithm)
	if err != nil {
		return "", err
	}

	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("failed to open file: %w", err)
	}
	defer f.Close()

	buf := make([]byte, hashChunkSize)
	if _, err := io.CopyBuffer(h, f, buf); err != nil {
		return "", fmt.Errorf("failed to hash file: %w", err)
	}

	return fmt.Sprintf("%x", h.Sum(nil)), nil
}

// GetFileMetadata extracts basic filesystem metadata
func GetFileMetadata(path string) (size int64, mtime int64, err error) {
	info, err := os.Stat(path)
	if err != nil {
		return 0, 0, fmt.Errorf("failed to stat file: %w", err)
	}

	return info.Size(), info.ModTime().Unix(), nil
}
