package util

import "errors"

// Sentinel errors for common failure modes
var (
	// ErrUnsupported indicates a file format or operation is not supported
	ErrUnsupported = errors.New("unsupported")

	// ErrCorrupt indicates a file is corrupt or unreadable
	ErrCorrupt = errors.New("corrupt file")

	// ErrConflict indicates a destination file conflict
	ErrConflict = errors.New("destination conflict")

	// ErrNotFound indicates a required resource was not found
	ErrNotFound = errors.New("not found")

	// ErrInvalidConfig indicates invalid configuration
	ErrInvalidConfig = errors.New("invalid configuration")

	// ErrPermission indicates a permission error
	ErrPermission = errors.New("permission denied")

	// ErrDiskFull indicates insufficient disk space
	ErrDiskFull = errors.New("disk full")

	// ErrProtectedPath indicates an attempted write under a protected root
	ErrProtectedPath = errors.New("protected path")

	// ErrHashMismatch indicates a copy verification failure
	ErrHashMismatch = errors.New("content hash mismatch")
)

// Store error kinds. Busy is transient and retried with backoff; Integrity
// surfaces a bug and is never retried; IO aborts the current transaction.
var (
	ErrStoreBusy      = errors.New("store busy")
	ErrStoreIntegrity = errors.New("store integrity violation")
	ErrStoreIO        = errors.New("store io")
)
