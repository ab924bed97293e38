package util

import (
	"errors"
	"fmt"
	"testing"
	"time"
)

func fastRetryConfig() *RetryConfig {
	return &RetryConfig{
		MaxAttempts: 3,
		InitialWait: time.Millisecond,
		MaxWait:     5 * time.Millisecond,
	}
}

func TestRetrySucceedsAfterTransientFailures(t *testing.T) {
	attempts := 0
	result, err := RetryWithBackoff(fastRetryConfig(), func() (string, error) {
		attempts++
		if attempts < 3 {
			return "", fmt.Errorf("%w: simulated contention", ErrStoreBusy)
		}
		return "ok", nil
	}, "test-op")

	if err != nil {
		t.Fatalf("expected success, got %v", err)
	}
	if result != "ok" || attempts != 3 {
		t.Errorf("expected ok after 3 attempts, got %q after %d", result, attempts)
	}
}

func TestRetryGivesUpAfterMaxAttempts(t *testing.T) {
	attempts := 0
	_, err := RetryWithBackoff(fastRetryConfig(), func() (string, error) {
		attempts++
		return "", fmt.Errorf("%w: still busy", ErrStoreBusy)
	}, "test-op")

	if err == nil {
		t.Fatal("expected failure after exhausting retries")
	}
	if attempts != 3 {
		t.Errorf("expected 3 attempts, got %d", attempts)
	}
	if !errors.Is(err, ErrStoreBusy) {
		t.Errorf("final error must wrap the cause, got %v", err)
	}
}

func TestNonRetryableFailsImmediately(t *testing.T) {
	attempts := 0
	_, err := RetryWithBackoff(fastRetryConfig(), func() (string, error) {
		attempts++
		return "", errors.New("permanent failure")
	}, "test-op")

	if err == nil {
		t.Fatal("expected failure")
	}
	if attempts != 1 {
		t.Errorf("non-retryable errors must not be retried, got %d attempts", attempts)
	}
}

func TestIsRetryableError(t *testing.T) {
	testCases := []struct {
		name      string
		err       error
		retryable bool
	}{
		{"nil", nil, false},
		{"store busy", ErrStoreBusy, true},
		{"wrapped busy", fmt.Errorf("op: %w", ErrStoreBusy), true},
		{"sqlite locked message", errors.New("database is locked"), true},
		{"timeout message", errors.New("operation timed out"), true},
		{"integrity", ErrStoreIntegrity, false},
		{"plain failure", errors.New("no such table"), false},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			if got := IsRetryableError(tc.err); got != tc.retryable {
				t.Errorf("IsRetryableError(%v) = %v, want %v", tc.err, got, tc.retryable)
			}
		})
	}
}
