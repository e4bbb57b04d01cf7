// Package ioutil wraps filesystem opens, reads, writes, and renames with
// bounded retry/backoff on transient errors, and provides atomic publish via
// temp-then-rename (spec §4.2).
package ioutil

import (
	"context"
	"errors"
	"io/fs"
	"log/slog"
	"math/rand"
	"os"
	"runtime"
	"strings"
	"syscall"
	"time"
)

// RetryOptions bounds a retry loop's attempt count and backoff ceiling.
type RetryOptions struct {
	// MaxAttempts is the total number of tries before giving up. Default 8.
	MaxAttempts int
	// MaxDelay caps the exponential backoff between attempts. Default 2s.
	MaxDelay time.Duration
	// BaseDelay is the first retry's delay, doubling each subsequent attempt.
	// Default 50ms.
	BaseDelay time.Duration
}

// DefaultRetryOptions returns spec §4.2's defaults: 8 attempts, 2s max delay.
func DefaultRetryOptions() RetryOptions {
	return RetryOptions{MaxAttempts: 8, MaxDelay: 2 * time.Second, BaseDelay: 50 * time.Millisecond}
}

func (o RetryOptions) normalized() RetryOptions {
	if o.MaxAttempts <= 0 {
		o.MaxAttempts = 8
	}
	if o.MaxDelay <= 0 {
		o.MaxDelay = 2 * time.Second
	}
	if o.BaseDelay <= 0 {
		o.BaseDelay = 50 * time.Millisecond
	}
	return o
}

// PermanentError wraps an error that retrying would never fix (e.g. "not
// found" on read, "permission denied" on a final output write), so the retry
// loop surfaces it on the first attempt instead of burning the budget.
type PermanentError struct {
	Err error
}

func (e *PermanentError) Error() string { return e.Err.Error() }
func (e *PermanentError) Unwrap() error { return e.Err }

// Permanent marks err as non-retryable.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &PermanentError{Err: err}
}

// Retry runs fn up to opts.MaxAttempts times with exponential backoff
// (BaseDelay, doubling, capped at MaxDelay, plus jitter), stopping early on
// success, on a *PermanentError, or on "not found" errors (never retried per
// spec §4.2). Context cancellation aborts the loop immediately.
func Retry(ctx context.Context, opts RetryOptions, fn func() error) error {
	opts = opts.normalized()
	logger := slog.Default().With("component", "ioutil-retry")

	var lastErr error
	delay := opts.BaseDelay

	for attempt := 1; attempt <= opts.MaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		err := fn()
		if err == nil {
			return nil
		}
		lastErr = err

		var perm *PermanentError
		if errors.As(err, &perm) {
			return perm.Err
		}
		if errors.Is(err, fs.ErrNotExist) {
			return err
		}
		if !IsTransient(err) {
			return err
		}

		if attempt == opts.MaxAttempts {
			break
		}

		logger.Debug("transient I/O error, retrying",
			"attempt", attempt,
			"max_attempts", opts.MaxAttempts,
			"delay", delay,
			"error", err,
		)

		jittered := delay/2 + time.Duration(rand.Int63n(int64(delay)/2+1))
		select {
		case <-time.After(jittered):
		case <-ctx.Done():
			return ctx.Err()
		}

		delay *= 2
		if delay > opts.MaxDelay {
			delay = opts.MaxDelay
		}
	}

	return lastErr
}

// IsTransient classifies an error as retryable per spec §4.2: sharing
// violations and access-denied on locked files (common on Windows, e.g. under
// antivirus scanning), EINTR, and EAGAIN/EBUSY ("temporarily unavailable").
// "not found" and other permission errors are intentionally excluded here --
// callers distinguish "permission denied on final output" (permanent) from
// "access denied because another process has the file open" by wrapping the
// former in Permanent() only when they know better; Retry() itself treats any
// non-classified error as permanent.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}

	var errno syscall.Errno
	if errors.As(err, &errno) {
		switch errno {
		case syscall.EINTR, syscall.EAGAIN, syscall.EBUSY:
			return true
		}
		// ERROR_SHARING_VIOLATION (32) and ERROR_ACCESS_DENIED (5) are Win32
		// codes surfaced through syscall.Errno when a file is locked by
		// another process (e.g. an antivirus scanner) or mid-rename. The
		// numeric values collide with unrelated unix errnos (EPIPE, EIO), so
		// this branch is gated to the platform where they actually mean this.
		if runtime.GOOS == "windows" {
			switch errno {
			case 32, 5:
				return true
			}
		}
	}

	if errors.Is(err, os.ErrDeadlineExceeded) {
		return true
	}

	msg := strings.ToLower(err.Error())
	if strings.Contains(msg, "sharing violation") || strings.Contains(msg, "access is denied") {
		return true
	}

	return false
}
