package ioutil

import (
	"context"
	"errors"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRetrySucceedsAfterKTransientFailures(t *testing.T) {
	attempts := 0
	opts := RetryOptions{MaxAttempts: 5, BaseDelay: time.Millisecond, MaxDelay: 5 * time.Millisecond}

	err := Retry(context.Background(), opts, func() error {
		attempts++
		if attempts < 3 {
			return syscall.EAGAIN
		}
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, 3, attempts)
}

func TestRetrySurfacesPermanentFailureAboveCap(t *testing.T) {
	attempts := 0
	opts := RetryOptions{MaxAttempts: 3, BaseDelay: time.Millisecond, MaxDelay: 5 * time.Millisecond}

	err := Retry(context.Background(), opts, func() error {
		attempts++
		return syscall.EAGAIN
	})

	assert.Error(t, err)
	assert.Equal(t, 3, attempts)
}

func TestRetryNeverRetriesPermanentError(t *testing.T) {
	attempts := 0
	sentinel := errors.New("permission denied on output")

	err := Retry(context.Background(), DefaultRetryOptions(), func() error {
		attempts++
		return Permanent(sentinel)
	})

	assert.ErrorIs(t, err, sentinel)
	assert.Equal(t, 1, attempts)
}

func TestRetryRespectsContextCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	attempts := 0
	err := Retry(ctx, DefaultRetryOptions(), func() error {
		attempts++
		return syscall.EAGAIN
	})

	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 0, attempts)
}
