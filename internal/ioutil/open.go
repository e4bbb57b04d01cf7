package ioutil

import (
	"context"
	"os"
)

// OpenForRead opens path for reading with bounded retry on transient errors.
// "not found" is never retried (spec §4.2).
func OpenForRead(ctx context.Context, path string, retry RetryOptions) (*os.File, error) {
	var f *os.File
	err := Retry(ctx, retry, func() error {
		var openErr error
		f, openErr = os.Open(path)
		return openErr
	})
	if err != nil {
		return nil, err
	}
	return f, nil
}
