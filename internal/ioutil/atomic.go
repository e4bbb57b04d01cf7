package ioutil

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/google/uuid"
)

// AtomicWriter buffers writes to a temp file beside the final target and
// publishes them with a single rename on Close, so observers outside the
// process never see a partially written file (spec invariant 4).
type AtomicWriter struct {
	target  string
	tmpPath string
	file    *os.File
	retry   RetryOptions
}

// CreateAtomic opens a temp file "<target>.tmp-<pid>-<uniq>" for writing.
// Call Close to publish it to target, or Abort to discard it.
func CreateAtomic(target string, retry RetryOptions) (*AtomicWriter, error) {
	dir := filepath.Dir(target)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("atomic: create dir %s: %w", dir, err)
	}

	tmpPath := fmt.Sprintf("%s.tmp-%d-%s", target, os.Getpid(), uuid.NewString())

	var f *os.File
	err := Retry(context.Background(), retry, func() error {
		var openErr error
		f, openErr = os.OpenFile(tmpPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
		return openErr
	})
	if err != nil {
		return nil, fmt.Errorf("atomic: create temp %s: %w", tmpPath, err)
	}

	return &AtomicWriter{target: target, tmpPath: tmpPath, file: f, retry: retry}, nil
}

// Write implements io.Writer, buffering into the temp file.
func (w *AtomicWriter) Write(p []byte) (int, error) {
	return w.file.Write(p)
}

// Close flushes and closes the temp file, then atomically publishes it to
// the target path via rename. If rename still fails after the transient
// retries, for any reason (a different volume being the usual one), it falls
// back to stream-copy-then-delete.
func (w *AtomicWriter) Close() error {
	if err := w.file.Sync(); err != nil {
		w.file.Close()
		os.Remove(w.tmpPath)
		return fmt.Errorf("atomic: sync %s: %w", w.tmpPath, err)
	}
	if err := w.file.Close(); err != nil {
		os.Remove(w.tmpPath)
		return fmt.Errorf("atomic: close %s: %w", w.tmpPath, err)
	}

	err := Retry(context.Background(), w.retry, func() error {
		return os.Rename(w.tmpPath, w.target)
	})
	if err == nil {
		return nil
	}

	if copyErr := crossVolumeCopy(w.tmpPath, w.target); copyErr != nil {
		os.Remove(w.tmpPath)
		return fmt.Errorf("atomic: publish %s: rename failed (%v), copy fallback failed: %w", w.target, err, copyErr)
	}
	os.Remove(w.tmpPath)
	return nil
}

// Abort discards the temp file without publishing. Safe to call after a
// partial write when the caller decides not to finalize (e.g. cancellation).
func (w *AtomicWriter) Abort() error {
	w.file.Close()
	return os.Remove(w.tmpPath)
}

// crossVolumeCopy streams src to dst and removes src, used as the fallback
// when os.Rename fails across filesystem boundaries (spec §4.2).
func crossVolumeCopy(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.OpenFile(dst, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	if err := out.Sync(); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}
