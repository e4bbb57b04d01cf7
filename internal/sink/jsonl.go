package sink

import (
	"bufio"
	"fmt"
	"sync"

	"github.com/harvx/reddit-etl/internal/ioutil"
	"github.com/harvx/reddit-etl/internal/model"
	"github.com/harvx/reddit-etl/internal/scan"
)

// JSONL opens an atomically-published JSONL sink at path: one JSON object
// per line, LF-terminated, UTF-8 (spec §4.8). Callers must call Close exactly
// once after scanning finishes to publish the file; Abort discards it
// instead (e.g. on cancellation, per spec invariant 4).
type JSONL struct {
	writer *ioutil.AtomicWriter
	buf    *bufio.Writer
	mu     sync.Mutex
}

// NewJSONL creates the sink's temp file.
func NewJSONL(path string, retry ioutil.RetryOptions) (*JSONL, error) {
	w, err := ioutil.CreateAtomic(path, retry)
	if err != nil {
		return nil, fmt.Errorf("sink: jsonl %s: %w", path, err)
	}
	return &JSONL{writer: w, buf: bufio.NewWriterSize(w, 256*1024)}, nil
}

// Write implements scan.Sink's signature (bind with j.Write as the sink func).
func (j *JSONL) Write(r model.Record, _ model.MonthlyFile) error {
	line, err := marshalRecord(r)
	if err != nil {
		return err
	}
	j.mu.Lock()
	defer j.mu.Unlock()
	_, err = j.buf.Write(line)
	return err
}

// AsSink adapts Write to scan.Sink.
func (j *JSONL) AsSink() scan.Sink { return j.Write }

// Close flushes and publishes the sink atomically.
func (j *JSONL) Close() error {
	if err := j.buf.Flush(); err != nil {
		j.writer.Abort()
		return fmt.Errorf("sink: jsonl flush: %w", err)
	}
	return j.writer.Close()
}

// Abort discards the temp file without publishing.
func (j *JSONL) Abort() error {
	return j.writer.Abort()
}
