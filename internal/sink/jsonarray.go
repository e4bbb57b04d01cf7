package sink

import (
	"bufio"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/harvx/reddit-etl/internal/ioutil"
	"github.com/harvx/reddit-etl/internal/model"
	"github.com/harvx/reddit-etl/internal/scan"
)

// JSONArray opens an atomically-published sink that writes a single JSON
// array: "[" then comma-separated records then "]" (spec §4.8). Atomicity is
// guaranteed the same way as JSONL: temp-then-rename on Close.
type JSONArray struct {
	writer *ioutil.AtomicWriter
	buf    *bufio.Writer
	first  bool
	mu     sync.Mutex
}

// NewJSONArray creates the sink's temp file and writes the opening bracket.
func NewJSONArray(path string, retry ioutil.RetryOptions) (*JSONArray, error) {
	w, err := ioutil.CreateAtomic(path, retry)
	if err != nil {
		return nil, fmt.Errorf("sink: json-array %s: %w", path, err)
	}
	buf := bufio.NewWriterSize(w, 256*1024)
	if _, err := buf.WriteString("["); err != nil {
		w.Abort()
		return nil, fmt.Errorf("sink: json-array %s: %w", path, err)
	}
	return &JSONArray{writer: w, buf: buf, first: true}, nil
}

// Write implements scan.Sink's signature (bind with a.Write).
func (a *JSONArray) Write(r model.Record, _ model.MonthlyFile) error {
	b, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("sink: marshal record: %w", err)
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	if !a.first {
		if _, err := a.buf.WriteString(","); err != nil {
			return err
		}
	}
	a.first = false
	_, err = a.buf.Write(b)
	return err
}

// AsSink adapts Write to scan.Sink.
func (a *JSONArray) AsSink() scan.Sink { return a.Write }

// Close writes the closing bracket, flushes, and publishes atomically.
func (a *JSONArray) Close() error {
	if _, err := a.buf.WriteString("]"); err != nil {
		a.writer.Abort()
		return err
	}
	if err := a.buf.Flush(); err != nil {
		a.writer.Abort()
		return fmt.Errorf("sink: json-array flush: %w", err)
	}
	return a.writer.Close()
}

// Abort discards the temp file without publishing.
func (a *JSONArray) Abort() error {
	return a.writer.Abort()
}
