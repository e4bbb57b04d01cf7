package sink

import (
	"bufio"
	"fmt"
	"io"
	"path/filepath"
	"sync"

	"github.com/harvx/reddit-etl/internal/ioutil"
	"github.com/harvx/reddit-etl/internal/model"
	"github.com/harvx/reddit-etl/internal/scan"
	"github.com/harvx/reddit-etl/internal/zstdio"
)

// Format selects a partitioned/spool sink's on-disk encoding.
type Format int

const (
	// FormatJSONL writes plain JSON-lines.
	FormatJSONL Format = iota
	// FormatZST recompresses the output as a single zstd frame.
	FormatZST
)

func (f Format) ext() string {
	if f == FormatZST {
		return "zst"
	}
	return "jsonl"
}

// Partitioned fans records out to one output file per input monthly file,
// preserving RC_YYYY-MM / RS_YYYY-MM naming under comments/ or submissions/
// (spec §4.8). Safe for concurrent Write calls, for different files and for
// the same file: the writer map is guarded by one mutex and each per-file
// writer by its own.
type Partitioned struct {
	outDir string
	format Format
	retry  ioutil.RetryOptions

	mu      sync.Mutex
	writers map[string]*partWriter
}

type partWriter struct {
	writer  *ioutil.AtomicWriter
	buf     *bufio.Writer
	encoder io.WriteCloser // non-nil only for FormatZST
	mu      sync.Mutex
}

// NewPartitioned prepares a partitioned export sink rooted at outDir.
func NewPartitioned(outDir string, format Format, retry ioutil.RetryOptions) *Partitioned {
	return &Partitioned{
		outDir:  outDir,
		format:  format,
		retry:   retry,
		writers: make(map[string]*partWriter),
	}
}

func (p *Partitioned) outputPath(file model.MonthlyFile) string {
	subdir := "comments"
	if file.Source == model.KindSubmission {
		subdir = "submissions"
	}
	return filepath.Join(p.outDir, subdir, file.OutputName()+"."+p.format.ext())
}

func (p *Partitioned) writerFor(file model.MonthlyFile) (*partWriter, error) {
	key := p.outputPath(file)

	p.mu.Lock()
	defer p.mu.Unlock()

	if w, ok := p.writers[key]; ok {
		return w, nil
	}

	aw, err := ioutil.CreateAtomic(key, p.retry)
	if err != nil {
		return nil, fmt.Errorf("sink: partitioned %s: %w", key, err)
	}

	pw := &partWriter{writer: aw}
	if p.format == FormatZST {
		enc, err := zstdio.NewWriter(aw, 0)
		if err != nil {
			aw.Abort()
			return nil, fmt.Errorf("sink: partitioned %s: %w", key, err)
		}
		pw.encoder = enc
		pw.buf = bufio.NewWriterSize(enc, 256*1024)
	} else {
		pw.buf = bufio.NewWriterSize(aw, 256*1024)
	}

	p.writers[key] = pw
	return pw, nil
}

// Write implements scan.Sink's signature (bind with p.Write).
func (p *Partitioned) Write(r model.Record, file model.MonthlyFile) error {
	w, err := p.writerFor(file)
	if err != nil {
		return err
	}
	line, err := marshalRecord(r)
	if err != nil {
		return err
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	_, err = w.buf.Write(line)
	return err
}

// AsSink adapts Write to scan.Sink.
func (p *Partitioned) AsSink() scan.Sink { return p.Write }

// Close flushes and publishes every per-file writer opened so far.
func (p *Partitioned) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	for path, w := range p.writers {
		if err := closePartWriter(w); err != nil {
			return fmt.Errorf("sink: partitioned %s: %w", path, err)
		}
	}
	return nil
}

func closePartWriter(w *partWriter) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if err := w.buf.Flush(); err != nil {
		w.writer.Abort()
		return err
	}
	if w.encoder != nil {
		if err := w.encoder.Close(); err != nil {
			w.writer.Abort()
			return err
		}
	}
	return w.writer.Close()
}
