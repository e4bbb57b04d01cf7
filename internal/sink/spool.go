package sink

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/harvx/reddit-etl/internal/ioutil"
	"github.com/harvx/reddit-etl/internal/model"
	"github.com/harvx/reddit-etl/internal/scan"
)

// ManifestEntry is one row of manifest.tsv: path, size, mtime, line count
// (spec §6).
type ManifestEntry struct {
	Path    string
	Size    int64
	ModTime time.Time
	Lines   int64
}

// Manifest is the resumable spool's part listing.
type Manifest struct {
	Entries map[string]ManifestEntry
}

// LoadManifest reads manifest.tsv if present; a missing file yields an empty
// manifest, not an error (first run has none yet).
func LoadManifest(path string) (*Manifest, error) {
	m := &Manifest{Entries: make(map[string]ManifestEntry)}

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return m, nil
	}
	if err != nil {
		return nil, fmt.Errorf("sink: read manifest %s: %w", path, err)
	}

	for _, line := range strings.Split(string(data), "\n") {
		if line == "" {
			continue
		}
		cols := strings.Split(line, "\t")
		if len(cols) != 4 {
			continue
		}
		size, _ := strconv.ParseInt(cols[1], 10, 64)
		mtimeUnix, _ := strconv.ParseInt(cols[2], 10, 64)
		lines, _ := strconv.ParseInt(cols[3], 10, 64)
		m.Entries[cols[0]] = ManifestEntry{
			Path:    cols[0],
			Size:    size,
			ModTime: time.Unix(mtimeUnix, 0).UTC(),
			Lines:   lines,
		}
	}
	return m, nil
}

// Save writes manifest.tsv atomically.
func (m *Manifest) Save(path string, retry ioutil.RetryOptions) error {
	w, err := ioutil.CreateAtomic(path, retry)
	if err != nil {
		return fmt.Errorf("sink: write manifest %s: %w", path, err)
	}
	buf := bufio.NewWriter(w)
	for _, key := range sortedKeys(m.Entries) {
		e := m.Entries[key]
		fmt.Fprintf(buf, "%s\t%d\t%d\t%d\n", e.Path, e.Size, e.ModTime.Unix(), e.Lines)
	}
	if err := buf.Flush(); err != nil {
		w.Abort()
		return fmt.Errorf("sink: write manifest %s: %w", path, err)
	}
	return w.Close()
}

// MatchesOnDisk reports whether entry's recorded size matches the file
// currently on disk at its path, the resume criterion from spec §4.8/§4.9.
func (e ManifestEntry) MatchesOnDisk() bool {
	info, err := os.Stat(e.Path)
	if err != nil {
		return false
	}
	return info.Size() == e.Size
}

// Spool implements the spool-monthly sink: like Partitioned(FormatJSONL) but
// intermediate storage with a resumable manifest (spec §4.8). Spool itself
// skips nothing: a resuming caller uses ShouldSkip on a constructed Spool to
// drop files whose manifest entry and on-disk size still match from the file
// list it passes to scan.Scheduler.Run.
type Spool struct {
	outDir   string
	retry    ioutil.RetryOptions
	manifest *Manifest

	mu      sync.Mutex
	writers map[string]*spoolPart
}

type spoolPart struct {
	path   string
	writer *ioutil.AtomicWriter
	buf    *bufio.Writer
	lines  int64
	mu     sync.Mutex
}

// NewSpool opens (or creates) outDir's manifest and prepares a spool sink.
func NewSpool(outDir string, retry ioutil.RetryOptions) (*Spool, error) {
	manifest, err := LoadManifest(filepath.Join(outDir, "manifest.tsv"))
	if err != nil {
		return nil, err
	}
	return &Spool{
		outDir:   outDir,
		retry:    retry,
		manifest: manifest,
		writers:  make(map[string]*spoolPart),
	}, nil
}

func (s *Spool) outputPath(file model.MonthlyFile) string {
	subdir := "comments"
	if file.Source == model.KindSubmission {
		subdir = "submissions"
	}
	return filepath.Join(s.outDir, subdir, file.OutputName()+".jsonl")
}

// ShouldSkip reports whether file's spool output already exists, matches the
// manifest, and resume is requested -- the caller filters its discovery list
// with this before running the scheduler.
func (s *Spool) ShouldSkip(file model.MonthlyFile, resume bool) bool {
	if !resume {
		return false
	}
	entry, ok := s.manifest.Entries[s.outputPath(file)]
	if !ok {
		return false
	}
	return entry.MatchesOnDisk()
}

func (s *Spool) partFor(file model.MonthlyFile) (*spoolPart, error) {
	path := s.outputPath(file)

	s.mu.Lock()
	defer s.mu.Unlock()

	if p, ok := s.writers[path]; ok {
		return p, nil
	}

	w, err := ioutil.CreateAtomic(path, s.retry)
	if err != nil {
		return nil, fmt.Errorf("sink: spool %s: %w", path, err)
	}
	p := &spoolPart{path: path, writer: w, buf: bufio.NewWriterSize(w, 256*1024)}
	s.writers[path] = p
	return p, nil
}

// Write implements scan.Sink's signature (bind with s.Write).
func (s *Spool) Write(r model.Record, file model.MonthlyFile) error {
	p, err := s.partFor(file)
	if err != nil {
		return err
	}
	line, err := marshalRecord(r)
	if err != nil {
		return err
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if _, err := p.buf.Write(line); err != nil {
		return err
	}
	p.lines++
	return nil
}

// AsSink adapts Write to scan.Sink.
func (s *Spool) AsSink() scan.Sink { return s.Write }

// Close flushes and publishes every part, then rewrites manifest.tsv to
// reflect the parts just produced (merged with any untouched prior entries).
func (s *Spool) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for path, p := range s.writers {
		p.mu.Lock()
		flushErr := p.buf.Flush()
		p.mu.Unlock()
		if flushErr != nil {
			p.writer.Abort()
			return fmt.Errorf("sink: spool %s: %w", path, flushErr)
		}
		if err := p.writer.Close(); err != nil {
			return fmt.Errorf("sink: spool %s: %w", path, err)
		}

		info, err := os.Stat(path)
		if err != nil {
			return fmt.Errorf("sink: spool stat %s: %w", path, err)
		}
		s.manifest.Entries[path] = ManifestEntry{
			Path:    path,
			Size:    info.Size(),
			ModTime: info.ModTime().UTC(),
			Lines:   p.lines,
		}
	}

	return s.manifest.Save(filepath.Join(s.outDir, "manifest.tsv"), s.retry)
}
