package parent

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/harvx/reddit-etl/internal/discovery"
	"github.com/harvx/reddit-etl/internal/ioutil"
	"github.com/harvx/reddit-etl/internal/model"
	"github.com/harvx/reddit-etl/internal/query"
	"github.com/harvx/reddit-etl/internal/scan"
	"github.com/harvx/reddit-etl/internal/transform"
)

// ResolveOptions configures pass 2.
type ResolveOptions struct {
	// BaseDir is the corpus root to scan for parent candidates.
	BaseDir string
	// Window is the date sub-range to scan, typically ±1 month around the
	// spool's own range (spec §4.9).
	Window model.Range
	// CacheDir holds per-month cache files (parents_cache/<YYYY-MM>.t1.jsonl
	// and .t3.jsonl).
	CacheDir string
	// Resume reuses existing cache files verbatim when their size matches
	// the recorded manifest entry.
	Resume bool
	// SpillThreshold overrides the default spill-to-disk entry count.
	// 0 selects SpillThreshold.
	SpillThreshold int
	// SpillPath is the bbolt database path used when the set spills to disk.
	SpillPath string
	// ScanOptions configures the underlying scheduler (concurrency, etc).
	ScanOptions scan.Options
	// Retry governs cache-file I/O.
	Retry ioutil.RetryOptions
}

// Resolve scans the corpus within opts.Window, and for every record whose
// fullname is requested in ids, writes its minimal parent payload to the
// per-month cache and loads the result into a Store (spec §4.9 pass 2).
func Resolve(ctx context.Context, ids *IDs, opts ResolveOptions) (Store, error) {
	threshold := opts.SpillThreshold
	if threshold <= 0 {
		threshold = SpillThreshold
	}

	files, err := discovery.Discover(discovery.Options{
		BaseDir: opts.BaseDir,
		Sources: model.Both,
		Window:  opts.Window,
	})
	if err != nil {
		return nil, fmt.Errorf("parent: resolve discovery: %w", err)
	}

	prevManifest, err := loadCacheManifest(opts.CacheDir)
	if err != nil {
		return nil, err
	}

	byMonth := make(map[string]*monthCache)
	var mu sync.Mutex

	q, err := query.NewBuilder().Compile()
	if err != nil {
		return nil, fmt.Errorf("parent: resolve: %w", err)
	}
	sched := scan.New(opts.ScanOptions, q, transform.Options{})

	sink := func(r model.Record, file model.MonthlyFile) error {
		ownID := r.ID()
		kind := file.Source
		wanted := ids.T1
		if kind == model.KindSubmission {
			wanted = ids.T3
		}
		if _, ok := wanted[ownID]; !ok {
			return nil
		}
		payload := ProjectPayload(kind, r)

		mu.Lock()
		defer mu.Unlock()
		mc, err := getOrOpenMonthCache(byMonth, opts.CacheDir, file.YearMonth.String(), kind, opts.Resume, prevManifest, opts.Retry)
		if err != nil {
			return err
		}
		if mc.skipped {
			return nil
		}
		return mc.write(model.Fullname{Kind: kind, ID: ownID}.String(), payload)
	}

	if _, err := sched.Run(ctx, files, sink); err != nil {
		return nil, fmt.Errorf("parent: resolve scan: %w", err)
	}

	finalManifest := make(map[string]cacheEntry, len(byMonth))
	for _, mc := range byMonth {
		if err := mc.close(); err != nil {
			return nil, err
		}
		if mc.skipped {
			finalManifest[mc.path] = prevManifest[mc.path]
			continue
		}
		info, err := os.Stat(mc.path)
		if err != nil {
			return nil, fmt.Errorf("parent: stat cache %s: %w", mc.path, err)
		}
		finalManifest[mc.path] = cacheEntry{Path: mc.path, Size: info.Size()}
	}
	if err := saveCacheManifest(opts.CacheDir, finalManifest, opts.Retry); err != nil {
		return nil, err
	}

	return buildStoreFromCache(opts.CacheDir, threshold, opts.SpillPath)
}

// monthCache buffers one month's t1/t3 cache file writes.
type monthCache struct {
	path    string
	writer  *ioutil.AtomicWriter
	buf     *bufio.Writer
	lines   int64
	skipped bool
}

func getOrOpenMonthCache(byMonth map[string]*monthCache, cacheDir, ym string, kind model.Kind, resume bool, manifest map[string]cacheEntry, retry ioutil.RetryOptions) (*monthCache, error) {
	ext := "t1"
	if kind == model.KindSubmission {
		ext = "t3"
	}
	key := ym + "." + ext

	if mc, ok := byMonth[key]; ok {
		return mc, nil
	}

	path := filepath.Join(cacheDir, fmt.Sprintf("%s.%s.jsonl", ym, ext))
	if resume {
		if entry, ok := manifest[path]; ok && cacheMatchesOnDisk(entry) {
			mc := &monthCache{path: path, skipped: true}
			byMonth[key] = mc
			return mc, nil
		}
	}

	w, err := ioutil.CreateAtomic(path, retry)
	if err != nil {
		return nil, fmt.Errorf("parent: open cache %s: %w", path, err)
	}
	mc := &monthCache{path: path, writer: w, buf: bufio.NewWriterSize(w, 64*1024)}
	byMonth[key] = mc
	return mc, nil
}

func (mc *monthCache) write(fullname string, payload Payload) error {
	row := struct {
		Fullname string `json:"fullname"`
		Payload  Payload `json:"payload"`
	}{fullname, payload}
	b, err := json.Marshal(row)
	if err != nil {
		return err
	}
	if _, err := mc.buf.Write(append(b, '\n')); err != nil {
		return err
	}
	mc.lines++
	return nil
}

func (mc *monthCache) close() error {
	if mc.skipped || mc.writer == nil {
		return nil
	}
	if err := mc.buf.Flush(); err != nil {
		mc.writer.Abort()
		return fmt.Errorf("parent: flush cache %s: %w", mc.path, err)
	}
	return mc.writer.Close()
}

// cacheEntry is one row of the parent cache manifest: a cache file's path
// and the size it had when last written, the resume criterion mirroring
// sink.ManifestEntry (spec §4.9).
type cacheEntry struct {
	Path string
	Size int64
}

// cacheMatchesOnDisk reports whether e's recorded size matches the file
// currently on disk at e.Path. A zero-value entry (not found in the
// manifest) never matches.
func cacheMatchesOnDisk(e cacheEntry) bool {
	if e.Path == "" {
		return false
	}
	info, err := os.Stat(e.Path)
	if err != nil {
		return false
	}
	return info.Size() == e.Size
}

func loadCacheManifest(cacheDir string) (map[string]cacheEntry, error) {
	path := filepath.Join(cacheDir, "manifest.tsv")
	entries := make(map[string]cacheEntry)

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return entries, nil
	}
	if err != nil {
		return nil, fmt.Errorf("parent: read cache manifest %s: %w", path, err)
	}

	for _, line := range strings.Split(string(data), "\n") {
		if line == "" {
			continue
		}
		cols := strings.Split(line, "\t")
		if len(cols) != 2 {
			continue
		}
		size, err := strconv.ParseInt(cols[1], 10, 64)
		if err != nil {
			continue
		}
		entries[cols[0]] = cacheEntry{Path: cols[0], Size: size}
	}
	return entries, nil
}

func saveCacheManifest(cacheDir string, entries map[string]cacheEntry, retry ioutil.RetryOptions) error {
	path := filepath.Join(cacheDir, "manifest.tsv")
	w, err := ioutil.CreateAtomic(path, retry)
	if err != nil {
		return fmt.Errorf("parent: write cache manifest %s: %w", path, err)
	}
	buf := bufio.NewWriter(w)
	for _, p := range sortedCacheKeys(entries) {
		e := entries[p]
		fmt.Fprintf(buf, "%s\t%d\n", e.Path, e.Size)
	}
	if err := buf.Flush(); err != nil {
		w.Abort()
		return err
	}
	return w.Close()
}

func sortedCacheKeys(entries map[string]cacheEntry) []string {
	keys := make([]string, 0, len(entries))
	for k := range entries {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// spillFlushBatch bounds how many entries accumulate before one bbolt write
// transaction, once streaming has switched to disk.
const spillFlushBatch = 10_000

// buildStoreFromCache streams every cache file's entries into a Store,
// staying in memory while the running count is at or below threshold and
// switching to a disk-spilled bbolt store the moment it's exceeded -- the
// full entry set is never held in memory at once, per spec §4.9's "may
// stream-build" allowance.
func buildStoreFromCache(cacheDir string, threshold int, spillPath string) (Store, error) {
	files, err := filepath.Glob(filepath.Join(cacheDir, "*.jsonl"))
	if err != nil {
		return nil, fmt.Errorf("parent: list cache files: %w", err)
	}
	sort.Strings(files)

	mem := NewMemStore()
	var spill *boltStore
	batch := make(map[string]Payload, spillFlushBatch)

	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		if err := spill.PutBatch(batch); err != nil {
			return fmt.Errorf("parent: spill to disk: %w", err)
		}
		for k := range batch {
			delete(batch, k)
		}
		return nil
	}

	put := func(fullname string, payload Payload) error {
		if spill == nil {
			mem.Put(fullname, payload)
			if mem.Len() <= threshold {
				return nil
			}
			s, err := OpenBoltStore(spillPath)
			if err != nil {
				return err
			}
			if err := s.PutBatch(mem.entries); err != nil {
				s.Close()
				return fmt.Errorf("parent: spill to disk: %w", err)
			}
			spill = s
			mem = NewMemStore()
			return nil
		}
		batch[fullname] = payload
		if len(batch) >= spillFlushBatch {
			return flush()
		}
		return nil
	}

	for _, path := range files {
		if filepath.Base(path) == "manifest.tsv" {
			continue
		}
		if err := streamCacheFile(path, put); err != nil {
			if spill != nil {
				spill.Close()
			}
			return nil, fmt.Errorf("parent: read cache %s: %w", path, err)
		}
	}

	if spill != nil {
		if err := flush(); err != nil {
			spill.Close()
			return nil, err
		}
		return spill, nil
	}
	return mem, nil
}

func streamCacheFile(path string, put func(fullname string, payload Payload) error) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	for scanner.Scan() {
		var row struct {
			Fullname string  `json:"fullname"`
			Payload  Payload `json:"payload"`
		}
		if err := json.Unmarshal(scanner.Bytes(), &row); err != nil {
			continue
		}
		if err := put(row.Fullname, row.Payload); err != nil {
			return err
		}
	}
	return scanner.Err()
}
