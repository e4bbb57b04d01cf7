package sink

import (
	"bufio"
	"fmt"
	"sort"
	"sync"

	"github.com/harvx/reddit-etl/internal/ioutil"
	"github.com/harvx/reddit-etl/internal/model"
	"github.com/harvx/reddit-etl/internal/scan"
)

// CountByMonth accumulates a mapping YYYY-MM -> count across all sources
// (spec §4.8). Safe for concurrent Write calls from multiple files' workers;
// contention is on one mutex rather than per-worker partial maps merged at
// file-end; at the cardinalities this toolkit deals with (tens to low
// hundreds of distinct months) that's not worth the extra merge-step
// interface. See DESIGN.md.
type CountByMonth struct {
	mu     sync.Mutex
	counts map[string]uint64
}

// NewCountByMonth returns an empty aggregator.
func NewCountByMonth() *CountByMonth {
	return &CountByMonth{counts: make(map[string]uint64)}
}

// Write implements scan.Sink's signature (bind with c.Write).
func (c *CountByMonth) Write(_ model.Record, file model.MonthlyFile) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.counts[file.YearMonth.String()]++
	return nil
}

// AsSink adapts Write to scan.Sink.
func (c *CountByMonth) AsSink() scan.Sink { return c.Write }

// Snapshot returns a copy of the accumulated counts.
func (c *CountByMonth) Snapshot() map[string]uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make(map[string]uint64, len(c.counts))
	for k, v := range c.counts {
		out[k] = v
	}
	return out
}

// AuthorCounts accumulates author -> record count (spec §4.8), emitted as
// TSV sorted by descending count, ties broken by author ascending.
type AuthorCounts struct {
	mu     sync.Mutex
	counts map[string]uint64
}

// NewAuthorCounts returns an empty aggregator.
func NewAuthorCounts() *AuthorCounts {
	return &AuthorCounts{counts: make(map[string]uint64)}
}

// Write implements scan.Sink's signature (bind with a.Write).
func (a *AuthorCounts) Write(r model.Record, _ model.MonthlyFile) error {
	author := r.Author()
	if author == "" {
		return nil
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	a.counts[author]++
	return nil
}

// AsSink adapts Write to scan.Sink.
func (a *AuthorCounts) AsSink() scan.Sink { return a.Write }

// WriteTSV publishes the sorted author\tcount TSV atomically to path.
func (a *AuthorCounts) WriteTSV(path string, retry ioutil.RetryOptions) error {
	a.mu.Lock()
	rows := make([]authorCount, 0, len(a.counts))
	for author, n := range a.counts {
		rows = append(rows, authorCount{author, n})
	}
	a.mu.Unlock()

	sort.Slice(rows, func(i, j int) bool {
		if rows[i].count != rows[j].count {
			return rows[i].count > rows[j].count
		}
		return rows[i].author < rows[j].author
	})

	w, err := ioutil.CreateAtomic(path, retry)
	if err != nil {
		return fmt.Errorf("sink: author-counts %s: %w", path, err)
	}
	buf := bufio.NewWriter(w)
	for _, row := range rows {
		fmt.Fprintf(buf, "%s\t%d\n", row.author, row.count)
	}
	if err := buf.Flush(); err != nil {
		w.Abort()
		return fmt.Errorf("sink: author-counts %s: %w", path, err)
	}
	return w.Close()
}

type authorCount struct {
	author string
	count  uint64
}

// FirstSeenIndex accumulates author -> earliest created_utc observed
// (spec §4.8), emitted as TSV.
type FirstSeenIndex struct {
	mu        sync.Mutex
	firstSeen map[string]int64
}

// NewFirstSeenIndex returns an empty aggregator.
func NewFirstSeenIndex() *FirstSeenIndex {
	return &FirstSeenIndex{firstSeen: make(map[string]int64)}
}

// Write implements scan.Sink's signature (bind with f.Write).
func (f *FirstSeenIndex) Write(r model.Record, _ model.MonthlyFile) error {
	author := r.Author()
	created, ok := r.CreatedUTC()
	if author == "" || !ok {
		return nil
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if existing, seen := f.firstSeen[author]; !seen || created < existing {
		f.firstSeen[author] = created
	}
	return nil
}

// AsSink adapts Write to scan.Sink.
func (f *FirstSeenIndex) AsSink() scan.Sink { return f.Write }

// WriteTSV publishes the author\tearliest_created_utc TSV atomically to path,
// sorted by author ascending for determinism.
func (f *FirstSeenIndex) WriteTSV(path string, retry ioutil.RetryOptions) error {
	f.mu.Lock()
	keys := sortedKeys(f.firstSeen)
	snapshot := make(map[string]int64, len(f.firstSeen))
	for k, v := range f.firstSeen {
		snapshot[k] = v
	}
	f.mu.Unlock()

	w, err := ioutil.CreateAtomic(path, retry)
	if err != nil {
		return fmt.Errorf("sink: first-seen %s: %w", path, err)
	}
	buf := bufio.NewWriter(w)
	for _, author := range keys {
		fmt.Fprintf(buf, "%s\t%d\n", author, snapshot[author])
	}
	if err := buf.Flush(); err != nil {
		w.Abort()
		return fmt.Errorf("sink: first-seen %s: %w", path, err)
	}
	return w.Close()
}

// Usernames is a lazy, finite, non-restartable sequence of distinct author
// strings in discovery order (spec §4.8). Workers call Write as records
// arrive; a consumer drains Names() after the scan completes, since order
// across concurrently-scanned files is otherwise unspecified (spec §4.6).
type Usernames struct {
	mu   sync.Mutex
	seen map[string]struct{}
	order []string
}

// NewUsernames returns an empty collector.
func NewUsernames() *Usernames {
	return &Usernames{seen: make(map[string]struct{})}
}

// Write implements scan.Sink's signature (bind with u.Write).
func (u *Usernames) Write(r model.Record, _ model.MonthlyFile) error {
	author := r.Author()
	if author == "" {
		return nil
	}
	u.mu.Lock()
	defer u.mu.Unlock()
	if _, ok := u.seen[author]; ok {
		return nil
	}
	u.seen[author] = struct{}{}
	u.order = append(u.order, author)
	return nil
}

// AsSink adapts Write to scan.Sink.
func (u *Usernames) AsSink() scan.Sink { return u.Write }

// Names returns the distinct authors observed, in first-observed order. The
// sequence is not restartable: calling Names again after more Write calls
// returns the updated, still-growing snapshot, not a fresh iterator.
func (u *Usernames) Names() []string {
	u.mu.Lock()
	defer u.mu.Unlock()
	out := make([]string, len(u.order))
	copy(out, u.order)
	return out
}
