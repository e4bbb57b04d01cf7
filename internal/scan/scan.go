// Package scan implements C6, the scan scheduler: a per-file worker pool with
// a file-concurrency cap, per-file record parallelism, a bounded hand-off
// queue for backpressure, an adaptive memory-pressure throttle, cooperative
// cancellation, and a configurable failure policy.
package scan

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"runtime"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	"github.com/harvx/reddit-etl/internal/ioutil"
	"github.com/harvx/reddit-etl/internal/lines"
	"github.com/harvx/reddit-etl/internal/model"
	"github.com/harvx/reddit-etl/internal/progress"
	"github.com/harvx/reddit-etl/internal/query"
	"github.com/harvx/reddit-etl/internal/transform"
	"github.com/harvx/reddit-etl/internal/zstdio"
)

// Options configures a Scheduler run (spec §4.6, §6's knob table).
type Options struct {
	// FileConcurrency is F: how many monthly files are decoded at once.
	// 0 selects min(4, len(files)).
	FileConcurrency int
	// Parallelism is P: total worker slots for per-file parsing/filtering.
	// 0 selects runtime.NumCPU().
	Parallelism int
	// BatchBytes and BatchLines bound batch size; whichever triggers first.
	BatchBytes int
	BatchLines int
	// QueueMultiplier sizes the bounded hand-off queue as Multiplier *
	// workers-per-file. 0 selects 4.
	QueueMultiplier int
	// MemoryBudget is the absolute byte cap the throttle measures against.
	// 0 selects 75% of an assumed 8 GiB of system RAM (see
	// approxSystemRAMBudget); the host's memory is not queried.
	MemoryBudget uint64
	// FailFast stops the whole run on the first file failure instead of
	// recording it and continuing.
	FailFast bool
	// Reporter receives progress events and cooperative-stop queries. A nil
	// Reporter defaults to progress.NoopReporter{}.
	Reporter progress.Reporter
	// WindowLog bounds zstd decoder memory (spec §4.3); 0 selects
	// zstdio.DefaultWindowLog.
	WindowLog int
	// Retry governs transient I/O retry for opening each file.
	Retry ioutil.RetryOptions
}

func (o Options) normalized(fileCount int) Options {
	out := o
	if out.FileConcurrency <= 0 {
		out.FileConcurrency = min(4, fileCount)
		if out.FileConcurrency == 0 {
			out.FileConcurrency = 1
		}
	}
	if out.Parallelism <= 0 {
		out.Parallelism = runtime.NumCPU()
	}
	if out.BatchBytes <= 0 {
		out.BatchBytes = 1024 * 1024
	}
	if out.BatchLines <= 0 {
		out.BatchLines = 4096
	}
	if out.QueueMultiplier <= 0 {
		out.QueueMultiplier = 4
	}
	if out.Reporter == nil {
		out.Reporter = progress.NoopReporter{}
	}
	return out
}

// FileFailure records a per-file failure under the "continue unless
// fail-fast" policy (spec §4.6, error kind 4).
type FileFailure struct {
	Path string
	Err  error
}

// Result summarizes one Scan call.
type Result struct {
	RecordsScanned int64
	RecordsMatched int64
	ParseErrors    int64
	Failures       []FileFailure
	Cancelled      bool
}

// Sink receives a transformed, predicate-matched record along with the
// monthly file it came from. The scheduler serializes no calls: several
// files are scanned at once and each file is processed by P/F workers, so a
// sink is called concurrently, and records of one file can reach it out of
// read order whenever more than one worker runs per file.
type Sink func(r model.Record, file model.MonthlyFile) error

// Scheduler runs C6 over a discovered file list.
type Scheduler struct {
	opts   Options
	query  *query.Query
	xform  transform.Options
	logger *slog.Logger
}

// New builds a Scheduler bound to a compiled query and transform options.
func New(opts Options, q *query.Query, xform transform.Options) *Scheduler {
	return &Scheduler{
		opts:   opts,
		query:  q,
		xform:  xform,
		logger: slog.Default().With("component", "scan"),
	}
}

// Run scans files, in parallel bounded by FileConcurrency, calling sink for
// every record that passes the compiled query. It returns once every file
// has been processed, the context is cancelled, or (with FailFast) the first
// file failure occurs.
func (s *Scheduler) Run(ctx context.Context, files []model.MonthlyFile, sink Sink) (*Result, error) {
	opts := s.opts.normalized(len(files))
	result := &Result{}
	var mu sync.Mutex

	throttle := newThrottle(opts, s.logger)
	stopThrottle := throttle.Start(ctx)
	defer stopThrottle()

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(opts.FileConcurrency)

	for _, file := range files {
		file := file
		if opts.Reporter.ShouldStop() {
			break
		}
		g.Go(func() error {
			opts.Reporter.Report(progress.Event{Kind: progress.FileStarted, Path: file.Path})

			fr, err := s.scanFile(gctx, file, opts, throttle, sink, &mu, result)
			if err != nil {
				if isCancellation(err) {
					mu.Lock()
					result.Cancelled = true
					mu.Unlock()
					return err
				}
				mu.Lock()
				result.Failures = append(result.Failures, FileFailure{Path: file.Path, Err: err})
				mu.Unlock()
				opts.Reporter.Report(progress.Event{Kind: progress.FileFailed, Path: file.Path, Err: err})
				if opts.FailFast {
					return err
				}
				return nil
			}
			opts.Reporter.Report(progress.Event{Kind: progress.FileCompleted, Path: file.Path, Count: fr})
			return nil
		})
	}

	err := g.Wait()
	if err != nil && !isCancellation(err) {
		return result, fmt.Errorf("scan: fail-fast: %w", err)
	}
	if err != nil {
		return result, err
	}
	return result, nil
}

// scanFile decodes one file, batches its lines, and fans them out to
// parse-and-filter workers sized at P/F workers (minimum 1).
func (s *Scheduler) scanFile(ctx context.Context, file model.MonthlyFile, opts Options, th *throttle, sink Sink, resMu *sync.Mutex, result *Result) (int64, error) {
	f, err := ioutil.OpenForRead(ctx, file.Path, opts.Retry)
	if err != nil {
		return 0, fmt.Errorf("open %s: %w", file.Path, err)
	}
	defer f.Close()

	dec, err := zstdio.NewReader(f, opts.WindowLog)
	if err != nil {
		return 0, fmt.Errorf("zstd reader %s: %w", file.Path, err)
	}
	defer dec.Close()

	workers := th.workersPerFile(opts.Parallelism, opts.FileConcurrency)
	queueCap := workers * opts.QueueMultiplier

	batches := make(chan []string, queueCap)
	g, gctx := errgroup.WithContext(ctx)

	var scanned, matched int64

	g.Go(func() error {
		defer close(batches)
		return produceBatches(gctx, dec, opts, th, batches, opts.Reporter)
	})

	for i := 0; i < workers; i++ {
		g.Go(func() error {
			for batch := range batches {
				if opts.Reporter.ShouldStop() {
					return errCancelled
				}
				select {
				case <-gctx.Done():
					return gctx.Err()
				default:
				}
				for _, line := range batch {
					atomic.AddInt64(&scanned, 1)
					var raw map[string]any
					if err := json.Unmarshal([]byte(line), &raw); err != nil {
						resMu.Lock()
						result.ParseErrors++
						resMu.Unlock()
						continue
					}
					rec := model.Record(raw)
					if !s.query.Match(rec) {
						continue
					}
					out := transform.Apply(rec, s.xform)
					if err := sink(out, file); err != nil {
						return fmt.Errorf("sink: %w", err)
					}
					atomic.AddInt64(&matched, 1)
				}
			}
			return nil
		})
	}

	err = g.Wait()

	resMu.Lock()
	result.RecordsScanned += scanned
	result.RecordsMatched += matched
	resMu.Unlock()
	opts.Reporter.Report(progress.Event{Kind: progress.RecordsScanned, Path: file.Path, Count: scanned})
	opts.Reporter.Report(progress.Event{Kind: progress.RecordsMatched, Path: file.Path, Count: matched})

	if err != nil {
		return scanned, err
	}
	return scanned, nil
}

// produceBatches reads lines from dec and groups them into batches sized by
// cumulative bytes or line count, whichever triggers first, respecting the
// throttle's current batch-size fraction.
func produceBatches(ctx context.Context, dec io.Reader, opts Options, th *throttle, out chan<- []string, reporter progress.Reporter) error {
	src := lines.NewSource(dec)

	var batch []string
	var batchBytes int

	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		select {
		case out <- batch:
		case <-ctx.Done():
			return ctx.Err()
		}
		batch = nil
		batchBytes = 0
		return nil
	}

	for {
		if reporter.ShouldStop() {
			return errCancelled
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		line, ok := src.Next()
		if !ok {
			break
		}

		batch = append(batch, line)
		batchBytes += len(line)

		maxBytes, maxLines := th.currentBatchLimits(opts.BatchBytes, opts.BatchLines)
		if batchBytes >= maxBytes || len(batch) >= maxLines {
			if err := flush(); err != nil {
				return err
			}
		}
	}
	if err := src.Err(); err != nil {
		return fmt.Errorf("line source: %w", err)
	}
	return flush()
}

var errCancelled = fmt.Errorf("scan: cancelled")

func isCancellation(err error) bool {
	return err == context.Canceled || err == errCancelled
}
