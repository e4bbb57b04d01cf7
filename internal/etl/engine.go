package etl

import (
	"context"
	"errors"
	"fmt"

	"github.com/harvx/reddit-etl/internal/discovery"
	"github.com/harvx/reddit-etl/internal/model"
	"github.com/harvx/reddit-etl/internal/query"
	"github.com/harvx/reddit-etl/internal/scan"
	"github.com/harvx/reddit-etl/internal/transform"
)

// RunOptions bundles everything one Engine.Run call needs: where to look,
// how to scan, and how to filter/reshape what it finds. The caller builds
// and owns the sink's lifecycle (opening it before Run and closing it
// after), since sinks vary in what closing means (flushing a manifest,
// writing a TSV, none of the above for an in-memory aggregate).
type RunOptions struct {
	Discovery discovery.Options
	// Files, if non-nil (even when empty), is scanned directly instead of calling
	// discovery.Discover -- used by callers that must filter the discovered
	// list themselves first (e.g. a resumable spool skipping parts that
	// already match its manifest).
	Files     []model.MonthlyFile
	Scan      scan.Options
	Query     *query.Query
	Transform transform.Options
}

// Engine wires discovery, the scan scheduler, and a caller-supplied sink
// into one call, mapping the outcome onto the exit-code contract spec §6
// defines.
type Engine struct{}

// NewEngine returns a ready-to-use Engine. It carries no state: every run
// is independent.
func NewEngine() *Engine {
	return &Engine{}
}

// Run discovers files per opts.Discovery and scans them per opts.Scan,
// calling sink for every record that passes opts.Query. The returned error,
// when non-nil, is always a *RunError so callers can read its Code directly.
func (e *Engine) Run(ctx context.Context, opts RunOptions, sink scan.Sink) (*scan.Result, error) {
	files := opts.Files
	if files == nil {
		discovered, err := discovery.Discover(opts.Discovery)
		if err != nil {
			return nil, NewConfigError("discovery failed", err)
		}
		files = discovered
	}

	scheduler := scan.New(opts.Scan, opts.Query, opts.Transform)
	result, err := scheduler.Run(ctx, files, sink)
	if err != nil {
		if errors.Is(err, context.Canceled) || (result != nil && result.Cancelled) {
			return result, NewCancelledError(err)
		}
		return result, NewConfigError("scan failed", err)
	}

	if len(result.Failures) > 0 {
		return result, NewPartialError(fmt.Sprintf("%d file(s) failed", len(result.Failures)), result.Failures[0].Err)
	}

	return result, nil
}
