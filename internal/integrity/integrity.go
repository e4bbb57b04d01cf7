// Package integrity implements C10: running the zstdio integrity probe
// across a discovered set of monthly archives and reporting suspect files.
// It never mutates input; Check only reads.
package integrity

import (
	"context"

	"golang.org/x/sync/errgroup"

	"github.com/harvx/reddit-etl/internal/discovery"
	"github.com/harvx/reddit-etl/internal/model"
	"github.com/harvx/reddit-etl/internal/zstdio"
)

// Mode selects the depth of the probe (spec §4.3).
type Mode int

const (
	// Quick decodes up to SampleBytes from the start of the file; it checks
	// that the header is accepted and some bytes decode, not the rest.
	Quick Mode = iota
	// Full streams the entire file and verifies the terminal checksum.
	Full
)

// Options configures one integrity check run.
type Options struct {
	BaseDir     string
	Sources     model.SourceKind
	Window      model.Range
	Mode        Mode
	SampleBytes int64 // Quick mode only; 0 selects a 1 MiB sample
	Concurrency int
	WindowLog   int
}

func (o Options) normalized() Options {
	if o.Concurrency <= 0 {
		o.Concurrency = 4
	}
	if o.SampleBytes <= 0 {
		o.SampleBytes = 1 << 20
	}
	return o
}

// Check discovers files under opts.BaseDir within opts.Window and probes
// each with the configured Mode, returning every suspect file found. An
// empty result is success, not an error (spec §4.10).
func Check(ctx context.Context, opts Options) ([]zstdio.Suspect, error) {
	opts = opts.normalized()

	files, err := discovery.Discover(discovery.Options{
		BaseDir: opts.BaseDir,
		Sources: opts.Sources,
		Window:  opts.Window,
	})
	if err != nil {
		return nil, err
	}

	prober := zstdio.Prober{WindowLog: opts.WindowLog}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(opts.Concurrency)

	suspects := make([]*zstdio.Suspect, len(files))
	for i, file := range files {
		i, file := i, file
		g.Go(func() error {
			var s *zstdio.Suspect
			if opts.Mode == Full {
				s = prober.Full(gctx, file.Path)
			} else {
				s = prober.Quick(gctx, file.Path, opts.SampleBytes)
			}
			suspects[i] = s
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	var out []zstdio.Suspect
	for _, s := range suspects {
		if s != nil {
			out = append(out, *s)
		}
	}
	return out, nil
}
