package cli

import (
	"context"
	"log/slog"
	"time"

	"github.com/spf13/cobra"

	"github.com/harvx/reddit-etl/internal/discovery"
	"github.com/harvx/reddit-etl/internal/etl"
	"github.com/harvx/reddit-etl/internal/ioutil"
	"github.com/harvx/reddit-etl/internal/model"
	"github.com/harvx/reddit-etl/internal/query"
	"github.com/harvx/reddit-etl/internal/scan"
	"github.com/harvx/reddit-etl/internal/sink"
)

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Poll base_dir for new monthly archives and spool them as they arrive",
	Long: `watch repeatedly discovers files under base_dir and spools any whose
manifest entry is absent or stale, then sleeps for --interval before
checking again. It runs until cancelled (Ctrl-C) or --once returns after a
single pass.`,
	RunE: runWatch,
}

func init() {
	flags := watchCmd.Flags()
	flags.String("out", "", "spool output directory")
	flags.Duration("interval", 5*time.Minute, "polling interval")
	flags.Bool("once", false, "run a single discovery-and-spool pass, then exit")
	watchCmd.MarkFlagRequired("out")
}

func runWatch(cmd *cobra.Command, args []string) error {
	opts := resolved.Options
	flags := cmd.Flags()

	out, _ := flags.GetString("out")
	interval, _ := flags.GetDuration("interval")
	once, _ := flags.GetBool("once")

	q, err := query.NewBuilder().AllowPseudoUsers(opts.AllowPseudoUsers).DateRange(opts.DateRange()).Compile()
	if err != nil {
		return etl.NewConfigError("building query", err)
	}

	retry := ioutil.RetryOptions{}
	discOpts := discovery.Options{BaseDir: opts.BaseDir, Sources: opts.SourceKind(), Window: opts.DateRange()}

	runOnce := func(ctx context.Context) error {
		sp, err := sink.NewSpool(out, retry)
		if err != nil {
			return etl.NewConfigError("opening spool", err)
		}

		all, err := discovery.Discover(discOpts)
		if err != nil {
			return etl.NewConfigError("discovery failed", err)
		}
		kept := make([]model.MonthlyFile, 0, len(all))
		for _, f := range all {
			if !sp.ShouldSkip(f, true) {
				kept = append(kept, f)
			}
		}
		if len(kept) == 0 {
			slog.Debug("watch: no new files")
			return sp.Close()
		}

		slog.Info("watch: spooling new files", "count", len(kept))
		e := etl.NewEngine()
		_, runErr := e.Run(ctx, etl.RunOptions{
			Discovery: discOpts,
			Files:     kept,
			Scan:      scan.Options{FileConcurrency: opts.FileConcurrency, Parallelism: opts.Parallelism, Retry: retry},
			Query:     q,
		}, sp.AsSink())

		if closeErr := sp.Close(); closeErr != nil && runErr == nil {
			runErr = etl.NewConfigError("closing spool", closeErr)
		}
		return runErr
	}

	ctx := cmd.Context()
	if err := runOnce(ctx); err != nil {
		return err
	}
	if once {
		return nil
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return etl.NewCancelledError(ctx.Err())
		case <-ticker.C:
			if err := runOnce(ctx); err != nil {
				if isCancellation(err) {
					return err
				}
				slog.Error("watch: pass failed", "error", err)
			}
		}
	}
}

func isCancellation(err error) bool {
	runErr, ok := err.(*etl.RunError)
	return ok && runErr.Code == etl.ExitCancelled
}
