package cli

import (
	"fmt"
	"log/slog"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/harvx/reddit-etl/internal/botlist"
	"github.com/harvx/reddit-etl/internal/config"
	"github.com/harvx/reddit-etl/internal/discovery"
	"github.com/harvx/reddit-etl/internal/etl"
	"github.com/harvx/reddit-etl/internal/ioutil"
	"github.com/harvx/reddit-etl/internal/model"
	"github.com/harvx/reddit-etl/internal/progress"
	"github.com/harvx/reddit-etl/internal/query"
	"github.com/harvx/reddit-etl/internal/scan"
	"github.com/harvx/reddit-etl/internal/sink"
	"github.com/harvx/reddit-etl/internal/transform"
)

var scanCmd = &cobra.Command{
	Use:   "scan",
	Short: "Scan monthly archives and write matching records to a sink",
	RunE:  runScan,
}

func init() {
	flags := scanCmd.Flags()
	flags.String("out", "", "output directory")
	flags.String("sink", "partitioned", "jsonl, jsonarray, partitioned, or spool")
	flags.String("format", "jsonl", "output encoding for partitioned/spool sinks: jsonl or zst")
	flags.Bool("resume", false, "skip spool parts that already match the manifest")
	flags.StringSlice("subreddit", nil, "restrict to these subreddits (repeatable)")
	flags.StringSlice("keyword-any", nil, "match if the title or body/selftext contains any of these words (repeatable)")
	flags.StringSlice("keyword-all", nil, "match only if the title or body/selftext contains every one of these words (repeatable)")
	flags.Int64("min-score", 0, "inclusive lower score bound")
	flags.Int64("max-score", 0, "inclusive upper score bound")
	flags.StringSlice("whitelist", nil, "project only these fields (repeatable)")
	flags.StringSlice("blacklist", nil, "drop these fields after projection (repeatable)")
	flags.Bool("humanize-timestamps", false, "replace created_utc with an ISO-8601 string")
	flags.Bool("keep-epoch", false, "with --humanize-timestamps, also keep created_utc_epoch")
	scanCmd.MarkFlagRequired("out")
}

func runScan(cmd *cobra.Command, args []string) error {
	opts := resolved.Options
	flags := cmd.Flags()

	out, _ := flags.GetString("out")
	sinkKind, _ := flags.GetString("sink")
	format, _ := flags.GetString("format")

	q, err := buildQuery(cmd, opts)
	if err != nil {
		return etl.NewConfigError("building query", err)
	}
	xform := buildTransform(cmd)

	retry := ioutil.RetryOptions{}
	discOpts := discovery.Options{BaseDir: opts.BaseDir, Sources: opts.SourceKind(), Window: opts.DateRange()}

	s, closeSink, files, err := buildSink(sinkKind, out, format, cmd, discOpts, retry)
	if err != nil {
		return etl.NewConfigError("building sink", err)
	}

	var reporter progress.Reporter = progress.NoopReporter{}
	if opts.Progress {
		cr := progress.NewChannelReporter(256)
		reporter = cr
		done := make(chan struct{})
		go func() {
			defer close(done)
			for ev := range cr.Events {
				reportProgress(ev)
			}
		}()
		defer func() { cr.Close(); <-done }()
	}

	e := etl.NewEngine()
	result, err := e.Run(cmd.Context(), etl.RunOptions{
		Discovery: discOpts,
		Files:     files,
		Scan: scan.Options{
			FileConcurrency: opts.FileConcurrency,
			Parallelism:     opts.Parallelism,
			MemoryBudget:    opts.MemoryBudgetBytes,
			Retry:           retry,
			Reporter:        reporter,
		},
		Query:     q,
		Transform: xform,
	}, s)

	if closeErr := closeSink(); closeErr != nil && err == nil {
		err = etl.NewConfigError("closing sink", closeErr)
	}
	if err != nil {
		return err
	}

	slog.Info("scan complete", "scanned", result.RecordsScanned, "matched", result.RecordsMatched, "parse_errors", result.ParseErrors)
	fmt.Fprintf(cmd.OutOrStdout(), "scanned %d, matched %d, parse errors %d\n", result.RecordsScanned, result.RecordsMatched, result.ParseErrors)
	return nil
}

// reportProgress renders one progress.Event as a line on stderr. File-level
// events are logged at info; per-batch record counts at debug, to keep
// --progress usable against a large corpus without flooding the terminal.
func reportProgress(ev progress.Event) {
	switch ev.Kind {
	case progress.FileStarted:
		slog.Info("scan: file started", "path", ev.Path)
	case progress.FileCompleted:
		slog.Info("scan: file completed", "path", ev.Path, "records", ev.Count)
	case progress.FileFailed:
		slog.Warn("scan: file failed", "path", ev.Path, "error", ev.Err)
	case progress.RecordsScanned:
		slog.Debug("scan: records scanned", "path", ev.Path, "count", ev.Count)
	case progress.RecordsMatched:
		slog.Debug("scan: records matched", "path", ev.Path, "count", ev.Count)
	}
}

// buildQuery compiles a query.Query from the scan subcommand's flags plus
// the resolved Options' author-related knobs (allow_pseudo_users,
// exclude_common_bots) and the environment-driven bot list.
func buildQuery(cmd *cobra.Command, opts config.Options) (*query.Query, error) {
	flags := cmd.Flags()
	b := query.NewBuilder()

	if subs, _ := flags.GetStringSlice("subreddit"); len(subs) > 0 {
		b.AllowSubreddits(subs...)
	}
	if words, _ := flags.GetStringSlice("keyword-any"); len(words) > 0 {
		b.KeywordAny(words...)
	}
	if words, _ := flags.GetStringSlice("keyword-all"); len(words) > 0 {
		b.KeywordAll(words...)
	}
	if flags.Changed("min-score") {
		v, _ := flags.GetInt64("min-score")
		b.MinScore(v)
	}
	if flags.Changed("max-score") {
		v, _ := flags.GetInt64("max-score")
		b.MaxScore(v)
	}
	if wl, _ := flags.GetStringSlice("whitelist"); len(wl) > 0 {
		b.Whitelist(wl...)
	}
	if bl, _ := flags.GetStringSlice("blacklist"); len(bl) > 0 {
		b.Blacklist(bl...)
	}

	b.AllowPseudoUsers(opts.AllowPseudoUsers)
	b.DateRange(opts.DateRange())

	deny, err := botlist.Load()
	if err != nil {
		return nil, err
	}
	if opts.ExcludeCommonBots {
		deny = botlist.Merge(deny, botlist.Default())
	}
	if len(deny) > 0 {
		b.DenyAuthors(botlist.Names(deny)...)
	}

	return b.Compile()
}

func buildTransform(cmd *cobra.Command) transform.Options {
	flags := cmd.Flags()
	wl, _ := flags.GetStringSlice("whitelist")
	bl, _ := flags.GetStringSlice("blacklist")
	humanize, _ := flags.GetBool("humanize-timestamps")
	keepEpoch, _ := flags.GetBool("keep-epoch")
	return transform.Options{
		Whitelist:          wl,
		Blacklist:          bl,
		HumanizeTimestamps: humanize,
		KeepEpoch:          keepEpoch,
	}
}

// buildSink constructs the requested sink and returns its scan.Sink adapter,
// a close function the caller must invoke once scanning completes (whether
// or not it succeeded), and an explicit file list to scan. The file list is
// nil except for a resumable spool, where it is the discovered list with
// parts already matching the manifest filtered out (spec §4.8).
func buildSink(kind, outDir, format string, cmd *cobra.Command, discOpts discovery.Options, retry ioutil.RetryOptions) (scan.Sink, func() error, []model.MonthlyFile, error) {
	switch kind {
	case "jsonl":
		j, err := sink.NewJSONL(filepath.Join(outDir, "output.jsonl"), retry)
		if err != nil {
			return nil, nil, nil, err
		}
		return j.AsSink(), j.Close, nil, nil

	case "jsonarray":
		j, err := sink.NewJSONArray(filepath.Join(outDir, "output.json"), retry)
		if err != nil {
			return nil, nil, nil, err
		}
		return j.AsSink(), j.Close, nil, nil

	case "spool":
		resume, _ := cmd.Flags().GetBool("resume")
		sp, err := sink.NewSpool(outDir, retry)
		if err != nil {
			return nil, nil, nil, err
		}

		all, err := discovery.Discover(discOpts)
		if err != nil {
			return nil, nil, nil, err
		}
		kept := make([]model.MonthlyFile, 0, len(all))
		for _, f := range all {
			if sp.ShouldSkip(f, resume) {
				continue
			}
			kept = append(kept, f)
		}
		return sp.AsSink(), sp.Close, kept, nil

	case "partitioned", "":
		f := sink.FormatJSONL
		if format == "zst" {
			f = sink.FormatZST
		}
		p := sink.NewPartitioned(outDir, f, retry)
		return p.AsSink(), p.Close, nil, nil

	default:
		return nil, nil, nil, fmt.Errorf("unknown sink kind %q", kind)
	}
}
