// Package cli implements the Cobra command hierarchy for the redditetl CLI
// tool. The root command handles cross-cutting concerns -- configuration
// resolution, logging initialization, exit-code translation -- common to
// every subcommand.
package cli

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/harvx/reddit-etl/internal/config"
	"github.com/harvx/reddit-etl/internal/etl"
)

var resolved *config.Resolved

var rootCmd = &cobra.Command{
	Use:   "redditetl",
	Short: "Stream Reddit monthly comment/submission archives through a filter-and-sink pipeline.",
	Long: `redditetl scans zstd-compressed monthly Reddit comment and submission
archives, applies a compiled query and field transform, and writes matching
records to one or more sinks: JSONL, a partitioned export, a resumable spool,
or an aggregate (count-by-month, author counts, first-seen index).`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		flags, err := flagOverrides(cmd)
		if err != nil {
			return err
		}

		configFile, _ := cmd.Flags().GetString("config")
		r, err := config.Resolve(config.ResolveOptions{ConfigFile: configFile, CLIFlags: flags})
		if err != nil {
			return etl.NewConfigError("resolving configuration", err)
		}
		resolved = r

		config.SetupLogging(resolved.Options.LogLevel, resolved.Options.LogFormat)

		// version (and help) need no base_dir/sources/date-range validation --
		// only the commands that actually touch the corpus do.
		if requiresCorpus(cmd) {
			if errs := config.Validate(resolved.Options); len(errs) > 0 {
				return etl.NewConfigError(formatValidationErrors(errs), nil)
			}
		}

		slog.Debug("configuration resolved", "base_dir", resolved.Options.BaseDir, "sources", resolved.Options.Sources)
		return nil
	},
}

// requiresCorpus reports whether cmd needs a validated base_dir/date-range,
// as opposed to a command like version that never touches the corpus.
func requiresCorpus(cmd *cobra.Command) bool {
	switch cmd.Name() {
	case "scan", "integrity", "watch", "attach-parents":
		return true
	default:
		return false
	}
}

func formatValidationErrors(errs []config.ValidationError) string {
	msg := "invalid configuration:"
	for _, e := range errs {
		msg += fmt.Sprintf(" %s;", e.Error())
	}
	return msg
}

func init() {
	flags := rootCmd.PersistentFlags()
	flags.String("config", "", "path to a TOML configuration file")
	flags.String("base-dir", "", "input root containing comments/ and submissions/")
	flags.String("sources", "", "comments, submissions, or both")
	flags.String("date-from", "", "earliest year-month to include (YYYY-MM)")
	flags.String("date-to", "", "latest year-month to include (YYYY-MM)")
	flags.Int("parallelism", 0, "total worker-slot count (0 selects NumCPU)")
	flags.Int("file-concurrency", 0, "simultaneously-decoded files (0 selects min(4, file count))")
	flags.String("work-dir", "", "scratch directory for temp files and spills")
	flags.Bool("progress", false, "enable progress reporting")
	flags.Bool("allow-pseudo-users", false, "allow [deleted]/[removed] authors")
	flags.Bool("exclude-common-bots", false, "apply the built-in bot deny-list")
	flags.String("log-level", "", "debug, info, warn, or error")
	flags.String("log-format", "", "text or json")

	rootCmd.AddCommand(scanCmd, integrityCmd, watchCmd, parentsCmd, versionCmd)
}

// flagOverrides builds a CLIFlags map containing only the flags the user
// actually set, so config.Resolve's layering correctly attributes untouched
// fields to lower-precedence layers.
func flagOverrides(cmd *cobra.Command) (map[string]any, error) {
	flags := cmd.Flags()
	out := make(map[string]any)

	strFlags := map[string]string{
		"base-dir": "base_dir", "sources": "sources",
		"date-from": "date_from", "date-to": "date_to",
		"work-dir": "work_dir", "log-level": "log_level", "log-format": "log_format",
	}
	for flag, key := range strFlags {
		if flags.Changed(flag) {
			v, err := flags.GetString(flag)
			if err != nil {
				return nil, err
			}
			out[key] = v
		}
	}

	intFlags := map[string]string{"parallelism": "parallelism", "file-concurrency": "file_concurrency"}
	for flag, key := range intFlags {
		if flags.Changed(flag) {
			v, err := flags.GetInt(flag)
			if err != nil {
				return nil, err
			}
			out[key] = v
		}
	}

	boolFlags := map[string]string{
		"progress": "progress", "allow-pseudo-users": "allow_pseudo_users",
		"exclude-common-bots": "exclude_common_bots",
	}
	for flag, key := range boolFlags {
		if flags.Changed(flag) {
			v, err := flags.GetBool(flag)
			if err != nil {
				return nil, err
			}
			out[key] = v
		}
	}

	return out, nil
}

// Execute runs the root command and returns a process exit code. A
// *etl.RunError's Code is used directly; any other non-nil error maps to 1.
func Execute() int {
	if err := rootCmd.Execute(); err != nil {
		slog.Error(err.Error())
		return extractExitCode(err)
	}
	return int(etl.ExitSuccess)
}

func extractExitCode(err error) int {
	if err == nil {
		return int(etl.ExitSuccess)
	}
	var runErr *etl.RunError
	if errors.As(err, &runErr) {
		return int(runErr.Code)
	}
	return 1
}

// RootCmd returns the root cobra.Command, used by tests and by main.
func RootCmd() *cobra.Command {
	return rootCmd
}
