package cli

import (
	"fmt"
	"log/slog"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/harvx/reddit-etl/internal/etl"
	"github.com/harvx/reddit-etl/internal/ioutil"
	"github.com/harvx/reddit-etl/internal/parent"
	"github.com/harvx/reddit-etl/internal/scan"
)

var parentsCmd = &cobra.Command{
	Use:   "attach-parents",
	Short: "Run the three-pass parent-resolution pipeline over a spooled export",
	Long: `attach-parents collects the parent_id fullnames referenced by a
spooled export (pass 1), resolves them against the corpus within the
configured date window into an in-memory or bbolt-backed store (pass 2),
and joins the resolved payloads back onto each input record (pass 3).`,
	RunE: runAttachParents,
}

func init() {
	flags := parentsCmd.Flags()
	flags.String("in", "", "spool directory to read (comments/ and submissions/ JSONL parts)")
	flags.String("out", "", "output directory for joined records")
	flags.String("cache-dir", "", "per-month parent cache directory (defaults to <in>/parents_cache)")
	flags.String("spill-path", "", "bbolt database path used once the parent ID set spills to disk")
	flags.Bool("include-link-id", false, "also collect link_id alongside parent_id")
	flags.Bool("resume", false, "reuse matching cache and output parts from a prior run")
	parentsCmd.MarkFlagRequired("in")
	parentsCmd.MarkFlagRequired("out")
}

func runAttachParents(cmd *cobra.Command, args []string) error {
	opts := resolved.Options
	flags := cmd.Flags()

	in, _ := flags.GetString("in")
	out, _ := flags.GetString("out")
	cacheDir, _ := flags.GetString("cache-dir")
	if cacheDir == "" {
		cacheDir = filepath.Join(in, "parents_cache")
	}
	spillPath, _ := flags.GetString("spill-path")
	includeLinkID, _ := flags.GetBool("include-link-id")
	resume, _ := flags.GetBool("resume")

	retry := ioutil.RetryOptions{}

	inputParts, err := discoverSpoolParts(in)
	if err != nil {
		return etl.NewConfigError("listing spool parts", err)
	}
	if len(inputParts) == 0 {
		return etl.NewConfigError(fmt.Sprintf("no spooled parts found under %s", in), nil)
	}

	ids, err := parent.Collect(inputParts, parent.CollectOptions{IncludeLinkID: includeLinkID})
	if err != nil {
		return etl.NewConfigError("pass 1 (collect) failed", err)
	}
	slog.Debug("attach-parents: collected referenced fullnames", "count", ids.Len())

	store, err := parent.Resolve(cmd.Context(), ids, parent.ResolveOptions{
		BaseDir:   opts.BaseDir,
		Window:    opts.DateRange(),
		CacheDir:  cacheDir,
		Resume:    resume,
		SpillPath: spillPath,
		ScanOptions: scan.Options{
			FileConcurrency: opts.FileConcurrency,
			Parallelism:     opts.Parallelism,
			Retry:           retry,
		},
		Retry: retry,
	})
	if err != nil {
		return etl.NewConfigError("pass 2 (resolve) failed", err)
	}
	defer store.Close()

	result, err := parent.Attach(cmd.Context(), parent.AttachOptions{
		InputDir:  in,
		OutputDir: out,
		Store:     store,
		Resume:    resume,
		Retry:     retry,
	})
	if err != nil {
		return etl.NewConfigError("pass 3 (attach) failed", err)
	}

	fmt.Fprintf(cmd.OutOrStdout(), "records_in=%d records_attached=%d parts=%d\n",
		result.RecordsIn, result.RecordsAttached, len(result.Parts))
	return nil
}

func discoverSpoolParts(spoolDir string) ([]string, error) {
	var parts []string
	for _, subdir := range []string{"comments", "submissions"} {
		matches, err := filepath.Glob(filepath.Join(spoolDir, subdir, "*.jsonl"))
		if err != nil {
			return nil, err
		}
		parts = append(parts, matches...)
	}
	return parts, nil
}
