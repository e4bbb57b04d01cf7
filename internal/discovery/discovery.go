// Package discovery implements file discovery and windowing (spec §4.1): it
// enumerates the comments/ and submissions/ subdirectories of a base
// directory, validates filenames against the RC/RS naming discipline, and
// intersects the result with an optional year-month window.
package discovery

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"

	"github.com/harvx/reddit-etl/internal/model"
)

// Options configures a discovery run.
type Options struct {
	// BaseDir is the root directory containing comments/ and submissions/.
	BaseDir string

	// Sources selects which subdirectories to scan.
	Sources model.SourceKind

	// Window optionally narrows the result to a closed year-month range.
	// The zero value (both sides unbounded) includes everything.
	Window model.Range
}

// Discover enumerates monthly files under BaseDir according to Options,
// returning a deterministic list sorted by (YearMonth ascending, Comments
// before Submissions) as required by spec §4.1, so resumed runs visit files
// in the same order.
//
// A missing base directory is a configuration error. An empty intersection
// with Window is not an error -- it returns an empty, non-nil slice.
func Discover(opts Options) ([]model.MonthlyFile, error) {
	logger := slog.Default().With("component", "discovery")

	info, err := os.Stat(opts.BaseDir)
	if err != nil {
		return nil, fmt.Errorf("discovery: base directory %s: %w", opts.BaseDir, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("discovery: %s is not a directory", opts.BaseDir)
	}

	var files []model.MonthlyFile

	if opts.Sources.Includes(model.KindComment) {
		found, err := scanSubdir(opts.BaseDir, "comments", opts.Window)
		if err != nil {
			return nil, err
		}
		files = append(files, found...)
	}
	if opts.Sources.Includes(model.KindSubmission) {
		found, err := scanSubdir(opts.BaseDir, "submissions", opts.Window)
		if err != nil {
			return nil, err
		}
		files = append(files, found...)
	}

	sort.Slice(files, func(i, j int) bool {
		if c := files[i].YearMonth.Compare(files[j].YearMonth); c != 0 {
			return c < 0
		}
		// Comments before submissions within the same month.
		return files[i].Source == model.KindComment && files[j].Source != model.KindComment
	})

	logger.Info("discovery complete", "files", len(files), "base_dir", opts.BaseDir)
	return files, nil
}

// scanSubdir enumerates one subdirectory ("comments" or "submissions"),
// silently skipping entries that don't match the RC/RS naming discipline and
// entries outside the configured window. A missing subdirectory is treated as
// "no files here" rather than an error, since a caller scanning Comments-only
// need not have a submissions/ directory at all.
func scanSubdir(baseDir, subdir string, window model.Range) ([]model.MonthlyFile, error) {
	dir := filepath.Join(baseDir, subdir)
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("discovery: reading %s: %w", dir, err)
	}

	var files []model.MonthlyFile
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		kind, ym, err := model.ParseMonthlyFilename(entry.Name())
		if err != nil {
			continue // silently ignored: not our naming discipline
		}
		if !window.Contains(ym) {
			continue
		}
		files = append(files, model.MonthlyFile{
			Path:      filepath.Join(dir, entry.Name()),
			Source:    kind,
			YearMonth: ym,
		})
	}
	return files, nil
}
