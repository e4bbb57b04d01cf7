// Package config resolves reddit-etl's run options from layered sources —
// built-in defaults, a TOML config file, ETL_* environment variables, and CLI
// flags — and sets up the process-wide slog logger. The only internal package
// it depends on is internal/model; every other package accepts a
// plain Options-derived struct rather than reaching into config itself.
package config

import "github.com/harvx/reddit-etl/internal/model"

// Options mirrors every knob enumerated in spec §6. Zero values are "unset";
// Resolve fills them in from DefaultOptions before any file/env/flag layer is
// applied, so a freshly-decoded Options read directly off disk is never
// itself a complete configuration.
type Options struct {
	// BaseDir is the input root: <base>/comments/RC_YYYY-MM.zst and
	// <base>/submissions/RS_YYYY-MM.zst.
	BaseDir string `toml:"base_dir"`
	// Sources selects comments, submissions, or both.
	Sources string `toml:"sources"`
	// DateFrom / DateTo bound the closed [from, to] YearMonth window; empty
	// means unbounded in that direction.
	DateFrom string `toml:"date_from"`
	DateTo   string `toml:"date_to"`

	// Parallelism is the total worker-slot count (0 selects logical CPUs).
	Parallelism int `toml:"parallelism"`
	// FileConcurrency bounds simultaneously-decoded files (0 selects
	// min(4, file count)).
	FileConcurrency int `toml:"file_concurrency"`
	// ReadBufferBytes / WriteBufferBytes size the I/O buffers.
	ReadBufferBytes  int `toml:"read_buffer_bytes"`
	WriteBufferBytes int `toml:"write_buffer_bytes"`

	// MemoryBudgetBytes caps the adaptive throttle; 0 selects 75% of an
	// assumed 8 GiB of system RAM (6 GiB). The host's memory is not queried.
	MemoryBudgetBytes uint64 `toml:"memory_budget_bytes"`
	// WorkDir is scratch space for temp files and spill databases.
	WorkDir string `toml:"work_dir"`

	// Progress toggles progress reporting; ProgressLabel tags its output.
	Progress      bool   `toml:"progress"`
	ProgressLabel string `toml:"progress_label"`

	// AllowPseudoUsers permits [deleted]/[removed] authors through the
	// pseudo-user policy slot.
	AllowPseudoUsers bool `toml:"allow_pseudo_users"`
	// ExcludeCommonBots enables the default bot deny-list, extended by
	// ETL_EXCLUDE_AUTHORS[_FILE].
	ExcludeCommonBots bool `toml:"exclude_common_bots"`

	// LogLevel / LogFormat configure the process-wide slog logger ("debug",
	// "info", "warn", "error"; "text" or "json").
	LogLevel  string `toml:"log_level"`
	LogFormat string `toml:"log_format"`
}

// SourceKind parses Options.Sources into a model.SourceKind, defaulting to
// model.Both on an empty or unrecognized value.
func (o Options) SourceKind() model.SourceKind {
	switch o.Sources {
	case "comments":
		return model.Comments
	case "submissions":
		return model.Submissions
	default:
		return model.Both
	}
}
