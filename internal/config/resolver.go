package config

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/BurntSushi/toml"
	"github.com/knadh/koanf/providers/confmap"
	koanf "github.com/knadh/koanf/v2"
)

// ResolveOptions configures the multi-source Options resolution.
type ResolveOptions struct {
	// ConfigFile is a TOML config file path. A missing file is silently
	// ignored; an unparsable one is a configuration error.
	ConfigFile string
	// CLIFlags holds explicit CLI flag overrides (highest precedence). Keys
	// are flat Options field names matching their toml tags.
	CLIFlags map[string]any
}

// Resolved is the result of layered resolution.
type Resolved struct {
	Options Options
	Sources SourceMap
}

// Resolve runs the 4-layer configuration pipeline: built-in defaults, TOML
// config file, ETL_* environment variables, CLI flags (highest precedence).
// Later layers only override keys they actually set, so SourceMap correctly
// attributes every field to the layer that last touched it.
func Resolve(opts ResolveOptions) (*Resolved, error) {
	k := koanf.New(".")
	sources := make(SourceMap)

	if err := loadLayer(k, optionsToFlatMap(DefaultOptions()), sources, SourceDefault); err != nil {
		return nil, fmt.Errorf("config: load defaults: %w", err)
	}

	if opts.ConfigFile != "" {
		flat, err := loadFileLayer(opts.ConfigFile)
		if err != nil {
			return nil, err
		}
		if flat != nil {
			if err := loadLayer(k, flat, sources, SourceFile); err != nil {
				return nil, fmt.Errorf("config: load file %s: %w", opts.ConfigFile, err)
			}
		}
	}

	if envMap := buildEnvMap(); len(envMap) > 0 {
		if err := loadLayer(k, envMap, sources, SourceEnv); err != nil {
			return nil, fmt.Errorf("config: load env: %w", err)
		}
	}

	if len(opts.CLIFlags) > 0 {
		if err := loadLayer(k, opts.CLIFlags, sources, SourceFlag); err != nil {
			return nil, fmt.Errorf("config: load flags: %w", err)
		}
	}

	final := flatMapToOptions(k)
	slog.Debug("config resolved",
		"base_dir", final.BaseDir,
		"sources", final.Sources,
		"parallelism", final.Parallelism,
		"work_dir", final.WorkDir,
	)

	return &Resolved{Options: final, Sources: sources}, nil
}

// loadFileLayer parses a TOML config file into a flat map containing only
// the keys explicitly present in the file, so an omitted field never
// shadows a later layer's default. A missing file returns (nil, nil).
func loadFileLayer(path string) (map[string]any, error) {
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("config: stat %s: %w", path, err)
	}

	var raw map[string]any
	meta, err := toml.DecodeFile(path, &raw)
	if err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}
	warnUndecodedKeys(meta, path)

	flat := make(map[string]any, len(raw))
	for _, field := range optionsFields {
		if v, ok := raw[field]; ok {
			flat[field] = normalizeTOMLValue(field, v)
		}
	}
	return flat, nil
}

func warnUndecodedKeys(meta toml.MetaData, source string) {
	undecoded := meta.Undecoded()
	if len(undecoded) == 0 {
		return
	}
	keys := make([]string, 0, len(undecoded))
	for _, k := range undecoded {
		keys = append(keys, k.String())
	}
	slog.Warn("unknown config keys will be ignored", "source", source, "keys", keys)
}

// normalizeTOMLValue coerces a raw TOML-decoded value (BurntSushi/toml
// decodes integers as int64 into map[string]any) to the type Options expects.
func normalizeTOMLValue(field string, v any) any {
	switch field {
	case "parallelism", "file_concurrency":
		if n, ok := v.(int64); ok {
			return int(n)
		}
	case "memory_budget_bytes":
		if n, ok := v.(int64); ok {
			return uint64(n)
		}
	}
	return v
}

// loadLayer merges a flat map into k and marks every key in the map as
// originating from src, so a later layer re-setting the same value is still
// attributed to the layer that actually set it.
func loadLayer(k *koanf.Koanf, m map[string]any, sources SourceMap, src Source) error {
	if err := k.Load(confmap.Provider(m, "."), nil); err != nil {
		return fmt.Errorf("merge layer %s: %w", src.String(), err)
	}
	for key := range m {
		sources[key] = src
	}
	return nil
}

// optionsFields lists every Options toml tag, the canonical flat-key set used
// for file-layer extraction and round-tripping through koanf.
var optionsFields = []string{
	"base_dir", "sources", "date_from", "date_to",
	"parallelism", "file_concurrency",
	"read_buffer_bytes", "write_buffer_bytes",
	"memory_budget_bytes", "work_dir",
	"progress", "progress_label",
	"allow_pseudo_users", "exclude_common_bots",
	"log_level", "log_format",
}

func optionsToFlatMap(o Options) map[string]any {
	return map[string]any{
		"base_dir":            o.BaseDir,
		"sources":             o.Sources,
		"date_from":           o.DateFrom,
		"date_to":             o.DateTo,
		"parallelism":         o.Parallelism,
		"file_concurrency":    o.FileConcurrency,
		"read_buffer_bytes":   o.ReadBufferBytes,
		"write_buffer_bytes":  o.WriteBufferBytes,
		"memory_budget_bytes": o.MemoryBudgetBytes,
		"work_dir":            o.WorkDir,
		"progress":            o.Progress,
		"progress_label":      o.ProgressLabel,
		"allow_pseudo_users":  o.AllowPseudoUsers,
		"exclude_common_bots": o.ExcludeCommonBots,
		"log_level":           o.LogLevel,
		"log_format":          o.LogFormat,
	}
}

func flatMapToOptions(k *koanf.Koanf) Options {
	return Options{
		BaseDir:           k.String("base_dir"),
		Sources:           k.String("sources"),
		DateFrom:          k.String("date_from"),
		DateTo:            k.String("date_to"),
		Parallelism:       k.Int("parallelism"),
		FileConcurrency:   k.Int("file_concurrency"),
		ReadBufferBytes:   k.Int("read_buffer_bytes"),
		WriteBufferBytes:  k.Int("write_buffer_bytes"),
		MemoryBudgetBytes: uint64(k.Int64("memory_budget_bytes")),
		WorkDir:           k.String("work_dir"),
		Progress:          k.Bool("progress"),
		ProgressLabel:     k.String("progress_label"),
		AllowPseudoUsers:  k.Bool("allow_pseudo_users"),
		ExcludeCommonBots: k.Bool("exclude_common_bots"),
		LogLevel:          k.String("log_level"),
		LogFormat:         k.String("log_format"),
	}
}
