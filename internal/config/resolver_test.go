package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolveAppliesLayeringPrecedence(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "etl.toml")
	require.NoError(t, os.WriteFile(path, []byte(`
base_dir = "/corpus"
parallelism = 4
`), 0o644))

	t.Setenv(EnvParallelism, "8")

	resolved, err := Resolve(ResolveOptions{
		ConfigFile: path,
		CLIFlags:   map[string]any{"work_dir": "/scratch"},
	})
	require.NoError(t, err)

	assert.Equal(t, "/corpus", resolved.Options.BaseDir)
	assert.Equal(t, SourceFile, resolved.Sources["base_dir"])

	// env overrides the file's parallelism.
	assert.Equal(t, 8, resolved.Options.Parallelism)
	assert.Equal(t, SourceEnv, resolved.Sources["parallelism"])

	// a CLI flag overrides the default work_dir.
	assert.Equal(t, "/scratch", resolved.Options.WorkDir)
	assert.Equal(t, SourceFlag, resolved.Sources["work_dir"])

	// untouched fields keep their default attribution.
	assert.Equal(t, "both", resolved.Options.Sources)
	assert.Equal(t, SourceDefault, resolved.Sources["sources"])
}

func TestResolveMissingFileIsNotAnError(t *testing.T) {
	resolved, err := Resolve(ResolveOptions{ConfigFile: filepath.Join(t.TempDir(), "missing.toml")})
	require.NoError(t, err)
	assert.Equal(t, DefaultOptions().BaseDir, resolved.Options.BaseDir)
}

func TestValidateFlagsMissingBaseDir(t *testing.T) {
	errs := Validate(Options{Sources: "both"})
	require.NotEmpty(t, errs)
	assert.Equal(t, "base_dir", errs[0].Field)
}

func TestValidateRejectsInvertedDateRange(t *testing.T) {
	dir := t.TempDir()
	errs := Validate(Options{BaseDir: dir, Sources: "both", DateFrom: "2020-06", DateTo: "2020-01"})
	var found bool
	for _, e := range errs {
		if e.Field == "date_range" {
			found = true
		}
	}
	assert.True(t, found)
}
