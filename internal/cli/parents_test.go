package cli

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/harvx/reddit-etl/internal/etl"
)

func TestAttachParentsJoinsSpooledRecordsAgainstCorpus(t *testing.T) {
	defer resetRootFlags()

	base := t.TempDir()
	writeZstdFile(t, filepath.Join(base, "comments", "RC_2016-01.zst"), []string{
		`{"id":"abc","subreddit":"programming","body":"parent comment","author":"alice","created_utc":1451606400}`,
		`{"id":"def","subreddit":"programming","body":"child comment","author":"bob","parent_id":"t1_abc","created_utc":1451606500}`,
	})

	spoolDir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(spoolDir, "comments"), 0o755))
	require.NoError(t, os.WriteFile(
		filepath.Join(spoolDir, "comments", "RC_2016-01.jsonl"),
		[]byte(`{"id":"def","subreddit":"programming","body":"child comment","author":"bob","parent_id":"t1_abc","created_utc":1451606500}`+"\n"),
		0o644,
	))

	out := t.TempDir()
	rootCmd.SetArgs([]string{
		"--base-dir", base,
		"attach-parents", "--in", spoolDir, "--out", out,
	})
	buf := new(bytes.Buffer)
	rootCmd.SetOut(buf)

	code := Execute()
	require.Equal(t, int(etl.ExitSuccess), code, buf.String())

	data, err := os.ReadFile(filepath.Join(out, "comments", "RC_2016-01.jsonl"))
	require.NoError(t, err)
	assert.Contains(t, string(data), `"parent"`)
	assert.Contains(t, string(data), "parent comment")
}

func TestAttachParentsFailsWithoutSpooledInput(t *testing.T) {
	defer resetRootFlags()

	base := t.TempDir()
	empty := t.TempDir()
	out := t.TempDir()

	rootCmd.SetArgs([]string{"--base-dir", base, "attach-parents", "--in", empty, "--out", out})
	buf := new(bytes.Buffer)
	rootCmd.SetOut(buf)

	code := Execute()
	assert.Equal(t, int(etl.ExitConfig), code)
}
