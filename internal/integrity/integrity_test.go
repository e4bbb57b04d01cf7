package integrity

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/harvx/reddit-etl/internal/model"
	"github.com/harvx/reddit-etl/internal/zstdio"
)

func writeZstdFile(t *testing.T, path string, lines []string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	f, err := os.Create(path)
	require.NoError(t, err)
	defer f.Close()

	enc, err := zstdio.NewWriter(f, 0)
	require.NoError(t, err)
	for _, l := range lines {
		_, err := enc.Write([]byte(l + "\n"))
		require.NoError(t, err)
	}
	require.NoError(t, enc.Close())
}

func TestCheckQuickAcceptsCleanCorpus(t *testing.T) {
	base := t.TempDir()
	writeZstdFile(t, filepath.Join(base, "comments", "RC_2016-01.zst"), []string{`{"id":"a"}`})
	writeZstdFile(t, filepath.Join(base, "submissions", "RS_2016-01.zst"), []string{`{"id":"b"}`})

	suspects, err := Check(context.Background(), Options{
		BaseDir: base,
		Sources: model.Both,
		Mode:    Quick,
	})
	require.NoError(t, err)
	assert.Empty(t, suspects)
}

func TestCheckFullDetectsTruncatedFile(t *testing.T) {
	base := t.TempDir()
	good := filepath.Join(base, "comments", "RC_2016-01.zst")
	bad := filepath.Join(base, "comments", "RC_2016-02.zst")
	writeZstdFile(t, good, []string{`{"id":"a"}`})
	writeZstdFile(t, bad, []string{"a record long enough to span a frame boundary nicely for truncation"})

	data, err := os.ReadFile(bad)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(bad, data[:len(data)-1], 0o644))

	suspects, err := Check(context.Background(), Options{
		BaseDir: base,
		Sources: model.Comments,
		Mode:    Full,
	})
	require.NoError(t, err)
	require.Len(t, suspects, 1)
	assert.Equal(t, bad, suspects[0].Path)
	assert.Equal(t, zstdio.Truncated, suspects[0].Reason)
}

func TestCheckRespectsWindow(t *testing.T) {
	base := t.TempDir()
	writeZstdFile(t, filepath.Join(base, "comments", "RC_2016-01.zst"), []string{`{"id":"a"}`})
	writeZstdFile(t, filepath.Join(base, "comments", "RC_2016-02.zst"), []string{`{"id":"b"}`})

	jan, err := model.ParseYearMonth("2016-01")
	require.NoError(t, err)

	suspects, err := Check(context.Background(), Options{
		BaseDir: base,
		Sources: model.Comments,
		Window:  model.NewRange(&jan, &jan),
		Mode:    Quick,
	})
	require.NoError(t, err)
	assert.Empty(t, suspects)
}
