package etl

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/harvx/reddit-etl/internal/discovery"
	"github.com/harvx/reddit-etl/internal/integrity"
	"github.com/harvx/reddit-etl/internal/model"
	"github.com/harvx/reddit-etl/internal/query"
	"github.com/harvx/reddit-etl/internal/scan"
	"github.com/harvx/reddit-etl/internal/transform"
	"github.com/harvx/reddit-etl/internal/zstdio"
)

func writeZstdFile(t *testing.T, path string, jsonLines []string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	f, err := os.Create(path)
	require.NoError(t, err)
	defer f.Close()

	enc, err := zstdio.NewWriter(f, 0)
	require.NoError(t, err)
	for _, l := range jsonLines {
		_, err := enc.Write([]byte(l + "\n"))
		require.NoError(t, err)
	}
	require.NoError(t, enc.Close())
}

func recordingSink() (scan.Sink, func() []model.Record) {
	var mu sync.Mutex
	var got []model.Record
	return func(r model.Record, _ model.MonthlyFile) error {
			mu.Lock()
			defer mu.Unlock()
			got = append(got, r)
			return nil
		}, func() []model.Record {
			mu.Lock()
			defer mu.Unlock()
			return got
		}
}

func TestEngineRunDiscoversAndScans(t *testing.T) {
	dir := t.TempDir()
	writeZstdFile(t, filepath.Join(dir, "comments", "RC_2016-01.zst"), []string{
		`{"subreddit":"programming","body":"hi","score":1,"author":"alice","created_utc":1451606400}`,
	})

	q, err := query.NewBuilder().Compile()
	require.NoError(t, err)

	sink, collected := recordingSink()
	e := NewEngine()
	result, err := e.Run(context.Background(), RunOptions{
		Discovery: discovery.Options{BaseDir: dir, Sources: model.Comments},
		Query:     q,
		Transform: transform.Options{},
	}, sink)

	require.NoError(t, err)
	assert.EqualValues(t, 1, result.RecordsMatched)
	assert.Len(t, collected(), 1)
}

func TestEngineRunReturnsConfigErrorOnMissingBaseDir(t *testing.T) {
	q, err := query.NewBuilder().Compile()
	require.NoError(t, err)

	e := NewEngine()
	_, err = e.Run(context.Background(), RunOptions{
		Discovery: discovery.Options{BaseDir: filepath.Join(t.TempDir(), "missing")},
		Query:     q,
	}, func(model.Record, model.MonthlyFile) error { return nil })

	require.Error(t, err)
	var runErr *RunError
	require.True(t, errors.As(err, &runErr))
	assert.Equal(t, ExitConfig, runErr.Code)
}

func TestEngineRunReturnsPartialErrorOnFileFailure(t *testing.T) {
	dir := t.TempDir()
	good := filepath.Join(dir, "comments", "RC_2016-01.zst")
	bad := filepath.Join(dir, "comments", "RC_2016-02.zst")
	writeZstdFile(t, good, []string{`{"subreddit":"x","body":"y","score":1,"author":"a","created_utc":1}`})
	require.NoError(t, os.WriteFile(bad, []byte("not zstd at all"), 0o644))

	q, err := query.NewBuilder().Compile()
	require.NoError(t, err)

	e := NewEngine()
	_, err = e.Run(context.Background(), RunOptions{
		Discovery: discovery.Options{BaseDir: dir, Sources: model.Comments},
		Query:     q,
	}, func(model.Record, model.MonthlyFile) error { return nil })

	require.Error(t, err)
	var runErr *RunError
	require.True(t, errors.As(err, &runErr))
	assert.Equal(t, ExitPartial, runErr.Code)
}

func TestEngineCheckIntegrityReturnsIntegrityErrorOnSuspect(t *testing.T) {
	dir := t.TempDir()
	bad := filepath.Join(dir, "comments", "RC_2016-01.zst")
	require.NoError(t, os.MkdirAll(filepath.Dir(bad), 0o755))
	require.NoError(t, os.WriteFile(bad, []byte("not zstd at all"), 0o644))

	e := NewEngine()
	suspects, err := e.CheckIntegrity(context.Background(), integrity.Options{
		BaseDir: dir,
		Sources: model.Comments,
		Mode:    integrity.Quick,
	})

	require.Error(t, err)
	var runErr *RunError
	require.True(t, errors.As(err, &runErr))
	assert.Equal(t, ExitIntegrity, runErr.Code)
	require.Len(t, suspects, 1)
}

func TestEngineCheckIntegrityCleanCorpus(t *testing.T) {
	dir := t.TempDir()
	writeZstdFile(t, filepath.Join(dir, "comments", "RC_2016-01.zst"), []string{fmt.Sprintf(`{"id":"a"}`)})

	e := NewEngine()
	suspects, err := e.CheckIntegrity(context.Background(), integrity.Options{
		BaseDir: dir,
		Sources: model.Comments,
		Mode:    integrity.Quick,
	})
	require.NoError(t, err)
	assert.Empty(t, suspects)
}
