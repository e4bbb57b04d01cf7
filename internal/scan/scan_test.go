package scan

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/harvx/reddit-etl/internal/ioutil"
	"github.com/harvx/reddit-etl/internal/model"
	"github.com/harvx/reddit-etl/internal/query"
	"github.com/harvx/reddit-etl/internal/transform"
	"github.com/harvx/reddit-etl/internal/zstdio"
)

func writeZstdFile(t *testing.T, path string, jsonLines []string) {
	t.Helper()
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

func recordLine(subreddit, body string, score int) string {
	return fmt.Sprintf(`{"subreddit":%q,"body":%q,"score":%d,"author":"alice","created_utc":1451606400}`, subreddit, body, score)
}

func TestScanEmitsOnlyMatchingRecords(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "RC_2016-01.zst")
	writeZstdFile(t, path, []string{
		recordLine("programming", "I love rust", 5),
		recordLine("programming", "no mention of the word", 5),
		recordLine("askscience", "rust never sleeps", 5),
	})

	q, err := query.NewBuilder().AllowSubreddits("programming").KeywordAny("rust").Compile()
	require.NoError(t, err)

	sched := New(Options{}, q, transform.Options{})
	file := model.MonthlyFile{Path: path, Source: model.KindComment}

	var mu sync.Mutex
	var got []model.Record
	sink := func(r model.Record, f model.MonthlyFile) error {
		mu.Lock()
		defer mu.Unlock()
		got = append(got, r)
		return nil
	}

	result, err := sched.Run(context.Background(), []model.MonthlyFile{file}, sink)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "I love rust", got[0]["body"])
	assert.Equal(t, int64(3), result.RecordsScanned)
	assert.Equal(t, int64(1), result.RecordsMatched)
	assert.Empty(t, result.Failures)
}

func TestScanSkipsMalformedLinesAndCountsParseErrors(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "RC_2016-01.zst")
	writeZstdFile(t, path, []string{
		recordLine("programming", "hello", 1),
		"not valid json at all",
	})

	q, err := query.NewBuilder().Compile()
	require.NoError(t, err)

	sched := New(Options{}, q, transform.Options{})
	file := model.MonthlyFile{Path: path, Source: model.KindComment}

	var count int
	sink := func(r model.Record, f model.MonthlyFile) error {
		count++
		return nil
	}

	result, err := sched.Run(context.Background(), []model.MonthlyFile{file}, sink)
	require.NoError(t, err)
	assert.Equal(t, 1, count)
	assert.Equal(t, int64(1), result.ParseErrors)
}

func TestScanRecordsPerFileFailureAndContinues(t *testing.T) {
	dir := t.TempDir()
	missing := model.MonthlyFile{Path: filepath.Join(dir, "RC_2016-01.zst"), Source: model.KindComment}

	ok := filepath.Join(dir, "RC_2016-02.zst")
	writeZstdFile(t, ok, []string{recordLine("programming", "hello", 1)})
	okFile := model.MonthlyFile{Path: ok, Source: model.KindComment}

	q, err := query.NewBuilder().Compile()
	require.NoError(t, err)

	sched := New(Options{Retry: ioutil.RetryOptions{MaxAttempts: 1}}, q, transform.Options{})

	var count int
	sink := func(r model.Record, f model.MonthlyFile) error {
		count++
		return nil
	}

	result, err := sched.Run(context.Background(), []model.MonthlyFile{missing, okFile}, sink)
	require.NoError(t, err)
	assert.Equal(t, 1, count)
	require.Len(t, result.Failures, 1)
	assert.Equal(t, missing.Path, result.Failures[0].Path)
}

func TestScanFailFastStopsOnFirstFailure(t *testing.T) {
	dir := t.TempDir()
	missing := model.MonthlyFile{Path: filepath.Join(dir, "RC_2016-01.zst"), Source: model.KindComment}

	q, err := query.NewBuilder().Compile()
	require.NoError(t, err)

	sched := New(Options{FailFast: true, Retry: ioutil.RetryOptions{MaxAttempts: 1}}, q, transform.Options{})

	sink := func(r model.Record, f model.MonthlyFile) error { return nil }

	_, err = sched.Run(context.Background(), []model.MonthlyFile{missing}, sink)
	assert.Error(t, err)
}
