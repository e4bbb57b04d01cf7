package sink

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/harvx/reddit-etl/internal/ioutil"
	"github.com/harvx/reddit-etl/internal/model"
	"github.com/harvx/reddit-etl/internal/zstdio"
)

func sampleRecord(author string, score int) model.Record {
	return model.Record{"author": author, "score": float64(score), "body": "hi"}
}

func TestJSONLWritesOneRecordPerLine(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "out.jsonl")

	w, err := NewJSONL(path, ioutil.DefaultRetryOptions())
	require.NoError(t, err)
	require.NoError(t, w.Write(sampleRecord("alice", 1), model.MonthlyFile{}))
	require.NoError(t, w.Write(sampleRecord("bob", 2), model.MonthlyFile{}))
	require.NoError(t, w.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, 2, countLines(string(data)))
	assert.Contains(t, string(data), `"author":"alice"`)
}

func TestJSONLAbortLeavesNoFinalFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "out.jsonl")

	w, err := NewJSONL(path, ioutil.DefaultRetryOptions())
	require.NoError(t, err)
	require.NoError(t, w.Write(sampleRecord("alice", 1), model.MonthlyFile{}))
	require.NoError(t, w.Abort())

	_, err = os.Stat(path)
	assert.True(t, os.IsNotExist(err))
}

func TestJSONArrayProducesValidBracketedOutput(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "out.json")

	w, err := NewJSONArray(path, ioutil.DefaultRetryOptions())
	require.NoError(t, err)
	require.NoError(t, w.Write(sampleRecord("alice", 1), model.MonthlyFile{}))
	require.NoError(t, w.Write(sampleRecord("bob", 2), model.MonthlyFile{}))
	require.NoError(t, w.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.True(t, data[0] == '[')
	assert.True(t, data[len(data)-1] == ']')
}

func TestPartitionedWritesPerFileZstOutputThatDecodesCleanly(t *testing.T) {
	dir := t.TempDir()
	p := NewPartitioned(dir, FormatZST, ioutil.DefaultRetryOptions())

	ym, err := model.ParseYearMonth("2016-01")
	require.NoError(t, err)
	file := model.MonthlyFile{Source: model.KindComment, YearMonth: ym}

	require.NoError(t, p.Write(sampleRecord("alice", 1), file))
	require.NoError(t, p.Write(sampleRecord("bob", 2), file))
	require.NoError(t, p.Close())

	outPath := filepath.Join(dir, "comments", "RC_2016-01.zst")
	f, err := os.Open(outPath)
	require.NoError(t, err)
	defer f.Close()

	dec, err := zstdio.NewReader(f, 0)
	require.NoError(t, err)
	defer dec.Close()

	buf := make([]byte, 4096)
	n, _ := dec.Read(buf)
	assert.Contains(t, string(buf[:n]), "alice")
}

func TestSpoolResumeSkipsMatchingParts(t *testing.T) {
	dir := t.TempDir()
	ym, err := model.ParseYearMonth("2016-01")
	require.NoError(t, err)
	file := model.MonthlyFile{Source: model.KindComment, YearMonth: ym}

	s, err := NewSpool(dir, ioutil.DefaultRetryOptions())
	require.NoError(t, err)
	require.NoError(t, s.Write(sampleRecord("alice", 1), file))
	require.NoError(t, s.Close())

	s2, err := NewSpool(dir, ioutil.DefaultRetryOptions())
	require.NoError(t, err)
	assert.True(t, s2.ShouldSkip(file, true))
	assert.False(t, s2.ShouldSkip(file, false))
}

func TestCountByMonthAggregatesAcrossSources(t *testing.T) {
	c := NewCountByMonth()
	ym, _ := model.ParseYearMonth("2016-01")
	file := model.MonthlyFile{YearMonth: ym}

	for i := 0; i < 5; i++ {
		require.NoError(t, c.Write(model.Record{}, file))
	}
	assert.Equal(t, uint64(5), c.Snapshot()["2016-01"])
}

func TestAuthorCountsSortedByCountThenName(t *testing.T) {
	a := NewAuthorCounts()
	require.NoError(t, a.Write(sampleRecord("zeta", 0), model.MonthlyFile{}))
	require.NoError(t, a.Write(sampleRecord("alpha", 0), model.MonthlyFile{}))
	require.NoError(t, a.Write(sampleRecord("alpha", 0), model.MonthlyFile{}))

	dir := t.TempDir()
	path := filepath.Join(dir, "authors.tsv")
	require.NoError(t, a.WriteTSV(path, ioutil.DefaultRetryOptions()))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "alpha\t2\nzeta\t1\n", string(data))
}

func TestUsernamesPreservesFirstObservedOrder(t *testing.T) {
	u := NewUsernames()
	require.NoError(t, u.Write(sampleRecord("bob", 0), model.MonthlyFile{}))
	require.NoError(t, u.Write(sampleRecord("alice", 0), model.MonthlyFile{}))
	require.NoError(t, u.Write(sampleRecord("bob", 0), model.MonthlyFile{}))

	assert.Equal(t, []string{"bob", "alice"}, u.Names())
}

func countLines(s string) int {
	n := 0
	for _, c := range s {
		if c == '\n' {
			n++
		}
	}
	return n
}
