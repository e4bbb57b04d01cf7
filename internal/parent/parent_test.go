package parent

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/harvx/reddit-etl/internal/ioutil"
	"github.com/harvx/reddit-etl/internal/model"
)

func writeJSONL(t *testing.T, path string, lines []string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	var data string
	for _, l := range lines {
		data += l + "\n"
	}
	require.NoError(t, os.WriteFile(path, []byte(data), 0o644))
}

func TestCollectExtractsParentIDsAndDiscardsSelfReference(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "comments", "part.jsonl")
	writeJSONL(t, path, []string{
		`{"id":"aaa","parent_id":"t3_xxx"}`,
		`{"id":"bbb","parent_id":"t1_ccc"}`,
		`{"id":"ccc","parent_id":"t1_ccc"}`, // self-reference, discarded
	})

	ids, err := Collect([]string{path}, CollectOptions{})
	require.NoError(t, err)

	assert.Equal(t, 2, ids.Len())
	_, hasXXX := ids.T3["xxx"]
	assert.True(t, hasXXX)
	_, hasCCC := ids.T1["ccc"]
	assert.True(t, hasCCC)
}

func TestCollectIncludesLinkIDWhenRequested(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "comments", "part.jsonl")
	writeJSONL(t, path, []string{
		`{"id":"aaa","parent_id":"t1_bbb","link_id":"t3_ddd"}`,
	})

	without, err := Collect([]string{path}, CollectOptions{})
	require.NoError(t, err)
	assert.Equal(t, 1, without.Len())

	with, err := Collect([]string{path}, CollectOptions{IncludeLinkID: true})
	require.NoError(t, err)
	assert.Equal(t, 2, with.Len())
	_, hasDDD := with.T3["ddd"]
	assert.True(t, hasDDD)
}

func TestCollectDoesNotOverExcludeOnCrossKindIDCollision(t *testing.T) {
	// "abc" is this comment's own id, but its parent_id names a submission
	// ("t3_abc") with the same bare id in a different namespace -- that is
	// not a self-reference and must still be collected.
	dir := t.TempDir()
	path := filepath.Join(dir, "comments", "part.jsonl")
	writeJSONL(t, path, []string{
		`{"id":"abc","parent_id":"t3_abc"}`,
	})

	ids, err := Collect([]string{path}, CollectOptions{})
	require.NoError(t, err)

	assert.Equal(t, 1, ids.Len())
	_, hasABC := ids.T3["abc"]
	assert.True(t, hasABC)
}

func TestProjectPayloadVariesByKind(t *testing.T) {
	comment := model.Record{"author": "alice", "subreddit": "r", "created_utc": float64(100), "body": "hi"}
	p := ProjectPayload(model.KindComment, comment)
	assert.Equal(t, "hi", p["body"])
	assert.NotContains(t, p, "title")

	submission := model.Record{"author": "bob", "subreddit": "r", "created_utc": float64(200), "title": "T", "selftext": "S", "url": "http://x"}
	p2 := ProjectPayload(model.KindSubmission, submission)
	assert.Equal(t, "T", p2["title"])
	assert.Equal(t, "S", p2["selftext"])
	assert.Equal(t, "http://x", p2["url"])
}

func TestMemStoreRoundTrip(t *testing.T) {
	s := NewMemStore()
	s.Put("t1_abc", Payload{"body": "hi"})

	got, ok := s.Get("t1_abc")
	require.True(t, ok)
	assert.Equal(t, "hi", got["body"])

	_, ok = s.Get("t1_missing")
	assert.False(t, ok)
	require.NoError(t, s.Close())
}

func TestBoltStorePutBatchAndGet(t *testing.T) {
	dir := t.TempDir()
	s, err := OpenBoltStore(filepath.Join(dir, "spill.db"))
	require.NoError(t, err)
	defer s.Close()

	batch := map[string]Payload{
		"t1_a": {"body": "one"},
		"t3_b": {"title": "two"},
	}
	require.NoError(t, s.PutBatch(batch))

	got, ok := s.Get("t1_a")
	require.True(t, ok)
	assert.Equal(t, "one", got["body"])

	_, ok = s.Get("t3_nope")
	assert.False(t, ok)
}

func TestCacheManifestResumeSkipsMatchingFiles(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "2016-01.t1.jsonl")
	require.NoError(t, os.WriteFile(path, []byte("hello\n"), 0o644))

	info, err := os.Stat(path)
	require.NoError(t, err)

	manifest := map[string]cacheEntry{path: {Path: path, Size: info.Size()}}
	require.NoError(t, saveCacheManifest(dir, manifest, ioutil.DefaultRetryOptions()))

	loaded, err := loadCacheManifest(dir)
	require.NoError(t, err)

	entry, ok := loaded[path]
	require.True(t, ok)
	assert.True(t, cacheMatchesOnDisk(entry))

	// growing the file on disk invalidates the cached size.
	require.NoError(t, os.WriteFile(path, []byte("hello again, now longer\n"), 0o644))
	assert.False(t, cacheMatchesOnDisk(entry))
}

func TestAttachJoinsHitPassesThroughMissNeverSelf(t *testing.T) {
	dir := t.TempDir()
	inComments := filepath.Join(dir, "in", "comments", "RC_2016-01.jsonl")
	writeJSONL(t, inComments, []string{
		`{"id":"hit","parent_id":"t3_parent1"}`,
		`{"id":"miss","parent_id":"t3_unknown"}`,
		`{"id":"selfref","parent_id":"t1_selfref"}`,
	})

	store := NewMemStore()
	store.Put("t3_parent1", Payload{"title": "Parent Title"})
	store.Put("t1_selfref", Payload{"body": "self"})

	opts := AttachOptions{
		InputDir:  filepath.Join(dir, "in"),
		OutputDir: filepath.Join(dir, "out"),
		Store:     store,
		Retry:     ioutil.DefaultRetryOptions(),
	}

	result, err := Attach(context.Background(), opts)
	require.NoError(t, err)
	assert.Equal(t, int64(3), result.RecordsIn)
	assert.Equal(t, int64(1), result.RecordsAttached)

	outPath := filepath.Join(dir, "out", "comments", "RC_2016-01.jsonl")
	data, err := os.ReadFile(outPath)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"parent":{"title":"Parent Title"}`)
	assert.Contains(t, string(data), `"id":"miss"`)

	for _, line := range []string{`{"id":"miss","parent_id":"t3_unknown"}`, `{"id":"selfref","parent_id":"t1_selfref"}`} {
		assert.Contains(t, string(data), line)
	}
}

func TestAttachDoesNotOverExcludeOnCrossKindIDCollision(t *testing.T) {
	// A comment with bare id "x" whose parent_id is "t3_x" (a submission
	// sharing the same bare id) is not a self-reference and must resolve.
	dir := t.TempDir()
	inComments := filepath.Join(dir, "in", "comments", "RC_2016-01.jsonl")
	writeJSONL(t, inComments, []string{
		`{"id":"x","parent_id":"t3_x"}`,
	})

	store := NewMemStore()
	store.Put("t3_x", Payload{"title": "Submission X"})

	opts := AttachOptions{
		InputDir:  filepath.Join(dir, "in"),
		OutputDir: filepath.Join(dir, "out"),
		Store:     store,
		Retry:     ioutil.DefaultRetryOptions(),
	}

	result, err := Attach(context.Background(), opts)
	require.NoError(t, err)
	assert.Equal(t, int64(1), result.RecordsAttached)

	outPath := filepath.Join(dir, "out", "comments", "RC_2016-01.jsonl")
	data, err := os.ReadFile(outPath)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"title":"Submission X"`)
}
