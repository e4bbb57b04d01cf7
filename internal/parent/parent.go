// Package parent implements C9: the three-pass parent-resolution pipeline.
// Pass 1 collects referenced parent fullnames from spooled outputs, pass 2
// resolves them against the corpus within a date window (backed by either an
// in-memory map or a disk-spilled bbolt store once the set grows large), and
// pass 3 joins the resolved payloads back onto each input record.
package parent

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/harvx/reddit-etl/internal/model"
)

// IDs is the deduplicated set of distinct fullnames referenced by parent_id
// (and optionally link_id) across an input set, split by kind (spec §3).
type IDs struct {
	T1 map[string]struct{} // comment IDs, base-36, no prefix
	T3 map[string]struct{} // submission IDs, base-36, no prefix
}

// NewIDs returns an empty ID set.
func NewIDs() *IDs {
	return &IDs{T1: make(map[string]struct{}), T3: make(map[string]struct{})}
}

// Add inserts fn into the set matching its kind.
func (ids *IDs) Add(fn model.Fullname) {
	switch fn.Kind {
	case model.KindComment:
		ids.T1[fn.ID] = struct{}{}
	case model.KindSubmission:
		ids.T3[fn.ID] = struct{}{}
	}
}

// Len returns the total number of distinct fullnames across both kinds.
func (ids *IDs) Len() int {
	return len(ids.T1) + len(ids.T3)
}

// CollectOptions controls pass 1.
type CollectOptions struct {
	// IncludeLinkID also collects link_id alongside parent_id. Default
	// (false) collects parent_id only (spec §9 open question).
	IncludeLinkID bool
}

// Collect reads each plain-JSONL spool part at paths and extracts referenced
// parent fullnames (pass 1, spec §4.9). A fullname equal to the record's own
// fullname (kind and id together, not bare id) is discarded (spec invariant
// 5). Each path's own kind is inferred from its immediate parent directory
// ("comments" or "submissions"), matching the spool layout internal/sink
// and internal/parent/attach.go both use.
func Collect(paths []string, opts CollectOptions) (*IDs, error) {
	ids := NewIDs()

	for _, path := range paths {
		kind, ok := kindForPath(path)
		if !ok {
			return nil, fmt.Errorf("parent: collect %s: cannot infer record kind from path", path)
		}
		if err := collectFile(path, kind, opts, ids); err != nil {
			return nil, fmt.Errorf("parent: collect %s: %w", path, err)
		}
	}
	return ids, nil
}

// kindForPath infers a spool part's own record kind from its immediate
// parent directory name.
func kindForPath(path string) (model.Kind, bool) {
	switch filepath.Base(filepath.Dir(path)) {
	case "comments":
		return model.KindComment, true
	case "submissions":
		return model.KindSubmission, true
	default:
		return "", false
	}
}

func collectFile(path string, kind model.Kind, opts CollectOptions, ids *IDs) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	for scanner.Scan() {
		var raw map[string]any
		if err := json.Unmarshal(scanner.Bytes(), &raw); err != nil {
			continue
		}
		rec := model.Record(raw)
		collectFromRecord(rec, kind, opts, ids)
	}
	return scanner.Err()
}

func collectFromRecord(rec model.Record, kind model.Kind, opts CollectOptions, ids *IDs) {
	own, hasOwn := rec.OwnFullname(kind)

	if parent, ok := rec.ParentFullname(); ok && (!hasOwn || parent != own) {
		ids.Add(parent)
	}
	if opts.IncludeLinkID {
		if link, ok := rec.LinkFullname(); ok && (!hasOwn || link != own) {
			ids.Add(link)
		}
	}
}

// Payload is the minimal projected parent record attached on join: a comment
// parent carries body/author/created_utc/subreddit, a submission parent
// carries title/selftext/author/created_utc/subreddit/url (spec §3
// ParentMaps).
type Payload map[string]any

// ProjectPayload extracts the minimal parent payload for rec according to its
// own kind (spec §4.9 pass 2).
func ProjectPayload(kind model.Kind, rec model.Record) Payload {
	p := Payload{
		"author":      rec.Author(),
		"subreddit":   rec.Subreddit(),
	}
	if created, ok := rec.CreatedUTC(); ok {
		p["created_utc"] = created
	}
	switch kind {
	case model.KindComment:
		p["body"] = rec.Body()
	case model.KindSubmission:
		p["title"] = rec.Title()
		p["selftext"] = rec.Body()
		p["url"] = rec.URL()
	}
	return p
}
