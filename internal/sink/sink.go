// Package sink implements C8: the terminal stages that consume records
// passing the predicate pipeline. Every sink that produces a file on disk
// honors spec invariant 4 (fully committed or absent) via internal/ioutil's
// atomic publish.
package sink

import (
	"encoding/json"
	"fmt"
	"sort"

	"github.com/harvx/reddit-etl/internal/model"
)

// marshalRecord renders r as a single JSON object with a trailing newline,
// matching the JSONL wire format (spec §6): one object per line, UTF-8, LF
// terminator on every record including the last. encoding/json marshals map
// keys in sorted order, which gives deterministic -- if not input-order --
// output; see DESIGN.md for why this repo doesn't attempt to preserve the
// original field insertion order of a map[string]any.
func marshalRecord(r model.Record) ([]byte, error) {
	b, err := json.Marshal(r)
	if err != nil {
		return nil, fmt.Errorf("sink: marshal record: %w", err)
	}
	return append(b, '\n'), nil
}

// sortedKeys returns m's keys in ascending order, used by aggregate sinks
// that emit TSV with a deterministic tie-break.
func sortedKeys[V any](m map[string]V) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
