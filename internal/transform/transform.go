// Package transform implements C7: projection (field whitelist/blacklist)
// and timestamp humanization, applied to a record after it has already
// passed the predicate pipeline.
package transform

import (
	"time"

	"github.com/harvx/reddit-etl/internal/model"
)

// Options controls the transform stage. Zero value is the identity
// transform: no projection, timestamps left untouched.
type Options struct {
	// Whitelist, if non-empty, reduces a record to exactly these keys
	// (spec invariant 2: never fabricates a field that isn't present).
	Whitelist []string
	// Blacklist removes these keys. Applied after Whitelist.
	Blacklist []string
	// HumanizeTimestamps replaces created_utc with an ISO-8601 UTC string.
	HumanizeTimestamps bool
	// KeepEpoch, when HumanizeTimestamps is set, additionally preserves
	// the original integer under created_utc_epoch.
	KeepEpoch bool
}

// Apply returns a new Record reflecting opts; the input is never mutated.
func Apply(r model.Record, opts Options) model.Record {
	out := project(r, opts.Whitelist, opts.Blacklist)
	if opts.HumanizeTimestamps {
		humanizeTimestamp(out, opts.KeepEpoch)
	}
	return out
}

// project builds the output map. Go maps have no insertion order, so the
// input's field order is not preserved; the sinks marshal records with
// encoding/json, which writes keys in sorted order.
func project(r model.Record, whitelist, blacklist []string) model.Record {
	out := make(model.Record, len(r))

	if len(whitelist) > 0 {
		for _, key := range whitelist {
			if v, ok := r[key]; ok {
				out[key] = v
			}
		}
	} else {
		for k, v := range r {
			out[k] = v
		}
	}

	if len(blacklist) > 0 {
		deny := make(map[string]struct{}, len(blacklist))
		for _, key := range blacklist {
			deny[key] = struct{}{}
		}
		for key := range deny {
			delete(out, key)
		}
	}

	return out
}

func humanizeTimestamp(r model.Record, keepEpoch bool) {
	created, ok := r.CreatedUTC()
	if !ok {
		return
	}
	if keepEpoch {
		r["created_utc_epoch"] = created
	}
	r["created_utc"] = time.Unix(created, 0).UTC().Format(time.RFC3339)
}
