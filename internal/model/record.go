package model

import "strconv"

// Record is a semi-structured comment or submission: a map from JSON field
// name to decoded value. Reddit's historical JSON is not schema-enforced
// (spec §1 Non-goals), so fields are read defensively and absence is normal.
type Record map[string]any

// pseudoUsers are the sentinel author values meaning "not a real account".
var pseudoUsers = map[string]struct{}{
	"[deleted]": {},
	"[removed]": {},
}

// Author returns the record's author field, or "" if absent or not a string.
func (r Record) Author() string {
	v, _ := r["author"].(string)
	return v
}

// IsPseudoUser reports whether author is one of the pseudo-user sentinels.
func IsPseudoUser(author string) bool {
	_, ok := pseudoUsers[author]
	return ok
}

// CreatedUTC returns the record's created_utc as an int64, accepting both a
// JSON number and a numeric string per spec §3.
func (r Record) CreatedUTC() (int64, bool) {
	switch v := r["created_utc"].(type) {
	case float64:
		return int64(v), true
	case int64:
		return v, true
	case int:
		return int64(v), true
	case string:
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return 0, false
		}
		return n, true
	default:
		return 0, false
	}
}

// Subreddit returns the record's subreddit field, or "" if absent.
func (r Record) Subreddit() string {
	v, _ := r["subreddit"].(string)
	return v
}

// Body returns whichever of "body" (comments) or "selftext" (submissions) is
// present, preferring "body" since a record has at most one of the two.
func (r Record) Body() string {
	if v, ok := r["body"].(string); ok {
		return v
	}
	v, _ := r["selftext"].(string)
	return v
}

// Title returns the record's title field (submissions only), or "".
func (r Record) Title() string {
	v, _ := r["title"].(string)
	return v
}

// URL returns the record's url field, or "" if absent.
func (r Record) URL() string {
	v, _ := r["url"].(string)
	return v
}

// Domain returns the record's domain field as stored (not lower-cased), or ""
// if absent.
func (r Record) Domain() string {
	v, _ := r["domain"].(string)
	return v
}

// Score returns the record's score field and whether it was present and numeric.
func (r Record) Score() (int64, bool) {
	switch v := r["score"].(type) {
	case float64:
		return int64(v), true
	case int64:
		return v, true
	case int:
		return int64(v), true
	default:
		return 0, false
	}
}

// ID returns the record's bare base-36 id (no t1_/t3_ prefix), or "".
func (r Record) ID() string {
	v, _ := r["id"].(string)
	return v
}

// ParentFullname parses the record's parent_id field (comments only). Returns
// the zero Fullname and false if absent or malformed.
func (r Record) ParentFullname() (Fullname, bool) {
	v, ok := r["parent_id"].(string)
	if !ok {
		return Fullname{}, false
	}
	fn, err := ParseFullname(v)
	if err != nil {
		return Fullname{}, false
	}
	return fn, true
}

// LinkFullname parses the record's link_id field (comments only). Returns the
// zero Fullname and false if absent or malformed.
func (r Record) LinkFullname() (Fullname, bool) {
	v, ok := r["link_id"].(string)
	if !ok {
		return Fullname{}, false
	}
	fn, err := ParseFullname(v)
	if err != nil {
		return Fullname{}, false
	}
	return fn, true
}

// OwnFullname builds this record's own fullname from its bare id and the
// given kind, used to discard self-referential parent links (spec invariant 5).
func (r Record) OwnFullname(kind Kind) (Fullname, bool) {
	id := r.ID()
	if id == "" {
		return Fullname{}, false
	}
	return Fullname{Kind: kind, ID: id}, true
}

// Clone returns a shallow copy of the record, used by the transform stage so
// projection never mutates the record a predicate already evaluated against.
func (r Record) Clone() Record {
	out := make(Record, len(r))
	for k, v := range r {
		out[k] = v
	}
	return out
}
