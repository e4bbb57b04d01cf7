package model

import (
	"fmt"
	"strings"
)

// Kind distinguishes a comment fullname from a submission fullname.
type Kind string

const (
	// KindComment is the "t1" fullname prefix (a comment).
	KindComment Kind = "t1"
	// KindSubmission is the "t3" fullname prefix (a submission).
	KindSubmission Kind = "t3"
)

// SourceKind selects which monthly-archive subdirectories contribute to a
// scan: comments, submissions, or both.
type SourceKind int

const (
	// Comments restricts discovery to the comments/ subdirectory.
	Comments SourceKind = iota
	// Submissions restricts discovery to the submissions/ subdirectory.
	Submissions
	// Both scans both subdirectories.
	Both
)

// String renders the SourceKind for logging and file naming.
func (s SourceKind) String() string {
	switch s {
	case Comments:
		return "comments"
	case Submissions:
		return "submissions"
	case Both:
		return "both"
	default:
		return "unknown"
	}
}

// Includes reports whether this selection covers the given single kind.
func (s SourceKind) Includes(k Kind) bool {
	switch s {
	case Both:
		return true
	case Comments:
		return k == KindComment
	case Submissions:
		return k == KindSubmission
	default:
		return false
	}
}

// Fullname is a prefixed Reddit object identifier, e.g. "t3_abc123".
type Fullname struct {
	Kind Kind
	ID   string // base-36, no prefix
}

// ParseFullname parses a prefixed fullname like "t1_xxx" or "t3_xxx".
func ParseFullname(s string) (Fullname, error) {
	idx := strings.IndexByte(s, '_')
	if idx <= 0 || idx == len(s)-1 {
		return Fullname{}, fmt.Errorf("invalid fullname %q", s)
	}
	kind := Kind(s[:idx])
	if kind != KindComment && kind != KindSubmission {
		return Fullname{}, fmt.Errorf("invalid fullname kind %q in %q", kind, s)
	}
	return Fullname{Kind: kind, ID: s[idx+1:]}, nil
}

// String renders the fullname back to its "<kind>_<id>" textual form.
func (f Fullname) String() string {
	return string(f.Kind) + "_" + f.ID
}

// IsZero reports whether f is the zero value (no fullname parsed).
func (f Fullname) IsZero() bool {
	return f.Kind == "" && f.ID == ""
}
