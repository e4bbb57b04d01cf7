// Package query implements the predicate pipeline (spec §4.5): a fluent
// Builder accumulates named filter slots, Compile produces an immutable
// Query, and Query.Match evaluates a record in the fixed, cheapest-first
// order the spec mandates.
package query

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/harvx/reddit-etl/internal/model"
)

// URLPolicy is the contains-url tri-state (spec §3).
type URLPolicy int

const (
	// URLIgnore applies no constraint on the url field.
	URLIgnore URLPolicy = iota
	// URLRequire rejects records with an empty/absent url.
	URLRequire
	// URLForbid rejects records with a non-empty url.
	URLForbid
)

// Builder accumulates query slots via fluent methods. Duplicate calls on the
// same slot merge: sets union, regex alternatives compose left-to-right.
// Builder is mutated in place; call Compile once before scanning starts.
type Builder struct {
	subredditAllow    map[string]struct{}
	subredditAllowRe  []string
	subredditDenyRe   []string
	authorDeny        map[string]struct{}
	allowPseudoUsers  bool
	authorAllow       map[string]struct{}
	domainAllow       map[string]struct{}
	urlPolicy         URLPolicy
	minScore, maxScore *int64
	dateRange         model.Range
	keywordAny        []string
	keywordAll        []string
	bodyRegex         []string
	whitelist         []string
	blacklist         []string
}

// NewBuilder returns an empty Builder equivalent to "no constraints".
func NewBuilder() *Builder {
	return &Builder{
		subredditAllow: make(map[string]struct{}),
		authorDeny:     make(map[string]struct{}),
		authorAllow:    make(map[string]struct{}),
		domainAllow:    make(map[string]struct{}),
	}
}

// AllowSubreddits adds subreddit names to the case-insensitive allow-set.
func (b *Builder) AllowSubreddits(names ...string) *Builder {
	for _, n := range names {
		b.subredditAllow[strings.ToLower(n)] = struct{}{}
	}
	return b
}

// AllowSubredditRegex appends a pattern to the subreddit allow-regex
// alternation (left-to-right union across calls).
func (b *Builder) AllowSubredditRegex(pattern string) *Builder {
	b.subredditAllowRe = append(b.subredditAllowRe, pattern)
	return b
}

// DenySubredditRegex appends a pattern to the subreddit deny-regex alternation.
func (b *Builder) DenySubredditRegex(pattern string) *Builder {
	b.subredditDenyRe = append(b.subredditDenyRe, pattern)
	return b
}

// DenyAuthors adds author names to the deny-set. Used both for explicit
// calls and for injecting the environment-driven bot list (spec §9) -- the
// caller constructs that list explicitly and passes it here; there is no
// hidden global.
func (b *Builder) DenyAuthors(names ...string) *Builder {
	for _, n := range names {
		b.authorDeny[strings.ToLower(n)] = struct{}{}
	}
	return b
}

// AllowPseudoUsers controls whether [deleted]/[removed] authors pass.
func (b *Builder) AllowPseudoUsers(allow bool) *Builder {
	b.allowPseudoUsers = allow
	return b
}

// AllowAuthors adds author names to the allow-set.
func (b *Builder) AllowAuthors(names ...string) *Builder {
	for _, n := range names {
		b.authorAllow[strings.ToLower(n)] = struct{}{}
	}
	return b
}

// AllowDomains adds domains to the allow-set (exact, lowercase).
func (b *Builder) AllowDomains(names ...string) *Builder {
	for _, n := range names {
		b.domainAllow[strings.ToLower(n)] = struct{}{}
	}
	return b
}

// RequireURL sets the contains-url tri-state to "require".
func (b *Builder) RequireURL() *Builder { b.urlPolicy = URLRequire; return b }

// ForbidURL sets the contains-url tri-state to "forbid".
func (b *Builder) ForbidURL() *Builder { b.urlPolicy = URLForbid; return b }

// MinScore sets the inclusive lower score bound.
func (b *Builder) MinScore(n int64) *Builder { b.minScore = &n; return b }

// MaxScore sets the inclusive upper score bound.
func (b *Builder) MaxScore(n int64) *Builder { b.maxScore = &n; return b }

// DateRange further tightens the scan window per-record (spec §4.5 item 9).
func (b *Builder) DateRange(r model.Range) *Builder { b.dateRange = r; return b }

// KeywordAny adds words; a record matches if it contains at least one.
func (b *Builder) KeywordAny(words ...string) *Builder {
	b.keywordAny = append(b.keywordAny, words...)
	return b
}

// KeywordAll adds words; a record matches only if it contains every one.
func (b *Builder) KeywordAll(words ...string) *Builder {
	b.keywordAll = append(b.keywordAll, words...)
	return b
}

// BodyRegex appends a pattern to the body-regex alternation (most expensive
// predicate, evaluated last).
func (b *Builder) BodyRegex(pattern string) *Builder {
	b.bodyRegex = append(b.bodyRegex, pattern)
	return b
}

// Whitelist sets the projection field whitelist (union across calls).
func (b *Builder) Whitelist(fields ...string) *Builder {
	b.whitelist = append(b.whitelist, fields...)
	return b
}

// Blacklist sets the projection field blacklist (union across calls).
func (b *Builder) Blacklist(fields ...string) *Builder {
	b.blacklist = append(b.blacklist, fields...)
	return b
}

// Query is the compiled, immutable predicate bundle. Side-effect-free and
// deterministic given a record (spec invariant 3).
type Query struct {
	subredditAllow   map[string]struct{}
	subredditAllowRe *regexp.Regexp
	subredditDenyRe  *regexp.Regexp
	authorDeny       map[string]struct{}
	allowPseudoUsers bool
	authorAllow      map[string]struct{}
	domainAllow      map[string]struct{}
	urlPolicy        URLPolicy
	minScore, maxScore *int64
	dateRange        model.Range
	keywordAny       []*regexp.Regexp
	keywordAll       []*regexp.Regexp
	bodyRegex        *regexp.Regexp

	Whitelist []string
	Blacklist []string
}

// Compile validates and compiles all regex slots once, returning an
// immutable Query ready for repeated concurrent evaluation.
func (b *Builder) Compile() (*Query, error) {
	q := &Query{
		subredditAllow:   copySet(b.subredditAllow),
		authorDeny:       copySet(b.authorDeny),
		allowPseudoUsers: b.allowPseudoUsers,
		authorAllow:      copySet(b.authorAllow),
		domainAllow:      copySet(b.domainAllow),
		urlPolicy:        b.urlPolicy,
		minScore:         b.minScore,
		maxScore:         b.maxScore,
		dateRange:        b.dateRange,
		Whitelist:        append([]string(nil), b.whitelist...),
		Blacklist:        append([]string(nil), b.blacklist...),
	}

	var err error
	if q.subredditAllowRe, err = compileAlternation(b.subredditAllowRe, true); err != nil {
		return nil, fmt.Errorf("query: subreddit allow-regex: %w", err)
	}
	if q.subredditDenyRe, err = compileAlternation(b.subredditDenyRe, true); err != nil {
		return nil, fmt.Errorf("query: subreddit deny-regex: %w", err)
	}
	if q.bodyRegex, err = compileAlternation(b.bodyRegex, true); err != nil {
		return nil, fmt.Errorf("query: body regex: %w", err)
	}

	for _, w := range b.keywordAny {
		re, err := compileWholeWord(w)
		if err != nil {
			return nil, fmt.Errorf("query: keyword-any %q: %w", w, err)
		}
		q.keywordAny = append(q.keywordAny, re)
	}
	for _, w := range b.keywordAll {
		re, err := compileWholeWord(w)
		if err != nil {
			return nil, fmt.Errorf("query: keyword-all %q: %w", w, err)
		}
		q.keywordAll = append(q.keywordAll, re)
	}

	return q, nil
}

func copySet(m map[string]struct{}) map[string]struct{} {
	if len(m) == 0 {
		return nil
	}
	out := make(map[string]struct{}, len(m))
	for k := range m {
		out[k] = struct{}{}
	}
	return out
}

// compileAlternation joins patterns with "|" (left-to-right alternation,
// spec §4.5's tie-break rule) and compiles the result case-insensitively.
// An empty slice compiles to nil (no constraint).
func compileAlternation(patterns []string, caseInsensitive bool) (*regexp.Regexp, error) {
	if len(patterns) == 0 {
		return nil, nil
	}
	grouped := make([]string, len(patterns))
	for i, p := range patterns {
		grouped[i] = "(?:" + p + ")"
	}
	joined := strings.Join(grouped, "|")
	if caseInsensitive {
		joined = "(?i)" + joined
	}
	return regexp.Compile(joined)
}

// compileWholeWord builds a case-insensitive, whole-word-ish pattern for a
// single keyword (spec §4.5: "whole-word-ish", ASCII case-fold; full Unicode
// fold is preferred but not required -- regexp's (?i) already folds
// Unicode letters where Go's RE2 engine supports it).
func compileWholeWord(word string) (*regexp.Regexp, error) {
	return regexp.Compile(`(?i)\b` + regexp.QuoteMeta(word) + `\b`)
}
