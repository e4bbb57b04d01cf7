package query

import (
	"strings"
	"time"

	"github.com/harvx/reddit-etl/internal/model"
)

// Match evaluates r against the compiled query in the fixed, cheapest-first
// order mandated by spec §4.5. Every slot is conjoined (AND); an absent slot
// imposes no constraint.
func (q *Query) Match(r model.Record) bool {
	// 1. subreddit allow-set exact membership
	subreddit := strings.ToLower(r.Subreddit())
	if len(q.subredditAllow) > 0 {
		if _, ok := q.subredditAllow[subreddit]; !ok {
			return false
		}
	}

	// 2. subreddit allow-regex / deny-regex
	if q.subredditAllowRe != nil && !q.subredditAllowRe.MatchString(subreddit) {
		return false
	}
	if q.subredditDenyRe != nil && q.subredditDenyRe.MatchString(subreddit) {
		return false
	}

	author := r.Author()
	authorLower := strings.ToLower(author)

	// 3. author deny-set (incl. bot list)
	if len(q.authorDeny) > 0 {
		if _, denied := q.authorDeny[authorLower]; denied {
			return false
		}
	}

	// 4. pseudo-user policy
	if model.IsPseudoUser(author) && !q.allowPseudoUsers {
		return false
	}

	// 5. author allow-set
	if len(q.authorAllow) > 0 {
		if _, ok := q.authorAllow[authorLower]; !ok {
			return false
		}
	}

	// 6. domain allow-set (exact, lowercase)
	if len(q.domainAllow) > 0 {
		domain := strings.ToLower(r.Domain())
		if _, ok := q.domainAllow[domain]; !ok {
			return false
		}
	}

	// 7. contains-url tri-state
	switch q.urlPolicy {
	case URLRequire:
		if r.URL() == "" {
			return false
		}
	case URLForbid:
		if r.URL() != "" {
			return false
		}
	}

	// 8. score bounds
	if q.minScore != nil || q.maxScore != nil {
		score, ok := r.Score()
		if !ok {
			return false
		}
		if q.minScore != nil && score < *q.minScore {
			return false
		}
		if q.maxScore != nil && score > *q.maxScore {
			return false
		}
	}

	// 9. date sub-range (per-record created_utc)
	if created, ok := r.CreatedUTC(); ok {
		t := time.Unix(created, 0).UTC()
		ym := model.YearMonth{Year: t.Year(), Month: int(t.Month())}
		if !q.dateRange.Contains(ym) {
			return false
		}
	}

	text := ""
	needText := len(q.keywordAny) > 0 || len(q.keywordAll) > 0
	if needText {
		text = r.Title() + "\n" + r.Body()
	}

	// 10. keyword-any / keyword-all
	if len(q.keywordAny) > 0 {
		matched := false
		for _, re := range q.keywordAny {
			if re.MatchString(text) {
				matched = true
				break
			}
		}
		if !matched {
			return false
		}
	}
	if len(q.keywordAll) > 0 {
		for _, re := range q.keywordAll {
			if !re.MatchString(text) {
				return false
			}
		}
	}

	// 11. body regex (most expensive; last)
	if q.bodyRegex != nil && !q.bodyRegex.MatchString(r.Body()) {
		return false
	}

	return true
}
