package model

import (
	"fmt"
	"regexp"
)

// MonthlyFile is an immutable reference to one discovered monthly archive.
type MonthlyFile struct {
	Path       string
	Source     Kind // KindComment for RC_*, KindSubmission for RS_*
	YearMonth  YearMonth
}

// filenamePattern matches "RC_YYYY-MM.zst" or "RS_YYYY-MM.zst" exactly
// (spec §3: `^(RC|RS)_\d{4}-\d{2}\.zst$`).
var filenamePattern = regexp.MustCompile(`^(RC|RS)_(\d{4})-(\d{2})\.zst$`)

// ParseMonthlyFilename validates name against the RC/RS naming discipline and
// derives its Kind and YearMonth. Names that don't match are rejected; the
// caller (discovery) treats rejection as "ignore this entry", not an error.
func ParseMonthlyFilename(name string) (Kind, YearMonth, error) {
	m := filenamePattern.FindStringSubmatch(name)
	if m == nil {
		return "", YearMonth{}, fmt.Errorf("filename %q does not match RC|RS_YYYY-MM.zst", name)
	}

	var kind Kind
	switch m[1] {
	case "RC":
		kind = KindComment
	case "RS":
		kind = KindSubmission
	}

	year := atoiMust(m[2])
	month := atoiMust(m[3])
	ym, err := NewYearMonth(year, month)
	if err != nil {
		return "", YearMonth{}, fmt.Errorf("filename %q: %w", name, err)
	}
	return kind, ym, nil
}

func atoiMust(s string) int {
	n := 0
	for _, c := range s {
		n = n*10 + int(c-'0')
	}
	return n
}

// OutputName renders the canonical "RC_YYYY-MM" / "RS_YYYY-MM" stem (without
// extension) used by partitioned export and spool sinks.
func (mf MonthlyFile) OutputName() string {
	prefix := "RC"
	if mf.Source == KindSubmission {
		prefix = "RS"
	}
	return fmt.Sprintf("%s_%s", prefix, mf.YearMonth)
}
