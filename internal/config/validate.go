package config

import (
	"os"

	"github.com/harvx/reddit-etl/internal/model"
)

// Validate checks o for the fatal configuration problems spec §7 error kind
// 1 describes: a missing base directory, a malformed date range, or an
// unknown sources value. It returns every problem found, not just the
// first, so a user fixing their config file sees everything at once.
func Validate(o Options) []ValidationError {
	var errs []ValidationError

	if o.BaseDir == "" {
		errs = append(errs, ValidationError{Field: "base_dir", Message: "must be set"})
	} else if info, err := os.Stat(o.BaseDir); err != nil {
		errs = append(errs, ValidationError{Field: "base_dir", Message: "does not exist: " + err.Error()})
	} else if !info.IsDir() {
		errs = append(errs, ValidationError{Field: "base_dir", Message: "is not a directory"})
	}

	switch o.Sources {
	case "", "both", "comments", "submissions":
	default:
		errs = append(errs, ValidationError{Field: "sources", Message: "must be one of both, comments, submissions"})
	}

	var from, to *model.YearMonth
	if o.DateFrom != "" {
		ym, err := model.ParseYearMonth(o.DateFrom)
		if err != nil {
			errs = append(errs, ValidationError{Field: "date_from", Message: err.Error()})
		} else {
			from = &ym
		}
	}
	if o.DateTo != "" {
		ym, err := model.ParseYearMonth(o.DateTo)
		if err != nil {
			errs = append(errs, ValidationError{Field: "date_to", Message: err.Error()})
		} else {
			to = &ym
		}
	}
	if from != nil && to != nil && from.After(*to) {
		errs = append(errs, ValidationError{Field: "date_range", Message: "date_from is after date_to"})
	}

	return errs
}

// DateRange converts o's DateFrom/DateTo strings into a model.Range, ignoring
// parse errors (Validate is responsible for surfacing those).
func (o Options) DateRange() model.Range {
	var from, to *model.YearMonth
	if ym, err := model.ParseYearMonth(o.DateFrom); err == nil {
		from = &ym
	}
	if ym, err := model.ParseYearMonth(o.DateTo); err == nil {
		to = &ym
	}
	return model.NewRange(from, to)
}
