// Package dataprocessing normalizes coded statistical observations into
// tidy and wide tables ready for the forecast engine.
package dataprocessing

import (
	"regexp"
	"strconv"
	"strings"
	"time"

	apperrors "macrolink/internal/errors"
)

// Date label patterns for the kanji-separated conventions the upstream
// mixes freely: "2023年1月", "2023年度", "2023年".
var (
	yearMonthPattern  = regexp.MustCompile(`(\d{4})年(\d{1,2})月`)
	fiscalYearPattern = regexp.MustCompile(`(\d{4})年度`)
	bareYearPattern   = regexp.MustCompile(`(\d{4})年`)
	digitsPattern     = regexp.MustCompile(`^\d+$`)
)

// genericLayouts are tried last, for labels that are already regular
// calendar dates.
var genericLayouts = []string{
	"2006-01-02",
	"2006/01/02",
	"2006-01",
	"2006/01",
	time.RFC3339,
}

// ParseStatDate parses one heterogeneous date label into a canonical
// calendar date. Resolution order is part of the contract: a label
// containing both a year and a month marker resolves by the month rule
// because that rule is tried first.
//
//  1. contains 月  → <year>-<month>-01
//  2. contains 年度 → April 1 of that fiscal year
//  3. contains 年  → January 1 of that year
//  4. 6-digit number → YYYYMM, day 1
//  5. 8-digit number → YYYYMMDD
//  6. 4-digit number → YYYY-01-01
//  7. generic calendar parse
//
// Failures return a date-parse error; the caller drops that single row
// rather than aborting the transform.
func ParseStatDate(label string) (time.Time, error) {
	s := strings.TrimSpace(label)
	if s == "" {
		return time.Time{}, apperrors.NewDateParseError(label)
	}

	if strings.Contains(s, "月") {
		if m := yearMonthPattern.FindStringSubmatch(s); m != nil {
			year, _ := strconv.Atoi(m[1])
			month, _ := strconv.Atoi(m[2])
			if month >= 1 && month <= 12 {
				return time.Date(year, time.Month(month), 1, 0, 0, 0, 0, time.UTC), nil
			}
		}
		return time.Time{}, apperrors.NewDateParseError(label)
	}

	if strings.Contains(s, "年度") {
		if m := fiscalYearPattern.FindStringSubmatch(s); m != nil {
			year, _ := strconv.Atoi(m[1])
			return time.Date(year, time.April, 1, 0, 0, 0, 0, time.UTC), nil
		}
		return time.Time{}, apperrors.NewDateParseError(label)
	}

	if strings.Contains(s, "年") {
		if m := bareYearPattern.FindStringSubmatch(s); m != nil {
			year, _ := strconv.Atoi(m[1])
			return time.Date(year, time.January, 1, 0, 0, 0, 0, time.UTC), nil
		}
		return time.Time{}, apperrors.NewDateParseError(label)
	}

	if digitsPattern.MatchString(s) {
		switch len(s) {
		case 6:
			if t, err := time.Parse("200601", s); err == nil {
				return t.UTC(), nil
			}
		case 8:
			if t, err := time.Parse("20060102", s); err == nil {
				return t.UTC(), nil
			}
		case 4:
			if t, err := time.Parse("2006", s); err == nil {
				return t.UTC(), nil
			}
		}
		return time.Time{}, apperrors.NewDateParseError(label)
	}

	for _, layout := range genericLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}

	return time.Time{}, apperrors.NewDateParseError(label)
}

// MonthStart anchors a date to the first day of its calendar month.
func MonthStart(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
}

// AddMonths returns the month-start anchor n months after t.
func AddMonths(t time.Time, n int) time.Time {
	return MonthStart(t).AddDate(0, n, 0)
}

// MonthsBetween counts month steps from the month of a to the month of b.
func MonthsBetween(a, b time.Time) int {
	ay, am := a.Year(), int(a.Month())
	by, bm := b.Year(), int(b.Month())
	return (by-ay)*12 + (bm - am)
}
