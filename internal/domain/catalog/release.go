package catalog

import (
	"time"

	"github.com/cockroachdb/errors"
)

// ReleasePrecision is the granularity of a provider release date.
type ReleasePrecision string

const (
	PrecisionDay   ReleasePrecision = "day"
	PrecisionMonth ReleasePrecision = "month"
	PrecisionYear  ReleasePrecision = "year"
)

var releaseLayouts = map[ReleasePrecision]string{
	PrecisionDay:   "2006-01-02",
	PrecisionMonth: "2006-01",
	PrecisionYear:  "2006",
}

// ParseReleaseDate parses value at the given precision.
// Month precision yields the first of the month and year precision January 1st.
// An empty precision is inferred from the length of value.
func ParseReleaseDate(value string, precision ReleasePrecision) (time.Time, ReleasePrecision, error) {
	if precision == "" {
		precision = inferPrecision(value)
	}
	layout, ok := releaseLayouts[precision]
	if !ok {
		return time.Time{}, "", errors.Newf("unknown release date precision: %q", precision)
	}
	t, err := time.ParseInLocation(layout, value, time.UTC)
	if err != nil {
		return time.Time{}, "", errors.Wrapf(err, "invalid release date %q at precision %s", value, precision)
	}
	return t, precision, nil
}

func inferPrecision(value string) ReleasePrecision {
	switch len(value) {
	case len("2006"):
		return PrecisionYear
	case len("2006-01"):
		return PrecisionMonth
	default:
		return PrecisionDay
	}
}

// DateOf truncates t to its UTC calendar day.
func DateOf(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
