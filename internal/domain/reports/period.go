package reports

import (
	"fmt"
	"time"

	"tpvcore/internal/core/apperror"
)

// PeriodType selects the reporting window.
type PeriodType string

const (
	PeriodDaily     PeriodType = "daily"
	PeriodWeekly    PeriodType = "weekly"
	PeriodMonthly   PeriodType = "monthly"
	PeriodQuarterly PeriodType = "quarterly"
	PeriodYearly    PeriodType = "yearly"
)

// AllPeriods lists every period type, finest first.
var AllPeriods = []PeriodType{PeriodDaily, PeriodWeekly, PeriodMonthly, PeriodQuarterly, PeriodYearly}

// Valid reports whether p is a known period type.
func (p PeriodType) Valid() bool {
	for _, k := range AllPeriods {
		if p == k {
			return true
		}
	}
	return false
}

// Params are the period parameters. Daily and weekly use Date (YYYY-MM-DD),
// monthly Year+Month, quarterly Year+Quarter, yearly Year.
type Params struct {
	Date    string
	Year    int
	Month   int
	Quarter int
}

// Range is a closed interval of UTC instants with its display label.
// From is tenant-local midnight of the first day; To is one nanosecond before
// local midnight after the last day.
type Range struct {
	Type  PeriodType `json:"type"`
	Label string     `json:"label"`
	From  time.Time  `json:"from"`
	To    time.Time  `json:"to"`
}

// Contains reports whether t lies in the range.
func (r Range) Contains(t time.Time) bool {
	return !t.Before(r.From) && !t.After(r.To)
}

// Elapsed reports whether the whole range lies before now.
func (r Range) Elapsed(now time.Time) bool {
	return r.To.Before(now)
}

const dateLayout = "2006-01-02"

// ComputeRange resolves a period in the tenant's timezone.
func ComputeRange(pt PeriodType, p Params, loc *time.Location) (Range, error) {
	if loc == nil {
		loc = time.UTC
	}

	var start, next time.Time
	var label string

	switch pt {
	case PeriodDaily, PeriodWeekly:
		if p.Date == "" {
			return Range{}, missingParam("date")
		}
		d, err := time.ParseInLocation(dateLayout, p.Date, loc)
		if err != nil {
			return Range{}, apperror.NewValidation("date must be YYYY-MM-DD").
				WithDetail("field", "date").
				WithDetail("value", p.Date)
		}
		if pt == PeriodDaily {
			start = d
			next = d.AddDate(0, 0, 1)
			label = d.Format(dateLayout)
		} else {
			offset := (int(d.Weekday()) + 6) % 7 // days since Monday
			start = d.AddDate(0, 0, -offset)
			next = start.AddDate(0, 0, 7)
			isoYear, week := d.ISOWeek()
			label = fmt.Sprintf("%04d-W%02d", isoYear, week)
		}

	case PeriodMonthly:
		if err := checkYear(p.Year); err != nil {
			return Range{}, err
		}
		if p.Month == 0 {
			return Range{}, missingParam("month")
		}
		if p.Month < 1 || p.Month > 12 {
			return Range{}, apperror.NewValidation("month must be between 1 and 12").WithDetail("field", "month")
		}
		start = time.Date(p.Year, time.Month(p.Month), 1, 0, 0, 0, 0, loc)
		next = start.AddDate(0, 1, 0)
		label = fmt.Sprintf("%04d-%02d", p.Year, p.Month)

	case PeriodQuarterly:
		if err := checkYear(p.Year); err != nil {
			return Range{}, err
		}
		if p.Quarter == 0 {
			return Range{}, missingParam("quarter")
		}
		if p.Quarter < 1 || p.Quarter > 4 {
			return Range{}, apperror.NewValidation("quarter must be between 1 and 4").WithDetail("field", "quarter")
		}
		start = time.Date(p.Year, time.Month((p.Quarter-1)*3+1), 1, 0, 0, 0, 0, loc)
		next = start.AddDate(0, 3, 0)
		label = fmt.Sprintf("%04d-Q%d", p.Year, p.Quarter)

	case PeriodYearly:
		if err := checkYear(p.Year); err != nil {
			return Range{}, err
		}
		start = time.Date(p.Year, time.January, 1, 0, 0, 0, 0, loc)
		next = start.AddDate(1, 0, 0)
		label = fmt.Sprintf("%04d", p.Year)

	default:
		return Range{}, apperror.NewValidation("unknown period type").WithDetail("period", string(pt))
	}

	return Range{
		Type:  pt,
		Label: label,
		From:  start.UTC(),
		To:    next.Add(-time.Nanosecond).UTC(),
	}, nil
}

// RangesContaining returns, for every period type, the range holding the
// tenant-local day of t.
func RangesContaining(t time.Time, loc *time.Location) []Range {
	if loc == nil {
		loc = time.UTC
	}
	local := t.In(loc)
	p := Params{
		Date:    local.Format(dateLayout),
		Year:    local.Year(),
		Month:   int(local.Month()),
		Quarter: (int(local.Month())-1)/3 + 1,
	}

	out := make([]Range, 0, len(AllPeriods))
	for _, pt := range AllPeriods {
		if r, err := ComputeRange(pt, p, loc); err == nil {
			out = append(out, r)
		}
	}
	return out
}

func checkYear(y int) error {
	if y == 0 {
		return missingParam("year")
	}
	if y < 1970 || y > 9999 {
		return apperror.NewValidation("year out of range").WithDetail("field", "year")
	}
	return nil
}

func missingParam(field string) error {
	return apperror.NewValidation(fmt.Sprintf("%s is required for this period", field)).WithDetail("field", field)
}
