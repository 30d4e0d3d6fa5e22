package ledger

import "time"

// =============================================================================
// DATE - Day-granularity calendar date
// =============================================================================

// DateLayout is the wire and storage format for dates.
const DateLayout = "2006-01-02"

// Date is a calendar date at day granularity, always UTC.
type Date struct {
	Time time.Time
}

// Constructors

func NewDate(year int, month time.Month, day int) Date {
	return Date{Time: time.Date(year, month, day, 0, 0, 0, 0, time.UTC)}
}

func ParseDate(s string) (Date, error) {
	t, err := time.Parse(DateLayout, s)
	if err != nil {
		return Date{}, err
	}
	return Date{Time: t}, nil
}

func Today() Date {
	now := time.Now().UTC()
	return NewDate(now.Year(), now.Month(), now.Day())
}

// Comparison

func (d Date) Before(other Date) bool        { return d.normalize().Before(other.normalize()) }
func (d Date) After(other Date) bool         { return d.normalize().After(other.normalize()) }
func (d Date) Equal(other Date) bool         { return d.normalize().Equal(other.normalize()) }
func (d Date) BeforeOrEqual(other Date) bool { return d.Before(other) || d.Equal(other) }
func (d Date) AfterOrEqual(other Date) bool  { return d.After(other) || d.Equal(other) }

func (d Date) normalize() time.Time {
	return time.Date(d.Time.Year(), d.Time.Month(), d.Time.Day(), 0, 0, 0, 0, time.UTC)
}

// Properties

func (d Date) Year() int         { return d.Time.Year() }
func (d Date) Month() time.Month { return d.Time.Month() }
func (d Date) Day() int          { return d.Time.Day() }
func (d Date) IsZero() bool      { return d.Time.IsZero() }

func (d Date) String() string { return d.Time.Format(DateLayout) }

// Arithmetic

func (d Date) AddDays(n int) Date {
	return Date{Time: d.normalize().AddDate(0, 0, n)}
}

// AddMonths adds n calendar months, clamping to the end of the target month.
// Unlike time.Time.AddDate, Jan 31 + 1 month is Feb 28 (or 29), never Mar 3.
// This is the single month-arithmetic primitive: both maturity computation and
// period-end enumeration derive from it, so the two can never diverge.
func (d Date) AddMonths(n int) Date {
	year, month, day := d.Year(), d.Month(), d.Day()
	// Normalize to the first of the target month, then clamp the day.
	first := time.Date(year, month, 1, 0, 0, 0, 0, time.UTC).AddDate(0, n, 0)
	if max := daysIn(first.Year(), first.Month()); day > max {
		day = max
	}
	return NewDate(first.Year(), first.Month(), day)
}

// MonthEnd returns the last calendar day of d's month.
func (d Date) MonthEnd() Date {
	return NewDate(d.Year(), d.Month(), daysIn(d.Year(), d.Month()))
}

// IsMonthEnd reports whether d is the last day of its month.
func (d Date) IsMonthEnd() bool {
	return d.Day() == daysIn(d.Year(), d.Month())
}

func daysIn(year int, month time.Month) int {
	// Day zero of the next month is the last day of this one.
	return time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC).Day()
}

func MinDate(a, b Date) Date {
	if a.Before(b) {
		return a
	}
	return b
}

// =============================================================================
// MATURITY AND PERIOD ENUMERATION
// =============================================================================

// MaturityDate returns the last calendar day covered by a placement that
// starts on start and runs for months calendar months. The month addition is
// clamped, so a Jan 31 start with one month matures at the end of February.
func MaturityDate(start Date, months int) Date {
	return start.AddMonths(months).AddDays(-1)
}

// MonthEndsBetween returns every month-end date strictly after `after` and
// at or before `until`, in chronological order.
func MonthEndsBetween(after, until Date) []Date {
	var ends []Date
	end := after.MonthEnd()
	if !end.After(after) {
		end = end.AddDays(1).MonthEnd()
	}
	for end.BeforeOrEqual(until) {
		ends = append(ends, end)
		end = end.AddDays(1).MonthEnd()
	}
	return ends
}
