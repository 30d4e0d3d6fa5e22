package ledger

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

// =============================================================================
// MONTH ARITHMETIC TESTS
// =============================================================================

func TestAddMonths_ClampsToEndOfShorterMonth(t *testing.T) {
	// GIVEN: January 31
	// WHEN: Adding one month
	// THEN: Result is February 28, not March 3

	d := NewDate(2026, time.January, 31).AddMonths(1)
	assert.Equal(t, "2026-02-28", d.String())
}

func TestAddMonths_ClampsToLeapFebruary(t *testing.T) {
	d := NewDate(2028, time.January, 31).AddMonths(1)
	assert.Equal(t, "2028-02-29", d.String())
}

func TestAddMonths_NoClampNeeded(t *testing.T) {
	d := NewDate(2026, time.January, 15).AddMonths(1)
	assert.Equal(t, "2026-02-15", d.String())

	d = NewDate(2026, time.November, 30).AddMonths(2)
	assert.Equal(t, "2027-01-30", d.String())
}

func TestAddMonths_ClampDoesNotPropagate(t *testing.T) {
	// Adding 2 months to Jan 31 lands on Mar 31: the clamp applies per
	// addition, it does not stick at 28.
	d := NewDate(2026, time.January, 31).AddMonths(2)
	assert.Equal(t, "2026-03-31", d.String())
}

func TestMonthEnd(t *testing.T) {
	assert.Equal(t, "2026-02-28", NewDate(2026, time.February, 10).MonthEnd().String())
	assert.Equal(t, "2028-02-29", NewDate(2028, time.February, 1).MonthEnd().String())
	assert.True(t, NewDate(2026, time.April, 30).IsMonthEnd())
	assert.False(t, NewDate(2026, time.April, 29).IsMonthEnd())
}

// =============================================================================
// MATURITY DATE TESTS
// =============================================================================

func TestMaturityDate_FirstOfMonthStart(t *testing.T) {
	// GIVEN: A placement starting Jan 1 for 3 months
	// THEN: The last covered day is March 31

	end := MaturityDate(NewDate(2026, time.January, 1), 3)
	assert.Equal(t, "2026-03-31", end.String())
}

func TestMaturityDate_MidMonthStart(t *testing.T) {
	end := MaturityDate(NewDate(2026, time.January, 15), 1)
	assert.Equal(t, "2026-02-14", end.String())
}

func TestMaturityDate_EndOfMonthStartClamps(t *testing.T) {
	end := MaturityDate(NewDate(2026, time.January, 31), 1)
	assert.Equal(t, "2026-02-27", end.String())
}

// =============================================================================
// PERIOD ENUMERATION TESTS
// =============================================================================

func TestMonthEndsBetween_FullQuarter(t *testing.T) {
	ends := MonthEndsBetween(NewDate(2026, time.January, 1), NewDate(2026, time.March, 31))

	var got []string
	for _, e := range ends {
		got = append(got, e.String())
	}
	assert.Equal(t, []string{"2026-01-31", "2026-02-28", "2026-03-31"}, got)
}

func TestMonthEndsBetween_AfterIsMonthEnd_Excluded(t *testing.T) {
	// "after" is exclusive: a Jan 31 anchor means the next period ends Feb 28.
	ends := MonthEndsBetween(NewDate(2026, time.January, 31), NewDate(2026, time.February, 28))
	assert.Len(t, ends, 1)
	assert.Equal(t, "2026-02-28", ends[0].String())
}

func TestMonthEndsBetween_NothingElapsed(t *testing.T) {
	ends := MonthEndsBetween(NewDate(2026, time.January, 1), NewDate(2026, time.January, 30))
	assert.Empty(t, ends)
}

func TestMonthEndsBetween_UntilIsInclusive(t *testing.T) {
	ends := MonthEndsBetween(NewDate(2026, time.January, 1), NewDate(2026, time.January, 31))
	assert.Len(t, ends, 1)
}
