package ledger

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func TestProfitFor_Rounding(t *testing.T) {
	// 10000 x 2% = 200.00
	p := ProfitFor(decimal.NewFromInt(10000), decimal.NewFromInt(2))
	assert.True(t, p.Equal(decimal.RequireFromString("200")), "got %s", p)

	// 3333.33 x 1.5% = 49.99995 -> 50.00 (half-up)
	p = ProfitFor(decimal.RequireFromString("3333.33"), decimal.RequireFromString("1.5"))
	assert.True(t, p.Equal(decimal.RequireFromString("50")), "got %s", p)

	// 1000.50 x 0.25% = 2.50125 -> 2.50
	p = ProfitFor(decimal.RequireFromString("1000.50"), decimal.RequireFromString("0.25"))
	assert.True(t, p.Equal(decimal.RequireFromString("2.50")), "got %s", p)

	// Zero principal accrues zero profit
	p = ProfitFor(decimal.Zero, decimal.NewFromInt(2))
	assert.True(t, p.IsZero())
}

func TestStatus_Terminal(t *testing.T) {
	assert.False(t, StatusActive.Terminal())
	assert.True(t, StatusCompleted.Terminal())
	assert.True(t, StatusClosed.Terminal())
}

func TestAccrualAnchor(t *testing.T) {
	inv := &Investment{StartDate: NewDate(2026, time.January, 1)}
	assert.Equal(t, "2026-01-01", inv.AccrualAnchor().String())

	last := NewDate(2026, time.February, 28)
	inv.LastProfitDate = &last
	assert.Equal(t, "2026-02-28", inv.AccrualAnchor().String())
}
