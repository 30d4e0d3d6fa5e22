package ledger_test

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/investment-engine/ledger"
)

// =============================================================================
// CREATE TESTS
// =============================================================================

func TestRegistry_Create_DerivesCodeAndMaturity(t *testing.T) {
	// GIVEN: A valid creation input starting Feb 1 for 6 months
	// THEN: The code carries the start date, the maturity is July 31, and the
	//       full principal is at work

	store := newTestStore(t)
	registry := ledger.NewRegistry(store)

	inv, err := registry.Create(context.Background(), ledger.CreateInvestmentInput{
		InvestorID:       "investor-1",
		StartDate:        ledger.NewDate(2026, time.February, 1),
		DurationMonths:   6,
		ProfitRate:       decimal.NewFromInt(2),
		InitialPrincipal: decimal.NewFromInt(50000),
	})
	require.NoError(t, err)

	assert.Equal(t, "INV-20260201-0001", inv.Code)
	assert.Equal(t, "2026-07-31", inv.EndDate.String())
	assert.Equal(t, ledger.StatusActive, inv.Status)
	assertAmount(t, "50000", inv.CurrentPrincipal)
	assert.Nil(t, inv.LastProfitDate)
	assert.Equal(t, 1, inv.Version)
}

func TestRegistry_Create_SequencePerDay(t *testing.T) {
	store := newTestStore(t)
	registry := ledger.NewRegistry(store)
	ctx := context.Background()

	in := ledger.CreateInvestmentInput{
		InvestorID:       "investor-1",
		StartDate:        ledger.NewDate(2026, time.February, 1),
		DurationMonths:   6,
		ProfitRate:       decimal.NewFromInt(2),
		InitialPrincipal: decimal.NewFromInt(1000),
	}
	first, err := registry.Create(ctx, in)
	require.NoError(t, err)
	second, err := registry.Create(ctx, in)
	require.NoError(t, err)

	// Same day increments; a different day restarts the sequence.
	assert.Equal(t, "INV-20260201-0001", first.Code)
	assert.Equal(t, "INV-20260201-0002", second.Code)

	in.StartDate = ledger.NewDate(2026, time.February, 2)
	third, err := registry.Create(ctx, in)
	require.NoError(t, err)
	assert.Equal(t, "INV-20260202-0001", third.Code)
}

func TestRegistry_Create_Validation(t *testing.T) {
	store := newTestStore(t)
	registry := ledger.NewRegistry(store)
	ctx := context.Background()

	valid := ledger.CreateInvestmentInput{
		InvestorID:       "investor-1",
		StartDate:        ledger.NewDate(2026, time.February, 1),
		DurationMonths:   6,
		ProfitRate:       decimal.NewFromInt(2),
		InitialPrincipal: decimal.NewFromInt(1000),
	}

	cases := []struct {
		name   string
		mutate func(*ledger.CreateInvestmentInput)
	}{
		{"missing investor", func(in *ledger.CreateInvestmentInput) { in.InvestorID = "" }},
		{"unknown investor", func(in *ledger.CreateInvestmentInput) { in.InvestorID = "nobody" }},
		{"unknown outlet", func(in *ledger.CreateInvestmentInput) { in.OutletID = "nowhere" }},
		{"missing start date", func(in *ledger.CreateInvestmentInput) { in.StartDate = ledger.Date{} }},
		{"zero duration", func(in *ledger.CreateInvestmentInput) { in.DurationMonths = 0 }},
		{"negative rate", func(in *ledger.CreateInvestmentInput) { in.ProfitRate = decimal.NewFromInt(-1) }},
		{"negative principal", func(in *ledger.CreateInvestmentInput) { in.InitialPrincipal = decimal.NewFromInt(-1) }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			in := valid
			tc.mutate(&in)
			_, err := registry.Create(ctx, in)
			assert.True(t, ledger.IsValidation(err), "expected validation error, got %v", err)
		})
	}
}

// =============================================================================
// UPDATE TESTS
// =============================================================================

func TestRegistry_Update_RecomputesMaturity(t *testing.T) {
	store := newTestStore(t)
	registry := ledger.NewRegistry(store)
	ctx := context.Background()

	inv := newInvestment(t, store, jan1(), 3, "2", "10000")

	months := 6
	updated, err := registry.Update(ctx, inv.ID, ledger.UpdateInvestmentInput{
		DurationMonths: &months,
	})
	require.NoError(t, err)
	assert.Equal(t, "2026-06-30", updated.EndDate.String())
	assert.Equal(t, 2, updated.Version)
}

func TestRegistry_Update_PeriodShiftBlockedAfterAccrual(t *testing.T) {
	// GIVEN: An investment with one closed period
	// WHEN: Trying to change start date or duration
	// THEN: Rejected with a conflict; a note edit still passes

	store := newTestStore(t)
	registry := ledger.NewRegistry(store)
	engine := ledger.NewAccrualEngine(store)
	ctx := context.Background()

	inv := newInvestment(t, store, jan1(), 12, "2", "10000")
	_, err := engine.RunAccrual(ctx, ledger.NewDate(2026, time.February, 1))
	require.NoError(t, err)

	months := 6
	_, err = registry.Update(ctx, inv.ID, ledger.UpdateInvestmentInput{DurationMonths: &months})
	assert.True(t, ledger.IsConflict(err), "expected conflict, got %v", err)

	newStart := ledger.NewDate(2026, time.March, 1)
	_, err = registry.Update(ctx, inv.ID, ledger.UpdateInvestmentInput{StartDate: &newStart})
	assert.True(t, ledger.IsConflict(err))

	note := "renegotiated"
	updated, err := registry.Update(ctx, inv.ID, ledger.UpdateInvestmentInput{Note: &note})
	require.NoError(t, err)
	assert.Equal(t, "renegotiated", updated.Note)
}

func TestRegistry_Update_UnknownInvestment(t *testing.T) {
	store := newTestStore(t)
	registry := ledger.NewRegistry(store)

	note := "x"
	_, err := registry.Update(context.Background(), "missing", ledger.UpdateInvestmentInput{Note: &note})
	assert.ErrorIs(t, err, ledger.ErrInvestmentNotFound)
}

// =============================================================================
// DELETE TESTS
// =============================================================================

func TestRegistry_Delete_CleanInvestment(t *testing.T) {
	store := newTestStore(t)
	registry := ledger.NewRegistry(store)
	ctx := context.Background()

	inv := newInvestment(t, store, jan1(), 3, "2", "10000")
	require.NoError(t, registry.Delete(ctx, inv.ID))

	_, err := registry.Get(ctx, inv.ID)
	assert.ErrorIs(t, err, ledger.ErrInvestmentNotFound)
}

func TestRegistry_Delete_BlockedByLedgerHistory(t *testing.T) {
	store := newTestStore(t)
	registry := ledger.NewRegistry(store)
	engine := ledger.NewAccrualEngine(store)
	ctx := context.Background()

	inv := newInvestment(t, store, jan1(), 12, "2", "10000")
	_, err := engine.RunAccrual(ctx, ledger.NewDate(2026, time.February, 1))
	require.NoError(t, err)

	err = registry.Delete(ctx, inv.ID)
	assert.True(t, ledger.IsConflict(err), "expected conflict, got %v", err)

	// Withdrawals alone also block deletion
	other := newInvestment(t, store, ledger.NewDate(2026, time.June, 1), 12, "2", "10000")
	processor := ledger.NewWithdrawalProcessor(store)
	_, err = processor.Withdraw(ctx, other.ID, ledger.WithdrawInput{
		WithdrawDate: ledger.NewDate(2026, time.June, 10),
		Amount:       decimal.NewFromInt(100),
	})
	require.NoError(t, err)

	err = registry.Delete(ctx, other.ID)
	assert.True(t, ledger.IsConflict(err))
}

// =============================================================================
// STATUS OVERRIDE TESTS
// =============================================================================

func TestRegistry_OverrideStatus_ForcesTerminalAndAudits(t *testing.T) {
	// GIVEN: An active investment
	// WHEN: An admin forces it closed
	// THEN: Status flips and the audit trail records who and why

	store := newTestStore(t)
	registry := ledger.NewRegistry(store)
	ctx := context.Background()

	inv := newInvestment(t, store, jan1(), 12, "2", "10000")

	updated, err := registry.OverrideStatus(ctx, inv.ID, ledger.StatusClosed, "ops@warp", "early exit")
	require.NoError(t, err)
	assert.Equal(t, ledger.StatusClosed, updated.Status)

	events, err := store.ListAuditEvents(ctx, inv.ID)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, "status_override", events[0].Action)
	assert.Equal(t, "ops@warp", events[0].Actor)
	assert.Contains(t, events[0].Detail, "early exit")
}

func TestRegistry_OverrideStatus_Rules(t *testing.T) {
	store := newTestStore(t)
	registry := ledger.NewRegistry(store)
	ctx := context.Background()

	inv := newInvestment(t, store, jan1(), 12, "2", "10000")

	// Only terminal targets are allowed
	_, err := registry.OverrideStatus(ctx, inv.ID, ledger.StatusActive, "ops@warp", "nope")
	assert.True(t, ledger.IsValidation(err))

	// Actor is mandatory
	_, err = registry.OverrideStatus(ctx, inv.ID, ledger.StatusClosed, "", "no actor")
	assert.True(t, ledger.IsValidation(err))

	// Terminal investments are never overridden again
	_, err = registry.OverrideStatus(ctx, inv.ID, ledger.StatusClosed, "ops@warp", "first")
	require.NoError(t, err)
	_, err = registry.OverrideStatus(ctx, inv.ID, ledger.StatusCompleted, "ops@warp", "second")
	assert.ErrorIs(t, err, ledger.ErrTerminalStatus)
}
