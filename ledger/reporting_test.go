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

func TestReporting_Summary(t *testing.T) {
	// GIVEN: Two closed periods (one paid) and one withdrawal
	// THEN: The summary splits pending/paid profit and totals withdrawals

	store := newTestStore(t)
	inv := newInvestment(t, store, jan1(), 12, "2", "10000")
	engine := ledger.NewAccrualEngine(store)
	ctx := context.Background()

	_, err := engine.RunAccrual(ctx, ledger.NewDate(2026, time.March, 1))
	require.NoError(t, err)

	returns, err := store.ListReturns(ctx, inv.ID)
	require.NoError(t, err)
	require.Len(t, returns, 2)

	settlement := ledger.NewReturnSettlement(store)
	_, err = settlement.MarkPaid(ctx, returns[0].ID, ledger.NewDate(2026, time.February, 5))
	require.NoError(t, err)

	processor := ledger.NewWithdrawalProcessor(store)
	_, err = processor.Withdraw(ctx, inv.ID, ledger.WithdrawInput{
		WithdrawDate: ledger.NewDate(2026, time.March, 10),
		Amount:       decimal.NewFromInt(2500),
	})
	require.NoError(t, err)

	reporting := ledger.NewReporting(store)
	summary, err := reporting.Summary(ctx, inv.ID)
	require.NoError(t, err)

	assertAmount(t, "200", summary.Totals.Paid)
	assertAmount(t, "200", summary.Totals.Pending)
	assertAmount(t, "2500", summary.WithdrawnTotal)
	assert.Equal(t, 2, summary.ReturnCount)
	assert.Equal(t, 1, summary.WithdrawalCount)
	assertAmount(t, "7500", summary.Investment.CurrentPrincipal)
}

func TestReporting_Summary_UnknownInvestment(t *testing.T) {
	store := newTestStore(t)
	reporting := ledger.NewReporting(store)

	_, err := reporting.Summary(context.Background(), "missing")
	assert.ErrorIs(t, err, ledger.ErrInvestmentNotFound)
}

func TestReporting_List_Filters(t *testing.T) {
	store := newTestStore(t)
	reporting := ledger.NewReporting(store)
	registry := ledger.NewRegistry(store)
	ctx := context.Background()

	a := newInvestment(t, store, jan1(), 12, "2", "10000")
	b := newInvestment(t, store, ledger.NewDate(2026, time.February, 1), 12, "2", "5000")
	_, err := registry.OverrideStatus(ctx, b.ID, ledger.StatusClosed, "ops@warp", "exit")
	require.NoError(t, err)

	// Status filter
	active, total, err := reporting.List(ctx, ledger.InvestmentFilter{Status: ledger.StatusActive})
	require.NoError(t, err)
	assert.Equal(t, 1, total)
	require.Len(t, active, 1)
	assert.Equal(t, a.ID, active[0].ID)

	// Code search
	found, _, err := reporting.List(ctx, ledger.InvestmentFilter{Search: "20260201"})
	require.NoError(t, err)
	require.Len(t, found, 1)
	assert.Equal(t, b.ID, found[0].ID)

	// Pagination keeps the unfiltered total
	page, total, err := reporting.List(ctx, ledger.InvestmentFilter{Limit: 1})
	require.NoError(t, err)
	assert.Equal(t, 2, total)
	assert.Len(t, page, 1)

	// Unknown status is a validation error
	_, _, err = reporting.List(ctx, ledger.InvestmentFilter{Status: "frozen"})
	assert.True(t, ledger.IsValidation(err))
}

func TestReporting_Portfolio(t *testing.T) {
	store := newTestStore(t)
	engine := ledger.NewAccrualEngine(store)
	processor := ledger.NewWithdrawalProcessor(store)
	ctx := context.Background()

	newInvestment(t, store, jan1(), 12, "2", "10000")
	drained := newInvestment(t, store, jan1(), 12, "2", "5000")
	_, err := processor.Withdraw(ctx, drained.ID, ledger.WithdrawInput{
		WithdrawDate: ledger.NewDate(2026, time.January, 10),
		Amount:       decimal.NewFromInt(5000),
	})
	require.NoError(t, err)

	_, err = engine.RunAccrual(ctx, ledger.NewDate(2026, time.February, 1))
	require.NoError(t, err)

	reporting := ledger.NewReporting(store)
	totals, err := reporting.Portfolio(ctx)
	require.NoError(t, err)

	assert.Equal(t, 1, totals.ActiveCount)
	assert.Equal(t, 1, totals.ClosedCount)
	assert.Equal(t, 0, totals.CompletedCount)
	assertAmount(t, "10000", totals.PrincipalAtWork)
	assertAmount(t, "200", totals.PendingProfit)
	assert.True(t, totals.PaidProfit.IsZero())
}
