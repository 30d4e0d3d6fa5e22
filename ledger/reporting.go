package ledger

import (
	"context"

	"github.com/shopspring/decimal"
)

// Reporting is the read-only aggregation view over the ledger tables. It has
// no invariants of its own: straightforward queries, normal transactional
// isolation, never blocked by a running accrual batch.
type Reporting struct {
	store Store
}

func NewReporting(store Store) *Reporting {
	return &Reporting{store: store}
}

// InvestmentSummary aggregates one investment's ledger activity.
type InvestmentSummary struct {
	Investment      Investment
	Totals          ProfitTotals
	WithdrawnTotal  decimal.Decimal
	ReturnCount     int
	WithdrawalCount int
}

// List returns investments matching the filter plus the unpaginated total.
func (r *Reporting) List(ctx context.Context, f InvestmentFilter) ([]Investment, int, error) {
	if f.Status != "" && !f.Status.Valid() {
		return nil, 0, &ValidationError{Field: "status", Reason: "unknown status"}
	}
	return r.store.ListInvestments(ctx, f)
}

// Summary returns per-investment pending/paid profit and withdrawal totals.
func (r *Reporting) Summary(ctx context.Context, id InvestmentID) (*InvestmentSummary, error) {
	inv, err := r.store.GetInvestment(ctx, id)
	if err != nil {
		return nil, err
	}
	if inv == nil {
		return nil, ErrInvestmentNotFound
	}

	totals, err := r.store.ReturnTotals(ctx, id)
	if err != nil {
		return nil, err
	}
	withdrawn, err := r.store.WithdrawnTotal(ctx, id)
	if err != nil {
		return nil, err
	}
	returns, err := r.store.CountReturns(ctx, id)
	if err != nil {
		return nil, err
	}
	withdrawals, err := r.store.CountWithdrawals(ctx, id)
	if err != nil {
		return nil, err
	}

	return &InvestmentSummary{
		Investment:      *inv,
		Totals:          totals,
		WithdrawnTotal:  withdrawn,
		ReturnCount:     returns,
		WithdrawalCount: withdrawals,
	}, nil
}

// Returns lists the profit entries for one investment, oldest period first.
func (r *Reporting) Returns(ctx context.Context, id InvestmentID) ([]InvestmentReturn, error) {
	return r.store.ListReturns(ctx, id)
}

// Withdrawals lists the principal withdrawals for one investment.
func (r *Reporting) Withdrawals(ctx context.Context, id InvestmentID) ([]InvestmentWithdrawal, error) {
	return r.store.ListWithdrawals(ctx, id)
}

// Portfolio returns cross-investment totals.
func (r *Reporting) Portfolio(ctx context.Context) (PortfolioTotals, error) {
	return r.store.Portfolio(ctx)
}
