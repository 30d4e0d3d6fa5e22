/*
withdrawal.go - Principal withdrawal processor

PURPOSE:
  Applies principal reductions against an active investment. The withdrawal
  insert and the principal decrement commit in one transaction; draining the
  principal to exactly zero closes the investment. Already-recorded profit
  entries are never touched.

CONCURRENCY:
  The principal update matches on the version read at the start of the
  transaction. If the accrual engine commits a period in between, the update
  fails with ErrConcurrentModification and the whole withdrawal is retried
  against fresh state, so an accrual snapshot can never observe a torn
  withdrawal.
*/
package ledger

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// WithdrawalProcessor applies principal reductions.
type WithdrawalProcessor struct {
	store Store
}

func NewWithdrawalProcessor(store Store) *WithdrawalProcessor {
	return &WithdrawalProcessor{store: store}
}

// WithdrawInput carries one withdrawal request.
type WithdrawInput struct {
	WithdrawDate Date
	Amount       decimal.Decimal
	Reason       string
	CreatedBy    string
}

// Withdraw atomically decrements the investment's principal and records the
// withdrawal. Rejections (unknown investment, non-active status, non-positive
// or excessive amount) leave no trace.
func (p *WithdrawalProcessor) Withdraw(ctx context.Context, id InvestmentID, in WithdrawInput) (*InvestmentWithdrawal, error) {
	if !in.Amount.IsPositive() {
		return nil, &ValidationError{Field: "amount", Reason: "must be positive"}
	}
	if in.WithdrawDate.IsZero() {
		return nil, &ValidationError{Field: "withdraw_date", Reason: "is required"}
	}

	for attempt := 0; attempt < versionRetries; attempt++ {
		var out *InvestmentWithdrawal
		err := p.store.WithTx(ctx, func(tx Store) error {
			inv, err := tx.GetInvestment(ctx, id)
			if err != nil {
				return err
			}
			if inv == nil {
				return ErrInvestmentNotFound
			}
			if inv.Status != StatusActive {
				return &ConflictError{InvestmentID: id, Reason: "investment is not active"}
			}
			if in.Amount.GreaterThan(inv.CurrentPrincipal) {
				return &InsufficientPrincipalError{
					InvestmentID: id,
					Available:    inv.CurrentPrincipal,
					Requested:    in.Amount,
				}
			}

			w := InvestmentWithdrawal{
				ID:           WithdrawalID(uuid.NewString()),
				InvestmentID: id,
				WithdrawDate: in.WithdrawDate,
				Amount:       in.Amount,
				Reason:       in.Reason,
				CreatedBy:    in.CreatedBy,
				CreatedAt:    time.Now().UTC(),
			}
			if err := tx.InsertWithdrawal(ctx, w); err != nil {
				return err
			}

			next := *inv
			next.CurrentPrincipal = inv.CurrentPrincipal.Sub(in.Amount)
			if next.CurrentPrincipal.IsZero() {
				next.Status = StatusClosed
			}
			next.UpdatedAt = time.Now().UTC()
			if err := tx.UpdateInvestment(ctx, next); err != nil {
				return err
			}
			out = &w
			return nil
		})
		if errors.Is(err, ErrConcurrentModification) {
			continue
		}
		if err != nil {
			return nil, err
		}
		return out, nil
	}
	return nil, ErrConcurrentModification
}
