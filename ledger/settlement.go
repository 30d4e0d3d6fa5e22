package ledger

import (
	"context"
)

// ReturnSettlement marks accrued profit entries as paid out. Amounts are never
// recomputed here; the entry's snapshot and profit are immutable.
type ReturnSettlement struct {
	store Store
}

func NewReturnSettlement(store Store) *ReturnSettlement {
	return &ReturnSettlement{store: store}
}

// MarkPaid transitions a pending return to paid with the given settlement
// date. Settling an already-paid return fails with AlreadyPaidError and
// mutates nothing.
func (s *ReturnSettlement) MarkPaid(ctx context.Context, id ReturnID, paidOn Date) (*InvestmentReturn, error) {
	if paidOn.IsZero() {
		return nil, &ValidationError{Field: "paid_date", Reason: "is required"}
	}

	var out *InvestmentReturn
	err := s.store.WithTx(ctx, func(tx Store) error {
		entry, err := tx.GetReturn(ctx, id)
		if err != nil {
			return err
		}
		if entry == nil {
			return ErrReturnNotFound
		}
		if entry.Status == ReturnPaid {
			return &AlreadyPaidError{ReturnID: id, PaidDate: entry.PaidDate}
		}

		entry.Status = ReturnPaid
		entry.PaidDate = &paidOn
		if err := tx.UpdateReturnSettlement(ctx, *entry); err != nil {
			return err
		}
		out = entry
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}
