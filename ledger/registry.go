/*
registry.go - Investment lifecycle registry

PURPOSE:
  Creates, updates and retires Investment records. Owns code generation and
  maturity-date computation. Principal fields are never editable here:
  principal changes flow only through the WithdrawalProcessor, and status
  changes only through the accrual engine or the audited override.

CODE GENERATION:
  Codes are INV-YYYYMMDD-NNNN, a date prefix plus a per-day sequence. The
  sequence read and the insert are not atomic, so a concurrent creator can
  steal a number; the unique constraint on code arbitrates and the registry
  retries with a fresh sequence.

SEE ALSO:
  - calendar.go: MaturityDate
  - withdrawal.go: The only principal mutator
*/
package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

const codeRetries = 3

// Registry creates, updates and retires investments.
type Registry struct {
	store Store
}

func NewRegistry(store Store) *Registry {
	return &Registry{store: store}
}

// =============================================================================
// CREATE
// =============================================================================

// CreateInvestmentInput carries the creation-time fields. InitialPrincipal is
// a trusted input: there is no separate funding ledger entry.
type CreateInvestmentInput struct {
	InvestorID       InvestorID
	OutletID         OutletID // optional
	StartDate        Date
	DurationMonths   int
	ProfitRate       decimal.Decimal // percent per month
	InitialPrincipal decimal.Decimal
	Note             string
	CreatedBy        string
}

// Create validates the input, generates a unique code and inserts the
// investment as active with the full principal at work.
func (r *Registry) Create(ctx context.Context, in CreateInvestmentInput) (*Investment, error) {
	if err := r.validateCreate(ctx, in); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	inv := Investment{
		ID:               InvestmentID(uuid.NewString()),
		InvestorID:       in.InvestorID,
		OutletID:         in.OutletID,
		StartDate:        in.StartDate,
		DurationMonths:   in.DurationMonths,
		EndDate:          MaturityDate(in.StartDate, in.DurationMonths),
		ProfitRate:       in.ProfitRate,
		InitialPrincipal: in.InitialPrincipal,
		CurrentPrincipal: in.InitialPrincipal,
		Status:           StatusActive,
		Note:             in.Note,
		CreatedBy:        in.CreatedBy,
		Version:          1,
		CreatedAt:        now,
		UpdatedAt:        now,
	}

	prefix := fmt.Sprintf("INV-%s-", in.StartDate.Time.Format("20060102"))
	for attempt := 0; attempt < codeRetries; attempt++ {
		seq, err := r.store.NextCodeSequence(ctx, prefix)
		if err != nil {
			return nil, err
		}
		inv.Code = fmt.Sprintf("%s%04d", prefix, seq)

		err = r.store.InsertInvestment(ctx, inv)
		if errors.Is(err, ErrDuplicateCode) {
			continue // Lost the race for this sequence number; take the next.
		}
		if err != nil {
			return nil, err
		}
		return &inv, nil
	}
	return nil, ErrDuplicateCode
}

func (r *Registry) validateCreate(ctx context.Context, in CreateInvestmentInput) error {
	if in.InvestorID == "" {
		return &ValidationError{Field: "investor_id", Reason: "is required"}
	}
	if in.StartDate.IsZero() {
		return &ValidationError{Field: "start_date", Reason: "is required"}
	}
	if in.DurationMonths < 1 {
		return &ValidationError{Field: "duration_months", Reason: "must be at least 1"}
	}
	if in.ProfitRate.IsNegative() {
		return &ValidationError{Field: "profit_rate", Reason: "must not be negative"}
	}
	if in.InitialPrincipal.IsNegative() {
		return &ValidationError{Field: "initial_principal", Reason: "must not be negative"}
	}

	investor, err := r.store.GetInvestor(ctx, in.InvestorID)
	if err != nil {
		return err
	}
	if investor == nil {
		return &ValidationError{Field: "investor_id", Reason: "unknown investor"}
	}
	if in.OutletID != "" {
		outlet, err := r.store.GetOutlet(ctx, in.OutletID)
		if err != nil {
			return err
		}
		if outlet == nil {
			return &ValidationError{Field: "outlet_id", Reason: "unknown outlet"}
		}
	}
	return nil
}

// =============================================================================
// UPDATE
// =============================================================================

// UpdateInvestmentInput patches an investment. Nil fields are left unchanged.
// There are deliberately no principal or status fields here.
type UpdateInvestmentInput struct {
	InvestorID     *InvestorID
	OutletID       *OutletID // pointer to empty string clears the outlet
	StartDate      *Date
	DurationMonths *int
	ProfitRate     *decimal.Decimal
	Note           *string
}

func (in UpdateInvestmentInput) shiftsPeriods() bool {
	return in.StartDate != nil || in.DurationMonths != nil
}

// Update applies the patch, recomputing the maturity date when the start date
// or duration changes. Edits that would retroactively shift period boundaries
// are rejected with a ConflictError once any profit entry exists.
func (r *Registry) Update(ctx context.Context, id InvestmentID, in UpdateInvestmentInput) (*Investment, error) {
	inv, err := r.store.GetInvestment(ctx, id)
	if err != nil {
		return nil, err
	}
	if inv == nil {
		return nil, ErrInvestmentNotFound
	}

	if in.shiftsPeriods() {
		n, err := r.store.CountReturns(ctx, id)
		if err != nil {
			return nil, err
		}
		if n > 0 {
			return nil, &ConflictError{
				InvestmentID: id,
				Reason:       "period boundaries are fixed once profit has accrued",
			}
		}
	}

	if in.InvestorID != nil {
		investor, err := r.store.GetInvestor(ctx, *in.InvestorID)
		if err != nil {
			return nil, err
		}
		if investor == nil {
			return nil, &ValidationError{Field: "investor_id", Reason: "unknown investor"}
		}
		inv.InvestorID = *in.InvestorID
	}
	if in.OutletID != nil {
		if *in.OutletID != "" {
			outlet, err := r.store.GetOutlet(ctx, *in.OutletID)
			if err != nil {
				return nil, err
			}
			if outlet == nil {
				return nil, &ValidationError{Field: "outlet_id", Reason: "unknown outlet"}
			}
		}
		inv.OutletID = *in.OutletID
	}
	if in.StartDate != nil {
		if in.StartDate.IsZero() {
			return nil, &ValidationError{Field: "start_date", Reason: "is required"}
		}
		inv.StartDate = *in.StartDate
	}
	if in.DurationMonths != nil {
		if *in.DurationMonths < 1 {
			return nil, &ValidationError{Field: "duration_months", Reason: "must be at least 1"}
		}
		inv.DurationMonths = *in.DurationMonths
	}
	if in.ProfitRate != nil {
		if in.ProfitRate.IsNegative() {
			return nil, &ValidationError{Field: "profit_rate", Reason: "must not be negative"}
		}
		inv.ProfitRate = *in.ProfitRate
	}
	if in.Note != nil {
		inv.Note = *in.Note
	}
	if in.shiftsPeriods() {
		inv.EndDate = MaturityDate(inv.StartDate, inv.DurationMonths)
	}
	inv.UpdatedAt = time.Now().UTC()

	if err := r.store.UpdateInvestment(ctx, *inv); err != nil {
		return nil, err
	}
	inv.Version++
	return inv, nil
}

// =============================================================================
// DELETE
// =============================================================================

// Delete removes an investment that has no ledger history. Once any return or
// withdrawal exists, the record must be retained.
func (r *Registry) Delete(ctx context.Context, id InvestmentID) error {
	inv, err := r.store.GetInvestment(ctx, id)
	if err != nil {
		return err
	}
	if inv == nil {
		return ErrInvestmentNotFound
	}

	returns, err := r.store.CountReturns(ctx, id)
	if err != nil {
		return err
	}
	if returns > 0 {
		return &ConflictError{InvestmentID: id, Reason: "profit entries exist"}
	}
	withdrawals, err := r.store.CountWithdrawals(ctx, id)
	if err != nil {
		return err
	}
	if withdrawals > 0 {
		return &ConflictError{InvestmentID: id, Reason: "withdrawals exist"}
	}

	return r.store.DeleteInvestment(ctx, id)
}

// =============================================================================
// STATUS OVERRIDE - Audited administrative escape hatch
// =============================================================================

// OverrideStatus forces an active investment into a terminal status, recording
// who did it and why. It never resurrects a completed or closed investment,
// and it is the only path that sets status outside the two engine transitions.
func (r *Registry) OverrideStatus(ctx context.Context, id InvestmentID, to Status, actor, reason string) (*Investment, error) {
	if !to.Valid() {
		return nil, &ValidationError{Field: "status", Reason: "unknown status"}
	}
	if actor == "" {
		return nil, &ValidationError{Field: "actor", Reason: "is required"}
	}
	if !to.Terminal() {
		return nil, &ValidationError{Field: "status", Reason: "override may only force a terminal status"}
	}

	var out *Investment
	err := r.store.WithTx(ctx, func(tx Store) error {
		inv, err := tx.GetInvestment(ctx, id)
		if err != nil {
			return err
		}
		if inv == nil {
			return ErrInvestmentNotFound
		}
		if inv.Status.Terminal() {
			return ErrTerminalStatus
		}

		prev := inv.Status
		inv.Status = to
		inv.UpdatedAt = time.Now().UTC()
		if err := tx.UpdateInvestment(ctx, *inv); err != nil {
			return err
		}
		inv.Version++

		ev := AuditEvent{
			ID:           uuid.NewString(),
			InvestmentID: id,
			Action:       "status_override",
			Actor:        actor,
			Detail:       fmt.Sprintf("%s -> %s: %s", prev, to, reason),
			CreatedAt:    time.Now().UTC(),
		}
		if err := tx.SaveAuditEvent(ctx, ev); err != nil {
			return err
		}
		out = inv
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Get returns one investment.
func (r *Registry) Get(ctx context.Context, id InvestmentID) (*Investment, error) {
	inv, err := r.store.GetInvestment(ctx, id)
	if err != nil {
		return nil, err
	}
	if inv == nil {
		return nil, ErrInvestmentNotFound
	}
	return inv, nil
}
