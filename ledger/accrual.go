/*
accrual.go - The idempotent month-end profit accrual batch

PURPOSE:
  Closes every elapsed monthly period for every active investment: snapshots
  the principal, computes the period's profit, inserts the pending return
  entry and advances last_profit_date - all atomically per period.

IDEMPOTENCE:
  Re-invoking RunAccrual with the same or an earlier as-of date produces zero
  additional rows and no state change. Three layers guarantee this:
  1. Periods are enumerated strictly after last_profit_date
  2. The return insert re-checks existence inside the transaction
  3. The unique (investment_id, period_end) constraint is the final arbiter,
     and a violation is swallowed as "already processed"

CRASH SAFETY:
  Each (investment, period) pair commits in its own transaction. A crash
  mid-batch leaves already-closed periods intact; a restarted run resumes
  purely from last_profit_date with no reconciliation step. Cancellation is
  honored between period commits.

CONCURRENCY:
  A concurrent withdrawal bumps the investment's version, which fails this
  period's optimistic update; the period is retried against a fresh read so
  the principal snapshot reflects either all or none of the withdrawal.

SEE ALSO:
  - calendar.go:   Period enumeration
  - withdrawal.go: The competing principal mutator
*/
package ledger

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

// versionRetries bounds retries after a concurrent modification. Each retry
// re-reads the investment, so a single competing writer resolves in one pass.
const versionRetries = 3

// AccrualEngine closes elapsed monthly periods for active investments.
type AccrualEngine struct {
	store Store
}

func NewAccrualEngine(store Store) *AccrualEngine {
	return &AccrualEngine{store: store}
}

// AccrualResult reports one batch run. The counts are operational visibility,
// not correctness: skips are the normal outcome of re-runs.
type AccrualResult struct {
	RunID          string
	AsOf           Date
	PeriodsCreated int
	PeriodsSkipped int
	Completed      []InvestmentID // investments newly matured by this run
}

// RunAccrual closes every monthly period that has elapsed by asOf across all
// active investments. Safe to call repeatedly and concurrently; database
// unavailability aborts the batch and is the scheduler's cue to retry whole.
func (e *AccrualEngine) RunAccrual(ctx context.Context, asOf Date) (*AccrualResult, error) {
	if asOf.IsZero() {
		return nil, &ValidationError{Field: "as_of_date", Reason: "is required"}
	}

	run := AccrualRun{
		ID:        uuid.NewString(),
		AsOf:      asOf,
		Status:    "running",
		StartedAt: time.Now().UTC(),
	}
	if err := e.store.SaveAccrualRun(ctx, run); err != nil {
		return nil, err
	}

	res := &AccrualResult{RunID: run.ID, AsOf: asOf}
	investments, err := e.store.ListActiveInvestments(ctx)
	if err != nil {
		e.failRun(ctx, run, err)
		return nil, err
	}

	for _, inv := range investments {
		// Cancellation is safe here: every closed period has already committed.
		if err := ctx.Err(); err != nil {
			e.failRun(ctx, run, err)
			return nil, err
		}
		created, skipped, completed, err := e.accrueInvestment(ctx, inv.ID, asOf)
		res.PeriodsCreated += created
		res.PeriodsSkipped += skipped
		if completed {
			res.Completed = append(res.Completed, inv.ID)
		}
		if err != nil {
			e.failRun(ctx, run, err)
			return nil, err
		}
	}

	now := time.Now().UTC()
	run.Status = "completed"
	run.PeriodsCreated = res.PeriodsCreated
	run.PeriodsSkipped = res.PeriodsSkipped
	run.Completed = res.Completed
	run.CompletedAt = &now
	if err := e.store.SaveAccrualRun(ctx, run); err != nil {
		return nil, err
	}
	return res, nil
}

func (e *AccrualEngine) failRun(ctx context.Context, run AccrualRun, cause error) {
	now := time.Now().UTC()
	run.Status = "failed"
	run.Error = cause.Error()
	run.CompletedAt = &now
	// Best effort; the batch error is what surfaces.
	_ = e.store.SaveAccrualRun(context.WithoutCancel(ctx), run)
}

// accrueInvestment closes elapsed periods for one investment, oldest first,
// one transaction per period.
func (e *AccrualEngine) accrueInvestment(ctx context.Context, id InvestmentID, asOf Date) (created, skipped int, completed bool, err error) {
	for {
		outcome, err := e.closeNextPeriod(ctx, id, asOf)
		if err != nil {
			return created, skipped, completed, err
		}
		switch {
		case outcome.done:
			return created, skipped, completed, nil
		case outcome.duplicate:
			skipped++
		default:
			created++
		}
		if outcome.matured {
			completed = true
		}
	}
}

type periodOutcome struct {
	done      bool // no elapsed period remains
	duplicate bool // period had already been closed; no row inserted
	matured   bool // this period was the final one; investment completed
}

// closeNextPeriod closes the oldest elapsed period in one transaction,
// retrying on optimistic-version conflicts with a fresh read each time.
func (e *AccrualEngine) closeNextPeriod(ctx context.Context, id InvestmentID, asOf Date) (periodOutcome, error) {
	var out periodOutcome
	for attempt := 0; attempt < versionRetries; attempt++ {
		err := e.store.WithTx(ctx, func(tx Store) error {
			out = periodOutcome{}
			inv, err := tx.GetInvestment(ctx, id)
			if err != nil {
				return err
			}
			if inv == nil {
				return ErrInvestmentNotFound
			}
			if inv.Status != StatusActive {
				out.done = true
				return nil
			}

			ends := elapsedPeriodEnds(inv, asOf)
			if len(ends) == 0 {
				out.done = true
				return nil
			}
			end := ends[0]

			// Defense in depth: the unique constraint would also catch this.
			exists, err := tx.ReturnExists(ctx, id, end)
			if err != nil {
				return err
			}
			if !exists {
				entry := InvestmentReturn{
					ID:                ReturnID(uuid.NewString()),
					InvestmentID:      id,
					PeriodEnd:         end,
					PrincipalSnapshot: inv.CurrentPrincipal,
					ProfitAmount:      ProfitFor(inv.CurrentPrincipal, inv.ProfitRate),
					Status:            ReturnPending,
					CreatedBy:         "system",
					CreatedAt:         time.Now().UTC(),
					UpdatedAt:         time.Now().UTC(),
				}
				err = tx.InsertReturn(ctx, entry)
				if errors.Is(err, ErrDuplicatePeriod) {
					out.duplicate = true
				} else if err != nil {
					return err
				}
			} else {
				out.duplicate = true
			}

			// The pointer advance commits with the insert or not at all.
			next := *inv
			next.LastProfitDate = &end
			if end.Equal(inv.EndDate) {
				next.Status = StatusCompleted
				out.matured = true
			}
			next.UpdatedAt = time.Now().UTC()
			return tx.UpdateInvestment(ctx, next)
		})
		if errors.Is(err, ErrConcurrentModification) {
			continue
		}
		return out, err
	}
	return out, ErrConcurrentModification
}

// elapsedPeriodEnds lists the period ends still to close for this investment:
// month ends strictly after the accrual anchor and at or before both asOf and
// the maturity date. A maturity that falls mid-month closes as a final short
// period ending on the maturity date itself, so date-driven completion always
// fires.
func elapsedPeriodEnds(inv *Investment, asOf Date) []Date {
	anchor := inv.AccrualAnchor()
	limit := MinDate(asOf, inv.EndDate)
	ends := MonthEndsBetween(anchor, limit)
	if !inv.EndDate.IsMonthEnd() && inv.EndDate.BeforeOrEqual(asOf) && inv.EndDate.After(anchor) {
		ends = append(ends, inv.EndDate)
	}
	return ends
}
