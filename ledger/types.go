/*
Package ledger provides the investment capital ledger and profit-accrual engine.

PURPOSE:
  This package contains the domain types and algorithms for tracking capital
  placed by investors, computing monthly profit entries against that capital,
  recording principal withdrawals, and settling accrued profit. The engine
  guarantees that no accounting period is ever processed twice, even under
  retries, crashes, or concurrent triggers.

KEY CONCEPTS IN THIS FILE (types.go):
  - Investment: A capital placement with a monthly profit rate and a maturity
  - InvestmentReturn: An immutable ledger entry for one closed monthly period
  - InvestmentWithdrawal: A permanent reduction of an investment's principal
  - Status: The investment lifecycle (active / completed / closed)

DESIGN PRINCIPLES:
  1. Immutability: Return entries are never recomputed after insertion
  2. Precision: Uses decimal.Decimal to avoid floating-point errors
  3. Determinism: "now" is always an explicit as-of date parameter
  4. Auditability: Status overrides go through an audited operation

USAGE:
  registry := ledger.NewRegistry(store)
  inv, err := registry.Create(ctx, ledger.CreateInvestmentInput{
      InvestorID:       "investor-1",
      StartDate:        ledger.NewDate(2026, time.January, 1),
      DurationMonths:   3,
      ProfitRate:       decimal.NewFromInt(2),
      InitialPrincipal: decimal.NewFromInt(100000),
  })

SEE ALSO:
  - calendar.go: Calendar-aware month arithmetic and period enumeration
  - accrual.go:  The idempotent month-end close batch
  - store.go:    Persistence interface
*/
package ledger

import (
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// IDENTIFIERS
// =============================================================================

type InvestmentID string
type ReturnID string
type WithdrawalID string
type InvestorID string
type OutletID string

// =============================================================================
// INVESTMENT STATUS - The lifecycle state machine
// =============================================================================

// Status is the lifecycle state of an investment.
//
// Legal transitions:
//
//	active --(accrual closes the final period)--> completed
//	active --(withdrawal drains the principal)--> closed
//
// completed and closed are terminal. The generic update path never touches
// status; administrative overrides go through Registry.OverrideStatus which
// records an audit event.
type Status string

const (
	StatusActive    Status = "active"
	StatusCompleted Status = "completed"
	StatusClosed    Status = "closed"
)

// Terminal reports whether no further engine transition can leave this state.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusClosed
}

// Valid reports whether s is a known status value.
func (s Status) Valid() bool {
	switch s {
	case StatusActive, StatusCompleted, StatusClosed:
		return true
	}
	return false
}

// =============================================================================
// INVESTMENT - Capital placement bearing monthly profit
// =============================================================================

type Investment struct {
	ID               InvestmentID
	InvestorID       InvestorID
	OutletID         OutletID // optional; empty means not scoped to an outlet
	Code             string   // unique, e.g. INV-20260201-0001
	StartDate        Date
	DurationMonths   int
	EndDate          Date            // last calendar day covered; derived from start + duration
	ProfitRate       decimal.Decimal // percent per month
	InitialPrincipal decimal.Decimal
	CurrentPrincipal decimal.Decimal
	Status           Status
	LastProfitDate   *Date // latest period end already closed; nil before first accrual
	Note             string
	CreatedBy        string

	// Version is the optimistic concurrency token. Every principal, status or
	// last_profit_date mutation must carry the version it read.
	Version int

	CreatedAt time.Time
	UpdatedAt time.Time
}

// AccrualAnchor returns the date strictly after which the next profit period
// may end: the last closed period end, or the start date before any accrual.
func (inv *Investment) AccrualAnchor() Date {
	if inv.LastProfitDate != nil {
		return *inv.LastProfitDate
	}
	return inv.StartDate
}

// =============================================================================
// INVESTMENT RETURN - Ledger entry for one closed monthly period
// =============================================================================

type ReturnStatus string

const (
	ReturnPending ReturnStatus = "pending"
	ReturnPaid    ReturnStatus = "paid"
)

// InvestmentReturn records the profit computed for one investment for one
// period. PrincipalSnapshot and ProfitAmount are immutable after insertion,
// even if the investment's principal later changes.
type InvestmentReturn struct {
	ID                ReturnID
	InvestmentID      InvestmentID
	PeriodEnd         Date // last calendar day of the closed period
	PrincipalSnapshot decimal.Decimal
	ProfitAmount      decimal.Decimal
	Status            ReturnStatus
	PaidDate          *Date
	CreatedBy         string
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// ProfitFor computes the profit for one period: principal x rate / 100,
// rounded half-up to 2 decimals.
func ProfitFor(principal, ratePercent decimal.Decimal) decimal.Decimal {
	return principal.Mul(ratePercent).Div(decimal.NewFromInt(100)).Round(2)
}

// =============================================================================
// INVESTMENT WITHDRAWAL - Permanent principal reduction
// =============================================================================

type InvestmentWithdrawal struct {
	ID           WithdrawalID
	InvestmentID InvestmentID
	WithdrawDate Date
	Amount       decimal.Decimal // always positive
	Reason       string
	CreatedBy    string
	CreatedAt    time.Time
}

// =============================================================================
// COLLABORATOR RECORDS - Referenced by investments, managed elsewhere
// =============================================================================

type Investor struct {
	ID        InvestorID
	Name      string
	CreatedAt time.Time
}

type Outlet struct {
	ID        OutletID
	Name      string
	CreatedAt time.Time
}

// =============================================================================
// ACCRUAL RUN - Operational record of one batch invocation
// =============================================================================

// AccrualRun records one RunAccrual invocation for operational visibility.
// Runs carry counts, never correctness: the engine's idempotence comes from
// the unique (investment_id, period_end) constraint, not from these rows.
type AccrualRun struct {
	ID             string
	AsOf           Date
	PeriodsCreated int
	PeriodsSkipped int
	Completed      []InvestmentID
	Status         string // running, completed, failed
	Error          string
	StartedAt      time.Time
	CompletedAt    *time.Time
}

// =============================================================================
// AUDIT EVENT - Trail for administrative operations
// =============================================================================

type AuditEvent struct {
	ID           string
	InvestmentID InvestmentID
	Action       string // e.g. "status_override"
	Actor        string
	Detail       string
	CreatedAt    time.Time
}
