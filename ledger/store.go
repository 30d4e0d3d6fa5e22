/*
store.go - Persistence interface for the investment ledger

PURPOSE:
  Defines the storage contract the engine components depend on. The concrete
  implementation lives in store/sqlite; tests use an in-memory SQLite store.

TRANSACTIONAL SCOPE:
  WithTx binds a function to a single database transaction. The accrual engine
  opens one transaction per (investment, period), and the withdrawal processor
  one per withdrawal, so a crash between commits never needs manual repair.

OPTIMISTIC CONCURRENCY:
  UpdateInvestment matches on the version the caller read and returns
  ErrConcurrentModification when stale. This serializes the accrual engine and
  the withdrawal processor per investment without any process-wide lock.

SEE ALSO:
  - store/sqlite/sqlite.go: SQLite implementation
  - accrual.go, withdrawal.go: Transactional callers
*/
package ledger

import (
	"context"

	"github.com/shopspring/decimal"
)

// InvestmentFilter narrows ListInvestments. Zero values mean "no filter".
type InvestmentFilter struct {
	Search     string // matches code or note, case-insensitive substring
	Status     Status
	InvestorID InvestorID
	OutletID   OutletID
	Limit      int // 0 means no limit
	Offset     int
}

// ProfitTotals aggregates return amounts by settlement status.
type ProfitTotals struct {
	Pending decimal.Decimal
	Paid    decimal.Decimal
}

// PortfolioTotals aggregates across all investments.
type PortfolioTotals struct {
	ActiveCount     int
	CompletedCount  int
	ClosedCount     int
	PrincipalAtWork decimal.Decimal // sum of current principal over active investments
	PendingProfit   decimal.Decimal
	PaidProfit      decimal.Decimal
}

// Store is the persistence contract for the investment ledger.
type Store interface {
	// Investors and outlets (collaborator records; referenced by investments)
	SaveInvestor(ctx context.Context, inv Investor) error
	GetInvestor(ctx context.Context, id InvestorID) (*Investor, error)
	ListInvestors(ctx context.Context) ([]Investor, error)
	SaveOutlet(ctx context.Context, o Outlet) error
	GetOutlet(ctx context.Context, id OutletID) (*Outlet, error)
	ListOutlets(ctx context.Context) ([]Outlet, error)

	// Investments
	InsertInvestment(ctx context.Context, inv Investment) error // ErrDuplicateCode on code collision
	GetInvestment(ctx context.Context, id InvestmentID) (*Investment, error)
	// UpdateInvestment writes inv matching on inv.Version and bumps the stored
	// version. Returns ErrConcurrentModification on a stale version and
	// ErrInvestmentNotFound when the row is missing. The initial principal,
	// code and creation metadata are never rewritten.
	UpdateInvestment(ctx context.Context, inv Investment) error
	DeleteInvestment(ctx context.Context, id InvestmentID) error
	ListInvestments(ctx context.Context, f InvestmentFilter) ([]Investment, int, error)
	ListActiveInvestments(ctx context.Context) ([]Investment, error)
	// NextCodeSequence returns the next free sequence number for codes with
	// the given prefix. Concurrent callers may race; InsertInvestment's
	// unique constraint is the arbiter and the registry retries.
	NextCodeSequence(ctx context.Context, prefix string) (int, error)

	// Returns (profit ledger entries)
	InsertReturn(ctx context.Context, r InvestmentReturn) error // ErrDuplicatePeriod on (investment, period_end) collision
	GetReturn(ctx context.Context, id ReturnID) (*InvestmentReturn, error)
	ReturnExists(ctx context.Context, id InvestmentID, periodEnd Date) (bool, error)
	// UpdateReturnSettlement mutates only status and paid_date; snapshot and
	// profit amount are immutable after insertion.
	UpdateReturnSettlement(ctx context.Context, r InvestmentReturn) error
	ListReturns(ctx context.Context, id InvestmentID) ([]InvestmentReturn, error)
	CountReturns(ctx context.Context, id InvestmentID) (int, error)

	// Withdrawals
	InsertWithdrawal(ctx context.Context, w InvestmentWithdrawal) error
	ListWithdrawals(ctx context.Context, id InvestmentID) ([]InvestmentWithdrawal, error)
	CountWithdrawals(ctx context.Context, id InvestmentID) (int, error)

	// Reporting aggregates
	ReturnTotals(ctx context.Context, id InvestmentID) (ProfitTotals, error)
	WithdrawnTotal(ctx context.Context, id InvestmentID) (decimal.Decimal, error)
	Portfolio(ctx context.Context) (PortfolioTotals, error)

	// Operational records
	SaveAccrualRun(ctx context.Context, run AccrualRun) error
	ListAccrualRuns(ctx context.Context, limit int) ([]AccrualRun, error)
	SaveAuditEvent(ctx context.Context, ev AuditEvent) error
	ListAuditEvents(ctx context.Context, id InvestmentID) ([]AuditEvent, error)

	// WithTx executes fn against a store bound to one database transaction.
	// The transaction commits when fn returns nil and rolls back otherwise.
	WithTx(ctx context.Context, fn func(tx Store) error) error
}
