/*
Package sqlite provides a SQLite-backed implementation of ledger.Store.

PURPOSE:
  Implements the persistence contract of the investment ledger using SQLite.
  In production, the same patterns apply to PostgreSQL - only minor SQL
  dialect differences.

KEY TABLES:
  investors, outlets:        Collaborator records referenced by investments
  investments:               Capital placements with optimistic version column
  investment_returns:        Immutable monthly profit entries
  investment_withdrawals:    Principal reductions
  accrual_runs:              Operational record per batch invocation
  audit_events:              Trail for administrative overrides

CONSTRAINTS:
  idx_returns_period enforces at most one return per (investment, period_end):
  the idempotency backstop of the accrual engine. The unique code index
  arbitrates concurrent code generation.

OPTIMISTIC CONCURRENCY:
  UPDATE ... WHERE id = ? AND version = ? serializes the accrual engine and
  the withdrawal processor per investment. A stale version surfaces as
  ledger.ErrConcurrentModification; callers retry with a fresh read.

WAL MODE:
  SQLite is opened with WAL (Write-Ahead Logging) for better concurrency:
  multiple readers don't block, a single writer at a time, better crash
  recovery.

USAGE:
  store, err := sqlite.New("./data/investments.db")
  if err != nil {
      log.Fatal(err)
  }
  defer store.Close()

MIGRATION:
  Schema is auto-migrated on New(). For production, use a proper migration
  tool (golang-migrate, goose) with versioned migrations.

SEE ALSO:
  - ledger/store.go: Interface definition
  - ledger/accrual.go: The transactional caller
*/
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"

	"github.com/warp/investment-engine/ledger"
)

// Store implements ledger.Store using SQLite.
type Store struct {
	db *sql.DB
	mu sync.Mutex
}

// New creates a new SQLite store with the given database path.
// Use ":memory:" for an in-memory database.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// A single connection keeps :memory: databases coherent and sidesteps
	// SQLITE_BUSY between the pool's writers.
	db.SetMaxOpenConns(1)

	store := &Store{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return store, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// migrate creates the database schema.
func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS investors (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		created_at TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS outlets (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		created_at TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS investments (
		id TEXT PRIMARY KEY,
		investor_id TEXT NOT NULL REFERENCES investors(id),
		outlet_id TEXT REFERENCES outlets(id),
		code TEXT NOT NULL,
		start_date TEXT NOT NULL,
		duration_months INTEGER NOT NULL,
		end_date TEXT NOT NULL,
		profit_rate TEXT NOT NULL,
		initial_principal TEXT NOT NULL,
		current_principal TEXT NOT NULL,
		status TEXT NOT NULL DEFAULT 'active',
		last_profit_date TEXT,
		note TEXT,
		created_by TEXT,
		version INTEGER NOT NULL DEFAULT 1,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);

	CREATE UNIQUE INDEX IF NOT EXISTS idx_investments_code
		ON investments(code);
	CREATE INDEX IF NOT EXISTS idx_investments_investor
		ON investments(investor_id);
	CREATE INDEX IF NOT EXISTS idx_investments_outlet
		ON investments(outlet_id) WHERE outlet_id IS NOT NULL;
	CREATE INDEX IF NOT EXISTS idx_investments_status
		ON investments(status);

	CREATE TABLE IF NOT EXISTS investment_returns (
		id TEXT PRIMARY KEY,
		investment_id TEXT NOT NULL REFERENCES investments(id),
		period_end TEXT NOT NULL,
		principal_snapshot TEXT NOT NULL,
		profit_amount TEXT NOT NULL,
		status TEXT NOT NULL DEFAULT 'pending',
		paid_date TEXT,
		created_by TEXT,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);

	-- CRITICAL: at most one profit entry per investment per period.
	-- This is the idempotency backstop of the accrual engine.
	CREATE UNIQUE INDEX IF NOT EXISTS idx_returns_period
		ON investment_returns(investment_id, period_end);
	CREATE INDEX IF NOT EXISTS idx_returns_status
		ON investment_returns(status);

	CREATE TABLE IF NOT EXISTS investment_withdrawals (
		id TEXT PRIMARY KEY,
		investment_id TEXT NOT NULL REFERENCES investments(id),
		withdraw_date TEXT NOT NULL,
		amount TEXT NOT NULL,
		reason TEXT,
		created_by TEXT,
		created_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_withdrawals_investment
		ON investment_withdrawals(investment_id);

	CREATE TABLE IF NOT EXISTS accrual_runs (
		id TEXT PRIMARY KEY,
		as_of TEXT NOT NULL,
		periods_created INTEGER NOT NULL DEFAULT 0,
		periods_skipped INTEGER NOT NULL DEFAULT 0,
		completed_json TEXT,
		status TEXT NOT NULL DEFAULT 'running',
		error TEXT,
		started_at TEXT NOT NULL,
		completed_at TEXT
	);

	CREATE INDEX IF NOT EXISTS idx_accrual_runs_as_of
		ON accrual_runs(as_of);

	CREATE TABLE IF NOT EXISTS audit_events (
		id TEXT PRIMARY KEY,
		investment_id TEXT NOT NULL,
		action TEXT NOT NULL,
		actor TEXT NOT NULL,
		detail TEXT,
		created_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_audit_events_investment
		ON audit_events(investment_id);
	`

	_, err := s.db.Exec(schema)
	return err
}

// dbtx is satisfied by both *sql.DB and *sql.Tx so the same helpers serve
// plain calls and transactional ones.
type dbtx interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// =============================================================================
// TRANSACTIONAL SCOPE
// =============================================================================

// WithTx executes fn against a store bound to one database transaction.
func (s *Store) WithTx(ctx context.Context, fn func(tx ledger.Store) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer sqlTx.Rollback()

	if err := fn(&txStore{q: sqlTx}); err != nil {
		return err
	}
	return sqlTx.Commit()
}

// txStore routes every call through the open transaction. Nested WithTx is
// flattened into the current transaction.
type txStore struct {
	q *sql.Tx
}

func (ts *txStore) WithTx(ctx context.Context, fn func(tx ledger.Store) error) error {
	return fn(ts)
}

// =============================================================================
// INVESTORS / OUTLETS
// =============================================================================

func (s *Store) SaveInvestor(ctx context.Context, inv ledger.Investor) error {
	return saveInvestor(ctx, s.db, inv)
}
func (ts *txStore) SaveInvestor(ctx context.Context, inv ledger.Investor) error {
	return saveInvestor(ctx, ts.q, inv)
}

func saveInvestor(ctx context.Context, q dbtx, inv ledger.Investor) error {
	query := `
		INSERT INTO investors (id, name, created_at)
		VALUES (?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET name = excluded.name
	`
	_, err := q.ExecContext(ctx, query, inv.ID, inv.Name, timestamp(inv.CreatedAt))
	return err
}

func (s *Store) GetInvestor(ctx context.Context, id ledger.InvestorID) (*ledger.Investor, error) {
	return getInvestor(ctx, s.db, id)
}
func (ts *txStore) GetInvestor(ctx context.Context, id ledger.InvestorID) (*ledger.Investor, error) {
	return getInvestor(ctx, ts.q, id)
}

func getInvestor(ctx context.Context, q dbtx, id ledger.InvestorID) (*ledger.Investor, error) {
	var inv ledger.Investor
	var createdAt string
	err := q.QueryRowContext(ctx,
		"SELECT id, name, created_at FROM investors WHERE id = ?", id,
	).Scan(&inv.ID, &inv.Name, &createdAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	inv.CreatedAt = parseTimestamp(createdAt)
	return &inv, nil
}

func (s *Store) ListInvestors(ctx context.Context) ([]ledger.Investor, error) {
	return listInvestors(ctx, s.db)
}
func (ts *txStore) ListInvestors(ctx context.Context) ([]ledger.Investor, error) {
	return listInvestors(ctx, ts.q)
}

func listInvestors(ctx context.Context, q dbtx) ([]ledger.Investor, error) {
	rows, err := q.QueryContext(ctx, "SELECT id, name, created_at FROM investors ORDER BY name")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var investors []ledger.Investor
	for rows.Next() {
		var inv ledger.Investor
		var createdAt string
		if err := rows.Scan(&inv.ID, &inv.Name, &createdAt); err != nil {
			return nil, err
		}
		inv.CreatedAt = parseTimestamp(createdAt)
		investors = append(investors, inv)
	}
	return investors, rows.Err()
}

func (s *Store) SaveOutlet(ctx context.Context, o ledger.Outlet) error {
	return saveOutlet(ctx, s.db, o)
}
func (ts *txStore) SaveOutlet(ctx context.Context, o ledger.Outlet) error {
	return saveOutlet(ctx, ts.q, o)
}

func saveOutlet(ctx context.Context, q dbtx, o ledger.Outlet) error {
	query := `
		INSERT INTO outlets (id, name, created_at)
		VALUES (?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET name = excluded.name
	`
	_, err := q.ExecContext(ctx, query, o.ID, o.Name, timestamp(o.CreatedAt))
	return err
}

func (s *Store) GetOutlet(ctx context.Context, id ledger.OutletID) (*ledger.Outlet, error) {
	return getOutlet(ctx, s.db, id)
}
func (ts *txStore) GetOutlet(ctx context.Context, id ledger.OutletID) (*ledger.Outlet, error) {
	return getOutlet(ctx, ts.q, id)
}

func getOutlet(ctx context.Context, q dbtx, id ledger.OutletID) (*ledger.Outlet, error) {
	var o ledger.Outlet
	var createdAt string
	err := q.QueryRowContext(ctx,
		"SELECT id, name, created_at FROM outlets WHERE id = ?", id,
	).Scan(&o.ID, &o.Name, &createdAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	o.CreatedAt = parseTimestamp(createdAt)
	return &o, nil
}

func (s *Store) ListOutlets(ctx context.Context) ([]ledger.Outlet, error) {
	return listOutlets(ctx, s.db)
}
func (ts *txStore) ListOutlets(ctx context.Context) ([]ledger.Outlet, error) {
	return listOutlets(ctx, ts.q)
}

func listOutlets(ctx context.Context, q dbtx) ([]ledger.Outlet, error) {
	rows, err := q.QueryContext(ctx, "SELECT id, name, created_at FROM outlets ORDER BY name")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var outlets []ledger.Outlet
	for rows.Next() {
		var o ledger.Outlet
		var createdAt string
		if err := rows.Scan(&o.ID, &o.Name, &createdAt); err != nil {
			return nil, err
		}
		o.CreatedAt = parseTimestamp(createdAt)
		outlets = append(outlets, o)
	}
	return outlets, rows.Err()
}

// =============================================================================
// INVESTMENTS
// =============================================================================

const investmentColumns = `id, investor_id, outlet_id, code, start_date, duration_months,
	end_date, profit_rate, initial_principal, current_principal, status,
	last_profit_date, note, created_by, version, created_at, updated_at`

func (s *Store) InsertInvestment(ctx context.Context, inv ledger.Investment) error {
	return insertInvestment(ctx, s.db, inv)
}
func (ts *txStore) InsertInvestment(ctx context.Context, inv ledger.Investment) error {
	return insertInvestment(ctx, ts.q, inv)
}

func insertInvestment(ctx context.Context, q dbtx, inv ledger.Investment) error {
	query := `
		INSERT INTO investments (` + investmentColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err := q.ExecContext(ctx, query,
		inv.ID,
		inv.InvestorID,
		nullString(string(inv.OutletID)),
		inv.Code,
		inv.StartDate.String(),
		inv.DurationMonths,
		inv.EndDate.String(),
		inv.ProfitRate.String(),
		inv.InitialPrincipal.String(),
		inv.CurrentPrincipal.String(),
		inv.Status,
		nullDate(inv.LastProfitDate),
		inv.Note,
		inv.CreatedBy,
		inv.Version,
		timestamp(inv.CreatedAt),
		timestamp(inv.UpdatedAt),
	)
	if err != nil {
		if isUniqueConstraintError(err) {
			return ledger.ErrDuplicateCode
		}
		return fmt.Errorf("failed to insert investment: %w", err)
	}
	return nil
}

func (s *Store) GetInvestment(ctx context.Context, id ledger.InvestmentID) (*ledger.Investment, error) {
	return getInvestment(ctx, s.db, id)
}
func (ts *txStore) GetInvestment(ctx context.Context, id ledger.InvestmentID) (*ledger.Investment, error) {
	return getInvestment(ctx, ts.q, id)
}

func getInvestment(ctx context.Context, q dbtx, id ledger.InvestmentID) (*ledger.Investment, error) {
	rows, err := q.QueryContext(ctx,
		"SELECT "+investmentColumns+" FROM investments WHERE id = ?", id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	if !rows.Next() {
		return nil, rows.Err()
	}
	inv, err := scanInvestment(rows)
	if err != nil {
		return nil, err
	}
	return &inv, nil
}

func (s *Store) UpdateInvestment(ctx context.Context, inv ledger.Investment) error {
	return updateInvestment(ctx, s.db, inv)
}
func (ts *txStore) UpdateInvestment(ctx context.Context, inv ledger.Investment) error {
	return updateInvestment(ctx, ts.q, inv)
}

// updateInvestment matches on the version the caller read and bumps it.
// Initial principal, code and creation metadata are immutable by omission.
func updateInvestment(ctx context.Context, q dbtx, inv ledger.Investment) error {
	query := `
		UPDATE investments SET
			investor_id = ?,
			outlet_id = ?,
			start_date = ?,
			duration_months = ?,
			end_date = ?,
			profit_rate = ?,
			current_principal = ?,
			status = ?,
			last_profit_date = ?,
			note = ?,
			version = version + 1,
			updated_at = ?
		WHERE id = ? AND version = ?
	`
	res, err := q.ExecContext(ctx, query,
		inv.InvestorID,
		nullString(string(inv.OutletID)),
		inv.StartDate.String(),
		inv.DurationMonths,
		inv.EndDate.String(),
		inv.ProfitRate.String(),
		inv.CurrentPrincipal.String(),
		inv.Status,
		nullDate(inv.LastProfitDate),
		inv.Note,
		timestamp(inv.UpdatedAt),
		inv.ID,
		inv.Version,
	)
	if err != nil {
		return fmt.Errorf("failed to update investment: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		// Distinguish a missing row from a stale version.
		existing, err := getInvestment(ctx, q, inv.ID)
		if err != nil {
			return err
		}
		if existing == nil {
			return ledger.ErrInvestmentNotFound
		}
		return ledger.ErrConcurrentModification
	}
	return nil
}

func (s *Store) DeleteInvestment(ctx context.Context, id ledger.InvestmentID) error {
	return deleteInvestment(ctx, s.db, id)
}
func (ts *txStore) DeleteInvestment(ctx context.Context, id ledger.InvestmentID) error {
	return deleteInvestment(ctx, ts.q, id)
}

func deleteInvestment(ctx context.Context, q dbtx, id ledger.InvestmentID) error {
	res, err := q.ExecContext(ctx, "DELETE FROM investments WHERE id = ?", id)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ledger.ErrInvestmentNotFound
	}
	return nil
}

func (s *Store) ListInvestments(ctx context.Context, f ledger.InvestmentFilter) ([]ledger.Investment, int, error) {
	return listInvestments(ctx, s.db, f)
}
func (ts *txStore) ListInvestments(ctx context.Context, f ledger.InvestmentFilter) ([]ledger.Investment, int, error) {
	return listInvestments(ctx, ts.q, f)
}

func listInvestments(ctx context.Context, q dbtx, f ledger.InvestmentFilter) ([]ledger.Investment, int, error) {
	var where []string
	var args []any

	if f.Search != "" {
		where = append(where, "(code LIKE ? OR note LIKE ?)")
		pattern := "%" + f.Search + "%"
		args = append(args, pattern, pattern)
	}
	if f.Status != "" {
		where = append(where, "status = ?")
		args = append(args, f.Status)
	}
	if f.InvestorID != "" {
		where = append(where, "investor_id = ?")
		args = append(args, f.InvestorID)
	}
	if f.OutletID != "" {
		where = append(where, "outlet_id = ?")
		args = append(args, f.OutletID)
	}

	clause := ""
	if len(where) > 0 {
		clause = " WHERE " + strings.Join(where, " AND ")
	}

	var total int
	if err := q.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM investments"+clause, args...,
	).Scan(&total); err != nil {
		return nil, 0, err
	}

	query := "SELECT " + investmentColumns + " FROM investments" + clause +
		" ORDER BY start_date DESC, code DESC"
	if f.Limit > 0 {
		query += " LIMIT ? OFFSET ?"
		args = append(args, f.Limit, f.Offset)
	}

	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var investments []ledger.Investment
	for rows.Next() {
		inv, err := scanInvestment(rows)
		if err != nil {
			return nil, 0, err
		}
		investments = append(investments, inv)
	}
	return investments, total, rows.Err()
}

func (s *Store) ListActiveInvestments(ctx context.Context) ([]ledger.Investment, error) {
	return listActiveInvestments(ctx, s.db)
}
func (ts *txStore) ListActiveInvestments(ctx context.Context) ([]ledger.Investment, error) {
	return listActiveInvestments(ctx, ts.q)
}

func listActiveInvestments(ctx context.Context, q dbtx) ([]ledger.Investment, error) {
	rows, err := q.QueryContext(ctx,
		"SELECT "+investmentColumns+" FROM investments WHERE status = ? ORDER BY code",
		ledger.StatusActive)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var investments []ledger.Investment
	for rows.Next() {
		inv, err := scanInvestment(rows)
		if err != nil {
			return nil, err
		}
		investments = append(investments, inv)
	}
	return investments, rows.Err()
}

func (s *Store) NextCodeSequence(ctx context.Context, prefix string) (int, error) {
	return nextCodeSequence(ctx, s.db, prefix)
}
func (ts *txStore) NextCodeSequence(ctx context.Context, prefix string) (int, error) {
	return nextCodeSequence(ctx, ts.q, prefix)
}

func nextCodeSequence(ctx context.Context, q dbtx, prefix string) (int, error) {
	var max int
	err := q.QueryRowContext(ctx,
		"SELECT COALESCE(MAX(CAST(substr(code, ?) AS INTEGER)), 0) FROM investments WHERE code LIKE ?",
		len(prefix)+1, prefix+"%",
	).Scan(&max)
	if err != nil {
		return 0, err
	}
	return max + 1, nil
}

func scanInvestment(rows *sql.Rows) (ledger.Investment, error) {
	var (
		inv            ledger.Investment
		outletID       sql.NullString
		startDate      string
		endDate        string
		profitRate     string
		initial        string
		current        string
		lastProfitDate sql.NullString
		note           sql.NullString
		createdBy      sql.NullString
		createdAt      string
		updatedAt      string
	)
	err := rows.Scan(
		&inv.ID, &inv.InvestorID, &outletID, &inv.Code, &startDate,
		&inv.DurationMonths, &endDate, &profitRate, &initial, &current,
		&inv.Status, &lastProfitDate, &note, &createdBy, &inv.Version,
		&createdAt, &updatedAt,
	)
	if err != nil {
		return inv, fmt.Errorf("failed to scan investment: %w", err)
	}

	inv.OutletID = ledger.OutletID(outletID.String)
	inv.StartDate, _ = ledger.ParseDate(startDate)
	inv.EndDate, _ = ledger.ParseDate(endDate)
	inv.ProfitRate = mustDecimal(profitRate)
	inv.InitialPrincipal = mustDecimal(initial)
	inv.CurrentPrincipal = mustDecimal(current)
	if lastProfitDate.Valid {
		d, _ := ledger.ParseDate(lastProfitDate.String)
		inv.LastProfitDate = &d
	}
	inv.Note = note.String
	inv.CreatedBy = createdBy.String
	inv.CreatedAt = parseTimestamp(createdAt)
	inv.UpdatedAt = parseTimestamp(updatedAt)
	return inv, nil
}

// =============================================================================
// INVESTMENT RETURNS
// =============================================================================

const returnColumns = `id, investment_id, period_end, principal_snapshot, profit_amount,
	status, paid_date, created_by, created_at, updated_at`

func (s *Store) InsertReturn(ctx context.Context, r ledger.InvestmentReturn) error {
	return insertReturn(ctx, s.db, r)
}
func (ts *txStore) InsertReturn(ctx context.Context, r ledger.InvestmentReturn) error {
	return insertReturn(ctx, ts.q, r)
}

func insertReturn(ctx context.Context, q dbtx, r ledger.InvestmentReturn) error {
	query := `
		INSERT INTO investment_returns (` + returnColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err := q.ExecContext(ctx, query,
		r.ID,
		r.InvestmentID,
		r.PeriodEnd.String(),
		r.PrincipalSnapshot.String(),
		r.ProfitAmount.String(),
		r.Status,
		nullDate(r.PaidDate),
		r.CreatedBy,
		timestamp(r.CreatedAt),
		timestamp(r.UpdatedAt),
	)
	if err != nil {
		if isUniqueConstraintError(err) {
			return ledger.ErrDuplicatePeriod
		}
		return fmt.Errorf("failed to insert return: %w", err)
	}
	return nil
}

func (s *Store) GetReturn(ctx context.Context, id ledger.ReturnID) (*ledger.InvestmentReturn, error) {
	return getReturn(ctx, s.db, id)
}
func (ts *txStore) GetReturn(ctx context.Context, id ledger.ReturnID) (*ledger.InvestmentReturn, error) {
	return getReturn(ctx, ts.q, id)
}

func getReturn(ctx context.Context, q dbtx, id ledger.ReturnID) (*ledger.InvestmentReturn, error) {
	rows, err := q.QueryContext(ctx,
		"SELECT "+returnColumns+" FROM investment_returns WHERE id = ?", id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	if !rows.Next() {
		return nil, rows.Err()
	}
	r, err := scanReturn(rows)
	if err != nil {
		return nil, err
	}
	return &r, nil
}

func (s *Store) ReturnExists(ctx context.Context, id ledger.InvestmentID, periodEnd ledger.Date) (bool, error) {
	return returnExists(ctx, s.db, id, periodEnd)
}
func (ts *txStore) ReturnExists(ctx context.Context, id ledger.InvestmentID, periodEnd ledger.Date) (bool, error) {
	return returnExists(ctx, ts.q, id, periodEnd)
}

func returnExists(ctx context.Context, q dbtx, id ledger.InvestmentID, periodEnd ledger.Date) (bool, error) {
	var count int
	err := q.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM investment_returns WHERE investment_id = ? AND period_end = ?",
		id, periodEnd.String(),
	).Scan(&count)
	return count > 0, err
}

func (s *Store) UpdateReturnSettlement(ctx context.Context, r ledger.InvestmentReturn) error {
	return updateReturnSettlement(ctx, s.db, r)
}
func (ts *txStore) UpdateReturnSettlement(ctx context.Context, r ledger.InvestmentReturn) error {
	return updateReturnSettlement(ctx, ts.q, r)
}

// updateReturnSettlement touches only status and paid_date; snapshot and
// profit amount stay as inserted.
func updateReturnSettlement(ctx context.Context, q dbtx, r ledger.InvestmentReturn) error {
	res, err := q.ExecContext(ctx,
		"UPDATE investment_returns SET status = ?, paid_date = ?, updated_at = ? WHERE id = ?",
		r.Status, nullDate(r.PaidDate), timestamp(time.Now().UTC()), r.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update return: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ledger.ErrReturnNotFound
	}
	return nil
}

func (s *Store) ListReturns(ctx context.Context, id ledger.InvestmentID) ([]ledger.InvestmentReturn, error) {
	return listReturns(ctx, s.db, id)
}
func (ts *txStore) ListReturns(ctx context.Context, id ledger.InvestmentID) ([]ledger.InvestmentReturn, error) {
	return listReturns(ctx, ts.q, id)
}

func listReturns(ctx context.Context, q dbtx, id ledger.InvestmentID) ([]ledger.InvestmentReturn, error) {
	rows, err := q.QueryContext(ctx,
		"SELECT "+returnColumns+" FROM investment_returns WHERE investment_id = ? ORDER BY period_end ASC",
		id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var returns []ledger.InvestmentReturn
	for rows.Next() {
		r, err := scanReturn(rows)
		if err != nil {
			return nil, err
		}
		returns = append(returns, r)
	}
	return returns, rows.Err()
}

func (s *Store) CountReturns(ctx context.Context, id ledger.InvestmentID) (int, error) {
	return countRows(ctx, s.db, "investment_returns", id)
}
func (ts *txStore) CountReturns(ctx context.Context, id ledger.InvestmentID) (int, error) {
	return countRows(ctx, ts.q, "investment_returns", id)
}

func scanReturn(rows *sql.Rows) (ledger.InvestmentReturn, error) {
	var (
		r         ledger.InvestmentReturn
		periodEnd string
		snapshot  string
		profit    string
		paidDate  sql.NullString
		createdBy sql.NullString
		createdAt string
		updatedAt string
	)
	err := rows.Scan(
		&r.ID, &r.InvestmentID, &periodEnd, &snapshot, &profit,
		&r.Status, &paidDate, &createdBy, &createdAt, &updatedAt,
	)
	if err != nil {
		return r, fmt.Errorf("failed to scan return: %w", err)
	}

	r.PeriodEnd, _ = ledger.ParseDate(periodEnd)
	r.PrincipalSnapshot = mustDecimal(snapshot)
	r.ProfitAmount = mustDecimal(profit)
	if paidDate.Valid {
		d, _ := ledger.ParseDate(paidDate.String)
		r.PaidDate = &d
	}
	r.CreatedBy = createdBy.String
	r.CreatedAt = parseTimestamp(createdAt)
	r.UpdatedAt = parseTimestamp(updatedAt)
	return r, nil
}

// =============================================================================
// WITHDRAWALS
// =============================================================================

func (s *Store) InsertWithdrawal(ctx context.Context, w ledger.InvestmentWithdrawal) error {
	return insertWithdrawal(ctx, s.db, w)
}
func (ts *txStore) InsertWithdrawal(ctx context.Context, w ledger.InvestmentWithdrawal) error {
	return insertWithdrawal(ctx, ts.q, w)
}

func insertWithdrawal(ctx context.Context, q dbtx, w ledger.InvestmentWithdrawal) error {
	query := `
		INSERT INTO investment_withdrawals
		(id, investment_id, withdraw_date, amount, reason, created_by, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`
	_, err := q.ExecContext(ctx, query,
		w.ID,
		w.InvestmentID,
		w.WithdrawDate.String(),
		w.Amount.String(),
		w.Reason,
		w.CreatedBy,
		timestamp(w.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to insert withdrawal: %w", err)
	}
	return nil
}

func (s *Store) ListWithdrawals(ctx context.Context, id ledger.InvestmentID) ([]ledger.InvestmentWithdrawal, error) {
	return listWithdrawals(ctx, s.db, id)
}
func (ts *txStore) ListWithdrawals(ctx context.Context, id ledger.InvestmentID) ([]ledger.InvestmentWithdrawal, error) {
	return listWithdrawals(ctx, ts.q, id)
}

func listWithdrawals(ctx context.Context, q dbtx, id ledger.InvestmentID) ([]ledger.InvestmentWithdrawal, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT id, investment_id, withdraw_date, amount, reason, created_by, created_at
		FROM investment_withdrawals
		WHERE investment_id = ?
		ORDER BY withdraw_date ASC, created_at ASC
	`, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var withdrawals []ledger.InvestmentWithdrawal
	for rows.Next() {
		var (
			w            ledger.InvestmentWithdrawal
			withdrawDate string
			amount       string
			reason       sql.NullString
			createdBy    sql.NullString
			createdAt    string
		)
		if err := rows.Scan(&w.ID, &w.InvestmentID, &withdrawDate, &amount, &reason, &createdBy, &createdAt); err != nil {
			return nil, err
		}
		w.WithdrawDate, _ = ledger.ParseDate(withdrawDate)
		w.Amount = mustDecimal(amount)
		w.Reason = reason.String
		w.CreatedBy = createdBy.String
		w.CreatedAt = parseTimestamp(createdAt)
		withdrawals = append(withdrawals, w)
	}
	return withdrawals, rows.Err()
}

func (s *Store) CountWithdrawals(ctx context.Context, id ledger.InvestmentID) (int, error) {
	return countRows(ctx, s.db, "investment_withdrawals", id)
}
func (ts *txStore) CountWithdrawals(ctx context.Context, id ledger.InvestmentID) (int, error) {
	return countRows(ctx, ts.q, "investment_withdrawals", id)
}

func countRows(ctx context.Context, q dbtx, table string, id ledger.InvestmentID) (int, error) {
	var count int
	err := q.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM "+table+" WHERE investment_id = ?", id,
	).Scan(&count)
	return count, err
}

// =============================================================================
// REPORTING AGGREGATES
// =============================================================================
// Amounts are stored as decimal strings, so sums are done in Go rather than
// with SQL SUM over lossy REAL casts.

func (s *Store) ReturnTotals(ctx context.Context, id ledger.InvestmentID) (ledger.ProfitTotals, error) {
	return returnTotals(ctx, s.db, id)
}
func (ts *txStore) ReturnTotals(ctx context.Context, id ledger.InvestmentID) (ledger.ProfitTotals, error) {
	return returnTotals(ctx, ts.q, id)
}

func returnTotals(ctx context.Context, q dbtx, id ledger.InvestmentID) (ledger.ProfitTotals, error) {
	totals := ledger.ProfitTotals{Pending: decimal.Zero, Paid: decimal.Zero}
	rows, err := q.QueryContext(ctx,
		"SELECT profit_amount, status FROM investment_returns WHERE investment_id = ?", id)
	if err != nil {
		return totals, err
	}
	defer rows.Close()

	for rows.Next() {
		var amount, status string
		if err := rows.Scan(&amount, &status); err != nil {
			return totals, err
		}
		if ledger.ReturnStatus(status) == ledger.ReturnPaid {
			totals.Paid = totals.Paid.Add(mustDecimal(amount))
		} else {
			totals.Pending = totals.Pending.Add(mustDecimal(amount))
		}
	}
	return totals, rows.Err()
}

func (s *Store) WithdrawnTotal(ctx context.Context, id ledger.InvestmentID) (decimal.Decimal, error) {
	return withdrawnTotal(ctx, s.db, id)
}
func (ts *txStore) WithdrawnTotal(ctx context.Context, id ledger.InvestmentID) (decimal.Decimal, error) {
	return withdrawnTotal(ctx, ts.q, id)
}

func withdrawnTotal(ctx context.Context, q dbtx, id ledger.InvestmentID) (decimal.Decimal, error) {
	total := decimal.Zero
	rows, err := q.QueryContext(ctx,
		"SELECT amount FROM investment_withdrawals WHERE investment_id = ?", id)
	if err != nil {
		return total, err
	}
	defer rows.Close()

	for rows.Next() {
		var amount string
		if err := rows.Scan(&amount); err != nil {
			return total, err
		}
		total = total.Add(mustDecimal(amount))
	}
	return total, rows.Err()
}

func (s *Store) Portfolio(ctx context.Context) (ledger.PortfolioTotals, error) {
	return portfolio(ctx, s.db)
}
func (ts *txStore) Portfolio(ctx context.Context) (ledger.PortfolioTotals, error) {
	return portfolio(ctx, ts.q)
}

func portfolio(ctx context.Context, q dbtx) (ledger.PortfolioTotals, error) {
	totals := ledger.PortfolioTotals{
		PrincipalAtWork: decimal.Zero,
		PendingProfit:   decimal.Zero,
		PaidProfit:      decimal.Zero,
	}

	rows, err := q.QueryContext(ctx, "SELECT status, current_principal FROM investments")
	if err != nil {
		return totals, err
	}
	defer rows.Close()
	for rows.Next() {
		var status, principal string
		if err := rows.Scan(&status, &principal); err != nil {
			return totals, err
		}
		switch ledger.Status(status) {
		case ledger.StatusActive:
			totals.ActiveCount++
			totals.PrincipalAtWork = totals.PrincipalAtWork.Add(mustDecimal(principal))
		case ledger.StatusCompleted:
			totals.CompletedCount++
		case ledger.StatusClosed:
			totals.ClosedCount++
		}
	}
	if err := rows.Err(); err != nil {
		return totals, err
	}

	retRows, err := q.QueryContext(ctx, "SELECT profit_amount, status FROM investment_returns")
	if err != nil {
		return totals, err
	}
	defer retRows.Close()
	for retRows.Next() {
		var amount, status string
		if err := retRows.Scan(&amount, &status); err != nil {
			return totals, err
		}
		if ledger.ReturnStatus(status) == ledger.ReturnPaid {
			totals.PaidProfit = totals.PaidProfit.Add(mustDecimal(amount))
		} else {
			totals.PendingProfit = totals.PendingProfit.Add(mustDecimal(amount))
		}
	}
	return totals, retRows.Err()
}

// =============================================================================
// ACCRUAL RUNS
// =============================================================================

func (s *Store) SaveAccrualRun(ctx context.Context, run ledger.AccrualRun) error {
	return saveAccrualRun(ctx, s.db, run)
}
func (ts *txStore) SaveAccrualRun(ctx context.Context, run ledger.AccrualRun) error {
	return saveAccrualRun(ctx, ts.q, run)
}

func saveAccrualRun(ctx context.Context, q dbtx, run ledger.AccrualRun) error {
	completedJSON, _ := json.Marshal(run.Completed)
	query := `
		INSERT INTO accrual_runs
		(id, as_of, periods_created, periods_skipped, completed_json, status, error, started_at, completed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			periods_created = excluded.periods_created,
			periods_skipped = excluded.periods_skipped,
			completed_json = excluded.completed_json,
			status = excluded.status,
			error = excluded.error,
			completed_at = excluded.completed_at
	`
	var completedAt *string
	if run.CompletedAt != nil {
		t := timestamp(*run.CompletedAt)
		completedAt = &t
	}
	_, err := q.ExecContext(ctx, query,
		run.ID,
		run.AsOf.String(),
		run.PeriodsCreated,
		run.PeriodsSkipped,
		string(completedJSON),
		run.Status,
		run.Error,
		timestamp(run.StartedAt),
		completedAt,
	)
	return err
}

func (s *Store) ListAccrualRuns(ctx context.Context, limit int) ([]ledger.AccrualRun, error) {
	return listAccrualRuns(ctx, s.db, limit)
}
func (ts *txStore) ListAccrualRuns(ctx context.Context, limit int) ([]ledger.AccrualRun, error) {
	return listAccrualRuns(ctx, ts.q, limit)
}

func listAccrualRuns(ctx context.Context, q dbtx, limit int) ([]ledger.AccrualRun, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := q.QueryContext(ctx, `
		SELECT id, as_of, periods_created, periods_skipped, completed_json, status, error, started_at, completed_at
		FROM accrual_runs
		ORDER BY started_at DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []ledger.AccrualRun
	for rows.Next() {
		var (
			run           ledger.AccrualRun
			asOf          string
			completedJSON sql.NullString
			errMsg        sql.NullString
			startedAt     string
			completedAt   sql.NullString
		)
		if err := rows.Scan(&run.ID, &asOf, &run.PeriodsCreated, &run.PeriodsSkipped,
			&completedJSON, &run.Status, &errMsg, &startedAt, &completedAt); err != nil {
			return nil, err
		}
		run.AsOf, _ = ledger.ParseDate(asOf)
		if completedJSON.Valid && completedJSON.String != "" {
			json.Unmarshal([]byte(completedJSON.String), &run.Completed)
		}
		run.Error = errMsg.String
		run.StartedAt = parseTimestamp(startedAt)
		if completedAt.Valid {
			t := parseTimestamp(completedAt.String)
			run.CompletedAt = &t
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

// =============================================================================
// AUDIT EVENTS
// =============================================================================

func (s *Store) SaveAuditEvent(ctx context.Context, ev ledger.AuditEvent) error {
	return saveAuditEvent(ctx, s.db, ev)
}
func (ts *txStore) SaveAuditEvent(ctx context.Context, ev ledger.AuditEvent) error {
	return saveAuditEvent(ctx, ts.q, ev)
}

func saveAuditEvent(ctx context.Context, q dbtx, ev ledger.AuditEvent) error {
	_, err := q.ExecContext(ctx, `
		INSERT INTO audit_events (id, investment_id, action, actor, detail, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, ev.ID, ev.InvestmentID, ev.Action, ev.Actor, ev.Detail, timestamp(ev.CreatedAt))
	return err
}

func (s *Store) ListAuditEvents(ctx context.Context, id ledger.InvestmentID) ([]ledger.AuditEvent, error) {
	return listAuditEvents(ctx, s.db, id)
}
func (ts *txStore) ListAuditEvents(ctx context.Context, id ledger.InvestmentID) ([]ledger.AuditEvent, error) {
	return listAuditEvents(ctx, ts.q, id)
}

func listAuditEvents(ctx context.Context, q dbtx, id ledger.InvestmentID) ([]ledger.AuditEvent, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT id, investment_id, action, actor, detail, created_at
		FROM audit_events
		WHERE investment_id = ?
		ORDER BY created_at ASC
	`, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []ledger.AuditEvent
	for rows.Next() {
		var ev ledger.AuditEvent
		var detail sql.NullString
		var createdAt string
		if err := rows.Scan(&ev.ID, &ev.InvestmentID, &ev.Action, &ev.Actor, &detail, &createdAt); err != nil {
			return nil, err
		}
		ev.Detail = detail.String
		ev.CreatedAt = parseTimestamp(createdAt)
		events = append(events, ev)
	}
	return events, rows.Err()
}

// =============================================================================
// UTILITIES
// =============================================================================

// Reset clears all data (for testing/demo).
func (s *Store) Reset(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tables := []string{
		"audit_events", "accrual_runs", "investment_withdrawals",
		"investment_returns", "investments", "outlets", "investors",
	}
	for _, table := range tables {
		if _, err := s.db.ExecContext(ctx, "DELETE FROM "+table); err != nil {
			return err
		}
	}
	return nil
}

func timestamp(t time.Time) string {
	if t.IsZero() {
		t = time.Now().UTC()
	}
	return t.UTC().Format(time.RFC3339)
}

func parseTimestamp(s string) time.Time {
	t, _ := time.Parse(time.RFC3339, s)
	return t
}

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

func nullDate(d *ledger.Date) sql.NullString {
	if d == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: d.String(), Valid: true}
}

func mustDecimal(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero
	}
	return d
}

func isUniqueConstraintError(err error) bool {
	return err != nil && (strings.Contains(err.Error(), "UNIQUE constraint failed") ||
		strings.Contains(err.Error(), "duplicate key"))
}
