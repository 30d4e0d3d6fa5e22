/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  Defines the JSON structures for API communication. These types decouple
  the internal domain model from the external API contract, allowing:
  - Field renaming without breaking clients
  - API-specific validation
  - Version evolution

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Request: Request body types from clients
  - *Response: Complex response wrappers

MONEY:
  Amounts cross the wire as JSON numbers with two decimals. Internally they
  are decimal; conversion happens only at this boundary.

VALIDATION:
  Validation is done in the ledger package, not in DTOs. DTOs are pure data
  carriers.

SEE ALSO:
  - handlers.go: Uses these types
  - ledger/types.go: Domain model
*/
package api

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/warp/investment-engine/ledger"
)

// =============================================================================
// INVESTMENT TYPES
// =============================================================================

// InvestmentDTO represents an investment in API responses.
type InvestmentDTO struct {
	ID               string  `json:"id"`
	InvestorID       string  `json:"investor_id"`
	OutletID         string  `json:"outlet_id,omitempty"`
	Code             string  `json:"code"`
	StartDate        string  `json:"start_date"`
	DurationMonths   int     `json:"duration_months"`
	EndDate          string  `json:"end_date"`
	ProfitRate       float64 `json:"profit_rate"`
	InitialPrincipal float64 `json:"initial_principal"`
	CurrentPrincipal float64 `json:"current_principal"`
	Status           string  `json:"status"`
	LastProfitDate   *string `json:"last_profit_date,omitempty"`
	Note             string  `json:"note,omitempty"`
	CreatedBy        string  `json:"created_by,omitempty"`
	CreatedAt        string  `json:"created_at,omitempty"`
	UpdatedAt        string  `json:"updated_at,omitempty"`
}

// CreateInvestmentRequest is the request to register a new investment.
type CreateInvestmentRequest struct {
	InvestorID       string  `json:"investor_id"`
	OutletID         string  `json:"outlet_id,omitempty"`
	StartDate        string  `json:"start_date"`
	DurationMonths   int     `json:"duration_months"`
	ProfitRate       float64 `json:"profit_rate"`
	InitialPrincipal float64 `json:"initial_principal"`
	Note             string  `json:"note,omitempty"`
	CreatedBy        string  `json:"created_by,omitempty"`
}

// UpdateInvestmentRequest patches an investment. Absent fields are left
// unchanged. Principal and status are deliberately not patchable here.
type UpdateInvestmentRequest struct {
	InvestorID     *string  `json:"investor_id,omitempty"`
	OutletID       *string  `json:"outlet_id,omitempty"`
	StartDate      *string  `json:"start_date,omitempty"`
	DurationMonths *int     `json:"duration_months,omitempty"`
	ProfitRate     *float64 `json:"profit_rate,omitempty"`
	Note           *string  `json:"note,omitempty"`
}

// OverrideStatusRequest forces an investment into a terminal status.
type OverrideStatusRequest struct {
	Status string `json:"status"`
	Actor  string `json:"actor"`
	Reason string `json:"reason"`
}

// ListInvestmentsResponse wraps a filtered page with the unfiltered total.
type ListInvestmentsResponse struct {
	Investments []InvestmentDTO `json:"investments"`
	Total       int             `json:"total"`
}

// InvestmentSummaryDTO aggregates an investment with its lifetime totals.
type InvestmentSummaryDTO struct {
	Investment      InvestmentDTO `json:"investment"`
	PendingProfit   float64       `json:"pending_profit"`
	PaidProfit      float64       `json:"paid_profit"`
	WithdrawnTotal  float64       `json:"withdrawn_total"`
	ReturnCount     int           `json:"return_count"`
	WithdrawalCount int           `json:"withdrawal_count"`
}

// =============================================================================
// RETURN / WITHDRAWAL TYPES
// =============================================================================

// ReturnDTO represents one monthly profit entry.
type ReturnDTO struct {
	ID                string  `json:"id"`
	InvestmentID      string  `json:"investment_id"`
	PeriodEnd         string  `json:"period_end"`
	PrincipalSnapshot float64 `json:"principal_snapshot"`
	ProfitAmount      float64 `json:"profit_amount"`
	Status            string  `json:"status"`
	PaidDate          *string `json:"paid_date,omitempty"`
	CreatedAt         string  `json:"created_at,omitempty"`
}

// PayReturnRequest marks a pending return as paid.
type PayReturnRequest struct {
	PaidDate string `json:"paid_date,omitempty"`
}

// WithdrawalDTO represents one principal withdrawal.
type WithdrawalDTO struct {
	ID           string  `json:"id"`
	InvestmentID string  `json:"investment_id"`
	WithdrawDate string  `json:"withdraw_date"`
	Amount       float64 `json:"amount"`
	Reason       string  `json:"reason,omitempty"`
	CreatedBy    string  `json:"created_by,omitempty"`
	CreatedAt    string  `json:"created_at,omitempty"`
}

// CreateWithdrawalRequest records a principal withdrawal.
type CreateWithdrawalRequest struct {
	WithdrawDate string  `json:"withdraw_date"`
	Amount       float64 `json:"amount"`
	Reason       string  `json:"reason,omitempty"`
	CreatedBy    string  `json:"created_by,omitempty"`
}

// =============================================================================
// ACCRUAL TYPES
// =============================================================================

// RunAccrualRequest triggers a batch accrual. AsOfDate defaults to today.
type RunAccrualRequest struct {
	AsOfDate string `json:"as_of_date,omitempty"`
}

// AccrualResultDTO reports what one batch run did.
type AccrualResultDTO struct {
	RunID          string   `json:"run_id"`
	AsOfDate       string   `json:"as_of_date"`
	PeriodsCreated int      `json:"periods_created"`
	PeriodsSkipped int      `json:"periods_skipped"`
	Completed      []string `json:"completed_investments"`
}

// AccrualRunDTO is one row of the run history.
type AccrualRunDTO struct {
	ID             string  `json:"id"`
	AsOfDate       string  `json:"as_of_date"`
	PeriodsCreated int     `json:"periods_created"`
	PeriodsSkipped int     `json:"periods_skipped"`
	Status         string  `json:"status"`
	Error          string  `json:"error,omitempty"`
	StartedAt      string  `json:"started_at"`
	CompletedAt    *string `json:"completed_at,omitempty"`
}

// =============================================================================
// COLLABORATOR / PORTFOLIO TYPES
// =============================================================================

// InvestorDTO represents an investor in API responses.
type InvestorDTO struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	CreatedAt string `json:"created_at,omitempty"`
}

// CreateInvestorRequest creates or renames an investor.
type CreateInvestorRequest struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// OutletDTO represents an outlet in API responses.
type OutletDTO struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	CreatedAt string `json:"created_at,omitempty"`
}

// CreateOutletRequest creates or renames an outlet.
type CreateOutletRequest struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// PortfolioDTO is the portfolio-wide dashboard payload.
type PortfolioDTO struct {
	ActiveCount     int     `json:"active_count"`
	CompletedCount  int     `json:"completed_count"`
	ClosedCount     int     `json:"closed_count"`
	PrincipalAtWork float64 `json:"principal_at_work"`
	PendingProfit   float64 `json:"pending_profit"`
	PaidProfit      float64 `json:"paid_profit"`
}

// AuditEventDTO is one administrative audit trail entry.
type AuditEventDTO struct {
	ID           string `json:"id"`
	InvestmentID string `json:"investment_id"`
	Action       string `json:"action"`
	Actor        string `json:"actor"`
	Detail       string `json:"detail,omitempty"`
	CreatedAt    string `json:"created_at"`
}

// ErrorResponse is the standard error payload.
type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

// =============================================================================
// CONVERSIONS
// =============================================================================

func money(d decimal.Decimal) float64 {
	f, _ := d.Float64()
	return f
}

func toInvestmentDTO(inv *ledger.Investment) InvestmentDTO {
	dto := InvestmentDTO{
		ID:               string(inv.ID),
		InvestorID:       string(inv.InvestorID),
		OutletID:         string(inv.OutletID),
		Code:             inv.Code,
		StartDate:        inv.StartDate.String(),
		DurationMonths:   inv.DurationMonths,
		EndDate:          inv.EndDate.String(),
		ProfitRate:       money(inv.ProfitRate),
		InitialPrincipal: money(inv.InitialPrincipal),
		CurrentPrincipal: money(inv.CurrentPrincipal),
		Status:           string(inv.Status),
		Note:             inv.Note,
		CreatedBy:        inv.CreatedBy,
		CreatedAt:        inv.CreatedAt.Format(time.RFC3339),
		UpdatedAt:        inv.UpdatedAt.Format(time.RFC3339),
	}
	if inv.LastProfitDate != nil {
		s := inv.LastProfitDate.String()
		dto.LastProfitDate = &s
	}
	return dto
}

func toReturnDTO(r ledger.InvestmentReturn) ReturnDTO {
	dto := ReturnDTO{
		ID:                string(r.ID),
		InvestmentID:      string(r.InvestmentID),
		PeriodEnd:         r.PeriodEnd.String(),
		PrincipalSnapshot: money(r.PrincipalSnapshot),
		ProfitAmount:      money(r.ProfitAmount),
		Status:            string(r.Status),
		CreatedAt:         r.CreatedAt.Format(time.RFC3339),
	}
	if r.PaidDate != nil {
		s := r.PaidDate.String()
		dto.PaidDate = &s
	}
	return dto
}

func toWithdrawalDTO(w ledger.InvestmentWithdrawal) WithdrawalDTO {
	return WithdrawalDTO{
		ID:           string(w.ID),
		InvestmentID: string(w.InvestmentID),
		WithdrawDate: w.WithdrawDate.String(),
		Amount:       money(w.Amount),
		Reason:       w.Reason,
		CreatedBy:    w.CreatedBy,
		CreatedAt:    w.CreatedAt.Format(time.RFC3339),
	}
}

func toAccrualRunDTO(run ledger.AccrualRun) AccrualRunDTO {
	dto := AccrualRunDTO{
		ID:             run.ID,
		AsOfDate:       run.AsOf.String(),
		PeriodsCreated: run.PeriodsCreated,
		PeriodsSkipped: run.PeriodsSkipped,
		Status:         run.Status,
		Error:          run.Error,
		StartedAt:      run.StartedAt.Format(time.RFC3339),
	}
	if run.CompletedAt != nil {
		s := run.CompletedAt.Format(time.RFC3339)
		dto.CompletedAt = &s
	}
	return dto
}
