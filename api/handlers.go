/*
handlers.go - HTTP API handlers for the investment ledger

PURPOSE:
  Exposes the capital ledger and accrual engine via REST API. Handles HTTP
  request/response, JSON serialization, and delegates to domain logic.

ENDPOINTS:
  Investments:
    GET    /api/investments                    List with filters
    POST   /api/investments                    Register investment
    GET    /api/investments/{id}               Get investment
    PUT    /api/investments/{id}               Patch editable fields
    DELETE /api/investments/{id}               Delete (no activity only)
    GET    /api/investments/{id}/summary       Investment with totals
    GET    /api/investments/{id}/returns       Profit schedule
    GET    /api/investments/{id}/withdrawals   Withdrawal history
    GET    /api/investments/{id}/audit         Audit trail
    POST   /api/investments/{id}/withdrawals   Withdraw principal
    POST   /api/investments/{id}/status        Administrative override

  Returns:
    POST   /api/returns/{id}/pay               Mark profit entry paid

  Accruals:
    POST   /api/accruals/run                   Trigger batch accrual
    GET    /api/accruals/runs                  Run history

  Collaborators:
    GET/POST /api/investors, /api/outlets

  Portfolio:
    GET    /api/portfolio                      Dashboard totals

ERROR HANDLING:
  Errors are returned as JSON with appropriate HTTP status:
  - 400: Validation errors, invalid input
  - 404: Resource not found
  - 409: Conflict (non-active status, insufficient principal, already paid)
  - 500: Internal errors

SECURITY NOTE:
  Currently NO authentication or authorization. All endpoints are public.

SEE ALSO:
  - dto.go: Request/response data structures
  - server.go: Router setup and middleware
  - ledger/: Domain logic these handlers delegate to
*/
package api

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/warp/investment-engine/ledger"
	"github.com/warp/investment-engine/store/sqlite"
)

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Store       *sqlite.Store
	Registry    *ledger.Registry
	Engine      *ledger.AccrualEngine
	Withdrawals *ledger.WithdrawalProcessor
	Settlement  *ledger.ReturnSettlement
	Reporting   *ledger.Reporting
}

// NewHandler creates a new handler with the given store.
func NewHandler(store *sqlite.Store) *Handler {
	return &Handler{
		Store:       store,
		Registry:    ledger.NewRegistry(store),
		Engine:      ledger.NewAccrualEngine(store),
		Withdrawals: ledger.NewWithdrawalProcessor(store),
		Settlement:  ledger.NewReturnSettlement(store),
		Reporting:   ledger.NewReporting(store),
	}
}

// =============================================================================
// INVESTMENT HANDLERS
// =============================================================================

// ListInvestments returns a filtered, paginated page of investments.
func (h *Handler) ListInvestments(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := ledger.InvestmentFilter{
		Search:     q.Get("search"),
		Status:     ledger.Status(q.Get("status")),
		InvestorID: ledger.InvestorID(q.Get("investor_id")),
		OutletID:   ledger.OutletID(q.Get("outlet_id")),
	}
	if v := q.Get("limit"); v != "" {
		filter.Limit, _ = strconv.Atoi(v)
	}
	if v := q.Get("offset"); v != "" {
		filter.Offset, _ = strconv.Atoi(v)
	}

	investments, total, err := h.Reporting.List(r.Context(), filter)
	if err != nil {
		writeDomainError(w, "Failed to list investments", err)
		return
	}

	dtos := make([]InvestmentDTO, len(investments))
	for i := range investments {
		dtos[i] = toInvestmentDTO(&investments[i])
	}
	writeJSON(w, http.StatusOK, ListInvestmentsResponse{Investments: dtos, Total: total})
}

// CreateInvestment registers a new investment.
func (h *Handler) CreateInvestment(w http.ResponseWriter, r *http.Request) {
	var req CreateInvestmentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	startDate, err := ledger.ParseDate(req.StartDate)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid start_date format (use YYYY-MM-DD)", err)
		return
	}

	inv, err := h.Registry.Create(r.Context(), ledger.CreateInvestmentInput{
		InvestorID:       ledger.InvestorID(req.InvestorID),
		OutletID:         ledger.OutletID(req.OutletID),
		StartDate:        startDate,
		DurationMonths:   req.DurationMonths,
		ProfitRate:       decimal.NewFromFloat(req.ProfitRate),
		InitialPrincipal: decimal.NewFromFloat(req.InitialPrincipal),
		Note:             req.Note,
		CreatedBy:        req.CreatedBy,
	})
	if err != nil {
		writeDomainError(w, "Failed to create investment", err)
		return
	}
	writeJSON(w, http.StatusCreated, toInvestmentDTO(inv))
}

// GetInvestment returns a single investment.
func (h *Handler) GetInvestment(w http.ResponseWriter, r *http.Request) {
	id := ledger.InvestmentID(chi.URLParam(r, "id"))

	inv, err := h.Registry.Get(r.Context(), id)
	if err != nil {
		writeDomainError(w, "Failed to get investment", err)
		return
	}
	writeJSON(w, http.StatusOK, toInvestmentDTO(inv))
}

// UpdateInvestment patches the editable fields of an investment.
func (h *Handler) UpdateInvestment(w http.ResponseWriter, r *http.Request) {
	id := ledger.InvestmentID(chi.URLParam(r, "id"))

	var req UpdateInvestmentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	var in ledger.UpdateInvestmentInput
	if req.InvestorID != nil {
		v := ledger.InvestorID(*req.InvestorID)
		in.InvestorID = &v
	}
	if req.OutletID != nil {
		v := ledger.OutletID(*req.OutletID)
		in.OutletID = &v
	}
	if req.StartDate != nil {
		d, err := ledger.ParseDate(*req.StartDate)
		if err != nil {
			writeError(w, http.StatusBadRequest, "Invalid start_date format (use YYYY-MM-DD)", err)
			return
		}
		in.StartDate = &d
	}
	if req.DurationMonths != nil {
		in.DurationMonths = req.DurationMonths
	}
	if req.ProfitRate != nil {
		v := decimal.NewFromFloat(*req.ProfitRate)
		in.ProfitRate = &v
	}
	if req.Note != nil {
		in.Note = req.Note
	}

	inv, err := h.Registry.Update(r.Context(), id, in)
	if err != nil {
		writeDomainError(w, "Failed to update investment", err)
		return
	}
	writeJSON(w, http.StatusOK, toInvestmentDTO(inv))
}

// DeleteInvestment removes an investment that has no recorded activity.
func (h *Handler) DeleteInvestment(w http.ResponseWriter, r *http.Request) {
	id := ledger.InvestmentID(chi.URLParam(r, "id"))

	if err := h.Registry.Delete(r.Context(), id); err != nil {
		writeDomainError(w, "Failed to delete investment", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// GetInvestmentSummary returns an investment with its lifetime totals.
func (h *Handler) GetInvestmentSummary(w http.ResponseWriter, r *http.Request) {
	id := ledger.InvestmentID(chi.URLParam(r, "id"))

	summary, err := h.Reporting.Summary(r.Context(), id)
	if err != nil {
		writeDomainError(w, "Failed to get summary", err)
		return
	}
	writeJSON(w, http.StatusOK, InvestmentSummaryDTO{
		Investment:      toInvestmentDTO(&summary.Investment),
		PendingProfit:   money(summary.Totals.Pending),
		PaidProfit:      money(summary.Totals.Paid),
		WithdrawnTotal:  money(summary.WithdrawnTotal),
		ReturnCount:     summary.ReturnCount,
		WithdrawalCount: summary.WithdrawalCount,
	})
}

// OverrideInvestmentStatus forces an investment into a terminal status.
func (h *Handler) OverrideInvestmentStatus(w http.ResponseWriter, r *http.Request) {
	id := ledger.InvestmentID(chi.URLParam(r, "id"))

	var req OverrideStatusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	inv, err := h.Registry.OverrideStatus(r.Context(), id,
		ledger.Status(req.Status), req.Actor, req.Reason)
	if err != nil {
		writeDomainError(w, "Failed to override status", err)
		return
	}
	writeJSON(w, http.StatusOK, toInvestmentDTO(inv))
}

// GetAuditTrail returns the administrative audit events for an investment.
func (h *Handler) GetAuditTrail(w http.ResponseWriter, r *http.Request) {
	id := ledger.InvestmentID(chi.URLParam(r, "id"))

	events, err := h.Store.ListAuditEvents(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to get audit trail", err)
		return
	}

	dtos := make([]AuditEventDTO, len(events))
	for i, ev := range events {
		dtos[i] = AuditEventDTO{
			ID:           ev.ID,
			InvestmentID: string(ev.InvestmentID),
			Action:       ev.Action,
			Actor:        ev.Actor,
			Detail:       ev.Detail,
			CreatedAt:    ev.CreatedAt.Format(time.RFC3339),
		}
	}
	writeJSON(w, http.StatusOK, dtos)
}

// =============================================================================
// RETURN / WITHDRAWAL HANDLERS
// =============================================================================

// ListReturns returns the profit schedule for an investment.
func (h *Handler) ListReturns(w http.ResponseWriter, r *http.Request) {
	id := ledger.InvestmentID(chi.URLParam(r, "id"))

	returns, err := h.Reporting.Returns(r.Context(), id)
	if err != nil {
		writeDomainError(w, "Failed to list returns", err)
		return
	}

	dtos := make([]ReturnDTO, len(returns))
	for i, ret := range returns {
		dtos[i] = toReturnDTO(ret)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// PayReturn marks a pending profit entry as paid.
func (h *Handler) PayReturn(w http.ResponseWriter, r *http.Request) {
	id := ledger.ReturnID(chi.URLParam(r, "id"))

	var req PayReturnRequest
	if r.ContentLength > 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "Invalid request body", err)
			return
		}
	}

	paidOn := ledger.Today()
	if req.PaidDate != "" {
		var err error
		paidOn, err = ledger.ParseDate(req.PaidDate)
		if err != nil {
			writeError(w, http.StatusBadRequest, "Invalid paid_date format (use YYYY-MM-DD)", err)
			return
		}
	}

	ret, err := h.Settlement.MarkPaid(r.Context(), id, paidOn)
	if err != nil {
		writeDomainError(w, "Failed to mark return paid", err)
		return
	}
	writeJSON(w, http.StatusOK, toReturnDTO(*ret))
}

// ListWithdrawals returns the withdrawal history for an investment.
func (h *Handler) ListWithdrawals(w http.ResponseWriter, r *http.Request) {
	id := ledger.InvestmentID(chi.URLParam(r, "id"))

	withdrawals, err := h.Reporting.Withdrawals(r.Context(), id)
	if err != nil {
		writeDomainError(w, "Failed to list withdrawals", err)
		return
	}

	dtos := make([]WithdrawalDTO, len(withdrawals))
	for i, wd := range withdrawals {
		dtos[i] = toWithdrawalDTO(wd)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// CreateWithdrawal withdraws principal from an active investment.
func (h *Handler) CreateWithdrawal(w http.ResponseWriter, r *http.Request) {
	id := ledger.InvestmentID(chi.URLParam(r, "id"))

	var req CreateWithdrawalRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	withdrawDate, err := ledger.ParseDate(req.WithdrawDate)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid withdraw_date format (use YYYY-MM-DD)", err)
		return
	}

	wd, err := h.Withdrawals.Withdraw(r.Context(), id, ledger.WithdrawInput{
		WithdrawDate: withdrawDate,
		Amount:       decimal.NewFromFloat(req.Amount),
		Reason:       req.Reason,
		CreatedBy:    req.CreatedBy,
	})
	if err != nil {
		writeDomainError(w, "Failed to withdraw", err)
		return
	}
	writeJSON(w, http.StatusCreated, toWithdrawalDTO(*wd))
}

// =============================================================================
// ACCRUAL HANDLERS
// =============================================================================

// RunAccrual triggers one batch accrual, defaulting to today.
func (h *Handler) RunAccrual(w http.ResponseWriter, r *http.Request) {
	var req RunAccrualRequest
	if r.ContentLength > 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "Invalid request body", err)
			return
		}
	}

	asOf := ledger.Today()
	if req.AsOfDate != "" {
		var err error
		asOf, err = ledger.ParseDate(req.AsOfDate)
		if err != nil {
			writeError(w, http.StatusBadRequest, "Invalid as_of_date format (use YYYY-MM-DD)", err)
			return
		}
	}

	result, err := h.Engine.RunAccrual(r.Context(), asOf)
	if err != nil {
		writeDomainError(w, "Accrual run failed", err)
		return
	}

	completed := make([]string, len(result.Completed))
	for i, id := range result.Completed {
		completed[i] = string(id)
	}
	writeJSON(w, http.StatusOK, AccrualResultDTO{
		RunID:          result.RunID,
		AsOfDate:       result.AsOf.String(),
		PeriodsCreated: result.PeriodsCreated,
		PeriodsSkipped: result.PeriodsSkipped,
		Completed:      completed,
	})
}

// ListAccrualRuns returns the recent batch run history.
func (h *Handler) ListAccrualRuns(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		limit, _ = strconv.Atoi(v)
	}

	runs, err := h.Store.ListAccrualRuns(r.Context(), limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list accrual runs", err)
		return
	}

	dtos := make([]AccrualRunDTO, len(runs))
	for i, run := range runs {
		dtos[i] = toAccrualRunDTO(run)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// =============================================================================
// COLLABORATOR HANDLERS
// =============================================================================

// ListInvestors returns all investors.
func (h *Handler) ListInvestors(w http.ResponseWriter, r *http.Request) {
	investors, err := h.Store.ListInvestors(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list investors", err)
		return
	}

	dtos := make([]InvestorDTO, len(investors))
	for i, inv := range investors {
		dtos[i] = InvestorDTO{
			ID:        string(inv.ID),
			Name:      inv.Name,
			CreatedAt: inv.CreatedAt.Format(time.RFC3339),
		}
	}
	writeJSON(w, http.StatusOK, dtos)
}

// CreateInvestor creates or renames an investor.
func (h *Handler) CreateInvestor(w http.ResponseWriter, r *http.Request) {
	var req CreateInvestorRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if req.ID == "" || req.Name == "" {
		writeError(w, http.StatusBadRequest, "id and name are required", nil)
		return
	}

	investor := ledger.Investor{ID: ledger.InvestorID(req.ID), Name: req.Name}
	if err := h.Store.SaveInvestor(r.Context(), investor); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to save investor", err)
		return
	}
	writeJSON(w, http.StatusCreated, InvestorDTO{ID: req.ID, Name: req.Name})
}

// ListOutlets returns all outlets.
func (h *Handler) ListOutlets(w http.ResponseWriter, r *http.Request) {
	outlets, err := h.Store.ListOutlets(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list outlets", err)
		return
	}

	dtos := make([]OutletDTO, len(outlets))
	for i, o := range outlets {
		dtos[i] = OutletDTO{
			ID:        string(o.ID),
			Name:      o.Name,
			CreatedAt: o.CreatedAt.Format(time.RFC3339),
		}
	}
	writeJSON(w, http.StatusOK, dtos)
}

// CreateOutlet creates or renames an outlet.
func (h *Handler) CreateOutlet(w http.ResponseWriter, r *http.Request) {
	var req CreateOutletRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if req.ID == "" || req.Name == "" {
		writeError(w, http.StatusBadRequest, "id and name are required", nil)
		return
	}

	outlet := ledger.Outlet{ID: ledger.OutletID(req.ID), Name: req.Name}
	if err := h.Store.SaveOutlet(r.Context(), outlet); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to save outlet", err)
		return
	}
	writeJSON(w, http.StatusCreated, OutletDTO{ID: req.ID, Name: req.Name})
}

// =============================================================================
// PORTFOLIO HANDLER
// =============================================================================

// GetPortfolio returns portfolio-wide dashboard totals.
func (h *Handler) GetPortfolio(w http.ResponseWriter, r *http.Request) {
	totals, err := h.Reporting.Portfolio(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to get portfolio", err)
		return
	}
	writeJSON(w, http.StatusOK, PortfolioDTO{
		ActiveCount:     totals.ActiveCount,
		CompletedCount:  totals.CompletedCount,
		ClosedCount:     totals.ClosedCount,
		PrincipalAtWork: money(totals.PrincipalAtWork),
		PendingProfit:   money(totals.PendingProfit),
		PaidProfit:      money(totals.PaidProfit),
	})
}

// ResetDatabase clears all data (dev/demo only).
func (h *Handler) ResetDatabase(w http.ResponseWriter, r *http.Request) {
	if err := h.Store.Reset(r.Context()); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to reset database", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "reset"})
}

// =============================================================================
// RESPONSE HELPERS
// =============================================================================

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string, err error) {
	resp := ErrorResponse{Error: message}
	if err != nil {
		resp.Details = err.Error()
	}
	writeJSON(w, status, resp)
}

// writeDomainError maps ledger error classes onto HTTP statuses.
func writeDomainError(w http.ResponseWriter, message string, err error) {
	switch {
	case ledger.IsValidation(err):
		writeError(w, http.StatusBadRequest, message, err)
	case ledger.IsNotFound(err):
		writeError(w, http.StatusNotFound, message, err)
	case ledger.IsConflict(err):
		writeError(w, http.StatusConflict, message, err)
	default:
		writeError(w, http.StatusInternalServerError, message, err)
	}
}
