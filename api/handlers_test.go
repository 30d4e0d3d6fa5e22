/*
handlers_test.go - HTTP round-trip tests for the API

Tests for:
- Investment creation and retrieval through the router
- Accrual trigger, return settlement, withdrawals
- Error status mapping (400/404/409)
*/
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/investment-engine/ledger"
	"github.com/warp/investment-engine/store/sqlite"
)

// =============================================================================
// TEST SETUP
// =============================================================================

func newTestRouter(t *testing.T) (http.Handler, *Handler) {
	store, err := sqlite.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	require.NoError(t, store.SaveInvestor(context.Background(), ledger.Investor{
		ID: "investor-1", Name: "Alice",
	}))

	h := NewHandler(store)
	return NewRouter(h), h
}

func doJSON(t *testing.T, router http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&out))
	return out
}

func createInvestment(t *testing.T, router http.Handler) InvestmentDTO {
	rec := doJSON(t, router, http.MethodPost, "/api/investments", CreateInvestmentRequest{
		InvestorID:       "investor-1",
		StartDate:        "2026-01-01",
		DurationMonths:   3,
		ProfitRate:       2,
		InitialPrincipal: 10000,
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	return decode[InvestmentDTO](t, rec)
}

// =============================================================================
// INVESTMENT LIFECYCLE TESTS
// =============================================================================

func TestAPI_CreateAndGetInvestment(t *testing.T) {
	router, _ := newTestRouter(t)

	created := createInvestment(t, router)
	assert.Equal(t, "INV-20260101-0001", created.Code)
	assert.Equal(t, "2026-03-31", created.EndDate)
	assert.Equal(t, "active", created.Status)
	assert.Equal(t, 10000.0, created.CurrentPrincipal)

	rec := doJSON(t, router, http.MethodGet, "/api/investments/"+created.ID, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	got := decode[InvestmentDTO](t, rec)
	assert.Equal(t, created.ID, got.ID)
}

func TestAPI_CreateInvestment_ValidationError(t *testing.T) {
	router, _ := newTestRouter(t)

	rec := doJSON(t, router, http.MethodPost, "/api/investments", CreateInvestmentRequest{
		InvestorID:       "nobody",
		StartDate:        "2026-01-01",
		DurationMonths:   3,
		ProfitRate:       2,
		InitialPrincipal: 10000,
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doJSON(t, router, http.MethodPost, "/api/investments", CreateInvestmentRequest{
		InvestorID: "investor-1",
		StartDate:  "01/01/2026",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAPI_GetInvestment_NotFound(t *testing.T) {
	router, _ := newTestRouter(t)

	rec := doJSON(t, router, http.MethodGet, "/api/investments/missing", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestAPI_ListInvestments(t *testing.T) {
	router, _ := newTestRouter(t)
	createInvestment(t, router)
	createInvestment(t, router)

	rec := doJSON(t, router, http.MethodGet, "/api/investments?status=active", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	list := decode[ListInvestmentsResponse](t, rec)
	assert.Equal(t, 2, list.Total)
	assert.Len(t, list.Investments, 2)
}

func TestAPI_DeleteInvestment_ConflictAfterAccrual(t *testing.T) {
	router, _ := newTestRouter(t)
	created := createInvestment(t, router)

	rec := doJSON(t, router, http.MethodPost, "/api/accruals/run", RunAccrualRequest{AsOfDate: "2026-02-01"})
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doJSON(t, router, http.MethodDelete, "/api/investments/"+created.ID, nil)
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestAPI_OverrideStatus(t *testing.T) {
	router, _ := newTestRouter(t)
	created := createInvestment(t, router)

	rec := doJSON(t, router, http.MethodPost, "/api/investments/"+created.ID+"/status", OverrideStatusRequest{
		Status: "closed", Actor: "ops@warp", Reason: "early exit",
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	got := decode[InvestmentDTO](t, rec)
	assert.Equal(t, "closed", got.Status)

	// Audit trail is visible
	rec = doJSON(t, router, http.MethodGet, "/api/investments/"+created.ID+"/audit", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	events := decode[[]AuditEventDTO](t, rec)
	require.Len(t, events, 1)
	assert.Equal(t, "status_override", events[0].Action)

	// Forcing "active" is invalid
	rec = doJSON(t, router, http.MethodPost, "/api/investments/"+created.ID+"/status", OverrideStatusRequest{
		Status: "active", Actor: "ops@warp",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

// =============================================================================
// ACCRUAL AND SETTLEMENT TESTS
// =============================================================================

func TestAPI_AccrualAndSettlementFlow(t *testing.T) {
	// GIVEN: A 3-month investment accrued through maturity
	// WHEN: Settling the first return
	// THEN: The flow round-trips through the HTTP layer

	router, _ := newTestRouter(t)
	created := createInvestment(t, router)

	rec := doJSON(t, router, http.MethodPost, "/api/accruals/run", RunAccrualRequest{AsOfDate: "2026-06-30"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	result := decode[AccrualResultDTO](t, rec)
	assert.Equal(t, 3, result.PeriodsCreated)
	assert.Equal(t, []string{created.ID}, result.Completed)

	rec = doJSON(t, router, http.MethodGet, "/api/investments/"+created.ID+"/returns", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	returns := decode[[]ReturnDTO](t, rec)
	require.Len(t, returns, 3)
	assert.Equal(t, "2026-01-31", returns[0].PeriodEnd)
	assert.Equal(t, 200.0, returns[0].ProfitAmount)

	rec = doJSON(t, router, http.MethodPost, "/api/returns/"+returns[0].ID+"/pay", PayReturnRequest{PaidDate: "2026-02-05"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	paid := decode[ReturnDTO](t, rec)
	assert.Equal(t, "paid", paid.Status)

	// Paying twice conflicts
	rec = doJSON(t, router, http.MethodPost, "/api/returns/"+returns[0].ID+"/pay", PayReturnRequest{PaidDate: "2026-02-06"})
	assert.Equal(t, http.StatusConflict, rec.Code)

	// Run history is exposed
	rec = doJSON(t, router, http.MethodGet, "/api/accruals/runs", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	runs := decode[[]AccrualRunDTO](t, rec)
	require.NotEmpty(t, runs)
	assert.Equal(t, "completed", runs[0].Status)
}

func TestAPI_AccrualRerun_NoNewPeriods(t *testing.T) {
	router, _ := newTestRouter(t)
	createInvestment(t, router)

	rec := doJSON(t, router, http.MethodPost, "/api/accruals/run", RunAccrualRequest{AsOfDate: "2026-02-01"})
	require.Equal(t, http.StatusOK, rec.Code)
	first := decode[AccrualResultDTO](t, rec)
	assert.Equal(t, 1, first.PeriodsCreated)

	rec = doJSON(t, router, http.MethodPost, "/api/accruals/run", RunAccrualRequest{AsOfDate: "2026-02-01"})
	require.Equal(t, http.StatusOK, rec.Code)
	second := decode[AccrualResultDTO](t, rec)
	assert.Equal(t, 0, second.PeriodsCreated)
}

// =============================================================================
// WITHDRAWAL TESTS
// =============================================================================

func TestAPI_WithdrawalFlow(t *testing.T) {
	router, _ := newTestRouter(t)
	created := createInvestment(t, router)
	base := fmt.Sprintf("/api/investments/%s/withdrawals", created.ID)

	rec := doJSON(t, router, http.MethodPost, base, CreateWithdrawalRequest{
		WithdrawDate: "2026-01-15",
		Amount:       4000,
		Reason:       "partial exit",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	w := decode[WithdrawalDTO](t, rec)
	assert.Equal(t, 4000.0, w.Amount)

	// Over-withdrawal conflicts
	rec = doJSON(t, router, http.MethodPost, base, CreateWithdrawalRequest{
		WithdrawDate: "2026-01-16",
		Amount:       7000,
	})
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = doJSON(t, router, http.MethodGet, base, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	withdrawals := decode[[]WithdrawalDTO](t, rec)
	assert.Len(t, withdrawals, 1)

	rec = doJSON(t, router, http.MethodGet, "/api/investments/"+created.ID+"/summary", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	summary := decode[InvestmentSummaryDTO](t, rec)
	assert.Equal(t, 6000.0, summary.Investment.CurrentPrincipal)
	assert.Equal(t, 4000.0, summary.WithdrawnTotal)
	assert.Equal(t, 1, summary.WithdrawalCount)
}

// =============================================================================
// PORTFOLIO AND COLLABORATOR TESTS
// =============================================================================

func TestAPI_Portfolio(t *testing.T) {
	router, _ := newTestRouter(t)
	createInvestment(t, router)

	rec := doJSON(t, router, http.MethodPost, "/api/accruals/run", RunAccrualRequest{AsOfDate: "2026-02-01"})
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doJSON(t, router, http.MethodGet, "/api/portfolio", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	portfolio := decode[PortfolioDTO](t, rec)
	assert.Equal(t, 1, portfolio.ActiveCount)
	assert.Equal(t, 10000.0, portfolio.PrincipalAtWork)
	assert.Equal(t, 200.0, portfolio.PendingProfit)
}

func TestAPI_Investors(t *testing.T) {
	router, _ := newTestRouter(t)

	rec := doJSON(t, router, http.MethodPost, "/api/investors", CreateInvestorRequest{ID: "investor-2", Name: "Bob"})
	assert.Equal(t, http.StatusCreated, rec.Code)

	rec = doJSON(t, router, http.MethodPost, "/api/investors", CreateInvestorRequest{Name: "no id"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doJSON(t, router, http.MethodGet, "/api/investors", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	investors := decode[[]InvestorDTO](t, rec)
	assert.Len(t, investors, 2)
}
