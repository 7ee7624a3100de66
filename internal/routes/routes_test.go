package routes

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"bank-reconciliation-backend/internal/cache"
	handler "bank-reconciliation-backend/internal/handlers"
	"bank-reconciliation-backend/internal/models"
	"bank-reconciliation-backend/internal/repository"
	"bank-reconciliation-backend/internal/services/analytics"
	"bank-reconciliation-backend/internal/services/period"
	"bank-reconciliation-backend/internal/services/reconciliation"
	"bank-reconciliation-backend/internal/testutil"
)

const statementCSV = "Date,Reference,Description,Amount\n" +
	"2026-03-12,AB12345678,Rent unit 4B,25000.00\n" +
	"2026-03-13,ZZ99,Unknown deposit,777.00\n"

type server struct {
	router  *gin.Engine
	handler *handler.Handler
	recon   *reconciliation.ReconciliationService
	db      *gorm.DB
}

func newServer(t *testing.T) *server {
	t.Helper()
	gin.SetMode(gin.TestMode)

	db := testutil.NewTestDB(t)
	store := repository.NewStore(db, repository.RetryPolicy{Attempts: 1}, cache.NewTTLCache[[]models.ReconciliationRule](time.Minute), zerolog.Nop())
	agg := analytics.NewAggregator(store, cache.NewTTLCache[*analytics.Summary](time.Minute), zerolog.Nop())
	recon := reconciliation.NewReconciliationService(store, reconciliation.Options{Summaries: agg}, zerolog.Nop())
	periods := period.NewManager(store, agg, zerolog.Nop())
	h := handler.New(context.Background(), recon, periods, agg, zerolog.Nop())

	return &server{
		router:  NewRouter(h, []string{"http://localhost:3000"}, zerolog.Nop()),
		handler: h,
		recon:   recon,
		db:      db,
	}
}

func (s *server) do(t *testing.T, method, path string, body any, user string) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if user != "" {
		req.Header.Set(handler.UserIDHeader, user)
	}
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	return w
}

func (s *server) upload(t *testing.T, accountID uuid.UUID, content string, async bool) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("file", "march.csv")
	require.NoError(t, err)
	_, err = part.Write([]byte(content))
	require.NoError(t, err)
	require.NoError(t, mw.WriteField("import_type", "csv"))
	if async {
		require.NoError(t, mw.WriteField("async", "true"))
	}
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/accounts/"+accountID.String()+"/statements", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set(handler.UserIDHeader, "clerk-1")
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &v), w.Body.String())
	return v
}

func (s *server) createAccount(t *testing.T) models.BankAccount {
	t.Helper()
	w := s.do(t, http.MethodPost, "/api/accounts", gin.H{
		"name":            "Operating",
		"bank_name":       "KCB",
		"account_number":  "1234567890",
		"currency":        "kes",
		"opening_balance": "100000",
	}, "admin")
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	return decode[struct {
		Account models.BankAccount `json:"account"`
	}](t, w).Account
}

func TestHealth(t *testing.T) {
	s := newServer(t)
	w := s.do(t, http.MethodGet, "/api/health", nil, "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"ok"}`, w.Body.String())
}

func TestAccounts(t *testing.T) {
	s := newServer(t)
	acc := s.createAccount(t)
	assert.Equal(t, "KES", acc.Currency)
	assert.Equal(t, "admin", acc.CreatedBy)
	assert.True(t, acc.IsActive)

	w := s.do(t, http.MethodGet, "/api/accounts/"+acc.ID.String(), nil, "")
	require.Equal(t, http.StatusOK, w.Code)
	got := decode[models.BankAccount](t, w)
	assert.True(t, testutil.Amount("100000").Equal(got.LastReconciledBalance))

	w = s.do(t, http.MethodGet, "/api/accounts", nil, "")
	require.Equal(t, http.StatusOK, w.Code)
	list := decode[struct {
		Items []models.BankAccount `json:"items"`
	}](t, w)
	assert.Len(t, list.Items, 1)

	assert.Equal(t, http.StatusBadRequest, s.do(t, http.MethodGet, "/api/accounts/not-a-uuid", nil, "").Code)
	assert.Equal(t, http.StatusNotFound, s.do(t, http.MethodGet, "/api/accounts/"+uuid.NewString(), nil, "").Code)
	assert.Equal(t, http.StatusBadRequest, s.do(t, http.MethodPost, "/api/accounts", gin.H{"currency": "KES"}, "").Code)

	w = s.do(t, http.MethodPost, "/api/accounts/"+acc.ID.String()+"/adjust", gin.H{"amount": "-150", "reason": "bank charge"}, "")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	adjusted := decode[struct {
		Account models.BankAccount `json:"account"`
	}](t, w).Account
	assert.True(t, testutil.Amount("99850").Equal(adjusted.CurrentBalance))
	assert.Equal(t, http.StatusBadRequest,
		s.do(t, http.MethodPost, "/api/accounts/"+acc.ID.String()+"/adjust", gin.H{"amount": "10"}, "").Code)
}

func TestImportAutoMatchAndUnmatch(t *testing.T) {
	s := newServer(t)
	_, err := s.recon.SeedDefaultRules(context.Background())
	require.NoError(t, err)
	acc := s.createAccount(t)

	w := s.do(t, http.MethodPost, "/api/payments", gin.H{
		"reference":    "AB12345678",
		"payer_name":   "Tenant 4B",
		"amount":       "25000",
		"payment_date": "2026-03-10",
	}, "")
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	w = s.upload(t, acc.ID, statementCSV, false)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	report := decode[reconciliation.ImportReport](t, w)
	assert.Equal(t, models.ImportCompleted, report.Batch.Status)
	assert.Equal(t, 2, report.Batch.SuccessfulRows)
	assert.Equal(t, "clerk-1", report.Batch.CreatedBy)

	w = s.do(t, http.MethodPost, "/api/reconciliation/auto-match", gin.H{"account_id": acc.ID.String()}, "")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	result := decode[reconciliation.AutoMatchResult](t, w)
	assert.Equal(t, 2, result.Processed)
	assert.Equal(t, 1, result.Matched)
	assert.Equal(t, 0, result.PotentialMatches)

	w = s.do(t, http.MethodGet, "/api/accounts/"+acc.ID.String()+"/transactions?status=matched", nil, "")
	require.Equal(t, http.StatusOK, w.Code)
	page := decode[struct {
		Items   []models.BankTransaction `json:"items"`
		HasMore bool                     `json:"has_more"`
	}](t, w)
	require.Len(t, page.Items, 1)
	assert.False(t, page.HasMore)
	matched := page.Items[0]
	assert.Equal(t, "AB12345678", matched.Reference)

	w = s.do(t, http.MethodGet, "/api/transactions/"+matched.ID.String()+"/matches", nil, "")
	require.Equal(t, http.StatusOK, w.Code)
	history := decode[reconciliation.MatchHistory](t, w)
	require.Len(t, history.Matches, 1)
	assert.Equal(t, models.ConfidenceHigh, history.Matches[0].Confidence)

	w = s.do(t, http.MethodPost, "/api/transactions/"+matched.ID.String()+"/unmatch", gin.H{"reason": "wrong tenant"}, "reviewer")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	w = s.do(t, http.MethodPost, "/api/transactions/"+matched.ID.String()+"/unmatch", nil, "")
	assert.Equal(t, http.StatusConflict, w.Code)

	w = s.do(t, http.MethodGet, "/api/analytics/summary?account_id="+acc.ID.String(), nil, "")
	require.Equal(t, http.StatusOK, w.Code)
	summary := decode[analytics.Summary](t, w)
	assert.Equal(t, int64(2), summary.TotalTransactions)
	assert.Equal(t, int64(0), summary.MatchedTransactions)

	w = s.upload(t, acc.ID, statementCSV, false)
	require.Equal(t, http.StatusOK, w.Code)
	again := decode[reconciliation.ImportReport](t, w)
	assert.Equal(t, 2, again.Batch.DuplicateRows)
	assert.Equal(t, 0, again.Batch.SuccessfulRows)
}

func TestUpload_Errors(t *testing.T) {
	s := newServer(t)
	acc := s.createAccount(t)

	w := s.upload(t, acc.ID, "when,what\n2026-03-01,x\n", false)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	body := decode[map[string]any](t, w)
	assert.Contains(t, body, "batch")

	w = s.upload(t, uuid.New(), statementCSV, false)
	assert.Equal(t, http.StatusNotFound, w.Code)

	req := httptest.NewRequest(http.MethodPost, "/api/accounts/"+acc.ID.String()+"/statements", nil)
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestUpload_Async(t *testing.T) {
	s := newServer(t)
	acc := s.createAccount(t)

	w := s.upload(t, acc.ID, statementCSV, true)
	require.Equal(t, http.StatusAccepted, w.Code, w.Body.String())
	accepted := decode[struct {
		BatchID string `json:"batch_id"`
	}](t, w)
	s.handler.Wait()

	w = s.do(t, http.MethodGet, "/api/imports/"+accepted.BatchID, nil, "")
	require.Equal(t, http.StatusOK, w.Code)
	batch := decode[models.ImportBatch](t, w)
	assert.Equal(t, models.ImportCompleted, batch.Status)
	assert.Equal(t, 2, batch.SuccessfulRows)

	assert.Equal(t, http.StatusNotFound, s.do(t, http.MethodGet, "/api/imports/"+uuid.NewString(), nil, "").Code)
}

func TestFeedTransactions(t *testing.T) {
	s := newServer(t)
	acc := s.createAccount(t)
	path := "/api/accounts/" + acc.ID.String() + "/transactions"
	line := gin.H{
		"transaction_date": "2026-03-15",
		"reference":        "MPESA-QX1",
		"description":      "Till payment",
		"amount":           "1500",
		"type":             "credit",
		"source":           "external_feed",
	}

	w := s.do(t, http.MethodPost, path, line, "feed-bot")
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	tx := decode[struct {
		Transaction models.BankTransaction `json:"transaction"`
	}](t, w).Transaction
	assert.Equal(t, models.SourceExternalFeed, tx.Source)
	assert.Equal(t, models.StatusUnmatched, tx.Status)
	assert.Equal(t, "feed-bot", tx.CreatedBy)

	assert.Equal(t, http.StatusConflict, s.do(t, http.MethodPost, path, line, "").Code)

	line["transaction_date"] = "someday"
	assert.Equal(t, http.StatusBadRequest, s.do(t, http.MethodPost, path, line, "").Code)

	w = s.do(t, http.MethodGet, path+"?search=till&limit=10", nil, "")
	require.Equal(t, http.StatusOK, w.Code)
	page := decode[struct {
		Items []models.BankTransaction `json:"items"`
	}](t, w)
	assert.Len(t, page.Items, 1)
	assert.Equal(t, http.StatusBadRequest, s.do(t, http.MethodGet, path+"?limit=abc", nil, "").Code)
}

func TestManualMatchAndStatusChanges(t *testing.T) {
	s := newServer(t)
	acc := s.createAccount(t)
	tx := testutil.CreateTransaction(t, s.db, acc.ID, "REF-9", "4200", models.TransactionTypeCredit, testutil.Day(2026, 3, 3))

	w := s.do(t, http.MethodPost, "/api/financial-transactions", gin.H{
		"kind":             "income",
		"reference":        "INV-9",
		"amount":           "4200",
		"transaction_date": "03/03/2026",
	}, "")
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	ft := decode[struct {
		FinancialTransaction models.FinancialTransaction `json:"financial_transaction"`
	}](t, w).FinancialTransaction

	matchPath := "/api/transactions/" + tx.ID.String() + "/match"
	w = s.do(t, http.MethodPost, matchPath, gin.H{
		"entity_type": "financial_transaction",
		"entity_id":   ft.ID.String(),
		"notes":       "confirmed with tenant",
	}, "accountant")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	match := decode[struct {
		Match models.TransactionMatch `json:"match"`
	}](t, w).Match
	assert.Equal(t, "accountant", match.MatchedBy)
	assert.Equal(t, models.ConfidenceManual, match.Confidence)

	w = s.do(t, http.MethodPost, matchPath, gin.H{"entity_type": "financial_transaction", "entity_id": ft.ID.String()}, "")
	assert.Equal(t, http.StatusConflict, w.Code)
	w = s.do(t, http.MethodPost, matchPath, gin.H{"entity_type": "invoice", "entity_id": uuid.NewString(), "replace": true}, "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
	w = s.do(t, http.MethodPost, matchPath, gin.H{"entity_type": "payment", "entity_id": "nope"}, "")
	assert.Equal(t, http.StatusBadRequest, w.Code)

	base := "/api/transactions/" + tx.ID.String()
	assert.Equal(t, http.StatusConflict, s.do(t, http.MethodPost, base+"/ignore", nil, "").Code)
	require.Equal(t, http.StatusOK, s.do(t, http.MethodPost, base+"/unmatch", nil, "").Code)
	assert.Equal(t, http.StatusOK, s.do(t, http.MethodPost, base+"/dispute", gin.H{"reason": "amount mismatch"}, "").Code)
	assert.Equal(t, http.StatusOK, s.do(t, http.MethodPost, base+"/restore", nil, "").Code)
	assert.Equal(t, http.StatusConflict, s.do(t, http.MethodPost, base+"/restore", nil, "").Code)
	assert.Equal(t, http.StatusOK, s.do(t, http.MethodPost, base+"/ignore", gin.H{"reason": "bank duplicate", "duplicate": true}, "").Code)
	assert.Equal(t, http.StatusNotFound, s.do(t, http.MethodPost, "/api/transactions/"+uuid.NewString()+"/ignore", nil, "").Code)
}

func TestRules(t *testing.T) {
	s := newServer(t)

	w := s.do(t, http.MethodPost, "/api/rules", gin.H{
		"name":                      "Exact rent",
		"priority":                  5,
		"amount_tolerance_absolute": "1",
		"date_tolerance_days":       2,
		"reference_pattern":         "^RENT-",
		"description_keywords":      []string{"rent"},
		"target_entity_type":        "payment",
		"min_confidence_score":      0.7,
	}, "admin")
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	rule := decode[struct {
		Rule models.ReconciliationRule `json:"rule"`
	}](t, w).Rule
	assert.True(t, rule.IsActive)
	assert.True(t, rule.AutoMatchEnabled)
	assert.Equal(t, "admin", rule.CreatedBy)

	w = s.do(t, http.MethodPost, "/api/rules", gin.H{"name": "Broken", "target_entity_type": "payment", "reference_pattern": "(["}, "")
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = s.do(t, http.MethodPut, "/api/rules/"+rule.ID.String(), gin.H{
		"name":               "Exact rent",
		"priority":           7,
		"target_entity_type": "payment",
		"auto_match_enabled": false,
	}, "")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	updated := decode[struct {
		Rule models.ReconciliationRule `json:"rule"`
	}](t, w).Rule
	assert.Equal(t, 7, updated.Priority)
	assert.False(t, updated.AutoMatchEnabled)

	w = s.do(t, http.MethodGet, "/api/rules", nil, "")
	require.Equal(t, http.StatusOK, w.Code)
	list := decode[struct {
		Items []models.ReconciliationRule `json:"items"`
	}](t, w)
	assert.Len(t, list.Items, 1)

	assert.Equal(t, http.StatusOK, s.do(t, http.MethodDelete, "/api/rules/"+rule.ID.String(), nil, "").Code)
	assert.Equal(t, http.StatusNotFound, s.do(t, http.MethodDelete, "/api/rules/"+rule.ID.String(), nil, "").Code)
}

func TestPeriodLifecycle(t *testing.T) {
	s := newServer(t)
	acc := s.createAccount(t)
	credit := testutil.CreateTransaction(t, s.db, acc.ID, "C1", "50000", models.TransactionTypeCredit, testutil.Day(2026, 3, 5))
	debit := testutil.CreateTransaction(t, s.db, acc.ID, "D1", "20000", models.TransactionTypeDebit, testutil.Day(2026, 3, 9))
	require.NoError(t, s.db.Model(&models.BankTransaction{}).
		Where("id IN ?", []uuid.UUID{credit.ID, debit.ID}).
		Update("status", models.StatusMatched).Error)

	w := s.do(t, http.MethodPost, "/api/accounts/"+acc.ID.String()+"/periods", gin.H{
		"start_date": "2026-03-01",
		"end_date":   "2026-03-31",
	}, "accountant")
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	p := decode[struct {
		Period models.ReconciliationPeriod `json:"period"`
	}](t, w).Period
	assert.Equal(t, models.PeriodInProgress, p.Status)

	w = s.do(t, http.MethodPost, "/api/accounts/"+acc.ID.String()+"/periods", gin.H{
		"start_date": "2026-04-01",
		"end_date":   "2026-04-30",
	}, "")
	assert.Equal(t, http.StatusConflict, w.Code)

	base := "/api/periods/" + p.ID.String()
	require.Equal(t, http.StatusOK, s.do(t, http.MethodPost, base+"/refresh", nil, "").Code)
	assert.Equal(t, http.StatusBadRequest, s.do(t, http.MethodPost, base+"/close", gin.H{"notes": "x"}, "").Code)

	w = s.do(t, http.MethodPost, base+"/close", gin.H{"statement_balance": "129500"}, "accountant")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	closed := decode[struct {
		Period models.ReconciliationPeriod `json:"period"`
	}](t, w).Period
	assert.True(t, testutil.Amount("130000").Equal(closed.ClosingBalance))
	assert.True(t, testutil.Amount("500").Equal(closed.TotalVariance))

	assert.Equal(t, http.StatusConflict, s.do(t, http.MethodPost, base+"/review", nil, "").Code)
	w = s.do(t, http.MethodPost, base+"/review", gin.H{"notes": "April fee"}, "controller")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, http.StatusConflict, s.do(t, http.MethodPost, base+"/reopen", gin.H{"reason": "late"}, "").Code)

	w = s.do(t, http.MethodGet, base, nil, "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, models.PeriodReviewed, decode[models.ReconciliationPeriod](t, w).Status)

	w = s.do(t, http.MethodGet, "/api/accounts/"+acc.ID.String()+"/periods", nil, "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, decode[struct {
		Items []models.ReconciliationPeriod `json:"items"`
	}](t, w).Items, 1)
}

func TestSummary_BadQuery(t *testing.T) {
	s := newServer(t)
	assert.Equal(t, http.StatusBadRequest, s.do(t, http.MethodGet, "/api/analytics/summary?account_id=x", nil, "").Code)
	assert.Equal(t, http.StatusBadRequest, s.do(t, http.MethodGet, "/api/analytics/summary?from=soon", nil, "").Code)
	assert.Equal(t, http.StatusOK, s.do(t, http.MethodGet, "/api/analytics/summary?from=2026-01-01&to=2026-12-31", nil, "").Code)
}

func TestAutoMatch_BadCursor(t *testing.T) {
	s := newServer(t)

	w := s.do(t, http.MethodPost, "/api/reconciliation/auto-match", gin.H{"cursor": "not-a-uuid"}, "")
	assert.Equal(t, http.StatusBadRequest, w.Code, w.Body.String())
	assert.Contains(t, w.Body.String(), "invalid cursor")

	w = s.do(t, http.MethodPost, "/api/reconciliation/auto-match", gin.H{"cursor": uuid.NewString()}, "")
	assert.Equal(t, http.StatusOK, w.Code, w.Body.String())
}
