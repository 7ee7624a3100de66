package period

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"bank-reconciliation-backend/internal/apperrors"
	"bank-reconciliation-backend/internal/cache"
	"bank-reconciliation-backend/internal/models"
	"bank-reconciliation-backend/internal/repository"
	"bank-reconciliation-backend/internal/testutil"
)

var testNow = time.Date(2026, 4, 2, 8, 0, 0, 0, time.UTC)

type countingInvalidator struct{ calls int }

func (c *countingInvalidator) Invalidate() { c.calls++ }

func assertAmount(t *testing.T, want string, got decimal.Decimal) {
	t.Helper()
	assert.True(t, testutil.Amount(want).Equal(got), "want %s, got %s", want, got)
}

type fixture struct {
	db      *gorm.DB
	store   *repository.Store
	mgr     *Manager
	summary *countingInvalidator
	account *models.BankAccount
}

// newFixture seeds an account reconciled at 100,000 with March activity:
// matched credit 50,000, matched debit 20,000, an unmatched credit and a
// matched credit dated outside the month.
func newFixture(t *testing.T) *fixture {
	t.Helper()
	db := testutil.NewTestDB(t)
	store := repository.NewStore(db, repository.RetryPolicy{Attempts: 1}, cache.NewTTLCache[[]models.ReconciliationRule](time.Minute), zerolog.Nop())
	f := &fixture{db: db, store: store, summary: &countingInvalidator{}}
	f.mgr = NewManager(store, f.summary, zerolog.Nop()).WithClock(func() time.Time { return testNow })
	f.account = testutil.CreateAccount(t, db, "100000")

	credit := testutil.CreateTransaction(t, db, f.account.ID, "C1", "50000", models.TransactionTypeCredit, testutil.Day(2026, 3, 5))
	debit := testutil.CreateTransaction(t, db, f.account.ID, "D1", "20000", models.TransactionTypeDebit, testutil.Day(2026, 3, 18))
	testutil.CreateTransaction(t, db, f.account.ID, "C2", "999", models.TransactionTypeCredit, testutil.Day(2026, 3, 20))
	outside := testutil.CreateTransaction(t, db, f.account.ID, "C3", "7000", models.TransactionTypeCredit, testutil.Day(2026, 4, 1))
	f.setStatus(t, credit.ID, models.StatusMatched)
	f.setStatus(t, debit.ID, models.StatusManualMatch)
	f.setStatus(t, outside.ID, models.StatusMatched)
	return f
}

func (f *fixture) setStatus(t *testing.T, id uuid.UUID, status models.TransactionStatus) {
	t.Helper()
	require.NoError(t, f.db.Model(&models.BankTransaction{}).Where("id = ?", id).Update("status", status).Error)
}

func (f *fixture) startMarch(t *testing.T) *models.ReconciliationPeriod {
	t.Helper()
	p, err := f.mgr.Start(context.Background(), StartRequest{
		AccountID: f.account.ID,
		StartDate: testutil.Day(2026, 3, 1),
		EndDate:   testutil.Day(2026, 3, 31),
		UserID:    "accountant",
	})
	require.NoError(t, err)
	return p
}

func TestValidateTransition(t *testing.T) {
	tests := []struct {
		from, to models.PeriodStatus
		ok       bool
	}{
		{models.PeriodInProgress, models.PeriodCompleted, true},
		{models.PeriodCompleted, models.PeriodReviewed, true},
		{models.PeriodCompleted, models.PeriodInProgress, true},
		{models.PeriodInProgress, models.PeriodReviewed, false},
		{models.PeriodReviewed, models.PeriodInProgress, false},
		{models.PeriodReviewed, models.PeriodCompleted, false},
		{models.PeriodCompleted, models.PeriodCompleted, false},
	}
	for _, tt := range tests {
		t.Run(string(tt.from)+"->"+string(tt.to), func(t *testing.T) {
			err := ValidateTransition(tt.from, tt.to)
			if tt.ok {
				assert.NoError(t, err)
			} else {
				assert.ErrorIs(t, err, ErrInvalidTransition)
			}
		})
	}
}

func TestClosingBalance(t *testing.T) {
	got := ClosingBalance(testutil.Amount("100000"), testutil.Amount("50000"), testutil.Amount("20000"))
	assertAmount(t, "130000", got)
}

func TestStart(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	p := f.startMarch(t)
	assert.Equal(t, models.PeriodInProgress, p.Status)
	assertAmount(t, "100000", p.OpeningBalance)
	assertAmount(t, "130000", p.ClosingBalance)
	assert.Equal(t, 3, p.TotalTransactions)
	assert.Equal(t, 2, p.MatchedTransactions)
	assert.Equal(t, 1, p.UnmatchedTransactions)
	assert.Equal(t, "accountant", p.CreatedBy)

	_, err := f.mgr.Start(ctx, StartRequest{
		AccountID: f.account.ID,
		StartDate: testutil.Day(2026, 4, 1),
		EndDate:   testutil.Day(2026, 4, 30),
	})
	assert.ErrorIs(t, err, ErrPeriodInProgress)
	assert.Equal(t, apperrors.KindInvariant, apperrors.KindOf(err))
}

func TestStart_Validation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.mgr.Start(ctx, StartRequest{
		AccountID: f.account.ID,
		StartDate: testutil.Day(2026, 3, 31),
		EndDate:   testutil.Day(2026, 3, 1),
	})
	assert.Equal(t, apperrors.KindValidation, apperrors.KindOf(err))

	_, err = f.mgr.Start(ctx, StartRequest{AccountID: f.account.ID})
	assert.Equal(t, apperrors.KindValidation, apperrors.KindOf(err))

	_, err = f.mgr.Start(ctx, StartRequest{
		AccountID: uuid.New(),
		StartDate: testutil.Day(2026, 3, 1),
		EndDate:   testutil.Day(2026, 3, 31),
	})
	assert.True(t, apperrors.IsNotFound(err))
}

func TestClose_ZeroVariance(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p := f.startMarch(t)

	closed, err := f.mgr.Close(ctx, p.ID, CloseRequest{StatementBalance: testutil.Amount("130000"), UserID: "accountant"})
	require.NoError(t, err)
	assert.Equal(t, models.PeriodCompleted, closed.Status)
	assertAmount(t, "130000", closed.ClosingBalance)
	assertAmount(t, "0", closed.TotalVariance)
	assert.Equal(t, "accountant", closed.CompletedBy)
	require.NotNil(t, closed.CompletedAt)

	stored, err := f.mgr.Get(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, models.PeriodCompleted, stored.Status)
	assertAmount(t, "130000", stored.StatementBalance)

	acc, err := f.store.Accounts.GetByID(ctx, f.account.ID)
	require.NoError(t, err)
	assertAmount(t, "130000", acc.LastReconciledBalance)
	require.NotNil(t, acc.LastReconciledDate)
	assert.True(t, testutil.Day(2026, 3, 31).Equal(*acc.LastReconciledDate))

	_, err = f.mgr.Close(ctx, p.ID, CloseRequest{StatementBalance: testutil.Amount("130000")})
	assert.ErrorIs(t, err, ErrInvalidTransition)
}

func TestClose_VarianceNeedsNoteBeforeReview(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p := f.startMarch(t)

	closed, err := f.mgr.Close(ctx, p.ID, CloseRequest{StatementBalance: testutil.Amount("129500")})
	require.NoError(t, err)
	assertAmount(t, "500", closed.TotalVariance)
	assert.Equal(t, "system", closed.CompletedBy)

	_, err = f.mgr.Review(ctx, p.ID, ReviewRequest{UserID: "controller"})
	assert.ErrorIs(t, err, ErrUnexplainedVariance)

	reviewed, err := f.mgr.Review(ctx, p.ID, ReviewRequest{Notes: "bank fee posted in April", UserID: "controller"})
	require.NoError(t, err)
	assert.Equal(t, models.PeriodReviewed, reviewed.Status)
	assert.Equal(t, "controller", reviewed.ReviewedBy)
	assert.Equal(t, "bank fee posted in April", reviewed.Notes)

	_, err = f.mgr.Review(ctx, p.ID, ReviewRequest{Notes: "again"})
	assert.ErrorIs(t, err, ErrInvalidTransition)
	_, err = f.mgr.Reopen(ctx, p.ID, ReopenRequest{Reason: "late entry"})
	assert.ErrorIs(t, err, ErrInvalidTransition)
}

func TestReview_ZeroVarianceNeedsNoNote(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p := f.startMarch(t)

	_, err := f.mgr.Review(ctx, p.ID, ReviewRequest{})
	assert.ErrorIs(t, err, ErrInvalidTransition)

	_, err = f.mgr.Close(ctx, p.ID, CloseRequest{StatementBalance: testutil.Amount("130000")})
	require.NoError(t, err)
	reviewed, err := f.mgr.Review(ctx, p.ID, ReviewRequest{})
	require.NoError(t, err)
	assert.Equal(t, models.PeriodReviewed, reviewed.Status)
}

func TestReopen(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p := f.startMarch(t)

	_, err := f.mgr.Close(ctx, p.ID, CloseRequest{StatementBalance: testutil.Amount("130000")})
	require.NoError(t, err)

	_, err = f.mgr.Reopen(ctx, p.ID, ReopenRequest{})
	assert.Equal(t, apperrors.KindValidation, apperrors.KindOf(err))

	reopened, err := f.mgr.Reopen(ctx, p.ID, ReopenRequest{Reason: "missed a deposit", UserID: "controller"})
	require.NoError(t, err)
	assert.Equal(t, models.PeriodInProgress, reopened.Status)
	assert.Nil(t, reopened.CompletedAt)
	assert.Contains(t, reopened.Notes, "missed a deposit")

	acc, err := f.store.Accounts.GetByID(ctx, f.account.ID)
	require.NoError(t, err)
	assertAmount(t, "130000", acc.LastReconciledBalance)

	_, err = f.mgr.Start(ctx, StartRequest{
		AccountID: f.account.ID,
		StartDate: testutil.Day(2026, 4, 1),
		EndDate:   testutil.Day(2026, 4, 30),
	})
	assert.ErrorIs(t, err, ErrPeriodInProgress)

	closed, err := f.mgr.Close(ctx, p.ID, CloseRequest{StatementBalance: testutil.Amount("130000")})
	require.NoError(t, err)
	assert.Equal(t, models.PeriodCompleted, closed.Status)
}

func TestReopen_BlockedByAnotherOpenPeriod(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p := f.startMarch(t)
	_, err := f.mgr.Close(ctx, p.ID, CloseRequest{StatementBalance: testutil.Amount("130000")})
	require.NoError(t, err)

	_, err = f.mgr.Start(ctx, StartRequest{
		AccountID: f.account.ID,
		StartDate: testutil.Day(2026, 4, 1),
		EndDate:   testutil.Day(2026, 4, 30),
	})
	require.NoError(t, err)

	_, err = f.mgr.Reopen(ctx, p.ID, ReopenRequest{Reason: "late entry"})
	assert.ErrorIs(t, err, ErrPeriodInProgress)
}

func TestRefresh(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p := f.startMarch(t)

	late := testutil.CreateTransaction(t, f.db, f.account.ID, "C4", "1000", models.TransactionTypeCredit, testutil.Day(2026, 3, 25))
	f.setStatus(t, late.ID, models.StatusMatched)

	refreshed, err := f.mgr.Refresh(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, 4, refreshed.TotalTransactions)
	assert.Equal(t, 3, refreshed.MatchedTransactions)
	assertAmount(t, "131000", refreshed.ClosingBalance)

	stored, err := f.mgr.Get(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, 4, stored.TotalTransactions)

	_, err = f.mgr.Close(ctx, p.ID, CloseRequest{StatementBalance: testutil.Amount("131000")})
	require.NoError(t, err)
	_, err = f.mgr.Refresh(ctx, p.ID)
	assert.ErrorIs(t, err, ErrInvalidTransition)
}

func TestListForAccount(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.startMarch(t)

	periods, err := f.mgr.ListForAccount(ctx, f.account.ID)
	require.NoError(t, err)
	assert.Len(t, periods, 1)

	_, err = f.mgr.ListForAccount(ctx, uuid.New())
	assert.True(t, apperrors.IsNotFound(err))

	_, err = f.mgr.Get(ctx, uuid.New())
	assert.True(t, apperrors.IsNotFound(err))
}

func TestAdjustBalance(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.mgr.AdjustBalance(ctx, f.account.ID, AdjustRequest{Amount: decimal.Zero, Reason: "x"})
	assert.Equal(t, apperrors.KindValidation, apperrors.KindOf(err))
	_, err = f.mgr.AdjustBalance(ctx, f.account.ID, AdjustRequest{Amount: testutil.Amount("250")})
	assert.Equal(t, apperrors.KindValidation, apperrors.KindOf(err))
	_, err = f.mgr.AdjustBalance(ctx, uuid.New(), AdjustRequest{Amount: testutil.Amount("250"), Reason: "fee"})
	assert.True(t, apperrors.IsNotFound(err))

	acc, err := f.mgr.AdjustBalance(ctx, f.account.ID, AdjustRequest{Amount: testutil.Amount("-250.50"), Reason: "bank charge"})
	require.NoError(t, err)
	assertAmount(t, "99749.50", acc.CurrentBalance)

	stored, err := f.store.Accounts.GetByID(ctx, f.account.ID)
	require.NoError(t, err)
	assertAmount(t, "99749.50", stored.CurrentBalance)
	assertAmount(t, "100000", stored.LastReconciledBalance)
}

func TestWritesInvalidateSummaries(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p := f.startMarch(t)
	_, err := f.mgr.Close(ctx, p.ID, CloseRequest{StatementBalance: testutil.Amount("130000")})
	require.NoError(t, err)
	_, err = f.mgr.Reopen(ctx, p.ID, ReopenRequest{Reason: "check"})
	require.NoError(t, err)
	assert.Equal(t, 3, f.summary.calls)

	_, err = f.mgr.Close(ctx, uuid.New(), CloseRequest{})
	assert.True(t, apperrors.IsNotFound(err))
	assert.False(t, errors.Is(err, ErrInvalidTransition))
	assert.Equal(t, 3, f.summary.calls)
}
