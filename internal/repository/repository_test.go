package repository

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bank-reconciliation-backend/internal/apperrors"
	"bank-reconciliation-backend/internal/cache"
	"bank-reconciliation-backend/internal/models"
	"bank-reconciliation-backend/internal/testutil"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	db := testutil.NewTestDB(t)
	return NewStore(db, RetryPolicy{Attempts: 1}, cache.NewTTLCache[[]models.ReconciliationRule](time.Minute), zerolog.Nop())
}

func TestBankTransactionRepository_IsDuplicate(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	acc := testutil.CreateAccount(t, store.DB(), "0")
	day := testutil.Day(2026, 3, 1)
	testutil.CreateTransaction(t, store.DB(), acc.ID, "REF-1", "100", models.TransactionTypeCredit, day)

	dup, err := store.Transactions.IsDuplicate(ctx, acc.ID, "REF-1", day.Add(5*time.Hour))
	require.NoError(t, err)
	assert.True(t, dup)

	dup, err = store.Transactions.IsDuplicate(ctx, acc.ID, "REF-1", day.AddDate(0, 0, 1))
	require.NoError(t, err)
	assert.False(t, dup)

	dup, err = store.Transactions.IsDuplicate(ctx, uuid.New(), "REF-1", day)
	require.NoError(t, err)
	assert.False(t, dup)
}

func TestBankTransactionRepository_CreateRejectsDuplicateReference(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	acc := testutil.CreateAccount(t, store.DB(), "0")
	day := testutil.Day(2026, 3, 1)
	testutil.CreateTransaction(t, store.DB(), acc.ID, "REF-1", "100", models.TransactionTypeCredit, day)

	newTx := func(ref string, date time.Time) *models.BankTransaction {
		return &models.BankTransaction{
			BankAccountID:   acc.ID,
			TransactionDate: date,
			Reference:       ref,
			Amount:          testutil.Amount("5"),
			Type:            models.TransactionTypeCredit,
			Source:          models.SourceManual,
			Status:          models.StatusUnmatched,
		}
	}

	err := store.Transactions.Create(ctx, newTx("REF-1", day.Add(3*time.Hour)))
	assert.ErrorIs(t, err, ErrDuplicate)

	require.NoError(t, store.Transactions.Create(ctx, newTx("REF-1", day.AddDate(0, 0, 1))))
	require.NoError(t, store.Transactions.Create(ctx, newTx("", day)))
	require.NoError(t, store.Transactions.Create(ctx, newTx("", day)), "blank references are not deduplicated by the index")
}

func TestBankTransactionRepository_CompareAndSwapStatus(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	acc := testutil.CreateAccount(t, store.DB(), "0")
	tx := testutil.CreateTransaction(t, store.DB(), acc.ID, "REF-1", "100", models.TransactionTypeCredit, testutil.Day(2026, 3, 1))

	err := store.Transactions.CompareAndSwapStatus(ctx, tx.ID,
		[]models.TransactionStatus{models.StatusUnmatched},
		map[string]interface{}{"status": models.StatusIgnored})
	require.NoError(t, err)

	err = store.Transactions.CompareAndSwapStatus(ctx, tx.ID,
		[]models.TransactionStatus{models.StatusUnmatched},
		map[string]interface{}{"status": models.StatusMatched})
	assert.ErrorIs(t, err, ErrStatusConflict)

	got, err := store.Transactions.GetByID(ctx, tx.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusIgnored, got.Status)
}

func TestBankTransactionRepository_GetByIDNotFound(t *testing.T) {
	store := newTestStore(t)

	_, err := store.Transactions.GetByID(context.Background(), uuid.New())
	assert.True(t, apperrors.IsNotFound(err))
}

func TestBankTransactionRepository_ListPaginates(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	acc := testutil.CreateAccount(t, store.DB(), "0")
	for i := 0; i < 5; i++ {
		testutil.CreateTransaction(t, store.DB(), acc.ID, uuid.NewString()[:8], "10", models.TransactionTypeCredit, testutil.Day(2026, 3, 1+i))
	}

	page, cursor, more, err := store.Transactions.List(ctx, ListQuery{AccountID: acc.ID, Limit: 3})
	require.NoError(t, err)
	assert.Len(t, page, 3)
	assert.True(t, more)
	require.NotEmpty(t, cursor)

	rest, _, more, err := store.Transactions.List(ctx, ListQuery{AccountID: acc.ID, Limit: 3, Cursor: cursor})
	require.NoError(t, err)
	assert.Len(t, rest, 2)
	assert.False(t, more)
}

func TestBankTransactionRepository_PeriodTotals(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	acc := testutil.CreateAccount(t, store.DB(), "0")
	db := store.DB()

	credit := testutil.CreateTransaction(t, db, acc.ID, "C1", "50000", models.TransactionTypeCredit, testutil.Day(2026, 1, 10))
	debit := testutil.CreateTransaction(t, db, acc.ID, "D1", "20000", models.TransactionTypeDebit, testutil.Day(2026, 1, 20))
	testutil.CreateTransaction(t, db, acc.ID, "U1", "999", models.TransactionTypeCredit, testutil.Day(2026, 1, 15))
	outside := testutil.CreateTransaction(t, db, acc.ID, "C2", "7000", models.TransactionTypeCredit, testutil.Day(2026, 2, 1))

	for _, id := range []uuid.UUID{credit.ID, debit.ID, outside.ID} {
		require.NoError(t, db.Model(&models.BankTransaction{}).Where("id = ?", id).Update("status", models.StatusMatched).Error)
	}

	totals, err := store.Transactions.PeriodTotals(ctx, acc.ID, testutil.Day(2026, 1, 1), testutil.Day(2026, 1, 31))
	require.NoError(t, err)

	assert.True(t, totals.MatchedCredits.Equal(testutil.Amount("50000")), totals.MatchedCredits.String())
	assert.True(t, totals.MatchedDebits.Equal(testutil.Amount("20000")), totals.MatchedDebits.String())
	assert.Equal(t, int64(3), totals.Total)
	assert.Equal(t, int64(2), totals.Matched)
	assert.Equal(t, int64(1), totals.Unmatched)
}

func TestMatchRepository_OneActiveMatchPerTransaction(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	acc := testutil.CreateAccount(t, store.DB(), "0")
	tx := testutil.CreateTransaction(t, store.DB(), acc.ID, "REF-1", "100", models.TransactionTypeCredit, testutil.Day(2026, 3, 1))

	first := &models.TransactionMatch{
		BankTransactionID: tx.ID,
		EntityType:        models.EntityTypePayment,
		EntityID:          uuid.New(),
		MatchedAmount:     testutil.Amount("100"),
		Confidence:        models.ConfidenceManual,
		MatchingScore:     1,
	}
	require.NoError(t, store.Matches.Create(ctx, first))

	second := *first
	second.ID = uuid.Nil
	second.EntityID = uuid.New()
	assert.Error(t, store.Matches.Create(ctx, &second), "partial unique index must reject a second active match")

	n, err := store.Matches.DeactivateActive(ctx, tx.ID, "tester", time.Now().UTC())
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	second.ID = uuid.Nil
	require.NoError(t, store.Matches.Create(ctx, &second))

	history, err := store.Matches.History(ctx, tx.ID)
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.False(t, history[0].IsActive)
	assert.Equal(t, "tester", history[0].DeactivatedBy)
	assert.True(t, history[1].IsActive)

	active, err := store.Matches.FindActive(ctx, tx.ID)
	require.NoError(t, err)
	require.NotNil(t, active)
	assert.Equal(t, second.EntityID, active.EntityID)
}

func TestStore_InTxRollsBack(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	acc := testutil.CreateAccount(t, store.DB(), "0")
	tx := testutil.CreateTransaction(t, store.DB(), acc.ID, "REF-1", "100", models.TransactionTypeCredit, testutil.Day(2026, 3, 1))
	boom := errors.New("boom")

	err := store.InTx(ctx, func(s *Store) error {
		if err := s.Transactions.CompareAndSwapStatus(ctx, tx.ID,
			[]models.TransactionStatus{models.StatusUnmatched},
			map[string]interface{}{"status": models.StatusIgnored}); err != nil {
			return err
		}
		return boom
	})
	assert.ErrorIs(t, err, boom)

	got, err := store.Transactions.GetByID(ctx, tx.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusUnmatched, got.Status)
}

func TestRuleRepository_CacheInvalidatedOnWrite(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	rules, err := store.Rules.ActiveAutoMatch(ctx)
	require.NoError(t, err)
	assert.Empty(t, rules)

	rule := &models.ReconciliationRule{
		Name:              "payments",
		Priority:          1,
		DateToleranceDays: 3,
		TargetEntityType:  models.EntityTypePayment,
		AutoMatchEnabled:  true,
		IsActive:          true,
	}
	require.NoError(t, store.Rules.Create(ctx, rule))

	rules, err = store.Rules.ActiveAutoMatch(ctx)
	require.NoError(t, err)
	require.Len(t, rules, 1)

	rule.AutoMatchEnabled = false
	require.NoError(t, store.Rules.Update(ctx, rule))

	rules, err = store.Rules.ActiveAutoMatch(ctx)
	require.NoError(t, err)
	assert.Empty(t, rules)
}

func TestRuleRepository_RejectsInvalidPattern(t *testing.T) {
	store := newTestStore(t)

	err := store.Rules.Create(context.Background(), &models.ReconciliationRule{
		Name:             "broken",
		TargetEntityType: models.EntityTypePayment,
		ReferencePattern: "([a-z",
	})
	assert.Equal(t, apperrors.KindValidation, apperrors.KindOf(err))
}

func TestCandidateRepository_FindCandidatesWindows(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	db := store.DB()

	inside := testutil.CreatePayment(t, db, "P1", "100", testutil.Day(2026, 3, 3))
	testutil.CreatePayment(t, db, "P2", "100", testutil.Day(2026, 3, 10))
	testutil.CreatePayment(t, db, "P3", "150", testutil.Day(2026, 3, 2))
	edge := testutil.CreatePayment(t, db, "P4", "105", testutil.Day(2026, 3, 4))

	got, err := store.Candidates.FindCandidates(ctx, models.CandidateQuery{
		EntityType: models.EntityTypePayment,
		DateFrom:   testutil.Day(2026, 2, 28),
		DateTo:     testutil.Day(2026, 3, 4),
		AmountMin:  testutil.Amount("95"),
		AmountMax:  testutil.Amount("105"),
	})
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, inside.ID, got[0].EntityID)
	assert.Equal(t, edge.ID, got[1].EntityID)
	assert.Equal(t, models.EntityTypePayment, got[0].EntityType)
}

func TestImportBatchRepository_FinishIsTerminal(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	acc := testutil.CreateAccount(t, store.DB(), "0")

	batch := &models.ImportBatch{
		BankAccountID: acc.ID,
		FileName:      "march.csv",
		Status:        models.ImportProcessing,
		StartedAt:     time.Now().UTC(),
	}
	require.NoError(t, store.Imports.Create(ctx, batch))

	batch.TotalRows, batch.SuccessfulRows = 2, 2
	require.NoError(t, store.Imports.Complete(ctx, batch, time.Now().UTC()))
	assert.ErrorIs(t, store.Imports.Fail(ctx, batch, "late failure", time.Now().UTC()), ErrStatusConflict)

	got, err := store.Imports.GetByID(ctx, batch.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ImportCompleted, got.Status)
	assert.Equal(t, 2, got.SuccessfulRows)
	assert.Empty(t, got.ErrorMessage)
}
