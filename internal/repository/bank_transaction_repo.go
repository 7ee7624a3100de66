package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"bank-reconciliation-backend/internal/models"
)

type BankTransactionRepository struct {
	db  *gorm.DB
	log zerolog.Logger
}

func NewBankTransactionRepository(db *gorm.DB, log zerolog.Logger) *BankTransactionRepository {
	return &BankTransactionRepository{
		db:  db,
		log: log.With().Str("repo", "bank_transaction").Logger(),
	}
}

func (r *BankTransactionRepository) Create(ctx context.Context, tx *models.BankTransaction) error {
	if tx.ID == uuid.Nil {
		tx.ID = uuid.New()
	}
	tx.TransactionDate = models.DateOnly(tx.TransactionDate)
	if err := r.db.WithContext(ctx).Create(tx).Error; err != nil {
		if IsUniqueViolation(err) {
			return fmt.Errorf("%w: reference %q on %s", ErrDuplicate, tx.Reference, tx.TransactionDate.Format("2006-01-02"))
		}
		return fmt.Errorf("failed to create bank transaction: %w", err)
	}
	return nil
}

func (r *BankTransactionRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.BankTransaction, error) {
	var tx models.BankTransaction
	if err := r.db.WithContext(ctx).First(&tx, "id = ?", id).Error; err != nil {
		return nil, loadErr(err, "get bank transaction", "bank transaction", id)
	}
	return &tx, nil
}

// IsDuplicate reports whether the account already holds a transaction with
// the same reference on the same date.
func (r *BankTransactionRepository) IsDuplicate(ctx context.Context, accountID uuid.UUID, reference string, date time.Time) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&models.BankTransaction{}).
		Where("bank_account_id = ? AND reference = ? AND transaction_date = ?", accountID, reference, models.DateOnly(date)).
		Count(&count).Error
	if err != nil {
		return false, fmt.Errorf("failed to check duplicate transaction: %w", err)
	}
	return count > 0, nil
}

// CompareAndSwapStatus applies updates only while the transaction's status is
// one of from. It returns ErrStatusConflict when no row qualified.
func (r *BankTransactionRepository) CompareAndSwapStatus(ctx context.Context, id uuid.UUID, from []models.TransactionStatus, updates map[string]interface{}) error {
	res := r.db.WithContext(ctx).Model(&models.BankTransaction{}).
		Where("id = ? AND status IN ?", id, from).
		Updates(updates)
	if res.Error != nil {
		return fmt.Errorf("failed to update transaction status: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrStatusConflict
	}
	return nil
}

type UnmatchedQuery struct {
	AccountID *uuid.UUID
	After     string // id cursor
	Limit     int
}

// ListUnmatched pages UNMATCHED transactions in id order.
func (r *BankTransactionRepository) ListUnmatched(ctx context.Context, q UnmatchedQuery) ([]models.BankTransaction, error) {
	var txs []models.BankTransaction
	query := r.db.WithContext(ctx).
		Where("status = ?", models.StatusUnmatched).
		Order("id ASC").
		Limit(q.Limit)
	if q.AccountID != nil {
		query = query.Where("bank_account_id = ?", *q.AccountID)
	}
	if q.After != "" {
		query = query.Where("id > ?", q.After)
	}
	if err := query.Find(&txs).Error; err != nil {
		return nil, fmt.Errorf("failed to list unmatched transactions: %w", err)
	}
	return txs, nil
}

type ListQuery struct {
	AccountID uuid.UUID
	Status    string
	Cursor    string
	Limit     int
	Search    string
}

// List returns one page of an account's transactions plus the cursor for the
// next page.
func (r *BankTransactionRepository) List(ctx context.Context, q ListQuery) ([]models.BankTransaction, string, bool, error) {
	var txs []models.BankTransaction
	query := r.db.WithContext(ctx).
		Where("bank_account_id = ?", q.AccountID).
		Order("id ASC").
		Limit(q.Limit + 1)

	if q.Status != "" && q.Status != "all" {
		query = query.Where("status = ?", strings.ToUpper(q.Status))
	}
	if q.Cursor != "" {
		query = query.Where("id > ?", q.Cursor)
	}
	if q.Search != "" {
		like := "%" + strings.ToLower(q.Search) + "%"
		query = query.Where(
			"LOWER(description) LIKE ? OR LOWER(reference) LIKE ? OR CAST(amount AS TEXT) LIKE ?",
			like, like, like,
		)
	}

	if err := query.Find(&txs).Error; err != nil {
		return nil, "", false, fmt.Errorf("failed to list transactions: %w", err)
	}

	hasMore := false
	var nextCursor string
	if len(txs) > q.Limit {
		hasMore = true
		txs = txs[:q.Limit]
		nextCursor = txs[q.Limit-1].ID.String()
	}
	return txs, nextCursor, hasMore, nil
}

// PeriodTotals are the figures a period close is computed from.
type PeriodTotals struct {
	MatchedCredits decimal.Decimal
	MatchedDebits  decimal.Decimal
	Total          int64
	Matched        int64
	Unmatched      int64
}

type totalsRow struct {
	Status string
	Type   string
	Count  int64
	Sum    decimal.Decimal
}

// PeriodTotals sums the account's transactions dated within [start, end].
func (r *BankTransactionRepository) PeriodTotals(ctx context.Context, accountID uuid.UUID, start, end time.Time) (PeriodTotals, error) {
	var rows []totalsRow
	err := r.db.WithContext(ctx).Model(&models.BankTransaction{}).
		Select("status, type, COUNT(*) as count, COALESCE(SUM(amount),0) as sum").
		Where("bank_account_id = ? AND transaction_date BETWEEN ? AND ?", accountID, models.DateOnly(start), models.DateOnly(end)).
		Group("status, type").
		Scan(&rows).Error
	if err != nil {
		return PeriodTotals{}, fmt.Errorf("failed to sum period transactions: %w", err)
	}

	totals := PeriodTotals{MatchedCredits: decimal.Zero, MatchedDebits: decimal.Zero}
	for _, row := range rows {
		totals.Total += row.Count
		status := models.TransactionStatus(row.Status)
		switch {
		case models.IsMatchedStatus(status):
			totals.Matched += row.Count
			if models.TransactionType(row.Type) == models.TransactionTypeDebit {
				totals.MatchedDebits = totals.MatchedDebits.Add(row.Sum)
			} else {
				totals.MatchedCredits = totals.MatchedCredits.Add(row.Sum)
			}
		case status == models.StatusUnmatched:
			totals.Unmatched += row.Count
		}
	}
	return totals, nil
}

// StatusFilter narrows StatusStats; zero fields are ignored.
type StatusFilter struct {
	AccountID *uuid.UUID
	From      *time.Time
	To        *time.Time
}

type StatusRow struct {
	Status   string
	Count    int64
	Sum      decimal.Decimal
	Variance decimal.Decimal
}

func (r *BankTransactionRepository) StatusStats(ctx context.Context, f StatusFilter) ([]StatusRow, error) {
	var rows []StatusRow
	query := r.db.WithContext(ctx).Model(&models.BankTransaction{}).
		Select("status, COUNT(*) as count, COALESCE(SUM(amount),0) as sum, COALESCE(SUM(variance_amount),0) as variance").
		Group("status")
	query = applyStatusFilter(query, f, "transaction_date")
	if err := query.Scan(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to aggregate transaction statuses: %w", err)
	}
	return rows, nil
}

// AttentionCount counts unmatched transactions flagged as potential matches.
func (r *BankTransactionRepository) AttentionCount(ctx context.Context, f StatusFilter) (int64, error) {
	var count int64
	query := r.db.WithContext(ctx).Model(&models.BankTransaction{}).
		Where("status = ? AND requires_attention = ?", models.StatusUnmatched, true)
	query = applyStatusFilter(query, f, "transaction_date")
	if err := query.Count(&count).Error; err != nil {
		return 0, fmt.Errorf("failed to count flagged transactions: %w", err)
	}
	return count, nil
}

func applyStatusFilter(query *gorm.DB, f StatusFilter, dateColumn string) *gorm.DB {
	if f.AccountID != nil {
		query = query.Where("bank_account_id = ?", *f.AccountID)
	}
	if f.From != nil {
		query = query.Where(dateColumn+" >= ?", models.DateOnly(*f.From))
	}
	if f.To != nil {
		query = query.Where(dateColumn+" <= ?", models.DateOnly(*f.To))
	}
	return query
}
