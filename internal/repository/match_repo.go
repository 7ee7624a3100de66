package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"bank-reconciliation-backend/internal/models"
)

// MatchRepository is the append-only store of match links. Rows are never
// deleted; retiring a match clears is_active.
type MatchRepository struct {
	db  *gorm.DB
	log zerolog.Logger
}

func NewMatchRepository(db *gorm.DB, log zerolog.Logger) *MatchRepository {
	return &MatchRepository{
		db:  db,
		log: log.With().Str("repo", "transaction_match").Logger(),
	}
}

func (r *MatchRepository) Create(ctx context.Context, m *models.TransactionMatch) error {
	if m.ID == uuid.Nil {
		m.ID = uuid.New()
	}
	m.IsActive = true
	if err := r.db.WithContext(ctx).Create(m).Error; err != nil {
		return fmt.Errorf("failed to create match: %w", err)
	}
	return nil
}

// FindActive returns the active match for a transaction, or nil if none.
func (r *MatchRepository) FindActive(ctx context.Context, transactionID uuid.UUID) (*models.TransactionMatch, error) {
	var m models.TransactionMatch
	err := r.db.WithContext(ctx).
		Where("bank_transaction_id = ? AND is_active = ?", transactionID, true).
		First(&m).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load active match: %w", err)
	}
	return &m, nil
}

func (r *MatchRepository) CountActive(ctx context.Context, transactionID uuid.UUID) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&models.TransactionMatch{}).
		Where("bank_transaction_id = ? AND is_active = ?", transactionID, true).
		Count(&count).Error
	if err != nil {
		return 0, fmt.Errorf("failed to count active matches: %w", err)
	}
	return count, nil
}

// DeactivateActive retires every active match of a transaction and returns
// how many were retired.
func (r *MatchRepository) DeactivateActive(ctx context.Context, transactionID uuid.UUID, by string, at time.Time) (int64, error) {
	res := r.db.WithContext(ctx).Model(&models.TransactionMatch{}).
		Where("bank_transaction_id = ? AND is_active = ?", transactionID, true).
		Updates(map[string]interface{}{
			"is_active":      false,
			"deactivated_at": at,
			"deactivated_by": by,
		})
	if res.Error != nil {
		return 0, fmt.Errorf("failed to deactivate matches: %w", res.Error)
	}
	return res.RowsAffected, nil
}

// History lists every match a transaction ever had, oldest first.
func (r *MatchRepository) History(ctx context.Context, transactionID uuid.UUID) ([]models.TransactionMatch, error) {
	var matches []models.TransactionMatch
	err := r.db.WithContext(ctx).
		Where("bank_transaction_id = ?", transactionID).
		Order("created_at ASC").
		Find(&matches).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list matches: %w", err)
	}
	return matches, nil
}

type ScoreRow struct {
	MatchingScore float64
	AutoMatched   bool
	Confidence    string
}

// ActiveScores returns the scores of active matches, optionally limited to
// one account's transactions dated within the filter.
func (r *MatchRepository) ActiveScores(ctx context.Context, f StatusFilter) ([]ScoreRow, error) {
	var rows []ScoreRow
	query := r.db.WithContext(ctx).Table("transaction_matches AS m").
		Select("m.matching_score, m.auto_matched, m.confidence").
		Joins("JOIN bank_transactions AS t ON t.id = m.bank_transaction_id").
		Where("m.is_active = ?", true)
	if f.AccountID != nil {
		query = query.Where("t.bank_account_id = ?", *f.AccountID)
	}
	if f.From != nil {
		query = query.Where("t.transaction_date >= ?", models.DateOnly(*f.From))
	}
	if f.To != nil {
		query = query.Where("t.transaction_date <= ?", models.DateOnly(*f.To))
	}
	if err := query.Scan(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to load match scores: %w", err)
	}
	return rows, nil
}
