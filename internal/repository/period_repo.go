package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"bank-reconciliation-backend/internal/models"
)

type PeriodRepository struct {
	db  *gorm.DB
	log zerolog.Logger
}

func NewPeriodRepository(db *gorm.DB, log zerolog.Logger) *PeriodRepository {
	return &PeriodRepository{
		db:  db,
		log: log.With().Str("repo", "reconciliation_period").Logger(),
	}
}

func (r *PeriodRepository) Create(ctx context.Context, p *models.ReconciliationPeriod) error {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	if err := r.db.WithContext(ctx).Create(p).Error; err != nil {
		return fmt.Errorf("failed to create period: %w", err)
	}
	return nil
}

func (r *PeriodRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.ReconciliationPeriod, error) {
	var p models.ReconciliationPeriod
	if err := r.db.WithContext(ctx).First(&p, "id = ?", id).Error; err != nil {
		return nil, loadErr(err, "get period", "reconciliation period", id)
	}
	return &p, nil
}

// FindInProgress returns the account's open period, or nil if none.
func (r *PeriodRepository) FindInProgress(ctx context.Context, accountID uuid.UUID) (*models.ReconciliationPeriod, error) {
	var p models.ReconciliationPeriod
	err := r.db.WithContext(ctx).
		Where("bank_account_id = ? AND status = ?", accountID, models.PeriodInProgress).
		First(&p).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load open period: %w", err)
	}
	return &p, nil
}

func (r *PeriodRepository) ListForAccount(ctx context.Context, accountID uuid.UUID) ([]models.ReconciliationPeriod, error) {
	var periods []models.ReconciliationPeriod
	err := r.db.WithContext(ctx).
		Where("bank_account_id = ?", accountID).
		Order("start_date DESC").
		Find(&periods).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list periods: %w", err)
	}
	return periods, nil
}

// CompareAndSwapStatus applies updates only while the period is in status
// from.
func (r *PeriodRepository) CompareAndSwapStatus(ctx context.Context, id uuid.UUID, from models.PeriodStatus, updates map[string]interface{}) error {
	res := r.db.WithContext(ctx).Model(&models.ReconciliationPeriod{}).
		Where("id = ? AND status = ?", id, from).
		Updates(updates)
	if res.Error != nil {
		return fmt.Errorf("failed to update period: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrStatusConflict
	}
	return nil
}

type VarianceRow struct {
	Periods      int64
	WithVariance int64
	Total        decimal.Decimal
}

// VarianceTotals sums total_variance over closed periods overlapping the
// filter's date range.
func (r *PeriodRepository) VarianceTotals(ctx context.Context, f StatusFilter) (VarianceRow, error) {
	var row VarianceRow
	query := r.db.WithContext(ctx).Model(&models.ReconciliationPeriod{}).
		Select("COUNT(*) as periods, "+
			"COALESCE(SUM(CASE WHEN total_variance <> 0 THEN 1 ELSE 0 END),0) as with_variance, "+
			"COALESCE(SUM(total_variance),0) as total").
		Where("status IN ?", []models.PeriodStatus{models.PeriodCompleted, models.PeriodReviewed})
	if f.AccountID != nil {
		query = query.Where("bank_account_id = ?", *f.AccountID)
	}
	if f.From != nil {
		query = query.Where("end_date >= ?", models.DateOnly(*f.From))
	}
	if f.To != nil {
		query = query.Where("start_date <= ?", models.DateOnly(*f.To))
	}
	if err := query.Scan(&row).Error; err != nil {
		return VarianceRow{}, fmt.Errorf("failed to sum period variance: %w", err)
	}
	return row, nil
}
