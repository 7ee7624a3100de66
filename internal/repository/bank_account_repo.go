package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"bank-reconciliation-backend/internal/models"
)

type BankAccountRepository struct {
	db  *gorm.DB
	log zerolog.Logger
}

func NewBankAccountRepository(db *gorm.DB, log zerolog.Logger) *BankAccountRepository {
	return &BankAccountRepository{
		db:  db,
		log: log.With().Str("repo", "bank_account").Logger(),
	}
}

func (r *BankAccountRepository) Create(ctx context.Context, acc *models.BankAccount) error {
	if acc.ID == uuid.Nil {
		acc.ID = uuid.New()
	}
	if err := r.db.WithContext(ctx).Create(acc).Error; err != nil {
		return fmt.Errorf("failed to create bank account: %w", err)
	}
	return nil
}

func (r *BankAccountRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.BankAccount, error) {
	var acc models.BankAccount
	if err := r.db.WithContext(ctx).First(&acc, "id = ?", id).Error; err != nil {
		return nil, loadErr(err, "get bank account", "bank account", id)
	}
	return &acc, nil
}

func (r *BankAccountRepository) List(ctx context.Context, activeOnly bool) ([]models.BankAccount, error) {
	var accounts []models.BankAccount
	q := r.db.WithContext(ctx).Order("created_at ASC")
	if activeOnly {
		q = q.Where("is_active = ?", true)
	}
	if err := q.Find(&accounts).Error; err != nil {
		return nil, fmt.Errorf("failed to list bank accounts: %w", err)
	}
	return accounts, nil
}

// SetReconciled records the outcome of a period close.
func (r *BankAccountRepository) SetReconciled(ctx context.Context, id uuid.UUID, balance decimal.Decimal, date time.Time) error {
	res := r.db.WithContext(ctx).Model(&models.BankAccount{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"last_reconciled_balance": balance,
			"last_reconciled_date":    date,
		})
	if res.Error != nil {
		return fmt.Errorf("failed to update reconciled balance: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return loadErr(gorm.ErrRecordNotFound, "set reconciled balance", "bank account", id)
	}
	return nil
}

func (r *BankAccountRepository) SetCurrentBalance(ctx context.Context, id uuid.UUID, balance decimal.Decimal) error {
	res := r.db.WithContext(ctx).Model(&models.BankAccount{}).
		Where("id = ?", id).
		Update("current_balance", balance)
	if res.Error != nil {
		return fmt.Errorf("failed to update current balance: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return loadErr(gorm.ErrRecordNotFound, "set current balance", "bank account", id)
	}
	return nil
}
