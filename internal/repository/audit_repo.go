package repository

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"bank-reconciliation-backend/internal/models"
)

type AuditRepository struct {
	db  *gorm.DB
	log zerolog.Logger
}

func NewAuditRepository(db *gorm.DB, log zerolog.Logger) *AuditRepository {
	return &AuditRepository{
		db:  db,
		log: log.With().Str("repo", "match_audit").Logger(),
	}
}

func (r *AuditRepository) Append(ctx context.Context, entry *models.MatchAuditLog) error {
	if entry.ID == uuid.Nil {
		entry.ID = uuid.New()
	}
	if err := r.db.WithContext(ctx).Create(entry).Error; err != nil {
		return fmt.Errorf("failed to write audit log: %w", err)
	}
	return nil
}

func (r *AuditRepository) ListForTransaction(ctx context.Context, transactionID uuid.UUID) ([]models.MatchAuditLog, error) {
	var entries []models.MatchAuditLog
	err := r.db.WithContext(ctx).
		Where("transaction_id = ?", transactionID).
		Order("created_at ASC").
		Find(&entries).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list audit log: %w", err)
	}
	return entries, nil
}
