package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"bank-reconciliation-backend/internal/models"
)

type ImportBatchRepository struct {
	db  *gorm.DB
	log zerolog.Logger
}

func NewImportBatchRepository(db *gorm.DB, log zerolog.Logger) *ImportBatchRepository {
	return &ImportBatchRepository{
		db:  db,
		log: log.With().Str("repo", "import_batch").Logger(),
	}
}

func (r *ImportBatchRepository) Create(ctx context.Context, b *models.ImportBatch) error {
	if b.ID == uuid.Nil {
		b.ID = uuid.New()
	}
	if err := r.db.WithContext(ctx).Create(b).Error; err != nil {
		return fmt.Errorf("failed to create import batch: %w", err)
	}
	return nil
}

func (r *ImportBatchRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.ImportBatch, error) {
	var b models.ImportBatch
	if err := r.db.WithContext(ctx).First(&b, "id = ?", id).Error; err != nil {
		return nil, loadErr(err, "get import batch", "import batch", id)
	}
	return &b, nil
}

// UpdateProgress persists the running counters of a PROCESSING batch.
func (r *ImportBatchRepository) UpdateProgress(ctx context.Context, b *models.ImportBatch) error {
	return r.db.WithContext(ctx).Model(&models.ImportBatch{}).
		Where("id = ? AND status = ?", b.ID, models.ImportProcessing).
		Updates(counters(b)).Error
}

func (r *ImportBatchRepository) SetArchiveKey(ctx context.Context, id uuid.UUID, key string) error {
	return r.db.WithContext(ctx).Model(&models.ImportBatch{}).
		Where("id = ?", id).
		Update("archive_key", key).Error
}

// Complete moves the batch to COMPLETED with its final counters.
func (r *ImportBatchRepository) Complete(ctx context.Context, b *models.ImportBatch, at time.Time) error {
	updates := counters(b)
	updates["status"] = models.ImportCompleted
	updates["completed_at"] = at
	if err := r.finish(ctx, b.ID, updates); err != nil {
		return err
	}
	b.Status = models.ImportCompleted
	b.CompletedAt = &at
	return nil
}

func (r *ImportBatchRepository) Fail(ctx context.Context, b *models.ImportBatch, message string, at time.Time) error {
	updates := counters(b)
	updates["status"] = models.ImportFailed
	updates["error_message"] = message
	updates["completed_at"] = at
	if err := r.finish(ctx, b.ID, updates); err != nil {
		return err
	}
	b.Status = models.ImportFailed
	b.ErrorMessage = message
	b.CompletedAt = &at
	return nil
}

func (r *ImportBatchRepository) finish(ctx context.Context, id uuid.UUID, updates map[string]interface{}) error {
	res := r.db.WithContext(ctx).Model(&models.ImportBatch{}).
		Where("id = ? AND status = ?", id, models.ImportProcessing).
		Updates(updates)
	if res.Error != nil {
		return fmt.Errorf("failed to finish import batch: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrStatusConflict
	}
	return nil
}

func counters(b *models.ImportBatch) map[string]interface{} {
	return map[string]interface{}{
		"total_rows":      b.TotalRows,
		"processed_rows":  b.ProcessedRows,
		"successful_rows": b.SuccessfulRows,
		"failed_rows":     b.FailedRows,
		"duplicate_rows":  b.DuplicateRows,
		"skipped_rows":    b.SkippedRows,
	}
}
