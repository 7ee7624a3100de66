package repository

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"bank-reconciliation-backend/internal/apperrors"
	"bank-reconciliation-backend/internal/models"
)

// CandidateRepository reads the internal financial records that bank
// transactions are matched against.
type CandidateRepository struct {
	db  *gorm.DB
	log zerolog.Logger
}

func NewCandidateRepository(db *gorm.DB, log zerolog.Logger) *CandidateRepository {
	return &CandidateRepository{
		db:  db,
		log: log.With().Str("repo", "candidate").Logger(),
	}
}

// FindCandidates returns records of q.EntityType whose date and amount fall
// inside the inclusive windows of q.
func (r *CandidateRepository) FindCandidates(ctx context.Context, q models.CandidateQuery) ([]models.Candidate, error) {
	switch q.EntityType {
	case models.EntityTypePayment:
		var payments []models.Payment
		err := r.db.WithContext(ctx).
			Where("payment_date BETWEEN ? AND ?", q.DateFrom, q.DateTo).
			Where("amount BETWEEN ? AND ?", q.AmountMin, q.AmountMax).
			Order("payment_date ASC, id ASC").
			Find(&payments).Error
		if err != nil {
			return nil, fmt.Errorf("failed to query payments: %w", err)
		}
		out := make([]models.Candidate, 0, len(payments))
		for i := range payments {
			out = append(out, paymentCandidate(&payments[i]))
		}
		return out, nil

	case models.EntityTypeFinancialTransaction:
		var records []models.FinancialTransaction
		err := r.db.WithContext(ctx).
			Where("transaction_date BETWEEN ? AND ?", q.DateFrom, q.DateTo).
			Where("amount BETWEEN ? AND ?", q.AmountMin, q.AmountMax).
			Order("transaction_date ASC, id ASC").
			Find(&records).Error
		if err != nil {
			return nil, fmt.Errorf("failed to query financial transactions: %w", err)
		}
		out := make([]models.Candidate, 0, len(records))
		for i := range records {
			out = append(out, financialCandidate(&records[i]))
		}
		return out, nil
	}
	return nil, apperrors.Validation("find candidates", "unknown entity type %q", q.EntityType)
}

// Get loads a single record as a candidate.
func (r *CandidateRepository) Get(ctx context.Context, entityType string, id uuid.UUID) (*models.Candidate, error) {
	const op = "get candidate"
	switch entityType {
	case models.EntityTypePayment:
		var p models.Payment
		if err := r.db.WithContext(ctx).First(&p, "id = ?", id).Error; err != nil {
			return nil, loadErr(err, op, "payment", id)
		}
		c := paymentCandidate(&p)
		return &c, nil
	case models.EntityTypeFinancialTransaction:
		var f models.FinancialTransaction
		if err := r.db.WithContext(ctx).First(&f, "id = ?", id).Error; err != nil {
			return nil, loadErr(err, op, "financial transaction", id)
		}
		c := financialCandidate(&f)
		return &c, nil
	}
	return nil, apperrors.Validation(op, "unknown entity type %q", entityType)
}

func (r *CandidateRepository) CreatePayment(ctx context.Context, p *models.Payment) error {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	p.PaymentDate = models.DateOnly(p.PaymentDate)
	if err := r.db.WithContext(ctx).Create(p).Error; err != nil {
		return fmt.Errorf("failed to create payment: %w", err)
	}
	return nil
}

func (r *CandidateRepository) CreateFinancialTransaction(ctx context.Context, f *models.FinancialTransaction) error {
	if f.ID == uuid.Nil {
		f.ID = uuid.New()
	}
	f.TransactionDate = models.DateOnly(f.TransactionDate)
	if err := r.db.WithContext(ctx).Create(f).Error; err != nil {
		return fmt.Errorf("failed to create financial transaction: %w", err)
	}
	return nil
}

func paymentCandidate(p *models.Payment) models.Candidate {
	description := p.Description
	if p.PayerName != "" {
		description = p.PayerName + " " + description
	}
	return models.Candidate{
		EntityType:  models.EntityTypePayment,
		EntityID:    p.ID,
		Reference:   p.Reference,
		Description: description,
		Amount:      p.Amount,
		Date:        models.DateOnly(p.PaymentDate),
	}
}

func financialCandidate(f *models.FinancialTransaction) models.Candidate {
	return models.Candidate{
		EntityType:  models.EntityTypeFinancialTransaction,
		EntityID:    f.ID,
		Reference:   f.Reference,
		Description: f.Description,
		Amount:      f.Amount,
		Date:        models.DateOnly(f.TransactionDate),
	}
}
