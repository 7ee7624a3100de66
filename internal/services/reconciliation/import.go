package reconciliation

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"bank-reconciliation-backend/internal/apperrors"
	"bank-reconciliation-backend/internal/models"
	"bank-reconciliation-backend/internal/repository"
	"bank-reconciliation-backend/internal/services/statement"
)

// progressEvery is how often processed_rows is persisted during an import.
const progressEvery = 100

type ImportRequest struct {
	AccountID  uuid.UUID
	FileName   string
	ImportType string
	Content    []byte
	UserID     string
}

// ImportReport is the outcome of one import run.
type ImportReport struct {
	Batch         *models.ImportBatch  `json:"batch"`
	RowErrors     []statement.RowError `json:"row_errors,omitempty"`
	DateFallbacks int                  `json:"date_fallbacks"`
}

// ImportStatement parses and persists a statement file synchronously.
func (s *ReconciliationService) ImportStatement(ctx context.Context, req ImportRequest) (*ImportReport, error) {
	batch, err := s.BeginImport(ctx, req)
	if err != nil {
		return nil, err
	}
	return s.RunImport(ctx, batch, req)
}

// BeginImport checks the account and records a PROCESSING batch. Callers that
// import in the background return the batch id and then call RunImport.
func (s *ReconciliationService) BeginImport(ctx context.Context, req ImportRequest) (*models.ImportBatch, error) {
	const op = "import statement"
	acc, err := s.store.Accounts.GetByID(ctx, req.AccountID)
	if err != nil {
		return nil, err
	}
	if !acc.IsActive {
		return nil, apperrors.New(apperrors.KindValidation, op, ErrAccountInactive)
	}
	if req.ImportType == "" {
		req.ImportType = statement.ImportTypeCSV
	}

	batch := &models.ImportBatch{
		ID:            uuid.New(),
		BankAccountID: acc.ID,
		FileName:      req.FileName,
		FileSize:      int64(len(req.Content)),
		ImportType:    req.ImportType,
		Status:        models.ImportProcessing,
		CreatedBy:     actor(req.UserID),
		StartedAt:     s.now(),
	}
	if err := s.store.Imports.Create(ctx, batch); err != nil {
		return nil, err
	}
	return batch, nil
}

// RunImport archives, parses and persists the rows of a PROCESSING batch.
// Row failures are counted; only a whole-file failure marks the batch FAILED.
func (s *ReconciliationService) RunImport(ctx context.Context, batch *models.ImportBatch, req ImportRequest) (*ImportReport, error) {
	const op = "import statement"
	log := s.log.With().
		Str("batch_id", batch.ID.String()).
		Str("account_id", batch.BankAccountID.String()).
		Logger()
	report := &ImportReport{Batch: batch}

	if s.archive != nil {
		key, err := s.archive.Store(ctx, batch.BankAccountID, batch.ID, batch.FileName, req.Content)
		if err != nil {
			log.Warn().Err(err).Msg("Statement archive failed, continuing import")
		} else if err := s.store.Imports.SetArchiveKey(ctx, batch.ID, key); err != nil {
			log.Warn().Err(err).Msg("Failed to record archive key")
		} else {
			batch.ArchiveKey = key
		}
	}

	parsed, err := s.parser.Parse(req.Content, batch.ImportType)
	if err != nil {
		s.failBatch(ctx, batch, err)
		log.Error().Err(err).Msg("Statement parse failed")
		return report, apperrors.New(apperrors.KindValidation, op, err)
	}

	batch.TotalRows = parsed.TotalRows
	batch.SkippedRows = parsed.Skipped
	batch.FailedRows = len(parsed.Failed)
	batch.ProcessedRows = parsed.Skipped + len(parsed.Failed)
	report.RowErrors = append(report.RowErrors, parsed.Failed...)

	for _, c := range parsed.Candidates {
		if err := ctx.Err(); err != nil {
			s.failBatch(ctx, batch, err)
			return report, err
		}

		if err := s.importRow(ctx, batch, c, actor(req.UserID)); err != nil {
			batch.FailedRows++
			report.RowErrors = append(report.RowErrors, statement.RowError{Row: c.Row, Reason: err.Error()})
			log.Warn().Err(err).Int("row", c.Row).Msg("Failed to import row")
		} else if c.DateFallback {
			report.DateFallbacks++
		}
		batch.ProcessedRows++

		if batch.ProcessedRows%progressEvery == 0 {
			if err := s.store.Imports.UpdateProgress(ctx, batch); err != nil {
				log.Warn().Err(err).Msg("Failed to persist import progress")
			}
		}
	}

	if err := s.store.Retry(ctx, func() error {
		return s.store.Imports.Complete(ctx, batch, s.now())
	}); err != nil {
		s.failBatch(ctx, batch, err)
		log.Error().Err(err).Msg("Failed to complete import batch")
		return report, err
	}
	s.invalidate()

	log.Info().
		Int("total", batch.TotalRows).
		Int("successful", batch.SuccessfulRows).
		Int("duplicates", batch.DuplicateRows).
		Int("failed", batch.FailedRows).
		Int("skipped", batch.SkippedRows).
		Msg("Statement import completed")
	return report, nil
}

// importRow persists one candidate unless it duplicates an existing
// transaction. Duplicates are counted, not failed; the unique index on
// (account, reference, date) catches rows inserted by a concurrent import
// after the check.
func (s *ReconciliationService) importRow(ctx context.Context, batch *models.ImportBatch, c statement.Candidate, user string) error {
	dup, err := s.store.Transactions.IsDuplicate(ctx, batch.BankAccountID, c.Reference, c.TransactionDate)
	if err != nil {
		return err
	}
	if dup {
		batch.DuplicateRows++
		return nil
	}

	batchID := batch.ID
	tx := &models.BankTransaction{
		BankAccountID:   batch.BankAccountID,
		TransactionDate: c.TransactionDate,
		ValueDate:       c.ValueDate,
		Reference:       c.Reference,
		Description:     c.Description,
		Amount:          c.Amount,
		Type:            c.Type,
		Source:          models.SourceBankStatement,
		Status:          models.StatusUnmatched,
		VarianceAmount:  decimal.Zero,
		ImportBatchID:   &batchID,
		CreatedBy:       user,
	}
	if c.DateFallback {
		tx.Notes = "statement date unreadable; set to import date"
	}
	err = s.store.Retry(ctx, func() error {
		tx.ID = uuid.Nil
		return s.store.Transactions.Create(ctx, tx)
	})
	if errors.Is(err, repository.ErrDuplicate) {
		batch.DuplicateRows++
		return nil
	}
	if err != nil {
		return err
	}
	batch.SuccessfulRows++
	return nil
}

func (s *ReconciliationService) failBatch(ctx context.Context, batch *models.ImportBatch, cause error) {
	ctx = context.WithoutCancel(ctx)
	if err := s.store.Imports.Fail(ctx, batch, cause.Error(), s.now()); err != nil {
		s.log.Error().Err(err).Str("batch_id", batch.ID.String()).Msg("Failed to mark import batch failed")
	}
}

func (s *ReconciliationService) GetImportBatch(ctx context.Context, id uuid.UUID) (*models.ImportBatch, error) {
	return s.store.Imports.GetByID(ctx, id)
}

// FeedTransaction is a single record from an external feed or manual entry.
// Amount is unsigned; Type carries the direction.
type FeedTransaction struct {
	AccountID       uuid.UUID
	TransactionDate time.Time
	ValueDate       *time.Time
	Reference       string
	Description     string
	Amount          decimal.Decimal
	Type            models.TransactionType
	Source          models.TransactionSource
	Notes           string
	UserID          string
}

// RecordTransaction persists a feed record with the same duplicate detection
// as statement imports. A duplicate is rejected with ErrDuplicateTransaction.
func (s *ReconciliationService) RecordTransaction(ctx context.Context, in FeedTransaction) (*models.BankTransaction, error) {
	const op = "record transaction"
	if in.TransactionDate.IsZero() {
		return nil, apperrors.Validation(op, "transaction_date is required")
	}
	if !in.Amount.IsPositive() {
		return nil, apperrors.Validation(op, "amount must be positive")
	}
	if in.Type != models.TransactionTypeCredit && in.Type != models.TransactionTypeDebit {
		return nil, apperrors.Validation(op, "type must be CREDIT or DEBIT")
	}
	if in.Source == "" {
		in.Source = models.SourceExternalFeed
	}
	if in.Source != models.SourceExternalFeed && in.Source != models.SourceManual {
		return nil, apperrors.Validation(op, "source must be EXTERNAL_FEED or MANUAL")
	}

	tx := &models.BankTransaction{
		BankAccountID:   in.AccountID,
		TransactionDate: models.DateOnly(in.TransactionDate),
		ValueDate:       in.ValueDate,
		Reference:       in.Reference,
		Description:     in.Description,
		Amount:          in.Amount,
		Type:            in.Type,
		Source:          in.Source,
		Status:          models.StatusUnmatched,
		VarianceAmount:  decimal.Zero,
		Notes:           in.Notes,
		CreatedBy:       actor(in.UserID),
	}

	err := s.store.InTx(ctx, func(store *repository.Store) error {
		acc, err := store.Accounts.GetByID(ctx, in.AccountID)
		if err != nil {
			return err
		}
		if !acc.IsActive {
			return apperrors.New(apperrors.KindValidation, op, ErrAccountInactive)
		}
		dup, err := store.Transactions.IsDuplicate(ctx, in.AccountID, in.Reference, tx.TransactionDate)
		if err != nil {
			return err
		}
		if dup {
			return apperrors.Conflict(op, ErrDuplicateTransaction)
		}
		tx.ID = uuid.Nil
		if err := store.Transactions.Create(ctx, tx); err != nil {
			if errors.Is(err, repository.ErrDuplicate) {
				return apperrors.Conflict(op, ErrDuplicateTransaction)
			}
			return err
		}
		return nil
	})
	if err != nil {
		if !errors.Is(err, ErrDuplicateTransaction) {
			s.log.Error().Err(err).Str("account_id", in.AccountID.String()).Msg("Failed to record transaction")
		}
		return nil, err
	}
	s.invalidate()
	return tx, nil
}
