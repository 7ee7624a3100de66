// Package reconciliation runs statement imports, auto-matching and the
// manual match workflow over the repository store.
package reconciliation

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"bank-reconciliation-backend/internal/apperrors"
	"bank-reconciliation-backend/internal/locker"
	"bank-reconciliation-backend/internal/models"
	"bank-reconciliation-backend/internal/repository"
	"bank-reconciliation-backend/internal/services/matching"
	"bank-reconciliation-backend/internal/services/statement"
	"bank-reconciliation-backend/internal/storage"
)

const SystemUser = "system"

var (
	ErrAlreadyMatched       = errors.New("transaction already has an active match")
	ErrNotMatched           = errors.New("transaction has no active match")
	ErrInvalidStatus        = errors.New("operation not allowed in the transaction's current status")
	ErrDuplicateTransaction = errors.New("transaction already recorded for this account, reference and date")
	ErrAccountInactive      = errors.New("bank account is inactive")
)

// SummaryInvalidator drops cached analytics after a write.
type SummaryInvalidator interface {
	Invalidate()
}

type Options struct {
	Archive   storage.StatementArchive // nil disables archiving
	Locker    *locker.Locker
	Summaries SummaryInvalidator
	Workers   int // concurrent accounts during auto-match
	BatchSize int // default auto-match batch
}

type ReconciliationService struct {
	store     *repository.Store
	engine    *matching.Engine
	parser    *statement.Parser
	archive   storage.StatementArchive
	locker    *locker.Locker
	summaries SummaryInvalidator
	workers   int
	batchSize int
	now       func() time.Time
	log       zerolog.Logger
}

func NewReconciliationService(store *repository.Store, opts Options, log zerolog.Logger) *ReconciliationService {
	if opts.Locker == nil {
		opts.Locker = locker.New()
	}
	if opts.Workers <= 0 {
		opts.Workers = 4
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = DefaultBatchSize
	}
	return &ReconciliationService{
		store:     store,
		engine:    matching.NewEngine(store.Candidates),
		parser:    statement.NewParser(),
		archive:   opts.Archive,
		locker:    opts.Locker,
		summaries: opts.Summaries,
		workers:   opts.Workers,
		batchSize: opts.BatchSize,
		now:       func() time.Time { return time.Now().UTC() },
		log:       log.With().Str("service", "reconciliation").Logger(),
	}
}

// WithClock replaces the time source, for tests.
func (s *ReconciliationService) WithClock(now func() time.Time) *ReconciliationService {
	s.now = now
	s.parser.WithClock(now)
	return s
}

func (s *ReconciliationService) Store() *repository.Store { return s.store }

func (s *ReconciliationService) invalidate() {
	if s.summaries != nil {
		s.summaries.Invalidate()
	}
}

func actor(user string) string {
	if strings.TrimSpace(user) == "" {
		return SystemUser
	}
	return user
}

// statusConflict converts a failed compare-and-swap into a typed error.
func statusConflict(op string, err error) error {
	if errors.Is(err, repository.ErrStatusConflict) {
		return apperrors.Conflict(op, err)
	}
	return err
}

func (s *ReconciliationService) CreateAccount(ctx context.Context, acc *models.BankAccount) error {
	const op = "create bank account"
	acc.Name = strings.TrimSpace(acc.Name)
	if acc.Name == "" {
		return apperrors.Validation(op, "name is required")
	}
	acc.Currency = strings.ToUpper(strings.TrimSpace(acc.Currency))
	if acc.Currency == "" {
		acc.Currency = "KES"
	}
	if len(acc.Currency) != 3 {
		return apperrors.Validation(op, "currency must be a 3-letter code")
	}
	acc.ID = uuid.New()
	acc.IsActive = true
	acc.LastReconciledDate = nil
	acc.LastReconciledBalance = acc.CurrentBalance
	acc.CreatedBy = actor(acc.CreatedBy)
	return s.store.Accounts.Create(ctx, acc)
}

func (s *ReconciliationService) GetAccount(ctx context.Context, id uuid.UUID) (*models.BankAccount, error) {
	return s.store.Accounts.GetByID(ctx, id)
}

func (s *ReconciliationService) ListAccounts(ctx context.Context, activeOnly bool) ([]models.BankAccount, error) {
	return s.store.Accounts.List(ctx, activeOnly)
}

func (s *ReconciliationService) GetTransaction(ctx context.Context, id uuid.UUID) (*models.BankTransaction, error) {
	return s.store.Transactions.GetByID(ctx, id)
}

// ListTransactions pages an account's transactions.
func (s *ReconciliationService) ListTransactions(ctx context.Context, q repository.ListQuery) ([]models.BankTransaction, string, bool, error) {
	if _, err := s.store.Accounts.GetByID(ctx, q.AccountID); err != nil {
		return nil, "", false, err
	}
	if q.Limit <= 0 {
		q.Limit = 50
	}
	if q.Limit > 500 {
		q.Limit = 500
	}
	return s.store.Transactions.List(ctx, q)
}

func (s *ReconciliationService) CreatePayment(ctx context.Context, p *models.Payment) error {
	const op = "create payment"
	if !p.Amount.IsPositive() {
		return apperrors.Validation(op, "amount must be positive")
	}
	if p.PaymentDate.IsZero() {
		return apperrors.Validation(op, "payment_date is required")
	}
	if p.Status == "" {
		p.Status = "completed"
	}
	p.ID = uuid.New()
	return s.store.Candidates.CreatePayment(ctx, p)
}

func (s *ReconciliationService) CreateFinancialTransaction(ctx context.Context, f *models.FinancialTransaction) error {
	const op = "create financial transaction"
	if !f.Amount.IsPositive() {
		return apperrors.Validation(op, "amount must be positive")
	}
	if f.TransactionDate.IsZero() {
		return apperrors.Validation(op, "transaction_date is required")
	}
	f.Kind = models.FinancialTransactionKind(strings.ToUpper(string(f.Kind)))
	if f.Kind != models.KindIncome && f.Kind != models.KindExpense {
		return apperrors.Validation(op, "kind must be INCOME or EXPENSE")
	}
	f.ID = uuid.New()
	return s.store.Candidates.CreateFinancialTransaction(ctx, f)
}
