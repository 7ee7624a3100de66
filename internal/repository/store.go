package repository

import (
	"context"

	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"bank-reconciliation-backend/internal/cache"
	"bank-reconciliation-backend/internal/models"
)

// Store groups the repositories over one gorm handle. A Store obtained from
// InTx is bound to that datastore transaction.
type Store struct {
	db    *gorm.DB
	retry RetryPolicy
	log   zerolog.Logger
	rules *cache.TTLCache[[]models.ReconciliationRule]

	Accounts     *BankAccountRepository
	Transactions *BankTransactionRepository
	Matches      *MatchRepository
	Rules        *RuleRepository
	Periods      *PeriodRepository
	Imports      *ImportBatchRepository
	Candidates   *CandidateRepository
	Audit        *AuditRepository
}

func NewStore(db *gorm.DB, retry RetryPolicy, ruleCache *cache.TTLCache[[]models.ReconciliationRule], log zerolog.Logger) *Store {
	return newStore(db, retry, ruleCache, log)
}

func newStore(db *gorm.DB, retry RetryPolicy, ruleCache *cache.TTLCache[[]models.ReconciliationRule], log zerolog.Logger) *Store {
	return &Store{
		db:           db,
		retry:        retry,
		log:          log,
		rules:        ruleCache,
		Accounts:     NewBankAccountRepository(db, log),
		Transactions: NewBankTransactionRepository(db, log),
		Matches:      NewMatchRepository(db, log),
		Rules:        NewRuleRepository(db, ruleCache, log),
		Periods:      NewPeriodRepository(db, log),
		Imports:      NewImportBatchRepository(db, log),
		Candidates:   NewCandidateRepository(db, log),
		Audit:        NewAuditRepository(db, log),
	}
}

func (s *Store) DB() *gorm.DB { return s.db }

// InTx runs fn inside a datastore transaction, retrying the whole
// transaction on transient failures. fn must only use the Store it is given.
func (s *Store) InTx(ctx context.Context, fn func(tx *Store) error) error {
	return WithRetry(ctx, s.retry, func() error {
		return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			return fn(newStore(tx, s.retry, s.rules, s.log))
		})
	})
}

// Retry runs fn under the store's retry policy.
func (s *Store) Retry(ctx context.Context, fn func() error) error {
	return WithRetry(ctx, s.retry, fn)
}
