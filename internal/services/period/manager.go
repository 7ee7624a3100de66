// Package period manages the reconciliation period lifecycle of a bank
// account: open, close against a statement balance, review and reopen.
package period

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"bank-reconciliation-backend/internal/apperrors"
	"bank-reconciliation-backend/internal/models"
	"bank-reconciliation-backend/internal/repository"
)

var (
	ErrInvalidTransition   = errors.New("invalid period status transition")
	ErrUnexplainedVariance = errors.New("period has a balance variance and no explanatory note")
	ErrPeriodInProgress    = errors.New("account already has a period in progress")
)

// validTransitions lists the statuses each status may move to.
var validTransitions = map[models.PeriodStatus][]models.PeriodStatus{
	models.PeriodInProgress: {models.PeriodCompleted},
	models.PeriodCompleted:  {models.PeriodReviewed, models.PeriodInProgress},
	models.PeriodReviewed:   {},
}

// ValidateTransition checks whether a period may move from one status to
// another.
func ValidateTransition(from, to models.PeriodStatus) error {
	for _, allowed := range validTransitions[from] {
		if allowed == to {
			return nil
		}
	}
	return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, from, to)
}

type SummaryInvalidator interface {
	Invalidate()
}

type Manager struct {
	store     *repository.Store
	summaries SummaryInvalidator
	now       func() time.Time
	log       zerolog.Logger
}

func NewManager(store *repository.Store, summaries SummaryInvalidator, log zerolog.Logger) *Manager {
	return &Manager{
		store:     store,
		summaries: summaries,
		now:       func() time.Time { return time.Now().UTC() },
		log:       log.With().Str("service", "period").Logger(),
	}
}

// WithClock replaces the time source, for tests.
func (m *Manager) WithClock(now func() time.Time) *Manager {
	m.now = now
	return m
}

func (m *Manager) invalidate() {
	if m.summaries != nil {
		m.summaries.Invalidate()
	}
}

func actor(user string) string {
	if strings.TrimSpace(user) == "" {
		return "system"
	}
	return user
}

type StartRequest struct {
	AccountID uuid.UUID
	StartDate time.Time
	EndDate   time.Time
	Notes     string
	UserID    string
}

// Start opens a period. The opening balance is the account's last reconciled
// balance.
func (m *Manager) Start(ctx context.Context, req StartRequest) (*models.ReconciliationPeriod, error) {
	const op = "start period"
	start, end := models.DateOnly(req.StartDate), models.DateOnly(req.EndDate)
	if req.StartDate.IsZero() || req.EndDate.IsZero() {
		return nil, apperrors.Validation(op, "start_date and end_date are required")
	}
	if end.Before(start) {
		return nil, apperrors.Validation(op, "end_date %s is before start_date %s", end.Format("2006-01-02"), start.Format("2006-01-02"))
	}

	var p *models.ReconciliationPeriod
	err := m.store.InTx(ctx, func(store *repository.Store) error {
		acc, err := store.Accounts.GetByID(ctx, req.AccountID)
		if err != nil {
			return err
		}
		open, err := store.Periods.FindInProgress(ctx, acc.ID)
		if err != nil {
			return err
		}
		if open != nil {
			return apperrors.Invariant(op, fmt.Errorf("%w: %s", ErrPeriodInProgress, open.ID))
		}

		totals, err := store.Transactions.PeriodTotals(ctx, acc.ID, start, end)
		if err != nil {
			return err
		}

		p = &models.ReconciliationPeriod{
			BankAccountID:    acc.ID,
			StartDate:        start,
			EndDate:          end,
			OpeningBalance:   acc.LastReconciledBalance,
			StatementBalance: decimal.Zero,
			TotalVariance:    decimal.Zero,
			Status:           models.PeriodInProgress,
			Notes:            req.Notes,
			CreatedBy:        actor(req.UserID),
		}
		applyTotals(p, totals)
		return store.Periods.Create(ctx, p)
	})
	if err != nil {
		return nil, err
	}

	m.invalidate()
	m.log.Info().
		Str("period_id", p.ID.String()).
		Str("account_id", p.BankAccountID.String()).
		Str("opening_balance", p.OpeningBalance.String()).
		Msg("Reconciliation period started")
	return p, nil
}

// applyTotals sets the counts and the running closing balance.
func applyTotals(p *models.ReconciliationPeriod, t repository.PeriodTotals) {
	p.TotalTransactions = int(t.Total)
	p.MatchedTransactions = int(t.Matched)
	p.UnmatchedTransactions = int(t.Unmatched)
	p.ClosingBalance = ClosingBalance(p.OpeningBalance, t.MatchedCredits, t.MatchedDebits)
}

// ClosingBalance is opening plus matched credits minus matched debits.
func ClosingBalance(opening, credits, debits decimal.Decimal) decimal.Decimal {
	return opening.Add(credits).Sub(debits)
}

func (m *Manager) Get(ctx context.Context, id uuid.UUID) (*models.ReconciliationPeriod, error) {
	return m.store.Periods.GetByID(ctx, id)
}

func (m *Manager) ListForAccount(ctx context.Context, accountID uuid.UUID) ([]models.ReconciliationPeriod, error) {
	if _, err := m.store.Accounts.GetByID(ctx, accountID); err != nil {
		return nil, err
	}
	return m.store.Periods.ListForAccount(ctx, accountID)
}

// Refresh recomputes the counts and running closing balance of an
// IN_PROGRESS period.
func (m *Manager) Refresh(ctx context.Context, id uuid.UUID) (*models.ReconciliationPeriod, error) {
	const op = "refresh period"
	var p *models.ReconciliationPeriod
	err := m.store.InTx(ctx, func(store *repository.Store) error {
		var err error
		p, err = store.Periods.GetByID(ctx, id)
		if err != nil {
			return err
		}
		if p.Status != models.PeriodInProgress {
			return apperrors.Invariant(op, fmt.Errorf("%w: refresh requires %s, period is %s", ErrInvalidTransition, models.PeriodInProgress, p.Status))
		}

		totals, err := store.Transactions.PeriodTotals(ctx, p.BankAccountID, p.StartDate, p.EndDate)
		if err != nil {
			return err
		}
		applyTotals(p, totals)
		return conflict(op, store.Periods.CompareAndSwapStatus(ctx, p.ID, models.PeriodInProgress, map[string]interface{}{
			"total_transactions":     p.TotalTransactions,
			"matched_transactions":   p.MatchedTransactions,
			"unmatched_transactions": p.UnmatchedTransactions,
			"closing_balance":        p.ClosingBalance,
		}))
	})
	if err != nil {
		return nil, err
	}
	return p, nil
}

type CloseRequest struct {
	StatementBalance decimal.Decimal
	Notes            string
	UserID           string
}

// Close computes the closing balance from matched transactions, records the
// variance against the statement and marks the period COMPLETED. The account's
// last reconciled balance and date move in the same datastore transaction.
// Unmatched transactions do not block a close.
func (m *Manager) Close(ctx context.Context, id uuid.UUID, req CloseRequest) (*models.ReconciliationPeriod, error) {
	const op = "close period"
	user := actor(req.UserID)

	var p *models.ReconciliationPeriod
	err := m.store.InTx(ctx, func(store *repository.Store) error {
		var err error
		p, err = store.Periods.GetByID(ctx, id)
		if err != nil {
			return err
		}
		if err := ValidateTransition(p.Status, models.PeriodCompleted); err != nil {
			return apperrors.Invariant(op, err)
		}

		totals, err := store.Transactions.PeriodTotals(ctx, p.BankAccountID, p.StartDate, p.EndDate)
		if err != nil {
			return err
		}
		applyTotals(p, totals)

		now := m.now()
		p.StatementBalance = req.StatementBalance
		p.TotalVariance = p.ClosingBalance.Sub(req.StatementBalance)
		p.Status = models.PeriodCompleted
		p.CompletedBy = user
		p.CompletedAt = &now
		if req.Notes != "" {
			p.Notes = req.Notes
		}

		err = store.Periods.CompareAndSwapStatus(ctx, p.ID, models.PeriodInProgress, map[string]interface{}{
			"status":                 p.Status,
			"total_transactions":     p.TotalTransactions,
			"matched_transactions":   p.MatchedTransactions,
			"unmatched_transactions": p.UnmatchedTransactions,
			"closing_balance":        p.ClosingBalance,
			"statement_balance":      p.StatementBalance,
			"total_variance":         p.TotalVariance,
			"notes":                  p.Notes,
			"completed_by":           p.CompletedBy,
			"completed_at":           now,
		})
		if err != nil {
			return conflict(op, err)
		}
		return store.Accounts.SetReconciled(ctx, p.BankAccountID, req.StatementBalance, p.EndDate)
	})
	if err != nil {
		return nil, err
	}

	m.invalidate()
	event := m.log.Info()
	if !p.TotalVariance.IsZero() {
		event = m.log.Warn()
	}
	event.
		Str("period_id", p.ID.String()).
		Str("closing_balance", p.ClosingBalance.String()).
		Str("statement_balance", p.StatementBalance.String()).
		Str("variance", p.TotalVariance.String()).
		Int("unmatched", p.UnmatchedTransactions).
		Msg("Reconciliation period closed")
	return p, nil
}

type ReviewRequest struct {
	Notes  string
	UserID string
}

// Review signs off a COMPLETED period. A nonzero variance needs a note,
// either already stored or supplied now.
func (m *Manager) Review(ctx context.Context, id uuid.UUID, req ReviewRequest) (*models.ReconciliationPeriod, error) {
	const op = "review period"
	user := actor(req.UserID)

	var p *models.ReconciliationPeriod
	err := m.store.InTx(ctx, func(store *repository.Store) error {
		var err error
		p, err = store.Periods.GetByID(ctx, id)
		if err != nil {
			return err
		}
		if err := ValidateTransition(p.Status, models.PeriodReviewed); err != nil {
			return apperrors.Invariant(op, err)
		}
		if strings.TrimSpace(req.Notes) != "" {
			p.Notes = req.Notes
		}
		if !p.TotalVariance.IsZero() && strings.TrimSpace(p.Notes) == "" {
			return apperrors.Invariant(op, ErrUnexplainedVariance)
		}

		now := m.now()
		p.Status = models.PeriodReviewed
		p.ReviewedBy = user
		p.ReviewedAt = &now
		return conflict(op, store.Periods.CompareAndSwapStatus(ctx, p.ID, models.PeriodCompleted, map[string]interface{}{
			"status":      p.Status,
			"notes":       p.Notes,
			"reviewed_by": user,
			"reviewed_at": now,
		}))
	})
	if err != nil {
		return nil, err
	}
	m.log.Info().Str("period_id", p.ID.String()).Str("reviewed_by", user).Msg("Reconciliation period reviewed")
	return p, nil
}

type ReopenRequest struct {
	Reason string
	UserID string
}

// Reopen moves a COMPLETED period back to IN_PROGRESS. The account keeps the
// reconciled balance of the earlier close until the period is closed again.
func (m *Manager) Reopen(ctx context.Context, id uuid.UUID, req ReopenRequest) (*models.ReconciliationPeriod, error) {
	const op = "reopen period"
	if strings.TrimSpace(req.Reason) == "" {
		return nil, apperrors.Validation(op, "reason is required")
	}

	var p *models.ReconciliationPeriod
	err := m.store.InTx(ctx, func(store *repository.Store) error {
		var err error
		p, err = store.Periods.GetByID(ctx, id)
		if err != nil {
			return err
		}
		if err := ValidateTransition(p.Status, models.PeriodInProgress); err != nil {
			return apperrors.Invariant(op, err)
		}
		open, err := store.Periods.FindInProgress(ctx, p.BankAccountID)
		if err != nil {
			return err
		}
		if open != nil {
			return apperrors.Invariant(op, fmt.Errorf("%w: %s", ErrPeriodInProgress, open.ID))
		}

		p.Status = models.PeriodInProgress
		p.CompletedBy = ""
		p.CompletedAt = nil
		p.Notes = strings.TrimSpace(p.Notes + "\nReopened by " + actor(req.UserID) + ": " + req.Reason)
		return conflict(op, store.Periods.CompareAndSwapStatus(ctx, p.ID, models.PeriodCompleted, map[string]interface{}{
			"status":       p.Status,
			"completed_by": "",
			"completed_at": nil,
			"notes":        p.Notes,
		}))
	})
	if err != nil {
		return nil, err
	}
	m.invalidate()
	return p, nil
}

type AdjustRequest struct {
	Amount decimal.Decimal // signed delta applied to current_balance
	Reason string
	UserID string
}

// AdjustBalance applies an explicit correction to an account's current
// balance.
func (m *Manager) AdjustBalance(ctx context.Context, accountID uuid.UUID, req AdjustRequest) (*models.BankAccount, error) {
	const op = "adjust balance"
	if req.Amount.IsZero() {
		return nil, apperrors.Validation(op, "amount must not be zero")
	}
	if strings.TrimSpace(req.Reason) == "" {
		return nil, apperrors.Validation(op, "reason is required")
	}

	var acc *models.BankAccount
	err := m.store.InTx(ctx, func(store *repository.Store) error {
		var err error
		acc, err = store.Accounts.GetByID(ctx, accountID)
		if err != nil {
			return err
		}
		acc.CurrentBalance = acc.CurrentBalance.Add(req.Amount)
		return store.Accounts.SetCurrentBalance(ctx, acc.ID, acc.CurrentBalance)
	})
	if err != nil {
		return nil, err
	}

	m.log.Info().
		Str("account_id", accountID.String()).
		Str("delta", req.Amount.String()).
		Str("balance", acc.CurrentBalance.String()).
		Str("reason", req.Reason).
		Str("user", actor(req.UserID)).
		Msg("Account balance adjusted")
	return acc, nil
}

func conflict(op string, err error) error {
	if errors.Is(err, repository.ErrStatusConflict) {
		return apperrors.Conflict(op, err)
	}
	return err
}
