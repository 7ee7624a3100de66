package reconciliation

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/datatypes"

	"bank-reconciliation-backend/internal/apperrors"
	"bank-reconciliation-backend/internal/models"
	"bank-reconciliation-backend/internal/repository"
)

type ManualMatchRequest struct {
	TransactionID uuid.UUID
	EntityType    string
	EntityID      uuid.UUID
	Amount        decimal.Decimal // zero means the transaction amount
	Notes         string
	Replace       bool // retire an existing active match instead of failing
	UserID        string
}

// manualMatchFrom lists the statuses a manual match may start from. Matched
// statuses additionally require Replace.
var manualMatchFrom = []models.TransactionStatus{
	models.StatusUnmatched,
	models.StatusPartiallyMatched,
	models.StatusDisputed,
	models.StatusMatched,
	models.StatusManualMatch,
}

// ManualMatch links a transaction to an internal record chosen by an
// operator.
func (s *ReconciliationService) ManualMatch(ctx context.Context, req ManualMatchRequest) (*models.TransactionMatch, error) {
	const op = "manual match"
	user := actor(req.UserID)
	if req.Amount.IsNegative() {
		return nil, apperrors.Validation(op, "amount must not be negative")
	}

	var match *models.TransactionMatch
	err := s.store.InTx(ctx, func(store *repository.Store) error {
		tx, err := store.Transactions.GetByID(ctx, req.TransactionID)
		if err != nil {
			return err
		}
		if !statusIn(tx.Status, manualMatchFrom) {
			return apperrors.Invariant(op, fmt.Errorf("%w: %s", ErrInvalidStatus, tx.Status))
		}
		candidate, err := store.Candidates.Get(ctx, req.EntityType, req.EntityID)
		if err != nil {
			return err
		}

		previous, err := store.Matches.FindActive(ctx, tx.ID)
		if err != nil {
			return err
		}
		now := s.now()
		if previous != nil {
			if !req.Replace {
				return apperrors.Invariant(op, ErrAlreadyMatched)
			}
			if _, err := store.Matches.DeactivateActive(ctx, tx.ID, user, now); err != nil {
				return err
			}
		}

		amount := req.Amount
		if amount.IsZero() {
			amount = tx.Amount
		}
		criteria, err := json.Marshal(map[string]interface{}{
			"manual":           true,
			"candidate_amount": candidate.Amount.String(),
			"amount_diff":      tx.Amount.Sub(amount).String(),
		})
		if err != nil {
			return fmt.Errorf("failed to encode match criteria: %w", err)
		}

		match = &models.TransactionMatch{
			BankTransactionID: tx.ID,
			EntityType:        candidate.EntityType,
			EntityID:          candidate.EntityID,
			MatchedAmount:     amount,
			Confidence:        models.ConfidenceManual,
			MatchingScore:     1,
			MatchingCriteria:  datatypes.JSON(criteria),
			AutoMatched:       false,
			MatchedBy:         user,
			Notes:             req.Notes,
		}
		if err := store.Matches.Create(ctx, match); err != nil {
			return err
		}

		updates := map[string]interface{}{
			"status":             models.StatusManualMatch,
			"matched_date":       models.DateOnly(now),
			"matched_by":         user,
			"requires_attention": false,
			"variance_amount":    tx.Amount.Sub(amount),
		}
		if req.Notes != "" {
			updates["notes"] = req.Notes
		}
		if err := store.Transactions.CompareAndSwapStatus(ctx, tx.ID, []models.TransactionStatus{tx.Status}, updates); err != nil {
			return statusConflict(op, err)
		}

		entry := &models.MatchAuditLog{
			TransactionID: tx.ID,
			Action:        models.ActionManualMatch,
			NewEntityType: candidate.EntityType,
			NewEntityID:   &match.EntityID,
			Score:         1,
			PerformedBy:   user,
			Reason:        req.Notes,
		}
		if previous != nil {
			entry.PreviousEntityType = previous.EntityType
			entry.PreviousEntityID = &previous.EntityID
		}
		return store.Audit.Append(ctx, entry)
	})
	if err != nil {
		return nil, err
	}
	s.invalidate()
	return match, nil
}

// Unmatch retires the active match and returns the transaction to UNMATCHED.
func (s *ReconciliationService) Unmatch(ctx context.Context, transactionID uuid.UUID, reason, userID string) (*models.BankTransaction, error) {
	const op = "unmatch"
	user := actor(userID)

	err := s.store.InTx(ctx, func(store *repository.Store) error {
		tx, err := store.Transactions.GetByID(ctx, transactionID)
		if err != nil {
			return err
		}
		previous, err := store.Matches.FindActive(ctx, tx.ID)
		if err != nil {
			return err
		}
		if previous == nil {
			return apperrors.Invariant(op, ErrNotMatched)
		}

		if _, err := store.Matches.DeactivateActive(ctx, tx.ID, user, s.now()); err != nil {
			return err
		}
		err = store.Transactions.CompareAndSwapStatus(ctx, tx.ID,
			[]models.TransactionStatus{models.StatusMatched, models.StatusManualMatch, models.StatusPartiallyMatched},
			map[string]interface{}{
				"status":             models.StatusUnmatched,
				"matched_date":       nil,
				"matched_by":         "",
				"requires_attention": false,
				"variance_amount":    decimal.Zero,
			})
		if err != nil {
			return statusConflict(op, err)
		}

		return store.Audit.Append(ctx, &models.MatchAuditLog{
			TransactionID:      tx.ID,
			Action:             models.ActionUnmatch,
			PreviousEntityType: previous.EntityType,
			PreviousEntityID:   &previous.EntityID,
			Score:              previous.MatchingScore,
			PerformedBy:        user,
			Reason:             reason,
		})
	})
	if err != nil {
		return nil, err
	}
	s.invalidate()
	return s.store.Transactions.GetByID(ctx, transactionID)
}

type IgnoreRequest struct {
	Reason    string
	Duplicate bool
	UserID    string
}

// Ignore excludes an unmatched transaction from matching, optionally marking
// it as a duplicate.
func (s *ReconciliationService) Ignore(ctx context.Context, transactionID uuid.UUID, req IgnoreRequest) (*models.BankTransaction, error) {
	return s.setStatus(ctx, "ignore", transactionID, statusChange{
		from:   []models.TransactionStatus{models.StatusUnmatched, models.StatusDisputed},
		to:     models.StatusIgnored,
		action: models.ActionIgnore,
		reason: req.Reason,
		user:   req.UserID,
		extra:  map[string]interface{}{"is_duplicate": req.Duplicate},
	})
}

// Dispute marks an unmatched transaction as contested with the bank.
func (s *ReconciliationService) Dispute(ctx context.Context, transactionID uuid.UUID, reason, userID string) (*models.BankTransaction, error) {
	return s.setStatus(ctx, "dispute", transactionID, statusChange{
		from:   []models.TransactionStatus{models.StatusUnmatched, models.StatusIgnored},
		to:     models.StatusDisputed,
		action: models.ActionDispute,
		reason: reason,
		user:   userID,
	})
}

// Restore returns an ignored or disputed transaction to UNMATCHED.
func (s *ReconciliationService) Restore(ctx context.Context, transactionID uuid.UUID, reason, userID string) (*models.BankTransaction, error) {
	return s.setStatus(ctx, "restore", transactionID, statusChange{
		from:   []models.TransactionStatus{models.StatusIgnored, models.StatusDisputed},
		to:     models.StatusUnmatched,
		action: models.ActionRestore,
		reason: reason,
		user:   userID,
		extra:  map[string]interface{}{"is_duplicate": false},
	})
}

type statusChange struct {
	from   []models.TransactionStatus
	to     models.TransactionStatus
	action models.MatchAction
	reason string
	user   string
	extra  map[string]interface{}
}

// setStatus moves a transaction without an active match between the
// non-matched statuses.
func (s *ReconciliationService) setStatus(ctx context.Context, op string, transactionID uuid.UUID, c statusChange) (*models.BankTransaction, error) {
	user := actor(c.user)
	err := s.store.InTx(ctx, func(store *repository.Store) error {
		tx, err := store.Transactions.GetByID(ctx, transactionID)
		if err != nil {
			return err
		}
		active, err := store.Matches.CountActive(ctx, tx.ID)
		if err != nil {
			return err
		}
		if active > 0 {
			return apperrors.Invariant(op, ErrAlreadyMatched)
		}
		if !statusIn(tx.Status, c.from) {
			return apperrors.Invariant(op, fmt.Errorf("%w: %s", ErrInvalidStatus, tx.Status))
		}

		updates := map[string]interface{}{
			"status":             c.to,
			"requires_attention": false,
		}
		for k, v := range c.extra {
			updates[k] = v
		}
		if c.reason != "" {
			updates["notes"] = c.reason
		}
		if err := store.Transactions.CompareAndSwapStatus(ctx, tx.ID, []models.TransactionStatus{tx.Status}, updates); err != nil {
			return statusConflict(op, err)
		}

		return store.Audit.Append(ctx, &models.MatchAuditLog{
			TransactionID: tx.ID,
			Action:        c.action,
			PerformedBy:   user,
			Reason:        c.reason,
		})
	})
	if err != nil {
		return nil, err
	}
	s.invalidate()
	return s.store.Transactions.GetByID(ctx, transactionID)
}

// MatchHistory is every match and audit entry of one transaction.
type MatchHistory struct {
	Transaction *models.BankTransaction   `json:"transaction"`
	Matches     []models.TransactionMatch `json:"matches"`
	AuditLog    []models.MatchAuditLog    `json:"audit_log"`
}

func (s *ReconciliationService) ListMatches(ctx context.Context, transactionID uuid.UUID) (*MatchHistory, error) {
	tx, err := s.store.Transactions.GetByID(ctx, transactionID)
	if err != nil {
		return nil, err
	}
	matches, err := s.store.Matches.History(ctx, transactionID)
	if err != nil {
		return nil, err
	}
	entries, err := s.store.Audit.ListForTransaction(ctx, transactionID)
	if err != nil {
		return nil, err
	}
	return &MatchHistory{Transaction: tx, Matches: matches, AuditLog: entries}, nil
}

func statusIn(s models.TransactionStatus, set []models.TransactionStatus) bool {
	for _, v := range set {
		if v == s {
			return true
		}
	}
	return false
}
