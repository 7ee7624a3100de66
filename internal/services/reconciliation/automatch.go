package reconciliation

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
	"gorm.io/datatypes"

	"bank-reconciliation-backend/internal/apperrors"
	"bank-reconciliation-backend/internal/models"
	"bank-reconciliation-backend/internal/repository"
	"bank-reconciliation-backend/internal/services/matching"
)

const (
	DefaultBatchSize = 100
	MaxBatchSize     = 1000
)

type AutoMatchRequest struct {
	AccountID *uuid.UUID // nil runs across all accounts
	Limit     int
	After     string // resume cursor from a previous run
	UserID    string
}

type AutoMatchResult struct {
	Processed        int      `json:"processed"`
	Matched          int      `json:"matched"`
	PotentialMatches int      `json:"potential_matches"`
	Errors           []string `json:"errors"`
	NextCursor       string   `json:"next_cursor,omitempty"`
}

func (r *AutoMatchResult) merge(o *AutoMatchResult) {
	r.Processed += o.Processed
	r.Matched += o.Matched
	r.PotentialMatches += o.PotentialMatches
	r.Errors = append(r.Errors, o.Errors...)
}

// AutoMatch scores one batch of UNMATCHED transactions. Scores at or above
// the auto-match threshold create an active match; scores in the review band
// flag the transaction. Accounts run concurrently and transactions of one
// account run in order. Row failures are collected in the result.
func (s *ReconciliationService) AutoMatch(ctx context.Context, req AutoMatchRequest) (*AutoMatchResult, error) {
	limit := req.Limit
	if limit <= 0 {
		limit = s.batchSize
	}
	if limit > MaxBatchSize {
		limit = MaxBatchSize
	}
	if req.After != "" {
		if _, err := uuid.Parse(req.After); err != nil {
			return nil, apperrors.Validation("auto match", "invalid cursor %q", req.After)
		}
	}
	if req.AccountID != nil {
		if _, err := s.store.Accounts.GetByID(ctx, *req.AccountID); err != nil {
			return nil, err
		}
	}

	rules, err := s.store.Rules.ActiveAutoMatch(ctx)
	if err != nil {
		return nil, err
	}
	txs, err := s.store.Transactions.ListUnmatched(ctx, repository.UnmatchedQuery{
		AccountID: req.AccountID,
		After:     req.After,
		Limit:     limit,
	})
	if err != nil {
		return nil, err
	}

	result := &AutoMatchResult{Errors: []string{}}
	if len(txs) == limit {
		result.NextCursor = txs[len(txs)-1].ID.String()
	}
	if len(txs) == 0 {
		return result, nil
	}

	order, groups := groupByAccount(txs)
	user := actor(req.UserID)

	var (
		mu sync.Mutex
		g  errgroup.Group
	)
	g.SetLimit(s.workers)
	for _, accountID := range order {
		accountID, batch := accountID, groups[accountID]
		g.Go(func() error {
			partial := s.matchAccount(ctx, accountID, batch, rules, user)
			mu.Lock()
			result.merge(partial)
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	if result.Matched > 0 || result.PotentialMatches > 0 {
		s.invalidate()
	}

	s.log.Info().
		Int("processed", result.Processed).
		Int("matched", result.Matched).
		Int("potential", result.PotentialMatches).
		Int("errors", len(result.Errors)).
		Int("rules", len(rules)).
		Msg("Auto-match run finished")
	return result, nil
}

func groupByAccount(txs []models.BankTransaction) ([]uuid.UUID, map[uuid.UUID][]models.BankTransaction) {
	var order []uuid.UUID
	groups := make(map[uuid.UUID][]models.BankTransaction)
	for _, tx := range txs {
		if _, ok := groups[tx.BankAccountID]; !ok {
			order = append(order, tx.BankAccountID)
		}
		groups[tx.BankAccountID] = append(groups[tx.BankAccountID], tx)
	}
	return order, groups
}

func (s *ReconciliationService) matchAccount(ctx context.Context, accountID uuid.UUID, txs []models.BankTransaction, rules []models.ReconciliationRule, user string) *AutoMatchResult {
	res := &AutoMatchResult{}
	key := accountID.String()
	if !s.locker.TryLock(key) {
		res.Errors = append(res.Errors, fmt.Sprintf("account %s: auto-match already running, %d transactions skipped", key, len(txs)))
		return res
	}
	defer s.locker.Unlock(key)

	log := s.log.With().Str("account_id", key).Logger()
	for i := range txs {
		if ctx.Err() != nil {
			res.Errors = append(res.Errors, fmt.Sprintf("account %s: run cancelled, %d transactions not processed", key, len(txs)-i))
			break
		}
		tx := &txs[i]
		decision, err := s.matchOne(ctx, tx, rules, user)
		res.Processed++
		if err != nil {
			res.Errors = append(res.Errors, fmt.Sprintf("transaction %s: %v", tx.ID, err))
			log.Warn().Err(err).Str("transaction_id", tx.ID.String()).Msg("Auto-match failed for transaction")
			continue
		}
		switch decision {
		case matching.DecisionAutoMatch:
			res.Matched++
		case matching.DecisionReview:
			res.PotentialMatches++
		}
	}
	return res
}

func (s *ReconciliationService) matchOne(ctx context.Context, tx *models.BankTransaction, rules []models.ReconciliationRule, user string) (matching.Decision, error) {
	best, err := s.engine.FindBestMatch(ctx, tx, rules)
	if err != nil {
		return matching.DecisionNone, err
	}
	if best == nil {
		return matching.DecisionNone, nil
	}

	decision := matching.Classify(best.Score())
	switch decision {
	case matching.DecisionAutoMatch:
		err = s.applyAutoMatch(ctx, tx, best, user)
	case matching.DecisionReview:
		err = s.flagForReview(ctx, tx, best, user)
	}
	if err != nil {
		return matching.DecisionNone, err
	}
	return decision, nil
}

func (s *ReconciliationService) applyAutoMatch(ctx context.Context, tx *models.BankTransaction, best *matching.Result, user string) error {
	const op = "auto match"
	criteria, err := json.Marshal(best.Criteria())
	if err != nil {
		return fmt.Errorf("failed to encode match criteria: %w", err)
	}
	score := best.Score().InexactFloat64()
	now := s.now()
	candidate := best.Candidate

	return s.store.InTx(ctx, func(store *repository.Store) error {
		err := store.Transactions.CompareAndSwapStatus(ctx, tx.ID,
			[]models.TransactionStatus{models.StatusUnmatched},
			map[string]interface{}{
				"status":             models.StatusMatched,
				"matched_date":       models.DateOnly(now),
				"matched_by":         user,
				"requires_attention": false,
				"variance_amount":    tx.Amount.Sub(candidate.Amount.Abs()),
			})
		if err != nil {
			return statusConflict(op, err)
		}

		active, err := store.Matches.CountActive(ctx, tx.ID)
		if err != nil {
			return err
		}
		if active > 0 {
			return apperrors.Invariant(op, ErrAlreadyMatched)
		}

		if err := store.Matches.Create(ctx, &models.TransactionMatch{
			BankTransactionID: tx.ID,
			EntityType:        candidate.EntityType,
			EntityID:          candidate.EntityID,
			MatchedAmount:     candidate.Amount,
			Confidence:        matching.ConfidenceFor(best.Score()),
			MatchingScore:     score,
			MatchingCriteria:  datatypes.JSON(criteria),
			AutoMatched:       true,
			MatchedBy:         user,
		}); err != nil {
			return err
		}

		entityID := candidate.EntityID
		return store.Audit.Append(ctx, &models.MatchAuditLog{
			TransactionID: tx.ID,
			Action:        models.ActionAutoMatch,
			NewEntityType: candidate.EntityType,
			NewEntityID:   &entityID,
			Score:         score,
			PerformedBy:   user,
			Reason:        fmt.Sprintf("score %s via rule %q", best.Score().StringFixed(4), best.Rule.Name),
		})
	})
}

// flagForReview marks a potential match. A transaction already flagged is
// left as is so repeated runs do not grow the audit log.
func (s *ReconciliationService) flagForReview(ctx context.Context, tx *models.BankTransaction, best *matching.Result, user string) error {
	if tx.RequiresAttention {
		return nil
	}
	score := best.Score().InexactFloat64()
	candidate := best.Candidate

	return s.store.InTx(ctx, func(store *repository.Store) error {
		err := store.Transactions.CompareAndSwapStatus(ctx, tx.ID,
			[]models.TransactionStatus{models.StatusUnmatched},
			map[string]interface{}{"requires_attention": true})
		if err != nil {
			return statusConflict("flag for review", err)
		}

		entityID := candidate.EntityID
		return store.Audit.Append(ctx, &models.MatchAuditLog{
			TransactionID: tx.ID,
			Action:        models.ActionFlagReview,
			NewEntityType: candidate.EntityType,
			NewEntityID:   &entityID,
			Score:         score,
			PerformedBy:   user,
			Reason:        fmt.Sprintf("potential match, score %s via rule %q", best.Score().StringFixed(4), best.Rule.Name),
		})
	})
}
