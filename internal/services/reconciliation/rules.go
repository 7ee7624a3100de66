package reconciliation

import (
	"context"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"bank-reconciliation-backend/internal/models"
)

// DefaultRules is the rule set installed on an empty datastore.
func DefaultRules() []models.ReconciliationRule {
	return []models.ReconciliationRule{
		{
			Name:                      "Payment exact reference",
			Description:               "Same amount within a shilling, reference on both sides, three days apart at most",
			Priority:                  10,
			AmountToleranceAbsolute:   decimal.NewFromInt(1),
			AmountTolerancePercentage: decimal.Zero,
			DateToleranceDays:         3,
			TargetEntityType:          models.EntityTypePayment,
			MinConfidenceScore:        0.6,
			AutoMatchEnabled:          true,
			IsActive:                  true,
		},
		{
			Name:                      "Payment tolerant",
			Description:               "Bank charges and late postings on tenant payments",
			Priority:                  20,
			AmountToleranceAbsolute:   decimal.NewFromInt(50),
			AmountTolerancePercentage: decimal.RequireFromString("0.02"),
			DateToleranceDays:         7,
			DescriptionKeywords:       []string{"rent", "deposit", "service charge"},
			TargetEntityType:          models.EntityTypePayment,
			MinConfidenceScore:        0.5,
			AutoMatchEnabled:          true,
			IsActive:                  true,
		},
		{
			Name:                      "Income and expenses",
			Description:               "Internal income and expense entries",
			Priority:                  30,
			AmountToleranceAbsolute:   decimal.NewFromInt(10),
			AmountTolerancePercentage: decimal.RequireFromString("0.01"),
			DateToleranceDays:         5,
			TargetEntityType:          models.EntityTypeFinancialTransaction,
			MinConfidenceScore:        0.5,
			AutoMatchEnabled:          true,
			IsActive:                  true,
		},
	}
}

// SeedDefaultRules installs DefaultRules when no rule exists yet.
func (s *ReconciliationService) SeedDefaultRules(ctx context.Context) (int, error) {
	count, err := s.store.Rules.Count(ctx)
	if err != nil || count > 0 {
		return 0, err
	}
	rules := DefaultRules()
	for i := range rules {
		rules[i].CreatedBy = SystemUser
		if err := s.store.Rules.Create(ctx, &rules[i]); err != nil {
			return i, err
		}
	}
	s.log.Info().Int("count", len(rules)).Msg("Default reconciliation rules installed")
	return len(rules), nil
}

func (s *ReconciliationService) ListRules(ctx context.Context) ([]models.ReconciliationRule, error) {
	return s.store.Rules.List(ctx)
}

func (s *ReconciliationService) CreateRule(ctx context.Context, rule *models.ReconciliationRule, userID string) error {
	rule.ID = uuid.New()
	rule.CreatedBy = actor(userID)
	return s.store.Rules.Create(ctx, rule)
}

// UpdateRule replaces the editable fields of an existing rule.
func (s *ReconciliationService) UpdateRule(ctx context.Context, id uuid.UUID, in *models.ReconciliationRule) (*models.ReconciliationRule, error) {
	rule, err := s.store.Rules.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	rule.Name = in.Name
	rule.Description = in.Description
	rule.Priority = in.Priority
	rule.AmountToleranceAbsolute = in.AmountToleranceAbsolute
	rule.AmountTolerancePercentage = in.AmountTolerancePercentage
	rule.DateToleranceDays = in.DateToleranceDays
	rule.ReferencePattern = in.ReferencePattern
	rule.DescriptionKeywords = in.DescriptionKeywords
	rule.TargetEntityType = in.TargetEntityType
	rule.MinConfidenceScore = in.MinConfidenceScore
	rule.AutoMatchEnabled = in.AutoMatchEnabled
	rule.IsActive = in.IsActive
	if err := s.store.Rules.Update(ctx, rule); err != nil {
		return nil, err
	}
	return rule, nil
}

func (s *ReconciliationService) DeleteRule(ctx context.Context, id uuid.UUID) error {
	return s.store.Rules.Delete(ctx, id)
}
