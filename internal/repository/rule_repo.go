package repository

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"bank-reconciliation-backend/internal/cache"
	"bank-reconciliation-backend/internal/models"
)

const activeRulesKey = "rules:active"

// RuleRepository serves reconciliation rules. The list of rules eligible for
// auto-matching is cached and dropped on every rule write.
type RuleRepository struct {
	db    *gorm.DB
	cache *cache.TTLCache[[]models.ReconciliationRule]
	log   zerolog.Logger
}

func NewRuleRepository(db *gorm.DB, c *cache.TTLCache[[]models.ReconciliationRule], log zerolog.Logger) *RuleRepository {
	if c == nil {
		c = cache.NewTTLCache[[]models.ReconciliationRule](0)
	}
	return &RuleRepository{
		db:    db,
		cache: c,
		log:   log.With().Str("repo", "reconciliation_rule").Logger(),
	}
}

func (r *RuleRepository) Create(ctx context.Context, rule *models.ReconciliationRule) error {
	if err := rule.Validate(); err != nil {
		return err
	}
	if rule.ID == uuid.Nil {
		rule.ID = uuid.New()
	}
	if err := r.db.WithContext(ctx).Create(rule).Error; err != nil {
		return fmt.Errorf("failed to create rule: %w", err)
	}
	r.invalidate()
	return nil
}

func (r *RuleRepository) Update(ctx context.Context, rule *models.ReconciliationRule) error {
	if err := rule.Validate(); err != nil {
		return err
	}
	if err := r.db.WithContext(ctx).Save(rule).Error; err != nil {
		return fmt.Errorf("failed to update rule: %w", err)
	}
	r.invalidate()
	return nil
}

func (r *RuleRepository) Delete(ctx context.Context, id uuid.UUID) error {
	res := r.db.WithContext(ctx).Delete(&models.ReconciliationRule{}, "id = ?", id)
	if res.Error != nil {
		return fmt.Errorf("failed to delete rule: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return loadErr(gorm.ErrRecordNotFound, "delete rule", "rule", id)
	}
	r.invalidate()
	return nil
}

func (r *RuleRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.ReconciliationRule, error) {
	var rule models.ReconciliationRule
	if err := r.db.WithContext(ctx).First(&rule, "id = ?", id).Error; err != nil {
		return nil, loadErr(err, "get rule", "rule", id)
	}
	return &rule, nil
}

// List returns every rule in evaluation order.
func (r *RuleRepository) List(ctx context.Context) ([]models.ReconciliationRule, error) {
	var rules []models.ReconciliationRule
	if err := r.db.WithContext(ctx).Order("priority ASC, created_at ASC").Find(&rules).Error; err != nil {
		return nil, fmt.Errorf("failed to list rules: %w", err)
	}
	return rules, nil
}

// ActiveAutoMatch returns active, auto-match enabled rules in priority order.
func (r *RuleRepository) ActiveAutoMatch(ctx context.Context) ([]models.ReconciliationRule, error) {
	if rules, ok := r.cache.Get(activeRulesKey); ok {
		return rules, nil
	}

	var rules []models.ReconciliationRule
	err := r.db.WithContext(ctx).
		Where("is_active = ? AND auto_match_enabled = ?", true, true).
		Order("priority ASC, created_at ASC").
		Find(&rules).Error
	if err != nil {
		return nil, fmt.Errorf("failed to load active rules: %w", err)
	}

	r.cache.Set(activeRulesKey, rules)
	r.log.Debug().Int("count", len(rules)).Msg("Active rules loaded")
	return rules, nil
}

func (r *RuleRepository) Count(ctx context.Context) (int64, error) {
	var count int64
	if err := r.db.WithContext(ctx).Model(&models.ReconciliationRule{}).Count(&count).Error; err != nil {
		return 0, fmt.Errorf("failed to count rules: %w", err)
	}
	return count, nil
}

func (r *RuleRepository) invalidate() {
	r.cache.DeletePrefix("rules:")
}
