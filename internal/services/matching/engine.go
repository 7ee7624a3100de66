// Package matching scores bank transactions against internal financial
// records. It performs no writes; candidates are read through a
// CandidateSource.
package matching

import (
	"context"
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/shopspring/decimal"

	"bank-reconciliation-backend/internal/models"
)

// CandidateSource supplies internal records inside a date and amount window.
type CandidateSource interface {
	FindCandidates(ctx context.Context, q models.CandidateQuery) ([]models.Candidate, error)
}

// Result is the best candidate found for a transaction.
type Result struct {
	Candidate models.Candidate
	Rule      models.ReconciliationRule
	Breakdown Breakdown
}

func (r *Result) Score() decimal.Decimal { return r.Breakdown.Score }

// Criteria is the audit record stored with a match.
func (r *Result) Criteria() map[string]interface{} {
	c := r.Breakdown.Criteria()
	c["rule_id"] = r.Rule.ID.String()
	c["rule_name"] = r.Rule.Name
	c["rule_priority"] = r.Rule.Priority
	c["entity_type"] = r.Candidate.EntityType
	c["entity_id"] = r.Candidate.EntityID.String()
	return c
}

type Engine struct {
	source CandidateSource
}

func NewEngine(source CandidateSource) *Engine {
	return &Engine{source: source}
}

// FindBestMatch evaluates the enabled rules in ascending priority and returns
// the highest scoring candidate across all of them, or nil when no candidate
// reaches its rule's minimum confidence. Ties keep the candidate found first.
func (e *Engine) FindBestMatch(ctx context.Context, tx *models.BankTransaction, rules []models.ReconciliationRule) (*Result, error) {
	var best *Result
	for _, rule := range orderedRules(rules) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		results, err := e.ScoreRule(ctx, tx, rule)
		if err != nil {
			return nil, fmt.Errorf("rule %q: %w", rule.Name, err)
		}
		for i := range results {
			if best == nil || results[i].Breakdown.Score.GreaterThan(best.Breakdown.Score) {
				best = &results[i]
			}
		}
	}
	return best, nil
}

// ScoreRule scores every candidate inside rule's windows and keeps those at
// or above the rule's minimum confidence, in source order.
func (e *Engine) ScoreRule(ctx context.Context, tx *models.BankTransaction, rule models.ReconciliationRule) ([]Result, error) {
	m := newMatcher(rule)
	candidates, err := e.source.FindCandidates(ctx, m.query(tx))
	if err != nil {
		return nil, err
	}

	minScore := decimal.NewFromFloat(rule.MinConfidenceScore)
	var out []Result
	for _, c := range candidates {
		b := m.score(tx, c)
		if b.Score.LessThan(minScore) {
			continue
		}
		out = append(out, Result{Candidate: c, Rule: rule, Breakdown: b})
	}
	return out, nil
}

// Score computes the breakdown for one transaction/candidate pair under rule.
func Score(tx *models.BankTransaction, c models.Candidate, rule models.ReconciliationRule) Breakdown {
	return newMatcher(rule).score(tx, c)
}

func orderedRules(rules []models.ReconciliationRule) []models.ReconciliationRule {
	enabled := make([]models.ReconciliationRule, 0, len(rules))
	for _, r := range rules {
		if r.IsActive && r.AutoMatchEnabled {
			enabled = append(enabled, r)
		}
	}
	sort.SliceStable(enabled, func(i, j int) bool { return enabled[i].Priority < enabled[j].Priority })
	return enabled
}

// matcher is a rule with its pattern and keywords prepared.
type matcher struct {
	rule     models.ReconciliationRule
	pattern  *regexp.Regexp
	keywords []string
}

func newMatcher(rule models.ReconciliationRule) *matcher {
	m := &matcher{rule: rule}
	if rule.ReferencePattern != "" {
		// an invalid pattern never matches
		m.pattern, _ = regexp.Compile(rule.ReferencePattern)
	}
	for _, k := range rule.DescriptionKeywords {
		if k = strings.ToLower(strings.TrimSpace(k)); k != "" {
			m.keywords = append(m.keywords, k)
		}
	}
	return m
}

func (m *matcher) tolerance(amount decimal.Decimal) decimal.Decimal {
	return AmountTolerance(amount, m.rule.AmountToleranceAbsolute, m.rule.AmountTolerancePercentage)
}

func (m *matcher) query(tx *models.BankTransaction) models.CandidateQuery {
	amount := tx.Amount.Abs()
	tol := m.tolerance(amount)
	date := models.DateOnly(tx.TransactionDate)
	days := m.rule.DateToleranceDays
	return models.CandidateQuery{
		EntityType: m.rule.TargetEntityType,
		DateFrom:   date.AddDate(0, 0, -days),
		DateTo:     date.AddDate(0, 0, days),
		AmountMin:  amount.Sub(tol),
		AmountMax:  amount.Add(tol),
	}
}

// AmountTolerance is the larger of the absolute tolerance and the percentage
// of amount.
func AmountTolerance(amount, absolute, percentage decimal.Decimal) decimal.Decimal {
	pct := amount.Abs().Mul(percentage)
	if pct.GreaterThan(absolute) {
		return pct
	}
	return absolute
}
