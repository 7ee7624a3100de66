package matching

import (
	"github.com/shopspring/decimal"

	"bank-reconciliation-backend/internal/models"
)

var (
	AutoMatchThreshold = decimal.RequireFromString("0.8")
	ReviewThreshold    = decimal.RequireFromString("0.6")
)

type Decision int

const (
	DecisionNone Decision = iota
	DecisionReview
	DecisionAutoMatch
)

func (d Decision) String() string {
	switch d {
	case DecisionAutoMatch:
		return "auto_match"
	case DecisionReview:
		return "review"
	default:
		return "none"
	}
}

// Classify applies the threshold policy. Both boundaries are inclusive on
// the high side.
func Classify(score decimal.Decimal) Decision {
	switch {
	case score.GreaterThanOrEqual(AutoMatchThreshold):
		return DecisionAutoMatch
	case score.GreaterThanOrEqual(ReviewThreshold):
		return DecisionReview
	default:
		return DecisionNone
	}
}

// ConfidenceFor maps a score to the confidence label stored on a match.
func ConfidenceFor(score decimal.Decimal) models.MatchConfidence {
	switch Classify(score) {
	case DecisionAutoMatch:
		return models.ConfidenceHigh
	case DecisionReview:
		return models.ConfidenceMedium
	default:
		return models.ConfidenceLow
	}
}
