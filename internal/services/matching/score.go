package matching

import (
	"strings"

	"github.com/shopspring/decimal"
	"github.com/texttheater/golang-levenshtein/levenshtein"

	"bank-reconciliation-backend/internal/models"
)

var (
	amountWeight    = decimal.RequireFromString("0.4")
	dateWeight      = decimal.RequireFromString("0.3")
	referenceWeight = decimal.RequireFromString("0.3")
)

// Reference match reasons.
const (
	ReferenceExact   = "exact"
	ReferencePattern = "pattern"
	ReferenceKeyword = "keyword"
)

// Breakdown explains a score. Score is always within [0,1].
type Breakdown struct {
	Score          decimal.Decimal
	AmountScore    decimal.Decimal
	DateScore      decimal.Decimal
	ReferenceScore decimal.Decimal

	AmountDiff      decimal.Decimal
	AmountTolerance decimal.Decimal
	DaysDiff        int
	ReferenceReason string
	MatchedKeyword  string

	// DescriptionSimilarity is recorded for audit only and does not
	// contribute to Score.
	DescriptionSimilarity float64
}

func (b Breakdown) Criteria() map[string]interface{} {
	c := map[string]interface{}{
		"score":                  b.Score.InexactFloat64(),
		"amount_score":           b.AmountScore.InexactFloat64(),
		"date_score":             b.DateScore.InexactFloat64(),
		"reference_score":        b.ReferenceScore.InexactFloat64(),
		"amount_diff":            b.AmountDiff.String(),
		"amount_tolerance":       b.AmountTolerance.String(),
		"days_diff":              b.DaysDiff,
		"description_similarity": b.DescriptionSimilarity,
	}
	if b.ReferenceReason != "" {
		c["reference_match"] = b.ReferenceReason
	}
	if b.MatchedKeyword != "" {
		c["keyword"] = b.MatchedKeyword
	}
	return c
}

func (m *matcher) score(tx *models.BankTransaction, c models.Candidate) Breakdown {
	amount := tx.Amount.Abs()
	b := Breakdown{
		AmountTolerance: m.tolerance(amount),
		AmountDiff:      amount.Sub(c.Amount.Abs()).Abs(),
		DaysDiff:        daysBetween(tx, c),
	}

	b.AmountScore = linearScore(b.AmountDiff, b.AmountTolerance)
	b.DateScore = linearScore(decimal.NewFromInt(int64(b.DaysDiff)), decimal.NewFromInt(int64(m.rule.DateToleranceDays)))
	b.ReferenceReason, b.MatchedKeyword = m.referenceMatch(tx, c)
	b.ReferenceScore = decimal.Zero
	if b.ReferenceReason != "" {
		b.ReferenceScore = decimal.NewFromInt(1)
	}

	score := amountWeight.Mul(b.AmountScore).
		Add(dateWeight.Mul(b.DateScore)).
		Add(referenceWeight.Mul(b.ReferenceScore))
	b.Score = clamp01(score)
	b.DescriptionSimilarity = DescriptionSimilarity(tx.Description, c.Description)
	return b
}

// linearScore is 1 - diff/tol floored at 0. A zero tolerance scores 1 only
// for a zero difference.
func linearScore(diff, tol decimal.Decimal) decimal.Decimal {
	if tol.Sign() <= 0 {
		if diff.IsZero() {
			return decimal.NewFromInt(1)
		}
		return decimal.Zero
	}
	s := decimal.NewFromInt(1).Sub(diff.Div(tol))
	if s.IsNegative() {
		return decimal.Zero
	}
	return s
}

func clamp01(d decimal.Decimal) decimal.Decimal {
	one := decimal.NewFromInt(1)
	if d.IsNegative() {
		return decimal.Zero
	}
	if d.GreaterThan(one) {
		return one
	}
	return d
}

func daysBetween(tx *models.BankTransaction, c models.Candidate) int {
	d := models.DateOnly(tx.TransactionDate).Sub(models.DateOnly(c.Date))
	days := int(d.Hours() / 24)
	if days < 0 {
		days = -days
	}
	return days
}

func (m *matcher) referenceMatch(tx *models.BankTransaction, c models.Candidate) (string, string) {
	txRef := strings.ToLower(strings.TrimSpace(tx.Reference))
	cRef := strings.ToLower(strings.TrimSpace(c.Reference))
	if txRef != "" && txRef == cRef {
		return ReferenceExact, ""
	}
	if m.pattern != nil && (m.pattern.MatchString(tx.Reference) || m.pattern.MatchString(c.Reference)) {
		return ReferencePattern, ""
	}
	desc := strings.ToLower(tx.Description)
	for _, k := range m.keywords {
		if strings.Contains(desc, k) {
			return ReferenceKeyword, k
		}
	}
	return "", ""
}

var unitCost = levenshtein.Options{
	InsCost: 1,
	DelCost: 1,
	SubCost: 1,
	Matches: levenshtein.IdenticalRunes,
}

// DescriptionSimilarity is a normalized Levenshtein similarity in [0,1].
func DescriptionSimilarity(a, b string) float64 {
	ra := []rune(strings.ToLower(strings.TrimSpace(a)))
	rb := []rune(strings.ToLower(strings.TrimSpace(b)))
	longest := len(ra)
	if len(rb) > longest {
		longest = len(rb)
	}
	if longest == 0 {
		return 0
	}
	dist := levenshtein.DistanceForStrings(ra, rb, unitCost)
	return 1 - float64(dist)/float64(longest)
}
