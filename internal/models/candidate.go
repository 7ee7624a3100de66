package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Candidate is the matching view of an internal financial record.
type Candidate struct {
	EntityType  string          `json:"entity_type"`
	EntityID    uuid.UUID       `json:"entity_id"`
	Reference   string          `json:"reference"`
	Description string          `json:"description"`
	Amount      decimal.Decimal `json:"amount"`
	Date        time.Time       `json:"date"`
}

// CandidateQuery selects internal records inside an inclusive date and
// amount window.
type CandidateQuery struct {
	EntityType string
	DateFrom   time.Time
	DateTo     time.Time
	AmountMin  decimal.Decimal
	AmountMax  decimal.Decimal
}

// EntityTypes lists every entity type a rule may target.
var EntityTypes = []string{EntityTypePayment, EntityTypeFinancialTransaction}

func IsKnownEntityType(t string) bool {
	for _, e := range EntityTypes {
		if e == t {
			return true
		}
	}
	return false
}

// DateOnly truncates t to midnight UTC of its calendar date.
func DateOnly(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
