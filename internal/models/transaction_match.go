package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
)

type MatchConfidence string

const (
	ConfidenceHigh   MatchConfidence = "HIGH"
	ConfidenceMedium MatchConfidence = "MEDIUM"
	ConfidenceLow    MatchConfidence = "LOW"
	ConfidenceManual MatchConfidence = "MANUAL"
)

// TransactionMatch rows are append-only. Retired matches keep IsActive=false
// and are never deleted. The partial unique index allows one active row per
// bank transaction.
type TransactionMatch struct {
	ID                uuid.UUID       `gorm:"type:uuid;primaryKey" json:"id"`
	BankTransactionID uuid.UUID       `gorm:"type:uuid;not null;index;uniqueIndex:idx_one_active_match,where:is_active = true" json:"bank_transaction_id"`
	EntityType        string          `gorm:"size:40;not null;index:idx_match_entity,priority:1" json:"entity_type"`
	EntityID          uuid.UUID       `gorm:"type:uuid;not null;index:idx_match_entity,priority:2" json:"entity_id"`
	MatchedAmount     decimal.Decimal `gorm:"type:decimal(18,2);not null" json:"matched_amount"`
	Confidence        MatchConfidence `gorm:"size:10;not null" json:"confidence"`
	MatchingScore     float64         `gorm:"not null" json:"matching_score"`
	MatchingCriteria  datatypes.JSON  `json:"matching_criteria"`
	AutoMatched       bool            `gorm:"not null;default:false" json:"auto_matched"`
	IsActive          bool            `gorm:"not null;index" json:"is_active"`
	MatchedBy         string          `json:"matched_by"`
	Notes             string          `json:"notes,omitempty"`
	DeactivatedAt     *time.Time      `json:"deactivated_at,omitempty"`
	DeactivatedBy     string          `json:"deactivated_by,omitempty"`
	CreatedAt         time.Time       `json:"created_at"`
}
