package models

import (
	"time"

	"github.com/google/uuid"
)

type MatchAction string

const (
	ActionAutoMatch   MatchAction = "AUTO_MATCH"
	ActionManualMatch MatchAction = "MANUAL_MATCH"
	ActionUnmatch     MatchAction = "UNMATCH"
	ActionFlagReview  MatchAction = "FLAG_REVIEW"
	ActionIgnore      MatchAction = "IGNORE"
	ActionDispute     MatchAction = "DISPUTE"
	ActionRestore     MatchAction = "RESTORE"
)

type MatchAuditLog struct {
	ID                 uuid.UUID   `gorm:"type:uuid;primaryKey" json:"id"`
	TransactionID      uuid.UUID   `gorm:"type:uuid;index" json:"transaction_id"`
	Action             MatchAction `gorm:"size:20" json:"action"`
	PreviousEntityType string      `json:"previous_entity_type,omitempty"`
	PreviousEntityID   *uuid.UUID  `gorm:"type:uuid" json:"previous_entity_id,omitempty"`
	NewEntityType      string      `json:"new_entity_type,omitempty"`
	NewEntityID        *uuid.UUID  `gorm:"type:uuid" json:"new_entity_id,omitempty"`
	Score              float64     `json:"score"`
	PerformedBy        string      `json:"performed_by"`
	Reason             string      `json:"reason"`
	CreatedAt          time.Time   `json:"created_at"`
}
