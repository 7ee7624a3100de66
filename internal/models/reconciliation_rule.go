package models

import (
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/datatypes"

	"bank-reconciliation-backend/internal/apperrors"
)

// ReconciliationRule is operator configuration. The matching process reads
// rules but never writes them.
type ReconciliationRule struct {
	ID                        uuid.UUID                   `gorm:"type:uuid;primaryKey" json:"id"`
	Name                      string                      `gorm:"not null" json:"name"`
	Description               string                      `json:"description"`
	Priority                  int                         `gorm:"not null;index" json:"priority"`
	AmountToleranceAbsolute   decimal.Decimal             `gorm:"type:decimal(18,2);not null;default:0" json:"amount_tolerance_absolute"`
	AmountTolerancePercentage decimal.Decimal             `gorm:"type:decimal(9,6);not null;default:0" json:"amount_tolerance_percentage"`
	DateToleranceDays         int                         `gorm:"not null;default:0" json:"date_tolerance_days"`
	ReferencePattern          string                      `json:"reference_pattern"`
	DescriptionKeywords       datatypes.JSONSlice[string] `json:"description_keywords"`
	TargetEntityType          string                      `gorm:"size:40;not null" json:"target_entity_type"`
	MinConfidenceScore        float64                     `gorm:"not null;default:0" json:"min_confidence_score"`
	AutoMatchEnabled          bool                        `gorm:"not null" json:"auto_match_enabled"`
	IsActive                  bool                        `gorm:"not null" json:"is_active"`
	CreatedBy                 string                      `json:"created_by"`
	CreatedAt                 time.Time                   `json:"created_at"`
	UpdatedAt                 time.Time                   `json:"updated_at"`
}

// Validate rejects rules the matcher could not evaluate.
func (r *ReconciliationRule) Validate() error {
	const op = "validate rule"
	if strings.TrimSpace(r.Name) == "" {
		return apperrors.Validation(op, "name is required")
	}
	if !IsKnownEntityType(r.TargetEntityType) {
		return apperrors.Validation(op, "unknown target entity type %q", r.TargetEntityType)
	}
	if r.AmountToleranceAbsolute.IsNegative() || r.AmountTolerancePercentage.IsNegative() {
		return apperrors.Validation(op, "amount tolerances must not be negative")
	}
	if r.DateToleranceDays < 0 {
		return apperrors.Validation(op, "date tolerance must not be negative")
	}
	if r.MinConfidenceScore < 0 || r.MinConfidenceScore > 1 {
		return apperrors.Validation(op, "min confidence score must be within [0,1]")
	}
	if r.ReferencePattern != "" {
		if _, err := regexp.Compile(r.ReferencePattern); err != nil {
			return apperrors.Validation(op, "invalid reference pattern: %v", err)
		}
	}
	return nil
}
