package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"gorm.io/datatypes"

	"bank-reconciliation-backend/internal/models"
)

type rulePayload struct {
	Name                      string          `json:"name"`
	Description               string          `json:"description"`
	Priority                  int             `json:"priority"`
	AmountToleranceAbsolute   decimal.Decimal `json:"amount_tolerance_absolute"`
	AmountTolerancePercentage decimal.Decimal `json:"amount_tolerance_percentage"`
	DateToleranceDays         int             `json:"date_tolerance_days"`
	ReferencePattern          string          `json:"reference_pattern"`
	DescriptionKeywords       []string        `json:"description_keywords"`
	TargetEntityType          string          `json:"target_entity_type"`
	MinConfidenceScore        float64         `json:"min_confidence_score"`
	AutoMatchEnabled          *bool           `json:"auto_match_enabled"`
	IsActive                  *bool           `json:"is_active"`
}

// rule converts the payload; omitted flags default to enabled.
func (p rulePayload) rule() *models.ReconciliationRule {
	enabled := func(b *bool) bool { return b == nil || *b }
	return &models.ReconciliationRule{
		Name:                      p.Name,
		Description:               p.Description,
		Priority:                  p.Priority,
		AmountToleranceAbsolute:   p.AmountToleranceAbsolute,
		AmountTolerancePercentage: p.AmountTolerancePercentage,
		DateToleranceDays:         p.DateToleranceDays,
		ReferencePattern:          p.ReferencePattern,
		DescriptionKeywords:       datatypes.JSONSlice[string](p.DescriptionKeywords),
		TargetEntityType:          p.TargetEntityType,
		MinConfidenceScore:        p.MinConfidenceScore,
		AutoMatchEnabled:          enabled(p.AutoMatchEnabled),
		IsActive:                  enabled(p.IsActive),
	}
}

func (h *Handler) CreateRule(c *gin.Context) {
	var payload rulePayload
	if !bind(c, &payload) {
		return
	}
	rule := payload.rule()
	if err := h.recon.CreateRule(c.Request.Context(), rule, userID(c)); err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"message": "rule created", "rule": rule})
}

func (h *Handler) ListRules(c *gin.Context) {
	rules, err := h.recon.ListRules(c.Request.Context())
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"items": rules})
}

func (h *Handler) UpdateRule(c *gin.Context) {
	id, ok := parseID(c, "id", "rule")
	if !ok {
		return
	}
	var payload rulePayload
	if !bind(c, &payload) {
		return
	}
	rule, err := h.recon.UpdateRule(c.Request.Context(), id, payload.rule())
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "rule updated", "rule": rule})
}

func (h *Handler) DeleteRule(c *gin.Context) {
	id, ok := parseID(c, "id", "rule")
	if !ok {
		return
	}
	if err := h.recon.DeleteRule(c.Request.Context(), id); err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "rule deleted"})
}
