package handler

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"bank-reconciliation-backend/internal/models"
	"bank-reconciliation-backend/internal/services/reconciliation"
)

func (h *Handler) AutoMatch(c *gin.Context) {
	var payload struct {
		AccountID string `json:"account_id"`
		Limit     int    `json:"limit"`
		Cursor    string `json:"cursor"`
	}
	if !bindOptional(c, &payload) {
		return
	}

	req := reconciliation.AutoMatchRequest{
		Limit:  payload.Limit,
		UserID: userID(c),
	}
	if payload.Cursor != "" {
		cursor, err := uuid.Parse(payload.Cursor)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid cursor"})
			return
		}
		req.After = cursor.String()
	}
	if payload.AccountID != "" {
		id, err := uuid.Parse(payload.AccountID)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid account ID"})
			return
		}
		req.AccountID = &id
	}

	result, err := h.recon.AutoMatch(c.Request.Context(), req)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

func (h *Handler) ManualMatch(c *gin.Context) {
	id, ok := parseID(c, "id", "transaction")
	if !ok {
		return
	}
	var payload struct {
		EntityType string           `json:"entity_type"`
		EntityID   string           `json:"entity_id"`
		Amount     *decimal.Decimal `json:"amount"`
		Notes      string           `json:"notes"`
		Replace    bool             `json:"replace"`
	}
	if !bind(c, &payload) {
		return
	}
	entityID, err := uuid.Parse(payload.EntityID)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid entity ID"})
		return
	}

	req := reconciliation.ManualMatchRequest{
		TransactionID: id,
		EntityType:    strings.ToLower(strings.TrimSpace(payload.EntityType)),
		EntityID:      entityID,
		Notes:         payload.Notes,
		Replace:       payload.Replace,
		UserID:        userID(c),
	}
	if payload.Amount != nil {
		req.Amount = *payload.Amount
	}

	match, err := h.recon.ManualMatch(c.Request.Context(), req)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "transaction manually matched", "match": match})
}

type reasonPayload struct {
	Reason string `json:"reason"`
}

func (h *Handler) Unmatch(c *gin.Context) {
	id, ok := parseID(c, "id", "transaction")
	if !ok {
		return
	}
	var payload reasonPayload
	if !bindOptional(c, &payload) {
		return
	}
	tx, err := h.recon.Unmatch(c.Request.Context(), id, payload.Reason, userID(c))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "transaction unmatched", "transaction": tx})
}

func (h *Handler) Ignore(c *gin.Context) {
	id, ok := parseID(c, "id", "transaction")
	if !ok {
		return
	}
	var payload struct {
		Reason    string `json:"reason"`
		Duplicate bool   `json:"duplicate"`
	}
	if !bindOptional(c, &payload) {
		return
	}
	tx, err := h.recon.Ignore(c.Request.Context(), id, reconciliation.IgnoreRequest{
		Reason:    payload.Reason,
		Duplicate: payload.Duplicate,
		UserID:    userID(c),
	})
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "transaction ignored", "transaction": tx})
}

func (h *Handler) Dispute(c *gin.Context) {
	id, ok := parseID(c, "id", "transaction")
	if !ok {
		return
	}
	var payload reasonPayload
	if !bindOptional(c, &payload) {
		return
	}
	tx, err := h.recon.Dispute(c.Request.Context(), id, payload.Reason, userID(c))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "transaction disputed", "transaction": tx})
}

func (h *Handler) Restore(c *gin.Context) {
	id, ok := parseID(c, "id", "transaction")
	if !ok {
		return
	}
	var payload reasonPayload
	if !bindOptional(c, &payload) {
		return
	}
	tx, err := h.recon.Restore(c.Request.Context(), id, payload.Reason, userID(c))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "transaction restored", "transaction": tx})
}

func (h *Handler) GetMatches(c *gin.Context) {
	id, ok := parseID(c, "id", "transaction")
	if !ok {
		return
	}
	history, err := h.recon.ListMatches(c.Request.Context(), id)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, history)
}

func (h *Handler) CreatePayment(c *gin.Context) {
	var payload struct {
		Reference   string          `json:"reference"`
		PayerName   string          `json:"payer_name"`
		Description string          `json:"description"`
		Amount      decimal.Decimal `json:"amount"`
		PaymentDate string          `json:"payment_date"`
		Method      string          `json:"method"`
		Status      string          `json:"status"`
	}
	if !bind(c, &payload) {
		return
	}
	date, ok := parseDateField(c, "payment_date", payload.PaymentDate, true)
	if !ok {
		return
	}

	p := &models.Payment{
		Reference:   payload.Reference,
		PayerName:   payload.PayerName,
		Description: payload.Description,
		Amount:      payload.Amount,
		PaymentDate: *date,
		Method:      payload.Method,
		Status:      payload.Status,
	}
	if err := h.recon.CreatePayment(c.Request.Context(), p); err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"message": "payment created", "payment": p})
}

func (h *Handler) CreateFinancialTransaction(c *gin.Context) {
	var payload struct {
		Kind            string          `json:"kind"`
		Category        string          `json:"category"`
		Reference       string          `json:"reference"`
		Description     string          `json:"description"`
		Amount          decimal.Decimal `json:"amount"`
		TransactionDate string          `json:"transaction_date"`
	}
	if !bind(c, &payload) {
		return
	}
	date, ok := parseDateField(c, "transaction_date", payload.TransactionDate, true)
	if !ok {
		return
	}

	f := &models.FinancialTransaction{
		Kind:            models.FinancialTransactionKind(payload.Kind),
		Category:        payload.Category,
		Reference:       payload.Reference,
		Description:     payload.Description,
		Amount:          payload.Amount,
		TransactionDate: *date,
	}
	if err := h.recon.CreateFinancialTransaction(c.Request.Context(), f); err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"message": "financial transaction created", "financial_transaction": f})
}
