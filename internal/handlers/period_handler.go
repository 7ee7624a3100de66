package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	"bank-reconciliation-backend/internal/services/period"
)

func (h *Handler) StartPeriod(c *gin.Context) {
	accountID, ok := parseID(c, "id", "account")
	if !ok {
		return
	}
	var payload struct {
		StartDate string `json:"start_date"`
		EndDate   string `json:"end_date"`
		Notes     string `json:"notes"`
	}
	if !bind(c, &payload) {
		return
	}
	start, ok := parseDateField(c, "start_date", payload.StartDate, true)
	if !ok {
		return
	}
	end, ok := parseDateField(c, "end_date", payload.EndDate, true)
	if !ok {
		return
	}

	p, err := h.periods.Start(c.Request.Context(), period.StartRequest{
		AccountID: accountID,
		StartDate: *start,
		EndDate:   *end,
		Notes:     payload.Notes,
		UserID:    userID(c),
	})
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"message": "reconciliation period started", "period": p})
}

func (h *Handler) ListPeriods(c *gin.Context) {
	accountID, ok := parseID(c, "id", "account")
	if !ok {
		return
	}
	periods, err := h.periods.ListForAccount(c.Request.Context(), accountID)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"items": periods})
}

func (h *Handler) GetPeriod(c *gin.Context) {
	id, ok := parseID(c, "id", "period")
	if !ok {
		return
	}
	p, err := h.periods.Get(c.Request.Context(), id)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, p)
}

func (h *Handler) RefreshPeriod(c *gin.Context) {
	id, ok := parseID(c, "id", "period")
	if !ok {
		return
	}
	p, err := h.periods.Refresh(c.Request.Context(), id)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, p)
}

func (h *Handler) ClosePeriod(c *gin.Context) {
	id, ok := parseID(c, "id", "period")
	if !ok {
		return
	}
	var payload struct {
		StatementBalance *decimal.Decimal `json:"statement_balance"`
		Notes            string           `json:"notes"`
	}
	if !bind(c, &payload) {
		return
	}
	if payload.StatementBalance == nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "statement_balance is required"})
		return
	}

	p, err := h.periods.Close(c.Request.Context(), id, period.CloseRequest{
		StatementBalance: *payload.StatementBalance,
		Notes:            payload.Notes,
		UserID:           userID(c),
	})
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "reconciliation period closed", "period": p})
}

func (h *Handler) ReviewPeriod(c *gin.Context) {
	id, ok := parseID(c, "id", "period")
	if !ok {
		return
	}
	var payload struct {
		Notes string `json:"notes"`
	}
	if !bindOptional(c, &payload) {
		return
	}
	p, err := h.periods.Review(c.Request.Context(), id, period.ReviewRequest{Notes: payload.Notes, UserID: userID(c)})
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "reconciliation period reviewed", "period": p})
}

func (h *Handler) ReopenPeriod(c *gin.Context) {
	id, ok := parseID(c, "id", "period")
	if !ok {
		return
	}
	var payload reasonPayload
	if !bind(c, &payload) {
		return
	}
	p, err := h.periods.Reopen(c.Request.Context(), id, period.ReopenRequest{Reason: payload.Reason, UserID: userID(c)})
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "reconciliation period reopened", "period": p})
}
