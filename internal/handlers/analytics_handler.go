package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"bank-reconciliation-backend/internal/services/analytics"
)

func (h *Handler) Summary(c *gin.Context) {
	var f analytics.Filter
	if raw := c.Query("account_id"); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid account ID"})
			return
		}
		f.AccountID = &id
	}
	from, ok := parseDateField(c, "from", c.Query("from"), false)
	if !ok {
		return
	}
	to, ok := parseDateField(c, "to", c.Query("to"), false)
	if !ok {
		return
	}
	f.From, f.To = from, to

	summary, err := h.analytics.Summary(c.Request.Context(), f)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, summary)
}
