// Package handler exposes the reconciliation services over HTTP with gin.
package handler

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"bank-reconciliation-backend/internal/apperrors"
	"bank-reconciliation-backend/internal/services/analytics"
	"bank-reconciliation-backend/internal/services/period"
	"bank-reconciliation-backend/internal/services/reconciliation"
	"bank-reconciliation-backend/internal/services/statement"
)

type Handler struct {
	recon     *reconciliation.ReconciliationService
	periods   *period.Manager
	analytics *analytics.Aggregator

	// bg outlives requests; asynchronous imports run under it.
	bg  context.Context
	wg  sync.WaitGroup
	log zerolog.Logger
}

func New(bg context.Context, recon *reconciliation.ReconciliationService, periods *period.Manager, agg *analytics.Aggregator, log zerolog.Logger) *Handler {
	return &Handler{
		recon:     recon,
		periods:   periods,
		analytics: agg,
		bg:        bg,
		log:       log.With().Str("component", "http").Logger(),
	}
}

// Wait blocks until background imports started by this handler finish.
func (h *Handler) Wait() {
	h.wg.Wait()
}

func (h *Handler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// statusFor maps an error kind to its HTTP status.
func statusFor(err error) int {
	switch apperrors.KindOf(err) {
	case apperrors.KindNotFound:
		return http.StatusNotFound
	case apperrors.KindValidation:
		return http.StatusBadRequest
	case apperrors.KindInvariant, apperrors.KindConflict:
		return http.StatusConflict
	case apperrors.KindTransient:
		return http.StatusServiceUnavailable
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

func (h *Handler) respondError(c *gin.Context, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		h.log.Error().Err(err).Str("path", c.FullPath()).Msg("Request failed")
	}
	if status == http.StatusInternalServerError {
		c.JSON(status, gin.H{"error": "internal server error"})
		return
	}
	c.JSON(status, gin.H{"error": err.Error()})
}

func parseID(c *gin.Context, param, label string) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param(param))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid " + label + " ID"})
		return uuid.Nil, false
	}
	return id, true
}

// bindOptional binds a JSON body when one was sent.
func bindOptional(c *gin.Context, payload any) bool {
	if c.Request.ContentLength == 0 {
		return true
	}
	if err := c.ShouldBindJSON(payload); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid payload"})
		return false
	}
	return true
}

func bind(c *gin.Context, payload any) bool {
	if err := c.ShouldBindJSON(payload); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid payload"})
		return false
	}
	return true
}

// parseDateField parses a request date in any accepted statement format.
func parseDateField(c *gin.Context, name, raw string, required bool) (*time.Time, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		if required {
			c.JSON(http.StatusBadRequest, gin.H{"error": name + " is required"})
			return nil, false
		}
		return nil, true
	}
	t, ok := statement.ParseDate(raw)
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid " + name + ", expected yyyy-mm-dd"})
		return nil, false
	}
	return &t, true
}
