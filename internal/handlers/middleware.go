package handler

import (
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"bank-reconciliation-backend/internal/services/reconciliation"
)

const (
	UserIDHeader = "X-User-ID"
	userIDKey    = "user_id"
)

// UserID stores the acting user from the X-User-ID header, defaulting to
// the system user.
func UserID() gin.HandlerFunc {
	return func(c *gin.Context) {
		user := strings.TrimSpace(c.GetHeader(UserIDHeader))
		if user == "" {
			user = reconciliation.SystemUser
		}
		c.Set(userIDKey, user)
		c.Next()
	}
}

func userID(c *gin.Context) string {
	if user := c.GetString(userIDKey); user != "" {
		return user
	}
	return reconciliation.SystemUser
}

// RequestLogger logs one line per request.
func RequestLogger(log zerolog.Logger) gin.HandlerFunc {
	log = log.With().Str("component", "http").Logger()
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		status := c.Writer.Status()
		event := log.Info()
		switch {
		case status >= 500:
			event = log.Error()
		case status >= 400:
			event = log.Warn()
		}
		event.
			Str("method", c.Request.Method).
			Str("path", c.Request.URL.Path).
			Int("status", status).
			Dur("latency", time.Since(start)).
			Str("user", userID(c)).
			Msg("HTTP request")
	}
}
