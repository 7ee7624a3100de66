package routes

import (
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	handler "bank-reconciliation-backend/internal/handlers"
)

// NewRouter builds the gin engine with middleware and every API route.
func NewRouter(h *handler.Handler, corsOrigins []string, log zerolog.Logger) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(cors.New(cors.Config{
		AllowOrigins:     corsOrigins,
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE"},
		AllowHeaders:     []string{"Origin", "Content-Type", handler.UserIDHeader},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))
	r.Use(handler.UserID())
	r.Use(handler.RequestLogger(log))

	RegisterRoutes(r, h)
	return r
}

func RegisterRoutes(r *gin.Engine, h *handler.Handler) {
	api := r.Group("/api")

	// Health check
	api.GET("/health", h.Health)

	accounts := api.Group("/accounts")
	accounts.POST("", h.CreateAccount)
	accounts.GET("", h.ListAccounts)
	accounts.GET("/:id", h.GetAccount)
	accounts.POST("/:id/adjust", h.AdjustBalance)
	accounts.POST("/:id/statements", h.UploadStatement)
	accounts.POST("/:id/transactions", h.CreateTransaction)
	accounts.GET("/:id/transactions", h.ListTransactions)
	accounts.POST("/:id/periods", h.StartPeriod)
	accounts.GET("/:id/periods", h.ListPeriods)

	api.GET("/imports/:batchId", h.GetImportBatch)

	recon := api.Group("/reconciliation")
	recon.POST("/auto-match", h.AutoMatch)

	// Transaction-level routes
	tx := api.Group("/transactions")
	tx.POST("/:id/match", h.ManualMatch)
	tx.POST("/:id/unmatch", h.Unmatch)
	tx.POST("/:id/ignore", h.Ignore)
	tx.POST("/:id/dispute", h.Dispute)
	tx.POST("/:id/restore", h.Restore)
	tx.GET("/:id/matches", h.GetMatches)

	rules := api.Group("/rules")
	rules.POST("", h.CreateRule)
	rules.GET("", h.ListRules)
	rules.PUT("/:id", h.UpdateRule)
	rules.DELETE("/:id", h.DeleteRule)

	api.POST("/payments", h.CreatePayment)
	api.POST("/financial-transactions", h.CreateFinancialTransaction)

	periods := api.Group("/periods")
	periods.GET("/:id", h.GetPeriod)
	periods.POST("/:id/refresh", h.RefreshPeriod)
	periods.POST("/:id/close", h.ClosePeriod)
	periods.POST("/:id/review", h.ReviewPeriod)
	periods.POST("/:id/reopen", h.ReopenPeriod)

	api.GET("/analytics/summary", h.Summary)
}
