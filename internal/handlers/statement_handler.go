package handler

import (
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	"bank-reconciliation-backend/internal/models"
	"bank-reconciliation-backend/internal/repository"
	"bank-reconciliation-backend/internal/services/reconciliation"
	"bank-reconciliation-backend/internal/services/statement"
)

// UploadStatement imports a statement file. With async=true the batch is
// created, the file is processed in the background and the response is 202.
func (h *Handler) UploadStatement(c *gin.Context) {
	accountID, ok := parseID(c, "id", "account")
	if !ok {
		return
	}
	file, header, err := c.Request.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "file required"})
		return
	}
	defer file.Close()

	content, err := io.ReadAll(file)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "cannot read uploaded file"})
		return
	}

	importType := strings.ToLower(strings.TrimSpace(c.PostForm("import_type")))
	if importType == "" {
		importType = statement.ImportTypeCSV
	}
	req := reconciliation.ImportRequest{
		AccountID:  accountID,
		FileName:   header.Filename,
		ImportType: importType,
		Content:    content,
		UserID:     userID(c),
	}

	if async, _ := strconv.ParseBool(c.PostForm("async")); async {
		batch, err := h.recon.BeginImport(c.Request.Context(), req)
		if err != nil {
			h.respondError(c, err)
			return
		}
		h.wg.Add(1)
		go func() {
			defer h.wg.Done()
			if _, err := h.recon.RunImport(h.bg, batch, req); err != nil {
				h.log.Error().Err(err).Str("batch_id", batch.ID.String()).Msg("Background import failed")
			}
		}()
		c.JSON(http.StatusAccepted, gin.H{
			"batch_id": batch.ID.String(),
			"status":   batch.Status,
		})
		return
	}

	report, err := h.recon.ImportStatement(c.Request.Context(), req)
	if err != nil {
		if report != nil && report.Batch != nil {
			c.JSON(statusFor(err), gin.H{"error": err.Error(), "batch": report.Batch})
			return
		}
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, report)
}

func (h *Handler) GetImportBatch(c *gin.Context) {
	id, ok := parseID(c, "batchId", "batch")
	if !ok {
		return
	}
	batch, err := h.recon.GetImportBatch(c.Request.Context(), id)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, batch)
}

// CreateTransaction records a single line from an external feed or a manual
// entry.
func (h *Handler) CreateTransaction(c *gin.Context) {
	accountID, ok := parseID(c, "id", "account")
	if !ok {
		return
	}
	var payload struct {
		TransactionDate string          `json:"transaction_date"`
		ValueDate       string          `json:"value_date"`
		Reference       string          `json:"reference"`
		Description     string          `json:"description"`
		Amount          decimal.Decimal `json:"amount"`
		Type            string          `json:"type"`
		Source          string          `json:"source"`
		Notes           string          `json:"notes"`
	}
	if !bind(c, &payload) {
		return
	}
	date, ok := parseDateField(c, "transaction_date", payload.TransactionDate, true)
	if !ok {
		return
	}
	valueDate, ok := parseDateField(c, "value_date", payload.ValueDate, false)
	if !ok {
		return
	}

	tx, err := h.recon.RecordTransaction(c.Request.Context(), reconciliation.FeedTransaction{
		AccountID:       accountID,
		TransactionDate: *date,
		ValueDate:       valueDate,
		Reference:       payload.Reference,
		Description:     payload.Description,
		Amount:          payload.Amount,
		Type:            models.TransactionType(strings.ToUpper(payload.Type)),
		Source:          models.TransactionSource(strings.ToUpper(payload.Source)),
		Notes:           payload.Notes,
		UserID:          userID(c),
	})
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"message": "transaction recorded", "transaction": tx})
}

func (h *Handler) ListTransactions(c *gin.Context) {
	accountID, ok := parseID(c, "id", "account")
	if !ok {
		return
	}
	limit := 50
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid limit"})
			return
		}
		limit = n
	}

	items, nextCursor, hasMore, err := h.recon.ListTransactions(c.Request.Context(), repository.ListQuery{
		AccountID: accountID,
		Status:    c.Query("status"),
		Cursor:    c.Query("cursor"),
		Limit:     limit,
		Search:    c.Query("search"),
	})
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"items":       items,
		"next_cursor": nextCursor,
		"has_more":    hasMore,
	})
}
