package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	"bank-reconciliation-backend/internal/models"
	"bank-reconciliation-backend/internal/services/period"
)

func (h *Handler) CreateAccount(c *gin.Context) {
	var payload struct {
		Name           string          `json:"name"`
		BankName       string          `json:"bank_name"`
		AccountNumber  string          `json:"account_number"`
		BranchCode     string          `json:"branch_code"`
		SwiftCode      string          `json:"swift_code"`
		AccountType    string          `json:"account_type"`
		Currency       string          `json:"currency"`
		OpeningBalance decimal.Decimal `json:"opening_balance"`
		IsPrimary      bool            `json:"is_primary"`
	}
	if !bind(c, &payload) {
		return
	}

	acc := &models.BankAccount{
		Name:           payload.Name,
		BankName:       payload.BankName,
		AccountNumber:  payload.AccountNumber,
		BranchCode:     payload.BranchCode,
		SwiftCode:      payload.SwiftCode,
		AccountType:    payload.AccountType,
		Currency:       payload.Currency,
		CurrentBalance: payload.OpeningBalance,
		IsPrimary:      payload.IsPrimary,
		CreatedBy:      userID(c),
	}
	if err := h.recon.CreateAccount(c.Request.Context(), acc); err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"message": "bank account created", "account": acc})
}

func (h *Handler) ListAccounts(c *gin.Context) {
	accounts, err := h.recon.ListAccounts(c.Request.Context(), c.Query("active") == "true")
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"items": accounts})
}

func (h *Handler) GetAccount(c *gin.Context) {
	id, ok := parseID(c, "id", "account")
	if !ok {
		return
	}
	acc, err := h.recon.GetAccount(c.Request.Context(), id)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, acc)
}

func (h *Handler) AdjustBalance(c *gin.Context) {
	id, ok := parseID(c, "id", "account")
	if !ok {
		return
	}
	var payload struct {
		Amount decimal.Decimal `json:"amount"`
		Reason string          `json:"reason"`
	}
	if !bind(c, &payload) {
		return
	}

	acc, err := h.periods.AdjustBalance(c.Request.Context(), id, period.AdjustRequest{
		Amount: payload.Amount,
		Reason: payload.Reason,
		UserID: userID(c),
	})
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "balance adjusted", "account": acc})
}
