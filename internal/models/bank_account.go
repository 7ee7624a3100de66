package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type BankAccount struct {
	ID                    uuid.UUID       `gorm:"type:uuid;primaryKey" json:"id"`
	Name                  string          `gorm:"not null" json:"name"`
	BankName              string          `json:"bank_name"`
	AccountNumber         string          `gorm:"index" json:"account_number"`
	BranchCode            string          `json:"branch_code"`
	SwiftCode             string          `json:"swift_code"`
	AccountType           string          `json:"account_type"`
	Currency              string          `gorm:"size:3" json:"currency"`
	CurrentBalance        decimal.Decimal `gorm:"type:decimal(18,2);not null;default:0" json:"current_balance"`
	LastReconciledBalance decimal.Decimal `gorm:"type:decimal(18,2);not null;default:0" json:"last_reconciled_balance"`
	LastReconciledDate    *time.Time      `json:"last_reconciled_date"`
	IsActive              bool            `gorm:"not null" json:"is_active"`
	IsPrimary             bool            `gorm:"not null;default:false" json:"is_primary"`
	CreatedBy             string          `json:"created_by"`
	CreatedAt             time.Time       `json:"created_at"`
	UpdatedAt             time.Time       `json:"updated_at"`
}
