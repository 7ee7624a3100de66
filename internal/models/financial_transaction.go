package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

const EntityTypeFinancialTransaction = "financial_transaction"

type FinancialTransactionKind string

const (
	KindIncome  FinancialTransactionKind = "INCOME"
	KindExpense FinancialTransactionKind = "EXPENSE"
)

// FinancialTransaction is an internal income or expense entry.
type FinancialTransaction struct {
	ID              uuid.UUID                `gorm:"type:uuid;primaryKey" json:"id"`
	Kind            FinancialTransactionKind `gorm:"size:10;not null" json:"kind"`
	Category        string                   `json:"category"`
	Reference       string                   `gorm:"index" json:"reference"`
	Description     string                   `json:"description"`
	Amount          decimal.Decimal          `gorm:"type:decimal(18,2);not null;index" json:"amount"`
	TransactionDate time.Time                `gorm:"not null;index" json:"transaction_date"`
	CreatedAt       time.Time                `json:"created_at"`
}
