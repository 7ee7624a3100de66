package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type TransactionType string

const (
	TransactionTypeCredit TransactionType = "CREDIT"
	TransactionTypeDebit  TransactionType = "DEBIT"
)

type TransactionSource string

const (
	SourceBankStatement TransactionSource = "BANK_STATEMENT"
	SourceExternalFeed  TransactionSource = "EXTERNAL_FEED"
	SourceManual        TransactionSource = "MANUAL"
)

type TransactionStatus string

const (
	StatusUnmatched        TransactionStatus = "UNMATCHED"
	StatusMatched          TransactionStatus = "MATCHED"
	StatusPartiallyMatched TransactionStatus = "PARTIALLY_MATCHED"
	StatusDisputed         TransactionStatus = "DISPUTED"
	StatusIgnored          TransactionStatus = "IGNORED"
	StatusManualMatch      TransactionStatus = "MANUAL_MATCH"
)

// IsMatchedStatus reports whether s implies an active match exists.
func IsMatchedStatus(s TransactionStatus) bool {
	return s == StatusMatched || s == StatusManualMatch
}

// BankTransaction is one line of a bank statement or external feed. Amount is
// always unsigned; Type carries the direction.
type BankTransaction struct {
	ID                uuid.UUID         `gorm:"type:uuid;primaryKey" json:"id"`
	BankAccountID     uuid.UUID         `gorm:"type:uuid;not null;index;uniqueIndex:idx_bank_tx_ref_date,priority:1,where:reference <> ''" json:"bank_account_id"`
	TransactionDate   time.Time         `gorm:"column:transaction_date;not null;uniqueIndex:idx_bank_tx_ref_date,priority:3" json:"transaction_date"`
	ValueDate         *time.Time        `json:"value_date,omitempty"`
	Reference         string            `gorm:"uniqueIndex:idx_bank_tx_ref_date,priority:2" json:"reference"`
	Description       string            `json:"description"`
	Amount            decimal.Decimal   `gorm:"type:decimal(18,2);not null" json:"amount"`
	Type              TransactionType   `gorm:"size:10;not null" json:"type"`
	Source            TransactionSource `gorm:"size:20;not null" json:"source"`
	Status            TransactionStatus `gorm:"size:20;not null;index" json:"status"`
	VarianceAmount    decimal.Decimal   `gorm:"type:decimal(18,2);not null;default:0" json:"variance_amount"`
	RequiresAttention bool              `gorm:"not null;default:false;index" json:"requires_attention"`
	IsDuplicate       bool              `gorm:"not null;default:false" json:"is_duplicate"`
	ImportBatchID     *uuid.UUID        `gorm:"type:uuid;index" json:"import_batch_id,omitempty"`
	MatchedDate       *time.Time        `json:"matched_date,omitempty"`
	MatchedBy         string            `json:"matched_by,omitempty"`
	Notes             string            `json:"notes,omitempty"`
	CreatedBy         string            `json:"created_by"`
	CreatedAt         time.Time         `json:"created_at"`
	UpdatedAt         time.Time         `json:"updated_at"`
}

// SignedAmount returns the amount with credits positive and debits negative.
func (t *BankTransaction) SignedAmount() decimal.Decimal {
	if t.Type == TransactionTypeDebit {
		return t.Amount.Neg()
	}
	return t.Amount
}
