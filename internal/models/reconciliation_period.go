package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type PeriodStatus string

const (
	PeriodInProgress PeriodStatus = "IN_PROGRESS"
	PeriodCompleted  PeriodStatus = "COMPLETED"
	PeriodReviewed   PeriodStatus = "REVIEWED"
)

type ReconciliationPeriod struct {
	ID                    uuid.UUID       `gorm:"type:uuid;primaryKey" json:"id"`
	BankAccountID         uuid.UUID       `gorm:"type:uuid;not null;index;uniqueIndex:idx_one_open_period,where:status = 'IN_PROGRESS'" json:"bank_account_id"`
	StartDate             time.Time       `gorm:"not null" json:"start_date"`
	EndDate               time.Time       `gorm:"not null" json:"end_date"`
	OpeningBalance        decimal.Decimal `gorm:"type:decimal(18,2);not null;default:0" json:"opening_balance"`
	ClosingBalance        decimal.Decimal `gorm:"type:decimal(18,2);not null;default:0" json:"closing_balance"`
	StatementBalance      decimal.Decimal `gorm:"type:decimal(18,2);not null;default:0" json:"statement_balance"`
	Status                PeriodStatus    `gorm:"size:20;not null;index" json:"status"`
	TotalTransactions     int             `gorm:"not null;default:0" json:"total_transactions"`
	MatchedTransactions   int             `gorm:"not null;default:0" json:"matched_transactions"`
	UnmatchedTransactions int             `gorm:"not null;default:0" json:"unmatched_transactions"`
	TotalVariance         decimal.Decimal `gorm:"type:decimal(18,2);not null;default:0" json:"total_variance"`
	Notes                 string          `json:"notes"`
	CreatedBy             string          `json:"created_by"`
	CompletedBy           string          `json:"completed_by,omitempty"`
	CompletedAt           *time.Time      `json:"completed_at,omitempty"`
	ReviewedBy            string          `json:"reviewed_by,omitempty"`
	ReviewedAt            *time.Time      `json:"reviewed_at,omitempty"`
	CreatedAt             time.Time       `json:"created_at"`
	UpdatedAt             time.Time       `json:"updated_at"`
}
