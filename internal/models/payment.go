package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

const EntityTypePayment = "payment"

// Payment is a tenant or customer payment recorded by the platform.
type Payment struct {
	ID          uuid.UUID       `gorm:"type:uuid;primaryKey" json:"id"`
	Reference   string          `gorm:"index" json:"reference"`
	PayerName   string          `gorm:"index" json:"payer_name"`
	Description string          `json:"description"`
	Amount      decimal.Decimal `gorm:"type:decimal(18,2);not null;index" json:"amount"`
	PaymentDate time.Time       `gorm:"not null;index" json:"payment_date"`
	Method      string          `json:"method"`
	Status      string          `gorm:"index" json:"status"`
	CreatedAt   time.Time       `json:"created_at"`
}
