// Package testutil holds shared fixtures for package tests.
package testutil

import (
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"bank-reconciliation-backend/internal/config"
	"bank-reconciliation-backend/internal/models"
)

// NewTestDB returns a migrated in-memory SQLite database private to t.
func NewTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger:  gormlogger.Default.LogMode(gormlogger.Silent),
		NowFunc: func() time.Time { return time.Now().UTC() },
	})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	require.NoError(t, config.Migrate(db))
	return db
}

// Day returns midnight UTC of the given date.
func Day(year int, month time.Month, day int) time.Time {
	return time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
}

func Amount(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

// CreateAccount inserts an active account with the given reconciled balance.
func CreateAccount(t *testing.T, db *gorm.DB, reconciled string) *models.BankAccount {
	t.Helper()
	acc := &models.BankAccount{
		ID:                    uuid.New(),
		Name:                  "Operating",
		BankName:              "Test Bank",
		AccountNumber:         "0011223344",
		Currency:              "KES",
		CurrentBalance:        Amount(reconciled),
		LastReconciledBalance: Amount(reconciled),
		IsActive:              true,
		CreatedBy:             "test",
	}
	require.NoError(t, db.Create(acc).Error)
	return acc
}

// CreateTransaction inserts an UNMATCHED statement line.
func CreateTransaction(t *testing.T, db *gorm.DB, accountID uuid.UUID, ref, amount string, typ models.TransactionType, date time.Time) *models.BankTransaction {
	t.Helper()
	tx := &models.BankTransaction{
		ID:              uuid.New(),
		BankAccountID:   accountID,
		TransactionDate: date,
		Reference:       ref,
		Description:     "test line " + ref,
		Amount:          Amount(amount),
		Type:            typ,
		Source:          models.SourceBankStatement,
		Status:          models.StatusUnmatched,
		CreatedBy:       "test",
	}
	require.NoError(t, db.Create(tx).Error)
	return tx
}

func CreatePayment(t *testing.T, db *gorm.DB, ref, amount string, date time.Time) *models.Payment {
	t.Helper()
	p := &models.Payment{
		ID:          uuid.New(),
		Reference:   ref,
		PayerName:   "Tenant " + ref,
		Description: "rent " + ref,
		Amount:      Amount(amount),
		PaymentDate: date,
		Method:      "bank_transfer",
		Status:      "completed",
	}
	require.NoError(t, db.Create(p).Error)
	return p
}
