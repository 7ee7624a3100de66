package config

import (
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"bank-reconciliation-backend/internal/models"
)

// InitDB opens the configured datastore.
func InitDB(cfg DBConfig, log zerolog.Logger) (*gorm.DB, error) {
	var dialector gorm.Dialector
	switch cfg.Driver {
	case "sqlite":
		dialector = sqlite.Open(cfg.SQLitePath)
	default:
		dialector = postgres.Open(cfg.DSN())
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger:  gormlogger.Default.LogMode(gormlogger.Warn),
		NowFunc: func() time.Time { return time.Now().UTC() },
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open %s database: %w", cfg.Driver, err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get sql handle: %w", err)
	}
	if cfg.Driver == "sqlite" {
		// single writer
		sqlDB.SetMaxOpenConns(1)
	} else {
		sqlDB.SetMaxOpenConns(25)
		sqlDB.SetMaxIdleConns(5)
		sqlDB.SetConnMaxLifetime(time.Hour)
	}

	log.Info().Str("driver", cfg.Driver).Msg("Database connected")
	return db, nil
}

// Migrate creates or updates every table the engine uses.
func Migrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&models.BankAccount{},
		&models.BankTransaction{},
		&models.TransactionMatch{},
		&models.MatchAuditLog{},
		&models.ReconciliationRule{},
		&models.ReconciliationPeriod{},
		&models.ImportBatch{},
		&models.Payment{},
		&models.FinancialTransaction{},
	)
}
