package repository

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/mattn/go-sqlite3"
	"gorm.io/gorm"

	"bank-reconciliation-backend/internal/apperrors"
)

var (
	// ErrStatusConflict means a compare-and-swap found a different status
	// than expected; another writer got there first.
	ErrStatusConflict = errors.New("status changed concurrently")
	ErrDuplicate      = errors.New("duplicate record")
)

func loadErr(err error, op, what string, id uuid.UUID) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return apperrors.NotFound(op, "%s %s not found", what, id)
	}
	return fmt.Errorf("failed to load %s %s: %w", what, id, err)
}

// IsUniqueViolation reports whether err is a unique constraint failure from
// postgres or sqlite.
func IsUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique ||
			sqliteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey
	}
	return errors.Is(err, gorm.ErrDuplicatedKey)
}
