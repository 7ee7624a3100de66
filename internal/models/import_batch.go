package models

import (
	"time"

	"github.com/google/uuid"
)

type ImportStatus string

const (
	ImportProcessing ImportStatus = "PROCESSING"
	ImportCompleted  ImportStatus = "COMPLETED"
	ImportFailed     ImportStatus = "FAILED"
)

// ImportBatch records one statement file import. Once COMPLETED or FAILED it
// is not modified again; a corrective re-import creates a new batch.
type ImportBatch struct {
	ID             uuid.UUID    `gorm:"type:uuid;primaryKey" json:"id"`
	BankAccountID  uuid.UUID    `gorm:"type:uuid;not null;index" json:"bank_account_id"`
	FileName       string       `json:"file_name"`
	FileSize       int64        `json:"file_size"`
	ImportType     string       `gorm:"size:20" json:"import_type"`
	ArchiveKey     string       `json:"archive_key,omitempty"`
	TotalRows      int          `json:"total_rows"`
	ProcessedRows  int          `json:"processed_rows"`
	SuccessfulRows int          `json:"successful_rows"`
	FailedRows     int          `json:"failed_rows"`
	DuplicateRows  int          `json:"duplicate_rows"`
	SkippedRows    int          `json:"skipped_rows"`
	Status         ImportStatus `gorm:"size:20;index" json:"status"`
	ErrorMessage   string       `json:"error_message,omitempty"`
	CreatedBy      string       `json:"created_by"`
	StartedAt      time.Time    `json:"started_at"`
	CompletedAt    *time.Time   `json:"completed_at,omitempty"`
	CreatedAt      time.Time    `json:"created_at"`
}
