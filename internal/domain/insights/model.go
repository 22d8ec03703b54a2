package insights

import (
	"time"

	"github.com/google/uuid"

	"github.com/healthrec/healthrec/internal/platform/ai"
)

// HealthInsights maps to the health_insights table: one row per
// (session, tone, language_level). Regenerating for the same key
// overwrites the row, so a lookup never has to sort-and-take-first.
type HealthInsights struct {
	ID                uuid.UUID         `db:"id" json:"id"`
	SessionID         uuid.UUID         `db:"session_id" json:"session_id"`
	UserID            string            `db:"user_id" json:"user_id"`
	Tone              string            `db:"tone" json:"tone"`
	LanguageLevel     string            `db:"language_level" json:"language_level"`
	Payload           ai.InsightPayload `db:"payload" json:"payload"`
	ReportStoragePath *string           `db:"report_storage_path" json:"report_storage_path,omitempty"`
	CreatedAt         time.Time         `db:"created_at" json:"created_at"`
	UpdatedAt         time.Time         `db:"updated_at" json:"updated_at"`
}

// Report maps to the reports table: one rendered artifact derived from
// an insights row.
type Report struct {
	ID          uuid.UUID `db:"id" json:"id"`
	SessionID   uuid.UUID `db:"session_id" json:"session_id"`
	InsightID   uuid.UUID `db:"insight_id" json:"insight_id"`
	UserID      string    `db:"user_id" json:"user_id"`
	ReportType  string    `db:"report_type" json:"report_type"`
	StoragePath string    `db:"storage_path" json:"storage_path"`
	Size        int64     `db:"size" json:"size"`
	CreatedAt   time.Time `db:"created_at" json:"created_at"`
}

// Approval maps to the insight_approvals table: the audit row written
// when a user approves their reviewed documents for insight generation.
// It is recorded before the generation call and survives a later
// generation failure.
type Approval struct {
	ID          uuid.UUID   `db:"id" json:"id"`
	SessionID   uuid.UUID   `db:"session_id" json:"session_id"`
	UserID      string      `db:"user_id" json:"user_id"`
	DocumentIDs []uuid.UUID `db:"document_ids" json:"document_ids"`
	Feedback    *string     `db:"feedback" json:"feedback,omitempty"`
	CreatedAt   time.Time   `db:"created_at" json:"created_at"`
}

// ReportDownload is the outcome of a report request: where the artifact
// lives and how to fetch it.
type ReportDownload struct {
	StoragePath string `json:"storage_path"`
	URL         string `json:"url"`
	Cached      bool   `json:"cached"`
}
