package session

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/healthrec/healthrec/internal/platform/ai"
)

// Workflow stages, persisted on the session at every transition so a
// reload resumes where the user left off.
const (
	StageCreated             = "created"
	StageUploading           = "uploading"
	StageParsing             = "parsing"
	StageReviewingParsedData = "reviewing_parsed_data"
	StageCustomizing         = "customizing"
	StagePreviewingData      = "previewing_data"
	StageGeneratingInsights  = "generating_insights"
	StageReviewingInsights   = "reviewing_insights"
	StageGeneratingReport    = "generating_report"
	StageCompleted           = "completed"
)

// Coarse statuses derived from the stage. Status never regresses.
const (
	StatusPending    = "pending"
	StatusProcessing = "processing"
	StatusCompleted  = "completed"
	StatusFailed     = "failed"
)

// Tone and language-level preference vocabularies.
var (
	ValidTones     = map[string]bool{"friendly": true, "professional": true, "empathetic": true}
	ValidLanguages = map[string]bool{"simple": true, "moderate": true, "technical": true}
)

// MaxUploadFiles caps how many files one session accepts. Extra files
// are dropped with a warning, not rejected.
const MaxUploadFiles = 5

// ErrInvalidTransition is returned for stage moves the workflow does not
// allow.
var ErrInvalidTransition = errors.New("invalid stage transition")

var stageOrder = []string{
	StageCreated,
	StageUploading,
	StageParsing,
	StageReviewingParsedData,
	StageCustomizing,
	StagePreviewingData,
	StageGeneratingInsights,
	StageReviewingInsights,
	StageGeneratingReport,
	StageCompleted,
}

var stageIndex = func() map[string]int {
	m := make(map[string]int, len(stageOrder))
	for i, s := range stageOrder {
		m[s] = i
	}
	return m
}()

// CanTransition reports whether a session may move from one stage to
// another. Allowed moves: the next stage in order, re-entering the same
// stage (retry), the regenerate cycle from reviewing_insights back to
// generating_insights or previewing_data (the latter so preferences can
// change before regenerating), and re-entering generating_report from
// completed when the stored artifact has gone missing.
func CanTransition(from, to string) bool {
	fi, ok := stageIndex[from]
	if !ok {
		return false
	}
	ti, ok := stageIndex[to]
	if !ok {
		return false
	}
	if ti == fi {
		return true
	}
	switch {
	case from == StageReviewingInsights && (to == StageGeneratingInsights || to == StagePreviewingData):
		return true
	case from == StageCompleted && to == StageGeneratingReport:
		return true
	}
	return ti == fi+1
}

// StatusForStage derives the coarse status from a stage.
func StatusForStage(stage string) string {
	switch stage {
	case StageCreated:
		return StatusPending
	case StageCompleted:
		return StatusCompleted
	default:
		return StatusProcessing
	}
}

func statusRank(status string) int {
	switch status {
	case StatusPending:
		return 0
	case StatusProcessing, StatusFailed:
		return 1
	case StatusCompleted:
		return 2
	default:
		return 0
	}
}

// Session maps to the sessions table: one document-processing workflow
// instance owned by a user.
type Session struct {
	ID             uuid.UUID  `db:"id" json:"id"`
	UserID         string     `db:"user_id" json:"user_id"`
	FamilyMemberID *uuid.UUID `db:"family_member_id" json:"family_member_id,omitempty"`
	Tone           string     `db:"tone" json:"tone"`
	LanguageLevel  string     `db:"language_level" json:"language_level"`
	Stage          string     `db:"stage" json:"stage"`
	Status         string     `db:"status" json:"status"`
	CreatedAt      time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt      time.Time  `db:"updated_at" json:"updated_at"`
}

// ApplyStage moves the session to the given stage, enforcing transition
// rules and keeping the derived status monotonic.
func (s *Session) ApplyStage(to string) error {
	if !CanTransition(s.Stage, to) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, s.Stage, to)
	}
	s.Stage = to
	next := StatusForStage(to)
	if statusRank(next) >= statusRank(s.Status) || s.Status == StatusFailed {
		s.Status = next
	}
	return nil
}

// MarkFailed records a failure without losing the stage, so a retry can
// resume at the same point. A completed session cannot fail.
func (s *Session) MarkFailed() {
	if s.Status == StatusCompleted {
		return
	}
	s.Status = StatusFailed
}

// File maps to the files table: one uploaded document. Rows are
// immutable except for deletion.
type File struct {
	ID          uuid.UUID `db:"id" json:"id"`
	SessionID   uuid.UUID `db:"session_id" json:"session_id"`
	UserID      string    `db:"user_id" json:"user_id"`
	StoragePath string    `db:"storage_path" json:"storage_path"`
	Filename    string    `db:"filename" json:"filename"`
	MimeType    string    `db:"mime_type" json:"mime_type"`
	Size        int64     `db:"size" json:"size"`
	CreatedAt   time.Time `db:"created_at" json:"created_at"`
}

// Parsing statuses for a document.
const (
	ParseStatusExtracted = "extracted"
	ParseStatusManual    = "manual"
)

// ParsedDocument maps to the parsed_documents table: the structured
// extraction for one file. Users may correct any field in place; edits
// never re-trigger extraction.
type ParsedDocument struct {
	ID         uuid.UUID          `db:"id" json:"id"`
	FileID     uuid.UUID          `db:"file_id" json:"file_id"`
	SessionID  uuid.UUID          `db:"session_id" json:"session_id"`
	UserID     string             `db:"user_id" json:"user_id"`
	Status     string             `db:"status" json:"status"`
	Payload    ai.ParsedPayload   `db:"payload" json:"payload"`
	Confidence map[string]float64 `db:"confidence" json:"confidence,omitempty"`
	CreatedAt  time.Time          `db:"created_at" json:"created_at"`
	UpdatedAt  time.Time          `db:"updated_at" json:"updated_at"`
}
