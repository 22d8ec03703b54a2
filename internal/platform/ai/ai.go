// Package ai defines the external AI collaborators the server depends on:
// structured extraction from uploaded documents and plain-language insight
// generation. Implementations call a hosted large-language-model API; the
// interfaces keep domain services testable without network access.
package ai

import (
	"context"
	"errors"

	"github.com/google/uuid"
)

// ErrUnavailable marks transport-level failures (timeouts, connection
// resets) as opposed to the provider rejecting the request. Callers may
// fall back to degraded local behavior when they see it.
var ErrUnavailable = errors.New("ai service unavailable")

// TestResult is one dated measurement extracted from a document.
type TestResult struct {
	Name           string `json:"name"`
	Value          string `json:"value"`
	Unit           string `json:"unit,omitempty"`
	ReferenceRange string `json:"reference_range,omitempty"`
	Date           string `json:"date,omitempty"`
	Flag           string `json:"flag,omitempty"`
}

// ParsedPayload is the structured-extraction result for one document.
type ParsedPayload struct {
	PatientInfo map[string]string `json:"patient_info,omitempty"`
	TestResults []TestResult      `json:"test_results,omitempty"`
	Diagnoses   []string          `json:"diagnoses,omitempty"`
	Medications []string          `json:"medications,omitempty"`
	Summary     string            `json:"summary,omitempty"`
}

// DocumentInput is one uploaded file handed to the extraction service.
type DocumentInput struct {
	FileID   uuid.UUID
	Filename string
	MimeType string
	Content  []byte
}

// Extraction pairs a file with its structured payload and per-section
// confidence scores (0..1).
type Extraction struct {
	FileID     uuid.UUID          `json:"file_id"`
	Payload    ParsedPayload      `json:"payload"`
	Confidence map[string]float64 `json:"confidence"`
}

// ExtractionService turns uploaded documents into structured payloads.
// The call is all-or-nothing: a failure yields no partial results.
type ExtractionService interface {
	ExtractDocuments(ctx context.Context, sessionID uuid.UUID, docs []DocumentInput) ([]Extraction, error)
}

// KeyFinding is one categorized finding in the generated insights.
type KeyFinding struct {
	Category    string `json:"category"`
	Finding     string `json:"finding"`
	Explanation string `json:"explanation"`
	Severity    string `json:"severity,omitempty"`
}

// AbnormalValue explains one out-of-range measurement.
type AbnormalValue struct {
	TestName    string `json:"test_name"`
	Value       string `json:"value"`
	Explanation string `json:"explanation"`
}

// InsightPayload is the AI-generated interpretation of a session's
// parsed documents.
type InsightPayload struct {
	Summary          string          `json:"summary"`
	KeyFindings      []KeyFinding    `json:"key_findings,omitempty"`
	AbnormalValues   []AbnormalValue `json:"abnormal_values,omitempty"`
	DoctorQuestions  []string        `json:"doctor_questions,omitempty"`
	Recommendations  []string        `json:"recommendations,omitempty"`
	FamilyScreening  []string        `json:"family_screening,omitempty"`
	FollowUpTimeline string          `json:"follow_up_timeline,omitempty"`
	Urgency          string          `json:"urgency"`
}

// InsightRequest carries the session's parsed documents plus the user's
// presentation preferences in the internal vocabulary (tone:
// friendly|professional|empathetic, language: simple|moderate|technical).
type InsightRequest struct {
	SessionID     uuid.UUID
	Tone          string
	LanguageLevel string
	Documents     []ParsedPayload
}

// InsightService generates a plain-language interpretation for a session.
type InsightService interface {
	GenerateInsights(ctx context.Context, req InsightRequest) (*InsightPayload, error)
}

// RenderRequest describes one report to materialize into blob storage.
type RenderRequest struct {
	SessionID              uuid.UUID
	Tone                   string
	LanguageLevel          string
	Insights               InsightPayload
	IncludeDoctorQuestions bool
	StoragePath            string
}

// RenderResult reports where a rendered report lives. Cached is true when
// the blob already existed and no rendering work was done.
type RenderResult struct {
	StoragePath string `json:"storage_path"`
	Size        int64  `json:"size"`
	Cached      bool   `json:"cached"`
}

// ReportRenderer materializes insight payloads as stored HTML reports.
// Rendering the same request twice must be idempotent: an existing blob at
// the target path short-circuits the render.
type ReportRenderer interface {
	RenderReport(ctx context.Context, req RenderRequest) (*RenderResult, error)
}
