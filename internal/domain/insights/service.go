package insights

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/healthrec/healthrec/internal/domain/session"
	"github.com/healthrec/healthrec/internal/platform/ai"
	"github.com/healthrec/healthrec/internal/platform/blobstore"
	"github.com/healthrec/healthrec/internal/platform/cache"
)

// SessionGateway is the slice of the session domain this service drives:
// reading workflow state and advancing the persisted stage.
// *session.Service satisfies it.
type SessionGateway interface {
	GetSession(ctx context.Context, userID string, id uuid.UUID) (*session.Session, error)
	ListParsedDocuments(ctx context.Context, userID string, sessionID uuid.UUID) ([]*session.ParsedDocument, error)
	AdvanceStage(ctx context.Context, userID string, sessionID uuid.UUID, to string) (*session.Session, error)
	MarkFailed(ctx context.Context, userID string, sessionID uuid.UUID) error
}

// Service generates insights and serves cached reports.
type Service struct {
	insights  InsightsRepository
	reports   ReportRepository
	approvals ApprovalRepository
	sessions  SessionGateway
	generator ai.InsightService
	renderer  ai.ReportRenderer
	blobs     blobstore.BlobStore
	paths     cache.PathCache
	signedTTL time.Duration
	log       zerolog.Logger
}

// NewService creates a new insights domain service.
func NewService(
	insights InsightsRepository,
	reports ReportRepository,
	approvals ApprovalRepository,
	sessions SessionGateway,
	generator ai.InsightService,
	renderer ai.ReportRenderer,
	blobs blobstore.BlobStore,
	paths cache.PathCache,
	signedTTL time.Duration,
	log zerolog.Logger,
) *Service {
	return &Service{
		insights:  insights,
		reports:   reports,
		approvals: approvals,
		sessions:  sessions,
		generator: generator,
		renderer:  renderer,
		blobs:     blobs,
		paths:     paths,
		signedTTL: signedTTL,
		log:       log.With().Str("domain", "insights").Logger(),
	}
}

// GenerateInsights records the user's approval, then calls the insight
// service and upserts the result for the session's current preferences.
// The approval audit row is written before the generation call and is
// kept even if generation fails; a failed audit write is logged only.
func (s *Service) GenerateInsights(ctx context.Context, userID string, sessionID uuid.UUID, feedback *string) (*HealthInsights, error) {
	sess, err := s.sessions.GetSession(ctx, userID, sessionID)
	if err != nil {
		return nil, err
	}
	if sess.Tone == "" || sess.LanguageLevel == "" {
		return nil, fmt.Errorf("session preferences not set")
	}

	docs, err := s.sessions.ListParsedDocuments(ctx, userID, sessionID)
	if err != nil {
		return nil, err
	}
	if len(docs) == 0 {
		return nil, fmt.Errorf("session has no parsed documents")
	}

	approval := &Approval{SessionID: sessionID, UserID: userID, Feedback: feedback}
	for _, d := range docs {
		approval.DocumentIDs = append(approval.DocumentIDs, d.ID)
	}
	if err := s.approvals.Create(ctx, approval); err != nil {
		s.log.Warn().Err(err).Str("session_id", sessionID.String()).Msg("approval audit write failed")
	}

	if _, err := s.sessions.AdvanceStage(ctx, userID, sessionID, session.StageGeneratingInsights); err != nil {
		return nil, err
	}

	payloads := make([]ai.ParsedPayload, 0, len(docs))
	for _, d := range docs {
		payloads = append(payloads, d.Payload)
	}
	payload, err := s.generator.GenerateInsights(ctx, ai.InsightRequest{
		SessionID:     sessionID,
		Tone:          sess.Tone,
		LanguageLevel: sess.LanguageLevel,
		Documents:     payloads,
	})
	if err != nil {
		if markErr := s.sessions.MarkFailed(ctx, userID, sessionID); markErr != nil {
			s.log.Warn().Err(markErr).Str("session_id", sessionID.String()).Msg("failed to record generation failure")
		}
		return nil, fmt.Errorf("generating insights: %w", err)
	}

	row := &HealthInsights{
		SessionID:     sessionID,
		UserID:        userID,
		Tone:          sess.Tone,
		LanguageLevel: sess.LanguageLevel,
		Payload:       *payload,
	}
	if err := s.insights.Upsert(ctx, row); err != nil {
		return nil, fmt.Errorf("storing insights: %w", err)
	}

	if _, err := s.sessions.AdvanceStage(ctx, userID, sessionID, session.StageReviewingInsights); err != nil {
		return nil, err
	}
	return row, nil
}

// GetInsights returns the stored insights for exactly the requested
// preference pair; a differently-toned row is never substituted.
func (s *Service) GetInsights(ctx context.Context, userID string, sessionID uuid.UUID, tone, languageLevel string) (*HealthInsights, error) {
	return s.insights.GetBySessionPrefs(ctx, userID, sessionID, tone, languageLevel)
}

func reportPath(sessionID uuid.UUID, tone, languageLevel string) string {
	return fmt.Sprintf("reports/%s/%s-%s.html", sessionID, tone, languageLevel)
}

// GetReport serves the session's report, rendering only when no valid
// cached artifact exists. Lookup order: path cache, then the insights
// row's stored path; either hit is trusted only after the blob's
// existence is verified, and a dangling path is treated as a plain miss.
// On a miss the renderer runs once and the fresh path is written back.
func (s *Service) GetReport(ctx context.Context, userID string, sessionID uuid.UUID, includeDoctorQuestions bool) (*ReportDownload, error) {
	sess, err := s.sessions.GetSession(ctx, userID, sessionID)
	if err != nil {
		return nil, err
	}
	row, err := s.insights.GetBySessionPrefs(ctx, userID, sessionID, sess.Tone, sess.LanguageLevel)
	if err != nil {
		return nil, err
	}

	key := cache.Key(sessionID, sess.Tone, sess.LanguageLevel)
	if path, ok := s.paths.Get(ctx, key); ok {
		if exists, err := s.blobs.Exists(ctx, path); err == nil && exists {
			return s.download(ctx, path, true)
		}
	}

	if row.ReportStoragePath != nil {
		exists, err := s.blobs.Exists(ctx, *row.ReportStoragePath)
		if err != nil {
			s.log.Warn().Err(err).Str("path", *row.ReportStoragePath).Msg("blob existence check failed; regenerating")
		}
		if err == nil && exists {
			s.paths.Set(ctx, key, *row.ReportStoragePath)
			return s.download(ctx, *row.ReportStoragePath, true)
		}
	}

	if _, err := s.sessions.AdvanceStage(ctx, userID, sessionID, session.StageGeneratingReport); err != nil {
		return nil, err
	}

	res, err := s.renderer.RenderReport(ctx, ai.RenderRequest{
		SessionID:              sessionID,
		Tone:                   sess.Tone,
		LanguageLevel:          sess.LanguageLevel,
		Insights:               row.Payload,
		IncludeDoctorQuestions: includeDoctorQuestions,
		StoragePath:            reportPath(sessionID, sess.Tone, sess.LanguageLevel),
	})
	if err != nil {
		if markErr := s.sessions.MarkFailed(ctx, userID, sessionID); markErr != nil {
			s.log.Warn().Err(markErr).Str("session_id", sessionID.String()).Msg("failed to record render failure")
		}
		return nil, fmt.Errorf("rendering report: %w", err)
	}

	if err := s.insights.SetReportPath(ctx, userID, row.ID, res.StoragePath); err != nil {
		return nil, fmt.Errorf("recording report path: %w", err)
	}
	report := &Report{
		SessionID:   sessionID,
		InsightID:   row.ID,
		UserID:      userID,
		ReportType:  "html",
		StoragePath: res.StoragePath,
		Size:        res.Size,
	}
	if err := s.reports.Create(ctx, report); err != nil {
		s.log.Warn().Err(err).Str("session_id", sessionID.String()).Msg("report row write failed")
	}
	s.paths.Set(ctx, key, res.StoragePath)

	if _, err := s.sessions.AdvanceStage(ctx, userID, sessionID, session.StageCompleted); err != nil {
		return nil, err
	}
	return s.download(ctx, res.StoragePath, res.Cached)
}

func (s *Service) download(ctx context.Context, path string, cached bool) (*ReportDownload, error) {
	url, err := s.blobs.SignedURL(ctx, path, s.signedTTL)
	if err != nil {
		return nil, fmt.Errorf("signing report url: %w", err)
	}
	return &ReportDownload{StoragePath: path, URL: url, Cached: cached}, nil
}

// ListReports returns the rendered artifacts recorded for a session.
func (s *Service) ListReports(ctx context.Context, userID string, sessionID uuid.UUID) ([]*Report, error) {
	return s.reports.ListBySession(ctx, userID, sessionID)
}
