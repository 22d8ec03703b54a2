package session

import (
	"bytes"
	"context"
	"fmt"
	"io"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/healthrec/healthrec/internal/platform/ai"
	"github.com/healthrec/healthrec/internal/platform/blobstore"
)

// Service drives the document-processing workflow: upload, extraction,
// review, and preference selection. Later stages (insights, report) are
// driven by the insights domain through AdvanceStage.
type Service struct {
	sessions  SessionRepository
	files     FileRepository
	docs      ParsedDocumentRepository
	blobs     blobstore.BlobStore
	extractor ai.ExtractionService
	log       zerolog.Logger
}

// NewService creates a new session domain service.
func NewService(
	sessions SessionRepository,
	files FileRepository,
	docs ParsedDocumentRepository,
	blobs blobstore.BlobStore,
	extractor ai.ExtractionService,
	log zerolog.Logger,
) *Service {
	return &Service{
		sessions:  sessions,
		files:     files,
		docs:      docs,
		blobs:     blobs,
		extractor: extractor,
		log:       log.With().Str("domain", "session").Logger(),
	}
}

// CreateSession starts a new workflow instance at the created stage.
func (s *Service) CreateSession(ctx context.Context, userID string, familyMemberID *uuid.UUID) (*Session, error) {
	if userID == "" {
		return nil, fmt.Errorf("user_id is required")
	}
	sess := &Session{
		UserID:         userID,
		FamilyMemberID: familyMemberID,
		Stage:          StageCreated,
		Status:         StatusPending,
	}
	if err := s.sessions.Create(ctx, sess); err != nil {
		return nil, err
	}
	return sess, nil
}

func (s *Service) GetSession(ctx context.Context, userID string, id uuid.UUID) (*Session, error) {
	return s.sessions.GetByID(ctx, userID, id)
}

func (s *Service) ListSessions(ctx context.Context, userID string, limit, offset int) ([]*Session, int, error) {
	return s.sessions.ListByUser(ctx, userID, limit, offset)
}

func (s *Service) ListFiles(ctx context.Context, userID string, sessionID uuid.UUID) ([]*File, error) {
	if _, err := s.sessions.GetByID(ctx, userID, sessionID); err != nil {
		return nil, err
	}
	return s.files.ListBySession(ctx, userID, sessionID)
}

func (s *Service) ListParsedDocuments(ctx context.Context, userID string, sessionID uuid.UUID) ([]*ParsedDocument, error) {
	if _, err := s.sessions.GetByID(ctx, userID, sessionID); err != nil {
		return nil, err
	}
	return s.docs.ListBySession(ctx, userID, sessionID)
}

// FileUpload is one file submitted for upload.
type FileUpload struct {
	Filename string
	MimeType string
	Content  []byte
}

// FileError records one file that failed to upload.
type FileError struct {
	Filename string `json:"filename"`
	Error    string `json:"error"`
}

// UploadResult reports the per-file outcome of an upload call so the
// caller can retry only what failed.
type UploadResult struct {
	Accepted []*File     `json:"accepted"`
	Failed   []FileError `json:"failed,omitempty"`
	Dropped  []string    `json:"dropped,omitempty"`
	Warning  string      `json:"warning,omitempty"`
}

// UploadFiles stores the given files sequentially, capping the selection
// at MaxUploadFiles; extra files are dropped with a warning rather than
// rejecting the call. A failure partway through stops the upload and
// leaves already-stored files in place. When every accepted file is
// stored the session advances to the parsing stage.
func (s *Service) UploadFiles(ctx context.Context, userID string, sessionID uuid.UUID, uploads []FileUpload) (*UploadResult, error) {
	sess, err := s.sessions.GetByID(ctx, userID, sessionID)
	if err != nil {
		return nil, err
	}
	if len(uploads) == 0 {
		return nil, fmt.Errorf("at least one file is required")
	}

	if err := sess.ApplyStage(StageUploading); err != nil {
		return nil, err
	}
	if err := s.sessions.Update(ctx, sess); err != nil {
		return nil, err
	}

	result := &UploadResult{}
	if len(uploads) > MaxUploadFiles {
		for _, u := range uploads[MaxUploadFiles:] {
			result.Dropped = append(result.Dropped, u.Filename)
		}
		result.Warning = fmt.Sprintf("only the first %d files were accepted; %d dropped",
			MaxUploadFiles, len(result.Dropped))
		uploads = uploads[:MaxUploadFiles]
	}

	for _, u := range uploads {
		path := fmt.Sprintf("users/%s/sessions/%s/%s", userID, sessionID, u.Filename)
		obj, err := s.blobs.Put(ctx, path, u.MimeType, bytes.NewReader(u.Content))
		if err != nil {
			result.Failed = append(result.Failed, FileError{Filename: u.Filename, Error: err.Error()})
			break
		}
		f := &File{
			SessionID:   sessionID,
			UserID:      userID,
			StoragePath: obj.Path,
			Filename:    u.Filename,
			MimeType:    u.MimeType,
			Size:        obj.Size,
		}
		if err := s.files.Create(ctx, f); err != nil {
			result.Failed = append(result.Failed, FileError{Filename: u.Filename, Error: err.Error()})
			break
		}
		result.Accepted = append(result.Accepted, f)
	}

	if len(result.Failed) > 0 {
		sess.MarkFailed()
		if err := s.sessions.Update(ctx, sess); err != nil {
			s.log.Warn().Err(err).Str("session_id", sessionID.String()).Msg("failed to record upload failure")
		}
		return result, nil
	}

	if err := sess.ApplyStage(StageParsing); err != nil {
		return nil, err
	}
	if err := s.sessions.Update(ctx, sess); err != nil {
		return nil, err
	}
	return result, nil
}

// ParseDocuments runs structured extraction over the session's files and
// persists one ParsedDocument per file. Extraction failure degrades
// gracefully: empty documents are created for manual review and the
// session still advances, so the user can proceed without structured
// data.
func (s *Service) ParseDocuments(ctx context.Context, userID string, sessionID uuid.UUID) ([]*ParsedDocument, bool, error) {
	sess, err := s.sessions.GetByID(ctx, userID, sessionID)
	if err != nil {
		return nil, false, err
	}
	if !CanTransition(sess.Stage, StageParsing) {
		return nil, false, fmt.Errorf("%w: session is at %s", ErrInvalidTransition, sess.Stage)
	}

	files, err := s.files.ListBySession(ctx, userID, sessionID)
	if err != nil {
		return nil, false, err
	}
	if len(files) == 0 {
		return nil, false, fmt.Errorf("session has no uploaded files")
	}

	inputs := make([]ai.DocumentInput, 0, len(files))
	for _, f := range files {
		rc, _, err := s.blobs.Get(ctx, f.StoragePath)
		if err != nil {
			return nil, false, fmt.Errorf("reading %s: %w", f.Filename, err)
		}
		content, err := io.ReadAll(rc)
		rc.Close()
		if err != nil {
			return nil, false, fmt.Errorf("reading %s: %w", f.Filename, err)
		}
		inputs = append(inputs, ai.DocumentInput{
			FileID:   f.ID,
			Filename: f.Filename,
			MimeType: f.MimeType,
			Content:  content,
		})
	}

	degraded := false
	extractions, err := s.extractor.ExtractDocuments(ctx, sessionID, inputs)
	if err != nil {
		s.log.Warn().Err(err).Str("session_id", sessionID.String()).
			Msg("extraction failed; falling back to manual review")
		degraded = true
		extractions = nil
	}

	byFile := make(map[uuid.UUID]ai.Extraction, len(extractions))
	for _, e := range extractions {
		byFile[e.FileID] = e
	}

	docs := make([]*ParsedDocument, 0, len(files))
	for _, f := range files {
		doc := &ParsedDocument{
			FileID:    f.ID,
			SessionID: sessionID,
			UserID:    userID,
			Status:    ParseStatusManual,
		}
		if e, ok := byFile[f.ID]; ok {
			doc.Status = ParseStatusExtracted
			doc.Payload = e.Payload
			doc.Confidence = e.Confidence
		}
		if err := s.docs.Create(ctx, doc); err != nil {
			return nil, degraded, err
		}
		docs = append(docs, doc)
	}

	if err := sess.ApplyStage(StageReviewingParsedData); err != nil {
		return nil, degraded, err
	}
	if err := s.sessions.Update(ctx, sess); err != nil {
		return nil, degraded, err
	}
	return docs, degraded, nil
}

// UpdateParsedDocument overwrites a document's structured payload in
// place. Edits are not versioned and never re-trigger extraction.
func (s *Service) UpdateParsedDocument(ctx context.Context, userID string, id uuid.UUID, payload ai.ParsedPayload) (*ParsedDocument, error) {
	doc, err := s.docs.GetByID(ctx, userID, id)
	if err != nil {
		return nil, err
	}
	doc.Payload = payload
	if err := s.docs.Update(ctx, doc); err != nil {
		return nil, err
	}
	return doc, nil
}

// ConfirmReview moves the session past review. The only requirement is
// that at least one parsed document exists.
func (s *Service) ConfirmReview(ctx context.Context, userID string, sessionID uuid.UUID) (*Session, error) {
	sess, err := s.sessions.GetByID(ctx, userID, sessionID)
	if err != nil {
		return nil, err
	}
	docs, err := s.docs.ListBySession(ctx, userID, sessionID)
	if err != nil {
		return nil, err
	}
	if len(docs) == 0 {
		return nil, fmt.Errorf("cannot confirm review: no parsed documents")
	}
	if err := sess.ApplyStage(StageCustomizing); err != nil {
		return nil, err
	}
	if err := s.sessions.Update(ctx, sess); err != nil {
		return nil, err
	}
	return sess, nil
}

// SetPreferences records tone and language-level on the session and
// moves it to the preview stage. A session reviewing its insights may
// also come back through here, so regeneration can run with changed
// preferences.
func (s *Service) SetPreferences(ctx context.Context, userID string, sessionID uuid.UUID, tone, languageLevel string) (*Session, error) {
	if !ValidTones[tone] {
		return nil, fmt.Errorf("invalid tone: %s", tone)
	}
	if !ValidLanguages[languageLevel] {
		return nil, fmt.Errorf("invalid language level: %s", languageLevel)
	}
	sess, err := s.sessions.GetByID(ctx, userID, sessionID)
	if err != nil {
		return nil, err
	}
	sess.Tone = tone
	sess.LanguageLevel = languageLevel
	if err := sess.ApplyStage(StagePreviewingData); err != nil {
		return nil, err
	}
	if err := s.sessions.Update(ctx, sess); err != nil {
		return nil, err
	}
	return sess, nil
}

// AdvanceStage performs a guarded transition to the given stage and
// persists it. Later-stage drivers (insight and report generation) use
// this to keep the persisted stage authoritative.
func (s *Service) AdvanceStage(ctx context.Context, userID string, sessionID uuid.UUID, to string) (*Session, error) {
	sess, err := s.sessions.GetByID(ctx, userID, sessionID)
	if err != nil {
		return nil, err
	}
	if err := sess.ApplyStage(to); err != nil {
		return nil, err
	}
	if err := s.sessions.Update(ctx, sess); err != nil {
		return nil, err
	}
	return sess, nil
}

// MarkFailed records a failure on the session without losing the stage.
func (s *Service) MarkFailed(ctx context.Context, userID string, sessionID uuid.UUID) error {
	sess, err := s.sessions.GetByID(ctx, userID, sessionID)
	if err != nil {
		return err
	}
	sess.MarkFailed()
	return s.sessions.Update(ctx, sess)
}
