package session

import (
	"context"

	"github.com/google/uuid"
)

// SessionRepository persists workflow sessions. Reads are scoped to the
// owning user.
type SessionRepository interface {
	Create(ctx context.Context, s *Session) error
	GetByID(ctx context.Context, userID string, id uuid.UUID) (*Session, error)
	Update(ctx context.Context, s *Session) error
	ListByUser(ctx context.Context, userID string, limit, offset int) ([]*Session, int, error)
}

// FileRepository persists uploaded-file rows.
type FileRepository interface {
	Create(ctx context.Context, f *File) error
	ListBySession(ctx context.Context, userID string, sessionID uuid.UUID) ([]*File, error)
	Delete(ctx context.Context, userID string, id uuid.UUID) error
}

// ParsedDocumentRepository persists per-file extraction results.
type ParsedDocumentRepository interface {
	Create(ctx context.Context, d *ParsedDocument) error
	GetByID(ctx context.Context, userID string, id uuid.UUID) (*ParsedDocument, error)
	Update(ctx context.Context, d *ParsedDocument) error
	ListBySession(ctx context.Context, userID string, sessionID uuid.UUID) ([]*ParsedDocument, error)
}
