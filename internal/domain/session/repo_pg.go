package session

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/healthrec/healthrec/internal/platform/db"
)

// Not-found errors per entity, distinguishing ownership misses from
// transport failures.
var (
	ErrSessionNotFound  = errors.New("session not found")
	ErrFileNotFound     = errors.New("file not found")
	ErrDocumentNotFound = errors.New("parsed document not found")
)

type queryable interface {
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
	Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error)
}

// =========== Session Repository ===========

type sessionRepoPG struct{ pool *pgxpool.Pool }

func NewSessionRepoPG(pool *pgxpool.Pool) SessionRepository {
	return &sessionRepoPG{pool: pool}
}

func (r *sessionRepoPG) conn(ctx context.Context) queryable {
	if tx := db.TxFromContext(ctx); tx != nil {
		return tx
	}
	return r.pool
}

const sessionCols = `id, user_id, family_member_id, tone, language_level, stage, status, created_at, updated_at`

func (r *sessionRepoPG) scanSession(row pgx.Row) (*Session, error) {
	var s Session
	err := row.Scan(&s.ID, &s.UserID, &s.FamilyMemberID, &s.Tone, &s.LanguageLevel,
		&s.Stage, &s.Status, &s.CreatedAt, &s.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrSessionNotFound
	}
	return &s, err
}

func (r *sessionRepoPG) Create(ctx context.Context, s *Session) error {
	s.ID = uuid.New()
	return r.conn(ctx).QueryRow(ctx, `
		INSERT INTO sessions (id, user_id, family_member_id, tone, language_level, stage, status)
		VALUES ($1,$2,$3,$4,$5,$6,$7)
		RETURNING created_at, updated_at`,
		s.ID, s.UserID, s.FamilyMemberID, s.Tone, s.LanguageLevel, s.Stage, s.Status).
		Scan(&s.CreatedAt, &s.UpdatedAt)
}

func (r *sessionRepoPG) GetByID(ctx context.Context, userID string, id uuid.UUID) (*Session, error) {
	return r.scanSession(r.conn(ctx).QueryRow(ctx,
		`SELECT `+sessionCols+` FROM sessions WHERE id = $1 AND user_id = $2`, id, userID))
}

func (r *sessionRepoPG) Update(ctx context.Context, s *Session) error {
	tag, err := r.conn(ctx).Exec(ctx, `
		UPDATE sessions SET family_member_id=$3, tone=$4, language_level=$5, stage=$6, status=$7, updated_at=NOW()
		WHERE id = $1 AND user_id = $2`,
		s.ID, s.UserID, s.FamilyMemberID, s.Tone, s.LanguageLevel, s.Stage, s.Status)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrSessionNotFound
	}
	return nil
}

func (r *sessionRepoPG) ListByUser(ctx context.Context, userID string, limit, offset int) ([]*Session, int, error) {
	var total int
	if err := r.conn(ctx).QueryRow(ctx,
		`SELECT COUNT(*) FROM sessions WHERE user_id = $1`, userID).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := r.conn(ctx).Query(ctx,
		`SELECT `+sessionCols+` FROM sessions WHERE user_id = $1 ORDER BY created_at DESC LIMIT $2 OFFSET $3`,
		userID, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var items []*Session
	for rows.Next() {
		s, err := r.scanSession(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, s)
	}
	return items, total, rows.Err()
}

// =========== File Repository ===========

type fileRepoPG struct{ pool *pgxpool.Pool }

func NewFileRepoPG(pool *pgxpool.Pool) FileRepository {
	return &fileRepoPG{pool: pool}
}

func (r *fileRepoPG) conn(ctx context.Context) queryable {
	if tx := db.TxFromContext(ctx); tx != nil {
		return tx
	}
	return r.pool
}

const fileCols = `id, session_id, user_id, storage_path, filename, mime_type, size, created_at`

func (r *fileRepoPG) Create(ctx context.Context, f *File) error {
	f.ID = uuid.New()
	return r.conn(ctx).QueryRow(ctx, `
		INSERT INTO files (id, session_id, user_id, storage_path, filename, mime_type, size)
		VALUES ($1,$2,$3,$4,$5,$6,$7)
		RETURNING created_at`,
		f.ID, f.SessionID, f.UserID, f.StoragePath, f.Filename, f.MimeType, f.Size).
		Scan(&f.CreatedAt)
}

func (r *fileRepoPG) ListBySession(ctx context.Context, userID string, sessionID uuid.UUID) ([]*File, error) {
	rows, err := r.conn(ctx).Query(ctx,
		`SELECT `+fileCols+` FROM files WHERE session_id = $1 AND user_id = $2 ORDER BY created_at`,
		sessionID, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []*File
	for rows.Next() {
		var f File
		if err := rows.Scan(&f.ID, &f.SessionID, &f.UserID, &f.StoragePath, &f.Filename,
			&f.MimeType, &f.Size, &f.CreatedAt); err != nil {
			return nil, err
		}
		items = append(items, &f)
	}
	return items, rows.Err()
}

func (r *fileRepoPG) Delete(ctx context.Context, userID string, id uuid.UUID) error {
	tag, err := r.conn(ctx).Exec(ctx,
		`DELETE FROM files WHERE id = $1 AND user_id = $2`, id, userID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrFileNotFound
	}
	return nil
}

// =========== ParsedDocument Repository ===========

type parsedDocRepoPG struct{ pool *pgxpool.Pool }

func NewParsedDocumentRepoPG(pool *pgxpool.Pool) ParsedDocumentRepository {
	return &parsedDocRepoPG{pool: pool}
}

func (r *parsedDocRepoPG) conn(ctx context.Context) queryable {
	if tx := db.TxFromContext(ctx); tx != nil {
		return tx
	}
	return r.pool
}

const parsedDocCols = `id, file_id, session_id, user_id, status, payload, confidence, created_at, updated_at`

func (r *parsedDocRepoPG) scanDoc(row pgx.Row) (*ParsedDocument, error) {
	var d ParsedDocument
	err := row.Scan(&d.ID, &d.FileID, &d.SessionID, &d.UserID, &d.Status,
		&d.Payload, &d.Confidence, &d.CreatedAt, &d.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrDocumentNotFound
	}
	return &d, err
}

func (r *parsedDocRepoPG) Create(ctx context.Context, d *ParsedDocument) error {
	d.ID = uuid.New()
	return r.conn(ctx).QueryRow(ctx, `
		INSERT INTO parsed_documents (id, file_id, session_id, user_id, status, payload, confidence)
		VALUES ($1,$2,$3,$4,$5,$6,$7)
		RETURNING created_at, updated_at`,
		d.ID, d.FileID, d.SessionID, d.UserID, d.Status, d.Payload, d.Confidence).
		Scan(&d.CreatedAt, &d.UpdatedAt)
}

func (r *parsedDocRepoPG) GetByID(ctx context.Context, userID string, id uuid.UUID) (*ParsedDocument, error) {
	return r.scanDoc(r.conn(ctx).QueryRow(ctx,
		`SELECT `+parsedDocCols+` FROM parsed_documents WHERE id = $1 AND user_id = $2`, id, userID))
}

func (r *parsedDocRepoPG) Update(ctx context.Context, d *ParsedDocument) error {
	tag, err := r.conn(ctx).Exec(ctx, `
		UPDATE parsed_documents SET status=$3, payload=$4, confidence=$5, updated_at=NOW()
		WHERE id = $1 AND user_id = $2`,
		d.ID, d.UserID, d.Status, d.Payload, d.Confidence)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrDocumentNotFound
	}
	return nil
}

func (r *parsedDocRepoPG) ListBySession(ctx context.Context, userID string, sessionID uuid.UUID) ([]*ParsedDocument, error) {
	rows, err := r.conn(ctx).Query(ctx,
		`SELECT `+parsedDocCols+` FROM parsed_documents WHERE session_id = $1 AND user_id = $2 ORDER BY created_at`,
		sessionID, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []*ParsedDocument
	for rows.Next() {
		d, err := r.scanDoc(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, d)
	}
	return items, rows.Err()
}
