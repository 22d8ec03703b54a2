package insights

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/healthrec/healthrec/internal/platform/db"
)

// ErrInsightsNotFound is returned when no insights exist for the
// requested (session, tone, language_level).
var ErrInsightsNotFound = errors.New("insights not found")

type queryable interface {
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
	Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error)
}

// =========== Insights Repository ===========

type insightsRepoPG struct{ pool *pgxpool.Pool }

func NewInsightsRepoPG(pool *pgxpool.Pool) InsightsRepository {
	return &insightsRepoPG{pool: pool}
}

func (r *insightsRepoPG) conn(ctx context.Context) queryable {
	if tx := db.TxFromContext(ctx); tx != nil {
		return tx
	}
	return r.pool
}

const insightCols = `id, session_id, user_id, tone, language_level, payload, report_storage_path, created_at, updated_at`

func (r *insightsRepoPG) scanInsights(row pgx.Row) (*HealthInsights, error) {
	var i HealthInsights
	err := row.Scan(&i.ID, &i.SessionID, &i.UserID, &i.Tone, &i.LanguageLevel,
		&i.Payload, &i.ReportStoragePath, &i.CreatedAt, &i.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrInsightsNotFound
	}
	return &i, err
}

// Upsert keys on (session_id, tone, language_level). A replaced row gets
// a fresh payload and a cleared report path, invalidating any report
// rendered from the previous payload.
func (r *insightsRepoPG) Upsert(ctx context.Context, i *HealthInsights) error {
	if i.ID == uuid.Nil {
		i.ID = uuid.New()
	}
	return r.conn(ctx).QueryRow(ctx, `
		INSERT INTO health_insights (id, session_id, user_id, tone, language_level, payload)
		VALUES ($1,$2,$3,$4,$5,$6)
		ON CONFLICT (session_id, tone, language_level) DO UPDATE SET
			payload = EXCLUDED.payload,
			report_storage_path = NULL,
			updated_at = NOW()
		RETURNING id, created_at, updated_at`,
		i.ID, i.SessionID, i.UserID, i.Tone, i.LanguageLevel, i.Payload).
		Scan(&i.ID, &i.CreatedAt, &i.UpdatedAt)
}

func (r *insightsRepoPG) GetBySessionPrefs(ctx context.Context, userID string, sessionID uuid.UUID, tone, languageLevel string) (*HealthInsights, error) {
	return r.scanInsights(r.conn(ctx).QueryRow(ctx, `
		SELECT `+insightCols+` FROM health_insights
		WHERE session_id = $1 AND user_id = $2 AND tone = $3 AND language_level = $4`,
		sessionID, userID, tone, languageLevel))
}

func (r *insightsRepoPG) SetReportPath(ctx context.Context, userID string, id uuid.UUID, path string) error {
	tag, err := r.conn(ctx).Exec(ctx, `
		UPDATE health_insights SET report_storage_path = $3, updated_at = NOW()
		WHERE id = $1 AND user_id = $2`, id, userID, path)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrInsightsNotFound
	}
	return nil
}

// =========== Report Repository ===========

type reportRepoPG struct{ pool *pgxpool.Pool }

func NewReportRepoPG(pool *pgxpool.Pool) ReportRepository {
	return &reportRepoPG{pool: pool}
}

func (r *reportRepoPG) conn(ctx context.Context) queryable {
	if tx := db.TxFromContext(ctx); tx != nil {
		return tx
	}
	return r.pool
}

func (r *reportRepoPG) Create(ctx context.Context, rep *Report) error {
	rep.ID = uuid.New()
	return r.conn(ctx).QueryRow(ctx, `
		INSERT INTO reports (id, session_id, insight_id, user_id, report_type, storage_path, size)
		VALUES ($1,$2,$3,$4,$5,$6,$7)
		RETURNING created_at`,
		rep.ID, rep.SessionID, rep.InsightID, rep.UserID, rep.ReportType, rep.StoragePath, rep.Size).
		Scan(&rep.CreatedAt)
}

func (r *reportRepoPG) ListBySession(ctx context.Context, userID string, sessionID uuid.UUID) ([]*Report, error) {
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT id, session_id, insight_id, user_id, report_type, storage_path, size, created_at
		FROM reports WHERE session_id = $1 AND user_id = $2 ORDER BY created_at DESC`,
		sessionID, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []*Report
	for rows.Next() {
		var rep Report
		if err := rows.Scan(&rep.ID, &rep.SessionID, &rep.InsightID, &rep.UserID,
			&rep.ReportType, &rep.StoragePath, &rep.Size, &rep.CreatedAt); err != nil {
			return nil, err
		}
		items = append(items, &rep)
	}
	return items, rows.Err()
}

// =========== Approval Repository ===========

type approvalRepoPG struct{ pool *pgxpool.Pool }

func NewApprovalRepoPG(pool *pgxpool.Pool) ApprovalRepository {
	return &approvalRepoPG{pool: pool}
}

func (r *approvalRepoPG) conn(ctx context.Context) queryable {
	if tx := db.TxFromContext(ctx); tx != nil {
		return tx
	}
	return r.pool
}

func (r *approvalRepoPG) Create(ctx context.Context, a *Approval) error {
	a.ID = uuid.New()
	return r.conn(ctx).QueryRow(ctx, `
		INSERT INTO insight_approvals (id, session_id, user_id, document_ids, feedback)
		VALUES ($1,$2,$3,$4,$5)
		RETURNING created_at`,
		a.ID, a.SessionID, a.UserID, a.DocumentIDs, a.Feedback).
		Scan(&a.CreatedAt)
}
