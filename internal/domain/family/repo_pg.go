package family

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/healthrec/healthrec/internal/platform/db"
)

// ErrNotFound is returned when a family member does not exist or belongs
// to another user.
var ErrNotFound = errors.New("family member not found")

type queryable interface {
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
	Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error)
}

// =========== Member Repository ===========

type memberRepoPG struct{ pool *pgxpool.Pool }

func NewMemberRepoPG(pool *pgxpool.Pool) MemberRepository {
	return &memberRepoPG{pool: pool}
}

func (r *memberRepoPG) conn(ctx context.Context) queryable {
	if tx := db.TxFromContext(ctx); tx != nil {
		return tx
	}
	return r.pool
}

const memberCols = `id, user_id, name, relationship, date_of_birth, age, gender, conditions, allergies, notes, created_at, updated_at`

func (r *memberRepoPG) scanMember(row pgx.Row) (*FamilyMember, error) {
	var m FamilyMember
	err := row.Scan(&m.ID, &m.UserID, &m.Name, &m.Relationship, &m.DateOfBirth, &m.Age, &m.Gender,
		&m.Conditions, &m.Allergies, &m.Notes, &m.CreatedAt, &m.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	return &m, err
}

func (r *memberRepoPG) Create(ctx context.Context, m *FamilyMember) error {
	m.ID = uuid.New()
	return r.conn(ctx).QueryRow(ctx, `
		INSERT INTO family_members (id, user_id, name, relationship, date_of_birth, age, gender, conditions, allergies, notes)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
		RETURNING created_at, updated_at`,
		m.ID, m.UserID, m.Name, m.Relationship, m.DateOfBirth, m.Age, m.Gender, m.Conditions, m.Allergies, m.Notes).
		Scan(&m.CreatedAt, &m.UpdatedAt)
}

func (r *memberRepoPG) GetByID(ctx context.Context, userID string, id uuid.UUID) (*FamilyMember, error) {
	return r.scanMember(r.conn(ctx).QueryRow(ctx,
		`SELECT `+memberCols+` FROM family_members WHERE id = $1 AND user_id = $2`, id, userID))
}

func (r *memberRepoPG) Update(ctx context.Context, m *FamilyMember) error {
	tag, err := r.conn(ctx).Exec(ctx, `
		UPDATE family_members SET name=$3, relationship=$4, date_of_birth=$5, age=$6, gender=$7,
			conditions=$8, allergies=$9, notes=$10, updated_at=NOW()
		WHERE id = $1 AND user_id = $2`,
		m.ID, m.UserID, m.Name, m.Relationship, m.DateOfBirth, m.Age, m.Gender, m.Conditions, m.Allergies, m.Notes)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *memberRepoPG) Delete(ctx context.Context, userID string, id uuid.UUID) error {
	tag, err := r.conn(ctx).Exec(ctx,
		`DELETE FROM family_members WHERE id = $1 AND user_id = $2`, id, userID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *memberRepoPG) ListByUser(ctx context.Context, userID string, limit, offset int) ([]*FamilyMember, int, error) {
	var total int
	if err := r.conn(ctx).QueryRow(ctx,
		`SELECT COUNT(*) FROM family_members WHERE user_id = $1`, userID).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := r.conn(ctx).Query(ctx,
		`SELECT `+memberCols+` FROM family_members WHERE user_id = $1 ORDER BY created_at DESC LIMIT $2 OFFSET $3`,
		userID, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var items []*FamilyMember
	for rows.Next() {
		m, err := r.scanMember(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, m)
	}
	return items, total, rows.Err()
}

func (r *memberRepoPG) ListAllByUser(ctx context.Context, userID string) ([]*FamilyMember, error) {
	rows, err := r.conn(ctx).Query(ctx,
		`SELECT `+memberCols+` FROM family_members WHERE user_id = $1 ORDER BY created_at`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []*FamilyMember
	for rows.Next() {
		m, err := r.scanMember(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, m)
	}
	return items, rows.Err()
}

// =========== Pattern Repository ===========

type patternRepoPG struct{ pool *pgxpool.Pool }

func NewPatternRepoPG(pool *pgxpool.Pool) PatternRepository {
	return &patternRepoPG{pool: pool}
}

func (r *patternRepoPG) conn(ctx context.Context) queryable {
	if tx := db.TxFromContext(ctx); tx != nil {
		return tx
	}
	return r.pool
}

const patternCols = `id, user_id, condition, risk_level, member_count, members, description, created_at, updated_at`

func (r *patternRepoPG) scanPattern(row pgx.Row) (*FamilyPattern, error) {
	var p FamilyPattern
	err := row.Scan(&p.ID, &p.UserID, &p.Condition, &p.RiskLevel, &p.MemberCount,
		&p.Members, &p.Description, &p.CreatedAt, &p.UpdatedAt)
	return &p, err
}

// ReplaceForUser upserts each detected pattern on (user_id, condition)
// and prunes rows whose condition was not detected this time, in one
// transaction so readers never see a partial result set.
func (r *patternRepoPG) ReplaceForUser(ctx context.Context, userID string, patterns []*FamilyPattern) error {
	return db.InTx(ctx, r.pool, func(ctx context.Context) error {
		conditions := make([]string, 0, len(patterns))
		for _, p := range patterns {
			conditions = append(conditions, p.Condition)
			if p.ID == uuid.Nil {
				p.ID = uuid.New()
			}
			_, err := r.conn(ctx).Exec(ctx, `
				INSERT INTO family_patterns (id, user_id, condition, risk_level, member_count, members, description)
				VALUES ($1,$2,$3,$4,$5,$6,$7)
				ON CONFLICT (user_id, condition) DO UPDATE SET
					risk_level = EXCLUDED.risk_level,
					member_count = EXCLUDED.member_count,
					members = EXCLUDED.members,
					description = EXCLUDED.description,
					updated_at = NOW()`,
				p.ID, p.UserID, p.Condition, p.RiskLevel, p.MemberCount, p.Members, p.Description)
			if err != nil {
				return fmt.Errorf("upserting pattern %q: %w", p.Condition, err)
			}
		}

		_, err := r.conn(ctx).Exec(ctx,
			`DELETE FROM family_patterns WHERE user_id = $1 AND condition != ALL($2)`,
			userID, conditions)
		if err != nil {
			return fmt.Errorf("pruning stale patterns: %w", err)
		}
		return nil
	})
}

func (r *patternRepoPG) ListByUser(ctx context.Context, userID string) ([]*FamilyPattern, error) {
	rows, err := r.conn(ctx).Query(ctx,
		`SELECT `+patternCols+` FROM family_patterns WHERE user_id = $1 ORDER BY condition`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []*FamilyPattern
	for rows.Next() {
		p, err := r.scanPattern(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, p)
	}
	return items, rows.Err()
}
