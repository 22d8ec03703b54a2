package family

import (
	"context"

	"github.com/google/uuid"
)

// MemberRepository defines CRUD operations for family members. Every
// operation is scoped to the owning user.
type MemberRepository interface {
	Create(ctx context.Context, m *FamilyMember) error
	GetByID(ctx context.Context, userID string, id uuid.UUID) (*FamilyMember, error)
	Update(ctx context.Context, m *FamilyMember) error
	Delete(ctx context.Context, userID string, id uuid.UUID) error
	ListByUser(ctx context.Context, userID string, limit, offset int) ([]*FamilyMember, int, error)
	ListAllByUser(ctx context.Context, userID string) ([]*FamilyMember, error)
}

// PatternRepository persists detected patterns. ReplaceForUser upserts
// the given patterns and prunes rows for conditions no longer detected,
// atomically per user.
type PatternRepository interface {
	ReplaceForUser(ctx context.Context, userID string, patterns []*FamilyPattern) error
	ListByUser(ctx context.Context, userID string) ([]*FamilyPattern, error)
}
