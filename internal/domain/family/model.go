package family

import (
	"time"

	"github.com/google/uuid"
)

// Risk levels assigned to detected patterns by member count.
const (
	RiskLow      = "low"
	RiskModerate = "moderate"
	RiskHigh     = "high"
)

// FamilyMember maps to the family_members table. Conditions are stored
// verbatim as entered; matching during pattern analysis is exact.
type FamilyMember struct {
	ID           uuid.UUID  `db:"id" json:"id"`
	UserID       string     `db:"user_id" json:"user_id"`
	Name         string     `db:"name" json:"name"`
	Relationship string     `db:"relationship" json:"relationship"`
	DateOfBirth  *time.Time `db:"date_of_birth" json:"date_of_birth,omitempty"`
	Age          *int       `db:"age" json:"age,omitempty"`
	Gender       *string    `db:"gender" json:"gender,omitempty"`
	Conditions   []string   `db:"conditions" json:"conditions"`
	Allergies    []string   `db:"allergies" json:"allergies,omitempty"`
	Notes        *string    `db:"notes" json:"notes,omitempty"`
	CreatedAt    time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time  `db:"updated_at" json:"updated_at"`
}

// PatternMember records one member's participation in a pattern,
// including the member's full condition list for display.
type PatternMember struct {
	MemberID     uuid.UUID `json:"member_id"`
	Name         string    `json:"name"`
	Relationship string    `json:"relationship"`
	Conditions   []string  `json:"conditions"`
}

// FamilyPattern maps to the family_patterns table: one row per
// (user, condition) shared by at least two family members. Members is
// stored as JSONB.
type FamilyPattern struct {
	ID          uuid.UUID       `db:"id" json:"id"`
	UserID      string          `db:"user_id" json:"user_id"`
	Condition   string          `db:"condition" json:"condition"`
	RiskLevel   string          `db:"risk_level" json:"risk_level"`
	MemberCount int             `db:"member_count" json:"member_count"`
	Members     []PatternMember `db:"members" json:"members"`
	Description string          `db:"description" json:"description"`
	CreatedAt   time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time       `db:"updated_at" json:"updated_at"`
}

// RiskLevelForCount maps a member count to a risk tier. Counts below two
// never reach persistence but still get a defined answer.
func RiskLevelForCount(n int) string {
	switch {
	case n >= 3:
		return RiskHigh
	case n == 2:
		return RiskModerate
	default:
		return RiskLow
	}
}
