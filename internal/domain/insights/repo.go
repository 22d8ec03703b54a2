package insights

import (
	"context"

	"github.com/google/uuid"
)

// InsightsRepository persists generated insights. Upsert replaces any
// existing row for the same (session, tone, language_level) and clears
// its cached report path, since a regenerated insight invalidates prior
// renderings.
type InsightsRepository interface {
	Upsert(ctx context.Context, i *HealthInsights) error
	GetBySessionPrefs(ctx context.Context, userID string, sessionID uuid.UUID, tone, languageLevel string) (*HealthInsights, error)
	SetReportPath(ctx context.Context, userID string, id uuid.UUID, path string) error
}

// ReportRepository records rendered report artifacts.
type ReportRepository interface {
	Create(ctx context.Context, r *Report) error
	ListBySession(ctx context.Context, userID string, sessionID uuid.UUID) ([]*Report, error)
}

// ApprovalRepository records approval audit rows.
type ApprovalRepository interface {
	Create(ctx context.Context, a *Approval) error
}
