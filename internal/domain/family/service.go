package family

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Service provides business logic for family members and pattern
// detection.
type Service struct {
	members  MemberRepository
	patterns PatternRepository
	log      zerolog.Logger
}

// NewService creates a new family domain service.
func NewService(members MemberRepository, patterns PatternRepository, log zerolog.Logger) *Service {
	return &Service{
		members:  members,
		patterns: patterns,
		log:      log.With().Str("domain", "family").Logger(),
	}
}

func (s *Service) CreateFamilyMember(ctx context.Context, m *FamilyMember) error {
	if err := validateMember(m); err != nil {
		return err
	}
	m.Conditions = normalizeConditions(m.Conditions)
	m.Allergies = normalizeConditions(m.Allergies)
	return s.members.Create(ctx, m)
}

func (s *Service) GetFamilyMember(ctx context.Context, userID string, id uuid.UUID) (*FamilyMember, error) {
	return s.members.GetByID(ctx, userID, id)
}

func (s *Service) UpdateFamilyMember(ctx context.Context, m *FamilyMember) error {
	if err := validateMember(m); err != nil {
		return err
	}
	m.Conditions = normalizeConditions(m.Conditions)
	m.Allergies = normalizeConditions(m.Allergies)
	return s.members.Update(ctx, m)
}

func (s *Service) DeleteFamilyMember(ctx context.Context, userID string, id uuid.UUID) error {
	return s.members.Delete(ctx, userID, id)
}

func (s *Service) ListFamilyMembers(ctx context.Context, userID string, limit, offset int) ([]*FamilyMember, int, error) {
	return s.members.ListByUser(ctx, userID, limit, offset)
}

func validateMember(m *FamilyMember) error {
	if m.UserID == "" {
		return fmt.Errorf("user_id is required")
	}
	if strings.TrimSpace(m.Name) == "" {
		return fmt.Errorf("name is required")
	}
	if strings.TrimSpace(m.Relationship) == "" {
		return fmt.Errorf("relationship is required")
	}
	return nil
}

// normalizeConditions trims whitespace, drops empties, and dedupes so
// one member can contribute at most once per condition. The strings are
// otherwise kept verbatim; matching is exact.
func normalizeConditions(conditions []string) []string {
	seen := make(map[string]bool, len(conditions))
	out := make([]string, 0, len(conditions))
	for _, c := range conditions {
		c = strings.TrimSpace(c)
		if c == "" || seen[c] {
			continue
		}
		seen[c] = true
		out = append(out, c)
	}
	return out
}

// AnalyzePatterns groups the user's family members by exact shared
// condition string and returns one pattern per condition held by two or
// more members, sorted by condition. Results are persisted best-effort:
// a storage failure is logged and the computed patterns are still
// returned.
func (s *Service) AnalyzePatterns(ctx context.Context, userID string) ([]*FamilyPattern, error) {
	members, err := s.members.ListAllByUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("loading family members: %w", err)
	}

	patterns := detectPatterns(userID, members)

	if err := s.patterns.ReplaceForUser(ctx, userID, patterns); err != nil {
		s.log.Warn().Err(err).Str("user_id", userID).Msg("pattern persistence failed; returning computed patterns")
	}
	return patterns, nil
}

// ListPatterns returns the most recently persisted patterns for a user.
func (s *Service) ListPatterns(ctx context.Context, userID string) ([]*FamilyPattern, error) {
	return s.patterns.ListByUser(ctx, userID)
}

func detectPatterns(userID string, members []*FamilyMember) []*FamilyPattern {
	byCondition := make(map[string][]PatternMember)
	for _, m := range members {
		conditions := normalizeConditions(m.Conditions)
		for _, c := range conditions {
			byCondition[c] = append(byCondition[c], PatternMember{
				MemberID:     m.ID,
				Name:         m.Name,
				Relationship: m.Relationship,
				Conditions:   conditions,
			})
		}
	}

	patterns := make([]*FamilyPattern, 0, len(byCondition))
	for condition, shared := range byCondition {
		if len(shared) < 2 {
			continue
		}
		patterns = append(patterns, &FamilyPattern{
			UserID:      userID,
			Condition:   condition,
			RiskLevel:   RiskLevelForCount(len(shared)),
			MemberCount: len(shared),
			Members:     shared,
			Description: describePattern(condition, shared),
		})
	}
	sort.Slice(patterns, func(i, j int) bool { return patterns[i].Condition < patterns[j].Condition })
	return patterns
}

func describePattern(condition string, members []PatternMember) string {
	named := make([]string, 0, len(members))
	for _, m := range members {
		named = append(named, fmt.Sprintf("%s (%s)", m.Name, m.Relationship))
	}
	return fmt.Sprintf("%d family members share a history of %s: %s",
		len(members), condition, strings.Join(named, ", "))
}
