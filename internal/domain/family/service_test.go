package family

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// =========== Mock Repositories ===========

type mockMemberRepo struct {
	store map[uuid.UUID]*FamilyMember
}

func newMockMemberRepo() *mockMemberRepo {
	return &mockMemberRepo{store: make(map[uuid.UUID]*FamilyMember)}
}

func (m *mockMemberRepo) Create(_ context.Context, f *FamilyMember) error {
	f.ID = uuid.New()
	m.store[f.ID] = f
	return nil
}

func (m *mockMemberRepo) GetByID(_ context.Context, userID string, id uuid.UUID) (*FamilyMember, error) {
	f, ok := m.store[id]
	if !ok || f.UserID != userID {
		return nil, ErrNotFound
	}
	return f, nil
}

func (m *mockMemberRepo) Update(_ context.Context, f *FamilyMember) error {
	existing, ok := m.store[f.ID]
	if !ok || existing.UserID != f.UserID {
		return ErrNotFound
	}
	m.store[f.ID] = f
	return nil
}

func (m *mockMemberRepo) Delete(_ context.Context, userID string, id uuid.UUID) error {
	f, ok := m.store[id]
	if !ok || f.UserID != userID {
		return ErrNotFound
	}
	delete(m.store, id)
	return nil
}

func (m *mockMemberRepo) ListByUser(_ context.Context, userID string, limit, offset int) ([]*FamilyMember, int, error) {
	var result []*FamilyMember
	for _, f := range m.store {
		if f.UserID == userID {
			result = append(result, f)
		}
	}
	return result, len(result), nil
}

func (m *mockMemberRepo) ListAllByUser(_ context.Context, userID string) ([]*FamilyMember, error) {
	var result []*FamilyMember
	for _, f := range m.store {
		if f.UserID == userID {
			result = append(result, f)
		}
	}
	return result, nil
}

type mockPatternRepo struct {
	store    map[string][]*FamilyPattern
	failNext bool
	calls    int
}

func newMockPatternRepo() *mockPatternRepo {
	return &mockPatternRepo{store: make(map[string][]*FamilyPattern)}
}

func (m *mockPatternRepo) ReplaceForUser(_ context.Context, userID string, patterns []*FamilyPattern) error {
	m.calls++
	if m.failNext {
		m.failNext = false
		return fmt.Errorf("storage down")
	}
	m.store[userID] = patterns
	return nil
}

func (m *mockPatternRepo) ListByUser(_ context.Context, userID string) ([]*FamilyPattern, error) {
	return m.store[userID], nil
}

func newTestService() (*Service, *mockMemberRepo, *mockPatternRepo) {
	members := newMockMemberRepo()
	patterns := newMockPatternRepo()
	return NewService(members, patterns, zerolog.Nop()), members, patterns
}

func addMember(t *testing.T, svc *Service, userID, name, relationship string, conditions ...string) *FamilyMember {
	t.Helper()
	m := &FamilyMember{UserID: userID, Name: name, Relationship: relationship, Conditions: conditions}
	if err := svc.CreateFamilyMember(context.Background(), m); err != nil {
		t.Fatalf("creating member %s: %v", name, err)
	}
	return m
}

// =========== Member CRUD ===========

func TestCreateFamilyMember_Validation(t *testing.T) {
	svc, _, _ := newTestService()

	cases := []struct {
		name   string
		member *FamilyMember
	}{
		{"missing user", &FamilyMember{Name: "Ana", Relationship: "mother"}},
		{"missing name", &FamilyMember{UserID: "u1", Relationship: "mother"}},
		{"blank name", &FamilyMember{UserID: "u1", Name: "   ", Relationship: "mother"}},
		{"missing relationship", &FamilyMember{UserID: "u1", Name: "Ana"}},
	}
	for _, tc := range cases {
		if err := svc.CreateFamilyMember(context.Background(), tc.member); err == nil {
			t.Errorf("%s: expected validation error", tc.name)
		}
	}
}

func TestCreateFamilyMember_DedupesConditions(t *testing.T) {
	svc, _, _ := newTestService()
	m := addMember(t, svc, "u1", "Ana", "mother", "diabetes", " diabetes ", "diabetes", "asthma", "")

	if len(m.Conditions) != 2 {
		t.Fatalf("expected 2 conditions after dedupe, got %v", m.Conditions)
	}
	if m.Conditions[0] != "diabetes" || m.Conditions[1] != "asthma" {
		t.Errorf("unexpected conditions: %v", m.Conditions)
	}
}

func TestGetFamilyMember_ScopedToUser(t *testing.T) {
	svc, _, _ := newTestService()
	m := addMember(t, svc, "u1", "Ana", "mother")

	if _, err := svc.GetFamilyMember(context.Background(), "u2", m.ID); err == nil {
		t.Error("expected not found for another user's member")
	}
	if _, err := svc.GetFamilyMember(context.Background(), "u1", m.ID); err != nil {
		t.Errorf("owner lookup failed: %v", err)
	}
}

// =========== Pattern Detection ===========

func TestAnalyzePatterns_SharedCondition(t *testing.T) {
	svc, _, _ := newTestService()
	addMember(t, svc, "u1", "Ana", "mother", "type 2 diabetes")
	addMember(t, svc, "u1", "Luis", "brother", "type 2 diabetes")
	addMember(t, svc, "u1", "Rosa", "aunt", "asthma")

	patterns, err := svc.AnalyzePatterns(context.Background(), "u1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(patterns) != 1 {
		t.Fatalf("expected 1 pattern, got %d", len(patterns))
	}
	p := patterns[0]
	if p.Condition != "type 2 diabetes" {
		t.Errorf("unexpected condition: %q", p.Condition)
	}
	if p.RiskLevel != RiskModerate {
		t.Errorf("expected moderate risk for 2 members, got %q", p.RiskLevel)
	}
	if p.MemberCount != 2 || len(p.Members) != 2 {
		t.Errorf("expected 2 members, got count=%d members=%d", p.MemberCount, len(p.Members))
	}
}

func TestAnalyzePatterns_DescriptionNamesMembers(t *testing.T) {
	svc, _, _ := newTestService()
	addMember(t, svc, "u1", "Ana", "mother", "type 2 diabetes")
	addMember(t, svc, "u1", "Luis", "brother", "type 2 diabetes")

	patterns, err := svc.AnalyzePatterns(context.Background(), "u1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(patterns) != 1 {
		t.Fatalf("expected 1 pattern, got %d", len(patterns))
	}
	desc := patterns[0].Description
	if !strings.Contains(desc, "type 2 diabetes") {
		t.Errorf("description must name the condition, got %q", desc)
	}
	for _, want := range []string{"Ana (mother)", "Luis (brother)"} {
		if !strings.Contains(desc, want) {
			t.Errorf("description must name the affected members, got %q", desc)
		}
	}
}

func TestAnalyzePatterns_HighRiskAtThree(t *testing.T) {
	svc, _, _ := newTestService()
	addMember(t, svc, "u1", "Ana", "mother", "hypertension")
	addMember(t, svc, "u1", "Luis", "brother", "hypertension")
	addMember(t, svc, "u1", "Jorge", "grandfather", "hypertension")

	patterns, err := svc.AnalyzePatterns(context.Background(), "u1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(patterns) != 1 || patterns[0].RiskLevel != RiskHigh {
		t.Fatalf("expected one high-risk pattern, got %+v", patterns)
	}
}

func TestAnalyzePatterns_ExactStringMatching(t *testing.T) {
	svc, _, _ := newTestService()
	addMember(t, svc, "u1", "Ana", "mother", "Diabetes")
	addMember(t, svc, "u1", "Luis", "brother", "diabetes")

	patterns, err := svc.AnalyzePatterns(context.Background(), "u1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(patterns) != 0 {
		t.Errorf("case-different conditions must not match, got %+v", patterns)
	}
}

func TestAnalyzePatterns_MemberCountedOncePerCondition(t *testing.T) {
	svc, members, _ := newTestService()
	// Duplicate conditions written straight to storage, bypassing create-time dedupe.
	m := &FamilyMember{UserID: "u1", Name: "Ana", Relationship: "mother", Conditions: []string{"gout", "gout"}}
	members.Create(context.Background(), m)
	addMember(t, svc, "u1", "Luis", "brother", "gout")

	patterns, err := svc.AnalyzePatterns(context.Background(), "u1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(patterns) != 1 {
		t.Fatalf("expected 1 pattern, got %d", len(patterns))
	}
	if patterns[0].MemberCount != 2 {
		t.Errorf("a member must count once per condition, got count %d", patterns[0].MemberCount)
	}
}

func TestAnalyzePatterns_SortedByCondition(t *testing.T) {
	svc, _, _ := newTestService()
	addMember(t, svc, "u1", "Ana", "mother", "migraine", "anemia")
	addMember(t, svc, "u1", "Luis", "brother", "migraine", "anemia")

	patterns, err := svc.AnalyzePatterns(context.Background(), "u1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(patterns) != 2 {
		t.Fatalf("expected 2 patterns, got %d", len(patterns))
	}
	if patterns[0].Condition != "anemia" || patterns[1].Condition != "migraine" {
		t.Errorf("expected conditions sorted, got %q then %q", patterns[0].Condition, patterns[1].Condition)
	}
}

func TestAnalyzePatterns_PersistenceFailureIsSoft(t *testing.T) {
	svc, _, patterns := newTestService()
	addMember(t, svc, "u1", "Ana", "mother", "diabetes")
	addMember(t, svc, "u1", "Luis", "brother", "diabetes")
	patterns.failNext = true

	result, err := svc.AnalyzePatterns(context.Background(), "u1")
	if err != nil {
		t.Fatalf("persistence failure must not fail analysis: %v", err)
	}
	if len(result) != 1 {
		t.Fatalf("expected computed patterns despite storage failure, got %d", len(result))
	}
	if len(patterns.store["u1"]) != 0 {
		t.Error("nothing should have been persisted")
	}
}

func TestAnalyzePatterns_ReplacesStalePatterns(t *testing.T) {
	svc, members, patternRepo := newTestService()
	a := addMember(t, svc, "u1", "Ana", "mother", "diabetes")
	addMember(t, svc, "u1", "Luis", "brother", "diabetes")

	if _, err := svc.AnalyzePatterns(context.Background(), "u1"); err != nil {
		t.Fatal(err)
	}
	if len(patternRepo.store["u1"]) != 1 {
		t.Fatalf("expected 1 persisted pattern, got %d", len(patternRepo.store["u1"]))
	}

	// Condition no longer shared after the update.
	a.Conditions = nil
	if err := members.Update(context.Background(), a); err != nil {
		t.Fatal(err)
	}
	if _, err := svc.AnalyzePatterns(context.Background(), "u1"); err != nil {
		t.Fatal(err)
	}
	if len(patternRepo.store["u1"]) != 0 {
		t.Errorf("stale pattern should be pruned, got %+v", patternRepo.store["u1"])
	}
}

func TestAnalyzePatterns_NoMembers(t *testing.T) {
	svc, _, _ := newTestService()
	patterns, err := svc.AnalyzePatterns(context.Background(), "u1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(patterns) != 0 {
		t.Errorf("expected no patterns, got %d", len(patterns))
	}
}

func TestRiskLevelForCount(t *testing.T) {
	cases := map[int]string{0: RiskLow, 1: RiskLow, 2: RiskModerate, 3: RiskHigh, 7: RiskHigh}
	for n, want := range cases {
		if got := RiskLevelForCount(n); got != want {
			t.Errorf("RiskLevelForCount(%d) = %q, want %q", n, got, want)
		}
	}
}
