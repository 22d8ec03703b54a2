package insights

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/healthrec/healthrec/internal/domain/session"
	"github.com/healthrec/healthrec/internal/platform/ai"
	"github.com/healthrec/healthrec/internal/platform/blobstore"
)

// =========== Mock Repositories ===========

func insightKey(sessionID uuid.UUID, tone, lang string) string {
	return sessionID.String() + "|" + tone + "|" + lang
}

type mockInsightsRepo struct {
	store map[string]*HealthInsights
}

func newMockInsightsRepo() *mockInsightsRepo {
	return &mockInsightsRepo{store: make(map[string]*HealthInsights)}
}

func (m *mockInsightsRepo) Upsert(_ context.Context, i *HealthInsights) error {
	key := insightKey(i.SessionID, i.Tone, i.LanguageLevel)
	if existing, ok := m.store[key]; ok {
		existing.Payload = i.Payload
		existing.ReportStoragePath = nil
		*i = *existing
		return nil
	}
	i.ID = uuid.New()
	cp := *i
	m.store[key] = &cp
	return nil
}

func (m *mockInsightsRepo) GetBySessionPrefs(_ context.Context, userID string, sessionID uuid.UUID, tone, lang string) (*HealthInsights, error) {
	i, ok := m.store[insightKey(sessionID, tone, lang)]
	if !ok || i.UserID != userID {
		return nil, ErrInsightsNotFound
	}
	cp := *i
	return &cp, nil
}

func (m *mockInsightsRepo) SetReportPath(_ context.Context, userID string, id uuid.UUID, path string) error {
	for _, i := range m.store {
		if i.ID == id && i.UserID == userID {
			p := path
			i.ReportStoragePath = &p
			return nil
		}
	}
	return ErrInsightsNotFound
}

type mockReportRepo struct {
	created []*Report
}

func (m *mockReportRepo) Create(_ context.Context, r *Report) error {
	r.ID = uuid.New()
	m.created = append(m.created, r)
	return nil
}

func (m *mockReportRepo) ListBySession(_ context.Context, userID string, sessionID uuid.UUID) ([]*Report, error) {
	var result []*Report
	for _, r := range m.created {
		if r.SessionID == sessionID && r.UserID == userID {
			result = append(result, r)
		}
	}
	return result, nil
}

type mockApprovalRepo struct {
	created  []*Approval
	failNext bool
	events   *[]string
}

func (m *mockApprovalRepo) Create(_ context.Context, a *Approval) error {
	*m.events = append(*m.events, "approval")
	if m.failNext {
		m.failNext = false
		return fmt.Errorf("audit table unavailable")
	}
	a.ID = uuid.New()
	m.created = append(m.created, a)
	return nil
}

// =========== Mock Collaborators ===========

type mockGateway struct {
	sess *session.Session
	docs []*session.ParsedDocument
}

func (m *mockGateway) GetSession(_ context.Context, userID string, id uuid.UUID) (*session.Session, error) {
	if m.sess == nil || m.sess.ID != id || m.sess.UserID != userID {
		return nil, session.ErrSessionNotFound
	}
	cp := *m.sess
	return &cp, nil
}

func (m *mockGateway) ListParsedDocuments(_ context.Context, userID string, sessionID uuid.UUID) ([]*session.ParsedDocument, error) {
	if m.sess == nil || m.sess.ID != sessionID || m.sess.UserID != userID {
		return nil, session.ErrSessionNotFound
	}
	return m.docs, nil
}

func (m *mockGateway) AdvanceStage(_ context.Context, userID string, sessionID uuid.UUID, to string) (*session.Session, error) {
	if m.sess == nil || m.sess.ID != sessionID || m.sess.UserID != userID {
		return nil, session.ErrSessionNotFound
	}
	if err := m.sess.ApplyStage(to); err != nil {
		return nil, err
	}
	cp := *m.sess
	return &cp, nil
}

func (m *mockGateway) MarkFailed(_ context.Context, userID string, sessionID uuid.UUID) error {
	if m.sess == nil || m.sess.ID != sessionID || m.sess.UserID != userID {
		return session.ErrSessionNotFound
	}
	m.sess.MarkFailed()
	return nil
}

type mockGenerator struct {
	calls  int
	fail   bool
	events *[]string
}

func (m *mockGenerator) GenerateInsights(_ context.Context, req ai.InsightRequest) (*ai.InsightPayload, error) {
	*m.events = append(*m.events, "generate")
	m.calls++
	if m.fail {
		return nil, fmt.Errorf("%w: timeout", ai.ErrUnavailable)
	}
	return &ai.InsightPayload{
		Summary: fmt.Sprintf("insights in %s tone", req.Tone),
		Urgency: "routine",
	}, nil
}

type mockRenderer struct {
	blobs blobstore.BlobStore
	calls int
}

func (m *mockRenderer) RenderReport(ctx context.Context, req ai.RenderRequest) (*ai.RenderResult, error) {
	m.calls++
	obj, err := m.blobs.Put(ctx, req.StoragePath, "text/html", strings.NewReader("<html>report</html>"))
	if err != nil {
		return nil, err
	}
	return &ai.RenderResult{StoragePath: req.StoragePath, Size: obj.Size}, nil
}

type testCache struct {
	store map[string]string
}

func (c *testCache) Get(_ context.Context, key string) (string, bool) {
	v, ok := c.store[key]
	return v, ok
}

func (c *testCache) Set(_ context.Context, key, path string) {
	c.store[key] = path
}

// =========== Fixture ===========

type fixture struct {
	svc       *Service
	gateway   *mockGateway
	insights  *mockInsightsRepo
	reports   *mockReportRepo
	approvals *mockApprovalRepo
	generator *mockGenerator
	renderer  *mockRenderer
	blobs     blobstore.BlobStore
	paths     *testCache
	events    []string
}

func newFixture(stage string) *fixture {
	f := &fixture{
		insights: newMockInsightsRepo(),
		reports:  &mockReportRepo{},
		blobs:    blobstore.NewMemory(),
		paths:    &testCache{store: make(map[string]string)},
	}
	f.approvals = &mockApprovalRepo{events: &f.events}
	f.generator = &mockGenerator{events: &f.events}
	f.renderer = &mockRenderer{blobs: f.blobs}
	f.gateway = &mockGateway{
		sess: &session.Session{
			ID:            uuid.New(),
			UserID:        "u1",
			Tone:          "friendly",
			LanguageLevel: "simple",
			Stage:         stage,
			Status:        session.StatusProcessing,
		},
		docs: []*session.ParsedDocument{
			{ID: uuid.New(), UserID: "u1", Payload: ai.ParsedPayload{Summary: "doc one"}},
		},
	}
	f.gateway.docs[0].SessionID = f.gateway.sess.ID
	f.svc = NewService(f.insights, f.reports, f.approvals, f.gateway,
		f.generator, f.renderer, f.blobs, f.paths, time.Minute, zerolog.Nop())
	return f
}

// =========== Insight Generation ===========

func TestGenerateInsights(t *testing.T) {
	f := newFixture(session.StagePreviewingData)

	row, err := f.svc.GenerateInsights(context.Background(), "u1", f.gateway.sess.ID, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if row.Tone != "friendly" || row.LanguageLevel != "simple" {
		t.Errorf("row not keyed by session preferences: %+v", row)
	}
	if row.Payload.Summary == "" {
		t.Error("expected generated payload")
	}
	if f.gateway.sess.Stage != session.StageReviewingInsights {
		t.Errorf("expected reviewing_insights, got %s", f.gateway.sess.Stage)
	}
	if len(f.approvals.created) != 1 {
		t.Errorf("expected 1 approval row, got %d", len(f.approvals.created))
	}
	if len(f.approvals.created[0].DocumentIDs) != 1 {
		t.Error("approval must snapshot the reviewed document ids")
	}
}

func TestGenerateInsights_ApprovalRecordedBeforeGeneration(t *testing.T) {
	f := newFixture(session.StagePreviewingData)

	if _, err := f.svc.GenerateInsights(context.Background(), "u1", f.gateway.sess.ID, nil); err != nil {
		t.Fatal(err)
	}
	if len(f.events) < 2 || f.events[0] != "approval" || f.events[1] != "generate" {
		t.Errorf("approval must precede generation, got order %v", f.events)
	}
}

func TestGenerateInsights_ApprovalSurvivesGenerationFailure(t *testing.T) {
	f := newFixture(session.StagePreviewingData)
	f.generator.fail = true

	_, err := f.svc.GenerateInsights(context.Background(), "u1", f.gateway.sess.ID, nil)
	if err == nil {
		t.Fatal("expected generation error")
	}
	if len(f.approvals.created) != 1 {
		t.Error("approval row must be kept despite generation failure")
	}
	if f.gateway.sess.Status != session.StatusFailed {
		t.Errorf("expected failed status, got %s", f.gateway.sess.Status)
	}
	if f.gateway.sess.Stage != session.StageGeneratingInsights {
		t.Errorf("stage must survive for retry, got %s", f.gateway.sess.Stage)
	}
}

func TestGenerateInsights_AuditFailureIsSoft(t *testing.T) {
	f := newFixture(session.StagePreviewingData)
	f.approvals.failNext = true

	if _, err := f.svc.GenerateInsights(context.Background(), "u1", f.gateway.sess.ID, nil); err != nil {
		t.Fatalf("audit failure must not block generation: %v", err)
	}
	if f.generator.calls != 1 {
		t.Errorf("expected generation to proceed, calls=%d", f.generator.calls)
	}
}

func TestGenerateInsights_UpsertReplacesRow(t *testing.T) {
	f := newFixture(session.StagePreviewingData)
	id := f.gateway.sess.ID

	first, err := f.svc.GenerateInsights(context.Background(), "u1", id, nil)
	if err != nil {
		t.Fatal(err)
	}
	path := "reports/stale.html"
	f.insights.SetReportPath(context.Background(), "u1", first.ID, path)

	// Regenerate from the review stage.
	second, err := f.svc.GenerateInsights(context.Background(), "u1", id, nil)
	if err != nil {
		t.Fatal(err)
	}
	if second.ID != first.ID {
		t.Error("regeneration must replace the row, not add one")
	}
	if second.ReportStoragePath != nil {
		t.Error("regeneration must clear the stale report path")
	}
	if len(f.insights.store) != 1 {
		t.Errorf("expected one row per preference pair, got %d", len(f.insights.store))
	}
}

func TestGetInsights_ScopedByPreferences(t *testing.T) {
	f := newFixture(session.StagePreviewingData)
	id := f.gateway.sess.ID

	if _, err := f.svc.GenerateInsights(context.Background(), "u1", id, nil); err != nil {
		t.Fatal(err)
	}
	// Changing preferences during review re-enters the preview stage and
	// a second generation creates a distinct row.
	f.gateway.sess.Tone = "professional"
	if err := f.gateway.sess.ApplyStage(session.StagePreviewingData); err != nil {
		t.Fatalf("preference change during review must be a valid transition: %v", err)
	}
	if _, err := f.svc.GenerateInsights(context.Background(), "u1", id, nil); err != nil {
		t.Fatal(err)
	}

	friendly, err := f.svc.GetInsights(context.Background(), "u1", id, "friendly", "simple")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if friendly.Tone != "friendly" {
		t.Errorf("lookup returned wrong tone: %s", friendly.Tone)
	}
	if _, err := f.svc.GetInsights(context.Background(), "u1", id, "empathetic", "simple"); err == nil {
		t.Error("expected not found for never-requested preference pair")
	}
}

// =========== Report Cache ===========

func reportFixture(t *testing.T) (*fixture, uuid.UUID) {
	t.Helper()
	f := newFixture(session.StagePreviewingData)
	id := f.gateway.sess.ID
	if _, err := f.svc.GenerateInsights(context.Background(), "u1", id, nil); err != nil {
		t.Fatal(err)
	}
	return f, id
}

func TestGetReport_CacheHitSkipsRenderer(t *testing.T) {
	f, id := reportFixture(t)

	// Seed a valid cached artifact.
	path := fmt.Sprintf("reports/%s/friendly-simple.html", id)
	f.blobs.Put(context.Background(), path, "text/html", strings.NewReader("<html>cached</html>"))
	row, _ := f.svc.GetInsights(context.Background(), "u1", id, "friendly", "simple")
	f.insights.SetReportPath(context.Background(), "u1", row.ID, path)

	dl, err := f.svc.GetReport(context.Background(), "u1", id, true)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if f.renderer.calls != 0 {
		t.Errorf("cache hit must not call the renderer, calls=%d", f.renderer.calls)
	}
	if !dl.Cached {
		t.Error("expected cached download")
	}
	if dl.URL == "" {
		t.Error("expected signed URL")
	}
}

func TestGetReport_DanglingPathRegenerates(t *testing.T) {
	f, id := reportFixture(t)

	// Stored path points at a blob that no longer exists.
	row, _ := f.svc.GetInsights(context.Background(), "u1", id, "friendly", "simple")
	f.insights.SetReportPath(context.Background(), "u1", row.ID, "reports/gone.html")

	dl, err := f.svc.GetReport(context.Background(), "u1", id, true)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if f.renderer.calls != 1 {
		t.Errorf("dangling path must trigger exactly one render, calls=%d", f.renderer.calls)
	}
	if dl.StoragePath == "reports/gone.html" {
		t.Error("expected a fresh storage path")
	}

	updated, _ := f.svc.GetInsights(context.Background(), "u1", id, "friendly", "simple")
	if updated.ReportStoragePath == nil || *updated.ReportStoragePath != dl.StoragePath {
		t.Error("fresh path must be written back to the insights row")
	}
	if f.gateway.sess.Stage != session.StageCompleted {
		t.Errorf("expected completed stage, got %s", f.gateway.sess.Stage)
	}
}

func TestGetReport_MissRendersOnceThenHits(t *testing.T) {
	f, id := reportFixture(t)

	if _, err := f.svc.GetReport(context.Background(), "u1", id, false); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if f.renderer.calls != 1 {
		t.Fatalf("expected one render on miss, got %d", f.renderer.calls)
	}

	// Second request is served from cache.
	f.gateway.sess.Stage = session.StageCompleted
	if _, err := f.svc.GetReport(context.Background(), "u1", id, false); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if f.renderer.calls != 1 {
		t.Errorf("second request must not re-render, calls=%d", f.renderer.calls)
	}
}

func TestGetReport_CompletedSessionMissingBlobRegenerates(t *testing.T) {
	f, id := reportFixture(t)

	dl, err := f.svc.GetReport(context.Background(), "u1", id, false)
	if err != nil {
		t.Fatal(err)
	}
	if f.gateway.sess.Stage != session.StageCompleted {
		t.Fatalf("expected completed stage, got %s", f.gateway.sess.Stage)
	}

	// The artifact disappears out from under a completed session.
	if err := f.blobs.Delete(context.Background(), dl.StoragePath); err != nil {
		t.Fatal(err)
	}
	f.paths.store = map[string]string{}

	dl2, err := f.svc.GetReport(context.Background(), "u1", id, false)
	if err != nil {
		t.Fatalf("missing blob must force regeneration, not fail: %v", err)
	}
	if f.renderer.calls != 2 {
		t.Errorf("expected exactly one extra render, calls=%d", f.renderer.calls)
	}
	if exists, _ := f.blobs.Exists(context.Background(), dl2.StoragePath); !exists {
		t.Error("regenerated artifact must be stored")
	}
	if f.gateway.sess.Stage != session.StageCompleted {
		t.Errorf("expected completed stage after re-render, got %s", f.gateway.sess.Stage)
	}
	if f.gateway.sess.Status != session.StatusCompleted {
		t.Errorf("status must not regress, got %s", f.gateway.sess.Status)
	}
}

func TestGetReport_PathCacheTier(t *testing.T) {
	f, id := reportFixture(t)

	path := fmt.Sprintf("reports/%s/friendly-simple.html", id)
	f.blobs.Put(context.Background(), path, "text/html", strings.NewReader("<html>cached</html>"))
	f.paths.Set(context.Background(), fmt.Sprintf("report-path:%s:friendly:simple", id), path)

	dl, err := f.svc.GetReport(context.Background(), "u1", id, false)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if f.renderer.calls != 0 {
		t.Errorf("path-cache hit must not render, calls=%d", f.renderer.calls)
	}
	if dl.StoragePath != path {
		t.Errorf("unexpected path: %s", dl.StoragePath)
	}
}

func TestGetReport_NoInsights(t *testing.T) {
	f := newFixture(session.StagePreviewingData)
	if _, err := f.svc.GetReport(context.Background(), "u1", f.gateway.sess.ID, false); err == nil {
		t.Error("expected error with no insights row")
	}
	if f.renderer.calls != 0 {
		t.Error("renderer must not run without insights")
	}
}

func TestGetReport_RecordsReportRow(t *testing.T) {
	f, id := reportFixture(t)

	if _, err := f.svc.GetReport(context.Background(), "u1", id, false); err != nil {
		t.Fatal(err)
	}
	reports, err := f.svc.ListReports(context.Background(), "u1", id)
	if err != nil {
		t.Fatal(err)
	}
	if len(reports) != 1 {
		t.Fatalf("expected 1 report row, got %d", len(reports))
	}
	if reports[0].ReportType != "html" {
		t.Errorf("unexpected report type: %s", reports[0].ReportType)
	}
}
