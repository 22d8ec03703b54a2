package insights

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"

	"github.com/healthrec/healthrec/internal/domain/session"
	"github.com/healthrec/healthrec/internal/platform/auth"
)

func authedContext(e *echo.Echo, req *http.Request, rec *httptest.ResponseRecorder, userID string) echo.Context {
	ctx := context.WithValue(req.Context(), auth.UserIDKey, userID)
	return e.NewContext(req.WithContext(ctx), rec)
}

func TestHandler_Approve(t *testing.T) {
	f := newFixture(session.StagePreviewingData)
	h, e := NewHandler(f.svc), echo.New()

	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"feedback":"looks right"}`))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	c := authedContext(e, req, rec, "u1")
	c.SetParamNames("id")
	c.SetParamValues(f.gateway.sess.ID.String())

	if err := h.Approve(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	var row HealthInsights
	if err := json.Unmarshal(rec.Body.Bytes(), &row); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	if row.Tone != "friendly" || row.LanguageLevel != "simple" {
		t.Errorf("insights not keyed by session preferences: %+v", row)
	}
	if len(f.approvals.created) != 1 {
		t.Errorf("expected 1 approval row, got %d", len(f.approvals.created))
	}
	if f.approvals.created[0].Feedback == nil || *f.approvals.created[0].Feedback != "looks right" {
		t.Error("feedback must be recorded on the approval row")
	}
}

func TestHandler_Approve_WrongStage(t *testing.T) {
	f := newFixture(session.StageCreated)
	h, e := NewHandler(f.svc), echo.New()

	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{}`))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	c := authedContext(e, req, rec, "u1")
	c.SetParamNames("id")
	c.SetParamValues(f.gateway.sess.ID.String())

	err := h.Approve(c)
	httpErr, ok := err.(*echo.HTTPError)
	if !ok || httpErr.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %v", err)
	}
}

func TestHandler_Approve_Unauthenticated(t *testing.T) {
	f := newFixture(session.StagePreviewingData)
	h, e := NewHandler(f.svc), echo.New()

	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{}`))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	c.SetParamNames("id")
	c.SetParamValues(f.gateway.sess.ID.String())

	err := h.Approve(c)
	httpErr, ok := err.(*echo.HTTPError)
	if !ok || httpErr.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %v", err)
	}
}

func TestHandler_GetInsights_MissingParams(t *testing.T) {
	f := newFixture(session.StagePreviewingData)
	h, e := NewHandler(f.svc), echo.New()

	req := httptest.NewRequest(http.MethodGet, "/?tone=friendly", nil)
	rec := httptest.NewRecorder()
	c := authedContext(e, req, rec, "u1")
	c.SetParamNames("id")
	c.SetParamValues(f.gateway.sess.ID.String())

	err := h.GetInsights(c)
	httpErr, ok := err.(*echo.HTTPError)
	if !ok || httpErr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %v", err)
	}
}

func TestHandler_GetInsights_NotFound(t *testing.T) {
	f := newFixture(session.StagePreviewingData)
	h, e := NewHandler(f.svc), echo.New()

	req := httptest.NewRequest(http.MethodGet, "/?tone=friendly&language_level=simple", nil)
	rec := httptest.NewRecorder()
	c := authedContext(e, req, rec, "u1")
	c.SetParamNames("id")
	c.SetParamValues(f.gateway.sess.ID.String())

	err := h.GetInsights(c)
	httpErr, ok := err.(*echo.HTTPError)
	if !ok || httpErr.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %v", err)
	}
}

func TestHandler_GetReport(t *testing.T) {
	f := newFixture(session.StagePreviewingData)
	if _, err := f.svc.GenerateInsights(context.Background(), "u1", f.gateway.sess.ID, nil); err != nil {
		t.Fatal(err)
	}
	h, e := NewHandler(f.svc), echo.New()

	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"include_doctor_questions":true}`))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	c := authedContext(e, req, rec, "u1")
	c.SetParamNames("id")
	c.SetParamValues(f.gateway.sess.ID.String())

	if err := h.GetReport(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	var dl ReportDownload
	if err := json.Unmarshal(rec.Body.Bytes(), &dl); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	if dl.URL == "" {
		t.Error("expected signed URL in response")
	}
}

func TestHandler_GetReport_OtherUsersSession(t *testing.T) {
	f := newFixture(session.StagePreviewingData)
	h, e := NewHandler(f.svc), echo.New()

	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{}`))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	c := authedContext(e, req, rec, "u2")
	c.SetParamNames("id")
	c.SetParamValues(f.gateway.sess.ID.String())

	err := h.GetReport(c)
	httpErr, ok := err.(*echo.HTTPError)
	if !ok || httpErr.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for cross-user access, got %v", err)
	}
}

func TestHandler_ListReports_EmptyArray(t *testing.T) {
	f := newFixture(session.StagePreviewingData)
	h, e := NewHandler(f.svc), echo.New()

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()
	c := authedContext(e, req, rec, "u1")
	c.SetParamNames("id")
	c.SetParamValues(f.gateway.sess.ID.String())

	if err := h.ListReports(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(rec.Body.String(), `"reports":[]`) {
		t.Errorf("expected empty reports array, got %s", rec.Body.String())
	}
}
