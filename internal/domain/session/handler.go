package session

import (
	"errors"
	"io"
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/healthrec/healthrec/internal/platform/ai"
	"github.com/healthrec/healthrec/internal/platform/auth"
	"github.com/healthrec/healthrec/pkg/pagination"
)

// Handler provides HTTP handlers for the session domain.
type Handler struct {
	svc *Service
}

// NewHandler creates a new session domain handler.
func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

// RegisterRoutes registers all session domain routes.
func (h *Handler) RegisterRoutes(api *echo.Group) {
	api.POST("/sessions", h.CreateSession)
	api.GET("/sessions", h.ListSessions)
	api.GET("/sessions/:id", h.GetSession)
	api.POST("/sessions/:id/files", h.UploadFiles)
	api.GET("/sessions/:id/files", h.ListFiles)
	api.POST("/sessions/:id/parse", h.ParseDocuments)
	api.GET("/sessions/:id/documents", h.ListParsedDocuments)
	api.POST("/sessions/:id/confirm-review", h.ConfirmReview)
	api.PUT("/sessions/:id/preferences", h.SetPreferences)
	api.PUT("/parsed-documents/:id", h.UpdateParsedDocument)
}

func userID(c echo.Context) (string, error) {
	uid := auth.UserIDFromContext(c.Request().Context())
	if uid == "" {
		return "", echo.NewHTTPError(http.StatusUnauthorized, "not authenticated")
	}
	return uid, nil
}

func sessionID(c echo.Context) (uuid.UUID, error) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return uuid.Nil, echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	return id, nil
}

func mapErr(err error) error {
	switch {
	case errors.Is(err, ErrSessionNotFound):
		return echo.NewHTTPError(http.StatusNotFound, "session not found")
	case errors.Is(err, ErrDocumentNotFound):
		return echo.NewHTTPError(http.StatusNotFound, "parsed document not found")
	case errors.Is(err, ErrFileNotFound):
		return echo.NewHTTPError(http.StatusNotFound, "file not found")
	case errors.Is(err, ErrInvalidTransition):
		return echo.NewHTTPError(http.StatusConflict, err.Error())
	default:
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
}

func (h *Handler) CreateSession(c echo.Context) error {
	uid, err := userID(c)
	if err != nil {
		return err
	}
	var body struct {
		FamilyMemberID *uuid.UUID `json:"family_member_id"`
	}
	if err := c.Bind(&body); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	sess, err := h.svc.CreateSession(c.Request().Context(), uid, body.FamilyMemberID)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return c.JSON(http.StatusCreated, sess)
}

func (h *Handler) GetSession(c echo.Context) error {
	uid, err := userID(c)
	if err != nil {
		return err
	}
	id, err := sessionID(c)
	if err != nil {
		return err
	}
	sess, err := h.svc.GetSession(c.Request().Context(), uid, id)
	if err != nil {
		return mapErr(err)
	}
	return c.JSON(http.StatusOK, sess)
}

func (h *Handler) ListSessions(c echo.Context) error {
	uid, err := userID(c)
	if err != nil {
		return err
	}
	p := pagination.FromContext(c)
	sessions, total, err := h.svc.ListSessions(c.Request().Context(), uid, p.Limit, p.Offset)
	if err != nil {
		return mapErr(err)
	}
	if sessions == nil {
		sessions = []*Session{}
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(sessions, total, p.Limit, p.Offset))
}

func (h *Handler) UploadFiles(c echo.Context) error {
	uid, err := userID(c)
	if err != nil {
		return err
	}
	id, err := sessionID(c)
	if err != nil {
		return err
	}

	form, err := c.MultipartForm()
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "multipart form required")
	}
	headers := form.File["files"]
	if len(headers) == 0 {
		return echo.NewHTTPError(http.StatusBadRequest, "at least one file is required")
	}

	uploads := make([]FileUpload, 0, len(headers))
	for _, fh := range headers {
		src, err := fh.Open()
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "reading "+fh.Filename)
		}
		content, err := io.ReadAll(src)
		src.Close()
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "reading "+fh.Filename)
		}
		uploads = append(uploads, FileUpload{
			Filename: fh.Filename,
			MimeType: fh.Header.Get("Content-Type"),
			Content:  content,
		})
	}

	result, err := h.svc.UploadFiles(c.Request().Context(), uid, id, uploads)
	if err != nil {
		return mapErr(err)
	}
	if len(result.Failed) > 0 {
		return c.JSON(http.StatusBadGateway, result)
	}
	return c.JSON(http.StatusCreated, result)
}

func (h *Handler) ListFiles(c echo.Context) error {
	uid, err := userID(c)
	if err != nil {
		return err
	}
	id, err := sessionID(c)
	if err != nil {
		return err
	}
	files, err := h.svc.ListFiles(c.Request().Context(), uid, id)
	if err != nil {
		return mapErr(err)
	}
	if files == nil {
		files = []*File{}
	}
	return c.JSON(http.StatusOK, map[string]interface{}{"files": files})
}

func (h *Handler) ParseDocuments(c echo.Context) error {
	uid, err := userID(c)
	if err != nil {
		return err
	}
	id, err := sessionID(c)
	if err != nil {
		return err
	}
	docs, degraded, err := h.svc.ParseDocuments(c.Request().Context(), uid, id)
	if err != nil {
		return mapErr(err)
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"documents": docs,
		"degraded":  degraded,
	})
}

func (h *Handler) ListParsedDocuments(c echo.Context) error {
	uid, err := userID(c)
	if err != nil {
		return err
	}
	id, err := sessionID(c)
	if err != nil {
		return err
	}
	docs, err := h.svc.ListParsedDocuments(c.Request().Context(), uid, id)
	if err != nil {
		return mapErr(err)
	}
	if docs == nil {
		docs = []*ParsedDocument{}
	}
	return c.JSON(http.StatusOK, map[string]interface{}{"documents": docs})
}

func (h *Handler) ConfirmReview(c echo.Context) error {
	uid, err := userID(c)
	if err != nil {
		return err
	}
	id, err := sessionID(c)
	if err != nil {
		return err
	}
	sess, err := h.svc.ConfirmReview(c.Request().Context(), uid, id)
	if err != nil {
		if errors.Is(err, ErrSessionNotFound) {
			return mapErr(err)
		}
		return echo.NewHTTPError(http.StatusConflict, err.Error())
	}
	return c.JSON(http.StatusOK, sess)
}

func (h *Handler) SetPreferences(c echo.Context) error {
	uid, err := userID(c)
	if err != nil {
		return err
	}
	id, err := sessionID(c)
	if err != nil {
		return err
	}
	var body struct {
		Tone          string `json:"tone"`
		LanguageLevel string `json:"language_level"`
	}
	if err := c.Bind(&body); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	sess, err := h.svc.SetPreferences(c.Request().Context(), uid, id, body.Tone, body.LanguageLevel)
	if err != nil {
		if errors.Is(err, ErrSessionNotFound) {
			return mapErr(err)
		}
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return c.JSON(http.StatusOK, sess)
}

func (h *Handler) UpdateParsedDocument(c echo.Context) error {
	uid, err := userID(c)
	if err != nil {
		return err
	}
	id, err := sessionID(c)
	if err != nil {
		return err
	}
	var payload ai.ParsedPayload
	if err := c.Bind(&payload); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	doc, err := h.svc.UpdateParsedDocument(c.Request().Context(), uid, id, payload)
	if err != nil {
		return mapErr(err)
	}
	return c.JSON(http.StatusOK, doc)
}
