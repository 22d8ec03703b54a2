package insights

import (
	"errors"
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/healthrec/healthrec/internal/domain/session"
	"github.com/healthrec/healthrec/internal/platform/auth"
)

// Handler provides HTTP handlers for the insights domain.
type Handler struct {
	svc *Service
}

// NewHandler creates a new insights domain handler.
func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

// RegisterRoutes registers all insights domain routes.
func (h *Handler) RegisterRoutes(api *echo.Group) {
	api.POST("/sessions/:id/approve", h.Approve)
	api.GET("/sessions/:id/insights", h.GetInsights)
	api.POST("/sessions/:id/report", h.GetReport)
	api.GET("/sessions/:id/reports", h.ListReports)
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
	case errors.Is(err, session.ErrSessionNotFound):
		return echo.NewHTTPError(http.StatusNotFound, "session not found")
	case errors.Is(err, ErrInsightsNotFound):
		return echo.NewHTTPError(http.StatusNotFound, "insights not found")
	case errors.Is(err, session.ErrInvalidTransition):
		return echo.NewHTTPError(http.StatusConflict, err.Error())
	default:
		return echo.NewHTTPError(http.StatusBadGateway, err.Error())
	}
}

// Approve records the user's approval of the reviewed documents and
// triggers insight generation for the session's preferences.
func (h *Handler) Approve(c echo.Context) error {
	uid, err := userID(c)
	if err != nil {
		return err
	}
	id, err := sessionID(c)
	if err != nil {
		return err
	}
	var body struct {
		Feedback *string `json:"feedback"`
	}
	if err := c.Bind(&body); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	row, err := h.svc.GenerateInsights(c.Request().Context(), uid, id, body.Feedback)
	if err != nil {
		return mapErr(err)
	}
	return c.JSON(http.StatusOK, row)
}

func (h *Handler) GetInsights(c echo.Context) error {
	uid, err := userID(c)
	if err != nil {
		return err
	}
	id, err := sessionID(c)
	if err != nil {
		return err
	}
	tone := c.QueryParam("tone")
	lang := c.QueryParam("language_level")
	if tone == "" || lang == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "tone and language_level are required")
	}
	row, err := h.svc.GetInsights(c.Request().Context(), uid, id, tone, lang)
	if err != nil {
		return mapErr(err)
	}
	return c.JSON(http.StatusOK, row)
}

func (h *Handler) GetReport(c echo.Context) error {
	uid, err := userID(c)
	if err != nil {
		return err
	}
	id, err := sessionID(c)
	if err != nil {
		return err
	}
	var body struct {
		IncludeDoctorQuestions bool `json:"include_doctor_questions"`
	}
	if err := c.Bind(&body); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	dl, err := h.svc.GetReport(c.Request().Context(), uid, id, body.IncludeDoctorQuestions)
	if err != nil {
		return mapErr(err)
	}
	return c.JSON(http.StatusOK, dl)
}

func (h *Handler) ListReports(c echo.Context) error {
	uid, err := userID(c)
	if err != nil {
		return err
	}
	id, err := sessionID(c)
	if err != nil {
		return err
	}
	reports, err := h.svc.ListReports(c.Request().Context(), uid, id)
	if err != nil {
		return mapErr(err)
	}
	if reports == nil {
		reports = []*Report{}
	}
	return c.JSON(http.StatusOK, map[string]interface{}{"reports": reports})
}
