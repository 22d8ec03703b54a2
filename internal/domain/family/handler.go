package family

import (
	"errors"
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/healthrec/healthrec/internal/platform/auth"
	"github.com/healthrec/healthrec/pkg/pagination"
)

// Handler provides HTTP handlers for the family domain.
type Handler struct {
	svc *Service
}

// NewHandler creates a new family domain handler.
func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

// RegisterRoutes registers all family domain routes.
func (h *Handler) RegisterRoutes(api *echo.Group) {
	api.POST("/family-members", h.CreateFamilyMember)
	api.GET("/family-members", h.ListFamilyMembers)
	api.GET("/family-members/:id", h.GetFamilyMember)
	api.PUT("/family-members/:id", h.UpdateFamilyMember)
	api.DELETE("/family-members/:id", h.DeleteFamilyMember)

	api.POST("/family-patterns/analyze", h.AnalyzePatterns)
	api.GET("/family-patterns", h.ListPatterns)
}

func userID(c echo.Context) (string, error) {
	uid := auth.UserIDFromContext(c.Request().Context())
	if uid == "" {
		return "", echo.NewHTTPError(http.StatusUnauthorized, "not authenticated")
	}
	return uid, nil
}

func (h *Handler) CreateFamilyMember(c echo.Context) error {
	uid, err := userID(c)
	if err != nil {
		return err
	}
	var m FamilyMember
	if err := c.Bind(&m); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	m.UserID = uid
	if err := h.svc.CreateFamilyMember(c.Request().Context(), &m); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return c.JSON(http.StatusCreated, m)
}

func (h *Handler) GetFamilyMember(c echo.Context) error {
	uid, err := userID(c)
	if err != nil {
		return err
	}
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	m, err := h.svc.GetFamilyMember(c.Request().Context(), uid, id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return echo.NewHTTPError(http.StatusNotFound, "family member not found")
		}
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, m)
}

func (h *Handler) UpdateFamilyMember(c echo.Context) error {
	uid, err := userID(c)
	if err != nil {
		return err
	}
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	var m FamilyMember
	if err := c.Bind(&m); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	m.ID = id
	m.UserID = uid
	if err := h.svc.UpdateFamilyMember(c.Request().Context(), &m); err != nil {
		if errors.Is(err, ErrNotFound) {
			return echo.NewHTTPError(http.StatusNotFound, "family member not found")
		}
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return c.JSON(http.StatusOK, m)
}

func (h *Handler) DeleteFamilyMember(c echo.Context) error {
	uid, err := userID(c)
	if err != nil {
		return err
	}
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	if err := h.svc.DeleteFamilyMember(c.Request().Context(), uid, id); err != nil {
		if errors.Is(err, ErrNotFound) {
			return echo.NewHTTPError(http.StatusNotFound, "family member not found")
		}
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.NoContent(http.StatusNoContent)
}

func (h *Handler) ListFamilyMembers(c echo.Context) error {
	uid, err := userID(c)
	if err != nil {
		return err
	}
	p := pagination.FromContext(c)
	members, total, err := h.svc.ListFamilyMembers(c.Request().Context(), uid, p.Limit, p.Offset)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	if members == nil {
		members = []*FamilyMember{}
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(members, total, p.Limit, p.Offset))
}

func (h *Handler) AnalyzePatterns(c echo.Context) error {
	uid, err := userID(c)
	if err != nil {
		return err
	}
	patterns, err := h.svc.AnalyzePatterns(c.Request().Context(), uid)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	if patterns == nil {
		patterns = []*FamilyPattern{}
	}
	return c.JSON(http.StatusOK, map[string]interface{}{"patterns": patterns})
}

func (h *Handler) ListPatterns(c echo.Context) error {
	uid, err := userID(c)
	if err != nil {
		return err
	}
	patterns, err := h.svc.ListPatterns(c.Request().Context(), uid)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	if patterns == nil {
		patterns = []*FamilyPattern{}
	}
	return c.JSON(http.StatusOK, map[string]interface{}{"patterns": patterns})
}
