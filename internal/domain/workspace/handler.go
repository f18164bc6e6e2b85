package workspace

import (
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/hms/hms/internal/domain/charting"
	"github.com/hms/hms/internal/domain/encounter"
	"github.com/hms/hms/internal/platform/auth"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	g := api.Group("", auth.RequireRole("admin", "physician", "nurse"))

	g.POST("/workspace", h.Open)
	g.GET("/workspace/:id", h.Get)
	g.DELETE("/workspace/:id", h.Close)
	g.POST("/workspace/:id/encounter", h.SwitchEncounter)
	g.GET("/workspace/:id/encounter", h.Ref)
	g.PUT("/workspace/:id/active-response", h.SetActiveResponse)
	g.GET("/workspace/:id/active-response", h.ActiveResponse)
	g.PUT("/workspace/:id/tab", h.SetActiveTab)
	g.POST("/workspace/:id/follow-up", h.ScheduleFollowUp)
	g.POST("/workspace/:id/notify", h.Notify)
}

func sessionID(c echo.Context) (uuid.UUID, error) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return uuid.Nil, echo.NewHTTPError(http.StatusBadRequest, "invalid session id")
	}
	return id, nil
}

func httpError(err error) error {
	switch {
	case errors.Is(err, ErrSessionNotFound):
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	case errors.Is(err, encounter.ErrNotFound), errors.Is(err, charting.ErrNotFound):
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	case errors.Is(err, ErrAdmissionUnavailable):
		return echo.NewHTTPError(http.StatusUnprocessableEntity, err.Error())
	default:
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
}

type openRequest struct {
	VisitID uuid.UUID `json:"visit_id"`
}

func (h *Handler) Open(c echo.Context) error {
	var req openRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	sess, err := h.svc.Open(c.Request().Context(), req.VisitID)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusCreated, sess)
}

func (h *Handler) Get(c echo.Context) error {
	id, err := sessionID(c)
	if err != nil {
		return err
	}
	sess, err := h.svc.Get(c.Request().Context(), id)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, sess)
}

func (h *Handler) Close(c echo.Context) error {
	id, err := sessionID(c)
	if err != nil {
		return err
	}
	if err := h.svc.Close(id); err != nil {
		return httpError(err)
	}
	return c.NoContent(http.StatusNoContent)
}

type switchEncounterRequest struct {
	Kind string `json:"encounter_type"`
}

func (h *Handler) SwitchEncounter(c echo.Context) error {
	id, err := sessionID(c)
	if err != nil {
		return err
	}
	var req switchEncounterRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	kind, err := encounter.ParseKind(req.Kind)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	sess, err := h.svc.SwitchEncounter(c.Request().Context(), id, kind)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, sess)
}

func (h *Handler) Ref(c echo.Context) error {
	id, err := sessionID(c)
	if err != nil {
		return err
	}
	ref, err := h.svc.Ref(c.Request().Context(), id)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, ref)
}

type setActiveResponseRequest struct {
	ResponseID *uuid.UUID `json:"response_id"`
}

func (h *Handler) SetActiveResponse(c echo.Context) error {
	id, err := sessionID(c)
	if err != nil {
		return err
	}
	var req setActiveResponseRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	sess, err := h.svc.SetActiveResponse(c.Request().Context(), id, req.ResponseID)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, sess)
}

func (h *Handler) ActiveResponse(c echo.Context) error {
	id, err := sessionID(c)
	if err != nil {
		return err
	}
	resp, err := h.svc.ActiveResponse(c.Request().Context(), id)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, map[string]interface{}{"response": resp})
}

type setTabRequest struct {
	Tab string `json:"tab"`
}

func (h *Handler) SetActiveTab(c echo.Context) error {
	id, err := sessionID(c)
	if err != nil {
		return err
	}
	var req setTabRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	sess, err := h.svc.SetActiveTab(id, req.Tab)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, sess)
}

type followUpRequest struct {
	ScheduledFor time.Time `json:"scheduled_for"`
	Reason       string    `json:"reason"`
}

func (h *Handler) ScheduleFollowUp(c echo.Context) error {
	id, err := sessionID(c)
	if err != nil {
		return err
	}
	var req followUpRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	fu, err := h.svc.ScheduleFollowUp(c.Request().Context(), id, req.ScheduledFor, req.Reason)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusCreated, fu)
}

type notifyRequest struct {
	Message string `json:"message"`
}

func (h *Handler) Notify(c echo.Context) error {
	id, err := sessionID(c)
	if err != nil {
		return err
	}
	var req notifyRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if err := h.svc.Notify(c.Request().Context(), id, req.Message); err != nil {
		return httpError(err)
	}
	return c.NoContent(http.StatusAccepted)
}
