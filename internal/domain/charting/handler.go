package charting

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/hms/hms/internal/domain/encounter"
	"github.com/hms/hms/internal/platform/auth"
	"github.com/hms/hms/pkg/pagination"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	read := api.Group("", auth.RequireRole("admin", "physician", "nurse"))
	read.GET("/chart-templates", h.ListTemplates)
	read.GET("/chart-templates/:id", h.GetTemplate)
	read.GET("/responses", h.ListResponses)
	read.GET("/responses/:id", h.GetResponse)
	read.GET("/responses/:id/values", h.LoadFieldValues)
	read.GET("/chart-templates/:id/response-templates", h.ListResponseTemplates)

	write := api.Group("", auth.RequireRole("admin", "physician", "nurse"))
	write.POST("/chart-templates", h.CreateTemplate)
	write.PUT("/chart-templates/:id", h.UpdateTemplate)
	write.DELETE("/chart-templates/:id", h.DeactivateTemplate)
	write.POST("/responses", h.CreateResponse)
	write.POST("/responses/open", h.OpenTemplate)
	write.PUT("/responses/:id/values", h.SaveFields)
	write.PUT("/responses/:id/canvas", h.SaveCanvas)
	write.POST("/responses/:id/complete", h.Complete)
	write.POST("/responses/:id/review", h.Review)
	write.DELETE("/responses/:id/review", h.Unreview)
	write.POST("/responses/:id/archive", h.Archive)
	write.POST("/responses/:id/save-as-template", h.SaveAsTemplate)
	write.POST("/responses/:id/apply-template", h.ApplyTemplate)
}

// refFromQuery reads the encounter scope from query parameters.
func refFromQuery(c echo.Context) (encounter.Ref, error) {
	kind, err := encounter.ParseKind(c.QueryParam("encounter_type"))
	if err != nil {
		return encounter.Ref{}, err
	}
	objectID, err := uuid.Parse(c.QueryParam("object_id"))
	if err != nil {
		return encounter.Ref{}, errors.New("invalid object_id")
	}
	return encounter.Ref{Kind: kind, ObjectID: objectID}, nil
}

func httpError(err error) error {
	switch {
	case errors.Is(err, ErrNotFound):
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	case errors.Is(err, ErrNoEncounter),
		errors.Is(err, ErrEmptyTemplateName),
		errors.Is(err, ErrTemplateMismatch),
		errors.Is(err, ErrArchived):
		return echo.NewHTTPError(http.StatusUnprocessableEntity, err.Error())
	default:
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
}

func (h *Handler) CreateTemplate(c echo.Context) error {
	var t Template
	if err := c.Bind(&t); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if err := h.svc.CreateTemplate(c.Request().Context(), &t); err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusCreated, t)
}

func (h *Handler) GetTemplate(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	t, err := h.svc.GetTemplate(c.Request().Context(), id)
	if err != nil {
		return echo.NewHTTPError(http.StatusNotFound, "template not found")
	}
	return c.JSON(http.StatusOK, t)
}

func (h *Handler) ListTemplates(c echo.Context) error {
	pg := pagination.FromContext(c)
	tmpls, total, err := h.svc.ListTemplates(c.Request().Context(), pg.Limit, pg.Offset)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(tmpls, total, pg.Limit, pg.Offset))
}

func (h *Handler) UpdateTemplate(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	var t Template
	if err := c.Bind(&t); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	t.ID = id
	if err := h.svc.UpdateTemplate(c.Request().Context(), &t); err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, t)
}

func (h *Handler) DeactivateTemplate(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	if err := h.svc.DeactivateTemplate(c.Request().Context(), id); err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.NoContent(http.StatusNoContent)
}

type createResponseRequest struct {
	TemplateID    uuid.UUID `json:"template_id"`
	EncounterType string    `json:"encounter_type"`
	ObjectID      uuid.UUID `json:"object_id"`
	SwitchReason  *string   `json:"doctor_switch_reason,omitempty"`
}

func (h *Handler) CreateResponse(c echo.Context) error {
	var req createResponseRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	kind, err := encounter.ParseKind(req.EncounterType)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	userID, err := currentUser(c)
	if err != nil {
		return err
	}
	ref := encounter.Ref{Kind: kind, ObjectID: req.ObjectID}
	resp, err := h.svc.CreateResponse(c.Request().Context(), ref, req.TemplateID, userID, req.SwitchReason)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusCreated, resp)
}

type openTemplateRequest struct {
	TemplateID    uuid.UUID `json:"template_id"`
	EncounterType string    `json:"encounter_type"`
	ObjectID      uuid.UUID `json:"object_id"`
}

func (h *Handler) OpenTemplate(c echo.Context) error {
	var req openTemplateRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	kind, err := encounter.ParseKind(req.EncounterType)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	userID, err := currentUser(c)
	if err != nil {
		return err
	}
	ref := encounter.Ref{Kind: kind, ObjectID: req.ObjectID}
	result, err := h.svc.OpenTemplate(c.Request().Context(), ref, req.TemplateID, userID)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, result)
}

func (h *Handler) GetResponse(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	resp, err := h.svc.GetResponse(c.Request().Context(), id)
	if err != nil {
		return echo.NewHTTPError(http.StatusNotFound, "response not found")
	}
	return c.JSON(http.StatusOK, resp)
}

func (h *Handler) ListResponses(c echo.Context) error {
	pg := pagination.FromContext(c)
	var filter ResponseFilter

	if c.QueryParam("encounter_type") != "" || c.QueryParam("object_id") != "" {
		ref, err := refFromQuery(c)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, err.Error())
		}
		filter.Ref = &ref
	}
	if tid := c.QueryParam("template_id"); tid != "" {
		id, err := uuid.Parse(tid)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "invalid template_id")
		}
		filter.TemplateID = &id
	}

	resps, total, err := h.svc.ListResponses(c.Request().Context(), filter, pg.Limit, pg.Offset)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(resps, total, pg.Limit, pg.Offset))
}

func (h *Handler) LoadFieldValues(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	payload, err := h.svc.LoadFieldValues(c.Request().Context(), id)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, payload)
}

func (h *Handler) SaveFields(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	var raw map[string]interface{}
	if err := c.Bind(&raw); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	values := make(map[uuid.UUID]interface{}, len(raw))
	for k, v := range raw {
		fid, err := uuid.Parse(k)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "invalid field id: "+k)
		}
		values[fid] = v
	}
	if err := h.svc.SaveFields(c.Request().Context(), id, values); err != nil {
		return httpError(err)
	}
	return c.NoContent(http.StatusNoContent)
}

func (h *Handler) SaveCanvas(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	var canvas json.RawMessage
	if err := c.Bind(&canvas); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if err := h.svc.SaveCanvas(c.Request().Context(), id, canvas); err != nil {
		return httpError(err)
	}
	return c.NoContent(http.StatusNoContent)
}

func (h *Handler) Complete(c echo.Context) error {
	return h.transition(c, h.svc.Complete)
}

func (h *Handler) Archive(c echo.Context) error {
	return h.transition(c, h.svc.Archive)
}

func (h *Handler) Unreview(c echo.Context) error {
	return h.transition(c, h.svc.Unreview)
}

func (h *Handler) transition(c echo.Context, fn func(ctx context.Context, id uuid.UUID) error) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	if err := fn(c.Request().Context(), id); err != nil {
		return httpError(err)
	}
	return c.NoContent(http.StatusNoContent)
}

func (h *Handler) Review(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	reviewerID, err := currentUser(c)
	if err != nil {
		return err
	}
	if err := h.svc.Review(c.Request().Context(), id, reviewerID); err != nil {
		return httpError(err)
	}
	return c.NoContent(http.StatusNoContent)
}

type saveAsTemplateRequest struct {
	Name     string `json:"name"`
	IsPublic bool   `json:"is_public"`
}

func (h *Handler) SaveAsTemplate(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	var req saveAsTemplateRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	userID, err := currentUser(c)
	if err != nil {
		return err
	}
	rt, err := h.svc.SaveAsTemplate(c.Request().Context(), id, req.Name, req.IsPublic, userID)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusCreated, rt)
}

type applyTemplateRequest struct {
	ResponseTemplateID uuid.UUID `json:"response_template_id"`
}

func (h *Handler) ApplyTemplate(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	var req applyTemplateRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if err := h.svc.ApplyTemplate(c.Request().Context(), id, req.ResponseTemplateID); err != nil {
		return httpError(err)
	}
	return c.NoContent(http.StatusNoContent)
}

func (h *Handler) ListResponseTemplates(c echo.Context) error {
	templateID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	userID, err := currentUser(c)
	if err != nil {
		return err
	}
	rts, err := h.svc.ListResponseTemplates(c.Request().Context(), templateID, userID)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, rts)
}

// currentUser resolves the authenticated user id from the request context.
func currentUser(c echo.Context) (uuid.UUID, error) {
	raw := auth.UserIDFromContext(c.Request().Context())
	if raw == "" {
		return uuid.Nil, echo.NewHTTPError(http.StatusUnauthorized, "no authenticated user")
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		// Dev tokens carry non-uuid subjects; derive a stable id.
		return uuid.NewSHA1(uuid.NameSpaceOID, []byte(raw)), nil
	}
	return id, nil
}
