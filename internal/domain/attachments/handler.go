package attachments

import (
	"errors"
	"io"
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/hms/hms/internal/domain/encounter"
	"github.com/hms/hms/internal/platform/auth"
	"github.com/hms/hms/internal/platform/filestore"
	"github.com/hms/hms/pkg/pagination"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	g := api.Group("", auth.RequireRole("admin", "physician", "nurse"))

	g.POST("/attachments/stage", h.Stage)
	g.GET("/attachments/staged", h.ListStaged)
	g.DELETE("/attachments/stage/:id", h.Unstage)
	g.POST("/attachments/commit", h.Commit)

	g.GET("/attachments", h.List)
	g.GET("/attachments/:id/download", h.Download)
	g.DELETE("/attachments/:id", h.Delete)
}

// sessionKey scopes staging queues. Clients carry a workspace session id;
// without one the queue is per user.
func sessionKey(c echo.Context) string {
	if sid := c.Request().Header.Get("X-Session-ID"); sid != "" {
		return sid
	}
	return auth.UserIDFromContext(c.Request().Context())
}

func stagingError(err error) error {
	switch {
	case errors.Is(err, filestore.ErrFileTooLarge),
		errors.Is(err, filestore.ErrInvalidContentType),
		errors.Is(err, filestore.ErrMissingFileName):
		return echo.NewHTTPError(http.StatusUnprocessableEntity, err.Error())
	default:
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
}

func (h *Handler) Stage(c echo.Context) error {
	fh, err := c.FormFile("file")
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "file is required")
	}
	src, err := fh.Open()
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	defer src.Close()

	content, err := io.ReadAll(src)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	contentType := fh.Header.Get("Content-Type")
	staged, err := h.svc.QueueFor(sessionKey(c)).Stage(fh.Filename, contentType, c.FormValue("description"), content)
	if err != nil {
		return stagingError(err)
	}
	return c.JSON(http.StatusCreated, staged)
}

func (h *Handler) ListStaged(c echo.Context) error {
	return c.JSON(http.StatusOK, h.svc.QueueFor(sessionKey(c)).List())
}

func (h *Handler) Unstage(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	if !h.svc.QueueFor(sessionKey(c)).Unstage(id) {
		return echo.NewHTTPError(http.StatusNotFound, "staged file not found")
	}
	return c.NoContent(http.StatusNoContent)
}

type commitRequest struct {
	EncounterType string    `json:"encounter_type"`
	ObjectID      uuid.UUID `json:"object_id"`
}

func (h *Handler) Commit(c echo.Context) error {
	var req commitRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	kind, err := encounter.ParseKind(req.EncounterType)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	var uploadedBy *uuid.UUID
	if raw := auth.UserIDFromContext(c.Request().Context()); raw != "" {
		if uid, err := uuid.Parse(raw); err == nil {
			uploadedBy = &uid
		}
	}

	ref := encounter.Ref{Kind: kind, ObjectID: req.ObjectID}
	result, err := h.svc.CommitAll(c.Request().Context(), sessionKey(c), ref, uploadedBy)
	if err != nil {
		return echo.NewHTTPError(http.StatusUnprocessableEntity, err.Error())
	}
	return c.JSON(http.StatusOK, result)
}

func (h *Handler) List(c echo.Context) error {
	kind, err := encounter.ParseKind(c.QueryParam("encounter_type"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	objectID, err := uuid.Parse(c.QueryParam("object_id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid object_id")
	}
	pg := pagination.FromContext(c)

	ref := encounter.Ref{Kind: kind, ObjectID: objectID}
	atts, total, err := h.svc.ListByEncounter(c.Request().Context(), ref, pg.Limit, pg.Offset)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(atts, total, pg.Limit, pg.Offset))
}

func (h *Handler) Download(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	att, err := h.svc.Get(c.Request().Context(), id)
	if err != nil {
		return echo.NewHTTPError(http.StatusNotFound, "attachment not found")
	}
	rc, meta, err := h.svc.store.Get(c.Request().Context(), lastSegment(att.FileURL))
	if err != nil {
		return echo.NewHTTPError(http.StatusNotFound, "file content not found")
	}
	defer rc.Close()

	c.Response().Header().Set("Content-Disposition", `attachment; filename="`+att.FileName+`"`)
	return c.Stream(http.StatusOK, meta.ContentType, rc)
}

func (h *Handler) Delete(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	if err := h.svc.Delete(c.Request().Context(), id); err != nil {
		if errors.Is(err, ErrNotFound) {
			return echo.NewHTTPError(http.StatusNotFound, "attachment not found")
		}
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.NoContent(http.StatusNoContent)
}
