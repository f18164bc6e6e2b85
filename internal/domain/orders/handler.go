package orders

import (
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
	g := api.Group("", auth.RequireRole("admin", "physician", "nurse"))

	// Draft builder, scoped to the workspace session.
	g.GET("/orders/draft", h.DraftState)
	g.POST("/orders/draft/type", h.SelectType)
	g.POST("/orders/draft/items", h.AddItem)
	g.PUT("/orders/draft/items/:local_id", h.UpdateItem)
	g.DELETE("/orders/draft/items/:local_id", h.RemoveItem)
	g.PUT("/orders/draft/search", h.SetSearch)
	g.PUT("/orders/draft/priority", h.SetPriority)
	g.PUT("/orders/draft/notes", h.SetClinicalNotes)
	g.POST("/orders/draft/submit", h.Submit)

	g.GET("/requisitions", h.ListRequisitions)
	g.GET("/requisitions/summary", h.Summary)
	g.GET("/requisitions/:id", h.GetRequisition)
	g.GET("/requisitions/:id/orders", h.ListOrders)
	g.PUT("/requisitions/:id/status", h.UpdateStatus)

	g.GET("/order-catalog", h.SearchCatalog)
	api.POST("/order-catalog", h.CreateCatalogItem, auth.RequireRole("admin"))
}

// sessionKey scopes draft builders. Clients carry a workspace session id;
// without one the draft is per user.
func sessionKey(c echo.Context) string {
	if sid := c.Request().Header.Get("X-Session-ID"); sid != "" {
		return sid
	}
	return auth.UserIDFromContext(c.Request().Context())
}

func (h *Handler) DraftState(c echo.Context) error {
	return c.JSON(http.StatusOK, h.svc.BuilderFor(sessionKey(c)).Snapshot())
}

type selectTypeRequest struct {
	Kind string `json:"kind"`
}

func (h *Handler) SelectType(c echo.Context) error {
	var req selectTypeRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	kind, err := ParseKind(req.Kind)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	b := h.svc.BuilderFor(sessionKey(c))
	b.SelectType(kind)
	return c.JSON(http.StatusOK, b.Snapshot())
}

type addItemRequest struct {
	ItemID uuid.UUID `json:"item_id"`
}

func (h *Handler) AddItem(c echo.Context) error {
	var req addItemRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	item, err := h.svc.GetCatalogItem(c.Request().Context(), req.ItemID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return echo.NewHTTPError(http.StatusNotFound, "catalog item not found")
		}
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	b := h.svc.BuilderFor(sessionKey(c))
	if item.Kind != b.Kind() {
		return echo.NewHTTPError(http.StatusUnprocessableEntity, "catalog item does not match the selected requisition type")
	}
	d := b.AddItem(*item)
	return c.JSON(http.StatusCreated, d)
}

type updateItemRequest struct {
	Quantity *int    `json:"quantity,omitempty"`
	Notes    *string `json:"notes,omitempty"`
}

func (h *Handler) UpdateItem(c echo.Context) error {
	localID, err := uuid.Parse(c.Param("local_id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid item id")
	}
	var req updateItemRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	b := h.svc.BuilderFor(sessionKey(c))
	found := false
	if req.Quantity != nil {
		found = b.SetQuantity(localID, *req.Quantity) || found
	}
	if req.Notes != nil {
		found = b.SetNotes(localID, *req.Notes) || found
	}
	if !found {
		return echo.NewHTTPError(http.StatusNotFound, "draft item not found")
	}
	return c.JSON(http.StatusOK, b.Snapshot())
}

func (h *Handler) RemoveItem(c echo.Context) error {
	localID, err := uuid.Parse(c.Param("local_id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid item id")
	}
	b := h.svc.BuilderFor(sessionKey(c))
	if !b.RemoveItem(localID) {
		return echo.NewHTTPError(http.StatusNotFound, "draft item not found")
	}
	return c.JSON(http.StatusOK, b.Snapshot())
}

type setSearchRequest struct {
	Query string `json:"query"`
}

func (h *Handler) SetSearch(c echo.Context) error {
	var req setSearchRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	b := h.svc.BuilderFor(sessionKey(c))
	b.SetSearch(req.Query)

	items, err := h.svc.SearchCatalog(c.Request().Context(), b.Kind(), req.Query, 20)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, items)
}

type setPriorityRequest struct {
	Priority string `json:"priority"`
}

func (h *Handler) SetPriority(c echo.Context) error {
	var req setPriorityRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	b := h.svc.BuilderFor(sessionKey(c))
	if !b.SetPriority(req.Priority) {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid priority")
	}
	return c.JSON(http.StatusOK, b.Snapshot())
}

type setNotesRequest struct {
	Notes string `json:"notes"`
}

func (h *Handler) SetClinicalNotes(c echo.Context) error {
	var req setNotesRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	b := h.svc.BuilderFor(sessionKey(c))
	b.SetClinicalNotes(req.Notes)
	return c.JSON(http.StatusOK, b.Snapshot())
}

type submitRequest struct {
	PatientID          uuid.UUID `json:"patient_id"`
	RequestingDoctorID uuid.UUID `json:"requesting_doctor_id"`
	EncounterType      string    `json:"encounter_type"`
	ObjectID           uuid.UUID `json:"object_id"`
}

func (h *Handler) Submit(c echo.Context) error {
	var req submitRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	kind, err := encounter.ParseKind(req.EncounterType)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	requisition, err := h.svc.Submit(c.Request().Context(), sessionKey(c), SubmitParams{
		PatientID:          req.PatientID,
		RequestingDoctorID: req.RequestingDoctorID,
		Ref:                encounter.Ref{Kind: kind, ObjectID: req.ObjectID},
	})
	if err != nil {
		var partial *PartialSubmitError
		switch {
		case errors.As(err, &partial):
			// The requisition exists; the client needs its id and the
			// item counts to recover.
			return c.JSON(http.StatusMultiStatus, map[string]interface{}{
				"requisition_id": partial.RequisitionID,
				"attempted":      partial.Attempted,
				"succeeded":      partial.Succeeded,
				"error":          partial.Err.Error(),
			})
		case errors.Is(err, ErrNoItems),
			errors.Is(err, ErrNoRequestingDoctor),
			errors.Is(err, ErrNoEncounter):
			return echo.NewHTTPError(http.StatusUnprocessableEntity, err.Error())
		default:
			return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
		}
	}
	return c.JSON(http.StatusCreated, requisition)
}

func (h *Handler) ListRequisitions(c echo.Context) error {
	var f RequisitionFilter
	if raw := c.QueryParam("encounter_type"); raw != "" {
		kind, err := encounter.ParseKind(raw)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, err.Error())
		}
		objectID, err := uuid.Parse(c.QueryParam("object_id"))
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "invalid object_id")
		}
		f.Ref = &encounter.Ref{Kind: kind, ObjectID: objectID}
	}
	if raw := c.QueryParam("type"); raw != "" {
		kind, err := ParseKind(raw)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, err.Error())
		}
		f.Kind = &kind
	}
	pg := pagination.FromContext(c)

	reqs, total, err := h.svc.ListRequisitions(c.Request().Context(), f, pg.Limit, pg.Offset)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(reqs, total, pg.Limit, pg.Offset))
}

// Summary returns cached requisition counts for the dashboard widgets.
func (h *Handler) Summary(c echo.Context) error {
	ctx := c.Request().Context()
	out := map[string]interface{}{}

	total, err := h.svc.CountAll(ctx)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	out["total"] = total

	if raw := c.QueryParam("encounter_type"); raw != "" {
		kind, err := encounter.ParseKind(raw)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, err.Error())
		}
		objectID, err := uuid.Parse(c.QueryParam("object_id"))
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "invalid object_id")
		}
		n, err := h.svc.CountByEncounter(ctx, encounter.Ref{Kind: kind, ObjectID: objectID})
		if err != nil {
			return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
		}
		out["encounter"] = n
	}
	if raw := c.QueryParam("type"); raw != "" {
		kind, err := ParseKind(raw)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, err.Error())
		}
		n, err := h.svc.CountByKind(ctx, kind)
		if err != nil {
			return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
		}
		out["type"] = n
	}
	return c.JSON(http.StatusOK, out)
}

func (h *Handler) GetRequisition(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	req, err := h.svc.GetRequisition(c.Request().Context(), id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return echo.NewHTTPError(http.StatusNotFound, "requisition not found")
		}
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, req)
}

func (h *Handler) ListOrders(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	orders, err := h.svc.Orders(c.Request().Context(), id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return echo.NewHTTPError(http.StatusNotFound, "requisition not found")
		}
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, orders)
}

type updateStatusRequest struct {
	Status string `json:"status"`
}

func (h *Handler) UpdateStatus(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	var req updateStatusRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if err := h.svc.UpdateStatus(c.Request().Context(), id, req.Status); err != nil {
		if errors.Is(err, ErrNotFound) {
			return echo.NewHTTPError(http.StatusNotFound, "requisition not found")
		}
		return echo.NewHTTPError(http.StatusUnprocessableEntity, err.Error())
	}
	return c.NoContent(http.StatusNoContent)
}

func (h *Handler) SearchCatalog(c echo.Context) error {
	kind, err := ParseKind(c.QueryParam("kind"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	items, err := h.svc.SearchCatalog(c.Request().Context(), kind, c.QueryParam("q"), 20)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, items)
}

type createCatalogItemRequest struct {
	Kind      string   `json:"kind"`
	Name      string   `json:"name"`
	Code      *string  `json:"code,omitempty"`
	UnitPrice *float64 `json:"unit_price,omitempty"`
}

func (h *Handler) CreateCatalogItem(c echo.Context) error {
	var req createCatalogItemRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	item := &CatalogItem{
		Kind:      Kind(req.Kind),
		Name:      req.Name,
		Code:      req.Code,
		UnitPrice: req.UnitPrice,
	}
	if err := h.svc.CreateCatalogItem(c.Request().Context(), item); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return c.JSON(http.StatusCreated, item)
}
