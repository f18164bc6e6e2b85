package orders

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/hms/hms/internal/platform/auth"
)

func authedContext(e *echo.Echo, method, path, body string) (echo.Context, *httptest.ResponseRecorder) {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	}
	req.Header.Set("X-Session-ID", "test-session")
	ctx := context.WithValue(req.Context(), auth.UserIDKey, uuid.New().String())
	req = req.WithContext(ctx)
	rec := httptest.NewRecorder()
	return e.NewContext(req, rec), rec
}

func TestAddItemHandlerKindMismatch(t *testing.T) {
	repo := newMockRepo()
	svc := NewService(repo)
	h := NewHandler(svc)
	e := echo.New()

	// Builder defaults to investigation; the item is a medicine.
	item := seedCatalogItem(t, repo, KindMedicine, "Amoxicillin", 12.50)
	c, _ := authedContext(e, http.MethodPost, "/orders/draft/items", `{"item_id":"`+item.ID.String()+`"}`)

	err := h.AddItem(c)
	he, ok := err.(*echo.HTTPError)
	if !ok || he.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422, got %v", err)
	}
}

func TestAddItemHandlerUnknownItem(t *testing.T) {
	h := NewHandler(NewService(newMockRepo()))
	e := echo.New()

	c, _ := authedContext(e, http.MethodPost, "/orders/draft/items", `{"item_id":"`+uuid.New().String()+`"}`)

	err := h.AddItem(c)
	he, ok := err.(*echo.HTTPError)
	if !ok || he.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %v", err)
	}
}

func TestSubmitHandlerEmptyDraft(t *testing.T) {
	h := NewHandler(NewService(newMockRepo()))
	e := echo.New()

	body := `{"patient_id":"` + uuid.New().String() + `","requesting_doctor_id":"` + uuid.New().String() +
		`","encounter_type":"visit","object_id":"` + uuid.New().String() + `"}`
	c, _ := authedContext(e, http.MethodPost, "/orders/draft/submit", body)

	err := h.Submit(c)
	he, ok := err.(*echo.HTTPError)
	if !ok || he.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422, got %v", err)
	}
}

func TestSubmitHandlerPartialFailureReportsProgress(t *testing.T) {
	repo := newMockRepo()
	repo.failItemNamed = "Paracetamol"
	svc := NewService(repo)
	h := NewHandler(svc)
	e := echo.New()

	b := svc.BuilderFor("test-session")
	b.SelectType(KindMedicine)
	b.AddItem(*seedCatalogItem(t, repo, KindMedicine, "Amoxicillin", 12.50))
	b.AddItem(*seedCatalogItem(t, repo, KindMedicine, "Paracetamol", 2))

	body := `{"patient_id":"` + uuid.New().String() + `","requesting_doctor_id":"` + uuid.New().String() +
		`","encounter_type":"visit","object_id":"` + uuid.New().String() + `"}`
	c, rec := authedContext(e, http.MethodPost, "/orders/draft/submit", body)

	if err := h.Submit(c); err != nil {
		t.Fatalf("Submit handler: %v", err)
	}
	if rec.Code != http.StatusMultiStatus {
		t.Fatalf("expected 207, got %d", rec.Code)
	}

	var out struct {
		RequisitionID uuid.UUID `json:"requisition_id"`
		Attempted     int       `json:"attempted"`
		Succeeded     int       `json:"succeeded"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if out.RequisitionID == uuid.Nil {
		t.Fatal("partial failure must report the requisition id")
	}
	if out.Attempted != 2 || out.Succeeded != 1 {
		t.Fatalf("expected 1 of 2, got %d of %d", out.Succeeded, out.Attempted)
	}
}

func TestSubmitHandlerSuccess(t *testing.T) {
	repo := newMockRepo()
	svc := NewService(repo)
	h := NewHandler(svc)
	e := echo.New()

	b := svc.BuilderFor("test-session")
	b.AddItem(*seedCatalogItem(t, repo, KindInvestigation, "CBC", 0))

	body := `{"patient_id":"` + uuid.New().String() + `","requesting_doctor_id":"` + uuid.New().String() +
		`","encounter_type":"visit","object_id":"` + uuid.New().String() + `"}`
	c, rec := authedContext(e, http.MethodPost, "/orders/draft/submit", body)

	if err := h.Submit(c); err != nil {
		t.Fatalf("Submit handler: %v", err)
	}
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d", rec.Code)
	}
	var req Requisition
	if err := json.Unmarshal(rec.Body.Bytes(), &req); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if req.Type != KindInvestigation {
		t.Fatalf("expected %s requisition, got %s", KindInvestigation, req.Type)
	}
}

func TestSearchCatalogHandlerRequiresKind(t *testing.T) {
	h := NewHandler(NewService(newMockRepo()))
	e := echo.New()

	c, _ := authedContext(e, http.MethodGet, "/order-catalog?q=amox", "")

	err := h.SearchCatalog(c)
	he, ok := err.(*echo.HTTPError)
	if !ok || he.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %v", err)
	}
}
