package charting

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
	ctx := context.WithValue(req.Context(), auth.UserIDKey, uuid.New().String())
	req = req.WithContext(ctx)
	rec := httptest.NewRecorder()
	return e.NewContext(req, rec), rec
}

func TestOpenTemplateHandlerAutoCreate(t *testing.T) {
	repo := newMockRepo()
	svc := NewService(repo)
	h := NewHandler(svc)
	e := echo.New()

	tmpl := testTemplate(t, svc, fieldOf(FieldText))
	body := `{"template_id":"` + tmpl.ID.String() + `","encounter_type":"visit","object_id":"` + uuid.New().String() + `"}`
	c, rec := authedContext(e, http.MethodPost, "/responses/open", body)

	if err := h.OpenTemplate(c); err != nil {
		t.Fatalf("OpenTemplate: %v", err)
	}
	var result OpenResult
	if err := json.Unmarshal(rec.Body.Bytes(), &result); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if !result.AutoCreated {
		t.Error("expected auto-created response")
	}
}

func TestSaveFieldsHandlerRejectsBadFieldID(t *testing.T) {
	h := NewHandler(NewService(newMockRepo()))
	e := echo.New()

	c, _ := authedContext(e, http.MethodPut, "/", `{"not-a-uuid": "x"}`)
	c.SetParamNames("id")
	c.SetParamValues(uuid.New().String())

	err := h.SaveFields(c)
	he, ok := err.(*echo.HTTPError)
	if !ok || he.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %v", err)
	}
}

func TestSaveAsTemplateHandlerBlankName(t *testing.T) {
	repo := newMockRepo()
	svc := NewService(repo)
	h := NewHandler(svc)
	e := echo.New()

	tmpl := testTemplate(t, svc, fieldOf(FieldText))
	resp, err := svc.CreateResponse(context.Background(), visitRef(), tmpl.ID, uuid.New(), nil)
	if err != nil {
		t.Fatalf("CreateResponse: %v", err)
	}

	c, _ := authedContext(e, http.MethodPost, "/", `{"name":"   "}`)
	c.SetParamNames("id")
	c.SetParamValues(resp.ID.String())

	herr := h.SaveAsTemplate(c)
	he, ok := herr.(*echo.HTTPError)
	if !ok || he.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422, got %v", herr)
	}
}

func TestCreateResponseHandlerRequiresAuth(t *testing.T) {
	h := NewHandler(NewService(newMockRepo()))
	e := echo.New()

	body := `{"template_id":"` + uuid.New().String() + `","encounter_type":"visit","object_id":"` + uuid.New().String() + `"}`
	req := httptest.NewRequest(http.MethodPost, "/responses", strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()

	err := h.CreateResponse(e.NewContext(req, rec))
	he, ok := err.(*echo.HTTPError)
	if !ok || he.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %v", err)
	}
}
