package encounter

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
)

func newTestHandler() (*Handler, *mockRepo) {
	repo := newMockRepo()
	return NewHandler(NewService(repo)), repo
}

func TestCreateVisitHandler(t *testing.T) {
	h, _ := newTestHandler()
	e := echo.New()

	body := `{"patient_id":"` + uuid.New().String() + `","doctor_id":"` + uuid.New().String() + `"}`
	req := httptest.NewRequest(http.MethodPost, "/visits", strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()

	if err := h.CreateVisit(e.NewContext(req, rec)); err != nil {
		t.Fatalf("CreateVisit: %v", err)
	}
	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, want 201", rec.Code)
	}

	var v Visit
	if err := json.Unmarshal(rec.Body.Bytes(), &v); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if v.Status != "scheduled" {
		t.Errorf("status = %q", v.Status)
	}
}

func TestGetVisitNotFound(t *testing.T) {
	h, _ := newTestHandler()
	e := echo.New()

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	c.SetParamNames("id")
	c.SetParamValues(uuid.New().String())

	err := h.GetVisit(c)
	he, ok := err.(*echo.HTTPError)
	if !ok || he.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %v", err)
	}
}

func TestActiveAdmissionHandler(t *testing.T) {
	h, repo := newTestHandler()
	e := echo.New()
	patientID := uuid.New()

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	c.SetParamNames("id")
	c.SetParamValues(patientID.String())

	if err := h.ActiveAdmission(c); err != nil {
		t.Fatalf("ActiveAdmission: %v", err)
	}
	var out map[string]interface{}
	_ = json.Unmarshal(rec.Body.Bytes(), &out)
	if out["admission_available"] != false {
		t.Errorf("admission_available = %v, want false", out["admission_available"])
	}

	adm := &Admission{PatientID: patientID}
	if err := NewService(repo).CreateAdmission(context.Background(), adm); err != nil {
		t.Fatalf("CreateAdmission: %v", err)
	}

	rec = httptest.NewRecorder()
	c = e.NewContext(req, rec)
	c.SetParamNames("id")
	c.SetParamValues(patientID.String())
	if err := h.ActiveAdmission(c); err != nil {
		t.Fatalf("ActiveAdmission: %v", err)
	}
	out = nil
	_ = json.Unmarshal(rec.Body.Bytes(), &out)
	if out["admission_available"] != true {
		t.Errorf("admission_available = %v, want true", out["admission_available"])
	}
}
