package encounter

import (
	"context"
	"errors"
	"sort"
	"testing"
	"time"

	"github.com/google/uuid"
)

type mockRepo struct {
	visits     map[uuid.UUID]*Visit
	admissions map[uuid.UUID]*Admission
}

func newMockRepo() *mockRepo {
	return &mockRepo{
		visits:     make(map[uuid.UUID]*Visit),
		admissions: make(map[uuid.UUID]*Admission),
	}
}

func (m *mockRepo) CreateVisit(_ context.Context, v *Visit) error {
	v.ID = uuid.New()
	v.CreatedAt = time.Now()
	m.visits[v.ID] = v
	return nil
}

func (m *mockRepo) GetVisit(_ context.Context, id uuid.UUID) (*Visit, error) {
	v, ok := m.visits[id]
	if !ok {
		return nil, ErrNotFound
	}
	return v, nil
}

func (m *mockRepo) UpdateVisit(_ context.Context, v *Visit) error {
	if _, ok := m.visits[v.ID]; !ok {
		return ErrNotFound
	}
	m.visits[v.ID] = v
	return nil
}

func (m *mockRepo) DeleteVisit(_ context.Context, id uuid.UUID) error {
	delete(m.visits, id)
	return nil
}

func (m *mockRepo) ListVisits(_ context.Context, limit, offset int) ([]*Visit, int, error) {
	var out []*Visit
	for _, v := range m.visits {
		out = append(out, v)
	}
	return out, len(out), nil
}

func (m *mockRepo) ListVisitsByPatient(_ context.Context, patientID uuid.UUID, limit, offset int) ([]*Visit, int, error) {
	var out []*Visit
	for _, v := range m.visits {
		if v.PatientID == patientID {
			out = append(out, v)
		}
	}
	return out, len(out), nil
}

func (m *mockRepo) CreateAdmission(_ context.Context, a *Admission) error {
	a.ID = uuid.New()
	a.CreatedAt = time.Now()
	m.admissions[a.ID] = a
	return nil
}

func (m *mockRepo) GetAdmission(_ context.Context, id uuid.UUID) (*Admission, error) {
	a, ok := m.admissions[id]
	if !ok {
		return nil, ErrNotFound
	}
	return a, nil
}

func (m *mockRepo) UpdateAdmission(_ context.Context, a *Admission) error {
	if _, ok := m.admissions[a.ID]; !ok {
		return ErrNotFound
	}
	m.admissions[a.ID] = a
	return nil
}

func (m *mockRepo) ListAdmissions(_ context.Context, limit, offset int) ([]*Admission, int, error) {
	var out []*Admission
	for _, a := range m.admissions {
		out = append(out, a)
	}
	return out, len(out), nil
}

func (m *mockRepo) ListAdmissionsByPatient(_ context.Context, patientID uuid.UUID, limit, offset int) ([]*Admission, int, error) {
	var out []*Admission
	for _, a := range m.admissions {
		if a.PatientID == patientID {
			out = append(out, a)
		}
	}
	return out, len(out), nil
}

func (m *mockRepo) ActiveAdmissionForPatient(_ context.Context, patientID uuid.UUID) (*Admission, error) {
	var active []*Admission
	for _, a := range m.admissions {
		if a.PatientID == patientID && a.Status == "admitted" {
			active = append(active, a)
		}
	}
	if len(active) == 0 {
		return nil, ErrNotFound
	}
	sort.Slice(active, func(i, j int) bool { return active[i].AdmittedAt.After(active[j].AdmittedAt) })
	return active[0], nil
}

func TestCreateVisitRequiresPatient(t *testing.T) {
	svc := NewService(newMockRepo())
	err := svc.CreateVisit(context.Background(), &Visit{DoctorID: uuid.New()})
	if err == nil {
		t.Fatal("expected error for missing patient_id")
	}
}

func TestCreateVisitDefaults(t *testing.T) {
	svc := NewService(newMockRepo())
	v := &Visit{PatientID: uuid.New(), DoctorID: uuid.New()}
	if err := svc.CreateVisit(context.Background(), v); err != nil {
		t.Fatalf("CreateVisit: %v", err)
	}
	if v.Status != "scheduled" {
		t.Errorf("status = %q, want scheduled", v.Status)
	}
	if v.VisitDate.IsZero() {
		t.Error("visit_date not defaulted")
	}
}

func TestCreateVisitRejectsInvalidStatus(t *testing.T) {
	svc := NewService(newMockRepo())
	err := svc.CreateVisit(context.Background(), &Visit{PatientID: uuid.New(), DoctorID: uuid.New(), Status: "bogus"})
	if err == nil {
		t.Fatal("expected invalid status error")
	}
}

func TestActiveAdmissionPicksNewest(t *testing.T) {
	repo := newMockRepo()
	svc := NewService(repo)
	ctx := context.Background()
	patientID := uuid.New()

	old := &Admission{PatientID: patientID, Status: "admitted", AdmittedAt: time.Now().Add(-48 * time.Hour)}
	recent := &Admission{PatientID: patientID, Status: "admitted", AdmittedAt: time.Now().Add(-1 * time.Hour)}
	discharged := &Admission{PatientID: patientID, Status: "discharged", AdmittedAt: time.Now()}
	for _, a := range []*Admission{old, recent, discharged} {
		a.ID = uuid.New()
		repo.admissions[a.ID] = a
	}

	got, err := svc.ActiveAdmissionForPatient(ctx, patientID)
	if err != nil {
		t.Fatalf("ActiveAdmissionForPatient: %v", err)
	}
	if !got.AdmittedAt.Equal(recent.AdmittedAt) {
		t.Errorf("picked admission admitted at %v, want newest active", got.AdmittedAt)
	}
}

func TestActiveAdmissionNone(t *testing.T) {
	svc := NewService(newMockRepo())
	_, err := svc.ActiveAdmissionForPatient(context.Background(), uuid.New())
	if !errors.Is(err, ErrNoActiveAdmission) {
		t.Fatalf("err = %v, want ErrNoActiveAdmission", err)
	}
}

func TestResolveVisit(t *testing.T) {
	repo := newMockRepo()
	svc := NewService(repo)
	ctx := context.Background()

	v := &Visit{PatientID: uuid.New(), DoctorID: uuid.New()}
	if err := svc.CreateVisit(ctx, v); err != nil {
		t.Fatalf("CreateVisit: %v", err)
	}

	ref, err := svc.Resolve(ctx, KindVisit, v.ID, v.PatientID)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if ref.Kind != KindVisit || ref.ObjectID != v.ID {
		t.Errorf("ref = %+v", ref)
	}
}

func TestResolveAdmissionWithoutActive(t *testing.T) {
	svc := NewService(newMockRepo())
	_, err := svc.Resolve(context.Background(), KindAdmission, uuid.Nil, uuid.New())
	if !errors.Is(err, ErrNoActiveAdmission) {
		t.Fatalf("err = %v, want ErrNoActiveAdmission", err)
	}
}

func TestDischarge(t *testing.T) {
	repo := newMockRepo()
	svc := NewService(repo)
	ctx := context.Background()

	a := &Admission{PatientID: uuid.New()}
	if err := svc.CreateAdmission(ctx, a); err != nil {
		t.Fatalf("CreateAdmission: %v", err)
	}
	if err := svc.Discharge(ctx, a.ID); err != nil {
		t.Fatalf("Discharge: %v", err)
	}
	got, _ := repo.GetAdmission(ctx, a.ID)
	if got.Status != "discharged" || got.DischargedAt == nil {
		t.Errorf("admission not discharged: %+v", got)
	}
	if err := svc.Discharge(ctx, a.ID); err == nil {
		t.Fatal("second discharge should fail")
	}
}

func TestParseKind(t *testing.T) {
	if _, err := ParseKind("visit"); err != nil {
		t.Errorf("visit should parse: %v", err)
	}
	if _, err := ParseKind("admission"); err != nil {
		t.Errorf("admission should parse: %v", err)
	}
	if _, err := ParseKind("ward"); err == nil {
		t.Error("ward should not parse")
	}
}
