package workspace

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/hms/hms/internal/domain/charting"
	"github.com/hms/hms/internal/domain/encounter"
	"github.com/hms/hms/internal/platform/notify"
)

type fakeEncounters struct {
	visits    map[uuid.UUID]*encounter.Visit
	admission *encounter.Admission
}

func newFakeEncounters() *fakeEncounters {
	return &fakeEncounters{visits: make(map[uuid.UUID]*encounter.Visit)}
}

func (f *fakeEncounters) GetVisit(_ context.Context, id uuid.UUID) (*encounter.Visit, error) {
	v, ok := f.visits[id]
	if !ok {
		return nil, encounter.ErrNotFound
	}
	return v, nil
}

func (f *fakeEncounters) ActiveAdmissionForPatient(_ context.Context, patientID uuid.UUID) (*encounter.Admission, error) {
	if f.admission == nil || f.admission.PatientID != patientID {
		return nil, encounter.ErrNoActiveAdmission
	}
	return f.admission, nil
}

func (f *fakeEncounters) Resolve(_ context.Context, kind encounter.Kind, visitID, patientID uuid.UUID) (encounter.Ref, error) {
	switch kind {
	case encounter.KindVisit:
		return encounter.Ref{Kind: encounter.KindVisit, ObjectID: visitID}, nil
	case encounter.KindAdmission:
		if f.admission == nil || f.admission.PatientID != patientID {
			return encounter.Ref{}, encounter.ErrNoActiveAdmission
		}
		return encounter.Ref{Kind: encounter.KindAdmission, ObjectID: f.admission.ID}, nil
	}
	return encounter.Ref{}, encounter.ErrNotFound
}

type fakeResponses struct {
	mu        sync.Mutex
	responses map[uuid.UUID]*charting.Response
}

func newFakeResponses() *fakeResponses {
	return &fakeResponses{responses: make(map[uuid.UUID]*charting.Response)}
}

func (f *fakeResponses) GetResponse(_ context.Context, id uuid.UUID) (*charting.Response, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	r, ok := f.responses[id]
	if !ok {
		return nil, charting.ErrNotFound
	}
	return r, nil
}

func (f *fakeResponses) ListResponses(_ context.Context, filter charting.ResponseFilter, limit, offset int) ([]*charting.Response, int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*charting.Response
	for _, r := range f.responses {
		if filter.Ref != nil && (r.EncounterType != filter.Ref.Kind || r.ObjectID != filter.Ref.ObjectID) {
			continue
		}
		out = append(out, r)
	}
	return out, len(out), nil
}

func (f *fakeResponses) add(ref encounter.Ref, seq int, createdAt time.Time) *charting.Response {
	f.mu.Lock()
	defer f.mu.Unlock()
	r := &charting.Response{
		ID:             uuid.New(),
		EncounterType:  ref.Kind,
		ObjectID:       ref.ObjectID,
		SequenceNumber: seq,
		Status:         charting.StatusDraft,
		CreatedAt:      createdAt,
	}
	f.responses[r.ID] = r
	return r
}

func (f *fakeResponses) remove(id uuid.UUID) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.responses, id)
}

type fakePublisher struct {
	mu     sync.Mutex
	events []notify.Event
}

func (f *fakePublisher) Publish(_ context.Context, e notify.Event) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, e)
	return nil
}

func (f *fakePublisher) published() []notify.Event {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]notify.Event(nil), f.events...)
}

func testFixture(t *testing.T) (*Service, *fakeEncounters, *fakeResponses, *fakePublisher, Session) {
	t.Helper()
	enc := newFakeEncounters()
	resp := newFakeResponses()
	pub := &fakePublisher{}
	svc := NewService(enc, resp, pub, zerolog.Nop())

	visit := &encounter.Visit{ID: uuid.New(), PatientID: uuid.New(), Status: "in-progress"}
	enc.visits[visit.ID] = visit

	sess, err := svc.Open(context.Background(), visit.ID)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	return svc, enc, resp, pub, sess
}

func TestOpenDefaults(t *testing.T) {
	_, _, _, _, sess := testFixture(t)

	if sess.EncounterKind != encounter.KindVisit {
		t.Fatalf("expected default encounter %s, got %s", encounter.KindVisit, sess.EncounterKind)
	}
	if sess.ActiveTab != TabChart {
		t.Fatalf("expected default tab %s, got %s", TabChart, sess.ActiveTab)
	}
	if sess.AdmissionAvailable {
		t.Fatal("admission switch should be unavailable without an active admission")
	}
	if sess.ActiveResponseID != nil {
		t.Fatal("a fresh session has no active response")
	}
}

func TestSwitchToAdmissionRequiresActiveAdmission(t *testing.T) {
	svc, enc, _, _, sess := testFixture(t)
	ctx := context.Background()

	_, err := svc.SwitchEncounter(ctx, sess.ID, encounter.KindAdmission)
	if !errors.Is(err, ErrAdmissionUnavailable) {
		t.Fatalf("expected ErrAdmissionUnavailable, got %v", err)
	}

	enc.admission = &encounter.Admission{ID: uuid.New(), PatientID: sess.PatientID, Status: "admitted"}
	updated, err := svc.SwitchEncounter(ctx, sess.ID, encounter.KindAdmission)
	if err != nil {
		t.Fatalf("SwitchEncounter: %v", err)
	}
	if updated.EncounterKind != encounter.KindAdmission {
		t.Fatalf("expected encounter %s, got %s", encounter.KindAdmission, updated.EncounterKind)
	}

	// Availability is refreshed on read.
	got, err := svc.Get(ctx, sess.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if !got.AdmissionAvailable {
		t.Fatal("admission availability should refresh once an admission exists")
	}
}

func TestSwitchEncounterClearsActiveResponse(t *testing.T) {
	svc, enc, resp, _, sess := testFixture(t)
	ctx := context.Background()

	visitRef := encounter.Ref{Kind: encounter.KindVisit, ObjectID: sess.VisitID}
	r := resp.add(visitRef, 1, time.Now())
	if _, err := svc.SetActiveResponse(ctx, sess.ID, &r.ID); err != nil {
		t.Fatalf("SetActiveResponse: %v", err)
	}

	enc.admission = &encounter.Admission{ID: uuid.New(), PatientID: sess.PatientID, Status: "admitted"}
	updated, err := svc.SwitchEncounter(ctx, sess.ID, encounter.KindAdmission)
	if err != nil {
		t.Fatalf("SwitchEncounter: %v", err)
	}
	if updated.ActiveResponseID != nil {
		t.Fatal("switching encounter must clear the active response")
	}
}

func TestSetActiveResponseRejectsForeignEncounter(t *testing.T) {
	svc, _, resp, _, sess := testFixture(t)
	ctx := context.Background()

	other := encounter.Ref{Kind: encounter.KindVisit, ObjectID: uuid.New()}
	r := resp.add(other, 1, time.Now())

	if _, err := svc.SetActiveResponse(ctx, sess.ID, &r.ID); err == nil {
		t.Fatal("a response from another encounter must not become active")
	}
}

func TestStaleActiveResponseFallsBack(t *testing.T) {
	svc, _, resp, _, sess := testFixture(t)
	ctx := context.Background()

	visitRef := encounter.Ref{Kind: encounter.KindVisit, ObjectID: sess.VisitID}
	older := resp.add(visitRef, 1, time.Now().Add(-time.Hour))
	newer := resp.add(visitRef, 2, time.Now())

	if _, err := svc.SetActiveResponse(ctx, sess.ID, &newer.ID); err != nil {
		t.Fatalf("SetActiveResponse: %v", err)
	}

	// Deleted by another session: the workspace falls back to the most
	// recently created response instead of erroring.
	resp.remove(newer.ID)

	active, err := svc.ActiveResponse(ctx, sess.ID)
	if err != nil {
		t.Fatalf("ActiveResponse: %v", err)
	}
	if active == nil || active.ID != older.ID {
		t.Fatal("expected fallback to the remaining response")
	}

	got, _ := svc.Get(ctx, sess.ID)
	if got.ActiveResponseID == nil || *got.ActiveResponseID != older.ID {
		t.Fatal("fallback should be recorded on the session")
	}
}

func TestActiveResponseEmptyEncounterIsNotAnError(t *testing.T) {
	svc, _, _, _, sess := testFixture(t)

	active, err := svc.ActiveResponse(context.Background(), sess.ID)
	if err != nil {
		t.Fatalf("ActiveResponse: %v", err)
	}
	if active != nil {
		t.Fatal("expected no active response for an empty encounter")
	}
}

func TestSetActiveTabValidates(t *testing.T) {
	svc, _, _, _, sess := testFixture(t)

	if _, err := svc.SetActiveTab(sess.ID, "billing"); err == nil {
		t.Fatal("unknown tab must be rejected")
	}
	updated, err := svc.SetActiveTab(sess.ID, TabOrders)
	if err != nil {
		t.Fatalf("SetActiveTab: %v", err)
	}
	if updated.ActiveTab != TabOrders {
		t.Fatalf("expected tab %s, got %s", TabOrders, updated.ActiveTab)
	}
}

func TestScheduleFollowUpPublishes(t *testing.T) {
	svc, _, _, pub, sess := testFixture(t)
	ctx := context.Background()

	if _, err := svc.ScheduleFollowUp(ctx, sess.ID, time.Now().Add(-time.Hour), "review"); err == nil {
		t.Fatal("follow-up in the past must be rejected")
	}

	fu, err := svc.ScheduleFollowUp(ctx, sess.ID, time.Now().Add(48*time.Hour), "wound review")
	if err != nil {
		t.Fatalf("ScheduleFollowUp: %v", err)
	}
	if fu.PatientID != sess.PatientID {
		t.Fatal("follow-up should carry the session's patient")
	}

	events := pub.published()
	if len(events) != 1 {
		t.Fatalf("expected 1 published event, got %d", len(events))
	}
	if events[0].Kind != "follow_up.scheduled" {
		t.Fatalf("unexpected event kind %s", events[0].Kind)
	}
	if events[0].Topic != "patient:"+sess.PatientID.String() {
		t.Fatalf("unexpected topic %s", events[0].Topic)
	}
}

func TestCloseRunsCleanupHooks(t *testing.T) {
	svc, _, _, _, sess := testFixture(t)

	var cleaned []string
	svc.OnClose(func(key string) { cleaned = append(cleaned, key) })

	if err := svc.Close(sess.ID); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if len(cleaned) != 1 || cleaned[0] != sess.Key() {
		t.Fatalf("cleanup hook not run with session key: %v", cleaned)
	}
	if _, err := svc.Get(context.Background(), sess.ID); !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("expected ErrSessionNotFound after close, got %v", err)
	}
	if err := svc.Close(sess.ID); !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("double close should report not found, got %v", err)
	}
}
