package workspace

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/hms/hms/internal/domain/charting"
	"github.com/hms/hms/internal/domain/encounter"
	"github.com/hms/hms/internal/platform/notify"
)

var (
	// ErrSessionNotFound is returned for unknown or closed sessions.
	ErrSessionNotFound = errors.New("workspace session not found")
	// ErrAdmissionUnavailable rejects switching the workspace to the
	// admission encounter when the patient has no active admission.
	ErrAdmissionUnavailable = errors.New("patient has no active admission")
)

// EncounterDirectory is the slice of the encounter service the workspace
// needs.
type EncounterDirectory interface {
	GetVisit(ctx context.Context, id uuid.UUID) (*encounter.Visit, error)
	ActiveAdmissionForPatient(ctx context.Context, patientID uuid.UUID) (*encounter.Admission, error)
	Resolve(ctx context.Context, kind encounter.Kind, visitID, patientID uuid.UUID) (encounter.Ref, error)
}

// ResponseDirectory is the slice of the charting service the workspace
// needs to track its active response.
type ResponseDirectory interface {
	GetResponse(ctx context.Context, id uuid.UUID) (*charting.Response, error)
	ListResponses(ctx context.Context, f charting.ResponseFilter, limit, offset int) ([]*charting.Response, int, error)
}

// Service orchestrates consultation workspace sessions. A session pins
// the encounter context every other surface (charting, attachments,
// orders) keys on, and tracks the single response open for editing.
type Service struct {
	store      *store
	encounters EncounterDirectory
	responses  ResponseDirectory
	publisher  notify.Publisher
	log        zerolog.Logger

	onClose []func(sessionKey string)
}

func NewService(encounters EncounterDirectory, responses ResponseDirectory, publisher notify.Publisher, log zerolog.Logger) *Service {
	return &Service{
		store:      newStore(),
		encounters: encounters,
		responses:  responses,
		publisher:  publisher,
		log:        log.With().Str("component", "workspace").Logger(),
	}
}

// OnClose registers a cleanup hook run with the session key when a
// session closes. Staging queues and order builders hook in here so
// their draft state dies with the session.
func (s *Service) OnClose(fn func(sessionKey string)) {
	s.onClose = append(s.onClose, fn)
}

// Open starts a workspace session for a visit. The encounter context
// defaults to the visit itself; the admission switch is reported
// available only when the patient has an active admission, so clients can
// disable the control up front.
func (s *Service) Open(ctx context.Context, visitID uuid.UUID) (Session, error) {
	visit, err := s.encounters.GetVisit(ctx, visitID)
	if err != nil {
		return Session{}, err
	}

	sess := &Session{
		ID:            uuid.New(),
		VisitID:       visit.ID,
		PatientID:     visit.PatientID,
		EncounterKind: encounter.KindVisit,
		ActiveTab:     TabChart,
		CreatedAt:     time.Now().UTC(),
	}
	sess.AdmissionAvailable = s.admissionAvailable(ctx, visit.PatientID)

	s.store.put(sess)
	s.log.Info().
		Str("session_id", sess.ID.String()).
		Str("visit_id", visit.ID.String()).
		Msg("workspace session opened")
	return *sess, nil
}

func (s *Service) admissionAvailable(ctx context.Context, patientID uuid.UUID) bool {
	_, err := s.encounters.ActiveAdmissionForPatient(ctx, patientID)
	return err == nil
}

// Get returns the session with the admission availability refreshed, so
// an admission opened or discharged elsewhere shows up on the next read.
func (s *Service) Get(ctx context.Context, id uuid.UUID) (Session, error) {
	sess, ok := s.store.get(id)
	if !ok {
		return Session{}, ErrSessionNotFound
	}
	available := s.admissionAvailable(ctx, sess.PatientID)
	if available != sess.AdmissionAvailable {
		sess, _ = s.store.update(id, func(s *Session) { s.AdmissionAvailable = available })
	}
	return sess, nil
}

// SwitchEncounter toggles the workspace between the visit and the
// patient's active admission. The switch clears the active response,
// since the two encounters expose disjoint response sets.
func (s *Service) SwitchEncounter(ctx context.Context, id uuid.UUID, kind encounter.Kind) (Session, error) {
	sess, ok := s.store.get(id)
	if !ok {
		return Session{}, ErrSessionNotFound
	}
	if _, err := s.encounters.Resolve(ctx, kind, sess.VisitID, sess.PatientID); err != nil {
		if errors.Is(err, encounter.ErrNoActiveAdmission) {
			return Session{}, ErrAdmissionUnavailable
		}
		return Session{}, err
	}
	sess, _ = s.store.update(id, func(s *Session) {
		s.EncounterKind = kind
		s.ActiveResponseID = nil
	})
	return sess, nil
}

// Ref resolves the session's current (encounter_type, object_id) pair.
func (s *Service) Ref(ctx context.Context, id uuid.UUID) (encounter.Ref, error) {
	sess, ok := s.store.get(id)
	if !ok {
		return encounter.Ref{}, ErrSessionNotFound
	}
	return s.encounters.Resolve(ctx, sess.EncounterKind, sess.VisitID, sess.PatientID)
}

// SetActiveResponse is the single mutation point for the session's open
// editing target. A nil id clears it. A non-nil id must name an existing
// response scoped to the session's current encounter.
func (s *Service) SetActiveResponse(ctx context.Context, id uuid.UUID, responseID *uuid.UUID) (Session, error) {
	sess, ok := s.store.get(id)
	if !ok {
		return Session{}, ErrSessionNotFound
	}
	if responseID != nil {
		resp, err := s.responses.GetResponse(ctx, *responseID)
		if err != nil {
			return Session{}, err
		}
		ref, err := s.encounters.Resolve(ctx, sess.EncounterKind, sess.VisitID, sess.PatientID)
		if err != nil {
			return Session{}, err
		}
		if resp.EncounterType != ref.Kind || resp.ObjectID != ref.ObjectID {
			return Session{}, fmt.Errorf("response %s does not belong to the current encounter", resp.ID)
		}
	}
	sess, _ = s.store.update(id, func(s *Session) { s.ActiveResponseID = responseID })
	return sess, nil
}

// ActiveResponse returns the response open for editing. A stale pointer
// (the response was deleted by another session) is cleared and the most
// recently created response for the encounter takes its place; nil means
// nothing is open.
func (s *Service) ActiveResponse(ctx context.Context, id uuid.UUID) (*charting.Response, error) {
	sess, ok := s.store.get(id)
	if !ok {
		return nil, ErrSessionNotFound
	}

	if sess.ActiveResponseID != nil {
		resp, err := s.responses.GetResponse(ctx, *sess.ActiveResponseID)
		if err == nil {
			return resp, nil
		}
		if !errors.Is(err, charting.ErrNotFound) {
			return nil, err
		}
		s.store.update(id, func(s *Session) { s.ActiveResponseID = nil })
	}

	ref, err := s.encounters.Resolve(ctx, sess.EncounterKind, sess.VisitID, sess.PatientID)
	if err != nil {
		// Encounter context gone (e.g. admission discharged): nothing
		// is active, which is a valid empty state rather than an error.
		return nil, nil
	}
	all, _, err := s.responses.ListResponses(ctx, charting.ResponseFilter{Ref: &ref}, 100, 0)
	if err != nil {
		return nil, err
	}
	active := charting.DeriveActive(all)
	if active != nil {
		activeID := active.ID
		s.store.update(id, func(s *Session) { s.ActiveResponseID = &activeID })
	}
	return active, nil
}

// SetActiveTab switches the visible workspace surface.
func (s *Service) SetActiveTab(id uuid.UUID, tab string) (Session, error) {
	if !validTabs[tab] {
		return Session{}, fmt.Errorf("invalid workspace tab: %q", tab)
	}
	sess, ok := s.store.update(id, func(s *Session) { s.ActiveTab = tab })
	if !ok {
		return Session{}, ErrSessionNotFound
	}
	return sess, nil
}

// FollowUp is a scheduled follow-up booking request. Scheduling itself
// lives in a separate system; the workspace only validates and announces
// it.
type FollowUp struct {
	ID           uuid.UUID `json:"id"`
	PatientID    uuid.UUID `json:"patient_id"`
	VisitID      uuid.UUID `json:"visit_id"`
	ScheduledFor time.Time `json:"scheduled_for"`
	Reason       string    `json:"reason"`
}

// ScheduleFollowUp validates a follow-up request and publishes it for the
// booking system to pick up.
func (s *Service) ScheduleFollowUp(ctx context.Context, id uuid.UUID, scheduledFor time.Time, reason string) (*FollowUp, error) {
	sess, ok := s.store.get(id)
	if !ok {
		return nil, ErrSessionNotFound
	}
	if !scheduledFor.After(time.Now()) {
		return nil, fmt.Errorf("follow-up must be scheduled in the future")
	}
	fu := &FollowUp{
		ID:           uuid.New(),
		PatientID:    sess.PatientID,
		VisitID:      sess.VisitID,
		ScheduledFor: scheduledFor,
		Reason:       strings.TrimSpace(reason),
	}
	s.publish(ctx, "follow_up.scheduled", sess.PatientID, fu)
	return fu, nil
}

// Notify broadcasts a free-text workspace notification on the patient's
// topic.
func (s *Service) Notify(ctx context.Context, id uuid.UUID, message string) error {
	sess, ok := s.store.get(id)
	if !ok {
		return ErrSessionNotFound
	}
	if strings.TrimSpace(message) == "" {
		return fmt.Errorf("message is required")
	}
	s.publish(ctx, "workspace.notification", sess.PatientID, map[string]string{"message": message})
	return nil
}

func (s *Service) publish(ctx context.Context, kind string, patientID uuid.UUID, payload interface{}) {
	if s.publisher == nil {
		return
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		s.log.Error().Err(err).Str("kind", kind).Msg("marshal event payload")
		return
	}
	event := notify.Event{
		Kind:      kind,
		Topic:     "patient:" + patientID.String(),
		PatientID: patientID.String(),
		Payload:   raw,
	}
	if err := s.publisher.Publish(ctx, event); err != nil {
		s.log.Error().Err(err).Str("kind", kind).Msg("publish event")
	}
}

// Close ends a session and runs the registered cleanup hooks, discarding
// any draft state keyed on the session.
func (s *Service) Close(id uuid.UUID) error {
	sess, ok := s.store.get(id)
	if !ok {
		return ErrSessionNotFound
	}
	s.store.delete(id)
	for _, fn := range s.onClose {
		fn(sess.Key())
	}
	s.log.Info().Str("session_id", id.String()).Msg("workspace session closed")
	return nil
}
