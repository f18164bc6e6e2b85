package workspace

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/hms/hms/internal/domain/encounter"
)

// Workspace tabs.
const (
	TabChart       = "chart"
	TabAttachments = "attachments"
	TabOrders      = "orders"
)

var validTabs = map[string]bool{
	TabChart:       true,
	TabAttachments: true,
	TabOrders:      true,
}

// Session is one open consultation workspace. It is in-memory only:
// closing the session (or restarting the server) discards it along with
// any draft state keyed on it.
type Session struct {
	ID                 uuid.UUID      `json:"id"`
	VisitID            uuid.UUID      `json:"visit_id"`
	PatientID          uuid.UUID      `json:"patient_id"`
	EncounterKind      encounter.Kind `json:"encounter_kind"`
	ActiveResponseID   *uuid.UUID     `json:"active_response_id,omitempty"`
	ActiveTab          string         `json:"active_tab"`
	AdmissionAvailable bool           `json:"admission_available"`
	CreatedAt          time.Time      `json:"created_at"`
}

// Key is the string other session-scoped services (staging queues, order
// builders) key their state on.
func (s *Session) Key() string { return s.ID.String() }

// store holds open sessions behind a mutex. All mutation goes through
// update so a session is never written concurrently.
type store struct {
	mu       sync.Mutex
	sessions map[uuid.UUID]*Session
}

func newStore() *store {
	return &store{sessions: make(map[uuid.UUID]*Session)}
}

func (st *store) put(s *Session) {
	st.mu.Lock()
	defer st.mu.Unlock()
	st.sessions[s.ID] = s
}

// get returns a copy so readers never observe a half-applied update.
func (st *store) get(id uuid.UUID) (Session, bool) {
	st.mu.Lock()
	defer st.mu.Unlock()
	s, ok := st.sessions[id]
	if !ok {
		return Session{}, false
	}
	return *s, true
}

func (st *store) update(id uuid.UUID, fn func(*Session)) (Session, bool) {
	st.mu.Lock()
	defer st.mu.Unlock()
	s, ok := st.sessions[id]
	if !ok {
		return Session{}, false
	}
	fn(s)
	return *s, true
}

func (st *store) delete(id uuid.UUID) bool {
	st.mu.Lock()
	defer st.mu.Unlock()
	if _, ok := st.sessions[id]; !ok {
		return false
	}
	delete(st.sessions, id)
	return true
}
