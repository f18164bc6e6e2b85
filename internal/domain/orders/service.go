package orders

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/hms/hms/internal/domain/encounter"
	"github.com/hms/hms/internal/platform/metrics"
)

var (
	// ErrNotFound is returned when a requisition or catalog item does not
	// exist.
	ErrNotFound = errors.New("not found")
	// Submit precondition errors, each specific so clients can tell the
	// user exactly what is missing.
	ErrNoItems            = errors.New("no items drafted")
	ErrNoRequestingDoctor = errors.New("requesting doctor is required")
	ErrNoEncounter        = errors.New("no active encounter")
)

// PartialSubmitError reports a mid-sequence failure during the two-phase
// item population: the requisition exists with Succeeded of Attempted
// items attached.
type PartialSubmitError struct {
	RequisitionID uuid.UUID
	Attempted     int
	Succeeded     int
	Err           error
}

func (e *PartialSubmitError) Error() string {
	return fmt.Sprintf("requisition %s created but only %d of %d items attached: %v",
		e.RequisitionID, e.Succeeded, e.Attempted, e.Err)
}

func (e *PartialSubmitError) Unwrap() error { return e.Err }

type Service struct {
	repo  Repository
	cache *summaryCache
	m     *metrics.Metrics

	mu       sync.Mutex
	builders map[string]*Builder
}

func NewService(repo Repository) *Service {
	return &Service{
		repo:     repo,
		cache:    newSummaryCache(),
		builders: make(map[string]*Builder),
	}
}

// SetMetrics attaches optional application metrics.
func (s *Service) SetMetrics(m *metrics.Metrics) { s.m = m }

// BuilderFor returns (creating if needed) the order builder for a session.
func (s *Service) BuilderFor(sessionKey string) *Builder {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.builders[sessionKey]
	if !ok {
		b = NewBuilder()
		s.builders[sessionKey] = b
		if s.m != nil {
			s.m.ActiveDraftOrders.Set(float64(len(s.builders)))
		}
	}
	return b
}

// DropBuilder discards a session's builder (session closed; the draft is
// lost by design).
func (s *Service) DropBuilder(sessionKey string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.builders, sessionKey)
	if s.m != nil {
		s.m.ActiveDraftOrders.Set(float64(len(s.builders)))
	}
}

// SubmitParams carries the requisition header for a submit.
type SubmitParams struct {
	PatientID          uuid.UUID
	RequestingDoctorID uuid.UUID
	Ref                encounter.Ref
}

// Submit turns the session's draft into a persisted requisition.
//
// Preconditions are checked in order, each with its own error. The
// investigation kind embeds its orders in the creation call; the other
// kinds create the requisition first and then attach items one by one in
// drafted order, sequentially, since downstream numbering depends on
// insertion order. A mid-sequence failure leaves the requisition with a
// partial item set and returns a PartialSubmitError; there is no rollback.
func (s *Service) Submit(ctx context.Context, sessionKey string, p SubmitParams) (*Requisition, error) {
	b := s.BuilderFor(sessionKey)
	state := b.Snapshot()

	if len(state.Items) == 0 {
		return nil, ErrNoItems
	}
	if p.RequestingDoctorID == uuid.Nil {
		return nil, ErrNoRequestingDoctor
	}
	if !p.Ref.Valid() {
		return nil, ErrNoEncounter
	}

	req := &Requisition{
		PatientID:          p.PatientID,
		RequestingDoctorID: p.RequestingDoctorID,
		Type:               state.Kind,
		EncounterType:      p.Ref.Kind,
		ObjectID:           p.Ref.ObjectID,
		Priority:           state.Priority,
		Status:             StatusSubmitted,
	}
	if strings.TrimSpace(state.Notes) != "" {
		notes := state.Notes
		req.ClinicalNotes = &notes
	}

	if state.Kind == KindInvestigation {
		orders := make([]*InvestigationOrder, 0, len(state.Items))
		for _, d := range state.Items {
			o := &InvestigationOrder{InvestigationID: d.ItemID, Name: d.ItemName}
			if d.Notes != "" {
				n := d.Notes
				o.Notes = &n
			}
			orders = append(orders, o)
		}
		if err := s.repo.CreateWithInvestigations(ctx, req, orders); err != nil {
			return nil, err
		}
		for range orders {
			s.recordItem(state.Kind, "success")
		}
	} else {
		if err := s.repo.CreateRequisition(ctx, req); err != nil {
			return nil, err
		}
		for i, d := range state.Items {
			o := &ItemOrder{
				RequisitionID: req.ID,
				ItemID:        d.ItemID,
				Name:          d.ItemName,
				Code:          d.ItemCode,
				Quantity:      d.Quantity,
			}
			if d.UnitPrice != nil {
				o.UnitPrice = *d.UnitPrice
			}
			if d.Notes != "" {
				n := d.Notes
				o.Notes = &n
			}
			if err := s.repo.AddItemOrder(ctx, o); err != nil {
				s.recordItem(state.Kind, "failure")
				// Submitted items stay attached; surface how far we got.
				return nil, &PartialSubmitError{
					RequisitionID: req.ID,
					Attempted:     len(state.Items),
					Succeeded:     i,
					Err:           err,
				}
			}
			s.recordItem(state.Kind, "success")
		}
	}

	s.cache.invalidate(allKey, encounterKey(p.Ref), kindKey(state.Kind))
	b.Reset()
	if s.m != nil {
		s.m.RequisitionsSubmitted.Inc()
	}
	return req, nil
}

func (s *Service) recordItem(kind Kind, outcome string) {
	if s.m != nil {
		s.m.RequisitionItemsSent.WithLabelValues(string(kind), outcome).Inc()
	}
}

func (s *Service) GetRequisition(ctx context.Context, id uuid.UUID) (*Requisition, error) {
	return s.repo.GetRequisition(ctx, id)
}

func (s *Service) ListRequisitions(ctx context.Context, f RequisitionFilter, limit, offset int) ([]*Requisition, int, error) {
	return s.repo.ListRequisitions(ctx, f, limit, offset)
}

// Orders returns the typed sub-orders for a requisition.
func (s *Service) Orders(ctx context.Context, requisitionID uuid.UUID) (interface{}, error) {
	req, err := s.repo.GetRequisition(ctx, requisitionID)
	if err != nil {
		return nil, err
	}
	if req.Type == KindInvestigation {
		return s.repo.ListInvestigationOrders(ctx, requisitionID)
	}
	return s.repo.ListItemOrders(ctx, requisitionID)
}

var validStatusTransitions = map[string][]string{
	StatusDraft:     {StatusSubmitted, StatusCancelled},
	StatusSubmitted: {StatusCompleted, StatusCancelled},
}

// UpdateStatus advances a requisition through draft → submitted →
// completed/cancelled.
func (s *Service) UpdateStatus(ctx context.Context, id uuid.UUID, status string) error {
	req, err := s.repo.GetRequisition(ctx, id)
	if err != nil {
		return err
	}
	allowed := false
	for _, next := range validStatusTransitions[req.Status] {
		if next == status {
			allowed = true
			break
		}
	}
	if !allowed {
		return fmt.Errorf("cannot transition requisition from %s to %s", req.Status, status)
	}
	if err := s.repo.UpdateStatus(ctx, id, status); err != nil {
		return err
	}
	s.cache.invalidate(allKey, encounterKey(req.Ref()), kindKey(req.Type))
	return nil
}

// CountAll reads the total requisition count through the summary cache.
func (s *Service) CountAll(ctx context.Context) (int, error) {
	if n, ok := s.cache.get(allKey); ok {
		return n, nil
	}
	n, err := s.repo.CountAll(ctx)
	if err != nil {
		return 0, err
	}
	s.cache.set(allKey, n)
	return n, nil
}

func (s *Service) CountByEncounter(ctx context.Context, ref encounter.Ref) (int, error) {
	key := encounterKey(ref)
	if n, ok := s.cache.get(key); ok {
		return n, nil
	}
	n, err := s.repo.CountByEncounter(ctx, ref)
	if err != nil {
		return 0, err
	}
	s.cache.set(key, n)
	return n, nil
}

func (s *Service) CountByKind(ctx context.Context, k Kind) (int, error) {
	key := kindKey(k)
	if n, ok := s.cache.get(key); ok {
		return n, nil
	}
	n, err := s.repo.CountByKind(ctx, k)
	if err != nil {
		return 0, err
	}
	s.cache.set(key, n)
	return n, nil
}

// SearchCatalog finds active catalog items of a kind by name prefix.
func (s *Service) SearchCatalog(ctx context.Context, kind Kind, prefix string, limit int) ([]*CatalogItem, error) {
	if limit <= 0 || limit > 50 {
		limit = 20
	}
	return s.repo.SearchCatalog(ctx, kind, strings.TrimSpace(prefix), limit)
}

func (s *Service) GetCatalogItem(ctx context.Context, id uuid.UUID) (*CatalogItem, error) {
	return s.repo.GetCatalogItem(ctx, id)
}

func (s *Service) CreateCatalogItem(ctx context.Context, item *CatalogItem) error {
	if !validKinds[item.Kind] {
		return fmt.Errorf("invalid requisition kind: %q", item.Kind)
	}
	if strings.TrimSpace(item.Name) == "" {
		return fmt.Errorf("name is required")
	}
	item.IsActive = true
	return s.repo.CreateCatalogItem(ctx, item)
}
