package orders

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/google/uuid"

	"github.com/hms/hms/internal/domain/encounter"
)

type mockRepo struct {
	mu             sync.Mutex
	requisitions   map[uuid.UUID]*Requisition
	itemOrders     map[uuid.UUID][]*ItemOrder
	investigations map[uuid.UUID][]*InvestigationOrder
	catalog        map[uuid.UUID]*CatalogItem

	failItemNamed string
	countAllCalls int
}

func newMockRepo() *mockRepo {
	return &mockRepo{
		requisitions:   make(map[uuid.UUID]*Requisition),
		itemOrders:     make(map[uuid.UUID][]*ItemOrder),
		investigations: make(map[uuid.UUID][]*InvestigationOrder),
		catalog:        make(map[uuid.UUID]*CatalogItem),
	}
}

func (m *mockRepo) CreateRequisition(_ context.Context, r *Requisition) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	r.ID = uuid.New()
	m.requisitions[r.ID] = r
	return nil
}

func (m *mockRepo) CreateWithInvestigations(ctx context.Context, r *Requisition, orders []*InvestigationOrder) error {
	if err := m.CreateRequisition(ctx, r); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, o := range orders {
		o.ID = uuid.New()
		o.RequisitionID = r.ID
		m.investigations[r.ID] = append(m.investigations[r.ID], o)
	}
	return nil
}

func (m *mockRepo) GetRequisition(_ context.Context, id uuid.UUID) (*Requisition, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.requisitions[id]
	if !ok {
		return nil, ErrNotFound
	}
	return r, nil
}

func (m *mockRepo) ListRequisitions(_ context.Context, f RequisitionFilter, limit, offset int) ([]*Requisition, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*Requisition
	for _, r := range m.requisitions {
		if f.Ref != nil && (r.EncounterType != f.Ref.Kind || r.ObjectID != f.Ref.ObjectID) {
			continue
		}
		if f.Kind != nil && r.Type != *f.Kind {
			continue
		}
		out = append(out, r)
	}
	return out, len(out), nil
}

func (m *mockRepo) UpdateStatus(_ context.Context, id uuid.UUID, status string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.requisitions[id]
	if !ok {
		return ErrNotFound
	}
	r.Status = status
	return nil
}

func (m *mockRepo) AddItemOrder(_ context.Context, o *ItemOrder) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failItemNamed != "" && strings.Contains(o.Name, m.failItemNamed) {
		return errors.New("insert failed")
	}
	o.ID = uuid.New()
	m.itemOrders[o.RequisitionID] = append(m.itemOrders[o.RequisitionID], o)
	return nil
}

func (m *mockRepo) ListItemOrders(_ context.Context, requisitionID uuid.UUID) ([]*ItemOrder, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.itemOrders[requisitionID], nil
}

func (m *mockRepo) ListInvestigationOrders(_ context.Context, requisitionID uuid.UUID) ([]*InvestigationOrder, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.investigations[requisitionID], nil
}

func (m *mockRepo) CountAll(_ context.Context) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.countAllCalls++
	return len(m.requisitions), nil
}

func (m *mockRepo) CountByEncounter(_ context.Context, ref encounter.Ref) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, r := range m.requisitions {
		if r.EncounterType == ref.Kind && r.ObjectID == ref.ObjectID {
			n++
		}
	}
	return n, nil
}

func (m *mockRepo) CountByKind(_ context.Context, k Kind) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, r := range m.requisitions {
		if r.Type == k {
			n++
		}
	}
	return n, nil
}

func (m *mockRepo) SearchCatalog(_ context.Context, kind Kind, prefix string, limit int) ([]*CatalogItem, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*CatalogItem
	for _, item := range m.catalog {
		if item.Kind == kind && item.IsActive && strings.HasPrefix(strings.ToLower(item.Name), strings.ToLower(prefix)) {
			out = append(out, item)
		}
		if len(out) >= limit {
			break
		}
	}
	return out, nil
}

func (m *mockRepo) GetCatalogItem(_ context.Context, id uuid.UUID) (*CatalogItem, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	item, ok := m.catalog[id]
	if !ok {
		return nil, ErrNotFound
	}
	return item, nil
}

func (m *mockRepo) CreateCatalogItem(_ context.Context, item *CatalogItem) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	item.ID = uuid.New()
	m.catalog[item.ID] = item
	return nil
}

func seedCatalogItem(t *testing.T, repo *mockRepo, kind Kind, name string, price float64) *CatalogItem {
	t.Helper()
	item := &CatalogItem{Kind: kind, Name: name, UnitPrice: &price, IsActive: true}
	if err := repo.CreateCatalogItem(context.Background(), item); err != nil {
		t.Fatalf("seed catalog item: %v", err)
	}
	return item
}

func visitRef() encounter.Ref {
	return encounter.Ref{Kind: encounter.KindVisit, ObjectID: uuid.New()}
}

func TestAddItemIdempotent(t *testing.T) {
	repo := newMockRepo()
	svc := NewService(repo)
	b := svc.BuilderFor("s1")
	b.SelectType(KindMedicine)

	item := seedCatalogItem(t, repo, KindMedicine, "Amoxicillin 500mg", 12.50)
	first := b.AddItem(*item)
	second := b.AddItem(*item)

	if first.LocalID != second.LocalID {
		t.Fatal("re-adding the same catalog item should return the existing draft line")
	}
	if got := len(b.Items()); got != 1 {
		t.Fatalf("expected 1 draft line, got %d", got)
	}
}

func TestQuantityClampedToOne(t *testing.T) {
	repo := newMockRepo()
	svc := NewService(repo)
	b := svc.BuilderFor("s1")
	b.SelectType(KindMedicine)

	item := seedCatalogItem(t, repo, KindMedicine, "Paracetamol", 2)
	d := b.AddItem(*item)

	if !b.SetQuantity(d.LocalID, 0) {
		t.Fatal("SetQuantity should find the draft line")
	}
	if got := b.Items()[0].Quantity; got != 1 {
		t.Fatalf("quantity below 1 should clamp to 1, got %d", got)
	}
	b.SetQuantity(d.LocalID, -5)
	if got := b.Items()[0].Quantity; got != 1 {
		t.Fatalf("negative quantity should clamp to 1, got %d", got)
	}
	b.SetQuantity(d.LocalID, 3)
	if got := b.Items()[0].Quantity; got != 3 {
		t.Fatalf("expected quantity 3, got %d", got)
	}
}

func TestSelectTypeResetsDraft(t *testing.T) {
	repo := newMockRepo()
	svc := NewService(repo)
	b := svc.BuilderFor("s1")
	b.SelectType(KindMedicine)

	item := seedCatalogItem(t, repo, KindMedicine, "Ibuprofen", 5)
	b.AddItem(*item)
	b.SetSearch("ibu")

	b.SelectType(KindProcedure)

	if got := len(b.Items()); got != 0 {
		t.Fatalf("switching kind should clear draft lines, got %d", got)
	}
	if b.Search() != "" {
		t.Fatal("switching kind should clear search text")
	}
	if b.Kind() != KindProcedure {
		t.Fatalf("expected kind %s, got %s", KindProcedure, b.Kind())
	}
}

func TestSubmitPreconditionsInOrder(t *testing.T) {
	repo := newMockRepo()
	svc := NewService(repo)
	ctx := context.Background()

	// Empty draft first, regardless of the other missing fields.
	_, err := svc.Submit(ctx, "s1", SubmitParams{})
	if !errors.Is(err, ErrNoItems) {
		t.Fatalf("expected ErrNoItems, got %v", err)
	}

	b := svc.BuilderFor("s1")
	b.SelectType(KindMedicine)
	item := seedCatalogItem(t, repo, KindMedicine, "Cetirizine", 3)
	b.AddItem(*item)

	_, err = svc.Submit(ctx, "s1", SubmitParams{PatientID: uuid.New()})
	if !errors.Is(err, ErrNoRequestingDoctor) {
		t.Fatalf("expected ErrNoRequestingDoctor, got %v", err)
	}

	_, err = svc.Submit(ctx, "s1", SubmitParams{PatientID: uuid.New(), RequestingDoctorID: uuid.New()})
	if !errors.Is(err, ErrNoEncounter) {
		t.Fatalf("expected ErrNoEncounter, got %v", err)
	}
}

func TestSubmitMedicineAttachesItemsInDraftOrder(t *testing.T) {
	repo := newMockRepo()
	svc := NewService(repo)
	ctx := context.Background()

	b := svc.BuilderFor("s1")
	b.SelectType(KindMedicine)
	first := seedCatalogItem(t, repo, KindMedicine, "Amoxicillin", 12.50)
	second := seedCatalogItem(t, repo, KindMedicine, "Paracetamol", 2)
	d1 := b.AddItem(*first)
	b.AddItem(*second)
	b.SetQuantity(d1.LocalID, 2)

	req, err := svc.Submit(ctx, "s1", SubmitParams{
		PatientID:          uuid.New(),
		RequestingDoctorID: uuid.New(),
		Ref:                visitRef(),
	})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if req.Status != StatusSubmitted {
		t.Fatalf("expected status %s, got %s", StatusSubmitted, req.Status)
	}

	orders, _ := repo.ListItemOrders(ctx, req.ID)
	if len(orders) != 2 {
		t.Fatalf("expected 2 item orders, got %d", len(orders))
	}
	if orders[0].Name != "Amoxicillin" || orders[1].Name != "Paracetamol" {
		t.Fatalf("items attached out of draft order: %s, %s", orders[0].Name, orders[1].Name)
	}
	if orders[0].Quantity != 2 {
		t.Fatalf("expected quantity 2 on first item, got %d", orders[0].Quantity)
	}

	// Builder resets to defaults after a successful submit.
	if got := len(b.Items()); got != 0 {
		t.Fatalf("builder should be empty after submit, got %d lines", got)
	}
	if b.Kind() != KindInvestigation {
		t.Fatalf("builder should reset to %s, got %s", KindInvestigation, b.Kind())
	}
}

func TestSubmitInvestigationSingleCall(t *testing.T) {
	repo := newMockRepo()
	svc := NewService(repo)
	ctx := context.Background()

	b := svc.BuilderFor("s1")
	cbc := seedCatalogItem(t, repo, KindInvestigation, "CBC", 0)
	lipid := seedCatalogItem(t, repo, KindInvestigation, "Lipid Panel", 0)
	b.AddItem(*cbc)
	b.AddItem(*lipid)

	req, err := svc.Submit(ctx, "s1", SubmitParams{
		PatientID:          uuid.New(),
		RequestingDoctorID: uuid.New(),
		Ref:                visitRef(),
	})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}

	orders, _ := repo.ListInvestigationOrders(ctx, req.ID)
	if len(orders) != 2 {
		t.Fatalf("expected 2 investigation orders, got %d", len(orders))
	}
	if items, _ := repo.ListItemOrders(ctx, req.ID); len(items) != 0 {
		t.Fatal("investigation submit must not create item orders")
	}
}

func TestSubmitPartialFailure(t *testing.T) {
	repo := newMockRepo()
	repo.failItemNamed = "Paracetamol"
	svc := NewService(repo)
	ctx := context.Background()

	b := svc.BuilderFor("s1")
	b.SelectType(KindMedicine)
	b.AddItem(*seedCatalogItem(t, repo, KindMedicine, "Amoxicillin", 12.50))
	b.AddItem(*seedCatalogItem(t, repo, KindMedicine, "Paracetamol", 2))
	b.AddItem(*seedCatalogItem(t, repo, KindMedicine, "Cetirizine", 3))

	_, err := svc.Submit(ctx, "s1", SubmitParams{
		PatientID:          uuid.New(),
		RequestingDoctorID: uuid.New(),
		Ref:                visitRef(),
	})

	var partial *PartialSubmitError
	if !errors.As(err, &partial) {
		t.Fatalf("expected PartialSubmitError, got %v", err)
	}
	if partial.Attempted != 3 || partial.Succeeded != 1 {
		t.Fatalf("expected 1 of 3 succeeded, got %d of %d", partial.Succeeded, partial.Attempted)
	}

	// The requisition exists with the partial item set.
	req, getErr := repo.GetRequisition(ctx, partial.RequisitionID)
	if getErr != nil {
		t.Fatalf("requisition should exist after partial failure: %v", getErr)
	}
	orders, _ := repo.ListItemOrders(ctx, req.ID)
	if len(orders) != 1 {
		t.Fatalf("expected 1 attached item order, got %d", len(orders))
	}

	// The draft is preserved so the user can retry.
	if got := len(b.Items()); got != 3 {
		t.Fatalf("draft should be preserved after partial failure, got %d lines", got)
	}
}

func TestSubmitInvalidatesSummaryCaches(t *testing.T) {
	repo := newMockRepo()
	svc := NewService(repo)
	ctx := context.Background()
	ref := visitRef()

	// Warm all three caches.
	if _, err := svc.CountAll(ctx); err != nil {
		t.Fatalf("CountAll: %v", err)
	}
	if _, err := svc.CountByEncounter(ctx, ref); err != nil {
		t.Fatalf("CountByEncounter: %v", err)
	}
	if _, err := svc.CountByKind(ctx, KindMedicine); err != nil {
		t.Fatalf("CountByKind: %v", err)
	}

	// Cached: repeated reads hit no repo calls.
	calls := repo.countAllCalls
	if _, err := svc.CountAll(ctx); err != nil {
		t.Fatalf("CountAll: %v", err)
	}
	if repo.countAllCalls != calls {
		t.Fatal("second CountAll should be served from cache")
	}

	b := svc.BuilderFor("s1")
	b.SelectType(KindMedicine)
	b.AddItem(*seedCatalogItem(t, repo, KindMedicine, "Amoxicillin", 12.50))

	if _, err := svc.Submit(ctx, "s1", SubmitParams{
		PatientID:          uuid.New(),
		RequestingDoctorID: uuid.New(),
		Ref:                ref,
	}); err != nil {
		t.Fatalf("Submit: %v", err)
	}

	n, err := svc.CountAll(ctx)
	if err != nil {
		t.Fatalf("CountAll: %v", err)
	}
	if n != 1 {
		t.Fatalf("total count should reflect the new requisition, got %d", n)
	}
	if repo.countAllCalls != calls+1 {
		t.Fatal("submit should have invalidated the total count cache")
	}
	if n, _ := svc.CountByEncounter(ctx, ref); n != 1 {
		t.Fatalf("encounter count should reflect the new requisition, got %d", n)
	}
	if n, _ := svc.CountByKind(ctx, KindMedicine); n != 1 {
		t.Fatalf("kind count should reflect the new requisition, got %d", n)
	}
}

func TestStatusLifecycle(t *testing.T) {
	repo := newMockRepo()
	svc := NewService(repo)
	ctx := context.Background()

	b := svc.BuilderFor("s1")
	b.AddItem(*seedCatalogItem(t, repo, KindInvestigation, "CBC", 0))
	req, err := svc.Submit(ctx, "s1", SubmitParams{
		PatientID:          uuid.New(),
		RequestingDoctorID: uuid.New(),
		Ref:                visitRef(),
	})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}

	if err := svc.UpdateStatus(ctx, req.ID, StatusDraft); err == nil {
		t.Fatal("submitted requisition must not move back to draft")
	}
	if err := svc.UpdateStatus(ctx, req.ID, StatusCompleted); err != nil {
		t.Fatalf("submitted → completed: %v", err)
	}
	if err := svc.UpdateStatus(ctx, req.ID, StatusCancelled); err == nil {
		t.Fatal("completed is terminal")
	}
}

func TestBuildersAreSessionScoped(t *testing.T) {
	repo := newMockRepo()
	svc := NewService(repo)

	a := svc.BuilderFor("session-a")
	b := svc.BuilderFor("session-b")
	if a == b {
		t.Fatal("sessions must get distinct builders")
	}

	a.SelectType(KindMedicine)
	a.AddItem(*seedCatalogItem(t, repo, KindMedicine, "Amoxicillin", 12.50))
	if got := len(b.Items()); got != 0 {
		t.Fatalf("drafting in one session leaked into another: %d lines", got)
	}

	svc.DropBuilder("session-a")
	if fresh := svc.BuilderFor("session-a"); len(fresh.Items()) != 0 {
		t.Fatal("dropped builder should be replaced by a fresh one")
	}
}
