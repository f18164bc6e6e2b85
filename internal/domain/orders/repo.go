package orders

import (
	"context"

	"github.com/google/uuid"

	"github.com/hms/hms/internal/domain/encounter"
)

// RequisitionFilter narrows requisition listings.
type RequisitionFilter struct {
	Ref  *encounter.Ref
	Kind *Kind
}

// Repository is the persistence contract for requisitions, their typed
// sub-orders and the order catalog.
type Repository interface {
	// CreateRequisition inserts a bare requisition (two-phase protocol).
	CreateRequisition(ctx context.Context, r *Requisition) error
	// CreateWithInvestigations inserts a requisition and its investigation
	// orders in one transaction (single round trip for the investigation
	// kind).
	CreateWithInvestigations(ctx context.Context, r *Requisition, orders []*InvestigationOrder) error
	GetRequisition(ctx context.Context, id uuid.UUID) (*Requisition, error)
	ListRequisitions(ctx context.Context, f RequisitionFilter, limit, offset int) ([]*Requisition, int, error)
	UpdateStatus(ctx context.Context, id uuid.UUID, status string) error

	AddItemOrder(ctx context.Context, o *ItemOrder) error
	ListItemOrders(ctx context.Context, requisitionID uuid.UUID) ([]*ItemOrder, error)
	ListInvestigationOrders(ctx context.Context, requisitionID uuid.UUID) ([]*InvestigationOrder, error)

	CountAll(ctx context.Context) (int, error)
	CountByEncounter(ctx context.Context, ref encounter.Ref) (int, error)
	CountByKind(ctx context.Context, k Kind) (int, error)

	SearchCatalog(ctx context.Context, kind Kind, prefix string, limit int) ([]*CatalogItem, error)
	GetCatalogItem(ctx context.Context, id uuid.UUID) (*CatalogItem, error)
	CreateCatalogItem(ctx context.Context, item *CatalogItem) error
}
