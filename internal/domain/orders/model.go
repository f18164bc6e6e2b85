package orders

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/hms/hms/internal/domain/encounter"
)

// Kind is the requisition type. Exactly one kind per requisition; all
// sub-orders share it.
type Kind string

const (
	KindInvestigation Kind = "investigation"
	KindMedicine      Kind = "medicine"
	KindProcedure     Kind = "procedure"
	KindPackage       Kind = "package"
)

var validKinds = map[Kind]bool{
	KindInvestigation: true,
	KindMedicine:      true,
	KindProcedure:     true,
	KindPackage:       true,
}

// ParseKind validates a raw requisition kind.
func ParseKind(s string) (Kind, error) {
	if !validKinds[Kind(s)] {
		return "", fmt.Errorf("invalid requisition kind: %q", s)
	}
	return Kind(s), nil
}

// Requisition priorities.
const (
	PriorityRoutine = "routine"
	PriorityUrgent  = "urgent"
	PriorityStat    = "stat"
)

var validPriorities = map[string]bool{
	PriorityRoutine: true,
	PriorityUrgent:  true,
	PriorityStat:    true,
}

// Requisition statuses.
const (
	StatusDraft     = "draft"
	StatusSubmitted = "submitted"
	StatusCompleted = "completed"
	StatusCancelled = "cancelled"
)

// Requisition maps to the requisition table.
type Requisition struct {
	ID                 uuid.UUID      `db:"id" json:"id"`
	PatientID          uuid.UUID      `db:"patient_id" json:"patient_id"`
	RequestingDoctorID uuid.UUID      `db:"requesting_doctor_id" json:"requesting_doctor_id"`
	Type               Kind           `db:"requisition_type" json:"requisition_type"`
	EncounterType      encounter.Kind `db:"encounter_type" json:"encounter_type"`
	ObjectID           uuid.UUID      `db:"object_id" json:"object_id"`
	Priority           string         `db:"priority" json:"priority"`
	ClinicalNotes      *string        `db:"clinical_notes" json:"clinical_notes,omitempty"`
	Status             string         `db:"status" json:"status"`
	CreatedAt          time.Time      `db:"created_at" json:"created_at"`
	UpdatedAt          time.Time      `db:"updated_at" json:"updated_at"`
}

// Ref returns the encounter reference the requisition is scoped to.
func (r *Requisition) Ref() encounter.Ref {
	return encounter.Ref{Kind: r.EncounterType, ObjectID: r.ObjectID}
}

// InvestigationOrder maps to the investigation_order table.
type InvestigationOrder struct {
	ID              uuid.UUID  `db:"id" json:"id"`
	RequisitionID   uuid.UUID  `db:"requisition_id" json:"requisition_id"`
	InvestigationID uuid.UUID  `db:"investigation_id" json:"investigation_id"`
	Name            string     `db:"name" json:"name"`
	SampleID        *string    `db:"sample_id" json:"sample_id,omitempty"`
	Notes           *string    `db:"notes" json:"notes,omitempty"`
	CreatedAt       time.Time  `db:"created_at" json:"created_at"`
}

// ItemOrder maps to the item_order table; used for medicine, procedure and
// package requisitions, which carry quantity and price.
type ItemOrder struct {
	ID            uuid.UUID `db:"id" json:"id"`
	RequisitionID uuid.UUID `db:"requisition_id" json:"requisition_id"`
	ItemID        uuid.UUID `db:"item_id" json:"item_id"`
	Name          string    `db:"name" json:"name"`
	Code          *string   `db:"code" json:"code,omitempty"`
	Quantity      int       `db:"quantity" json:"quantity"`
	UnitPrice     float64   `db:"unit_price" json:"unit_price"`
	Notes         *string   `db:"notes" json:"notes,omitempty"`
	CreatedAt     time.Time `db:"created_at" json:"created_at"`
}

// CatalogItem maps to the order_catalog_item table and backs the builder's
// item search.
type CatalogItem struct {
	ID        uuid.UUID `db:"id" json:"id"`
	Kind      Kind      `db:"kind" json:"kind"`
	Name      string    `db:"name" json:"name"`
	Code      *string   `db:"code" json:"code,omitempty"`
	UnitPrice *float64  `db:"unit_price" json:"unit_price,omitempty"`
	IsActive  bool      `db:"is_active" json:"is_active"`
}

// DraftOrderItem is one line of an in-progress order. Builder-local, never
// persisted; discarded on kind switch or session close.
type DraftOrderItem struct {
	LocalID   uuid.UUID `json:"local_id"`
	ItemID    uuid.UUID `json:"item_id"`
	ItemName  string    `json:"item_name"`
	ItemCode  *string   `json:"item_code,omitempty"`
	Quantity  int       `json:"quantity"`
	UnitPrice *float64  `json:"unit_price,omitempty"`
	Notes     string    `json:"notes,omitempty"`
}

// LineTotal returns quantity times unit price (zero when unpriced).
func (d *DraftOrderItem) LineTotal() float64 {
	if d.UnitPrice == nil {
		return 0
	}
	return float64(d.Quantity) * *d.UnitPrice
}
