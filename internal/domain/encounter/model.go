package encounter

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Kind discriminates the two encounter contexts a clinical record can be
// scoped to: an outpatient visit or an inpatient admission.
type Kind string

const (
	KindVisit     Kind = "visit"
	KindAdmission Kind = "admission"
)

// ParseKind validates a raw encounter kind string.
func ParseKind(s string) (Kind, error) {
	switch Kind(s) {
	case KindVisit, KindAdmission:
		return Kind(s), nil
	default:
		return "", fmt.Errorf("invalid encounter kind: %q", s)
	}
}

// Ref identifies one concrete encounter. Downstream packages (charting,
// attachments, orders) key every query on this pair and never carry
// separate visit/admission fields.
type Ref struct {
	Kind     Kind      `json:"encounter_type"`
	ObjectID uuid.UUID `json:"object_id"`
}

// Valid reports whether the ref is fully populated.
func (r Ref) Valid() bool {
	return (r.Kind == KindVisit || r.Kind == KindAdmission) && r.ObjectID != uuid.Nil
}

// Visit maps to the visit table.
type Visit struct {
	ID        uuid.UUID  `db:"id" json:"id"`
	PatientID uuid.UUID  `db:"patient_id" json:"patient_id"`
	DoctorID  uuid.UUID  `db:"doctor_id" json:"doctor_id"`
	Status    string     `db:"status" json:"status"`
	VisitDate time.Time  `db:"visit_date" json:"visit_date"`
	Reason    *string    `db:"reason" json:"reason,omitempty"`
	ClosedAt  *time.Time `db:"closed_at" json:"closed_at,omitempty"`
	CreatedAt time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt time.Time  `db:"updated_at" json:"updated_at"`
}

// Ref returns the encounter reference for this visit.
func (v *Visit) Ref() Ref {
	return Ref{Kind: KindVisit, ObjectID: v.ID}
}

// Admission maps to the admission table.
type Admission struct {
	ID           uuid.UUID  `db:"id" json:"id"`
	PatientID    uuid.UUID  `db:"patient_id" json:"patient_id"`
	WardID       *uuid.UUID `db:"ward_id" json:"ward_id,omitempty"`
	BedNumber    *string    `db:"bed_number" json:"bed_number,omitempty"`
	Status       string     `db:"status" json:"status"`
	AdmittedAt   time.Time  `db:"admitted_at" json:"admitted_at"`
	DischargedAt *time.Time `db:"discharged_at" json:"discharged_at,omitempty"`
	CreatedAt    time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time  `db:"updated_at" json:"updated_at"`
}

// Ref returns the encounter reference for this admission.
func (a *Admission) Ref() Ref {
	return Ref{Kind: KindAdmission, ObjectID: a.ID}
}
