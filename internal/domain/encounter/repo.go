package encounter

import (
	"context"

	"github.com/google/uuid"
)

// Repository is the persistence contract for visits and admissions.
type Repository interface {
	CreateVisit(ctx context.Context, v *Visit) error
	GetVisit(ctx context.Context, id uuid.UUID) (*Visit, error)
	UpdateVisit(ctx context.Context, v *Visit) error
	DeleteVisit(ctx context.Context, id uuid.UUID) error
	ListVisits(ctx context.Context, limit, offset int) ([]*Visit, int, error)
	ListVisitsByPatient(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]*Visit, int, error)

	CreateAdmission(ctx context.Context, a *Admission) error
	GetAdmission(ctx context.Context, id uuid.UUID) (*Admission, error)
	UpdateAdmission(ctx context.Context, a *Admission) error
	ListAdmissions(ctx context.Context, limit, offset int) ([]*Admission, int, error)
	ListAdmissionsByPatient(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]*Admission, int, error)
	// ActiveAdmissionForPatient returns the newest admission with status
	// "admitted" for the patient, or ErrNotFound.
	ActiveAdmissionForPatient(ctx context.Context, patientID uuid.UUID) (*Admission, error)
}
