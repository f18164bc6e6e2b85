package encounter

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

var (
	// ErrNotFound is returned when a visit or admission does not exist.
	ErrNotFound = errors.New("encounter not found")
	// ErrNoActiveAdmission signals that the patient has no admission in
	// status "admitted"; callers surface this as a disabled admission
	// context, not a failure.
	ErrNoActiveAdmission = errors.New("no active admission for patient")
)

type Service struct {
	repo Repository
}

func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

var validVisitStatuses = map[string]bool{
	"scheduled":   true,
	"in-progress": true,
	"completed":   true,
	"cancelled":   true,
}

var validAdmissionStatuses = map[string]bool{
	"admitted":    true,
	"discharged":  true,
	"transferred": true,
	"cancelled":   true,
}

func (s *Service) CreateVisit(ctx context.Context, v *Visit) error {
	if v.PatientID == uuid.Nil {
		return fmt.Errorf("patient_id is required")
	}
	if v.DoctorID == uuid.Nil {
		return fmt.Errorf("doctor_id is required")
	}
	if v.Status == "" {
		v.Status = "scheduled"
	}
	if !validVisitStatuses[v.Status] {
		return fmt.Errorf("invalid visit status: %s", v.Status)
	}
	if v.VisitDate.IsZero() {
		v.VisitDate = time.Now().UTC()
	}
	return s.repo.CreateVisit(ctx, v)
}

func (s *Service) GetVisit(ctx context.Context, id uuid.UUID) (*Visit, error) {
	return s.repo.GetVisit(ctx, id)
}

func (s *Service) UpdateVisit(ctx context.Context, v *Visit) error {
	if v.Status != "" && !validVisitStatuses[v.Status] {
		return fmt.Errorf("invalid visit status: %s", v.Status)
	}
	return s.repo.UpdateVisit(ctx, v)
}

func (s *Service) DeleteVisit(ctx context.Context, id uuid.UUID) error {
	return s.repo.DeleteVisit(ctx, id)
}

func (s *Service) ListVisits(ctx context.Context, limit, offset int) ([]*Visit, int, error) {
	return s.repo.ListVisits(ctx, limit, offset)
}

func (s *Service) ListVisitsByPatient(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]*Visit, int, error) {
	return s.repo.ListVisitsByPatient(ctx, patientID, limit, offset)
}

func (s *Service) CreateAdmission(ctx context.Context, a *Admission) error {
	if a.PatientID == uuid.Nil {
		return fmt.Errorf("patient_id is required")
	}
	if a.Status == "" {
		a.Status = "admitted"
	}
	if !validAdmissionStatuses[a.Status] {
		return fmt.Errorf("invalid admission status: %s", a.Status)
	}
	if a.AdmittedAt.IsZero() {
		a.AdmittedAt = time.Now().UTC()
	}
	return s.repo.CreateAdmission(ctx, a)
}

func (s *Service) GetAdmission(ctx context.Context, id uuid.UUID) (*Admission, error) {
	return s.repo.GetAdmission(ctx, id)
}

func (s *Service) ListAdmissions(ctx context.Context, limit, offset int) ([]*Admission, int, error) {
	return s.repo.ListAdmissions(ctx, limit, offset)
}

func (s *Service) ListAdmissionsByPatient(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]*Admission, int, error) {
	return s.repo.ListAdmissionsByPatient(ctx, patientID, limit, offset)
}

// Discharge closes an active admission.
func (s *Service) Discharge(ctx context.Context, id uuid.UUID) error {
	adm, err := s.repo.GetAdmission(ctx, id)
	if err != nil {
		return err
	}
	if adm.Status != "admitted" {
		return fmt.Errorf("admission is not active: status %s", adm.Status)
	}
	now := time.Now().UTC()
	adm.Status = "discharged"
	adm.DischargedAt = &now
	return s.repo.UpdateAdmission(ctx, adm)
}

// ActiveAdmissionForPatient returns the patient's current admission or
// ErrNoActiveAdmission.
func (s *Service) ActiveAdmissionForPatient(ctx context.Context, patientID uuid.UUID) (*Admission, error) {
	adm, err := s.repo.ActiveAdmissionForPatient(ctx, patientID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, ErrNoActiveAdmission
		}
		return nil, err
	}
	return adm, nil
}

// Resolve maps an encounter kind to a concrete Ref. For visits the ref is
// the visit itself; for admissions it is the patient's active admission.
func (s *Service) Resolve(ctx context.Context, kind Kind, visitID, patientID uuid.UUID) (Ref, error) {
	switch kind {
	case KindVisit:
		if visitID == uuid.Nil {
			return Ref{}, fmt.Errorf("visit id is required to resolve a visit encounter")
		}
		v, err := s.repo.GetVisit(ctx, visitID)
		if err != nil {
			return Ref{}, err
		}
		return v.Ref(), nil
	case KindAdmission:
		adm, err := s.ActiveAdmissionForPatient(ctx, patientID)
		if err != nil {
			return Ref{}, err
		}
		return adm.Ref(), nil
	default:
		return Ref{}, fmt.Errorf("invalid encounter kind: %q", kind)
	}
}
