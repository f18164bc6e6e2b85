package charting

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/hms/hms/internal/domain/encounter"
	"github.com/hms/hms/internal/platform/metrics"
)

var (
	// ErrNotFound is returned when a template, response or response
	// template does not exist.
	ErrNotFound = errors.New("not found")
	// ErrNoEncounter signals that an operation requiring an encounter
	// context was attempted without one.
	ErrNoEncounter = errors.New("no active encounter")
	// ErrEmptyTemplateName rejects blank response-template names before
	// anything is stored.
	ErrEmptyTemplateName = errors.New("template name must not be empty")
	// ErrTemplateMismatch rejects applying a response template to a
	// response built from a different chart template.
	ErrTemplateMismatch = errors.New("response template belongs to a different chart template")
	// ErrArchived rejects edits to archived responses.
	ErrArchived = errors.New("response is archived")
)

type Service struct {
	repo Repository
	m    *metrics.Metrics
}

func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

// SetMetrics attaches optional application metrics.
func (s *Service) SetMetrics(m *metrics.Metrics) { s.m = m }

// -- Templates --

func (s *Service) CreateTemplate(ctx context.Context, t *Template) error {
	if strings.TrimSpace(t.Name) == "" {
		return fmt.Errorf("template name is required")
	}
	for _, f := range t.Fields {
		if !validFieldTypes[f.Type] {
			return fmt.Errorf("invalid field type: %s", f.Type)
		}
		if strings.TrimSpace(f.Label) == "" {
			return fmt.Errorf("field label is required")
		}
		if f.Type.IsSelection() && !f.HasOptions() {
			return fmt.Errorf("field %q: type %s requires options", f.Label, f.Type)
		}
	}
	t.IsActive = true
	return s.repo.CreateTemplate(ctx, t)
}

func (s *Service) GetTemplate(ctx context.Context, id uuid.UUID) (*Template, error) {
	return s.repo.GetTemplate(ctx, id)
}

func (s *Service) ListTemplates(ctx context.Context, limit, offset int) ([]*Template, int, error) {
	return s.repo.ListTemplates(ctx, limit, offset)
}

func (s *Service) UpdateTemplate(ctx context.Context, t *Template) error {
	if strings.TrimSpace(t.Name) == "" {
		return fmt.Errorf("template name is required")
	}
	return s.repo.UpdateTemplate(ctx, t)
}

func (s *Service) DeactivateTemplate(ctx context.Context, id uuid.UUID) error {
	return s.repo.SetTemplateActive(ctx, id, false)
}

// -- Response lifecycle --

// CreateResponse opens a new draft response against an encounter. The
// store assigns the next sequence number for the encounter pair.
func (s *Service) CreateResponse(ctx context.Context, ref encounter.Ref, templateID, filledBy uuid.UUID, switchReason *string) (*Response, error) {
	if !ref.Valid() {
		return nil, ErrNoEncounter
	}
	if templateID == uuid.Nil {
		return nil, fmt.Errorf("template_id is required")
	}
	if filledBy == uuid.Nil {
		return nil, fmt.Errorf("filled_by is required")
	}
	if switchReason != nil && strings.TrimSpace(*switchReason) == "" {
		switchReason = nil
	}

	resp := &Response{
		TemplateID:         templateID,
		EncounterType:      ref.Kind,
		ObjectID:           ref.ObjectID,
		Status:             StatusDraft,
		FilledByID:         filledBy,
		DoctorSwitchReason: switchReason,
		ResponseDate:       time.Now().UTC(),
	}
	if err := s.repo.CreateResponse(ctx, resp); err != nil {
		return nil, err
	}
	if s.m != nil {
		s.m.ResponsesCreated.Inc()
	}
	return resp, nil
}

// OpenResult is what selecting a template in a workspace yields.
type OpenResult struct {
	Responses      []*Response `json:"responses"`
	Active         *Response   `json:"active,omitempty"`
	AutoCreated    bool        `json:"auto_created"`
	RequiresReason bool        `json:"requires_reason"`
}

// OpenTemplate applies the auto-creation policy: a template with no
// responses for the encounter gets one silently; a template that already
// has responses requires an explicit create carrying an optional handover
// reason, so accidental duplicates need deliberate intent.
func (s *Service) OpenTemplate(ctx context.Context, ref encounter.Ref, templateID, userID uuid.UUID) (*OpenResult, error) {
	if !ref.Valid() {
		return nil, ErrNoEncounter
	}
	existing, _, err := s.repo.ListResponses(ctx, ResponseFilter{Ref: &ref, TemplateID: &templateID}, 100, 0)
	if err != nil {
		return nil, err
	}

	if len(existing) == 0 {
		resp, err := s.CreateResponse(ctx, ref, templateID, userID, nil)
		if err != nil {
			return nil, err
		}
		return &OpenResult{
			Responses:   []*Response{resp},
			Active:      resp,
			AutoCreated: true,
		}, nil
	}

	return &OpenResult{
		Responses:      existing,
		Active:         DeriveActive(existing),
		RequiresReason: true,
	}, nil
}

func (s *Service) GetResponse(ctx context.Context, id uuid.UUID) (*Response, error) {
	return s.repo.GetResponse(ctx, id)
}

func (s *Service) ListResponses(ctx context.Context, f ResponseFilter, limit, offset int) ([]*Response, int, error) {
	return s.repo.ListResponses(ctx, f, limit, offset)
}

// FieldValuesPayload bundles everything a form needs: the response, its
// template's field snapshot at fetch time, and the decoded values.
type FieldValuesPayload struct {
	Response *Response                 `json:"response"`
	Fields   []*TemplateField          `json:"fields"`
	Values   map[uuid.UUID]interface{} `json:"values"`
}

func (s *Service) LoadFieldValues(ctx context.Context, responseID uuid.UUID) (*FieldValuesPayload, error) {
	resp, err := s.repo.GetResponse(ctx, responseID)
	if err != nil {
		return nil, err
	}
	fields, err := s.repo.GetTemplateFields(ctx, resp.TemplateID)
	if err != nil {
		return nil, err
	}
	frs, err := s.repo.GetFieldResponses(ctx, responseID)
	if err != nil {
		return nil, err
	}
	return &FieldValuesPayload{
		Response: resp,
		Fields:   fields,
		Values:   DecodeFieldValues(fields, frs),
	}, nil
}

// SaveFields encodes the submitted values against the response's current
// field schema and replaces the stored set atomically. On any error the
// stored values are untouched.
func (s *Service) SaveFields(ctx context.Context, responseID uuid.UUID, values map[uuid.UUID]interface{}) error {
	resp, err := s.repo.GetResponse(ctx, responseID)
	if err != nil {
		return err
	}
	if resp.Status == StatusArchived {
		return ErrArchived
	}
	fields, err := s.repo.GetTemplateFields(ctx, resp.TemplateID)
	if err != nil {
		return err
	}
	frs, err := EncodeFieldValues(values, fields)
	if err != nil {
		return err
	}
	if err := s.repo.ReplaceFieldResponses(ctx, responseID, frs); err != nil {
		return err
	}
	if s.m != nil {
		s.m.FieldSaves.Inc()
	}
	return nil
}

func (s *Service) Complete(ctx context.Context, responseID uuid.UUID) error {
	resp, err := s.repo.GetResponse(ctx, responseID)
	if err != nil {
		return err
	}
	if resp.Status == StatusArchived {
		return ErrArchived
	}
	resp.Status = StatusCompleted
	if err := s.repo.UpdateResponse(ctx, resp); err != nil {
		return err
	}
	if s.m != nil {
		s.m.ResponsesCompleted.Inc()
	}
	return nil
}

// Review marks a response reviewed. Reviewed responses stay editable;
// review blocks nothing except re-derivation of "is this note done".
func (s *Service) Review(ctx context.Context, responseID, reviewerID uuid.UUID) error {
	resp, err := s.repo.GetResponse(ctx, responseID)
	if err != nil {
		return err
	}
	if resp.Status == StatusArchived {
		return ErrArchived
	}
	resp.Status = StatusReviewed
	resp.IsReviewed = true
	resp.ReviewedByID = &reviewerID
	return s.repo.UpdateResponse(ctx, resp)
}

func (s *Service) Unreview(ctx context.Context, responseID uuid.UUID) error {
	resp, err := s.repo.GetResponse(ctx, responseID)
	if err != nil {
		return err
	}
	if resp.Status == StatusArchived {
		return ErrArchived
	}
	resp.Status = StatusCompleted
	resp.IsReviewed = false
	resp.ReviewedByID = nil
	return s.repo.UpdateResponse(ctx, resp)
}

// Archive is terminal: an archived response accepts no further edits or
// transitions.
func (s *Service) Archive(ctx context.Context, responseID uuid.UUID) error {
	resp, err := s.repo.GetResponse(ctx, responseID)
	if err != nil {
		return err
	}
	resp.Status = StatusArchived
	return s.repo.UpdateResponse(ctx, resp)
}

// SaveCanvas stores the freehand drawing payload. Canvas data travels on
// its own channel, never through the field codec.
func (s *Service) SaveCanvas(ctx context.Context, responseID uuid.UUID, canvas json.RawMessage) error {
	if len(canvas) > 0 && !json.Valid(canvas) {
		return fmt.Errorf("canvas payload is not valid JSON")
	}
	return s.repo.SaveCanvas(ctx, responseID, canvas)
}

// -- Template reuse --

// SaveAsTemplate snapshots a response's current field values into a named,
// reusable response template.
func (s *Service) SaveAsTemplate(ctx context.Context, responseID uuid.UUID, name string, isPublic bool, userID uuid.UUID) (*ResponseTemplate, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, ErrEmptyTemplateName
	}
	resp, err := s.repo.GetResponse(ctx, responseID)
	if err != nil {
		return nil, err
	}
	frs, err := s.repo.GetFieldResponses(ctx, responseID)
	if err != nil {
		return nil, err
	}

	snapshot := make([]storedValue, 0, len(frs))
	for _, fr := range frs {
		snapshot = append(snapshot, storedValue{
			FieldID:           fr.FieldID,
			ValueText:         fr.ValueText,
			ValueNumber:       fr.ValueNumber,
			ValueDate:         fr.ValueDate,
			ValueDatetime:     fr.ValueDatetime,
			ValueBool:         fr.ValueBool,
			SelectedOptionIDs: fr.SelectedOptionIDs,
		})
	}
	raw, err := json.Marshal(snapshot)
	if err != nil {
		return nil, fmt.Errorf("marshal snapshot: %w", err)
	}

	rt := &ResponseTemplate{
		TemplateID: resp.TemplateID,
		Name:       name,
		IsPublic:   isPublic,
		CreatedBy:  userID,
		Values:     raw,
	}
	if err := s.repo.CreateResponseTemplate(ctx, rt); err != nil {
		return nil, err
	}
	return rt, nil
}

// ApplyTemplate overwrites the target response's field values with the
// stored snapshot. Origin templates must match.
func (s *Service) ApplyTemplate(ctx context.Context, responseID, responseTemplateID uuid.UUID) error {
	resp, err := s.repo.GetResponse(ctx, responseID)
	if err != nil {
		return err
	}
	if resp.Status == StatusArchived {
		return ErrArchived
	}
	rt, err := s.repo.GetResponseTemplate(ctx, responseTemplateID)
	if err != nil {
		return err
	}
	if rt.TemplateID != resp.TemplateID {
		return ErrTemplateMismatch
	}

	var snapshot []storedValue
	if err := json.Unmarshal(rt.Values, &snapshot); err != nil {
		return fmt.Errorf("unmarshal snapshot: %w", err)
	}
	frs := make([]FieldResponse, 0, len(snapshot))
	for _, sv := range snapshot {
		frs = append(frs, FieldResponse{
			FieldID:           sv.FieldID,
			ValueText:         sv.ValueText,
			ValueNumber:       sv.ValueNumber,
			ValueDate:         sv.ValueDate,
			ValueDatetime:     sv.ValueDatetime,
			ValueBool:         sv.ValueBool,
			SelectedOptionIDs: sv.SelectedOptionIDs,
		})
	}
	if err := s.repo.ReplaceFieldResponses(ctx, responseID, frs); err != nil {
		return err
	}
	return s.repo.IncrementUsage(ctx, responseTemplateID)
}

func (s *Service) ListResponseTemplates(ctx context.Context, templateID, userID uuid.UUID) ([]*ResponseTemplate, error) {
	return s.repo.ListResponseTemplates(ctx, templateID, userID)
}
