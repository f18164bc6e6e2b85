package charting

import (
	"context"
	"encoding/json"

	"github.com/google/uuid"

	"github.com/hms/hms/internal/domain/encounter"
)

// ResponseFilter narrows response listings.
type ResponseFilter struct {
	Ref        *encounter.Ref
	TemplateID *uuid.UUID
}

// Repository is the persistence contract for templates, responses and
// response templates.
type Repository interface {
	CreateTemplate(ctx context.Context, t *Template) error
	GetTemplate(ctx context.Context, id uuid.UUID) (*Template, error)
	GetTemplateFields(ctx context.Context, templateID uuid.UUID) ([]*TemplateField, error)
	ListTemplates(ctx context.Context, limit, offset int) ([]*Template, int, error)
	UpdateTemplate(ctx context.Context, t *Template) error
	SetTemplateActive(ctx context.Context, id uuid.UUID, active bool) error

	// CreateResponse assigns the next sequence number for the response's
	// (encounter_type, object_id) pair atomically with the insert.
	CreateResponse(ctx context.Context, r *Response) error
	GetResponse(ctx context.Context, id uuid.UUID) (*Response, error)
	ListResponses(ctx context.Context, f ResponseFilter, limit, offset int) ([]*Response, int, error)
	UpdateResponse(ctx context.Context, r *Response) error
	SaveCanvas(ctx context.Context, id uuid.UUID, canvas json.RawMessage) error
	DeleteResponse(ctx context.Context, id uuid.UUID) error

	GetFieldResponses(ctx context.Context, responseID uuid.UUID) ([]*FieldResponse, error)
	// ReplaceFieldResponses swaps the full field-response set of a response
	// in one transaction; on error nothing is applied.
	ReplaceFieldResponses(ctx context.Context, responseID uuid.UUID, frs []FieldResponse) error

	CreateResponseTemplate(ctx context.Context, rt *ResponseTemplate) error
	GetResponseTemplate(ctx context.Context, id uuid.UUID) (*ResponseTemplate, error)
	ListResponseTemplates(ctx context.Context, templateID, userID uuid.UUID) ([]*ResponseTemplate, error)
	IncrementUsage(ctx context.Context, id uuid.UUID) error
}
