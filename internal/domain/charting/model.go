package charting

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/hms/hms/internal/domain/encounter"
)

// FieldType is the closed set of clinical field types. Rendering, encoding
// and decoding all dispatch on this tag through one exhaustive switch each.
type FieldType string

const (
	FieldText        FieldType = "text"
	FieldTextarea    FieldType = "textarea"
	FieldNumber      FieldType = "number"
	FieldDecimal     FieldType = "decimal"
	FieldBoolean     FieldType = "boolean"
	FieldDate        FieldType = "date"
	FieldDatetime    FieldType = "datetime"
	FieldTime        FieldType = "time"
	FieldSelect      FieldType = "select"
	FieldRadio       FieldType = "radio"
	FieldMultiselect FieldType = "multiselect"
	FieldCheckbox    FieldType = "checkbox"
	FieldJSON        FieldType = "json"
	FieldCanvas      FieldType = "canvas"
)

var validFieldTypes = map[FieldType]bool{
	FieldText: true, FieldTextarea: true, FieldNumber: true, FieldDecimal: true,
	FieldBoolean: true, FieldDate: true, FieldDatetime: true, FieldTime: true,
	FieldSelect: true, FieldRadio: true, FieldMultiselect: true, FieldCheckbox: true,
	FieldJSON: true, FieldCanvas: true,
}

// IsSelection reports whether the type stores its value as option ids.
// Checkbox only counts when the field actually defines options.
func (t FieldType) IsSelection() bool {
	switch t {
	case FieldSelect, FieldRadio, FieldMultiselect:
		return true
	default:
		return false
	}
}

// Template maps to the chart_template table.
type Template struct {
	ID          uuid.UUID `db:"id" json:"id"`
	Name        string    `db:"name" json:"name"`
	Description *string   `db:"description" json:"description,omitempty"`
	GroupName   *string   `db:"group_name" json:"group_name,omitempty"`
	IsActive    bool      `db:"is_active" json:"is_active"`
	CreatedAt   time.Time `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time `db:"updated_at" json:"updated_at"`

	Fields []*TemplateField `db:"-" json:"fields,omitempty"`
}

// TemplateField maps to the chart_template_field table.
type TemplateField struct {
	ID           uuid.UUID `db:"id" json:"id"`
	TemplateID   uuid.UUID `db:"template_id" json:"template_id"`
	Label        string    `db:"label" json:"label"`
	Type         FieldType `db:"field_type" json:"type"`
	IsRequired   bool      `db:"is_required" json:"is_required"`
	DisplayOrder int       `db:"display_order" json:"display_order"`
	HelpText     *string   `db:"help_text" json:"help_text,omitempty"`
	Placeholder  *string   `db:"placeholder" json:"placeholder,omitempty"`

	Options []FieldOption `db:"-" json:"options,omitempty"`
}

// HasOptions reports whether the field defines at least one option.
func (f *TemplateField) HasOptions() bool { return len(f.Options) > 0 }

// FieldOption maps to the chart_field_option table.
type FieldOption struct {
	ID        int64     `db:"id" json:"id"`
	FieldID   uuid.UUID `db:"field_id" json:"field_id"`
	Label     string    `db:"label" json:"label"`
	SortOrder int       `db:"sort_order" json:"sort_order"`
}

// Response statuses. Archived is terminal.
const (
	StatusDraft     = "draft"
	StatusCompleted = "completed"
	StatusReviewed  = "reviewed"
	StatusArchived  = "archived"
)

var validResponseStatuses = map[string]bool{
	StatusDraft:     true,
	StatusCompleted: true,
	StatusReviewed:  true,
	StatusArchived:  true,
}

// Response maps to the chart_response table: one filled instance of a
// template against one encounter. SequenceNumber is assigned by the store,
// strictly increasing per (encounter_type, object_id), never reused.
type Response struct {
	ID                  uuid.UUID       `db:"id" json:"id"`
	TemplateID          uuid.UUID       `db:"template_id" json:"template_id"`
	EncounterType       encounter.Kind  `db:"encounter_type" json:"encounter_type"`
	ObjectID            uuid.UUID       `db:"object_id" json:"object_id"`
	SequenceNumber      int             `db:"sequence_number" json:"sequence_number"`
	Status              string          `db:"status" json:"status"`
	FilledByID          uuid.UUID       `db:"filled_by_id" json:"filled_by_id"`
	ReviewedByID        *uuid.UUID      `db:"reviewed_by_id" json:"reviewed_by_id,omitempty"`
	IsReviewed          bool            `db:"is_reviewed" json:"is_reviewed"`
	DoctorSwitchReason  *string         `db:"doctor_switch_reason" json:"doctor_switch_reason,omitempty"`
	CanvasData          json.RawMessage `db:"canvas_data" json:"canvas_data,omitempty"`
	ResponseDate        time.Time       `db:"response_date" json:"response_date"`
	CreatedAt           time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt           time.Time       `db:"updated_at" json:"updated_at"`
	FieldResponseCount  int             `db:"-" json:"field_response_count"`
}

// Ref returns the encounter reference the response is scoped to.
func (r *Response) Ref() encounter.Ref {
	return encounter.Ref{Kind: r.EncounterType, ObjectID: r.ObjectID}
}

// FieldResponse maps to the chart_field_response table. Exactly one value
// slot is populated, selected by the owning field's type.
type FieldResponse struct {
	ID                uuid.UUID  `db:"id" json:"id"`
	ResponseID        uuid.UUID  `db:"response_id" json:"response_id"`
	FieldID           uuid.UUID  `db:"field_id" json:"field_id"`
	ValueText         *string    `db:"value_text" json:"value_text,omitempty"`
	ValueNumber       *float64   `db:"value_number" json:"value_number,omitempty"`
	ValueDate         *time.Time `db:"value_date" json:"value_date,omitempty"`
	ValueDatetime     *time.Time `db:"value_datetime" json:"value_datetime,omitempty"`
	ValueBool         *bool      `db:"value_bool" json:"value_bool,omitempty"`
	SelectedOptionIDs []int64    `db:"selected_option_ids" json:"selected_option_ids,omitempty"`
}

// PopulatedSlots counts how many value slots carry data.
func (fr *FieldResponse) PopulatedSlots() int {
	n := 0
	if fr.ValueText != nil {
		n++
	}
	if fr.ValueNumber != nil {
		n++
	}
	if fr.ValueDate != nil {
		n++
	}
	if fr.ValueDatetime != nil {
		n++
	}
	if fr.ValueBool != nil {
		n++
	}
	if fr.SelectedOptionIDs != nil {
		n++
	}
	return n
}

// ResponseTemplate maps to the chart_response_template table: a reusable,
// named snapshot of a response's field values, scoped to its origin
// template. UsageCount is tracked server-side on every apply.
type ResponseTemplate struct {
	ID         uuid.UUID       `db:"id" json:"id"`
	TemplateID uuid.UUID       `db:"template_id" json:"template_id"`
	Name       string          `db:"name" json:"name"`
	IsPublic   bool            `db:"is_public" json:"is_public"`
	UsageCount int             `db:"usage_count" json:"usage_count"`
	CreatedBy  uuid.UUID       `db:"created_by" json:"created_by"`
	Values     json.RawMessage `db:"field_values" json:"values"`
	CreatedAt  time.Time       `db:"created_at" json:"created_at"`
}

// storedValue is the serialized form of one field value inside a
// ResponseTemplate snapshot.
type storedValue struct {
	FieldID           uuid.UUID  `json:"field_id"`
	ValueText         *string    `json:"value_text,omitempty"`
	ValueNumber       *float64   `json:"value_number,omitempty"`
	ValueDate         *time.Time `json:"value_date,omitempty"`
	ValueDatetime     *time.Time `json:"value_datetime,omitempty"`
	ValueBool         *bool      `json:"value_bool,omitempty"`
	SelectedOptionIDs []int64    `json:"selected_option_ids,omitempty"`
}

// DeriveActive picks the response a workspace should open when none is
// explicitly chosen: newest created_at, tie-break higher sequence number.
func DeriveActive(responses []*Response) *Response {
	var active *Response
	for _, r := range responses {
		if active == nil {
			active = r
			continue
		}
		if r.CreatedAt.After(active.CreatedAt) {
			active = r
			continue
		}
		if r.CreatedAt.Equal(active.CreatedAt) && r.SequenceNumber > active.SequenceNumber {
			active = r
		}
	}
	return active
}
