package charting

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

// The codec converts between the typed value slots stored on a
// FieldResponse and the loosely typed values a form payload carries.
// json and canvas fields never pass through here; they travel on their own
// channel. Selection-typed fields with no options defined are skipped in
// both directions.

// DecodeFieldValues maps stored field responses to form values keyed by
// field id. Multiselect and checkbox-with-options yield a (possibly empty)
// []int64; select and radio yield the first selected option id or nothing;
// every other type yields the first non-nil slot in the order text, number,
// date, datetime, boolean.
func DecodeFieldValues(fields []*TemplateField, responses []*FieldResponse) map[uuid.UUID]interface{} {
	byField := make(map[uuid.UUID]*FieldResponse, len(responses))
	for _, fr := range responses {
		byField[fr.FieldID] = fr
	}

	values := make(map[uuid.UUID]interface{})
	for _, f := range fields {
		if f.Type == FieldJSON || f.Type == FieldCanvas {
			continue
		}
		if f.Type.IsSelection() && !f.HasOptions() {
			continue
		}
		fr, ok := byField[f.ID]
		if !ok {
			continue
		}

		switch {
		case f.Type == FieldMultiselect, f.Type == FieldCheckbox && f.HasOptions():
			ids := fr.SelectedOptionIDs
			if ids == nil {
				ids = []int64{}
			}
			values[f.ID] = ids
		case f.Type == FieldSelect, f.Type == FieldRadio:
			if len(fr.SelectedOptionIDs) > 0 {
				values[f.ID] = fr.SelectedOptionIDs[0]
			}
		default:
			if v, ok := firstSlot(fr); ok {
				values[f.ID] = v
			}
		}
	}
	return values
}

// firstSlot returns the first populated plain slot in priority order.
func firstSlot(fr *FieldResponse) (interface{}, bool) {
	switch {
	case fr.ValueText != nil:
		return *fr.ValueText, true
	case fr.ValueNumber != nil:
		return *fr.ValueNumber, true
	case fr.ValueDate != nil:
		return *fr.ValueDate, true
	case fr.ValueDatetime != nil:
		return *fr.ValueDatetime, true
	case fr.ValueBool != nil:
		return *fr.ValueBool, true
	default:
		return nil, false
	}
}

// EncodeFieldValues turns form values into field responses, one per touched
// field, each with exactly one populated slot. Nil values produce no
// FieldResponse. Unknown field ids in the map are ignored.
func EncodeFieldValues(values map[uuid.UUID]interface{}, fields []*TemplateField) ([]FieldResponse, error) {
	var out []FieldResponse
	for _, f := range fields {
		if f.Type == FieldJSON || f.Type == FieldCanvas {
			continue
		}
		raw, ok := values[f.ID]
		if !ok || raw == nil {
			continue
		}

		fr := FieldResponse{FieldID: f.ID}
		switch f.Type {
		case FieldText, FieldTextarea:
			s := toString(raw)
			fr.ValueText = &s
		case FieldNumber, FieldDecimal:
			n, err := toFloat(raw)
			if err != nil {
				return nil, fmt.Errorf("field %q: %w", f.Label, err)
			}
			fr.ValueNumber = &n
		case FieldDate:
			t, err := toTime(raw, "2006-01-02")
			if err != nil {
				return nil, fmt.Errorf("field %q: %w", f.Label, err)
			}
			fr.ValueDate = &t
		case FieldDatetime:
			t, err := toTime(raw, time.RFC3339)
			if err != nil {
				return nil, fmt.Errorf("field %q: %w", f.Label, err)
			}
			fr.ValueDatetime = &t
		case FieldBoolean:
			b := toBool(raw)
			fr.ValueBool = &b
		case FieldCheckbox:
			if f.HasOptions() {
				ids, err := toOptionIDs(raw)
				if err != nil {
					return nil, fmt.Errorf("field %q: %w", f.Label, err)
				}
				fr.SelectedOptionIDs = ids
			} else {
				b := toBool(raw)
				fr.ValueBool = &b
			}
		case FieldSelect, FieldRadio:
			if !f.HasOptions() {
				continue
			}
			id, ok, err := toOptionID(raw)
			if err != nil {
				return nil, fmt.Errorf("field %q: %w", f.Label, err)
			}
			if ok {
				fr.SelectedOptionIDs = []int64{id}
			} else {
				fr.SelectedOptionIDs = []int64{}
			}
		case FieldMultiselect:
			if !f.HasOptions() {
				continue
			}
			ids, err := toOptionIDs(raw)
			if err != nil {
				return nil, fmt.Errorf("field %q: %w", f.Label, err)
			}
			fr.SelectedOptionIDs = ids
		default:
			s := toString(raw)
			fr.ValueText = &s
		}
		out = append(out, fr)
	}
	return out, nil
}

func toString(v interface{}) string {
	switch s := v.(type) {
	case string:
		return s
	case fmt.Stringer:
		return s.String()
	default:
		return fmt.Sprint(v)
	}
}

func toFloat(v interface{}) (float64, error) {
	switch n := v.(type) {
	case float64:
		return n, nil
	case float32:
		return float64(n), nil
	case int:
		return float64(n), nil
	case int64:
		return float64(n), nil
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		if err != nil {
			return 0, fmt.Errorf("not a number: %q", n)
		}
		return f, nil
	default:
		return 0, fmt.Errorf("not a number: %v", v)
	}
}

func toBool(v interface{}) bool {
	switch b := v.(type) {
	case bool:
		return b
	case string:
		s := strings.ToLower(strings.TrimSpace(b))
		return s == "true" || s == "1" || s == "yes" || s == "on"
	case float64:
		return b != 0
	case int:
		return b != 0
	default:
		return false
	}
}

func toTime(v interface{}, layout string) (time.Time, error) {
	switch t := v.(type) {
	case time.Time:
		return t, nil
	case string:
		s := strings.TrimSpace(t)
		if parsed, err := time.Parse(layout, s); err == nil {
			return parsed, nil
		}
		if parsed, err := time.Parse(time.RFC3339, s); err == nil {
			return parsed, nil
		}
		return time.Time{}, fmt.Errorf("not a valid date/time: %q", s)
	default:
		return time.Time{}, fmt.Errorf("not a valid date/time: %v", v)
	}
}

// toOptionID coerces a single-select value. A nil or empty value means
// "nothing selected" without being an error.
func toOptionID(v interface{}) (int64, bool, error) {
	switch id := v.(type) {
	case int64:
		return id, true, nil
	case int:
		return int64(id), true, nil
	case float64:
		return int64(id), true, nil
	case string:
		s := strings.TrimSpace(id)
		if s == "" {
			return 0, false, nil
		}
		n, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			return 0, false, fmt.Errorf("not an option id: %q", id)
		}
		return n, true, nil
	default:
		return 0, false, fmt.Errorf("not an option id: %v", v)
	}
}

func toOptionIDs(v interface{}) ([]int64, error) {
	switch list := v.(type) {
	case []int64:
		return list, nil
	case []interface{}:
		ids := make([]int64, 0, len(list))
		for _, item := range list {
			id, ok, err := toOptionID(item)
			if err != nil {
				return nil, err
			}
			if ok {
				ids = append(ids, id)
			}
		}
		return ids, nil
	case []float64:
		ids := make([]int64, 0, len(list))
		for _, n := range list {
			ids = append(ids, int64(n))
		}
		return ids, nil
	default:
		// A bare scalar is treated as a single selection.
		id, ok, err := toOptionID(v)
		if err != nil {
			return nil, err
		}
		if !ok {
			return []int64{}, nil
		}
		return []int64{id}, nil
	}
}
