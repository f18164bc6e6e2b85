package charting

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/hms/hms/internal/platform/db"
)

type repoPG struct {
	pool *pgxpool.Pool
}

func NewRepo(pool *pgxpool.Pool) Repository {
	return &repoPG{pool: pool}
}

type querier interface {
	Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
}

func (r *repoPG) conn(ctx context.Context) querier {
	if tx := db.TxFromContext(ctx); tx != nil {
		return tx
	}
	if c := db.ConnFromContext(ctx); c != nil {
		return c
	}
	return r.pool
}

// -- Templates --

const tmplCols = `id, name, description, group_name, is_active, created_at, updated_at`

func (r *repoPG) CreateTemplate(ctx context.Context, t *Template) error {
	t.ID = uuid.New()
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO chart_template (id, name, description, group_name, is_active)
		VALUES ($1,$2,$3,$4,$5)`,
		t.ID, t.Name, t.Description, t.GroupName, t.IsActive,
	)
	if err != nil {
		return err
	}
	for i := range t.Fields {
		f := t.Fields[i]
		f.ID = uuid.New()
		f.TemplateID = t.ID
		if f.DisplayOrder == 0 {
			f.DisplayOrder = i + 1
		}
		_, err := r.conn(ctx).Exec(ctx, `
			INSERT INTO chart_template_field (id, template_id, label, field_type, is_required, display_order, help_text, placeholder)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8)`,
			f.ID, f.TemplateID, f.Label, f.Type, f.IsRequired, f.DisplayOrder, f.HelpText, f.Placeholder,
		)
		if err != nil {
			return fmt.Errorf("insert field %q: %w", f.Label, err)
		}
		for j := range f.Options {
			o := &f.Options[j]
			o.FieldID = f.ID
			if o.SortOrder == 0 {
				o.SortOrder = j + 1
			}
			if err := r.conn(ctx).QueryRow(ctx, `
				INSERT INTO chart_field_option (field_id, label, sort_order)
				VALUES ($1,$2,$3) RETURNING id`,
				o.FieldID, o.Label, o.SortOrder,
			).Scan(&o.ID); err != nil {
				return fmt.Errorf("insert option %q: %w", o.Label, err)
			}
		}
	}
	return nil
}

func (r *repoPG) GetTemplate(ctx context.Context, id uuid.UUID) (*Template, error) {
	var t Template
	err := r.conn(ctx).QueryRow(ctx, `SELECT `+tmplCols+` FROM chart_template WHERE id = $1`, id).
		Scan(&t.ID, &t.Name, &t.Description, &t.GroupName, &t.IsActive, &t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	t.Fields, err = r.GetTemplateFields(ctx, t.ID)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func (r *repoPG) GetTemplateFields(ctx context.Context, templateID uuid.UUID) ([]*TemplateField, error) {
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT id, template_id, label, field_type, is_required, display_order, help_text, placeholder
		FROM chart_template_field WHERE template_id = $1 ORDER BY display_order`, templateID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var fields []*TemplateField
	byID := make(map[uuid.UUID]*TemplateField)
	for rows.Next() {
		var f TemplateField
		if err := rows.Scan(&f.ID, &f.TemplateID, &f.Label, &f.Type, &f.IsRequired, &f.DisplayOrder, &f.HelpText, &f.Placeholder); err != nil {
			return nil, err
		}
		fields = append(fields, &f)
		byID[f.ID] = &f
	}
	if len(fields) == 0 {
		return fields, nil
	}

	fieldIDs := make([]uuid.UUID, 0, len(fields))
	for _, f := range fields {
		fieldIDs = append(fieldIDs, f.ID)
	}
	optRows, err := r.conn(ctx).Query(ctx, `
		SELECT id, field_id, label, sort_order
		FROM chart_field_option WHERE field_id = ANY($1) ORDER BY sort_order`, fieldIDs)
	if err != nil {
		return nil, err
	}
	defer optRows.Close()
	for optRows.Next() {
		var o FieldOption
		if err := optRows.Scan(&o.ID, &o.FieldID, &o.Label, &o.SortOrder); err != nil {
			return nil, err
		}
		if f, ok := byID[o.FieldID]; ok {
			f.Options = append(f.Options, o)
		}
	}
	return fields, nil
}

func (r *repoPG) ListTemplates(ctx context.Context, limit, offset int) ([]*Template, int, error) {
	var total int
	if err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM chart_template WHERE is_active`).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := r.conn(ctx).Query(ctx,
		`SELECT `+tmplCols+` FROM chart_template WHERE is_active ORDER BY group_name NULLS LAST, name LIMIT $1 OFFSET $2`,
		limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var tmpls []*Template
	for rows.Next() {
		var t Template
		if err := rows.Scan(&t.ID, &t.Name, &t.Description, &t.GroupName, &t.IsActive, &t.CreatedAt, &t.UpdatedAt); err != nil {
			return nil, 0, err
		}
		tmpls = append(tmpls, &t)
	}
	return tmpls, total, nil
}

func (r *repoPG) UpdateTemplate(ctx context.Context, t *Template) error {
	_, err := r.conn(ctx).Exec(ctx, `
		UPDATE chart_template SET name=$2, description=$3, group_name=$4, updated_at=NOW()
		WHERE id = $1`,
		t.ID, t.Name, t.Description, t.GroupName,
	)
	return err
}

func (r *repoPG) SetTemplateActive(ctx context.Context, id uuid.UUID, active bool) error {
	_, err := r.conn(ctx).Exec(ctx, `UPDATE chart_template SET is_active=$2, updated_at=NOW() WHERE id = $1`, id, active)
	return err
}

// -- Responses --

const respCols = `id, template_id, encounter_type, object_id, sequence_number, status,
	filled_by_id, reviewed_by_id, is_reviewed, doctor_switch_reason, canvas_data,
	response_date, created_at, updated_at`

func (r *repoPG) CreateResponse(ctx context.Context, resp *Response) error {
	resp.ID = uuid.New()
	// The subselect and insert run as one statement, so two concurrent
	// creates for the same encounter cannot observe the same max.
	return r.conn(ctx).QueryRow(ctx, `
		INSERT INTO chart_response
			(id, template_id, encounter_type, object_id, sequence_number, status,
			 filled_by_id, doctor_switch_reason, response_date)
		VALUES ($1,$2,$3,$4,
			(SELECT COALESCE(MAX(sequence_number), 0) + 1
			 FROM chart_response WHERE encounter_type = $3 AND object_id = $4),
			$5,$6,$7,$8)
		RETURNING sequence_number, created_at, updated_at`,
		resp.ID, resp.TemplateID, resp.EncounterType, resp.ObjectID,
		resp.Status, resp.FilledByID, resp.DoctorSwitchReason, resp.ResponseDate,
	).Scan(&resp.SequenceNumber, &resp.CreatedAt, &resp.UpdatedAt)
}

func (r *repoPG) GetResponse(ctx context.Context, id uuid.UUID) (*Response, error) {
	row := r.conn(ctx).QueryRow(ctx, `SELECT `+respCols+` FROM chart_response WHERE id = $1`, id)
	resp, err := scanResponse(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return resp, nil
}

func (r *repoPG) ListResponses(ctx context.Context, f ResponseFilter, limit, offset int) ([]*Response, int, error) {
	where := "TRUE"
	args := []interface{}{}
	n := 0
	if f.Ref != nil {
		where += fmt.Sprintf(" AND encounter_type = $%d AND object_id = $%d", n+1, n+2)
		args = append(args, f.Ref.Kind, f.Ref.ObjectID)
		n += 2
	}
	if f.TemplateID != nil {
		where += fmt.Sprintf(" AND template_id = $%d", n+1)
		args = append(args, *f.TemplateID)
		n++
	}

	var total int
	if err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM chart_response WHERE `+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	query := fmt.Sprintf(`
		SELECT r.id, r.template_id, r.encounter_type, r.object_id, r.sequence_number, r.status,
			r.filled_by_id, r.reviewed_by_id, r.is_reviewed, r.doctor_switch_reason, r.canvas_data,
			r.response_date, r.created_at, r.updated_at,
			(SELECT COUNT(*) FROM chart_field_response fr WHERE fr.response_id = r.id) AS field_response_count
		FROM chart_response r WHERE %s
		ORDER BY r.created_at DESC, r.sequence_number DESC LIMIT $%d OFFSET $%d`, where, n+1, n+2)
	args = append(args, limit, offset)

	rows, err := r.conn(ctx).Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var resps []*Response
	for rows.Next() {
		var resp Response
		if err := rows.Scan(
			&resp.ID, &resp.TemplateID, &resp.EncounterType, &resp.ObjectID, &resp.SequenceNumber, &resp.Status,
			&resp.FilledByID, &resp.ReviewedByID, &resp.IsReviewed, &resp.DoctorSwitchReason, &resp.CanvasData,
			&resp.ResponseDate, &resp.CreatedAt, &resp.UpdatedAt, &resp.FieldResponseCount,
		); err != nil {
			return nil, 0, err
		}
		resps = append(resps, &resp)
	}
	return resps, total, nil
}

func (r *repoPG) UpdateResponse(ctx context.Context, resp *Response) error {
	_, err := r.conn(ctx).Exec(ctx, `
		UPDATE chart_response SET status=$2, reviewed_by_id=$3, is_reviewed=$4, updated_at=NOW()
		WHERE id = $1`,
		resp.ID, resp.Status, resp.ReviewedByID, resp.IsReviewed,
	)
	return err
}

func (r *repoPG) SaveCanvas(ctx context.Context, id uuid.UUID, canvas json.RawMessage) error {
	tag, err := r.conn(ctx).Exec(ctx, `UPDATE chart_response SET canvas_data=$2, updated_at=NOW() WHERE id = $1`, id, canvas)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *repoPG) DeleteResponse(ctx context.Context, id uuid.UUID) error {
	_, err := r.conn(ctx).Exec(ctx, `DELETE FROM chart_response WHERE id = $1`, id)
	return err
}

// -- Field responses --

func (r *repoPG) GetFieldResponses(ctx context.Context, responseID uuid.UUID) ([]*FieldResponse, error) {
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT id, response_id, field_id, value_text, value_number, value_date, value_datetime, value_bool, selected_option_ids
		FROM chart_field_response WHERE response_id = $1`, responseID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var frs []*FieldResponse
	for rows.Next() {
		var fr FieldResponse
		if err := rows.Scan(&fr.ID, &fr.ResponseID, &fr.FieldID,
			&fr.ValueText, &fr.ValueNumber, &fr.ValueDate, &fr.ValueDatetime, &fr.ValueBool, &fr.SelectedOptionIDs); err != nil {
			return nil, err
		}
		frs = append(frs, &fr)
	}
	return frs, nil
}

func (r *repoPG) ReplaceFieldResponses(ctx context.Context, responseID uuid.UUID, frs []FieldResponse) error {
	return db.WithTx(ctx, r.pool, func(ctx context.Context) error {
		q := r.conn(ctx)
		if _, err := q.Exec(ctx, `DELETE FROM chart_field_response WHERE response_id = $1`, responseID); err != nil {
			return err
		}
		for i := range frs {
			fr := &frs[i]
			fr.ID = uuid.New()
			fr.ResponseID = responseID
			if _, err := q.Exec(ctx, `
				INSERT INTO chart_field_response
					(id, response_id, field_id, value_text, value_number, value_date, value_datetime, value_bool, selected_option_ids)
				VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)`,
				fr.ID, fr.ResponseID, fr.FieldID,
				fr.ValueText, fr.ValueNumber, fr.ValueDate, fr.ValueDatetime, fr.ValueBool, fr.SelectedOptionIDs,
			); err != nil {
				return err
			}
		}
		if _, err := q.Exec(ctx, `UPDATE chart_response SET updated_at=NOW() WHERE id = $1`, responseID); err != nil {
			return err
		}
		return nil
	})
}

// -- Response templates --

const rtCols = `id, template_id, name, is_public, usage_count, created_by, field_values, created_at`

func (r *repoPG) CreateResponseTemplate(ctx context.Context, rt *ResponseTemplate) error {
	rt.ID = uuid.New()
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO chart_response_template (id, template_id, name, is_public, created_by, field_values)
		VALUES ($1,$2,$3,$4,$5,$6)`,
		rt.ID, rt.TemplateID, rt.Name, rt.IsPublic, rt.CreatedBy, rt.Values,
	)
	return err
}

func (r *repoPG) GetResponseTemplate(ctx context.Context, id uuid.UUID) (*ResponseTemplate, error) {
	var rt ResponseTemplate
	err := r.conn(ctx).QueryRow(ctx, `SELECT `+rtCols+` FROM chart_response_template WHERE id = $1`, id).
		Scan(&rt.ID, &rt.TemplateID, &rt.Name, &rt.IsPublic, &rt.UsageCount, &rt.CreatedBy, &rt.Values, &rt.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &rt, nil
}

func (r *repoPG) ListResponseTemplates(ctx context.Context, templateID, userID uuid.UUID) ([]*ResponseTemplate, error) {
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT `+rtCols+` FROM chart_response_template
		WHERE template_id = $1 AND (is_public OR created_by = $2)
		ORDER BY usage_count DESC, name`, templateID, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var rts []*ResponseTemplate
	for rows.Next() {
		var rt ResponseTemplate
		if err := rows.Scan(&rt.ID, &rt.TemplateID, &rt.Name, &rt.IsPublic, &rt.UsageCount, &rt.CreatedBy, &rt.Values, &rt.CreatedAt); err != nil {
			return nil, err
		}
		rts = append(rts, &rt)
	}
	return rts, nil
}

func (r *repoPG) IncrementUsage(ctx context.Context, id uuid.UUID) error {
	_, err := r.conn(ctx).Exec(ctx, `UPDATE chart_response_template SET usage_count = usage_count + 1 WHERE id = $1`, id)
	return err
}

func scanResponse(row pgx.Row) (*Response, error) {
	var resp Response
	err := row.Scan(
		&resp.ID, &resp.TemplateID, &resp.EncounterType, &resp.ObjectID, &resp.SequenceNumber, &resp.Status,
		&resp.FilledByID, &resp.ReviewedByID, &resp.IsReviewed, &resp.DoctorSwitchReason, &resp.CanvasData,
		&resp.ResponseDate, &resp.CreatedAt, &resp.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &resp, nil
}
