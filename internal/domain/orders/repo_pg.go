package orders

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/hms/hms/internal/domain/encounter"
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

const reqCols = `id, patient_id, requesting_doctor_id, requisition_type, encounter_type, object_id,
	priority, clinical_notes, status, created_at, updated_at`

func (r *repoPG) CreateRequisition(ctx context.Context, req *Requisition) error {
	req.ID = uuid.New()
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO requisition
			(id, patient_id, requesting_doctor_id, requisition_type, encounter_type, object_id, priority, clinical_notes, status)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)`,
		req.ID, req.PatientID, req.RequestingDoctorID, req.Type, req.EncounterType, req.ObjectID,
		req.Priority, req.ClinicalNotes, req.Status,
	)
	return err
}

func (r *repoPG) CreateWithInvestigations(ctx context.Context, req *Requisition, orders []*InvestigationOrder) error {
	return db.WithTx(ctx, r.pool, func(ctx context.Context) error {
		if err := r.CreateRequisition(ctx, req); err != nil {
			return err
		}
		for _, o := range orders {
			o.ID = uuid.New()
			o.RequisitionID = req.ID
			if _, err := r.conn(ctx).Exec(ctx, `
				INSERT INTO investigation_order (id, requisition_id, investigation_id, name, sample_id, notes)
				VALUES ($1,$2,$3,$4,$5,$6)`,
				o.ID, o.RequisitionID, o.InvestigationID, o.Name, o.SampleID, o.Notes,
			); err != nil {
				return fmt.Errorf("insert investigation order %q: %w", o.Name, err)
			}
		}
		return nil
	})
}

func (r *repoPG) GetRequisition(ctx context.Context, id uuid.UUID) (*Requisition, error) {
	var req Requisition
	err := r.conn(ctx).QueryRow(ctx, `SELECT `+reqCols+` FROM requisition WHERE id = $1`, id).
		Scan(&req.ID, &req.PatientID, &req.RequestingDoctorID, &req.Type, &req.EncounterType, &req.ObjectID,
			&req.Priority, &req.ClinicalNotes, &req.Status, &req.CreatedAt, &req.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &req, nil
}

func (r *repoPG) ListRequisitions(ctx context.Context, f RequisitionFilter, limit, offset int) ([]*Requisition, int, error) {
	where := "TRUE"
	args := []interface{}{}
	n := 0
	if f.Ref != nil {
		where += fmt.Sprintf(" AND encounter_type = $%d AND object_id = $%d", n+1, n+2)
		args = append(args, f.Ref.Kind, f.Ref.ObjectID)
		n += 2
	}
	if f.Kind != nil {
		where += fmt.Sprintf(" AND requisition_type = $%d", n+1)
		args = append(args, *f.Kind)
		n++
	}

	var total int
	if err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM requisition WHERE `+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	query := fmt.Sprintf(`SELECT `+reqCols+` FROM requisition WHERE %s ORDER BY created_at DESC LIMIT $%d OFFSET $%d`, where, n+1, n+2)
	args = append(args, limit, offset)

	rows, err := r.conn(ctx).Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var reqs []*Requisition
	for rows.Next() {
		var req Requisition
		if err := rows.Scan(&req.ID, &req.PatientID, &req.RequestingDoctorID, &req.Type, &req.EncounterType, &req.ObjectID,
			&req.Priority, &req.ClinicalNotes, &req.Status, &req.CreatedAt, &req.UpdatedAt); err != nil {
			return nil, 0, err
		}
		reqs = append(reqs, &req)
	}
	return reqs, total, nil
}

func (r *repoPG) UpdateStatus(ctx context.Context, id uuid.UUID, status string) error {
	tag, err := r.conn(ctx).Exec(ctx, `UPDATE requisition SET status=$2, updated_at=NOW() WHERE id = $1`, id, status)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *repoPG) AddItemOrder(ctx context.Context, o *ItemOrder) error {
	o.ID = uuid.New()
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO item_order (id, requisition_id, item_id, name, code, quantity, unit_price, notes)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)`,
		o.ID, o.RequisitionID, o.ItemID, o.Name, o.Code, o.Quantity, o.UnitPrice, o.Notes,
	)
	return err
}

func (r *repoPG) ListItemOrders(ctx context.Context, requisitionID uuid.UUID) ([]*ItemOrder, error) {
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT id, requisition_id, item_id, name, code, quantity, unit_price, notes, created_at
		FROM item_order WHERE requisition_id = $1 ORDER BY created_at`, requisitionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var orders []*ItemOrder
	for rows.Next() {
		var o ItemOrder
		if err := rows.Scan(&o.ID, &o.RequisitionID, &o.ItemID, &o.Name, &o.Code, &o.Quantity, &o.UnitPrice, &o.Notes, &o.CreatedAt); err != nil {
			return nil, err
		}
		orders = append(orders, &o)
	}
	return orders, nil
}

func (r *repoPG) ListInvestigationOrders(ctx context.Context, requisitionID uuid.UUID) ([]*InvestigationOrder, error) {
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT id, requisition_id, investigation_id, name, sample_id, notes, created_at
		FROM investigation_order WHERE requisition_id = $1 ORDER BY created_at`, requisitionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var orders []*InvestigationOrder
	for rows.Next() {
		var o InvestigationOrder
		if err := rows.Scan(&o.ID, &o.RequisitionID, &o.InvestigationID, &o.Name, &o.SampleID, &o.Notes, &o.CreatedAt); err != nil {
			return nil, err
		}
		orders = append(orders, &o)
	}
	return orders, nil
}

func (r *repoPG) CountAll(ctx context.Context) (int, error) {
	var n int
	err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM requisition`).Scan(&n)
	return n, err
}

func (r *repoPG) CountByEncounter(ctx context.Context, ref encounter.Ref) (int, error) {
	var n int
	err := r.conn(ctx).QueryRow(ctx,
		`SELECT COUNT(*) FROM requisition WHERE encounter_type = $1 AND object_id = $2`,
		ref.Kind, ref.ObjectID).Scan(&n)
	return n, err
}

func (r *repoPG) CountByKind(ctx context.Context, k Kind) (int, error) {
	var n int
	err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM requisition WHERE requisition_type = $1`, k).Scan(&n)
	return n, err
}

func (r *repoPG) SearchCatalog(ctx context.Context, kind Kind, prefix string, limit int) ([]*CatalogItem, error) {
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT id, kind, name, code, unit_price, is_active
		FROM order_catalog_item
		WHERE kind = $1 AND is_active AND name ILIKE $2 || '%'
		ORDER BY name LIMIT $3`, kind, prefix, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []*CatalogItem
	for rows.Next() {
		var item CatalogItem
		if err := rows.Scan(&item.ID, &item.Kind, &item.Name, &item.Code, &item.UnitPrice, &item.IsActive); err != nil {
			return nil, err
		}
		items = append(items, &item)
	}
	return items, nil
}

func (r *repoPG) GetCatalogItem(ctx context.Context, id uuid.UUID) (*CatalogItem, error) {
	var item CatalogItem
	err := r.conn(ctx).QueryRow(ctx,
		`SELECT id, kind, name, code, unit_price, is_active FROM order_catalog_item WHERE id = $1`, id).
		Scan(&item.ID, &item.Kind, &item.Name, &item.Code, &item.UnitPrice, &item.IsActive)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &item, nil
}

func (r *repoPG) CreateCatalogItem(ctx context.Context, item *CatalogItem) error {
	item.ID = uuid.New()
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO order_catalog_item (id, kind, name, code, unit_price, is_active)
		VALUES ($1,$2,$3,$4,$5,$6)`,
		item.ID, item.Kind, item.Name, item.Code, item.UnitPrice, item.IsActive,
	)
	return err
}
