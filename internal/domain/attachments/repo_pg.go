package attachments

import (
	"context"
	"errors"

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

const attCols = `id, encounter_type, object_id, file_url, file_name, file_type, file_size_bytes, description, uploaded_by, created_at`

func (r *repoPG) Create(ctx context.Context, a *FileAttachment) error {
	a.ID = uuid.New()
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO file_attachment
			(id, encounter_type, object_id, file_url, file_name, file_type, file_size_bytes, description, uploaded_by)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)`,
		a.ID, a.EncounterType, a.ObjectID, a.FileURL, a.FileName, a.FileType, a.FileSizeBytes, a.Description, a.UploadedBy,
	)
	return err
}

func (r *repoPG) GetByID(ctx context.Context, id uuid.UUID) (*FileAttachment, error) {
	var a FileAttachment
	err := r.conn(ctx).QueryRow(ctx, `SELECT `+attCols+` FROM file_attachment WHERE id = $1`, id).
		Scan(&a.ID, &a.EncounterType, &a.ObjectID, &a.FileURL, &a.FileName, &a.FileType, &a.FileSizeBytes, &a.Description, &a.UploadedBy, &a.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &a, nil
}

func (r *repoPG) ListByEncounter(ctx context.Context, ref encounter.Ref, limit, offset int) ([]*FileAttachment, int, error) {
	var total int
	if err := r.conn(ctx).QueryRow(ctx,
		`SELECT COUNT(*) FROM file_attachment WHERE encounter_type = $1 AND object_id = $2`,
		ref.Kind, ref.ObjectID).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := r.conn(ctx).Query(ctx,
		`SELECT `+attCols+` FROM file_attachment WHERE encounter_type = $1 AND object_id = $2
		 ORDER BY created_at DESC LIMIT $3 OFFSET $4`,
		ref.Kind, ref.ObjectID, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var atts []*FileAttachment
	for rows.Next() {
		var a FileAttachment
		if err := rows.Scan(&a.ID, &a.EncounterType, &a.ObjectID, &a.FileURL, &a.FileName, &a.FileType, &a.FileSizeBytes, &a.Description, &a.UploadedBy, &a.CreatedAt); err != nil {
			return nil, 0, err
		}
		atts = append(atts, &a)
	}
	return atts, total, nil
}

func (r *repoPG) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := r.conn(ctx).Exec(ctx, `DELETE FROM file_attachment WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
