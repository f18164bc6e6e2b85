package attachments

import (
	"context"

	"github.com/google/uuid"

	"github.com/hms/hms/internal/domain/encounter"
)

// Repository is the persistence contract for attachment metadata.
type Repository interface {
	Create(ctx context.Context, a *FileAttachment) error
	GetByID(ctx context.Context, id uuid.UUID) (*FileAttachment, error)
	ListByEncounter(ctx context.Context, ref encounter.Ref, limit, offset int) ([]*FileAttachment, int, error)
	Delete(ctx context.Context, id uuid.UUID) error
}
