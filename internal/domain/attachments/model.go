package attachments

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/hms/hms/internal/domain/encounter"
)

// FileAttachment maps to the file_attachment table. Created on successful
// upload, deleted on explicit delete, never mutated in between.
type FileAttachment struct {
	ID            uuid.UUID      `db:"id" json:"id"`
	EncounterType encounter.Kind `db:"encounter_type" json:"encounter_type"`
	ObjectID      uuid.UUID      `db:"object_id" json:"object_id"`
	FileURL       string         `db:"file_url" json:"file_url"`
	FileName      string         `db:"file_name" json:"file_name"`
	FileType      string         `db:"file_type" json:"file_type"`
	FileSizeBytes int64          `db:"file_size_bytes" json:"file_size_bytes"`
	Description   *string        `db:"description" json:"description,omitempty"`
	UploadedBy    *uuid.UUID     `db:"uploaded_by" json:"uploaded_by,omitempty"`
	CreatedAt     time.Time      `db:"created_at" json:"created_at"`
}

// Handle is an acquired preview resource for a staged file. It must be
// released exactly once, when the staged file is removed or committed.
type Handle struct {
	id       uuid.UUID
	mu       sync.Mutex
	released bool
	onFree   func()
}

// Release frees the preview resource. Safe to call more than once.
func (h *Handle) Release() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.released {
		return
	}
	h.released = true
	if h.onFree != nil {
		h.onFree()
	}
}

// Released reports whether the handle has been freed.
func (h *Handle) Released() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.released
}

// StagedFile is a file queued for upload, held in memory with its preview
// handle until committed or unstaged. Never persisted.
type StagedFile struct {
	ID          uuid.UUID `json:"id"`
	FileName    string    `json:"file_name"`
	ContentType string    `json:"content_type"`
	Size        int64     `json:"size"`
	Description string    `json:"description,omitempty"`
	Previewable bool      `json:"previewable"`
	StagedAt    time.Time `json:"staged_at"`

	content []byte
	handle  *Handle
}

// Handle returns the staged file's preview handle.
func (f *StagedFile) Handle() *Handle { return f.handle }

// FileError reports one failed upload within a commit.
type FileError struct {
	FileID   uuid.UUID `json:"file_id"`
	FileName string    `json:"file_name"`
	Message  string    `json:"message"`
}

// CommitResult aggregates a queue commit. Partial failure is a normal
// outcome, never collapsed into a single verdict.
type CommitResult struct {
	Succeeded   int               `json:"succeeded"`
	Failed      int               `json:"failed"`
	Attachments []*FileAttachment `json:"attachments"`
	Errors      []FileError       `json:"errors,omitempty"`
}
