package attachments

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/hms/hms/internal/platform/filestore"
)

// Queue holds the files one workspace session has staged for upload.
// Validation happens here, before any byte reaches the store: unsupported
// types and oversized files never enter the queue.
type Queue struct {
	mu      sync.Mutex
	files   []*StagedFile
	maxSize int64
}

func NewQueue(maxSize int64) *Queue {
	if maxSize <= 0 {
		maxSize = filestore.DefaultMaxFileSize
	}
	return &Queue{maxSize: maxSize}
}

// Stage validates and enqueues a file, acquiring its preview handle.
func (q *Queue) Stage(fileName, contentType, description string, content []byte) (*StagedFile, error) {
	if fileName == "" {
		return nil, filestore.ErrMissingFileName
	}
	if !filestore.AllowedContentTypes[contentType] {
		return nil, fmt.Errorf("%w: %s", filestore.ErrInvalidContentType, contentType)
	}
	if int64(len(content)) > q.maxSize {
		return nil, fmt.Errorf("%w: %d bytes (max %d)", filestore.ErrFileTooLarge, len(content), q.maxSize)
	}

	f := &StagedFile{
		ID:          uuid.New(),
		FileName:    fileName,
		ContentType: contentType,
		Size:        int64(len(content)),
		Description: description,
		Previewable: filestore.IsPreviewable(contentType),
		StagedAt:    time.Now().UTC(),
		content:     content,
	}
	f.handle = &Handle{id: f.ID, onFree: func() { f.content = nil }}

	q.mu.Lock()
	q.files = append(q.files, f)
	q.mu.Unlock()
	return f, nil
}

// Unstage removes a staged file and releases its preview handle.
func (q *Queue) Unstage(id uuid.UUID) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	for i, f := range q.files {
		if f.ID == id {
			f.handle.Release()
			q.files = append(q.files[:i], q.files[i+1:]...)
			return true
		}
	}
	return false
}

// List returns a snapshot of the staged files.
func (q *Queue) List() []*StagedFile {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]*StagedFile, len(q.files))
	copy(out, q.files)
	return out
}

// Len returns the number of staged files.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.files)
}

// remove drops a file from the queue and releases its handle; used after a
// successful commit. Files that failed to commit stay staged for retry.
func (q *Queue) remove(id uuid.UUID) {
	q.mu.Lock()
	defer q.mu.Unlock()
	for i, f := range q.files {
		if f.ID == id {
			f.handle.Release()
			q.files = append(q.files[:i], q.files[i+1:]...)
			return
		}
	}
}

// Drain releases every handle and empties the queue.
func (q *Queue) Drain() {
	q.mu.Lock()
	defer q.mu.Unlock()
	for _, f := range q.files {
		f.handle.Release()
	}
	q.files = nil
}
