// Package filestore holds the bytes behind file attachments. It defines the
// FileStore interface and an in-memory implementation suitable for testing
// and development; attachment metadata lives in the attachments domain, the
// store only produces durable URLs and serves content back.
package filestore

import (
	"bytes"
	"context"
	"crypto/sha256"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

var (
	ErrFileNotFound       = errors.New("file not found")
	ErrFileTooLarge       = errors.New("file exceeds maximum allowed size")
	ErrInvalidContentType = errors.New("content type is not allowed")
	ErrMissingFileName    = errors.New("file name is required")
)

// DefaultMaxFileSize caps uploads at 10 MiB unless configured otherwise.
const DefaultMaxFileSize = 10 * 1024 * 1024

// AllowedContentTypes lists the MIME types the attachment board accepts:
// common images plus PDF.
var AllowedContentTypes = map[string]bool{
	"image/png":       true,
	"image/jpg":       true,
	"image/jpeg":      true,
	"image/gif":       true,
	"image/webp":      true,
	"application/pdf": true,
}

// IsPreviewable reports whether the content type renders inline (images) or
// in an embedded viewer (PDF). Everything else is download-only.
func IsPreviewable(contentType string) bool {
	return strings.HasPrefix(contentType, "image/") || contentType == "application/pdf"
}

// StoredFile describes one stored file.
type StoredFile struct {
	ID          string    `json:"id"`
	FileName    string    `json:"file_name"`
	ContentType string    `json:"content_type"`
	Size        int64     `json:"size"`
	Hash        string    `json:"hash"`
	URL         string    `json:"url"`
	CreatedAt   time.Time `json:"created_at"`
}

// FileStore is the contract for attachment byte storage.
type FileStore interface {
	Put(ctx context.Context, fileName, contentType string, content io.Reader) (*StoredFile, error)
	Get(ctx context.Context, id string) (io.ReadCloser, *StoredFile, error)
	Delete(ctx context.Context, id string) error
}

type storedBlob struct {
	meta    StoredFile
	content []byte
}

// InMemoryStore is a thread-safe, in-memory FileStore for testing/dev.
type InMemoryStore struct {
	mu      sync.RWMutex
	files   map[string]*storedBlob
	baseURL string
	maxSize int64
}

// NewInMemoryStore returns a ready-to-use InMemoryStore. Returned URLs are
// baseURL + "/" + id; maxSize <= 0 falls back to DefaultMaxFileSize.
func NewInMemoryStore(baseURL string, maxSize int64) *InMemoryStore {
	if maxSize <= 0 {
		maxSize = DefaultMaxFileSize
	}
	return &InMemoryStore{
		files:   make(map[string]*storedBlob),
		baseURL: strings.TrimRight(baseURL, "/"),
		maxSize: maxSize,
	}
}

// Put validates the file name, type and size, then stores the content and
// returns its durable metadata.
func (s *InMemoryStore) Put(_ context.Context, fileName, contentType string, content io.Reader) (*StoredFile, error) {
	if fileName == "" {
		return nil, ErrMissingFileName
	}
	if !AllowedContentTypes[contentType] {
		return nil, fmt.Errorf("%w: %s", ErrInvalidContentType, contentType)
	}

	data, err := io.ReadAll(io.LimitReader(content, s.maxSize+1))
	if err != nil {
		return nil, fmt.Errorf("reading content: %w", err)
	}
	if int64(len(data)) > s.maxSize {
		return nil, ErrFileTooLarge
	}

	h := sha256.Sum256(data)
	meta := StoredFile{
		ID:          uuid.New().String(),
		FileName:    fileName,
		ContentType: contentType,
		Size:        int64(len(data)),
		Hash:        fmt.Sprintf("%x", h),
		CreatedAt:   time.Now().UTC(),
	}
	meta.URL = s.baseURL + "/" + meta.ID

	s.mu.Lock()
	s.files[meta.ID] = &storedBlob{meta: meta, content: data}
	s.mu.Unlock()

	out := meta // copy
	return &out, nil
}

// Get returns an io.ReadCloser over the file content and its metadata.
func (s *InMemoryStore) Get(_ context.Context, id string) (io.ReadCloser, *StoredFile, error) {
	s.mu.RLock()
	f, ok := s.files[id]
	s.mu.RUnlock()

	if !ok {
		return nil, nil, ErrFileNotFound
	}

	meta := f.meta // copy
	return io.NopCloser(bytes.NewReader(f.content)), &meta, nil
}

// Delete removes a file by ID.
func (s *InMemoryStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.files[id]; !ok {
		return ErrFileNotFound
	}
	delete(s.files, id)
	return nil
}

// MaxSize returns the configured per-file byte cap.
func (s *InMemoryStore) MaxSize() int64 { return s.maxSize }
