package attachments

import (
	"bytes"
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/hms/hms/internal/domain/encounter"
	"github.com/hms/hms/internal/platform/filestore"
	"github.com/hms/hms/internal/platform/metrics"
)

// ErrNotFound is returned when an attachment does not exist.
var ErrNotFound = errors.New("attachment not found")

// maxConcurrentCommits bounds the upload workers per commit. Uploads are
// independent of each other, so running them concurrently is safe; the
// bound keeps one large queue from monopolizing the store.
const maxConcurrentCommits = 4

type Service struct {
	repo  Repository
	store filestore.FileStore
	m     *metrics.Metrics

	mu     sync.Mutex
	queues map[string]*Queue
	max    int64
}

func NewService(repo Repository, store filestore.FileStore, maxFileSize int64) *Service {
	return &Service{
		repo:   repo,
		store:  store,
		queues: make(map[string]*Queue),
		max:    maxFileSize,
	}
}

// SetMetrics attaches optional application metrics.
func (s *Service) SetMetrics(m *metrics.Metrics) { s.m = m }

// QueueFor returns (creating if needed) the staging queue for a session.
func (s *Service) QueueFor(sessionKey string) *Queue {
	s.mu.Lock()
	defer s.mu.Unlock()
	q, ok := s.queues[sessionKey]
	if !ok {
		q = NewQueue(s.max)
		s.queues[sessionKey] = q
	}
	return q
}

// DropQueue drains and removes a session's queue (session closed).
func (s *Service) DropQueue(sessionKey string) {
	s.mu.Lock()
	q, ok := s.queues[sessionKey]
	delete(s.queues, sessionKey)
	s.mu.Unlock()
	if ok {
		q.Drain()
	}
}

// CommitAll uploads every staged file in the session's queue. Each file is
// an independent store-put plus metadata insert; failures are collected
// per file and do not stop the rest. Successfully committed files leave
// the queue and release their preview handles; failed files stay staged.
func (s *Service) CommitAll(ctx context.Context, sessionKey string, ref encounter.Ref, uploadedBy *uuid.UUID) (*CommitResult, error) {
	if !ref.Valid() {
		return nil, errors.New("no active encounter")
	}
	staged := s.QueueFor(sessionKey).List()

	result := &CommitResult{}
	var (
		resMu sync.Mutex
		wg    sync.WaitGroup
		sem   = make(chan struct{}, maxConcurrentCommits)
	)

	for _, f := range staged {
		wg.Add(1)
		sem <- struct{}{}
		go func(f *StagedFile) {
			defer wg.Done()
			defer func() { <-sem }()

			att, err := s.commitOne(ctx, f, ref, uploadedBy)

			resMu.Lock()
			defer resMu.Unlock()
			if err != nil {
				result.Failed++
				result.Errors = append(result.Errors, FileError{
					FileID:   f.ID,
					FileName: f.FileName,
					Message:  err.Error(),
				})
				if s.m != nil {
					s.m.AttachmentUploads.WithLabelValues("failure").Inc()
				}
				return
			}
			result.Succeeded++
			result.Attachments = append(result.Attachments, att)
			s.QueueFor(sessionKey).remove(f.ID)
			if s.m != nil {
				s.m.AttachmentUploads.WithLabelValues("success").Inc()
			}
		}(f)
	}
	wg.Wait()

	return result, nil
}

func (s *Service) commitOne(ctx context.Context, f *StagedFile, ref encounter.Ref, uploadedBy *uuid.UUID) (*FileAttachment, error) {
	start := time.Now()
	stored, err := s.store.Put(ctx, f.FileName, f.ContentType, bytes.NewReader(f.content))
	if err != nil {
		return nil, err
	}
	if s.m != nil {
		s.m.UploadDuration.Observe(time.Since(start).Seconds())
	}

	att := &FileAttachment{
		EncounterType: ref.Kind,
		ObjectID:      ref.ObjectID,
		FileURL:       stored.URL,
		FileName:      f.FileName,
		FileType:      f.ContentType,
		FileSizeBytes: stored.Size,
		UploadedBy:    uploadedBy,
	}
	if f.Description != "" {
		att.Description = &f.Description
	}
	if err := s.repo.Create(ctx, att); err != nil {
		return nil, err
	}
	return att, nil
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (*FileAttachment, error) {
	return s.repo.GetByID(ctx, id)
}

func (s *Service) ListByEncounter(ctx context.Context, ref encounter.Ref, limit, offset int) ([]*FileAttachment, int, error) {
	return s.repo.ListByEncounter(ctx, ref, limit, offset)
}

// Delete removes the metadata row and best-effort deletes the stored
// bytes. The store id is the final URL segment produced at upload time.
func (s *Service) Delete(ctx context.Context, id uuid.UUID) error {
	att, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		return err
	}
	if storeID := lastSegment(att.FileURL); storeID != "" {
		_ = s.store.Delete(ctx, storeID)
	}
	return nil
}

func lastSegment(url string) string {
	for i := len(url) - 1; i >= 0; i-- {
		if url[i] == '/' {
			return url[i+1:]
		}
	}
	return ""
}
