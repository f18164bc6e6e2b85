package filestore

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strings"
	"testing"
)

func TestPutAndGet(t *testing.T) {
	s := NewInMemoryStore("http://localhost/files", 0)
	ctx := context.Background()

	meta, err := s.Put(ctx, "scan.png", "image/png", strings.NewReader("pngdata"))
	if err != nil {
		t.Fatalf("Put: %v", err)
	}
	if meta.Size != 7 {
		t.Errorf("Size = %d, want 7", meta.Size)
	}
	if !strings.HasPrefix(meta.URL, "http://localhost/files/") {
		t.Errorf("URL = %q, want baseURL prefix", meta.URL)
	}

	rc, got, err := s.Get(ctx, meta.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	defer rc.Close()
	data, _ := io.ReadAll(rc)
	if !bytes.Equal(data, []byte("pngdata")) {
		t.Errorf("content = %q", data)
	}
	if got.Hash != meta.Hash {
		t.Error("hash mismatch between Put and Get")
	}
}

func TestPutRejectsOversized(t *testing.T) {
	s := NewInMemoryStore("http://x", 16)
	_, err := s.Put(context.Background(), "big.pdf", "application/pdf", strings.NewReader(strings.Repeat("a", 17)))
	if !errors.Is(err, ErrFileTooLarge) {
		t.Fatalf("err = %v, want ErrFileTooLarge", err)
	}
}

func TestPutRejectsContentType(t *testing.T) {
	s := NewInMemoryStore("http://x", 0)
	_, err := s.Put(context.Background(), "a.exe", "application/x-msdownload", strings.NewReader("x"))
	if !errors.Is(err, ErrInvalidContentType) {
		t.Fatalf("err = %v, want ErrInvalidContentType", err)
	}
}

func TestPutRequiresFileName(t *testing.T) {
	s := NewInMemoryStore("http://x", 0)
	if _, err := s.Put(context.Background(), "", "image/png", strings.NewReader("x")); !errors.Is(err, ErrMissingFileName) {
		t.Fatalf("err = %v, want ErrMissingFileName", err)
	}
}

func TestDelete(t *testing.T) {
	s := NewInMemoryStore("http://x", 0)
	meta, _ := s.Put(context.Background(), "a.png", "image/png", strings.NewReader("x"))
	if err := s.Delete(context.Background(), meta.ID); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if err := s.Delete(context.Background(), meta.ID); !errors.Is(err, ErrFileNotFound) {
		t.Fatalf("second delete err = %v, want ErrFileNotFound", err)
	}
}

func TestIsPreviewable(t *testing.T) {
	if !IsPreviewable("image/jpeg") || !IsPreviewable("application/pdf") {
		t.Error("images and pdf should be previewable")
	}
	if IsPreviewable("text/csv") {
		t.Error("csv should not be previewable")
	}
}
