// Package blobstore provides path-addressed object storage for uploaded
// health documents and rendered reports. It defines the BlobStore interface,
// an in-memory implementation suitable for testing and development, and an
// S3-backed implementation for production.
package blobstore

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"
	"time"
)

var (
	ErrBlobNotFound = errors.New("blob not found")
	ErrFileTooLarge = errors.New("file exceeds maximum allowed size")
	ErrMissingPath  = errors.New("storage path is required")
)

// MaxFileSize is the maximum allowed blob size in bytes (50 MB).
const MaxFileSize = 50 * 1024 * 1024

// Object describes a stored blob.
type Object struct {
	Path        string    `json:"path"`
	ContentType string    `json:"content_type"`
	Size        int64     `json:"size"`
	CreatedAt   time.Time `json:"created_at"`
}

// BlobStore defines the contract for blob storage backends.
type BlobStore interface {
	Put(ctx context.Context, path, contentType string, content io.Reader) (*Object, error)
	Get(ctx context.Context, path string) (io.ReadCloser, *Object, error)
	// List returns objects whose path starts with prefix, sorted by path.
	List(ctx context.Context, prefix string) ([]Object, error)
	Exists(ctx context.Context, path string) (bool, error)
	SignedURL(ctx context.Context, path string, ttl time.Duration) (string, error)
	Delete(ctx context.Context, path string) error
}

// ---------------------------------------------------------------------------
// In-memory implementation
// ---------------------------------------------------------------------------

type storedBlob struct {
	object  Object
	content []byte
}

// Memory is a thread-safe, in-memory BlobStore for testing and development.
type Memory struct {
	mu    sync.RWMutex
	blobs map[string]*storedBlob
}

func NewMemory() *Memory {
	return &Memory{blobs: make(map[string]*storedBlob)}
}

func (s *Memory) Put(_ context.Context, path, contentType string, content io.Reader) (*Object, error) {
	if path == "" {
		return nil, ErrMissingPath
	}

	data, err := io.ReadAll(io.LimitReader(content, MaxFileSize+1))
	if err != nil {
		return nil, fmt.Errorf("reading content: %w", err)
	}
	if int64(len(data)) > MaxFileSize {
		return nil, ErrFileTooLarge
	}

	obj := Object{
		Path:        path,
		ContentType: contentType,
		Size:        int64(len(data)),
		CreatedAt:   time.Now().UTC(),
	}

	s.mu.Lock()
	s.blobs[path] = &storedBlob{object: obj, content: data}
	s.mu.Unlock()

	out := obj
	return &out, nil
}

func (s *Memory) Get(_ context.Context, path string) (io.ReadCloser, *Object, error) {
	s.mu.RLock()
	blob, ok := s.blobs[path]
	s.mu.RUnlock()

	if !ok {
		return nil, nil, ErrBlobNotFound
	}

	obj := blob.object
	return io.NopCloser(bytes.NewReader(blob.content)), &obj, nil
}

func (s *Memory) List(_ context.Context, prefix string) ([]Object, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var matched []Object
	for path, blob := range s.blobs {
		if strings.HasPrefix(path, prefix) {
			matched = append(matched, blob.object)
		}
	}
	sort.Slice(matched, func(i, j int) bool { return matched[i].Path < matched[j].Path })
	return matched, nil
}

func (s *Memory) Exists(_ context.Context, path string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.blobs[path]
	return ok, nil
}

func (s *Memory) SignedURL(_ context.Context, path string, ttl time.Duration) (string, error) {
	s.mu.RLock()
	_, ok := s.blobs[path]
	s.mu.RUnlock()
	if !ok {
		return "", ErrBlobNotFound
	}
	// No signing in dev; serve through the local download route.
	return "/api/v1/blobs/" + path, nil
}

func (s *Memory) Delete(_ context.Context, path string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.blobs[path]; !ok {
		return ErrBlobNotFound
	}
	delete(s.blobs, path)
	return nil
}
