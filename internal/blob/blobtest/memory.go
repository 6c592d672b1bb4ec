// Package blobtest provides an in-memory blob.Store for tests.
package blobtest

import (
	"bytes"
	"context"
	"io"
	"sync"

	"finpasser/internal/blob"
	"finpasser/pkg/errors"
)

type MemoryStore struct {
	mu      sync.Mutex
	objects map[string][]byte

	// PutErr, when set, is returned by Put without storing anything.
	PutErr error
}

var _ blob.Store = (*MemoryStore)(nil)

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{objects: make(map[string][]byte)}
}

func (s *MemoryStore) Put(_ context.Context, key string, body io.Reader, _ int64, _ string) (string, error) {
	if s.PutErr != nil {
		return "", s.PutErr
	}
	data, err := io.ReadAll(body)
	if err != nil {
		return "", errors.ErrWriteFailed.WithCause(err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.objects[key] = data
	return key, nil
}

func (s *MemoryStore) Get(_ context.Context, key string) (io.ReadCloser, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	data, ok := s.objects[key]
	if !ok {
		return nil, errors.ErrBlobNotFound.WithDetail("key", key)
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

func (s *MemoryStore) EnsureBucket(context.Context) error { return nil }
func (s *MemoryStore) Ping(context.Context) error         { return nil }

func (s *MemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.objects)
}
