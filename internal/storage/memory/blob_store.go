package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/patronemptor/titlesvc/internal/titles"
)

// BlobStore stores payloads in-memory and returns pseudo locators.
type BlobStore struct {
	mu    sync.RWMutex
	data  map[string][]byte
	idGen titles.IDGenerator
}

// NewBlobStore creates a new in-memory blob store.
func NewBlobStore(idGen titles.IDGenerator) *BlobStore {
	return &BlobStore{
		data:  make(map[string][]byte),
		idGen: idGen,
	}
}

// EnsureBucket is a no-op for the in-memory store.
func (s *BlobStore) EnsureBucket(_ context.Context) error {
	return nil
}

// Put persists the content under a fresh key and returns a memory:// locator.
func (s *BlobStore) Put(_ context.Context, content []byte) (string, error) {
	key, err := s.idGen.NewID()
	if err != nil {
		return "", fmt.Errorf("generate blob key: %w", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[key] = append([]byte(nil), content...)
	return fmt.Sprintf("memory://%s", key), nil
}

// Object returns a stored payload by key, for test inspection.
func (s *BlobStore) Object(key string) ([]byte, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	data, ok := s.data[key]
	return data, ok
}

// Len reports the number of stored objects.
func (s *BlobStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.data)
}
