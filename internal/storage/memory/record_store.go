// Package memory provides in-memory store implementations for development
// and testing.
package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/patronemptor/titlesvc/internal/titles"
)

// RecordStore is an in-memory titles.RecordStore.
type RecordStore struct {
	mu      sync.RWMutex
	records map[string]titles.Record
}

// NewRecordStore constructs a RecordStore.
func NewRecordStore() *RecordStore {
	return &RecordStore{
		records: make(map[string]titles.Record),
	}
}

// EnsureSchema is a no-op for the in-memory store.
func (s *RecordStore) EnsureSchema(_ context.Context) error {
	return nil
}

// Create stores a new PENDING record, rejecting duplicate ids.
func (s *RecordStore) Create(_ context.Context, reqID, url string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.records[reqID]; exists {
		return fmt.Errorf("create record %s: %w", reqID, titles.ErrAlreadyExists)
	}
	s.records[reqID] = titles.Record{
		ReqID: reqID,
		URL:   url,
		State: titles.StatePending,
	}
	return nil
}

// Get fetches a record by id.
func (s *RecordStore) Get(_ context.Context, reqID string) (titles.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.records[reqID]
	if !ok {
		return titles.Record{}, fmt.Errorf("get record %s: %w", reqID, titles.ErrNotFound)
	}
	return rec, nil
}

// UpdateTerminal applies the terminal state and result fields in one step.
func (s *RecordStore) UpdateTerminal(_ context.Context, reqID string, state titles.State, title, blobURL string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[reqID]
	if !ok {
		return fmt.Errorf("update record %s: %w", reqID, titles.ErrNotFound)
	}
	rec.State = state
	rec.Title = title
	rec.BlobURL = blobURL
	s.records[reqID] = rec
	return nil
}
