package chunkstore

import (
	"context"
	"fmt"
	"sync"

	"nyayasetu/internal/models"
)

// InMemoryStore is a map-backed ChunkStore, used in tests and single-process
// setups.
type InMemoryStore struct {
	mu     sync.RWMutex
	chunks map[string]*models.Chunk
}

// NewInMemoryStore creates an empty in-memory store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{chunks: make(map[string]*models.Chunk)}
}

// Put stores the chunks, replacing existing entries with the same IDs.
func (s *InMemoryStore) Put(ctx context.Context, chunks []*models.Chunk) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, chunk := range chunks {
		s.chunks[chunk.ID()] = chunk
	}
	return nil
}

// GetMany resolves the IDs in order, failing on the first unknown ID.
func (s *InMemoryStore) GetMany(ctx context.Context, ids []string) ([]*models.Chunk, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	chunks := make([]*models.Chunk, len(ids))
	for i, id := range ids {
		chunk, ok := s.chunks[id]
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrChunkNotFound, id)
		}
		chunks[i] = chunk
	}
	return chunks, nil
}

// DeleteByDocument removes all chunks of a document.
func (s *InMemoryStore) DeleteByDocument(ctx context.Context, documentID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, chunk := range s.chunks {
		if chunk.DocumentID == documentID {
			delete(s.chunks, id)
		}
	}
	return nil
}

// Len reports the number of stored chunks.
func (s *InMemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.chunks)
}

var _ ChunkStore = (*InMemoryStore)(nil)
