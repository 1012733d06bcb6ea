package chunkstore

import (
	"context"
	"errors"

	"nyayasetu/internal/models"
)

// ErrChunkNotFound is returned when a requested chunk identifier is unknown.
var ErrChunkNotFound = errors.New("chunk not found")

// ChunkStore holds the full text and metadata of every indexed chunk. The
// indexes only return chunk identifiers; the store resolves them back to
// content for re-ranking and assembly.
type ChunkStore interface {
	// Put stores the chunks, replacing any existing chunks with the same IDs.
	Put(ctx context.Context, chunks []*models.Chunk) error

	// GetMany resolves chunk IDs to chunks, preserving the input order.
	// Unknown IDs yield ErrChunkNotFound.
	GetMany(ctx context.Context, ids []string) ([]*models.Chunk, error)

	// DeleteByDocument removes every chunk of a document.
	DeleteByDocument(ctx context.Context, documentID string) error
}
