package index

import (
	"context"
	"fmt"

	"nyayasetu/internal/models"
)

// Scope names a logical partition of the corpus. Scoping is a hard filter
// applied before ranking so a narrow scope still yields k results.
type Scope string

const (
	ScopeAll      Scope = "all"
	ScopeRulings  Scope = "rulings"
	ScopeStatutes Scope = "statutes"
	ScopeFilings  Scope = "filings"
)

// ParseScope validates a scope string, mapping the empty string to ScopeAll.
func ParseScope(s string) (Scope, error) {
	switch Scope(s) {
	case "", ScopeAll:
		return ScopeAll, nil
	case ScopeRulings, ScopeStatutes, ScopeFilings:
		return Scope(s), nil
	default:
		return "", fmt.Errorf("unknown scope: %q", s)
	}
}

// PartitionFor maps a document type to the scope partition its chunks are
// stored in.
func PartitionFor(t models.DocumentType) Scope {
	switch t {
	case models.DocTypeRuling:
		return ScopeRulings
	case models.DocTypeStatute:
		return ScopeStatutes
	default:
		return ScopeFilings
	}
}

// Hit is one ranked result from an index adapter. Score is normalized to
// [0,1] regardless of the backend's native scoring.
type Hit struct {
	ChunkID    string
	DocumentID string
	Score      float64
}

// Index is the shape both the vector and the lexical adapter expose. Any
// compliant backend is substitutable without touching fusion, re-ranking, or
// assembly.
type Index interface {
	// Upsert indexes the chunks, replacing any previously indexed chunks of
	// the same documents. Upsert is idempotent per chunk identifier.
	Upsert(ctx context.Context, chunks []*models.Chunk) error

	// Query returns up to k hits for the query text, ranked by descending
	// normalized score, restricted to the given scope and filters.
	Query(ctx context.Context, text string, k int, scope Scope, filters *FilterSet) ([]Hit, error)

	// Delete removes all chunks of a document from the index.
	Delete(ctx context.Context, documentID string) error
}
