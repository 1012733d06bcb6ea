package fusion

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"nyayasetu/internal/models"
	"nyayasetu/internal/retrieval/chunkstore"
	"nyayasetu/internal/retrieval/index"
	"nyayasetu/pkg/logger"
)

// ErrAdaptersUnavailable is returned when both index adapters fail for one
// query. A single failing adapter degrades to single-source ranking instead.
var ErrAdaptersUnavailable = errors.New("both index adapters are unavailable")

// Fusion merges ranked lists from the vector and lexical adapters into one
// candidate set using a weighted-score union.
type Fusion struct {
	log           *logger.Logger
	vector        index.Index
	lexical       index.Index
	store         chunkstore.ChunkStore
	vectorWeight  float64
	lexicalWeight float64
}

// NewFusion creates a Fusion over the two adapters. Weights are the score
// mass given to each source; they are renormalized when one source is down.
func NewFusion(vector, lexical index.Index, store chunkstore.ChunkStore, vectorWeight, lexicalWeight float64, log *logger.Logger) *Fusion {
	return &Fusion{
		log:           log,
		vector:        vector,
		lexical:       lexical,
		store:         store,
		vectorWeight:  vectorWeight,
		lexicalWeight: lexicalWeight,
	}
}

// Fuse queries both adapters concurrently for 2k results each and merges them
// into the top 2k candidates by fused score. Ties are broken by the higher
// vector score. A chunk found by only one adapter is scored on that signal
// alone with the missing score treated as zero.
func (f *Fusion) Fuse(ctx context.Context, query string, k int, scope index.Scope, filters *index.FilterSet) ([]*models.RetrievalCandidate, error) {
	pool := 2 * k

	var (
		wg          sync.WaitGroup
		vectorHits  []index.Hit
		lexicalHits []index.Hit
		vectorErr   error
		lexicalErr  error
	)

	wg.Add(2)
	go func() {
		defer wg.Done()
		vectorHits, vectorErr = f.vector.Query(ctx, query, pool, scope, filters)
	}()
	go func() {
		defer wg.Done()
		lexicalHits, lexicalErr = f.lexical.Query(ctx, query, pool, scope, filters)
	}()
	wg.Wait()

	if vectorErr != nil && lexicalErr != nil {
		return nil, fmt.Errorf("%w: vector: %v; lexical: %v", ErrAdaptersUnavailable, vectorErr, lexicalErr)
	}

	// Renormalize weights to 1.0 on the surviving adapter so half the score
	// mass is not silently zeroed out.
	vectorWeight, lexicalWeight := f.vectorWeight, f.lexicalWeight
	if vectorErr != nil {
		f.log.WithField("error", vectorErr.Error()).Warn("Vector adapter unavailable, degrading to lexical-only ranking")
		vectorWeight, lexicalWeight = 0, 1
	}
	if lexicalErr != nil {
		f.log.WithField("error", lexicalErr.Error()).Warn("Lexical adapter unavailable, degrading to vector-only ranking")
		vectorWeight, lexicalWeight = 1, 0
	}

	merged := make(map[string]*models.RetrievalCandidate)
	order := make([]string, 0, len(vectorHits)+len(lexicalHits))
	for _, hit := range vectorHits {
		c := &models.RetrievalCandidate{VectorScore: hit.Score}
		merged[hit.ChunkID] = c
		order = append(order, hit.ChunkID)
	}
	for _, hit := range lexicalHits {
		if c, ok := merged[hit.ChunkID]; ok {
			c.LexicalScore = hit.Score
			continue
		}
		merged[hit.ChunkID] = &models.RetrievalCandidate{LexicalScore: hit.Score}
		order = append(order, hit.ChunkID)
	}

	if len(order) == 0 {
		return nil, nil
	}

	chunks, err := f.store.GetMany(ctx, order)
	if err != nil {
		if !errors.Is(err, chunkstore.ErrChunkNotFound) {
			return nil, fmt.Errorf("failed to resolve candidate chunks: %w", err)
		}
		// A stale index entry is not fatal; resolve one by one and drop the
		// missing chunks.
		chunks, order, err = f.resolveLenient(ctx, order)
		if err != nil {
			return nil, err
		}
	}

	candidates := make([]*models.RetrievalCandidate, 0, len(order))
	for i, id := range order {
		c := merged[id]
		c.Chunk = chunks[i]
		c.FusedScore = vectorWeight*c.VectorScore + lexicalWeight*c.LexicalScore
		candidates = append(candidates, c)
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		if candidates[i].FusedScore != candidates[j].FusedScore {
			return candidates[i].FusedScore > candidates[j].FusedScore
		}
		return candidates[i].VectorScore > candidates[j].VectorScore
	})

	if len(candidates) > pool {
		candidates = candidates[:pool]
	}
	return candidates, nil
}

// resolveLenient retries the lookups one by one. Only a missing chunk is
// dropped; any other store error aborts the query.
func (f *Fusion) resolveLenient(ctx context.Context, ids []string) ([]*models.Chunk, []string, error) {
	chunks := make([]*models.Chunk, 0, len(ids))
	kept := make([]string, 0, len(ids))
	for _, id := range ids {
		got, err := f.store.GetMany(ctx, []string{id})
		if errors.Is(err, chunkstore.ErrChunkNotFound) {
			f.log.WithField("chunk_id", id).Warn("Dropping candidate with no stored chunk")
			continue
		}
		if err != nil {
			return nil, nil, fmt.Errorf("failed to resolve candidate chunk %s: %w", id, err)
		}
		chunks = append(chunks, got[0])
		kept = append(kept, id)
	}
	return chunks, kept, nil
}
