package rerank

import (
	"context"
	"sort"

	"nyayasetu/internal/models"
	"nyayasetu/pkg/logger"
)

// Reranker re-scores a fused candidate set with a pairwise relevance model
// and returns a strictly smaller top-k. Orchestration lives here; the scoring
// model is the injected PairScorer.
type Reranker struct {
	log          *logger.Logger
	scorer       PairScorer
	floor        float64
	maxDocChunks int
}

// NewReranker creates a Reranker. floor is the minimum relevance score a
// candidate must reach; maxDocChunks caps how many chunks of one document may
// appear in the top-k.
func NewReranker(scorer PairScorer, floor float64, maxDocChunks int, log *logger.Logger) *Reranker {
	return &Reranker{log: log, scorer: scorer, floor: floor, maxDocChunks: maxDocChunks}
}

// Rerank scores every candidate against the query and returns up to k, best
// first. Candidates below the relevance floor are dropped even if fewer than
// k remain. When the scorer is unavailable the fused order is kept and fused
// scores stand in for rerank scores.
func (r *Reranker) Rerank(ctx context.Context, query string, candidates []*models.RetrievalCandidate, k int) []*models.RetrievalCandidate {
	if len(candidates) == 0 {
		return nil
	}

	texts := make([]string, len(candidates))
	for i, c := range candidates {
		texts[i] = c.Chunk.Text
	}

	scores, err := r.scorer.Score(ctx, query, texts)
	if err != nil || len(scores) != len(candidates) {
		if err != nil {
			r.log.WithField("error", err.Error()).Warn("Pair scorer unavailable, keeping fused order")
		}
		for _, c := range candidates {
			c.RerankScore = c.FusedScore
		}
	} else {
		for i, c := range candidates {
			c.RerankScore = scores[i]
		}
	}

	ranked := make([]*models.RetrievalCandidate, len(candidates))
	copy(ranked, candidates)
	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].RerankScore > ranked[j].RerankScore
	})

	// Apply the relevance floor before the diversity cap so a noisy document
	// cannot use up its quota with sub-floor chunks.
	kept := ranked[:0]
	for _, c := range ranked {
		if c.RerankScore >= r.floor {
			kept = append(kept, c)
		}
	}

	// The cap is waived when fewer than k distinct documents exist among the
	// candidates, otherwise one long document could not fill the result set
	// even when it is the only source.
	distinct := make(map[string]bool)
	for _, c := range kept {
		distinct[c.Chunk.DocumentID] = true
	}
	applyCap := len(distinct) >= k

	perDoc := make(map[string]int)
	out := make([]*models.RetrievalCandidate, 0, k)
	for _, c := range kept {
		if applyCap && perDoc[c.Chunk.DocumentID] >= r.maxDocChunks {
			continue
		}
		perDoc[c.Chunk.DocumentID]++
		out = append(out, c)
		if len(out) == k {
			break
		}
	}
	return out
}
