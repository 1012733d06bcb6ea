package models

import "time"

// RetrievalCandidate wraps a chunk with the scores it accumulates while moving
// through fusion and re-ranking. Candidates live only for the duration of one
// query and are never persisted.
type RetrievalCandidate struct {
	Chunk        *Chunk  `json:"chunk"`
	VectorScore  float64 `json:"vector_score"`  // 0 when the vector adapter did not return the chunk
	LexicalScore float64 `json:"lexical_score"` // 0 when the lexical adapter did not return the chunk
	FusedScore   float64 `json:"fused_score"`
	RerankScore  float64 `json:"rerank_score"`
}

// CitationRecord identifies one source document that contributed text to an
// assembled context. SourceNum matches the "[Source N]" tag in the context.
type CitationRecord struct {
	SourceNum  int      `json:"source_num"`
	DocumentID string   `json:"document_id"`
	Label      string   `json:"label"`
	ChunkIDs   []string `json:"chunk_ids"`
	BestScore  float64  `json:"best_score"`
}

// QueryExpansion records how a query was enriched before retrieval, including
// which thesaurus entries fired, for auditability.
type QueryExpansion struct {
	Original string   `json:"original"`
	Expanded string   `json:"expanded"`
	Matched  []string `json:"matched"`
}

// StageTimings holds the elapsed wall time of each pipeline stage.
type StageTimings struct {
	Expand   time.Duration `json:"expand"`
	Fuse     time.Duration `json:"fuse"`
	Rerank   time.Duration `json:"rerank"`
	Assemble time.Duration `json:"assemble"`
	Generate time.Duration `json:"generate"`
	Total    time.Duration `json:"total"`
}
