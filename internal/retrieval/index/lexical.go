package index

import (
	"context"
	"fmt"
	"os"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/keyword"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/standard"
	"github.com/blevesearch/bleve/v2/mapping"
	"github.com/blevesearch/bleve/v2/search/query"

	"nyayasetu/internal/models"
	"nyayasetu/pkg/logger"
)

// lexicalDoc is the shape indexed into Bleve. Metadata is flattened into
// keyword fields so filters can match it exactly.
type lexicalDoc struct {
	Content    string            `json:"content"`
	DocumentID string            `json:"document_id"`
	DocType    string            `json:"doc_type"`
	Language   string            `json:"language"`
	Meta       map[string]string `json:"meta"`
}

// LexicalIndex adapts a Bleve full-text index to the Index contract. Scores
// are max-normalized per query, so the top hit always scores 1.0.
type LexicalIndex struct {
	log   *logger.Logger
	index bleve.Index
}

// NewLexicalIndex opens the Bleve index at path, creating it if absent.
func NewLexicalIndex(path string, log *logger.Logger) (*LexicalIndex, error) {
	idx, err := bleve.Open(path)
	if err == bleve.ErrorIndexPathDoesNotExist || os.IsNotExist(err) {
		idx, err = bleve.New(path, buildIndexMapping())
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open bleve index at %s: %w", path, err)
	}
	return &LexicalIndex{log: log, index: idx}, nil
}

func buildIndexMapping() mapping.IndexMapping {
	contentField := bleve.NewTextFieldMapping()
	contentField.Analyzer = standard.Name

	keywordField := bleve.NewKeywordFieldMapping()

	// Metadata values are matched exactly by filters, never tokenized.
	metaMapping := bleve.NewDocumentMapping()
	metaMapping.DefaultAnalyzer = keyword.Name

	docMapping := bleve.NewDocumentMapping()
	docMapping.AddFieldMappingsAt("content", contentField)
	docMapping.AddFieldMappingsAt("document_id", keywordField)
	docMapping.AddFieldMappingsAt("doc_type", keywordField)
	docMapping.AddFieldMappingsAt("language", keywordField)
	docMapping.AddSubDocumentMapping("meta", metaMapping)

	indexMapping := bleve.NewIndexMapping()
	indexMapping.DefaultAnalyzer = standard.Name
	indexMapping.DefaultMapping = docMapping
	return indexMapping
}

// Upsert indexes the chunks in one batch. Bleve overwrites documents by ID, so
// re-indexing a chunk is idempotent; chunks dropped by a re-chunk are removed
// through the per-document delete.
func (l *LexicalIndex) Upsert(ctx context.Context, chunks []*models.Chunk) error {
	if len(chunks) == 0 {
		return nil
	}

	seen := make(map[string]bool)
	for _, chunk := range chunks {
		if !seen[chunk.DocumentID] {
			seen[chunk.DocumentID] = true
			if err := l.Delete(ctx, chunk.DocumentID); err != nil {
				return err
			}
		}
	}

	batch := l.index.NewBatch()
	for _, chunk := range chunks {
		doc := lexicalDoc{
			Content:    chunk.Text,
			DocumentID: chunk.DocumentID,
			DocType:    string(chunk.DocumentType),
			Language:   chunk.Language,
			Meta:       chunk.Metadata,
		}
		if err := batch.Index(chunk.ID(), doc); err != nil {
			return fmt.Errorf("failed to add chunk %s to batch: %w", chunk.ID(), err)
		}
	}
	if err := l.index.Batch(batch); err != nil {
		return fmt.Errorf("failed to index batch: %w", err)
	}
	return nil
}

// Query runs a match query over chunk content and returns max-normalized hits.
func (l *LexicalIndex) Query(ctx context.Context, text string, k int, scope Scope, filters *FilterSet) ([]Hit, error) {
	match := bleve.NewMatchQuery(text)
	match.SetField("content")

	conjuncts := []query.Query{match}
	if scope != ScopeAll {
		conjuncts = append(conjuncts, termQuery("doc_type", docTypeForScope(scope)))
	}

	filterConjuncts, err := buildFilterQueries(filters)
	if err != nil {
		return nil, err
	}
	conjuncts = append(conjuncts, filterConjuncts...)

	req := bleve.NewSearchRequestOptions(bleve.NewConjunctionQuery(conjuncts...), k, 0, false)
	req.Fields = []string{"document_id"}

	res, err := l.index.SearchInContext(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("failed to search bleve index: %w", err)
	}

	var maxScore float64
	for _, hit := range res.Hits {
		if hit.Score > maxScore {
			maxScore = hit.Score
		}
	}

	hits := make([]Hit, 0, len(res.Hits))
	for _, hit := range res.Hits {
		score := hit.Score
		if maxScore > 0 {
			score = hit.Score / maxScore
		}
		h := Hit{ChunkID: hit.ID, Score: score}
		if docID, ok := hit.Fields["document_id"].(string); ok {
			h.DocumentID = docID
		}
		hits = append(hits, h)
	}
	return hits, nil
}

// Delete removes every chunk of a document from the index.
func (l *LexicalIndex) Delete(ctx context.Context, documentID string) error {
	req := bleve.NewSearchRequestOptions(termQuery("document_id", documentID), 10000, 0, false)
	res, err := l.index.SearchInContext(ctx, req)
	if err != nil {
		return fmt.Errorf("failed to look up chunks of document %s: %w", documentID, err)
	}

	batch := l.index.NewBatch()
	for _, hit := range res.Hits {
		batch.Delete(hit.ID)
	}
	if err := l.index.Batch(batch); err != nil {
		return fmt.Errorf("failed to delete chunks of document %s: %w", documentID, err)
	}
	return nil
}

// Close releases the underlying Bleve index.
func (l *LexicalIndex) Close() error {
	return l.index.Close()
}

func termQuery(field, term string) query.Query {
	q := bleve.NewTermQuery(term)
	q.SetField(field)
	return q
}

func docTypeForScope(scope Scope) string {
	switch scope {
	case ScopeRulings:
		return string(models.DocTypeRuling)
	case ScopeStatutes:
		return string(models.DocTypeStatute)
	default:
		return string(models.DocTypeCaseFiling)
	}
}

// buildFilterQueries translates a FilterSet into Bleve conjuncts. Top-level
// schema fields are addressed directly, everything else under meta.
func buildFilterQueries(filters *FilterSet) ([]query.Query, error) {
	if filters.Empty() {
		return nil, nil
	}
	if err := filters.Validate(); err != nil {
		return nil, err
	}

	var conjuncts []query.Query
	for _, f := range filters.Filters {
		field := lexicalField(f.Field)
		switch f.Op {
		case OpEquals:
			conjuncts = append(conjuncts, termQuery(field, f.Value))
		case OpRange:
			// An empty bound is unbounded on that side.
			inclusive := true
			rq := bleve.NewTermRangeInclusiveQuery(f.Min, f.Max, &inclusive, &inclusive)
			rq.SetField(field)
			conjuncts = append(conjuncts, rq)
		case OpIn:
			disjuncts := make([]query.Query, len(f.Values))
			for i, value := range f.Values {
				disjuncts[i] = termQuery(field, value)
			}
			conjuncts = append(conjuncts, bleve.NewDisjunctionQuery(disjuncts...))
		}
	}
	return conjuncts, nil
}

func lexicalField(field string) string {
	switch field {
	case FieldDocumentID, FieldDocType, FieldLanguage:
		return field
	default:
		return "meta." + field
	}
}

var _ Index = (*LexicalIndex)(nil)
