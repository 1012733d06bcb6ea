package index

import (
	"context"
	"fmt"
	"strings"

	"github.com/milvus-io/milvus-sdk-go/v2/client"
	"github.com/milvus-io/milvus-sdk-go/v2/entity"

	"nyayasetu/internal/database/milvus"
	"nyayasetu/internal/embedding"
	"nyayasetu/internal/models"
	"nyayasetu/pkg/logger"
)

// Schema fields of the Milvus collection.
const (
	FieldChunkID    = "id"
	FieldDocumentID = "document_id"
	FieldDocType    = "doc_type"
	FieldLanguage   = "language"
	FieldCourt      = "court"
	FieldDistrict   = "district"
	FieldDate       = "date"
	FieldEmbedding  = "embedding"
)

// filterableFields are the metadata columns queries may filter on.
var filterableFields = map[string]bool{
	FieldDocumentID: true,
	FieldDocType:    true,
	FieldLanguage:   true,
	FieldCourt:      true,
	FieldDistrict:   true,
	FieldDate:       true,
}

// VectorIndex adapts the Milvus collection to the Index contract. Document
// types are stored in separate partitions so scoped queries are a hard
// pre-filter, not a post-filter on the top-k.
type VectorIndex struct {
	log        *logger.Logger
	client     client.Client
	collection string
	embedder   embedding.Embedding
}

// NewVectorIndex creates a VectorIndex on top of the shared Milvus client.
func NewVectorIndex(milvusClient *milvus.MilvusClient, embedder embedding.Embedding, log *logger.Logger) (*VectorIndex, error) {
	if milvusClient == nil || milvusClient.Client == nil {
		return nil, fmt.Errorf("milvus client is not initialized")
	}
	return &VectorIndex{
		log:        log,
		client:     milvusClient.Client,
		collection: milvusClient.Config.Schema.CollectionName,
		embedder:   embedder,
	}, nil
}

// Upsert replaces the indexed vectors of the chunks' documents. Existing
// vectors for each document are deleted first, so re-ingesting a document is
// idempotent by chunk identifier.
func (v *VectorIndex) Upsert(ctx context.Context, chunks []*models.Chunk) error {
	if len(chunks) == 0 {
		return nil
	}

	// 1. Delete existing vectors per document, then group chunks by partition.
	seen := make(map[string]bool)
	byPartition := make(map[Scope][]*models.Chunk)
	for _, chunk := range chunks {
		if !seen[chunk.DocumentID] {
			seen[chunk.DocumentID] = true
			if err := v.Delete(ctx, chunk.DocumentID); err != nil {
				return err
			}
		}
		p := PartitionFor(chunk.DocumentType)
		byPartition[p] = append(byPartition[p], chunk)
	}

	// 2. Insert per partition.
	for partition, group := range byPartition {
		if err := v.insert(ctx, string(partition), group); err != nil {
			return err
		}
	}
	return nil
}

func (v *VectorIndex) insert(ctx context.Context, partition string, chunks []*models.Chunk) error {
	ids := make([]string, len(chunks))
	docIDs := make([]string, len(chunks))
	docTypes := make([]string, len(chunks))
	languages := make([]string, len(chunks))
	courts := make([]string, len(chunks))
	districts := make([]string, len(chunks))
	dates := make([]string, len(chunks))
	embeddings := make([][]float32, len(chunks))

	dim := 0
	for i, chunk := range chunks {
		if len(chunk.Embedding) == 0 {
			return fmt.Errorf("chunk %s has no embedding", chunk.ID())
		}
		ids[i] = chunk.ID()
		docIDs[i] = chunk.DocumentID
		docTypes[i] = string(chunk.DocumentType)
		languages[i] = chunk.Language
		courts[i] = chunk.Metadata["court"]
		districts[i] = chunk.Metadata["district"]
		dates[i] = chunk.Metadata["date"]
		embeddings[i] = chunk.Embedding
		if len(chunk.Embedding) > dim {
			dim = len(chunk.Embedding)
		}
	}

	cols := []entity.Column{
		entity.NewColumnVarChar(FieldChunkID, ids),
		entity.NewColumnVarChar(FieldDocumentID, docIDs),
		entity.NewColumnVarChar(FieldDocType, docTypes),
		entity.NewColumnVarChar(FieldLanguage, languages),
		entity.NewColumnVarChar(FieldCourt, courts),
		entity.NewColumnVarChar(FieldDistrict, districts),
		entity.NewColumnVarChar(FieldDate, dates),
		entity.NewColumnFloatVector(FieldEmbedding, dim, embeddings),
	}

	v.log.Info(fmt.Sprintf("Inserting %d vectors into partition '%s'", len(chunks), partition))
	if _, err := v.client.Insert(ctx, v.collection, partition, cols...); err != nil {
		return fmt.Errorf("failed to insert vectors into Milvus: %w", err)
	}
	return nil
}

// Query embeds the query text and runs a scoped nearest-neighbor search.
func (v *VectorIndex) Query(ctx context.Context, text string, k int, scope Scope, filters *FilterSet) ([]Hit, error) {
	queryEmbedding, err := v.embedder.Embed(ctx, text)
	if err != nil {
		return nil, fmt.Errorf("failed to embed query: %w", err)
	}

	expr, err := buildFilterExpression(filters)
	if err != nil {
		return nil, err
	}

	var partitions []string
	if scope != ScopeAll {
		partitions = []string{string(scope)}
	}

	searchParams, _ := entity.NewIndexIvfFlatSearchParam(10)
	outputFields := []string{FieldChunkID, FieldDocumentID}

	searchResults, err := v.client.Search(
		ctx, v.collection, partitions, expr, outputFields,
		[]entity.Vector{entity.FloatVector(queryEmbedding)},
		FieldEmbedding, entity.L2, k, searchParams,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to search in Milvus: %w", err)
	}

	var hits []Hit
	for _, res := range searchResults {
		var idData, docIDData []string
		for _, field := range res.Fields {
			col, ok := field.(*entity.ColumnVarChar)
			if !ok {
				continue
			}
			switch col.Name() {
			case FieldChunkID:
				idData = col.Data()
			case FieldDocumentID:
				docIDData = col.Data()
			}
		}
		if idData == nil {
			v.log.Warn("Search result is missing the chunk ID field, skipping")
			continue
		}

		for i := 0; i < res.ResultCount && i < len(idData); i++ {
			hit := Hit{
				ChunkID: idData[i],
				Score:   normalizeL2(float64(res.Scores[i])),
			}
			if docIDData != nil {
				hit.DocumentID = docIDData[i]
			}
			hits = append(hits, hit)
		}
	}
	return hits, nil
}

// Delete removes all vectors of a document from every partition.
func (v *VectorIndex) Delete(ctx context.Context, documentID string) error {
	expr := fmt.Sprintf(`%s == "%s"`, FieldDocumentID, documentID)
	if err := v.client.Delete(ctx, v.collection, "", expr); err != nil {
		return fmt.Errorf("failed to delete vectors of document %s: %w", documentID, err)
	}
	return nil
}

// normalizeL2 converts an L2 distance to a relevance score in [0,1].
func normalizeL2(distance float64) float64 {
	score := 1.0 - distance/2.0
	if score < 0 {
		return 0
	}
	return score
}

// buildFilterExpression translates a FilterSet into a Milvus boolean
// expression. Unknown fields and operators are rejected.
func buildFilterExpression(filters *FilterSet) (string, error) {
	if filters.Empty() {
		return "", nil
	}
	if err := filters.Validate(); err != nil {
		return "", err
	}

	var conditions []string
	for _, f := range filters.Filters {
		if !filterableFields[f.Field] {
			return "", fmt.Errorf("field %q is not filterable", f.Field)
		}
		switch f.Op {
		case OpEquals:
			conditions = append(conditions, fmt.Sprintf(`%s == "%s"`, f.Field, f.Value))
		case OpRange:
			if f.Min != "" {
				conditions = append(conditions, fmt.Sprintf(`%s >= "%s"`, f.Field, f.Min))
			}
			if f.Max != "" {
				conditions = append(conditions, fmt.Sprintf(`%s <= "%s"`, f.Field, f.Max))
			}
		case OpIn:
			quoted := make([]string, len(f.Values))
			for i, value := range f.Values {
				quoted[i] = fmt.Sprintf(`"%s"`, value)
			}
			conditions = append(conditions, fmt.Sprintf(`%s in [%s]`, f.Field, strings.Join(quoted, ", ")))
		}
	}
	return strings.Join(conditions, " and "), nil
}

var _ Index = (*VectorIndex)(nil)
