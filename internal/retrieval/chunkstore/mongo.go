package chunkstore

import (
	"context"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"nyayasetu/internal/models"
)

// chunkRecord is the MongoDB document layout for a stored chunk.
type chunkRecord struct {
	ID         string            `bson:"_id"`
	DocumentID string            `bson:"document_id"`
	DocType    string            `bson:"doc_type"`
	Language   string            `bson:"language"`
	Seq        int               `bson:"seq"`
	Total      int               `bson:"total"`
	Section    string            `bson:"section,omitempty"`
	Overlap    int               `bson:"overlap"`
	Metadata   map[string]string `bson:"metadata,omitempty"`
	Text       string            `bson:"text"`
}

// MongoStore persists chunk text in a MongoDB collection keyed by chunk ID.
type MongoStore struct {
	collection *mongo.Collection
}

// NewMongoStore creates a store on the given database and collection.
func NewMongoStore(client *mongo.Client, database, collection string) *MongoStore {
	return &MongoStore{collection: client.Database(database).Collection(collection)}
}

// Put upserts the chunks in one bulk write.
func (s *MongoStore) Put(ctx context.Context, chunks []*models.Chunk) error {
	if len(chunks) == 0 {
		return nil
	}

	writes := make([]mongo.WriteModel, len(chunks))
	for i, chunk := range chunks {
		record := chunkRecord{
			ID:         chunk.ID(),
			DocumentID: chunk.DocumentID,
			DocType:    string(chunk.DocumentType),
			Language:   chunk.Language,
			Seq:        chunk.Seq,
			Total:      chunk.Total,
			Section:    chunk.Section,
			Overlap:    chunk.Overlap,
			Metadata:   chunk.Metadata,
			Text:       chunk.Text,
		}
		writes[i] = mongo.NewReplaceOneModel().
			SetFilter(bson.M{"_id": record.ID}).
			SetReplacement(record).
			SetUpsert(true)
	}

	if _, err := s.collection.BulkWrite(ctx, writes); err != nil {
		return fmt.Errorf("failed to store chunks: %w", err)
	}
	return nil
}

// GetMany fetches the chunks for the given IDs in one query, then reorders
// them to match the input.
func (s *MongoStore) GetMany(ctx context.Context, ids []string) ([]*models.Chunk, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	cursor, err := s.collection.Find(ctx, bson.M{"_id": bson.M{"$in": ids}})
	if err != nil {
		return nil, fmt.Errorf("failed to fetch chunks: %w", err)
	}
	defer cursor.Close(ctx)

	byID := make(map[string]*models.Chunk, len(ids))
	for cursor.Next(ctx) {
		var record chunkRecord
		if err := cursor.Decode(&record); err != nil {
			return nil, fmt.Errorf("failed to decode chunk: %w", err)
		}
		byID[record.ID] = &models.Chunk{
			DocumentID:   record.DocumentID,
			DocumentType: models.DocumentType(record.DocType),
			Language:     record.Language,
			Seq:          record.Seq,
			Total:        record.Total,
			Section:      record.Section,
			Overlap:      record.Overlap,
			Metadata:     record.Metadata,
			Text:         record.Text,
		}
	}
	if err := cursor.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate chunks: %w", err)
	}

	chunks := make([]*models.Chunk, len(ids))
	for i, id := range ids {
		chunk, ok := byID[id]
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrChunkNotFound, id)
		}
		chunks[i] = chunk
	}
	return chunks, nil
}

// DeleteByDocument removes all chunks of a document.
func (s *MongoStore) DeleteByDocument(ctx context.Context, documentID string) error {
	if _, err := s.collection.DeleteMany(ctx, bson.M{"document_id": documentID}); err != nil {
		return fmt.Errorf("failed to delete chunks of document %s: %w", documentID, err)
	}
	return nil
}

// EnsureIndexes creates the document_id index used by DeleteByDocument.
func (s *MongoStore) EnsureIndexes(ctx context.Context) error {
	_, err := s.collection.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "document_id", Value: 1}},
		Options: options.Index(),
	})
	if err != nil {
		return fmt.Errorf("failed to create chunk indexes: %w", err)
	}
	return nil
}

var _ ChunkStore = (*MongoStore)(nil)
