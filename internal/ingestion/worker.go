package ingestion

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/segmentio/kafka-go"
	"golang.org/x/sync/errgroup"

	"nyayasetu/internal/embedding"
	"nyayasetu/internal/models"
	"nyayasetu/internal/retrieval/chunker"
	"nyayasetu/internal/retrieval/chunkstore"
	"nyayasetu/internal/retrieval/index"
	"nyayasetu/pkg/logger"
)

// ErrDocumentLocked is returned when another worker is ingesting the same
// document. Ingestion of different documents runs freely in parallel.
var ErrDocumentLocked = errors.New("document ingestion already in progress")

const (
	ingestLockPrefix = "ingest_lock:"
	ingestLockTTL    = 5 * time.Minute
)

// DocumentLocker serializes ingestion of a single document across workers.
type DocumentLocker interface {
	// Acquire takes the lock, returning false when it is already held.
	Acquire(ctx context.Context, key string, ttl time.Duration) (bool, error)
	Release(ctx context.Context, key string) error
}

// ObjectFetcher loads normalized document text from object storage.
type ObjectFetcher interface {
	Fetch(ctx context.Context, key string) (string, error)
}

// MessageSource is the ingestion topic consumer. *kafka.Reader satisfies it.
type MessageSource interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
}

// MetadataRecorder persists the per-document relational metadata row.
type MetadataRecorder interface {
	Save(record *DocumentRecord) error
	Delete(documentID string) error
}

// Worker consumes document envelopes and writes chunks, vectors and metadata
// to all stores. Writes to the three chunk-level stores run in parallel per
// document.
type Worker struct {
	log      *logger.Logger
	chunker  *chunker.Chunker
	embedder embedding.Embedding
	vector   index.Index
	lexical  index.Index
	chunks   chunkstore.ChunkStore
	metadata MetadataRecorder
	locker   DocumentLocker
	objects  ObjectFetcher
	reader   MessageSource
}

// NewWorker wires a Worker from its stores and the ingestion topic reader.
func NewWorker(
	ck *chunker.Chunker,
	embedder embedding.Embedding,
	vector, lexical index.Index,
	chunks chunkstore.ChunkStore,
	metadata MetadataRecorder,
	locker DocumentLocker,
	objects ObjectFetcher,
	reader MessageSource,
	log *logger.Logger,
) *Worker {
	return &Worker{
		log:      log,
		chunker:  ck,
		embedder: embedder,
		vector:   vector,
		lexical:  lexical,
		chunks:   chunks,
		metadata: metadata,
		locker:   locker,
		objects:  objects,
		reader:   reader,
	}
}

// Run consumes envelopes until the context is canceled. A failed document is
// logged and skipped; the loop keeps going.
func (w *Worker) Run(ctx context.Context) error {
	w.log.Info("Ingestion worker started")
	for {
		msg, err := w.reader.FetchMessage(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, io.EOF) {
				return nil
			}
			return fmt.Errorf("failed to fetch ingestion message: %w", err)
		}

		if err := w.handle(ctx, msg.Value); err != nil {
			w.log.WithPayload(map[string]interface{}{
				"offset": msg.Offset,
				"error":  err.Error(),
			}).Error("Failed to ingest document")
		}

		if err := w.reader.CommitMessages(ctx, msg); err != nil {
			w.log.WithField("error", err.Error()).Error("Failed to commit ingestion offset")
		}
	}
}

func (w *Worker) handle(ctx context.Context, payload []byte) error {
	var envelope DocumentEnvelope
	if err := json.Unmarshal(payload, &envelope); err != nil {
		return fmt.Errorf("failed to decode envelope: %w", err)
	}
	if err := envelope.Validate(); err != nil {
		return err
	}

	doc, err := w.resolve(ctx, &envelope)
	if err != nil {
		return err
	}
	return w.IngestDocument(ctx, doc)
}

// resolve turns an envelope into a Document, fetching the normalized text
// from object storage when it is not inline.
func (w *Worker) resolve(ctx context.Context, envelope *DocumentEnvelope) (*models.Document, error) {
	docType, err := models.ParseDocumentType(envelope.DocType)
	if err != nil {
		return nil, err
	}

	text := envelope.Text
	if text == "" {
		text, err = w.objects.Fetch(ctx, envelope.TextObjectKey)
		if err != nil {
			return nil, err
		}
	}

	return &models.Document{
		ID:       envelope.DocumentID,
		Type:     docType,
		Language: envelope.Language,
		Metadata: envelope.Metadata,
		Text:     text,
	}, nil
}

// IngestDocument chunks, embeds and indexes one document. A per-document
// lock keeps two workers from interleaving writes for the same document;
// writes are idempotent by chunk ID, so a retry after a crash converges.
func (w *Worker) IngestDocument(ctx context.Context, doc *models.Document) error {
	lockKey := ingestLockPrefix + doc.ID
	acquired, err := w.locker.Acquire(ctx, lockKey, ingestLockTTL)
	if err != nil {
		return fmt.Errorf("failed to acquire ingest lock for %s: %w", doc.ID, err)
	}
	if !acquired {
		return fmt.Errorf("%w: %s", ErrDocumentLocked, doc.ID)
	}
	defer func() {
		if err := w.locker.Release(ctx, lockKey); err != nil {
			w.log.WithField("error", err.Error()).Warn("Failed to release ingest lock")
		}
	}()

	// 1. Chunk. A document with no chunkable text is logged and skipped.
	chunks := w.chunker.Chunk(doc)
	if len(chunks) == 0 {
		return nil
	}

	// 2. Embed all chunk texts in one batch.
	texts := make([]string, len(chunks))
	for i, chunk := range chunks {
		texts[i] = chunk.Text
	}
	vectors, err := w.embedder.EmbedBatch(ctx, texts)
	if err != nil {
		return fmt.Errorf("failed to embed chunks of %s: %w", doc.ID, err)
	}
	if len(vectors) != len(chunks) {
		return fmt.Errorf("embedding batch for %s returned %d vectors for %d chunks", doc.ID, len(vectors), len(chunks))
	}
	for i, chunk := range chunks {
		chunk.Embedding = vectors[i]
	}

	// 3. Write the chunk store and both indexes in parallel.
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return w.chunks.Put(gctx, chunks) })
	g.Go(func() error { return w.vector.Upsert(gctx, chunks) })
	g.Go(func() error { return w.lexical.Upsert(gctx, chunks) })
	if err := g.Wait(); err != nil {
		return fmt.Errorf("failed to index document %s: %w", doc.ID, err)
	}

	// 4. Record relational metadata last so the record only exists for fully
	// indexed documents.
	record := &DocumentRecord{
		ID:         doc.ID,
		DocType:    string(doc.Type),
		Language:   doc.Language,
		Title:      doc.Metadata["title"],
		ChunkCount: len(chunks),
	}
	if err := w.metadata.Save(record); err != nil {
		return err
	}

	w.log.WithPayload(map[string]interface{}{
		"document_id": doc.ID,
		"doc_type":    doc.Type,
		"chunks":      len(chunks),
	}).Info("Document ingested")
	return nil
}

// DeleteDocument removes a document from every store.
func (w *Worker) DeleteDocument(ctx context.Context, documentID string) error {
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return w.chunks.DeleteByDocument(gctx, documentID) })
	g.Go(func() error { return w.vector.Delete(gctx, documentID) })
	g.Go(func() error { return w.lexical.Delete(gctx, documentID) })
	if err := g.Wait(); err != nil {
		return fmt.Errorf("failed to delete document %s: %w", documentID, err)
	}
	return w.metadata.Delete(documentID)
}
