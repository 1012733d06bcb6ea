package ingestion

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"nyayasetu/internal/models"
	"nyayasetu/internal/retrieval/chunker"
	"nyayasetu/internal/retrieval/chunkstore"
	"nyayasetu/internal/retrieval/index"
	"nyayasetu/pkg/logger"
)

func testLogger() *logger.Logger {
	logger.Init(logrus.ErrorLevel)
	return logger.New("ingestion-test", "")
}

// fakeLocker tracks acquire/release calls and can start with held keys.
type fakeLocker struct {
	held     map[string]bool
	released []string
	err      error
}

func newFakeLocker() *fakeLocker {
	return &fakeLocker{held: make(map[string]bool)}
}

func (l *fakeLocker) Acquire(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	if l.err != nil {
		return false, l.err
	}
	if l.held[key] {
		return false, nil
	}
	l.held[key] = true
	return true, nil
}

func (l *fakeLocker) Release(ctx context.Context, key string) error {
	delete(l.held, key)
	l.released = append(l.released, key)
	return nil
}

// fakeEmbedder returns one fixed-dimension vector per text.
type fakeEmbedder struct {
	err error
}

func (f *fakeEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if f.err != nil {
		return nil, f.err
	}
	return []float32{0.1, 0.2}, nil
}

func (f *fakeEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if f.err != nil {
		return nil, f.err
	}
	out := make([][]float32, len(texts))
	for i := range out {
		out[i] = []float32{0.1, 0.2}
	}
	return out, nil
}

// recordingIndex keeps the last upserted chunk set per document, mirroring
// the delete-then-insert behavior of the real indexes.
type recordingIndex struct {
	byDoc   map[string][]*models.Chunk
	upserts int
}

func newRecordingIndex() *recordingIndex {
	return &recordingIndex{byDoc: make(map[string][]*models.Chunk)}
}

func (r *recordingIndex) Upsert(ctx context.Context, chunks []*models.Chunk) error {
	r.upserts++
	for _, chunk := range chunks {
		delete(r.byDoc, chunk.DocumentID)
	}
	for _, chunk := range chunks {
		r.byDoc[chunk.DocumentID] = append(r.byDoc[chunk.DocumentID], chunk)
	}
	return nil
}

func (r *recordingIndex) Query(ctx context.Context, text string, k int, scope index.Scope, filters *index.FilterSet) ([]index.Hit, error) {
	return nil, nil
}

func (r *recordingIndex) Delete(ctx context.Context, documentID string) error {
	delete(r.byDoc, documentID)
	return nil
}

// fakeMetadata records Save and Delete calls in memory.
type fakeMetadata struct {
	records map[string]*DocumentRecord
	deleted []string
}

func newFakeMetadata() *fakeMetadata {
	return &fakeMetadata{records: make(map[string]*DocumentRecord)}
}

func (m *fakeMetadata) Save(record *DocumentRecord) error {
	m.records[record.ID] = record
	return nil
}

func (m *fakeMetadata) Delete(documentID string) error {
	delete(m.records, documentID)
	m.deleted = append(m.deleted, documentID)
	return nil
}

type fakeFetcher struct {
	objects map[string]string
}

func (f *fakeFetcher) Fetch(ctx context.Context, key string) (string, error) {
	text, ok := f.objects[key]
	if !ok {
		return "", errors.New("object not found: " + key)
	}
	return text, nil
}

type workerFixture struct {
	worker   *Worker
	locker   *fakeLocker
	vector   *recordingIndex
	lexical  *recordingIndex
	chunks   *chunkstore.InMemoryStore
	metadata *fakeMetadata
	fetcher  *fakeFetcher
}

func newWorkerFixture(t *testing.T, embedder *fakeEmbedder) *workerFixture {
	t.Helper()
	f := &workerFixture{
		locker:   newFakeLocker(),
		vector:   newRecordingIndex(),
		lexical:  newRecordingIndex(),
		chunks:   chunkstore.NewInMemoryStore(),
		metadata: newFakeMetadata(),
		fetcher:  &fakeFetcher{objects: make(map[string]string)},
	}
	log := testLogger()
	f.worker = NewWorker(
		chunker.NewChunker(500, 100, log),
		embedder, f.vector, f.lexical,
		f.chunks, f.metadata, f.locker, f.fetcher, nil, log,
	)
	return f
}

func testDocument() *models.Document {
	return &models.Document{
		ID:       "ruling-42",
		Type:     models.DocTypeRuling,
		Language: "en",
		Metadata: map[string]string{"title": "State v. Mehta"},
		Text:     "The accused was arrested on the complaint of the victim. The court considered the gravity of the offence before granting bail.",
	}
}

func TestIngestDocumentWritesAllStores(t *testing.T) {
	f := newWorkerFixture(t, &fakeEmbedder{})

	require.NoError(t, f.worker.IngestDocument(context.Background(), testDocument()))

	assert.Equal(t, 1, f.chunks.Len())
	assert.Len(t, f.vector.byDoc["ruling-42"], 1)
	assert.Len(t, f.lexical.byDoc["ruling-42"], 1)

	record := f.metadata.records["ruling-42"]
	require.NotNil(t, record)
	assert.Equal(t, "State v. Mehta", record.Title)
	assert.Equal(t, 1, record.ChunkCount)

	// Every chunk carries its embedding into the stores.
	for _, chunk := range f.vector.byDoc["ruling-42"] {
		assert.NotEmpty(t, chunk.Embedding)
	}
	assert.Equal(t, []string{ingestLockPrefix + "ruling-42"}, f.locker.released)
}

func TestIngestDocumentHeldLockRejectsSecondWorker(t *testing.T) {
	f := newWorkerFixture(t, &fakeEmbedder{})
	f.locker.held[ingestLockPrefix+"ruling-42"] = true

	err := f.worker.IngestDocument(context.Background(), testDocument())

	assert.ErrorIs(t, err, ErrDocumentLocked)
	assert.Zero(t, f.chunks.Len())
	assert.Empty(t, f.vector.byDoc)
	assert.Empty(t, f.metadata.records)
	// The lock belongs to the other worker and must not be released.
	assert.Empty(t, f.locker.released)
}

func TestIngestDocumentReingestIsIdempotent(t *testing.T) {
	f := newWorkerFixture(t, &fakeEmbedder{})
	doc := testDocument()

	require.NoError(t, f.worker.IngestDocument(context.Background(), doc))
	chunksBefore := f.chunks.Len()
	indexedBefore := len(f.vector.byDoc["ruling-42"])

	require.NoError(t, f.worker.IngestDocument(context.Background(), doc))

	assert.Equal(t, chunksBefore, f.chunks.Len())
	assert.Equal(t, indexedBefore, len(f.vector.byDoc["ruling-42"]))
	assert.Equal(t, 2, f.vector.upserts)
	assert.Equal(t, 1, f.metadata.records["ruling-42"].ChunkCount)
}

func TestIngestDocumentReleasesLockOnEmbedFailure(t *testing.T) {
	f := newWorkerFixture(t, &fakeEmbedder{err: errors.New("model overloaded")})

	err := f.worker.IngestDocument(context.Background(), testDocument())

	require.Error(t, err)
	assert.Zero(t, f.chunks.Len())
	assert.Empty(t, f.metadata.records)
	assert.Equal(t, []string{ingestLockPrefix + "ruling-42"}, f.locker.released)
}

func TestHandleFetchesObjectText(t *testing.T) {
	f := newWorkerFixture(t, &fakeEmbedder{})
	f.fetcher.objects["normalized/ruling-42.txt"] = "The court held that the chargesheet was filed in time."

	payload := []byte(`{"document_id":"ruling-42","doc_type":"ruling","language":"en","text_object_key":"normalized/ruling-42.txt"}`)
	require.NoError(t, f.worker.handle(context.Background(), payload))

	assert.Equal(t, 1, f.chunks.Len())
	assert.Len(t, f.lexical.byDoc["ruling-42"], 1)
}

func TestDeleteDocumentClearsAllStores(t *testing.T) {
	f := newWorkerFixture(t, &fakeEmbedder{})
	require.NoError(t, f.worker.IngestDocument(context.Background(), testDocument()))

	require.NoError(t, f.worker.DeleteDocument(context.Background(), "ruling-42"))

	assert.Zero(t, f.chunks.Len())
	assert.Empty(t, f.vector.byDoc)
	assert.Empty(t, f.lexical.byDoc)
	assert.Equal(t, []string{"ruling-42"}, f.metadata.deleted)
}
