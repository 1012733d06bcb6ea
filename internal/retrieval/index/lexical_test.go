package index

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"nyayasetu/internal/models"
	"nyayasetu/pkg/logger"
)

func testLogger() *logger.Logger {
	logger.Init(logrus.ErrorLevel)
	return logger.New("index-test", "")
}

func newTestLexicalIndex(t *testing.T) *LexicalIndex {
	t.Helper()
	idx, err := NewLexicalIndex(filepath.Join(t.TempDir(), "lexical.bleve"), testLogger())
	require.NoError(t, err)
	t.Cleanup(func() { idx.Close() })
	return idx
}

func testChunks() []*models.Chunk {
	return []*models.Chunk{
		{
			DocumentID:   "ruling-1",
			DocumentType: models.DocTypeRuling,
			Language:     "en",
			Seq:          0,
			Total:        2,
			Metadata:     map[string]string{"court": "Gujarat High Court"},
			Text:         "The accused was convicted of murder under Section 302.",
		},
		{
			DocumentID:   "ruling-1",
			DocumentType: models.DocTypeRuling,
			Language:     "en",
			Seq:          1,
			Total:        2,
			Metadata:     map[string]string{"court": "Gujarat High Court"},
			Text:         "Bail was denied considering the gravity of the offence.",
		},
		{
			DocumentID:   "statute-1",
			DocumentType: models.DocTypeStatute,
			Language:     "en",
			Seq:          0,
			Total:        1,
			Text:         "Whoever commits murder shall be punished with imprisonment for life.",
		},
	}
}

func TestLexicalQueryRanksMatches(t *testing.T) {
	idx := newTestLexicalIndex(t)
	ctx := context.Background()
	require.NoError(t, idx.Upsert(ctx, testChunks()))

	hits, err := idx.Query(ctx, "murder", 10, ScopeAll, nil)
	require.NoError(t, err)
	require.Len(t, hits, 2)

	// Scores are max-normalized: the best hit scores exactly 1.
	assert.Equal(t, 1.0, hits[0].Score)
	for _, h := range hits {
		assert.GreaterOrEqual(t, h.Score, 0.0)
		assert.LessOrEqual(t, h.Score, 1.0)
		assert.NotEmpty(t, h.DocumentID)
	}
}

func TestLexicalQueryScoped(t *testing.T) {
	idx := newTestLexicalIndex(t)
	ctx := context.Background()
	require.NoError(t, idx.Upsert(ctx, testChunks()))

	hits, err := idx.Query(ctx, "murder", 10, ScopeStatutes, nil)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, "statute-1", hits[0].DocumentID)
}

func TestLexicalQueryWithFilters(t *testing.T) {
	idx := newTestLexicalIndex(t)
	ctx := context.Background()
	require.NoError(t, idx.Upsert(ctx, testChunks()))

	hits, err := idx.Query(ctx, "murder", 10, ScopeAll, &FilterSet{
		Filters: []Filter{Equals("court", "Gujarat High Court")},
	})
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, "ruling-1", hits[0].DocumentID)
}

func TestLexicalUpsertIsIdempotent(t *testing.T) {
	idx := newTestLexicalIndex(t)
	ctx := context.Background()
	chunks := testChunks()

	require.NoError(t, idx.Upsert(ctx, chunks))
	before, err := idx.index.DocCount()
	require.NoError(t, err)

	require.NoError(t, idx.Upsert(ctx, chunks))
	after, err := idx.index.DocCount()
	require.NoError(t, err)

	assert.Equal(t, before, after)
}

func TestLexicalDeleteRemovesDocument(t *testing.T) {
	idx := newTestLexicalIndex(t)
	ctx := context.Background()
	require.NoError(t, idx.Upsert(ctx, testChunks()))

	require.NoError(t, idx.Delete(ctx, "ruling-1"))

	hits, err := idx.Query(ctx, "murder", 10, ScopeAll, nil)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, "statute-1", hits[0].DocumentID)
}
