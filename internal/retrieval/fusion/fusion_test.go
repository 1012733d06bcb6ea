package fusion

import (
	"context"
	"errors"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"nyayasetu/internal/models"
	"nyayasetu/internal/retrieval/chunkstore"
	"nyayasetu/internal/retrieval/index"
	"nyayasetu/pkg/logger"
)

func testLogger() *logger.Logger {
	logger.Init(logrus.ErrorLevel)
	return logger.New("fusion-test", "")
}

// fakeIndex returns canned hits or a canned error.
type fakeIndex struct {
	hits []index.Hit
	err  error
}

func (f *fakeIndex) Upsert(ctx context.Context, chunks []*models.Chunk) error { return nil }

func (f *fakeIndex) Query(ctx context.Context, text string, k int, scope index.Scope, filters *index.FilterSet) ([]index.Hit, error) {
	return f.hits, f.err
}

func (f *fakeIndex) Delete(ctx context.Context, documentID string) error { return nil }

func storeWith(t *testing.T, ids ...string) chunkstore.ChunkStore {
	t.Helper()
	store := chunkstore.NewInMemoryStore()
	for _, id := range ids {
		chunk := &models.Chunk{DocumentID: id, Seq: 0, Text: "text of " + id}
		require.NoError(t, store.Put(context.Background(), []*models.Chunk{chunk}))
	}
	return store
}

func hit(id string, score float64) index.Hit {
	return index.Hit{ChunkID: id + "_0", DocumentID: id, Score: score}
}

func TestFuseWeightedScores(t *testing.T) {
	// fused(A) = 0.7*0.9 + 0.3*0.2 = 0.69, fused(B) = 0.7*0.4 + 0.3*0.9 = 0.55.
	vector := &fakeIndex{hits: []index.Hit{hit("A", 0.9), hit("B", 0.4)}}
	lexical := &fakeIndex{hits: []index.Hit{hit("B", 0.9), hit("A", 0.2)}}
	f := NewFusion(vector, lexical, storeWith(t, "A", "B"), 0.7, 0.3, testLogger())

	candidates, err := f.Fuse(context.Background(), "q", 2, index.ScopeAll, nil)

	require.NoError(t, err)
	require.Len(t, candidates, 2)
	assert.Equal(t, "A", candidates[0].Chunk.DocumentID)
	assert.InDelta(t, 0.69, candidates[0].FusedScore, 1e-9)
	assert.Equal(t, "B", candidates[1].Chunk.DocumentID)
	assert.InDelta(t, 0.55, candidates[1].FusedScore, 1e-9)
}

func TestFuseAbsentScoreIsZero(t *testing.T) {
	vector := &fakeIndex{hits: []index.Hit{hit("A", 0.8)}}
	lexical := &fakeIndex{hits: []index.Hit{hit("B", 0.6)}}
	f := NewFusion(vector, lexical, storeWith(t, "A", "B"), 0.7, 0.3, testLogger())

	candidates, err := f.Fuse(context.Background(), "q", 2, index.ScopeAll, nil)

	require.NoError(t, err)
	require.Len(t, candidates, 2)
	assert.InDelta(t, 0.7*0.8, candidates[0].FusedScore, 1e-9)
	assert.Equal(t, 0.0, candidates[0].LexicalScore)
	assert.InDelta(t, 0.3*0.6, candidates[1].FusedScore, 1e-9)
	assert.Equal(t, 0.0, candidates[1].VectorScore)
}

func TestFuseTieBreakPrefersVectorScore(t *testing.T) {
	// Both fuse to 0.7: A from vector only, B mixed.
	vector := &fakeIndex{hits: []index.Hit{hit("A", 1.0), hit("B", 0.571428571428571)}}
	lexical := &fakeIndex{hits: []index.Hit{hit("B", 1.0)}}
	f := NewFusion(vector, lexical, storeWith(t, "A", "B"), 0.7, 0.3, testLogger())

	candidates, err := f.Fuse(context.Background(), "q", 2, index.ScopeAll, nil)

	require.NoError(t, err)
	require.Len(t, candidates, 2)
	assert.InDelta(t, candidates[0].FusedScore, candidates[1].FusedScore, 1e-9)
	assert.Equal(t, "A", candidates[0].Chunk.DocumentID)
}

func TestFuseMonotonicity(t *testing.T) {
	base := NewFusion(
		&fakeIndex{hits: []index.Hit{hit("A", 0.5)}},
		&fakeIndex{hits: []index.Hit{hit("A", 0.5)}},
		storeWith(t, "A"), 0.7, 0.3, testLogger(),
	)
	raised := NewFusion(
		&fakeIndex{hits: []index.Hit{hit("A", 0.8)}},
		&fakeIndex{hits: []index.Hit{hit("A", 0.5)}},
		storeWith(t, "A"), 0.7, 0.3, testLogger(),
	)

	lo, err := base.Fuse(context.Background(), "q", 1, index.ScopeAll, nil)
	require.NoError(t, err)
	hi, err := raised.Fuse(context.Background(), "q", 1, index.ScopeAll, nil)
	require.NoError(t, err)

	assert.GreaterOrEqual(t, hi[0].FusedScore, lo[0].FusedScore)
}

func TestFuseDegradesToSurvivingAdapter(t *testing.T) {
	vector := &fakeIndex{err: errors.New("milvus down")}
	lexical := &fakeIndex{hits: []index.Hit{hit("A", 0.6)}}
	f := NewFusion(vector, lexical, storeWith(t, "A"), 0.7, 0.3, testLogger())

	candidates, err := f.Fuse(context.Background(), "q", 2, index.ScopeAll, nil)

	require.NoError(t, err)
	require.Len(t, candidates, 1)
	// The surviving adapter carries the full weight.
	assert.InDelta(t, 0.6, candidates[0].FusedScore, 1e-9)
}

func TestFuseBothAdaptersDown(t *testing.T) {
	vector := &fakeIndex{err: errors.New("milvus down")}
	lexical := &fakeIndex{err: errors.New("bleve down")}
	f := NewFusion(vector, lexical, chunkstore.NewInMemoryStore(), 0.7, 0.3, testLogger())

	_, err := f.Fuse(context.Background(), "q", 2, index.ScopeAll, nil)

	assert.ErrorIs(t, err, ErrAdaptersUnavailable)
}

func TestFuseCapsOutputAtTwiceK(t *testing.T) {
	var vectorHits []index.Hit
	ids := make([]string, 0, 6)
	for _, id := range []string{"A", "B", "C", "D", "E", "F"} {
		vectorHits = append(vectorHits, hit(id, 0.5))
		ids = append(ids, id)
	}
	f := NewFusion(&fakeIndex{hits: vectorHits}, &fakeIndex{}, storeWith(t, ids...), 0.7, 0.3, testLogger())

	candidates, err := f.Fuse(context.Background(), "q", 2, index.ScopeAll, nil)

	require.NoError(t, err)
	assert.Len(t, candidates, 4)
}

// flakyStore fails single-ID lookups for one chunk with a transient error and
// delegates everything else.
type flakyStore struct {
	chunkstore.ChunkStore
	failID string
}

func (s *flakyStore) GetMany(ctx context.Context, ids []string) ([]*models.Chunk, error) {
	if len(ids) == 1 && ids[0] == s.failID {
		return nil, errors.New("connection reset")
	}
	return s.ChunkStore.GetMany(ctx, ids)
}

func TestFuseTransientStoreErrorAborts(t *testing.T) {
	// The stale entry forces per-ID resolution; the transient failure on B
	// must surface instead of silently shrinking the candidate set.
	vector := &fakeIndex{hits: []index.Hit{hit("A", 0.9), hit("gone", 0.8), hit("B", 0.7)}}
	store := &flakyStore{ChunkStore: storeWith(t, "A", "B"), failID: "B_0"}
	f := NewFusion(vector, &fakeIndex{}, store, 0.7, 0.3, testLogger())

	_, err := f.Fuse(context.Background(), "q", 2, index.ScopeAll, nil)

	require.Error(t, err)
	assert.ErrorContains(t, err, "connection reset")
	assert.NotErrorIs(t, err, chunkstore.ErrChunkNotFound)
}

func TestFuseDropsStaleIndexEntries(t *testing.T) {
	vector := &fakeIndex{hits: []index.Hit{hit("A", 0.9), hit("gone", 0.8)}}
	f := NewFusion(vector, &fakeIndex{}, storeWith(t, "A"), 0.7, 0.3, testLogger())

	candidates, err := f.Fuse(context.Background(), "q", 2, index.ScopeAll, nil)

	require.NoError(t, err)
	require.Len(t, candidates, 1)
	assert.Equal(t, "A", candidates[0].Chunk.DocumentID)
}
