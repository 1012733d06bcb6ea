package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"nyayasetu/internal/models"
	"nyayasetu/internal/retrieval/assemble"
	"nyayasetu/internal/retrieval/chunkstore"
	"nyayasetu/internal/retrieval/expander"
	"nyayasetu/internal/retrieval/fusion"
	"nyayasetu/internal/retrieval/index"
	"nyayasetu/internal/retrieval/rerank"
	"nyayasetu/pkg/logger"
)

func testLogger() *logger.Logger {
	logger.Init(logrus.ErrorLevel)
	return logger.New("pipeline-test", "")
}

type fakeIndex struct {
	hits []index.Hit
	err  error
}

func (f *fakeIndex) Upsert(ctx context.Context, chunks []*models.Chunk) error { return nil }

func (f *fakeIndex) Query(ctx context.Context, text string, k int, scope index.Scope, filters *index.FilterSet) ([]index.Hit, error) {
	return f.hits, f.err
}

func (f *fakeIndex) Delete(ctx context.Context, documentID string) error { return nil }

type fakeScorer struct {
	score float64
	err   error
}

func (f *fakeScorer) Score(ctx context.Context, query string, texts []string) ([]float64, error) {
	if f.err != nil {
		return nil, f.err
	}
	out := make([]float64, len(texts))
	for i := range out {
		out[i] = f.score
	}
	return out, nil
}

type fakeLLM struct {
	answer        string
	generateErr   error
	healthErr     error
	generateCalls int
}

func (f *fakeLLM) Generate(ctx context.Context, prompt string) (string, error) {
	f.generateCalls++
	return f.answer, f.generateErr
}

func (f *fakeLLM) GenerateStream(ctx context.Context, prompt string) (<-chan string, error) {
	f.generateCalls++
	if f.generateErr != nil {
		return nil, f.generateErr
	}
	out := make(chan string, 2)
	out <- f.answer[:len(f.answer)/2]
	out <- f.answer[len(f.answer)/2:]
	close(out)
	return out, nil
}

func (f *fakeLLM) HealthCheck(ctx context.Context) error { return f.healthErr }

// newTestPipeline wires a pipeline over two fake adapters holding one
// indexed chunk each and the given scorer and generator.
func newTestPipeline(t *testing.T, scorer rerank.PairScorer, generator *fakeLLM) *Pipeline {
	t.Helper()
	log := testLogger()

	store := chunkstore.NewInMemoryStore()
	chunks := []*models.Chunk{
		{DocumentID: "ruling-1", Seq: 0, Total: 1, Text: "The court held that bail requires sureties.", Metadata: map[string]string{"title": "State v. Shah"}},
		{DocumentID: "statute-1", Seq: 0, Total: 1, Text: "Section 437 CrPC governs bail for non-bailable offences."},
	}
	require.NoError(t, store.Put(context.Background(), chunks))

	vector := &fakeIndex{hits: []index.Hit{
		{ChunkID: "ruling-1_0", DocumentID: "ruling-1", Score: 0.9},
		{ChunkID: "statute-1_0", DocumentID: "statute-1", Score: 0.7},
	}}
	lexical := &fakeIndex{hits: []index.Hit{
		{ChunkID: "statute-1_0", DocumentID: "statute-1", Score: 0.8},
	}}

	fuse := fusion.NewFusion(vector, lexical, store, 0.7, 0.3, log)
	rr := rerank.NewReranker(scorer, 0.3, 2, log)
	asm := assemble.NewAssembler(3000, log)
	exp := expander.NewExpander(nil)

	return NewPipeline(exp, fuse, rr, asm, generator, 5, log)
}

func TestAskEmptyQueryFails(t *testing.T) {
	generator := &fakeLLM{answer: "unused"}
	p := newTestPipeline(t, &fakeScorer{score: 0.9}, generator)

	resp, err := p.Ask(context.Background(), Request{Query: "   "})

	assert.ErrorIs(t, err, ErrInvalidQuery)
	require.NotNil(t, resp)
	assert.Equal(t, StateFailed, resp.State)
	assert.NotEmpty(t, resp.Cause)
	assert.Zero(t, generator.generateCalls)
}

func TestAskCompletes(t *testing.T) {
	generator := &fakeLLM{answer: "Bail requires sureties [Source 1]."}
	p := newTestPipeline(t, &fakeScorer{score: 0.9}, generator)

	resp, err := p.Ask(context.Background(), Request{Query: "bail conditions"})

	require.NoError(t, err)
	assert.Equal(t, StateCompleted, resp.State)
	assert.Equal(t, generator.answer, resp.Answer)
	assert.Equal(t, 2, resp.CandidatesConsidered)
	require.Len(t, resp.Citations, 2)
	assert.Equal(t, 1, resp.Citations[0].SourceNum)
	assert.False(t, resp.InsufficientEvidence)
	assert.Greater(t, resp.Timings.Total, resp.Timings.Generate)
}

func TestAskRecordsExpansion(t *testing.T) {
	generator := &fakeLLM{answer: "ok"}
	p := newTestPipeline(t, &fakeScorer{score: 0.9}, generator)

	resp, err := p.Ask(context.Background(), Request{Query: "bail conditions"})

	require.NoError(t, err)
	assert.Equal(t, "bail conditions", resp.Expansion.Original)
	assert.Contains(t, resp.Expansion.Expanded, "Section 437 CrPC")
	assert.Contains(t, resp.Expansion.Matched, "bail")
}

func TestAskInsufficientEvidenceCompletesWithoutGeneration(t *testing.T) {
	generator := &fakeLLM{answer: "unused"}
	p := newTestPipeline(t, &fakeScorer{score: 0.1}, generator)

	resp, err := p.Ask(context.Background(), Request{Query: "bail conditions"})

	require.NoError(t, err)
	assert.Equal(t, StateCompleted, resp.State)
	assert.True(t, resp.InsufficientEvidence)
	assert.Empty(t, resp.Citations)
	assert.Equal(t, insufficientEvidenceAnswer, resp.Answer)
	assert.Zero(t, generator.generateCalls)
}

func TestAskGenerationBackendUnreachableFails(t *testing.T) {
	generator := &fakeLLM{answer: "unused", healthErr: errors.New("connection refused")}
	p := newTestPipeline(t, &fakeScorer{score: 0.9}, generator)

	resp, err := p.Ask(context.Background(), Request{Query: "bail conditions"})

	assert.ErrorIs(t, err, ErrGenerationUnavailable)
	assert.Equal(t, StateFailed, resp.State)
	assert.NotEmpty(t, resp.Cause)
	// Citations were assembled before the failure but generation never ran.
	assert.Zero(t, generator.generateCalls)
}

func TestAskGenerationErrorFails(t *testing.T) {
	generator := &fakeLLM{answer: "", generateErr: errors.New("model crashed")}
	p := newTestPipeline(t, &fakeScorer{score: 0.9}, generator)

	resp, err := p.Ask(context.Background(), Request{Query: "bail conditions"})

	assert.ErrorIs(t, err, ErrGenerationUnavailable)
	assert.Equal(t, StateFailed, resp.State)
}

func TestAskStreamDeliversCitationsBeforeDeltas(t *testing.T) {
	generator := &fakeLLM{answer: "Bail requires sureties."}
	p := newTestPipeline(t, &fakeScorer{score: 0.9}, generator)

	resp, deltas, err := p.AskStream(context.Background(), Request{Query: "bail conditions"})

	require.NoError(t, err)
	require.Len(t, resp.Citations, 2)

	var answer string
	for delta := range deltas {
		answer += delta
	}
	assert.Equal(t, generator.answer, answer)
}

func TestAskStreamResponseIsStableWhileStreaming(t *testing.T) {
	generator := &fakeLLM{answer: "Bail requires sureties."}
	p := newTestPipeline(t, &fakeScorer{score: 0.9}, generator)

	resp, deltas, err := p.AskStream(context.Background(), Request{Query: "bail conditions"})
	require.NoError(t, err)

	// Marshal the response while the stream is still being forwarded, as an
	// SSE handler does when it emits the metadata event before the deltas.
	marshaled := make(chan error, 1)
	go func() {
		_, merr := json.Marshal(resp)
		marshaled <- merr
	}()

	var answer string
	for delta := range deltas {
		answer += delta
	}
	require.NoError(t, <-marshaled)
	assert.Equal(t, generator.answer, answer)
	assert.Equal(t, StateGenerating, resp.State)
	require.Len(t, resp.Citations, 2)
}

func TestAskStreamInsufficientEvidence(t *testing.T) {
	generator := &fakeLLM{answer: "unused"}
	p := newTestPipeline(t, &fakeScorer{score: 0.1}, generator)

	resp, deltas, err := p.AskStream(context.Background(), Request{Query: "bail conditions"})

	require.NoError(t, err)
	assert.True(t, resp.InsufficientEvidence)

	var answer string
	for delta := range deltas {
		answer += delta
	}
	assert.Equal(t, insufficientEvidenceAnswer, answer)
	assert.Zero(t, generator.generateCalls)
}

func TestParseUseCase(t *testing.T) {
	useCase, err := ParseUseCase("")
	require.NoError(t, err)
	assert.Equal(t, UseCaseGeneral, useCase)

	useCase, err = ParseUseCase("sop")
	require.NoError(t, err)
	assert.Equal(t, UseCaseSOP, useCase)

	_, err = ParseUseCase("unknown")
	assert.Error(t, err)
}

func TestBuildPromptFillsTemplate(t *testing.T) {
	prompt := buildPrompt(UseCaseGeneral, "[Source 1: X]\nsome text", "what is bail?")

	assert.Contains(t, prompt, "[Source 1: X]\nsome text")
	assert.Contains(t, prompt, "QUESTION: what is bail?")
	assert.NotContains(t, prompt, "{context}")
	assert.NotContains(t, prompt, "{query}")
}
