package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"nyayasetu/internal/llm"
	"nyayasetu/internal/models"
	"nyayasetu/internal/retrieval/assemble"
	"nyayasetu/internal/retrieval/expander"
	"nyayasetu/internal/retrieval/fusion"
	"nyayasetu/internal/retrieval/index"
	"nyayasetu/internal/retrieval/rerank"
	"nyayasetu/pkg/logger"
)

// State is the orchestrator's position in the per-query pipeline.
type State string

const (
	StateReceived   State = "RECEIVED"
	StateExpanded   State = "EXPANDED"
	StateFused      State = "FUSED"
	StateReranked   State = "RERANKED"
	StateAssembled  State = "ASSEMBLED"
	StateGenerating State = "GENERATING"
	StateCompleted  State = "COMPLETED"
	StateFailed     State = "FAILED"
)

var (
	// ErrInvalidQuery rejects empty or whitespace-only queries before any
	// pipeline work starts.
	ErrInvalidQuery = errors.New("query is empty")

	// ErrGenerationUnavailable marks the generation backend as unreachable.
	ErrGenerationUnavailable = errors.New("generation backend is unreachable")
)

// insufficientEvidenceAnswer is returned when every candidate falls below the
// relevance floor. The query completes; an empty result is a valid answer.
const insufficientEvidenceAnswer = "The indexed sources do not contain enough information to answer this question."

// Request is one query through the pipeline.
type Request struct {
	Query   string
	UseCase UseCase
	Scope   index.Scope
	Filters *index.FilterSet
	TopK    int
}

// Response is the structured outcome of a query. FAILED queries still return
// a Response with Cause set so callers can render a message, not a stack
// trace.
type Response struct {
	Query                string                  `json:"query"`
	State                State                   `json:"state"`
	Cause                string                  `json:"cause,omitempty"`
	Answer               string                  `json:"answer,omitempty"`
	Context              string                  `json:"context,omitempty"`
	Citations            []models.CitationRecord `json:"citations"`
	CandidatesConsidered int                     `json:"candidates_considered"`
	InsufficientEvidence bool                    `json:"insufficient_evidence,omitempty"`
	Expansion            models.QueryExpansion   `json:"expansion"`
	Timings              models.StageTimings     `json:"timings"`
}

// Pipeline sequences expansion, fusion, re-ranking, assembly and generation
// for one query at a time. It holds no per-query state; every call owns its
// own ephemeral candidates and citations.
type Pipeline struct {
	log       *logger.Logger
	expander  *expander.Expander
	fusion    *fusion.Fusion
	reranker  *rerank.Reranker
	assembler *assemble.Assembler
	generator llm.LLM
	topK      int
}

// NewPipeline wires the pipeline from its stage components. topK is the
// default result count when a request does not set one.
func NewPipeline(exp *expander.Expander, fus *fusion.Fusion, rr *rerank.Reranker, asm *assemble.Assembler, generator llm.LLM, topK int, log *logger.Logger) *Pipeline {
	return &Pipeline{
		log:       log,
		expander:  exp,
		fusion:    fus,
		reranker:  rr,
		assembler: asm,
		generator: generator,
		topK:      topK,
	}
}

// Ask runs the full pipeline and returns the complete answer.
func (p *Pipeline) Ask(ctx context.Context, req Request) (*Response, error) {
	resp, prompt, err := p.retrieve(ctx, req)
	if err != nil || resp.State == StateCompleted {
		return resp, err
	}

	// 5. Generate the answer from the assembled prompt.
	resp.State = StateGenerating
	generateStart := time.Now()
	answer, err := p.generator.Generate(ctx, prompt)
	resp.Timings.Generate = time.Since(generateStart)
	resp.Timings.Total += resp.Timings.Generate
	if err != nil {
		return p.fail(resp, fmt.Errorf("%w: %v", ErrGenerationUnavailable, err))
	}

	resp.Answer = answer
	p.complete(resp)
	return resp, nil
}

// AskStream runs the pipeline up to generation and streams the answer
// incrementally. Citations and context are final before the first token is
// delivered and are never recomputed mid-stream. The returned Response is
// immutable once AskStream returns, so callers may marshal it while draining
// the channel; the generation duration is logged when the stream closes
// rather than written back into Timings.
func (p *Pipeline) AskStream(ctx context.Context, req Request) (*Response, <-chan string, error) {
	resp, prompt, err := p.retrieve(ctx, req)
	if err != nil {
		return resp, nil, err
	}
	if resp.State == StateCompleted {
		// Insufficient evidence: deliver the canned answer as a single delta.
		deltaChan := make(chan string, 1)
		deltaChan <- resp.Answer
		close(deltaChan)
		return resp, deltaChan, nil
	}

	resp.State = StateGenerating
	generateStart := time.Now()
	stream, err := p.generator.GenerateStream(ctx, prompt)
	if err != nil {
		_, ferr := p.fail(resp, fmt.Errorf("%w: %v", ErrGenerationUnavailable, err))
		return resp, nil, ferr
	}
	if resp.Citations == nil {
		resp.Citations = []models.CitationRecord{}
	}

	out := make(chan string)
	go func() {
		defer close(out)
		for delta := range stream {
			select {
			case out <- delta:
			case <-ctx.Done():
				return
			}
		}
		p.log.WithPayload(map[string]interface{}{
			"generate_ms": time.Since(generateStart).Milliseconds(),
			"candidates":  resp.CandidatesConsidered,
			"citations":   len(resp.Citations),
		}).Info("Streamed query completed")
	}()
	return resp, out, nil
}

// retrieve runs the stages before generation. When it returns a COMPLETED
// response the caller must not generate; otherwise the returned prompt is
// ready for the backend.
func (p *Pipeline) retrieve(ctx context.Context, req Request) (*Response, string, error) {
	resp := &Response{Query: req.Query, State: StateReceived}
	total := time.Now()
	defer func() { resp.Timings.Total = time.Since(total) }()

	if strings.TrimSpace(req.Query) == "" {
		_, err := p.fail(resp, ErrInvalidQuery)
		return resp, "", err
	}
	topK := req.TopK
	if topK <= 0 {
		topK = p.topK
	}

	// 1. Expand the query against the legal thesaurus.
	expandStart := time.Now()
	resp.Expansion = p.expander.Expand(req.Query)
	resp.Timings.Expand = time.Since(expandStart)
	resp.State = StateExpanded

	// 2. Hybrid search over both indexes with the expanded query.
	fuseStart := time.Now()
	candidates, err := p.fusion.Fuse(ctx, resp.Expansion.Expanded, topK, req.Scope, req.Filters)
	resp.Timings.Fuse = time.Since(fuseStart)
	if err != nil {
		_, ferr := p.fail(resp, err)
		return resp, "", ferr
	}
	resp.CandidatesConsidered = len(candidates)
	resp.State = StateFused

	// 3. Re-rank down to the final top-k.
	rerankStart := time.Now()
	ranked := p.reranker.Rerank(ctx, req.Query, candidates, topK)
	resp.Timings.Rerank = time.Since(rerankStart)
	resp.State = StateReranked

	if len(ranked) == 0 {
		resp.Answer = insufficientEvidenceAnswer
		resp.InsufficientEvidence = true
		resp.Citations = []models.CitationRecord{}
		p.complete(resp)
		return resp, "", nil
	}

	// 4. Assemble the token-bounded context with citations.
	assembleStart := time.Now()
	contextText, citations := p.assembler.Assemble(ranked)
	resp.Timings.Assemble = time.Since(assembleStart)
	resp.Context = contextText
	resp.Citations = citations
	resp.State = StateAssembled

	// Check the backend before committing to generation so an outage fails
	// fast instead of timing out.
	if err := p.generator.HealthCheck(ctx); err != nil {
		_, ferr := p.fail(resp, fmt.Errorf("%w: %v", ErrGenerationUnavailable, err))
		return resp, "", ferr
	}

	return resp, buildPrompt(req.UseCase, contextText, req.Query), nil
}

func (p *Pipeline) complete(resp *Response) {
	resp.State = StateCompleted
	if resp.Citations == nil {
		resp.Citations = []models.CitationRecord{}
	}
	p.log.WithPayload(map[string]interface{}{
		"state":      resp.State,
		"candidates": resp.CandidatesConsidered,
		"citations":  len(resp.Citations),
	}).Info("Query completed")
}

func (p *Pipeline) fail(resp *Response, err error) (*Response, error) {
	resp.State = StateFailed
	resp.Cause = err.Error()
	if resp.Citations == nil {
		resp.Citations = []models.CitationRecord{}
	}
	p.log.WithField("cause", resp.Cause).Warn("Query failed")
	return resp, err
}
