package rerank

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
)

// PairScorer is a pluggable cross-encoder style relevance model: given a
// query and candidate texts it returns one relevance score per text, in
// input order, on a 0 to 1 scale.
type PairScorer interface {
	Score(ctx context.Context, query string, texts []string) ([]float64, error)
}

// HTTPScorer calls a rerank HTTP endpoint shaped like the Cohere Rerank API.
type HTTPScorer struct {
	endpoint   string
	apiKey     string
	model      string
	httpClient *http.Client
}

type rerankRequest struct {
	Model           string   `json:"model"`
	Query           string   `json:"query"`
	Documents       []string `json:"documents"`
	TopN            int      `json:"top_n"`
	ReturnDocuments bool     `json:"return_documents"`
}

type rerankResult struct {
	Index          int     `json:"index"`
	RelevanceScore float64 `json:"relevance_score"`
}

type rerankResponse struct {
	Results []rerankResult `json:"results"`
}

// NewHTTPScorer creates a scorer against the given rerank endpoint.
func NewHTTPScorer(endpoint, apiKey, model string) *HTTPScorer {
	return &HTTPScorer{
		endpoint:   endpoint,
		apiKey:     apiKey,
		model:      model,
		httpClient: &http.Client{},
	}
}

// Score sends all texts in one request and maps the scored results back to
// input order. Texts the endpoint omits keep a zero score.
func (s *HTTPScorer) Score(ctx context.Context, query string, texts []string) ([]float64, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	reqBody := rerankRequest{
		Model:           s.model,
		Query:           query,
		Documents:       texts,
		TopN:            len(texts),
		ReturnDocuments: false,
	}
	payload, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal rerank request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", s.endpoint, bytes.NewBuffer(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to create rerank request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if s.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+s.apiKey)
	}

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to call rerank endpoint: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("rerank endpoint returned non-200 status: %s", resp.Status)
	}

	var rerankResp rerankResponse
	if err := json.NewDecoder(resp.Body).Decode(&rerankResp); err != nil {
		return nil, fmt.Errorf("failed to decode rerank response: %w", err)
	}

	scores := make([]float64, len(texts))
	for _, result := range rerankResp.Results {
		if result.Index >= 0 && result.Index < len(scores) {
			scores[result.Index] = result.RelevanceScore
		}
	}
	return scores, nil
}

var _ PairScorer = (*HTTPScorer)(nil)
