package query_service

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"

	"nyayasetu/internal/retrieval/pipeline"
	"nyayasetu/pkg/logger"
)

const cacheKeyPrefix = "query_cache:"

// Service fronts the pipeline with a Redis answer cache. Only COMPLETED
// responses with evidence are cached; failures and insufficient-evidence
// answers are always recomputed.
type Service struct {
	log      *logger.Logger
	pipeline *pipeline.Pipeline
	cache    *redis.Client
	cacheTTL time.Duration
}

// NewService creates a Service. A nil cache client disables caching.
func NewService(p *pipeline.Pipeline, cache *redis.Client, cacheTTL time.Duration, log *logger.Logger) *Service {
	return &Service{log: log, pipeline: p, cache: cache, cacheTTL: cacheTTL}
}

// Query answers a request, serving from cache when an identical request has
// completed recently.
func (s *Service) Query(ctx context.Context, req pipeline.Request) (*pipeline.Response, error) {
	key, err := cacheKey(req)
	if err == nil && s.cache != nil {
		if cached, cerr := s.cache.Get(ctx, key).Result(); cerr == nil {
			var resp pipeline.Response
			if jerr := json.Unmarshal([]byte(cached), &resp); jerr == nil {
				s.log.WithField("cache_key", key).Debug("Query served from cache")
				return &resp, nil
			}
		}
	}

	resp, err := s.pipeline.Ask(ctx, req)
	if err != nil {
		return resp, err
	}

	if s.cache != nil && key != "" && resp.State == pipeline.StateCompleted && !resp.InsufficientEvidence {
		if payload, jerr := json.Marshal(resp); jerr == nil {
			if cerr := s.cache.Set(ctx, key, payload, s.cacheTTL).Err(); cerr != nil {
				s.log.WithField("error", cerr.Error()).Warn("Failed to cache query response")
			}
		}
	}
	return resp, nil
}

// QueryStream answers a request with incremental deltas. Streamed responses
// bypass the cache.
func (s *Service) QueryStream(ctx context.Context, req pipeline.Request) (*pipeline.Response, <-chan string, error) {
	return s.pipeline.AskStream(ctx, req)
}

// cacheKey derives a stable key from every request field that affects the
// answer.
func cacheKey(req pipeline.Request) (string, error) {
	payload, err := json.Marshal(struct {
		Query   string      `json:"query"`
		UseCase string      `json:"use_case"`
		Scope   string      `json:"scope"`
		Filters interface{} `json:"filters"`
		TopK    int         `json:"top_k"`
	}{
		Query:   req.Query,
		UseCase: string(req.UseCase),
		Scope:   string(req.Scope),
		Filters: req.Filters,
		TopK:    req.TopK,
	})
	if err != nil {
		return "", fmt.Errorf("failed to build cache key: %w", err)
	}
	sum := sha256.Sum256(payload)
	return cacheKeyPrefix + hex.EncodeToString(sum[:]), nil
}
