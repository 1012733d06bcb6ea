package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"nyayasetu/internal/config"
	"nyayasetu/internal/database/milvus"
	"nyayasetu/internal/database/mongo"
	"nyayasetu/internal/database/redis"
	"nyayasetu/internal/discovery/etcd"
	"nyayasetu/internal/embedding"
	"nyayasetu/internal/llm"
	"nyayasetu/internal/query_service"
	"nyayasetu/internal/retrieval/assemble"
	"nyayasetu/internal/retrieval/chunkstore"
	"nyayasetu/internal/retrieval/expander"
	"nyayasetu/internal/retrieval/fusion"
	"nyayasetu/internal/retrieval/index"
	"nyayasetu/internal/retrieval/pipeline"
	"nyayasetu/internal/retrieval/rerank"
	"nyayasetu/pkg/logger"
)

const (
	serviceName     = "query-service"
	chunkCollection = "chunks"
	etcdLeaseTTL    = 10
)

func main() {
	configPath := flag.String("config", "config/config.yaml", "path to the YAML configuration file")
	flag.Parse()

	// 1. Load configuration.
	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// 2. Initialize the logger.
	logger.Init(logger.ParseLevel(cfg.Logger.Level))
	appLogger := logger.New(serviceName, "")
	appLogger.Info("Starting query service...")

	ctx := context.Background()

	// 3. Initialize backing stores.
	redisClient, err := redis.GetClient(&cfg.Databases.Redis)
	if err != nil {
		log.Fatalf("Failed to connect to Redis: %v", err)
	}

	milvusClient, err := milvus.GetClient(ctx, &cfg.Databases.Milvus)
	if err != nil {
		log.Fatalf("Failed to connect to Milvus: %v", err)
	}
	partitions := []string{string(index.ScopeRulings), string(index.ScopeStatutes), string(index.ScopeFilings)}
	if err := milvusClient.EnsureCollection(ctx, partitions); err != nil {
		log.Fatalf("Failed to prepare Milvus collection: %v", err)
	}

	mongoClient, err := mongo.GetClient(&cfg.Databases.MongoDB)
	if err != nil {
		log.Fatalf("Failed to connect to MongoDB: %v", err)
	}

	// 4. Initialize model backends.
	embedder, err := embedding.NewModel(cfg.Embedding.Provider, cfg.Embedding.Model, cfg.Embedding.APIKey, cfg.Embedding.BaseURL)
	if err != nil {
		log.Fatalf("Failed to create embedding backend: %v", err)
	}
	generator, err := llm.NewClient(cfg.LLM.Provider, cfg.LLM.Model, cfg.LLM.APIKey, cfg.LLM.BaseURL)
	if err != nil {
		log.Fatalf("Failed to create LLM backend: %v", err)
	}

	// 5. Wire the retrieval pipeline.
	chunkStore := chunkstore.NewMongoStore(mongoClient, cfg.Databases.MongoDB.Database, chunkCollection)

	vectorIndex, err := index.NewVectorIndex(milvusClient, embedder, appLogger)
	if err != nil {
		log.Fatalf("Failed to create vector index: %v", err)
	}
	lexicalIndex, err := index.NewLexicalIndex(cfg.Databases.Bleve.Path, appLogger)
	if err != nil {
		log.Fatalf("Failed to open lexical index: %v", err)
	}
	defer lexicalIndex.Close()

	retrieval := cfg.Retrieval
	fuse := fusion.NewFusion(vectorIndex, lexicalIndex, chunkStore, retrieval.VectorWeight, retrieval.LexicalWeight, appLogger)
	scorer := rerank.NewHTTPScorer(cfg.Reranker.Endpoint, cfg.Reranker.APIKey, cfg.Reranker.Model)
	reranker := rerank.NewReranker(scorer, retrieval.RelevanceFloor, retrieval.MaxDocChunks, appLogger)
	assembler := assemble.NewAssembler(retrieval.MaxContextTokens, appLogger)
	exp := expander.NewExpander(retrieval.Thesaurus)

	pipe := pipeline.NewPipeline(exp, fuse, reranker, assembler, generator, retrieval.TopK, appLogger)

	// 6. Create the HTTP service.
	cacheTTL := time.Duration(retrieval.CacheTTLSeconds) * time.Second
	svc := query_service.NewService(pipe, redisClient, cacheTTL, appLogger)
	checks := map[string]query_service.HealthFunc{
		"milvus":     milvusClient.HealthCheck,
		"redis":      redis.HealthCheck,
		"mongodb":    mongo.HealthCheck,
		"generation": generator.HealthCheck,
	}
	handler := query_service.NewHandler(svc, checks, appLogger)

	gin.SetMode(gin.ReleaseMode)
	router := gin.Default()
	handler.RegisterRoutes(router)

	server := &http.Server{Addr: cfg.Server.HTTPAddr, Handler: router}
	go func() {
		appLogger.Info(fmt.Sprintf("HTTP server listening at %s", cfg.Server.HTTPAddr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Failed to serve HTTP: %v", err)
		}
	}()

	// 7. Register in service discovery.
	var stopRegistry chan<- struct{}
	if len(cfg.Databases.Etcd.Endpoints) > 0 {
		registry, err := etcd.NewServiceRegistry(cfg.Databases.Etcd.Endpoints)
		if err != nil {
			log.Fatalf("Failed to connect to etcd: %v", err)
		}
		defer registry.Close()

		stopRegistry, err = registry.Register(ctx, serviceName, cfg.Server.HTTPAddr, etcdLeaseTTL)
		if err != nil {
			log.Fatalf("Failed to register service in etcd: %v", err)
		}
	}

	// 8. Graceful shutdown.
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	appLogger.Info("Shutting down query service...")

	if stopRegistry != nil {
		close(stopRegistry)
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		appLogger.Error(fmt.Sprintf("HTTP server shutdown failed: %v", err))
	}
	if err := redis.Close(); err != nil {
		appLogger.Error(fmt.Sprintf("Failed to close Redis: %v", err))
	}
	if err := mongo.Close(shutdownCtx); err != nil {
		appLogger.Error(fmt.Sprintf("Failed to close MongoDB: %v", err))
	}
	milvusClient.Close()
	appLogger.Info("Query service stopped")
}
