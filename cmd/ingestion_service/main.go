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
	"nyayasetu/internal/database/kafka"
	"nyayasetu/internal/database/milvus"
	"nyayasetu/internal/database/minio"
	"nyayasetu/internal/database/mongo"
	"nyayasetu/internal/database/mysql"
	"nyayasetu/internal/database/redis"
	"nyayasetu/internal/embedding"
	"nyayasetu/internal/ingestion"
	"nyayasetu/internal/retrieval/chunker"
	"nyayasetu/internal/retrieval/chunkstore"
	"nyayasetu/internal/retrieval/index"
	"nyayasetu/pkg/logger"
)

const (
	serviceName     = "ingestion-service"
	chunkCollection = "chunks"
)

func main() {
	configPath := flag.String("config", "config/config.yaml", "path to the YAML configuration file")
	httpAddr := flag.String("http", ":8081", "address of the document submission endpoint")
	flag.Parse()

	// 1. Load configuration.
	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// 2. Initialize the logger.
	logger.Init(logger.ParseLevel(cfg.Logger.Level))
	appLogger := logger.New(serviceName, "")
	appLogger.Info("Starting ingestion service...")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

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

	db, err := mysql.GetDB(&cfg.Databases.MySQL)
	if err != nil {
		log.Fatalf("Failed to connect to MySQL: %v", err)
	}

	minioClient, err := minio.GetClient(&cfg.Databases.MinIO)
	if err != nil {
		log.Fatalf("Failed to connect to MinIO: %v", err)
	}

	kafkaClient, err := kafka.GetClient(&cfg.Databases.Kafka)
	if err != nil {
		log.Fatalf("Failed to connect to Kafka: %v", err)
	}
	defer kafkaClient.Close()

	// 4. Initialize the embedding backend.
	embedder, err := embedding.NewModel(cfg.Embedding.Provider, cfg.Embedding.Model, cfg.Embedding.APIKey, cfg.Embedding.BaseURL)
	if err != nil {
		log.Fatalf("Failed to create embedding backend: %v", err)
	}

	// 5. Wire the ingestion worker.
	chunkStore := chunkstore.NewMongoStore(mongoClient, cfg.Databases.MongoDB.Database, chunkCollection)
	if err := chunkStore.EnsureIndexes(ctx); err != nil {
		log.Fatalf("Failed to create chunk store indexes: %v", err)
	}

	vectorIndex, err := index.NewVectorIndex(milvusClient, embedder, appLogger)
	if err != nil {
		log.Fatalf("Failed to create vector index: %v", err)
	}
	lexicalIndex, err := index.NewLexicalIndex(cfg.Databases.Bleve.Path, appLogger)
	if err != nil {
		log.Fatalf("Failed to open lexical index: %v", err)
	}
	defer lexicalIndex.Close()

	metadataStore, err := ingestion.NewMetadataStore(db)
	if err != nil {
		log.Fatalf("Failed to prepare metadata store: %v", err)
	}

	ck := chunker.NewChunker(cfg.Retrieval.ChunkSize, cfg.Retrieval.ChunkOverlap, appLogger)
	worker := ingestion.NewWorker(
		ck, embedder, vectorIndex, lexicalIndex,
		chunkStore, metadataStore,
		ingestion.NewRedisLocker(redisClient),
		ingestion.NewMinioFetcher(minioClient, cfg.Databases.MinIO.Bucket),
		kafkaClient.Reader, appLogger,
	)

	workerDone := make(chan error, 1)
	go func() { workerDone <- worker.Run(ctx) }()

	// 6. Expose the document submission endpoint. Documents land on the
	// ingestion topic and are picked up by the worker loop.
	publisher := ingestion.NewPublisher(kafkaClient.Writer)
	gin.SetMode(gin.ReleaseMode)
	router := gin.Default()
	router.POST("/api/v1/documents", func(c *gin.Context) {
		var envelope ingestion.DocumentEnvelope
		if err := c.ShouldBindJSON(&envelope); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		if err := publisher.Publish(c.Request.Context(), &envelope); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusAccepted, gin.H{"document_id": envelope.DocumentID})
	})

	server := &http.Server{Addr: *httpAddr, Handler: router}
	go func() {
		appLogger.Info(fmt.Sprintf("HTTP server listening at %s", *httpAddr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Failed to serve HTTP: %v", err)
		}
	}()

	// 7. Graceful shutdown.
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-quit:
		appLogger.Info("Shutting down ingestion service...")
	case err := <-workerDone:
		if err != nil {
			appLogger.Error(fmt.Sprintf("Ingestion worker stopped: %v", err))
		}
	}

	cancel()
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		appLogger.Error(fmt.Sprintf("HTTP server shutdown failed: %v", err))
	}
	if err := redis.Close(); err != nil {
		appLogger.Error(fmt.Sprintf("Failed to close Redis: %v", err))
	}
	if err := mongo.Close(shutdownCtx); err != nil {
		appLogger.Error(fmt.Sprintf("Failed to close MongoDB: %v", err))
	}
	if err := mysql.Close(); err != nil {
		appLogger.Error(fmt.Sprintf("Failed to close MySQL: %v", err))
	}
	milvusClient.Close()
	appLogger.Info("Ingestion service stopped")
}
