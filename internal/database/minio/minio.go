package minio

import (
	"context"
	"fmt"
	"log"
	"sync"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"nyayasetu/internal/config"
)

var (
	client  *minio.Client
	once    sync.Once
	initErr error
)

// GetClient initializes and returns the singleton MinIO client. The
// connection is established once for the lifetime of the process.
func GetClient(cfg *config.MinIOConfig) (*minio.Client, error) {
	once.Do(func() {
		c, err := minio.New(cfg.Endpoint, &minio.Options{
			Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
			Secure: cfg.Secure,
		})
		if err != nil {
			initErr = fmt.Errorf("failed to create MinIO client: %w", err)
			return
		}

		// Simple connectivity check at startup.
		if _, err = c.ListBuckets(context.Background()); err != nil {
			initErr = fmt.Errorf("MinIO startup health check failed: %w", err)
			return
		}

		log.Println("connected to MinIO")
		client = c
	})

	return client, initErr
}

// HealthCheck verifies the MinIO connection is usable.
func HealthCheck(ctx context.Context) error {
	if client == nil {
		return fmt.Errorf("minio client is not initialized")
	}
	if _, err := client.ListBuckets(ctx); err != nil {
		return fmt.Errorf("minio health check failed: %w", err)
	}
	return nil
}
