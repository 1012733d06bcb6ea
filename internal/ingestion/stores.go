package ingestion

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/minio/minio-go/v7"
	"github.com/segmentio/kafka-go"
)

// RedisLocker implements DocumentLocker with a SETNX key per document.
type RedisLocker struct {
	client *redis.Client
}

// NewRedisLocker creates a locker on the shared Redis client.
func NewRedisLocker(client *redis.Client) *RedisLocker {
	return &RedisLocker{client: client}
}

func (l *RedisLocker) Acquire(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	return l.client.SetNX(ctx, key, "1", ttl).Result()
}

func (l *RedisLocker) Release(ctx context.Context, key string) error {
	return l.client.Del(ctx, key).Err()
}

// MinioFetcher implements ObjectFetcher over one MinIO bucket.
type MinioFetcher struct {
	client *minio.Client
	bucket string
}

// NewMinioFetcher creates a fetcher reading from the given bucket.
func NewMinioFetcher(client *minio.Client, bucket string) *MinioFetcher {
	return &MinioFetcher{client: client, bucket: bucket}
}

func (f *MinioFetcher) Fetch(ctx context.Context, key string) (string, error) {
	obj, err := f.client.GetObject(ctx, f.bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return "", fmt.Errorf("failed to fetch text object %s: %w", key, err)
	}
	defer obj.Close()

	raw, err := io.ReadAll(obj)
	if err != nil {
		return "", fmt.Errorf("failed to read text object %s: %w", key, err)
	}
	return string(raw), nil
}

var (
	_ DocumentLocker   = (*RedisLocker)(nil)
	_ ObjectFetcher    = (*MinioFetcher)(nil)
	_ MessageSource    = (*kafka.Reader)(nil)
	_ MetadataRecorder = (*MetadataStore)(nil)
)
