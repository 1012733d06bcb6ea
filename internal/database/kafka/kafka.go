package kafka

import (
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/segmentio/kafka-go"

	"nyayasetu/internal/config"
)

var (
	client  *KafkaClient
	once    sync.Once
	initErr error
)

// KafkaClient holds the reader and writer for the document ingestion topic.
type KafkaClient struct {
	Writer *kafka.Writer
	Reader *kafka.Reader
	Config *config.KafkaConfig
}

// GetClient initializes and returns the singleton Kafka client. On first use
// it ensures the ingestion topic exists.
func GetClient(cfg *config.KafkaConfig) (*KafkaClient, error) {
	once.Do(func() {
		if len(cfg.Brokers) == 0 {
			initErr = fmt.Errorf("no Kafka brokers configured")
			return
		}
		if cfg.IngestTopic == "" {
			initErr = fmt.Errorf("no Kafka ingest topic configured")
			return
		}

		conn, err := kafka.Dial("tcp", cfg.Brokers[0])
		if err != nil {
			initErr = fmt.Errorf("failed to dial Kafka: %w", err)
			return
		}
		defer conn.Close()

		partitions, err := conn.ReadPartitions()
		if err != nil {
			initErr = fmt.Errorf("failed to read Kafka partitions: %w", err)
			return
		}
		exists := false
		for _, p := range partitions {
			if p.Topic == cfg.IngestTopic {
				exists = true
				break
			}
		}
		if !exists {
			err = conn.CreateTopics(kafka.TopicConfig{
				Topic:             cfg.IngestTopic,
				NumPartitions:     1,
				ReplicationFactor: 1,
			})
			if err != nil {
				initErr = fmt.Errorf("failed to create Kafka topic '%s': %w", cfg.IngestTopic, err)
				return
			}
			log.Printf("created Kafka topic: %s", cfg.IngestTopic)
		}

		groupID := cfg.ConsumerGroup
		if groupID == "" {
			groupID = "ingestion-service"
		}

		writer := &kafka.Writer{
			Addr:         kafka.TCP(cfg.Brokers...),
			Topic:        cfg.IngestTopic,
			Balancer:     &kafka.LeastBytes{},
			BatchTimeout: 10 * time.Millisecond,
			BatchSize:    100,
		}

		reader := kafka.NewReader(kafka.ReaderConfig{
			Brokers:     cfg.Brokers,
			Topic:       cfg.IngestTopic,
			GroupID:     groupID,
			MinBytes:    10e3, // 10KB
			MaxBytes:    10e6, // 10MB
			MaxAttempts: 10,
			Dialer: &kafka.Dialer{
				Timeout: 10 * time.Second,
			},
		})

		log.Println("initialized Kafka client")
		client = &KafkaClient{Writer: writer, Reader: reader, Config: cfg}
	})

	return client, initErr
}

// Close shuts down the Kafka reader and writer.
func (c *KafkaClient) Close() error {
	if c == nil {
		return nil
	}
	var errs []error
	if c.Writer != nil {
		if err := c.Writer.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close Kafka writer: %w", err))
		}
	}
	if c.Reader != nil {
		if err := c.Reader.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close Kafka reader: %w", err))
		}
	}
	if len(errs) > 0 {
		return errs[0]
	}
	return nil
}
