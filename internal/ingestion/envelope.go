package ingestion

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/segmentio/kafka-go"

	"nyayasetu/internal/models"
)

// DocumentEnvelope is the message published to the ingestion topic. Small
// documents carry their text inline; larger ones reference an object holding
// the normalized text.
type DocumentEnvelope struct {
	DocumentID    string            `json:"document_id"`
	DocType       string            `json:"doc_type"`
	Language      string            `json:"language"`
	Metadata      map[string]string `json:"metadata,omitempty"`
	Text          string            `json:"text,omitempty"`
	TextObjectKey string            `json:"text_object_key,omitempty"`
}

// Validate checks the envelope has an identifier and exactly one text source.
func (e *DocumentEnvelope) Validate() error {
	if e.DocumentID == "" {
		return fmt.Errorf("envelope has no document_id")
	}
	if e.Text == "" && e.TextObjectKey == "" {
		return fmt.Errorf("envelope for %s has neither text nor text_object_key", e.DocumentID)
	}
	if _, err := models.ParseDocumentType(e.DocType); err != nil {
		return err
	}
	return nil
}

// Publisher enqueues document envelopes on the ingestion topic.
type Publisher struct {
	writer *kafka.Writer
}

// NewPublisher creates a Publisher over the given Kafka writer.
func NewPublisher(writer *kafka.Writer) *Publisher {
	return &Publisher{writer: writer}
}

// Publish sends one envelope, keyed by document ID so re-ingestions of the
// same document stay ordered within a partition.
func (p *Publisher) Publish(ctx context.Context, envelope *DocumentEnvelope) error {
	if err := envelope.Validate(); err != nil {
		return err
	}
	payload, err := json.Marshal(envelope)
	if err != nil {
		return fmt.Errorf("failed to marshal envelope: %w", err)
	}
	err = p.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(envelope.DocumentID),
		Value: payload,
	})
	if err != nil {
		return fmt.Errorf("failed to publish envelope for %s: %w", envelope.DocumentID, err)
	}
	return nil
}
