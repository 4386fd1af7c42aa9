package rabbitmq

import (
	"context"
	"encoding/json"
	"fmt"

	amqp "github.com/rabbitmq/amqp091-go"

	"crawlmind/internal/model"
)

// IngestionPublisher sends finished ingestion records to the audit queue.
type IngestionPublisher struct {
	conn      *amqp.Connection
	queueName string
}

func NewIngestionPublisher(conn *amqp.Connection, queueName string) *IngestionPublisher {
	return &IngestionPublisher{conn: conn, queueName: queueName}
}

func (p *IngestionPublisher) PublishIngestion(ctx context.Context, record model.IngestionRecord) error {
	payload, err := EncodeIngestionRecord(record)
	if err != nil {
		return err
	}

	ch, err := p.conn.Channel()
	if err != nil {
		return fmt.Errorf("open rabbitmq channel failed: %w", err)
	}
	defer ch.Close()

	if err := ch.PublishWithContext(ctx, "", p.queueName, false, false, amqp.Publishing{
		ContentType:  "application/json",
		Body:         payload,
		DeliveryMode: amqp.Persistent,
	}); err != nil {
		return fmt.Errorf("publish ingestion record failed: %w", err)
	}
	return nil
}

// EncodeIngestionRecord is the wire form shared with the audit worker.
func EncodeIngestionRecord(record model.IngestionRecord) ([]byte, error) {
	payload, err := json.Marshal(record)
	if err != nil {
		return nil, fmt.Errorf("marshal ingestion record failed: %w", err)
	}
	return payload, nil
}

func DecodeIngestionRecord(body []byte) (model.IngestionRecord, error) {
	var record model.IngestionRecord
	if err := json.Unmarshal(body, &record); err != nil {
		return record, fmt.Errorf("decode ingestion record failed: %w", err)
	}
	// The audit row gets its own id.
	record.ID = 0
	return record, nil
}
