package worker

import (
	"context"
	"fmt"
	"sync"

	amqp "github.com/rabbitmq/amqp091-go"

	"crawlmind/internal/logger"
	"crawlmind/internal/model"
	"crawlmind/internal/platform/rabbitmq"
)

// RecordWriter persists one audit row.
type RecordWriter interface {
	Create(record *model.IngestionRecord) error
}

// IngestionRecordWorker drains the ingestion audit queue into the database.
type IngestionRecordWorker struct {
	conn      *amqp.Connection
	repo      RecordWriter
	queueName string

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewIngestionRecordWorker(conn *amqp.Connection, repo RecordWriter, queueName string) *IngestionRecordWorker {
	return &IngestionRecordWorker{
		conn:      conn,
		repo:      repo,
		queueName: queueName,
	}
}

func (w *IngestionRecordWorker) Start(ctx context.Context) error {
	if w.cancel != nil {
		return nil
	}

	workerCtx, cancel := context.WithCancel(ctx)
	w.cancel = cancel

	ch, err := w.conn.Channel()
	if err != nil {
		cancel()
		return fmt.Errorf("open worker channel failed: %w", err)
	}
	if err := ch.Qos(16, 0, false); err != nil {
		_ = ch.Close()
		cancel()
		return fmt.Errorf("set worker qos failed: %w", err)
	}

	deliveries, err := ch.Consume(w.queueName, "crawlmind-ingestion-audit", false, false, false, false, nil)
	if err != nil {
		_ = ch.Close()
		cancel()
		return fmt.Errorf("consume queue failed: %w", err)
	}

	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		defer ch.Close()
		w.consume(workerCtx, deliveries)
	}()
	return nil
}

func (w *IngestionRecordWorker) consume(ctx context.Context, deliveries <-chan amqp.Delivery) {
	for {
		select {
		case <-ctx.Done():
			return
		case d, ok := <-deliveries:
			if !ok {
				return
			}
			w.handle(d)
		}
	}
}

// handle acks stored records. Undecodable messages are dropped; write
// failures are requeued once.
func (w *IngestionRecordWorker) handle(d amqp.Delivery) {
	record, err := rabbitmq.DecodeIngestionRecord(d.Body)
	if err != nil {
		logger.Errorf("worker %v", err)
		_ = d.Nack(false, false)
		return
	}
	if err := w.repo.Create(&record); err != nil {
		logger.Errorf("worker persist ingestion record failed: %v", err)
		_ = d.Nack(false, !d.Redelivered)
		return
	}
	_ = d.Ack(false)
}

func (w *IngestionRecordWorker) Close() {
	if w.cancel != nil {
		w.cancel()
	}
	w.wg.Wait()
}
