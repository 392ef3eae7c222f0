package queue

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/knosphere/backend/internal/storage"
	"github.com/knosphere/backend/pkg/ai"
	"github.com/knosphere/backend/pkg/graph"
	"github.com/knosphere/backend/pkg/logger"
	"github.com/knosphere/backend/pkg/store"

	"github.com/rabbitmq/amqp091-go"
)

// Worker consumes ingestion jobs: archive the raw content, embed the
// document and run graph extraction. Jobs are idempotent end to end, so a
// crash between steps is repaired by the retry redelivery.
type Worker struct {
	store     store.Store
	ai        ai.Client
	extractor *graph.Extractor
	archive   *storage.Archive
}

// WorkerParams configures a Worker. Archive may be nil, which skips the
// archiving step.
type WorkerParams struct {
	Store     store.Store
	AI        ai.Client
	Extractor *graph.Extractor
	Archive   *storage.Archive
}

// NewWorker creates an ingestion worker.
func NewWorker(params WorkerParams) (*Worker, error) {
	if params.Store == nil {
		return nil, fmt.Errorf("queue: missing store")
	}
	if params.AI == nil {
		return nil, fmt.Errorf("queue: missing AI client")
	}
	if params.Extractor == nil {
		return nil, fmt.Errorf("queue: missing extractor")
	}
	return &Worker{
		store:     params.Store,
		ai:        params.AI,
		extractor: params.Extractor,
		archive:   params.Archive,
	}, nil
}

// Consume processes the extract queue until ctx is cancelled. Prefetch is 1:
// extraction jobs are heavyweight and a worker claims one at a time.
func (w *Worker) Consume(ctx context.Context, ch *amqp091.Channel) error {
	if err := ch.Qos(1, 0, false); err != nil {
		return fmt.Errorf("failed to set prefetch: %w", err)
	}

	deliveries, err := ch.Consume(
		ExtractQueue,
		"",    // consumer tag
		false, // autoAck
		false, // exclusive
		false, // noLocal
		false, // noWait
		nil,
	)
	if err != nil {
		return fmt.Errorf("failed to start consumer: %w", err)
	}

	logger.Info("worker consuming", "queue", ExtractQueue)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case delivery, ok := <-deliveries:
			if !ok {
				return fmt.Errorf("delivery channel closed")
			}
			w.handleDelivery(ctx, ch, delivery)
		}
	}
}

func (w *Worker) handleDelivery(ctx context.Context, ch *amqp091.Channel, delivery amqp091.Delivery) {
	err := w.processJob(ctx, delivery.Body)
	if err == nil {
		if ackErr := delivery.Ack(false); ackErr != nil {
			logger.Error("failed to ack delivery", "err", ackErr)
		}
		return
	}

	retries := retryCount(delivery.Headers)
	if retries < maxRetries {
		logger.Warn("job failed, scheduling retry",
			"queue", ExtractQueue, "attempt", retries+1, "err", err)
		if pubErr := publish(ch, ExtractQueue+retrySuffix, delivery.Body, amqp091.Table{
			"x-retries": int32(retries + 1),
		}); pubErr != nil {
			logger.Error("failed to publish retry, requeueing", "err", pubErr)
			_ = delivery.Nack(false, true)
			return
		}
	} else {
		logger.Error("job failed permanently, dead-lettering",
			"queue", ExtractQueue, "retries", retries, "err", err)
		if pubErr := publish(ch, ExtractQueue+dlqSuffix, delivery.Body, delivery.Headers); pubErr != nil {
			logger.Error("failed to publish to dead-letter queue", "err", pubErr)
			_ = delivery.Nack(false, true)
			return
		}
	}
	_ = delivery.Ack(false)
}

// processJob runs one ingestion job. Every step is keyed by document id, so
// a repeat run overwrites rather than duplicates.
func (w *Worker) processJob(ctx context.Context, body []byte) error {
	var job ExtractJob
	if err := json.Unmarshal(body, &job); err != nil {
		return fmt.Errorf("malformed job payload: %w", err)
	}
	if job.DocumentID == "" || job.OwnerID == "" {
		return fmt.Errorf("job missing document or owner id")
	}

	doc, err := w.store.GetDocument(ctx, job.DocumentID, job.OwnerID)
	if err != nil {
		return fmt.Errorf("failed to load document %s: %w", job.DocumentID, err)
	}

	if w.archive != nil {
		if _, err := w.archive.PutDocument(ctx, job.OwnerID, job.DocumentID, []byte(doc.Content)); err != nil {
			return err
		}
	}

	embedding, err := w.ai.GenerateEmbedding(ctx, []byte(doc.Content))
	if err != nil {
		return fmt.Errorf("failed to embed document %s: %w", job.DocumentID, err)
	}
	if err := w.store.UpdateDocumentEmbedding(ctx, job.DocumentID, embedding); err != nil {
		return fmt.Errorf("failed to store embedding for %s: %w", job.DocumentID, err)
	}

	if _, err := w.extractor.Extract(ctx, doc); err != nil {
		return fmt.Errorf("graph extraction failed for %s: %w", job.DocumentID, err)
	}
	return nil
}
