package queue

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/knosphere/backend/internal/util"
	"github.com/knosphere/backend/pkg/logger"

	"github.com/rabbitmq/amqp091-go"
)

// ExtractQueue is the work queue for document ingestion jobs. Failed jobs
// bounce through ExtractQueue_retry, whose TTL dead-letters them back, and
// land in ExtractQueue_dlq once the retry budget is spent.
const (
	ExtractQueue = "knosphere_extract"
	retrySuffix  = "_retry"
	dlqSuffix    = "_dlq"

	retryDelayMs = 10000
	maxRetries   = 3
)

// ExtractJob is one ingestion job: embed the document and mine its graph.
// Content is not carried in the message; the worker loads it by id, so a
// replayed job always sees the current document.
type ExtractJob struct {
	DocumentID string `json:"document_id"`
	OwnerID    string `json:"owner_id"`
}

// Init connects to RabbitMQ using RABBITMQ_* environment variables.
func Init() *amqp091.Connection {
	user := util.GetEnv("RABBITMQ_USER")
	pass := util.GetEnv("RABBITMQ_PASSWORD")
	host := util.GetEnv("RABBITMQ_HOST")
	port := util.GetEnv("RABBITMQ_PORT")

	connURL := fmt.Sprintf("amqp://%s:%s@%s:%s/", user, pass, host, port)

	conn, err := amqp091.Dial(connURL)
	if err != nil {
		logger.Fatal("Failed to connect to RabbitMQ", "err", err)
	}
	return conn
}

// SetupQueues declares the work queue with its retry and dead-letter
// companions. Declaration is idempotent; server and worker both call it.
func SetupQueues(ch *amqp091.Channel) error {
	_, err := ch.QueueDeclare(
		ExtractQueue,
		true,  // durable
		false, // autoDelete
		false, // exclusive
		false, // noWait
		nil,
	)
	if err != nil {
		return fmt.Errorf("failed to declare queue %s: %w", ExtractQueue, err)
	}

	_, err = ch.QueueDeclare(
		ExtractQueue+dlqSuffix,
		true,
		false,
		false,
		false,
		nil,
	)
	if err != nil {
		return fmt.Errorf("failed to declare queue %s: %w", ExtractQueue+dlqSuffix, err)
	}

	_, err = ch.QueueDeclare(
		ExtractQueue+retrySuffix,
		true,
		false,
		false,
		false,
		amqp091.Table{
			"x-message-ttl":             int32(retryDelayMs),
			"x-dead-letter-exchange":    "",
			"x-dead-letter-routing-key": ExtractQueue,
		},
	)
	if err != nil {
		return fmt.Errorf("failed to declare queue %s: %w", ExtractQueue+retrySuffix, err)
	}

	return nil
}

// PublishExtractJob enqueues an ingestion job.
func PublishExtractJob(ch *amqp091.Channel, job ExtractJob) error {
	body, err := json.Marshal(job)
	if err != nil {
		return err
	}
	return publish(ch, ExtractQueue, body, nil)
}

func publish(ch *amqp091.Channel, queueName string, body []byte, headers amqp091.Table) error {
	return ch.Publish(
		"",
		queueName,
		false,
		false,
		amqp091.Publishing{
			ContentType:  "application/json",
			Body:         body,
			DeliveryMode: amqp091.Persistent,
			Timestamp:    time.Now(),
			Headers:      headers,
		},
	)
}

func retryCount(headers amqp091.Table) int {
	if headers == nil {
		return 0
	}
	switch v := headers["x-retries"].(type) {
	case int32:
		return int(v)
	case int64:
		return int(v)
	case int:
		return v
	default:
		return 0
	}
}
