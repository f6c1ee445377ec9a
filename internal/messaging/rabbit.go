// internal/messaging/rabbit.go
package messaging

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/streadway/amqp"
	"go.uber.org/zap"
)

// Lifecycle event types.
const (
	EventProvisioned        = "tenant.provisioned"
	EventProvisioningFailed = "tenant.provisioning_failed"
)

// DefaultQueue receives lifecycle events when no queue is configured.
const DefaultQueue = "tenant_lifecycle_events"

// Event describes the end of one provisioning attempt.
type Event struct {
	Type      string    `json:"type"`
	TenantID  string    `json:"tenant_id"`
	State     string    `json:"state"`
	Phase     string    `json:"phase,omitempty"`
	Message   string    `json:"message,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// Publisher sends lifecycle events.
type Publisher interface {
	Publish(ctx context.Context, event Event) error
}

// NopPublisher drops events. Used when RabbitMQ is not configured.
type NopPublisher struct{}

func (NopPublisher) Publish(context.Context, Event) error { return nil }

// channel is the subset of *amqp.Channel used here.
type channel interface {
	QueueDeclare(name string, durable, autoDelete, exclusive, noWait bool, args amqp.Table) (amqp.Queue, error)
	Publish(exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	Close() error
}

type RabbitClient struct {
	conn    *amqp.Connection
	channel channel
	queue   string
	logger  *zap.Logger
}

func NewRabbitClient(url, queue string, logger *zap.Logger) (*RabbitClient, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to RabbitMQ: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to create channel: %w", err)
	}

	r := newRabbitClient(ch, queue, logger)
	r.conn = conn
	if err := r.DeclareQueue(); err != nil {
		r.Close()
		return nil, err
	}
	return r, nil
}

func newRabbitClient(ch channel, queue string, logger *zap.Logger) *RabbitClient {
	if queue == "" {
		queue = DefaultQueue
	}
	return &RabbitClient{channel: ch, queue: queue, logger: logger}
}

// Queue returns the name of the event queue.
func (r *RabbitClient) Queue() string {
	return r.queue
}

// DeclareQueue creates the durable event queue and its dead-letter queue.
func (r *RabbitClient) DeclareQueue() error {
	dlqName := r.queue + "_dlq"

	// 1. DLQ
	_, err := r.channel.QueueDeclare(
		dlqName,
		true, false, false, false,
		nil,
	)
	if err != nil {
		return fmt.Errorf("declare DLQ: %w", err)
	}

	// 2. Main Queue with DLQ binding
	args := amqp.Table{
		"x-dead-letter-exchange":    "",
		"x-dead-letter-routing-key": dlqName,
	}
	_, err = r.channel.QueueDeclare(
		r.queue,
		true, false, false, false,
		args,
	)
	if err != nil {
		return fmt.Errorf("declare main queue: %w", err)
	}

	r.logger.Info("Event queues declared", zap.String("queue", r.queue), zap.String("dlq", dlqName))
	return nil
}

// Publish sends event to the queue as a persistent JSON message.
func (r *RabbitClient) Publish(_ context.Context, event Event) error {
	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	err = r.channel.Publish(
		"",      // default exchange
		r.queue, // routing key (queue name)
		false,
		false,
		amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			Type:         event.Type,
			Timestamp:    event.Timestamp,
			Body:         body,
		},
	)
	if err != nil {
		return fmt.Errorf("failed to publish to queue %s: %w", r.queue, err)
	}
	return nil
}

// Close cleans up connection and channel
func (r *RabbitClient) Close() error {
	if err := r.channel.Close(); err != nil {
		return err
	}
	if r.conn != nil {
		if err := r.conn.Close(); err != nil {
			return err
		}
	}
	return nil
}
