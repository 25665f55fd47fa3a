package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"tok-ingest/pkg/config"
	"tok-ingest/pkg/logger"

	amqp "github.com/rabbitmq/amqp091-go"
)

const (
	SyncJobQueueName = "ingest_jobs"
	SyncJobExchange  = "ingest"
	SyncJobRouting   = "sync_profile"

	FailureExchange  = "ingest_failures"
	FailureQueueName = "ingest_failures"
	FailureRouting   = "post_persistence"
)

type Client struct {
	conn    *amqp.Connection
	channel *amqp.Channel
	logger  *logger.Logger
}

func URL(cfg *config.Config) string {
	return fmt.Sprintf("amqp://%s:%s@%s:%s/",
		cfg.RabbitMQUser,
		cfg.RabbitMQPassword,
		cfg.RabbitMQHost,
		cfg.RabbitMQPort,
	)
}

func NewRabbitMQClient(cfg *config.Config, log *logger.Logger) (*Client, error) {
	conn, err := amqp.Dial(URL(cfg))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to RabbitMQ: %w", err)
	}

	channel, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to open channel: %w", err)
	}

	if err := declareTopology(channel); err != nil {
		channel.Close()
		conn.Close()
		return nil, err
	}

	log.Info("Connected to RabbitMQ at %s:%s", cfg.RabbitMQHost, cfg.RabbitMQPort)

	return &Client{
		conn:    conn,
		channel: channel,
		logger:  log,
	}, nil
}

func declareTopology(channel *amqp.Channel) error {
	for _, exchange := range []string{SyncJobExchange, FailureExchange} {
		if err := channel.ExchangeDeclare(
			exchange, // name
			"direct", // type
			true,     // durable
			false,    // auto-deleted
			false,    // internal
			false,    // no-wait
			nil,      // arguments
		); err != nil {
			return fmt.Errorf("failed to declare exchange %s: %w", exchange, err)
		}
	}

	// Sync jobs use a priority queue so interactive syncs overtake bulk backfills.
	if _, err := channel.QueueDeclare(
		SyncJobQueueName,
		true,  // durable
		false, // delete when unused
		false, // exclusive
		false, // no-wait
		amqp.Table{"x-max-priority": 10},
	); err != nil {
		return fmt.Errorf("failed to declare queue %s: %w", SyncJobQueueName, err)
	}
	if _, err := channel.QueueDeclare(FailureQueueName, true, false, false, false, nil); err != nil {
		return fmt.Errorf("failed to declare queue %s: %w", FailureQueueName, err)
	}

	if err := channel.QueueBind(SyncJobQueueName, SyncJobRouting, SyncJobExchange, false, nil); err != nil {
		return fmt.Errorf("failed to bind queue %s: %w", SyncJobQueueName, err)
	}
	if err := channel.QueueBind(FailureQueueName, FailureRouting, FailureExchange, false, nil); err != nil {
		return fmt.Errorf("failed to bind queue %s: %w", FailureQueueName, err)
	}
	return nil
}

func (c *Client) Close() error {
	if c.channel != nil {
		c.channel.Close()
	}
	if c.conn != nil {
		return c.conn.Close()
	}
	return nil
}

// PublishSyncJob enqueues a profile sync for the worker.
func (c *Client) PublishSyncJob(ctx context.Context, job *SyncJob) error {
	if job.RequestedAt.IsZero() {
		job.RequestedAt = time.Now().UTC()
	}

	body, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("failed to marshal sync job: %w", err)
	}

	if err := c.publish(ctx, SyncJobExchange, SyncJobRouting, body, clampPriority(job.Priority)); err != nil {
		return err
	}
	c.logger.Info("[RABBITMQ] Queued sync job for %s (force_recache=%t, max_pages=%d)", job.Handle, job.ForceRecache, job.MaxPages)
	return nil
}

// PublishFailureReport sends a persistence failure to the error-tracking exchange.
func (c *Client) PublishFailureReport(ctx context.Context, report *FailureReport) error {
	body, err := json.Marshal(report)
	if err != nil {
		return fmt.Errorf("failed to marshal failure report: %w", err)
	}
	return c.publish(ctx, FailureExchange, FailureRouting, body, 0)
}

func (c *Client) publish(ctx context.Context, exchange, routingKey string, body []byte, priority uint8) error {
	err := c.channel.PublishWithContext(ctx,
		exchange,
		routingKey,
		false, // mandatory
		false, // immediate
		amqp.Publishing{
			ContentType:  "application/json",
			Body:         body,
			Priority:     priority,
			DeliveryMode: amqp.Persistent,
			Timestamp:    time.Now(),
		},
	)
	if err != nil {
		c.logger.Error("[RABBITMQ] Failed to publish message to exchange=%s, routing_key=%s: %v", exchange, routingKey, err)
		return fmt.Errorf("failed to publish message: %w", err)
	}
	return nil
}

// ConsumeSyncJobs runs handler for every queued job until ctx is done. A job
// whose handler fails is requeued once and dropped on its second failure.
func (c *Client) ConsumeSyncJobs(ctx context.Context, handler func(ctx context.Context, job *SyncJob) error) error {
	// One unacked job at a time keeps a worker to one ingestion run.
	if err := c.channel.Qos(1, 0, false); err != nil {
		return fmt.Errorf("failed to set qos: %w", err)
	}

	msgs, err := c.channel.Consume(
		SyncJobQueueName,
		"",    // consumer
		false, // auto-ack
		false, // exclusive
		false, // no-local
		false, // no-wait
		nil,   // args
	)
	if err != nil {
		return fmt.Errorf("failed to register consumer: %w", err)
	}

	c.logger.Info("[RABBITMQ] Started consuming from queue: %s", SyncJobQueueName)

	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-msgs:
				if !ok {
					c.logger.Warn("[RABBITMQ] Delivery channel for %s closed", SyncJobQueueName)
					return
				}
				c.handleDelivery(ctx, msg, handler)
			}
		}
	}()

	return nil
}

func (c *Client) handleDelivery(ctx context.Context, msg amqp.Delivery, handler func(ctx context.Context, job *SyncJob) error) {
	job, err := DecodeSyncJob(msg.Body)
	if err != nil {
		c.logger.Error("[RABBITMQ] Failed to decode sync job: %v, body=%s", err, string(msg.Body))
		msg.Nack(false, false)
		return
	}

	if err := handler(ctx, job); err != nil {
		c.logger.Error("[RABBITMQ] Sync job for %s failed (redelivered=%t): %v", job.Handle, msg.Redelivered, err)
		msg.Nack(false, !msg.Redelivered)
		return
	}

	msg.Ack(false)
	c.logger.Info("[RABBITMQ] Sync job for %s done", job.Handle)
}

// GetQueueLength returns the number of jobs waiting in the sync queue.
func (c *Client) GetQueueLength() (int, error) {
	queue, err := c.channel.QueueDeclarePassive(SyncJobQueueName, true, false, false, false, amqp.Table{"x-max-priority": 10})
	if err != nil {
		return 0, err
	}
	return queue.Messages, nil
}

func clampPriority(p int) uint8 {
	if p < 0 {
		return 0
	}
	if p > 10 {
		return 10
	}
	return uint8(p)
}
