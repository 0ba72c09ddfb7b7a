package messaging

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/elis/elis-backend/pkg/logger"
)

// JobHandler processes an extraction job. A nil return acknowledges the
// message; handlers own every domain outcome (terminal status updates,
// retry republishing) before returning nil. A non-nil return signals an
// infrastructure failure and the delivery is redelivered or dead-lettered.
type JobHandler func(ctx context.Context, job *ExtractionJob) error

// JobConsumer consumes extraction jobs from RabbitMQ
type JobConsumer struct {
	rmq       *RabbitMQ
	queueName string
	logger    *logger.Logger
	wg        sync.WaitGroup
}

// NewJobConsumer creates a consumer for the extraction queue
func NewJobConsumer(rmq *RabbitMQ, exchange, queueName, routingKey string, log *logger.Logger) (*JobConsumer, error) {
	if err := rmq.DeclareExchange(exchange); err != nil {
		return nil, fmt.Errorf("failed to declare exchange: %w", err)
	}
	if err := rmq.DeclareDeadLetterQueue(queueName); err != nil {
		return nil, err
	}
	if _, err := rmq.DeclareQueue(queueName); err != nil {
		return nil, fmt.Errorf("failed to declare queue %s: %w", queueName, err)
	}
	if err := rmq.BindQueue(queueName, exchange, routingKey); err != nil {
		return nil, fmt.Errorf("failed to bind queue: %w", err)
	}

	return &JobConsumer{
		rmq:       rmq,
		queueName: queueName,
		logger:    log,
	}, nil
}

// Start starts consuming jobs from the queue until ctx is cancelled
func (c *JobConsumer) Start(ctx context.Context, handler JobHandler) error {
	msgs, err := c.rmq.Channel().Consume(
		c.queueName, // queue
		"",          // consumer tag (auto-generated)
		false,       // auto-ack
		false,       // exclusive
		false,       // no-local
		false,       // no-wait
		nil,         // arguments
	)
	if err != nil {
		return fmt.Errorf("failed to start consuming: %w", err)
	}

	c.logger.Info().Str("queue", c.queueName).Msg("consumer started")

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		for {
			select {
			case <-ctx.Done():
				c.logger.Info().Str("queue", c.queueName).Msg("consumer stopped")
				return
			case msg, ok := <-msgs:
				if !ok {
					c.logger.Warn().Msg("message channel closed")
					return
				}
				c.handleMessage(ctx, msg, handler)
			}
		}
	}()

	return nil
}

// Wait blocks until the consume loop has drained its in-flight delivery
func (c *JobConsumer) Wait() {
	c.wg.Wait()
}

func (c *JobConsumer) handleMessage(ctx context.Context, msg amqp.Delivery, handler JobHandler) {
	var job ExtractionJob
	if err := json.Unmarshal(msg.Body, &job); err != nil {
		c.logger.Error().Err(err).Msg("failed to unmarshal job")
		// Reject without requeue for malformed messages
		msg.Reject(false)
		return
	}

	c.logger.Debug().
		Str("document_id", job.DocumentID).
		Int("attempt", job.Attempt).
		Msg("processing extraction job")

	if err := handler(ctx, &job); err != nil {
		c.logger.Error().
			Err(err).
			Str("document_id", job.DocumentID).
			Msg("failed to process job")

		// Check redelivery count from x-death headers
		deaths := getDeathCount(msg)
		if deaths >= 3 {
			c.logger.Warn().
				Str("document_id", job.DocumentID).
				Int("death_count", deaths).
				Msg("max redeliveries exceeded, sending to DLQ")
			msg.Reject(false)
			return
		}

		// Requeue for redelivery
		msg.Nack(false, true)
		return
	}

	msg.Ack(false)
}

func getDeathCount(msg amqp.Delivery) int {
	if msg.Headers == nil {
		return 0
	}

	if deaths, ok := msg.Headers["x-death"].([]interface{}); ok {
		for _, death := range deaths {
			if d, ok := death.(amqp.Table); ok {
				if count, ok := d["count"].(int64); ok {
					return int(count)
				}
			}
		}
	}

	return 0
}
