package messaging

import (
	"context"
	"encoding/json"
	"fmt"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/elis/elis-backend/pkg/logger"
)

// JobPublisher publishes extraction jobs to RabbitMQ
type JobPublisher struct {
	channel    *amqp.Channel
	exchange   string
	routingKey string
	logger     *logger.Logger
}

// NewJobPublisher creates a publisher for the extraction exchange.
// The exchange, queue, binding and dead letter queue are declared up front so
// that a job published before any worker starts is not lost.
func NewJobPublisher(rmq *RabbitMQ, exchange, queueName, routingKey string, log *logger.Logger) (*JobPublisher, error) {
	if err := rmq.DeclareExchange(exchange); err != nil {
		return nil, fmt.Errorf("failed to declare exchange %s: %w", exchange, err)
	}
	if err := rmq.DeclareDeadLetterQueue(queueName); err != nil {
		return nil, err
	}
	if _, err := rmq.DeclareQueue(queueName); err != nil {
		return nil, fmt.Errorf("failed to declare queue %s: %w", queueName, err)
	}
	if err := rmq.BindQueue(queueName, exchange, routingKey); err != nil {
		return nil, fmt.Errorf("failed to bind queue %s: %w", queueName, err)
	}

	return &JobPublisher{
		channel:    rmq.Channel(),
		exchange:   exchange,
		routingKey: routingKey,
		logger:     log,
	}, nil
}

// Publish publishes an extraction job as a persistent message
func (p *JobPublisher) Publish(ctx context.Context, job *ExtractionJob) error {
	body, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("failed to marshal job: %w", err)
	}

	err = p.channel.PublishWithContext(ctx,
		p.exchange,   // exchange
		p.routingKey, // routing key
		false,        // mandatory
		false,        // immediate
		amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			Body:         body,
		},
	)
	if err != nil {
		return fmt.Errorf("failed to publish job: %w", err)
	}

	p.logger.Debug().
		Str("document_id", job.DocumentID).
		Int("attempt", job.Attempt).
		Msg("extraction job published")

	return nil
}
