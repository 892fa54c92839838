package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/RubachokBoss/exam-grading/import-service/internal/models"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog"
)

type RabbitMQPublisher interface {
	Publish(ctx context.Context, exchange, routingKey string, body []byte) error
	Close() error
}

type rabbitMQPublisher struct {
	channel *amqp.Channel
	logger  zerolog.Logger
}

func NewRabbitMQPublisher(channel *amqp.Channel, logger zerolog.Logger) RabbitMQPublisher {
	return &rabbitMQPublisher{
		channel: channel,
		logger:  logger,
	}
}

func (p *rabbitMQPublisher) Publish(ctx context.Context, exchange, routingKey string, body []byte) error {
	publishCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	return p.channel.PublishWithContext(
		publishCtx,
		exchange,   // exchange
		routingKey, // routing key
		false,      // mandatory
		false,      // immediate
		amqp.Publishing{
			ContentType:  "application/json",
			Body:         body,
			DeliveryMode: amqp.Persistent,
			Timestamp:    time.Now(),
		},
	)
}

func (p *rabbitMQPublisher) Close() error {
	// Channel will be closed by parent
	p.logger.Info().Msg("RabbitMQ publisher closed")
	return nil
}

// EventPublisher sends import lifecycle events. The routing key of a
// finished job is "<prefix>.<status>", e.g. import.completed.
type EventPublisher struct {
	publisher RabbitMQPublisher
	exchange  string
	prefix    string
	logger    zerolog.Logger
}

func NewEventPublisher(publisher RabbitMQPublisher, exchange, routingPrefix string, logger zerolog.Logger) *EventPublisher {
	return &EventPublisher{
		publisher: publisher,
		exchange:  exchange,
		prefix:    routingPrefix,
		logger:    logger,
	}
}

func (p *EventPublisher) RoutingKey(status string) string {
	return p.prefix + "." + status
}

func (p *EventPublisher) PublishImportFinished(ctx context.Context, event models.ImportJobFinishedEvent) error {
	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	key := p.RoutingKey(event.Status)
	if err := p.publisher.Publish(ctx, p.exchange, key, body); err != nil {
		return fmt.Errorf("failed to publish %s: %w", key, err)
	}

	p.logger.Debug().Str("job_id", event.JobID).Str("routing_key", key).Msg("Import event published")
	return nil
}

// NopEventPublisher is used when RabbitMQ is disabled.
type NopEventPublisher struct{}

func (NopEventPublisher) PublishImportFinished(context.Context, models.ImportJobFinishedEvent) error {
	return nil
}
