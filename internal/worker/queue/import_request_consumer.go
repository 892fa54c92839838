package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/RubachokBoss/exam-grading/import-service/internal/models"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog"
)

// ErrMalformedRequest marks a delivery whose body is not a usable import
// request. Such deliveries can never succeed and must not be requeued.
var ErrMalformedRequest = errors.New("malformed import request")

// ConsumerChannel is the part of *amqp.Channel the consumer needs.
type ConsumerChannel interface {
	Qos(prefetchCount, prefetchSize int, global bool) error
	Consume(queue, consumer string, autoAck, exclusive, noLocal, noWait bool, args amqp.Table) (<-chan amqp.Delivery, error)
	QueueDeclarePassive(name string, durable, autoDelete, exclusive, noWait bool, args amqp.Table) (amqp.Queue, error)
	Cancel(consumer string, noWait bool) error
}

// ImportDelivery is one import request taken off the request queue. Exactly
// one of Ack, Requeue or Reject must be called.
type ImportDelivery struct {
	Request     models.ImportRequestedEvent
	Err         error
	MessageID   string
	Redelivered bool
	ReceivedAt  time.Time

	Ack     func() error
	Requeue func() error
	Reject  func() error
}

type QueueDepth struct {
	Messages  int `json:"messages"`
	Consumers int `json:"consumers"`
}

type ImportRequestConsumer interface {
	Consume(ctx context.Context) (<-chan ImportDelivery, error)
	Depth() (QueueDepth, error)
	Close() error
}

type importRequestConsumer struct {
	channel     ConsumerChannel
	queue       string
	consumerTag string
	prefetch    int
	logger      zerolog.Logger
	closeOnce   sync.Once
}

func NewImportRequestConsumer(channel ConsumerChannel, queue, consumerTag string, prefetch int, logger zerolog.Logger) ImportRequestConsumer {
	if prefetch <= 0 {
		prefetch = 1
	}
	return &importRequestConsumer{
		channel:     channel,
		queue:       queue,
		consumerTag: consumerTag,
		prefetch:    prefetch,
		logger:      logger.With().Str("queue", queue).Logger(),
	}
}

func (c *importRequestConsumer) Consume(ctx context.Context) (<-chan ImportDelivery, error) {
	// Each delivery may start a long import, so the broker must not push more
	// than the worker can hold.
	if err := c.channel.Qos(c.prefetch, 0, false); err != nil {
		return nil, fmt.Errorf("failed to set prefetch on %s: %w", c.queue, err)
	}

	msgs, err := c.channel.Consume(
		c.queue,       // queue
		c.consumerTag, // consumer
		false,         // auto-ack
		false,         // exclusive
		false,         // no-local
		false,         // no-wait
		nil,           // args
	)
	if err != nil {
		return nil, fmt.Errorf("failed to consume %s: %w", c.queue, err)
	}

	out := make(chan ImportDelivery)
	go func() {
		defer close(out)
		for {
			select {
			case <-ctx.Done():
				c.logger.Info().Msg("Import request consumer stopping")
				return
			case msg, ok := <-msgs:
				if !ok {
					c.logger.Warn().Msg("Import request channel closed by broker")
					return
				}
				d := c.decode(msg)
				select {
				case out <- d:
				case <-ctx.Done():
					if err := msg.Nack(false, true); err != nil {
						c.logger.Error().Err(err).Msg("Failed to return import request to queue")
					}
					return
				}
			}
		}
	}()

	c.logger.Info().
		Str("consumer_tag", c.consumerTag).
		Int("prefetch", c.prefetch).
		Msg("Consuming import requests")

	return out, nil
}

func (c *importRequestConsumer) decode(msg amqp.Delivery) ImportDelivery {
	d := ImportDelivery{
		MessageID:   msg.MessageId,
		Redelivered: msg.Redelivered,
		ReceivedAt:  time.Now(),
		Ack:         func() error { return msg.Ack(false) },
		Requeue:     func() error { return msg.Nack(false, true) },
		Reject:      func() error { return msg.Reject(false) },
	}

	if err := json.Unmarshal(msg.Body, &d.Request); err != nil {
		d.Err = fmt.Errorf("%w: %v", ErrMalformedRequest, err)
	} else if strings.TrimSpace(d.Request.ArchivePath) == "" {
		d.Err = fmt.Errorf("%w: empty archive_path", ErrMalformedRequest)
	}

	if d.Err != nil {
		c.logger.Warn().Err(d.Err).Str("message_id", msg.MessageId).Msg("Received unusable import request")
	} else if msg.Redelivered {
		c.logger.Debug().Str("message_id", msg.MessageId).Str("exam_id", d.Request.ExamID).Msg("Import request redelivered")
	}
	return d
}

// Depth reports how many import requests wait on the broker.
func (c *importRequestConsumer) Depth() (QueueDepth, error) {
	q, err := c.channel.QueueDeclarePassive(
		c.queue, // name
		true,    // durable
		false,   // delete when unused
		false,   // exclusive
		false,   // no-wait
		nil,     // arguments
	)
	if err != nil {
		return QueueDepth{}, fmt.Errorf("failed to inspect %s: %w", c.queue, err)
	}
	return QueueDepth{Messages: q.Messages, Consumers: q.Consumers}, nil
}

func (c *importRequestConsumer) Close() error {
	var err error
	c.closeOnce.Do(func() {
		if cancelErr := c.channel.Cancel(c.consumerTag, false); cancelErr != nil {
			err = fmt.Errorf("failed to cancel consumer %s: %w", c.consumerTag, cancelErr)
			return
		}
		c.logger.Info().Msg("Import request consumer closed")
	})
	return err
}
