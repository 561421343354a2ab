// Package rabbitmq publishes entity events to a RabbitMQ topic exchange.
package rabbitmq

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	jsoniter "github.com/json-iterator/go"
	"github.com/rabbitmq/amqp091-go"

	"entitystore/adapter"
	"entitystore/config"
	"entitystore/observability"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// DefaultExchange is used when the configuration names none
const DefaultExchange = "entities"

// channel is the subset of *amqp091.Channel the publisher uses
type channel interface {
	ExchangeDeclare(name, kind string, durable, autoDelete, internal, noWait bool, args amqp091.Table) error
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp091.Publishing) error
	Close() error
}

// Publisher implements adapter.EventPublisher. Events are JSON encoded,
// persistent, and routed by event name.
type Publisher struct {
	conn     *amqp091.Connection
	channel  channel
	exchange string
	logger   observability.Logger
	metrics  observability.Metrics
}

// NewPublisher dials RabbitMQ and declares the durable topic exchange
func NewPublisher(cfg *config.EventsConfig, logger observability.Logger, metrics observability.Metrics) (*Publisher, error) {
	conn, err := amqp091.Dial(cfg.RabbitMQURL)
	if err != nil {
		logger.Error(context.Background(), "failed to connect to RabbitMQ", err, nil)
		return nil, fmt.Errorf("failed to connect to RabbitMQ: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		logger.Error(context.Background(), "failed to create channel", err, nil)
		return nil, fmt.Errorf("failed to create channel: %w", err)
	}

	p, err := newPublisher(ch, cfg.Exchange, logger, metrics)
	if err != nil {
		ch.Close()
		conn.Close()
		return nil, err
	}
	p.conn = conn

	logger.Info(context.Background(), "RabbitMQ publisher initialized successfully", observability.Fields{
		"exchange": p.exchange,
	})

	return p, nil
}

func newPublisher(ch channel, exchange string, logger observability.Logger, metrics observability.Metrics) (*Publisher, error) {
	if exchange == "" {
		exchange = DefaultExchange
	}

	err := ch.ExchangeDeclare(
		exchange, // name
		"topic",  // kind
		true,     // durable
		false,    // auto-delete
		false,    // internal
		false,    // no-wait
		nil,      // arguments
	)
	if err != nil {
		logger.Error(context.Background(), "failed to declare exchange", err, observability.Fields{
			"exchange": exchange,
		})
		return nil, fmt.Errorf("failed to declare exchange %q: %w", exchange, err)
	}

	return &Publisher{
		channel:  ch,
		exchange: exchange,
		logger:   logger,
		metrics:  metrics,
	}, nil
}

// Publish sends one event
func (p *Publisher) Publish(ctx context.Context, event adapter.Event) error {
	start := time.Now()
	defer func() {
		p.metrics.RecordDuration("publish", time.Since(start).Seconds())
	}()

	body, err := json.Marshal(event)
	if err != nil {
		p.metrics.RecordError("publish", "marshal_failed")
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	timestamp := event.Timestamp
	if timestamp.IsZero() {
		timestamp = time.Now().UTC()
	}

	msg := amqp091.Publishing{
		DeliveryMode: amqp091.Persistent,
		ContentType:  "application/json",
		MessageId:    uuid.NewString(),
		Type:         event.Name,
		Timestamp:    timestamp,
		Body:         body,
	}

	err = p.channel.PublishWithContext(
		ctx,
		p.exchange,
		event.Name, // routing key
		false,      // mandatory
		false,      // immediate
		msg,
	)
	if err != nil {
		p.metrics.RecordError("publish", "publish_failed")
		p.logger.Error(ctx, "failed to publish event", err, observability.Fields{
			"event": event.Name,
			"key":   event.Key,
		})
		return fmt.Errorf("failed to publish event: %w", err)
	}

	p.metrics.RecordSuccess("publish")
	p.logger.Debug(ctx, "event published successfully", observability.Fields{
		"event": event.Name,
		"key":   event.Key,
		"size":  len(body),
	})

	return nil
}

// Close closes the channel and the connection
func (p *Publisher) Close() error {
	if p.channel != nil {
		p.channel.Close()
	}
	if p.conn != nil {
		return p.conn.Close()
	}
	return nil
}
