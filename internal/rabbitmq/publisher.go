package rabbitmq

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"
)

var ErrChannelClosed = errors.New("amqp channel closed")

const appID = "chat-sync"

// Publisher sends JSON events to the topic exchange. Callers treat publishing
// as best-effort: an error is logged and counted, never surfaced to clients.
type Publisher interface {
	Publish(ctx context.Context, routingKey string, event any, headers map[string]string) error
	Close() error
}

// NewPublisher dials the broker and declares the exchange. Any failure, or an
// empty URL, yields a noop publisher so the service still starts.
func NewPublisher(amqpURL, exchange string, logger *zap.Logger) Publisher {
	if amqpURL == "" {
		return newNoop("empty amqp url", logger)
	}

	conn, ch, err := connect(amqpURL, exchange)
	if err != nil {
		return newNoop(err.Error(), logger)
	}

	p := &amqpPublisher{conn: conn, ch: ch, exchange: exchange, logger: logger.Named("amqp")}
	go p.watch(ch.NotifyClose(make(chan *amqp.Error, 1)))
	p.logger.Info("rabbitmq connected", zap.String("exchange", exchange))
	return p
}

func connect(amqpURL, exchange string) (*amqp.Connection, *amqp.Channel, error) {
	conn, err := amqp.Dial(amqpURL)
	if err != nil {
		return nil, nil, fmt.Errorf("dial: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, nil, fmt.Errorf("open channel: %w", err)
	}
	// durable topic exchange; consumers bind their own queues
	if err := ch.ExchangeDeclare(exchange, amqp.ExchangeTopic, true, false, false, false, nil); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, nil, fmt.Errorf("declare exchange %s: %w", exchange, err)
	}
	return conn, ch, nil
}

type amqpPublisher struct {
	conn     *amqp.Connection
	ch       *amqp.Channel
	exchange string
	closed   atomic.Bool
	logger   *zap.Logger
}

func (p *amqpPublisher) watch(closes <-chan *amqp.Error) {
	if err, ok := <-closes; ok && err != nil {
		p.logger.Warn("rabbitmq channel closed", zap.String("reason", err.Reason), zap.Int("code", err.Code))
	}
	p.closed.Store(true)
}

func (p *amqpPublisher) Publish(ctx context.Context, routingKey string, event any, headers map[string]string) error {
	if p.closed.Load() {
		return ErrChannelClosed
	}
	msg, err := newPublishing(event, headers, time.Now())
	if err != nil {
		return err
	}
	if err := p.ch.PublishWithContext(ctx, p.exchange, routingKey, false, false, msg); err != nil {
		return fmt.Errorf("publish %s: %w", routingKey, err)
	}
	return nil
}

func (p *amqpPublisher) Close() error {
	p.closed.Store(true)
	_ = p.ch.Close()
	return p.conn.Close()
}

func newPublishing(event any, headers map[string]string, now time.Time) (amqp.Publishing, error) {
	body, err := json.Marshal(event)
	if err != nil {
		return amqp.Publishing{}, fmt.Errorf("encode event: %w", err)
	}
	var table amqp.Table
	if len(headers) > 0 {
		table = make(amqp.Table, len(headers))
		for k, v := range headers {
			table[k] = v
		}
	}
	return amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    uuid.NewString(),
		AppId:        appID,
		Timestamp:    now.UTC(),
		Headers:      table,
		Body:         body,
	}, nil
}

type noopPublisher struct {
	reason string
	logger *zap.Logger
}

func newNoop(reason string, logger *zap.Logger) noopPublisher {
	logger.Warn("rabbitmq disabled, using noop", zap.String("reason", reason))
	return noopPublisher{reason: reason, logger: logger}
}

func (p noopPublisher) Publish(ctx context.Context, routingKey string, event any, headers map[string]string) error {
	p.logger.Debug("rabbitmq noop publish", zap.String("routing_key", routingKey))
	return nil
}

func (noopPublisher) Close() error {
	return nil
}

// NewNoopPublisher returns a publisher that drops every event.
func NewNoopPublisher() Publisher {
	return noopPublisher{reason: "disabled", logger: zap.NewNop()}
}

// Describe reports the publisher mode and, for noop, why the broker is off.
func Describe(p Publisher) (mode, reason string) {
	switch v := p.(type) {
	case *amqpPublisher:
		return "amqp", ""
	case noopPublisher:
		return "noop", v.reason
	default:
		return "custom", ""
	}
}
