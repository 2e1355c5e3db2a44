package broker

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

const (
	exchangeKind          = "topic"
	defaultConfirmTimeout = 5 * time.Second
)

var (
	ErrPublishNacked  = errors.New("message was nacked by broker")
	ErrConfirmTimeout = errors.New("publisher confirmation timed out")
)

// AMQPChannel is the subset of *amqp.Channel the transport drives.
type AMQPChannel interface {
	ExchangeDeclare(name, kind string, durable, autoDelete, internal, noWait bool, args amqp.Table) error
	QueueDeclare(name string, durable, autoDelete, exclusive, noWait bool, args amqp.Table) (amqp.Queue, error)
	QueueBind(name, key, exchange string, noWait bool, args amqp.Table) error
	Confirm(noWait bool) error
	NotifyPublish(confirm chan amqp.Confirmation) chan amqp.Confirmation
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	Get(queue string, autoAck bool) (amqp.Delivery, bool, error)
	Close() error
}

type RabbitMQOptions struct {
	DeadLetterExchange string
	ConfirmTimeout     time.Duration
}

// RabbitMQ is a Transport over one AMQP channel with publisher confirms enabled.
type RabbitMQ struct {
	mu       sync.Mutex
	ch       AMQPChannel
	conn     io.Closer
	confirms chan amqp.Confirmation
	opts     RabbitMQOptions
}

var _ Transport = (*RabbitMQ)(nil)

// DialRabbitMQ opens a connection and a confirm-mode channel.
func DialRabbitMQ(ctx context.Context, url string, opts RabbitMQOptions) (*RabbitMQ, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, unavailable("dial", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, unavailable("open channel", err)
	}
	r, err := NewRabbitMQ(ch, opts)
	if err != nil {
		_ = conn.Close()
		return nil, err
	}
	r.conn = conn
	return r, nil
}

// NewRabbitMQ puts ch in confirm mode and wraps it.
func NewRabbitMQ(ch AMQPChannel, opts RabbitMQOptions) (*RabbitMQ, error) {
	if ch == nil {
		return nil, errors.New("rabbitmq channel is required")
	}
	if opts.ConfirmTimeout <= 0 {
		opts.ConfirmTimeout = defaultConfirmTimeout
	}
	if err := ch.Confirm(false); err != nil {
		return nil, unavailable("confirm mode", err)
	}
	confirms := ch.NotifyPublish(make(chan amqp.Confirmation, 1))
	return &RabbitMQ{ch: ch, confirms: confirms, opts: opts}, nil
}

func (r *RabbitMQ) DeclareExchange(_ context.Context, name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.ch.ExchangeDeclare(name, exchangeKind, true, false, false, false, nil); err != nil {
		return unavailable("declare exchange "+name, err)
	}
	return nil
}

// DeclareQueue declares a durable queue and its bindings. With DeadLetter set, rejected
// messages go to the dead-letter exchange with the queue name as routing key and land in
// <queue>.dlq.
func (r *RabbitMQ) DeclareQueue(_ context.Context, spec QueueSpec) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	var args amqp.Table
	if spec.DeadLetter && r.opts.DeadLetterExchange != "" {
		if err := r.declareDeadLetter(spec.Name); err != nil {
			return err
		}
		args = amqp.Table{
			"x-dead-letter-exchange":    r.opts.DeadLetterExchange,
			"x-dead-letter-routing-key": spec.Name,
		}
	}

	if _, err := r.ch.QueueDeclare(spec.Name, true, false, false, false, args); err != nil {
		return unavailable("declare queue "+spec.Name, err)
	}
	for _, key := range spec.Bindings {
		if err := r.ch.QueueBind(spec.Name, key, spec.Exchange, false, nil); err != nil {
			return unavailable(fmt.Sprintf("bind %s to %s", spec.Name, key), err)
		}
	}
	return nil
}

func (r *RabbitMQ) declareDeadLetter(queue string) error {
	dlx, dlq := r.opts.DeadLetterExchange, DeadLetterQueue(queue)
	if err := r.ch.ExchangeDeclare(dlx, exchangeKind, true, false, false, false, nil); err != nil {
		return unavailable("declare dlx "+dlx, err)
	}
	if _, err := r.ch.QueueDeclare(dlq, true, false, false, false, nil); err != nil {
		return unavailable("declare dlq "+dlq, err)
	}
	if err := r.ch.QueueBind(dlq, queue, dlx, false, nil); err != nil {
		return unavailable("bind dlq "+dlq, err)
	}
	return nil
}

// Publish sends a persistent message and waits for the broker confirm.
func (r *RabbitMQ) Publish(ctx context.Context, exchange, routingKey, messageID string, payload []byte) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	msg := amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    messageID,
		Type:         routingKey,
		Timestamp:    time.Now().UTC(),
		Body:         payload,
	}
	if err := r.ch.PublishWithContext(ctx, exchange, routingKey, false, false, msg); err != nil {
		return unavailable("publish", err)
	}

	timer := time.NewTimer(r.opts.ConfirmTimeout)
	defer timer.Stop()
	select {
	case c, ok := <-r.confirms:
		if !ok {
			return unavailable("publish", amqp.ErrClosed)
		}
		if !c.Ack {
			return ErrPublishNacked
		}
		return nil
	case <-timer.C:
		return unavailable("publish", ErrConfirmTimeout)
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (r *RabbitMQ) TryReceive(_ context.Context, queue string) (*Delivery, error) {
	r.mu.Lock()
	d, ok, err := r.ch.Get(queue, false)
	r.mu.Unlock()
	if err != nil {
		return nil, unavailable("get "+queue, err)
	}
	if !ok {
		return nil, nil
	}
	return NewDelivery(d.MessageId, d.RoutingKey, d.Body,
		func() error { return d.Ack(false) },
		func() error { return d.Reject(false) },
	), nil
}

func (r *RabbitMQ) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	err := r.ch.Close()
	if r.conn != nil {
		err = errors.Join(err, r.conn.Close())
	}
	return err
}

// unavailable wraps err with ErrUnavailable. AMQP channel exceptions close the channel, so
// any failed channel call needs a fresh connection.
func unavailable(op string, err error) error {
	return fmt.Errorf("%w: %s: %w", ErrUnavailable, op, err)
}
