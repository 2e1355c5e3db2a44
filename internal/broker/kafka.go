package broker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/segmentio/kafka-go"
)

const (
	headerType      = "type"
	headerMessageID = "message_id"
)

type KafkaOptions struct {
	Brokers      []string
	MinBytes     int           // default 1
	MaxBytes     int           // default 10MB
	ReceiveWait  time.Duration // how long TryReceive waits before reporting empty
	WriteTimeout time.Duration
}

type kafkaReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

type kafkaWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

type kafkaQueue struct {
	spec   QueueSpec
	reader kafkaReader
}

// Kafka maps exchanges to topics and queues to consumer groups on the exchange topic.
// Bindings are evaluated client side: a message no binding matches is committed and skipped.
type Kafka struct {
	opts      KafkaOptions
	writer    kafkaWriter
	newReader func(topic, group string) kafkaReader

	mu     sync.Mutex
	queues map[string]*kafkaQueue
}

var _ Transport = (*Kafka)(nil)

func NewKafka(opts KafkaOptions) *Kafka {
	if opts.MinBytes <= 0 {
		opts.MinBytes = 1
	}
	if opts.MaxBytes <= 0 {
		opts.MaxBytes = 10 << 20 // 10MB
	}
	if opts.ReceiveWait <= 0 {
		opts.ReceiveWait = 250 * time.Millisecond
	}
	if opts.WriteTimeout <= 0 {
		opts.WriteTimeout = 10 * time.Second
	}

	w := &kafka.Writer{
		Addr:                   kafka.TCP(opts.Brokers...),
		Balancer:               &kafka.Hash{},
		RequiredAcks:           kafka.RequireAll,
		AllowAutoTopicCreation: true,
		WriteTimeout:           opts.WriteTimeout,
	}
	k := &Kafka{opts: opts, writer: w, queues: map[string]*kafkaQueue{}}
	k.newReader = func(topic, group string) kafkaReader {
		return kafka.NewReader(kafka.ReaderConfig{
			Brokers:        opts.Brokers,
			GroupID:        group,
			Topic:          topic,
			MinBytes:       opts.MinBytes,
			MaxBytes:       opts.MaxBytes,
			MaxWait:        opts.ReceiveWait,
			CommitInterval: 0, // sync commit per message
		})
	}
	return k
}

// DeclareExchange is a no-op: topics are created on first write.
func (k *Kafka) DeclareExchange(context.Context, string) error { return nil }

func (k *Kafka) DeclareQueue(_ context.Context, spec QueueSpec) error {
	k.mu.Lock()
	defer k.mu.Unlock()
	if q, ok := k.queues[spec.Name]; ok {
		q.spec = spec
		return nil
	}
	k.queues[spec.Name] = &kafkaQueue{spec: spec, reader: k.newReader(spec.Exchange, spec.Name)}
	return nil
}

func (k *Kafka) Publish(ctx context.Context, exchange, routingKey, messageID string, payload []byte) error {
	err := k.writer.WriteMessages(ctx, kafka.Message{
		Topic: exchange,
		Key:   []byte(routingKey),
		Value: payload,
		Headers: []kafka.Header{
			{Key: headerType, Value: []byte(routingKey)},
			{Key: headerMessageID, Value: []byte(messageID)},
		},
	})
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return unavailable("kafka write "+exchange, err)
	}
	return nil
}

// TryReceive waits up to ReceiveWait for a message matching the queue bindings.
func (k *Kafka) TryReceive(ctx context.Context, queue string) (*Delivery, error) {
	k.mu.Lock()
	q, ok := k.queues[queue]
	k.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("queue %q not declared", queue)
	}

	fetchCtx, cancel := context.WithTimeout(ctx, k.opts.ReceiveWait)
	defer cancel()

	for {
		m, err := q.reader.FetchMessage(fetchCtx)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			if errors.Is(err, context.DeadlineExceeded) {
				return nil, nil
			}
			return nil, unavailable("kafka fetch "+queue, err)
		}

		key := header(m, headerType)
		if key == "" {
			key = string(m.Key)
		}
		if !q.spec.Matches(key) {
			if err := q.reader.CommitMessages(ctx, m); err != nil {
				return nil, unavailable("kafka commit "+queue, err)
			}
			continue
		}

		return NewDelivery(header(m, headerMessageID), key, m.Value,
			func() error { return k.commit(q, m) },
			func() error { return k.deadLetter(q, m) },
		), nil
	}
}

func (k *Kafka) commit(q *kafkaQueue, m kafka.Message) error {
	if err := q.reader.CommitMessages(context.Background(), m); err != nil {
		return unavailable("kafka commit "+q.spec.Name, err)
	}
	return nil
}

// deadLetter copies the message to <queue>.dlq and commits it on the source topic.
func (k *Kafka) deadLetter(q *kafkaQueue, m kafka.Message) error {
	if q.spec.DeadLetter {
		ctx, cancel := context.WithTimeout(context.Background(), k.opts.WriteTimeout)
		defer cancel()
		err := k.writer.WriteMessages(ctx, kafka.Message{
			Topic:   DeadLetterQueue(q.spec.Name),
			Key:     m.Key,
			Value:   m.Value,
			Headers: m.Headers,
		})
		if err != nil {
			return unavailable("kafka dead-letter "+q.spec.Name, err)
		}
	}
	return k.commit(q, m)
}

func (k *Kafka) Close() error {
	k.mu.Lock()
	defer k.mu.Unlock()
	var err error
	for name, q := range k.queues {
		err = errors.Join(err, q.reader.Close())
		delete(k.queues, name)
	}
	return errors.Join(err, k.writer.Close())
}

func header(m kafka.Message, key string) string {
	for _, h := range m.Headers {
		if h.Key == key {
			return string(h.Value)
		}
	}
	return ""
}
