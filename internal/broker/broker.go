// Package broker abstracts the durable topic exchange the services talk through.
package broker

import (
	"context"
	"errors"
	"strings"
)

// ErrUnavailable marks connection-level failures. Callers close the transport and reconnect.
var ErrUnavailable = errors.New("broker unavailable")

// DeadLetterSuffix is appended to a queue name to form its dead-letter queue.
const DeadLetterSuffix = ".dlq"

func DeadLetterQueue(queue string) string { return queue + DeadLetterSuffix }

// QueueSpec declares a durable queue bound to an exchange.
type QueueSpec struct {
	Name     string
	Exchange string
	// Bindings are exact event types or topic patterns using * and #.
	Bindings   []string
	DeadLetter bool
}

// Matches reports whether routingKey matches any binding.
func (q QueueSpec) Matches(routingKey string) bool {
	for _, b := range q.Bindings {
		if MatchRoutingKey(b, routingKey) {
			return true
		}
	}
	return false
}

// Delivery is one message pulled from a queue. Exactly one of Ack or Reject must be called.
type Delivery struct {
	MessageID  string
	RoutingKey string
	Body       []byte

	ack    func() error
	reject func() error
}

func NewDelivery(id, routingKey string, body []byte, ack, reject func() error) *Delivery {
	return &Delivery{MessageID: id, RoutingKey: routingKey, Body: body, ack: ack, reject: reject}
}

func (d *Delivery) Ack() error { return d.ack() }

// Reject drops the message without requeue. Queues declared with DeadLetter route it to the DLQ.
func (d *Delivery) Reject() error { return d.reject() }

type Transport interface {
	DeclareExchange(ctx context.Context, name string) error
	DeclareQueue(ctx context.Context, spec QueueSpec) error
	Publish(ctx context.Context, exchange, routingKey, messageID string, payload []byte) error
	// TryReceive returns nil, nil when the queue is empty.
	TryReceive(ctx context.Context, queue string) (*Delivery, error)
	Close() error
}

// Connector dials a fresh transport.
type Connector func(ctx context.Context) (Transport, error)

// MatchRoutingKey implements topic exchange matching on dot-separated words:
// * matches exactly one word, # matches zero or more.
func MatchRoutingKey(pattern, key string) bool {
	return matchWords(strings.Split(pattern, "."), strings.Split(key, "."))
}

func matchWords(p, k []string) bool {
	for len(p) > 0 {
		switch p[0] {
		case "#":
			if len(p) == 1 {
				return true
			}
			for i := 0; i <= len(k); i++ {
				if matchWords(p[1:], k[i:]) {
					return true
				}
			}
			return false
		case "*":
			if len(k) == 0 {
				return false
			}
		default:
			if len(k) == 0 || p[0] != k[0] {
				return false
			}
		}
		p, k = p[1:], k[1:]
	}
	return len(k) == 0
}
