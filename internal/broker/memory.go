package broker

import (
	"context"
	"fmt"
	"sync"
)

// Message is a published message as seen by the in-memory transport.
type Message struct {
	Exchange   string
	RoutingKey string
	MessageID  string
	Body       []byte
}

// Memory is an in-process Transport with topic routing and dead-lettering. It backs tests
// and single-process runs.
type Memory struct {
	mu        sync.Mutex
	exchanges map[string]bool
	queues    map[string]*memQueue
	published []Message
	down      bool
	inflight  int
}

type memQueue struct {
	spec QueueSpec
	msgs []Message
}

var _ Transport = (*Memory)(nil)

func NewMemory() *Memory {
	return &Memory{exchanges: map[string]bool{}, queues: map[string]*memQueue{}}
}

// SetDown makes every call fail with ErrUnavailable until cleared.
func (m *Memory) SetDown(down bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.down = down
}

// Connector returns a Connector handing out this transport.
func (m *Memory) Connector() Connector {
	return func(context.Context) (Transport, error) {
		m.mu.Lock()
		defer m.mu.Unlock()
		if m.down {
			return nil, fmt.Errorf("%w: memory transport down", ErrUnavailable)
		}
		return m, nil
	}
}

func (m *Memory) check() error {
	if m.down {
		return fmt.Errorf("%w: memory transport down", ErrUnavailable)
	}
	return nil
}

func (m *Memory) DeclareExchange(_ context.Context, name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.check(); err != nil {
		return err
	}
	m.exchanges[name] = true
	return nil
}

func (m *Memory) DeclareQueue(_ context.Context, spec QueueSpec) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.check(); err != nil {
		return err
	}
	if q, ok := m.queues[spec.Name]; ok {
		q.spec = spec
	} else {
		m.queues[spec.Name] = &memQueue{spec: spec}
	}
	if spec.DeadLetter {
		dlq := DeadLetterQueue(spec.Name)
		if _, ok := m.queues[dlq]; !ok {
			m.queues[dlq] = &memQueue{spec: QueueSpec{Name: dlq}}
		}
	}
	return nil
}

// Publish routes the message to every queue on exchange whose bindings match. Messages
// published before a queue is declared are not delivered to it.
func (m *Memory) Publish(_ context.Context, exchange, routingKey, messageID string, payload []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.check(); err != nil {
		return err
	}
	if !m.exchanges[exchange] {
		return fmt.Errorf("%w: exchange %q not declared", ErrUnavailable, exchange)
	}
	msg := Message{Exchange: exchange, RoutingKey: routingKey, MessageID: messageID, Body: append([]byte(nil), payload...)}
	m.published = append(m.published, msg)
	for _, q := range m.queues {
		if q.spec.Exchange == exchange && q.spec.Matches(routingKey) {
			q.msgs = append(q.msgs, msg)
		}
	}
	return nil
}

func (m *Memory) TryReceive(_ context.Context, queue string) (*Delivery, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.check(); err != nil {
		return nil, err
	}
	q, ok := m.queues[queue]
	if !ok {
		return nil, fmt.Errorf("queue %q not declared", queue)
	}
	if len(q.msgs) == 0 {
		return nil, nil
	}
	msg := q.msgs[0]
	q.msgs = q.msgs[1:]
	m.inflight++

	var once sync.Once
	settle := func(deadLetter bool) error {
		once.Do(func() {
			m.mu.Lock()
			defer m.mu.Unlock()
			m.inflight--
			if deadLetter && q.spec.DeadLetter {
				if dlq, ok := m.queues[DeadLetterQueue(queue)]; ok {
					dlq.msgs = append(dlq.msgs, msg)
				}
			}
		})
		return nil
	}
	return NewDelivery(msg.MessageID, msg.RoutingKey, msg.Body,
		func() error { return settle(false) },
		func() error { return settle(true) },
	), nil
}

// Close is a no-op; the memory transport outlives its handles.
func (m *Memory) Close() error { return nil }

// Published returns every message accepted by Publish.
func (m *Memory) Published() []Message {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Message(nil), m.published...)
}

// Depth returns the number of ready messages in queue.
func (m *Memory) Depth(queue string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	if q, ok := m.queues[queue]; ok {
		return len(q.msgs)
	}
	return 0
}

// Inflight returns the number of received but unsettled deliveries.
func (m *Memory) Inflight() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.inflight
}
