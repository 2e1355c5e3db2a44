package consumer

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/jmehdipour/retreat-sync/internal/broker"
	"github.com/jmehdipour/retreat-sync/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const exchange = "retreat.events"

var spec = broker.QueueSpec{
	Name:       "core.family.group.created",
	Exchange:   exchange,
	Bindings:   []string{model.EventGroupCreated},
	DeadLetter: true,
}

type recorder struct {
	mu   sync.Mutex
	seen []model.Envelope
	err  error
}

func (r *recorder) Handle(_ context.Context, env model.Envelope) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.seen = append(r.seen, env)
	return r.err
}

func (r *recorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.seen)
}

func setup(t *testing.T) *broker.Memory {
	t.Helper()
	b := broker.NewMemory()
	require.NoError(t, b.DeclareExchange(context.Background(), exchange))
	require.NoError(t, b.DeclareQueue(context.Background(), spec))
	return b
}

func publish(t *testing.T, b *broker.Memory, body []byte) {
	t.Helper()
	require.NoError(t, b.Publish(context.Background(), exchange, model.EventGroupCreated, "m", body))
}

func envelope(t *testing.T) []byte {
	t.Helper()
	b, err := json.Marshal(model.Envelope{ID: "01J", Type: model.EventGroupCreated, Source: "notification", TraceID: "tr", Data: json.RawMessage(`{"familyId":1}`)})
	require.NoError(t, err)
	return b
}

func start(t *testing.T, l *Loop) (cancel func()) {
	t.Helper()
	ctx, stop := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		_ = l.Run(ctx)
		close(done)
	}()
	return func() {
		stop()
		select {
		case <-done:
		case <-time.After(2 * time.Second):
			t.Fatal("loop did not stop")
		}
	}
}

func fastConfig() Config {
	return Config{Queue: spec, EmptyWait: 5 * time.Millisecond, Backoff: 20 * time.Millisecond, HandlerTimeout: time.Second}
}

func TestLoopAcksHandledMessage(t *testing.T) {
	b := setup(t)
	h := &recorder{}
	l := NewLoop(fastConfig(), b.Connector(), h, nil)
	stop := start(t, l)
	defer stop()

	publish(t, b, envelope(t))

	require.Eventually(t, func() bool { return h.count() == 1 }, time.Second, 5*time.Millisecond)
	require.Eventually(t, func() bool { return b.Inflight() == 0 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, StatePolling, l.State())
	assert.Equal(t, "tr", h.seen[0].TraceID)
	assert.Zero(t, b.Depth(broker.DeadLetterQueue(spec.Name)))
}

func TestLoopDropsUndecodableMessage(t *testing.T) {
	b := setup(t)
	h := &recorder{}
	stop := start(t, NewLoop(fastConfig(), b.Connector(), h, nil))
	defer stop()

	publish(t, b, []byte(`{"type":`))
	publish(t, b, []byte(`{"type":"family.group.created.v1","data":null}`))

	require.Eventually(t, func() bool { return b.Depth(spec.Name) == 0 && b.Inflight() == 0 }, time.Second, 5*time.Millisecond)
	assert.Zero(t, h.count())
	assert.Zero(t, b.Depth(broker.DeadLetterQueue(spec.Name)))
}

func TestLoopMalformedHandlerResultIsAcked(t *testing.T) {
	b := setup(t)
	h := &recorder{err: Malformed(errors.New("familyId missing"))}
	stop := start(t, NewLoop(fastConfig(), b.Connector(), h, nil))
	defer stop()

	publish(t, b, envelope(t))

	require.Eventually(t, func() bool { return h.count() == 1 && b.Inflight() == 0 }, time.Second, 5*time.Millisecond)
	assert.Zero(t, b.Depth(broker.DeadLetterQueue(spec.Name)))
}

func TestLoopDeadLettersHandlerFailure(t *testing.T) {
	b := setup(t)
	h := &recorder{err: errors.New("family 1 not found")}
	stop := start(t, NewLoop(fastConfig(), b.Connector(), h, nil))
	defer stop()

	publish(t, b, envelope(t))

	require.Eventually(t, func() bool { return b.Depth(broker.DeadLetterQueue(spec.Name)) == 1 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, 1, h.count(), "no requeue")
}

func TestLoopBacksOffAndReconnects(t *testing.T) {
	b := setup(t)
	b.SetDown(true)
	h := &recorder{}
	l := NewLoop(fastConfig(), b.Connector(), h, nil)
	stop := start(t, l)
	defer stop()

	require.Eventually(t, func() bool { return l.State() == StateBackoff }, time.Second, time.Millisecond)

	b.SetDown(false)
	require.Eventually(t, func() bool { return l.State() == StatePolling }, time.Second, time.Millisecond)

	publish(t, b, envelope(t))
	require.Eventually(t, func() bool { return h.count() == 1 }, time.Second, 5*time.Millisecond)
}

func TestLoopHandlerGetsDeadline(t *testing.T) {
	b := setup(t)
	var deadline time.Time
	var mu sync.Mutex
	h := HandlerFunc(func(ctx context.Context, _ model.Envelope) error {
		mu.Lock()
		defer mu.Unlock()
		deadline, _ = ctx.Deadline()
		return nil
	})
	stop := start(t, NewLoop(fastConfig(), b.Connector(), h, nil))
	defer stop()

	publish(t, b, envelope(t))
	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return !deadline.IsZero()
	}, time.Second, 5*time.Millisecond)
}

func TestGroupStopsAllLoops(t *testing.T) {
	b := setup(t)
	other := spec
	other.Name = "core.family.group.failed"
	other.Bindings = []string{model.EventGroupFailed}

	var g Group
	g.Add(
		NewLoop(fastConfig(), b.Connector(), &recorder{}, nil),
		NewLoop(Config{Queue: other, EmptyWait: 5 * time.Millisecond}, b.Connector(), &recorder{}, nil),
	)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		_ = g.Run(ctx)
		close(done)
	}()

	require.Eventually(t, func() bool {
		for _, l := range g.Loops() {
			if l.State() != StatePolling {
				return false
			}
		}
		return true
	}, time.Second, time.Millisecond)

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("group did not stop")
	}
	for _, l := range g.Loops() {
		assert.Equal(t, StateStopped, l.State())
	}
}
