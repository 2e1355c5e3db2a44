// Package consumer runs pull-based consumer loops: one goroutine per queue, one message at a time.
package consumer

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jmehdipour/retreat-sync/internal/broker"
	"github.com/jmehdipour/retreat-sync/internal/logger"
	"github.com/jmehdipour/retreat-sync/internal/metrics"
	"github.com/jmehdipour/retreat-sync/internal/model"
	"go.uber.org/zap"
)

type State int32

const (
	StateConnecting State = iota
	StateBound
	StatePolling
	StateBackoff
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateBound:
		return "bound"
	case StatePolling:
		return "polling"
	case StateBackoff:
		return "backoff"
	case StateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// Handler processes one decoded envelope. Returning an error wrapped by Malformed drops the
// message; any other error dead-letters it.
type Handler interface {
	Handle(ctx context.Context, env model.Envelope) error
}

type HandlerFunc func(ctx context.Context, env model.Envelope) error

func (f HandlerFunc) Handle(ctx context.Context, env model.Envelope) error { return f(ctx, env) }

// Malformed marks err as a permanently unprocessable message.
func Malformed(err error) error {
	if errors.Is(err, model.ErrMalformedEnvelope) {
		return err
	}
	return fmt.Errorf("%w: %w", model.ErrMalformedEnvelope, err)
}

func IsMalformed(err error) bool { return errors.Is(err, model.ErrMalformedEnvelope) }

type Config struct {
	Queue          broker.QueueSpec
	EmptyWait      time.Duration // default 400ms
	Backoff        time.Duration // default 5s
	HandlerTimeout time.Duration // default 30s
}

type Loop struct {
	cfg     Config
	connect broker.Connector
	handler Handler
	log     *zap.Logger
	state   atomic.Int32
}

func NewLoop(cfg Config, connect broker.Connector, h Handler, log *zap.Logger) *Loop {
	if cfg.EmptyWait <= 0 {
		cfg.EmptyWait = 400 * time.Millisecond
	}
	if cfg.Backoff <= 0 {
		cfg.Backoff = 5 * time.Second
	}
	if cfg.HandlerTimeout <= 0 {
		cfg.HandlerTimeout = 30 * time.Second
	}
	l := &Loop{
		cfg:     cfg,
		connect: connect,
		handler: h,
		log:     logger.OrGlobal(log, "consumer").With(zap.String("queue", cfg.Queue.Name)),
	}
	l.setState(StateConnecting)
	return l
}

func (l *Loop) Queue() string { return l.cfg.Queue.Name }

func (l *Loop) State() State { return State(l.state.Load()) }

func (l *Loop) setState(s State) {
	if State(l.state.Swap(int32(s))) != s {
		l.log.Debug("consumer state", zap.String("state", s.String()))
	}
	metrics.ConsumerState.WithLabelValues(l.cfg.Queue.Name).Set(float64(s))
}

// Run connects, binds and polls until ctx is cancelled. Broker failures close the transport
// and reconnect after Backoff.
func (l *Loop) Run(ctx context.Context) error {
	defer l.setState(StateStopped)

	for ctx.Err() == nil {
		l.setState(StateConnecting)
		err := l.session(ctx)
		if ctx.Err() != nil {
			break
		}

		l.setState(StateBackoff)
		if errors.Is(err, broker.ErrUnavailable) {
			l.log.Warn("broker unavailable, backing off", zap.Duration("backoff", l.cfg.Backoff), zap.Error(err))
		} else {
			l.log.Error("consumer session failed, backing off", zap.Duration("backoff", l.cfg.Backoff), zap.Error(err))
		}
		sleep(ctx, l.cfg.Backoff)
	}

	l.log.Info("consumer stopped")
	return nil
}

func (l *Loop) session(ctx context.Context) error {
	t, err := l.connect(ctx)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := t.Close(); cerr != nil {
			l.log.Debug("close transport", zap.Error(cerr))
		}
	}()

	if err := t.DeclareExchange(ctx, l.cfg.Queue.Exchange); err != nil {
		return err
	}
	if err := t.DeclareQueue(ctx, l.cfg.Queue); err != nil {
		return err
	}
	l.setState(StateBound)
	l.log.Info("consumer bound", zap.Strings("bindings", l.cfg.Queue.Bindings))

	l.setState(StatePolling)
	for {
		if ctx.Err() != nil {
			return nil
		}
		d, err := t.TryReceive(ctx, l.cfg.Queue.Name)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
		if d == nil {
			sleep(ctx, l.cfg.EmptyWait)
			continue
		}
		if err := l.handle(ctx, d); err != nil {
			return err
		}
	}
}

// handle settles d. Only a failed ack or reject is returned.
func (l *Loop) handle(ctx context.Context, d *broker.Delivery) error {
	env, err := model.DecodeEnvelope(d.Body)
	if err != nil {
		l.log.Warn("dropping malformed message", zap.String("routing_key", d.RoutingKey), zap.String("message_id", d.MessageID), zap.Error(err))
		metrics.ConsumerHandled.WithLabelValues(l.cfg.Queue.Name, "malformed").Inc()
		return d.Ack()
	}

	// a started handler finishes even when the loop is stopping
	hctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), l.cfg.HandlerTimeout)
	err = l.handler.Handle(hctx, env)
	cancel()

	fields := []zap.Field{zap.String("type", env.Type), zap.String("id", env.ID), zap.String("trace_id", env.TraceID)}
	switch {
	case err == nil:
		metrics.ConsumerHandled.WithLabelValues(l.cfg.Queue.Name, "acked").Inc()
		return d.Ack()
	case IsMalformed(err):
		l.log.Warn("dropping unprocessable message", append(fields, zap.Error(err))...)
		metrics.ConsumerHandled.WithLabelValues(l.cfg.Queue.Name, "malformed").Inc()
		return d.Ack()
	default:
		l.log.Error("handler failed, dead-lettering", append(fields, zap.Error(err))...)
		metrics.ConsumerHandled.WithLabelValues(l.cfg.Queue.Name, "rejected").Inc()
		return d.Reject()
	}
}

func sleep(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}

// Group runs several loops and blocks until all have stopped.
type Group struct {
	loops []*Loop
}

func (g *Group) Add(l ...*Loop) { g.loops = append(g.loops, l...) }

func (g *Group) Loops() []*Loop { return g.loops }

func (g *Group) Run(ctx context.Context) error {
	var wg sync.WaitGroup
	for _, l := range g.loops {
		wg.Add(1)
		go func(l *Loop) {
			defer wg.Done()
			_ = l.Run(ctx)
		}(l)
	}
	wg.Wait()
	return nil
}
