// Package dispatcher relays committed outbox rows to the broker.
package dispatcher

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jmehdipour/retreat-sync/internal/broker"
	"github.com/jmehdipour/retreat-sync/internal/logger"
	"github.com/jmehdipour/retreat-sync/internal/metrics"
	"github.com/jmehdipour/retreat-sync/internal/model"
	"github.com/jmehdipour/retreat-sync/internal/repository"
	"go.uber.org/zap"
)

type Config struct {
	Exchange  string
	Interval  time.Duration // default 5s
	BatchSize int           // default 50
}

// Dispatcher publishes unprocessed outbox rows oldest first with routing key = event type.
// A failed row is marked and retried on the next cycle without limit. The transport is opened
// lazily and dropped when the broker becomes unavailable.
type Dispatcher struct {
	outbox    repository.OutboxRepository
	connect   broker.Connector
	transport broker.Transport
	cfg       Config
	log       *zap.Logger
	now       func() time.Time
}

// CycleResult counts what one cycle did.
type CycleResult struct {
	Fetched   int
	Published int
	Failed    int
}

func New(outbox repository.OutboxRepository, connect broker.Connector, cfg Config, log *zap.Logger) *Dispatcher {
	if cfg.Interval <= 0 {
		cfg.Interval = 5 * time.Second
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 50
	}
	return &Dispatcher{
		outbox:  outbox,
		connect: connect,
		cfg:     cfg,
		log:     logger.OrGlobal(log, "dispatcher"),
		now:     time.Now,
	}
}

// Run runs a cycle immediately and then every Interval until ctx is done.
func (d *Dispatcher) Run(ctx context.Context) error {
	defer d.release()
	d.log.Info("dispatcher started",
		zap.String("exchange", d.cfg.Exchange),
		zap.Duration("interval", d.cfg.Interval),
		zap.Int("batch_size", d.cfg.BatchSize))

	tick := time.NewTicker(d.cfg.Interval)
	defer tick.Stop()

	for {
		if _, err := d.ProcessOnce(ctx); err != nil && ctx.Err() == nil {
			if errors.Is(err, broker.ErrUnavailable) {
				d.log.Warn("broker unavailable, rows stay pending", zap.Error(err))
			} else {
				d.log.Error("dispatch cycle failed", zap.Error(err))
			}
		}
		select {
		case <-ctx.Done():
			d.log.Info("dispatcher stopped")
			return nil
		case <-tick.C:
		}
	}
}

// ProcessOnce runs one fetch-publish-mark cycle. A failed fetch or connect is returned as an
// error; per-row failures are recorded on the row. An unavailable broker ends the cycle early.
func (d *Dispatcher) ProcessOnce(ctx context.Context) (CycleResult, error) {
	var res CycleResult

	msgs, err := d.outbox.FetchUnprocessed(ctx, d.cfg.BatchSize)
	if err != nil {
		return res, fmt.Errorf("fetch unprocessed: %w", err)
	}
	res.Fetched = len(msgs)
	metrics.OutboxBatchSize.Observe(float64(len(msgs)))
	defer d.observeBacklog(ctx)
	if len(msgs) == 0 {
		return res, nil
	}

	t, err := d.transportFor(ctx)
	if err != nil {
		return res, err
	}

	for _, m := range msgs {
		if ctx.Err() != nil {
			break
		}
		if err := d.publish(ctx, t, m); err != nil {
			res.Failed++
			metrics.OutboxFailed.WithLabelValues(m.Type).Inc()
			d.log.Warn("outbox publish failed",
				zap.String("id", m.ID),
				zap.String("type", m.Type),
				zap.Int("attempts", m.Attempts+1),
				zap.Error(err))
			if merr := d.outbox.MarkFailed(ctx, m.ID, err); merr != nil {
				d.log.Error("mark outbox failed", zap.String("id", m.ID), zap.Error(merr))
			}
			if errors.Is(err, broker.ErrUnavailable) {
				d.release()
				break
			}
			continue
		}

		res.Published++
		metrics.OutboxPublished.WithLabelValues(m.Type).Inc()
		if err := d.outbox.MarkProcessed(ctx, m.ID); err != nil {
			// the row is published again next cycle; consumers dedupe
			d.log.Error("mark outbox processed", zap.String("id", m.ID), zap.Error(err))
		}
	}

	d.log.Debug("dispatch cycle", zap.Int("fetched", res.Fetched), zap.Int("published", res.Published), zap.Int("failed", res.Failed))
	return res, nil
}

// transportFor returns the open transport, connecting and declaring the exchange if needed.
func (d *Dispatcher) transportFor(ctx context.Context) (broker.Transport, error) {
	if d.transport != nil {
		return d.transport, nil
	}
	t, err := d.connect(ctx)
	if err != nil {
		return nil, err
	}
	if err := t.DeclareExchange(ctx, d.cfg.Exchange); err != nil {
		_ = t.Close()
		return nil, fmt.Errorf("declare exchange %s: %w", d.cfg.Exchange, err)
	}
	d.transport = t
	return t, nil
}

// Close drops the transport. Run does this itself on return.
func (d *Dispatcher) Close() { d.release() }

func (d *Dispatcher) release() {
	if d.transport == nil {
		return
	}
	if err := d.transport.Close(); err != nil {
		d.log.Debug("close transport", zap.Error(err))
	}
	d.transport = nil
}

func (d *Dispatcher) publish(ctx context.Context, t broker.Transport, m model.OutboxMessage) error {
	body, err := json.Marshal(m.Envelope())
	if err != nil {
		return fmt.Errorf("encode envelope: %w", err)
	}
	start := d.now()
	err = t.Publish(ctx, d.cfg.Exchange, m.Type, m.ID, body)
	metrics.OutboxPublishDuration.WithLabelValues(m.Type).Observe(d.now().Sub(start).Seconds())
	return err
}

func (d *Dispatcher) observeBacklog(ctx context.Context) {
	st, err := d.outbox.Stats(ctx)
	if err != nil {
		d.log.Warn("outbox stats", zap.Error(err))
		return
	}
	metrics.OutboxPending.Set(float64(st.Pending))
	if st.OldestCreate == nil {
		metrics.OutboxOldestAge.Set(0)
		return
	}
	metrics.OutboxOldestAge.Set(d.now().Sub(*st.OldestCreate).Seconds())
}
