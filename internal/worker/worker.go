// Package worker assembles the background processes of a service role: the outbox dispatcher
// and one consumer loop per queue of the role's topology.
package worker

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/jmehdipour/retreat-sync/internal/broker"
	"github.com/jmehdipour/retreat-sync/internal/config"
	"github.com/jmehdipour/retreat-sync/internal/consumer"
	"github.com/jmehdipour/retreat-sync/internal/dispatcher"
	"github.com/jmehdipour/retreat-sync/internal/logger"
	"github.com/jmehdipour/retreat-sync/internal/repository"
	"go.uber.org/zap"
)

// Handlers maps queue names to the handler consuming them.
type Handlers map[string]consumer.Handler

// NewDispatcher relays the role's outbox rows to the configured exchange.
func NewDispatcher(cfg config.Config, outbox repository.OutboxRepository, connect broker.Connector, log *zap.Logger) *dispatcher.Dispatcher {
	return dispatcher.New(outbox, connect, dispatcher.Config{
		Exchange:  cfg.Broker.Exchange,
		Interval:  cfg.Outbox.Interval,
		BatchSize: cfg.Outbox.BatchSize,
	}, log)
}

// NewConsumers builds one loop per queue of the role. Every queue needs a handler.
func NewConsumers(cfg config.Config, connect broker.Connector, handlers Handlers, log *zap.Logger) (*consumer.Group, error) {
	routes := Routes(cfg.Service.Name)
	if len(routes) == 0 {
		return nil, fmt.Errorf("no queues for service %q", cfg.Service.Name)
	}

	g := &consumer.Group{}
	for _, r := range routes {
		h, ok := handlers[r.Queue]
		if !ok {
			return nil, fmt.Errorf("no handler for queue %s", r.Queue)
		}
		g.Add(consumer.NewLoop(consumer.Config{
			Queue: broker.QueueSpec{
				Name:       r.Queue,
				Exchange:   cfg.Broker.Exchange,
				Bindings:   r.Bindings,
				DeadLetter: true,
			},
			EmptyWait:      cfg.Consumer.EmptyWait,
			Backoff:        cfg.Consumer.Backoff,
			HandlerTimeout: cfg.Consumer.HandlerTimeout,
		}, connect, h, log))
	}
	return g, nil
}

// Runner runs whichever parts are set until ctx is cancelled.
type Runner struct {
	Dispatcher *dispatcher.Dispatcher
	Consumers  *consumer.Group
	Log        *zap.Logger
}

func (r *Runner) Run(ctx context.Context) error {
	log := logger.OrGlobal(r.Log, "worker")
	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		errs []error
	)
	run := func(name string, fn func(context.Context) error) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := fn(ctx); err != nil {
				log.Error("worker part stopped", zap.String("part", name), zap.Error(err))
				mu.Lock()
				errs = append(errs, fmt.Errorf("%s: %w", name, err))
				mu.Unlock()
			}
		}()
	}

	if r.Dispatcher != nil {
		run("dispatcher", r.Dispatcher.Run)
	}
	if r.Consumers != nil {
		log.Info("starting consumers", zap.Int("loops", len(r.Consumers.Loops())))
		run("consumers", r.Consumers.Run)
	}
	wg.Wait()
	return errors.Join(errs...)
}
