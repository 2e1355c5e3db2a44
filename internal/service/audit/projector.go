// Package audit projects every consumed envelope into the ClickHouse event log.
package audit

import (
	"context"
	"errors"
	"time"

	"github.com/jmehdipour/retreat-sync/internal/consumer"
	"github.com/jmehdipour/retreat-sync/internal/logger"
	"github.com/jmehdipour/retreat-sync/internal/model"
	"github.com/jmehdipour/retreat-sync/internal/repository"
	"go.uber.org/zap"
)

var errMissingID = errors.New("envelope has no id")

type Projector struct {
	repo  repository.EventsAuditRepository
	queue string
	log   *zap.Logger
	now   func() time.Time
}

func NewProjector(repo repository.EventsAuditRepository, queue string, log *zap.Logger) *Projector {
	return &Projector{
		repo:  repo,
		queue: queue,
		log:   logger.OrGlobal(log, "audit"),
		now:   func() time.Time { return time.Now().UTC() },
	}
}

// Handle stores env. Rows are keyed by the envelope id, so redeliveries collapse on merge.
func (p *Projector) Handle(ctx context.Context, env model.Envelope) error {
	if env.ID == "" {
		return consumer.Malformed(errMissingID)
	}
	err := p.repo.Insert(ctx, model.EventRecord{
		ID:         env.ID,
		Type:       env.Type,
		Source:     env.Source,
		TraceID:    env.TraceID,
		Data:       string(env.Data),
		Queue:      p.queue,
		ReceivedAt: p.now(),
	})
	if err != nil {
		return err
	}
	p.log.Debug("event projected", zap.String("type", env.Type), zap.String("id", env.ID))
	return nil
}

var _ consumer.Handler = (*Projector)(nil)
