package groups

import (
	"context"

	"github.com/jmehdipour/retreat-sync/internal/consumer"
	"github.com/jmehdipour/retreat-sync/internal/model"
)

// CreatedHandler consumes family.group.created.v1.
func (s *Service) CreatedHandler() consumer.Handler {
	return consumer.HandlerFunc(func(ctx context.Context, env model.Envelope) error {
		var p model.GroupCreated
		if err := env.DecodeData(&p); err != nil {
			return err
		}
		return s.ConfirmCreated(ctx, p)
	})
}

// FailedHandler consumes family.group.failed.v1.
func (s *Service) FailedHandler() consumer.Handler {
	return consumer.HandlerFunc(func(ctx context.Context, env model.Envelope) error {
		var p model.GroupFailedPayload
		if err := env.DecodeData(&p); err != nil {
			return err
		}
		return s.MarkFailed(ctx, p)
	})
}
