package notification

import (
	"context"
	"fmt"

	"github.com/jmehdipour/retreat-sync/internal/consumer"
	"github.com/jmehdipour/retreat-sync/internal/model"
)

// ProvisionHandler consumes family.group.create.requested.v1.
func (s *Service) ProvisionHandler() consumer.Handler {
	return consumer.HandlerFunc(func(ctx context.Context, env model.Envelope) error {
		var p model.GroupCreateRequested
		if err := env.DecodeData(&p); err != nil {
			return err
		}
		return s.ProvisionGroup(ctx, env.TraceID, p)
	})
}

// ResendHandler consumes family.group.link.resend.requested.v1.
func (s *Service) ResendHandler() consumer.Handler {
	return consumer.HandlerFunc(func(ctx context.Context, env model.Envelope) error {
		if err := requireID(env); err != nil {
			return err
		}
		var p model.GroupResendRequested
		if err := env.DecodeData(&p); err != nil {
			return err
		}
		return s.ResendLink(ctx, env.ID, p)
	})
}

// EmailChangedHandler consumes user.email.changed.by.admin.v1.
func (s *Service) EmailChangedHandler() consumer.Handler {
	return consumer.HandlerFunc(func(ctx context.Context, env model.Envelope) error {
		if err := requireID(env); err != nil {
			return err
		}
		var p model.EmailChangedByAdmin
		if err := env.DecodeData(&p); err != nil {
			return err
		}
		return s.EmailChanged(ctx, env.ID, p)
	})
}

// sends are deduplicated on the envelope id
func requireID(env model.Envelope) error {
	if env.ID == "" {
		return fmt.Errorf("%w: %s without id", model.ErrMalformedEnvelope, env.Type)
	}
	return nil
}
