// Package notification provisions family groups and delivers outbound messages for the
// notification service role.
package notification

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jmehdipour/retreat-sync/internal/channel"
	"github.com/jmehdipour/retreat-sync/internal/config"
	"github.com/jmehdipour/retreat-sync/internal/logger"
	"github.com/jmehdipour/retreat-sync/internal/metrics"
	"github.com/jmehdipour/retreat-sync/internal/model"
	"github.com/jmehdipour/retreat-sync/internal/repository"
	"github.com/jmehdipour/retreat-sync/internal/util"
	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"
)

type Options struct {
	// Dedupe is optional. Without it every send goes straight to notification_deliveries.
	Dedupe             Dedupe
	DefaultCountryCode string
	Logger             *zap.Logger
}

type Service struct {
	tx         repository.TxRunner
	provisions repository.ProvisionsRepository
	deliveries repository.DeliveriesRepository
	outbox     repository.OutboxRepository
	sender     channel.Sender
	groups     channel.GroupProvisioner

	dedupe      Dedupe
	countryCode string
	log         *zap.Logger
}

func New(
	tx repository.TxRunner,
	provisions repository.ProvisionsRepository,
	deliveries repository.DeliveriesRepository,
	outbox repository.OutboxRepository,
	sender channel.Sender,
	groups channel.GroupProvisioner,
	opts Options,
) *Service {
	return &Service{
		tx:          tx,
		provisions:  provisions,
		deliveries:  deliveries,
		outbox:      outbox,
		sender:      sender,
		groups:      groups,
		dedupe:      opts.Dedupe,
		countryCode: opts.DefaultCountryCode,
		log:         logger.OrGlobal(opts.Logger, "notification"),
	}
}

// ProvisionGroup creates the external group for one family, at most once per family. A family
// that already has a group gets the stored one announced again without a provider call.
func (s *Service) ProvisionGroup(ctx context.Context, traceID string, p model.GroupCreateRequested) error {
	if p.FamilyID <= 0 {
		return fmt.Errorf("%w: familyId is required", model.ErrMalformedEnvelope)
	}
	kind := channel.Kind(p.Channel)
	if !kind.Valid() {
		return fmt.Errorf("%w: unsupported channel %q", model.ErrMalformedEnvelope, p.Channel)
	}

	announced := false
	err := s.tx.WithTx(ctx, func(tx *sqlx.Tx) error {
		existing, err := s.provisions.Get(ctx, tx, p.FamilyID)
		if err != nil || existing == nil {
			return err
		}
		announced = true
		s.log.Info("group already provisioned, announcing again", zap.Int64("family_id", p.FamilyID), zap.String("external_id", existing.ExternalID))
		return s.announceCreated(ctx, tx, traceID, *existing)
	})
	if err != nil || announced {
		return err
	}

	g, err := s.groups.CreateGroup(ctx, channel.GroupRequest{
		FamilyID: p.FamilyID,
		Name:     p.Name,
		Channel:  kind,
		Members:  s.groupMembers(p.Members),
	})
	if channel.IsRejected(err) {
		s.log.Warn("group provisioning rejected", zap.Int64("family_id", p.FamilyID), zap.Error(err))
		return s.tx.WithTx(ctx, func(tx *sqlx.Tx) error {
			return s.append(ctx, tx, model.EventGroupFailed, traceID, model.GroupFailedPayload{FamilyID: p.FamilyID, Reason: err.Error()})
		})
	}
	if err != nil {
		return fmt.Errorf("create group for family %d: %w", p.FamilyID, err)
	}

	return s.tx.WithTx(ctx, func(tx *sqlx.Tx) error {
		// a concurrent delivery may have provisioned while the provider call was in flight;
		// the upsert keeps whichever row landed first and the read returns it
		if err := s.provisions.Insert(ctx, tx, model.GroupProvision{
			FamilyID:   p.FamilyID,
			Channel:    kind.String(),
			ExternalID: g.ExternalID,
			Link:       g.Link,
			TraceID:    traceID,
		}); err != nil {
			return err
		}
		winner, err := s.provisions.Get(ctx, tx, p.FamilyID)
		if err != nil {
			return err
		}
		if winner == nil {
			return fmt.Errorf("provision for family %d missing after insert", p.FamilyID)
		}
		if winner.ExternalID != g.ExternalID {
			s.log.Warn("duplicate group created by provider", zap.Int64("family_id", p.FamilyID),
				zap.String("kept", winner.ExternalID), zap.String("orphan", g.ExternalID))
		}
		s.log.Info("group provisioned", zap.Int64("family_id", p.FamilyID), zap.String("external_id", winner.ExternalID))
		return s.announceCreated(ctx, tx, traceID, *winner)
	})
}

func (s *Service) announceCreated(ctx context.Context, tx *sqlx.Tx, traceID string, gp model.GroupProvision) error {
	return s.append(ctx, tx, model.EventGroupCreated, traceID, model.GroupCreated{
		FamilyID:   gp.FamilyID,
		Link:       gp.Link,
		ExternalID: gp.ExternalID,
		Channel:    gp.Channel,
	})
}

func (s *Service) append(ctx context.Context, tx *sqlx.Tx, eventType, traceID string, payload any) error {
	msg, err := model.NewOutboxMessage(eventType, config.ServiceNotification, traceID, payload)
	if err != nil {
		return err
	}
	return s.outbox.Append(ctx, tx, msg)
}

func (s *Service) groupMembers(ms []model.FamilyMember) []channel.GroupMember {
	out := make([]channel.GroupMember, 0, len(ms))
	for _, m := range ms {
		out = append(out, channel.GroupMember{
			Name:  m.Name,
			Phone: util.NormalizePhone(m.Phone, s.countryCode),
			Email: util.NormalizeEmail(m.Email),
		})
	}
	return out
}

// ResendLink sends the group link to every member reachable on the group's channel.
// Recipients already served for this event are skipped, so a redelivery only retries the
// ones that failed.
func (s *Service) ResendLink(ctx context.Context, eventID string, p model.GroupResendRequested) error {
	kind := channel.Kind(p.Channel)
	if !kind.Valid() || p.Link == "" {
		return fmt.Errorf("%w: resend needs a channel and a link", model.ErrMalformedEnvelope)
	}

	var errs []error
	reached := 0
	for _, m := range p.Members {
		to := s.recipient(kind, m)
		if to == "" {
			continue
		}
		reached++
		err := s.deliver(ctx, eventID, channel.Message{
			Channel:   kind,
			Recipient: to,
			Subject:   fmt.Sprintf("%s family group", p.Name),
			Body:      fmt.Sprintf("Hi %s, here is the link to the %s family group: %s", m.Name, p.Name, p.Link),
		})
		if err != nil {
			errs = append(errs, err)
		}
	}
	if reached == 0 {
		s.log.Warn("no member reachable for resend", zap.Int64("family_id", p.FamilyID), zap.String("channel", kind.String()))
	}
	return errors.Join(errs...)
}

func (s *Service) recipient(kind channel.Kind, m model.FamilyMember) string {
	switch kind {
	case channel.Email:
		return util.NormalizeEmail(m.Email)
	case channel.WhatsApp:
		return util.NormalizePhone(m.Phone, s.countryCode)
	}
	return ""
}

// EmailChanged tells both the new and the previous address about an admin email change.
func (s *Service) EmailChanged(ctx context.Context, eventID string, p model.EmailChangedByAdmin) error {
	next := util.NormalizeEmail(p.NewEmail)
	if next == "" {
		return fmt.Errorf("%w: invalid new email %q", model.ErrMalformedEnvelope, p.NewEmail)
	}

	var errs []error
	if err := s.deliver(ctx, eventID, channel.Message{
		Channel:   channel.Email,
		Recipient: next,
		Subject:   "Your retreat email was updated",
		Body:      fmt.Sprintf("Hi %s, this address is now used for your retreat registration.", p.FullName),
	}); err != nil {
		errs = append(errs, err)
	}

	prev := util.NormalizeEmail(p.OldEmail)
	if prev != "" && !strings.EqualFold(prev, next) {
		if err := s.deliver(ctx, eventID, channel.Message{
			Channel:   channel.Email,
			Recipient: prev,
			Subject:   "Your retreat email was changed",
			Body:      fmt.Sprintf("Hi %s, an administrator moved your retreat registration to %s.", p.FullName, next),
		}); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// deliver sends msg once per dedupe key. The Redis claim is released when the send fails so
// the redelivery can try again; notification_deliveries stays authoritative.
func (s *Service) deliver(ctx context.Context, eventID string, msg channel.Message) error {
	key := DedupeKey(eventID, msg.Channel.String(), msg.Recipient)
	msg.DedupeKey = key
	log := s.log.With(zap.String("dedupe_key", key))

	claimed := false
	if s.dedupe != nil {
		ok, err := s.dedupe.Claim(ctx, key)
		switch {
		case err != nil:
			log.Warn("dedupe cache unavailable, using database only", zap.Error(err))
		case !ok:
			metrics.NotificationsSent.WithLabelValues(msg.Channel.String(), "duplicate").Inc()
			log.Debug("duplicate notification skipped by cache")
			return nil
		default:
			claimed = true
		}
	}
	release := func() {
		if !claimed {
			return
		}
		if err := s.dedupe.Release(ctx, key); err != nil {
			log.Warn("release dedupe claim", zap.Error(err))
		}
	}

	seen, err := s.deliveries.Exists(ctx, key)
	if err != nil {
		release()
		return err
	}
	if seen {
		metrics.NotificationsSent.WithLabelValues(msg.Channel.String(), "duplicate").Inc()
		return nil
	}

	res, err := s.sender.Send(ctx, msg)
	if err != nil {
		release()
		metrics.NotificationsSent.WithLabelValues(msg.Channel.String(), "failed").Inc()
		return fmt.Errorf("send %s to %s: %w", msg.Channel, msg.Recipient, err)
	}
	metrics.NotificationsSent.WithLabelValues(msg.Channel.String(), "sent").Inc()

	if _, err := s.deliveries.Record(ctx, model.Delivery{
		DedupeKey:  key,
		EventID:    eventID,
		Channel:    msg.Channel.String(),
		Recipient:  msg.Recipient,
		ProviderID: res.ProviderID,
	}); err != nil {
		// the message is out; failing here would only send it again on redelivery
		log.Error("record delivery", zap.Error(err))
	}
	log.Info("notification sent", zap.String("provider", res.Provider), zap.String("provider_id", res.ProviderID))
	return nil
}
