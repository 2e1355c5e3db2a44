// Package groups drives the family group-chat lifecycle on the core side.
package groups

import (
	"context"
	"fmt"
	"time"

	"github.com/jmehdipour/retreat-sync/internal/channel"
	"github.com/jmehdipour/retreat-sync/internal/config"
	"github.com/jmehdipour/retreat-sync/internal/errs"
	"github.com/jmehdipour/retreat-sync/internal/logger"
	"github.com/jmehdipour/retreat-sync/internal/model"
	"github.com/jmehdipour/retreat-sync/internal/repository"
	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"
)

// FamiliesRepository is the part of the families table the lifecycle touches.
type FamiliesRepository interface {
	Load(ctx context.Context, q sqlx.QueryerContext, retreatID int64) ([]model.Family, error)
	GetForUpdate(ctx context.Context, tx *sqlx.Tx, familyID int64) (model.Family, error)
	SaveGroup(ctx context.Context, tx *sqlx.Tx, familyID int64, g model.GroupLifecycle) error
}

type Service struct {
	tx       repository.TxRunner
	versions repository.VersionRepository
	families FamiliesRepository
	outbox   repository.OutboxRepository
	log      *zap.Logger
	now      func() time.Time
}

func New(tx repository.TxRunner, versions repository.VersionRepository, families FamiliesRepository, outbox repository.OutboxRepository, log *zap.Logger) *Service {
	return &Service{
		tx:       tx,
		versions: versions,
		families: families,
		outbox:   outbox,
		log:      logger.OrGlobal(log, "groups"),
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// TriggerCreation requests a group for every family of the retreat that has none or whose
// last attempt failed. The families collection must be locked first so membership is final.
func (s *Service) TriggerCreation(ctx context.Context, retreatID int64, ch channel.Kind) (model.TriggerResult, error) {
	res := model.TriggerResult{AlreadyInProgress: []int64{}}
	if !ch.Valid() {
		return res, errs.NewValidation(fmt.Sprintf("unsupported channel %q", ch))
	}

	err := s.tx.WithTx(ctx, func(tx *sqlx.Tx) error {
		st, err := s.versions.ForUpdate(ctx, tx, retreatID, model.KindFamilies)
		if err != nil {
			return err
		}
		res.Version = st.Version
		if !st.Locked {
			return errs.NewLocked("families collection must be locked before creating groups")
		}

		families, err := s.families.Load(ctx, tx, retreatID)
		if err != nil {
			return err
		}
		for _, f := range families {
			if !f.Status.CanTransition(model.GroupCreating) {
				res.AlreadyInProgress = append(res.AlreadyInProgress, f.ID)
				continue
			}

			g := f.GroupLifecycle
			g.Status = model.GroupCreating
			g.Version++
			g.Channel = ptr(ch.String())
			g.LastError = nil
			if err := s.families.SaveGroup(ctx, tx, f.ID, g); err != nil {
				return err
			}

			msg, err := model.NewOutboxMessage(model.EventGroupCreateRequested, config.ServiceCore, "", model.GroupCreateRequested{
				RetreatID: retreatID,
				FamilyID:  f.ID,
				Name:      f.Name,
				Channel:   ch.String(),
				Members:   f.Members,
			})
			if err != nil {
				return err
			}
			if err := s.outbox.Append(ctx, tx, msg); err != nil {
				return err
			}
			res.Requested++
		}
		return nil
	})
	if err != nil {
		return res, err
	}

	s.log.Info("group creation triggered",
		zap.Int64("retreat_id", retreatID),
		zap.String("channel", ch.String()),
		zap.Int("requested", res.Requested),
		zap.Int("in_progress", len(res.AlreadyInProgress)))
	return res, nil
}

// ConfirmCreated applies a group created by the notification service. Redeliveries of the
// same confirmation are no-ops; a different group on an active family replaces the stored one.
func (s *Service) ConfirmCreated(ctx context.Context, p model.GroupCreated) error {
	if err := p.Validate(); err != nil {
		return err
	}

	return s.tx.WithTx(ctx, func(tx *sqlx.Tx) error {
		f, err := s.families.GetForUpdate(ctx, tx, p.FamilyID)
		if err != nil {
			return err
		}
		g := f.GroupLifecycle

		if g.Status == model.GroupActive && g.Matches(p.ExternalID, p.Link) {
			s.log.Debug("group confirmation already applied", zap.Int64("family_id", f.ID))
			return nil
		}
		if !g.Status.CanTransition(model.GroupActive) {
			return fmt.Errorf("%w: family %d is %s, cannot become active", errs.ErrInvalidTransition, f.ID, g.Status)
		}

		correction := g.Status == model.GroupActive
		now := s.now()
		g.Status = model.GroupActive
		g.Version++
		g.Link = ptr(p.Link)
		g.ExternalID = ptr(p.ExternalID)
		if p.Channel != "" {
			g.Channel = ptr(p.Channel)
		}
		if g.CreatedAt == nil || correction {
			g.CreatedAt = &now
		}
		g.LastError = nil
		if err := s.families.SaveGroup(ctx, tx, f.ID, g); err != nil {
			return err
		}

		s.log.Info("family group active",
			zap.Int64("family_id", f.ID),
			zap.String("external_id", p.ExternalID),
			zap.Bool("correction", correction),
			zap.Int64("group_version", g.Version))
		return nil
	})
}

// MarkFailed records a failed provisioning so the family can be triggered again. Only a
// family that is still creating fails; an active group ignores the failure.
func (s *Service) MarkFailed(ctx context.Context, p model.GroupFailedPayload) error {
	if p.FamilyID <= 0 {
		return fmt.Errorf("%w: familyId is required", model.ErrMalformedEnvelope)
	}

	return s.tx.WithTx(ctx, func(tx *sqlx.Tx) error {
		f, err := s.families.GetForUpdate(ctx, tx, p.FamilyID)
		if err != nil {
			return err
		}
		g := f.GroupLifecycle
		switch g.Status {
		case model.GroupFailed:
			return nil
		case model.GroupActive:
			// failure of an earlier attempt delivered after a later one succeeded
			s.log.Info("ignoring stale group failure",
				zap.Int64("family_id", f.ID),
				zap.String("reason", p.Reason),
				zap.Int64("group_version", g.Version))
			return nil
		}
		if !g.Status.CanTransition(model.GroupFailed) {
			return fmt.Errorf("%w: family %d is %s, cannot fail", errs.ErrInvalidTransition, f.ID, g.Status)
		}

		g.Status = model.GroupFailed
		g.Version++
		g.LastError = ptr(p.Reason)
		if err := s.families.SaveGroup(ctx, tx, f.ID, g); err != nil {
			return err
		}
		s.log.Warn("family group failed", zap.Int64("family_id", f.ID), zap.String("reason", p.Reason))
		return nil
	})
}

// ResendNotification asks the notification service to send the group link again. Only
// LastNotifiedAt changes; status and group version stay as they are.
func (s *Service) ResendNotification(ctx context.Context, retreatID, familyID int64) (model.GroupLifecycle, error) {
	var out model.GroupLifecycle

	err := s.tx.WithTx(ctx, func(tx *sqlx.Tx) error {
		f, err := s.families.GetForUpdate(ctx, tx, familyID)
		if err != nil {
			return err
		}
		if f.RetreatID != retreatID {
			return errs.NewNotFound(fmt.Sprintf("family %d not found", familyID))
		}
		if f.Status != model.GroupActive || f.Link == nil {
			return errs.NewConflict(fmt.Sprintf("family %d group is %s, not active", familyID, f.Status))
		}

		now := s.now()
		g := f.GroupLifecycle
		g.LastNotifiedAt = &now
		if err := s.families.SaveGroup(ctx, tx, f.ID, g); err != nil {
			return err
		}

		msg, err := model.NewOutboxMessage(model.EventGroupResendRequested, config.ServiceCore, "", model.GroupResendRequested{
			RetreatID:   f.RetreatID,
			FamilyID:    f.ID,
			Name:        f.Name,
			Channel:     deref(g.Channel),
			Link:        *g.Link,
			Members:     f.Members,
			RequestedAt: now,
		})
		if err != nil {
			return err
		}
		if err := s.outbox.Append(ctx, tx, msg); err != nil {
			return err
		}
		out = g
		return nil
	})
	return out, err
}

func ptr[T any](v T) *T { return &v }

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
