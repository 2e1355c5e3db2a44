// Package retreat exposes the versioned collections of a retreat: families, service spaces,
// tents and the roster.
package retreat

import (
	"context"
	"fmt"
	"strings"

	"github.com/jmehdipour/retreat-sync/internal/aggregate"
	"github.com/jmehdipour/retreat-sync/internal/config"
	"github.com/jmehdipour/retreat-sync/internal/errs"
	"github.com/jmehdipour/retreat-sync/internal/logger"
	"github.com/jmehdipour/retreat-sync/internal/model"
	"github.com/jmehdipour/retreat-sync/internal/repository"
	"github.com/jmehdipour/retreat-sync/internal/util"
	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"
)

// Repositories holds one persistence backend per collection kind.
type Repositories struct {
	Families aggregate.Collection[model.Family]
	Spaces   aggregate.Collection[model.ServiceSpace]
	Tents    aggregate.Collection[model.Tent]
	Roster   aggregate.Collection[model.RosterEntry]
}

type Service struct {
	Families *aggregate.Store[model.Family]
	Spaces   *aggregate.Store[model.ServiceSpace]
	Tents    *aggregate.Store[model.Tent]
	Roster   *aggregate.Store[model.RosterEntry]

	outbox      repository.OutboxRepository
	countryCode string
	log         *zap.Logger
}

type Options struct {
	// DefaultCountryCode prefixes roster phone numbers written in national format.
	DefaultCountryCode string
	Logger             *zap.Logger
}

func New(tx repository.TxRunner, reader sqlx.QueryerContext, versions repository.VersionRepository, repos Repositories, outbox repository.OutboxRepository, opts Options) *Service {
	log := logger.OrGlobal(opts.Logger, "retreat")
	return &Service{
		Families: aggregate.NewStore(tx, reader, versions, repos.Families,
			aggregate.WithValidator[model.Family](validateFamilies),
			aggregate.WithChangeHook[model.Family](replacedHook[model.Family](outbox, model.KindFamilies)),
			aggregate.WithLogger[model.Family](log)),
		Spaces: aggregate.NewStore(tx, reader, versions, repos.Spaces,
			aggregate.WithValidator[model.ServiceSpace](validateSpaces),
			aggregate.WithChangeHook[model.ServiceSpace](replacedHook[model.ServiceSpace](outbox, model.KindSpaces)),
			aggregate.WithLogger[model.ServiceSpace](log)),
		Tents: aggregate.NewStore(tx, reader, versions, repos.Tents,
			aggregate.WithValidator[model.Tent](validateTents),
			aggregate.WithChangeHook[model.Tent](replacedHook[model.Tent](outbox, model.KindTents)),
			aggregate.WithLogger[model.Tent](log)),
		Roster: aggregate.NewStore(tx, reader, versions, repos.Roster,
			aggregate.WithValidator[model.RosterEntry](validateRoster),
			aggregate.WithChangeHook[model.RosterEntry](replacedHook[model.RosterEntry](outbox, model.KindRoster)),
			aggregate.WithLogger[model.RosterEntry](log)),
		outbox:      outbox,
		countryCode: opts.DefaultCountryCode,
		log:         log,
	}
}

// replacedHook announces every committed structural write of a collection.
func replacedHook[T aggregate.Item[T]](outbox repository.OutboxRepository, kind model.CollectionKind) aggregate.ChangeHook[T] {
	return func(ctx context.Context, tx *sqlx.Tx, retreatID, version int64, items []T) error {
		msg, err := model.NewOutboxMessage(model.CollectionReplacedEvent(kind), config.ServiceCore, "", model.CollectionReplaced{
			RetreatID: retreatID,
			Kind:      kind,
			Version:   version,
			Count:     len(items),
		})
		if err != nil {
			return err
		}
		return outbox.Append(ctx, tx, msg)
	}
}

// NormalizeRoster trims names, lowercases emails and writes phones in E.164.
func (s *Service) NormalizeRoster(items []model.RosterEntry) []model.RosterEntry {
	out := make([]model.RosterEntry, len(items))
	for i, e := range items {
		e.FullName = strings.TrimSpace(e.FullName)
		e.Email = strings.ToLower(strings.TrimSpace(e.Email))
		e.Phone = util.NormalizePhone(e.Phone, s.countryCode)
		if e.Role == "" {
			e.Role = model.RoleParticipant
		}
		out[i] = e
	}
	return out
}

// ReplaceRoster normalizes contact data before the replace-all.
func (s *Service) ReplaceRoster(ctx context.Context, retreatID, version int64, items []model.RosterEntry) (model.ReplaceResult, error) {
	return s.Roster.ReplaceAll(ctx, retreatID, version, s.NormalizeRoster(items))
}

// SetSpaceCapacity applies one capacity range to every unlocked service space.
func (s *Service) SetSpaceCapacity(ctx context.Context, retreatID int64, min, max int) (model.BulkResult, error) {
	if min < 0 || max < min {
		return model.BulkResult{}, errs.NewValidation(fmt.Sprintf("invalid capacity range %d..%d", min, max))
	}
	return s.Spaces.Bulk(ctx, retreatID, func(sp model.ServiceSpace) (model.ServiceSpace, bool) {
		if sp.MinCapacity == min && sp.MaxCapacity == max {
			return sp, false
		}
		sp.MinCapacity, sp.MaxCapacity = min, max
		return sp, true
	})
}

// SetTentCapacity applies one capacity to every unlocked tent.
func (s *Service) SetTentCapacity(ctx context.Context, retreatID int64, capacity int) (model.BulkResult, error) {
	if capacity <= 0 {
		return model.BulkResult{}, errs.NewValidation(fmt.Sprintf("invalid tent capacity %d", capacity))
	}
	return s.Tents.Bulk(ctx, retreatID, func(t model.Tent) (model.Tent, bool) {
		if t.Capacity == capacity {
			return t, false
		}
		t.Capacity = capacity
		return t, true
	})
}

// ChangeEmail rewrites one roster entry's email under the roster version token and tells the
// notification service so both addresses are informed.
func (s *Service) ChangeEmail(ctx context.Context, retreatID, version, entryID int64, email string) (model.ReplaceResult, error) {
	normalized := util.NormalizeEmail(email)
	if normalized == "" {
		return model.ReplaceResult{}, errs.NewValidation(fmt.Sprintf("invalid email %q", email))
	}

	return s.Roster.UpdateOne(ctx, retreatID, version, entryID,
		func(e model.RosterEntry) (model.RosterEntry, error) {
			if e.Email == normalized {
				return e, errs.NewValidation("email unchanged")
			}
			e.Email = normalized
			return e, nil
		},
		func(ctx context.Context, tx *sqlx.Tx, before, after model.RosterEntry, v int64) error {
			msg, err := model.NewOutboxMessage(model.EventEmailChangedByAdmin, config.ServiceCore, "", model.EmailChangedByAdmin{
				RetreatID: retreatID,
				EntryID:   after.ID,
				FullName:  after.FullName,
				OldEmail:  before.Email,
				NewEmail:  after.Email,
			})
			if err != nil {
				return err
			}
			if err := s.outbox.Append(ctx, tx, msg); err != nil {
				return err
			}
			s.log.Info("roster email changed by admin", zap.Int64("retreat_id", retreatID), zap.Int64("entry_id", after.ID), zap.Int64("version", v))
			return nil
		})
}
