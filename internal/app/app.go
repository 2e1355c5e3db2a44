// Package app wires repositories and services for each service role.
package app

import (
	"github.com/jmehdipour/retreat-sync/internal/channel"
	"github.com/jmehdipour/retreat-sync/internal/config"
	"github.com/jmehdipour/retreat-sync/internal/repository"
	"github.com/jmehdipour/retreat-sync/internal/service/audit"
	"github.com/jmehdipour/retreat-sync/internal/service/groups"
	"github.com/jmehdipour/retreat-sync/internal/service/notification"
	"github.com/jmehdipour/retreat-sync/internal/service/retreat"
	"github.com/jmehdipour/retreat-sync/internal/worker"
	"github.com/jmoiron/sqlx"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Core is the core role: retreat collections and the group lifecycle.
type Core struct {
	Outbox  repository.OutboxRepository
	Retreat *retreat.Service
	Groups  *groups.Service
}

func NewCore(cfg config.Config, mysqlDB *sqlx.DB, log *zap.Logger) *Core {
	tx := repository.NewTxRunner(mysqlDB)
	versions := repository.NewVersionRepository(mysqlDB)
	outbox := repository.NewOutboxRepository(mysqlDB, config.ServiceCore)
	families := repository.NewFamiliesRepository()

	return &Core{
		Outbox: outbox,
		Retreat: retreat.New(tx, mysqlDB, versions, retreat.Repositories{
			Families: families,
			Spaces:   repository.NewSpacesRepository(),
			Tents:    repository.NewTentsRepository(),
			Roster:   repository.NewRosterRepository(),
		}, outbox, retreat.Options{
			DefaultCountryCode: cfg.Channels.DefaultCountryCode,
			Logger:             log,
		}),
		Groups: groups.New(tx, versions, families, outbox, log),
	}
}

// Handlers returns the consumers of the core queues.
func (c *Core) Handlers(events repository.EventsAuditRepository, log *zap.Logger) worker.Handlers {
	return worker.Handlers{
		worker.QueueGroupCreated: c.Groups.CreatedHandler(),
		worker.QueueGroupFailed:  c.Groups.FailedHandler(),
		worker.QueueRetreatAudit: audit.CollectionLog(log),
		worker.QueueCoreAudit:    audit.NewProjector(events, worker.QueueCoreAudit, log),
	}
}

// Notification is the notification role: group provisioning and outbound messages.
type Notification struct {
	Outbox  repository.OutboxRepository
	Service *notification.Service
}

// NewNotification builds the role. rdb may be nil, in which case only the delivery table dedupes.
func NewNotification(cfg config.Config, mysqlDB *sqlx.DB, rdb *redis.Client, log *zap.Logger) *Notification {
	outbox := repository.NewOutboxRepository(mysqlDB, config.ServiceNotification)

	opts := notification.Options{
		DefaultCountryCode: cfg.Channels.DefaultCountryCode,
		Logger:             log,
	}
	if rdb != nil {
		opts.Dedupe = notification.NewRedisDedupe(rdb, cfg.Notification.DedupeTTL)
	}

	return &Notification{
		Outbox: outbox,
		Service: notification.New(
			repository.NewTxRunner(mysqlDB),
			repository.NewProvisionsRepository(),
			repository.NewDeliveriesRepository(mysqlDB),
			outbox,
			channel.FromConfig(cfg.Channels, log),
			channel.NewHTTPGroupProvisioner(cfg.Channels.Groups, log),
			opts,
		),
	}
}

func (n *Notification) Handlers(events repository.EventsAuditRepository, log *zap.Logger) worker.Handlers {
	return worker.Handlers{
		worker.QueueGroupCreate:       n.Service.ProvisionHandler(),
		worker.QueueGroupResend:       n.Service.ResendHandler(),
		worker.QueueEmailChanged:      n.Service.EmailChangedHandler(),
		worker.QueueNotificationAudit: audit.NewProjector(events, worker.QueueNotificationAudit, log),
	}
}
