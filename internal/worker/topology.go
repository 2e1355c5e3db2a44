package worker

import (
	"github.com/jmehdipour/retreat-sync/internal/config"
	"github.com/jmehdipour/retreat-sync/internal/model"
)

// Route binds one queue of a service role to the routing keys it consumes.
type Route struct {
	Queue    string
	Bindings []string
}

// Queue names. Each one has a <queue>.dlq for rejected messages.
const (
	QueueGroupCreated      = "core.family.group.created"
	QueueGroupFailed       = "core.family.group.failed"
	QueueRetreatAudit      = "core.retreat.audit"
	QueueCoreAudit         = "core.events.audit"
	QueueGroupCreate       = "notification.family.group.create"
	QueueGroupResend       = "notification.family.group.resend"
	QueueEmailChanged      = "notification.email.changed.by.admin"
	QueueNotificationAudit = "notification.events.audit"
)

var topology = map[string][]Route{
	config.ServiceCore: {
		{Queue: QueueGroupCreated, Bindings: []string{model.EventGroupCreated}},
		{Queue: QueueGroupFailed, Bindings: []string{model.EventGroupFailed}},
		{Queue: QueueRetreatAudit, Bindings: []string{"retreat.#"}},
		{Queue: QueueCoreAudit, Bindings: []string{"#"}},
	},
	config.ServiceNotification: {
		{Queue: QueueGroupCreate, Bindings: []string{model.EventGroupCreateRequested}},
		{Queue: QueueGroupResend, Bindings: []string{model.EventGroupResendRequested}},
		{Queue: QueueEmailChanged, Bindings: []string{model.EventEmailChangedByAdmin}},
		{Queue: QueueNotificationAudit, Bindings: []string{"#"}},
	},
}

// Routes returns the queues a service role consumes.
func Routes(service string) []Route {
	return topology[service]
}
