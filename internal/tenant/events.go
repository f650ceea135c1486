package tenant

import (
	"github.com/juju/pubsub/v2"
)

// ChangedTopic is the hub topic every tenant-change notification is
// published on.
const ChangedTopic = "tenant.changed"

// ChangedEvent is the payload broadcast after a successful switch (or
// first-tenant activation). Delivery is synchronous: the publisher waits
// for every subscriber before the switch call returns, so handlers see
// storage already switched. Handlers must be idempotent; they may
// themselves trigger reloads.
type ChangedEvent struct {
	// EventID uniquely identifies this notification.
	EventID string

	TenantID int64
	CNPJ     string
	Name     string
}

// SubscribeChanged registers a typed handler for change notifications and
// returns the unsubscribe function.
func SubscribeChanged(hub *pubsub.SimpleHub, handler func(ChangedEvent)) func() {
	return hub.Subscribe(ChangedTopic, func(_ string, data interface{}) {
		if ev, ok := data.(ChangedEvent); ok {
			handler(ev)
		}
	})
}
