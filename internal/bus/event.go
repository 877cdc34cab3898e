package bus

import "time"

// Event represents a domain event published on the bus.
type Event struct {
	Kind      string
	Timestamp time.Time
	Payload   any
}

// Event kinds published by the synchronization engine and the native
// store observer. Subscribers filter on namespace prefixes ("sync.",
// "xms.", "message.").
const (
	KindSyncCompleted  = "sync.completed"
	KindXmsChanged     = "xms.provider_changed"
	KindXmsNew         = "xms.message_new"
	KindXmsDeleted     = "xms.message_deleted"
	KindXmsRead        = "xms.message_read"
	KindMessageImport  = "message.imported"
	KindMessageDeleted = "message.deleted"
)
