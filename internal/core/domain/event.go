package domain

import "time"

// ChangeEvent represents a push notification that the underlying data for a
// resource changed. Events accelerate refreshes; they never carry row data.
type ChangeEvent struct {
	Resource   string
	Kind       string // insert, update, delete, or "" when the transport lacks detail
	Payload    []byte // raw transport payload, opaque to the core
	ReceivedAt time.Time
}
