// Package domain defines the core types shared across the feedsync packages:
// backend identity, the failure taxonomy, and change-channel events.
package domain

// BackendID identifies one of the two backing services capable of answering
// the same logical read through different transports.
type BackendID string

const (
	BackendPrimary   BackendID = "primary"
	BackendSecondary BackendID = "secondary"
)

// Other returns the standby counterpart of a backend.
func (b BackendID) Other() BackendID {
	if b == BackendPrimary {
		return BackendSecondary
	}
	return BackendPrimary
}

// Valid reports whether b is one of the two known backends.
func (b BackendID) Valid() bool {
	return b == BackendPrimary || b == BackendSecondary
}

// Row is the generic row shape the daemon moves between backends and callers.
// Library users with typed rows use the generic fetcher directly.
type Row = map[string]any
