package core

import "context"

type (
	EventType string

	// Event describes one committed record mutation.
	Event struct {
		Type       EventType
		Collection string
		ID         string
		Record     *Record
	}

	Notifier interface {
		Notify(ctx context.Context, event Event) error
	}
)

const (
	RecordCreated EventType = "record-created"
	RecordUpdated EventType = "record-updated"
	RecordDeleted EventType = "record-deleted"
)
