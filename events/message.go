// Package events publishes record mutations to interested listeners.
package events

import (
	"time"

	"entity-store/core"

	json "github.com/goccy/go-json"
)

type message struct {
	Type       string    `json:"type"`
	Collection string    `json:"collection"`
	ID         string    `json:"id"`
	At         time.Time `json:"at"`
}

func newMessage(event core.Event) message {
	m := message{
		Type:       string(event.Type),
		Collection: event.Collection,
		ID:         event.ID,
	}
	if event.Record != nil {
		m.At = event.Record.UpdatedAt
	}
	return m
}

func encode(event core.Event) ([]byte, error) {
	return json.Marshal(newMessage(event))
}

// payload is the socket.io form of an event. Attachments are never sent;
// clients fetch the record when they need it.
func payload(event core.Event) map[string]any {
	m := newMessage(event)
	return map[string]any{
		"type":       m.Type,
		"collection": m.Collection,
		"id":         m.ID,
	}
}
