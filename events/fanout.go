package events

import (
	"context"
	"entity-store/core"
	"errors"
)

// Fanout delivers each event to every notifier and joins their errors.
type Fanout []core.Notifier

func (f Fanout) Notify(ctx context.Context, event core.Event) error {
	var errs []error
	for _, n := range f {
		if err := n.Notify(ctx, event); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

type discard struct{}

func (discard) Notify(context.Context, core.Event) error { return nil }

// Discard drops every event.
var Discard core.Notifier = discard{}
