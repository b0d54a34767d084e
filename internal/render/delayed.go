package render

import (
	"github.com/ginja-dev/ginja/internal/pubsub"
)

// delayed carries the two dirty bits every render node shares: one for
// the node's own output, one for changes somewhere below it. A change
// only emits upward while the node is clean, so a burst of data changes
// produces a single re-render on the next flush.
type delayed struct {
	events        pubsub.Emitter
	dirtySelf     bool
	dirtyChildren bool
}

// Events exposes the node's change-event emitter.
func (d *delayed) Events() *pubsub.Emitter { return &d.events }

// IsDirty reports whether the node or any child needs re-rendering.
func (d *delayed) IsDirty() bool { return d.dirtySelf || d.dirtyChildren }

// changed marks the node's own output stale.
func (d *delayed) changed(pubsub.Event) {
	if d.dirtySelf {
		return
	}
	d.dirtySelf = true
	if !d.dirtyChildren {
		d.events.Emit("change", nil)
	}
}

// childChanged marks a descendant stale.
func (d *delayed) childChanged(pubsub.Event) {
	if d.dirtySelf || d.dirtyChildren {
		return
	}
	d.dirtyChildren = true
	d.events.Emit("change", nil)
}

// flush runs the node's update hooks for whichever dirty bits are set.
func (d *delayed) flush(updateSelf, updateChildren func() error) error {
	if d.dirtySelf {
		if err := updateSelf(); err != nil {
			return err
		}
		d.dirtySelf = false
	}
	if d.dirtyChildren {
		if err := updateChildren(); err != nil {
			return err
		}
		d.dirtyChildren = false
	}
	return nil
}
