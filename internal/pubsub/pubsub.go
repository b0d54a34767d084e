// Package pubsub provides the change-event dispatch used throughout the
// engine: expressions, contexts, interpolated strings and render nodes all
// emit "change" events that their owners subscribe to.
package pubsub

import "sync"

// Event carries a channel name and optional payload fields.
type Event struct {
	Channel string
	Data    map[string]any
}

// Has reports whether the payload contains the given field.
func (e Event) Has(key string) bool {
	_, ok := e.Data[key]
	return ok
}

// Get returns a payload field, or nil when absent.
func (e Event) Get(key string) any { return e.Data[key] }

// Handler receives published events.
type Handler func(Event)

// Subscription identifies a single registered handler.
type Subscription struct {
	channel string
	id      int
}

// Emitter dispatches events to subscribed handlers. The zero value is
// ready to use. Emitters must not be copied after first use.
type Emitter struct {
	mu     sync.Mutex
	nextID int
	subs   map[string]map[int]Handler
}

// On subscribes handler to the named channel.
func (e *Emitter) On(channel string, handler Handler) Subscription {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.subs == nil {
		e.subs = make(map[string]map[int]Handler)
	}
	if e.subs[channel] == nil {
		e.subs[channel] = make(map[int]Handler)
	}
	e.nextID++
	e.subs[channel][e.nextID] = handler
	return Subscription{channel: channel, id: e.nextID}
}

// Off removes a single subscription.
func (e *Emitter) Off(sub Subscription) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if hs := e.subs[sub.channel]; hs != nil {
		delete(hs, sub.id)
	}
}

// OffChannel removes every subscription on the named channel.
func (e *Emitter) OffChannel(channel string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.subs, channel)
}

// OffAll removes every subscription.
func (e *Emitter) OffAll() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.subs = nil
}

// Emit publishes an event on the named channel. Handlers run on the
// calling goroutine; the subscriber set is snapshotted first so handlers
// may subscribe or unsubscribe while running.
func (e *Emitter) Emit(channel string, data map[string]any) {
	e.mu.Lock()
	hs := e.subs[channel]
	snapshot := make([]Handler, 0, len(hs))
	for _, h := range hs {
		snapshot = append(snapshot, h)
	}
	e.mu.Unlock()

	evt := Event{Channel: channel, Data: data}
	for _, h := range snapshot {
		h(evt)
	}
}
