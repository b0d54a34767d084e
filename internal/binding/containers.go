package binding

import (
	"sort"

	"github.com/ginja-dev/ginja/internal/pubsub"
)

// List is an observable slice. Mutating methods emit change events so
// expressions indexing into the list can invalidate their caches.
type List struct {
	items  []any
	events pubsub.Emitter
}

// NewList wraps items into an observable list. Nested plain containers
// are wrapped recursively.
func NewList(items []any) *List {
	l := &List{items: make([]any, 0, len(items))}
	for _, it := range items {
		l.items = append(l.items, wrapNested(it))
	}
	return l
}

// Events exposes the list's change-event emitter.
func (l *List) Events() *pubsub.Emitter { return &l.events }

// Len returns the number of items.
func (l *List) Len() int { return len(l.items) }

// Get returns the item at index i.
func (l *List) Get(i int) any { return l.items[i] }

// Items returns the backing slice. Treat it as read-only.
func (l *List) Items() []any { return l.items }

// Set replaces the item at index i.
func (l *List) Set(i int, val any) {
	l.items[i] = wrapNested(val)
	l.events.Emit("change", map[string]any{"index": i, "value": l.items[i]})
}

// Append adds an item at the end.
func (l *List) Append(val any) {
	l.items = append(l.items, wrapNested(val))
	l.events.Emit("change", map[string]any{"type": "append"})
}

// Insert inserts an item at index i.
func (l *List) Insert(i int, val any) {
	l.items = append(l.items, nil)
	copy(l.items[i+1:], l.items[i:])
	l.items[i] = wrapNested(val)
	l.events.Emit("change", map[string]any{"type": "insert"})
}

// Remove deletes the item at index i.
func (l *List) Remove(i int) {
	l.items = append(l.items[:i], l.items[i+1:]...)
	l.events.Emit("change", map[string]any{"type": "remove"})
}

// Sort orders the items using less.
func (l *List) Sort(less func(a, b any) bool) {
	sort.SliceStable(l.items, func(i, j int) bool { return less(l.items[i], l.items[j]) })
	l.events.Emit("change", map[string]any{"type": "sort"})
}

// Reverse reverses the items in place.
func (l *List) Reverse() {
	for i, j := 0, len(l.items)-1; i < j; i, j = i+1, j-1 {
		l.items[i], l.items[j] = l.items[j], l.items[i]
	}
	l.events.Emit("change", map[string]any{"type": "reverse"})
}

// Map is an observable string-keyed map.
type Map struct {
	items  map[string]any
	events pubsub.Emitter
}

// NewMap wraps items into an observable map.
func NewMap(items map[string]any) *Map {
	m := &Map{items: make(map[string]any, len(items))}
	for k, v := range items {
		m.items[k] = wrapNested(v)
	}
	return m
}

// Events exposes the map's change-event emitter.
func (m *Map) Events() *pubsub.Emitter { return &m.events }

// Len returns the number of entries.
func (m *Map) Len() int { return len(m.items) }

// Get looks up a key.
func (m *Map) Get(key string) (any, bool) {
	v, ok := m.items[key]
	return v, ok
}

// Set assigns a key.
func (m *Map) Set(key string, val any) {
	m.items[key] = wrapNested(val)
	m.events.Emit("change", map[string]any{"key": key, "value": m.items[key]})
}

// Del removes a key.
func (m *Map) Del(key string) {
	if _, ok := m.items[key]; !ok {
		return
	}
	delete(m.items, key)
	m.events.Emit("change", map[string]any{"key": key})
}

// Keys returns the keys, sorted.
func (m *Map) Keys() []string {
	keys := make([]string, 0, len(m.items))
	for k := range m.items {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func wrapNested(val any) any {
	switch v := val.(type) {
	case []any:
		return NewList(v)
	case map[string]any:
		return NewMap(v)
	default:
		return val
	}
}

// Observe returns the change emitter of an observable value, or nil when
// the value is not observable. Expression nodes use it to watch the
// values their subexpressions evaluate to.
func Observe(val any) *pubsub.Emitter {
	switch v := val.(type) {
	case *List:
		return v.Events()
	case *Map:
		return v.Events()
	case *Context:
		return v.Events()
	default:
		return nil
	}
}
