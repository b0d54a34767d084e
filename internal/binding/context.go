// Package binding implements the reactive variable scope expressions are
// bound to. A Context stores template variables, supports nested scopes
// (a child shadows but never mutates its base) and emits change events
// whenever a variable is set or deleted so that bound expressions can
// re-evaluate lazily.
package binding

import (
	"sort"

	"github.com/ginja-dev/ginja/internal/errors"
	"github.com/ginja-dev/ginja/internal/pubsub"
)

// immutable wraps a value that cannot be reassigned. Immutable variables
// are treated as constants when simplifying expressions.
type immutable struct{ value any }

// Context is a reactive variable scope.
type Context struct {
	base    *Context
	baseSub pubsub.Subscription
	vars    map[string]any
	saved   map[string][]any
	events  pubsub.Emitter
}

// New returns an empty root context.
func New() *Context {
	return &Context{vars: make(map[string]any), saved: make(map[string][]any)}
}

// WithBase returns a context inheriting all variables of base. Lookups
// fall through to base; assignments stay local. Change events of the
// base re-emit here for names the scope does not shadow, so expressions
// bound to the child still see outer updates.
func WithBase(base *Context) *Context {
	ctx := New()
	ctx.base = base
	ctx.baseSub = base.events.On("change", ctx.baseChanged)
	return ctx
}

func (c *Context) baseChanged(evt pubsub.Event) {
	key, _ := evt.Get("key").(string)
	if _, shadowed := c.vars[key]; shadowed {
		return
	}
	c.events.Emit("change", evt.Data)
}

// Detach unsubscribes the scope from its base's change events. Discarded
// child scopes (loop iterations) must detach, or the base keeps
// dispatching into them.
func (c *Context) Detach() {
	if c.base != nil {
		c.base.events.Off(c.baseSub)
	}
}

// FromMap returns a context initialized from m.
func FromMap(m map[string]any) *Context {
	ctx := New()
	for k, v := range m {
		ctx.Set(k, v)
	}
	return ctx
}

// Events exposes the context's change-event emitter. Change events carry
// a "key" field and, for assignments, a "value" field.
func (c *Context) Events() *pubsub.Emitter { return &c.events }

// Get looks up a variable, falling through to the base scope. Returns an
// undefined error when the name is bound nowhere.
func (c *Context) Get(name string) (any, error) {
	if v, ok := c.vars[name]; ok {
		if im, ok := v.(immutable); ok {
			return im.value, nil
		}
		return v, nil
	}
	if c.base != nil {
		return c.base.Get(name)
	}
	return nil, errors.NewUndefined(name)
}

// Has reports whether name is bound in this scope or any base scope.
func (c *Context) Has(name string) bool {
	if _, ok := c.vars[name]; ok {
		return true
	}
	return c.base != nil && c.base.Has(name)
}

// Set assigns a variable in this scope. Plain slices and string-keyed
// maps are wrapped into observable containers so that mutations through
// them propagate change events. Assigning to an immutable variable errors.
func (c *Context) Set(name string, val any) error {
	if cur, ok := c.vars[name]; ok {
		if _, ok := cur.(immutable); ok {
			return errors.NewExpression("cannot assign to an immutable attribute: " + name)
		}
	}
	c.vars[name] = c.wrap(val)
	c.events.Emit("change", map[string]any{"key": name, "value": c.vars[name]})
	return nil
}

// SetImmutable binds name to a value that cannot be reassigned.
func (c *Context) SetImmutable(name string, val any) {
	c.vars[name] = immutable{value: val}
	c.events.Emit("change", map[string]any{"key": name, "value": val})
}

// Del removes a variable from this scope.
func (c *Context) Del(name string) {
	if _, ok := c.vars[name]; !ok {
		return
	}
	delete(c.vars, name)
	c.events.Emit("change", map[string]any{"key": name})
}

// Reset clears the scope and re-initializes it from m.
func (c *Context) Reset(m map[string]any) {
	for k := range c.vars {
		c.Del(k)
	}
	for k, v := range m {
		c.Set(k, v)
	}
}

// Keys returns the variable names bound directly in this scope, sorted.
func (c *Context) Keys() []string {
	keys := make([]string, 0, len(c.vars))
	for k := range c.vars {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// ImmutableAttrs returns the names bound immutably in this scope.
func (c *Context) ImmutableAttrs() []string {
	var ret []string
	for k, v := range c.vars {
		if _, ok := v.(immutable); ok {
			ret = append(ret, k)
		}
	}
	sort.Strings(ret)
	return ret
}

// Save pushes the current value of name onto its save stack, if bound.
// Loop constructs use Save/Restore to shadow variables without leaking.
func (c *Context) Save(name string) {
	if v, ok := c.vars[name]; ok {
		c.saved[name] = append(c.saved[name], v)
	}
}

// Restore pops the save stack of name back into the scope. Like Save and
// SetQuiet it emits no change event; loop constructs handle their own
// invalidation.
func (c *Context) Restore(name string) {
	stack := c.saved[name]
	if len(stack) == 0 {
		return
	}
	c.vars[name] = stack[len(stack)-1]
	if len(stack) == 1 {
		delete(c.saved, name)
	} else {
		c.saved[name] = stack[:len(stack)-1]
	}
}

// SetQuiet assigns without emitting a change event. Comprehensions and
// loop bodies use it for their iteration variable: the surrounding node
// re-evaluates as a whole, per-iteration events would only churn.
func (c *Context) SetQuiet(name string, val any) {
	c.vars[name] = c.wrap(val)
}

func (c *Context) wrap(val any) any {
	switch v := val.(type) {
	case []any:
		return NewList(v)
	case map[string]any:
		return NewMap(v)
	default:
		return val
	}
}
