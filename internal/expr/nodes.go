package expr

import (
	"github.com/ginja-dev/ginja/internal/binding"
	"github.com/ginja-dev/ginja/internal/errors"
	"github.com/ginja-dev/ginja/internal/pubsub"
)

// ConstNode is a literal string or number.
type ConstNode struct {
	base
}

// NewConst returns a node holding a constant value.
func NewConst(val any) *ConstNode {
	n := &ConstNode{base: base{cached: val, defined: true}}
	n.self = n
	return n
}

func (n *ConstNode) IsConst([]Node) bool { return true }

func (n *ConstNode) Eval(bool) (any, error) { return n.cached, nil }

func (n *ConstNode) EvalCtx(*binding.Context) (any, error) { return n.cached, nil }

func (n *ConstNode) BindCtx(ctx *binding.Context) { n.bindBase(ctx) }

// Clone returns the node itself: constants never change, so clones can
// be identical.
func (n *ConstNode) Clone() Node { return n }

func (n *ConstNode) Simplify([]Node) Node { return n }

func (n *ConstNode) Contains(x Node) bool { return n.Equal(x) }

func (n *ConstNode) Equal(other Node) bool {
	o, ok := other.(*ConstNode)
	return ok && Equal(n.cached, o.cached)
}

func (n *ConstNode) String() string { return Repr(n.cached) }

// predefined identifiers that cannot be overridden by the context.
var identConstants = map[string]any{
	"True":  true,
	"False": false,
	"None":  nil,
}

// IdentNode is an identifier, one of the predefined constants
// True/False/None, or a builtin (str, int, len — not overridable).
type IdentNode struct {
	base
	ident    string
	isConst  bool
	ctxSub   pubsub.Subscription
	ctxSubOK bool
	valSub   pubsub.Subscription
	valEmit  *pubsub.Emitter
}

// NewIdent returns a node looking up the given identifier.
func NewIdent(identifier string) *IdentNode {
	n := &IdentNode{base: newBase(), ident: identifier}
	n.self = n
	if val, ok := identConstants[identifier]; ok {
		n.isConst = true
		n.cached = val
		n.defined = true
		n.dirty = false
	} else if fn, ok := Builtins[identifier]; ok {
		n.isConst = true
		n.cached = fn
		n.defined = true
		n.dirty = false
	}
	return n
}

// Name returns the identifier.
func (n *IdentNode) Name() string { return n.ident }

func (n *IdentNode) Mutable() bool {
	if n.isConst {
		return false
	}
	if n.ctx == nil {
		return true
	}
	for _, a := range n.ctx.ImmutableAttrs() {
		if a == n.ident {
			return false
		}
	}
	return true
}

func (n *IdentNode) IsConst(assume []Node) bool {
	if n.isConst {
		return true
	}
	for _, a := range assume {
		if id, ok := a.(*IdentNode); ok && id.ident == n.ident {
			return true
		}
	}
	return false
}

func (n *IdentNode) Solve(val any, x Node) error {
	if n.isConst {
		return noSolution(n, val, x)
	}
	if n.Equal(x) {
		return n.Assign(val)
	}
	return noSolution(n, val, x)
}

func (n *IdentNode) Simplify(assume []Node) Node {
	if n.IsConst(assume) {
		if v, err := n.Eval(false); err == nil {
			return NewConst(v)
		}
	}
	return n.Clone()
}

func (n *IdentNode) Clone() Node {
	if n.isConst {
		return n
	}
	return NewIdent(n.ident)
}

func (n *IdentNode) BindCtx(ctx *binding.Context) {
	// re-binding: drop the old context's subscription before it can fire
	// against the new binding
	if n.ctxSubOK && n.ctx != nil {
		n.ctx.Events().Off(n.ctxSub)
		n.ctxSubOK = false
	}
	n.bindBase(ctx)
	if n.isConst {
		return
	}
	n.dirty = true
	n.defined = false
	if n.valEmit != nil {
		n.valEmit.Off(n.valSub)
		n.valEmit = nil
	}
	n.ctxSub = ctx.Events().On("change", n.contextChange)
	n.ctxSubOK = true
	n.observeValue(n.Value())
}

func (n *IdentNode) observeValue(val any) {
	if n.valEmit != nil {
		n.valEmit.Off(n.valSub)
		n.valEmit = nil
	}
	if em := binding.Observe(val); em != nil {
		n.valEmit = em
		n.valSub = em.On("change", n.valueChange)
	}
}

func (n *IdentNode) Eval(refresh bool) (any, error) {
	if n.isConst {
		return n.cached, nil
	}
	if n.dirty || refresh {
		n.defined = false
		val, err := n.lookup(n.ctx)
		if err != nil {
			return nil, err
		}
		n.cached = val
		n.dirty = false
	}
	n.defined = true
	return n.cached, nil
}

func (n *IdentNode) EvalCtx(ctx *binding.Context) (any, error) {
	if n.isConst {
		return n.cached, nil
	}
	return n.lookup(ctx)
}

func (n *IdentNode) lookup(ctx *binding.Context) (any, error) {
	if ctx == nil {
		return nil, errors.NewUndefined(n.ident)
	}
	val, err := ctx.Get(n.ident)
	if err != nil {
		if fn, ok := Builtins[n.ident]; ok {
			return fn, nil
		}
		return nil, err
	}
	return val, nil
}

func (n *IdentNode) Assign(val any) error {
	if n.isConst {
		return errors.NewExpression("cannot assign " + Repr(val) + " to the constant " + n.ident)
	}
	if n.ctx == nil {
		return errors.NewExpression("cannot assign to unbound identifier " + n.ident)
	}
	return n.ctx.Set(n.ident, val)
}

// contextChange reacts to changes of the bound context: only changes of
// this identifier's key matter.
func (n *IdentNode) contextChange(evt pubsub.Event) {
	if n.dirty && n.defined {
		return
	}
	if evt.Get("key") != n.ident {
		return
	}
	if evt.Has("value") {
		n.cached = evt.Get("value")
		n.observeValue(n.cached)
		n.defined = true
		n.dirty = false
		n.events.Emit("change", map[string]any{"value": n.cached})
	} else {
		n.defined = false
		n.dirty = true
		n.events.Emit("change", nil)
	}
}

// valueChange reacts to mutations of the value itself (observable lists
// and maps).
func (n *IdentNode) valueChange(evt pubsub.Event) {
	if n.dirty && n.defined {
		return
	}
	n.dirty = true
	switch {
	case evt.Has("value"):
		n.events.Emit("change", map[string]any{"value": n.cached})
	case evt.Get("type") == "sort" || evt.Get("type") == "reverse":
		n.events.Emit("change", nil)
	default:
		n.defined = false
		n.events.Emit("change", nil)
	}
}

func (n *IdentNode) Contains(x Node) bool { return n.Equal(x) }

func (n *IdentNode) Equal(other Node) bool {
	o, ok := other.(*IdentNode)
	return ok && n.ident == o.ident
}

func (n *IdentNode) String() string { return n.ident }
