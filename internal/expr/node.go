package expr

import (
	"github.com/ginja-dev/ginja/internal/binding"
	"github.com/ginja-dev/ginja/internal/errors"
	"github.com/ginja-dev/ginja/internal/pubsub"
)

// Node is a node of the reactive expression AST.
type Node interface {
	// Eval evaluates the node against the bound context, using the cached
	// value unless it is stale or refresh is set.
	Eval(refresh bool) (any, error)
	// EvalCtx evaluates against an explicit context, bypassing both the
	// bound context and the cache.
	EvalCtx(ctx *binding.Context) (any, error)
	// BindCtx binds the node (and its subtree) to a context and starts
	// watching it; changes emit "change" events on Events().
	BindCtx(ctx *binding.Context)
	// Clone returns an unbound copy that can bind a different context.
	Clone() Node
	// IsConst reports whether the subtree's value is context-independent,
	// treating the nodes in assume as constants.
	IsConst(assume []Node) bool
	// Simplify constant-folds the subtree modulo the assumed-const set.
	Simplify(assume []Node) Node
	// Solve tries to assign a value to x so this subtree evaluates to val.
	Solve(val any, x Node) error
	// Assign writes through the expression (identifiers, attributes and
	// indexes are assignable).
	Assign(val any) error
	// Mutable reports whether the bound expression's value can be assigned.
	Mutable() bool
	// Contains reports whether x occurs in the subtree.
	Contains(x Node) bool
	// Equal is structural equality.
	Equal(other Node) bool
	// Events exposes the node's change-event emitter.
	Events() *pubsub.Emitter
	// Value returns the cached value, re-evaluating if stale; evaluation
	// errors leave the previous cache in place.
	Value() any
	// String renders the expression as source text.
	String() string
}

// base carries the caching and change-propagation state shared by all
// node types. The dirty bit is only reset by a successful Eval; a change
// event arriving without a value always sets it.
type base struct {
	events  pubsub.Emitter
	ctx     *binding.Context
	cached  any
	dirty   bool
	defined bool
	self    Node
}

func newBase() base {
	return base{dirty: true}
}

func (b *base) Events() *pubsub.Emitter { return &b.events }

func (b *base) bindBase(ctx *binding.Context) { b.ctx = ctx }

func (b *base) boundImmutables() []string {
	if b.ctx == nil {
		return nil
	}
	return b.ctx.ImmutableAttrs()
}

func (b *base) Value() any {
	if b.dirty && b.self != nil {
		_, _ = b.self.Eval(false)
	}
	return b.cached
}

// changeHandler is the default reaction to a subexpression change: mark
// stale and propagate, debouncing repeat notifications.
func (b *base) changeHandler(pubsub.Event) {
	if b.dirty && b.defined {
		return
	}
	b.dirty = true
	b.events.Emit("change", nil)
}

// Defaults for nodes that do not support a given operation.

func (b *base) Solve(val any, x Node) error {
	return noSolution(b.self, val, x)
}

func (b *base) Assign(val any) error {
	return errors.NewExpression("assigning to " + stringOf(b.self) + " not supported")
}

func (b *base) Mutable() bool { return false }

func noSolution(expr Node, val any, x Node) error {
	return errors.NewNoSolution(stringOf(expr), Str(val), stringOf(x))
}

func stringOf(n Node) string {
	if n == nil {
		return "<nil>"
	}
	return n.String()
}

// Idents returns the non-constant identifier nodes occurring in the
// expression, left to right. Attribute names and comprehension loop
// variables do not count as identifiers of the enclosing scope.
func Idents(n Node) []*IdentNode {
	var out []*IdentNode
	collectIdents(n, &out)
	return out
}

func collectIdents(n Node, out *[]*IdentNode) {
	switch v := n.(type) {
	case nil:
	case *IdentNode:
		if !v.isConst {
			*out = append(*out, v)
		}
	case *ListNode:
		for _, ch := range v.children {
			collectIdents(ch, out)
		}
	case *FuncArgsNode:
		for _, ch := range v.children {
			collectIdents(ch, out)
		}
		for _, kw := range v.kwargs {
			collectIdents(kw, out)
		}
	case *SliceNode:
		for _, ch := range v.children {
			collectIdents(ch, out)
		}
	case *ComprNode:
		collectIdents(v.lst, out)
		var inner []*IdentNode
		collectIdents(v.expr, &inner)
		collectIdents(v.cond, &inner)
		for _, id := range inner {
			if id.ident != v.vari.ident {
				*out = append(*out, id)
			}
		}
	case *OpNode:
		collectIdents(v.larg, out)
		collectIdents(v.rarg, out)
	case *AttrAccessNode:
		collectIdents(v.obj, out)
	}
}

// cloneAll clones a node slice, preserving nil entries.
func cloneAll(nodes []Node) []Node {
	out := make([]Node, len(nodes))
	for i, n := range nodes {
		if n != nil {
			out[i] = n.Clone()
		}
	}
	return out
}

func equalNode(a, b Node) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return a.Equal(b)
}
