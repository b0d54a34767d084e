package render

import (
	"reflect"
	"strings"

	"golang.org/x/net/html"

	"github.com/ginja-dev/ginja/internal/binding"
	"github.com/ginja-dev/ginja/internal/environment"
	"github.com/ginja-dev/ginja/internal/errors"
	"github.com/ginja-dev/ginja/internal/parser"
	"github.com/ginja-dev/ginja/internal/pubsub"
)

// RenderNode is a live instantiation of a template node. Constructed
// from the parsed tree by a Factory, bound to a context, rendered into a
// DOM parent, and re-rendered incrementally through UpdateIfNeeded.
type RenderNode interface {
	// BindCtx binds the node and its subtree to the data context.
	BindCtx(ctx *binding.Context) error
	// RenderInto renders the node's DOM under parent.
	RenderInto(parent *html.Node) error
	// RenderText writes the node's text rendering.
	RenderText(b *strings.Builder) error
	// UpdateIfNeeded re-renders whatever went stale since the last flush.
	UpdateIfNeeded() error
	// Destroy unsubscribes the node and its subtree from all events.
	Destroy()
	// Events emits "change" when the node goes stale.
	Events() *pubsub.Emitter
	// IsDirty reports whether a flush would do work.
	IsDirty() bool
}

// Constructor builds a render node from its parsed counterpart.
type Constructor func(f *Factory, n parser.Node) (RenderNode, error)

// Factory maps parsed node types to render node constructors.
type Factory struct {
	env          *environment.Environment
	constructors map[reflect.Type]Constructor
}

// NewFactory returns a factory with the built-in constructors
// registered.
func NewFactory(env *environment.Environment) *Factory {
	f := &Factory{env: env, constructors: make(map[reflect.Type]Constructor)}
	f.Register(&parser.HTMLElement{}, newElementRender)
	f.Register(&parser.Content{}, newTextRender)
	f.Register(&parser.HTMLComment{}, newCommentRender)
	f.Register(&parser.HTMLDecl{}, newDeclRender)
	f.Register(&parser.Comment{}, newSkipRender)
	f.Register(&parser.IfNode{}, newIfRender)
	f.Register(&parser.ForNode{}, newForRender)
	f.Register(&parser.SetNode{}, newSetRender)
	return f
}

// Register binds a constructor to the concrete type of proto.
func (f *Factory) Register(proto parser.Node, c Constructor) {
	f.constructors[reflect.TypeOf(proto)] = c
}

// Env returns the factory's environment.
func (f *Factory) Env() *environment.Environment { return f.env }

// Node instantiates a single parsed node; nil means the node renders
// nothing (template comments).
func (f *Factory) Node(n parser.Node) (RenderNode, error) {
	c, ok := f.constructors[reflect.TypeOf(n)]
	if !ok {
		return nil, errors.NewRender("no renderer for node "+reflect.TypeOf(n).String(), n.Location())
	}
	return c(f, n)
}

// Nodes instantiates a parsed subtree, dropping nodes that render
// nothing.
func (f *Factory) Nodes(ns []parser.Node) ([]RenderNode, error) {
	out := make([]RenderNode, 0, len(ns))
	for _, n := range ns {
		rn, err := f.Node(n)
		if err != nil {
			return nil, err
		}
		if rn != nil {
			out = append(out, rn)
		}
	}
	return out, nil
}

func newSkipRender(*Factory, parser.Node) (RenderNode, error) { return nil, nil }

// sub remembers one event subscription so Destroy can undo it.
type sub struct {
	emitter *pubsub.Emitter
	id      pubsub.Subscription
}

type subs []sub

func (s *subs) on(em *pubsub.Emitter, channel string, h pubsub.Handler) {
	*s = append(*s, sub{em, em.On(channel, h)})
}

func (s *subs) off() {
	for _, x := range *s {
		x.emitter.Off(x.id)
	}
	*s = nil
}

func bindAll(ctx *binding.Context, nodes []RenderNode) error {
	for _, n := range nodes {
		if err := n.BindCtx(ctx); err != nil {
			return err
		}
	}
	return nil
}

func renderAllInto(parent *html.Node, nodes []RenderNode) error {
	for _, n := range nodes {
		if err := n.RenderInto(parent); err != nil {
			return err
		}
	}
	return nil
}

func renderAllText(b *strings.Builder, nodes []RenderNode) error {
	for _, n := range nodes {
		if err := n.RenderText(b); err != nil {
			return err
		}
	}
	return nil
}

func updateAll(nodes []RenderNode) error {
	for _, n := range nodes {
		if err := n.UpdateIfNeeded(); err != nil {
			return err
		}
	}
	return nil
}

func destroyAll(nodes []RenderNode) {
	for _, n := range nodes {
		n.Destroy()
	}
}
