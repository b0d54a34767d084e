package render

import (
	"log/slog"
	"strings"
	"sync"
	"time"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"github.com/ginja-dev/ginja/internal/binding"
	"github.com/ginja-dev/ginja/internal/environment"
	"github.com/ginja-dev/ginja/internal/parser"
	"github.com/ginja-dev/ginja/internal/pubsub"
)

// DefaultUpdateInterval is the debounce window for batched re-renders.
const DefaultUpdateInterval = 50 * time.Millisecond

// Template is a compiled template: parsed once, instantiated per render.
type Template struct {
	env   *environment.Environment
	name  string
	nodes []parser.Node
}

// Compile parses src into a template.
func Compile(env *environment.Environment, src, name, file string) (*Template, error) {
	nodes, err := parser.New(env, src, name, file).Parse()
	if err != nil {
		return nil, err
	}
	return &Template{env: env, name: name, nodes: nodes}, nil
}

// Name returns the template's name.
func (t *Template) Name() string { return t.name }

// Nodes returns the parsed tree.
func (t *Template) Nodes() []parser.Node { return t.nodes }

// RenderText renders the template against data without building a DOM.
func (t *Template) RenderText(data map[string]any) (string, error) {
	inst, err := t.Instantiate(t.contextFor(data), nil)
	if err != nil {
		return "", err
	}
	defer inst.Destroy()
	return inst.RenderText()
}

// RenderHTML renders the template against data into serialized HTML.
func (t *Template) RenderHTML(data map[string]any) (string, error) {
	inst, err := t.Instantiate(t.contextFor(data), nil)
	if err != nil {
		return "", err
	}
	defer inst.Destroy()
	return inst.RenderHTML()
}

func (t *Template) contextFor(data map[string]any) *binding.Context {
	ctx := binding.WithBase(t.env.BaseContext())
	for k, v := range data {
		ctx.Set(k, v)
	}
	return ctx
}

// Instantiate builds a live render tree bound to ctx. The instance emits
// "update" events when a flush changed its output.
func (t *Template) Instantiate(ctx *binding.Context, logger *slog.Logger) (*Instance, error) {
	f := NewFactory(t.env)
	nodes, err := f.Nodes(t.nodes)
	if err != nil {
		return nil, err
	}
	if err := bindAll(ctx, nodes); err != nil {
		destroyAll(nodes)
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}
	inst := &Instance{
		tpl:      t,
		ctx:      ctx,
		nodes:    nodes,
		logger:   logger,
		interval: DefaultUpdateInterval,
	}
	for _, n := range nodes {
		n.Events().On("change", inst.nodeChanged)
	}
	return inst, nil
}

// Instance is a template bound to a context with a live DOM. Data
// changes mark it dirty; Flush (or the debounced scheduler) re-renders
// the affected parts.
type Instance struct {
	tpl      *Template
	ctx      *binding.Context
	nodes    []RenderNode
	logger   *slog.Logger
	events   pubsub.Emitter
	interval time.Duration

	mu       sync.Mutex
	root     *html.Node
	dirty    bool
	timer    *time.Timer
	destroy  bool
}

// Events emits "update" after a flush that did work.
func (i *Instance) Events() *pubsub.Emitter { return &i.events }

// Ctx returns the bound context.
func (i *Instance) Ctx() *binding.Context { return i.ctx }

// SetUpdateInterval overrides the debounce window.
func (i *Instance) SetUpdateInterval(d time.Duration) { i.interval = d }

// UpdateInterval returns the debounce window.
func (i *Instance) UpdateInterval() time.Duration { return i.interval }

// RenderText renders the instance as plain text.
func (i *Instance) RenderText() (string, error) {
	i.mu.Lock()
	defer i.mu.Unlock()
	var b strings.Builder
	if err := renderAllText(&b, i.nodes); err != nil {
		return "", err
	}
	return b.String(), nil
}

// RenderHTML builds (or reuses) the DOM and serializes it.
func (i *Instance) RenderHTML() (string, error) {
	i.mu.Lock()
	defer i.mu.Unlock()
	if err := i.renderDOM(); err != nil {
		return "", err
	}
	return serialize(i.root)
}

// renderDOM builds the DOM on first use. Callers hold the lock.
func (i *Instance) renderDOM() error {
	if i.root != nil {
		return nil
	}
	root := &html.Node{Type: html.ElementNode, Data: "div", DataAtom: atom.Div}
	if err := renderAllInto(root, i.nodes); err != nil {
		return err
	}
	i.root = root
	return nil
}

func (i *Instance) nodeChanged(pubsub.Event) {
	i.mu.Lock()
	defer i.mu.Unlock()
	if i.dirty || i.destroy {
		return
	}
	i.dirty = true
	if i.timer == nil {
		i.timer = time.AfterFunc(i.interval, i.flushScheduled)
	} else {
		i.timer.Reset(i.interval)
	}
}

func (i *Instance) flushScheduled() {
	if err := i.Flush(); err != nil {
		i.logger.Error("template update failed",
			slog.String("template", i.tpl.Name()),
			slog.String("error", err.Error()))
	}
}

// Flush re-renders everything stale and emits "update" when the DOM was
// touched.
func (i *Instance) Flush() error {
	i.mu.Lock()
	if i.destroy {
		i.mu.Unlock()
		return nil
	}
	wasDirty := i.dirty
	i.dirty = false
	err := updateAll(i.nodes)
	i.mu.Unlock()
	if err != nil {
		return err
	}
	if wasDirty {
		i.events.Emit("update", nil)
	}
	return nil
}

// IsDirty reports whether any part of the tree needs re-rendering.
func (i *Instance) IsDirty() bool {
	for _, n := range i.nodes {
		if n.IsDirty() {
			return true
		}
	}
	return false
}

// Inputs returns the element renders accepting two-way value writes.
func (i *Instance) Inputs() []*ElementRender {
	var out []*ElementRender
	var walk func(nodes []RenderNode)
	walk = func(nodes []RenderNode) {
		for _, n := range nodes {
			if el, ok := n.(*ElementRender); ok {
				if el.CanSetValue() {
					out = append(out, el)
				}
				walk(el.children)
			}
		}
	}
	walk(i.nodes)
	return out
}

// Destroy unbinds the instance from all events and stops the scheduler.
func (i *Instance) Destroy() {
	i.mu.Lock()
	i.destroy = true
	if i.timer != nil {
		i.timer.Stop()
	}
	i.mu.Unlock()
	destroyAll(i.nodes)
	i.events.OffAll()
}
