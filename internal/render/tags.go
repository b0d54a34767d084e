package render

import (
	"strings"

	"golang.org/x/net/html"

	"github.com/ginja-dev/ginja/internal/binding"
	"github.com/ginja-dev/ginja/internal/expr"
	"github.com/ginja-dev/ginja/internal/parser"
)

// region is a stretch of siblings between two marker comments, owned by
// a conditional or loop render and rebuilt in place.
type region struct {
	parent *html.Node
	begin  *html.Node
	end    *html.Node
}

func newRegion(parent *html.Node, label string) region {
	r := region{
		parent: parent,
		begin:  newComment(" " + label + " "),
		end:    newComment(" /" + label + " "),
	}
	parent.AppendChild(r.begin)
	parent.AppendChild(r.end)
	return r
}

func (r *region) clear() {
	removeBetween(r.parent, r.begin, r.end)
}

// fill renders nodes into the region, replacing its prior content.
func (r *region) fill(nodes []RenderNode) error {
	r.clear()
	holder := &html.Node{Type: html.ElementNode, Data: "div"}
	if err := renderAllInto(holder, nodes); err != nil {
		return err
	}
	for ch := holder.FirstChild; ch != nil; {
		next := ch.NextSibling
		holder.RemoveChild(ch)
		insertBefore(r.parent, r.end, ch)
		ch = next
	}
	return nil
}

type ifCase struct {
	cond expr.Node
	body []parser.Node
}

// IfRender renders the first branch whose condition is truthy. A
// condition change rebuilds the region; changes inside the active branch
// update incrementally.
type IfRender struct {
	delayed
	f      *Factory
	cases  []ifCase
	ctx    *binding.Context
	reg    region
	active int // -1 before first render / when no branch matches
	nodes  []RenderNode
	subs   subs
}

func newIfRender(f *Factory, n parser.Node) (RenderNode, error) {
	src := n.(*parser.IfNode)
	r := &IfRender{f: f, active: -1}
	for _, c := range src.Cases() {
		cond := c.Cond.Clone()
		r.cases = append(r.cases, ifCase{cond: cond, body: c.Body})
		r.subs.on(cond.Events(), "change", r.changed)
	}
	return r, nil
}

func (r *IfRender) BindCtx(ctx *binding.Context) error {
	r.ctx = ctx
	for _, c := range r.cases {
		c.cond.BindCtx(ctx)
	}
	return nil
}

// activeBranch returns the index of the first truthy branch, or -1.
// Evaluation errors count as false; an undefined variable simply leaves
// the branch unrendered.
func (r *IfRender) activeBranch() int {
	for i, c := range r.cases {
		v, err := c.cond.Eval(false)
		if err != nil {
			continue
		}
		if expr.Truth(v) {
			return i
		}
	}
	return -1
}

func (r *IfRender) buildBranch(idx int) error {
	destroyAll(r.nodes)
	r.nodes = nil
	r.active = idx
	if idx < 0 {
		return nil
	}
	nodes, err := r.f.Nodes(r.cases[idx].body)
	if err != nil {
		return err
	}
	if err := bindAll(r.ctx, nodes); err != nil {
		return err
	}
	r.nodes = nodes
	for _, ch := range nodes {
		r.subs.on(ch.Events(), "change", r.childChanged)
	}
	return nil
}

func (r *IfRender) RenderInto(parent *html.Node) error {
	r.reg = newRegion(parent, "if")
	if err := r.buildBranch(r.activeBranch()); err != nil {
		return err
	}
	return r.reg.fill(r.nodes)
}

func (r *IfRender) RenderText(b *strings.Builder) error {
	if err := r.buildBranch(r.activeBranch()); err != nil {
		return err
	}
	return renderAllText(b, r.nodes)
}

func (r *IfRender) UpdateIfNeeded() error {
	return r.flush(func() error {
		idx := r.activeBranch()
		if idx == r.active {
			return updateAll(r.nodes)
		}
		if err := r.buildBranch(idx); err != nil {
			return err
		}
		if r.reg.parent != nil {
			return r.reg.fill(r.nodes)
		}
		return nil
	}, func() error { return updateAll(r.nodes) })
}

func (r *IfRender) Destroy() {
	r.subs.off()
	destroyAll(r.nodes)
}

// ForRender renders a loop body once per element of the sequence. Each
// iteration gets a child scope holding the loop variable and the loop
// metadata map; a sequence change rebuilds the whole region.
type ForRender struct {
	delayed
	f        *Factory
	src      *parser.ForNode
	seq      expr.Node
	ctx      *binding.Context
	reg      region
	iters    [][]RenderNode
	iterCtxs []*binding.Context
	elseCase []RenderNode
	subs     subs
	iterSubs subs
}

func newForRender(f *Factory, n parser.Node) (RenderNode, error) {
	src := n.(*parser.ForNode)
	r := &ForRender{f: f, src: src, seq: src.Seq().Clone()}
	r.subs.on(r.seq.Events(), "change", r.changed)
	return r, nil
}

func (r *ForRender) BindCtx(ctx *binding.Context) error {
	r.ctx = ctx
	r.seq.BindCtx(ctx)
	return nil
}

func loopMeta(index, length int) map[string]any {
	return map[string]any{
		"index":  float64(index + 1),
		"index0": float64(index),
		"first":  index == 0,
		"last":   index == length-1,
		"length": float64(length),
	}
}

// build instantiates one body copy per sequence element.
func (r *ForRender) build() error {
	r.destroyIters()
	items, err := r.items()
	if err != nil {
		return err
	}
	if len(items) == 0 {
		if len(r.src.ElseBody()) == 0 {
			return nil
		}
		nodes, err := r.f.Nodes(r.src.ElseBody())
		if err != nil {
			return err
		}
		if err := bindAll(r.ctx, nodes); err != nil {
			return err
		}
		r.elseCase = nodes
		for _, ch := range nodes {
			r.iterSubs.on(ch.Events(), "change", r.childChanged)
		}
		return nil
	}
	for i, item := range items {
		iterCtx := binding.WithBase(r.ctx)
		iterCtx.SetQuiet(r.src.Var(), item)
		iterCtx.SetQuiet("loop", loopMeta(i, len(items)))
		nodes, err := r.f.Nodes(r.src.Body())
		if err != nil {
			return err
		}
		if err := bindAll(iterCtx, nodes); err != nil {
			return err
		}
		r.iters = append(r.iters, nodes)
		r.iterCtxs = append(r.iterCtxs, iterCtx)
		for _, ch := range nodes {
			r.iterSubs.on(ch.Events(), "change", r.childChanged)
		}
	}
	return nil
}

// items evaluates the sequence; an undefined sequence renders as empty.
func (r *ForRender) items() ([]any, error) {
	v, err := r.seq.Eval(false)
	if err != nil {
		return nil, nil
	}
	return expr.Iterate(v)
}

func (r *ForRender) destroyIters() {
	r.iterSubs.off()
	for _, nodes := range r.iters {
		destroyAll(nodes)
	}
	for _, c := range r.iterCtxs {
		c.Detach()
	}
	destroyAll(r.elseCase)
	r.iters = nil
	r.iterCtxs = nil
	r.elseCase = nil
}

func (r *ForRender) all() []RenderNode {
	var out []RenderNode
	for _, nodes := range r.iters {
		out = append(out, nodes...)
	}
	return append(out, r.elseCase...)
}

func (r *ForRender) RenderInto(parent *html.Node) error {
	r.reg = newRegion(parent, "for "+r.src.Var())
	if err := r.build(); err != nil {
		return err
	}
	return r.reg.fill(r.all())
}

func (r *ForRender) RenderText(b *strings.Builder) error {
	if err := r.build(); err != nil {
		return err
	}
	return renderAllText(b, r.all())
}

func (r *ForRender) UpdateIfNeeded() error {
	return r.flush(func() error {
		if err := r.build(); err != nil {
			return err
		}
		if r.reg.parent != nil {
			return r.reg.fill(r.all())
		}
		return nil
	}, func() error { return updateAll(r.all()) })
}

func (r *ForRender) Destroy() {
	r.subs.off()
	r.destroyIters()
}

// SetRender performs the assignment when the tree binds; the value
// expression is re-assigned whenever it changes.
type SetRender struct {
	delayed
	target expr.Node
	value  expr.Node
	ctx    *binding.Context
	subs   subs
}

func newSetRender(_ *Factory, n parser.Node) (RenderNode, error) {
	src := n.(*parser.SetNode)
	r := &SetRender{target: src.Target().Clone(), value: src.Value().Clone()}
	r.subs.on(r.value.Events(), "change", r.changed)
	return r, nil
}

func (r *SetRender) BindCtx(ctx *binding.Context) error {
	r.ctx = ctx
	r.target.BindCtx(ctx)
	r.value.BindCtx(ctx)
	return r.assign()
}

func (r *SetRender) assign() error {
	v, err := r.value.Eval(false)
	if err != nil {
		// not evaluable yet; re-assigned once the inputs arrive
		return nil
	}
	return r.target.Assign(v)
}

func (r *SetRender) RenderInto(*html.Node) error { return nil }

func (r *SetRender) RenderText(*strings.Builder) error { return nil }

func (r *SetRender) UpdateIfNeeded() error {
	return r.flush(r.assign, func() error { return nil })
}

func (r *SetRender) Destroy() { r.subs.off() }
