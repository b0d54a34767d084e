package render

import (
	"strings"

	"golang.org/x/net/html"

	"github.com/ginja-dev/ginja/internal/binding"
	"github.com/ginja-dev/ginja/internal/errors"
	"github.com/ginja-dev/ginja/internal/expr"
	"github.com/ginja-dev/ginja/internal/interp"
	"github.com/ginja-dev/ginja/internal/parser"
)

// Attributes steering two-way input binding.
const (
	// attrValueSource marks an input whose value attribute should be
	// inverted back into the context when the client reports an edit.
	attrValueSource = "DATA-VALUE-SOURCE"
	// attrUpdateSourceOn optionally names the client event triggering the
	// write-back; it is passed through to the rendered attribute.
	attrUpdateSourceOn = "DATA-UPDATE-SOURCE-ON"
)

type attrBinding struct {
	name string
	istr *interp.InterpolatedStr
}

// ElementRender renders an HTML element: static attributes once, dynamic
// attributes re-patched on change, children rendered inside.
type ElementRender struct {
	delayed
	src      *parser.HTMLElement
	el       *html.Node
	dynamic  []attrBinding
	children []RenderNode
	ctx      *binding.Context
	subs     subs
	// set when the element opts into two-way value binding
	valueSource expr.Node
	updateOn    string
}

func newElementRender(f *Factory, n parser.Node) (RenderNode, error) {
	src := n.(*parser.HTMLElement)
	r := &ElementRender{src: src}
	for _, a := range src.Attrs() {
		if a.IsDynamic() {
			istr := a.Dynamic.Clone()
			r.dynamic = append(r.dynamic, attrBinding{name: a.Name, istr: istr})
			r.subs.on(istr.Events(), "change", r.changed)
		}
	}
	children, err := f.Nodes(src.Children())
	if err != nil {
		return nil, err
	}
	r.children = children
	for _, ch := range children {
		r.subs.on(ch.Events(), "change", r.childChanged)
	}
	return r, nil
}

// Name returns the element name, lowercased for output.
func (r *ElementRender) Name() string { return strings.ToLower(r.src.Name()) }

func (r *ElementRender) BindCtx(ctx *binding.Context) error {
	r.ctx = ctx
	for _, a := range r.dynamic {
		a.istr.BindCtx(ctx)
	}
	if _, ok := r.src.Attr(attrValueSource); ok {
		if err := r.bindValueSource(); err != nil {
			return err
		}
		r.updateOn = "input"
		if a, ok := r.src.Attr(attrUpdateSourceOn); ok && a.Static != "" {
			r.updateOn = strings.ToLower(a.Static)
		}
	}
	return bindAll(ctx, r.children)
}

// bindValueSource locates the single dynamic expression of the value
// attribute; SetValue solves it against user input.
func (r *ElementRender) bindValueSource() error {
	for _, a := range r.dynamic {
		if a.name != "VALUE" {
			continue
		}
		// keep the str() wrapper: solving through it turns the client's
		// string back into the variable's type
		var exprs []expr.Node
		for i := 0; i < a.istr.ASTCount(); i++ {
			ast := a.istr.AST(i, false)
			if !ast.IsConst(nil) {
				exprs = append(exprs, ast)
			}
		}
		if len(exprs) != 1 {
			return errors.NewRender("two-way value binding needs exactly one expression in the value attribute", r.src.Location())
		}
		r.valueSource = exprs[0]
		return nil
	}
	return errors.NewRender("two-way value binding needs a dynamic value attribute", r.src.Location())
}

// CanSetValue reports whether the element accepts write-backs.
func (r *ElementRender) CanSetValue() bool { return r.valueSource != nil }

// UpdateSourceOn returns the client event that triggers the write-back
// for a two-way bound element.
func (r *ElementRender) UpdateSourceOn() string { return r.updateOn }

// SetValue pushes an edited input value back into the bound context by
// inverting the value expression.
func (r *ElementRender) SetValue(val string) error {
	if r.valueSource == nil {
		return errors.NewRender("element has no value binding", r.src.Location())
	}
	target := mutableLeaf(r.valueSource)
	if target == nil {
		return errors.NewRender("value expression has no assignable variable", r.src.Location())
	}
	return r.valueSource.Solve(val, target)
}

// mutableLeaf finds the identifier to solve for: the first mutable
// identifier occurring in the expression.
func mutableLeaf(n expr.Node) expr.Node {
	for _, id := range expr.Idents(n) {
		if id.Mutable() {
			return id
		}
	}
	return nil
}

func (r *ElementRender) RenderInto(parent *html.Node) error {
	el := newElement(r.src.Name())
	for _, a := range r.src.Attrs() {
		switch {
		case !a.HasValue:
			setAttr(el, a.Name, "")
		case !a.IsDynamic():
			setAttr(el, a.Name, a.Static)
		}
	}
	for _, a := range r.dynamic {
		setAttr(el, a.name, a.istr.Value())
	}
	parent.AppendChild(el)
	r.el = el
	if r.src.Void() {
		return nil
	}
	return renderAllInto(el, r.children)
}

func (r *ElementRender) RenderText(b *strings.Builder) error {
	b.WriteString("<" + r.Name())
	for _, a := range r.src.Attrs() {
		switch {
		case !a.HasValue:
			b.WriteString(" " + strings.ToLower(a.Name))
		case a.IsDynamic():
			b.WriteString(" " + strings.ToLower(a.Name) + "=\"" + r.dynamicValue(a.Name) + "\"")
		default:
			b.WriteString(" " + strings.ToLower(a.Name) + "=\"" + a.Static + "\"")
		}
	}
	b.WriteString(">")
	if r.src.Void() {
		return nil
	}
	if err := renderAllText(b, r.children); err != nil {
		return err
	}
	b.WriteString("</" + r.Name() + ">")
	return nil
}

func (r *ElementRender) dynamicValue(name string) string {
	for _, a := range r.dynamic {
		if a.name == name {
			return a.istr.Value()
		}
	}
	return ""
}

func (r *ElementRender) UpdateIfNeeded() error {
	return r.flush(r.update, func() error { return updateAll(r.children) })
}

func (r *ElementRender) update() error {
	if r.el == nil {
		return nil
	}
	for _, a := range r.dynamic {
		setAttr(r.el, a.name, a.istr.Value())
	}
	return nil
}

func (r *ElementRender) Destroy() {
	r.subs.off()
	destroyAll(r.children)
}
