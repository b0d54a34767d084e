package render

import (
	"strings"

	"golang.org/x/net/html"

	"github.com/ginja-dev/ginja/internal/binding"
	"github.com/ginja-dev/ginja/internal/interp"
	"github.com/ginja-dev/ginja/internal/parser"
)

// TextRender renders a run of interpolated text as a DOM text node,
// rewritten in place when the data changes.
type TextRender struct {
	delayed
	istr   *interp.InterpolatedStr
	node   *html.Node
	escape bool
	strict bool
	subs   subs
}

func newTextRender(f *Factory, n parser.Node) (RenderNode, error) {
	src := n.(*parser.Content)
	r := &TextRender{
		istr:   src.Interpolated().Clone(),
		escape: f.env.Autoescape,
		strict: f.env.StrictUndefined,
	}
	r.subs.on(r.istr.Events(), "change", r.changed)
	return r, nil
}

func (r *TextRender) BindCtx(ctx *binding.Context) error {
	r.istr.BindCtx(ctx)
	return nil
}

func (r *TextRender) RenderInto(parent *html.Node) error {
	// the DOM serializer escapes text nodes itself, so only strictness
	// applies on this path
	v := r.istr.Value()
	if r.strict {
		var err error
		if v, err = r.istr.Render(false, true); err != nil {
			return err
		}
	}
	r.node = newText(v)
	parent.AppendChild(r.node)
	return nil
}

func (r *TextRender) RenderText(b *strings.Builder) error {
	if r.escape || r.strict {
		v, err := r.istr.Render(r.escape, r.strict)
		if err != nil {
			return err
		}
		b.WriteString(v)
		return nil
	}
	b.WriteString(r.istr.Value())
	return nil
}

func (r *TextRender) UpdateIfNeeded() error {
	return r.flush(func() error {
		if r.node != nil {
			r.node.Data = r.istr.Value()
		}
		return nil
	}, func() error { return nil })
}

func (r *TextRender) Destroy() { r.subs.off() }

// DeclRender keeps a markup declaration such as <!DOCTYPE html> in the
// output verbatim.
type DeclRender struct {
	delayed
	content string
}

func newDeclRender(_ *Factory, n parser.Node) (RenderNode, error) {
	return &DeclRender{content: n.(*parser.HTMLDecl).Content()}, nil
}

func (r *DeclRender) BindCtx(*binding.Context) error { return nil }

func (r *DeclRender) RenderInto(parent *html.Node) error {
	parent.AppendChild(&html.Node{Type: html.RawNode, Data: r.content})
	return nil
}

func (r *DeclRender) RenderText(b *strings.Builder) error {
	b.WriteString(r.content)
	return nil
}

func (r *DeclRender) UpdateIfNeeded() error { return nil }

func (r *DeclRender) Destroy() {}

// CommentRender keeps an HTML comment in the output verbatim.
type CommentRender struct {
	delayed
	content string
}

func newCommentRender(_ *Factory, n parser.Node) (RenderNode, error) {
	return &CommentRender{content: n.(*parser.HTMLComment).Content()}, nil
}

func (r *CommentRender) BindCtx(*binding.Context) error { return nil }

func (r *CommentRender) RenderInto(parent *html.Node) error {
	parent.AppendChild(newComment(r.content))
	return nil
}

func (r *CommentRender) RenderText(b *strings.Builder) error {
	b.WriteString("<!--" + r.content + "-->")
	return nil
}

func (r *CommentRender) UpdateIfNeeded() error { return nil }

func (r *CommentRender) Destroy() {}
