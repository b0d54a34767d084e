// Package parser turns template source into a node tree: HTML elements
// with plain and reactive attributes, interpolated text, comments and
// registered template tags (if, for, set). The tree is structural; the
// render package instantiates it against data.
package parser

import (
	"github.com/ginja-dev/ginja/internal/source"
	"github.com/ginja-dev/ginja/internal/token"
)

// Node is a parsed template tree node.
type Node interface {
	// Location returns the position of the node in the source.
	Location() *source.Location
	// Children returns the node's parsed children.
	Children() []Node
	// RStrip trims trailing whitespace from the node's content; used for
	// lstrip_blocks handling on the node preceding a block tag.
	RStrip()
	// EndedBy reports whether end closes this node. A nil end means end
	// of stream.
	EndedBy(p *Parser, end Node) bool
	// ParseChildren parses the node's children from the stream, which is
	// positioned just past the node's opening tag. It returns a node that
	// was parsed but belongs to an enclosing scope (or nil), and the name
	// of an enclosing tag's end tag when one terminated parsing early.
	ParseChildren(ts *token.Stream, p *Parser) (Node, string, error)
}

type baseNode struct {
	loc      *source.Location
	children []Node
}

func newBaseNode(loc *source.Location) baseNode {
	if loc == nil {
		loc = source.NewLocation("", "", "")
	}
	return baseNode{loc: loc}
}

func (b *baseNode) Location() *source.Location { return b.loc }

func (b *baseNode) Children() []Node { return b.children }

func (b *baseNode) RStrip() {
	if len(b.children) > 0 {
		b.children[len(b.children)-1].RStrip()
	}
}

func (b *baseNode) EndedBy(_ *Parser, end Node) bool { return end == nil }

func (b *baseNode) ParseChildren(*token.Stream, *Parser) (Node, string, error) {
	return nil, "", nil
}
