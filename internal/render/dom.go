package render

import (
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// DOM helpers over golang.org/x/net/html nodes. The render tree owns the
// nodes it creates; regions managed by conditional and loop renders sit
// between marker comment nodes so they can be rebuilt in place.

func newElement(name string) *html.Node {
	lower := strings.ToLower(name)
	return &html.Node{
		Type:     html.ElementNode,
		Data:     lower,
		DataAtom: atom.Lookup([]byte(lower)),
	}
}

func newText(text string) *html.Node {
	return &html.Node{Type: html.TextNode, Data: text}
}

func newComment(text string) *html.Node {
	return &html.Node{Type: html.CommentNode, Data: text}
}

func setAttr(n *html.Node, name, val string) {
	lower := strings.ToLower(name)
	for i := range n.Attr {
		if n.Attr[i].Key == lower {
			n.Attr[i].Val = val
			return
		}
	}
	n.Attr = append(n.Attr, html.Attribute{Key: lower, Val: val})
}

func getAttr(n *html.Node, name string) (string, bool) {
	lower := strings.ToLower(name)
	for _, a := range n.Attr {
		if a.Key == lower {
			return a.Val, true
		}
	}
	return "", false
}

// removeBetween detaches every sibling strictly between from and to.
func removeBetween(parent, from, to *html.Node) {
	for ch := from.NextSibling; ch != nil && ch != to; {
		next := ch.NextSibling
		parent.RemoveChild(ch)
		ch = next
	}
}

// insertBefore appends n to parent just before the marker node.
func insertBefore(parent, marker, n *html.Node) {
	parent.InsertBefore(n, marker)
}

// serialize renders the children of root as an HTML fragment.
func serialize(root *html.Node) (string, error) {
	var b strings.Builder
	for ch := root.FirstChild; ch != nil; ch = ch.NextSibling {
		if err := html.Render(&b, ch); err != nil {
			return "", err
		}
	}
	return b.String(), nil
}
