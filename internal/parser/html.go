package parser

import (
	"strings"

	"github.com/ginja-dev/ginja/internal/errors"
	"github.com/ginja-dev/ginja/internal/interp"
	"github.com/ginja-dev/ginja/internal/source"
	"github.com/ginja-dev/ginja/internal/token"
)

// Tag tables from the HTML5 parsing rules. Names are uppercased, the way
// the attribute parser normalizes them.
var (
	selfClosingTags = tagSet("AREA", "BASE", "BR", "COL", "COMMAND", "EMBED", "HR",
		"IMG", "INPUT", "KEYGEN", "LINK", "META", "PARAM", "SOURCE", "TRACK", "WBR")

	// closing the parent implicitly closes these
	parentClosingTags = tagSet("HTML", "HEAD", "BODY", "DD", "LI", "P", "OPTGROUP",
		"OPTION", "RB", "RT", "RTC", "RP", "TBODY", "TR", "TD", "TFOOT")

	eofClosingTags = tagSet("HTML", "BODY")

	autoClosingTags = map[string][]string{
		"HEAD":     {"BODY"},
		"DT":       {"DT", "DD"},
		"DD":       {"DT", "DD"},
		"LI":       {"LI"},
		"P": {"ADDRESS", "ARTICLE", "ASIDE", "BLOCKQUOTE", "DIV", "DL",
			"FIELDSET", "FOOTER", "FORM", "H1", "H2", "H3", "H4", "H5", "H6",
			"HEADER", "HGROUP", "HR", "MAIN", "NAV", "OL", "P", "PRE",
			"SECTION", "TABLE", "UL"},
		"OPTGROUP": {"OPTGROUP"},
		"OPTION":   {"OPTION", "OPTGROUP"},
		"RB":       {"RB", "RT", "RTC", "RP"},
		"RT":       {"RB", "RT", "RTC", "RP"},
		"RTC":      {"RB", "RTC", "RP"},
		"RP":       {"RB", "RT", "RTC", "RP"},
		"TBODY":    {"TBODY", "TFOOT"},
		"TH":       {"TD", "TH"},
		"THEAD":    {"TBODY", "TFOOT"},
		"TR":       {"TR"},
		"TD":       {"TD", "TH"},
		"TFOOT":    {"TBODY", "TFOOT"},
	}
)

func tagSet(names ...string) map[string]bool {
	s := make(map[string]bool, len(names))
	for _, n := range names {
		s[n] = true
	}
	return s
}

// Attr is a parsed element attribute. Names are uppercased. A valueless
// attribute has HasValue false; an attribute whose value contains
// expressions carries the interpolation, otherwise Static holds the
// resolved text.
type Attr struct {
	Name     string
	HasValue bool
	Static   string
	Dynamic  *interp.InterpolatedStr
}

// IsDynamic reports whether the attribute value depends on the context.
func (a Attr) IsDynamic() bool { return a.Dynamic != nil }

// HTMLElement is a parsed element, its name uppercased. Closing tags
// parse as elements named "/NAME".
type HTMLElement struct {
	baseNode
	name   string
	attrs  []Attr
	closed bool
}

// parseHTMLElement reads an element's open tag; the stream is positioned
// just past the '<'. Markup declarations ("<!DOCTYPE html>") parse into
// their own childless node.
func parseHTMLElement(p *Parser, ts *token.Stream, loc *source.Location) (Node, error) {
	el := &HTMLElement{baseNode: newBaseNode(loc)}
	name, err := ts.CatUntil(token.Types(token.Space, token.Newline, token.HTMLElementEnd, token.EOS))
	if err != nil {
		return nil, err
	}
	if strings.HasPrefix(name, "!") {
		return parseHTMLDecl(ts, loc, name)
	}
	el.name = strings.ToUpper(name)
	ts.SkipSet(token.Types(token.Space, token.Newline))

	tok := ts.Next()
	for tok.Type != token.HTMLElementEnd && tok.Val != "/" {
		if tok.Type == token.EOS {
			return nil, errors.NewEOS("end of stream inside tag <"+el.name, ts.Src(), tok.Loc)
		}
		attrName, err := ts.CatUntil(token.Types(token.Space, token.Newline, token.HTMLElementEnd, token.EOS).WithVals("/", "="))
		if err != nil {
			return nil, err
		}
		attrName = strings.ToUpper(tok.Val + attrName)
		ts.SkipSet(token.Types(token.Space, token.Newline))
		if ts.Peek().Val != "=" {
			el.attrs = append(el.attrs, Attr{Name: attrName})
		} else {
			ts.PopLeft()
			ts.SkipSet(token.Types(token.Space, token.Newline))
			var delims []string
			if v := ts.Peek().Val; v == `"` || v == "'" {
				delims = []string{v}
				ts.PopLeft()
			} else {
				delims = []string{" ", "\n", "\t", ">"}
			}
			istr, err := interp.New(ts.RemainSrc(), p.env.VariableStart, p.env.VariableEnd, delims)
			if err != nil {
				return nil, err
			}
			attr := Attr{Name: attrName, HasValue: true}
			if istr.IsConst() {
				attr.Static = istr.Value()
			} else {
				attr.Dynamic = istr
			}
			el.attrs = append(el.attrs, attr)
			ts.SkipRunes(len([]rune(istr.Src())))
			// consume the closing quote; unquoted values stop at
			// whitespace or '>' which the outer loop handles
			if delims[0] == `"` || delims[0] == "'" {
				ts.SkipSet(token.Types().WithVals(delims...))
			}
		}
		ts.SkipSet(token.Types(token.Space, token.Newline))
		tok = ts.Next()
	}
	if tok.Val == "/" {
		// self-closing syntax: consume the '>'
		if next := ts.Next(); next.Type != token.HTMLElementEnd {
			return nil, errors.NewTemplateSyntax("expecting '>' after '/'", ts.Src(), next.Loc)
		}
		el.closed = true
	} else if selfClosingTags[el.name] {
		el.closed = true
	}
	return el, nil
}

// Name returns the uppercased element name; "/NAME" for closing tags.
func (el *HTMLElement) Name() string { return el.name }

// Attrs returns the parsed attributes in source order.
func (el *HTMLElement) Attrs() []Attr { return el.attrs }

// Attr looks up an attribute by its uppercased name.
func (el *HTMLElement) Attr(name string) (Attr, bool) {
	for _, a := range el.attrs {
		if a.Name == name {
			return a, true
		}
	}
	return Attr{}, false
}

// IsClosing reports whether this is a closing tag ("</name>").
func (el *HTMLElement) IsClosing() bool { return strings.HasPrefix(el.name, "/") }

// Void reports whether the element can have no children.
func (el *HTMLElement) Void() bool { return selfClosingTags[el.name] }

func (el *HTMLElement) ParseChildren(ts *token.Stream, p *Parser) (Node, string, error) {
	if el.closed || el.IsClosing() {
		return nil, "", nil
	}
	children, closing, endTag, err := p.parse(ts, el)
	if err != nil {
		return nil, "", err
	}
	el.children = children
	el.closed = true
	if c, ok := closing.(*HTMLElement); ok && c.name == "/"+el.name {
		closing = nil
	}
	return closing, endTag, nil
}

func (el *HTMLElement) EndedBy(p *Parser, end Node) bool {
	if parentClosingTags[el.name] {
		if parent := p.parent(el); parent != nil && parent.EndedBy(p, end) {
			return true
		}
	}
	if end == nil {
		return eofClosingTags[el.name]
	}
	endEl, ok := end.(*HTMLElement)
	if !ok {
		return false
	}
	if endEl.name == "/"+el.name {
		return true
	}
	for _, n := range autoClosingTags[el.name] {
		if endEl.name == n {
			return true
		}
	}
	return false
}

func (el *HTMLElement) String() string {
	var b strings.Builder
	b.WriteString("<" + el.name)
	for _, a := range el.attrs {
		b.WriteString(" " + a.Name)
		if a.HasValue {
			if a.IsDynamic() {
				b.WriteString("=" + a.Dynamic.Src())
			} else {
				b.WriteString("=" + a.Static)
			}
		}
	}
	b.WriteString(">")
	return b.String()
}

// HTMLDecl is a markup declaration such as <!DOCTYPE html>, kept in the
// output verbatim.
type HTMLDecl struct {
	baseNode
	content string
}

func parseHTMLDecl(ts *token.Stream, loc *source.Location, name string) (*HTMLDecl, error) {
	rest, err := ts.CatUntil(token.Types(token.HTMLElementEnd))
	if err != nil {
		return nil, err
	}
	ts.PopLeft()
	return &HTMLDecl{baseNode: newBaseNode(loc), content: "<" + name + rest + ">"}, nil
}

// Content returns the declaration markup, angle brackets included.
func (d *HTMLDecl) Content() string { return d.content }

func (d *HTMLDecl) String() string { return d.content }

// Content is a run of text, possibly with embedded {{ }} expressions.
type Content struct {
	baseNode
	istr *interp.InterpolatedStr
}

func parseContent(p *Parser, ts *token.Stream, loc *source.Location) (*Content, error) {
	stops := []string{p.env.BlockStart, p.env.CommentStart, "<"}
	istr, err := interp.New(ts.RemainSrc(), p.env.VariableStart, p.env.VariableEnd, stops)
	if err != nil {
		return nil, err
	}
	ts.SkipRunes(len([]rune(istr.Src())))
	return &Content{baseNode: newBaseNode(loc), istr: istr}, nil
}

// Interpolated returns the reactive string of the text run.
func (c *Content) Interpolated() *interp.InterpolatedStr { return c.istr }

func (c *Content) RStrip() { c.istr = c.istr.RStrip() }

func (c *Content) String() string { return c.istr.Src() }

// HTMLComment is a <!-- --> comment, kept in the output verbatim.
type HTMLComment struct {
	baseNode
	content string
}

func parseHTMLComment(ts *token.Stream, loc *source.Location) (*HTMLComment, error) {
	content, err := ts.CatUntil(token.Types(token.HTMLCommentEnd))
	if err != nil {
		return nil, err
	}
	ts.PopLeft()
	return &HTMLComment{baseNode: newBaseNode(loc), content: content}, nil
}

// Content returns the comment text between the markers.
func (c *HTMLComment) Content() string { return c.content }

// Comment is a {# #} template comment, dropped from the output.
type Comment struct {
	baseNode
	content string
}

func parseComment(ts *token.Stream, loc *source.Location) (*Comment, error) {
	content, err := ts.CatUntil(token.Types(token.CommentEnd))
	if err != nil {
		return nil, err
	}
	ts.PopLeft()
	return &Comment{baseNode: newBaseNode(loc), content: content}, nil
}

// Content returns the comment text between the markers.
func (c *Comment) Content() string { return c.content }
