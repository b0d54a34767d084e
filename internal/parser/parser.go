package parser

import (
	"github.com/ginja-dev/ginja/internal/environment"
	"github.com/ginja-dev/ginja/internal/errors"
	"github.com/ginja-dev/ginja/internal/source"
	"github.com/ginja-dev/ginja/internal/token"
)

// TagConstructor parses a registered tag; the stream is positioned just
// past the tag name.
type TagConstructor func(p *Parser, ts *token.Stream, loc *source.Location) (Node, error)

var registeredTags = map[string]TagConstructor{}

// RegisterTag adds a template tag to the global registry. Environments
// can disable registered tags individually.
func RegisterTag(name string, c TagConstructor) {
	registeredTags[name] = c
}

// Parser parses template source against an environment.
type Parser struct {
	env        *environment.Environment
	src        string
	name       string
	file       string
	parseStack []Node
	endTags    []string
}

// New returns a parser for the given source.
func New(env *environment.Environment, src, name, file string) *Parser {
	return &Parser{env: env, src: src, name: name, file: file}
}

// Env returns the parser's environment.
func (p *Parser) Env() *environment.Environment { return p.env }

// Src returns the source being parsed.
func (p *Parser) Src() string { return p.src }

// Parse parses the whole source and returns the top-level nodes.
func (p *Parser) Parse() ([]Node, error) {
	ts := p.env.Tokenize(p.src, p.name, p.file)
	nodes, _, endTag, err := p.parse(ts, nil)
	if err != nil {
		return nil, err
	}
	if endTag != "" {
		return nil, errors.NewTemplateSyntax("unexpected tag: "+endTag, p.src, ts.Loc())
	}
	return nodes, nil
}

func (p *Parser) pop() {
	p.parseStack = p.parseStack[:len(p.parseStack)-1]
}

// parent returns the node enclosing n on the parse stack, or nil.
func (p *Parser) parent(n Node) Node {
	for i := len(p.parseStack) - 1; i > 0; i-- {
		if p.parseStack[i] == n {
			return p.parseStack[i-1]
		}
	}
	return nil
}

// parseScoped parses until one of the named end tags is reached. The
// stream is left just past the end tag's name; the caller consumes the
// rest of the end tag.
func (p *Parser) parseScoped(ts *token.Stream, endTags []string) ([]Node, string, error) {
	saved := p.endTags
	p.endTags = endTags
	nodes, closing, endTag, err := p.parse(ts, nil)
	p.endTags = saved
	if err != nil {
		return nil, "", err
	}
	if closing != nil {
		return nil, "", errors.NewTemplateSyntax("unexpected closing tag "+stringOf(closing), p.src, closing.Location())
	}
	return nodes, endTag, nil
}

func (p *Parser) inEndTags(name string) bool {
	for _, t := range p.endTags {
		if t == name {
			return true
		}
	}
	return false
}

// parse reads nodes from the stream until the scope ends: startNode is
// closed, an end tag of the enclosing tag scope appears, or the stream
// runs out. Returns the nodes, the node that closed the scope (if it was
// an element) and the end-tag name (if it was a tag).
func (p *Parser) parse(ts *token.Stream, startNode Node) ([]Node, Node, string, error) {
	if startNode != nil {
		p.parseStack = append(p.parseStack, startNode)
	}
	var nodes []Node
	for {
		tok := ts.Next()
		var node Node
		var err error
		switch tok.Type {
		case token.HTMLElementStart:
			node, err = parseHTMLElement(p, ts, tok.Loc)
			if err != nil {
				return nil, nil, "", err
			}
		case token.BlockStart:
			if p.env.LstripBlocks && len(nodes) > 0 {
				nodes[len(nodes)-1].RStrip()
			}
			ts.SkipSet(token.Types(token.Space))
			name, err := ts.CatUntil(token.Types(token.Space, token.BlockEnd))
			if err != nil {
				return nil, nil, "", err
			}
			if p.inEndTags(name) {
				if startNode != nil {
					p.pop()
				}
				return nodes, nil, name, nil
			}
			node, err = p.tagFromName(name, ts, tok.Loc)
			if err != nil {
				return nil, nil, "", err
			}
		case token.HTMLCommentStart:
			node, err = parseHTMLComment(ts, tok.Loc)
			if err != nil {
				return nil, nil, "", err
			}
			nodes = append(nodes, node)
			continue
		case token.CommentStart:
			node, err = parseComment(ts, tok.Loc)
			if err != nil {
				return nil, nil, "", err
			}
			nodes = append(nodes, node)
			continue
		case token.Other, token.Newline, token.Space, token.BlockEnd, token.CommentEnd, token.HTMLElementEnd, token.HTMLCommentEnd:
			ts.PushLeft(tok)
			node, err = parseContent(p, ts, tok.Loc)
			if err != nil {
				return nil, nil, "", err
			}
			nodes = append(nodes, node)
			continue
		case token.EOS:
			if startNode != nil && !startNode.EndedBy(p, nil) {
				return nil, nil, "", errors.NewEOS("end of stream reached while parsing "+stringOf(startNode), p.src, tok.Loc)
			}
			if startNode != nil {
				ts.PushLeft(tok)
				p.pop()
			}
			return nodes, nil, "", nil
		default:
			return nil, nil, "", errors.NewTemplateSyntax("unexpected token: "+tok.Type.String()+" ("+tok.Val+")", p.src, tok.Loc)
		}

		// a parsed element or tag may close the current scope, and its
		// children parse may in turn run past further scopes
		for node != nil {
			if startNode != nil && startNode.EndedBy(p, node) {
				p.pop()
				return nodes, node, "", nil
			}
			next, endTag, err := node.ParseChildren(ts, p)
			if err != nil {
				return nil, nil, "", err
			}
			nodes = append(nodes, node)
			if endTag != "" {
				if startNode != nil {
					p.pop()
				}
				return nodes, nil, endTag, nil
			}
			node = next
		}
	}
}

func (p *Parser) tagFromName(name string, ts *token.Stream, loc *source.Location) (Node, error) {
	c, ok := registeredTags[name]
	if !ok || p.env.DisabledTags[name] {
		return nil, errors.NewTemplateSyntax("unknown (or disabled) tag: "+name, p.src, loc)
	}
	return c(p, ts, loc)
}

// consumeBlockEnd reads up to and over the block end delimiter, e.g. the
// " %}" remaining after an end tag's name.
func (p *Parser) consumeBlockEnd(ts *token.Stream) error {
	if _, err := ts.CatUntil(token.Types(token.BlockEnd)); err != nil {
		return err
	}
	ts.PopLeft()
	if p.env.TrimBlocks && ts.Peek().Type == token.Newline {
		ts.Next()
	}
	return nil
}

func stringOf(n Node) string {
	if s, ok := n.(interface{ String() string }); ok {
		return s.String()
	}
	return "node"
}
