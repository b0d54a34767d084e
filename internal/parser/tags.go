package parser

import (
	"github.com/ginja-dev/ginja/internal/errors"
	"github.com/ginja-dev/ginja/internal/expr"
	"github.com/ginja-dev/ginja/internal/source"
	"github.com/ginja-dev/ginja/internal/token"
)

func init() {
	RegisterTag("if", parseIfTag)
	RegisterTag("for", parseForTag)
	RegisterTag("set", parseSetTag)
	RegisterTag("else", strayTag("unexpected else tag (did you put more than one else tag inside an if?)"))
	RegisterTag("elif", strayTag("unexpected elif tag (did you put the elif after the else?)"))
	RegisterTag("endif", strayTag("unexpected endif tag (not in the scope of an if tag)"))
	RegisterTag("endfor", strayTag("unexpected endfor tag (not in the scope of a for tag)"))
}

func strayTag(msg string) TagConstructor {
	return func(p *Parser, ts *token.Stream, loc *source.Location) (Node, error) {
		return nil, errors.NewTemplateSyntax(msg, p.src, loc)
	}
}

// parseTagArgs parses the tag's argument expression up to and over the
// block end delimiter.
func parseTagArgs(p *Parser, ts *token.Stream) (expr.Node, error) {
	ast, consumed, err := expr.ParseUntil(ts.RemainSrc(), p.env.BlockEnd)
	if err != nil {
		return nil, err
	}
	ts.SkipRunes(consumed)
	if p.env.TrimBlocks && ts.Peek().Type == token.Newline {
		ts.Next()
	}
	return ast, nil
}

// IfCase is one branch of an if tag; the else branch has a constant true
// condition.
type IfCase struct {
	Cond expr.Node
	Body []Node
}

// IfNode is the {% if %} / {% elif %} / {% else %} / {% endif %}
// construct. Branches are tested in order; the first truthy one renders.
type IfNode struct {
	baseNode
	cases []IfCase
}

// Cases returns the branches in source order.
func (n *IfNode) Cases() []IfCase { return n.cases }

func (n *IfNode) Children() []Node {
	var all []Node
	for _, c := range n.cases {
		all = append(all, c.Body...)
	}
	return all
}

func parseIfTag(p *Parser, ts *token.Stream, loc *source.Location) (Node, error) {
	n := &IfNode{baseNode: newBaseNode(loc)}
	cond, err := parseTagArgs(p, ts)
	if err != nil {
		return nil, err
	}
	body, endTag, err := p.parseScoped(ts, []string{"else", "elif", "endif"})
	if err != nil {
		return nil, err
	}
	n.cases = append(n.cases, IfCase{Cond: cond, Body: body})
	for endTag == "elif" {
		cond, err = parseTagArgs(p, ts)
		if err != nil {
			return nil, err
		}
		body, endTag, err = p.parseScoped(ts, []string{"else", "elif", "endif"})
		if err != nil {
			return nil, err
		}
		n.cases = append(n.cases, IfCase{Cond: cond, Body: body})
	}
	if endTag == "else" {
		if err := p.consumeBlockEnd(ts); err != nil {
			return nil, err
		}
		body, endTag, err = p.parseScoped(ts, []string{"endif"})
		if err != nil {
			return nil, err
		}
		n.cases = append(n.cases, IfCase{Cond: expr.NewConst(true), Body: body})
	}
	if endTag != "endif" {
		return nil, errors.NewEOS("end of stream reached while looking for endif", p.src, ts.Loc())
	}
	if err := p.consumeBlockEnd(ts); err != nil {
		return nil, err
	}
	return n, nil
}

func (n *IfNode) String() string { return "{% if %}" }

// ForNode is the {% for x in seq %} loop. The optional {% else %} branch
// renders when the sequence is empty.
type ForNode struct {
	baseNode
	varName  string
	seq      expr.Node
	body     []Node
	elseBody []Node
}

// Var returns the loop variable name.
func (n *ForNode) Var() string { return n.varName }

// Seq returns the iterated expression.
func (n *ForNode) Seq() expr.Node { return n.seq }

// Body returns the loop body.
func (n *ForNode) Body() []Node { return n.body }

// ElseBody returns the empty-sequence branch, if any.
func (n *ForNode) ElseBody() []Node { return n.elseBody }

func (n *ForNode) Children() []Node {
	return append(append([]Node{}, n.body...), n.elseBody...)
}

func parseForTag(p *Parser, ts *token.Stream, loc *source.Location) (Node, error) {
	head, err := parseTagArgs(p, ts)
	if err != nil {
		return nil, err
	}
	op, ok := head.(*expr.OpNode)
	if !ok || op.Op() != "in" {
		return nil, errors.NewTemplateSyntax("for tag expects 'for <var> in <expression>'", p.src, loc)
	}
	ident, ok := op.Left().(*expr.IdentNode)
	if !ok {
		return nil, errors.NewTemplateSyntax("invalid loop variable: "+op.Left().String(), p.src, loc)
	}
	n := &ForNode{baseNode: newBaseNode(loc), varName: ident.Name(), seq: op.Right()}
	body, endTag, err := p.parseScoped(ts, []string{"else", "endfor"})
	if err != nil {
		return nil, err
	}
	n.body = body
	if endTag == "else" {
		if err := p.consumeBlockEnd(ts); err != nil {
			return nil, err
		}
		n.elseBody, endTag, err = p.parseScoped(ts, []string{"endfor"})
		if err != nil {
			return nil, err
		}
	}
	if endTag != "endfor" {
		return nil, errors.NewEOS("end of stream reached while looking for endfor", p.src, ts.Loc())
	}
	if err := p.consumeBlockEnd(ts); err != nil {
		return nil, err
	}
	return n, nil
}

func (n *ForNode) String() string { return "{% for " + n.varName + " %}" }

// SetNode is the {% set x = expression %} assignment tag.
type SetNode struct {
	baseNode
	target expr.Node
	value  expr.Node
}

// Target returns the assignment target expression.
func (n *SetNode) Target() expr.Node { return n.target }

// Value returns the assigned expression.
func (n *SetNode) Value() expr.Node { return n.value }

func parseSetTag(p *Parser, ts *token.Stream, loc *source.Location) (Node, error) {
	target, value, consumed, err := expr.ParseAssignment(ts.RemainSrc(), p.env.BlockEnd)
	if err != nil {
		return nil, err
	}
	ts.SkipRunes(consumed)
	if p.env.TrimBlocks && ts.Peek().Type == token.Newline {
		ts.Next()
	}
	return &SetNode{baseNode: newBaseNode(loc), target: target, value: value}, nil
}

func (n *SetNode) String() string { return "{% set " + n.target.String() + " %}" }
