package expr

import (
	"strings"
	"sync"

	"github.com/ginja-dev/ginja/internal/errors"
)

// stopSet tells the parser which unconsumed tokens end a subexpression,
// either by token type or by literal value.
type stopSet struct {
	types map[tokType]bool
	vals  map[string]bool
}

func stopTypes(types ...tokType) stopSet {
	s := stopSet{types: make(map[tokType]bool)}
	for _, t := range types {
		s.types[t] = true
	}
	return s
}

func stopVals(vals ...string) stopSet {
	s := stopSet{vals: make(map[string]bool)}
	for _, v := range vals {
		s.vals[v] = true
	}
	return s
}

func (s stopSet) matches(tok token) bool {
	if s.types[tok.typ] {
		return true
	}
	if v, ok := tok.val.(string); ok && s.vals[v] {
		return true
	}
	return false
}

type opEntry struct {
	typ tokType
	val string
}

// partialEval reduces the operator stack while the pending operators
// have priority >= pri, combining arguments into nodes.
func partialEval(argStack *[]Node, opStack *[]opEntry, pri int, src string, loc int) error {
	for len(*opStack) > 0 && pri <= opPriority[(*opStack)[len(*opStack)-1].val] {
		op := (*opStack)[len(*opStack)-1]
		*opStack = (*opStack)[:len(*opStack)-1]
		if len(*argStack) == 0 {
			return errors.NewExpressionSyntax("not enough arguments for operator '"+op.val+"'", src, loc)
		}
		argR := (*argStack)[len(*argStack)-1]
		*argStack = (*argStack)[:len(*argStack)-1]
		var argL Node
		if !unaryOps[op.val] {
			if len(*argStack) == 0 {
				return errors.NewExpressionSyntax("not enough arguments for operator '"+op.val+"'", src, loc)
			}
			argL = (*argStack)[len(*argStack)-1]
			*argStack = (*argStack)[:len(*argStack)-1]
		}
		if op.val == "." {
			attr, ok := argR.(*IdentNode)
			if !ok {
				return errors.NewExpressionSyntax("attribute name expected after '.'", src, loc)
			}
			*argStack = append(*argStack, NewAttrAccess(argL, attr))
		} else {
			*argStack = append(*argStack, NewOp(op.val, argL, argR))
		}
	}
	return nil
}

// parseArgs parses the argument list of a call, up to and including the
// closing parenthesis.
func parseArgs(ts *tokenStream) ([]Node, map[string]Node, error) {
	var args []Node
	kwargs := make(map[string]Node)
	var arg Node
	for {
		var endt *token
		var err error
		arg, endt, _, err = parseStream(ts, stopTypes(tComma, tEqual, tRParen), false)
		if err != nil {
			return nil, nil, err
		}
		if endt == nil {
			return nil, nil, errors.NewExpressionSyntax("unterminated argument list", ts.srcStr, ts.lastPos)
		}
		switch endt.typ {
		case tEqual:
			// switch to keyword arguments
		case tRParen:
			if arg != nil {
				args = append(args, arg)
			}
			return args, kwargs, nil
		default:
			args = append(args, arg)
			continue
		}
		break
	}
	for {
		name, ok := arg.(*IdentNode)
		if !ok {
			return nil, nil, errors.NewExpressionSyntax("invalid keyword argument name: '"+stringOf(arg)+"'", ts.srcStr, ts.lastPos)
		}
		val, endt, _, err := parseStream(ts, stopTypes(tComma, tRParen), false)
		if err != nil {
			return nil, nil, err
		}
		if endt == nil {
			return nil, nil, errors.NewExpressionSyntax("unterminated argument list", ts.srcStr, ts.lastPos)
		}
		kwargs[name.Name()] = val
		if endt.typ == tRParen {
			return args, kwargs, nil
		}
		arg, endt, _, err = parseStream(ts, stopTypes(tEqual), false)
		if err != nil {
			return nil, nil, err
		}
		if endt == nil {
			return nil, nil, errors.NewExpressionSyntax("expecting '=' in keyword argument", ts.srcStr, ts.lastPos)
		}
	}
}

// parseLst parses a list literal or list comprehension, up to and
// including the closing bracket.
func parseLst(ts *tokenStream) (Node, error) {
	elem, endt, _, err := parseStream(ts, stopTypes(tRBracket, tComma, tKeyword), false)
	if err != nil {
		return nil, err
	}
	if endt == nil {
		return nil, errors.NewExpressionSyntax("unterminated list", ts.srcStr, ts.lastPos)
	}
	if elem == nil && endt.typ == tRBracket {
		return NewList(nil), nil
	}
	if endt.typ == tKeyword {
		vari, endt, _, err := parseStream(ts, stopTypes(tKeyword), false)
		if err != nil {
			return nil, err
		}
		if endt == nil {
			return nil, errors.NewExpressionSyntax("unterminated list comprehension", ts.srcStr, ts.lastPos)
		}
		ident, ok := vari.(*IdentNode)
		if !ok {
			return nil, errors.NewExpressionSyntax("invalid list comprehension variable: '"+stringOf(vari)+"'", ts.srcStr, ts.lastPos)
		}
		lst, endt, _, err := parseStream(ts, stopTypes(tKeyword, tRBracket), false)
		if err != nil {
			return nil, err
		}
		if endt == nil {
			return nil, errors.NewExpressionSyntax("unterminated list comprehension", ts.srcStr, ts.lastPos)
		}
		var cond Node
		if endt.typ == tKeyword {
			cond, endt, _, err = parseStream(ts, stopTypes(tRBracket), false)
			if err != nil {
				return nil, err
			}
			if endt == nil {
				return nil, errors.NewExpressionSyntax("unterminated list comprehension", ts.srcStr, ts.lastPos)
			}
		}
		return NewCompr(elem, ident, lst, cond), nil
	}
	elems := []Node{elem}
	for endt.typ != tRBracket {
		elem, endt, _, err = parseStream(ts, stopTypes(tRBracket, tComma, tKeyword), false)
		if err != nil {
			return nil, err
		}
		if endt == nil {
			return nil, errors.NewExpressionSyntax("unterminated list", ts.srcStr, ts.lastPos)
		}
		elems = append(elems, elem)
	}
	return NewList(elems), nil
}

// parseSlice parses an index or slice subscript, up to and including the
// closing bracket.
func parseSlice(ts *tokenStream) (*SliceNode, error) {
	start, endt, _, err := parseStream(ts, stopTypes(tColon, tRBracket), false)
	if err != nil {
		return nil, err
	}
	if endt == nil {
		return nil, errors.NewExpressionSyntax("unterminated subscript", ts.srcStr, ts.lastPos)
	}
	if endt.typ != tColon {
		return NewSlice(false, start, nil, nil), nil
	}
	end, endt, _, err := parseStream(ts, stopTypes(tRBracket, tColon), false)
	if err != nil {
		return nil, err
	}
	if endt == nil {
		return nil, errors.NewExpressionSyntax("unterminated subscript", ts.srcStr, ts.lastPos)
	}
	var step Node
	if endt.typ == tColon {
		step, endt, _, err = parseStream(ts, stopTypes(tRBracket), false)
		if err != nil {
			return nil, err
		}
		if endt == nil {
			return nil, errors.NewExpressionSyntax("unterminated subscript", ts.srcStr, ts.lastPos)
		}
	}
	return NewSlice(true, start, end, step), nil
}

const tNone tokType = -1

// parseStream is a shunting-yard parser over the token stream. It stops
// at (and consumes) the first token matching stops, returning the parsed
// tree, the stop token (nil at end of input) and the rune offset where
// parsing stopped. With trailingOK set, an unexpected token ends parsing
// instead of erroring and the returned offset points at it.
func parseStream(ts *tokenStream, stops stopSet, trailingOK bool) (Node, *token, int, error) {
	var argStack []Node
	var opStack []opEntry
	prevTok := tNone
	prevSet := false
	savePos := 0

	valueStart := func() bool {
		switch prevTok {
		case tOperator, tNone, tLBracketList, tLParenExpr, tLParenFunction, tKeyword:
			return true
		}
		return false
	}

	result := func() (Node, error) {
		if err := partialEval(&argStack, &opStack, -1, ts.srcStr, ts.lastPos); err != nil {
			return nil, err
		}
		if len(argStack) > 1 || len(opStack) > 0 {
			return nil, errors.NewExpressionSyntax("invalid expression, dangling operators or arguments", ts.srcStr, ts.lastPos)
		}
		if len(argStack) == 0 {
			return nil, nil
		}
		return argStack[0], nil
	}

	for {
		tok, ok, err := ts.next()
		if err != nil {
			return nil, nil, 0, err
		}
		if !ok {
			break
		}
		if stops.matches(tok) {
			node, err := result()
			if err != nil {
				return nil, nil, 0, err
			}
			return node, &tok, tok.pos, nil
		}
		switch tok.typ {
		case tIdentifier:
			argStack = append(argStack, NewIdent(tok.val.(string)))
		case tNumber, tString:
			argStack = append(argStack, NewConst(tok.val))
		case tOperator, tDot, tKeyword:
			// '.' and 'in' are operators here; 'for'/'if' only occur
			// inside list comprehensions, handled by parseLst
			val, _ := tok.val.(string)
			if tok.typ == tDot {
				val = "."
			}
			if tok.typ == tKeyword && val != "in" {
				if trailingOK {
					node, rerr := result()
					if rerr != nil {
						return nil, nil, 0, rerr
					}
					return node, nil, ts.lastPos, nil
				}
				return nil, nil, 0, errors.NewExpressionSyntax("unexpected keyword '"+val+"'", ts.srcStr, ts.lastPos)
			}
			if val == "-" && valueStart() {
				val = "-unary"
			}
			if err := partialEval(&argStack, &opStack, opPriority[val], ts.srcStr, ts.lastPos); err != nil {
				return nil, nil, 0, err
			}
			opStack = append(opStack, opEntry{tok.typ, val})
		case tLBracket:
			// a bracket at a value position starts a list literal or
			// comprehension; anywhere else it subscripts the value on
			// the argument stack
			if valueStart() {
				lst, err := parseLst(ts)
				if err != nil {
					return nil, nil, 0, err
				}
				argStack = append(argStack, lst)
				prevTok = tLBracketList
			} else {
				sl, err := parseSlice(ts)
				if err != nil {
					return nil, nil, 0, err
				}
				if err := partialEval(&argStack, &opStack, opPriority["[]"], ts.srcStr, ts.lastPos); err != nil {
					return nil, nil, 0, err
				}
				argStack = append(argStack, sl)
				opStack = append(opStack, opEntry{tOperator, "[]"})
				prevTok = tLBracketIndex
			}
			prevSet = true
		case tLParen:
			// same discrimination for parentheses: value position means
			// a grouped expression, otherwise a call
			if valueStart() || prevTok == tLBracketIndex {
				opStack = append(opStack, opEntry{tLParenExpr, "("})
				prevTok = tLParenExpr
			} else {
				prevTok = tLParenFunction
				args, kwargs, err := parseArgs(ts)
				if err != nil {
					return nil, nil, 0, err
				}
				if err := partialEval(&argStack, &opStack, opPriority["()"], ts.srcStr, ts.lastPos); err != nil {
					return nil, nil, 0, err
				}
				argStack = append(argStack, NewFuncArgs(args, kwargs))
				opStack = append(opStack, opEntry{tOperator, "()"})
			}
			prevSet = true
		case tRParen:
			if err := partialEval(&argStack, &opStack, -1, ts.srcStr, ts.lastPos); err != nil {
				return nil, nil, 0, err
			}
			if len(opStack) == 0 || opStack[len(opStack)-1].typ != tLParenExpr {
				return nil, nil, 0, errors.NewExpressionSyntax("unbalanced ')'", ts.srcStr, ts.lastPos)
			}
			opStack = opStack[:len(opStack)-1]
		default:
			if trailingOK {
				node, err := result()
				if err != nil {
					return nil, nil, 0, err
				}
				return node, nil, ts.lastPos, nil
			}
			return nil, nil, 0, errors.NewExpressionSyntax("unexpected token "+Repr(tok.val), ts.srcStr, ts.lastPos)
		}
		if !prevSet {
			prevTok = tok.typ
		} else {
			prevSet = false
		}
		savePos = tok.pos
	}
	node, err := result()
	if err != nil {
		return nil, nil, 0, err
	}
	return node, nil, savePos, nil
}

type parseCacheKey struct {
	src        string
	trailingOK bool
}

var (
	parseCacheMu sync.Mutex
	parseCache   = map[parseCacheKey]struct {
		ast Node
		pos int
	}{}
)

// Parse parses an expression into a reactive AST, returning the root
// node and the rune offset where parsing stopped. With trailingOK set,
// only an initial portion of the string needs to be a valid expression.
// Results are cached; cache hits return an unbound clone.
func Parse(src string, trailingOK bool) (Node, int, error) {
	key := parseCacheKey{src, trailingOK}
	parseCacheMu.Lock()
	if hit, ok := parseCache[key]; ok {
		parseCacheMu.Unlock()
		return hit.ast.Clone(), hit.pos, nil
	}
	parseCacheMu.Unlock()
	ts := newTokenStream(src)
	ast, _, pos, err := parseStream(ts, stopSet{}, trailingOK)
	if err != nil {
		return nil, 0, err
	}
	if ast == nil {
		return nil, 0, errors.NewExpressionSyntax("empty expression", src, 0)
	}
	parseCacheMu.Lock()
	parseCache[key] = struct {
		ast Node
		pos int
	}{ast, pos}
	parseCacheMu.Unlock()
	return ast.Clone(), pos, nil
}

// MustParse is Parse for expressions known to be valid; it panics on a
// syntax error. Intended for tests and static initializers.
func MustParse(src string) Node {
	ast, _, err := Parse(src, false)
	if err != nil {
		panic(err)
	}
	return ast
}

// findFirst locates the earliest occurrence of any needle in src at or
// after from, preferring the longest match at the same offset.
func findFirst(src []rune, from int, needles []string) (int, string) {
	best, bestMatch := -1, ""
	s := string(src[from:])
	for _, n := range needles {
		if n == "" {
			continue
		}
		if idx := strings.Index(s, n); idx >= 0 {
			runeIdx := from + len([]rune(s[:idx]))
			if best == -1 || runeIdx < best || (runeIdx == best && len(n) > len(bestMatch)) {
				best = runeIdx
				bestMatch = n
			}
		}
	}
	return best, bestMatch
}

// ParseInterpolated parses text with embedded {{ ... }} expressions into
// a list of nodes: literal segments become constants and every embedded
// expression is wrapped in a str() call. Parsing optionally stops at the
// first occurrence of any of stopStrs outside an expression. Returns the
// consumed part of the input and the nodes.
func ParseInterpolated(src, start, end string, stopStrs []string) (string, []Node, error) {
	runes := []rune(src)
	startLen := len([]rune(start))
	endRunes := []rune(end)
	needles := append([]string{start}, stopStrs...)
	isStop := func(m string) bool {
		for _, s := range stopStrs {
			if m == s {
				return true
			}
		}
		return false
	}

	lastPos := 0
	absPos, match := findFirst(runes, 0, needles)
	var ret []Node
	for absPos > -1 && !isStop(match) {
		if lastPos < absPos {
			ret = append(ret, NewConst(string(runes[lastPos:absPos])))
		}
		absPos += startLen
		ts := newTokenStream(string(runes[absPos:]))
		ast, _, relPos, err := parseStream(ts, stopVals(string(endRunes[0])), false)
		if err != nil {
			return "", nil, err
		}
		if ast == nil {
			return "", nil, errors.NewExpressionSyntax("empty interpolated expression", src, absPos)
		}
		absPos += relPos
		rest := string(endRunes[1:])
		if absPos+len(endRunes)-1 > len(runes) || string(runes[absPos:absPos+len(endRunes)-1]) != rest {
			return "", nil, errors.NewExpressionSyntax("invalid interpolated string, expecting '"+rest+"'", src, absPos)
		}
		absPos += len(endRunes) - 1
		ret = append(ret, NewOp("()", NewIdent("str"), NewFuncArgs([]Node{ast}, nil)))
		lastPos = absPos
		absPos, match = findFirst(runes, lastPos, needles)
	}
	if len(runes) > lastPos && !isStop(match) {
		absPos = len(runes)
	}
	if absPos < lastPos {
		absPos = lastPos
	}
	if lastPos < absPos {
		ret = append(ret, NewConst(string(runes[lastPos:absPos])))
	}
	return string(runes[:absPos]), ret, nil
}

// ParseUntil parses an expression terminated by endStr, returning the
// AST and the rune offset just past endStr. Template tags use it to read
// their arguments up to the closing delimiter.
func ParseUntil(src, endStr string) (Node, int, error) {
	runes := []rune(src)
	endRunes := []rune(endStr)
	ts := newTokenStream(src)
	ast, etok, pos, err := parseStream(ts, stopVals(string(endRunes[0])), false)
	if err != nil {
		return nil, 0, err
	}
	if etok == nil {
		return nil, 0, errors.NewExpressionSyntax("expecting '"+endStr+"'", src, ts.lastPos)
	}
	rest := string(endRunes[1:])
	if pos+len(endRunes)-1 > len(runes) || string(runes[pos:pos+len(endRunes)-1]) != rest {
		return nil, 0, errors.NewExpressionSyntax("invalid argument string, expecting '"+endStr+"'", src, pos)
	}
	if ast == nil {
		return nil, 0, errors.NewExpressionSyntax("empty expression", src, 0)
	}
	return ast, pos + len(endRunes) - 1, nil
}

// ParseAssignment parses "target = value" terminated by endStr. The
// target must be assignable (identifier, attribute or index expression).
func ParseAssignment(src, endStr string) (target, value Node, consumed int, err error) {
	ts := newTokenStream(src)
	target, etok, pos, err := parseStream(ts, stopTypes(tEqual), false)
	if err != nil {
		return nil, nil, 0, err
	}
	if etok == nil || target == nil {
		return nil, nil, 0, errors.NewExpressionSyntax("expecting '=' in assignment", src, ts.lastPos)
	}
	switch target.(type) {
	case *IdentNode, *AttrAccessNode:
	case *OpNode:
		if target.(*OpNode).Op() != "[]" {
			return nil, nil, 0, errors.NewExpressionSyntax("cannot assign to "+target.String(), src, ts.lastPos)
		}
	default:
		return nil, nil, 0, errors.NewExpressionSyntax("cannot assign to "+stringOf(target), src, ts.lastPos)
	}
	runes := []rune(src)
	value, vpos, err := ParseUntil(string(runes[pos:]), endStr)
	if err != nil {
		return nil, nil, 0, err
	}
	return target, value, pos + vpos, nil
}

// UnwrapStrCall returns the single argument of a str(...) wrapper as
// produced by ParseInterpolated, or the node itself when it is no such
// call.
func UnwrapStrCall(n Node) Node {
	op, ok := n.(*OpNode)
	if !ok || op.opstr != "()" {
		return n
	}
	id, ok := op.larg.(*IdentNode)
	if !ok || id.Name() != "str" {
		return n
	}
	fa, ok := op.rarg.(*FuncArgsNode)
	if !ok || len(fa.children) != 1 {
		return n
	}
	return fa.children[0]
}

// Simplify constant-folds an expression, treating the bound context's
// immutable variables as constants.
func Simplify(exp Node) Node {
	type ctxCarrier interface{ boundImmutables() []string }
	var assume []Node
	if c, ok := exp.(ctxCarrier); ok {
		for _, name := range c.boundImmutables() {
			assume = append(assume, NewIdent(name))
		}
	}
	return exp.Simplify(assume)
}
