// Package expr implements the engine's expression language: a
// Python-flavoured grammar parsed with a shunting-yard parser into a
// reactive AST. Bound to a binding.Context, every node caches its value,
// tracks staleness and emits change events, so a template only
// re-evaluates the subexpressions a data change actually affects.
//
// Known departures from full Python syntax, inherited from the engine
// this follows: no chained comparisons (1 <= 2 < 3), no tuples and no
// dict literals.
package expr

import (
	"strings"

	"github.com/ginja-dev/ginja/internal/errors"
)

type tokType int

const (
	tSpace tokType = iota
	tNumber
	tLBracket
	tRBracket
	tLParen
	tRParen
	tLBrace
	tRBrace
	tDot
	tComma
	tColon
	tOperator
	tString
	tIdentifier
	tLBracketIndex
	tLBracketList
	tLParenFunction
	tLParenExpr
	tEqual
	tKeyword // for, if, in (in doubles as an operator depending on position)
	tUnknown
)

type token struct {
	typ tokType
	val any // float64 for numbers, string otherwise
	pos int // rune offset just past the token
}

// opPriority orders operators for the shunting-yard parser. Parentheses
// get the lowest priority so partial evaluation always stops at them.
var opPriority = map[string]int{
	"(":      -2,
	"==":     0,
	"!=":     0,
	"<":      0,
	">":      0,
	"<=":     0,
	">=":     0,
	"and":    0,
	"or":     0,
	"is":     0,
	"is not": 0,
	"in":     0,
	"not":    1,
	"+":      2,
	"-":      2,
	"*":      3,
	"/":      3,
	"//":     3,
	"%":      3,
	"-unary": 4,
	"**":     4,
	"[]":     5,
	"()":     5,
	".":      5,
}

func isIdentRune(c rune) bool {
	return c >= '0' && c <= '9' || c >= 'A' && c <= 'Z' || c >= 'a' && c <= 'z' || c == '_' || c == '$'
}

func isIdentStart(c rune) bool {
	return c >= 'A' && c <= 'Z' || c >= 'a' && c <= 'z' || c == '_' || c == '$'
}

// tokenTypeAt identifies the next token from up to four lookahead runes.
func tokenTypeAt(src []rune, pos int) tokType {
	c := src[pos]
	switch c {
	case ' ', '\t', '\n':
		return tSpace
	case '[':
		return tLBracket
	case ']':
		return tRBracket
	case '(':
		return tLParen
	case ')':
		return tRParen
	case '{':
		return tLBrace
	case '}':
		return tRBrace
	case '.':
		return tDot
	case ',':
		return tComma
	case ':':
		return tColon
	case '\'', '"':
		return tString
	}
	if c == '=' && (pos+1 >= len(src) || src[pos+1] != '=') {
		return tEqual
	}
	if c >= '0' && c <= '9' {
		return tNumber
	}
	rest := func(i int) rune {
		if pos+i < len(src) {
			return src[pos+i]
		}
		return 0
	}
	two := string(c) + string(rest(1))
	if strings.ContainsRune("-+*/<>%", c) || two == "==" || two == "!=" || two == "<=" || two == ">=" {
		return tOperator
	}
	boundary := func(r rune) bool { return !isIdentRune(r) }
	switch two {
	case "or", "is":
		if boundary(rest(2)) {
			return tOperator
		}
	case "in", "if":
		if boundary(rest(2)) {
			return tKeyword
		}
	}
	three := two + string(rest(2))
	switch three {
	case "and", "not":
		if boundary(rest(3)) {
			return tOperator
		}
	case "for":
		if boundary(rest(3)) {
			return tKeyword
		}
	}
	if isIdentStart(c) {
		return tIdentifier
	}
	return tUnknown
}

func parseNumber(src []rune, pos int) (float64, int) {
	negative := false
	if src[pos] == '-' {
		negative = true
		pos++
	}
	ret := float64(src[pos] - '0')
	pos++
	intPart := true
	div := 10.0
	for pos < len(src) && (src[pos] >= '0' && src[pos] <= '9' || intPart && src[pos] == '.') {
		if src[pos] == '.' {
			intPart = false
		} else if intPart {
			ret = ret*10 + float64(src[pos]-'0')
		} else {
			ret += float64(src[pos]-'0') / div
			div *= 10
		}
		pos++
	}
	if negative {
		return -ret, pos
	}
	return ret, pos
}

func parseString(src []rune, pos int) (string, int, error) {
	quote := src[pos]
	var b strings.Builder
	backslash := false
	start := pos
	pos++
	for pos < len(src) && (backslash || src[pos] != quote) {
		if !backslash {
			if src[pos] == '\\' {
				backslash = true
			} else {
				b.WriteRune(src[pos])
			}
		} else {
			switch src[pos] {
			case '\\':
				b.WriteRune('\\')
			case '"':
				b.WriteRune('"')
			case '\'':
				b.WriteRune('\'')
			case 'n':
				b.WriteRune('\n')
			case 'r':
				b.WriteRune('\r')
			case 't':
				b.WriteRune('\t')
			}
			backslash = false
		}
		pos++
	}
	if pos >= len(src) {
		return "", 0, errors.NewExpressionSyntax("string is missing end quote: "+string(quote), string(src), start)
	}
	return b.String(), pos + 1, nil
}

func parseIdentifier(src []rune, pos int) (string, int) {
	start := pos
	pos++
	for pos < len(src) && isIdentRune(src[pos]) {
		pos++
	}
	return string(src[start:pos]), pos
}

// tokenStream yields expression tokens one at a time with pushback.
type tokenStream struct {
	src     []rune
	srcStr  string
	pos     int
	left    []token
	lastPos int // rune offset of the most recently produced token
}

func newTokenStream(src string) *tokenStream {
	return &tokenStream{src: []rune(src), srcStr: src}
}

// next returns the next token. Returns ok=false at the end of input.
func (ts *tokenStream) next() (token, bool, error) {
	if len(ts.left) > 0 {
		tok := ts.left[0]
		ts.left = ts.left[1:]
		return tok, true, nil
	}
	for ts.pos < len(ts.src) {
		ts.lastPos = ts.pos
		typ := tokenTypeAt(ts.src, ts.pos)
		switch typ {
		case tSpace:
			ts.pos++
			continue
		case tNumber:
			num, npos := parseNumber(ts.src, ts.pos)
			ts.pos = npos
			return token{tNumber, num, npos}, true, nil
		case tString:
			s, npos, err := parseString(ts.src, ts.pos)
			if err != nil {
				return token{}, false, err
			}
			ts.pos = npos
			return token{tString, s, npos}, true, nil
		case tIdentifier:
			id, npos := parseIdentifier(ts.src, ts.pos)
			ts.pos = npos
			return token{tIdentifier, id, npos}, true, nil
		case tOperator:
			return ts.nextOperator()
		case tKeyword:
			return ts.nextKeyword()
		default:
			tok := token{typ, string(ts.src[ts.pos]), ts.pos + 1}
			ts.pos++
			return tok, true, nil
		}
	}
	return token{}, false, nil
}

func (ts *tokenStream) nextOperator() (token, bool, error) {
	src, pos := ts.src, ts.pos
	at := func(i int) rune {
		if pos+i < len(src) {
			return src[pos+i]
		}
		return 0
	}
	emit := func(val string, width int) (token, bool, error) {
		ts.pos = pos + width
		return token{tOperator, val, ts.pos}, true, nil
	}
	switch {
	case src[pos] == '*' && at(1) == '*':
		return emit("**", 2)
	case src[pos] == '/' && at(1) == '/':
		return emit("//", 2)
	case src[pos] == '=' && at(1) == '=':
		return emit("==", 2)
	case src[pos] == '<' && at(1) == '=':
		return emit("<=", 2)
	case src[pos] == '>' && at(1) == '=':
		return emit(">=", 2)
	case src[pos] == '!':
		return emit("!=", 2)
	case src[pos] == 'o':
		return emit("or", 2)
	case src[pos] == 'i' && at(1) == 's':
		// "is" may fuse with a following "not" into a single operator.
		npos := pos + 2
		for npos < len(src) && (src[npos] == ' ' || src[npos] == '\t' || src[npos] == '\n') {
			npos++
		}
		if npos+3 <= len(src) && string(src[npos:npos+3]) == "not" &&
			(npos+3 == len(src) || !isIdentRune(src[npos+3])) {
			ts.pos = npos + 3
			return token{tOperator, "is not", ts.pos}, true, nil
		}
		return emit("is", 2)
	case src[pos] == 'a':
		return emit("and", 3)
	case src[pos] == 'n':
		return emit("not", 3)
	default:
		return emit(string(src[pos]), 1)
	}
}

func (ts *tokenStream) nextKeyword() (token, bool, error) {
	src, pos := ts.src, ts.pos
	emit := func(val string) (token, bool, error) {
		ts.pos = pos + len(val)
		return token{tKeyword, val, ts.pos}, true, nil
	}
	switch {
	case src[pos] == 'f':
		return emit("for")
	case pos+1 < len(src) && src[pos+1] == 'f':
		return emit("if")
	default:
		return emit("in")
	}
}

func (ts *tokenStream) pushLeft(tok token) {
	ts.left = append([]token{tok}, ts.left...)
}
