package token

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ginja-dev/ginja/internal/errors"
)

var testMap = []MapEntry{
	{BlockStart, "{%"},
	{BlockEnd, "%}"},
	{VariableStart, "{{"},
	{VariableEnd, "}}"},
	{CommentStart, "{#"},
	{CommentEnd, "#}"},
	{HTMLCommentStart, "<!--"},
	{HTMLCommentEnd, "-->"},
	{HTMLElementStart, "<"},
	{HTMLElementEnd, ">"},
	{Newline, "\n"},
}

func drain(st *Stream) []Token {
	var out []Token
	for {
		tok := st.Next()
		if tok.Type == EOS {
			return out
		}
		out = append(out, tok)
	}
}

func TestStreamBasicLexing(t *testing.T) {
	st := NewStream("{{x}}", "t", "", testMap)
	toks := drain(st)
	require.Len(t, toks, 3)
	assert.Equal(t, VariableStart, toks[0].Type)
	assert.Equal(t, Other, toks[1].Type)
	assert.Equal(t, "x", toks[1].Val)
	assert.Equal(t, VariableEnd, toks[2].Type)
}

func TestStreamLongestLiteralWins(t *testing.T) {
	// "<!--" must lex as a comment start, not "<" followed by text
	st := NewStream("<!--c--><a>", "t", "", testMap)
	toks := drain(st)
	var types []Type
	for _, tok := range toks {
		types = append(types, tok.Type)
	}
	assert.Equal(t, []Type{
		HTMLCommentStart, Other, HTMLCommentEnd,
		HTMLElementStart, Other, HTMLElementEnd,
	}, types)
}

func TestStreamWhitespaceAndNewlines(t *testing.T) {
	st := NewStream("a \tb\nc", "t", "", testMap)
	toks := drain(st)
	var types []Type
	for _, tok := range toks {
		types = append(types, tok.Type)
	}
	assert.Equal(t, []Type{Other, Space, Space, Other, Newline, Other}, types)

	// the newline advanced the position to the next line
	assert.Equal(t, 1, st.Loc().Line())
}

func TestStreamEOSRepeats(t *testing.T) {
	st := NewStream("a", "t", "", testMap)
	st.Next()
	assert.Equal(t, EOS, st.Next().Type)
	assert.Equal(t, EOS, st.Next().Type)
}

func TestStreamPeekAndPushback(t *testing.T) {
	st := NewStream("ab", "t", "", testMap)
	peeked := st.Peek()
	assert.Equal(t, "a", peeked.Val)
	got := st.Next()
	assert.Equal(t, peeked.Val, got.Val)

	st.PushLeft(got)
	assert.Equal(t, "a", st.Next().Val)
	assert.Equal(t, "b", st.Next().Val)

	// pushbacks stack in LIFO order
	st.PushLeft(Token{Type: Other, Val: "y"})
	st.PushLeft(Token{Type: Other, Val: "x"})
	assert.Equal(t, "x", st.PopLeft().Val)
	assert.Equal(t, "y", st.PopLeft().Val)
}

func TestStreamCatUntil(t *testing.T) {
	st := NewStream("hello {{x}}", "t", "", testMap)
	text, err := st.CatUntil(Types(VariableStart))
	require.NoError(t, err)
	assert.Equal(t, "hello ", text)
	// the delimiter is pushed back
	assert.Equal(t, VariableStart, st.Next().Type)
}

func TestStreamCatUntilEOS(t *testing.T) {
	st := NewStream("no delimiter here", "t", "", testMap)
	_, err := st.CatUntil(Types(VariableStart))
	require.Error(t, err)
	assert.True(t, errors.IsKind(err, errors.KindEOS))

	// with EOS in the set the remaining text is returned instead
	st = NewStream("tail", "t", "", testMap)
	text, err := st.CatUntil(Types(VariableStart, EOS))
	require.NoError(t, err)
	assert.Equal(t, "tail", text)
}

func TestStreamCatWhile(t *testing.T) {
	st := NewStream("   abc", "t", "", testMap)
	ws := st.CatWhile(Types(Space))
	assert.Equal(t, "   ", ws)
	assert.Equal(t, "a", st.Next().Val)
}

func TestStreamSkipSet(t *testing.T) {
	st := NewStream(" \n x", "t", "", testMap)
	st.SkipSet(Types(Space, Newline))
	assert.Equal(t, "x", st.Next().Val)
}

func TestStreamSetWithVals(t *testing.T) {
	st := NewStream("ab/c", "t", "", testMap)
	text, err := st.CatUntil(Types().WithVals("/"))
	require.NoError(t, err)
	assert.Equal(t, "ab", text)
	assert.Equal(t, "/", st.Next().Val)
}

func TestStreamSkipRunes(t *testing.T) {
	st := NewStream("{{abc}}", "t", "", testMap)
	st.SkipRunes(len("{{abc"))
	assert.Equal(t, VariableEnd, st.Next().Type)
}

func TestStreamRemainSrcAndLen(t *testing.T) {
	st := NewStream("{{x}} tail", "t", "", testMap)
	assert.Equal(t, len("{{x}} tail"), st.Len())

	tok := st.Next()
	assert.Equal(t, len("x}} tail"), st.Len())
	st.PushLeft(tok)
	assert.Equal(t, "{{x}} tail", st.RemainSrc())
	assert.Equal(t, len("{{x}} tail"), st.Len())
}

func TestStreamFind(t *testing.T) {
	st := NewStream("abc %} def", "t", "", testMap)
	assert.Equal(t, 4, st.Find("%}"))
	assert.Equal(t, -1, st.Find("{{"))

	st.Skip(2)
	assert.Equal(t, 2, st.Find("%}"))
}

func TestStreamLocTracksPosition(t *testing.T) {
	st := NewStream("ab\ncd", "t", "tpl.html", testMap)
	st.Skip(3)
	loc := st.Loc()
	assert.Equal(t, 1, loc.Line())
	assert.Equal(t, 0, loc.Column())
	assert.Equal(t, "tpl.html", loc.File())
}

func TestTypeString(t *testing.T) {
	assert.Equal(t, "BLOCK START", BlockStart.String())
	assert.Equal(t, "END OF STREAM", EOS.String())
	assert.Equal(t, "UNKNOWN TOKEN", Type(99).String())
}
