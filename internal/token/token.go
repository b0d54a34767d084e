// Package token implements the template lexer. A Stream splits template
// source into delimiter, whitespace and text tokens with pushback and
// position tracking; the parser drives it token by token.
package token

// Type classifies a template token.
type Type int

const (
	BlockStart Type = iota
	BlockEnd
	VariableStart
	VariableEnd
	CommentStart
	CommentEnd
	HTMLElementStart
	HTMLElementEnd
	HTMLCommentStart
	HTMLCommentEnd
	Newline
	Space
	Other
	EOS
)

var typeNames = map[Type]string{
	BlockStart:       "BLOCK START",
	BlockEnd:         "BLOCK END",
	VariableStart:    "VARIABLE START",
	VariableEnd:      "VARIABLE END",
	CommentStart:     "COMMENT START",
	CommentEnd:       "COMMENT END",
	HTMLElementStart: "HTML ELEMENT START",
	HTMLElementEnd:   "HTML ELEMENT END",
	HTMLCommentStart: "HTML COMMENT START",
	HTMLCommentEnd:   "HTML COMMENT END",
	Newline:          "NEW LINE",
	Space:            "WHITESPACE",
	Other:            "OTHER",
	EOS:              "END OF STREAM",
}

func (t Type) String() string {
	if name, ok := typeNames[t]; ok {
		return name
	}
	return "UNKNOWN TOKEN"
}

// MapEntry binds a token type to the literal string that produces it.
type MapEntry struct {
	Type Type
	Lit  string
}

// HTMLTokens are the map entries for parsing HTML element markup.
var HTMLTokens = []MapEntry{
	{HTMLCommentStart, "<!--"},
	{HTMLCommentEnd, "-->"},
	{HTMLElementStart, "<"},
	{HTMLElementEnd, ">"},
}
