package token

import (
	"sort"
	"strings"

	"github.com/ginja-dev/ginja/internal/errors"
	"github.com/ginja-dev/ginja/internal/source"
)

// Token is a single lexed template token. Loc points at its first rune.
type Token struct {
	Type Type
	Val  string
	Loc  *source.Location
}

// Set selects tokens by type or literal value for Skip/Cat operations.
type Set struct {
	types map[Type]bool
	vals  map[string]bool
}

// Types returns a set matching the given token types.
func Types(types ...Type) Set {
	s := Set{types: make(map[Type]bool)}
	for _, t := range types {
		s.types[t] = true
	}
	return s
}

// WithVals extends the set with literal token values.
func (s Set) WithVals(vals ...string) Set {
	if s.vals == nil {
		s.vals = make(map[string]bool)
	}
	for _, v := range vals {
		s.vals[v] = true
	}
	return s
}

func (s Set) matches(tok Token) bool {
	return s.types[tok.Type] || (s.vals != nil && s.vals[tok.Val])
}

// Names renders the set for error messages.
func (s Set) Names() string {
	var parts []string
	for t := range s.types {
		parts = append(parts, t.String())
	}
	for v := range s.vals {
		parts = append(parts, "'"+v+"'")
	}
	sort.Strings(parts)
	return strings.Join(parts, ", ")
}

// Stream lexes template source against a token map. Longer literals win
// over shorter ones; anything unmatched comes out as single-rune Other
// tokens. Reads past the end keep returning EOS.
type Stream struct {
	src      []rune
	srcStr   string
	loc      *source.Location
	tokenMap []MapEntry
	left     []Token
}

// NewStream returns a stream over src. The map entries are tried longest
// first; a whitespace entry is appended automatically.
func NewStream(src, name, file string, tmap []MapEntry) *Stream {
	entries := make([]MapEntry, len(tmap), len(tmap)+1)
	copy(entries, tmap)
	sort.SliceStable(entries, func(i, j int) bool {
		return len([]rune(entries[i].Lit)) > len([]rune(entries[j].Lit))
	})
	entries = append(entries, MapEntry{Space, " "}, MapEntry{Space, "\t"})
	return &Stream{
		src:      []rune(src),
		srcStr:   src,
		loc:      source.NewLocation(src, name, file),
		tokenMap: entries,
	}
}

// Loc returns a copy of the current position.
func (st *Stream) Loc() *source.Location { return st.loc.Clone() }

// Src returns the full source being lexed.
func (st *Stream) Src() string { return st.srcStr }

// Next consumes and returns the next token.
func (st *Stream) Next() Token {
	return st.nextTok(true)
}

// Peek returns the next token without consuming it.
func (st *Stream) Peek() Token {
	return st.nextTok(false)
}

// PushLeft puts a token back; it will be the next one returned.
func (st *Stream) PushLeft(tok Token) {
	st.left = append(st.left, Token{})
	copy(st.left[1:], st.left)
	st.left[0] = tok
}

// PopLeft is Next under its queue-end name.
func (st *Stream) PopLeft() Token { return st.Next() }

func (st *Stream) nextTok(advance bool) Token {
	if len(st.left) > 0 {
		tok := st.left[0]
		if advance {
			st.left = st.left[1:]
		}
		return tok
	}
	oldLoc := st.loc.Clone()
	if st.loc.Offset() >= len(st.src) {
		return Token{Type: EOS, Loc: oldLoc}
	}
	for _, entry := range st.tokenMap {
		lit := []rune(entry.Lit)
		if len(lit) == 0 || st.loc.Offset()+len(lit) > len(st.src) {
			continue
		}
		if string(st.src[st.loc.Offset():st.loc.Offset()+len(lit)]) == entry.Lit {
			if advance {
				st.loc.Advance(len(lit))
				if entry.Type == Newline {
					st.loc.MarkNewline()
				}
			}
			return Token{Type: entry.Type, Val: entry.Lit, Loc: oldLoc}
		}
	}
	val := string(st.src[st.loc.Offset()])
	if advance {
		st.loc.Advance(1)
	}
	return Token{Type: Other, Val: val, Loc: oldLoc}
}

// Skip consumes n tokens.
func (st *Stream) Skip(n int) {
	for i := 0; i < n; i++ {
		st.Next()
	}
}

// SkipRunes consumes tokens until at least n runes of source have been
// consumed. The interpolation splitter works on raw source; this re-syncs
// the stream with how far it got.
func (st *Stream) SkipRunes(n int) {
	for n > 0 {
		tok := st.Next()
		if tok.Type == EOS {
			return
		}
		n -= len([]rune(tok.Val))
	}
}

// SkipSet consumes tokens while they match the set.
func (st *Stream) SkipSet(set Set) {
	st.CatWhile(set)
}

// CatUntil concatenates token values up to, but not including, the first
// token matching the set; that token is pushed back. Hitting the end of
// the stream first is an error unless EOS is in the set.
func (st *Stream) CatUntil(set Set) (string, error) {
	var b strings.Builder
	for {
		tok := st.Next()
		if set.matches(tok) {
			st.PushLeft(tok)
			return b.String(), nil
		}
		if tok.Type == EOS {
			return "", errors.NewEOS("end of stream while looking for "+set.Names(), st.srcStr, tok.Loc)
		}
		b.WriteString(tok.Val)
	}
}

// CatWhile concatenates token values while they match the set; the first
// non-matching token is pushed back.
func (st *Stream) CatWhile(set Set) string {
	var b strings.Builder
	for {
		tok := st.Next()
		if !set.matches(tok) || tok.Type == EOS {
			st.PushLeft(tok)
			return b.String()
		}
		b.WriteString(tok.Val)
	}
}

// RemainSrc returns the unconsumed source, pushed-back tokens included.
func (st *Stream) RemainSrc() string {
	var b strings.Builder
	for _, tok := range st.left {
		b.WriteString(tok.Val)
	}
	if st.loc.Offset() < len(st.src) {
		b.WriteString(string(st.src[st.loc.Offset():]))
	}
	return b.String()
}

// Len returns the number of unconsumed runes.
func (st *Stream) Len() int {
	n := 0
	for _, tok := range st.left {
		n += len([]rune(tok.Val))
	}
	if rest := len(st.src) - st.loc.Offset(); rest > 0 {
		n += rest
	}
	return n
}

// Find returns the rune offset of needle in the unconsumed source, or -1.
func (st *Stream) Find(needle string) int {
	remain := st.RemainSrc()
	idx := strings.Index(remain, needle)
	if idx < 0 {
		return -1
	}
	return len([]rune(remain[:idx]))
}
