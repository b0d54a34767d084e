// Package interp implements interpolated strings: text with embedded
// {{ ... }} expressions that re-renders lazily as the bound data
// changes. Only the segments a change actually affects are
// re-evaluated.
package interp

import (
	"strings"

	"golang.org/x/net/html"

	"github.com/ginja-dev/ginja/internal/binding"
	"github.com/ginja-dev/ginja/internal/expr"
	"github.com/ginja-dev/ginja/internal/pubsub"
)

// InterpolatedStr is a reactive template string such as
// "Hello {{ name }}, {{ surname }}!". Bind it to a context and read
// Value(); it emits "change" events whenever the rendered text goes
// stale.
type InterpolatedStr struct {
	events     pubsub.Emitter
	src        string
	asts       []expr.Node
	dirty      bool
	dirtyVals  bool
	cachedVals []string
	cached     string
}

// New parses src with the given expression delimiters. Parsing stops at
// the first occurrence of any of stopStrs outside an expression; Src()
// reports the consumed portion.
func New(src, start, end string, stopStrs []string) (*InterpolatedStr, error) {
	consumed, asts, err := expr.ParseInterpolated(src, start, end, stopStrs)
	if err != nil {
		return nil, err
	}
	return fromASTs(consumed, asts), nil
}

// MustNew is New with default {{ }} delimiters for strings known to be
// valid; it panics on a syntax error.
func MustNew(src string) *InterpolatedStr {
	s, err := New(src, "{{", "}}", nil)
	if err != nil {
		panic(err)
	}
	return s
}

func fromASTs(src string, asts []expr.Node) *InterpolatedStr {
	s := &InterpolatedStr{src: src, asts: asts, dirty: true, dirtyVals: true}
	for i, ast := range asts {
		idx := i
		ast.Events().On("change", func(evt pubsub.Event) { s.segmentChanged(evt, idx) })
	}
	s.evaluate()
	return s
}

// Src returns the consumed part of the source string.
func (s *InterpolatedStr) Src() string { return s.src }

// Events exposes the change-event emitter.
func (s *InterpolatedStr) Events() *pubsub.Emitter { return &s.events }

// IsConst reports whether the string contains no context-dependent
// expressions.
func (s *InterpolatedStr) IsConst() bool {
	for _, a := range s.asts {
		if !a.IsConst(nil) {
			return false
		}
	}
	return true
}

// BindCtx binds every embedded expression to the context.
func (s *InterpolatedStr) BindCtx(ctx *binding.Context) {
	for _, ast := range s.asts {
		ast.BindCtx(ctx)
	}
	s.dirty = true
	s.dirtyVals = true
	s.cached = ""
}

// Clone returns an unbound copy.
func (s *InterpolatedStr) Clone() *InterpolatedStr {
	return fromASTs(s.src, cloneASTs(s.asts))
}

func cloneASTs(asts []expr.Node) []expr.Node {
	out := make([]expr.Node, len(asts))
	for i, a := range asts {
		out[i] = a.Clone()
	}
	return out
}

// AST returns the n-th segment's expression; negative n counts from the
// end. With stripStr set, the str() wrapper around embedded expressions
// is removed.
func (s *InterpolatedStr) AST(n int, stripStr bool) expr.Node {
	if n < 0 {
		n += len(s.asts)
	}
	ast := s.asts[n]
	if stripStr {
		return expr.UnwrapStrCall(ast)
	}
	return ast
}

// ASTCount returns the number of segments.
func (s *InterpolatedStr) ASTCount() int { return len(s.asts) }

// RStrip returns a copy with trailing whitespace removed from the final
// literal segment, if any. Block trimming uses it.
func (s *InterpolatedStr) RStrip() *InterpolatedStr {
	asts := cloneASTs(s.asts)
	if len(asts) > 0 {
		if c, ok := asts[len(asts)-1].(*expr.ConstNode); ok {
			if str, ok := c.Value().(string); ok {
				asts[len(asts)-1] = expr.NewConst(strings.TrimRight(str, " \t\r\n"))
			}
		}
	}
	return fromASTs(s.src, asts)
}

func (s *InterpolatedStr) segmentChanged(evt pubsub.Event, idx int) {
	if !s.dirtyVals {
		if evt.Has("value") {
			s.cachedVals[idx] = expr.Str(evt.Get("value"))
		} else {
			s.dirtyVals = true
		}
	}
	if s.dirty {
		return
	}
	s.dirty = true
	s.events.Emit("change", nil)
}

// Render renders the string segment by segment. With escape set, the
// output of embedded expressions (but not the literal text around them)
// is HTML-escaped. With strict set, a segment that fails to evaluate
// returns its error instead of rendering as "".
func (s *InterpolatedStr) Render(escape, strict bool) (string, error) {
	var b strings.Builder
	for _, ast := range s.asts {
		v, err := ast.Eval(false)
		if err != nil {
			if strict {
				return "", err
			}
			continue
		}
		out := expr.Str(v)
		if escape {
			if _, literal := ast.(*expr.ConstNode); !literal {
				out = html.EscapeString(out)
			}
		}
		b.WriteString(out)
	}
	return b.String(), nil
}

// Value renders the string, re-evaluating only stale segments.
func (s *InterpolatedStr) Value() string {
	if s.dirty {
		if s.dirtyVals {
			s.evaluate()
		} else {
			s.cached = strings.Join(s.cachedVals, "")
			s.dirty = false
		}
	}
	return s.cached
}

// evaluate renders every segment. Segments that fail to evaluate render
// as the empty string; undefined variables are expected while data is
// still being bound.
func (s *InterpolatedStr) evaluate() {
	vals := make([]string, len(s.asts))
	for i, ast := range s.asts {
		v, err := ast.Eval(false)
		if err != nil {
			vals[i] = ""
			continue
		}
		vals[i] = expr.Str(v)
	}
	s.cachedVals = vals
	s.cached = strings.Join(vals, "")
	s.dirty = false
	s.dirtyVals = false
}

func (s *InterpolatedStr) String() string {
	if s.dirty {
		return "InterpolatedStr(" + s.src + ")[=dirty:" + s.Value() + "]"
	}
	return "InterpolatedStr(" + s.src + ")[=" + s.cached + "]"
}
