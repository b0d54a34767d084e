// Package errors defines the structured error type shared by the lexer,
// the expression language, the template parser and the renderer. Errors
// carry a kind, an optional source excerpt and a location so the CLI can
// print annotated context with a caret under the offending column.
package errors

import (
	"errors"
	"fmt"
	"strings"

	"github.com/ginja-dev/ginja/internal/source"
)

// Kind categorizes engine errors.
type Kind string

const (
	KindTemplateSyntax   Kind = "template-syntax"
	KindExpressionSyntax Kind = "expression-syntax"
	KindEOS              Kind = "unexpected-eos"
	KindRender           Kind = "render"
	KindExpression       Kind = "expression"
	KindNoSolution       Kind = "no-solution"
	KindUndefined        Kind = "undefined"
	KindNotFound         Kind = "not-found"
	KindConfig           Kind = "config"
	KindIO               Kind = "io"
)

// Error is a structured engine error with optional source location.
type Error struct {
	Kind     Kind
	Message  string
	Cause    error
	Template string
	Src      string
	Loc      *source.Location
}

// Error implements the error interface as a single line; use Context for
// the annotated source excerpt.
func (e *Error) Error() string {
	var parts []string
	if e.Kind != "" {
		parts = append(parts, fmt.Sprintf("[%s]", e.Kind))
	}
	if e.Template != "" {
		parts = append(parts, "template:"+e.Template)
	}
	if e.Loc != nil {
		parts = append(parts, fmt.Sprintf("at %d:%d", e.Loc.Line(), e.Loc.Column()))
	}
	parts = append(parts, e.Message)
	result := strings.Join(parts, " ")
	if e.Cause != nil {
		result += fmt.Sprintf(": %v", e.Cause)
	}
	return result
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error { return e.Cause }

// Is matches errors of the same kind.
func (e *Error) Is(target error) bool {
	var t *Error
	if errors.As(target, &t) {
		return e.Kind == t.Kind
	}
	return false
}

// Context renders the source lines around the error location with a caret,
// or a truncated single-line excerpt when no location is known.
func (e *Error) Context(ctxLines int) []string {
	if e.Src == "" {
		return nil
	}
	if e.Loc == nil {
		ln := "src: " + truncate(e.Src, 70)
		return []string{ln}
	}
	return source.Context(e.Src, e.Loc.Line(), e.Loc.Column(), ctxLines)
}

// Verbose returns the error message followed by the annotated source
// context, matching what the CLI prints for template errors.
func (e *Error) Verbose() string {
	lines := append([]string{e.Error()}, e.Context(4)...)
	return strings.Join(lines, "\n")
}

// WithTemplate records the template name the error originated from.
func (e *Error) WithTemplate(name string) *Error {
	e.Template = name
	return e
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + " ..."
}

// locate normalizes the location argument: a *source.Location is used as
// is, an int is interpreted as a rune offset into src.
func locate(src string, loc any) *source.Location {
	switch l := loc.(type) {
	case *source.Location:
		return l
	case int:
		if src == "" {
			return nil
		}
		return source.FromOffset(src, l)
	default:
		return nil
	}
}

// NewTemplateSyntax reports invalid template syntax at loc (either a
// *source.Location or a rune offset into src).
func NewTemplateSyntax(msg, src string, loc any) *Error {
	return &Error{Kind: KindTemplateSyntax, Message: msg, Src: src, Loc: locate(src, loc)}
}

// NewExpressionSyntax reports invalid expression syntax.
func NewExpressionSyntax(msg, src string, loc any) *Error {
	return &Error{Kind: KindExpressionSyntax, Message: msg, Src: src, Loc: locate(src, loc)}
}

// NewEOS reports an unexpected end of stream while parsing.
func NewEOS(msg, src string, loc any) *Error {
	return &Error{Kind: KindEOS, Message: msg, Src: src, Loc: locate(src, loc)}
}

// NewRender reports an error while rendering a template.
func NewRender(msg string, loc *source.Location) *Error {
	return &Error{Kind: KindRender, Message: msg, Loc: loc}
}

// NewExpression reports a general expression evaluation error.
func NewExpression(msg string) *Error {
	return &Error{Kind: KindExpression, Message: msg}
}

// NewNoSolution reports that a two-way binding could not be inverted.
func NewNoSolution(expr, val, variable string) *Error {
	return &Error{
		Kind:    KindNoSolution,
		Message: "no solution for " + expr + " = " + val + " (over " + variable + ")",
	}
}

// NewUndefined reports a lookup of an undefined identifier.
func NewUndefined(name string) *Error {
	return &Error{Kind: KindUndefined, Message: "undefined identifier: " + name}
}

// NewNotFound reports a missing template or resource.
func NewNotFound(msg string) *Error {
	return &Error{Kind: KindNotFound, Message: msg}
}

// NewConfig reports an invalid configuration value.
func NewConfig(msg string, cause error) *Error {
	return &Error{Kind: KindConfig, Message: msg, Cause: cause}
}

// NewIO wraps a filesystem or network failure.
func NewIO(msg string, cause error) *Error {
	return &Error{Kind: KindIO, Message: msg, Cause: cause}
}

// IsKind reports whether err is an engine error of the given kind.
func IsKind(err error, kind Kind) bool {
	var e *Error
	return errors.As(err, &e) && e.Kind == kind
}
