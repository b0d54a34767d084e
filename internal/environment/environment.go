// Package environment holds the parse-time and render-time options of
// the engine: delimiters, whitespace handling, disabled tags, the
// template loader and the builtin functions injected into every render
// context.
package environment

import (
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/ginja-dev/ginja/internal/binding"
	"github.com/ginja-dev/ginja/internal/errors"
	"github.com/ginja-dev/ginja/internal/expr"
	"github.com/ginja-dev/ginja/internal/token"
)

// Parser and lexer defaults.
const (
	DefaultBlockStart    = "{%"
	DefaultBlockEnd      = "%}"
	DefaultVariableStart = "{{"
	DefaultVariableEnd   = "}}"
	DefaultCommentStart  = "{#"
	DefaultCommentEnd    = "#}"
	DefaultNewline       = "\n"
)

// Loader resolves template names to source text.
type Loader interface {
	// Load returns the source of the named template and the file it came
	// from (empty when not file-backed).
	Load(name string) (src, file string, err error)
}

// Environment bundles the engine options. The zero value is not usable;
// construct with Default or New.
type Environment struct {
	BlockStart    string
	BlockEnd      string
	VariableStart string
	VariableEnd   string
	CommentStart  string
	CommentEnd    string
	Newline       string

	TrimBlocks      bool
	LstripBlocks    bool
	Autoescape      bool
	StrictUndefined bool

	DisabledTags map[string]bool
	Loader       Loader

	builtins map[string]any
}

// Option mutates an Environment during construction.
type Option func(*Environment)

// WithLoader sets the template loader.
func WithLoader(l Loader) Option { return func(e *Environment) { e.Loader = l } }

// WithDelimiters overrides the block and variable delimiters.
func WithDelimiters(blockStart, blockEnd, varStart, varEnd string) Option {
	return func(e *Environment) {
		e.BlockStart, e.BlockEnd = blockStart, blockEnd
		e.VariableStart, e.VariableEnd = varStart, varEnd
	}
}

// WithDisabledTags disables the named template tags.
func WithDisabledTags(names ...string) Option {
	return func(e *Environment) {
		for _, n := range names {
			e.DisabledTags[n] = true
		}
	}
}

// WithTrimBlocks enables removal of the first newline after a block tag.
func WithTrimBlocks() Option { return func(e *Environment) { e.TrimBlocks = true } }

// WithLstripBlocks enables stripping of whitespace before a block tag.
func WithLstripBlocks() Option { return func(e *Environment) { e.LstripBlocks = true } }

// WithStrictUndefined makes undefined variables render errors instead of
// empty strings.
func WithStrictUndefined() Option { return func(e *Environment) { e.StrictUndefined = true } }

// WithAutoescape HTML-escapes expression output in text renderings.
func WithAutoescape() Option { return func(e *Environment) { e.Autoescape = true } }

// New returns an environment with the default delimiters, modified by
// the options.
func New(opts ...Option) *Environment {
	e := &Environment{
		BlockStart:    DefaultBlockStart,
		BlockEnd:      DefaultBlockEnd,
		VariableStart: DefaultVariableStart,
		VariableEnd:   DefaultVariableEnd,
		CommentStart:  DefaultCommentStart,
		CommentEnd:    DefaultCommentEnd,
		Newline:       DefaultNewline,
		DisabledTags:  make(map[string]bool),
		builtins:      defaultBuiltins(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Default returns the default environment.
func Default() *Environment { return New() }

// TokenMap returns the lexer token map for template source.
func (e *Environment) TokenMap() []token.MapEntry {
	entries := []token.MapEntry{
		{Type: token.BlockStart, Lit: e.BlockStart},
		{Type: token.BlockEnd, Lit: e.BlockEnd},
		{Type: token.CommentStart, Lit: e.CommentStart},
		{Type: token.CommentEnd, Lit: e.CommentEnd},
		{Type: token.Newline, Lit: e.Newline},
	}
	return append(entries, token.HTMLTokens...)
}

// Tokenize returns a template token stream over src.
func (e *Environment) Tokenize(src, name, file string) *token.Stream {
	return token.NewStream(src, name, file, e.TokenMap())
}

// Builtins returns the functions available in every expression, keyed by
// name.
func (e *Environment) Builtins() map[string]any { return e.builtins }

// RegisterBuiltin adds or replaces a builtin function.
func (e *Environment) RegisterBuiltin(name string, fn any) {
	e.builtins[name] = fn
}

// BaseContext returns a fresh root context with the builtins bound as
// immutable attributes.
func (e *Environment) BaseContext() *binding.Context {
	ctx := binding.New()
	for name, fn := range e.builtins {
		ctx.SetImmutable(name, fn)
	}
	return ctx
}

func errArity(name string) error {
	return errors.NewExpression(name + "() takes exactly one positional argument")
}

func stringFunc(name string, fn func(string) string) expr.Func {
	return func(args []any, kwargs map[string]any) (any, error) {
		if len(args) != 1 || len(kwargs) > 0 {
			return nil, errArity(name)
		}
		return fn(expr.Str(args[0])), nil
	}
}

func defaultBuiltins() map[string]any {
	titleCaser := cases.Title(language.Und)
	b := map[string]any{
		"upper":    stringFunc("upper", strings.ToUpper),
		"lower":    stringFunc("lower", strings.ToLower),
		"title":    stringFunc("title", titleCaser.String),
		"casefold": stringFunc("casefold", cases.Fold().String),
		"trim": stringFunc("trim", func(s string) string {
			return strings.TrimSpace(s)
		}),
	}
	for name, fn := range expr.Builtins {
		b[name] = fn
	}
	return b
}
