package environment

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ginja-dev/ginja/internal/errors"
	"github.com/ginja-dev/ginja/internal/expr"
	"github.com/ginja-dev/ginja/internal/token"
)

func TestNewDefaults(t *testing.T) {
	env := New()
	assert.Equal(t, "{%", env.BlockStart)
	assert.Equal(t, "%}", env.BlockEnd)
	assert.Equal(t, "{{", env.VariableStart)
	assert.Equal(t, "}}", env.VariableEnd)
	assert.False(t, env.TrimBlocks)
	assert.False(t, env.StrictUndefined)
}

func TestOptions(t *testing.T) {
	env := New(
		WithDelimiters("<%", "%>", "<<", ">>"),
		WithTrimBlocks(),
		WithLstripBlocks(),
		WithStrictUndefined(),
		WithDisabledTags("set", "for"),
	)
	assert.Equal(t, "<%", env.BlockStart)
	assert.Equal(t, ">>", env.VariableEnd)
	assert.True(t, env.TrimBlocks)
	assert.True(t, env.LstripBlocks)
	assert.True(t, env.StrictUndefined)
	assert.True(t, env.DisabledTags["set"])
	assert.True(t, env.DisabledTags["for"])
	assert.False(t, env.DisabledTags["if"])
}

func TestTokenizeUsesDelimiters(t *testing.T) {
	env := New(WithDelimiters("<%", "%>", "{{", "}}"))
	ts := env.Tokenize("<% if %>", "t", "")
	assert.Equal(t, token.BlockStart, ts.Next().Type)
	ts.SkipSet(token.Types(token.Space))
	text, err := ts.CatUntil(token.Types(token.Space))
	require.NoError(t, err)
	assert.Equal(t, "if", text)
}

func TestBaseContextBindsBuiltins(t *testing.T) {
	env := New()
	ctx := env.BaseContext()
	for _, name := range []string{"str", "int", "len", "float", "upper", "lower", "title", "casefold", "trim"} {
		assert.True(t, ctx.Has(name), name)
	}
	// builtins cannot be reassigned
	require.Error(t, ctx.Set("str", 1.0))
}

func TestStringBuiltins(t *testing.T) {
	tests := []struct {
		src  string
		want string
	}{
		{"upper('hello')", "HELLO"},
		{"lower('HeLLo')", "hello"},
		{"title('war and peace')", "War And Peace"},
		{"casefold('Straße')", "strasse"},
		{"trim('  x  ')", "x"},
		{"upper(lower('ABC'))", "ABC"},
	}
	env := New()
	for _, tt := range tests {
		t.Run(tt.src, func(t *testing.T) {
			ast := expr.MustParse(tt.src)
			ast.BindCtx(env.BaseContext())
			val, err := ast.Eval(false)
			require.NoError(t, err)
			assert.Equal(t, tt.want, val)
		})
	}
}

func TestRegisterBuiltin(t *testing.T) {
	env := New()
	env.RegisterBuiltin("shout", expr.Func(func(args []any, kwargs map[string]any) (any, error) {
		return expr.Str(args[0]) + "!", nil
	}))
	ast := expr.MustParse("shout('hey')")
	ast.BindCtx(env.BaseContext())
	val, err := ast.Eval(false)
	require.NoError(t, err)
	assert.Equal(t, "hey!", val)
}

func writeTemplates(t *testing.T, files map[string]string) string {
	t.Helper()
	dir := t.TempDir()
	for name, src := range files {
		path := filepath.Join(dir, filepath.FromSlash(name))
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
		require.NoError(t, os.WriteFile(path, []byte(src), 0o644))
	}
	return dir
}

func TestFSLoaderLoad(t *testing.T) {
	dir := writeTemplates(t, map[string]string{
		"index.html":      "<h1>{{title}}</h1>",
		"sub/widget.html": "w",
		"notes.txt":       "not a template",
	})
	loader := NewFSLoader(dir, "html", ".jinja")

	src, file, err := loader.Load("index.html")
	require.NoError(t, err)
	assert.Equal(t, "<h1>{{title}}</h1>", src)
	assert.Equal(t, filepath.Join(dir, "index.html"), file)

	_, _, err = loader.Load("sub/widget.html")
	require.NoError(t, err)

	_, _, err = loader.Load("missing.html")
	require.Error(t, err)
	assert.True(t, errors.IsKind(err, errors.KindNotFound))

	// files outside the extension list do not resolve
	_, _, err = loader.Load("notes.txt")
	require.Error(t, err)
	assert.True(t, errors.IsKind(err, errors.KindNotFound))
}

func TestFSLoaderRejectsEscapes(t *testing.T) {
	dir := writeTemplates(t, map[string]string{"a.html": "a"})
	loader := NewFSLoader(dir, "html")
	for _, name := range []string{"../secret.html", "../../etc/passwd.html"} {
		_, _, err := loader.Load(name)
		require.Error(t, err, name)
		assert.True(t, errors.IsKind(err, errors.KindNotFound), name)
	}
}

func TestFSLoaderList(t *testing.T) {
	dir := writeTemplates(t, map[string]string{
		"b.html":     "b",
		"a.html":     "a",
		"sub/c.html": "c",
		"skip.txt":   "x",
	})
	loader := NewFSLoader(dir, "html")
	names, err := loader.List()
	require.NoError(t, err)
	assert.Equal(t, []string{"a.html", "b.html", "sub/c.html"}, names)
}
