package expr

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ginja-dev/ginja/internal/errors"
)

func TestParseString(t *testing.T) {
	tests := []struct {
		src  string
		want string
	}{
		{"1 + 2", "1 + 2"},
		{"1+2*3", "1 + 2 * 3"},
		{"(1+2)*3", "(1 + 2) * 3"},
		{"1-(2-3)", "1 - (2 - 3)"},
		{"a.b.c", "a.b.c"},
		{"-a", "-a"},
		{"not a", "(not a)"},
		{"a[1]", "a[1]"},
		{"a[1:2]", "a[1:2]"},
		{"a[1:2:3]", "a[1:2:3]"},
		{"a[:2]", "a[:2]"},
		{"a[1:]", "a[1:]"},
		{"a[-1]", "a[-1]"},
		{"f()", "f()"},
		{"f(x)", "f(x)"},
		{"f(x, 1)", "f(x,1)"},
		{"f(x, y=1, a='b')", "f(x,a='b',y=1)"},
		{"[1,2,x]", "[1, 2, x]"},
		{"[]", "[]"},
		{"[x*2 for x in lst]", "[x * 2 for x in lst]"},
		{"[x for x in lst if x > 1]", "[x for x in lst if x > 1]"},
		{"x in [1, 2]", "x in [1, 2]"},
		{"a == b and c != d", "a == b and c != d"},
		{"a is not b", "a is not b"},
		{"2**8", "2**8"},
		{"'it\\'s'", "'it\\'s'"},
		{"obj.items[0].name", "obj.items[0].name"},
		{"str(40.0)", "str(40)"},
	}
	for _, tt := range tests {
		t.Run(tt.src, func(t *testing.T) {
			ast, _, err := Parse(tt.src, false)
			require.NoError(t, err)
			assert.Equal(t, tt.want, ast.String())
		})
	}
}

func TestParsePrintParseFixpoint(t *testing.T) {
	// printing and re-parsing must reproduce the same tree
	for _, src := range []string{
		"1 + 2 * 3", "(1 + 2) * 3", "a.b[1:2].c", "f(x, y=1)",
		"[x * 2 for x in lst if x % 2 == 0]", "(not a) or b", "-x**2",
	} {
		first, _, err := Parse(src, false)
		require.NoError(t, err, src)
		second, _, err := Parse(first.String(), false)
		require.NoError(t, err, first.String())
		assert.True(t, first.Equal(second), "%s -> %s -> %s", src, first, second)
		assert.Equal(t, first.String(), second.String(), src)
	}
}

func TestParseErrors(t *testing.T) {
	tests := []struct {
		src string
	}{
		{""},
		{"1 +"},
		{"+ +"},
		{"(1 + 2"},
		{"1 + 2)"},
		{"[1, 2"},
		{"f(x"},
		{"a ."},
		{"a . 1"},
		{"'unterminated"},
	}
	for _, tt := range tests {
		t.Run(tt.src, func(t *testing.T) {
			_, _, err := Parse(tt.src, false)
			require.Error(t, err)
		})
	}
}

func TestParseTrailing(t *testing.T) {
	ast, pos, err := Parse("a + 1 ; rest", true)
	require.NoError(t, err)
	assert.Equal(t, "a + 1", ast.String())
	assert.LessOrEqual(t, pos, len("a + 1 ;"))

	// without trailingOK the same input is an error
	_, _, err = Parse("a + 1 ; rest", false)
	require.Error(t, err)
}

func TestParseCacheReturnsClones(t *testing.T) {
	first := MustParse("cachetest + 1")
	second := MustParse("cachetest + 1")
	require.NotSame(t, first, second)
	assert.True(t, first.Equal(second))
}

func TestParseUntil(t *testing.T) {
	ast, pos, err := ParseUntil("x + 1 %} trailing", "%}")
	require.NoError(t, err)
	assert.Equal(t, "x + 1", ast.String())
	assert.Equal(t, len("x + 1 %}"), pos)

	_, _, err = ParseUntil("x + 1", "%}")
	require.Error(t, err)
}

func TestParseAssignment(t *testing.T) {
	target, value, _, err := ParseAssignment("x = 1 + 2 %}", "%}")
	require.NoError(t, err)
	assert.Equal(t, "x", target.String())
	assert.Equal(t, "1 + 2", value.String())

	target, value, _, err = ParseAssignment("obj.attr = y %}", "%}")
	require.NoError(t, err)
	assert.IsType(t, &AttrAccessNode{}, target)
	assert.Equal(t, "y", value.String())

	target, _, _, err = ParseAssignment("lst[0] = y %}", "%}")
	require.NoError(t, err)
	assert.Equal(t, "lst[0]", target.String())

	_, _, _, err = ParseAssignment("1 = y %}", "%}")
	require.Error(t, err)
	assert.True(t, errors.IsKind(err, errors.KindExpressionSyntax))

	_, _, _, err = ParseAssignment("x + 1 = y %}", "%}")
	require.Error(t, err)
}

func TestParseInterpolated(t *testing.T) {
	consumed, nodes, err := ParseInterpolated("My name is {{name}}, James {{name}}.", "{{", "}}", nil)
	require.NoError(t, err)
	assert.Equal(t, "My name is {{name}}, James {{name}}.", consumed)
	require.Len(t, nodes, 5)
	assert.Equal(t, "'My name is '", nodes[0].String())
	assert.Equal(t, "str(name)", nodes[1].String())
	assert.Equal(t, "', James '", nodes[2].String())
	assert.Equal(t, "str(name)", nodes[3].String())
	assert.Equal(t, "'.'", nodes[4].String())
}

func TestParseInterpolatedAdjacent(t *testing.T) {
	consumed, nodes, err := ParseInterpolated("{{name}}{{sur}}", "{{", "}}", nil)
	require.NoError(t, err)
	assert.Equal(t, "{{name}}{{sur}}", consumed)
	require.Len(t, nodes, 2)
	assert.Equal(t, "str(name)", nodes[0].String())
	assert.Equal(t, "str(sur)", nodes[1].String())
}

func TestParseInterpolatedStops(t *testing.T) {
	consumed, nodes, err := ParseInterpolated(`Hello {{who}}" rest`, "{{", "}}", []string{`"`})
	require.NoError(t, err)
	assert.Equal(t, "Hello {{who}}", consumed)
	require.Len(t, nodes, 2)
	assert.Equal(t, "'Hello '", nodes[0].String())
	assert.Equal(t, "str(who)", nodes[1].String())
}

func TestParseInterpolatedPlainText(t *testing.T) {
	consumed, nodes, err := ParseInterpolated("no expressions here", "{{", "}}", nil)
	require.NoError(t, err)
	assert.Equal(t, "no expressions here", consumed)
	require.Len(t, nodes, 1)
	assert.Equal(t, "'no expressions here'", nodes[0].String())
}

func TestParseInterpolatedErrors(t *testing.T) {
	_, _, err := ParseInterpolated("x {{ 1 + }} y", "{{", "}}", nil)
	require.Error(t, err)

	_, _, err = ParseInterpolated("x {{ }} y", "{{", "}}", nil)
	require.Error(t, err)
}

func TestUnwrapStrCall(t *testing.T) {
	_, nodes, err := ParseInterpolated("{{a + b}}", "{{", "}}", nil)
	require.NoError(t, err)
	require.Len(t, nodes, 1)
	assert.Equal(t, "str(a + b)", nodes[0].String())
	assert.Equal(t, "a + b", UnwrapStrCall(nodes[0]).String())

	// nodes that are no str() wrapper pass through
	plain := MustParse("a + b")
	assert.Same(t, plain, UnwrapStrCall(plain))
}

func TestIdents(t *testing.T) {
	ids := Idents(MustParse("a + b.c + f(d) + [e for e in lst]"))
	var names []string
	for _, id := range ids {
		names = append(names, id.Name())
	}
	assert.Equal(t, []string{"a", "b", "f", "d", "lst"}, names)
}
