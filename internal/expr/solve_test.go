package expr

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ginja-dev/ginja/internal/binding"
	"github.com/ginja-dev/ginja/internal/errors"
)

// solveFor binds src to vars, solves the expression for the first
// mutable identifier and returns the context for inspection.
func solveFor(t *testing.T, src string, vars map[string]any, val any) *binding.Context {
	t.Helper()
	ctx := binding.FromMap(vars)
	ast := MustParse(src)
	ast.BindCtx(ctx)
	_, _ = ast.Eval(false)
	ids := Idents(ast)
	require.NotEmpty(t, ids, src)
	require.NoError(t, ast.Solve(val, ids[0]), src)
	return ctx
}

func ctxVal(t *testing.T, ctx *binding.Context, name string) any {
	t.Helper()
	v, err := ctx.Get(name)
	require.NoError(t, err)
	return v
}

func TestSolveArithmetic(t *testing.T) {
	tests := []struct {
		src  string
		vars map[string]any
		val  any
		want any
	}{
		{"x + 1", map[string]any{"x": 0.0}, 5.0, 4.0},
		{"1 + x", map[string]any{"x": 0.0}, 5.0, 4.0},
		{"x - 1", map[string]any{"x": 0.0}, 3.0, 4.0},
		{"10 - x", map[string]any{"x": 0.0}, 3.0, 7.0},
		{"2 * x", map[string]any{"x": 0.0}, 10.0, 5.0},
		{"x * 4", map[string]any{"x": 0.0}, 10.0, 2.5},
		{"2 * x + 1", map[string]any{"x": 0.0}, 11.0, 5.0},
		{"-x", map[string]any{"x": 0.0}, 5.0, -5.0},
	}
	for _, tt := range tests {
		t.Run(tt.src, func(t *testing.T) {
			ctx := solveFor(t, tt.src, tt.vars, tt.val)
			assert.Equal(t, tt.want, ctxVal(t, ctx, "x"))
		})
	}
}

func TestSolveAcceptsNumericStrings(t *testing.T) {
	// values coming from input fields arrive as strings
	ctx := solveFor(t, "x + 1", map[string]any{"x": 0.0}, "5")
	assert.Equal(t, 4.0, ctxVal(t, ctx, "x"))
}

func TestSolveNot(t *testing.T) {
	ctx := solveFor(t, "not flag", map[string]any{"flag": true}, true)
	assert.Equal(t, false, ctxVal(t, ctx, "flag"))
}

func TestSolveStringConcat(t *testing.T) {
	ctx := solveFor(t, "'Mr. ' + name", map[string]any{"name": ""}, "Mr. Bond")
	assert.Equal(t, "Bond", ctxVal(t, ctx, "name"))

	ctx = solveFor(t, "name + '!'", map[string]any{"name": ""}, "James!")
	assert.Equal(t, "James", ctxVal(t, ctx, "name"))
}

func TestSolveStrCall(t *testing.T) {
	ctx := solveFor(t, "str(x)", map[string]any{"x": 0.0}, "42")
	assert.Equal(t, 42.0, ctxVal(t, ctx, "x"))

	ctx = solveFor(t, "str(name)", map[string]any{"name": ""}, "Bond")
	assert.Equal(t, "Bond", ctxVal(t, ctx, "name"))

	ctx = solveFor(t, "str(flag)", map[string]any{"flag": false}, "True")
	assert.Equal(t, true, ctxVal(t, ctx, "flag"))

	// composite: the str() wrapper around an invertible expression
	ctx = solveFor(t, "str(x + 1)", map[string]any{"x": 0.0}, "5")
	assert.Equal(t, 4.0, ctxVal(t, ctx, "x"))
}

func TestSolveIntCall(t *testing.T) {
	ctx := solveFor(t, "int(x)", map[string]any{"x": 0.0}, "7")
	assert.Equal(t, 7.0, ctxVal(t, ctx, "x"))
}

func TestSolveList(t *testing.T) {
	ctx := solveFor(t, "[1, x, 3]", map[string]any{"x": 0.0}, []any{1.0, 9.0, 3.0})
	assert.Equal(t, 9.0, ctxVal(t, ctx, "x"))
}

func TestSolveIdentity(t *testing.T) {
	ctx := binding.FromMap(map[string]any{"x": 0.0})
	ast := MustParse("x")
	ast.BindCtx(ctx)
	require.NoError(t, ast.Solve(3.0, ast))
	assert.Equal(t, 3.0, ctxVal(t, ctx, "x"))
}

func TestSolveNoSolution(t *testing.T) {
	tests := []struct {
		src  string
		vars map[string]any
		val  any
	}{
		// the unknown occurs on both sides
		{"x + x", map[string]any{"x": 0.0}, 4.0},
		// zero multiplier cannot be divided out
		{"0 * x", map[string]any{"x": 0.0}, 4.0},
		// division is not invertible here
		{"x / 2", map[string]any{"x": 0.0}, 4.0},
		// comparison results carry too little information
		{"x > 1", map[string]any{"x": 0.0}, true},
		// len has no inverse
		{"len(x)", map[string]any{"x": "abc"}, 5.0},
	}
	for _, tt := range tests {
		t.Run(tt.src, func(t *testing.T) {
			ctx := binding.FromMap(tt.vars)
			ast := MustParse(tt.src)
			ast.BindCtx(ctx)
			_, _ = ast.Eval(false)
			ids := Idents(ast)
			require.NotEmpty(t, ids)
			err := ast.Solve(tt.val, ids[0])
			require.Error(t, err)
			assert.True(t, errors.IsKind(err, errors.KindNoSolution), "got %v", err)
		})
	}
}

func TestSolveImmutableTarget(t *testing.T) {
	ctx := binding.New()
	ctx.SetImmutable("x", 1.0)
	ast := MustParse("x + 1")
	ast.BindCtx(ctx)
	_, _ = ast.Eval(false)
	ids := Idents(ast)
	require.NotEmpty(t, ids)
	err := ast.Solve(5.0, ids[0])
	require.Error(t, err)
}

func TestAssignThroughIndex(t *testing.T) {
	ctx := binding.New()
	require.NoError(t, ctx.Set("lst", []any{1.0, 2.0, 3.0}))
	ast := MustParse("lst[1]")
	ast.BindCtx(ctx)
	_, err := ast.Eval(false)
	require.NoError(t, err)
	assert.True(t, ast.Mutable())

	require.NoError(t, ast.Assign(9.0))
	raw, err := ctx.Get("lst")
	require.NoError(t, err)
	assert.Equal(t, 9.0, raw.(*binding.List).Get(1))
}

func TestAssignThroughAttr(t *testing.T) {
	ctx := binding.New()
	require.NoError(t, ctx.Set("m", map[string]any{"k": 1.0}))
	ast := MustParse("m.k")
	ast.BindCtx(ctx)
	_, err := ast.Eval(false)
	require.NoError(t, err)

	require.NoError(t, ast.Assign(5.0))
	val, err := MustParse("m.k").EvalCtx(ctx)
	require.NoError(t, err)
	assert.Equal(t, 5.0, val)
}
