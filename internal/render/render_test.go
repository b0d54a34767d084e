package render

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ginja-dev/ginja/internal/binding"
	"github.com/ginja-dev/ginja/internal/environment"
	"github.com/ginja-dev/ginja/internal/pubsub"
)

func compileTpl(t *testing.T, src string) *Template {
	t.Helper()
	tpl, err := Compile(environment.New(), src, "test", "")
	require.NoError(t, err)
	return tpl
}

func renderText(t *testing.T, src string, data map[string]any) string {
	t.Helper()
	out, err := compileTpl(t, src).RenderText(data)
	require.NoError(t, err)
	return out
}

func TestRenderTextInterpolation(t *testing.T) {
	out := renderText(t, "Hello {{name}}!", map[string]any{"name": "Bond"})
	assert.Equal(t, "Hello Bond!", out)
}

func TestRenderTextExpression(t *testing.T) {
	out := renderText(t, "{{n}} doubled is {{n * 2}}", map[string]any{"n": 21.0})
	assert.Equal(t, "21 doubled is 42", out)
}

func TestRenderTextAutoescape(t *testing.T) {
	env := environment.New(environment.WithAutoescape())
	tpl, err := Compile(env, "<b>{{v}}</b>", "test", "")
	require.NoError(t, err)
	out, err := tpl.RenderText(map[string]any{"v": "<i>&</i>"})
	require.NoError(t, err)
	// markup written in the template stays; expression output is escaped
	assert.Equal(t, "<b>&lt;i&gt;&amp;&lt;/i&gt;</b>", out)
}

func TestRenderTextStrictUndefined(t *testing.T) {
	env := environment.New(environment.WithStrictUndefined())
	tpl, err := Compile(env, "{{nosuch}}", "test", "")
	require.NoError(t, err)
	_, err = tpl.RenderText(nil)
	require.Error(t, err)
}

func TestRenderTextIf(t *testing.T) {
	src := "{% if n > 2 %}big{% else %}small{% endif %}"
	assert.Equal(t, "big", renderText(t, src, map[string]any{"n": 5.0}))
	assert.Equal(t, "small", renderText(t, src, map[string]any{"n": 1.0}))
}

func TestRenderTextElif(t *testing.T) {
	src := "{% if n < 0 %}neg{% elif n == 0 %}zero{% else %}pos{% endif %}"
	assert.Equal(t, "neg", renderText(t, src, map[string]any{"n": -1.0}))
	assert.Equal(t, "zero", renderText(t, src, map[string]any{"n": 0.0}))
	assert.Equal(t, "pos", renderText(t, src, map[string]any{"n": 3.0}))
}

func TestRenderTextIfUndefinedCondition(t *testing.T) {
	out := renderText(t, "{% if nosuch %}x{% else %}fallback{% endif %}", nil)
	assert.Equal(t, "fallback", out)
}

func TestRenderTextFor(t *testing.T) {
	out := renderText(t, "{% for x in lst %}{{x}},{% endfor %}",
		map[string]any{"lst": []any{"a", "b", "c"}})
	assert.Equal(t, "a,b,c,", out)
}

func TestRenderTextForLoopMeta(t *testing.T) {
	out := renderText(t, "{% for x in lst %}{{loop.index}}:{{x}}{% if not loop.last %} {% endif %}{% endfor %}",
		map[string]any{"lst": []any{"a", "b"}})
	assert.Equal(t, "1:a 2:b", out)
}

func TestRenderTextForElse(t *testing.T) {
	src := "{% for x in lst %}{{x}}{% else %}empty{% endfor %}"
	assert.Equal(t, "empty", renderText(t, src, map[string]any{"lst": []any{}}))
	assert.Equal(t, "v", renderText(t, src, map[string]any{"lst": []any{"v"}}))
}

func TestRenderTextForOverMap(t *testing.T) {
	out := renderText(t, "{% for k in m %}{{k}} {% endfor %}",
		map[string]any{"m": map[string]any{"b": 1.0, "a": 2.0}})
	assert.Equal(t, "a b ", out)
}

func TestRenderTextSet(t *testing.T) {
	out := renderText(t, "{% set y = x * 2 %}{{y}}", map[string]any{"x": 4.0})
	assert.Equal(t, "8", out)
}

func TestRenderTextElement(t *testing.T) {
	out := renderText(t, `<p class="note">{{x}}</p>`, map[string]any{"x": "v"})
	assert.Equal(t, `<p class="note">v</p>`, out)
}

func TestRenderTextBuiltins(t *testing.T) {
	out := renderText(t, "{{upper(name)}}", map[string]any{"name": "bond"})
	assert.Equal(t, "BOND", out)
}

func TestRenderTextComments(t *testing.T) {
	out := renderText(t, "a{# dropped #}b<!-- kept -->c", nil)
	assert.Equal(t, "ab<!-- kept -->c", out)
}

func TestRenderTextDoctype(t *testing.T) {
	out := renderText(t, "<!doctype html><p>{{x}}</p>", map[string]any{"x": "v"})
	assert.Equal(t, "<!doctype html><p>v</p>", out)
}

func TestRenderHTMLFragment(t *testing.T) {
	tpl := compileTpl(t, "{% if ok %}<b>yes</b>{% endif %}")
	out, err := tpl.RenderHTML(map[string]any{"ok": true})
	require.NoError(t, err)
	assert.Contains(t, out, "<b>yes</b>")

	out, err = tpl.RenderHTML(map[string]any{"ok": false})
	require.NoError(t, err)
	assert.NotContains(t, out, "yes")
}

func TestRenderHTMLDynamicAttr(t *testing.T) {
	tpl := compileTpl(t, `<a href="/user/{{id}}">x</a>`)
	out, err := tpl.RenderHTML(map[string]any{"id": 7.0})
	require.NoError(t, err)
	assert.Contains(t, out, `href="/user/7"`)
}

func instantiate(t *testing.T, src string, data map[string]any) (*Instance, *binding.Context) {
	t.Helper()
	tpl := compileTpl(t, src)
	ctx := binding.WithBase(environment.New().BaseContext())
	for k, v := range data {
		require.NoError(t, ctx.Set(k, v))
	}
	inst, err := tpl.Instantiate(ctx, nil)
	require.NoError(t, err)
	inst.SetUpdateInterval(time.Hour)
	t.Cleanup(inst.Destroy)
	return inst, ctx
}

func TestInstanceReactiveText(t *testing.T) {
	inst, ctx := instantiate(t, "count: {{n}}", map[string]any{"n": 1.0})
	out, err := inst.RenderHTML()
	require.NoError(t, err)
	assert.Contains(t, out, "count: 1")

	var updates int
	inst.Events().On("update", func(pubsub.Event) { updates++ })

	require.NoError(t, ctx.Set("n", 2.0))
	assert.True(t, inst.IsDirty())
	require.NoError(t, inst.Flush())
	assert.Equal(t, 1, updates)
	assert.False(t, inst.IsDirty())

	out, err = inst.RenderHTML()
	require.NoError(t, err)
	assert.Contains(t, out, "count: 2")
	assert.NotContains(t, out, "count: 1")
}

func TestInstanceFlushWithoutChanges(t *testing.T) {
	inst, _ := instantiate(t, "{{n}}", map[string]any{"n": 1.0})
	_, err := inst.RenderHTML()
	require.NoError(t, err)

	var updates int
	inst.Events().On("update", func(pubsub.Event) { updates++ })
	require.NoError(t, inst.Flush())
	assert.Equal(t, 0, updates)
}

func TestInstanceBranchSwitch(t *testing.T) {
	inst, ctx := instantiate(t, "{% if flag %}ON{% else %}OFF{% endif %}",
		map[string]any{"flag": true})
	out, err := inst.RenderHTML()
	require.NoError(t, err)
	assert.Contains(t, out, "ON")

	require.NoError(t, ctx.Set("flag", false))
	require.NoError(t, inst.Flush())
	out, err = inst.RenderHTML()
	require.NoError(t, err)
	assert.Contains(t, out, "OFF")
	assert.NotContains(t, out, "ON")
}

func TestInstanceListGrows(t *testing.T) {
	inst, ctx := instantiate(t, "{% for x in lst %}{{x}}{% endfor %}",
		map[string]any{"lst": []any{"a"}})
	out, err := inst.RenderHTML()
	require.NoError(t, err)
	assert.Contains(t, out, "a")

	raw, err := ctx.Get("lst")
	require.NoError(t, err)
	raw.(*binding.List).Append("b")
	require.NoError(t, inst.Flush())

	out, err = inst.RenderHTML()
	require.NoError(t, err)
	assert.Contains(t, out, "ab")
}

func TestInstanceLoopSeesOuterChange(t *testing.T) {
	inst, ctx := instantiate(t, "{{title}}|{% for x in lst %}{{title}};{% endfor %}",
		map[string]any{"title": "old", "lst": []any{1.0, 2.0}})
	out, err := inst.RenderHTML()
	require.NoError(t, err)
	assert.Contains(t, out, "old|")
	assert.Contains(t, out, "old;old;")

	// a change outside the loop body reaches every iteration scope
	require.NoError(t, ctx.Set("title", "new"))
	require.NoError(t, inst.Flush())
	out, err = inst.RenderHTML()
	require.NoError(t, err)
	assert.Contains(t, out, "new|")
	assert.Contains(t, out, "new;new;")
	assert.NotContains(t, out, "old")
}

func TestInstanceDynamicAttrUpdate(t *testing.T) {
	inst, ctx := instantiate(t, `<div class="{{cls}}">x</div>`,
		map[string]any{"cls": "closed"})
	out, err := inst.RenderHTML()
	require.NoError(t, err)
	assert.Contains(t, out, `class="closed"`)

	require.NoError(t, ctx.Set("cls", "open"))
	require.NoError(t, inst.Flush())
	out, err = inst.RenderHTML()
	require.NoError(t, err)
	assert.Contains(t, out, `class="open"`)
}

func TestInstanceTwoWayInput(t *testing.T) {
	inst, ctx := instantiate(t, `<input data-value-source value="{{n}}">`,
		map[string]any{"n": 1.0})
	inputs := inst.Inputs()
	require.Len(t, inputs, 1)
	assert.Equal(t, "input", inputs[0].Name())

	// the client sends strings; solving restores the variable's type
	require.NoError(t, inputs[0].SetValue("42"))
	v, err := ctx.Get("n")
	require.NoError(t, err)
	assert.Equal(t, 42.0, v)
}

func TestInstanceTwoWayUpdateSourceOn(t *testing.T) {
	inst, _ := instantiate(t,
		`<input data-value-source value="{{n}}">`+
			`<input data-value-source data-update-source-on="change" value="{{n}}">`,
		map[string]any{"n": 1.0})
	inputs := inst.Inputs()
	require.Len(t, inputs, 2)
	assert.Equal(t, "input", inputs[0].UpdateSourceOn())
	assert.Equal(t, "change", inputs[1].UpdateSourceOn())
}

func TestInstanceTwoWayInputString(t *testing.T) {
	inst, ctx := instantiate(t, `<input data-value-source value="{{name}}">`,
		map[string]any{"name": "old"})
	inputs := inst.Inputs()
	require.Len(t, inputs, 1)
	require.NoError(t, inputs[0].SetValue("new"))
	v, err := ctx.Get("name")
	require.NoError(t, err)
	assert.Equal(t, "new", v)
}

func TestInstanceTwoWayInputExpression(t *testing.T) {
	inst, ctx := instantiate(t, `<input data-value-source value="{{n + 1}}">`,
		map[string]any{"n": 0.0})
	inputs := inst.Inputs()
	require.Len(t, inputs, 1)
	require.NoError(t, inputs[0].SetValue("5"))
	v, err := ctx.Get("n")
	require.NoError(t, err)
	assert.Equal(t, 4.0, v)
}

func TestInstanceTwoWayNeedsSingleExpression(t *testing.T) {
	tpl := compileTpl(t, `<input data-value-source value="{{a}}{{b}}">`)
	ctx := binding.WithBase(environment.New().BaseContext())
	require.NoError(t, ctx.Set("a", 1.0))
	require.NoError(t, ctx.Set("b", 2.0))
	_, err := tpl.Instantiate(ctx, nil)
	require.Error(t, err)
}

func TestInstanceDestroyStopsUpdates(t *testing.T) {
	inst, ctx := instantiate(t, "{{n}}", map[string]any{"n": 1.0})
	inst.Destroy()
	require.NoError(t, ctx.Set("n", 2.0))
	require.NoError(t, inst.Flush())
}

func TestTemplateRenderTextIsolation(t *testing.T) {
	// renders against different data do not share state
	tpl := compileTpl(t, "{{x}}")
	a, err := tpl.RenderText(map[string]any{"x": "a"})
	require.NoError(t, err)
	b, err := tpl.RenderText(map[string]any{"x": "b"})
	require.NoError(t, err)
	assert.Equal(t, "a", a)
	assert.Equal(t, "b", b)
}
