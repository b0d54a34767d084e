package registry

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ginja-dev/ginja/internal/environment"
	"github.com/ginja-dev/ginja/internal/errors"
	"github.com/ginja-dev/ginja/internal/pubsub"
)

func newTestRegistry(t *testing.T, files map[string]string) (*Registry, string) {
	t.Helper()
	dir := t.TempDir()
	for name, src := range files {
		path := filepath.Join(dir, filepath.FromSlash(name))
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
		require.NoError(t, os.WriteFile(path, []byte(src), 0o644))
	}
	env := environment.New(environment.WithLoader(environment.NewFSLoader(dir, "html")))
	return New(env), dir
}

func TestRegistryGetLoadsAndCaches(t *testing.T) {
	reg, _ := newTestRegistry(t, map[string]string{"index.html": "Hello {{name}}!"})

	tpl, err := reg.Get("index.html")
	require.NoError(t, err)
	out, err := tpl.RenderText(map[string]any{"name": "Bond"})
	require.NoError(t, err)
	assert.Equal(t, "Hello Bond!", out)

	again, err := reg.Get("index.html")
	require.NoError(t, err)
	assert.Same(t, tpl, again)
}

func TestRegistryGetMissing(t *testing.T) {
	reg, _ := newTestRegistry(t, nil)
	_, err := reg.Get("nosuch.html")
	require.Error(t, err)
	assert.True(t, errors.IsKind(err, errors.KindNotFound))
}

func TestRegistryGetSyntaxError(t *testing.T) {
	reg, _ := newTestRegistry(t, map[string]string{"bad.html": "{% if x %}no end"})
	_, err := reg.Get("bad.html")
	require.Error(t, err)
}

func TestRegistryAdd(t *testing.T) {
	reg, _ := newTestRegistry(t, nil)
	tpl, err := reg.Add("inline", "{{x}}")
	require.NoError(t, err)
	out, err := tpl.RenderText(map[string]any{"x": "v"})
	require.NoError(t, err)
	assert.Equal(t, "v", out)

	got, err := reg.Get("inline")
	require.NoError(t, err)
	assert.Same(t, tpl, got)

	_, err = reg.Add("broken", "{{ 1 + }}")
	require.Error(t, err)
}

func TestRegistryReload(t *testing.T) {
	reg, dir := newTestRegistry(t, map[string]string{"a.html": "old"})
	tpl, err := reg.Get("a.html")
	require.NoError(t, err)

	var reloaded []string
	reg.Events().On("reload", func(evt pubsub.Event) {
		reloaded = append(reloaded, evt.Get("name").(string))
	})

	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.html"), []byte("new"), 0o644))
	fresh, err := reg.Reload("a.html")
	require.NoError(t, err)
	assert.NotSame(t, tpl, fresh)
	assert.Equal(t, []string{"a.html"}, reloaded)

	out, err := fresh.RenderText(nil)
	require.NoError(t, err)
	assert.Equal(t, "new", out)
}

func TestRegistryReloadFailureKeepsSilent(t *testing.T) {
	reg, _ := newTestRegistry(t, nil)
	var fired int
	reg.Events().On("reload", func(pubsub.Event) { fired++ })
	_, err := reg.Reload("missing.html")
	require.Error(t, err)
	assert.Equal(t, 0, fired)
}

func TestRegistryNamesAndEvict(t *testing.T) {
	reg, _ := newTestRegistry(t, map[string]string{"b.html": "b", "a.html": "a"})
	_, err := reg.Get("b.html")
	require.NoError(t, err)
	_, err = reg.Get("a.html")
	require.NoError(t, err)
	assert.Equal(t, []string{"a.html", "b.html"}, reg.Names())

	reg.Evict("a.html")
	assert.Equal(t, []string{"b.html"}, reg.Names())
}

func TestRegistryList(t *testing.T) {
	reg, _ := newTestRegistry(t, map[string]string{
		"a.html":     "a",
		"sub/b.html": "b",
	})
	names, err := reg.List()
	require.NoError(t, err)
	assert.Equal(t, []string{"a.html", "sub/b.html"}, names)
}

func TestRegistryNoLoader(t *testing.T) {
	reg := New(environment.New())
	_, err := reg.Get("x.html")
	require.Error(t, err)
	assert.True(t, errors.IsKind(err, errors.KindConfig))
}
