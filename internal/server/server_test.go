package server

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ginja-dev/ginja/internal/environment"
	"github.com/ginja-dev/ginja/internal/registry"
)

func newTestServer(t *testing.T, files map[string]string) (*Server, *httptest.Server) {
	t.Helper()
	dir := t.TempDir()
	for name, src := range files {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(src), 0o644))
	}
	env := environment.New(environment.WithLoader(environment.NewFSLoader(dir, "html")))
	srv := New("127.0.0.1:0", registry.New(env), nil)
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(func() {
		ts.Close()
		srv.destroySessions()
	})
	return srv, ts
}

func get(t *testing.T, url string) (int, string) {
	t.Helper()
	resp, err := http.Get(url)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp.StatusCode, string(body)
}

func postJSON(t *testing.T, url string, payload any) (int, string) {
	t.Helper()
	b, err := json.Marshal(payload)
	require.NoError(t, err)
	resp, err := http.Post(url, "application/json", bytes.NewReader(b))
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp.StatusCode, string(body)
}

func TestIndexListsTemplates(t *testing.T) {
	_, ts := newTestServer(t, map[string]string{
		"a.html": "A",
		"b.html": "B",
	})
	code, body := get(t, ts.URL+"/")
	assert.Equal(t, http.StatusOK, code)
	assert.Contains(t, body, `<a href="/view/a.html">a.html</a>`)
	assert.Contains(t, body, `<a href="/view/b.html">b.html</a>`)
}

func TestIndexEmpty(t *testing.T) {
	_, ts := newTestServer(t, nil)
	code, body := get(t, ts.URL+"/")
	assert.Equal(t, http.StatusOK, code)
	assert.Contains(t, body, "no templates found")
}

func TestViewRendersTemplate(t *testing.T) {
	_, ts := newTestServer(t, map[string]string{
		"hello.html": "Hello {{upper('world')}}!",
	})
	code, body := get(t, ts.URL+"/view/hello.html")
	assert.Equal(t, http.StatusOK, code)
	assert.Contains(t, body, `data-template="hello.html"`)
	assert.Contains(t, body, "Hello WORLD!")
	// the refresh script is injected into every view
	assert.Contains(t, body, "<script>")
}

func TestViewMissingTemplate(t *testing.T) {
	_, ts := newTestServer(t, nil)
	code, _ := get(t, ts.URL+"/view/nosuch.html")
	assert.Equal(t, http.StatusNotFound, code)
}

func TestContextUpdatesRender(t *testing.T) {
	_, ts := newTestServer(t, map[string]string{
		"greet.html": "Hi {{name}}!",
	})
	code, _ := get(t, ts.URL+"/view/greet.html")
	require.Equal(t, http.StatusOK, code)

	code, body := postJSON(t, ts.URL+"/context/greet.html", map[string]any{"name": "Bond"})
	require.Equal(t, http.StatusOK, code)
	var msg Message
	require.NoError(t, json.Unmarshal([]byte(body), &msg))
	assert.Equal(t, "update", msg.Type)
	assert.Equal(t, "greet.html", msg.Name)
	assert.Contains(t, msg.HTML, "Hi Bond!")

	// the session keeps the new value
	code, body = get(t, ts.URL+"/view/greet.html")
	require.Equal(t, http.StatusOK, code)
	assert.Contains(t, body, "Hi Bond!")
}

func TestContextRejectsBadJSON(t *testing.T) {
	_, ts := newTestServer(t, map[string]string{"a.html": "x"})
	resp, err := http.Post(ts.URL+"/context/a.html", "application/json",
		strings.NewReader("not json"))
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestValueWritesBack(t *testing.T) {
	_, ts := newTestServer(t, map[string]string{
		"form.html": `<p>{{n}}</p><input data-value-source value="{{n}}">`,
	})
	code, _ := postJSON(t, ts.URL+"/context/form.html", map[string]any{"n": 1.0})
	require.Equal(t, http.StatusOK, code)

	code, body := postJSON(t, ts.URL+"/value/form.html", map[string]any{"input": 0, "value": "42"})
	require.Equal(t, http.StatusOK, code)
	var msg Message
	require.NoError(t, json.Unmarshal([]byte(body), &msg))
	assert.Contains(t, msg.HTML, "<p>42</p>")
}

func TestValueRejectsBadIndex(t *testing.T) {
	_, ts := newTestServer(t, map[string]string{"a.html": "no inputs"})
	code, _ := postJSON(t, ts.URL+"/value/a.html", map[string]any{"input": 3, "value": "x"})
	assert.Equal(t, http.StatusBadRequest, code)
}

func TestWebsocketReceivesUpdates(t *testing.T) {
	_, ts := newTestServer(t, map[string]string{
		"live.html": "n = {{n}}",
	})
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"
	conn, _, err := websocket.Dial(ctx, wsURL, nil)
	require.NoError(t, err)
	defer conn.Close(websocket.StatusNormalClosure, "")

	code, _ := postJSON(t, ts.URL+"/context/live.html", map[string]any{"n": 7.0})
	require.Equal(t, http.StatusOK, code)

	_, data, err := conn.Read(ctx)
	require.NoError(t, err)
	var msg Message
	require.NoError(t, json.Unmarshal(data, &msg))
	assert.Equal(t, "update", msg.Type)
	assert.Equal(t, "live.html", msg.Name)
	assert.Contains(t, msg.HTML, "n = 7")
}

func TestUpdateIntervalAppliesToSessions(t *testing.T) {
	srv, ts := newTestServer(t, map[string]string{"i.html": "{{x}}"})
	srv.SetUpdateInterval(123 * time.Millisecond)

	code, _ := get(t, ts.URL+"/view/i.html")
	require.Equal(t, http.StatusOK, code)

	srv.mu.Lock()
	sess, ok := srv.sessions["i.html"]
	srv.mu.Unlock()
	require.True(t, ok)
	assert.Equal(t, 123*time.Millisecond, sess.inst.UpdateInterval())
}

func TestReloadDropsSession(t *testing.T) {
	srv, ts := newTestServer(t, map[string]string{"r.html": "v1 {{x}}"})
	code, _ := postJSON(t, ts.URL+"/context/r.html", map[string]any{"x": "a"})
	require.Equal(t, http.StatusOK, code)
	srv.mu.Lock()
	_, ok := srv.sessions["r.html"]
	srv.mu.Unlock()
	require.True(t, ok)

	_, err := srv.reg.Add("r.html", "v2 {{x}}")
	require.NoError(t, err)
	srv.reg.Events().Emit("reload", map[string]any{"name": "r.html"})

	srv.mu.Lock()
	_, ok = srv.sessions["r.html"]
	srv.mu.Unlock()
	assert.False(t, ok)

	// the next view builds a fresh session from the new source
	code, body := get(t, ts.URL+"/view/r.html")
	require.Equal(t, http.StatusOK, code)
	assert.Contains(t, body, "v2")
}
