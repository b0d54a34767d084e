// Package server hosts the live template preview: an index of known
// templates, rendered views with an injected refresh script, a
// websocket push channel and a small JSON API for mutating the bound
// context.
package server

import (
	"context"
	"encoding/json"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/coder/websocket"

	"github.com/ginja-dev/ginja/internal/binding"
	"github.com/ginja-dev/ginja/internal/environment"
	"github.com/ginja-dev/ginja/internal/pubsub"
	"github.com/ginja-dev/ginja/internal/registry"
	"github.com/ginja-dev/ginja/internal/render"
)

// Message is the wire format pushed to preview clients.
type Message struct {
	Type string `json:"type"`
	Name string `json:"name"`
	HTML string `json:"html,omitempty"`
}

// Server serves the preview UI over HTTP and pushes re-renders over a
// websocket.
type Server struct {
	addr     string
	reg      *registry.Registry
	logger   *slog.Logger
	hub      *hub
	httpd    *http.Server
	interval time.Duration

	mu       sync.Mutex
	sessions map[string]*session
}

// session is one template instantiated for previewing, with its own
// mutable context shared by every connected client.
type session struct {
	name string
	ctx  *binding.Context
	inst *render.Instance
}

// New returns a preview server for the registry's templates.
func New(addr string, reg *registry.Registry, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		addr:     addr,
		reg:      reg,
		logger:   logger,
		hub:      newHub(),
		sessions: make(map[string]*session),
	}
	reg.Events().On("reload", s.templateReloaded)
	return s
}

// SetUpdateInterval sets the re-render debounce applied to every session
// the server instantiates.
func (s *Server) SetUpdateInterval(d time.Duration) { s.interval = d }

// Handler returns the server's route table.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /{$}", s.handleIndex)
	mux.HandleFunc("GET /view/{name...}", s.handleView)
	mux.HandleFunc("GET /ws", s.handleWS)
	mux.HandleFunc("POST /context/{name...}", s.handleContext)
	mux.HandleFunc("POST /value/{name...}", s.handleValue)
	return mux
}

// ListenAndServe serves until ctx is cancelled, then shuts down
// gracefully.
func (s *Server) ListenAndServe(ctx context.Context) error {
	s.httpd = &http.Server{
		Addr:              s.addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}
	errc := make(chan error, 1)
	go func() { errc <- s.httpd.ListenAndServe() }()
	s.logger.Info("preview server listening", slog.String("addr", s.addr))

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}
	shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	s.hub.closeAll()
	s.destroySessions()
	return s.httpd.Shutdown(shutCtx)
}

// templateReloaded drops the stale session and tells clients to reload
// the page.
func (s *Server) templateReloaded(evt pubsub.Event) {
	name, _ := evt.Get("name").(string)
	if name == "" {
		return
	}
	s.mu.Lock()
	if sess, ok := s.sessions[name]; ok {
		delete(s.sessions, name)
		sess.inst.Destroy()
	}
	s.mu.Unlock()
	s.push(Message{Type: "reload", Name: name})
}

func (s *Server) push(msg Message) {
	b, err := json.Marshal(msg)
	if err != nil {
		return
	}
	s.hub.broadcast(b)
}

// sessionFor returns the live session for a template, creating it on
// first view.
func (s *Server) sessionFor(name string) (*session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if sess, ok := s.sessions[name]; ok {
		return sess, nil
	}
	tpl, err := s.reg.Get(name)
	if err != nil {
		return nil, err
	}
	ctx := binding.WithBase(s.reg.Env().BaseContext())
	inst, err := tpl.Instantiate(ctx, s.logger)
	if err != nil {
		return nil, err
	}
	if s.interval > 0 {
		inst.SetUpdateInterval(s.interval)
	}
	sess := &session{name: name, ctx: ctx, inst: inst}
	inst.Events().On("update", func(pubsub.Event) {
		body, err := inst.RenderHTML()
		if err != nil {
			s.logger.Warn("render after update failed",
				slog.String("template", name),
				slog.String("error", err.Error()))
			return
		}
		s.push(Message{Type: "update", Name: name, HTML: body})
	})
	s.sessions[name] = sess
	return sess, nil
}

func (s *Server) destroySessions() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for name, sess := range s.sessions {
		sess.inst.Destroy()
		delete(s.sessions, name)
	}
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	names, err := s.reg.List()
	if err != nil {
		s.fail(w, err, http.StatusInternalServerError)
		return
	}
	src := `<!doctype html>
<html>
<head><title>ginja preview</title></head>
<body>
<h1>Templates</h1>
<ul>
{% for name in names %}<li><a href="/view/{{ name }}">{{ name }}</a></li>
{% else %}<li>no templates found</li>
{% endfor %}</ul>
</body>
</html>`
	tpl, err := render.Compile(environment.New(), src, "index", "")
	if err != nil {
		s.fail(w, err, http.StatusInternalServerError)
		return
	}
	out, err := tpl.RenderText(map[string]any{"names": anySlice(names)})
	if err != nil {
		s.fail(w, err, http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Write([]byte(out))
}

func (s *Server) handleView(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	sess, err := s.sessionFor(name)
	if err != nil {
		s.fail(w, err, http.StatusNotFound)
		return
	}
	body, err := sess.inst.RenderHTML()
	if err != nil {
		s.fail(w, err, http.StatusInternalServerError)
		return
	}
	var b strings.Builder
	b.WriteString("<!doctype html>\n<html>\n<head><title>")
	b.WriteString(name)
	b.WriteString("</title></head>\n<body>\n<div id=\"ginja-root\" data-template=\"")
	b.WriteString(name)
	b.WriteString("\">")
	b.WriteString(body)
	b.WriteString("</div>\n")
	b.WriteString(refreshScript)
	b.WriteString("</body>\n</html>\n")
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Write([]byte(b.String()))
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: []string{"*"},
	})
	if err != nil {
		s.logger.Warn("websocket accept failed", slog.String("error", err.Error()))
		return
	}
	s.hub.add(conn)
	s.logger.Debug("preview client connected", slog.Int("clients", s.hub.count()))

	// Drain the connection so pings and close frames are processed.
	go func() {
		defer s.hub.remove(conn)
		for {
			if _, _, err := conn.Read(r.Context()); err != nil {
				return
			}
		}
	}()
}

// handleContext applies a JSON object of variable assignments to the
// session's context and pushes the re-rendered HTML.
func (s *Server) handleContext(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	sess, err := s.sessionFor(name)
	if err != nil {
		s.fail(w, err, http.StatusNotFound)
		return
	}
	var vars map[string]any
	if err := json.NewDecoder(r.Body).Decode(&vars); err != nil {
		s.fail(w, err, http.StatusBadRequest)
		return
	}
	for k, v := range vars {
		if err := sess.ctx.Set(k, v); err != nil {
			s.fail(w, err, http.StatusBadRequest)
			return
		}
	}
	s.pushUpdate(w, sess)
}

// handleValue routes an edited input value back through the element's
// two-way binding.
func (s *Server) handleValue(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	sess, err := s.sessionFor(name)
	if err != nil {
		s.fail(w, err, http.StatusNotFound)
		return
	}
	var req struct {
		Input int    `json:"input"`
		Value string `json:"value"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.fail(w, err, http.StatusBadRequest)
		return
	}
	inputs := sess.inst.Inputs()
	if req.Input < 0 || req.Input >= len(inputs) {
		s.fail(w, nil, http.StatusBadRequest)
		return
	}
	if err := inputs[req.Input].SetValue(req.Value); err != nil {
		s.fail(w, err, http.StatusBadRequest)
		return
	}
	s.pushUpdate(w, sess)
}

// pushUpdate flushes pending changes, broadcasts the new HTML and
// answers the mutating request with it.
func (s *Server) pushUpdate(w http.ResponseWriter, sess *session) {
	if err := sess.inst.Flush(); err != nil {
		s.fail(w, err, http.StatusInternalServerError)
		return
	}
	body, err := sess.inst.RenderHTML()
	if err != nil {
		s.fail(w, err, http.StatusInternalServerError)
		return
	}
	s.push(Message{Type: "update", Name: sess.name, HTML: body})
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(Message{Type: "update", Name: sess.name, HTML: body})
}

func (s *Server) fail(w http.ResponseWriter, err error, code int) {
	msg := http.StatusText(code)
	if err != nil {
		msg = err.Error()
		s.logger.Warn("request failed",
			slog.Int("status", code),
			slog.String("error", msg))
	}
	http.Error(w, msg, code)
}

func anySlice(ss []string) []any {
	out := make([]any, len(ss))
	for i, s := range ss {
		out[i] = s
	}
	return out
}

const refreshScript = `<script>
(function () {
  var proto = location.protocol === "https:" ? "wss://" : "ws://";
  var root = document.getElementById("ginja-root");
  var name = root.getAttribute("data-template");
  function bindInputs() {
    var inputs = root.querySelectorAll("[data-value-source]");
    inputs.forEach(function (el, i) {
      var ev = el.getAttribute("data-update-source-on") || "input";
      el.addEventListener(ev, function () {
        fetch("/value/" + name, {
          method: "POST",
          headers: {"Content-Type": "application/json"},
          body: JSON.stringify({input: i, value: el.value})
        });
      });
    });
  }
  function connect() {
    var ws = new WebSocket(proto + location.host + "/ws");
    ws.onmessage = function (evt) {
      var msg = JSON.parse(evt.data);
      if (msg.name !== name) return;
      if (msg.type === "reload") location.reload();
      if (msg.type === "update") {
        root.innerHTML = msg.html;
        bindInputs();
      }
    };
    ws.onclose = function () { setTimeout(connect, 1000); };
  }
  connect();
  bindInputs();
})();
</script>
`
