// Package registry keeps compiled templates by name, loading sources
// through the environment's loader and recompiling on demand. Reloads
// are announced on the registry's event emitter so live previews can
// re-render.
package registry

import (
	"sort"
	"sync"

	"github.com/ginja-dev/ginja/internal/environment"
	"github.com/ginja-dev/ginja/internal/errors"
	"github.com/ginja-dev/ginja/internal/pubsub"
	"github.com/ginja-dev/ginja/internal/render"
)

// Registry caches compiled templates by name.
type Registry struct {
	env    *environment.Environment
	events pubsub.Emitter

	mu   sync.RWMutex
	tpls map[string]*render.Template
}

// New returns an empty registry backed by env's loader.
func New(env *environment.Environment) *Registry {
	return &Registry{env: env, tpls: make(map[string]*render.Template)}
}

// Env returns the registry's environment.
func (r *Registry) Env() *environment.Environment { return r.env }

// Events emits "reload" with a "name" field whenever a template is
// recompiled.
func (r *Registry) Events() *pubsub.Emitter { return &r.events }

// Get returns the cached template, loading it on first use.
func (r *Registry) Get(name string) (*render.Template, error) {
	r.mu.RLock()
	tpl := r.tpls[name]
	r.mu.RUnlock()
	if tpl != nil {
		return tpl, nil
	}
	return r.load(name)
}

// Add registers a template compiled from src directly, bypassing the
// loader.
func (r *Registry) Add(name, src string) (*render.Template, error) {
	tpl, err := render.Compile(r.env, src, name, "")
	if err != nil {
		return nil, err
	}
	r.mu.Lock()
	r.tpls[name] = tpl
	r.mu.Unlock()
	return tpl, nil
}

// Reload recompiles the named template from its source and announces
// the change.
func (r *Registry) Reload(name string) (*render.Template, error) {
	tpl, err := r.load(name)
	if err != nil {
		return nil, err
	}
	r.events.Emit("reload", map[string]any{"name": name})
	return tpl, nil
}

func (r *Registry) load(name string) (*render.Template, error) {
	if r.env.Loader == nil {
		return nil, errors.NewConfig("no template loader configured", nil)
	}
	src, file, err := r.env.Loader.Load(name)
	if err != nil {
		return nil, err
	}
	tpl, err := render.Compile(r.env, src, name, file)
	if err != nil {
		return nil, err
	}
	r.mu.Lock()
	r.tpls[name] = tpl
	r.mu.Unlock()
	return tpl, nil
}

// Names returns the cached template names, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.tpls))
	for n := range r.tpls {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// List returns every template name the loader can see, falling back to
// the cached names when the loader cannot enumerate.
func (r *Registry) List() ([]string, error) {
	type lister interface{ List() ([]string, error) }
	if l, ok := r.env.Loader.(lister); ok {
		return l.List()
	}
	return r.Names(), nil
}

// Evict drops a cached template.
func (r *Registry) Evict(name string) {
	r.mu.Lock()
	delete(r.tpls, name)
	r.mu.Unlock()
}
