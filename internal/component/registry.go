// internal/component/registry.go
//
// Component registry (cycle-free).
//
// Each concrete component lives under components/<name> and calls
// component.Register() in an init() function.  At boot the server calls
// Init() on every component with the shared Deps, then mounts each one
// at "/{region}/{city}/<name>" behind the tenant guards and the module
// gate named by Module().

package component

import (
	"sort"
	"sync"

	"github.com/go-chi/chi/v5"
)

// Initializer receives the shared dependencies once at boot.
type Initializer interface {
	Init(Deps) error
}

// Component contract.
//
// Module() returns the canonical module key gating every route, or ""
// for routes that are always on.  Routes() is mounted under the
// component name, e.g:
//
//	r := chi.NewRouter()
//	r.Post("/", create)       // POST /{region}/{city}/reports
//	r.Get("/{id}", show)
//	return r
type Component interface {
	Name() string
	Module() string
	Routes() chi.Router
	Initializer
}

var (
	mu       sync.RWMutex
	registry = map[string]Component{}
)

// Register is invoked from component init() functions.
func Register(c Component) {
	mu.Lock()
	registry[c.Name()] = c
	mu.Unlock()
}

// All returns every registered component sorted by name.
func All() []Component {
	mu.RLock()
	defer mu.RUnlock()
	out := make([]Component, 0, len(registry))
	for _, c := range registry {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name() < out[j].Name() })
	return out
}

// InitAll calls Init on every component, stopping at the first error.
func InitAll(d Deps) error {
	for _, c := range All() {
		if err := c.Init(d); err != nil {
			return &InitError{Component: c.Name(), Err: err}
		}
	}
	return nil
}

// InitError names the component whose Init failed.
type InitError struct {
	Component string
	Err       error
}

func (e *InitError) Error() string { return "component " + e.Component + ": " + e.Err.Error() }
func (e *InitError) Unwrap() error { return e.Err }
