// internal/jobs/registry.go
//
// Job type registry.
//
// Workers decode envelopes by job name.  Register records a factory per
// type and checks the prototype's contract up front, so a job type with
// a broken contract fails at wiring time rather than on first delivery.
package jobs

import (
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"
)

// Envelope is the wire form of a queued job.
type Envelope struct {
	ID         string          `json:"id"`
	Name       string          `json:"name"`
	Payload    json.RawMessage `json:"payload"`
	EnqueuedAt time.Time       `json:"enqueued_at"`
	Attempt    int             `json:"attempt"`
}

// Registry maps job names to factories.  Safe for concurrent use.
type Registry struct {
	mu        sync.RWMutex
	factories map[string]func() Job
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{factories: make(map[string]func() Job)}
}

// Register adds job type T.  The zero value of *T is the prototype used
// for the name and the contract check.
func Register[T any, PT interface {
	*T
	Job
}](r *Registry) error {
	return r.RegisterFactory(func() Job { return PT(new(T)) })
}

// RegisterFactory adds the job type built by factory.  Jobs that need
// collaborators outside their payload (stores, clients) are registered
// this way, with the collaborators captured by the closure.
func (r *Registry) RegisterFactory(factory func() Job) error {
	proto := factory()
	if proto == nil {
		return fmt.Errorf("%w: factory returned nil", ErrContractViolation)
	}
	if err := Check(proto); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, dup := r.factories[proto.Name()]; dup {
		return fmt.Errorf("%w: %q registered twice", ErrContractViolation, proto.Name())
	}
	r.factories[proto.Name()] = factory
	return nil
}

// MustRegister panics when Register fails.
func MustRegister[T any, PT interface {
	*T
	Job
}](r *Registry) {
	if err := Register[T, PT](r); err != nil {
		panic(err)
	}
}

// Decode builds the job named by env.
func (r *Registry) Decode(env Envelope) (Job, error) {
	r.mu.RLock()
	factory, ok := r.factories[env.Name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownJob, env.Name)
	}
	j := factory()
	if len(env.Payload) > 0 {
		if err := json.Unmarshal(env.Payload, j); err != nil {
			return nil, fmt.Errorf("decode %s: %w", env.Name, err)
		}
	}
	return j, nil
}

// Names lists registered job names, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.factories))
	for n := range r.factories {
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}

// Prototypes returns a fresh zero job per registered type, in name order.
func (r *Registry) Prototypes() []Job {
	names := r.Names()
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Job, 0, len(names))
	for _, n := range names {
		out = append(out, r.factories[n]())
	}
	return out
}
