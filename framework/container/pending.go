package container

import (
	"sync"
)

// ── Component kinds ───────────────────────────────────────────────────────────

// Kind classifies a pending registration by the declarative marker that
// produced it.
type Kind string

const (
	KindService    Kind = "service"
	KindController Kind = "controller"
	KindComponent  Kind = "component"
	KindProvider   Kind = "provider"
)

// ── PendingRegistration ───────────────────────────────────────────────────────

// PendingRegistration is the provisional form of a Definition, collected by
// a declarative marker before any container exists.
//
// Target is either a Factory, or a struct pointer used as a template: the
// drained definition's factory then copies the template into a fresh
// instance and runs attribute injection over its tagged fields.
type PendingRegistration struct {
	Target       any
	Name         string
	Kind         Kind
	Scope        string
	URLPrefix    string // controller-kind only, consumed by the router
	Dependencies []string
	Conditions   []Condition
	Eager        bool
	Source       string // "file:line" of the marker call site

	// registry is set by the Into option and consumed by the marker.
	registry *PendingRegistry
}

// ── PendingRegistry ───────────────────────────────────────────────────────────

// PendingRegistry buffers pending registrations until a container drains
// them during Refresh(). Once frozen, further Add calls fail.
//
// The kernel constructs its own registry (the composition root owns it);
// DefaultPending exists for package-level marker helpers that run at
// program init, before any kernel is built.
type PendingRegistry struct {
	mu     sync.Mutex
	queue  []*PendingRegistration
	frozen bool
}

// NewPendingRegistry creates an empty, unfrozen registry.
func NewPendingRegistry() *PendingRegistry {
	return &PendingRegistry{}
}

// Add appends a registration, failing with RegistryFrozenError (naming the
// offending component and its source) once the registry is frozen.
func (r *PendingRegistry) Add(reg *PendingRegistration) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.frozen {
		return &RegistryFrozenError{Name: reg.Name, Source: reg.Source}
	}
	r.queue = append(r.queue, reg)
	return nil
}

// All returns a snapshot copy of the queue.
func (r *PendingRegistry) All() []*PendingRegistration {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]*PendingRegistration(nil), r.queue...)
}

// ByKind returns the pending registrations of one kind.
func (r *PendingRegistry) ByKind(kind Kind) []*PendingRegistration {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*PendingRegistration
	for _, reg := range r.queue {
		if reg.Kind == kind {
			out = append(out, reg)
		}
	}
	return out
}

// ByName returns the pending registration with the given name, if any.
func (r *PendingRegistry) ByName(name string) (*PendingRegistration, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, reg := range r.queue {
		if reg.Name == name {
			return reg, true
		}
	}
	return nil, false
}

// Clear empties the queue. Idempotent.
func (r *PendingRegistry) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.queue = nil
}

// Freeze rejects all further Add calls. Idempotent.
func (r *PendingRegistry) Freeze() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.frozen = true
}

// drain atomically snapshots the queue, clears it, and freezes the
// registry. A second drain on an already-frozen registry returns nothing.
func (r *PendingRegistry) drain() []*PendingRegistration {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := r.queue
	r.queue = nil
	r.frozen = true
	return out
}

// ── Default registry ──────────────────────────────────────────────────────────

var (
	defaultPendingMu sync.Mutex
	defaultPending   *PendingRegistry
)

// DefaultPending returns the process-wide pending registry used by the
// package-level marker helpers. Double-checked so init-time markers and the
// kernel observe the same instance.
func DefaultPending() *PendingRegistry {
	if defaultPending != nil {
		return defaultPending
	}
	defaultPendingMu.Lock()
	defer defaultPendingMu.Unlock()
	if defaultPending == nil {
		defaultPending = NewPendingRegistry()
	}
	return defaultPending
}

// ── Declarative markers ───────────────────────────────────────────────────────

// MarkerOption customises a pending registration produced by a marker.
type MarkerOption func(*PendingRegistration)

// InScope sets the scope string ("singleton", "prototype", "request").
func InScope(scope string) MarkerOption {
	return func(p *PendingRegistration) { p.Scope = scope }
}

// DependsOn declares explicit dependency names for static validation.
func DependsOn(names ...string) MarkerOption {
	return func(p *PendingRegistration) { p.Dependencies = append(p.Dependencies, names...) }
}

// If attaches activation conditions.
func If(conds ...Condition) MarkerOption {
	return func(p *PendingRegistration) { p.Conditions = append(p.Conditions, conds...) }
}

// EagerInit forces resolution during Refresh().
func EagerInit() MarkerOption {
	return func(p *PendingRegistration) { p.Eager = true }
}

// WithPrefix sets the URL prefix of a controller registration.
func WithPrefix(prefix string) MarkerOption {
	return func(p *PendingRegistration) { p.URLPrefix = prefix }
}

// Into redirects the marker to an explicit registry instead of the
// process-wide default (useful in tests).
func Into(r *PendingRegistry) MarkerOption {
	return func(p *PendingRegistration) { p.registry = r }
}

// Service marks target for registration as a service component.
//
//	container.Service("userService", &UserService{}, container.DependsOn("db"))
func Service(name string, target any, opts ...MarkerOption) error {
	return mark(name, target, KindService, opts...)
}

// Component marks target for registration as a generic component.
func Component(name string, target any, opts ...MarkerOption) error {
	return mark(name, target, KindComponent, opts...)
}

// Controller marks target for registration as an HTTP controller. Controllers
// are always eagerly initialized so their routes can be registered during
// Refresh().
func Controller(name string, target any, opts ...MarkerOption) error {
	opts = append(opts, EagerInit())
	return mark(name, target, KindController, opts...)
}

// Provider marks target for registration as a provider component.
func Provider(name string, target any, opts ...MarkerOption) error {
	return mark(name, target, KindProvider, opts...)
}

func mark(name string, target any, kind Kind, opts ...MarkerOption) error {
	reg := &PendingRegistration{
		Target: target,
		Name:   name,
		Kind:   kind,
		Scope:  string(ScopeSingleton),
		Source: callerSource(3),
	}
	for _, opt := range opts {
		opt(reg)
	}
	registry := reg.registry
	if registry == nil {
		registry = DefaultPending()
	}
	reg.registry = nil
	return registry.Add(reg)
}
