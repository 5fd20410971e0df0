package container

import (
	"fmt"
	"reflect"
	"runtime"
)

// ── Scope types ───────────────────────────────────────────────────────────────

// ScopeType selects the instance-caching policy for a definition.
type ScopeType string

const (
	// ScopeSingleton caches one instance for the container's lifetime.
	ScopeSingleton ScopeType = "singleton"
	// ScopePrototype never caches — every resolution builds a new instance.
	ScopePrototype ScopeType = "prototype"
	// ScopeRequest caches one instance per entered request context.
	ScopeRequest ScopeType = "request"
)

// ParseScope maps a scope string (as collected by declarative markers) to a
// ScopeType, defaulting to singleton for unknown values.
func ParseScope(s string) ScopeType {
	switch ScopeType(s) {
	case ScopePrototype, ScopeRequest:
		return ScopeType(s)
	default:
		return ScopeSingleton
	}
}

// ── Definition ────────────────────────────────────────────────────────────────

// Factory builds one instance of a component. It may resolve its own
// dependencies by calling back into the container.
type Factory func(c *Container) (any, error)

// Definition is the immutable blueprint for one registrable component —
// the equivalent of a Spring BeanDefinition.
//
// A Definition is never mutated after registration. The Dependencies list is
// used only for static graph validation during Refresh(); actual resolution
// order is whatever the factory asks for at build time.
type Definition struct {
	name         string
	typ          reflect.Type // declared type, for diagnostics; may be nil
	scope        ScopeType
	factory      Factory
	source       string // "file:line" of the declaring site
	dependencies []string
	conditions   []Condition
	eager        bool
}

// NewDefinition creates a Definition with singleton scope and no conditions.
// Apply options to change scope, declare static dependencies, attach
// conditions, or request eager initialization.
//
//	def := container.NewDefinition("mailer", func(c *container.Container) (any, error) {
//	    return NewMailer(), nil
//	}, container.WithScope(container.ScopeSingleton), container.Eager())
func NewDefinition(name string, factory Factory, opts ...DefinitionOption) *Definition {
	d := &Definition{
		name:    name,
		scope:   ScopeSingleton,
		factory: factory,
		source:  callerSource(2),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

func (d *Definition) Name() string           { return d.name }
func (d *Definition) Type() reflect.Type     { return d.typ }
func (d *Definition) Scope() ScopeType       { return d.scope }
func (d *Definition) Source() string         { return d.source }
func (d *Definition) Eager() bool            { return d.eager }
func (d *Definition) Dependencies() []string { return append([]string(nil), d.dependencies...) }

// ── Options ───────────────────────────────────────────────────────────────────

// DefinitionOption customises a Definition at construction time.
type DefinitionOption func(*Definition)

// WithScope sets the caching policy.
func WithScope(s ScopeType) DefinitionOption {
	return func(d *Definition) { d.scope = s }
}

// WithDependencies declares the names this component depends on. The list is
// consulted only by static cycle validation during Refresh().
func WithDependencies(names ...string) DefinitionOption {
	return func(d *Definition) { d.dependencies = append(d.dependencies, names...) }
}

// WithConditions attaches activation predicates; all must pass at resolution
// time for the definition to be resolvable.
func WithConditions(conds ...Condition) DefinitionOption {
	return func(d *Definition) { d.conditions = append(d.conditions, conds...) }
}

// Eager marks the definition for resolution during Refresh() instead of on
// first demand.
func Eager() DefinitionOption {
	return func(d *Definition) { d.eager = true }
}

// WithType records the declared component type for diagnostics.
func WithType(t reflect.Type) DefinitionOption {
	return func(d *Definition) { d.typ = t }
}

// WithSource overrides the captured declaration site.
func WithSource(source string) DefinitionOption {
	return func(d *Definition) { d.source = source }
}

// callerSource returns "file:line" of the caller skip frames up.
func callerSource(skip int) string {
	_, file, line, ok := runtime.Caller(skip)
	if !ok {
		return "unknown"
	}
	return fmt.Sprintf("%s:%d", file, line)
}
