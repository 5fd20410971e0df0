package container

import (
	"context"
	"fmt"
	"net/http"
	"reflect"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
)

// ── Collaborator interfaces ───────────────────────────────────────────────────

// RouteRegistrar is the router collaborator. When a controller-kind pending
// registration is drained during Refresh(), each of the controller's routes
// is registered here. This is the only place container logic touches HTTP.
type RouteRegistrar interface {
	RegisterRoute(path string, handler http.HandlerFunc, method string)
}

// Route is one HTTP route exposed by a controller.
type Route struct {
	Method  string
	Path    string
	Handler http.HandlerFunc
}

// RoutedController is implemented by controller components that expose
// routes to be mounted under the registration's URL prefix.
type RoutedController interface {
	Routes() []Route
}

// ProviderSource plugs an additional dependency source into the resolver.
// When no Definition matches a name, Get/TryGet consult each source in
// registration order.
type ProviderSource interface {
	CanProvide(name string) bool
	Provide(name string, c *Container) (any, error)
}

// ── Container ─────────────────────────────────────────────────────────────────

// Container is the dependency resolver and lifecycle orchestrator — the
// equivalent of a Spring ApplicationContext.
//
// Build it once per process (or per test), register definitions or drain
// declarative markers via Refresh(), then resolve by name. Resolution is
// safe to call concurrently from worker goroutines; registration is not
// allowed after Refresh().
type Container struct {
	mu          sync.RWMutex
	definitions map[string]*Definition
	order       []string // discovery order, also the Definitions() order
	frozen      bool
	refreshed   bool

	pending   *PendingRegistry
	scopes    *scopeManager
	lifecycle *lifecycleManager
	providers []ProviderSource

	properties PropertySource
	router     RouteRegistrar
	logger     *zap.Logger

	startupTimeout  time.Duration
	shutdownTimeout time.Duration

	// traces holds one resolving trace per goroutine so concurrent
	// resolutions cannot interleave on a shared list.
	traces sync.Map // goroutine id → *resolveTrace
}

type resolveTrace struct {
	names []string
}

// ContainerOption customises a Container at construction time.
type ContainerOption func(*Container)

// WithLogger sets the structured logger (zap.NewNop() by default).
func WithLogger(logger *zap.Logger) ContainerOption {
	return func(c *Container) { c.logger = logger }
}

// WithProperties sets the property source consulted by OnProperty conditions.
func WithProperties(src PropertySource) ContainerOption {
	return func(c *Container) { c.properties = src }
}

// WithRouter sets the route registrar that receives controller routes
// during Refresh().
func WithRouter(r RouteRegistrar) ContainerOption {
	return func(c *Container) { c.router = r }
}

// WithPendingRegistry sets the pending registry drained by Refresh()
// (DefaultPending() if unset).
func WithPendingRegistry(r *PendingRegistry) ContainerOption {
	return func(c *Container) { c.pending = r }
}

// WithProviderSource appends a fallback dependency source.
func WithProviderSource(src ProviderSource) ContainerOption {
	return func(c *Container) { c.providers = append(c.providers, src) }
}

// WithStartupTimeout bounds the lifecycle startup pass.
func WithStartupTimeout(d time.Duration) ContainerOption {
	return func(c *Container) { c.startupTimeout = d }
}

// WithShutdownTimeout bounds the lifecycle shutdown pass.
func WithShutdownTimeout(d time.Duration) ContainerOption {
	return func(c *Container) { c.shutdownTimeout = d }
}

// New creates an empty container.
func New(opts ...ContainerOption) *Container {
	c := &Container{
		definitions: make(map[string]*Definition),
		scopes:      newScopeManager(),
		logger:      zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.pending == nil {
		c.pending = DefaultPending()
	}
	c.lifecycle = newLifecycleManager(c.logger)
	return c
}

// ── Registration ──────────────────────────────────────────────────────────────

// Register adds a definition. It fails with RegistryFrozenError after
// Refresh() and with DuplicateDefinitionError on a name collision; a failed
// call leaves the definition map untouched.
func (c *Container) Register(def *Definition) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.frozen {
		return &RegistryFrozenError{Name: def.name, Source: def.source}
	}
	if _, exists := c.definitions[def.name]; exists {
		return &DuplicateDefinitionError{Name: def.name}
	}
	c.definitions[def.name] = def
	c.order = append(c.order, def.name)
	return nil
}

// ── Refresh ───────────────────────────────────────────────────────────────────

// Refresh drives the container into its running state:
//
//  1. drain the pending registry into Definitions (controller routes are
//     registered into the RouteRegistrar as their instances materialize)
//  2. statically validate the dependency graph (explicit Dependencies)
//  3. eagerly resolve every definition flagged eager
//  4. freeze the definition map
//  5. run the lifecycle startup pass over all singletons
//
// A cycle found in step 2 or an eager failure in step 3 aborts Refresh and
// the container must be considered unusable. Individual lifecycle-hook
// failures in step 5 do not abort; they land in the returned Report.
//
// Refresh is idempotent: a second call logs and returns without effect.
func (c *Container) Refresh(ctx context.Context) (*Report, error) {
	c.mu.Lock()
	if c.refreshed {
		c.mu.Unlock()
		c.logger.Info("container already refreshed, ignoring")
		return &Report{}, nil
	}
	c.refreshed = true
	c.mu.Unlock()

	if c.startupTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.startupTimeout)
		defer cancel()
	}

	drained := c.pending.drain()
	controllers := make([]*PendingRegistration, 0)
	for _, reg := range drained {
		def, err := c.definitionFromPending(reg)
		if err != nil {
			return nil, err
		}
		if err := c.Register(def); err != nil {
			return nil, err
		}
		if reg.Kind == KindController {
			controllers = append(controllers, reg)
		}
	}
	c.logger.Info("pending registry drained", zap.Int("registrations", len(drained)))

	if err := c.validateGraph(); err != nil {
		return nil, err
	}

	if err := c.eagerInit(); err != nil {
		c.logger.Error("eager initialization failed, aborting refresh", zap.Error(err))
		return nil, err
	}

	c.registerControllerRoutes(controllers)

	c.mu.Lock()
	c.frozen = true
	c.mu.Unlock()

	report := c.lifecycle.startup(ctx, c.collectSingletons())
	return report, nil
}

// definitionFromPending converts a pending registration into a Definition
// whose factory instantiates the target and runs attribute injection.
func (c *Container) definitionFromPending(reg *PendingRegistration) (*Definition, error) {
	factory, typ, err := targetFactory(reg.Target)
	if err != nil {
		return nil, fmt.Errorf("registration [%s] (declared at %s): %w", reg.Name, reg.Source, err)
	}

	opts := []DefinitionOption{
		WithScope(ParseScope(reg.Scope)),
		WithDependencies(reg.Dependencies...),
		WithConditions(reg.Conditions...),
		WithSource(reg.Source),
	}
	if typ != nil {
		opts = append(opts, WithType(typ))
	}
	if reg.Eager {
		opts = append(opts, Eager())
	}
	return NewDefinition(reg.Name, factory, opts...), nil
}

// targetFactory builds the instantiation closure for a marker target: a
// Factory is used as-is, a struct pointer acts as a prototype whose type is
// freshly constructed per instance, and any other value is registered
// verbatim. Attribute injection runs on every produced instance.
func targetFactory(target any) (Factory, reflect.Type, error) {
	switch t := target.(type) {
	case nil:
		return nil, nil, fmt.Errorf("target must not be nil")
	case Factory:
		return withInjection(t), nil, nil
	case func(c *Container) (any, error):
		return withInjection(Factory(t)), nil, nil
	}

	v := reflect.ValueOf(target)
	if v.Kind() == reflect.Ptr && v.Elem().Kind() == reflect.Struct {
		// The target acts as a template: each instance starts as a copy of
		// it (preserving configured defaults) before injection runs.
		template := v.Elem()
		factory := func(c *Container) (any, error) {
			inst := reflect.New(template.Type())
			inst.Elem().Set(template)
			out := inst.Interface()
			if err := injectAttributes(c, out); err != nil {
				return nil, err
			}
			return out, nil
		}
		return factory, v.Type(), nil
	}

	// Pre-built value: registered as-is, like a bound instance.
	return func(*Container) (any, error) { return target, nil }, reflect.TypeOf(target), nil
}

func withInjection(f Factory) Factory {
	return func(c *Container) (any, error) {
		inst, err := f(c)
		if err != nil {
			return nil, err
		}
		if err := injectAttributes(c, inst); err != nil {
			return nil, err
		}
		return inst, nil
	}
}

// registerControllerRoutes mounts each eagerly-built controller's routes
// under its registration prefix.
func (c *Container) registerControllerRoutes(controllers []*PendingRegistration) {
	if c.router == nil {
		return
	}
	for _, reg := range controllers {
		inst, err := c.TryGet(reg.Name)
		if err != nil || inst == nil {
			continue
		}
		routed, ok := inst.(RoutedController)
		if !ok {
			continue
		}
		for _, route := range routed.Routes() {
			full := joinPrefix(reg.URLPrefix, route.Path)
			c.router.RegisterRoute(full, route.Handler, route.Method)
			c.logger.Info("route registered",
				zap.String("controller", reg.Name),
				zap.String("method", route.Method),
				zap.String("path", full))
		}
	}
}

func joinPrefix(prefix, path string) string {
	prefix = strings.TrimSuffix(prefix, "/")
	if path == "" {
		path = "/"
	}
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	if prefix == "" {
		return path
	}
	return prefix + path
}

// validateGraph walks every definition's explicit dependency list
// depth-first, failing on the first back-edge with the full cycle chain.
// Names without a definition are skipped — they may be served by a provider
// source at resolution time.
func (c *Container) validateGraph() error {
	c.mu.RLock()
	defer c.mu.RUnlock()

	const (
		unvisited = iota
		visiting
		visited
	)
	states := make(map[string]int, len(c.definitions))

	var walk func(name string, stack []string) error
	walk = func(name string, stack []string) error {
		switch states[name] {
		case visiting:
			chain := append(cycleStart(stack, name), name)
			return &CircularDependencyError{Chain: chain}
		case visited:
			return nil
		}
		def, ok := c.definitions[name]
		if !ok {
			return nil
		}
		states[name] = visiting
		stack = append(stack, name)
		for _, dep := range def.dependencies {
			if err := walk(dep, stack); err != nil {
				return err
			}
		}
		states[name] = visited
		return nil
	}

	for _, name := range c.order {
		if err := walk(name, nil); err != nil {
			return err
		}
	}
	return nil
}

// cycleStart trims the stack to the slice beginning at name's first
// occurrence, so the reported chain is exactly the cycle.
func cycleStart(stack []string, name string) []string {
	for i, n := range stack {
		if n == name {
			return append([]string(nil), stack[i:]...)
		}
	}
	return append([]string(nil), stack...)
}

// eagerInit resolves every definition flagged eager. Condition misses are
// skipped; any other failure aborts.
func (c *Container) eagerInit() error {
	for _, def := range c.snapshotDefinitions() {
		if !def.eager {
			continue
		}
		if _, err := c.TryGet(def.name); err != nil {
			return err
		}
	}
	return nil
}

// collectSingletons resolves every singleton-scope definition (reusing
// already-built instances) and returns the lifecycle records in discovery
// order. Condition misses and creation failures are skipped here — eager
// failures were already fatal in eagerInit, and a lazily-broken optional
// component must not block its siblings' startup.
func (c *Container) collectSingletons() []*lifecycleRecord {
	var records []*lifecycleRecord
	for _, def := range c.snapshotDefinitions() {
		if def.scope != ScopeSingleton {
			continue
		}
		inst, err := c.TryGet(def.name)
		if err != nil {
			c.logger.Warn("singleton skipped during startup pass",
				zap.String("component", def.name), zap.Error(err))
			continue
		}
		if inst == nil {
			continue
		}
		records = append(records, &lifecycleRecord{name: def.name, instance: inst})
	}
	return records
}

func (c *Container) snapshotDefinitions() []*Definition {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]*Definition, 0, len(c.order))
	for _, name := range c.order {
		out = append(out, c.definitions[name])
	}
	return out
}

// ── Resolution ────────────────────────────────────────────────────────────────

// Get resolves name strictly: an unregistered name (not served by any
// provider source) fails with DependencyNotFoundError carrying every
// registered name.
func (c *Container) Get(name string) (any, error) {
	c.mu.RLock()
	def, ok := c.definitions[name]
	c.mu.RUnlock()
	if !ok {
		if inst, served, err := c.fromProviderSources(name); served {
			return inst, err
		}
		return nil, &DependencyNotFoundError{Name: name, Known: c.Definitions()}
	}
	return c.resolve(def)
}

// TryGet resolves name permissively: a missing definition or a condition
// miss yields (nil, nil). Cycle, creation and scope errors still propagate —
// they indicate a programming defect, not an expected absence.
func (c *Container) TryGet(name string) (any, error) {
	c.mu.RLock()
	def, ok := c.definitions[name]
	c.mu.RUnlock()
	if !ok {
		if inst, served, err := c.fromProviderSources(name); served {
			return inst, err
		}
		return nil, nil
	}
	inst, err := c.resolve(def)
	if err != nil {
		if _, miss := err.(*ConditionNotMetError); miss {
			return nil, nil
		}
		return nil, err
	}
	return inst, nil
}

func (c *Container) fromProviderSources(name string) (any, bool, error) {
	for _, src := range c.providers {
		if src.CanProvide(name) {
			inst, err := src.Provide(name, c)
			return inst, true, err
		}
	}
	return nil, false, nil
}

// resolve runs the full resolution protocol for one definition: cycle check
// against this goroutine's resolving trace, condition evaluation, then scope
// strategy dispatch with a creation thunk. The trace entry is popped on
// every exit path.
func (c *Container) resolve(def *Definition) (any, error) {
	trace := c.trace()
	for i, n := range trace.names {
		if n == def.name {
			chain := append(append([]string(nil), trace.names[i:]...), def.name)
			return nil, &CircularDependencyError{Chain: chain}
		}
	}

	for _, cond := range def.conditions {
		if !cond(c) {
			return nil, &ConditionNotMetError{Name: def.name}
		}
	}

	trace.names = append(trace.names, def.name)
	defer c.popTrace(trace)

	return c.scopes.strategy(def.scope).get(def.name, func() (any, error) {
		return c.createInstance(def)
	})
}

// createInstance invokes the definition's factory. A nil result becomes a
// CreationError; container errors propagate unchanged (no double-wrapping);
// anything else is wrapped as a CreationError with the original cause.
func (c *Container) createInstance(def *Definition) (any, error) {
	inst, err := def.factory(c)
	if err != nil {
		if isContainerError(err) {
			return nil, err
		}
		return nil, &CreationError{Name: def.name, Err: err}
	}
	if inst == nil {
		return nil, &CreationError{Name: def.name}
	}
	return inst, nil
}

// trace returns the calling goroutine's resolving trace, creating it on
// first use.
func (c *Container) trace() *resolveTrace {
	id := goid()
	if t, ok := c.traces.Load(id); ok {
		return t.(*resolveTrace)
	}
	t := &resolveTrace{}
	c.traces.Store(id, t)
	return t
}

func (c *Container) popTrace(t *resolveTrace) {
	if n := len(t.names); n > 0 {
		t.names = t.names[:n-1]
	}
	if len(t.names) == 0 {
		c.traces.Delete(goid())
	}
}

// ── Introspection ─────────────────────────────────────────────────────────────

// Has reports whether a definition is registered under name.
func (c *Container) Has(name string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, ok := c.definitions[name]
	return ok
}

// Definition returns the registered definition for name.
func (c *Container) Definition(name string) (*Definition, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	def, ok := c.definitions[name]
	return def, ok
}

// Definitions returns every registered name in discovery order.
func (c *Container) Definitions() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return append([]string(nil), c.order...)
}

// StartupOrder returns the phase-sorted order recorded by the last
// Refresh(). Shutdown uses its exact reverse.
func (c *Container) StartupOrder() []string {
	c.lifecycle.mu.Lock()
	defer c.lifecycle.mu.Unlock()
	out := make([]string, len(c.lifecycle.records))
	for i, rec := range c.lifecycle.records {
		out[i] = rec.name
	}
	return out
}

// StateOf returns the lifecycle state of a managed singleton.
func (c *Container) StateOf(name string) (State, bool) {
	return c.lifecycle.stateOf(name)
}

// ── Request scope ─────────────────────────────────────────────────────────────

// EnterRequestScope binds a fresh request-scoped cache to the calling
// goroutine and returns the request id. Pair with ExitRequestScope.
func (c *Container) EnterRequestScope() string { return c.scopes.enterRequest() }

// ExitRequestScope destroys the calling goroutine's request cache.
func (c *Container) ExitRequestScope() { c.scopes.exitRequest() }

// RequestScopeActive reports whether the calling goroutine has an entered
// request context.
func (c *Container) RequestScopeActive() bool { return c.scopes.requestActive() }

// ── Shutdown ──────────────────────────────────────────────────────────────────

// AddShutdownHandler registers a custom teardown callback, run after all
// component hooks during Shutdown().
func (c *Container) AddShutdownHandler(h ShutdownHandler) {
	c.lifecycle.addShutdownHandler(h)
}

// Shutdown runs the lifecycle teardown in exact-reverse startup order, then
// the custom shutdown handlers, then clears every scope cache. Hook
// failures are collected in the report, never fatal.
func (c *Container) Shutdown(ctx context.Context) *Report {
	if c.shutdownTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.shutdownTimeout)
		defer cancel()
	}
	report := c.lifecycle.shutdown(ctx)
	c.scopes.clearAll()
	return report
}

// ── Generics helper ───────────────────────────────────────────────────────────

// Resolve is a generic helper that calls Get and type-asserts the result.
//
//	db, err := container.Resolve[*Database](c, "database")
func Resolve[T any](c *Container, name string) (T, error) {
	var zero T
	inst, err := c.Get(name)
	if err != nil {
		return zero, err
	}
	typed, ok := inst.(T)
	if !ok {
		return zero, fmt.Errorf("container: Resolve[%T]: [%s] resolved to %T", zero, name, inst)
	}
	return typed, nil
}
