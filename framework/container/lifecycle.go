package container

import (
	"context"
	"sort"
	"sync"

	"go.uber.org/zap"
)

// ── Lifecycle states ──────────────────────────────────────────────────────────

// State is one stage in a managed singleton's life.
type State string

const (
	StatePostConstruct State = "POST_CONSTRUCT"
	StateStarting      State = "STARTING"
	StateRunning       State = "RUNNING"
	StateStopping      State = "STOPPING"
	StatePreDestroy    State = "PRE_DESTROY"
	StateDestroyed     State = "DESTROYED"
)

// ── Capability interfaces ─────────────────────────────────────────────────────

// A component opts into lifecycle callbacks by implementing any subset of
// these interfaces. Absence of an interface is not an error — the
// orchestrator simply skips that hook.
//
// Every hook runs synchronously on the goroutine driving Refresh() or
// Shutdown(), under a context carrying the configured startup/shutdown
// timeout. A hook that needs background work must own its goroutines and
// return promptly.

// PostConstructor runs after the instance graph is built, before startup.
type PostConstructor interface {
	OnPostConstruct(ctx context.Context) error
}

// Starter runs during the container's startup pass.
type Starter interface {
	OnStartup(ctx context.Context) error
}

// Stopper runs first during the container's shutdown pass.
type Stopper interface {
	OnShutdown(ctx context.Context) error
}

// PreDestroyer runs after every Stopper, just before caches are cleared.
type PreDestroyer interface {
	OnPreDestroy(ctx context.Context) error
}

// Phased orders startup: lower phases start first. Components that do not
// implement Phased run at phase 0. Shutdown always uses the exact reverse of
// the recorded startup order, not a fresh sort.
type Phased interface {
	Phase() int
}

// ShutdownHandler is a custom teardown callback registered via
// Container.AddShutdownHandler, run after all component hooks.
type ShutdownHandler func(ctx context.Context) error

// ── Report ────────────────────────────────────────────────────────────────────

// HookOutcome records one hook invocation on one component.
type HookOutcome struct {
	Component string
	Hook      string
	Err       error
}

// Report aggregates per-component hook outcomes for one startup or shutdown
// pass. A failing hook never aborts its siblings; it lands here instead.
type Report struct {
	Outcomes []HookOutcome
}

// OK reports whether every hook completed without error.
func (r *Report) OK() bool {
	for _, o := range r.Outcomes {
		if o.Err != nil {
			return false
		}
	}
	return true
}

// Failed returns the outcomes that carry an error.
func (r *Report) Failed() []HookOutcome {
	var out []HookOutcome
	for _, o := range r.Outcomes {
		if o.Err != nil {
			out = append(out, o)
		}
	}
	return out
}

func (r *Report) add(component, hook string, err error) {
	r.Outcomes = append(r.Outcomes, HookOutcome{Component: component, Hook: hook, Err: err})
}

// ── Lifecycle orchestrator ────────────────────────────────────────────────────

type lifecycleRecord struct {
	name     string
	instance any
	phase    int
	state    State
}

// lifecycleManager drives every managed singleton through the startup and
// shutdown protocol and remembers the startup order so shutdown can reverse
// it exactly.
type lifecycleManager struct {
	mu       sync.Mutex
	records  []*lifecycleRecord // in startup order after startup()
	handlers []ShutdownHandler
	logger   *zap.Logger
}

func newLifecycleManager(logger *zap.Logger) *lifecycleManager {
	return &lifecycleManager{logger: logger}
}

func (m *lifecycleManager) addShutdownHandler(h ShutdownHandler) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handlers = append(m.handlers, h)
}

// startup stable-sorts the collected singletons by phase (ties keep
// discovery order), records the result as the startup order, then invokes
// every OnPostConstruct followed by every OnStartup in that order.
//
// Hook failures are logged, collected into the report, and never abort the
// remaining components.
func (m *lifecycleManager) startup(ctx context.Context, components []*lifecycleRecord) *Report {
	for _, rec := range components {
		rec.phase = phaseOf(rec.instance)
		rec.state = StatePostConstruct
	}
	sort.SliceStable(components, func(i, j int) bool {
		return components[i].phase < components[j].phase
	})

	m.mu.Lock()
	m.records = components
	m.mu.Unlock()

	report := &Report{}

	for _, rec := range components {
		if pc, ok := rec.instance.(PostConstructor); ok {
			err := pc.OnPostConstruct(ctx)
			report.add(rec.name, "OnPostConstruct", err)
			if err != nil {
				m.logger.Error("post-construct hook failed",
					zap.String("component", rec.name), zap.Error(err))
			}
		}
	}

	for _, rec := range components {
		rec.state = StateStarting
		if st, ok := rec.instance.(Starter); ok {
			err := st.OnStartup(ctx)
			report.add(rec.name, "OnStartup", err)
			if err != nil {
				m.logger.Error("startup hook failed",
					zap.String("component", rec.name), zap.Error(err))
			}
		}
		rec.state = StateRunning
	}

	m.logger.Info("lifecycle startup complete",
		zap.Int("components", len(components)),
		zap.Strings("order", m.startupOrder()))
	return report
}

// shutdown walks the recorded startup order in exact reverse: every
// OnShutdown, then every OnPreDestroy, then the custom shutdown handlers in
// registration order. Bookkeeping is cleared afterwards.
func (m *lifecycleManager) shutdown(ctx context.Context) *Report {
	m.mu.Lock()
	records := m.records
	handlers := m.handlers
	m.records = nil
	m.handlers = nil
	m.mu.Unlock()

	report := &Report{}

	for i := len(records) - 1; i >= 0; i-- {
		rec := records[i]
		rec.state = StateStopping
		if st, ok := rec.instance.(Stopper); ok {
			err := st.OnShutdown(ctx)
			report.add(rec.name, "OnShutdown", err)
			if err != nil {
				m.logger.Error("shutdown hook failed",
					zap.String("component", rec.name), zap.Error(err))
			}
		}
	}

	for i := len(records) - 1; i >= 0; i-- {
		rec := records[i]
		rec.state = StatePreDestroy
		if pd, ok := rec.instance.(PreDestroyer); ok {
			err := pd.OnPreDestroy(ctx)
			report.add(rec.name, "OnPreDestroy", err)
			if err != nil {
				m.logger.Error("pre-destroy hook failed",
					zap.String("component", rec.name), zap.Error(err))
			}
		}
		rec.state = StateDestroyed
	}

	for _, h := range handlers {
		if err := h(ctx); err != nil {
			report.add("", "ShutdownHandler", err)
			m.logger.Error("shutdown handler failed", zap.Error(err))
		}
	}

	m.logger.Info("lifecycle shutdown complete", zap.Int("components", len(records)))
	return report
}

// startupOrder returns the recorded startup order (names, phase-sorted).
func (m *lifecycleManager) startupOrder() []string {
	out := make([]string, len(m.records))
	for i, rec := range m.records {
		out[i] = rec.name
	}
	return out
}

// stateOf returns the lifecycle state of a managed singleton.
func (m *lifecycleManager) stateOf(name string) (State, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, rec := range m.records {
		if rec.name == name {
			return rec.state, true
		}
	}
	return "", false
}

func phaseOf(instance any) int {
	if p, ok := instance.(Phased); ok {
		return p.Phase()
	}
	return 0
}
