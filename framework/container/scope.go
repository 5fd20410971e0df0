package container

import (
	"runtime"
	"strconv"
	"strings"
	"sync"

	"github.com/google/uuid"
)

// ── Scope strategies ──────────────────────────────────────────────────────────

// scopeStrategy is the capability set shared by all caching policies.
type scopeStrategy interface {
	// get returns the cached instance for name, or invokes factory and
	// (depending on the policy) caches the result.
	get(name string, factory func() (any, error)) (any, error)
	// has reports whether an instance for name is currently cached.
	has(name string) bool
	// clear drops every cached instance.
	clear()
}

// ── Singleton ─────────────────────────────────────────────────────────────────

// singletonEntry guards one name's construction. The once guarantees at most
// one factory invocation per name even under concurrent first access; the
// map mutex is never held while the factory runs, so factories may resolve
// nested dependencies without deadlocking.
type singletonEntry struct {
	once  sync.Once
	value any
	err   error
	done  bool
}

type singletonScope struct {
	mu      sync.Mutex
	entries map[string]*singletonEntry
}

func newSingletonScope() *singletonScope {
	return &singletonScope{entries: make(map[string]*singletonEntry)}
}

func (s *singletonScope) entry(name string) *singletonEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[name]
	if !ok {
		e = &singletonEntry{}
		s.entries[name] = e
	}
	return e
}

func (s *singletonScope) get(name string, factory func() (any, error)) (any, error) {
	e := s.entry(name)
	e.once.Do(func() {
		e.value, e.err = factory()
		e.done = true
	})
	if e.err != nil {
		// Failed construction does not poison the name forever: drop the
		// entry so a later resolution may retry.
		s.mu.Lock()
		if s.entries[name] == e {
			delete(s.entries, name)
		}
		s.mu.Unlock()
		return nil, e.err
	}
	return e.value, nil
}

func (s *singletonScope) has(name string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[name]
	return ok && e.done && e.err == nil
}

func (s *singletonScope) clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = make(map[string]*singletonEntry)
}

// instances returns a snapshot of every successfully built singleton.
func (s *singletonScope) instances() map[string]any {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]any, len(s.entries))
	for name, e := range s.entries {
		if e.done && e.err == nil {
			out[name] = e.value
		}
	}
	return out
}

// ── Prototype ─────────────────────────────────────────────────────────────────

// prototypeScope holds no state: every get builds a fresh instance and
// ownership transfers immediately to the caller.
type prototypeScope struct{}

func (prototypeScope) get(_ string, factory func() (any, error)) (any, error) { return factory() }
func (prototypeScope) has(string) bool                                        { return false }
func (prototypeScope) clear()                                                 {}

// ── Request ───────────────────────────────────────────────────────────────────

// requestCache is the per-request instance map. Each cache belongs to
// exactly one goroutine's in-flight request, so no locking is needed on the
// instances map itself.
type requestCache struct {
	id        string
	instances map[string]any
}

// requestScope keys the active cache by goroutine id: entering a request
// context binds a fresh cache to the calling goroutine, exiting unbinds it.
// Separate goroutines (one per in-flight request) never share a cache.
type requestScope struct {
	active sync.Map // goroutine id → *requestCache
}

func newRequestScope() *requestScope {
	return &requestScope{}
}

func (s *requestScope) current() (*requestCache, bool) {
	v, ok := s.active.Load(goid())
	if !ok {
		return nil, false
	}
	return v.(*requestCache), true
}

func (s *requestScope) get(name string, factory func() (any, error)) (any, error) {
	cache, ok := s.current()
	if !ok {
		return nil, &ScopeNotActiveError{Name: name, Scope: ScopeRequest}
	}
	if inst, ok := cache.instances[name]; ok {
		return inst, nil
	}
	inst, err := factory()
	if err != nil {
		return nil, err
	}
	cache.instances[name] = inst
	return inst, nil
}

func (s *requestScope) has(name string) bool {
	cache, ok := s.current()
	if !ok {
		return false
	}
	_, ok = cache.instances[name]
	return ok
}

func (s *requestScope) clear() {
	s.active.Range(func(k, _ any) bool {
		s.active.Delete(k)
		return true
	})
}

// enter binds a fresh request cache to the calling goroutine and returns its
// request id.
func (s *requestScope) enter() string {
	cache := &requestCache{
		id:        uuid.NewString(),
		instances: make(map[string]any),
	}
	s.active.Store(goid(), cache)
	return cache.id
}

// exit destroys the calling goroutine's request cache.
func (s *requestScope) exit() {
	s.active.Delete(goid())
}

func (s *requestScope) isActive() bool {
	_, ok := s.current()
	return ok
}

// ── Scope manager ─────────────────────────────────────────────────────────────

// scopeManager routes a resolution to the strategy matching the definition's
// declared scope and owns request-context enter/exit.
type scopeManager struct {
	singleton *singletonScope
	prototype prototypeScope
	request   *requestScope
}

func newScopeManager() *scopeManager {
	return &scopeManager{
		singleton: newSingletonScope(),
		request:   newRequestScope(),
	}
}

func (m *scopeManager) strategy(scope ScopeType) scopeStrategy {
	switch scope {
	case ScopePrototype:
		return m.prototype
	case ScopeRequest:
		return m.request
	default:
		return m.singleton
	}
}

func (m *scopeManager) enterRequest() string { return m.request.enter() }
func (m *scopeManager) exitRequest()         { m.request.exit() }
func (m *scopeManager) requestActive() bool  { return m.request.isActive() }

func (m *scopeManager) clearAll() {
	m.singleton.clear()
	m.prototype.clear()
	m.request.clear()
}

// ── Goroutine identity ────────────────────────────────────────────────────────

// goid returns the current goroutine id, parsed from the stack header. Used
// to key per-goroutine resolution traces and request caches.
func goid() int64 {
	var buf [64]byte
	n := runtime.Stack(buf[:], false)
	idField := strings.Fields(strings.TrimPrefix(string(buf[:n]), "goroutine "))[0]
	id, _ := strconv.ParseInt(idField, 10, 64)
	return id
}
