package app_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/km-arc/go-spring/framework/app"
	"github.com/km-arc/go-spring/framework/container"
	"github.com/km-arc/go-spring/routing"
)

// ── fixtures ─────────────────────────────────────────────────────────────────

// greeter is a managed singleton with startup/shutdown hooks.
type greeter struct {
	Greeting string

	started bool
	stopped bool
}

func (g *greeter) OnStartup(ctx context.Context) error {
	g.started = true
	return nil
}

func (g *greeter) OnShutdown(ctx context.Context) error {
	g.stopped = true
	return nil
}

// greetController exposes the greeter over HTTP.
type greetController struct {
	Greeter *greeter `inject:"greeter"`
}

func (c *greetController) Routes() []container.Route {
	return []container.Route{
		{Method: http.MethodGet, Path: "/greet/{name}", Handler: c.greet},
	}
}

func (c *greetController) greet(w http.ResponseWriter, r *http.Request) {
	name := routing.Param(r, "name")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(c.Greeter.Greeting + ", " + name))
}

// visit is request-scoped: every HTTP request observes a fresh instance.
type visit struct {
	hits int
}

func newApp(t *testing.T, reg *container.PendingRegistry) *app.Application {
	t.Helper()
	a := app.New(app.WithPending(reg))
	if _, err := a.Refresh(context.Background()); err != nil {
		t.Fatalf("refresh: %v", err)
	}
	return a
}

// ── end-to-end: markers → refresh → routed controller ────────────────────────

func TestKernel_MarkersToRoutedController(t *testing.T) {
	reg := container.NewPendingRegistry()
	if err := container.Service("greeter", &greeter{Greeting: "hello"}, container.Into(reg)); err != nil {
		t.Fatal(err)
	}
	if err := container.Controller("greetController", &greetController{},
		container.Into(reg),
		container.WithPrefix("/api"),
		container.DependsOn("greeter")); err != nil {
		t.Fatal(err)
	}

	a := newApp(t, reg)
	defer a.Shutdown(context.Background())

	req := httptest.NewRequest(http.MethodGet, "/api/greet/world", nil)
	rr := httptest.NewRecorder()
	a.Router.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("got %d want 200", rr.Code)
	}
	if got := rr.Body.String(); got != "hello, world" {
		t.Errorf("got body %q want %q", got, "hello, world")
	}
}

// ── lifecycle: startup on refresh, shutdown in reverse ───────────────────────

func TestKernel_LifecycleHooksRun(t *testing.T) {
	reg := container.NewPendingRegistry()
	if err := container.Service("greeter", &greeter{Greeting: "hi"}, container.Into(reg)); err != nil {
		t.Fatal(err)
	}

	a := newApp(t, reg)

	g, err := container.Resolve[*greeter](a.Container, "greeter")
	if err != nil {
		t.Fatalf("resolve greeter: %v", err)
	}
	if !g.started {
		t.Error("expected OnStartup to have run during refresh")
	}
	if g.stopped {
		t.Error("OnShutdown must not run before shutdown")
	}

	report := a.Shutdown(context.Background())
	if !report.OK() {
		t.Errorf("shutdown report has failures: %+v", report.Failed())
	}
	if !g.stopped {
		t.Error("expected OnShutdown to have run during shutdown")
	}
}

// ── core components resolvable by name ───────────────────────────────────────

func TestKernel_CoreComponentsRegistered(t *testing.T) {
	a := newApp(t, container.NewPendingRegistry())
	defer a.Shutdown(context.Background())

	for _, name := range []string{"config", "logger", "router"} {
		if _, err := a.Container.Get(name); err != nil {
			t.Errorf("Get(%q): %v", name, err)
		}
	}

	r, err := container.Resolve[*routing.Router](a.Container, "router")
	if err != nil {
		t.Fatalf("resolve router: %v", err)
	}
	if r != a.Router {
		t.Error("container router must be the kernel's router")
	}
}

// ── request-scoped middleware ────────────────────────────────────────────────

func TestKernel_RequestScopedMiddleware(t *testing.T) {
	reg := container.NewPendingRegistry()
	if err := container.Service("visit", &visit{}, container.Into(reg), container.InScope("request")); err != nil {
		t.Fatal(err)
	}

	a := newApp(t, reg)
	defer a.Shutdown(context.Background())

	seen := make([]*visit, 0, 2)
	handler := a.RequestScoped(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		first, err := container.Resolve[*visit](a.Container, "visit")
		if err != nil {
			t.Errorf("resolve visit: %v", err)
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		first.hits++

		// Same request, same instance.
		again, err := container.Resolve[*visit](a.Container, "visit")
		if err != nil {
			t.Errorf("resolve visit again: %v", err)
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		if again != first {
			t.Error("expected one instance per request")
		}

		seen = append(seen, first)
		w.WriteHeader(http.StatusOK)
	}))

	for i := 0; i < 2; i++ {
		req := httptest.NewRequest(http.MethodGet, "/anything", nil)
		rr := httptest.NewRecorder()
		handler.ServeHTTP(rr, req)
		if rr.Code != http.StatusOK {
			t.Fatalf("request %d: got %d want 200", i, rr.Code)
		}
	}

	if len(seen) != 2 {
		t.Fatalf("expected 2 handled requests, got %d", len(seen))
	}
	if seen[0] == seen[1] {
		t.Error("expected a fresh instance for each request")
	}
	if seen[0].hits != 1 || seen[1].hits != 1 {
		t.Errorf("each instance must see exactly one hit, got %d and %d", seen[0].hits, seen[1].hits)
	}

	// Outside a request, the scope is inactive.
	if _, err := a.Container.Get("visit"); err == nil {
		t.Error("expected request-scoped resolution to fail outside a request")
	}
}

// ── refresh is idempotent through the kernel ─────────────────────────────────

func TestKernel_RefreshIdempotent(t *testing.T) {
	reg := container.NewPendingRegistry()
	if err := container.Service("greeter", &greeter{Greeting: "yo"}, container.Into(reg)); err != nil {
		t.Fatal(err)
	}

	a := newApp(t, reg)
	defer a.Shutdown(context.Background())

	if _, err := a.Refresh(context.Background()); err != nil {
		t.Fatalf("second refresh: %v", err)
	}
	if !a.Container.Has("greeter") {
		t.Error("greeter must survive a second refresh")
	}
}
