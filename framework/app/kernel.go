// Package app assembles the framework's composition root: one object that
// owns the pending registry, the container, configuration, logging and the
// HTTP router, and drives refresh/run/shutdown.
package app

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/km-arc/go-spring/framework/config"
	"github.com/km-arc/go-spring/framework/container"
	"github.com/km-arc/go-spring/framework/logging"
	"github.com/km-arc/go-spring/routing"
)

// Application is the top-level composition root. It is constructed once per
// process (or per test) and passed by reference — there is no hidden global
// application state beyond the marker default pending registry.
type Application struct {
	Container *container.Container
	Config    *config.Config
	Router    *routing.Router
	Logger    *zap.Logger

	refreshed bool
}

// Option customises the Application at construction time.
type Option func(*options)

type options struct {
	pending         *container.PendingRegistry
	startupTimeout  time.Duration
	shutdownTimeout time.Duration
}

// WithPending uses an explicit pending registry instead of the process-wide
// default — tests use this to stay independently resettable.
func WithPending(r *container.PendingRegistry) Option {
	return func(o *options) { o.pending = r }
}

// WithStartupTimeout bounds the container's startup pass.
func WithStartupTimeout(d time.Duration) Option {
	return func(o *options) { o.startupTimeout = d }
}

// WithShutdownTimeout bounds the container's shutdown pass.
func WithShutdownTimeout(d time.Duration) Option {
	return func(o *options) { o.shutdownTimeout = d }
}

// New builds the application: config from .env, a zap logger, the chi
// router, and a container wired to all three.
func New(opts ...Option) *Application {
	o := &options{
		startupTimeout:  30 * time.Second,
		shutdownTimeout: 15 * time.Second,
	}
	for _, opt := range opts {
		opt(o)
	}

	cfg := config.Load()
	logger := logging.New(cfg.App.Debug)
	router := routing.New()

	containerOpts := []container.ContainerOption{
		container.WithLogger(logger),
		container.WithProperties(cfg),
		container.WithRouter(router),
		container.WithStartupTimeout(o.startupTimeout),
		container.WithShutdownTimeout(o.shutdownTimeout),
	}
	if o.pending != nil {
		containerOpts = append(containerOpts, container.WithPendingRegistry(o.pending))
	}
	c := container.New(containerOpts...)

	app := &Application{
		Container: c,
		Config:    cfg,
		Router:    router,
		Logger:    logger,
	}

	// Core framework components are resolvable by name like any other.
	c.Register(container.NewDefinition("config", func(*container.Container) (any, error) {
		return cfg, nil
	}))
	c.Register(container.NewDefinition("logger", func(*container.Container) (any, error) {
		return logger, nil
	}))
	c.Register(container.NewDefinition("router", func(*container.Container) (any, error) {
		return router, nil
	}))

	return app
}

// Refresh drains the pending registry and starts all managed components.
func (a *Application) Refresh(ctx context.Context) (*container.Report, error) {
	report, err := a.Container.Refresh(ctx)
	if err != nil {
		return nil, err
	}
	a.refreshed = true
	for _, outcome := range report.Failed() {
		a.Logger.Warn("lifecycle hook failed during startup",
			zap.String("component", outcome.Component),
			zap.String("hook", outcome.Hook),
			zap.Error(outcome.Err))
	}
	return report, nil
}

// RequestScoped is HTTP middleware that brackets each request with the
// container's request scope, so request-scoped components resolve per
// request and are destroyed when the response is written.
func (a *Application) RequestScoped(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		a.Container.EnterRequestScope()
		defer a.Container.ExitRequestScope()
		next.ServeHTTP(w, r)
	})
}

// Run refreshes the container (if needed) and serves HTTP on APP_PORT until
// SIGINT/SIGTERM, then shuts the container and the server down gracefully.
func (a *Application) Run(ctx context.Context) error {
	if !a.refreshed {
		if _, err := a.Refresh(ctx); err != nil {
			return err
		}
	}

	addr := ":" + a.Config.App.Port
	server := &http.Server{Addr: addr, Handler: a.Router}

	errCh := make(chan error, 1)
	go func() {
		a.Logger.Info("http server listening",
			zap.String("app", a.Config.App.Name),
			zap.String("addr", addr),
			zap.String("env", a.Config.App.Env))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		a.Shutdown(context.Background())
		return err
	case <-stop:
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		a.Logger.Error("http server shutdown failed", zap.Error(err))
	}
	a.Shutdown(shutdownCtx)
	return nil
}

// Shutdown tears down every managed component.
func (a *Application) Shutdown(ctx context.Context) *container.Report {
	report := a.Container.Shutdown(ctx)
	for _, outcome := range report.Failed() {
		a.Logger.Warn("lifecycle hook failed during shutdown",
			zap.String("component", outcome.Component),
			zap.String("hook", outcome.Hook),
			zap.Error(outcome.Err))
	}
	_ = a.Logger.Sync()
	return report
}

// Environment returns the APP_ENV value.
func (a *Application) Environment() string { return a.Config.App.Env }
func (a *Application) IsLocal() bool       { return a.Environment() == "local" }
func (a *Application) IsProduction() bool  { return a.Environment() == "production" }
func (a *Application) IsDebug() bool       { return a.Config.App.Debug }
