package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"

	"github.com/km-arc/go-spring/framework/app"
	"github.com/km-arc/go-spring/framework/container"
	"github.com/km-arc/go-spring/routing"
)

// ── Components ───────────────────────────────────────────────────────────────

// Database is a managed singleton with startup/shutdown hooks. It starts at
// phase -100, before components that depend on it.
type Database struct {
	connected bool
}

func (d *Database) Phase() int { return -100 }

func (d *Database) OnStartup(ctx context.Context) error {
	d.connected = true
	return nil
}

func (d *Database) OnShutdown(ctx context.Context) error {
	d.connected = false
	return nil
}

func (d *Database) Ping() string {
	if d.connected {
		return "ok"
	}
	return "down"
}

// UserService gets its dependencies through attribute injection.
type UserService struct {
	DB *Database `inject:"database"`
}

func (s *UserService) Find(id string) map[string]any {
	return map[string]any{"id": id, "db": s.DB.Ping()}
}

// UserController exposes routes mounted under /api/v1 when the container
// refreshes.
type UserController struct {
	Users *UserService `inject:"userService"`
}

func (c *UserController) Routes() []container.Route {
	return []container.Route{
		{Method: http.MethodGet, Path: "/users/{id}", Handler: c.Show},
		{Method: http.MethodGet, Path: "/health", Handler: c.Health},
	}
}

func (c *UserController) Show(w http.ResponseWriter, r *http.Request) {
	id := routing.Param(r, "id")
	writeJSON(w, http.StatusOK, c.Users.Find(id))
}

func (c *UserController) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"status": "up"})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

// ── Declarative registration ─────────────────────────────────────────────────

func init() {
	must(container.Service("database", &Database{}, container.EagerInit()))
	must(container.Service("userService", &UserService{},
		container.DependsOn("database")))
	must(container.Controller("userController", &UserController{},
		container.WithPrefix("/api/v1"),
		container.DependsOn("userService")))
}

func must(err error) {
	if err != nil {
		panic(fmt.Sprintf("registration failed: %v", err))
	}
}

func main() {
	application := app.New()
	if err := application.Run(context.Background()); err != nil {
		log.Fatalf("application error: %v", err)
	}
}
