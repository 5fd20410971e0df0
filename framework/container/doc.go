// Package container provides a Spring-flavored IoC container and component
// lifecycle orchestrator for Go.
//
// # Overview
//
// The container owns a map of named, immutable component Definitions and
// resolves them into live instances honoring scoping rules (singleton,
// prototype, request), detecting dependency cycles, and evaluating
// conditional-activation predicates. Every managed singleton is driven
// through a uniform startup/shutdown protocol ordered by phase.
//
// # Container Lifecycle
//
//  1. Declare: container.Service("db", &Database{}) — markers queue pending
//     registrations before any container exists
//  2. Create: c := container.New(container.WithPendingRegistry(reg), ...)
//  3. Refresh: report, err := c.Refresh(ctx) — drains markers, validates the
//     graph, eagerly builds flagged components, freezes the registry, runs
//     the startup pass
//  4. Serve: c.Get / container.Resolve[T] from any goroutine
//  5. Shutdown: c.Shutdown(ctx) — teardown in exact-reverse startup order
//
// # Definitions
//
//	// Spring: @Bean(name = "cache") @Scope("singleton")
//	def := container.NewDefinition("cache", func(c *container.Container) (any, error) {
//	    cfg, err := container.Resolve[*config.Config](c, "config")
//	    if err != nil {
//	        return nil, err
//	    }
//	    return cache.New(cfg), nil
//	}, container.WithScope(container.ScopeSingleton))
//	c.Register(def)
//
// # Scopes
//
//	// Singleton — one instance for the container's lifetime
//	// Prototype — a fresh instance per resolution
//	// Request   — one instance per entered request context:
//	c.EnterRequestScope()
//	defer c.ExitRequestScope()
//	svc, err := c.Get("requestCache")
//
// # Conditions
//
//	// Spring: @ConditionalOnProperty / @ConditionalOnMissingBean
//	container.Service("redisCache", &RedisCache{},
//	    container.If(container.OnProperty("CACHE_DRIVER", "redis", false)))
//	container.Service("memoryCache", &MemoryCache{},
//	    container.If(container.OnMissingBean("redisCache")))
//
// # Attribute Injection
//
//	// Spring: @Autowired / @Qualifier / @Lazy
//	type UserService struct {
//	    DB     *Database       `inject:"database"`       // by name
//	    Cache  Cache           `inject:""`               // by type
//	    Mailer *container.Lazy `inject:"mailer,lazy"`    // lazy cell
//	    Audit  *AuditLog       `inject:"audit,optional"` // nil on miss
//	}
//
// # Lifecycle Hooks
//
// Components opt in by implementing PostConstructor, Starter, Stopper,
// PreDestroyer and/or Phased. Hooks run synchronously in phase order on
// startup and in exact-reverse recorded order on shutdown; one failing hook
// never blocks its siblings — failures aggregate into the returned Report.
package container
