package container

import (
	"reflect"
	"strings"
)

// ── Conditional activation ────────────────────────────────────────────────────

// Condition decides at resolution time whether a definition is currently
// activatable. A definition carries zero or more; all must pass.
//
// Conditions are evaluated lazily — at Get()/TryGet() time, never at
// registration time — so configuration observed later is honored.
type Condition func(c *Container) bool

// PropertySource answers configuration lookups for OnProperty conditions.
// *config.Config implements it.
type PropertySource interface {
	GetProperty(name string) (string, bool)
}

// OnProperty activates when the named property equals expected
// (case-insensitive). matchIfMissing controls whether an absent property
// counts as a pass.
//
//	// Spring: @ConditionalOnProperty(name = "cache.driver", havingValue = "redis")
//	container.OnProperty("CACHE_DRIVER", "redis", false)
func OnProperty(name, expected string, matchIfMissing bool) Condition {
	return func(c *Container) bool {
		if c.properties == nil {
			return matchIfMissing
		}
		val, ok := c.properties.GetProperty(name)
		if !ok {
			return matchIfMissing
		}
		return strings.EqualFold(val, expected)
	}
}

// OnBean activates only when the named definition is registered in the same
// container.
//
//	// Spring: @ConditionalOnBean("dataSource")
func OnBean(name string) Condition {
	return func(c *Container) bool { return c.Has(name) }
}

// OnMissingBean activates only when the named definition is NOT registered —
// the usual guard for default/fallback components.
//
//	// Spring: @ConditionalOnMissingBean("cache")
func OnMissingBean(name string) Condition {
	return func(c *Container) bool { return !c.Has(name) }
}

// OnType activates when some registered definition declares a type
// assignable to sample's type. Pass a pointer to an interface to probe for
// implementations:
//
//	container.OnType((*Mailer)(nil))
func OnType(sample any) Condition {
	want := reflect.TypeOf(sample)
	if want != nil && want.Kind() == reflect.Ptr && want.Elem().Kind() == reflect.Interface {
		want = want.Elem()
	}
	return func(c *Container) bool {
		if want == nil {
			return false
		}
		c.mu.RLock()
		defer c.mu.RUnlock()
		for _, def := range c.definitions {
			t := def.typ
			if t == nil {
				continue
			}
			if t == want || (want.Kind() == reflect.Interface && t.Implements(want)) {
				return true
			}
		}
		return false
	}
}

// OnFunc wraps an arbitrary predicate as a Condition.
func OnFunc(pred func(c *Container) bool) Condition {
	return Condition(pred)
}
