package container

import (
	"fmt"
	"strings"
)

// ── Error types ───────────────────────────────────────────────────────────────

// RegistryFrozenError is returned when a registration is attempted after the
// container (or the pending registry) has been frozen by Refresh().
type RegistryFrozenError struct {
	Name   string
	Source string
}

func (e *RegistryFrozenError) Error() string {
	if e.Source != "" {
		return fmt.Sprintf("container: registry frozen, cannot register [%s] (declared at %s)", e.Name, e.Source)
	}
	return fmt.Sprintf("container: registry frozen, cannot register [%s]", e.Name)
}

// DuplicateDefinitionError is returned when a definition name collides with
// one already registered.
type DuplicateDefinitionError struct {
	Name string
}

func (e *DuplicateDefinitionError) Error() string {
	return fmt.Sprintf("container: definition [%s] is already registered", e.Name)
}

// DependencyNotFoundError is returned by strict Get() for an unregistered
// name. Known carries every registered name for diagnostics.
type DependencyNotFoundError struct {
	Name  string
	Known []string
}

func (e *DependencyNotFoundError) Error() string {
	return fmt.Sprintf("container: no definition registered for [%s] (known: %s)",
		e.Name, strings.Join(e.Known, ", "))
}

// ConditionNotMetError is returned when a registered definition's activation
// conditions evaluate false at resolution time.
type ConditionNotMetError struct {
	Name string
}

func (e *ConditionNotMetError) Error() string {
	return fmt.Sprintf("container: conditions not met for [%s]", e.Name)
}

// CircularDependencyError carries the exact cycle encountered during
// resolution or static graph validation, e.g. "a -> b -> a".
type CircularDependencyError struct {
	Chain []string
}

func (e *CircularDependencyError) Error() string {
	return fmt.Sprintf("container: circular dependency detected: %s", strings.Join(e.Chain, " -> "))
}

// CreationError wraps a factory failure (an unexpected error or a nil result).
type CreationError struct {
	Name string
	Err  error
}

func (e *CreationError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("container: factory for [%s] returned no instance", e.Name)
	}
	return fmt.Sprintf("container: creating [%s]: %v", e.Name, e.Err)
}

func (e *CreationError) Unwrap() error {
	return e.Err
}

// ScopeNotActiveError is returned when a request-scoped definition is
// resolved outside an entered request context.
type ScopeNotActiveError struct {
	Name  string
	Scope ScopeType
}

func (e *ScopeNotActiveError) Error() string {
	return fmt.Sprintf("container: scope %s is not active for [%s]", e.Scope, e.Name)
}

// isContainerError reports whether err is one of the container's own error
// types. Such errors propagate through createInstance unwrapped.
func isContainerError(err error) bool {
	switch err.(type) {
	case *RegistryFrozenError, *DuplicateDefinitionError, *DependencyNotFoundError,
		*ConditionNotMetError, *CircularDependencyError, *CreationError, *ScopeNotActiveError:
		return true
	}
	return false
}
