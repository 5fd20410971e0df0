package container_test

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"github.com/km-arc/go-spring/framework/container"
)

type widget struct {
	n int64
}

func countingFactory(counter *int64) container.Factory {
	return func(*container.Container) (any, error) {
		return &widget{n: atomic.AddInt64(counter, 1)}, nil
	}
}

type ScopeTestSuite struct {
	suite.Suite
}

func (s *ScopeTestSuite) TestSingletonIdentity() {
	c := newContainer()
	var built int64
	s.NoError(c.Register(container.NewDefinition("w", countingFactory(&built),
		container.WithScope(container.ScopeSingleton))))

	first, err := c.Get("w")
	s.NoError(err)
	second, err := c.Get("w")
	s.NoError(err)
	s.Same(first, second)
	s.EqualValues(1, built)
}

func (s *ScopeTestSuite) TestSingletonConcurrentFirstAccess() {
	c := newContainer()
	var built int64
	s.NoError(c.Register(container.NewDefinition("w", func(*container.Container) (any, error) {
		atomic.AddInt64(&built, 1)
		time.Sleep(5 * time.Millisecond) // widen the race window
		return &widget{}, nil
	}, container.WithScope(container.ScopeSingleton))))

	const workers = 16
	results := make([]any, workers)
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			inst, err := c.Get("w")
			s.NoError(err)
			results[i] = inst
		}(i)
	}
	wg.Wait()

	s.EqualValues(1, built, "exactly one instance must be constructed")
	for _, inst := range results {
		s.Same(results[0], inst)
	}
}

func (s *ScopeTestSuite) TestPrototypeDistinctness() {
	c := newContainer()
	var built int64
	s.NoError(c.Register(container.NewDefinition("w", countingFactory(&built),
		container.WithScope(container.ScopePrototype))))

	first, err := c.Get("w")
	s.NoError(err)
	second, err := c.Get("w")
	s.NoError(err)
	s.NotSame(first, second)
	s.EqualValues(2, built)
}

func (s *ScopeTestSuite) TestRequestScopeOutsideContext() {
	c := newContainer()
	var built int64
	s.NoError(c.Register(container.NewDefinition("w", countingFactory(&built),
		container.WithScope(container.ScopeRequest))))

	_, err := c.Get("w")
	var notActive *container.ScopeNotActiveError
	s.ErrorAs(err, &notActive)
	s.Equal(container.ScopeRequest, notActive.Scope)
	s.False(c.RequestScopeActive())
}

func (s *ScopeTestSuite) TestRequestScopeIsolation() {
	c := newContainer()
	var built int64
	s.NoError(c.Register(container.NewDefinition("w", countingFactory(&built),
		container.WithScope(container.ScopeRequest))))

	firstID := c.EnterRequestScope()
	s.True(c.RequestScopeActive())
	a1, err := c.Get("w")
	s.NoError(err)
	a2, err := c.Get("w")
	s.NoError(err)
	s.Same(a1, a2, "same request context must reuse the instance")
	c.ExitRequestScope()

	secondID := c.EnterRequestScope()
	b, err := c.Get("w")
	s.NoError(err)
	c.ExitRequestScope()

	s.NotSame(a1, b, "separate request contexts must not share instances")
	s.NotEqual(firstID, secondID)
	s.EqualValues(2, built)
}

func (s *ScopeTestSuite) TestRequestScopePerGoroutine() {
	c := newContainer()
	var built int64
	s.NoError(c.Register(container.NewDefinition("w", countingFactory(&built),
		container.WithScope(container.ScopeRequest))))

	const workers = 8
	instances := make([]any, workers)
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			c.EnterRequestScope()
			defer c.ExitRequestScope()
			inst, err := c.Get("w")
			s.NoError(err)
			instances[i] = inst
		}(i)
	}
	wg.Wait()

	s.EqualValues(workers, built)
	seen := make(map[any]bool)
	for _, inst := range instances {
		s.False(seen[inst], "request instances must not leak across goroutines")
		seen[inst] = true
	}
}

func (s *ScopeTestSuite) TestDynamicCycleDetection() {
	c := newContainer()
	s.NoError(c.Register(container.NewDefinition("a", func(c *container.Container) (any, error) {
		return c.Get("b")
	})))
	s.NoError(c.Register(container.NewDefinition("b", func(c *container.Container) (any, error) {
		return c.Get("a")
	})))

	_, err := c.Get("a")
	var cycle *container.CircularDependencyError
	s.ErrorAs(err, &cycle)
	s.Equal([]string{"a", "b", "a"}, cycle.Chain)

	// The trace is cleaned up on failure: an unrelated resolution works.
	s.NoError(c.Register(container.NewDefinition("ok", func(*container.Container) (any, error) {
		return "fine", nil
	})))
	got, err := c.Get("ok")
	s.NoError(err)
	s.Equal("fine", got)
}

func (s *ScopeTestSuite) TestConcurrentResolutionsHaveIsolatedTraces() {
	c := newContainer()
	s.NoError(c.Register(container.NewDefinition("leaf", func(*container.Container) (any, error) {
		time.Sleep(time.Millisecond)
		return &widget{}, nil
	}, container.WithScope(container.ScopePrototype))))
	s.NoError(c.Register(container.NewDefinition("mid", func(c *container.Container) (any, error) {
		return c.Get("leaf")
	}, container.WithScope(container.ScopePrototype))))

	// Many goroutines resolving the same chain must never observe a false
	// cycle from each other's in-flight traces.
	var wg sync.WaitGroup
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 10; j++ {
				_, err := c.Get("mid")
				s.NoError(err)
			}
		}()
	}
	wg.Wait()
}

func TestScopeTestSuite(t *testing.T) {
	suite.Run(t, new(ScopeTestSuite))
}
