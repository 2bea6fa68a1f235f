package invoke

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/multierr"
)

// Resolver finds the target object for (type, name).
type Resolver interface {
	Resolve(typ, name string) (any, error)
}

// HealthChecker is implemented by targets that can report their health.
type HealthChecker interface {
	CheckHealth(ctx context.Context) error
}

type targetKey struct{ typ, name string }

// Container is a [Resolver] over explicitly bound targets.
type Container struct {
	mu      sync.RWMutex
	targets map[targetKey]any
	order   []targetKey
}

func NewContainer() *Container {
	return &Container{targets: make(map[targetKey]any)}
}

// Bind makes target resolvable as (typ, name). Rebinding replaces the
// previous target.
func (c *Container) Bind(typ, name string, target any) *Container {
	c.mu.Lock()
	defer c.mu.Unlock()
	k := targetKey{typ, name}
	if _, ok := c.targets[k]; !ok {
		c.order = append(c.order, k)
	}
	c.targets[k] = target
	return c
}

func (c *Container) Resolve(typ, name string) (any, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	t, ok := c.targets[targetKey{typ, name}]
	if !ok {
		if name == "" {
			return nil, fmt.Errorf("%w: %s", ErrNoSuchTarget, typ)
		}
		return nil, fmt.Errorf("%w: %s[%s]", ErrNoSuchTarget, typ, name)
	}
	return t, nil
}

// Each calls fn for every target in bind order.
func (c *Container) Each(fn func(typ, name string, target any)) {
	c.mu.RLock()
	keys := append([]targetKey(nil), c.order...)
	targets := make([]any, len(keys))
	for i, k := range keys {
		targets[i] = c.targets[k]
	}
	c.mu.RUnlock()

	for i, k := range keys {
		fn(k.typ, k.name, targets[i])
	}
}

// CheckHealth runs every bound [HealthChecker] and combines their errors.
func (c *Container) CheckHealth(ctx context.Context) (err error) {
	c.Each(func(typ, name string, target any) {
		hc, ok := target.(HealthChecker)
		if !ok {
			return
		}
		if herr := hc.CheckHealth(ctx); herr != nil {
			err = multierr.Append(err, fmt.Errorf("%s[%s]: %w", typ, name, herr))
		}
	})
	return err
}

var (
	_ Resolver      = (*Container)(nil)
	_ HealthChecker = (*Container)(nil)
)
