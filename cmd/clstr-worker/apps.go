package main

import (
	"context"
	"errors"
	"sync"

	"github.com/NamazuStudios/elements-sub015/core/ids"
	"github.com/NamazuStudios/elements-sub015/core/invoke"
	"github.com/NamazuStudios/elements-sub015/core/node"
)

// Types served by every application node.
const (
	echoType    = "Echo"
	counterType = "Counter"
)

var errNegativeCount = errors.New("count must not be negative")

type echoService struct{}

// counterService keeps named counters in memory. A restarted node starts
// from zero.
type counterService struct {
	mu     sync.Mutex
	values map[string]int
}

func newCounterService() *counterService {
	return &counterService{values: make(map[string]int)}
}

func (c *counterService) add(key string, n int) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.values[key] += n
	return c.values[key]
}

func (c *counterService) get(key string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.values[key]
}

func applicationRegistry() *invoke.Registry {
	reg := invoke.NewRegistry()
	reg.MustRegister(invoke.TypeDescriptor{
		Name: echoType,
		Methods: []invoke.Method{
			invoke.Func1("Say", func(_ context.Context, _ *echoService, s string) (string, error) { return s, nil }),
			// Count emits 1..n as async parts.
			invoke.Func1("Count", func(ctx context.Context, _ *echoService, n int) (invoke.Stream, error) {
				if n < 0 {
					return nil, errNegativeCount
				}
				ch := make(chan invoke.Emission)
				go func() {
					defer close(ch)
					for i := 1; i <= n; i++ {
						select {
						case ch <- invoke.Emission{Value: i}:
						case <-ctx.Done():
							return
						}
					}
				}()
				return ch, nil
			}),
		},
	})
	reg.MustRegister(invoke.TypeDescriptor{
		Name: counterType,
		Methods: []invoke.Method{
			invoke.Func2("Add", func(_ context.Context, c *counterService, key string, n int) (int, error) {
				return c.add(key, n), nil
			}),
			invoke.Func1("Get", func(_ context.Context, c *counterService, key string) (int, error) {
				return c.get(key), nil
			}),
		},
	})
	return reg
}

// applications builds the nodes of configured applications. Applications
// added at runtime through the instance service get a generated name.
type applications struct {
	names    map[ids.ApplicationID]string
	registry *invoke.Registry
	template node.Options
}

func newApplications(names []string, template node.Options) *applications {
	a := &applications{
		names:    make(map[ids.ApplicationID]string, len(names)),
		registry: applicationRegistry(),
		template: template,
	}
	for _, name := range names {
		a.names[ids.ApplicationFromName(name)] = name
	}
	return a
}

// IDs returns the ids of the configured applications in config order.
func (a *applications) IDs(names []string) []ids.ApplicationID {
	out := make([]ids.ApplicationID, 0, len(names))
	for _, name := range names {
		out = append(out, ids.ApplicationFromName(name))
	}
	return out
}

func (a *applications) Factory(_ context.Context, app ids.ApplicationID) (*node.Node, error) {
	opts := a.template
	opts.Name = a.names[app]
	opts.Application = app
	opts.Registry = a.registry
	opts.Container = invoke.NewContainer().
		Bind(echoType, "", &echoService{}).
		Bind(counterType, "", newCounterService())
	return node.New(opts), nil
}
