package invoke

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type counter struct {
	mu sync.Mutex
	n  int
}

func (c *counter) add(n int) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.n += n
	return c.n
}

func (c *counter) CheckHealth(context.Context) error {
	if c.n < 0 {
		return errors.New("negative")
	}
	return nil
}

func counterType() TypeDescriptor {
	return TypeDescriptor{
		Name: "Counter",
		Methods: []Method{
			Func1("Add", func(_ context.Context, c *counter, n int) (int, error) { return c.add(n), nil }),
			Func2("Add", func(_ context.Context, c *counter, a, b int) (int, error) { return c.add(a + b), nil }),
			Func0("Get", func(_ context.Context, c *counter) (int, error) { return c.add(0), nil }),
			Proc1("Reset", func(_ context.Context, c *counter, n int) error {
				c.mu.Lock()
				c.n = n
				c.mu.Unlock()
				return nil
			}),
			Func1("Fail", func(_ context.Context, _ *counter, msg string) (int, error) { return 0, errors.New(msg) }),
			Func0("Panic", func(_ context.Context, _ *counter) (int, error) { panic("boom") }),
			Func0("Later", func(_ context.Context, c *counter) (Future, error) {
				p := NewPromise()
				go p.Resolve(c.add(0) * 10)
				return p, nil
			}, WithStrategy(BlockingFuture)),
			Func1("Count", func(ctx context.Context, _ *counter, n int) (Stream, error) {
				ch := make(chan Emission)
				go func() {
					defer close(ch)
					for i := 1; i <= n; i++ {
						select {
						case ch <- Emission{Value: i}:
						case <-ctx.Done():
							return
						}
					}
				}()
				return ch, nil
			}),
		},
	}
}

type outcomes struct {
	mu       sync.Mutex
	sync     []Result
	syncErr  []*Error
	async    map[int][]Result
	asyncErr map[int][]*Error
}

func (o *outcomes) consumers(n int) (ResultConsumer, ErrorConsumer, []ResultConsumer, AsyncErrorConsumer) {
	o.async = make(map[int][]Result)
	o.asyncErr = make(map[int][]*Error)
	asyncs := make([]ResultConsumer, n)
	for i := range asyncs {
		part := i + 1
		asyncs[i] = func(r Result) {
			o.mu.Lock()
			defer o.mu.Unlock()
			o.async[part] = append(o.async[part], r)
		}
	}
	syncResult := func(r Result) {
		o.mu.Lock()
		defer o.mu.Unlock()
		o.sync = append(o.sync, r)
	}
	syncError := func(e *Error) {
		o.mu.Lock()
		defer o.mu.Unlock()
		o.syncErr = append(o.syncErr, e)
	}
	asyncError := func(part int, e *Error) {
		o.mu.Lock()
		defer o.mu.Unlock()
		o.asyncErr[part] = append(o.asyncErr[part], e)
	}
	return syncResult, syncError, asyncs, asyncError
}

func newTestDispatcher(t *testing.T) (*Dispatcher, *counter) {
	t.Helper()
	slog.SetLogLoggerLevel(slog.LevelDebug)

	reg := NewRegistry()
	require.NoError(t, reg.Register(counterType()))
	c := &counter{}
	return NewDispatcher(DispatcherOptions{
		Resolver: NewContainer().Bind("Counter", "", c),
		Methods:  NewMethodCache(MethodCacheOpts{Registry: reg, Size: 8}),
	}), c
}

func dispatch(t *testing.T, d *Dispatcher, inv *Invocation, n int) *outcomes {
	t.Helper()
	o := &outcomes{}
	sr, se, ar, ae := o.consumers(n)
	d.Dispatch(t.Context(), inv, sr, se, ar, ae)
	return o
}

func args(t *testing.T, values ...any) [][]byte {
	t.Helper()
	b, err := EncodeArgs(JSON, values...)
	require.NoError(t, err)
	return b
}

func decode[T any](t *testing.T, b []byte) T {
	t.Helper()
	var v T
	require.NoError(t, JSON.Read(b, &v))
	return v
}

func TestRegistry(t *testing.T) {
	reg := NewRegistry()
	require.NoError(t, reg.Register(counterType()))
	require.Equal(t, []string{"Counter"}, reg.Types())

	err := reg.Register(TypeDescriptor{Name: "Counter", Methods: []Method{
		Func1("Add", func(context.Context, *counter, int) (int, error) { return 0, nil }),
	}})
	require.ErrorIs(t, err, ErrAmbiguousMethod)

	m, err := reg.lookup(MethodKey{Type: "Counter", Method: "Add", Signature: "int,int"})
	require.NoError(t, err)
	require.Equal(t, []string{"int", "int"}, m.Parameters)

	_, err = reg.lookup(MethodKey{Type: "Counter", Method: "Add"})
	require.ErrorIs(t, err, ErrAmbiguousMethod)

	_, err = reg.lookup(MethodKey{Type: "Counter", Method: "Add", Signature: "string"})
	require.ErrorIs(t, err, ErrNoSuchMethod)

	_, err = reg.lookup(MethodKey{Type: "Nope", Method: "Add"})
	require.ErrorIs(t, err, ErrNoSuchType)

	m, err = reg.lookup(MethodKey{Type: "Counter", Method: "Reset"})
	require.NoError(t, err)
	require.Equal(t, Ignore, m.Strategy)
}

func TestMethodCache(t *testing.T) {
	reg := NewRegistry()
	reg.MustRegister(counterType())
	mc := NewMethodCache(MethodCacheOpts{Registry: reg, Size: 2})

	key := MethodKey{Type: "Counter", Method: "Get"}
	require.Equal(t, "Counter#Get()", key.String())

	var wg sync.WaitGroup
	procs := make([]*Processor, 16)
	for i := range procs {
		wg.Add(1)
		go func() {
			defer wg.Done()
			p, err := mc.Resolve(key)
			require.NoError(t, err)
			procs[i] = p
		}()
	}
	wg.Wait()
	for _, p := range procs {
		require.Same(t, procs[0], p)
	}
	require.Equal(t, 1, mc.Len())

	_, err := mc.Resolve(MethodKey{Type: "Counter", Method: "Missing"})
	require.ErrorIs(t, err, ErrNoSuchMethod)
	require.Equal(t, 1, mc.Len(), "failures are not cached")

	// bounded
	for _, m := range []string{"Later", "Count", "Panic"} {
		_, err := mc.Resolve(MethodKey{Type: "Counter", Method: m})
		require.NoError(t, err)
	}
	require.Equal(t, 2, mc.Len())
}

type cacheEvictions struct {
	DispatchMetrics
	n atomic.Int64
}

func (m *cacheEvictions) MethodCacheEvicted() { m.n.Add(1) }

func TestMethodCache_Options(t *testing.T) {
	reg := NewRegistry()
	reg.MustRegister(counterType())
	get := MethodKey{Type: "Counter", Method: "Get"}

	t.Run("evictions are counted", func(t *testing.T) {
		m := &cacheEvictions{DispatchMetrics: NopDispatchMetrics()}
		mc := NewMethodCache(MethodCacheOpts{Registry: reg, Size: 2, Metrics: m})
		for _, name := range []string{"Get", "Later", "Count", "Panic"} {
			_, err := mc.Resolve(MethodKey{Type: "Counter", Method: name})
			require.NoError(t, err)
		}
		require.Equal(t, 2, mc.Len())
		require.EqualValues(t, 2, m.n.Load())
	})

	t.Run("entries expire", func(t *testing.T) {
		now := time.Unix(0, 0)
		mc := NewMethodCache(MethodCacheOpts{Registry: reg, TTL: time.Minute, Now: func() time.Time { return now }})
		p1, err := mc.Resolve(get)
		require.NoError(t, err)
		p2, err := mc.Resolve(get)
		require.NoError(t, err)
		require.Same(t, p1, p2)

		now = now.Add(time.Minute)
		p3, err := mc.Resolve(get)
		require.NoError(t, err)
		require.NotSame(t, p1, p3)
	})

	t.Run("negative size disables caching", func(t *testing.T) {
		mc := NewMethodCache(MethodCacheOpts{Registry: reg, Size: -1})
		p1, err := mc.Resolve(get)
		require.NoError(t, err)
		p2, err := mc.Resolve(get)
		require.NoError(t, err)
		require.NotSame(t, p1, p2)
		require.Zero(t, mc.Len())
	})
}

func TestMethodCache_KeysDoNotCollide(t *testing.T) {
	reg := NewRegistry()
	reg.MustRegister(TypeDescriptor{Name: "a#b", Methods: []Method{
		Func0("c", func(context.Context, *counter) (string, error) { return "a#b.c", nil }),
	}})
	reg.MustRegister(TypeDescriptor{Name: "a", Methods: []Method{
		Func0("b#c", func(context.Context, *counter) (string, error) { return "a.b#c", nil }),
	}})
	mc := NewMethodCache(MethodCacheOpts{Registry: reg})

	k1 := MethodKey{Type: "a#b", Method: "c"}
	k2 := MethodKey{Type: "a", Method: "b#c"}
	require.Equal(t, k1.String(), k2.String())

	p1, err := mc.Resolve(k1)
	require.NoError(t, err)
	p2, err := mc.Resolve(k2)
	require.NoError(t, err)
	require.Equal(t, k1, p1.Key)
	require.Equal(t, k2, p2.Key)
	require.Equal(t, 2, mc.Len())

	v, err := p2.Invoke(t.Context(), &counter{}, Args{})
	require.NoError(t, err)
	require.Equal(t, "a.b#c", v)
}

func TestDispatch_Results(t *testing.T) {
	d, c := newTestDispatcher(t)

	o := dispatch(t, d, &Invocation{Type: "Counter", Method: "Add", Parameters: []string{"int"}, Arguments: args(t, 5)}, 0)
	require.Len(t, o.sync, 1)
	require.Equal(t, 5, decode[int](t, o.sync[0].Value))

	o = dispatch(t, d, &Invocation{Type: "Counter", Method: "Add", Parameters: []string{"int", "int"}, Arguments: args(t, 1, 2)}, 0)
	require.Equal(t, 8, decode[int](t, o.sync[0].Value))

	o = dispatch(t, d, &Invocation{Type: "Counter", Method: "Reset", Arguments: args(t, 3)}, 0)
	require.Len(t, o.sync, 1)
	require.True(t, o.sync[0].OK)
	require.Empty(t, o.sync[0].Value)
	require.Equal(t, 3, c.add(0))

	o = dispatch(t, d, &Invocation{Type: "Counter", Method: "Later"}, 0)
	require.Len(t, o.sync, 1)
	require.Equal(t, 30, decode[int](t, o.sync[0].Value))
	require.Empty(t, o.syncErr)
}

func TestDispatch_Stream(t *testing.T) {
	d, _ := newTestDispatcher(t)

	o := dispatch(t, d, &Invocation{Type: "Counter", Method: "Count", Arguments: args(t, 5)}, 3)
	require.Len(t, o.sync, 1)
	require.Empty(t, o.sync[0].Value)
	require.Len(t, o.async, 3)
	for part := 1; part <= 3; part++ {
		require.Len(t, o.async[part], 1)
		require.Equal(t, part, decode[int](t, o.async[part][0].Value))
	}
	require.Empty(t, o.asyncErr)

	// shorter stream than budget
	o = dispatch(t, d, &Invocation{Type: "Counter", Method: "Count", Arguments: args(t, 1)}, 3)
	require.Len(t, o.async, 1)
	require.Len(t, o.asyncErr[2], 1)
	require.ErrorIs(t, o.asyncErr[2][0], ErrStreamEnded)
}

func TestDispatch_Failures(t *testing.T) {
	d, _ := newTestDispatcher(t)

	t.Run("unknown target on both channels", func(t *testing.T) {
		o := dispatch(t, d, &Invocation{Type: "Ghost", Method: "Get"}, 2)
		require.Empty(t, o.sync)
		require.Len(t, o.syncErr, 1)
		require.Equal(t, KindResolution, o.syncErr[0].Type)
		require.ErrorIs(t, o.syncErr[0], ErrNoSuchTarget)
		require.Len(t, o.asyncErr[1], 1)
		require.Empty(t, o.async)
	})

	t.Run("unknown method", func(t *testing.T) {
		o := dispatch(t, d, &Invocation{Type: "Counter", Method: "Nope"}, 1)
		require.ErrorIs(t, o.syncErr[0], ErrNoSuchMethod)
		require.Len(t, o.asyncErr[1], 1)
	})

	t.Run("method error on sync side", func(t *testing.T) {
		o := dispatch(t, d, &Invocation{Type: "Counter", Method: "Fail", Arguments: args(t, "nope")}, 0)
		require.Len(t, o.syncErr, 1)
		require.Equal(t, KindInvocation, o.syncErr[0].Type)
		require.Equal(t, "nope", o.syncErr[0].Message)
		require.Empty(t, o.asyncErr)
	})

	t.Run("panic converted", func(t *testing.T) {
		o := dispatch(t, d, &Invocation{Type: "Counter", Method: "Panic"}, 1)
		require.Len(t, o.syncErr, 1)
		require.Equal(t, KindPanic, o.syncErr[0].Type)
		require.ErrorIs(t, o.syncErr[0], ErrPanic)
		require.Len(t, o.asyncErr[1], 1)
		require.ErrorIs(t, o.asyncErr[1][0], ErrNoAsyncResults)
	})

	t.Run("bad argument", func(t *testing.T) {
		o := dispatch(t, d, &Invocation{Type: "Counter", Method: "Add", Parameters: []string{"int"}, Arguments: [][]byte{[]byte(`"x"`)}}, 0)
		require.Len(t, o.syncErr, 1)
		require.Equal(t, KindCodec, o.syncErr[0].Type)

		o = dispatch(t, d, &Invocation{Type: "Counter", Method: "Get", Arguments: args(t, 1)}, 0)
		require.ErrorIs(t, o.syncErr[0], ErrArgumentCount)
	})

	t.Run("not a future", func(t *testing.T) {
		reg := NewRegistry()
		reg.MustRegister(TypeDescriptor{Name: "T", Methods: []Method{
			Func0("M", func(context.Context, *counter) (int, error) { return 1, nil }, WithStrategy(BlockingFuture)),
		}})
		d := NewDispatcher(DispatcherOptions{
			Resolver: NewContainer().Bind("T", "", &counter{}),
			Methods:  NewMethodCache(MethodCacheOpts{Registry: reg}),
		})
		o := dispatch(t, d, &Invocation{Type: "T", Method: "M"}, 0)
		require.ErrorIs(t, o.syncErr[0], ErrNotFuture)
	})
}

type panicResolver struct{}

func (panicResolver) Resolve(string, string) (any, error) { panic("resolver exploded") }

type deliveryDrops struct {
	DispatchMetrics
	n atomic.Int64
}

func (m *deliveryDrops) DeliveryDropped(string) { m.n.Add(1) }

func TestDispatch_PanicOutsideMethod(t *testing.T) {
	m := &deliveryDrops{DispatchMetrics: NopDispatchMetrics()}
	d := NewDispatcher(DispatcherOptions{Resolver: panicResolver{}, Metrics: m})

	o := dispatch(t, d, &Invocation{Type: "T", Method: "M"}, 0)
	require.Len(t, o.syncErr, 1)
	require.Equal(t, KindPanic, o.syncErr[0].Type)
	require.Empty(t, o.asyncErr)
	require.Zero(t, m.n.Load(), "no async part to fail")

	o = dispatch(t, d, &Invocation{Type: "T", Method: "M"}, 2)
	require.Len(t, o.syncErr, 1)
	require.Len(t, o.asyncErr[1], 1)
	require.Equal(t, KindPanic, o.asyncErr[1][0].Type)
	require.Zero(t, m.n.Load())
}

// Exactly one sync outcome and at most N async outcomes, however often the
// consumers are driven.
func TestCall_AtMostOnceDelivery(t *testing.T) {
	for _, n := range []int{0, 1, 3, 8} {
		t.Run(fmt.Sprintf("n=%d", n), func(t *testing.T) {
			o := &outcomes{}
			sr, se, ar, ae := o.consumers(n)
			c := NewCall(&Invocation{Type: "T", Method: "M"}, sr, se, ar, ae)

			var wg sync.WaitGroup
			for w := range 16 {
				wg.Add(1)
				go func() {
					defer wg.Done()
					if w%2 == 0 {
						c.AnswerSync(Result{OK: true})
					} else {
						c.FailSync(&Error{Message: "x"})
					}
					for part := 0; part <= n+1; part++ {
						c.AnswerAsync(part, Result{OK: true})
					}
					if w == 7 {
						c.FailAsync(n, &Error{Message: "end"})
					}
				}()
			}
			wg.Wait()

			require.Equal(t, 1, len(o.sync)+len(o.syncErr))
			delivered := 0
			for part, rs := range o.async {
				require.Len(t, rs, 1, "part %d", part)
				require.True(t, part >= 1 && part <= n)
				delivered++
			}
			for _, es := range o.asyncErr {
				delivered += len(es)
			}
			require.LessOrEqual(t, delivered, n)
			require.Zero(t, c.Remaining())
		})
	}
}

func TestCall_FailAsyncExhaustsBudget(t *testing.T) {
	o := &outcomes{}
	sr, se, ar, ae := o.consumers(3)
	c := NewCall(&Invocation{}, sr, se, ar, ae)

	require.True(t, c.AnswerAsync(1, Result{OK: true}))
	require.True(t, c.FailAsync(2, &Error{Message: "stop"}))
	require.False(t, c.AnswerAsync(2, Result{OK: true}))
	require.False(t, c.AnswerAsync(3, Result{OK: true}))
	require.False(t, c.FailAsync(3, &Error{Message: "again"}))
	require.Equal(t, StateAsyncAnswered, c.State())
	require.Len(t, o.async, 1)
	require.Len(t, o.asyncErr[2], 1)
}

func TestContainer(t *testing.T) {
	c := NewContainer()
	good, bad := &counter{}, &counter{n: -1}
	c.Bind("Counter", "", good).Bind("Counter", "bad", bad)

	v, err := c.Resolve("Counter", "bad")
	require.NoError(t, err)
	require.Same(t, bad, v)

	_, err = c.Resolve("Counter", "x")
	require.ErrorIs(t, err, ErrNoSuchTarget)

	var names []string
	c.Each(func(_, name string, _ any) { names = append(names, name) })
	require.Equal(t, []string{"", "bad"}, names)

	require.Error(t, c.CheckHealth(t.Context()))
	bad.n = 0
	require.NoError(t, c.CheckHealth(t.Context()))
}

func TestPromise(t *testing.T) {
	p := NewPromise()
	require.True(t, p.Reject(errors.New("no")))
	require.False(t, p.Resolve(1))
	_, err := p.Await(t.Context())
	require.EqualError(t, err, "no")

	ctx, cancel := context.WithTimeout(t.Context(), 10*time.Millisecond)
	defer cancel()
	_, err = NewPromise().Await(ctx)
	require.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestAsError(t *testing.T) {
	e := AsError(fmt.Errorf("wrap: %w", ErrNoSuchType))
	require.Equal(t, KindResolution, e.Type)
	require.ErrorIs(t, e, ErrNoSuchType)

	same := &Error{Type: "X", Message: "y"}
	require.Same(t, same, AsError(fmt.Errorf("outer: %w", same)))
	require.Equal(t, "X: y", same.Error())
}
