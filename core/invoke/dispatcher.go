package invoke

import (
	"context"
	"fmt"
	"log/slog"
)

type DispatcherOptions struct {
	Log      *slog.Logger
	Resolver Resolver
	Methods  *MethodCache
	Codec    Codec
	Metrics  DispatchMetrics
}

// Dispatcher performs invocations against local targets.
type Dispatcher struct {
	log      *slog.Logger
	resolver Resolver
	methods  *MethodCache
	codec    Codec
	metrics  DispatchMetrics
}

func NewDispatcher(opts DispatcherOptions) *Dispatcher {
	if opts.Log == nil {
		opts.Log = slog.Default()
	}
	if opts.Metrics == nil {
		opts.Metrics = NopDispatchMetrics()
	}
	if opts.Resolver == nil {
		opts.Resolver = NewContainer()
	}
	if opts.Methods == nil {
		opts.Methods = NewMethodCache(MethodCacheOpts{Metrics: opts.Metrics})
	}
	if opts.Codec == nil {
		opts.Codec = JSON
	}
	return &Dispatcher{
		log:      opts.Log,
		resolver: opts.Resolver,
		methods:  opts.Methods,
		codec:    opts.Codec,
		metrics:  opts.Metrics,
	}
}

func (d *Dispatcher) Codec() Codec { return d.codec }

// Dispatch performs inv and reports its outcomes to the consumers. It
// blocks until the outcomes are delivered, never panics and returns
// nothing: every failure becomes an *Error delivery.
//
// Resolution failures go to syncError and to asyncError (as part 1).
// Failures of the method itself go to the sync side only. When the method
// returns a [Stream], its emissions fill the async parts; otherwise a
// caller that accepts async parts receives ErrNoAsyncResults as terminal
// async error.
//
// The ctx handed to the method is cancelled once Dispatch returns.
func (d *Dispatcher) Dispatch(
	ctx context.Context,
	inv *Invocation,
	syncResult ResultConsumer,
	syncError ErrorConsumer,
	asyncResults []ResultConsumer,
	asyncError AsyncErrorConsumer,
) {
	c := NewCall(inv, syncResult, syncError, asyncResults, asyncError)
	c.log = d.log.With(slog.String("invocation", inv.String()))
	c.metrics = d.metrics
	d.run(ctx, c)
}

func (d *Dispatcher) run(ctx context.Context, c *Call) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	key := KeyFor(c.Invocation)
	defer d.metrics.DispatchDuration(key.String()).ObserveDuration()

	success := false
	defer func() {
		if r := recover(); r != nil {
			e := NewError(KindPanic, fmt.Errorf("%w: %v", ErrPanic, r))
			c.log.Error("dispatch panicked", slog.Any("recovered", r))
			c.FailSync(e)
			if c.AsyncParts() > 0 {
				c.FailAsync(c.nextPart(), e)
			}
			success = false
		}
		d.metrics.DispatchCompleted(key.String(), success)
	}()

	c.advance(StateResolving)
	target, err := d.resolver.Resolve(c.Invocation.Type, c.Invocation.Name)
	if err != nil {
		d.resolutionFailed(c, err)
		return
	}
	proc, err := d.methods.Resolve(key)
	if err != nil {
		d.resolutionFailed(c, err)
		return
	}
	c.advance(StateDispatched)

	v, err := proc.Invoke(ctx, target, NewArgs(d.codec, c.Invocation.Arguments))
	if err == nil {
		v, err = d.applyStrategy(ctx, proc.Strategy(), v)
	}
	if err != nil {
		c.log.Debug("invocation failed", slog.Any("error", err))
		c.FailSync(AsError(err))
		d.noAsync(c)
		return
	}

	if s, ok := v.(Stream); ok {
		c.AnswerSync(Result{OK: true})
		success = d.pump(ctx, c, s)
		return
	}

	var value []byte
	if v != nil {
		if value, err = d.codec.Write(v); err != nil {
			c.FailSync(NewError(KindCodec, err))
			d.noAsync(c)
			return
		}
	}
	c.AnswerSync(Result{OK: true, Value: value})
	d.noAsync(c)
	success = true
}

func (d *Dispatcher) applyStrategy(ctx context.Context, s Strategy, v any) (any, error) {
	switch s {
	case Ignore:
		if st, ok := v.(Stream); ok {
			return st, nil
		}
		return nil, nil
	case BlockingFuture:
		f, ok := v.(Future)
		if !ok {
			return nil, fmt.Errorf("%w: %T", ErrNotFuture, v)
		}
		return f.Await(ctx)
	default:
		return v, nil
	}
}

func (d *Dispatcher) resolutionFailed(c *Call, err error) {
	c.state.Store(int32(StateResolutionFailed))
	e := AsError(err)
	c.log.Debug("resolution failed", slog.Any("error", err))
	c.FailSync(e)
	if c.AsyncParts() > 0 {
		c.FailAsync(1, e)
	}
}

func (d *Dispatcher) noAsync(c *Call) {
	if c.AsyncParts() > 0 {
		c.FailAsync(c.nextPart(), NewError(KindProtocol, ErrNoAsyncResults))
	}
}

// pump fills async parts from s in order until the budget is spent.
func (d *Dispatcher) pump(ctx context.Context, c *Call, s Stream) bool {
	for part := 1; part <= c.AsyncParts(); part++ {
		select {
		case <-ctx.Done():
			c.FailAsync(part, NewError(KindInvocation, ctx.Err()))
			return false
		case em, ok := <-s:
			if !ok {
				c.FailAsync(part, errorf(KindProtocol, "%w: %d of %d", ErrStreamEnded, part-1, c.AsyncParts()))
				return false
			}
			if em.Err != nil {
				c.FailAsync(part, AsError(em.Err))
				return false
			}
			b, err := d.codec.Write(em.Value)
			if err != nil {
				c.FailAsync(part, NewError(KindCodec, err))
				return false
			}
			c.AnswerAsync(part, Result{OK: true, Value: b})
		}
	}
	return true
}
