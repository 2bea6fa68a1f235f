package node

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/NamazuStudios/elements-sub015/core/invoke"
	"github.com/NamazuStudios/elements-sub015/core/transport"
	"github.com/NamazuStudios/elements-sub015/core/wire"
)

const (
	DefaultDrainTimeout = 5 * time.Second
	// MaxAdditionalParts bounds the async parts a single request may ask for.
	MaxAdditionalParts  = 1 << 16
	outboundQueueSize   = 256
)

type ProxyOptions struct {
	Log          *slog.Logger
	Name         string
	Router       transport.Router
	Dispatcher   *invoke.Dispatcher
	DrainTimeout time.Duration
	Metrics      NodeMetrics
}

// Proxy serves a node's router: it decodes requests, dispatches each on its
// own goroutine and relays the replies, which dispatch tasks push onto a
// shared outbound queue.
type Proxy struct {
	log          *slog.Logger
	name         string
	router       transport.Router
	dispatcher   *invoke.Dispatcher
	codec        invoke.Codec
	drainTimeout time.Duration
	metrics      NodeMetrics

	out  chan wire.Message
	pool *pool

	accepting atomic.Bool
	cancel    context.CancelFunc
	callsCtx  context.Context
	endCalls  context.CancelFunc
	done      chan struct{}
	errMu     sync.Mutex
	err       error
	stopOnce  sync.Once
	stopErr   error
}

func NewProxy(opts ProxyOptions) *Proxy {
	if opts.Log == nil {
		opts.Log = slog.Default()
	}
	if opts.Metrics == nil {
		opts.Metrics = NopNodeMetrics()
	}
	if opts.DrainTimeout <= 0 {
		opts.DrainTimeout = DefaultDrainTimeout
	}
	if opts.Dispatcher == nil {
		opts.Dispatcher = invoke.NewDispatcher(invoke.DispatcherOptions{Log: opts.Log})
	}
	log := opts.Log.With(slog.String("proxy", opts.Router.Addr()))
	return &Proxy{
		log:          log,
		name:         opts.Name,
		router:       opts.Router,
		dispatcher:   opts.Dispatcher,
		codec:        opts.Dispatcher.Codec(),
		drainTimeout: opts.DrainTimeout,
		metrics:      opts.Metrics,
		out:          make(chan wire.Message, outboundQueueSize),
		pool:         newPool(log, opts.Name, opts.Metrics),
		done:         make(chan struct{}),
	}
}

// Start runs the loop until Stop. Calls in flight get a context that
// carries ctx's values but outlives its cancellation.
func (p *Proxy) Start(ctx context.Context) {
	base := context.WithoutCancel(ctx)
	loopCtx, cancel := context.WithCancel(base)
	p.cancel = cancel
	p.callsCtx, p.endCalls = context.WithCancel(base)
	p.accepting.Store(true)

	go p.run(loopCtx)
	p.log.Debug("proxy started")
}

func (p *Proxy) Done() <-chan struct{} { return p.done }

// Err reports why the loop ended on its own. It is nil while running and
// after a regular Stop.
func (p *Proxy) Err() error {
	p.errMu.Lock()
	defer p.errMu.Unlock()
	return p.err
}

// Alive reports whether the loop is running.
func (p *Proxy) Alive() bool {
	select {
	case <-p.done:
		return false
	default:
		return true
	}
}

// Inflight returns the number of dispatches in progress.
func (p *Proxy) Inflight() int { return p.pool.Inflight() }

// Stop stops accepting requests, ends the loop, waits for it and then for
// in-flight calls, at most the drain timeout. A drain timeout is logged and
// cancels the remaining calls; it is not returned.
func (p *Proxy) Stop(ctx context.Context) error {
	p.stopOnce.Do(func() {
		p.accepting.Store(false)
		if p.cancel != nil {
			p.cancel()
			select {
			case <-p.done:
			case <-ctx.Done():
				p.stopErr = ctx.Err()
				return
			}
		}
		if err := p.pool.Drain(p.drainTimeout); err != nil {
			p.log.Warn("dispatch pool did not drain",
				slog.Duration("timeout", p.drainTimeout),
				slog.Int("inflight", p.pool.Inflight()),
			)
		}
		if p.endCalls != nil {
			p.endCalls()
		}
		p.log.Debug("proxy stopped")
	})
	return p.stopErr
}

func (p *Proxy) run(ctx context.Context) {
	defer close(p.done)
	for {
		select {
		case <-ctx.Done():
			return
		case <-p.router.Done():
			p.fail(p.router.Err())
			return
		case msg := <-p.router.Recv():
			p.handle(msg)
		case msg := <-p.out:
			p.reply(msg)
		}
	}
}

// reply hands msg to the router without waiting on a slow caller.
func (p *Proxy) reply(msg wire.Message) {
	err := p.router.TrySend(msg)
	switch {
	case errors.Is(err, transport.ErrHighWaterMark):
		p.metrics.ReplyDropped(p.name)
		p.log.Debug("caller queue full, reply dropped")
	case err != nil:
		p.log.Debug("reply not delivered", slog.Any("error", err))
	}
}

func (p *Proxy) fail(err error) {
	if err == nil {
		err = ErrProxyStopped
	}
	p.errMu.Lock()
	p.err = err
	p.errMu.Unlock()
	p.log.Error("proxy loop terminated", slog.Any("error", err))
}

func (p *Proxy) handle(msg wire.Message) {
	p.metrics.RequestReceived(p.name)

	envelope, body, err := msg.Split()
	if err != nil || len(envelope) == 0 || len(body) != 2 {
		p.drop("malformed", slog.Int("frames", len(msg)))
		return
	}
	var rh wire.RequestHeader
	if err := rh.UnmarshalBinary(body[0]); err != nil {
		p.drop("malformed", slog.Any("error", err))
		return
	}
	if rh.AdditionalParts > MaxAdditionalParts {
		p.drop("malformed", slog.Int("additional_parts", int(rh.AdditionalParts)))
		return
	}
	if !p.accepting.Load() {
		p.drop("not_accepting")
		return
	}

	r := &replier{p: p, envelope: envelope}

	inv := new(invoke.Invocation)
	if err := p.codec.Read(body[1], inv); err != nil {
		p.drop("bad_payload", slog.Any("error", err))
		r.send(wire.ResponseError, 0, r.encodeError(invoke.NewError(invoke.KindCodec, err)))
		return
	}

	n := int(rh.AdditionalParts)
	asyncs := make([]invoke.ResultConsumer, n)
	for i := range asyncs {
		part := i + 1
		asyncs[i] = func(res invoke.Result) { r.send(wire.ResponseResult, part, res.Value) }
	}

	p.pool.Go(func() {
		p.dispatcher.Dispatch(p.callsCtx, inv,
			func(res invoke.Result) { r.send(wire.ResponseResult, 0, res.Value) },
			func(e *invoke.Error) { r.send(wire.ResponseError, 0, r.encodeError(e)) },
			asyncs,
			func(part int, e *invoke.Error) { r.send(wire.ResponseError, part, r.encodeError(e)) },
		)
	})
}

func (p *Proxy) drop(reason string, attrs ...any) {
	p.metrics.RequestDropped(p.name, reason)
	p.log.Warn("request dropped", append([]any{slog.String("reason", reason)}, attrs...)...)
}

// replier frames the outcomes of one request for its caller.
type replier struct {
	p        *Proxy
	envelope wire.Message
}

func (r *replier) encodeError(e *invoke.Error) []byte {
	b, err := r.p.codec.Write(e)
	if err != nil {
		r.p.log.Error("encode error reply", slog.Any("error", err))
		return []byte(e.Message)
	}
	return b
}

func (r *replier) send(typ wire.ResponseType, part int, payload []byte) {
	if payload == nil {
		payload = []byte{}
	}
	h := wire.ResponseHeader{Type: typ, Part: int32(part)}
	msg := wire.Join(r.envelope, h.Append(nil), payload)

	select {
	case r.p.out <- msg:
		r.p.metrics.ReplySent(r.p.name, typ.String())
	case <-r.p.done:
		r.p.log.Debug("reply dropped, proxy stopped", slog.Int("part", part))
	}
}
