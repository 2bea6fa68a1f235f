package invoke

import (
	"context"
	"sync"
)

// Future is a value that becomes available later. Methods registered with
// the BlockingFuture strategy return one.
type Future interface {
	Await(ctx context.Context) (any, error)
}

// Promise is a settable [Future]. The first Resolve or Reject wins.
type Promise struct {
	once sync.Once
	done chan struct{}
	val  any
	err  error
}

func NewPromise() *Promise { return &Promise{done: make(chan struct{})} }

func (p *Promise) Resolve(v any) bool    { return p.settle(v, nil) }
func (p *Promise) Reject(err error) bool { return p.settle(nil, err) }

func (p *Promise) settle(v any, err error) (ok bool) {
	p.once.Do(func() {
		p.val, p.err = v, err
		close(p.done)
		ok = true
	})
	return
}

func (p *Promise) Await(ctx context.Context) (any, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-p.done:
		return p.val, p.err
	}
}

// Emission is one element of a [Stream].
type Emission struct {
	Value any
	Err   error
}

// Stream is returned by methods that answer with async parts: the sync reply
// is an empty success and the emissions fill async parts 1..N in order. An
// Err emission is terminal for the remaining parts.
type Stream <-chan Emission
