package transport

import "sync"

// Lifecycle tracks the closed state of a socket. The first Shutdown wins;
// its cause is what Err reports afterwards.
type Lifecycle struct {
	once sync.Once
	done chan struct{}
	err  error
}

func NewLifecycle() *Lifecycle {
	return &Lifecycle{done: make(chan struct{})}
}

// Shutdown closes Done. A nil cause is recorded as ErrClosed.
// It reports whether this call performed the shutdown.
func (l *Lifecycle) Shutdown(cause error) (first bool) {
	l.once.Do(func() {
		if cause == nil {
			cause = ErrClosed
		}
		l.err = cause
		close(l.done)
		first = true
	})
	return
}

func (l *Lifecycle) Done() <-chan struct{} { return l.done }

func (l *Lifecycle) Closed() bool {
	select {
	case <-l.done:
		return true
	default:
		return false
	}
}

// Err returns nil while open.
func (l *Lifecycle) Err() error {
	select {
	case <-l.done:
		return l.err
	default:
		return nil
	}
}
