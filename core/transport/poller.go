package transport

import (
	"context"
	"sync"
	"time"

	"github.com/NamazuStudios/elements-sub015/core/wire"
)

// Event is one readiness notification from a [Poller]. Exactly one of Msg
// and Err is set; an Err event is the last event for its slot.
type Event struct {
	Slot int
	Msg  wire.Message
	Err  error
}

// Poller multiplexes many sockets into a single event stream so one
// goroutine can serve them all.
//
// Registration only reads from a socket; sending on and closing sockets
// stays with the goroutine that owns them. Slots are never reused, so a
// stale event for a deregistered slot can be recognised and ignored.
type Poller struct {
	events chan Event

	mu    sync.Mutex
	next  int
	stops map[int]chan struct{}
}

func NewPoller() *Poller {
	return &Poller{
		events: make(chan Event, 64),
		stops:  make(map[int]chan struct{}),
	}
}

// Register starts watching s and returns its slot.
func (p *Poller) Register(s Socket) int {
	p.mu.Lock()
	slot := p.next
	p.next++
	stop := make(chan struct{})
	p.stops[slot] = stop
	p.mu.Unlock()

	go p.watch(slot, s, stop)
	return slot
}

// Deregister stops watching slot. Events already queued may still be
// returned by Poll.
func (p *Poller) Deregister(slot int) {
	p.mu.Lock()
	stop, ok := p.stops[slot]
	delete(p.stops, slot)
	p.mu.Unlock()
	if ok {
		close(stop)
	}
}

// Len returns the number of registered slots.
func (p *Poller) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.stops)
}

// Poll waits up to timeout for the next event. It returns ErrPollTimeout
// when nothing became ready, or the context error once ctx is done.
func (p *Poller) Poll(ctx context.Context, timeout time.Duration) (Event, error) {
	tmr := time.NewTimer(timeout)
	defer tmr.Stop()

	select {
	case <-ctx.Done():
		return Event{}, ctx.Err()
	case ev := <-p.events:
		return ev, nil
	case <-tmr.C:
		return Event{}, ErrPollTimeout
	}
}

// Close deregisters every slot.
func (p *Poller) Close() {
	p.mu.Lock()
	stops := p.stops
	p.stops = make(map[int]chan struct{})
	p.mu.Unlock()
	for _, stop := range stops {
		close(stop)
	}
}

func (p *Poller) watch(slot int, s Socket, stop <-chan struct{}) {
	for {
		select {
		case <-stop:
			return
		case msg := <-s.Recv():
			select {
			case p.events <- Event{Slot: slot, Msg: msg}:
			case <-stop:
				return
			}
		case <-s.Done():
			err := s.Err()
			if err == nil {
				err = ErrClosed
			}
			select {
			case p.events <- Event{Slot: slot, Err: err}:
			case <-stop:
			}
			return
		}
	}
}
