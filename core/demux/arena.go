package demux

import (
	"github.com/google/uuid"
	"go.uber.org/multierr"

	"github.com/NamazuStudios/elements-sub015/core/transport"
)

type backend struct {
	slot int
	dest uuid.UUID
	sock transport.Socket
}

// backendArena indexes the backend sockets both by poller slot and by
// destination. Only the routing loop touches it.
type backendArena struct {
	poller *transport.Poller
	slots  map[int]*backend
	dests  map[uuid.UUID]int
}

func newBackendArena(p *transport.Poller) *backendArena {
	return &backendArena{
		poller: p,
		slots:  make(map[int]*backend),
		dests:  make(map[uuid.UUID]int),
	}
}

// insert registers sock with the poller under dest and returns its slot.
func (a *backendArena) insert(dest uuid.UUID, sock transport.Socket) int {
	slot := a.poller.Register(sock)
	a.slots[slot] = &backend{slot: slot, dest: dest, sock: sock}
	a.dests[dest] = slot
	return slot
}

func (a *backendArena) bySlot(slot int) (*backend, bool) {
	b, ok := a.slots[slot]
	return b, ok
}

func (a *backendArena) byDest(dest uuid.UUID) (*backend, bool) {
	slot, ok := a.dests[dest]
	if !ok {
		return nil, false
	}
	return a.bySlot(slot)
}

// remove deregisters and closes the backend at slot, dropping it from both
// indexes.
func (a *backendArena) remove(slot int) error {
	b, ok := a.slots[slot]
	if !ok {
		return nil
	}
	delete(a.slots, slot)
	if a.dests[b.dest] == slot {
		delete(a.dests, b.dest)
	}
	a.poller.Deregister(slot)
	return b.sock.Close()
}

func (a *backendArena) len() int { return len(a.slots) }

func (a *backendArena) closeAll() (err error) {
	for slot := range a.slots {
		err = multierr.Append(err, a.remove(slot))
	}
	return err
}
