package worker

import (
	"sync"

	"github.com/NamazuStudios/elements-sub015/core/ids"
	"github.com/NamazuStudios/elements-sub015/core/node"
)

// Accessor is a read-locked view of a worker's nodes. It must be closed;
// while any Accessor is open no Mutator can be acquired.
type Accessor struct {
	w    *Worker
	set  *nodeSet
	once sync.Once
}

// Accessor read-locks the worker and returns a view of its published nodes.
func (w *Worker) Accessor() *Accessor {
	w.lock.RLock()
	return &Accessor{w: w, set: w.nodes.Load()}
}

func (a *Accessor) Master() *node.Node { return a.w.master }

// Nodes returns the application nodes in start order.
func (a *Accessor) Nodes() []*node.Node { return a.set.list() }

func (a *Accessor) Node(app ids.ApplicationID) (*node.Node, bool) { return a.set.get(app) }

// Bindings returns the bindings of every started node, master first.
func (a *Accessor) Bindings() []*node.Binding {
	out := make([]*node.Binding, 0, a.set.len()+1)
	if b := a.w.master.Binding(); b != nil {
		out = append(out, b)
	}
	for _, n := range a.set.list() {
		if b := n.Binding(); b != nil {
			out = append(out, b)
		}
	}
	return out
}

// Close releases the read lock. Further calls do nothing.
func (a *Accessor) Close() {
	a.once.Do(a.w.lock.RUnlock)
}
