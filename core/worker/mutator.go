package worker

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/NamazuStudios/elements-sub015/core/ds"
	"github.com/NamazuStudios/elements-sub015/core/ids"
)

type opKind int

const (
	opAdd opKind = iota
	opRemove
	opRestart
)

func (k opKind) String() string {
	switch k {
	case opAdd:
		return "add"
	case opRemove:
		return "remove"
	default:
		return "restart"
	}
}

type mutation struct {
	kind opKind
	app  ids.ApplicationID
}

// Mutator stages changes to a worker's application nodes under the
// exclusive lock and applies them on Commit. It must be closed.
type Mutator struct {
	w *Worker

	ops       []mutation
	pending   *ds.Set[ids.ApplicationID]
	committed bool
	closed    bool
	once      sync.Once
}

// Mutator locks the worker exclusively, waiting for open Accessors and
// blocking new ones until Close.
func (w *Worker) Mutator() *Mutator {
	w.lock.Lock()
	return &Mutator{w: w, pending: ds.NewSet[ids.ApplicationID]()}
}

func (m *Mutator) AddNode(app ids.ApplicationID) error {
	return m.stage(opAdd, app)
}

func (m *Mutator) RemoveNode(app ids.ApplicationID) error {
	return m.stage(opRemove, app)
}

// RestartNode stops the application's node and starts a fresh one.
func (m *Mutator) RestartNode(app ids.ApplicationID) error {
	return m.stage(opRestart, app)
}

func (m *Mutator) stage(kind opKind, app ids.ApplicationID) error {
	if err := m.usable(); err != nil {
		return err
	}
	if m.pending.Contains(app) {
		return fmt.Errorf("%w: %s %s", ErrConflictingMutation, kind, app)
	}

	_, exists := m.w.nodes.Load().get(app)
	switch {
	case kind == opAdd && (exists || app.IsMaster()):
		return fmt.Errorf("%w: %s", ErrNodeExists, app)
	case kind != opAdd && !exists:
		return fmt.Errorf("%w: %s", ErrNodeNotFound, app)
	case kind != opRemove && m.w.factory == nil:
		return ErrNoFactory
	}

	m.pending.Add(app)
	m.ops = append(m.ops, mutation{kind: kind, app: app})
	return nil
}

func (m *Mutator) usable() error {
	switch {
	case m.closed:
		return ErrMutatorClosed
	case m.committed:
		return ErrAlreadyCommitted
	}
	return nil
}

// Commit stops every node staged for removal or restart, then creates and
// starts every node staged for addition or restart, and publishes the
// resulting set. Failures do not stop the other operations and are not
// rolled back; a node whose startup failed is published in its cancelled
// state. The failures come back as a *MultiError.
func (m *Mutator) Commit(ctx context.Context) error {
	if err := m.usable(); err != nil {
		return err
	}
	m.committed = true

	w := m.w
	next := w.nodes.Load().clone()
	var errs []error

	for _, op := range m.ops {
		if op.kind == opAdd {
			continue
		}
		n, ok := next.get(op.app)
		if !ok {
			continue
		}
		errs = append(errs, w.stopNode(ctx, n))
		next.remove(op.app)
	}

	for _, op := range m.ops {
		if op.kind == opRemove {
			continue
		}
		n, err := w.factory(ctx, op.app)
		if err != nil {
			errs = append(errs, fmt.Errorf("create node for %s: %w", op.app, err))
			continue
		}
		errs = append(errs, w.startNode(ctx, n))
		next.put(n)
		if op.kind == opRestart {
			w.metrics.Restarted(op.app.String())
		}
	}

	w.nodes.Store(next)
	w.metrics.Nodes(next.len())

	err := collect(errs...)
	w.metrics.Committed(err == nil)
	w.log.Info("mutation committed",
		slog.Int("ops", len(m.ops)),
		slog.Int("nodes", next.len()),
		slog.Any("error", err),
	)
	return err
}

// Close releases the lock, discarding anything not committed. Further calls
// do nothing.
func (m *Mutator) Close() {
	m.once.Do(func() {
		if !m.committed && len(m.ops) > 0 {
			m.w.log.Debug("mutation discarded", slog.Int("ops", len(m.ops)))
		}
		m.closed = true
		m.w.lock.Unlock()
	})
}
