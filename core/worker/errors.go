package worker

import (
	"errors"

	"go.uber.org/multierr"
)

var (
	ErrNodeExists          = errors.New("node already exists")
	ErrNodeNotFound        = errors.New("node not found")
	ErrConflictingMutation = errors.New("application already staged in this mutation")
	ErrMutatorClosed       = errors.New("mutator closed")
	ErrAlreadyCommitted    = errors.New("mutation already committed")
	ErrNoFactory           = errors.New("no node factory")
)

// MultiError aggregates independent per-node failures. errors.Is and
// errors.As see every collected error.
type MultiError struct {
	err error
}

func (e *MultiError) Error() string   { return e.err.Error() }
func (e *MultiError) Errors() []error { return multierr.Errors(e.err) }
func (e *MultiError) Unwrap() []error { return e.Errors() }
func (e *MultiError) Len() int        { return len(e.Errors()) }

// collect returns nil when every err is nil, else a *MultiError holding the
// non-nil ones.
func collect(errs ...error) error {
	err := multierr.Combine(errs...)
	if err == nil {
		return nil
	}
	return &MultiError{err: err}
}
