package sf

import "golang.org/x/sync/singleflight"

// Group runs at most one fn per key at a time; concurrent callers with the
// same key wait for and share the first caller's result.
type Group[T any] struct {
	g singleflight.Group
}

func New[T any]() *Group[T] { return &Group[T]{} }

// Do runs fn for key unless a call for key is already in flight. shared
// reports whether the result was handed to more than one caller.
func (s *Group[T]) Do(key string, fn func() (T, error)) (v T, shared bool, err error) {
	out, err, shared := s.g.Do(key, func() (any, error) {
		return fn()
	})
	if err != nil {
		return v, shared, err
	}
	return out.(T), shared, nil
}

// Forget drops key so the next Do runs fn again.
func (s *Group[T]) Forget(key string) { s.g.Forget(key) }
