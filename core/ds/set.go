// Package ds provides small generic containers.
package ds

import (
	"encoding/json"
	"fmt"
	"iter"
	"slices"
)

// Set is an insertion-ordered set. Iteration follows insertion order, so
// anything derived from a Set (start order, listings) is deterministic.
//
// The zero value is not usable; create sets with NewSet.
type Set[T comparable] struct {
	index map[T]int
	order []T
}

func NewSet[T comparable](items ...T) *Set[T] {
	s := &Set[T]{index: make(map[T]int, len(items)), order: make([]T, 0, len(items))}
	for _, v := range items {
		s.Add(v)
	}
	return s
}

func (s *Set[T]) String() string { return fmt.Sprintf("%v", s.order) }

// Add appends v and reports whether it was missing.
func (s *Set[T]) Add(v T) bool {
	if _, ok := s.index[v]; ok {
		return false
	}
	s.index[v] = len(s.order)
	s.order = append(s.order, v)
	return true
}

// Remove drops v and reports whether it was present. Later elements keep
// their relative order.
func (s *Set[T]) Remove(v T) bool {
	i, ok := s.index[v]
	if !ok {
		return false
	}
	delete(s.index, v)
	s.order = slices.Delete(s.order, i, i+1)
	for j := i; j < len(s.order); j++ {
		s.index[s.order[j]] = j
	}
	return true
}

func (s *Set[T]) Contains(v T) bool {
	_, ok := s.index[v]
	return ok
}

func (s *Set[T]) Len() int      { return len(s.order) }
func (s *Set[T]) IsEmpty() bool { return len(s.order) == 0 }

// All iterates in insertion order. The set must not change during the
// iteration.
func (s *Set[T]) All() iter.Seq[T] {
	return func(yield func(T) bool) {
		for _, v := range s.order {
			if !yield(v) {
				return
			}
		}
	}
}

// Backward iterates in reverse insertion order.
func (s *Set[T]) Backward() iter.Seq[T] {
	return func(yield func(T) bool) {
		for i := len(s.order) - 1; i >= 0; i-- {
			if !yield(s.order[i]) {
				return
			}
		}
	}
}

// Values returns a copy of the elements in insertion order.
func (s *Set[T]) Values() []T { return slices.Clone(s.order) }

func (s *Set[T]) Copy() *Set[T] { return NewSet(s.order...) }

// Filter returns the elements for which keep is true, in order.
func (s *Set[T]) Filter(keep func(T) bool) *Set[T] {
	out := NewSet[T]()
	for _, v := range s.order {
		if keep(v) {
			out.Add(v)
		}
	}
	return out
}

// Diff returns what to add to s (in other's order) and what to remove from
// s (in s's order) to obtain other.
func (s *Set[T]) Diff(other *Set[T]) (add, remove *Set[T]) {
	add = other.Filter(func(v T) bool { return !s.Contains(v) })
	remove = s.Filter(func(v T) bool { return !other.Contains(v) })
	return add, remove
}

func (s *Set[T]) MarshalJSON() ([]byte, error) { return json.Marshal(s.order) }

func (s *Set[T]) UnmarshalJSON(data []byte) error {
	var items []T
	if err := json.Unmarshal(data, &items); err != nil {
		return err
	}
	*s = *NewSet(items...)
	return nil
}
