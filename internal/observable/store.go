// Package observable provides a publish-on-change state container.
//
// A Store holds one value of type T. Update replaces it and then notifies every
// subscriber with the previous and the new value. Subscribers run on the
// goroutine that performed the update, after the lock is released, so they may
// read or update the store themselves.
package observable

import (
	"sort"
	"sync"
)

// Listener receives the state before and after an update.
type Listener[T any] func(prev, next T)

// Store is a mutex-guarded value with subscribe/unsubscribe.
// T should be treated as immutable: updates must build new slices and maps
// instead of mutating the ones held by the current state.
type Store[T any] struct {
	mu        sync.RWMutex
	state     T
	listeners map[uint64]Listener[T]
	nextID    uint64
}

// New creates a store holding initial.
func New[T any](initial T) *Store[T] {
	return &Store[T]{
		state:     initial,
		listeners: make(map[uint64]Listener[T]),
	}
}

// Get returns the current state.
func (s *Store[T]) Get() T {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// Update atomically replaces the state with fn(current) and notifies subscribers.
// It returns the new state.
func (s *Store[T]) Update(fn func(T) T) T {
	s.mu.Lock()
	prev := s.state
	next := fn(prev)
	s.state = next
	listeners := s.snapshotListeners()
	s.mu.Unlock()

	for _, l := range listeners {
		l(prev, next)
	}
	return next
}

// Set replaces the state with next.
func (s *Store[T]) Set(next T) {
	s.Update(func(T) T { return next })
}

// Subscribe registers l and returns a function that removes it.
// The returned function is safe to call more than once.
func (s *Store[T]) Subscribe(l Listener[T]) (unsubscribe func()) {
	s.mu.Lock()
	id := s.nextID
	s.nextID++
	s.listeners[id] = l
	s.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			delete(s.listeners, id)
			s.mu.Unlock()
		})
	}
}

// Len returns the number of active subscribers.
func (s *Store[T]) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.listeners)
}

// snapshotListeners returns listeners in subscription order. Caller holds mu.
func (s *Store[T]) snapshotListeners() []Listener[T] {
	if len(s.listeners) == 0 {
		return nil
	}
	ids := make([]uint64, 0, len(s.listeners))
	for id := range s.listeners {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	out := make([]Listener[T], len(ids))
	for i, id := range ids {
		out[i] = s.listeners[id]
	}
	return out
}
