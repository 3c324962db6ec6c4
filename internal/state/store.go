// Package state holds application state behind a mutex, records a bounded history of
// changes and notifies subscribers after every update.
package state

import (
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
)

// DefaultMaxHistory is the number of changes kept when New is given a non-positive limit.
const DefaultMaxHistory = 50

// Subscriber is called after each update with the new and the previous state.
type Subscriber[S any] func(next, prev S)

// Change is one recorded update.
type Change[S any] struct {
	Timestamp time.Time `json:"timestamp"`
	Action    string    `json:"action"`
	Prev      S         `json:"prevState"`
	Next      S         `json:"nextState"`
}

// Store owns a value of type S. Updaters must return a new value rather than mutate
// slices or maps reachable from the old one, since the old value stays in the history.
type Store[S any] struct {
	mu          sync.RWMutex
	state       S
	history     []Change[S]
	maxHistory  int
	subscribers map[uint64]Subscriber[S]
	nextID      uint64
	clock       func() time.Time
	logger      *zap.Logger
}

// New creates a Store holding initial. A nil clock means time.Now; a nil logger discards.
func New[S any](initial S, maxHistory int, clock func() time.Time, logger *zap.Logger) *Store[S] {
	if maxHistory <= 0 {
		maxHistory = DefaultMaxHistory
	}
	if clock == nil {
		clock = time.Now
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store[S]{
		state:       initial,
		maxHistory:  maxHistory,
		subscribers: make(map[uint64]Subscriber[S]),
		clock:       clock,
		logger:      logger,
	}
}

// Get returns the current state.
func (s *Store[S]) Get() S {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// Update replaces the state with fn(current), records the change under action and
// notifies subscribers. Updates are serialized; subscribers run on the caller's
// goroutine after the lock is released.
func (s *Store[S]) Update(action string, fn func(S) S) S {
	s.mu.Lock()
	prev := s.state
	next := fn(prev)
	s.state = next

	s.history = append(s.history, Change[S]{
		Timestamp: s.clock(),
		Action:    action,
		Prev:      prev,
		Next:      next,
	})
	if over := len(s.history) - s.maxHistory; over > 0 {
		s.history = append(s.history[:0:0], s.history[over:]...)
	}

	subs := make([]Subscriber[S], 0, len(s.subscribers))
	for _, sub := range s.subscribers {
		subs = append(subs, sub)
	}
	s.mu.Unlock()

	for _, sub := range subs {
		s.notify(sub, next, prev)
	}
	return next
}

func (s *Store[S]) notify(sub Subscriber[S], next, prev S) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("Subscriber panicked", zap.Error(fmt.Errorf("%v", r)))
		}
	}()
	sub(next, prev)
}

// Subscribe registers fn and returns a function that removes it.
func (s *Store[S]) Subscribe(fn Subscriber[S]) (unsubscribe func()) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := s.nextID
	s.nextID++
	s.subscribers[id] = fn

	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			defer s.mu.Unlock()
			delete(s.subscribers, id)
		})
	}
}

// History returns the recorded changes, oldest first.
func (s *Store[S]) History() []Change[S] {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]Change[S](nil), s.history...)
}

// Last returns up to n of the most recent changes, oldest first.
func (s *Store[S]) Last(n int) []Change[S] {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if n > len(s.history) {
		n = len(s.history)
	}
	if n <= 0 {
		return []Change[S]{}
	}
	return append([]Change[S](nil), s.history[len(s.history)-n:]...)
}
