// Package events is a synchronous in-process event bus. Emit runs the middlewares,
// then the handlers for the event type in registration order, then the handlers
// registered for every type.
package events

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Event is what handlers receive. Handlers may mark it with PreventDefault or
// StopPropagation.
type Event struct {
	ID        string
	Type      string
	Data      any
	Timestamp time.Time

	defaultPrevented   bool
	propagationStopped bool
}

// PreventDefault makes Emit report false.
func (e *Event) PreventDefault() { e.defaultPrevented = true }

// StopPropagation skips the remaining type handlers. Handlers registered with OnAny
// still run.
func (e *Event) StopPropagation() { e.propagationStopped = true }

func (e *Event) DefaultPrevented() bool { return e.defaultPrevented }
func (e *Event) PropagationStopped() bool { return e.propagationStopped }

// Handler reacts to an event.
type Handler func(e *Event)

// Middleware sees every event before the handlers. Returning nil keeps the event it was
// given; returning another event replaces it for the rest of the chain.
type Middleware func(e *Event) *Event

type subscription struct {
	id      uint64
	handler Handler
}

// Bus dispatches events. It is safe for concurrent use; handlers run on the
// goroutine that called Emit, outside the bus lock, so they may emit or subscribe.
type Bus struct {
	mu          sync.RWMutex
	handlers    map[string][]subscription
	global      []subscription
	middlewares []Middleware
	nextID      uint64
	clock       func() time.Time
	logger      *zap.Logger
}

// NewBus creates a new event bus. A nil clock means time.Now; a nil logger discards.
func NewBus(clock func() time.Time, logger *zap.Logger) *Bus {
	if clock == nil {
		clock = time.Now
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Bus{
		handlers: make(map[string][]subscription),
		clock:    clock,
		logger:   logger,
	}
}

// Use appends a middleware.
func (b *Bus) Use(mw Middleware) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.middlewares = append(b.middlewares, mw)
}

// On registers h for events of eventType and returns a function that removes it.
func (b *Bus) On(eventType string, h Handler) (off func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	id := b.nextID
	b.nextID++
	b.handlers[eventType] = append(b.handlers[eventType], subscription{id: id, handler: h})

	return b.remover(func() {
		b.handlers[eventType] = without(b.handlers[eventType], id)
		if len(b.handlers[eventType]) == 0 {
			delete(b.handlers, eventType)
		}
	})
}

// OnAny registers h for every event and returns a function that removes it.
func (b *Bus) OnAny(h Handler) (off func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	id := b.nextID
	b.nextID++
	b.global = append(b.global, subscription{id: id, handler: h})

	return b.remover(func() {
		b.global = without(b.global, id)
	})
}

func (b *Bus) remover(remove func()) func() {
	var once sync.Once
	return func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			remove()
		})
	}
}

func without(subs []subscription, id uint64) []subscription {
	out := make([]subscription, 0, len(subs))
	for _, s := range subs {
		if s.id != id {
			out = append(out, s)
		}
	}
	return out
}

// Emit dispatches an event of eventType carrying data. It returns false when a
// handler called PreventDefault.
func (b *Bus) Emit(eventType string, data any) bool {
	b.mu.RLock()
	middlewares := b.middlewares
	handlers := b.handlers[eventType]
	global := b.global
	b.mu.RUnlock()

	e := &Event{
		ID:        uuid.New().String(),
		Type:      eventType,
		Data:      data,
		Timestamp: b.clock(),
	}
	for _, mw := range middlewares {
		if next := mw(e); next != nil {
			e = next
		}
	}

	for _, s := range handlers {
		if e.propagationStopped {
			break
		}
		b.call(s.handler, e)
	}
	for _, s := range global {
		b.call(s.handler, e)
	}
	return !e.defaultPrevented
}

func (b *Bus) call(h Handler, e *Event) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.Error("Event handler panicked",
				zap.String("type", e.Type),
				zap.String("event_id", e.ID),
				zap.Error(fmt.Errorf("%v", r)),
			)
		}
	}()
	h(e)
}
