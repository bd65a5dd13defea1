package event

import (
	"reflect"
	"sync"
)

// Bus is a double-buffered event bus. Events emitted in tick N are delivered
// in tick N+1 by DispatchAll on the world thread. Emit is safe from bot
// worker goroutines; delivery order equals emission order across all event
// types, and each subscriber is only ever called from the world thread.
type Bus struct {
	mu       sync.Mutex // protects back buffer and handler registration
	front    []queued
	back     []queued
	handlers map[reflect.Type][]any
}

type queued struct {
	t  reflect.Type
	ev any
}

func NewBus() *Bus {
	return &Bus{
		front:    make([]queued, 0, 64),
		back:     make([]queued, 0, 64),
		handlers: make(map[reflect.Type][]any),
	}
}

// Emit queues an event into the back buffer (readable next tick).
func Emit[T any](b *Bus, event T) {
	t := reflect.TypeOf((*T)(nil)).Elem()
	b.mu.Lock()
	b.back = append(b.back, queued{t: t, ev: event})
	b.mu.Unlock()
}

// Subscribe registers a typed handler for events of type T.
func Subscribe[T any](b *Bus, fn func(T)) {
	b.mu.Lock()
	defer b.mu.Unlock()
	t := reflect.TypeOf((*T)(nil)).Elem()
	b.handlers[t] = append(b.handlers[t], fn)
}

// SwapBuffers rotates back→front and clears the new back buffer.
// Called once at tick start on the world thread.
func (b *Bus) SwapBuffers() {
	b.mu.Lock()
	b.front, b.back = b.back, b.front[:0]
	b.mu.Unlock()
}

// DispatchAll delivers all front-buffer events to their subscribed handlers
// in emission order. World thread only.
func (b *Bus) DispatchAll() {
	for _, q := range b.front {
		b.mu.Lock()
		handlers := b.handlers[q.t]
		b.mu.Unlock()
		for _, h := range handlers {
			// Safe: Subscribe and Emit use the same type key.
			reflect.ValueOf(h).Call([]reflect.Value{reflect.ValueOf(q.ev)})
		}
	}
	b.front = b.front[:0]
}
