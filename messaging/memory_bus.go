package messaging

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/glimte/netbridge/contracts"
)

// MemoryBus is an in-process Source and Sink. Publish delivers to every
// current subscriber synchronously on the caller's goroutine.
type MemoryBus struct {
	mu       sync.RWMutex
	handlers map[uint64]StateHandler
	nextID   uint64
	closed   bool

	published atomic.Int64
}

// NewMemoryBus creates an empty bus
func NewMemoryBus() *MemoryBus {
	return &MemoryBus{
		handlers: make(map[uint64]StateHandler),
	}
}

// Subscribe registers handler until ctx is done or the bus is closed
func (b *MemoryBus) Subscribe(ctx context.Context, handler StateHandler) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return ErrClosed
	}
	id := b.nextID
	b.nextID++
	b.handlers[id] = handler
	b.mu.Unlock()

	context.AfterFunc(ctx, func() {
		b.mu.Lock()
		delete(b.handlers, id)
		b.mu.Unlock()
	})
	return nil
}

// Publish implements Sink
func (b *MemoryBus) Publish(ctx context.Context, state contracts.VehicleState) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	b.mu.RLock()
	if b.closed {
		b.mu.RUnlock()
		return ErrClosed
	}
	handlers := make([]StateHandler, 0, len(b.handlers))
	for _, h := range b.handlers {
		handlers = append(handlers, h)
	}
	b.mu.RUnlock()

	for _, h := range handlers {
		h(ctx, state)
	}
	b.published.Add(1)
	return nil
}

// Subscribers returns the number of registered handlers
func (b *MemoryBus) Subscribers() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.handlers)
}

// Published returns how many states have been published
func (b *MemoryBus) Published() int64 {
	return b.published.Load()
}

// Close drops all subscribers. Further calls fail with ErrClosed.
func (b *MemoryBus) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed = true
	b.handlers = make(map[uint64]StateHandler)
	return nil
}
