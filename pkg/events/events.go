// Package events provides a small in-process publish/subscribe bus.
// Handlers run asynchronously with panic recovery so a broken
// subscriber never affects the publisher or other subscribers.
package events

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/PolycarpusTack/alexandria-search/pkg/observability"
)

// Event types published by the search service.
const (
	TypeSearchPerformed = "search.performed"
	TypeIndexUpdated    = "index.updated"
	TypeIndexRebuilt    = "index.rebuilt"
)

// Event is one published occurrence.
type Event struct {
	ID        string                 `json:"id"`
	Type      string                 `json:"type"`
	Timestamp time.Time              `json:"timestamp"`
	Data      map[string]interface{} `json:"data,omitempty"`
}

// Handler processes one event. Handlers must tolerate concurrent calls.
type Handler func(ctx context.Context, event Event)

// Bus fans events out to subscribers by type.
type Bus struct {
	mu       sync.RWMutex
	handlers map[string][]Handler
	logger   *observability.Logger
	timeout  time.Duration
	wg       sync.WaitGroup
}

// NewBus creates a bus. Each handler invocation gets at most timeout to
// run before its context is cancelled.
func NewBus(logger *observability.Logger, timeout time.Duration) *Bus {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Bus{
		handlers: make(map[string][]Handler),
		logger:   logger,
		timeout:  timeout,
	}
}

// Subscribe registers a handler for one event type.
func (b *Bus) Subscribe(eventType string, handler Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers[eventType] = append(b.handlers[eventType], handler)
}

// Publish delivers the event to all subscribers of its type. Delivery
// is asynchronous; Publish never blocks on handlers.
func (b *Bus) Publish(eventType string, data map[string]interface{}) {
	event := Event{
		ID:        uuid.New().String(),
		Type:      eventType,
		Timestamp: time.Now().UTC(),
		Data:      data,
	}

	b.mu.RLock()
	handlers := make([]Handler, len(b.handlers[eventType]))
	copy(handlers, b.handlers[eventType])
	b.mu.RUnlock()

	for _, handler := range handlers {
		handler := handler
		b.wg.Add(1)
		go func() {
			defer b.wg.Done()
			defer observability.RecoverPanic(b.logger, "event handler "+event.Type)

			ctx, cancel := context.WithTimeout(context.Background(), b.timeout)
			defer cancel()
			handler(ctx, event)
		}()
	}
}

// Drain waits for all in-flight handler invocations to finish. Called
// during shutdown.
func (b *Bus) Drain() {
	b.wg.Wait()
}
