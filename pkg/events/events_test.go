package events

import (
	"context"
	"io"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/PolycarpusTack/alexandria-search/pkg/observability"
)

func testBus() *Bus {
	return NewBus(observability.NewLogger(observability.ErrorLevel, io.Discard), time.Second)
}

func TestBus_Delivers(t *testing.T) {
	bus := testBus()

	received := make(chan Event, 1)
	bus.Subscribe(TypeSearchPerformed, func(ctx context.Context, e Event) {
		received <- e
	})

	bus.Publish(TypeSearchPerformed, map[string]interface{}{"query": "cache"})

	select {
	case e := <-received:
		assert.Equal(t, TypeSearchPerformed, e.Type)
		assert.Equal(t, "cache", e.Data["query"])
		assert.NotEmpty(t, e.ID)
		assert.False(t, e.Timestamp.IsZero())
	case <-time.After(time.Second):
		t.Fatal("handler was not invoked")
	}
}

func TestBus_TypeIsolation(t *testing.T) {
	bus := testBus()

	var calls atomic.Int32
	bus.Subscribe(TypeIndexUpdated, func(ctx context.Context, e Event) {
		calls.Add(1)
	})

	bus.Publish(TypeSearchPerformed, nil)
	bus.Drain()

	assert.Equal(t, int32(0), calls.Load())
}

func TestBus_FanOut(t *testing.T) {
	bus := testBus()

	var calls atomic.Int32
	for i := 0; i < 3; i++ {
		bus.Subscribe(TypeIndexRebuilt, func(ctx context.Context, e Event) {
			calls.Add(1)
		})
	}

	bus.Publish(TypeIndexRebuilt, nil)
	bus.Drain()

	assert.Equal(t, int32(3), calls.Load())
}

func TestBus_PanicIsolation(t *testing.T) {
	bus := testBus()

	var survived atomic.Bool
	bus.Subscribe(TypeSearchPerformed, func(ctx context.Context, e Event) {
		panic("broken subscriber")
	})
	bus.Subscribe(TypeSearchPerformed, func(ctx context.Context, e Event) {
		survived.Store(true)
	})

	bus.Publish(TypeSearchPerformed, nil)
	bus.Drain()

	assert.True(t, survived.Load())
}

func TestBus_HandlerTimeout(t *testing.T) {
	bus := NewBus(observability.NewLogger(observability.ErrorLevel, io.Discard), 50*time.Millisecond)

	done := make(chan struct{})
	bus.Subscribe(TypeSearchPerformed, func(ctx context.Context, e Event) {
		<-ctx.Done()
		close(done)
	})

	bus.Publish(TypeSearchPerformed, nil)

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("handler context was never cancelled")
	}
	bus.Drain()
}

func TestBus_DrainWaitsForHandlers(t *testing.T) {
	bus := testBus()

	var finished atomic.Bool
	bus.Subscribe(TypeSearchPerformed, func(ctx context.Context, e Event) {
		time.Sleep(50 * time.Millisecond)
		finished.Store(true)
	})

	bus.Publish(TypeSearchPerformed, nil)
	bus.Drain()

	require.True(t, finished.Load())
}
