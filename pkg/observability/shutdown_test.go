package observability

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"
)

func TestNewShutdownManager(t *testing.T) {
	tests := []struct {
		name            string
		timeout         time.Duration
		expectedTimeout time.Duration
	}{
		{"with custom timeout", 10 * time.Second, 10 * time.Second},
		{"with zero timeout uses default", 0, 30 * time.Second},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			logger := NewLogger(InfoLevel, &bytes.Buffer{})
			server := &http.Server{}

			sm := NewShutdownManager(logger, server, tt.timeout)

			if sm.logger != logger {
				t.Error("Logger not set correctly")
			}
			if sm.server != server {
				t.Error("Server not set correctly")
			}
			if sm.shutdownTimeout != tt.expectedTimeout {
				t.Errorf("Expected timeout %v, got %v", tt.expectedTimeout, sm.shutdownTimeout)
			}
			if len(sm.shutdownFuncs) != 0 {
				t.Error("Expected empty shutdown functions slice")
			}
		})
	}
}

func TestRegisterShutdownFunc(t *testing.T) {
	logger := NewLogger(InfoLevel, &bytes.Buffer{})
	sm := NewShutdownManager(logger, nil, 5*time.Second)

	sm.RegisterShutdownFunc(func(ctx context.Context) error { return nil })
	sm.RegisterShutdownFunc(func(ctx context.Context) error { return nil })

	if len(sm.shutdownFuncs) != 2 {
		t.Errorf("Expected 2 shutdown functions, got %d", len(sm.shutdownFuncs))
	}

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			sm.RegisterShutdownFunc(func(ctx context.Context) error { return nil })
		}()
	}
	wg.Wait()

	if len(sm.shutdownFuncs) != 12 {
		t.Errorf("Expected 12 shutdown functions, got %d", len(sm.shutdownFuncs))
	}
}

// Runs the shutdown sequence directly, bypassing the signal wait.
func executeShutdownLogic(sm *ShutdownManager) error {
	ctx, cancel := context.WithTimeout(context.Background(), sm.shutdownTimeout)
	defer cancel()

	if sm.server != nil {
		if err := sm.server.Shutdown(ctx); err != nil {
			return fmt.Errorf("HTTP server shutdown failed: %w", err)
		}
	}

	sm.mu.Lock()
	funcs := sm.shutdownFuncs
	sm.mu.Unlock()

	var wg sync.WaitGroup
	errChan := make(chan error, len(funcs))

	for _, fn := range funcs {
		wg.Add(1)
		go func(shutdownFn ShutdownFunc) {
			defer wg.Done()
			if err := shutdownFn(ctx); err != nil {
				errChan <- err
			}
		}(fn)
	}

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
		return fmt.Errorf("shutdown timeout reached")
	}

	close(errChan)
	var errCount int
	for range errChan {
		errCount++
	}
	if errCount > 0 {
		return fmt.Errorf("shutdown completed with %d errors", errCount)
	}
	return nil
}

func TestShutdownFunctionsExecution(t *testing.T) {
	tests := []struct {
		name           string
		funcs          []ShutdownFunc
		expectedErrors int
	}{
		{
			name: "all succeed",
			funcs: []ShutdownFunc{
				func(ctx context.Context) error { return nil },
				func(ctx context.Context) error { return nil },
			},
			expectedErrors: 0,
		},
		{
			name: "one fails",
			funcs: []ShutdownFunc{
				func(ctx context.Context) error { return errors.New("shutdown error") },
				func(ctx context.Context) error { return nil },
			},
			expectedErrors: 1,
		},
		{
			name: "all fail",
			funcs: []ShutdownFunc{
				func(ctx context.Context) error { return errors.New("error 1") },
				func(ctx context.Context) error { return errors.New("error 2") },
				func(ctx context.Context) error { return errors.New("error 3") },
			},
			expectedErrors: 3,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			logger := NewLogger(InfoLevel, io.Discard)
			sm := NewShutdownManager(logger, nil, 5*time.Second)
			for _, fn := range tt.funcs {
				sm.RegisterShutdownFunc(fn)
			}

			err := executeShutdownLogic(sm)

			if tt.expectedErrors == 0 {
				if err != nil {
					t.Errorf("Expected no error but got: %v", err)
				}
				return
			}
			if err == nil {
				t.Fatal("Expected error but got nil")
			}
			expectedMsg := fmt.Sprintf("shutdown completed with %d errors", tt.expectedErrors)
			if err.Error() != expectedMsg {
				t.Errorf("Expected error message %q, got %q", expectedMsg, err.Error())
			}
		})
	}
}

func TestShutdownWithHTTPServer(t *testing.T) {
	logger := NewLogger(InfoLevel, io.Discard)

	server := httptest.NewUnstartedServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	server.Start()
	defer server.Close()

	sm := NewShutdownManager(logger, server.Config, 5*time.Second)

	if err := executeShutdownLogic(sm); err != nil {
		t.Errorf("Expected no error but got: %v", err)
	}
}

func TestShutdownTimeout(t *testing.T) {
	logger := NewLogger(InfoLevel, io.Discard)
	sm := NewShutdownManager(logger, nil, 500*time.Millisecond)

	sm.RegisterShutdownFunc(func(ctx context.Context) error {
		select {
		case <-time.After(2 * time.Second):
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	})

	start := time.Now()
	err := executeShutdownLogic(sm)
	elapsed := time.Since(start)

	if err == nil || err.Error() != "shutdown timeout reached" {
		t.Errorf("Expected 'shutdown timeout reached' error, got: %v", err)
	}
	if elapsed > time.Second {
		t.Errorf("Shutdown took too long: %v", elapsed)
	}
}

func TestShutdownConcurrentExecution(t *testing.T) {
	logger := NewLogger(InfoLevel, io.Discard)
	sm := NewShutdownManager(logger, nil, 5*time.Second)

	var calls sync.WaitGroup
	for i := 0; i < 3; i++ {
		calls.Add(1)
		sm.RegisterShutdownFunc(func(ctx context.Context) error {
			defer calls.Done()
			time.Sleep(100 * time.Millisecond)
			return nil
		})
	}

	start := time.Now()
	err := executeShutdownLogic(sm)
	elapsed := time.Since(start)

	if err != nil {
		t.Errorf("Expected no error but got: %v", err)
	}
	calls.Wait()

	// Sequential execution would take ~300ms.
	if elapsed > 250*time.Millisecond {
		t.Error("Functions did not run concurrently")
	}
}

func TestShutdownContextPropagation(t *testing.T) {
	logger := NewLogger(InfoLevel, io.Discard)
	sm := NewShutdownManager(logger, nil, 2*time.Second)

	var hasDeadline bool
	sm.RegisterShutdownFunc(func(ctx context.Context) error {
		_, hasDeadline = ctx.Deadline()
		return nil
	})

	if err := executeShutdownLogic(sm); err != nil {
		t.Errorf("Expected no error but got: %v", err)
	}
	if !hasDeadline {
		t.Error("Context should carry the shutdown deadline")
	}
}

func TestShutdownEmptyFunctionList(t *testing.T) {
	logger := NewLogger(InfoLevel, io.Discard)
	sm := NewShutdownManager(logger, nil, 5*time.Second)

	if err := executeShutdownLogic(sm); err != nil {
		t.Errorf("Expected no error but got: %v", err)
	}
}
