package observability

import (
	"fmt"
	"runtime/debug"
)

// RecoverPanic recovers a panic in the deferring goroutine and logs it
// with the stack trace. The panic is not re-raised.
//
//	defer observability.RecoverPanic(logger, "event handler")
func RecoverPanic(logger *Logger, context string) {
	if r := recover(); r != nil {
		logger.WithFields(map[string]interface{}{
			"panic":   r,
			"stack":   string(debug.Stack()),
			"context": context,
		}).Error("panic recovered")
	}
}

// MustRecover converts a recovered panic value to an error. Returns nil
// when r is nil.
//
//	defer func() { err = observability.MustRecover(recover()) }()
func MustRecover(r interface{}) error {
	if r != nil {
		return fmt.Errorf("panic: %v", r)
	}
	return nil
}
