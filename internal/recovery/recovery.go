// Package recovery keeps a panic in one unit of work (an inbound message, a
// background task, an HTTP request) from taking down the process.
//
// The webhook dispatcher runs every message through Run so that one bad
// payload never aborts the rest of its batch, and the worker pool does the
// same for outreach campaigns and document syncs.
package recovery

import (
	"fmt"
	"log/slog"
	"runtime/debug"
)

// PanicError is returned by Run when the wrapped function panicked.
type PanicError struct {
	Op    string
	Value interface{}
	Stack []byte
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("%s: panic: %v", e.Op, e.Value)
}

// Unwrap exposes a panic value that was itself an error.
func (e *PanicError) Unwrap() error {
	if err, ok := e.Value.(error); ok {
		return err
	}
	return nil
}

// Run calls fn and converts a panic into a *PanicError. The stack is logged
// at error level together with op.
func Run(op string, fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			stack := debug.Stack()
			slog.Error("recovery.Run: recovered panic", "op", op, "panic", r, "stack", string(stack))
			err = &PanicError{Op: op, Value: r, Stack: stack}
		}
	}()
	return fn()
}

// Go runs fn in a new goroutine under Run and logs a returned error.
func Go(op string, fn func() error) {
	go func() {
		if err := Run(op, fn); err != nil {
			slog.Error("recovery.Go: task failed", "op", op, "error", err)
		}
	}()
}
