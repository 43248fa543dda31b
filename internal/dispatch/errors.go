package dispatch

import "errors"

var (
	// ErrHandlerPanic wraps a panic recovered from a handler.
	ErrHandlerPanic = errors.New("dispatch: handler panicked")

	// ErrQueueClosed is returned by Enqueue after Close.
	ErrQueueClosed = errors.New("dispatch: queue closed")

	// ErrQueueNotStarted is returned by Enqueue before Start.
	ErrQueueNotStarted = errors.New("dispatch: queue not started")
)
