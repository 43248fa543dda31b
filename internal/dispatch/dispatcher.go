package dispatch

import (
	"context"
	"fmt"
	"runtime/debug"

	"github.com/nerrad567/device-server/internal/infrastructure/logging"
)

// HandlerFailure records a handler that returned an error or panicked.
type HandlerFailure struct {
	Handler string
	Err     error
}

// Result summarises one Route call.
type Result struct {
	Topic    string
	Matched  []string
	Failures []HandlerFailure
}

// Succeeded returns the number of matched handlers that completed without error.
func (r Result) Succeeded() int {
	return len(r.Matched) - len(r.Failures)
}

// Dispatcher routes messages to every matching handler.
//
// Thread Safety:
//   - Route is safe for concurrent use; the handler list is never mutated.
//   - Handlers themselves must be safe for concurrent use, since two
//     messages can be routed at the same time.
type Dispatcher struct {
	handlers []Handler
	logger   *logging.Logger
}

// New creates a dispatcher over handlers, consulted in the given order.
// The slice is copied; later changes by the caller have no effect.
func New(logger *logging.Logger, handlers ...Handler) *Dispatcher {
	hs := make([]Handler, 0, len(handlers))
	for _, h := range handlers {
		if h != nil {
			hs = append(hs, h)
		}
	}
	return &Dispatcher{
		handlers: hs,
		logger:   logger.With("component", "dispatcher"),
	}
}

// Handlers returns the registered handler names in order.
func (d *Dispatcher) Handlers() []string {
	names := make([]string, len(d.handlers))
	for i, h := range d.handlers {
		names[i] = h.Name()
	}
	return names
}

// Route delivers msg to every handler whose Match returns true.
//
// All handlers are asked before any runs. Matched handlers then run
// sequentially in registration order. Errors and panics are logged and
// recorded in the Result; they are never returned.
func (d *Dispatcher) Route(ctx context.Context, msg InboundMessage) Result {
	res := Result{Topic: msg.Topic}

	var matched []Handler
	for _, h := range d.handlers {
		if h.Match(msg.Topic) {
			matched = append(matched, h)
			res.Matched = append(res.Matched, h.Name())
		}
	}

	if len(matched) == 0 {
		d.logger.Info("no handler matched topic", "topic", msg.Topic)
		return res
	}

	for _, h := range matched {
		if err := d.invoke(ctx, h, msg); err != nil {
			d.logger.Error("handler failed",
				"handler", h.Name(),
				"topic", msg.Topic,
				"payload", logging.Payload(msg.Payload),
				"error", err,
			)
			res.Failures = append(res.Failures, HandlerFailure{Handler: h.Name(), Err: err})
		}
	}

	return res
}

// invoke runs one handler, turning a panic into an error.
func (d *Dispatcher) invoke(ctx context.Context, h Handler, msg InboundMessage) (err error) {
	defer func() {
		if r := recover(); r != nil {
			d.logger.Debug("handler panic stack", "handler", h.Name(), "stack", string(debug.Stack()))
			err = fmt.Errorf("%w: %v", ErrHandlerPanic, r)
		}
	}()
	return h.Handle(ctx, msg)
}
