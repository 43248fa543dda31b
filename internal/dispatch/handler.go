package dispatch

import (
	"context"
	"time"
)

// InboundMessage is one message received from the broker.
// Handlers must treat it as read-only; the same value is passed to every
// matching handler.
type InboundMessage struct {
	Topic      string
	Payload    []byte
	ReceivedAt time.Time
}

// Handler processes inbound messages for the topics it matches.
type Handler interface {
	// Name identifies the handler in logs and results.
	Name() string

	// Match reports whether the handler wants messages on topic.
	// It must be cheap and free of side effects.
	Match(topic string) bool

	// Handle processes one message. Returned errors are logged by the
	// dispatcher and never retried.
	Handle(ctx context.Context, msg InboundMessage) error
}
