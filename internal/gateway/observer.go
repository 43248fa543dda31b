package gateway

import (
	"context"

	"github.com/nerrad567/device-server/internal/infrastructure/logging"
)

// Observer is told about every outbound message before it is published.
// Implementations must not block for long; they run on the caller's
// goroutine.
type Observer interface {
	MessageSending(ctx context.Context, text string)
}

// NopObserver ignores every notification.
type NopObserver struct{}

// MessageSending does nothing.
func (NopObserver) MessageSending(context.Context, string) {}

// BrokerDebugObserver publishes each notification to a debug topic at
// ExactlyOnce with the retain flag set. Failures are logged and never
// stop the message being reported on.
type BrokerDebugObserver struct {
	pub    Publisher
	topic  string
	logger *logging.Logger
}

// NewBrokerDebugObserver creates an observer publishing on topic.
func NewBrokerDebugObserver(pub Publisher, topic string, logger *logging.Logger) *BrokerDebugObserver {
	return &BrokerDebugObserver{pub: pub, topic: topic, logger: logger}
}

// MessageSending publishes text to the debug topic.
func (o *BrokerDebugObserver) MessageSending(_ context.Context, text string) {
	if err := o.pub.Publish(o.topic, []byte(text), ExactlyOnce.QoS(), true); err != nil {
		o.logger.Warn("debug heartbeat publish failed",
			"topic", o.topic,
			"error", err,
		)
	}
}
