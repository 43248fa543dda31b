package gateway

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/goccy/go-json"

	"github.com/nerrad567/device-server/internal/infrastructure/logging"
	"github.com/nerrad567/device-server/internal/infrastructure/mqtt"
)

var (
	// ErrNotStarted is returned by SendMessage before Start succeeds.
	ErrNotStarted = errors.New("gateway: not started")

	// ErrAlreadyStarted is returned by a second Start.
	ErrAlreadyStarted = errors.New("gateway: already started")

	// ErrEncode is returned by SendJSON when the value cannot be marshalled.
	ErrEncode = errors.New("gateway: encoding payload")
)

// Publisher publishes raw payloads to the broker.
type Publisher interface {
	Publish(topic string, payload []byte, qos byte, retained bool) error
}

// Link is the broker connection the gateway drives.
// *mqtt.Link satisfies it.
type Link interface {
	Publisher
	OnMessage(handler mqtt.MessageHandler)
	Connect(ctx context.Context) error
	Close() error
	IsConnected() bool
	HealthCheck(ctx context.Context) error
}

// Inbound accepts broker messages for asynchronous routing.
// *dispatch.Queue satisfies it.
type Inbound interface {
	Start(ctx context.Context) error
	Enqueue(ctx context.Context, topic string, payload []byte) error
	Close() error
}

// Option configures a Gateway.
type Option func(*Gateway)

// WithObserver replaces the default NopObserver.
func WithObserver(o Observer) Option {
	return func(g *Gateway) {
		if o != nil {
			g.observer = o
		}
	}
}

// WithDebugTopic sets the topic used by SendDebug (default common/debug).
func WithDebugTopic(topic string) Option {
	return func(g *Gateway) {
		if topic != "" {
			g.debugTopic = topic
		}
	}
}

// Gateway publishes outbound messages and owns the link and queue lifecycle.
//
// Thread Safety: all methods are safe for concurrent use.
type Gateway struct {
	link       Link
	inbound    Inbound
	observer   Observer
	debugTopic string
	logger     *logging.Logger

	mu      sync.RWMutex
	started bool
	cancel  context.CancelFunc
}

// New creates a gateway. It does not connect; call Start.
func New(link Link, inbound Inbound, logger *logging.Logger, opts ...Option) *Gateway {
	g := &Gateway{
		link:       link,
		inbound:    inbound,
		observer:   NopObserver{},
		debugTopic: mqtt.TopicDebug,
		logger:     logger.With("component", "gateway"),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Start brings up the inbound queue, wires the link's message callback
// into it and connects the link.
//
// A connect failure is returned as is and leaves the gateway stopped;
// callers treat it as fatal.
func (g *Gateway) Start(ctx context.Context) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.started {
		return ErrAlreadyStarted
	}

	if err := g.inbound.Start(ctx); err != nil {
		return fmt.Errorf("starting inbound queue: %w", err)
	}

	// Enqueue must not be cut short by the caller's ctx, only by Stop.
	enqueueCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	g.link.OnMessage(func(topic string, payload []byte) error {
		return g.inbound.Enqueue(enqueueCtx, topic, payload)
	})

	if err := g.link.Connect(ctx); err != nil {
		cancel()
		if cerr := g.inbound.Close(); cerr != nil {
			g.logger.Warn("closing inbound queue after connect failure", "error", cerr)
		}
		return err
	}

	g.cancel = cancel
	g.started = true
	g.logger.Info("gateway started")
	return nil
}

// Stop disconnects the link and drains the inbound queue. Safe to call
// when not started.
func (g *Gateway) Stop() error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if !g.started {
		return nil
	}
	g.started = false
	g.cancel()

	var firstErr error
	if err := g.link.Close(); err != nil {
		firstErr = fmt.Errorf("closing broker link: %w", err)
	}
	if err := g.inbound.Close(); err != nil && firstErr == nil {
		firstErr = fmt.Errorf("closing inbound queue: %w", err)
	}

	g.logger.Info("gateway stopped")
	return firstErr
}

// SendMessage publishes payload on topic.
//
// Without options the message goes AtLeastOnce and is not retained. The
// observer is notified first; its outcome never affects the publish.
func (g *Gateway) SendMessage(ctx context.Context, topic string, payload []byte, opts ...SendOption) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	o := defaultSendOptions()
	for _, opt := range opts {
		opt(&o)
	}

	g.mu.RLock()
	started := g.started
	g.mu.RUnlock()
	if !started {
		return ErrNotStarted
	}

	g.observer.MessageSending(ctx, "Message sent on topic: "+topic)

	if err := g.link.Publish(topic, payload, o.guarantee.QoS(), o.retain); err != nil {
		g.logger.Error("publish failed",
			"topic", topic,
			"qos", o.guarantee.QoS(),
			"error", err,
		)
		return err
	}

	g.logger.Debug("message published",
		"topic", topic,
		"qos", o.guarantee.QoS(),
		"retained", o.retain,
		"size", len(payload),
	)
	return nil
}

// SendJSON marshals v and publishes it with SendMessage.
func (g *Gateway) SendJSON(ctx context.Context, topic string, v any, opts ...SendOption) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrEncode, err)
	}
	return g.SendMessage(ctx, topic, payload, opts...)
}

// SendDebug publishes text on the debug topic, ExactlyOnce and retained.
// It bypasses the observer.
func (g *Gateway) SendDebug(ctx context.Context, text string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return g.link.Publish(g.debugTopic, []byte(text), ExactlyOnce.QoS(), true)
}

// IsConnected reports whether the broker link is currently up.
func (g *Gateway) IsConnected() bool {
	return g.link.IsConnected()
}

// HealthCheck verifies the broker link.
func (g *Gateway) HealthCheck(ctx context.Context) error {
	return g.link.HealthCheck(ctx)
}
