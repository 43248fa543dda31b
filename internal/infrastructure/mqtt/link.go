package mqtt

import (
	"context"
	"fmt"
	"sync"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/nerrad567/device-server/internal/infrastructure/config"
)

// newPahoClient constructs the underlying paho client. Replaced in tests.
var newPahoClient = pahomqtt.NewClient

// Link owns the single broker connection of the process.
//
// Every other component reaches the broker through a Link: it connects and
// authenticates, subscribes to the configured topic filters, hands each
// inbound message to one process-wide callback, and publishes outbound
// messages.
//
// Thread Safety:
//   - All methods are safe for concurrent use from multiple goroutines.
//   - The message callback may be entered concurrently for distinct messages.
type Link struct {
	cfg    config.MQTTConfig
	logger Logger

	client pahomqtt.Client

	// connected tracks current connection state; subscribed is set once the
	// initial subscriptions succeeded so reconnects know to restore them.
	connected  bool
	subscribed bool
	connMu     sync.RWMutex

	handler   MessageHandler
	handlerMu sync.RWMutex

	// Callbacks for connection events (optional).
	onConnect    func()
	onDisconnect func(err error)
	callbackMu   sync.RWMutex
}

// Logger is the logging surface the link needs.
// Compatible with logging.Logger and slog.Logger.
type Logger interface {
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// MessageHandler is the callback signature for received messages.
//
// Parameters:
//   - topic: The topic the message was received on (wildcards expanded)
//   - payload: The raw message payload
//
// Returns:
//   - error: Logged by the link; it never affects the connection
type MessageHandler func(topic string, payload []byte) error

// New creates an unconnected Link for the given configuration.
func New(cfg config.MQTTConfig, logger Logger) *Link {
	return &Link{
		cfg:    cfg,
		logger: logger,
	}
}

// OnMessage registers the callback invoked once per inbound message.
//
// It must be called before Connect; messages that arrive while no callback
// is registered are logged and dropped.
func (l *Link) OnMessage(handler MessageHandler) {
	l.handlerMu.Lock()
	l.handler = handler
	l.handlerMu.Unlock()
}

// Connect establishes the broker connection and subscribes to every
// configured topic filter.
//
// A failure at this point is fatal for the caller: the connection is not
// retried here. Once connected, paho reconnects on its own and the link
// restores the subscriptions after every reconnect.
//
// Parameters:
//   - ctx: Bounds the whole connect and subscribe sequence
//
// Returns:
//   - error: ErrConnectionFailed or ErrSubscribeFailed (wrapped)
func (l *Link) Connect(ctx context.Context) error {
	l.connMu.Lock()
	if l.client != nil {
		l.connMu.Unlock()
		return ErrAlreadyConnected
	}

	opts, err := buildClientOptions(l.cfg)
	if err != nil {
		l.connMu.Unlock()
		return fmt.Errorf("%w: %w", ErrConnectionFailed, err)
	}

	opts.SetOnConnectHandler(func(_ pahomqtt.Client) {
		l.handleConnect()
	})
	opts.SetConnectionLostHandler(func(_ pahomqtt.Client, err error) {
		l.handleDisconnect(err)
	})
	opts.SetReconnectingHandler(func(_ pahomqtt.Client, _ *pahomqtt.ClientOptions) {
		l.logger.Warn("MQTT reconnecting", "broker", brokerURL(l.cfg))
	})
	opts.SetDefaultPublishHandler(l.deliver)

	client := newPahoClient(opts)
	l.client = client
	l.connMu.Unlock()

	if l.cfg.Broker.TLS && l.cfg.Broker.TLSInsecureSkipVerify {
		l.logger.Warn("MQTT broker certificate verification disabled", "broker", brokerURL(l.cfg))
	}

	if err := waitToken(ctx, client.Connect(), defaultConnectTimeout); err != nil {
		l.reset()
		return fmt.Errorf("%w: %s: %w", ErrConnectionFailed, brokerURL(l.cfg), err)
	}

	// The OnConnect callback runs asynchronously; mark the state here so
	// IsConnected is true as soon as Connect returns.
	l.connMu.Lock()
	l.connected = true
	l.connMu.Unlock()

	if err := l.subscribeAll(ctx, client); err != nil {
		client.Disconnect(0)
		l.reset()
		return err
	}

	l.connMu.Lock()
	l.subscribed = true
	l.connMu.Unlock()

	l.logger.Info("MQTT connected",
		"broker", brokerURL(l.cfg),
		"client_id", l.cfg.Broker.ClientID,
		"subscriptions", l.cfg.Subscriptions,
	)
	return nil
}

// subscribeAll subscribes to every configured filter and waits for each SUBACK.
func (l *Link) subscribeAll(ctx context.Context, client pahomqtt.Client) error {
	qos := byte(l.cfg.QoS) //nolint:gosec // validated 0..2 by config
	for _, filter := range l.cfg.Subscriptions {
		if filter == "" {
			return fmt.Errorf("%w: %w", ErrSubscribeFailed, ErrInvalidTopic)
		}
		token := client.Subscribe(filter, qos, l.deliver)
		if err := waitToken(ctx, token, defaultSubscribeTimeout); err != nil {
			return fmt.Errorf("%w: %s: %w", ErrSubscribeFailed, filter, err)
		}
	}
	return nil
}

// reset drops the client after a failed Connect so it can be retried.
func (l *Link) reset() {
	l.connMu.Lock()
	l.client = nil
	l.connected = false
	l.subscribed = false
	l.connMu.Unlock()
}

// handleConnect is called when the connection is established or re-established.
func (l *Link) handleConnect() {
	l.connMu.Lock()
	l.connected = true
	restore := l.subscribed
	client := l.client
	l.connMu.Unlock()

	// Clean sessions lose subscriptions on the broker side.
	if restore && client != nil {
		qos := byte(l.cfg.QoS) //nolint:gosec // validated 0..2 by config
		for _, filter := range l.cfg.Subscriptions {
			client.Subscribe(filter, qos, l.deliver)
		}
		l.logger.Info("MQTT reconnected, subscriptions restored", "count", len(l.cfg.Subscriptions))
	}

	l.callbackMu.RLock()
	callback := l.onConnect
	l.callbackMu.RUnlock()
	if callback != nil {
		callback()
	}
}

// handleDisconnect is called when the connection is lost.
func (l *Link) handleDisconnect(err error) {
	l.connMu.Lock()
	l.connected = false
	l.connMu.Unlock()

	l.callbackMu.RLock()
	callback := l.onDisconnect
	l.callbackMu.RUnlock()
	if callback != nil {
		callback(err)
	}
}

// Close gracefully disconnects from the broker. Closing an unconnected
// link is a no-op.
func (l *Link) Close() error {
	l.connMu.Lock()
	client := l.client
	l.client = nil
	l.connected = false
	l.subscribed = false
	l.connMu.Unlock()

	if client == nil {
		return nil
	}

	client.Disconnect(defaultDisconnectQuiesce)
	l.logger.Info("MQTT disconnected", "broker", brokerURL(l.cfg))
	return nil
}

// HealthCheck verifies the broker connection is alive.
//
// Parameters:
//   - ctx: Context for timeout/cancellation
//
// Returns:
//   - error: nil if healthy, error describing the issue otherwise
func (l *Link) HealthCheck(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return fmt.Errorf("mqtt health check: %w", ctx.Err())
	default:
	}

	if !l.IsConnected() {
		return ErrNotConnected
	}
	return nil
}

// IsConnected returns the current connection state.
func (l *Link) IsConnected() bool {
	l.connMu.RLock()
	defer l.connMu.RUnlock()
	return l.client != nil && l.connected && l.client.IsConnected()
}

// SetOnConnect sets a callback invoked on every (re)connect.
func (l *Link) SetOnConnect(callback func()) {
	l.callbackMu.Lock()
	l.onConnect = callback
	l.callbackMu.Unlock()
}

// SetOnDisconnect sets a callback invoked when the connection is lost.
func (l *Link) SetOnDisconnect(callback func(err error)) {
	l.callbackMu.Lock()
	l.onDisconnect = callback
	l.callbackMu.Unlock()
}

// deliver is the paho callback for every subscribed filter. It forwards the
// message to the registered handler with panic recovery so a faulty
// handler cannot take down paho's router goroutine.
func (l *Link) deliver(_ pahomqtt.Client, msg pahomqtt.Message) {
	defer func() {
		if r := recover(); r != nil {
			l.logger.Error("MQTT handler panic recovered",
				"topic", msg.Topic(),
				"panic", r,
			)
		}
	}()

	l.handlerMu.RLock()
	handler := l.handler
	l.handlerMu.RUnlock()

	if handler == nil {
		l.logger.Warn("MQTT message dropped, no handler registered", "topic", msg.Topic())
		return
	}

	if err := handler(msg.Topic(), msg.Payload()); err != nil {
		l.logger.Warn("MQTT handler returned error",
			"topic", msg.Topic(),
			"error", err,
		)
	}
}

// waitToken waits for a paho token to complete, bounded by both ctx and timeout.
func waitToken(ctx context.Context, token pahomqtt.Token, timeout time.Duration) error {
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-token.Done():
		return token.Error()
	case <-timer.C:
		return fmt.Errorf("timeout after %v", timeout)
	case <-ctx.Done():
		return ctx.Err()
	}
}
