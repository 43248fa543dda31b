package dispatch

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"

	"github.com/nerrad567/device-server/internal/infrastructure/logging"
)

const (
	// inboundTopic is the internal pub/sub topic carrying broker messages.
	inboundTopic = "inbound"

	// Metadata keys set on each queued message.
	metaTopic      = "topic"
	metaReceivedAt = "received_at"

	defaultBufferSize  = 256
	routerCloseTimeout = 30 * time.Second
)

// Queue decouples broker callbacks from message handling.
//
// Enqueue wraps a broker message in a watermill message and publishes it
// to an in-process gochannel. A watermill Router consumes the channel and
// calls Dispatcher.Route for each message on its own goroutine.
//
// At most bufferSize messages are in flight (queued or being routed);
// Enqueue blocks while the queue is full.
type Queue struct {
	dispatcher *Dispatcher
	logger     *logging.Logger

	pubsub *gochannel.GoChannel
	router *message.Router
	slots  chan struct{}

	// baseCtx is set once by Start before the router runs and only read
	// afterwards by handle.
	baseCtx context.Context //nolint:containedctx // handlers outlive the Enqueue caller

	mu      sync.RWMutex
	started bool
	closed  bool
	closing chan struct{}
	done    chan error
}

// NewQueue builds a queue feeding d. A non-positive bufferSize defaults to 256.
func NewQueue(d *Dispatcher, bufferSize int, logger *logging.Logger) (*Queue, error) {
	if bufferSize <= 0 {
		bufferSize = defaultBufferSize
	}

	wlog := newWatermillLogger(logger)

	pubsub := gochannel.NewGoChannel(gochannel.Config{
		OutputChannelBuffer: int64(bufferSize),
	}, wlog)

	router, err := message.NewRouter(message.RouterConfig{
		CloseTimeout: routerCloseTimeout,
	}, wlog)
	if err != nil {
		pubsub.Close() //nolint:errcheck // best effort cleanup on error path
		return nil, fmt.Errorf("creating router: %w", err)
	}

	q := &Queue{
		dispatcher: d,
		logger:     logger.With("component", "dispatch-queue"),
		pubsub:     pubsub,
		router:     router,
		slots:      make(chan struct{}, bufferSize),
		closing:    make(chan struct{}),
		done:       make(chan error, 1),
	}

	router.AddNoPublisherHandler("dispatch", inboundTopic, pubsub, q.handle)

	return q, nil
}

// Start runs the router and returns once it is consuming.
//
// The router keeps running until Close, or until ctx is cancelled.
// Messages already being routed are not cancelled by ctx.
func (q *Queue) Start(ctx context.Context) error {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return ErrQueueClosed
	}
	if q.started {
		q.mu.Unlock()
		return nil
	}
	q.baseCtx = context.WithoutCancel(ctx)
	q.mu.Unlock()

	go func() {
		q.done <- q.router.Run(ctx)
	}()

	select {
	case <-q.router.Running():
	case err := <-q.done:
		q.done <- err
		return fmt.Errorf("starting router: %w", err)
	case <-ctx.Done():
		return ctx.Err()
	}

	q.mu.Lock()
	q.started = true
	q.mu.Unlock()

	q.logger.Info("dispatch queue started", "capacity", cap(q.slots))
	return nil
}

// Enqueue hands a broker message to the router.
//
// It blocks while the in-flight limit is reached, until a slot frees or
// ctx is done.
func (q *Queue) Enqueue(ctx context.Context, topic string, payload []byte) error {
	q.mu.RLock()
	closed, started := q.closed, q.started
	q.mu.RUnlock()
	if closed {
		return ErrQueueClosed
	}
	if !started {
		return ErrQueueNotStarted
	}

	select {
	case q.slots <- struct{}{}:
	case <-q.closing:
		return ErrQueueClosed
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case <-q.closing:
		<-q.slots
		return ErrQueueClosed
	default:
	}

	msg := message.NewMessage(watermill.NewUUID(), payload)
	msg.Metadata.Set(metaTopic, topic)
	msg.Metadata.Set(metaReceivedAt, time.Now().UTC().Format(time.RFC3339Nano))

	if err := q.pubsub.Publish(inboundTopic, msg); err != nil {
		<-q.slots
		return fmt.Errorf("enqueueing message: %w", err)
	}
	return nil
}

// handle is the router handler. It always returns nil: failures are
// recorded by the dispatcher and a nack would only cause redelivery.
func (q *Queue) handle(msg *message.Message) error {
	defer func() { <-q.slots }()

	// Ack first so the subscriber delivers the next message while this
	// one is routed.
	msg.Ack()

	receivedAt, err := time.Parse(time.RFC3339Nano, msg.Metadata.Get(metaReceivedAt))
	if err != nil {
		receivedAt = time.Now().UTC()
	}

	q.dispatcher.Route(q.baseCtx, InboundMessage{
		Topic:      msg.Metadata.Get(metaTopic),
		Payload:    msg.Payload,
		ReceivedAt: receivedAt,
	})
	return nil
}

// Close stops accepting messages, waits for in-flight routing to finish
// and releases the router and pub/sub. Safe to call twice.
func (q *Queue) Close() error {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return nil
	}
	q.closed = true
	started := q.started
	close(q.closing)
	q.mu.Unlock()

	var firstErr error
	if err := q.router.Close(); err != nil {
		firstErr = fmt.Errorf("closing router: %w", err)
	}
	if err := q.pubsub.Close(); err != nil && firstErr == nil {
		firstErr = fmt.Errorf("closing pubsub: %w", err)
	}

	if started {
		if err := <-q.done; err != nil && firstErr == nil {
			firstErr = fmt.Errorf("router stopped: %w", err)
		}
	}

	q.logger.Info("dispatch queue closed")
	return firstErr
}
