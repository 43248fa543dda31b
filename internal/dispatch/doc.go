// Package dispatch routes inbound broker messages to topic handlers.
//
// A Dispatcher holds an ordered, immutable list of Handlers fixed at
// construction. For every message it asks each handler whether it
// matches the topic, then runs the matching ones one after another in
// registration order. A handler that fails or panics is logged and
// counted; it never stops later handlers or later messages.
//
// # Queue
//
// Broker callbacks do not route directly. They Enqueue into a Queue, a
// watermill gochannel pub/sub consumed by a watermill Router. The queue
// bounds the number of in-flight messages (dispatch.buffer_size); when
// the bound is reached Enqueue blocks the broker callback goroutine.
// Messages are routed concurrently, so two messages on the same topic
// may be handled in either order.
//
// # Usage
//
//	d := dispatch.New(logger, auditLogger, settingsHandler, readingsHandler)
//	q, err := dispatch.NewQueue(d, cfg.Dispatch.BufferSize, logger)
//	if err := q.Start(ctx); err != nil { ... }
//	defer q.Close()
//
//	link.OnMessage(func(topic string, payload []byte) error {
//	    return q.Enqueue(ctx, topic, payload)
//	})
package dispatch
