package dispatch

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/nerrad567/device-server/internal/infrastructure/logging"
)

// blockingHandler blocks every Handle call until release is closed.
type blockingHandler struct {
	release chan struct{}
	started atomic.Int32
	done    atomic.Int32
}

func (h *blockingHandler) Name() string      { return "blocking" }
func (h *blockingHandler) Match(string) bool { return true }
func (h *blockingHandler) Handle(context.Context, InboundMessage) error {
	h.started.Add(1)
	<-h.release
	h.done.Add(1)
	return nil
}

func startQueue(t *testing.T, d *Dispatcher, size int) *Queue {
	t.Helper()
	q, err := NewQueue(d, size, logging.Discard())
	require.NoError(t, err)
	require.NoError(t, q.Start(context.Background()))
	return q
}

func TestQueue_DeliversToDispatcher(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	h := &fakeHandler{name: "audit", match: matchAll}
	q := startQueue(t, New(logging.Discard(), h), 16)

	before := time.Now().UTC()
	for i := 0; i < 10; i++ {
		require.NoError(t, q.Enqueue(context.Background(), fmt.Sprintf("device/%d/readings/sendReading", i), []byte(`{"n":1}`)))
	}

	require.Eventually(t, func() bool { return h.count() == 10 }, 5*time.Second, 10*time.Millisecond)
	require.NoError(t, q.Close())

	h.mu.Lock()
	defer h.mu.Unlock()
	topics := map[string]bool{}
	for _, m := range h.received {
		topics[m.Topic] = true
		assert.Equal(t, `{"n":1}`, string(m.Payload))
		assert.False(t, m.ReceivedAt.Before(before.Add(-time.Second)))
	}
	assert.Len(t, topics, 10, "every topic delivered once")
}

func TestQueue_RoutesConcurrently(t *testing.T) {
	h := &blockingHandler{release: make(chan struct{})}
	q := startQueue(t, New(logging.Discard(), h), 8)
	defer q.Close()

	for i := 0; i < 3; i++ {
		require.NoError(t, q.Enqueue(context.Background(), "t", nil))
	}

	// All three are in a handler at once even though none has finished.
	require.Eventually(t, func() bool { return h.started.Load() == 3 }, 5*time.Second, 10*time.Millisecond)
	assert.Equal(t, int32(0), h.done.Load())

	close(h.release)
	require.Eventually(t, func() bool { return h.done.Load() == 3 }, 5*time.Second, 10*time.Millisecond)
}

func TestQueue_Backpressure(t *testing.T) {
	h := &blockingHandler{release: make(chan struct{})}
	q := startQueue(t, New(logging.Discard(), h), 2)
	defer q.Close()

	require.NoError(t, q.Enqueue(context.Background(), "t", nil))
	require.NoError(t, q.Enqueue(context.Background(), "t", nil))

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	err := q.Enqueue(ctx, "t", nil)
	assert.ErrorIs(t, err, context.DeadlineExceeded, "third message blocks while two are in flight")

	close(h.release)
	require.Eventually(t, func() bool { return h.done.Load() == 2 }, 5*time.Second, 10*time.Millisecond)
	require.NoError(t, q.Enqueue(context.Background(), "t", nil))
}

func TestQueue_HandlerFailureDoesNotStopQueue(t *testing.T) {
	failing := &fakeHandler{name: "failing", match: matchAll, panicVal: "boom"}
	ok := &fakeHandler{name: "ok", match: matchAll}
	q := startQueue(t, New(logging.Discard(), failing, ok), 4)
	defer q.Close()

	for i := 0; i < 5; i++ {
		require.NoError(t, q.Enqueue(context.Background(), "t", nil))
	}
	require.Eventually(t, func() bool { return ok.count() == 5 }, 5*time.Second, 10*time.Millisecond)
}

func TestQueue_EnqueueStates(t *testing.T) {
	q, err := NewQueue(New(logging.Discard()), 0, logging.Discard())
	require.NoError(t, err)
	assert.Equal(t, defaultBufferSize, cap(q.slots))

	assert.ErrorIs(t, q.Enqueue(context.Background(), "t", nil), ErrQueueNotStarted)

	require.NoError(t, q.Start(context.Background()))
	require.NoError(t, q.Close())
	require.NoError(t, q.Close())

	assert.ErrorIs(t, q.Enqueue(context.Background(), "t", nil), ErrQueueClosed)
	assert.ErrorIs(t, q.Start(context.Background()), ErrQueueClosed)
}

func TestQueue_CloseUnblocksEnqueue(t *testing.T) {
	h := &blockingHandler{release: make(chan struct{})}
	q := startQueue(t, New(logging.Discard(), h), 1)

	require.NoError(t, q.Enqueue(context.Background(), "t", nil))
	require.Eventually(t, func() bool { return h.started.Load() == 1 }, 5*time.Second, 10*time.Millisecond)

	var wg sync.WaitGroup
	var enqueueErr error
	wg.Add(1)
	go func() {
		defer wg.Done()
		enqueueErr = q.Enqueue(context.Background(), "t", nil)
	}()

	// Let the blocked Enqueue observe closing, then let the handler finish so
	// the router can shut down.
	go func() {
		time.Sleep(50 * time.Millisecond)
		close(h.release)
	}()
	require.NoError(t, q.Close())
	wg.Wait()

	assert.Error(t, enqueueErr)
}
