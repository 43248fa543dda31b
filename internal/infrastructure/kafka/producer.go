package kafka

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	kafkago "github.com/segmentio/kafka-go"

	"github.com/nerrad567/device-server/internal/infrastructure/config"
)

// Writer batching defaults. Readings are small and arrive in bursts, so
// batches close quickly rather than waiting to fill.
const (
	batchSize    = 100
	batchBytes   = 1 << 20
	batchTimeout = 10 * time.Millisecond
	maxAttempts  = 3
)

var (
	// ErrDisabled indicates Kafka forwarding is disabled in config.
	ErrDisabled = errors.New("kafka: disabled in configuration")

	// ErrNoBrokers indicates forwarding is enabled without any broker address.
	ErrNoBrokers = errors.New("kafka: no brokers configured")

	// ErrClosed indicates Forward was called after Close.
	ErrClosed = errors.New("kafka: producer closed")
)

// messageWriter is the subset of *kafkago.Writer the producer uses.
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafkago.Message) error
	Close() error
}

// Producer publishes readings to a single Kafka topic.
//
// Thread Safety: safe for concurrent use.
type Producer struct {
	writer messageWriter
	topic  string

	mu     sync.RWMutex
	closed bool
}

// NewProducer builds a producer for cfg.Topic on cfg.Brokers.
//
// No connection is made here; kafka-go dials lazily on the first write.
//
// Returns:
//   - *Producer: ready to Forward
//   - error: ErrDisabled when forwarding is off, ErrNoBrokers when misconfigured
func NewProducer(cfg config.KafkaConfig) (*Producer, error) {
	if !cfg.Enabled {
		return nil, ErrDisabled
	}
	if len(cfg.Brokers) == 0 {
		return nil, ErrNoBrokers
	}

	w := &kafkago.Writer{
		Addr:     kafkago.TCP(cfg.Brokers...),
		Topic:    cfg.Topic,
		Balancer: &kafkago.Hash{},

		BatchSize:    batchSize,
		BatchBytes:   batchBytes,
		BatchTimeout: batchTimeout,

		RequiredAcks:           kafkago.RequireOne,
		MaxAttempts:            maxAttempts,
		Async:                  cfg.Async,
		AllowAutoTopicCreation: true,
	}

	return newProducer(w, cfg.Topic), nil
}

func newProducer(w messageWriter, topic string) *Producer {
	return &Producer{writer: w, topic: topic}
}

// Topic returns the destination topic.
func (p *Producer) Topic() string {
	return p.topic
}

// Forward writes one message keyed by key.
//
// In async mode the call returns once the message is queued and delivery
// errors are only visible in the writer's own logging.
func (p *Producer) Forward(ctx context.Context, key string, value []byte) error {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return ErrClosed
	}

	err := p.writer.WriteMessages(ctx, kafkago.Message{
		Key:   []byte(key),
		Value: value,
		Time:  time.Now().UTC(),
	})
	if err != nil {
		return fmt.Errorf("kafka: writing to %s: %w", p.topic, err)
	}
	return nil
}

// Close flushes pending messages and closes the writer. Safe to call twice.
func (p *Producer) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil
	}
	p.closed = true

	if err := p.writer.Close(); err != nil {
		return fmt.Errorf("kafka: closing writer: %w", err)
	}
	return nil
}
