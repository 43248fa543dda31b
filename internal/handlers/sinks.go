package handlers

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/goccy/go-json"

	"github.com/nerrad567/device-server/internal/device"
	"github.com/nerrad567/device-server/internal/dispatch"
)

// PointWriter mirrors readings into a time-series store.
// *influxdb.Mirror satisfies it.
type PointWriter interface {
	WriteReading(r device.Reading)
}

// Forwarder hands raw payloads to a downstream log.
// *kafka.Producer satisfies it.
type Forwarder interface {
	Forward(ctx context.Context, key string, value []byte) error
}

// LatestSetter caches the most recent reading per device.
// *cache.Cache satisfies it.
type LatestSetter interface {
	SetLatest(ctx context.Context, deviceID int, payload []byte) error
}

// ReadingPublisher pushes readings to live feed clients.
// *api.Hub satisfies it.
type ReadingPublisher interface {
	PublishReading(r device.Reading)
}

// InfluxMirror writes every valid reading as a time-series point.
type InfluxMirror struct {
	writer PointWriter
	now    func() time.Time
}

// NewInfluxMirror creates the handler.
func NewInfluxMirror(w PointWriter) *InfluxMirror {
	return &InfluxMirror{writer: w, now: time.Now}
}

// Name implements dispatch.Handler.
func (h *InfluxMirror) Name() string { return NameInfluxMirror }

// Match accepts device/{id}/readings/sendReading.
func (h *InfluxMirror) Match(topic string) bool { return isReadingsTopic(topic) }

// Handle queues a point. Write failures surface through the client's
// error callback, not here.
func (h *InfluxMirror) Handle(_ context.Context, msg dispatch.InboundMessage) error {
	r, err := parseReading(msg, h.now)
	if err != nil {
		return err
	}
	h.writer.WriteReading(r)
	return nil
}

// KafkaForwarder republishes raw reading payloads keyed by device ID, so
// one device's readings stay on one partition.
type KafkaForwarder struct {
	fwd Forwarder
}

// NewKafkaForwarder creates the handler.
func NewKafkaForwarder(f Forwarder) *KafkaForwarder {
	return &KafkaForwarder{fwd: f}
}

// Name implements dispatch.Handler.
func (h *KafkaForwarder) Name() string { return NameKafkaForwarder }

// Match accepts device/{id}/readings/sendReading.
func (h *KafkaForwarder) Match(topic string) bool { return isReadingsTopic(topic) }

// Handle forwards the payload unchanged.
func (h *KafkaForwarder) Handle(ctx context.Context, msg dispatch.InboundMessage) error {
	id, ok := topics.DeviceID(msg.Topic)
	if !ok {
		return fmt.Errorf("%w: topic %s", device.ErrInvalidDeviceID, msg.Topic)
	}
	if err := h.fwd.Forward(ctx, strconv.Itoa(id), msg.Payload); err != nil {
		return fmt.Errorf("forwarding reading for device %d: %w", id, err)
	}
	return nil
}

// ReadingCache keeps the latest stamped reading per device in the cache.
type ReadingCache struct {
	cache LatestSetter
	now   func() time.Time
}

// NewReadingCache creates the handler.
func NewReadingCache(c LatestSetter) *ReadingCache {
	return &ReadingCache{cache: c, now: time.Now}
}

// Name implements dispatch.Handler.
func (h *ReadingCache) Name() string { return NameReadingCache }

// Match accepts device/{id}/readings/sendReading.
func (h *ReadingCache) Match(topic string) bool { return isReadingsTopic(topic) }

// Handle stores the normalised reading as JSON.
func (h *ReadingCache) Handle(ctx context.Context, msg dispatch.InboundMessage) error {
	r, err := parseReading(msg, h.now)
	if err != nil {
		return err
	}
	data, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("encoding reading for device %d: %w", r.DeviceID, err)
	}
	if err := h.cache.SetLatest(ctx, r.DeviceID, data); err != nil {
		return fmt.Errorf("caching reading for device %d: %w", r.DeviceID, err)
	}
	return nil
}

// LiveFeed pushes readings to the WebSocket live feed.
type LiveFeed struct {
	hub ReadingPublisher
	now func() time.Time
}

// NewLiveFeed creates the handler.
func NewLiveFeed(hub ReadingPublisher) *LiveFeed {
	return &LiveFeed{hub: hub, now: time.Now}
}

// Name implements dispatch.Handler.
func (h *LiveFeed) Name() string { return NameLiveFeed }

// Match accepts device/{id}/readings/sendReading.
func (h *LiveFeed) Match(topic string) bool { return isReadingsTopic(topic) }

// Handle publishes the reading.
func (h *LiveFeed) Handle(_ context.Context, msg dispatch.InboundMessage) error {
	r, err := parseReading(msg, h.now)
	if err != nil {
		return err
	}
	h.hub.PublishReading(r)
	return nil
}
