package influxdb

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"
	"github.com/influxdata/influxdb-client-go/v2/api/write"

	"github.com/nerrad567/device-server/internal/device"
	"github.com/nerrad567/device-server/internal/infrastructure/config"
	"github.com/nerrad567/device-server/internal/infrastructure/logging"
)

const (
	// readingMeasurement is the measurement every reading point is written to.
	readingMeasurement = "device_reading"

	pingTimeout          = 5 * time.Second
	defaultBatchSize     = 100
	defaultFlushInterval = 10 * time.Second
)

// Mirror copies device readings into an InfluxDB v2 bucket.
//
// Points go through the library's batching write API, so WriteReading
// never waits on the network. Rejected batches are logged and counted.
type Mirror struct {
	client   influxdb2.Client
	writeAPI api.WriteAPI
	logger   *logging.Logger

	// mu guards closed; the write API panics if used after Close.
	mu          sync.RWMutex
	closed      bool
	writeErrors atomic.Uint64
	drained     chan struct{}
}

// Connect pings the server at cfg.URL and returns a mirror writing to
// cfg.Org/cfg.Bucket. It returns ErrDisabled when the mirror is switched
// off in config.
func Connect(ctx context.Context, cfg config.InfluxDBConfig, logger *logging.Logger) (*Mirror, error) {
	if !cfg.Enabled {
		return nil, ErrDisabled
	}

	batchSize := uint(defaultBatchSize)
	if cfg.BatchSize > 0 {
		batchSize = uint(cfg.BatchSize)
	}
	flush := defaultFlushInterval
	if cfg.FlushInterval > 0 {
		flush = time.Duration(cfg.FlushInterval) * time.Second
	}

	client := influxdb2.NewClientWithOptions(cfg.URL, cfg.Token,
		influxdb2.DefaultOptions().
			SetBatchSize(batchSize).
			SetFlushInterval(uint(flush.Milliseconds())),
	)

	pingCtx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()
	if err := ping(pingCtx, client); err != nil {
		client.Close()
		return nil, fmt.Errorf("%w: %w", ErrConnectionFailed, err)
	}

	m := &Mirror{
		client:   client,
		writeAPI: client.WriteAPI(cfg.Org, cfg.Bucket),
		logger:   logger.With("component", "influx-mirror", "bucket", cfg.Bucket),
		drained:  make(chan struct{}),
	}
	go m.logWriteErrors(m.writeAPI.Errors())
	return m, nil
}

func ping(ctx context.Context, client influxdb2.Client) error {
	healthy, err := client.Ping(ctx)
	if err != nil {
		return err
	}
	if !healthy {
		return errors.New("server not healthy")
	}
	return nil
}

func (m *Mirror) logWriteErrors(errs <-chan error) {
	defer close(m.drained)
	for err := range errs {
		m.writeErrors.Add(1)
		m.logger.Error("reading batch rejected", "error", err)
	}
}

// WriteReading queues r as a device_reading point tagged with its device
// ID. Readings written after Close are dropped.
func (m *Mirror) WriteReading(r device.Reading) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return
	}
	m.writeAPI.WritePoint(readingPoint(r))
}

// readingPoint converts r to a point. A zero timestamp becomes now.
func readingPoint(r device.Reading) *write.Point {
	ts := r.Timestamp
	if ts.IsZero() {
		ts = time.Now().UTC()
	}
	return write.NewPoint(readingMeasurement,
		map[string]string{"device_id": strconv.Itoa(r.DeviceID)},
		map[string]any{
			"humidity":        float64(r.Humidity),
			"light_intensity": float64(r.LightIntensity),
			"temperature":     float64(r.Temperature),
		},
		ts,
	)
}

// Flush sends every queued point now.
func (m *Mirror) Flush() {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return
	}
	m.writeAPI.Flush()
}

// WriteErrors returns how many batches the server has rejected.
func (m *Mirror) WriteErrors() uint64 {
	return m.writeErrors.Load()
}

// HealthCheck pings the server.
func (m *Mirror) HealthCheck(ctx context.Context) error {
	m.mu.RLock()
	closed := m.closed
	m.mu.RUnlock()
	if closed {
		return ErrClosed
	}
	ctx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()
	if err := ping(ctx, m.client); err != nil {
		return fmt.Errorf("influxdb health check: %w", err)
	}
	return nil
}

// Close flushes queued points and releases the client. Calling it more
// than once is a no-op.
func (m *Mirror) Close() error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	m.mu.Unlock()

	m.client.Close() // flushes queued points
	<-m.drained
	return nil
}
