package handlers

import (
	"context"
	"fmt"
	"time"

	"github.com/nerrad567/device-server/internal/device"
	"github.com/nerrad567/device-server/internal/dispatch"
	"github.com/nerrad567/device-server/internal/infrastructure/logging"
)

// ReadingsIngestion validates readings and stores them in device_readings.
type ReadingsIngestion struct {
	repo   device.ReadingRepository
	logger *logging.Logger
	now    func() time.Time
}

// NewReadingsIngestion creates the handler.
func NewReadingsIngestion(repo device.ReadingRepository, logger *logging.Logger) *ReadingsIngestion {
	return &ReadingsIngestion{repo: repo, logger: logger.With("handler", NameReadingsIngestion), now: time.Now}
}

// Name implements dispatch.Handler.
func (h *ReadingsIngestion) Name() string { return NameReadingsIngestion }

// Match accepts device/{id}/readings/sendReading.
func (h *ReadingsIngestion) Match(topic string) bool { return isReadingsTopic(topic) }

// Handle validates the payload against the reading schema and inserts it.
// A reading without a timestamp is stamped with the arrival time.
func (h *ReadingsIngestion) Handle(ctx context.Context, msg dispatch.InboundMessage) error {
	r, err := parseReading(msg, h.now)
	if err != nil {
		return err
	}

	if err := h.repo.Insert(ctx, &r); err != nil {
		return fmt.Errorf("storing reading for device %d: %w", r.DeviceID, err)
	}

	h.logger.Debug("reading stored",
		"device_id", r.DeviceID,
		"timestamp", r.Timestamp,
	)
	return nil
}
