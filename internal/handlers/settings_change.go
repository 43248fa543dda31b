package handlers

import (
	"context"
	"fmt"
	"time"

	"github.com/goccy/go-json"

	"github.com/nerrad567/device-server/internal/device"
	"github.com/nerrad567/device-server/internal/dispatch"
	"github.com/nerrad567/device-server/internal/infrastructure/logging"
)

// SettingsRecorder stores the latest settings per device.
// *device.SettingsStore satisfies it.
type SettingsRecorder interface {
	Put(snap device.SettingsSnapshot) error
}

// SettingsChange logs settings reported by devices and keeps the latest
// snapshot per device.
type SettingsChange struct {
	store  SettingsRecorder
	logger *logging.Logger
	now    func() time.Time
}

// NewSettingsChange creates the handler. store may be nil, in which case
// settings are only logged.
func NewSettingsChange(store SettingsRecorder, logger *logging.Logger) *SettingsChange {
	return &SettingsChange{store: store, logger: logger.With("handler", NameSettingsChange), now: time.Now}
}

// Name implements dispatch.Handler.
func (h *SettingsChange) Name() string { return NameSettingsChange }

// Match accepts device/{id}/settings/changeSettings.
func (h *SettingsChange) Match(topic string) bool { return isSettingsTopic(topic) }

// Handle decodes the settings and records them.
//
// The device ID in the topic wins over one in the payload; firmware
// reports its settings without a deviceId field. A message with neither
// is rejected rather than recorded against device 0.
func (h *SettingsChange) Handle(_ context.Context, msg dispatch.InboundMessage) error {
	var s device.Settings
	if err := json.Unmarshal(msg.Payload, &s); err != nil {
		return fmt.Errorf("%w: decoding settings on %s: %w", device.ErrInvalidSettings, msg.Topic, err)
	}
	if id, ok := topics.DeviceID(msg.Topic); ok {
		s.DeviceID = id
	} else if err := payloadDeviceID(msg.Payload); err != nil {
		return fmt.Errorf("settings on %s: %w", msg.Topic, err)
	}

	h.logger.Info("device settings changed",
		"device_id", s.DeviceID,
		"min_humidity", s.MinHumidity,
		"max_humidity", s.MaxHumidity,
		"min_brightness", s.MinBrightness,
		"max_brightness", s.MaxBrightness,
		"bright_period_start", s.BrightPeriodStart,
		"bright_period_end", s.BrightPeriodEnd,
	)

	if h.store == nil {
		return nil
	}
	if err := h.store.Put(device.SettingsSnapshot{
		Settings:   s,
		Topic:      msg.Topic,
		ReceivedAt: receivedAt(msg, h.now),
	}); err != nil {
		return fmt.Errorf("storing settings for device %d: %w", s.DeviceID, err)
	}
	return nil
}

// payloadDeviceID checks that payload carries a usable deviceId field.
func payloadDeviceID(payload []byte) error {
	var id struct {
		DeviceID *int `json:"deviceId"`
	}
	if err := json.Unmarshal(payload, &id); err != nil || id.DeviceID == nil {
		return fmt.Errorf("%w: missing", device.ErrInvalidDeviceID)
	}
	return device.ValidateDeviceID(*id.DeviceID)
}
