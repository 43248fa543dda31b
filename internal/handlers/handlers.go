package handlers

import (
	"fmt"
	"time"

	"github.com/nerrad567/device-server/internal/device"
	"github.com/nerrad567/device-server/internal/dispatch"
	"github.com/nerrad567/device-server/internal/infrastructure/mqtt"
)

// Handler names as they appear in logs and dispatch results.
const (
	NameAuditLogger       = "audit-logger"
	NameSettingsChange    = "settings-change"
	NameReadingsIngestion = "readings-ingestion"
	NameInfluxMirror      = "influx-mirror"
	NameKafkaForwarder    = "kafka-forwarder"
	NameReadingCache      = "reading-cache"
	NameLiveFeed          = "live-feed"
)

var topics = mqtt.Topics{}

// isReadingsTopic matches device/{id}/readings/sendReading.
func isReadingsTopic(topic string) bool {
	return topics.IsDevice(topic, mqtt.CategoryReadings, mqtt.ActionSendReading)
}

// isSettingsTopic matches device/{id}/settings/changeSettings.
func isSettingsTopic(topic string) bool {
	return topics.IsDevice(topic, mqtt.CategorySettings, mqtt.ActionChangeSettings)
}

// receivedAt returns when msg arrived, falling back to now.
func receivedAt(msg dispatch.InboundMessage, now func() time.Time) time.Time {
	if !msg.ReceivedAt.IsZero() {
		return msg.ReceivedAt.UTC()
	}
	return now().UTC()
}

// parseReading validates, decodes and stamps the reading carried by msg.
func parseReading(msg dispatch.InboundMessage, now func() time.Time) (device.Reading, error) {
	r, err := device.ParseReading(msg.Payload, receivedAt(msg, now))
	if err != nil {
		return device.Reading{}, fmt.Errorf("reading on %s: %w", msg.Topic, err)
	}
	return r, nil
}
