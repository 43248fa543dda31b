package mqtt

import (
	"fmt"
	"strconv"
	"strings"
)

// Device topic layout: device/{deviceId}/{category}/{action}
const (
	// TopicPrefixDevice is the first level of every device topic.
	TopicPrefixDevice = "device"

	// TopicDebug receives the human-readable debug heartbeat.
	TopicDebug = "common/debug"
)

// Device topic categories.
const (
	CategoryCommand  = "command"
	CategorySettings = "settings"
	CategoryReadings = "readings"
)

// Device topic actions.
const (
	ActionSendCommand     = "sendCommand"
	ActionChangeSettings  = "changeSettings"
	ActionRequestSettings = "requestSettings"
	ActionSendReading     = "sendReading"
)

// Topics provides builders and predicates for device topics.
// Using these helpers keeps the outbound builders and the inbound
// predicates in agreement.
//
//	topics := mqtt.Topics{}
//	topic := topics.Settings(7)
//	// Returns: "device/7/settings/changeSettings"
//	topics.IsDevice(topic, mqtt.CategorySettings, mqtt.ActionChangeSettings) // true
type Topics struct{}

// =============================================================================
// Device Topics
// =============================================================================

// Device returns the topic for a device, category and action.
//
// Example: device/7/command/sendCommand
func (Topics) Device(deviceID int, category, action string) string {
	return fmt.Sprintf("%s/%d/%s/%s", TopicPrefixDevice, deviceID, category, action)
}

// Command returns the topic devices listen on for actuator commands.
//
// Example: device/7/command/sendCommand
func (t Topics) Command(deviceID int) string {
	return t.Device(deviceID, CategoryCommand, ActionSendCommand)
}

// Settings returns the topic carrying device settings in both directions.
//
// Example: device/7/settings/changeSettings
func (t Topics) Settings(deviceID int) string {
	return t.Device(deviceID, CategorySettings, ActionChangeSettings)
}

// SettingsRequest returns the topic asking a device to report its settings.
// The device answers on the Settings topic.
//
// Example: device/7/settings/requestSettings
func (t Topics) SettingsRequest(deviceID int) string {
	return t.Device(deviceID, CategorySettings, ActionRequestSettings)
}

// Readings returns the topic a device publishes sensor readings on.
//
// Example: device/7/readings/sendReading
func (t Topics) Readings(deviceID int) string {
	return t.Device(deviceID, CategoryReadings, ActionSendReading)
}

// =============================================================================
// Subscription Filters
// =============================================================================

// AllReadings matches readings from every device.
func (Topics) AllReadings() string {
	return TopicPrefixDevice + "/+/" + CategoryReadings + "/" + ActionSendReading
}

// AllSettings matches settings reports from every device.
func (Topics) AllSettings() string {
	return TopicPrefixDevice + "/+/" + CategorySettings + "/" + ActionChangeSettings
}

// =============================================================================
// Predicates
// =============================================================================

// IsDevice reports whether topic is a device topic for category and action.
//
// The test is deliberately loose: the topic must start with "device/" and
// contain "/{category}/{action}" anywhere after it.
func (Topics) IsDevice(topic, category, action string) bool {
	return strings.HasPrefix(topic, TopicPrefixDevice+"/") &&
		strings.Contains(topic, "/"+category+"/"+action)
}

// DeviceID extracts the numeric device ID from a device topic.
//
// Returns false when the topic has no "device/{n}/" prefix.
func (Topics) DeviceID(topic string) (int, bool) {
	rest, ok := strings.CutPrefix(topic, TopicPrefixDevice+"/")
	if !ok {
		return 0, false
	}
	idPart, _, found := strings.Cut(rest, "/")
	if !found {
		return 0, false
	}
	id, err := strconv.Atoi(idPart)
	if err != nil || id < 0 {
		return 0, false
	}
	return id, true
}
