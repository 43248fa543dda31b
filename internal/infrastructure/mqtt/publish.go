package mqtt

import (
	"fmt"
)

// Maximum payload size for MQTT messages (1MB).
const maxPayloadSize = 1 << 20

// Publish sends one message to the specified topic and waits for the
// transport acknowledgment of the chosen QoS.
//
// Parameters:
//   - topic: The topic to publish to (e.g., "device/7/command/sendCommand")
//   - payload: The message payload (max 1MB)
//   - qos: Quality of Service level (0, 1, or 2)
//   - retained: Whether the broker should retain the message for new subscribers
//
// QoS Levels:
//   - 0: At most once (returns once the frame is written)
//   - 1: At least once (returns on PUBACK)
//   - 2: Exactly once (returns on PUBCOMP)
//
// Concurrent publishes do not block one another; paho serialises frames
// on the connection.
//
// Returns:
//   - error: nil on success, or wrapped error describing the failure
//
// Example:
//
//	topic := mqtt.Topics{}.Command(7)
//	err := link.Publish(topic, []byte(`{"deviceId":7}`), 1, false)
func (l *Link) Publish(topic string, payload []byte, qos byte, retained bool) error {
	if topic == "" {
		return ErrInvalidTopic
	}
	if qos > maxQoS {
		return ErrInvalidQoS
	}
	if len(payload) > maxPayloadSize {
		return fmt.Errorf("%w: payload size %d exceeds maximum %d bytes", ErrPublishFailed, len(payload), maxPayloadSize)
	}

	l.connMu.RLock()
	client := l.client
	l.connMu.RUnlock()

	if client == nil || !l.IsConnected() {
		return ErrNotConnected
	}

	token := client.Publish(topic, qos, retained, payload)
	if !token.WaitTimeout(defaultPublishTimeout) {
		return fmt.Errorf("%w: timeout after %v", ErrPublishFailed, defaultPublishTimeout)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("%w: %w", ErrPublishFailed, err)
	}

	return nil
}

// PublishString is a convenience method that publishes a text payload.
func (l *Link) PublishString(topic string, payload string, qos byte, retained bool) error {
	return l.Publish(topic, []byte(payload), qos, retained)
}
