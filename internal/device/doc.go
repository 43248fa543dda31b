// Package device defines the messages exchanged with greenhouse devices
// and the stores that keep what they report.
//
// Three payloads travel over the broker:
//
//   - Command: one-shot watering and lighting durations sent to a device
//   - Settings: the humidity and brightness envelope a device regulates to
//   - Reading: a sensor sample published by a device
//
// Commands and settings flow outward and are never persisted here.
// Readings are validated against a JSON schema, stamped and inserted into
// the device_readings table by ReadingRepository. The most recent
// settings reported by each device are kept in a bbolt file by
// SettingsStore.
//
// # JSON
//
// Wire names are camelCase. Decoding is case-insensitive, so firmware
// that publishes "DeviceId" or "LightIntensity" decodes identically.
package device
