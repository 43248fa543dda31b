package device

import "time"

// Command instructs a device to water and illuminate for fixed durations.
//
// Durations are "HH:MM:SS" strings, optionally with milliseconds and a
// trailing "Z" ("00:00:30.000Z"), exactly as the mobile app sends them.
type Command struct {
	DeviceID      int    `json:"deviceId"`
	WaterFor      string `json:"waterFor"`
	IlluminateFor string `json:"illuminateFor"`
}

// Settings is the regulation envelope a device maintains.
//
// BrightPeriodStart and BrightPeriodEnd are times of day in the same
// string format as Command durations.
type Settings struct {
	DeviceID          int     `json:"deviceId"`
	MaxHumidity       float64 `json:"maxHumidity"`
	MinHumidity       float64 `json:"minHumidity"`
	MaxBrightness     float64 `json:"maxBrightness"`
	MinBrightness     float64 `json:"minBrightness"`
	BrightPeriodStart string  `json:"brightPeriodStart"`
	BrightPeriodEnd   string  `json:"brightPeriodEnd"`
}

// Reading is one sensor sample published by a device.
//
// (Timestamp, DeviceID) identifies a reading. Readings are insert-only.
type Reading struct {
	DeviceID       int       `json:"deviceId"`
	Humidity       float32   `json:"humidity"`
	LightIntensity float32   `json:"lightIntensity"`
	Temperature    float32   `json:"temperature"`
	Timestamp      time.Time `json:"timestamp"`
}

// Stamp sets Timestamp to now (UTC) unless the device supplied one.
// A supplied timestamp is normalised to UTC.
func (r *Reading) Stamp(now time.Time) {
	if r.Timestamp.IsZero() {
		r.Timestamp = now.UTC()
		return
	}
	r.Timestamp = r.Timestamp.UTC()
}
