package device

import "errors"

// Domain errors for the device package.
//
// These errors can be checked using errors.Is() for error handling:
//
//	if errors.Is(err, device.ErrInvalidReading) {
//	    // drop the message
//	}
var (
	// ErrInvalidDeviceID is returned when a device ID is negative.
	ErrInvalidDeviceID = errors.New("device: invalid device id")

	// ErrInvalidCommand is returned when command validation fails.
	ErrInvalidCommand = errors.New("device: invalid command")

	// ErrInvalidSettings is returned when settings validation fails.
	ErrInvalidSettings = errors.New("device: invalid settings")

	// ErrInvalidDuration is returned when a duration or time-of-day string
	// is not HH:MM:SS with optional fraction and Z suffix.
	ErrInvalidDuration = errors.New("device: invalid duration")

	// ErrInvalidReading is returned when a reading payload fails schema
	// validation or cannot be decoded.
	ErrInvalidReading = errors.New("device: invalid reading")

	// ErrReadingNotFound is returned when a device has no stored readings.
	ErrReadingNotFound = errors.New("device: reading not found")

	// ErrSettingsNotFound is returned when no settings were recorded for a device.
	ErrSettingsNotFound = errors.New("device: settings not found")

	// ErrStoreClosed is returned when the settings store is used after Close.
	ErrStoreClosed = errors.New("device: settings store closed")
)
