package device

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// Validation constants.
const (
	maxHumidityPercent = 100
	nanoDigits         = 9

	// clockPattern matches HH:MM:SS with an optional fraction and UTC marker,
	// the forms produced by the mobile app ("00:01:00.000Z") and the user
	// server ("00:01:00").
	clockPattern = `^([01]\d|2[0-3]):([0-5]\d):([0-5]\d)(\.\d{1,6})?Z?$`

	// durationPattern is clockPattern without the 23h ceiling on hours.
	durationPattern = `^(\d{2,4}):([0-5]\d):([0-5]\d)(\.\d{1,6})?Z?$`
)

var (
	clockRegex    = regexp.MustCompile(clockPattern)
	durationRegex = regexp.MustCompile(durationPattern)
)

// ParseClock parses an "HH:MM:SS[.ffffff][Z]" time of day into the
// duration since midnight. Hours run 00..23.
//
// Example:
//
//	d, _ := device.ParseClock("06:30:00Z") // 6h30m
func ParseClock(s string) (time.Duration, error) {
	return parseHMS(clockRegex, s)
}

// ParseDuration parses a command duration in the same "HH:MM:SS[.ffffff][Z]"
// form as ParseClock, but allows more than 23 hours ("36:00:00").
//
// Example:
//
//	d, _ := device.ParseDuration("00:00:30.000Z") // 30s
func ParseDuration(s string) (time.Duration, error) {
	return parseHMS(durationRegex, s)
}

func parseHMS(re *regexp.Regexp, s string) (time.Duration, error) {
	m := re.FindStringSubmatch(s)
	if m == nil {
		return 0, fmt.Errorf("%w: %q", ErrInvalidDuration, s)
	}

	// The regex guarantees digits in range.
	hh, _ := strconv.Atoi(m[1]) //nolint:errcheck // matched \d{2,4}
	mm, _ := strconv.Atoi(m[2]) //nolint:errcheck // matched \d{2}
	ss, _ := strconv.Atoi(m[3]) //nolint:errcheck // matched \d{2}

	d := time.Duration(hh)*time.Hour + time.Duration(mm)*time.Minute + time.Duration(ss)*time.Second
	if m[4] != "" {
		// Right-pad the fraction to nanoseconds: ".5" -> 500000000.
		digits := m[4][1:]
		ns, _ := strconv.Atoi(digits + strings.Repeat("0", nanoDigits-len(digits))) //nolint:errcheck // matched \d{1,6}
		d += time.Duration(ns)
	}
	return d, nil
}

// ValidateDeviceID checks that id can address a device. Device 0 is valid.
func ValidateDeviceID(id int) error {
	if id < 0 {
		return fmt.Errorf("%w: %d", ErrInvalidDeviceID, id)
	}
	return nil
}

// ValidateCommand checks a command before it is published.
// Returns an error describing the first validation failure found.
func ValidateCommand(c *Command) error {
	if c == nil {
		return ErrInvalidCommand
	}
	if err := ValidateDeviceID(c.DeviceID); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidCommand, err)
	}
	if _, err := ParseDuration(c.WaterFor); err != nil {
		return fmt.Errorf("%w: waterFor: %w", ErrInvalidCommand, err)
	}
	if _, err := ParseDuration(c.IlluminateFor); err != nil {
		return fmt.Errorf("%w: illuminateFor: %w", ErrInvalidCommand, err)
	}
	return nil
}

// ValidateSettings checks a settings envelope before it is published.
// Returns an error describing the first validation failure found.
func ValidateSettings(s *Settings) error {
	if s == nil {
		return ErrInvalidSettings
	}
	if err := ValidateDeviceID(s.DeviceID); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidSettings, err)
	}

	if s.MinHumidity < 0 || s.MaxHumidity > maxHumidityPercent {
		return fmt.Errorf("%w: humidity must be within 0..%d", ErrInvalidSettings, maxHumidityPercent)
	}
	if s.MinHumidity > s.MaxHumidity {
		return fmt.Errorf("%w: minHumidity exceeds maxHumidity", ErrInvalidSettings)
	}
	if s.MinBrightness < 0 {
		return fmt.Errorf("%w: minBrightness must not be negative", ErrInvalidSettings)
	}
	if s.MinBrightness > s.MaxBrightness {
		return fmt.Errorf("%w: minBrightness exceeds maxBrightness", ErrInvalidSettings)
	}

	if _, err := ParseClock(s.BrightPeriodStart); err != nil {
		return fmt.Errorf("%w: brightPeriodStart: %w", ErrInvalidSettings, err)
	}
	if _, err := ParseClock(s.BrightPeriodEnd); err != nil {
		return fmt.Errorf("%w: brightPeriodEnd: %w", ErrInvalidSettings, err)
	}
	return nil
}
