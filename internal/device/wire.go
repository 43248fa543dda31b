package device

// CommandPayload is the command as published to a device.
//
// Firmware looks keys up by their exact PascalCase names ("WaterFor"),
// so the wire form does not share the API's camelCase tags.
type CommandPayload struct {
	DeviceID      int    `json:"DeviceId"`
	WaterFor      string `json:"WaterFor"`
	IlluminateFor string `json:"IlluminateFor"`
}

// SettingsPayload is the settings envelope as published to a device.
// Firmware only applies keys it already holds, matched exactly.
type SettingsPayload struct {
	DeviceID          int     `json:"DeviceId"`
	MaxHumidity       float64 `json:"MaxHumidity"`
	MinHumidity       float64 `json:"MinHumidity"`
	MaxBrightness     float64 `json:"MaxBrightness"`
	MinBrightness     float64 `json:"MinBrightness"`
	BrightPeriodStart string  `json:"BrightPeriodStart"`
	BrightPeriodEnd   string  `json:"BrightPeriodEnd"`
}

// Payload returns the wire form of c.
func (c *Command) Payload() CommandPayload {
	return CommandPayload(*c)
}

// Payload returns the wire form of s.
func (s *Settings) Payload() SettingsPayload {
	return SettingsPayload(*s)
}
