// internal/config/normalize.go
package config

import "strings"

const (
	DefaultPollIntervalMs  = 5000
	DefaultTimeoutMs       = 500
	DefaultBaud            = 115200
	DefaultStatusTimeoutMs = 2000
	DefaultInletSensor     = 0x10
)

// Normalize applies post-validation normalization.
// It is allowed to mutate configuration.
// It MUST be called only after Validate().
func Normalize(cfg *Config) {
	if cfg == nil {
		return
	}
	c := &cfg.Chassis

	for i := range c.Transport.Ports {
		p := &c.Transport.Ports[i]
		if p.Baud == 0 {
			p.Baud = DefaultBaud
		}
		if p.TimeoutMs == 0 {
			p.TimeoutMs = DefaultTimeoutMs
		}
	}

	for i := range c.Blades {
		b := &c.Blades[i]

		// Normalize device_name:
		// - ASCII already validated
		// - Truncate to max 16 characters
		if len(b.DeviceName) > 16 {
			b.DeviceName = b.DeviceName[:16]
		}
	}

	if c.Sensors.Inlet.Enabled && c.Sensors.Inlet.Sensor == 0 {
		c.Sensors.Inlet.Sensor = DefaultInletSensor
	}

	if c.Poll.IntervalMs == 0 {
		c.Poll.IntervalMs = DefaultPollIntervalMs
	}
	if len(c.Poll.Sections) == 0 {
		c.Poll.Sections = append([]string(nil), SectionNames...)
	}
	for i, s := range c.Poll.Sections {
		c.Poll.Sections[i] = strings.ToLower(strings.TrimSpace(s))
	}

	if sm := c.StatusMemory; sm != nil {
		sm.Protocol = strings.ToLower(sm.Protocol)
		if sm.Protocol == "" {
			sm.Protocol = "modbus"
		}
		if sm.TimeoutMs == 0 {
			sm.TimeoutMs = DefaultStatusTimeoutMs
		}
	}
}
