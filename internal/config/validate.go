// internal/config/validate.go
package config

import (
	"fmt"
	"strings"

	"github.com/tamzrod/chassis-manager/internal/blade"
	"github.com/tamzrod/chassis-manager/internal/ipmi"
)

// SectionNames are the accepted poll.sections entries.
var SectionNames = []string{
	"processors",
	"memory",
	"pcie",
	"management_engine",
	"temperature",
	"power",
	"fru",
	"misc",
	"disk",
}

// Validate checks configuration correctness.
// It performs declarative validation only.
// It MUST NOT mutate configuration.
func Validate(cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("config: nil")
	}
	c := &cfg.Chassis

	// ------------------------------------------------------------
	// TRANSPORT: every slot is served by exactly one port
	// ------------------------------------------------------------

	if len(c.Transport.Ports) == 0 {
		return fmt.Errorf("transport: at least one port is required")
	}

	portOf := make(map[uint8]string)
	for _, p := range c.Transport.Ports {
		if p.Address == "" {
			return fmt.Errorf("transport: port address is required")
		}
		if p.Baud < 0 || p.TimeoutMs < 0 {
			return fmt.Errorf("transport: port %q: baud and timeout_ms must not be negative", p.Address)
		}
		for _, n := range p.Slots {
			if n < 0 || n > 0xFF {
				return fmt.Errorf("transport: port %q: slot %d out of range", p.Address, n)
			}
			s := uint8(n)
			if prev, exists := portOf[s]; exists {
				return fmt.Errorf(
					"transport: slot %d served by ports %q and %q",
					s,
					prev,
					p.Address,
				)
			}
			portOf[s] = p.Address
		}
	}

	// ------------------------------------------------------------
	// BLADES
	// ------------------------------------------------------------

	if len(c.Blades) == 0 {
		return fmt.Errorf("blades: at least one blade is required")
	}

	seen := make(map[uint8]bool)
	statusOwner := make(map[uint16]uint8)

	for _, b := range c.Blades {
		if seen[b.Slot] {
			return fmt.Errorf("blade slot %d: duplicate", b.Slot)
		}
		seen[b.Slot] = true

		if _, ok := portOf[b.Slot]; !ok {
			return fmt.Errorf("blade slot %d: no transport port serves this slot", b.Slot)
		}

		// device_name sanity (ASCII only)
		for i := 0; i < len(b.DeviceName); i++ {
			if b.DeviceName[i] > 0x7F {
				return fmt.Errorf(
					"blade slot %d: device_name must contain ASCII characters only",
					b.Slot,
				)
			}
		}

		// status is opt-in
		if b.StatusSlot == nil {
			continue
		}
		if c.StatusMemory == nil {
			return fmt.Errorf("blade slot %d: status_slot is set but status_memory is not configured", b.Slot)
		}

		slot := *b.StatusSlot
		if prev, exists := statusOwner[slot]; exists {
			return fmt.Errorf(
				"status_slot collision: slot=%d used by blades %d and %d",
				slot,
				prev,
				b.Slot,
			)
		}
		statusOwner[slot] = b.Slot
	}

	// ------------------------------------------------------------
	// CREDENTIALS
	// ------------------------------------------------------------

	if _, err := ipmi.ParseAuthType(c.Credentials.AuthType); err != nil {
		return fmt.Errorf("credentials: %w", err)
	}

	// ------------------------------------------------------------
	// SENSORS
	// ------------------------------------------------------------

	if c.Sensors.Inlet.Enabled && len(c.Sensors.Inlet.Entries) == 0 {
		return fmt.Errorf("sensors.inlet: enabled without entries")
	}
	type model struct {
		mfr  uint32
		prod uint16
	}
	models := make(map[model]bool)
	for _, e := range c.Sensors.Inlet.Entries {
		k := model{e.ManufacturerID, e.ProductID}
		if models[k] {
			return fmt.Errorf(
				"sensors.inlet: duplicate entry manufacturer_id=0x%06X product_id=0x%04X",
				e.ManufacturerID,
				e.ProductID,
			)
		}
		models[k] = true
	}

	for _, e := range c.Sensors.Events {
		if _, err := blade.ParseEventClass(e.Class); err != nil {
			return fmt.Errorf("sensors.events: %w", err)
		}
		if e.Ordinal < 0 || e.Ordinal > 14 {
			return fmt.Errorf("sensors.events: ordinal %d out of range 0-14", e.Ordinal)
		}
	}

	if id := c.Sensors.PrimaryRecordID; id != nil && *id == ipmi.LastRecordID {
		return fmt.Errorf("sensors.primary_record_id: 0x%04X is the end-of-repository marker", *id)
	}

	// ------------------------------------------------------------
	// POLL
	// ------------------------------------------------------------

	if c.Poll.IntervalMs < 0 {
		return fmt.Errorf("poll: interval_ms must not be negative")
	}
	for _, s := range c.Poll.Sections {
		if !knownSection(s) {
			return fmt.Errorf("poll: unknown section %q", s)
		}
	}

	// ------------------------------------------------------------
	// STATUS MEMORY
	// ------------------------------------------------------------

	if sm := c.StatusMemory; sm != nil {
		if sm.Endpoint == "" {
			return fmt.Errorf("status_memory: endpoint is required")
		}
		switch strings.ToLower(sm.Protocol) {
		case "", "modbus", "ingest":
		default:
			return fmt.Errorf("status_memory: unknown protocol %q", sm.Protocol)
		}
	}

	return nil
}

func knownSection(s string) bool {
	s = strings.ToLower(strings.TrimSpace(s))
	for _, n := range SectionNames {
		if n == s {
			return true
		}
	}
	return false
}
