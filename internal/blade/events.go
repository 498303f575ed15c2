// internal/blade/events.go
package blade

import (
	"fmt"
	"strings"

	"github.com/tamzrod/chassis-manager/internal/ipmi"
)

// EventClass selects which part of the event string table a reading uses.
type EventClass string

const (
	ClassNone           EventClass = ""
	ClassThreshold      EventClass = "threshold"
	ClassDiscrete       EventClass = "discrete"
	ClassSensorSpecific EventClass = "sensor_specific"
	ClassOEM            EventClass = "oem"
)

// ParseEventClass accepts the config spellings of EventClass.
func ParseEventClass(s string) (EventClass, error) {
	switch c := EventClass(strings.ToLower(strings.TrimSpace(s))); c {
	case ClassThreshold, ClassDiscrete, ClassSensorSpecific, ClassOEM:
		return c, nil
	default:
		return ClassNone, fmt.Errorf("blade: unknown event class %q", s)
	}
}

// EventState is the decoded event offset of a reading.
type EventState int

const (
	EventStateUnspecified EventState = -1
	EventStateUnavailable EventState = -2
)

// EventKey indexes the event string table.
type EventKey struct {
	Class   EventClass
	Code    byte
	Ordinal EventState
}

// EventStrings maps decoded states to display text. Threshold texts may
// carry {trigger} and {threshold} placeholders.
type EventStrings map[EventKey]string

// placeholder text for values only event-log entries carry
const notAvailable = "unavailable"

var thresholdText = [...]string{
	"Lower Non-Critical: reading {trigger}, threshold {threshold}",
	"Lower Critical: reading {trigger}, threshold {threshold}",
	"Lower Non-Recoverable: reading {trigger}, threshold {threshold}",
	"Upper Non-Critical: reading {trigger}, threshold {threshold}",
	"Upper Critical: reading {trigger}, threshold {threshold}",
	"Upper Non-Recoverable: reading {trigger}, threshold {threshold}",
}

// DefaultEventStrings covers thresholds and the sensor-specific offsets
// the aggregator reports on.
func DefaultEventStrings() EventStrings {
	t := EventStrings{}
	for i, s := range thresholdText {
		t[EventKey{ClassThreshold, ipmi.ReadingThreshold, EventState(i)}] = s
	}

	specific := map[byte][]string{
		ipmi.SensorProcessor: {
			"IERR", "Thermal Trip", "FRB1/BIST failure", "FRB2/Hang in POST failure",
			"FRB3/Processor startup failure", "Configuration Error", "Uncorrectable CPU-complex error",
			"Processor Presence detected", "Processor disabled", "Terminator Presence Detected",
			"Processor Automatically Throttled", "Machine Check Exception",
		},
		ipmi.SensorPowerSupply: {
			"Presence detected", "Power Supply Failure detected", "Predictive Failure",
			"Power Supply input lost (AC/DC)", "Power Supply input lost or out-of-range",
			"Power Supply input out-of-range, but present", "Configuration error",
		},
		ipmi.SensorMemory: {
			"Correctable ECC", "Uncorrectable ECC", "Parity", "Memory Scrub Failed",
			"Memory Device Disabled", "Correctable ECC logging limit reached",
			"Presence detected", "Configuration error", "Spare", "Memory Automatically Throttled",
			"Critical Overtemperature",
		},
		ipmi.SensorDriveSlot: {
			"Drive Presence", "Drive Fault", "Predictive Failure", "Hot Spare",
			"Consistency Check In Progress", "In Critical Array", "In Failed Array",
			"Rebuild/Remap in progress", "Rebuild/Remap Aborted",
		},
	}
	for code, texts := range specific {
		for i, s := range texts {
			t[EventKey{ClassSensorSpecific, code, EventState(i)}] = s
		}
	}

	// generic discrete: device presence and state asserted/deasserted
	t[EventKey{ClassDiscrete, 0x03, 0}] = "State Deasserted"
	t[EventKey{ClassDiscrete, 0x03, 1}] = "State Asserted"
	t[EventKey{ClassDiscrete, 0x08, 0}] = "Device Removed/Device Absent"
	t[EventKey{ClassDiscrete, 0x08, 1}] = "Device Inserted/Device Present"
	return t
}

// Merge returns a copy of t with every entry of over applied on top.
func (t EventStrings) Merge(over EventStrings) EventStrings {
	out := make(EventStrings, len(t)+len(over))
	for k, v := range t {
		out[k] = v
	}
	for k, v := range over {
		out[k] = v
	}
	return out
}

// Describe resolves the display text of a decoded reading.
func (t EventStrings) Describe(class EventClass, code byte, state EventState) string {
	s, ok := t[EventKey{class, code, state}]
	if !ok {
		return ""
	}
	if class == ClassThreshold {
		s = strings.NewReplacer("{trigger}", notAvailable, "{threshold}", notAvailable).Replace(s)
	}
	return s
}

// classify returns the event class and the code used for the description
// lookup. Sensor-specific readings are looked up by sensor type.
func classify(readingType, sensorType byte) (EventClass, byte) {
	switch {
	case readingType == ipmi.ReadingThreshold:
		return ClassThreshold, readingType
	case readingType >= ipmi.ReadingGenericFirst && readingType <= ipmi.ReadingGenericLast:
		return ClassDiscrete, readingType
	case readingType == ipmi.ReadingSensorSpecific:
		return ClassSensorSpecific, sensorType
	case readingType >= ipmi.ReadingOEMFirst && readingType <= ipmi.ReadingOEMLast:
		return ClassOEM, readingType
	default:
		return ClassNone, readingType
	}
}

// decodeThreshold returns the highest asserted comparison bit (0-5).
func decodeThreshold(state byte) EventState {
	for bit := 5; bit >= 0; bit-- {
		if state&(1<<uint(bit)) != 0 {
			return EventState(bit)
		}
	}
	return EventStateUnspecified
}

// decodeDiscrete maps bits 0-7 of the first state byte to ordinals 0-7 and
// bits 0-6 of the second to 8-14. It returns every asserted ordinal and the
// highest one.
func decodeDiscrete(state, ext byte, hasExt bool) (EventState, []int) {
	var asserted []int
	for bit := 0; bit < 8; bit++ {
		if state&(1<<uint(bit)) != 0 {
			asserted = append(asserted, bit)
		}
	}
	if hasExt {
		for bit := 0; bit < 7; bit++ {
			if ext&(1<<uint(bit)) != 0 {
				asserted = append(asserted, 8+bit)
			}
		}
	}
	if len(asserted) == 0 {
		return EventStateUnspecified, nil
	}
	return EventState(asserted[len(asserted)-1]), asserted
}
