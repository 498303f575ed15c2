// internal/poller/types.go
package poller

import (
	"fmt"
	"time"

	"github.com/tamzrod/chassis-manager/internal/blade"
	"github.com/tamzrod/chassis-manager/internal/ipmi"
	"github.com/tamzrod/chassis-manager/internal/status"
)

// PollResult is a snapshot produced by one poll cycle.
type PollResult struct {
	Slot byte
	At   time.Time

	State      blade.ConnectionState
	ErrorCount uint16
	Status     *blade.HardwareStatus

	// RawErrorCode is the completion (or transport) code that failed the
	// cycle, or the partial error of a collected status. 0 means success.
	RawErrorCode uint16

	Err error // non-nil means the poll cycle failed
}

// CollectError reports a blade whose status could not be collected.
type CollectError struct {
	Slot   byte
	Status ipmi.Status
}

func (e *CollectError) Error() string {
	return fmt.Sprintf("poller: slot %d: %s", e.Slot, e.Status)
}

// Code returns the transport code when the exchange failed below the
// protocol, the completion code otherwise.
func (e *CollectError) Code() uint16 {
	if e.Status.Transport != ipmi.TransportSuccess {
		return uint16(e.Status.Transport)
	}
	return uint16(e.Status.Code)
}

// Observation reduces the result to what the status block carries.
// inlet is the sensor number whose reading is mirrored as inlet temperature.
func (r PollResult) Observation(inlet byte) status.Observation {
	o := status.Observation{
		Failed:          r.Err != nil,
		Code:            r.RawErrorCode,
		ConnectionState: r.State.Code(),
		ErrorCount:      r.ErrorCount,
	}
	hs := r.Status
	if hs == nil {
		return o
	}

	o.BladeClass = uint16(classByte(hs.Class))
	o.Disabled = !o.Failed && o.BladeClass == 0

	for _, t := range hs.Temperatures {
		if t.Number == inlet && t.Value != nil {
			v := *t.Value
			o.InletCelsius = &v
			break
		}
	}
	if hs.Power != nil && hs.Power.Completion == ipmi.CCSuccess {
		w := hs.Power.CurrentWatts
		o.PowerWatts = &w
	}
	return o
}

func classByte(name string) ipmi.BladeClass {
	switch name {
	case ipmi.ClassCompute.String():
		return ipmi.ClassCompute
	case ipmi.ClassStorage.String():
		return ipmi.ClassStorage
	default:
		return ipmi.ClassUnknown
	}
}
