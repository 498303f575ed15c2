// internal/status/encode.go
package status

import "math"

// Encode converts a Snapshot into a full blade status block.
// Layout is protocol-locked. The device name slots are left zero.
// No IO. No side effects.
func Encode(s Snapshot) []uint16 {
	regs := make([]uint16, SlotsPerDevice)

	regs[SlotHealthCode] = s.Health
	regs[SlotLastErrorCode] = s.LastErrorCode
	regs[SlotSecondsInError] = s.SecondsInError
	regs[SlotConnectionState] = s.ConnectionState
	regs[SlotErrorCount] = s.ErrorCount
	regs[SlotBladeClass] = s.BladeClass
	regs[SlotInletTemp] = s.InletTemp
	regs[SlotPowerWatts] = s.PowerWatts

	return regs
}

// EncodeInlet converts degrees C to the signed tenths carried in SlotInletTemp.
// nil and out-of-range values encode as InletUnavailable.
func EncodeInlet(celsius *float64) uint16 {
	if celsius == nil {
		return InletUnavailable
	}
	v := math.Round(*celsius * 10)
	if math.IsNaN(v) || v <= math.MinInt16 || v > math.MaxInt16 {
		return InletUnavailable
	}
	return uint16(int16(v))
}

// DecodeInlet is the inverse of EncodeInlet.
func DecodeInlet(reg uint16) (float64, bool) {
	if reg == InletUnavailable {
		return 0, false
	}
	return float64(int16(reg)) / 10, true
}
