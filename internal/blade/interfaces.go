// internal/blade/interfaces.go
package blade

import (
	"github.com/tamzrod/chassis-manager/internal/ipmi"
	"github.com/tamzrod/chassis-manager/internal/transport"
)

// Capability groups of a Client. Consumers depend on the narrowest one.

type SessionManager interface {
	Initialize() bool
	Logon(pri transport.Priority) bool
	Logoff()
	State() ConnectionState
	SessionID() uint32
}

type SensorReader interface {
	GetSensorReading(number byte, pri transport.Priority) SensorReading
	PrimarySensorReading(pri transport.Priority) SensorReading
	SDR(pri transport.Priority) ([]ipmi.SensorRecord, ipmi.Status)
	InvalidateSensors()
}

type BridgeCommander interface {
	Bridge(channel, target byte, inner ipmi.Request, resp ipmi.Response, pri transport.Priority)
}

type DCMICommander interface {
	PowerReading(pri transport.Priority) ipmi.GetPowerReadingResponse
	PowerLimit(pri transport.Priority) ipmi.GetPowerLimitResponse
	SetPowerLimit(req ipmi.SetPowerLimitRequest, pri transport.Priority) ipmi.Status
	ActivatePowerLimit(activate bool, pri transport.Priority) ipmi.Status
}

type NodeManagerCommander interface {
	MEDeviceID(pri transport.Priority) ipmi.GetDeviceIDResponse
	NMVersion(pri transport.Priority) ipmi.GetNMVersionResponse
}

type InventoryReader interface {
	HardwareStatus(sections Sections, pri transport.Priority) *HardwareStatus
	FRU(fruID byte, pri transport.Priority) (ipmi.FRUInventory, ipmi.Status, error)
}

var (
	_ SessionManager       = (*Client)(nil)
	_ SensorReader         = (*Client)(nil)
	_ BridgeCommander      = (*Client)(nil)
	_ DCMICommander        = (*Client)(nil)
	_ NodeManagerCommander = (*Client)(nil)
	_ InventoryReader      = (*Client)(nil)
)
