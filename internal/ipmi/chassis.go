// internal/ipmi/chassis.go
package ipmi

import "encoding/binary"

// Chassis network function commands.
const (
	CmdGetChassisStatus byte = 0x01
	CmdChassisControl   byte = 0x02
)

// Storage network function SEL commands.
const CmdGetSELInfo byte = 0x40

type GetChassisStatusRequest struct{}

func (GetChassisStatusRequest) NetFn() NetFn  { return NetFnChassis }
func (GetChassisStatusRequest) Command() byte { return CmdGetChassisStatus }
func (GetChassisStatusRequest) Data() []byte  { return nil }

type GetChassisStatusResponse struct {
	Status
	PowerState     byte
	LastPowerEvent byte
	MiscState      byte
	FrontPanel     byte
}

func (r *GetChassisStatusResponse) Unmarshal(data []byte) error {
	if err := need(data, 3, "chassis status"); err != nil {
		return err
	}
	r.PowerState = data[0]
	r.LastPowerEvent = data[1]
	r.MiscState = data[2]
	if len(data) > 3 {
		r.FrontPanel = data[3]
	}
	return nil
}

// PowerOn reports system power.
func (r *GetChassisStatusResponse) PowerOn() bool { return r.PowerState&0x01 != 0 }

// PowerFault reports a main power subsystem fault.
func (r *GetChassisStatusResponse) PowerFault() bool { return r.PowerState&0x08 != 0 }

// IdentifyOn reports the chassis identify state (bits 5:4 of misc state).
func (r *GetChassisStatusResponse) IdentifyOn() bool { return (r.MiscState>>4)&0x03 != 0 }

// ControlAction is the Chassis Control request byte.
type ControlAction byte

const (
	ControlPowerOff   ControlAction = 0x00
	ControlPowerOn    ControlAction = 0x01
	ControlPowerCycle ControlAction = 0x02
	ControlHardReset  ControlAction = 0x03
	ControlSoftOff    ControlAction = 0x05
)

type ChassisControlRequest struct {
	Action ControlAction
}

func (ChassisControlRequest) NetFn() NetFn   { return NetFnChassis }
func (ChassisControlRequest) Command() byte  { return CmdChassisControl }
func (r ChassisControlRequest) Data() []byte { return []byte{byte(r.Action)} }

type GetSELInfoRequest struct{}

func (GetSELInfoRequest) NetFn() NetFn  { return NetFnStorage }
func (GetSELInfoRequest) Command() byte { return CmdGetSELInfo }
func (GetSELInfoRequest) Data() []byte  { return nil }

type GetSELInfoResponse struct {
	Status
	Version     byte
	Entries     uint16
	FreeBytes   uint16
	LastAdd     uint32
	LastErase   uint32
	OpSupported byte
}

func (r *GetSELInfoResponse) Unmarshal(data []byte) error {
	if err := need(data, 14, "sel info"); err != nil {
		return err
	}
	r.Version = data[0]
	r.Entries = binary.LittleEndian.Uint16(data[1:3])
	r.FreeBytes = binary.LittleEndian.Uint16(data[3:5])
	r.LastAdd = binary.LittleEndian.Uint32(data[5:9])
	r.LastErase = binary.LittleEndian.Uint32(data[9:13])
	r.OpSupported = data[13]
	return nil
}
