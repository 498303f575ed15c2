// internal/ipmi/oem.go
package ipmi

import (
	"encoding/binary"
	"fmt"
)

// Chassis OEM commands (NetFn 0x30).
const (
	CmdOEMGetProcessorInfo byte = 0x1B
	CmdOEMGetMemoryInfo    byte = 0x1D
	CmdOEMGetPCIeInfo      byte = 0x44
	CmdOEMGetDiskStatus    byte = 0xC4
	CmdOEMGetDiskInfo      byte = 0xC5
)

// Inventory entries report presence with these state bytes.
const (
	StatePresent    byte = 0x01
	StateNotPresent byte = 0xFF
)

// PCIeSlots is the number of slots covered by the PCIe presence bitmap.
const PCIeSlots = 16

// ------------------------------------------------------------
// Processor
// ------------------------------------------------------------

type GetProcessorInfoRequest struct {
	Index byte
}

func (GetProcessorInfoRequest) NetFn() NetFn   { return NetFnOEM }
func (GetProcessorInfoRequest) Command() byte  { return CmdOEMGetProcessorInfo }
func (r GetProcessorInfoRequest) Data() []byte { return []byte{r.Index} }

type GetProcessorInfoResponse struct {
	Status
	ProcessorType byte   `json:"type" yaml:"type"`
	FrequencyMHz  uint16 `json:"frequency_mhz" yaml:"frequency_mhz"`
	State         byte   `json:"state" yaml:"state"`
}

func (r *GetProcessorInfoResponse) Unmarshal(data []byte) error {
	if err := need(data, 4, "processor info"); err != nil {
		return err
	}
	r.ProcessorType = data[0]
	r.FrequencyMHz = binary.LittleEndian.Uint16(data[1:3])
	r.State = data[3]
	return nil
}

// ------------------------------------------------------------
// Memory
// ------------------------------------------------------------

type GetMemoryInfoRequest struct {
	Index byte
}

func (GetMemoryInfoRequest) NetFn() NetFn   { return NetFnOEM }
func (GetMemoryInfoRequest) Command() byte  { return CmdOEMGetMemoryInfo }
func (r GetMemoryInfoRequest) Data() []byte { return []byte{r.Index} }

// GetMemoryIndexResponse answers index 0: the slot count and presence bitmap.
type GetMemoryIndexResponse struct {
	Status
	SlotCount byte
	Presence  []byte
}

func (r *GetMemoryIndexResponse) Unmarshal(data []byte) error {
	if err := need(data, 1, "memory index"); err != nil {
		return err
	}
	r.SlotCount = data[0]
	r.Presence = append([]byte(nil), data[1:]...)
	if want := (int(r.SlotCount) + 7) / 8; len(r.Presence) < want {
		return fmt.Errorf("%w: memory presence needs %d bytes, got %d", ErrShortData, want, len(r.Presence))
	}
	return nil
}

// Present reports whether 1-based slot is populated.
func (r *GetMemoryIndexResponse) Present(slot int) bool {
	return bitSet(r.Presence, slot-1)
}

// GetMemoryInfoResponse answers a per-slot query.
type GetMemoryInfoResponse struct {
	Status
	MemoryType byte   `json:"type" yaml:"type"`
	SpeedMHz   uint16 `json:"speed_mhz" yaml:"speed_mhz"`
	SizeMB     uint16 `json:"size_mb" yaml:"size_mb"`
	Voltage    byte   `json:"voltage" yaml:"voltage"`
	State      byte   `json:"state" yaml:"state"`
}

func (r *GetMemoryInfoResponse) Unmarshal(data []byte) error {
	if err := need(data, 7, "memory info"); err != nil {
		return err
	}
	r.MemoryType = data[0]
	r.SpeedMHz = binary.LittleEndian.Uint16(data[1:3])
	r.SizeMB = binary.LittleEndian.Uint16(data[3:5])
	r.Voltage = data[5]
	r.State = data[6]
	return nil
}

// ------------------------------------------------------------
// PCIe
// ------------------------------------------------------------

type GetPCIeInfoRequest struct {
	Index byte
}

func (GetPCIeInfoRequest) NetFn() NetFn   { return NetFnOEM }
func (GetPCIeInfoRequest) Command() byte  { return CmdOEMGetPCIeInfo }
func (r GetPCIeInfoRequest) Data() []byte { return []byte{r.Index} }

// GetPCIeIndexResponse answers index 0 with the 16-slot presence bitmap.
type GetPCIeIndexResponse struct {
	Status
	Presence uint16
}

func (r *GetPCIeIndexResponse) Unmarshal(data []byte) error {
	if err := need(data, 2, "pcie index"); err != nil {
		return err
	}
	r.Presence = binary.LittleEndian.Uint16(data[0:2])
	return nil
}

// Present reports whether 1-based slot is populated.
func (r *GetPCIeIndexResponse) Present(slot int) bool {
	if slot < 1 || slot > PCIeSlots {
		return false
	}
	return r.Presence&(1<<uint(slot-1)) != 0
}

type GetPCIeInfoResponse struct {
	Status
	VendorID          uint16 `json:"vendor_id" yaml:"vendor_id"`
	DeviceID          uint16 `json:"device_id" yaml:"device_id"`
	SubsystemVendorID uint16 `json:"subsystem_vendor_id" yaml:"subsystem_vendor_id"`
	SubsystemID       uint16 `json:"subsystem_id" yaml:"subsystem_id"`
}

func (r *GetPCIeInfoResponse) Unmarshal(data []byte) error {
	if err := need(data, 8, "pcie info"); err != nil {
		return err
	}
	r.VendorID = binary.LittleEndian.Uint16(data[0:2])
	r.DeviceID = binary.LittleEndian.Uint16(data[2:4])
	r.SubsystemVendorID = binary.LittleEndian.Uint16(data[4:6])
	r.SubsystemID = binary.LittleEndian.Uint16(data[6:8])
	return nil
}

// ------------------------------------------------------------
// Storage blade disks
// ------------------------------------------------------------

// DiskHealth is bits 7:6 of a disk status byte.
type DiskHealth byte

const (
	DiskNormal DiskHealth = 0
	DiskFailed DiskHealth = 1
	DiskError  DiskHealth = 2
)

func (h DiskHealth) String() string {
	switch h {
	case DiskNormal:
		return "normal"
	case DiskFailed:
		return "failed"
	case DiskError:
		return "error"
	default:
		return "unknown"
	}
}

type DiskStatus struct {
	Number byte       `json:"number" yaml:"number"`
	Health DiskHealth `json:"health" yaml:"health"`
}

type GetDiskStatusRequest struct{}

func (GetDiskStatusRequest) NetFn() NetFn  { return NetFnOEM }
func (GetDiskStatusRequest) Command() byte { return CmdOEMGetDiskStatus }
func (GetDiskStatusRequest) Data() []byte  { return nil }

type GetDiskStatusResponse struct {
	Status
	Channel byte
	Disks   []DiskStatus
}

func (r *GetDiskStatusResponse) Unmarshal(data []byte) error {
	if err := need(data, 2, "disk status"); err != nil {
		return err
	}
	r.Channel = data[0]
	count := int(data[1])
	if err := need(data[2:], count, "disk status entries"); err != nil {
		return err
	}
	r.Disks = make([]DiskStatus, 0, count)
	for _, b := range data[2 : 2+count] {
		r.Disks = append(r.Disks, DiskStatus{Number: b & 0x3F, Health: DiskHealth(b >> 6)})
	}
	return nil
}

type GetDiskInfoRequest struct {
	Channel byte
	Disk    byte
}

func (GetDiskInfoRequest) NetFn() NetFn   { return NetFnOEM }
func (GetDiskInfoRequest) Command() byte  { return CmdOEMGetDiskInfo }
func (r GetDiskInfoRequest) Data() []byte { return []byte{r.Channel, r.Disk} }

type GetDiskInfoResponse struct {
	Status
	Unit       byte   `json:"unit" yaml:"unit"`
	Multiplier byte   `json:"multiplier" yaml:"multiplier"`
	Reading    uint16 `json:"reading" yaml:"reading"`
}

func (r *GetDiskInfoResponse) Unmarshal(data []byte) error {
	if err := need(data, 4, "disk info"); err != nil {
		return err
	}
	r.Unit = data[0]
	r.Multiplier = data[1]
	r.Reading = binary.LittleEndian.Uint16(data[2:4])
	return nil
}

func bitSet(bitmap []byte, bit int) bool {
	if bit < 0 || bit/8 >= len(bitmap) {
		return false
	}
	return bitmap[bit/8]&(1<<uint(bit%8)) != 0
}
