// internal/blade/hwstatus.go
package blade

import (
	"fmt"
	"sort"

	"github.com/google/uuid"

	"github.com/tamzrod/chassis-manager/internal/ipmi"
	"github.com/tamzrod/chassis-manager/internal/transport"
)

// Sections selects the parts of a compute blade status to collect.
type Sections struct {
	Processors       bool
	Memory           bool
	PCIe             bool
	ManagementEngine bool
	Temperature      bool
	Power            bool
	FRU              bool
	Misc             bool
	Disk             bool
}

// AllSections selects everything.
func AllSections() Sections {
	return Sections{
		Processors:       true,
		Memory:           true,
		PCIe:             true,
		ManagementEngine: true,
		Temperature:      true,
		Power:            true,
		FRU:              true,
		Misc:             true,
		Disk:             true,
	}
}

// bladeFRU is the FRU device id of the blade board.
const bladeFRU byte = 0x00

// ---- result types ----

type ProcessorStatus struct {
	Instance                      byte `json:"instance" yaml:"instance"`
	ipmi.GetProcessorInfoResponse `yaml:",inline"`
}

type MemoryStatus struct {
	Slot                       int  `json:"slot" yaml:"slot"`
	Present                    bool `json:"present" yaml:"present"`
	ipmi.GetMemoryInfoResponse `yaml:",inline"`
}

type PCIeStatus struct {
	Slot                     int `json:"slot" yaml:"slot"`
	ipmi.GetPCIeInfoResponse `yaml:",inline"`
}

type ManagementEngineStatus struct {
	Completion      ipmi.CompletionCode `json:"completion_code" yaml:"completion_code"`
	FirmwareVersion string              `json:"firmware_version,omitempty" yaml:"firmware_version,omitempty"`
	NMVersion       string              `json:"nm_version,omitempty" yaml:"nm_version,omitempty"`
	NMFirmware      string              `json:"nm_firmware,omitempty" yaml:"nm_firmware,omitempty"`
}

type PowerStatus struct {
	Completion      ipmi.CompletionCode  `json:"completion_code" yaml:"completion_code"`
	CurrentWatts    uint16               `json:"current_watts" yaml:"current_watts"`
	MinimumWatts    uint16               `json:"minimum_watts" yaml:"minimum_watts"`
	MaximumWatts    uint16               `json:"maximum_watts" yaml:"maximum_watts"`
	AverageWatts    uint16               `json:"average_watts" yaml:"average_watts"`
	LimitSet        bool                 `json:"limit_set" yaml:"limit_set"`
	LimitWatts      uint16               `json:"limit_watts,omitempty" yaml:"limit_watts,omitempty"`
	LimitActive     bool                 `json:"limit_active" yaml:"limit_active"`
	ExceptionAction ipmi.ExceptionAction `json:"exception_action" yaml:"exception_action"`
	Sensors         []SensorReading      `json:"sensors,omitempty" yaml:"sensors,omitempty"`
}

type FRUStatus struct {
	Completion        ipmi.CompletionCode `json:"completion_code" yaml:"completion_code"`
	Error             string              `json:"error,omitempty" yaml:"error,omitempty"`
	ipmi.FRUInventory `yaml:",inline"`
}

type MiscStatus struct {
	Completion ipmi.CompletionCode `json:"completion_code" yaml:"completion_code"`
	PowerOn    bool                `json:"power_on" yaml:"power_on"`
	PowerFault bool                `json:"power_fault" yaml:"power_fault"`
	IdentifyOn bool                `json:"identify_on" yaml:"identify_on"`
	Fan        *SensorReading      `json:"fan,omitempty" yaml:"fan,omitempty"`
}

type DiskInfoStatus struct {
	Disk                     byte `json:"disk" yaml:"disk"`
	ipmi.GetDiskInfoResponse `yaml:",inline"`
}

// HardwareStatus is the aggregate status of one blade. Sections that were
// not collected are empty.
type HardwareStatus struct {
	Slot         byte                `json:"slot" yaml:"slot"`
	Class        string              `json:"class" yaml:"class"`
	GUID         uuid.UUID           `json:"guid" yaml:"guid"`
	Completion   ipmi.CompletionCode `json:"completion_code" yaml:"completion_code"`
	PartialError ipmi.CompletionCode `json:"partial_error" yaml:"partial_error"`

	Processors       []ProcessorStatus       `json:"processors,omitempty" yaml:"processors,omitempty"`
	Memory           []MemoryStatus          `json:"memory,omitempty" yaml:"memory,omitempty"`
	PCIe             []PCIeStatus            `json:"pcie,omitempty" yaml:"pcie,omitempty"`
	ManagementEngine *ManagementEngineStatus `json:"management_engine,omitempty" yaml:"management_engine,omitempty"`
	Temperatures     []SensorReading         `json:"temperatures,omitempty" yaml:"temperatures,omitempty"`
	Power            *PowerStatus            `json:"power,omitempty" yaml:"power,omitempty"`
	FRU              *FRUStatus              `json:"fru,omitempty" yaml:"fru,omitempty"`
	Misc             *MiscStatus             `json:"misc,omitempty" yaml:"misc,omitempty"`
	Disks            []SensorReading         `json:"disks,omitempty" yaml:"disks,omitempty"`

	// storage blades
	DiskChannel byte              `json:"disk_channel,omitempty" yaml:"disk_channel,omitempty"`
	DiskStatus  []ipmi.DiskStatus `json:"disk_status,omitempty" yaml:"disk_status,omitempty"`
	DiskInfo    []DiskInfoStatus  `json:"disk_info,omitempty" yaml:"disk_info,omitempty"`
}

// note records a failed item. The last failure wins.
func (h *HardwareStatus) note(st ipmi.Status) {
	if st.OK() {
		return
	}
	h.PartialError = st.Code
}

// ------------------------------------------------------------
// Aggregation
// ------------------------------------------------------------

// HardwareStatus classifies the blade and collects the selected sections.
// Item failures are recorded in PartialError and never abort the collection.
func (c *Client) HardwareStatus(sections Sections, pri transport.Priority) *HardwareStatus {
	c.xmu.Lock()
	defer c.xmu.Unlock()

	hs := &HardwareStatus{Slot: c.id, Class: ipmi.ClassUnknown.String()}

	var guid ipmi.GetSystemGUIDResponse
	c.dispatchLocked(ipmi.GetSystemGUIDRequest{}, &guid, pri, true)
	if !guid.OK() {
		hs.Completion = guid.Code
		return hs
	}
	c.setIdentity(guid.GUID)
	hs.GUID = guid.GUID

	var caps ipmi.GetChannelAuthCapabilitiesResponse
	c.dispatchLocked(ipmi.GetChannelAuthCapabilitiesRequest{Privilege: ipmi.PrivilegeAdmin}, &caps, pri, true)
	if !caps.OK() {
		hs.Completion = caps.Code
		return hs
	}
	class := caps.Class()
	c.setClass(class)
	hs.Class = class.String()

	switch class {
	case ipmi.ClassCompute:
		c.computeStatusLocked(hs, sections, pri)
	case ipmi.ClassStorage:
		c.storageStatusLocked(hs, pri)
	default:
		hs.Completion = ipmi.CCInvalidDataField
	}
	return hs
}

func (c *Client) computeStatusLocked(hs *HardwareStatus, s Sections, pri transport.Priority) {
	if s.Processors {
		c.processorsLocked(hs, pri)
	}
	if s.Memory {
		c.memoryLocked(hs, pri)
	}
	if s.PCIe {
		c.pcieLocked(hs, pri)
	}
	if s.ManagementEngine {
		c.managementEngineLocked(hs, pri)
	}
	if s.Temperature {
		hs.Temperatures = c.sensorsOfTypeLocked(hs, pri, ipmi.SensorTemperature)
	}
	if s.Power {
		c.powerLocked(hs, pri)
	}
	if s.FRU {
		hs.FRU = c.fruStatusLocked(hs, pri)
	}
	if s.Misc {
		c.miscLocked(hs, pri)
	}
	if s.Disk {
		hs.Disks = c.sensorsOfTypeLocked(hs, pri, ipmi.SensorDriveSlot)
	}
}

func (c *Client) storageStatusLocked(hs *HardwareStatus, pri transport.Priority) {
	var ds ipmi.GetDiskStatusResponse
	c.dispatchLocked(ipmi.GetDiskStatusRequest{}, &ds, pri, true)
	hs.note(ds.Status)
	if ds.OK() {
		hs.DiskChannel = ds.Channel
		hs.DiskStatus = ds.Disks
		for _, d := range ds.Disks {
			var di ipmi.GetDiskInfoResponse
			c.dispatchLocked(ipmi.GetDiskInfoRequest{Channel: ds.Channel, Disk: d.Number}, &di, pri, true)
			hs.note(di.Status)
			hs.DiskInfo = append(hs.DiskInfo, DiskInfoStatus{Disk: d.Number, GetDiskInfoResponse: di})
		}
	}
	hs.FRU = c.fruStatusLocked(hs, pri)
}

// ---- compute sections ----

func (c *Client) processorsLocked(hs *HardwareStatus, pri transport.Priority) {
	if st := c.ensureSDRLocked(pri); !st.OK() {
		hs.note(st)
		return
	}

	instances := make(map[byte]bool)
	for _, rec := range c.sensors.all() {
		if rec.EntityID == ipmi.EntityProcessor {
			instances[rec.EntityInstance&0x7F] = true
		}
	}
	order := make([]byte, 0, len(instances))
	for inst := range instances {
		order = append(order, inst)
	}
	sort.Slice(order, func(i, j int) bool { return order[i] < order[j] })

	for _, inst := range order {
		var r ipmi.GetProcessorInfoResponse
		c.dispatchLocked(ipmi.GetProcessorInfoRequest{Index: inst}, &r, pri, true)
		hs.note(r.Status)
		hs.Processors = append(hs.Processors, ProcessorStatus{Instance: inst, GetProcessorInfoResponse: r})
	}
}

func (c *Client) memoryLocked(hs *HardwareStatus, pri transport.Priority) {
	var idx ipmi.GetMemoryIndexResponse
	c.dispatchLocked(ipmi.GetMemoryInfoRequest{Index: 0}, &idx, pri, true)
	if !idx.OK() {
		hs.note(idx.Status)
		return
	}

	for slot := 1; slot <= int(idx.SlotCount); slot++ {
		m := MemoryStatus{Slot: slot, Present: idx.Present(slot)}
		if !m.Present {
			m.State = ipmi.StateNotPresent
			hs.Memory = append(hs.Memory, m)
			continue
		}
		c.dispatchLocked(ipmi.GetMemoryInfoRequest{Index: byte(slot)}, &m.GetMemoryInfoResponse, pri, true)
		hs.note(m.Status)
		hs.Memory = append(hs.Memory, m)
	}
}

func (c *Client) pcieLocked(hs *HardwareStatus, pri transport.Priority) {
	var idx ipmi.GetPCIeIndexResponse
	c.dispatchLocked(ipmi.GetPCIeInfoRequest{Index: 0}, &idx, pri, true)
	if !idx.OK() {
		hs.note(idx.Status)
		return
	}

	for slot := 1; slot <= ipmi.PCIeSlots; slot++ {
		if !idx.Present(slot) {
			continue
		}
		p := PCIeStatus{Slot: slot}
		c.dispatchLocked(ipmi.GetPCIeInfoRequest{Index: byte(slot)}, &p.GetPCIeInfoResponse, pri, true)
		hs.note(p.Status)
		hs.PCIe = append(hs.PCIe, p)
	}
}

func (c *Client) managementEngineLocked(hs *HardwareStatus, pri transport.Priority) {
	me := &ManagementEngineStatus{}
	hs.ManagementEngine = me

	var dev ipmi.GetDeviceIDResponse
	c.bridgeLocked(ipmi.ChannelME, ipmi.MEAddress, ipmi.GetDeviceIDRequest{}, &dev, pri)
	hs.note(dev.Status)
	me.Completion = dev.Code
	if dev.OK() {
		me.FirmwareVersion = dev.FirmwareVersion()
	}

	var nm ipmi.GetNMVersionResponse
	c.bridgeLocked(ipmi.ChannelME, ipmi.MEAddress, ipmi.GetNMVersionRequest{}, &nm, pri)
	hs.note(nm.Status)
	if !nm.OK() {
		me.Completion = nm.Code
		return
	}
	me.NMVersion = nm.VersionString()
	me.NMFirmware = fmtVersion(nm.FirmwareMajor, nm.FirmwareMinor)
}

func (c *Client) powerLocked(hs *HardwareStatus, pri transport.Priority) {
	p := &PowerStatus{}
	hs.Power = p

	var rd ipmi.GetPowerReadingResponse
	c.dispatchLocked(ipmi.GetPowerReadingRequest{}, &rd, pri, true)
	hs.note(rd.Status)
	p.Completion = rd.Code
	if rd.OK() {
		p.CurrentWatts = rd.Current
		p.MinimumWatts = rd.Minimum
		p.MaximumWatts = rd.Maximum
		p.AverageWatts = rd.Average
		p.LimitActive = rd.Active
	}

	var lim ipmi.GetPowerLimitResponse
	c.dispatchLocked(ipmi.GetPowerLimitRequest{}, &lim, pri, true)
	switch {
	case lim.OK():
		p.LimitSet = true
		p.LimitWatts = lim.LimitWatts
		p.ExceptionAction = lim.Action
	case lim.Transport == ipmi.TransportSuccess && lim.Code == ipmi.CCNoPowerLimit:
		// no limit configured
	default:
		hs.note(lim.Status)
	}

	for _, t := range []byte{ipmi.SensorVoltage, ipmi.SensorCurrent, ipmi.SensorPowerSupply} {
		p.Sensors = append(p.Sensors, c.sensorsOfTypeLocked(hs, pri, t)...)
	}
}

func (c *Client) fruStatusLocked(hs *HardwareStatus, pri transport.Priority) *FRUStatus {
	inv, st, err := c.fruLocked(bladeFRU, pri)
	hs.note(st)
	f := &FRUStatus{Completion: st.Code, FRUInventory: inv}
	if err != nil {
		c.log.Warn().Err(err).Msg("fru parse")
		f.Error = err.Error()
	}
	return f
}

func (c *Client) miscLocked(hs *HardwareStatus, pri transport.Priority) {
	m := &MiscStatus{}
	hs.Misc = m

	var cs ipmi.GetChassisStatusResponse
	c.dispatchLocked(ipmi.GetChassisStatusRequest{}, &cs, pri, true)
	hs.note(cs.Status)
	m.Completion = cs.Code
	if cs.OK() {
		m.PowerOn = cs.PowerOn()
		m.PowerFault = cs.PowerFault()
		m.IdentifyOn = cs.IdentifyOn()
	}

	fan := c.sensorReadingLocked(primarySensor, pri, false)
	hs.note(fan.Status)
	m.Fan = &fan
}

// sensorsOfTypeLocked reads every BMC-owned repository sensor of type t.
func (c *Client) sensorsOfTypeLocked(hs *HardwareStatus, pri transport.Priority, t byte) []SensorReading {
	if st := c.ensureSDRLocked(pri); !st.OK() {
		hs.note(st)
		return nil
	}

	var out []SensorReading
	for _, rec := range c.sensors.all() {
		if rec.SensorType != t || rec.OwnerID != ipmi.BMCAddress {
			continue
		}
		r := c.sensorReadingLocked(rec.Number, pri, true)
		hs.note(r.Status)
		out = append(out, r)
	}
	return out
}

func fmtVersion(major, minor byte) string {
	return fmt.Sprintf("%d.%02X", major, minor)
}
