// internal/blade/hwstatus_test.go
package blade

import (
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tamzrod/chassis-manager/internal/ipmi"
	"github.com/tamzrod/chassis-manager/internal/transport"
)

// computeBMC serves a compute blade with four DIMM slots and one PCIe card.
func computeBMC() *fakeBMC {
	bmc := newFakeBMC(ipmi.ClassCompute)

	bmc.on(ipmi.NetFnOEM, ipmi.CmdOEMGetMemoryInfo, func(data []byte) (ipmi.CompletionCode, []byte) {
		switch data[0] {
		case 0:
			return ipmi.CCSuccess, []byte{4, 0x0F}
		case 3:
			return ipmi.CCInvalidDataField, nil
		default:
			out := make([]byte, 7)
			out[0] = 0x1A
			binary.LittleEndian.PutUint16(out[1:3], 2933)
			binary.LittleEndian.PutUint16(out[3:5], 32768)
			out[6] = ipmi.StatePresent
			return ipmi.CCSuccess, out
		}
	})
	bmc.on(ipmi.NetFnOEM, ipmi.CmdOEMGetPCIeInfo, func(data []byte) (ipmi.CompletionCode, []byte) {
		if data[0] == 0 {
			return ipmi.CCSuccess, []byte{0x04, 0x00} // slot 3
		}
		return ipmi.CCSuccess, []byte{0x86, 0x80, 0x37, 0x15, 0x86, 0x80, 0x01, 0x00}
	})
	bmc.on(ipmi.NetFnOEM, ipmi.CmdOEMGetProcessorInfo, func(data []byte) (ipmi.CompletionCode, []byte) {
		return ipmi.CCSuccess, []byte{0x01, 0x60, 0x09, ipmi.StatePresent}
	})
	bmc.on(ipmi.NetFnChassis, ipmi.CmdGetChassisStatus, func([]byte) (ipmi.CompletionCode, []byte) {
		return ipmi.CCSuccess, []byte{0x01, 0x00, 0x10}
	})
	bmc.on(ipmi.NetFnGroupExt, ipmi.CmdDCMIGetPowerReading, func([]byte) (ipmi.CompletionCode, []byte) {
		out := make([]byte, 18)
		out[0] = ipmi.DCMIGroup
		binary.LittleEndian.PutUint16(out[1:3], 210)
		binary.LittleEndian.PutUint16(out[7:9], 200)
		out[17] = 0x40
		return ipmi.CCSuccess, out
	})
	bmc.on(ipmi.NetFnGroupExt, ipmi.CmdDCMIGetPowerLimit, func([]byte) (ipmi.CompletionCode, []byte) {
		return ipmi.CCNoPowerLimit, []byte{ipmi.DCMIGroup}
	})
	bmc.serveSDR(
		fullSDR(sensorFan, ipmi.SensorFan, ipmi.ReadingThreshold, 0x1D, 1, 0x12, "Fan PWM"),
		fullSDR(sensorInlet, ipmi.SensorTemperature, ipmi.ReadingThreshold, 0x37, 1, 0x01, "Inlet Temp"),
		fullSDR(sensorCPU, ipmi.SensorProcessor, ipmi.ReadingSensorSpecific, ipmi.EntityProcessor, 1, 0x00, "CPU0 Status"),
		fullSDR(sensorCPU+1, ipmi.SensorProcessor, ipmi.ReadingSensorSpecific, ipmi.EntityProcessor, 2, 0x00, "CPU1 Status"),
	)
	bmc.serveSensor(sensorFan, ipmi.SensorFan, ipmi.ReadingThreshold, []byte{60, 0xC0, 0x00})
	bmc.serveSensor(sensorInlet, ipmi.SensorTemperature, ipmi.ReadingThreshold, []byte{24, 0xC0, 0x00})
	return bmc
}

func TestHardwareStatusMemorySlotFailureIsPartial(t *testing.T) {
	bmc := computeBMC()
	c := newTestClient(t, bmc, nil)

	hs := c.HardwareStatus(Sections{Memory: true, PCIe: true}, transport.PriorityLow)
	require.NotNil(t, hs)

	assert.Equal(t, ipmi.CCSuccess, hs.Completion)
	assert.Equal(t, ipmi.CCInvalidDataField, hs.PartialError)
	assert.Equal(t, ipmi.ClassCompute.String(), hs.Class)
	assert.Equal(t, guidA, hs.GUID)

	require.Len(t, hs.Memory, 4)
	for i, m := range hs.Memory {
		assert.Equal(t, i+1, m.Slot)
		assert.True(t, m.Present)
	}
	assert.Equal(t, ipmi.CCInvalidDataField, hs.Memory[2].Code)
	assert.Equal(t, ipmi.CCSuccess, hs.Memory[3].Code)
	assert.Equal(t, uint16(2933), hs.Memory[3].SpeedMHz)

	// the failure did not stop the sections after it
	require.Len(t, hs.PCIe, 1)
	assert.Equal(t, 3, hs.PCIe[0].Slot)
	assert.Equal(t, uint16(0x8086), hs.PCIe[0].VendorID)
}

func TestHardwareStatusAbsentMemoryPlaceholder(t *testing.T) {
	bmc := computeBMC()
	bmc.on(ipmi.NetFnOEM, ipmi.CmdOEMGetMemoryInfo, func(data []byte) (ipmi.CompletionCode, []byte) {
		if data[0] == 0 {
			return ipmi.CCSuccess, []byte{2, 0x01}
		}
		return ipmi.CCSuccess, []byte{0x1A, 0, 0, 0, 0, 0, ipmi.StatePresent}
	})
	c := newTestClient(t, bmc, nil)

	hs := c.HardwareStatus(Sections{Memory: true}, transport.PriorityLow)
	require.Len(t, hs.Memory, 2)
	assert.False(t, hs.Memory[1].Present)
	assert.Equal(t, ipmi.StateNotPresent, hs.Memory[1].State)
	assert.Equal(t, ipmi.CCSuccess, hs.PartialError)
	// only the populated slot was queried, plus the index
	assert.Equal(t, 2, bmc.count(ipmi.NetFnOEM, ipmi.CmdOEMGetMemoryInfo))
}

func TestHardwareStatusComputeSections(t *testing.T) {
	bmc := computeBMC()
	c := newTestClient(t, bmc, nil)

	s := AllSections()
	s.ManagementEngine = false
	s.FRU = false
	hs := c.HardwareStatus(s, transport.PriorityLow)

	require.Len(t, hs.Processors, 2)
	assert.Equal(t, byte(1), hs.Processors[0].Instance)
	assert.Equal(t, uint16(0x0960), hs.Processors[0].FrequencyMHz)

	require.Len(t, hs.Temperatures, 1)
	require.NotNil(t, hs.Temperatures[0].Value)
	assert.InDelta(t, 24.0, *hs.Temperatures[0].Value, 1e-9)

	require.NotNil(t, hs.Power)
	assert.Equal(t, uint16(210), hs.Power.CurrentWatts)
	assert.Equal(t, uint16(200), hs.Power.AverageWatts)
	assert.True(t, hs.Power.LimitActive)
	// no limit configured is not a failure
	assert.False(t, hs.Power.LimitSet)

	require.NotNil(t, hs.Misc)
	assert.True(t, hs.Misc.PowerOn)
	assert.True(t, hs.Misc.IdentifyOn)
	require.NotNil(t, hs.Misc.Fan)
	require.NotNil(t, hs.Misc.Fan.Value)
	assert.InDelta(t, 60.0, *hs.Misc.Fan.Value, 1e-9)

	assert.Empty(t, hs.Disks)
	// memory slot 3 still fails
	assert.Equal(t, ipmi.CCInvalidDataField, hs.PartialError)
}

func TestHardwareStatusManagementEngine(t *testing.T) {
	bmc := computeBMC()
	bmc.on(ipmi.NetFnApp, ipmi.CmdSendMessage, func(data []byte) (ipmi.CompletionCode, []byte) {
		// data[1:] is the bridged request without framing bytes
		inner := append([]byte{0}, data[1:]...)
		inner = append(inner, 0)
		rqAddr, netFn, cmd, seq, _, err := ipmi.ParseRequest(inner)
		if err != nil {
			return ipmi.CCInvalidDataField, nil
		}
		var out []byte
		switch {
		case netFn == ipmi.NetFnApp && cmd == ipmi.CmdGetDeviceID:
			out = []byte{0x50, 0x01, 0x04, 0x10, 0x02, 0x21, 0x57, 0x01, 0x00, 0x0B, 0x00}
		case netFn == ipmi.NetFnOEMGroup && cmd == ipmi.CmdNMGetVersion:
			out = []byte{0x57, 0x01, 0x00, 0x05, 0x03, 0x00, 0x04, 0x01}
		default:
			return ipmi.CCInvalidCommand, nil
		}
		resp := ipmi.BuildResponse(rqAddr, netFn, cmd, seq, ipmi.CCSuccess, out)
		return ipmi.CCSuccess, resp[1 : len(resp)-1]
	})
	c := newTestClient(t, bmc, nil)

	hs := c.HardwareStatus(Sections{ManagementEngine: true}, transport.PriorityLow)
	require.NotNil(t, hs.ManagementEngine)
	assert.Equal(t, ipmi.CCSuccess, hs.ManagementEngine.Completion)
	assert.Equal(t, "4.10", hs.ManagementEngine.FirmwareVersion)
	assert.Equal(t, "3.0", hs.ManagementEngine.NMVersion)
	assert.Equal(t, "4.01", hs.ManagementEngine.NMFirmware)
	assert.Equal(t, ipmi.CCSuccess, hs.PartialError)

	sm, ok := bmc.last(ipmi.NetFnApp, ipmi.CmdSendMessage)
	require.True(t, ok)
	assert.Equal(t, byte(0x40|ipmi.ChannelME), sm.data[0])
	assert.Equal(t, ipmi.MEAddress, sm.data[1])
}

func TestHardwareStatusStorageBlade(t *testing.T) {
	bmc := newFakeBMC(ipmi.ClassStorage)
	bmc.on(ipmi.NetFnOEM, ipmi.CmdOEMGetDiskStatus, func([]byte) (ipmi.CompletionCode, []byte) {
		return ipmi.CCSuccess, []byte{0x02, 0x02, 0x01, 0x42}
	})
	bmc.on(ipmi.NetFnOEM, ipmi.CmdOEMGetDiskInfo, func(data []byte) (ipmi.CompletionCode, []byte) {
		return ipmi.CCSuccess, []byte{0x01, 0x00, data[1], 0x00}
	})
	bmc.on(ipmi.NetFnStorage, ipmi.CmdGetFRUInventoryAreaInfo, func([]byte) (ipmi.CompletionCode, []byte) {
		return ipmi.CCSensorNotPresent, nil
	})
	c := newTestClient(t, bmc, nil)

	hs := c.HardwareStatus(AllSections(), transport.PriorityLow)
	assert.Equal(t, ipmi.ClassStorage.String(), hs.Class)
	assert.Empty(t, hs.Processors)
	assert.Empty(t, hs.Memory)

	require.Len(t, hs.DiskStatus, 2)
	assert.Equal(t, byte(2), hs.DiskStatus[1].Number)
	assert.Equal(t, ipmi.DiskFailed, hs.DiskStatus[1].Health)
	require.Len(t, hs.DiskInfo, 2)
	assert.Equal(t, uint16(2), hs.DiskInfo[1].Reading)

	require.NotNil(t, hs.FRU)
	assert.Equal(t, ipmi.CCSensorNotPresent, hs.FRU.Completion)
	assert.Equal(t, ipmi.CCSensorNotPresent, hs.PartialError)
}

func TestHardwareStatusClassificationFailure(t *testing.T) {
	bmc := newFakeBMC(ipmi.ClassCompute)
	bmc.on(ipmi.NetFnApp, ipmi.CmdGetSystemGUID, func([]byte) (ipmi.CompletionCode, []byte) {
		return ipmi.CCNodeBusy, nil
	})
	c := newTestClient(t, bmc, nil)

	hs := c.HardwareStatus(AllSections(), transport.PriorityLow)
	assert.Equal(t, ipmi.CCNodeBusy, hs.Completion)
	assert.Equal(t, ipmi.ClassUnknown.String(), hs.Class)
	assert.Nil(t, hs.Misc)
}

func TestHardwareStatusUnknownClass(t *testing.T) {
	bmc := newFakeBMC(ipmi.ClassUnknown)
	c := newTestClient(t, bmc, nil)

	hs := c.HardwareStatus(AllSections(), transport.PriorityLow)
	assert.Equal(t, ipmi.CCInvalidDataField, hs.Completion)
	assert.Nil(t, hs.Power)
}
