// internal/blade/sensors_test.go
package blade

import (
	"encoding/binary"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tamzrod/chassis-manager/internal/ipmi"
	"github.com/tamzrod/chassis-manager/internal/transport"
)

const (
	sensorFan    byte = 0x01
	sensorInlet  byte = 0x10
	sensorCPU    byte = 0x20
	sensorSystem byte = 0x30
)

// storageBMC avoids session handling so tests focus on sensor traffic.
func storageBMC() *fakeBMC {
	cpu := fullSDR(sensorCPU, ipmi.SensorProcessor, ipmi.ReadingSensorSpecific, ipmi.EntityProcessor, 1, 0x00, "CPU0 Status")
	cpu[20] = 0xC0 // no analog reading

	bmc := newFakeBMC(ipmi.ClassStorage)
	bmc.serveSDR(
		fullSDR(sensorFan, ipmi.SensorFan, ipmi.ReadingThreshold, 0x1D, 1, 0x12, "Fan PWM"),
		fullSDR(sensorInlet, ipmi.SensorTemperature, ipmi.ReadingThreshold, 0x37, 1, 0x01, "Inlet Temp"),
		cpu,
	)
	return bmc
}

// primaryLastBMC keeps the fan/PWM record at the end of the repository.
func primaryLastBMC() *fakeBMC {
	bmc := newFakeBMC(ipmi.ClassStorage)
	bmc.serveSDR(
		fullSDR(sensorInlet, ipmi.SensorTemperature, ipmi.ReadingThreshold, 0x37, 1, 0x01, "Inlet Temp"),
		fullSDR(sensorCPU, ipmi.SensorProcessor, ipmi.ReadingSensorSpecific, ipmi.EntityProcessor, 1, 0x00, "CPU0 Status"),
		fullSDR(sensorFan, ipmi.SensorFan, ipmi.ReadingThreshold, 0x1D, 1, 0x12, "Fan PWM"),
	)
	bmc.serveSensor(sensorFan, ipmi.SensorFan, ipmi.ReadingThreshold, []byte{60, 0xC0, 0x00})
	return bmc
}

func newPrimaryClient(t *testing.T, bmc *fakeBMC, recordID *uint16) *Client {
	t.Helper()
	c, err := New(Config{DeviceID: 3, Sensors: SensorConfig{PrimaryRecordID: recordID}}, bmc)
	require.NoError(t, err)
	return c
}

func TestThresholdReadingDecodesHighestBit(t *testing.T) {
	bmc := storageBMC()
	// bits 0 and 2 asserted: lower critical and lower non-recoverable
	bmc.serveSensor(sensorInlet, ipmi.SensorTemperature, ipmi.ReadingThreshold, []byte{24, 0xC0, 0x05})
	c := newTestClient(t, bmc, nil)

	r := c.GetSensorReading(sensorInlet, transport.PriorityLow)
	require.True(t, r.Status.OK(), r.Status.String())
	assert.Equal(t, ClassThreshold, r.Class)
	assert.Equal(t, EventState(2), r.State)
	assert.Equal(t, "Lower Non-Recoverable: reading unavailable, threshold unavailable", r.Description)
	assert.Equal(t, "Inlet Temp", r.Name)
	assert.Equal(t, "degrees C", r.Unit)
	require.NotNil(t, r.Value)
	assert.InDelta(t, 24.0, *r.Value, 1e-9)
}

func TestSensorSpecificUsesSensorType(t *testing.T) {
	bmc := storageBMC()
	// offset 7: presence detected
	bmc.serveSensor(sensorCPU, ipmi.SensorProcessor, ipmi.ReadingSensorSpecific, []byte{0x00, 0xC0, 0x80, 0x00})
	c := newTestClient(t, bmc, nil)

	r := c.GetSensorReading(sensorCPU, transport.PriorityLow)
	require.True(t, r.Status.OK())
	assert.Equal(t, ClassSensorSpecific, r.Class)
	assert.Equal(t, ipmi.SensorProcessor, r.EventCode)
	assert.Equal(t, EventState(7), r.State)
	assert.Equal(t, []int{7}, r.Asserted)
	assert.Equal(t, "Processor Presence detected", r.Description)
	assert.Nil(t, r.Value)
}

func TestDiscreteSecondaryByteOrdinals(t *testing.T) {
	bmc := storageBMC()
	bmc.serveSensor(sensorSystem, 0x12, 0x03, []byte{0x00, 0xC0, 0x02, 0x41})
	c := newTestClient(t, bmc, nil)

	r := c.GetSensorReading(sensorSystem, transport.PriorityLow)
	require.True(t, r.Status.OK())
	assert.Equal(t, ClassDiscrete, r.Class)
	assert.Equal(t, []int{1, 8, 14}, r.Asserted)
	assert.Equal(t, EventState(14), r.State)
	// not in the repository: no name or value
	assert.Empty(t, r.Name)
	assert.Nil(t, r.Value)
}

func TestUnavailableReadingIsSentinel(t *testing.T) {
	bmc := storageBMC()
	bmc.serveSensor(sensorInlet, ipmi.SensorTemperature, ipmi.ReadingThreshold, []byte{0x00, 0xE0, 0x3F})
	c := newTestClient(t, bmc, nil)

	r := c.GetSensorReading(sensorInlet, transport.PriorityLow)
	assert.Equal(t, EventStateUnavailable, r.State)
	assert.Empty(t, r.Description)
	assert.Nil(t, r.Value)
	// decoding stopped before the repository was touched
	assert.Equal(t, 0, bmc.count(ipmi.NetFnStorage, ipmi.CmdReserveSDRRepository))
}

func TestSensorTypeFailureStops(t *testing.T) {
	bmc := storageBMC()
	bmc.serveSensor(sensorInlet, ipmi.SensorTemperature, ipmi.ReadingThreshold, []byte{24, 0xC0, 0x00})
	c := newTestClient(t, bmc, nil)

	r := c.GetSensorReading(0x77, transport.PriorityLow)
	assert.Equal(t, ipmi.CCSensorNotPresent, r.CompletionCode())
	assert.Equal(t, 0, bmc.count(ipmi.NetFnSensorEvent, ipmi.CmdGetSensorReading))
}

func TestInletCorrection(t *testing.T) {
	bmc := storageBMC()
	bmc.serveSensor(sensorInlet, ipmi.SensorTemperature, ipmi.ReadingThreshold, []byte{24, 0xC0, 0x00})
	obs := &recordingObserver{}

	c, err := New(Config{
		DeviceID: 3,
		Observer: obs,
		Sensors: SensorConfig{
			Inlet: InletCorrection{
				Enabled: true,
				Sensor:  sensorInlet,
				Entries: []InletEntry{
					{ManufacturerID: 0x000157, ProductID: 0x0001, Offset: -9},
					{ManufacturerID: 0x000157, ProductID: 0x0B2A, Offset: -3.5},
				},
			},
		},
	}, bmc)
	require.NoError(t, err)

	r := c.GetSensorReading(sensorInlet, transport.PriorityLow)
	require.NotNil(t, r.Value)
	assert.InDelta(t, 20.5, *r.Value, 1e-9)
	assert.InDelta(t, 20.5, obs.sensors[sensorInlet], 1e-9)

	// the device id is cached with the descriptors
	c.GetSensorReading(sensorInlet, transport.PriorityLow)
	assert.Equal(t, 1, bmc.count(ipmi.NetFnApp, ipmi.CmdGetDeviceID))
}

func TestSDRCachedAcrossReadings(t *testing.T) {
	bmc := storageBMC()
	bmc.serveSensor(sensorInlet, ipmi.SensorTemperature, ipmi.ReadingThreshold, []byte{24, 0xC0, 0x00})
	c := newTestClient(t, bmc, nil)

	c.GetSensorReading(sensorInlet, transport.PriorityLow)
	c.GetSensorReading(sensorInlet, transport.PriorityLow)

	assert.Equal(t, 1, bmc.count(ipmi.NetFnStorage, ipmi.CmdReserveSDRRepository))
	assert.Equal(t, 3, bmc.count(ipmi.NetFnStorage, ipmi.CmdGetSDR))
}

func TestPrimarySensorShortcut(t *testing.T) {
	bmc := storageBMC()
	bmc.serveSensor(sensorFan, ipmi.SensorFan, ipmi.ReadingThreshold, []byte{60, 0xC0, 0x00})
	c := newTestClient(t, bmc, nil)

	r := c.PrimarySensorReading(transport.PriorityLow)
	require.NotNil(t, r.Value)
	assert.InDelta(t, 60.0, *r.Value, 1e-9)
	assert.Equal(t, "RPM", r.Unit)

	// stopped at the first record; only the primary map is filled
	assert.Equal(t, 1, bmc.count(ipmi.NetFnStorage, ipmi.CmdGetSDR))
	records, primary := c.sensors.counts()
	assert.Equal(t, 0, records)
	assert.Equal(t, 1, primary)
}

func TestSDRWalkIterationCeiling(t *testing.T) {
	bmc := newFakeBMC(ipmi.ClassStorage)
	bmc.on(ipmi.NetFnStorage, ipmi.CmdReserveSDRRepository, func([]byte) (ipmi.CompletionCode, []byte) {
		return ipmi.CCSuccess, []byte{0x01, 0x00}
	})
	// a corrupt repository whose chain never ends
	bmc.on(ipmi.NetFnStorage, ipmi.CmdGetSDR, func(data []byte) (ipmi.CompletionCode, []byte) {
		id := binary.LittleEndian.Uint16(data[2:4])
		out := []byte{byte(id + 1), byte((id + 1) >> 8)}
		return ipmi.CCSuccess, append(out, fullSDR(byte(id), ipmi.SensorFan, ipmi.ReadingThreshold, 0x1D, 1, 0x12, "Fan")...)
	})
	c := newTestClient(t, bmc, nil)

	records, st := c.SDR(transport.PriorityLow)
	require.True(t, st.OK())
	assert.Equal(t, maxSDRIterations, bmc.count(ipmi.NetFnStorage, ipmi.CmdGetSDR))
	// sensor numbers wrap after 256 records
	assert.Len(t, records, 256)
}

func TestSDRWalkStopsOnRepeatedID(t *testing.T) {
	bmc := newFakeBMC(ipmi.ClassStorage)
	bmc.on(ipmi.NetFnStorage, ipmi.CmdReserveSDRRepository, func([]byte) (ipmi.CompletionCode, []byte) {
		return ipmi.CCSuccess, []byte{0x01, 0x00}
	})
	bmc.on(ipmi.NetFnStorage, ipmi.CmdGetSDR, func(data []byte) (ipmi.CompletionCode, []byte) {
		id := binary.LittleEndian.Uint16(data[2:4])
		next := (id + 1) % 3
		out := []byte{byte(next), byte(next >> 8)}
		return ipmi.CCSuccess, append(out, fullSDR(byte(id+1), ipmi.SensorFan, ipmi.ReadingThreshold, 0x1D, 1, 0x12, "Fan")...)
	})
	c := newTestClient(t, bmc, nil)

	records, st := c.SDR(transport.PriorityLow)
	require.True(t, st.OK())
	assert.Len(t, records, 3)
	assert.Equal(t, 3, bmc.count(ipmi.NetFnStorage, ipmi.CmdGetSDR))
}

func TestSDRFailureNotCached(t *testing.T) {
	bmc := newFakeBMC(ipmi.ClassStorage)
	bmc.on(ipmi.NetFnStorage, ipmi.CmdReserveSDRRepository, func([]byte) (ipmi.CompletionCode, []byte) {
		return ipmi.CCSDRInUpdateMode, nil
	})
	c := newTestClient(t, bmc, nil)

	_, st := c.SDR(transport.PriorityLow)
	assert.Equal(t, ipmi.CCSDRInUpdateMode, st.Code)

	c.SDR(transport.PriorityLow)
	assert.Equal(t, 2, bmc.count(ipmi.NetFnStorage, ipmi.CmdReserveSDRRepository))
}

func TestIdentityChangeClearsCaches(t *testing.T) {
	bmc := storageBMC()
	bmc.serveSensor(sensorFan, ipmi.SensorFan, ipmi.ReadingThreshold, []byte{60, 0xC0, 0x00})
	c := newTestClient(t, bmc, nil)

	require.True(t, c.Initialize())
	_, st := c.SDR(transport.PriorityLow)
	require.True(t, st.OK())
	c.PrimarySensorReading(transport.PriorityLow)

	records, primary := c.sensors.counts()
	require.Equal(t, 3, records)
	require.Equal(t, 0, primary) // served from the full repository

	// same blade: caches survive
	require.True(t, c.Initialize())
	records, _ = c.sensors.counts()
	assert.Equal(t, 3, records)

	// hot swap
	bmc.set(func(f *fakeBMC) { f.guid = guidB })
	require.True(t, c.Initialize())
	assert.Equal(t, guidB, c.Identity())

	records, primary = c.sensors.counts()
	assert.Equal(t, 0, records)
	assert.Equal(t, 0, primary)

	// the next access re-fetches instead of serving stale entries
	_, st = c.SDR(transport.PriorityLow)
	require.True(t, st.OK())
	assert.Equal(t, 2, bmc.count(ipmi.NetFnStorage, ipmi.CmdReserveSDRRepository))
}

func TestPrimarySensorConfiguredRecordID(t *testing.T) {
	bmc := primaryLastBMC()
	id := uint16(2)
	c := newPrimaryClient(t, bmc, &id)

	r := c.PrimarySensorReading(transport.PriorityLow)
	require.NotNil(t, r.Value)
	assert.InDelta(t, 60.0, *r.Value, 1e-9)
	assert.Equal(t, 1, bmc.count(ipmi.NetFnStorage, ipmi.CmdGetSDR))

	got, ok := bmc.last(ipmi.NetFnStorage, ipmi.CmdGetSDR)
	require.True(t, ok)
	assert.Equal(t, uint16(2), binary.LittleEndian.Uint16(got.data[2:4]))
}

func TestPrimarySensorStaleRecordIDFallsBackToWalk(t *testing.T) {
	bmc := primaryLastBMC()
	id := uint16(0) // holds the inlet record
	c := newPrimaryClient(t, bmc, &id)

	r := c.PrimarySensorReading(transport.PriorityLow)
	require.NotNil(t, r.Value)
	assert.Equal(t, "Fan PWM", r.Name)
	// direct read of record 0, then the walk over all three
	assert.Equal(t, 4, bmc.count(ipmi.NetFnStorage, ipmi.CmdGetSDR))
}

func TestPrimarySensorRecordIDRememberedAfterClear(t *testing.T) {
	bmc := primaryLastBMC()
	c := newPrimaryClient(t, bmc, nil)

	c.PrimarySensorReading(transport.PriorityLow)
	require.Equal(t, 3, bmc.count(ipmi.NetFnStorage, ipmi.CmdGetSDR))

	c.InvalidateSensors()
	_, primary := c.sensors.counts()
	require.Equal(t, 0, primary)

	r := c.PrimarySensorReading(transport.PriorityLow)
	require.NotNil(t, r.Value)
	assert.Equal(t, 4, bmc.count(ipmi.NetFnStorage, ipmi.CmdGetSDR))
	_, primary = c.sensors.counts()
	assert.Equal(t, 1, primary)
}

func TestSDRChunkedWhenWholeReadRefused(t *testing.T) {
	bmc := storageBMC()
	bmc.set(func(f *fakeBMC) { f.chunkOnly = true })
	c := newTestClient(t, bmc, nil)

	records, st := c.SDR(transport.PriorityLow)
	require.True(t, st.OK(), st.String())
	require.Len(t, records, 3)
	assert.Equal(t, "Fan PWM", records[0].Description)
	assert.Equal(t, "Inlet Temp", records[1].Description)
	assert.Equal(t, "CPU0 Status", records[2].Description)

	// one refused whole read, then header + 16-byte body chunks per record:
	// 55, 58 and 59 byte records need 4 chunks each
	assert.Equal(t, 1+3*(1+4), bmc.count(ipmi.NetFnStorage, ipmi.CmdGetSDR))
}

func TestInvalidateSensorsWaitsForRunningWalk(t *testing.T) {
	bmc := storageBMC()
	getSDR := bmc.handlers[hkey(ipmi.NetFnStorage, ipmi.CmdGetSDR)]
	c := newTestClient(t, bmc, nil)

	var (
		once    sync.Once
		early   atomic.Bool
		cleared = make(chan struct{})
	)
	bmc.on(ipmi.NetFnStorage, ipmi.CmdGetSDR, func(data []byte) (ipmi.CompletionCode, []byte) {
		once.Do(func() {
			go func() {
				c.InvalidateSensors()
				close(cleared)
			}()
			select {
			case <-cleared:
				early.Store(true)
			case <-time.After(20 * time.Millisecond):
			}
		})
		return getSDR(data)
	})

	_, st := c.SDR(transport.PriorityLow)
	require.True(t, st.OK())

	select {
	case <-cleared:
	case <-time.After(time.Second):
		t.Fatal("InvalidateSensors did not return")
	}
	assert.False(t, early.Load(), "cache cleared while the walk was running")

	records, _ := c.sensors.counts()
	assert.Equal(t, 0, records)

	c.SDR(transport.PriorityLow)
	assert.Equal(t, 2, bmc.count(ipmi.NetFnStorage, ipmi.CmdReserveSDRRepository))
}
