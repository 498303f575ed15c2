// internal/ipmi/sensor.go
package ipmi

// Sensor/Event network function commands.
const (
	CmdGetSensorReading byte = 0x2D
	CmdGetSensorType    byte = 0x2F
)

// Event/reading type codes.
const (
	ReadingThreshold      byte = 0x01
	ReadingGenericFirst   byte = 0x02
	ReadingGenericLast    byte = 0x0C
	ReadingSensorSpecific byte = 0x6F
	ReadingOEMFirst       byte = 0x70
	ReadingOEMLast        byte = 0x7F
)

// Sensor type codes used by the aggregator.
const (
	SensorTemperature byte = 0x01
	SensorVoltage     byte = 0x02
	SensorCurrent     byte = 0x03
	SensorFan         byte = 0x04
	SensorProcessor   byte = 0x07
	SensorPowerSupply byte = 0x08
	SensorMemory      byte = 0x0C
	SensorDriveSlot   byte = 0x0D
)

// Entity ids used by the aggregator.
const (
	EntityProcessor byte = 0x03
)

// reading flag bits (byte 2 of the Get Sensor Reading response)
const (
	flagEventsEnabled      = 0x80
	flagScanningEnabled    = 0x40
	flagReadingUnavailable = 0x20
)

type GetSensorReadingRequest struct {
	Number byte
}

func (GetSensorReadingRequest) NetFn() NetFn   { return NetFnSensorEvent }
func (GetSensorReadingRequest) Command() byte  { return CmdGetSensorReading }
func (r GetSensorReadingRequest) Data() []byte { return []byte{r.Number} }

// GetSensorReadingResponse carries the raw reading and up to two state bytes.
type GetSensorReadingResponse struct {
	Status
	Reading   byte
	Flags     byte
	State     byte
	StateExt  byte
	HasState  bool
	HasExtend bool
}

func (r *GetSensorReadingResponse) Unmarshal(data []byte) error {
	if err := need(data, 2, "sensor reading"); err != nil {
		return err
	}
	r.Reading = data[0]
	r.Flags = data[1]
	if len(data) > 2 {
		r.State = data[2]
		r.HasState = true
	}
	if len(data) > 3 {
		r.StateExt = data[3]
		r.HasExtend = true
	}
	return nil
}

// Unavailable reports the "reading/state unavailable" flag.
func (r *GetSensorReadingResponse) Unavailable() bool {
	return r.Flags&flagReadingUnavailable != 0
}

// ScanningEnabled reports whether the BMC is scanning the sensor.
func (r *GetSensorReadingResponse) ScanningEnabled() bool {
	return r.Flags&flagScanningEnabled != 0
}

type GetSensorTypeRequest struct {
	Number byte
}

func (GetSensorTypeRequest) NetFn() NetFn   { return NetFnSensorEvent }
func (GetSensorTypeRequest) Command() byte  { return CmdGetSensorType }
func (r GetSensorTypeRequest) Data() []byte { return []byte{r.Number} }

type GetSensorTypeResponse struct {
	Status
	SensorType       byte
	EventReadingType byte
}

func (r *GetSensorTypeResponse) Unmarshal(data []byte) error {
	if err := need(data, 2, "sensor type"); err != nil {
		return err
	}
	r.SensorType = data[0]
	r.EventReadingType = data[1] & 0x7F
	return nil
}
