// internal/ipmi/sdr.go
package ipmi

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"strings"
)

// Storage network function SDR commands.
const (
	CmdGetSDRRepositoryInfo byte = 0x20
	CmdReserveSDRRepository byte = 0x22
	CmdGetSDR               byte = 0x23
)

// LastRecordID terminates an SDR walk.
const LastRecordID uint16 = 0xFFFF

// RecordType is byte 3 of every SDR record header.
type RecordType byte

const (
	RecordFull      RecordType = 0x01
	RecordCompact   RecordType = 0x02
	RecordEventOnly RecordType = 0x03
)

func (t RecordType) String() string {
	switch t {
	case RecordFull:
		return "full"
	case RecordCompact:
		return "compact"
	case RecordEventOnly:
		return "event-only"
	default:
		return fmt.Sprintf("record(0x%02X)", byte(t))
	}
}

var ErrUnsupportedRecord = errors.New("ipmi: unsupported sdr record type")

// ------------------------------------------------------------
// Commands
// ------------------------------------------------------------

type ReserveSDRRepositoryRequest struct{}

func (ReserveSDRRepositoryRequest) NetFn() NetFn  { return NetFnStorage }
func (ReserveSDRRepositoryRequest) Command() byte { return CmdReserveSDRRepository }
func (ReserveSDRRepositoryRequest) Data() []byte  { return nil }

type ReserveSDRRepositoryResponse struct {
	Status
	ReservationID uint16
}

func (r *ReserveSDRRepositoryResponse) Unmarshal(data []byte) error {
	if err := need(data, 2, "sdr reservation"); err != nil {
		return err
	}
	r.ReservationID = binary.LittleEndian.Uint16(data)
	return nil
}

// SDRHeaderLen is the common record header: id, version, type, length.
const SDRHeaderLen = 5

// SDRReadToEnd as a byte count asks for the rest of the record.
const SDRReadToEnd byte = 0xFF

// GetSDRRequest reads Count bytes of a record from Offset. A zero Count
// reads to the end of the record.
type GetSDRRequest struct {
	ReservationID uint16
	RecordID      uint16
	Offset        byte
	Count         byte
}

func (GetSDRRequest) NetFn() NetFn  { return NetFnStorage }
func (GetSDRRequest) Command() byte { return CmdGetSDR }
func (r GetSDRRequest) Data() []byte {
	b := make([]byte, 6)
	binary.LittleEndian.PutUint16(b[0:2], r.ReservationID)
	binary.LittleEndian.PutUint16(b[2:4], r.RecordID)
	b[4] = r.Offset
	b[5] = r.Count
	if r.Count == 0 {
		b[5] = SDRReadToEnd
	}
	return b
}

type GetSDRResponse struct {
	Status
	NextRecordID uint16
	Record       []byte
}

func (r *GetSDRResponse) Unmarshal(data []byte) error {
	if err := need(data, 2, "sdr record"); err != nil {
		return err
	}
	r.NextRecordID = binary.LittleEndian.Uint16(data[0:2])
	r.Record = append([]byte(nil), data[2:]...)
	return nil
}

// ------------------------------------------------------------
// Records
// ------------------------------------------------------------

// AnalogFormat is bits 7:6 of sensor units 1.
type AnalogFormat byte

const (
	AnalogUnsigned       AnalogFormat = 0
	AnalogOnesComplement AnalogFormat = 1
	AnalogTwosComplement AnalogFormat = 2
	AnalogNone           AnalogFormat = 3
)

// Linearization selects the function applied after the linear conversion.
type Linearization byte

const (
	LinearLinear Linearization = iota
	LinearLn
	LinearLog10
	LinearLog2
	LinearE
	LinearExp10
	LinearExp2
	LinearInverse
	LinearSqr
	LinearCube
	LinearSqrt
	LinearCubeRoot
)

// Conversion holds the factors of a full record.
type Conversion struct {
	M             int16
	B             int16
	BExp          int8
	RExp          int8
	Format        AnalogFormat
	Linearization Linearization
}

// SensorRecord is a parsed full, compact or event-only SDR record.
type SensorRecord struct {
	RecordID         uint16
	Type             RecordType
	OwnerID          byte
	OwnerLUN         byte
	Number           byte
	EntityID         byte
	EntityInstance   byte
	SensorType       byte
	EventReadingType byte
	BaseUnit         byte
	ModifierUnit     byte
	Description      string

	// Conversion is set for full records only.
	Conversion *Conversion
}

// Key indexes the record within one blade repository.
func (r SensorRecord) Key() uint16 {
	return SensorKey(r.OwnerID, r.Number)
}

// Analog reports whether raw readings can be converted.
func (r SensorRecord) Analog() bool {
	return r.Conversion != nil && r.Conversion.Format != AnalogNone
}

// SensorKey packs owner and sensor number.
func SensorKey(owner, number byte) uint16 {
	return uint16(owner)<<8 | uint16(number)
}

// record byte offsets
const (
	sdrRecordID   = 0
	sdrType       = 3
	sdrOwnerID    = 5
	sdrOwnerLUN   = 6
	sdrNumber     = 7
	sdrEntityID   = 8
	sdrEntityInst = 9

	sdrSensorType  = 12
	sdrReadingType = 13
	sdrUnits1      = 20
	sdrBaseUnit    = 21
	sdrModUnit     = 22
	sdrLinear      = 23
	sdrM           = 24
	sdrMTol        = 25
	sdrB           = 26
	sdrBAcc        = 27
	sdrExp         = 29

	sdrFullIDLen    = 47
	sdrCompactIDLen = 31

	sdrEventSensorType  = 10
	sdrEventReadingType = 11
	sdrEventIDLen       = 16
)

// ParseSensorRecord decodes one raw record as returned by Get SDR.
func ParseSensorRecord(raw []byte) (SensorRecord, error) {
	if err := need(raw, sdrEntityInst+1, "sdr header"); err != nil {
		return SensorRecord{}, err
	}

	rec := SensorRecord{
		RecordID:       binary.LittleEndian.Uint16(raw[sdrRecordID:]),
		Type:           RecordType(raw[sdrType]),
		OwnerID:        raw[sdrOwnerID],
		OwnerLUN:       raw[sdrOwnerLUN] & 0x03,
		Number:         raw[sdrNumber],
		EntityID:       raw[sdrEntityID],
		EntityInstance: raw[sdrEntityInst],
	}

	switch rec.Type {
	case RecordFull:
		if err := need(raw, sdrFullIDLen+1, "full sdr"); err != nil {
			return rec, err
		}
		rec.SensorType = raw[sdrSensorType]
		rec.EventReadingType = raw[sdrReadingType] & 0x7F
		rec.BaseUnit = raw[sdrBaseUnit]
		rec.ModifierUnit = raw[sdrModUnit]
		rec.Conversion = &Conversion{
			M:             signExtend(uint16(raw[sdrM])|uint16(raw[sdrMTol]&0xC0)<<2, 10),
			B:             signExtend(uint16(raw[sdrB])|uint16(raw[sdrBAcc]&0xC0)<<2, 10),
			RExp:          int8(signExtend(uint16(raw[sdrExp]>>4), 4)),
			BExp:          int8(signExtend(uint16(raw[sdrExp]&0x0F), 4)),
			Format:        AnalogFormat(raw[sdrUnits1] >> 6),
			Linearization: Linearization(raw[sdrLinear] & 0x7F),
		}
		rec.Description = idString(raw, sdrFullIDLen)

	case RecordCompact:
		if err := need(raw, sdrCompactIDLen+1, "compact sdr"); err != nil {
			return rec, err
		}
		rec.SensorType = raw[sdrSensorType]
		rec.EventReadingType = raw[sdrReadingType] & 0x7F
		rec.BaseUnit = raw[sdrBaseUnit]
		rec.ModifierUnit = raw[sdrModUnit]
		rec.Description = idString(raw, sdrCompactIDLen)

	case RecordEventOnly:
		if err := need(raw, sdrEventIDLen+1, "event-only sdr"); err != nil {
			return rec, err
		}
		rec.SensorType = raw[sdrEventSensorType]
		rec.EventReadingType = raw[sdrEventReadingType] & 0x7F
		rec.Description = idString(raw, sdrEventIDLen)

	default:
		return rec, fmt.Errorf("%w: 0x%02X", ErrUnsupportedRecord, byte(rec.Type))
	}

	return rec, nil
}

// idString decodes the type/length byte at off and the string after it.
// A string truncated by the record end is kept as far as it goes.
func idString(raw []byte, off int) string {
	n := int(raw[off] & 0x1F)
	start := off + 1
	end := start + n
	if end > len(raw) {
		end = len(raw)
	}
	return strings.TrimRight(string(raw[start:end]), "\x00 ")
}

func signExtend(v uint16, bits uint) int16 {
	shift := 16 - bits
	return int16(v<<shift) >> shift
}

// Convert applies y = L[(M*x + B*10^BExp) * 10^RExp] to a raw reading.
func (c Conversion) Convert(raw byte) float64 {
	var x float64
	switch c.Format {
	case AnalogOnesComplement:
		v := int8(raw)
		if v < 0 {
			v++
		}
		x = float64(v)
	case AnalogTwosComplement:
		x = float64(int8(raw))
	default:
		x = float64(raw)
	}

	y := (float64(c.M)*x + float64(c.B)*math.Pow10(int(c.BExp))) * math.Pow10(int(c.RExp))
	return c.Linearization.apply(y)
}

func (l Linearization) apply(y float64) float64 {
	switch l {
	case LinearLn:
		return math.Log(y)
	case LinearLog10:
		return math.Log10(y)
	case LinearLog2:
		return math.Log2(y)
	case LinearE:
		return math.Exp(y)
	case LinearExp10:
		return math.Pow(10, y)
	case LinearExp2:
		return math.Exp2(y)
	case LinearInverse:
		if y == 0 {
			return 0
		}
		return 1 / y
	case LinearSqr:
		return y * y
	case LinearCube:
		return y * y * y
	case LinearSqrt:
		return math.Sqrt(y)
	case LinearCubeRoot:
		return math.Cbrt(y)
	default:
		return y
	}
}

// Unit names for the base unit codes the chassis reports.
var unitNames = map[byte]string{
	0x01: "degrees C",
	0x02: "degrees F",
	0x04: "Volts",
	0x05: "Amps",
	0x06: "Watts",
	0x09: "VA",
	0x11: "CFM",
	0x12: "RPM",
	0x13: "Hz",
}

// UnitName returns the display name of a base unit code, or "" when unknown.
func UnitName(code byte) string {
	return unitNames[code]
}
