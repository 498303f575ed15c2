// internal/blade/sensors.go
package blade

import (
	"errors"
	"sort"
	"sync"

	"github.com/tamzrod/chassis-manager/internal/ipmi"
	"github.com/tamzrod/chassis-manager/internal/transport"
)

// maxSDRIterations bounds one repository walk.
const maxSDRIterations = 300

// primarySensor is the fan/PWM sensor read on every misc poll.
const primarySensor byte = 0x01

// InletEntry is the correction applied to one blade model.
type InletEntry struct {
	ManufacturerID uint32
	ProductID      uint16
	Offset         float64
}

// InletCorrection adjusts the converted inlet temperature reading.
type InletCorrection struct {
	Enabled bool
	Sensor  byte
	Entries []InletEntry
}

func (ic InletCorrection) offset(dev *ipmi.GetDeviceIDResponse) (float64, bool) {
	if dev == nil {
		return 0, false
	}
	for _, e := range ic.Entries {
		if e.ManufacturerID == dev.ManufacturerID && e.ProductID == dev.ProductID {
			return e.Offset, true
		}
	}
	return 0, false
}

// SensorConfig is the sensor decoding configuration of one client.
type SensorConfig struct {
	Events EventStrings
	Inlet  InletCorrection
	// PrimaryRecordID is the repository id of the primary sensor record,
	// when known.
	PrimaryRecordID *uint16
}

// ------------------------------------------------------------
// Descriptor cache
// ------------------------------------------------------------

type sensorCache struct {
	mu      sync.Mutex
	loaded  bool
	records map[uint16]ipmi.SensorRecord
	primary map[uint16]ipmi.SensorRecord
	device  *ipmi.GetDeviceIDResponse

	// primaryID survives invalidation; it is verified before use.
	primaryID    uint16
	hasPrimaryID bool
}

// invalidate empties both descriptor maps and the cached device id.
func (s *sensorCache) invalidate() {
	s.mu.Lock()
	s.loaded = false
	s.records = make(map[uint16]ipmi.SensorRecord)
	s.primary = make(map[uint16]ipmi.SensorRecord)
	s.device = nil
	s.mu.Unlock()
}

func (s *sensorCache) isLoaded() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loaded
}

func (s *sensorCache) store(records map[uint16]ipmi.SensorRecord) {
	s.mu.Lock()
	s.records = records
	s.loaded = true
	s.mu.Unlock()
}

func (s *sensorCache) storePrimary(id uint16, rec ipmi.SensorRecord) {
	s.mu.Lock()
	s.primary[rec.Key()] = rec
	s.primaryID, s.hasPrimaryID = id, true
	s.mu.Unlock()
}

func (s *sensorCache) primaryRecordID() (uint16, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.primaryID, s.hasPrimaryID
}

// lookup prefers the full repository and falls back to the primary map.
func (s *sensorCache) lookup(key uint16) (ipmi.SensorRecord, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if rec, ok := s.records[key]; ok {
		return rec, true
	}
	rec, ok := s.primary[key]
	return rec, ok
}

// all returns the repository ordered by sensor key.
func (s *sensorCache) all() []ipmi.SensorRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]ipmi.SensorRecord, 0, len(s.records))
	for _, r := range s.records {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key() < out[j].Key() })
	return out
}

func (s *sensorCache) counts() (records, primary int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.records), len(s.primary)
}

func (s *sensorCache) deviceID() *ipmi.GetDeviceIDResponse {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.device
}

func (s *sensorCache) setDeviceID(d *ipmi.GetDeviceIDResponse) {
	s.mu.Lock()
	s.device = d
	s.mu.Unlock()
}

// ------------------------------------------------------------
// Repository walk
// ------------------------------------------------------------

// sdrChunkLen is the body read size once a BMC refuses whole-record reads.
const sdrChunkLen byte = 16

// sdrReader fetches records under one reservation. After the first
// "cannot return requested data" it reads every record in chunks.
type sdrReader struct {
	c       *Client
	pri     transport.Priority
	resv    uint16
	chunked bool
}

func (c *Client) reserveSDRLocked(pri transport.Priority) (*sdrReader, ipmi.Status) {
	var res ipmi.ReserveSDRRepositoryResponse
	c.dispatchLocked(ipmi.ReserveSDRRepositoryRequest{}, &res, pri, true)
	if !res.OK() {
		return nil, res.Status
	}
	return &sdrReader{c: c, pri: pri, resv: res.ReservationID}, ipmi.Status{}
}

func (r *sdrReader) get(id uint16, offset, count byte) ipmi.GetSDRResponse {
	var rec ipmi.GetSDRResponse
	req := ipmi.GetSDRRequest{ReservationID: r.resv, RecordID: id, Offset: offset, Count: count}
	r.c.dispatchLocked(req, &rec, r.pri, true)
	return rec
}

// read returns the raw record and the id of the record after it.
func (r *sdrReader) read(id uint16) ([]byte, uint16, ipmi.Status) {
	if !r.chunked {
		whole := r.get(id, 0, ipmi.SDRReadToEnd)
		if whole.Code != ipmi.CCCannotReturnRequestedData {
			return whole.Record, whole.NextRecordID, whole.Status
		}
		r.chunked = true
		r.c.log.Debug().Uint16("record", id).Msg("sdr whole-record read refused, reading in chunks")
	}

	hdr := r.get(id, 0, ipmi.SDRHeaderLen)
	if !hdr.OK() {
		return nil, 0, hdr.Status
	}
	if len(hdr.Record) < ipmi.SDRHeaderLen {
		return nil, 0, ipmi.Status{Code: ipmi.CCResponseNotProvided}
	}

	total := ipmi.SDRHeaderLen + int(hdr.Record[4])
	rec := append([]byte(nil), hdr.Record[:ipmi.SDRHeaderLen]...)
	for len(rec) < total {
		if len(rec) > 0xFF {
			return nil, 0, ipmi.Status{Code: ipmi.CCLengthExceeded}
		}
		n := min(int(sdrChunkLen), total-len(rec))
		part := r.get(id, byte(len(rec)), byte(n))
		if !part.OK() {
			return nil, 0, part.Status
		}
		if len(part.Record) == 0 {
			return nil, 0, ipmi.Status{Code: ipmi.CCResponseNotProvided}
		}
		rec = append(rec, part.Record...)
	}
	return rec[:total], hdr.NextRecordID, ipmi.Status{}
}

// walkSDRLocked visits repository records in order until visit returns
// false, the terminal id, a repeated id or the iteration ceiling.
func (c *Client) walkSDRLocked(pri transport.Priority, visit func(id uint16, rec ipmi.SensorRecord) bool) ipmi.Status {
	r, st := c.reserveSDRLocked(pri)
	if !st.OK() {
		return st
	}

	seen := make(map[uint16]bool)
	id := uint16(0)
	for i := 0; i < maxSDRIterations; i++ {
		raw, next, st := r.read(id)
		if !st.OK() {
			return st
		}
		seen[id] = true

		parsed, err := ipmi.ParseSensorRecord(raw)
		switch {
		case err == nil:
			if !visit(id, parsed) {
				return ipmi.Status{}
			}
		case errors.Is(err, ipmi.ErrUnsupportedRecord):
			// locator and OEM records
		default:
			c.log.Debug().Err(err).Uint16("record", id).Msg("sdr record skipped")
		}

		if next == ipmi.LastRecordID || seen[next] {
			return ipmi.Status{}
		}
		id = next
	}

	c.log.Warn().Int("limit", maxSDRIterations).Msg("sdr walk stopped at iteration ceiling")
	return ipmi.Status{}
}

// ensureSDRLocked loads the repository once. A failed walk leaves the cache
// empty so the next call starts over.
func (c *Client) ensureSDRLocked(pri transport.Priority) ipmi.Status {
	if c.sensors.isLoaded() {
		return ipmi.Status{}
	}

	records := make(map[uint16]ipmi.SensorRecord)
	st := c.walkSDRLocked(pri, func(_ uint16, r ipmi.SensorRecord) bool {
		records[r.Key()] = r
		return true
	})
	if !st.OK() {
		c.log.Warn().Stringer("status", st).Msg("sdr walk failed")
		return st
	}

	c.sensors.store(records)
	c.log.Debug().Int("records", len(records)).Msg("sdr loaded")
	return st
}

// loadPrimaryLocked fetches the primary sensor descriptor. A known record id
// (configured, or remembered from an earlier walk) is read directly; the
// fetched record must carry the primary key, otherwise the repository is
// walked until the primary record turns up.
func (c *Client) loadPrimaryLocked(pri transport.Priority) (ipmi.SensorRecord, ipmi.Status) {
	key := ipmi.SensorKey(ipmi.BMCAddress, primarySensor)
	if rec, ok := c.sensors.lookup(key); ok {
		return rec, ipmi.Status{}
	}

	if id, ok := c.primaryHint(); ok {
		r, st := c.reserveSDRLocked(pri)
		if !st.OK() {
			return ipmi.SensorRecord{}, st
		}
		raw, _, st := r.read(id)
		if st.OK() {
			if rec, err := ipmi.ParseSensorRecord(raw); err == nil && rec.Key() == key {
				c.sensors.storePrimary(id, rec)
				return rec, st
			}
		}
		c.log.Debug().Uint16("record", id).Msg("primary sensor record moved, walking repository")
	}

	var (
		found   *ipmi.SensorRecord
		foundID uint16
	)
	st := c.walkSDRLocked(pri, func(id uint16, r ipmi.SensorRecord) bool {
		if r.Key() == key {
			found, foundID = &r, id
			return false
		}
		return true
	})
	if !st.OK() {
		return ipmi.SensorRecord{}, st
	}
	if found == nil {
		return ipmi.SensorRecord{}, ipmi.Status{Code: ipmi.CCSensorNotPresent}
	}
	c.sensors.storePrimary(foundID, *found)
	return *found, st
}

// primaryHint prefers the remembered record id over the configured one.
func (c *Client) primaryHint() (uint16, bool) {
	if id, ok := c.sensors.primaryRecordID(); ok {
		return id, true
	}
	if c.scfg.PrimaryRecordID != nil {
		return *c.scfg.PrimaryRecordID, true
	}
	return 0, false
}

func (c *Client) deviceIDLocked(pri transport.Priority) *ipmi.GetDeviceIDResponse {
	if d := c.sensors.deviceID(); d != nil {
		return d
	}
	var d ipmi.GetDeviceIDResponse
	c.dispatchLocked(ipmi.GetDeviceIDRequest{}, &d, pri, true)
	if !d.OK() {
		return nil
	}
	c.sensors.setDeviceID(&d)
	return &d
}

// SDR returns the sensor repository, walking it on first use.
func (c *Client) SDR(pri transport.Priority) ([]ipmi.SensorRecord, ipmi.Status) {
	c.xmu.Lock()
	defer c.xmu.Unlock()
	if st := c.ensureSDRLocked(pri); !st.OK() {
		return nil, st
	}
	return c.sensors.all(), ipmi.Status{}
}

// ------------------------------------------------------------
// Readings
// ------------------------------------------------------------

// SensorReading is one decoded sensor reading.
type SensorReading struct {
	Status      ipmi.Status `json:"-" yaml:"-"`
	Number      byte        `json:"number" yaml:"number"`
	Name        string      `json:"name,omitempty" yaml:"name,omitempty"`
	SensorType  byte        `json:"sensor_type" yaml:"sensor_type"`
	ReadingType byte        `json:"reading_type" yaml:"reading_type"`
	Class       EventClass  `json:"class,omitempty" yaml:"class,omitempty"`
	EventCode   byte        `json:"event_code" yaml:"event_code"`
	Raw         byte        `json:"raw" yaml:"raw"`
	State       EventState  `json:"state" yaml:"state"`
	Asserted    []int       `json:"asserted,omitempty" yaml:"asserted,omitempty"`
	Description string      `json:"description,omitempty" yaml:"description,omitempty"`
	Value       *float64    `json:"value,omitempty" yaml:"value,omitempty"`
	Unit        string      `json:"unit,omitempty" yaml:"unit,omitempty"`
}

// CompletionCode is the completion code of the last command of the read.
func (r SensorReading) CompletionCode() ipmi.CompletionCode { return r.Status.Code }

// GetSensorReading reads and decodes one sensor owned by the BMC.
func (c *Client) GetSensorReading(number byte, pri transport.Priority) SensorReading {
	c.xmu.Lock()
	defer c.xmu.Unlock()
	return c.sensorReadingLocked(number, pri, true)
}

// PrimarySensorReading reads the fan/PWM sensor through the primary
// descriptor shortcut.
func (c *Client) PrimarySensorReading(pri transport.Priority) SensorReading {
	c.xmu.Lock()
	defer c.xmu.Unlock()
	return c.sensorReadingLocked(primarySensor, pri, false)
}

// sensorReadingLocked decodes a reading. full selects the repository walk;
// otherwise only the primary descriptor is fetched.
func (c *Client) sensorReadingLocked(number byte, pri transport.Priority, full bool) SensorReading {
	out := SensorReading{Number: number, State: EventStateUnspecified}

	var typ ipmi.GetSensorTypeResponse
	c.dispatchLocked(ipmi.GetSensorTypeRequest{Number: number}, &typ, pri, true)
	if !typ.OK() {
		out.Status = typ.Status
		return out
	}
	out.SensorType = typ.SensorType
	out.ReadingType = typ.EventReadingType

	var rd ipmi.GetSensorReadingResponse
	c.dispatchLocked(ipmi.GetSensorReadingRequest{Number: number}, &rd, pri, true)
	out.Status = rd.Status
	if !rd.OK() {
		return out
	}
	out.Raw = rd.Reading

	if rd.Unavailable() {
		out.State = EventStateUnavailable
		return out
	}

	out.Class, out.EventCode = classify(typ.EventReadingType, typ.SensorType)
	switch out.Class {
	case ClassThreshold:
		if rd.HasState {
			out.State = decodeThreshold(rd.State)
		}
	case ClassDiscrete, ClassSensorSpecific, ClassOEM:
		if rd.HasState {
			out.State, out.Asserted = decodeDiscrete(rd.State, rd.StateExt, rd.HasExtend)
		}
	}
	if out.State >= 0 {
		out.Description = c.scfg.Events.Describe(out.Class, out.EventCode, out.State)
	}

	rec, ok := c.descriptorLocked(number, pri, full)
	if !ok {
		return out
	}
	out.Name = rec.Description
	out.Unit = ipmi.UnitName(rec.BaseUnit)
	if !rec.Analog() {
		return out
	}

	v := rec.Conversion.Convert(rd.Reading)
	if ic := c.scfg.Inlet; ic.Enabled && number == ic.Sensor {
		if off, ok := ic.offset(c.deviceIDLocked(pri)); ok {
			v += off
		}
	}
	out.Value = &v
	c.obs.ObserveSensor(c.id, number, v)
	return out
}

func (c *Client) descriptorLocked(number byte, pri transport.Priority, full bool) (ipmi.SensorRecord, bool) {
	key := ipmi.SensorKey(ipmi.BMCAddress, number)
	if full {
		if st := c.ensureSDRLocked(pri); !st.OK() {
			return ipmi.SensorRecord{}, false
		}
		return c.sensors.lookup(key)
	}
	if number != primarySensor {
		return c.sensors.lookup(key)
	}
	rec, st := c.loadPrimaryLocked(pri)
	return rec, st.OK()
}
