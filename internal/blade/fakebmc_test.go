// internal/blade/fakebmc_test.go
package blade

import (
	"encoding/binary"
	"os"
	"sync"
	"testing"

	"github.com/google/uuid"

	"github.com/tamzrod/chassis-manager/internal/ipmi"
	"github.com/tamzrod/chassis-manager/internal/ipmi/frame"
	"github.com/tamzrod/chassis-manager/internal/logging"
	"github.com/tamzrod/chassis-manager/internal/transport"
)

func TestMain(m *testing.M) {
	logging.ConfigureTests()
	os.Exit(m.Run())
}

const fakeSession uint32 = 0x00001234

var (
	guidA = uuid.MustParse("6f1c2d3e-4a5b-4c6d-8e7f-112233445566")
	guidB = uuid.MustParse("0a0b0c0d-1e1f-4a2b-9c3d-aabbccddeeff")
)

// handler answers one (netFn, cmd). It runs with the fake's lock held.
type handler func(data []byte) (ipmi.CompletionCode, []byte)

type call struct {
	rqAddr byte
	netFn  ipmi.NetFn
	cmd    byte
	seq    byte
	data   []byte
}

// fakeBMC emulates a blade controller behind the serial transport.
type fakeBMC struct {
	mu       sync.Mutex
	handlers map[uint16]handler
	calls    []call

	guid    uuid.UUID
	class   ipmi.BladeClass
	session uint32

	// enforce answers session-scoped commands with insufficient privilege
	// while no session is active
	enforce bool
	// timeoutAll answers every request except caps with a handshake timeout
	timeoutAll bool
	corrupt    bool
	// chunkOnly refuses whole-record Get SDR reads
	chunkOnly bool

	broadcast []ipmi.BroadcastEntry
}

func hkey(n ipmi.NetFn, cmd byte) uint16 { return uint16(n)<<8 | uint16(cmd) }

func newFakeBMC(class ipmi.BladeClass) *fakeBMC {
	f := &fakeBMC{
		handlers: make(map[uint16]handler),
		guid:     guidA,
		class:    class,
		enforce:  true,
	}

	f.on(ipmi.NetFnApp, ipmi.CmdGetSystemGUID, func([]byte) (ipmi.CompletionCode, []byte) {
		b, _ := f.guid.MarshalBinary()
		return ipmi.CCSuccess, b
	})
	f.on(ipmi.NetFnApp, ipmi.CmdGetChannelAuthCapabilites, func([]byte) (ipmi.CompletionCode, []byte) {
		return ipmi.CCSuccess, []byte{0x01, 0x16, 0x04, 0x00, 0x00, 0x00, 0x00, byte(f.class)}
	})
	f.on(ipmi.NetFnApp, ipmi.CmdGetSessionChallenge, func([]byte) (ipmi.CompletionCode, []byte) {
		out := make([]byte, 20)
		binary.LittleEndian.PutUint32(out, 0xCAFE0001)
		for i := 4; i < 20; i++ {
			out[i] = byte(i)
		}
		return ipmi.CCSuccess, out
	})
	f.on(ipmi.NetFnApp, ipmi.CmdActivateSession, func([]byte) (ipmi.CompletionCode, []byte) {
		f.session = fakeSession
		out := make([]byte, 10)
		out[0] = byte(ipmi.AuthMD5)
		binary.LittleEndian.PutUint32(out[1:5], fakeSession)
		out[9] = byte(ipmi.PrivilegeAdmin)
		return ipmi.CCSuccess, out
	})
	f.on(ipmi.NetFnApp, ipmi.CmdSetSessionPrivilegeLevel, func(data []byte) (ipmi.CompletionCode, []byte) {
		return ipmi.CCSuccess, []byte{data[0]}
	})
	f.on(ipmi.NetFnApp, ipmi.CmdCloseSession, func([]byte) (ipmi.CompletionCode, []byte) {
		f.session = 0
		return ipmi.CCSuccess, nil
	})
	f.on(ipmi.NetFnApp, ipmi.CmdGetDeviceID, func([]byte) (ipmi.CompletionCode, []byte) {
		// manufacturer 0x000157, product 0x0B2A
		return ipmi.CCSuccess, []byte{0x20, 0x01, 0x02, 0x15, 0x02, 0xBF, 0x57, 0x01, 0x00, 0x2A, 0x0B}
	})
	return f
}

func (f *fakeBMC) on(n ipmi.NetFn, cmd byte, h handler) {
	f.mu.Lock()
	f.handlers[hkey(n, cmd)] = h
	f.mu.Unlock()
}

func sessionless(n ipmi.NetFn, cmd byte) bool {
	if n != ipmi.NetFnApp {
		return false
	}
	switch cmd {
	case ipmi.CmdGetSystemGUID, ipmi.CmdGetChannelAuthCapabilites,
		ipmi.CmdGetSessionChallenge, ipmi.CmdActivateSession:
		return true
	}
	return false
}

func (f *fakeBMC) SendReceive(_ transport.Priority, dt transport.DeviceType, id byte, req []byte) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	rqAddr, netFn, cmd, seq, data, err := ipmi.ParseRequest(frame.Decode(req))
	if err != nil {
		return nil, err
	}
	f.calls = append(f.calls, call{rqAddr: rqAddr, netFn: netFn, cmd: cmd, seq: seq, data: append([]byte(nil), data...)})

	if f.timeoutAll && !(netFn == ipmi.NetFnApp && cmd == ipmi.CmdGetChannelAuthCapabilites) {
		return transport.Prefix(byte(ipmi.TransportHandshakeTimeout), dt, id, nil), nil
	}

	var msg []byte
	if rqAddr == ipmi.RequesterAsync {
		var body []byte
		for _, e := range f.broadcast {
			body = append(body, e.SubAddress, byte(e.Code))
		}
		msg = ipmi.BuildRequest(rqAddr, ipmi.BMCAddress, netFn.Response(), cmd, seq, body)
	} else {
		cc, out := ipmi.CCInvalidCommand, []byte(nil)
		switch h, ok := f.handlers[hkey(netFn, cmd)]; {
		case f.enforce && f.class == ipmi.ClassCompute && f.session == 0 && !sessionless(netFn, cmd):
			cc = ipmi.CCInsufficientPrivilege
		case ok:
			cc, out = h(data)
		}
		msg = ipmi.BuildResponse(rqAddr, netFn, cmd, seq, cc, out)
	}

	if f.corrupt {
		msg[len(msg)-2] ^= 0xFF
	}
	return transport.Prefix(byte(ipmi.TransportSuccess), dt, id, frame.Encode(msg)), nil
}

// count returns how many requests of (netFn, cmd) were received.
func (f *fakeBMC) count(n ipmi.NetFn, cmd byte) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	c := 0
	for _, x := range f.calls {
		if x.netFn == n && x.cmd == cmd {
			c++
		}
	}
	return c
}

func (f *fakeBMC) last(n ipmi.NetFn, cmd byte) (call, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := len(f.calls) - 1; i >= 0; i-- {
		if f.calls[i].netFn == n && f.calls[i].cmd == cmd {
			return f.calls[i], true
		}
	}
	return call{}, false
}

func (f *fakeBMC) total() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

func (f *fakeBMC) set(fn func(f *fakeBMC)) {
	f.mu.Lock()
	fn(f)
	f.mu.Unlock()
}

// ---- SDR emulation ----

// serveSDR installs a repository of raw records. Record ids are positions;
// offset and byte count are honored.
func (f *fakeBMC) serveSDR(records ...[]byte) {
	f.on(ipmi.NetFnStorage, ipmi.CmdReserveSDRRepository, func([]byte) (ipmi.CompletionCode, []byte) {
		return ipmi.CCSuccess, []byte{0x01, 0x00}
	})
	f.on(ipmi.NetFnStorage, ipmi.CmdGetSDR, func(data []byte) (ipmi.CompletionCode, []byte) {
		id := int(binary.LittleEndian.Uint16(data[2:4]))
		if id >= len(records) {
			return ipmi.CCSensorNotPresent, nil
		}
		rec, off, n := records[id], int(data[4]), int(data[5])
		if f.chunkOnly && n == 0xFF {
			return ipmi.CCCannotReturnRequestedData, nil
		}
		if off > len(rec) {
			return ipmi.CCIllegalParameter, nil
		}
		end := min(off+n, len(rec))

		next := uint16(id + 1)
		if id == len(records)-1 {
			next = ipmi.LastRecordID
		}
		out := []byte{byte(next), byte(next >> 8)}
		return ipmi.CCSuccess, append(out, rec[off:end]...)
	})
}

// fullSDR builds a full sensor record with M=1, B=0 and no exponents.
func fullSDR(number, sensorType, readingType, entity, instance, unit byte, name string) []byte {
	rec := make([]byte, 48, 48+len(name))
	rec[2] = 0x51
	rec[3] = byte(ipmi.RecordFull)
	rec[5] = ipmi.BMCAddress
	rec[7] = number
	rec[8] = entity
	rec[9] = instance
	rec[12] = sensorType
	rec[13] = readingType
	rec[21] = unit
	rec[24] = 0x01
	rec[47] = 0xC0 | byte(len(name))
	rec = append(rec, name...)
	rec[4] = byte(len(rec) - 5)
	return rec
}

// serveSensor answers Get Sensor Type and Get Sensor Reading for number.
func (f *fakeBMC) serveSensor(number, sensorType, readingType byte, reading []byte) {
	types := f.handlers[hkey(ipmi.NetFnSensorEvent, ipmi.CmdGetSensorType)]
	readings := f.handlers[hkey(ipmi.NetFnSensorEvent, ipmi.CmdGetSensorReading)]

	f.on(ipmi.NetFnSensorEvent, ipmi.CmdGetSensorType, func(data []byte) (ipmi.CompletionCode, []byte) {
		if data[0] == number {
			return ipmi.CCSuccess, []byte{sensorType, readingType}
		}
		if types != nil {
			return types(data)
		}
		return ipmi.CCSensorNotPresent, nil
	})
	f.on(ipmi.NetFnSensorEvent, ipmi.CmdGetSensorReading, func(data []byte) (ipmi.CompletionCode, []byte) {
		if data[0] == number {
			return ipmi.CCSuccess, reading
		}
		if readings != nil {
			return readings(data)
		}
		return ipmi.CCSensorNotPresent, nil
	})
}

// ---- observer ----

type recordingObserver struct {
	mu       sync.Mutex
	commands int
	retries  int
	logons   []bool
	sensors  map[byte]float64
}

func (o *recordingObserver) ObserveCommand(byte, ipmi.NetFn, byte, ipmi.Status) {
	o.mu.Lock()
	o.commands++
	o.mu.Unlock()
}

func (o *recordingObserver) ObserveRetry(byte) {
	o.mu.Lock()
	o.retries++
	o.mu.Unlock()
}

func (o *recordingObserver) ObserveLogon(_ byte, ok bool) {
	o.mu.Lock()
	o.logons = append(o.logons, ok)
	o.mu.Unlock()
}

func (o *recordingObserver) ObserveSensor(_ byte, number byte, v float64) {
	o.mu.Lock()
	if o.sensors == nil {
		o.sensors = make(map[byte]float64)
	}
	o.sensors[number] = v
	o.mu.Unlock()
}

// newTestClient wires a client for slot 3 to tr.
func newTestClient(t *testing.T, tr transport.Transport, obs Observer) *Client {
	t.Helper()
	c, err := New(Config{
		DeviceID:    3,
		Credentials: &Credentials{Username: "admin", Password: "secret", AuthType: ipmi.AuthMD5},
		Observer:    obs,
	}, tr)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return c
}
