// internal/ipmi/message.go
package ipmi

import (
	"errors"
	"fmt"

	"github.com/tamzrod/chassis-manager/internal/ipmi/frame"
)

// NetFn is the IPMI network function of a request (always even).
type NetFn byte

const (
	NetFnChassis     NetFn = 0x00
	NetFnSensorEvent NetFn = 0x04
	NetFnApp         NetFn = 0x06
	NetFnStorage     NetFn = 0x0A
	NetFnGroupExt    NetFn = 0x2C // DCMI
	NetFnOEMGroup    NetFn = 0x2E // Node Manager (IANA prefixed)
	NetFnOEM         NetFn = 0x30
)

// Response returns the response network function for a request network function.
func (n NetFn) Response() NetFn { return n | 0x01 }

// Addresses used on the serial basic-mode link.
const (
	BMCAddress       byte = 0x20
	MEAddress        byte = 0x2C
	RequesterSync    byte = 0x81
	RequesterAsync   byte = 0x8F
	MinResponseBytes      = 7
)

// Message offsets inside an unescaped, framed message.
//
// Request:  [0]start [1]rsAddr [2]netFn/rsLUN [3]chk1 [4]rqAddr [5]rqSeq/rqLUN [6]cmd [7..]data [n-2]chk2 [n-1]stop
// Response: [0]start [1]rqAddr [2]netFn/rqLUN [3]chk1 [4]rsAddr [5]rqSeq/rsLUN [6]cmd [7]cc [8..]data [n-2]chk2 [n-1]stop
const (
	offAddr1  = 1
	offNetFn  = 2
	offChk1   = 3
	offAddr2  = 4
	offSeq    = 5
	offCmd    = 6
	offData   = 7
	headerLen = 7
)

// Request is implemented by every typed command.
type Request interface {
	NetFn() NetFn
	Command() byte
	Data() []byte
}

// Response is implemented by every typed response.
// Unmarshal receives the data following the completion code and is only
// called when the completion code is success.
type Response interface {
	ResponseStatus() *Status
	Unmarshal(data []byte) error
}

// Sessionless marks requests that are valid without an active session.
type Sessionless interface {
	Sessionless()
}

// SessionScoped reports whether req requires an established session.
func SessionScoped(req Request) bool {
	_, ok := req.(Sessionless)
	return !ok
}

var (
	ErrShortResponse   = errors.New("ipmi: response shorter than header")
	ErrUnexpectedAddr  = errors.New("ipmi: unexpected response address")
	ErrShortData       = errors.New("ipmi: response data too short")
	ErrSequenceMissing = errors.New("ipmi: response sequence mismatch")
)

// BuildRequest lays out an unframed request message with framing placeholders
// and both checksums filled in.
func BuildRequest(rsAddr, rqAddr byte, netFn NetFn, cmd, seq byte, data []byte) []byte {
	msg := make([]byte, headerLen+len(data)+2)

	msg[offAddr1] = rsAddr
	msg[offNetFn] = byte(netFn) << 2
	msg[offChk1] = frame.Checksum(msg[offAddr1:offChk1])
	msg[offAddr2] = rqAddr
	msg[offSeq] = (seq & 0x3F) << 2
	msg[offCmd] = cmd
	copy(msg[offData:], data)

	msg[0] = frame.Start
	msg[len(msg)-1] = frame.Stop
	frame.Seal(msg)
	return msg
}

// BuildResponse lays out an unframed response message. Used by loopback
// transports and tests that emulate a BMC.
func BuildResponse(rqAddr byte, netFn NetFn, cmd, seq byte, cc CompletionCode, data []byte) []byte {
	body := append([]byte{byte(cc)}, data...)
	return BuildRequest(rqAddr, BMCAddress, netFn.Response(), cmd, seq, body)
}

// Header is the parsed header of a decoded response message.
type Header struct {
	RqAddr byte
	NetFn  NetFn
	RsAddr byte
	Seq    byte
	Cmd    byte
	Code   CompletionCode
}

// PlausibleResponse reports whether an escaped payload carries a response
// header worth decoding.
func PlausibleResponse(payload []byte) bool {
	if len(payload) < MinResponseBytes {
		return false
	}
	return payload[offAddr1] == RequesterSync || payload[offAddr1] == RequesterAsync
}

// ParseResponse splits a decoded, checksum-verified response message into its
// header and data.
func ParseResponse(msg []byte) (Header, []byte, error) {
	// header + completion code + chk2 + stop
	if len(msg) < headerLen+3 {
		return Header{}, nil, ErrShortResponse
	}
	h := Header{
		RqAddr: msg[offAddr1],
		NetFn:  NetFn(msg[offNetFn] >> 2),
		RsAddr: msg[offAddr2],
		Seq:    msg[offSeq] >> 2,
		Cmd:    msg[offCmd],
		Code:   CompletionCode(msg[offData]),
	}
	if h.RqAddr != RequesterSync && h.RqAddr != RequesterAsync {
		return h, nil, fmt.Errorf("%w: 0x%02X", ErrUnexpectedAddr, h.RqAddr)
	}
	return h, msg[offData+1 : len(msg)-2], nil
}

// ParseRequest is the inverse of BuildRequest, used by emulated BMCs.
func ParseRequest(msg []byte) (rqAddr byte, netFn NetFn, cmd, seq byte, data []byte, err error) {
	if len(msg) < headerLen+2 {
		return 0, 0, 0, 0, nil, ErrShortResponse
	}
	if err := frame.Verify(msg); err != nil {
		return 0, 0, 0, 0, nil, err
	}
	return msg[offAddr2], NetFn(msg[offNetFn] >> 2), msg[offCmd], msg[offSeq] >> 2, msg[offData : len(msg)-2], nil
}

// BroadcastEntry is one (sub-address, completion code) pair of a broadcast reply.
type BroadcastEntry struct {
	SubAddress byte           `json:"sub_address" yaml:"sub_address"`
	Code       CompletionCode `json:"code" yaml:"code"`
}

// ParseBroadcast decodes a verified async reply. The body following the
// command byte is a flat list of pairs.
func ParseBroadcast(msg []byte) (seq byte, entries []BroadcastEntry, err error) {
	if len(msg) < headerLen+2 {
		return 0, nil, ErrShortResponse
	}
	if msg[offAddr1] != RequesterAsync {
		return 0, nil, fmt.Errorf("%w: 0x%02X", ErrUnexpectedAddr, msg[offAddr1])
	}
	body := msg[offData : len(msg)-2]
	if len(body)%2 != 0 {
		return 0, nil, fmt.Errorf("%w: odd broadcast body of %d bytes", ErrShortData, len(body))
	}
	for i := 0; i < len(body); i += 2 {
		entries = append(entries, BroadcastEntry{SubAddress: body[i], Code: CompletionCode(body[i+1])})
	}
	return msg[offSeq] >> 2, entries, nil
}

// need returns ErrShortData when data is shorter than n.
func need(data []byte, n int, what string) error {
	if len(data) < n {
		return fmt.Errorf("%w: %s needs %d bytes, got %d", ErrShortData, what, n, len(data))
	}
	return nil
}
