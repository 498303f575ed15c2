// internal/ipmi/frame/frame.go
package frame

import "errors"

// Serial basic-mode framing characters.
// These values are protocol constants and MUST NOT be configurable.
const (
	Start     byte = 0xA0
	Stop      byte = 0xA5
	Handshake byte = 0xA6
	Escape    byte = 0xAA
	DataEsc   byte = 0x1B
)

// ChecksumOffset is the first byte covered by the trailing checksum.
// Bytes before it are framing + the header (which carries its own checksum).
const ChecksumOffset = 4

var (
	ErrShortMessage     = errors.New("frame: message too short for checksum")
	ErrChecksumMismatch = errors.New("frame: checksum mismatch")
)

// escapePair maps one reserved byte to its 2-byte substitute.
type escapePair struct {
	raw byte
	sub [2]byte
}

// escapes is used symmetrically by Encode and Decode.
var escapes = [...]escapePair{
	{raw: Start, sub: [2]byte{Escape, 0xB0}},
	{raw: Stop, sub: [2]byte{Escape, 0xB5}},
	{raw: Escape, sub: [2]byte{Escape, 0xBA}},
	{raw: Handshake, sub: [2]byte{Escape, 0xB6}},
	{raw: DataEsc, sub: [2]byte{Escape, 0x3B}},
}

func substituteFor(b byte) ([2]byte, bool) {
	for _, e := range escapes {
		if e.raw == b {
			return e.sub, true
		}
	}
	return [2]byte{}, false
}

func rawFor(second byte) (byte, bool) {
	for _, e := range escapes {
		if e.sub[1] == second {
			return e.raw, true
		}
	}
	return 0, false
}

// Encode escapes the interior of msg and writes the start/stop characters
// into the first and last positions, which are reserved for framing.
//
// Layout:
//
//	[0] start  [1..n-2] escaped interior  [n-1] stop
func Encode(msg []byte) []byte {
	out := make([]byte, 0, len(msg)+8)
	out = append(out, Start)

	if len(msg) > 2 {
		for _, b := range msg[1 : len(msg)-1] {
			if sub, ok := substituteFor(b); ok {
				out = append(out, sub[0], sub[1])
				continue
			}
			out = append(out, b)
		}
	}

	return append(out, Stop)
}

// Decode replaces every 2-byte substitute with its reserved byte.
// It is a single left-to-right pass: a substitute consumed once is never
// re-examined, so adjacent occurrences cannot overlap.
func Decode(framed []byte) []byte {
	out := make([]byte, 0, len(framed))

	for i := 0; i < len(framed); i++ {
		b := framed[i]
		if b == Escape && i+1 < len(framed) {
			if raw, ok := rawFor(framed[i+1]); ok {
				out = append(out, raw)
				i++
				continue
			}
		}
		out = append(out, b)
	}

	return out
}

// Checksum returns the two's-complement of the byte sum, so that
// sum(b) + Checksum(b) == 0 (mod 256).
func Checksum(b []byte) byte {
	var sum byte
	for _, v := range b {
		sum += v
	}
	return -sum
}

// Seal writes the trailing checksum of an unframed message in place.
// msg must keep its framing placeholders: checksum at len-2, stop at len-1.
func Seal(msg []byte) {
	if len(msg) < ChecksumOffset+2 {
		return
	}
	msg[len(msg)-2] = Checksum(msg[ChecksumOffset : len(msg)-2])
}

// Verify checks the trailing checksum of a decoded message.
// A mismatch is returned as ErrChecksumMismatch; it never panics.
func Verify(msg []byte) error {
	if len(msg) < ChecksumOffset+2 {
		return ErrShortMessage
	}
	if Checksum(msg[ChecksumOffset:len(msg)-2]) != msg[len(msg)-2] {
		return ErrChecksumMismatch
	}
	return nil
}
