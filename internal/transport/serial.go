// internal/transport/serial.go
package transport

import (
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"go.bug.st/serial"

	"github.com/tamzrod/chassis-manager/internal/ipmi"
	"github.com/tamzrod/chassis-manager/internal/ipmi/frame"
)

// Port is the subset of serial.Port the line uses.
type Port interface {
	io.ReadWriteCloser
	SetReadTimeout(t time.Duration) error
	ResetInputBuffer() error
}

// SerialConfig describes one serial line.
type SerialConfig struct {
	Address  string
	BaudRate int
	DataBits int
	Parity   serial.Parity
	StopBits serial.StopBits

	// Timeout bounds one request/response exchange.
	Timeout time.Duration
}

const (
	defaultBaud    = 115200
	defaultTimeout = 500 * time.Millisecond
	readPoll       = 20 * time.Millisecond
	maxFrame       = 512
)

// Serial is one half-duplex line shared by every device attached to it.
// Exactly one exchange is on the wire at a time; high priority waiters
// are admitted before low priority ones.
type Serial struct {
	address string
	timeout time.Duration

	gate *gate

	mu     sync.Mutex
	port   Port
	closed bool
}

// OpenSerial opens the port described by cfg.
func OpenSerial(cfg SerialConfig) (*Serial, error) {
	mode := &serial.Mode{
		BaudRate: cfg.BaudRate,
		DataBits: cfg.DataBits,
		Parity:   cfg.Parity,
		StopBits: cfg.StopBits,
	}
	if mode.BaudRate == 0 {
		mode.BaudRate = defaultBaud
	}
	if mode.DataBits == 0 {
		mode.DataBits = 8
	}

	port, err := serial.Open(cfg.Address, mode)
	if err != nil {
		return nil, fmt.Errorf("transport: open %s: %w", cfg.Address, err)
	}

	s, err := NewSerial(cfg.Address, port, cfg.Timeout)
	if err != nil {
		_ = port.Close()
		return nil, err
	}
	return s, nil
}

// NewSerial wraps an already open port.
func NewSerial(address string, port Port, timeout time.Duration) (*Serial, error) {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	if err := port.SetReadTimeout(readPoll); err != nil {
		return nil, fmt.Errorf("transport: %s: set read timeout: %w", address, err)
	}
	return &Serial{
		address: address,
		timeout: timeout,
		gate:    newGate(),
		port:    port,
	}, nil
}

func (s *Serial) SendReceive(pri Priority, dt DeviceType, id byte, req []byte) ([]byte, error) {
	s.gate.acquire(pri)
	defer s.gate.release()

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil, ErrClosed
	}

	// drop anything a previous exchange left behind
	_ = s.port.ResetInputBuffer()

	if _, err := s.port.Write(req); err != nil {
		return nil, fmt.Errorf("transport: %s: write: %w", s.address, err)
	}

	resp, code, err := s.readFrame()
	if err != nil {
		return nil, fmt.Errorf("transport: %s: read: %w", s.address, err)
	}
	if code != ipmi.TransportSuccess {
		log.Debug().
			Str("line", s.address).
			Uint8("device", id).
			Stringer("code", code).
			Msg("serial exchange failed")
	}
	return Prefix(byte(code), dt, id, resp), nil
}

// readFrame collects one start..stop frame. Handshake characters before the
// start byte are skipped. No start byte before the deadline is a handshake
// timeout; a start without a stop is a malformed packet.
func (s *Serial) readFrame() ([]byte, ipmi.TransportCode, error) {
	deadline := time.Now().Add(s.timeout)
	buf := make([]byte, 64)
	var out []byte

	for time.Now().Before(deadline) {
		n, err := s.port.Read(buf)
		if err != nil {
			return nil, 0, err
		}

		for _, b := range buf[:n] {
			if len(out) == 0 {
				if b == frame.Start {
					out = append(out, b)
				}
				continue
			}
			out = append(out, b)
			if b == frame.Stop {
				return out, ipmi.TransportSuccess, nil
			}
			if len(out) > maxFrame {
				return nil, ipmi.TransportMalformedPacket, nil
			}
		}
	}

	if len(out) == 0 {
		return nil, ipmi.TransportHandshakeTimeout, nil
	}
	return nil, ipmi.TransportMalformedPacket, nil
}

// Close releases the port. Later exchanges fail with ErrClosed.
func (s *Serial) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true
	return s.port.Close()
}

// ------------------------------------------------------------
// Priority gate
// ------------------------------------------------------------

type gate struct {
	mu          sync.Mutex
	cond        *sync.Cond
	busy        bool
	waitingHigh int
}

func newGate() *gate {
	g := &gate{}
	g.cond = sync.NewCond(&g.mu)
	return g
}

func (g *gate) acquire(pri Priority) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if pri == PriorityHigh {
		g.waitingHigh++
		for g.busy {
			g.cond.Wait()
		}
		g.waitingHigh--
	} else {
		for g.busy || g.waitingHigh > 0 {
			g.cond.Wait()
		}
	}
	g.busy = true
}

func (g *gate) release() {
	g.mu.Lock()
	g.busy = false
	g.mu.Unlock()
	g.cond.Broadcast()
}
