// internal/transport/transport.go
package transport

import (
	"errors"
	"fmt"
	"io"
	"sync"
)

// Priority orders requests competing for one serial line.
type Priority int

const (
	// PriorityLow is used by periodic polling.
	PriorityLow Priority = iota
	// PriorityHigh is used by operator requests and session recovery.
	PriorityHigh
)

func (p Priority) String() string {
	if p == PriorityHigh {
		return "high"
	}
	return "low"
}

// DeviceType identifies the kind of device addressed on the line.
type DeviceType byte

const (
	DeviceServer DeviceType = 0x03
)

// PrefixLen is the size of the validation prefix on every response:
// transport code, device type, device id.
const PrefixLen = 3

var (
	ErrUnknownDevice = errors.New("transport: no line serves device")
	ErrDuplicate     = errors.New("transport: device already attached")
	ErrClosed        = errors.New("transport: line closed")
)

// Transport carries one framed request to a device and returns the
// prefixed response. A non-nil error means the exchange never happened.
type Transport interface {
	SendReceive(pri Priority, dt DeviceType, id byte, req []byte) ([]byte, error)
}

// Func adapts a function to Transport.
type Func func(pri Priority, dt DeviceType, id byte, req []byte) ([]byte, error)

func (f Func) SendReceive(pri Priority, dt DeviceType, id byte, req []byte) ([]byte, error) {
	return f(pri, dt, id, req)
}

// Prefix prepends the validation prefix to payload.
func Prefix(code byte, dt DeviceType, id byte, payload []byte) []byte {
	out := make([]byte, 0, PrefixLen+len(payload))
	out = append(out, code, byte(dt), id)
	return append(out, payload...)
}

// ------------------------------------------------------------
// Mux
// ------------------------------------------------------------

// Mux routes device ids to the line that serves them.
type Mux struct {
	mu    sync.RWMutex
	lines map[byte]Transport
}

func NewMux() *Mux {
	return &Mux{lines: make(map[byte]Transport)}
}

// Attach registers t for every id. No id may be served twice.
func (m *Mux) Attach(t Transport, ids ...byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, id := range ids {
		if _, ok := m.lines[id]; ok {
			return fmt.Errorf("%w: %d", ErrDuplicate, id)
		}
	}
	for _, id := range ids {
		m.lines[id] = t
	}
	return nil
}

func (m *Mux) SendReceive(pri Priority, dt DeviceType, id byte, req []byte) ([]byte, error) {
	m.mu.RLock()
	t, ok := m.lines[id]
	m.mu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("%w: %d", ErrUnknownDevice, id)
	}
	return t.SendReceive(pri, dt, id, req)
}

// Close closes every distinct line that is an io.Closer.
func (m *Mux) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	seen := make(map[io.Closer]bool)
	var errs []error
	for _, t := range m.lines {
		c, ok := t.(io.Closer)
		if !ok || seen[c] {
			continue
		}
		seen[c] = true
		if err := c.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	m.lines = make(map[byte]Transport)
	return errors.Join(errs...)
}
