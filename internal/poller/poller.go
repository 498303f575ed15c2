// internal/poller/poller.go
package poller

import (
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/tamzrod/chassis-manager/internal/blade"
	"github.com/tamzrod/chassis-manager/internal/ipmi"
	"github.com/tamzrod/chassis-manager/internal/transport"
)

// Client abstracts the blade operations needed by the poller.
type Client interface {
	DeviceID() byte
	State() blade.ConnectionState
	ErrorCount() uint16
	Initialize() bool
	HardwareStatus(sections blade.Sections, pri transport.Priority) *blade.HardwareStatus
}

// Config is the minimal runtime config the poller needs.
type Config struct {
	Interval time.Duration
	Sections blade.Sections
}

// Poller is a dumb, clock-driven reader of one blade.
type Poller struct {
	cfg    Config
	client Client
}

// New creates a poller with immutable config.
func New(cfg Config, client Client) (*Poller, error) {
	if client == nil {
		return nil, errors.New("poller: client required")
	}
	if cfg.Interval <= 0 {
		return nil, errors.New("poller: interval must be > 0")
	}
	if cfg.Sections == (blade.Sections{}) {
		return nil, errors.New("poller: at least one section required")
	}
	return &Poller{cfg: cfg, client: client}, nil
}

// PollOnce performs exactly one poll cycle.
// A blade that is not authenticated is re-initialized first, which also
// picks up a swapped blade.
func (p *Poller) PollOnce() PollResult {
	res := PollResult{
		Slot: p.client.DeviceID(),
		At:   time.Now(),
	}

	if p.client.State() != blade.StateAuthenticated {
		p.client.Initialize()
	}

	hs := p.client.HardwareStatus(p.cfg.Sections, transport.PriorityLow)
	res.Status = hs
	res.State = p.client.State()
	res.ErrorCount = p.client.ErrorCount()

	switch {
	case hs.Completion == ipmi.CCSuccess:
		res.RawErrorCode = uint16(hs.PartialError)
	case hs.GUID != uuid.Nil && hs.Class == ipmi.ClassUnknown.String():
		// reachable, but not a blade we know how to read
		res.RawErrorCode = uint16(hs.Completion)
	default:
		err := &CollectError{Slot: res.Slot, Status: ipmi.Status{Code: hs.Completion}}
		res.RawErrorCode = err.Code()
		res.Err = err
	}
	return res
}
