// internal/blade/client.go
package blade

import (
	"errors"
	"sync"

	"github.com/google/uuid"
	"github.com/looplab/fsm"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/tamzrod/chassis-manager/internal/ipmi"
	"github.com/tamzrod/chassis-manager/internal/transport"
)

// Credentials are used by logon. A nil *Credentials logs on with empty strings.
type Credentials struct {
	Username string
	Password string
	AuthType ipmi.AuthType
}

// Config is the immutable per-slot configuration.
type Config struct {
	DeviceID    byte
	DeviceType  transport.DeviceType
	Credentials *Credentials
	Sensors     SensorConfig
	Observer    Observer
}

// Client is the protocol client of one blade slot.
//
// Locking:
//   - xmu is held for one whole logical operation; helpers ending in Locked
//     expect it to be held and never take it again
//   - smu guards session id, identity, class and the error counter
//   - seq and sensors carry their own locks
//   - state transitions are guarded by the fsm
type Client struct {
	id    byte
	dt    transport.DeviceType
	tr    transport.Transport
	creds *Credentials
	scfg  SensorConfig
	obs   Observer
	log   zerolog.Logger

	xmu sync.Mutex

	smu       sync.RWMutex
	sessionID uint32
	identity  uuid.UUID
	class     ipmi.BladeClass
	errCount  uint16

	seq     sequencer
	state   *fsm.FSM
	sensors sensorCache
}

// New creates the client of one slot. Nothing is sent until the first call.
func New(cfg Config, tr transport.Transport) (*Client, error) {
	if tr == nil {
		return nil, errors.New("blade: transport required")
	}
	if cfg.DeviceType == 0 {
		cfg.DeviceType = transport.DeviceServer
	}
	if cfg.Observer == nil {
		cfg.Observer = nopObserver{}
	}
	if cfg.Sensors.Events == nil {
		cfg.Sensors.Events = DefaultEventStrings()
	}

	c := &Client{
		id:    cfg.DeviceID,
		dt:    cfg.DeviceType,
		tr:    tr,
		creds: cfg.Credentials,
		scfg:  cfg.Sensors,
		obs:   cfg.Observer,
		log:   log.With().Uint8("slot", cfg.DeviceID).Logger(),
	}
	c.seq.reset()
	c.sensors.invalidate()
	c.state = newStateMachine(c.log)
	return c, nil
}

// DeviceID returns the slot address.
func (c *Client) DeviceID() byte { return c.id }

// SessionID returns the active session id (0 = none).
func (c *Client) SessionID() uint32 {
	c.smu.RLock()
	defer c.smu.RUnlock()
	return c.sessionID
}

// Identity returns the cached system GUID.
func (c *Client) Identity() uuid.UUID {
	c.smu.RLock()
	defer c.smu.RUnlock()
	return c.identity
}

// Class returns the cached blade class.
func (c *Client) Class() ipmi.BladeClass {
	c.smu.RLock()
	defer c.smu.RUnlock()
	return c.class
}

// ErrorCount returns the consecutive communication error counter.
func (c *Client) ErrorCount() uint16 {
	c.smu.RLock()
	defer c.smu.RUnlock()
	return c.errCount
}

// State returns the connection state.
func (c *Client) State() ConnectionState {
	return ConnectionState(c.state.Current())
}

func (c *Client) setSession(id uint32) {
	c.smu.Lock()
	c.sessionID = id
	c.smu.Unlock()
}

func (c *Client) setClass(class ipmi.BladeClass) {
	c.smu.Lock()
	c.class = class
	c.smu.Unlock()
}

// setIdentity records the blade GUID. A changed identity means the blade
// was swapped: every cached sensor descriptor is dropped.
func (c *Client) setIdentity(id uuid.UUID) {
	c.smu.Lock()
	changed := c.identity != id
	c.identity = id
	c.smu.Unlock()

	if changed {
		c.sensors.invalidate()
		c.log.Info().Stringer("guid", id).Msg("blade identity changed, sensor cache cleared")
	}
}

// needsSession reports whether session-scoped commands must be held back.
func (c *Client) needsSession() bool {
	c.smu.RLock()
	defer c.smu.RUnlock()
	return c.class == ipmi.ClassCompute && c.sessionID == 0
}

func (c *Client) resetErrors() {
	c.smu.Lock()
	c.errCount = 0
	c.smu.Unlock()
}

// bumpErrors increments the error counter, saturating at 0xFFFF.
func (c *Client) bumpErrors() {
	c.smu.Lock()
	if c.errCount < 0xFFFF {
		c.errCount++
	}
	c.smu.Unlock()
}

// InvalidateSensors drops both sensor descriptor caches. It waits for any
// operation in flight so a running walk cannot repopulate the cache.
func (c *Client) InvalidateSensors() {
	c.xmu.Lock()
	defer c.xmu.Unlock()
	c.sensors.invalidate()
}
