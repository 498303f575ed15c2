// internal/chassis/builder.go
package chassis

import (
	"fmt"
	"time"

	"github.com/tamzrod/chassis-manager/internal/blade"
	cfg "github.com/tamzrod/chassis-manager/internal/config"
	"github.com/tamzrod/chassis-manager/internal/ipmi"
	"github.com/tamzrod/chassis-manager/internal/transport"
)

// Opener opens one serial line.
type Opener func(transport.SerialConfig) (transport.Transport, error)

// OpenSerial is the Opener backed by real ports.
func OpenSerial(sc transport.SerialConfig) (transport.Transport, error) {
	s, err := transport.OpenSerial(sc)
	if err != nil {
		return nil, err
	}
	return s, nil
}

// Build wires config into one client per blade, all sharing a Mux over
// the configured lines. The returned closer releases every line.
// Assumes config has already been validated and normalized.
func Build(c *cfg.Config, obs blade.Observer, open Opener) (*blade.Registry, func() error, error) {
	ch := &c.Chassis
	mux := transport.NewMux()

	fail := func(err error) (*blade.Registry, func() error, error) {
		_ = mux.Close()
		return nil, nil, err
	}

	// ---- lines ----
	for _, p := range ch.Transport.Ports {
		tr, err := open(transport.SerialConfig{
			Address:  p.Address,
			BaudRate: p.Baud,
			Timeout:  time.Duration(p.TimeoutMs) * time.Millisecond,
		})
		if err != nil {
			return fail(err)
		}

		ids := make([]byte, 0, len(p.Slots))
		for _, s := range p.Slots {
			ids = append(ids, byte(s))
		}
		if err := mux.Attach(tr, ids...); err != nil {
			return fail(fmt.Errorf("chassis: port %s: %w", p.Address, err))
		}
	}

	creds, err := Credentials(ch.Credentials)
	if err != nil {
		return fail(err)
	}
	sensors, err := SensorConfig(ch.Sensors)
	if err != nil {
		return fail(err)
	}

	// ---- clients ----
	clients := make([]*blade.Client, 0, len(ch.Blades))
	for _, b := range ch.Blades {
		cl, err := blade.New(blade.Config{
			DeviceID:    b.Slot,
			Credentials: creds,
			Sensors:     sensors,
			Observer:    obs,
		}, mux)
		if err != nil {
			return fail(fmt.Errorf("chassis: blade %d: %w", b.Slot, err))
		}
		clients = append(clients, cl)
	}

	reg, err := blade.NewRegistry(clients...)
	if err != nil {
		return fail(err)
	}
	return reg, mux.Close, nil
}

// Credentials converts the credentials section.
func Credentials(cc cfg.CredentialsConfig) (*blade.Credentials, error) {
	at, err := ipmi.ParseAuthType(cc.AuthType)
	if err != nil {
		return nil, fmt.Errorf("chassis: credentials: %w", err)
	}
	return &blade.Credentials{
		Username: cc.Username,
		Password: cc.Password,
		AuthType: at,
	}, nil
}

// SensorConfig converts the sensors section. Configured event strings are
// applied on top of the defaults.
func SensorConfig(sc cfg.SensorsConfig) (blade.SensorConfig, error) {
	out := blade.SensorConfig{
		Inlet: blade.InletCorrection{
			Enabled: sc.Inlet.Enabled,
			Sensor:  sc.Inlet.Sensor,
		},
		PrimaryRecordID: sc.PrimaryRecordID,
	}
	for _, e := range sc.Inlet.Entries {
		out.Inlet.Entries = append(out.Inlet.Entries, blade.InletEntry{
			ManufacturerID: e.ManufacturerID,
			ProductID:      e.ProductID,
			Offset:         e.Offset,
		})
	}

	over := make(blade.EventStrings, len(sc.Events))
	for _, e := range sc.Events {
		class, err := blade.ParseEventClass(e.Class)
		if err != nil {
			return blade.SensorConfig{}, fmt.Errorf("chassis: sensors: %w", err)
		}
		over[blade.EventKey{Class: class, Code: e.Code, Ordinal: blade.EventState(e.Ordinal)}] = e.Text
	}
	out.Events = blade.DefaultEventStrings().Merge(over)
	return out, nil
}
