// internal/status/snapshot.go
package status

// Snapshot represents exactly what the writer is allowed to deliver.
// It contains no logic and no memory of the past beyond current state.
type Snapshot struct {
	Health          uint16
	LastErrorCode   uint16
	SecondsInError  uint16
	ConnectionState uint16
	ErrorCount      uint16
	BladeClass      uint16
	InletTemp       uint16
	PowerWatts      uint16
}

// Initial is the snapshot asserted before the first poll completes.
func Initial() Snapshot {
	return Snapshot{
		Health:     HealthUnknown,
		InletTemp:  InletUnavailable,
		PowerWatts: PowerUnavailable,
	}
}

// Observation is the outcome of one poll cycle, reduced to what the
// status block carries.
type Observation struct {
	// Failed means the blade could not be classified or reached.
	Failed bool
	// Disabled means the blade answered but its class is unknown.
	Disabled bool
	// Code is the failing code, or the partial error of a collected status.
	Code uint16

	ConnectionState uint16
	ErrorCount      uint16
	BladeClass      uint16
	InletCelsius    *float64
	PowerWatts      *uint16
}

// Tracker owns the snapshot of one blade. It is not safe for concurrent use;
// the orchestrator goroutine of the blade is its only user.
type Tracker struct {
	snap Snapshot
}

func NewTracker() *Tracker {
	return &Tracker{snap: Initial()}
}

func (t *Tracker) Snapshot() Snapshot { return t.snap }

// Apply folds a poll outcome into the snapshot and reports whether
// anything changed. seconds_in_error is reset on recovery only; it
// increments on Tick.
func (t *Tracker) Apply(o Observation) bool {
	prev := t.snap
	s := &t.snap

	switch {
	case o.Failed:
		s.Health = HealthError
		s.LastErrorCode = o.Code
	case o.Disabled:
		s.Health = HealthDisabled
		s.LastErrorCode = o.Code
	case o.Code != 0:
		s.Health = HealthDegraded
		s.LastErrorCode = o.Code
	default:
		s.Health = HealthOK
		s.LastErrorCode = 0
		s.SecondsInError = 0
	}

	s.ConnectionState = o.ConnectionState
	s.ErrorCount = o.ErrorCount
	s.BladeClass = o.BladeClass

	// a failed cycle keeps the last known readings
	if !o.Failed {
		s.InletTemp = EncodeInlet(o.InletCelsius)
		s.PowerWatts = PowerUnavailable
		if o.PowerWatts != nil {
			s.PowerWatts = *o.PowerWatts
		}
	}

	return *s != prev
}

// Tick advances seconds_in_error while the blade is not OK. It reports
// whether the snapshot changed.
func (t *Tracker) Tick() bool {
	if t.snap.Health == HealthOK {
		return false
	}
	if t.snap.SecondsInError >= MaxSecondsInError {
		return false
	}
	t.snap.SecondsInError++
	return true
}
