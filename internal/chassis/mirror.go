// internal/chassis/mirror.go
package chassis

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/tamzrod/chassis-manager/internal/poller"
	"github.com/tamzrod/chassis-manager/internal/status"
	"github.com/tamzrod/chassis-manager/internal/writer"
)

// HealthObserver receives every snapshot change. *metrics.Observer
// implements it.
type HealthObserver interface {
	ObserveHealth(slot byte, health, secondsInError uint16)
}

// Mirror owns the status snapshot of one blade: it folds poll results in,
// advances seconds_in_error on a 1 Hz ticker and delivers every change.
type Mirror struct {
	Slot        byte
	InletSensor byte
	Writer      writer.StatusWriter // nil = status memory disabled
	Health      HealthObserver      // optional

	// Tick defaults to one second.
	Tick time.Duration

	tracker *status.Tracker
}

// Run consumes results until ctx is done. It is the only user of the
// tracker, so no locking is needed.
func (m *Mirror) Run(ctx context.Context, in <-chan poller.PollResult) {
	m.tracker = status.NewTracker()
	logger := log.With().Uint8("slot", m.Slot).Logger()

	tick := m.Tick
	if tick <= 0 {
		tick = time.Second
	}
	secTicker := time.NewTicker(tick)
	defer secTicker.Stop()

	// Full block write on start (identity re-assert).
	m.deliver("start")

	for {
		select {
		case <-ctx.Done():
			return

		case res := <-in:
			if res.Err != nil {
				logger.Warn().Err(res.Err).Msg("poll failed")
			} else if res.RawErrorCode != 0 {
				logger.Debug().Uint16("code", res.RawErrorCode).Msg("poll completed with item failures")
			}
			if m.tracker.Apply(res.Observation(m.InletSensor)) {
				m.deliver("poll")
			}

		case <-secTicker.C:
			// seconds_in_error increments here only
			if m.tracker.Tick() {
				m.deliver("tick")
			}
		}
	}
}

// Snapshot returns the current snapshot. Only valid from the Run goroutine
// or after Run returned.
func (m *Mirror) Snapshot() status.Snapshot {
	if m.tracker == nil {
		return status.Initial()
	}
	return m.tracker.Snapshot()
}

func (m *Mirror) deliver(reason string) {
	s := m.tracker.Snapshot()
	if m.Health != nil {
		m.Health.ObserveHealth(m.Slot, s.Health, s.SecondsInError)
	}
	if m.Writer == nil {
		return
	}
	if err := m.Writer.WriteStatus(s); err != nil {
		log.Warn().Err(err).Uint8("slot", m.Slot).Str("reason", reason).Msg("status write failed")
	}
}
