// internal/blade/state.go
package blade

import (
	"context"
	"errors"

	"github.com/looplab/fsm"
	"github.com/rs/zerolog"
)

// ConnectionState is the session state of one blade.
type ConnectionState string

const (
	StateDisconnected            ConnectionState = "disconnected"
	StateConnecting              ConnectionState = "connecting"
	StateAuthenticatingChallenge ConnectionState = "authenticating_challenge"
	StateSessionChallenge        ConnectionState = "session_challenge"
	StateAuthenticated           ConnectionState = "authenticated"
	StateInvalid                 ConnectionState = "invalid"
)

// Code is the numeric form mirrored into status memory.
func (s ConnectionState) Code() uint16 {
	switch s {
	case StateDisconnected:
		return 0
	case StateConnecting:
		return 1
	case StateAuthenticatingChallenge:
		return 2
	case StateSessionChallenge:
		return 3
	case StateAuthenticated:
		return 4
	default:
		return 0xFF
	}
}

// ---- events ----

const (
	evConnect    = "connect"
	evChallenge  = "challenge"
	evChallenged = "challenged"
	evActivate   = "activate"
	evReady      = "ready"
	evReset      = "reset"
	evInvalidate = "invalidate"
)

var allStates = []string{
	string(StateDisconnected),
	string(StateConnecting),
	string(StateAuthenticatingChallenge),
	string(StateSessionChallenge),
	string(StateAuthenticated),
	string(StateInvalid),
}

func newStateMachine(logger zerolog.Logger) *fsm.FSM {
	return fsm.NewFSM(
		string(StateDisconnected),
		fsm.Events{
			{Name: evConnect, Src: allStates, Dst: string(StateConnecting)},
			{Name: evChallenge, Src: []string{string(StateConnecting)}, Dst: string(StateAuthenticatingChallenge)},
			{Name: evChallenged, Src: []string{string(StateAuthenticatingChallenge)}, Dst: string(StateSessionChallenge)},
			{Name: evActivate, Src: []string{string(StateSessionChallenge)}, Dst: string(StateAuthenticated)},
			{Name: evReady, Src: []string{string(StateConnecting)}, Dst: string(StateAuthenticated)},
			{Name: evReset, Src: allStates, Dst: string(StateDisconnected)},
			{Name: evInvalidate, Src: allStates, Dst: string(StateInvalid)},
		},
		fsm.Callbacks{
			"enter_state": func(_ context.Context, e *fsm.Event) {
				logger.Debug().Str("from", e.Src).Str("to", e.Dst).Msg("connection state")
			},
		},
	)
}

// fire applies ev. Re-entering the current state is not an error.
func (c *Client) fire(ev string) {
	err := c.state.Event(context.Background(), ev)
	if err == nil {
		return
	}
	var same fsm.NoTransitionError
	if errors.As(err, &same) {
		return
	}
	c.log.Warn().Err(err).Str("event", ev).Str("state", c.state.Current()).Msg("state transition rejected")
}
