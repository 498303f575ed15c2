// internal/chassis/mirror_test.go
package chassis

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tamzrod/chassis-manager/internal/ipmi"
	"github.com/tamzrod/chassis-manager/internal/poller"
	"github.com/tamzrod/chassis-manager/internal/status"
)

type recordingWriter struct {
	mu    sync.Mutex
	snaps []status.Snapshot
}

func (w *recordingWriter) WriteStatus(s status.Snapshot) error {
	w.mu.Lock()
	w.snaps = append(w.snaps, s)
	w.mu.Unlock()
	return nil
}

func (w *recordingWriter) all() []status.Snapshot {
	w.mu.Lock()
	defer w.mu.Unlock()
	return append([]status.Snapshot(nil), w.snaps...)
}

func TestMirrorDeliversChanges(t *testing.T) {
	w := &recordingWriter{}
	m := &Mirror{Slot: 2, InletSensor: 0x10, Writer: w, Tick: time.Hour}

	ctx, cancel := context.WithCancel(context.Background())
	in := make(chan poller.PollResult)
	done := make(chan struct{})
	go func() {
		m.Run(ctx, in)
		close(done)
	}()

	fail := &poller.CollectError{Slot: 2, Status: ipmi.Status{Code: ipmi.CCTimeout}}
	in <- poller.PollResult{Slot: 2, Err: fail, RawErrorCode: fail.Code()}
	// unchanged: no delivery
	in <- poller.PollResult{Slot: 2, Err: fail, RawErrorCode: fail.Code()}

	cancel()
	<-done

	snaps := w.all()
	require.Len(t, snaps, 2)
	assert.Equal(t, status.HealthUnknown, snaps[0].Health)
	assert.Equal(t, status.HealthError, snaps[1].Health)
	assert.Equal(t, uint16(ipmi.CCTimeout), snaps[1].LastErrorCode)
}

func TestMirrorTicksWhileInError(t *testing.T) {
	w := &recordingWriter{}
	m := &Mirror{Slot: 2, Writer: w, Tick: 5 * time.Millisecond}

	ctx, cancel := context.WithCancel(context.Background())
	in := make(chan poller.PollResult)
	done := make(chan struct{})
	go func() {
		m.Run(ctx, in)
		close(done)
	}()

	in <- poller.PollResult{Slot: 2, Err: errors.New("down"), RawErrorCode: 1}

	require.Eventually(t, func() bool {
		snaps := w.all()
		return len(snaps) > 0 && snaps[len(snaps)-1].SecondsInError >= 3
	}, 2*time.Second, 5*time.Millisecond)

	cancel()
	<-done
	assert.Equal(t, status.HealthError, m.Snapshot().Health)
}
