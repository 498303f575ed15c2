// internal/poller/poller_test.go
package poller

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/tamzrod/chassis-manager/internal/blade"
	"github.com/tamzrod/chassis-manager/internal/ipmi"
	"github.com/tamzrod/chassis-manager/internal/status"
	"github.com/tamzrod/chassis-manager/internal/transport"
)

var testGUID = uuid.MustParse("6f1c2d3e-4a5b-4c6d-8e7f-112233445566")

type fakeClient struct {
	state       blade.ConnectionState
	initialized int
	hs          *blade.HardwareStatus
	sections    blade.Sections
}

func (f *fakeClient) DeviceID() byte               { return 7 }
func (f *fakeClient) State() blade.ConnectionState { return f.state }
func (f *fakeClient) ErrorCount() uint16           { return 0 }

func (f *fakeClient) Initialize() bool {
	f.initialized++
	f.state = blade.StateAuthenticated
	return true
}

func (f *fakeClient) HardwareStatus(s blade.Sections, _ transport.Priority) *blade.HardwareStatus {
	f.sections = s
	return f.hs
}

func newPoller(t *testing.T, c Client) *Poller {
	t.Helper()
	p, err := New(Config{Interval: time.Second, Sections: blade.AllSections()}, c)
	if err != nil {
		t.Fatalf("New() err=%v", err)
	}
	return p
}

func TestPollOnce_Success(t *testing.T) {
	inlet := 22.5
	c := &fakeClient{
		state: blade.StateAuthenticated,
		hs: &blade.HardwareStatus{
			Slot:         7,
			Class:        ipmi.ClassCompute.String(),
			GUID:         testGUID,
			PartialError: ipmi.CCInvalidDataField,
			Temperatures: []blade.SensorReading{{Number: 0x10, Value: &inlet}},
			Power:        &blade.PowerStatus{CurrentWatts: 210},
		},
	}

	res := newPoller(t, c).PollOnce()
	if res.Err != nil {
		t.Fatalf("PollOnce err=%v", res.Err)
	}
	if c.initialized != 0 {
		t.Fatalf("authenticated blade should not be re-initialized")
	}
	if res.Slot != 7 || res.RawErrorCode != uint16(ipmi.CCInvalidDataField) {
		t.Fatalf("unexpected result: %+v", res)
	}

	o := res.Observation(0x10)
	if o.Failed || o.Disabled || o.BladeClass != uint16(ipmi.ClassCompute) {
		t.Fatalf("unexpected observation: %+v", o)
	}
	if o.InletCelsius == nil || *o.InletCelsius != 22.5 {
		t.Fatalf("inlet not picked up: %+v", o.InletCelsius)
	}
	if o.PowerWatts == nil || *o.PowerWatts != 210 {
		t.Fatalf("power not picked up: %+v", o.PowerWatts)
	}
	if o.ConnectionState != blade.StateAuthenticated.Code() {
		t.Fatalf("state = %d", o.ConnectionState)
	}
}

func TestPollOnce_Failure(t *testing.T) {
	c := &fakeClient{
		state: blade.StateDisconnected,
		hs:    &blade.HardwareStatus{Slot: 7, Class: ipmi.ClassUnknown.String(), Completion: ipmi.CCTimeout},
	}

	res := newPoller(t, c).PollOnce()
	if res.Err == nil {
		t.Fatalf("expected error, got nil")
	}
	if c.initialized != 1 {
		t.Fatalf("disconnected blade should be initialized once, got %d", c.initialized)
	}

	var ce *CollectError
	if !errors.As(res.Err, &ce) || ce.Code() != uint16(ipmi.CCTimeout) {
		t.Fatalf("unexpected error: %v", res.Err)
	}
	if !res.Observation(0x10).Failed {
		t.Fatalf("observation should be failed")
	}
}

func TestPollOnce_UnknownClassIsDisabled(t *testing.T) {
	c := &fakeClient{
		state: blade.StateInvalid,
		hs: &blade.HardwareStatus{
			Slot:       7,
			Class:      ipmi.ClassUnknown.String(),
			GUID:       testGUID,
			Completion: ipmi.CCInvalidDataField,
		},
	}

	res := newPoller(t, c).PollOnce()
	if res.Err != nil {
		t.Fatalf("unknown class should not fail the cycle: %v", res.Err)
	}

	tr := status.NewTracker()
	tr.Apply(res.Observation(0x10))
	if tr.Snapshot().Health != status.HealthDisabled {
		t.Fatalf("health = %d", tr.Snapshot().Health)
	}
}

func TestNew_Validation(t *testing.T) {
	if _, err := New(Config{Interval: time.Second, Sections: blade.AllSections()}, nil); err == nil {
		t.Fatalf("expected error for nil client")
	}
	if _, err := New(Config{Sections: blade.AllSections()}, &fakeClient{}); err == nil {
		t.Fatalf("expected error for zero interval")
	}
	if _, err := New(Config{Interval: time.Second}, &fakeClient{}); err == nil {
		t.Fatalf("expected error for empty sections")
	}
}

func TestSectionsFromNames(t *testing.T) {
	s := SectionsFromNames([]string{"memory", " PCIe ", "power"})
	if !s.Memory || !s.PCIe || !s.Power || s.FRU || s.Processors {
		t.Fatalf("unexpected sections: %+v", s)
	}
}

func TestRun_EmitsUntilCancelled(t *testing.T) {
	c := &fakeClient{
		state: blade.StateAuthenticated,
		hs:    &blade.HardwareStatus{Slot: 7, Class: ipmi.ClassStorage.String(), GUID: testGUID},
	}
	p, err := New(Config{Interval: 5 * time.Millisecond, Sections: blade.AllSections()}, c)
	if err != nil {
		t.Fatalf("New() err=%v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	out := make(chan PollResult)
	done := make(chan struct{})
	go func() {
		p.Run(ctx, out)
		close(done)
	}()

	select {
	case res := <-out:
		if res.Err != nil {
			t.Fatalf("unexpected error: %v", res.Err)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("no result emitted")
	}

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatalf("Run did not return after cancel")
	}
}
