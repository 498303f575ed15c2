// internal/blade/observer.go
package blade

import "github.com/tamzrod/chassis-manager/internal/ipmi"

// Observer receives protocol events for metrics.
type Observer interface {
	ObserveCommand(slot byte, netFn ipmi.NetFn, cmd byte, st ipmi.Status)
	ObserveRetry(slot byte)
	ObserveLogon(slot byte, ok bool)
	ObserveSensor(slot, number byte, value float64)
}

type nopObserver struct{}

func (nopObserver) ObserveCommand(byte, ipmi.NetFn, byte, ipmi.Status) {}
func (nopObserver) ObserveRetry(byte)                                  {}
func (nopObserver) ObserveLogon(byte, bool)                            {}
func (nopObserver) ObserveSensor(byte, byte, float64)                  {}
