// internal/metrics/metrics.go
package metrics

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/tamzrod/chassis-manager/internal/ipmi"
)

const namespace = "chassis"

// Observer exports blade protocol events. It implements blade.Observer.
type Observer struct {
	reg prometheus.Gatherer

	commands *prometheus.CounterVec
	retries  *prometheus.CounterVec
	logons   *prometheus.CounterVec
	sensors  *prometheus.GaugeVec
	health   *prometheus.GaugeVec
	errSecs  *prometheus.GaugeVec
}

// New registers the collectors on a fresh registry.
func New() (*Observer, error) {
	reg := prometheus.NewRegistry()
	o := &Observer{reg: reg}
	o.commands = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ipmi",
			Name:      "commands_total",
			Help:      "IPMI commands by completion code.",
		},
		[]string{"slot", "netfn", "cmd", "code"},
	)
	o.retries = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ipmi",
			Name:      "session_retries_total",
			Help:      "Session-loss recoveries attempted.",
		},
		[]string{"slot"},
	)
	o.logons = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ipmi",
			Name:      "logons_total",
			Help:      "Session logons by result.",
		},
		[]string{"slot", "success"},
	)
	o.sensors = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "blade",
			Name:      "sensor_value",
			Help:      "Last converted analog sensor reading.",
		},
		[]string{"slot", "sensor"},
	)
	o.health = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "blade",
			Name:      "health",
			Help:      "Blade health code (0 unknown, 1 ok, 2 error).",
		},
		[]string{"slot"},
	)
	o.errSecs = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "blade",
			Name:      "seconds_in_error",
			Help:      "Seconds the blade has been in error.",
		},
		[]string{"slot"},
	)

	for _, c := range []prometheus.Collector{o.commands, o.retries, o.logons, o.sensors, o.health, o.errSecs} {
		if err := reg.Register(c); err != nil {
			return nil, fmt.Errorf("metrics: register: %w", err)
		}
	}
	return o, nil
}

// Handler serves the registry in the Prometheus exposition format.
func (o *Observer) Handler() http.Handler {
	return promhttp.HandlerFor(o.reg, promhttp.HandlerOpts{})
}

func slotLabel(slot byte) string { return strconv.Itoa(int(slot)) }
func hexLabel(b byte) string     { return fmt.Sprintf("0x%02X", b) }

func (o *Observer) ObserveCommand(slot byte, netFn ipmi.NetFn, cmd byte, st ipmi.Status) {
	code := hexLabel(byte(st.Code))
	if st.Transport != ipmi.TransportSuccess {
		code = "transport_" + hexLabel(byte(st.Transport))
	}
	o.commands.WithLabelValues(slotLabel(slot), hexLabel(byte(netFn)), hexLabel(cmd), code).Inc()
}

func (o *Observer) ObserveRetry(slot byte) {
	o.retries.WithLabelValues(slotLabel(slot)).Inc()
}

func (o *Observer) ObserveLogon(slot byte, ok bool) {
	o.logons.WithLabelValues(slotLabel(slot), strconv.FormatBool(ok)).Inc()
}

func (o *Observer) ObserveSensor(slot, number byte, value float64) {
	o.sensors.WithLabelValues(slotLabel(slot), hexLabel(number)).Set(value)
}

// ObserveHealth publishes the status mirror view of one blade.
func (o *Observer) ObserveHealth(slot byte, health, secondsInError uint16) {
	o.health.WithLabelValues(slotLabel(slot)).Set(float64(health))
	o.errSecs.WithLabelValues(slotLabel(slot)).Set(float64(secondsInError))
}
