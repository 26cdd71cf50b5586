// Package metrics exports controller activity as Prometheus metrics.
//
// A Metrics value is a cycle.Observer: hand it to the controller (next to
// the journal) and every hook becomes a counter or gauge update. Each
// Metrics owns its registry, so tests and several controllers in one
// process never collide on registration.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/daviddao/airlock/pkg/autoclose"
	"github.com/daviddao/airlock/pkg/cycle"
	"github.com/daviddao/airlock/pkg/device"
	"github.com/daviddao/airlock/pkg/isolation"
)

const namespace = "airlock"

// Metrics holds the collectors.
type Metrics struct {
	reg *prometheus.Registry

	started     *prometheus.CounterVec
	completed   *prometheus.CounterVec
	phases      *prometheus.CounterVec
	stalled     *prometheus.CounterVec
	mismatches  *prometheus.CounterVec
	doorTimeout *prometheus.CounterVec
	autoClosed  *prometheus.CounterVec
	active      prometheus.Gauge
	oxygen      *prometheus.GaugeVec
	tankFill    *prometheus.GaugeVec
	duration    *prometheus.HistogramVec
}

// New creates and registers every collector on a fresh registry, together
// with the Go runtime and process collectors.
func New() *Metrics {
	m := &Metrics{
		reg: prometheus.NewRegistry(),
		started: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "cycles_started_total",
			Help: "Cycles started, by airlock and direction.",
		}, []string{"airlock", "direction"}),
		completed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "cycles_completed_total",
			Help: "Cycles that reached done, by airlock and direction.",
		}, []string{"airlock", "direction"}),
		phases: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "phase_transitions_total",
			Help: "Phase entries, by phase entered.",
		}, []string{"phase"}),
		stalled: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "capture_stalled_total",
			Help: "Stalled capture warnings during depressurize.",
		}, []string{"airlock"}),
		mismatches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "isolation_mismatch_total",
			Help: "Gas path checks that found the wrong supply state.",
		}, []string{"airlock", "expected"}),
		doorTimeout: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "door_timeouts_total",
			Help: "Door phases that hit the safety cap and advanced anyway.",
		}, []string{"airlock", "phase"}),
		autoClosed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "doors_auto_closed_total",
			Help: "Doors closed by the auto-close timer.",
		}, []string{"door"}),
		active: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Name: "cycle_active",
			Help: "1 while a cycle is running.",
		}),
		oxygen: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace, Name: "chamber_oxygen_ratio",
			Help: "Last chamber oxygen reading seen at a phase change.",
		}, []string{"airlock"}),
		tankFill: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace, Name: "process_tank_fill_ratio",
			Help: "Fill of the selected process tank at the last phase change.",
		}, []string{"airlock", "tank"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace, Name: "cycle_ticks",
			Help:    "Controller steps per completed cycle.",
			Buckets: prometheus.LinearBuckets(100, 50, 10),
		}, []string{"direction"}),
	}
	m.reg.MustRegister(
		m.started, m.completed, m.phases, m.stalled, m.mismatches,
		m.doorTimeout, m.autoClosed, m.active, m.oxygen, m.tankFill, m.duration,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Registry returns the registry the collectors live on.
func (m *Metrics) Registry() *prometheus.Registry { return m.reg }

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.reg, promhttp.HandlerOpts{Registry: m.reg})
}

// CycleStarted counts a start and marks a cycle active.
func (m *Metrics) CycleStarted(s cycle.Status) {
	m.started.WithLabelValues(s.Airlock, string(s.Direction)).Inc()
	m.active.Set(1)
	m.sample(s)
}

// PhaseChanged counts the phase entered and samples the gauges.
func (m *Metrics) PhaseChanged(s cycle.Status, _ cycle.Phase) {
	m.phases.WithLabelValues(string(s.Phase)).Inc()
	m.sample(s)
}

// CaptureStalled counts a stalled-capture warning.
func (m *Metrics) CaptureStalled(s cycle.Status) {
	m.stalled.WithLabelValues(s.Airlock).Inc()
}

// IsolationMismatch counts a failed supply check by the expected mode.
func (m *Metrics) IsolationMismatch(s cycle.Status, d isolation.Diagnostic) {
	m.mismatches.WithLabelValues(s.Airlock, d.Expected.String()).Inc()
}

// DoorTimeout counts a door phase forced forward.
func (m *Metrics) DoorTimeout(s cycle.Status, _ []device.Door) {
	m.doorTimeout.WithLabelValues(s.Airlock, string(s.Phase)).Inc()
}

// CycleDone counts the completion and records its length in ticks.
func (m *Metrics) CycleDone(s cycle.Status) {
	m.completed.WithLabelValues(s.Airlock, string(s.Direction)).Inc()
	m.duration.WithLabelValues(string(s.Direction)).Observe(float64(s.Ticks))
	m.active.Set(0)
	m.sample(s)
}

// AutoClosed counts a door closed by the timer. Its signature matches
// scheduler.AutoCloseFunc.
func (m *Metrics) AutoClosed(_ int64, c autoclose.Closed) {
	m.autoClosed.WithLabelValues(c.Door.Name()).Inc()
}

func (m *Metrics) sample(s cycle.Status) {
	m.oxygen.WithLabelValues(s.Airlock).Set(s.Oxygen)
	if s.Tank != "" {
		m.tankFill.WithLabelValues(s.Airlock, s.Tank).Set(s.TankFill)
	}
}

var _ cycle.Observer = (*Metrics)(nil)
