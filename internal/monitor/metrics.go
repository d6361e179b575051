// Package monitor exports session metrics in the Prometheus format.
package monitor

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"vnsensor/internal/command"
	"vnsensor/internal/frame"
	"vnsensor/internal/sensor"
)

// Metrics implements sensor.Observer. Each instance has its own registry,
// so several sessions or tests can coexist.
type Metrics struct {
	reg *prometheus.Registry

	bytesReceived prometheus.Counter
	bytesSkipped  prometheus.Counter
	frames        *prometheus.CounterVec
	dropped       prometheus.Counter
	commands      *prometheus.CounterVec
	cmdDuration   prometheus.Histogram
	state         prometheus.Gauge
	syncPulses    prometheus.Counter
	biasUpdates   prometheus.Counter
}

var _ sensor.Observer = (*Metrics)(nil)

func New() *Metrics {
	m := &Metrics{
		reg: prometheus.NewRegistry(),
		bytesReceived: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "vnsensor_received_bytes_total",
			Help: "Bytes read from the serial port.",
		}),
		bytesSkipped: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "vnsensor_skipped_bytes_total",
			Help: "Bytes dropped by the frame decoder while resynchronizing.",
		}),
		frames: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "vnsensor_frames_total",
			Help: "Verified frames by kind.",
		}, []string{"kind"}),
		dropped: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "vnsensor_measurements_dropped_total",
			Help: "Measurements evicted from a full queue.",
		}),
		commands: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "vnsensor_commands_total",
			Help: "Commands by result.",
		}, []string{"result"}),
		cmdDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "vnsensor_command_duration_seconds",
			Help:    "Time from command write to response.",
			Buckets: []float64{.001, .0025, .005, .01, .025, .05, .1, .25, .5, 1, 2},
		}),
		state: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "vnsensor_connection_state",
			Help: "0 closed, 1 opening, 2 open.",
		}),
		syncPulses: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "vnsensor_trigger_pulses_total",
			Help: "SyncIn trigger pulses emitted.",
		}),
		biasUpdates: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "vnsensor_filter_bias_updates_total",
			Help: "SetFilterBias commands sent after a still window.",
		}),
	}
	m.reg.MustRegister(
		m.bytesReceived, m.bytesSkipped, m.frames, m.dropped,
		m.commands, m.cmdDuration, m.state, m.syncPulses, m.biasUpdates,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Registry exposes the registry for extra collectors.
func (m *Metrics) Registry() *prometheus.Registry { return m.reg }

// Handler serves the registry at /metrics.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.reg, promhttp.HandlerOpts{})
}

// WatchSession adds gauges read from s on every scrape.
func (m *Metrics) WatchSession(s *sensor.Sensor) {
	m.reg.MustRegister(
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Name: "vnsensor_queue_depth",
			Help: "Measurements waiting in the queue.",
		}, func() float64 { return float64(s.Status().Queued) }),
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Name: "vnsensor_async_errors",
			Help: "Device errors waiting in the async error queue.",
		}, func() float64 { return float64(s.AsynchronousErrorQueueSize()) }),
	)
}

func (m *Metrics) BytesReceived(n int)          { m.bytesReceived.Add(float64(n)) }
func (m *Metrics) BytesSkipped(n int)           { m.bytesSkipped.Add(float64(n)) }
func (m *Metrics) MeasurementDropped()          { m.dropped.Inc() }
func (m *Metrics) StateChanged(st sensor.State) { m.state.Set(float64(st)) }

func (m *Metrics) FrameDecoded(kind frame.Kind) { m.frames.WithLabelValues(kind.String()).Inc() }

func (m *Metrics) CommandFinished(cmd command.Command, elapsed time.Duration, err error) {
	m.commands.WithLabelValues(commandResult(err)).Inc()
	if err == nil {
		m.cmdDuration.Observe(elapsed.Seconds())
	}
}

// TriggerPulse counts one emitted SyncIn pulse.
func (m *Metrics) TriggerPulse() { m.syncPulses.Inc() }

// BiasUpdate counts one SetFilterBias sent by the bias watcher.
func (m *Metrics) BiasUpdate() { m.biasUpdates.Inc() }
