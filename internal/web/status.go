package web

import (
	"sync/atomic"
	"time"

	"vnsensor/internal/sensor"
)

// Status holds the daemon-level counters shown next to the session status.
type Status struct {
	startUnixNano int64
	measurements  uint64
	lastNano      int64
	biasUpdates   uint64
	info          atomic.Value // map[string]any
}

func NewStatus() *Status {
	s := &Status{}
	now := time.Now().UTC()
	atomic.StoreInt64(&s.startUnixNano, now.UnixNano())
	s.info.Store(map[string]any{})
	return s
}

// SetInfo replaces the static description of the daemon (source, exporters).
func (s *Status) SetInfo(info map[string]any) {
	if info != nil {
		s.info.Store(info)
	}
}

func (s *Status) MarkMeasurement(nowUTC time.Time) {
	if nowUTC.IsZero() {
		nowUTC = time.Now().UTC()
	}
	atomic.StoreInt64(&s.lastNano, nowUTC.UnixNano())
	atomic.AddUint64(&s.measurements, 1)
}

func (s *Status) MarkBiasUpdate() { atomic.AddUint64(&s.biasUpdates, 1) }

type StatusSnapshot struct {
	Service           string         `json:"service"`
	NowUTC            string         `json:"now_utc"`
	UptimeSec         int64          `json:"uptime_sec"`
	Sensor            sensor.Status  `json:"sensor"`
	MeasurementsTotal uint64         `json:"measurements_total"`
	LastMeasurement   string         `json:"last_measurement_utc,omitempty"`
	BiasUpdates       uint64         `json:"bias_updates"`
	Info              map[string]any `json:"info"`
}

func (s *Status) Snapshot(nowUTC time.Time, st sensor.Status) StatusSnapshot {
	if nowUTC.IsZero() {
		nowUTC = time.Now().UTC()
	}
	start := time.Unix(0, atomic.LoadInt64(&s.startUnixNano)).UTC()
	snap := StatusSnapshot{
		Service:           "vnsensor",
		NowUTC:            nowUTC.Format(time.RFC3339Nano),
		UptimeSec:         int64(nowUTC.Sub(start).Seconds()),
		Sensor:            st,
		MeasurementsTotal: atomic.LoadUint64(&s.measurements),
		BiasUpdates:       atomic.LoadUint64(&s.biasUpdates),
	}
	if n := atomic.LoadInt64(&s.lastNano); n > 0 {
		snap.LastMeasurement = time.Unix(0, n).UTC().Format(time.RFC3339Nano)
	}
	if v, ok := s.info.Load().(map[string]any); ok {
		snap.Info = v
	}
	return snap
}
