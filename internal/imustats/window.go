// Package imustats keeps a sliding window of angular rate samples and
// decides when the sensor is still enough to re-estimate gyro bias.
package imustats

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"gonum.org/v1/gonum/stat"

	"vnsensor/internal/measurement"
)

// Window holds the newest Size samples per axis.
type Window struct {
	axes [3][]float64
	size int
	next int
	n    int
}

func NewWindow(size int) *Window {
	if size < 2 {
		size = 2
	}
	w := &Window{size: size}
	for i := range w.axes {
		w.axes[i] = make([]float64, size)
	}
	return w
}

func (w *Window) Add(v measurement.Vec3) {
	for i := range w.axes {
		w.axes[i][w.next] = v[i]
	}
	w.next = (w.next + 1) % w.size
	if w.n < w.size {
		w.n++
	}
}

func (w *Window) Full() bool { return w.n == w.size }
func (w *Window) Len() int   { return w.n }

func (w *Window) Reset() { w.next, w.n = 0, 0 }

// Stats returns the per-axis mean and sample standard deviation.
func (w *Window) Stats() (mean, std measurement.Vec3) {
	if w.n < 2 {
		return mean, std
	}
	for i := range w.axes {
		mean[i], std[i] = stat.MeanStdDev(w.axes[i][:w.n], nil)
	}
	return mean, std
}

// Still reports whether the window is full and every axis varies less
// than maxStd.
func (w *Window) Still(maxStd float64) bool {
	if !w.Full() {
		return false
	}
	_, std := w.Stats()
	for _, s := range std {
		if s >= maxStd {
			return false
		}
	}
	return true
}

type WatcherConfig struct {
	Window   int
	MaxStd   float64 // rad/s
	Cooldown time.Duration
}

// Watcher feeds angular rate into a Window and calls apply (normally
// sensor.SetFilterBias) once the sensor has been still for a full window.
type Watcher struct {
	cfg     WatcherConfig
	apply   func(context.Context) error
	onApply func()
	log     logrus.FieldLogger

	mu   sync.Mutex
	win  *Window
	last time.Time
	now  func() time.Time
}

func NewWatcher(cfg WatcherConfig, apply func(context.Context) error, onApply func(), log logrus.FieldLogger) *Watcher {
	if cfg.Window <= 0 {
		cfg.Window = 400
	}
	if cfg.MaxStd <= 0 {
		cfg.MaxStd = 0.002
	}
	if cfg.Cooldown <= 0 {
		cfg.Cooldown = time.Minute
	}
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Watcher{
		cfg:     cfg,
		apply:   apply,
		onApply: onApply,
		log:     log.WithField("component", "imustats"),
		win:     NewWindow(cfg.Window),
		now:     time.Now,
	}
}

// Observe adds m's angular rate, if any. It reports whether apply ran.
func (w *Watcher) Observe(ctx context.Context, m measurement.CompositeData) (bool, error) {
	rate, ok := m.AngularRate()
	if !ok {
		return false, nil
	}
	w.mu.Lock()
	w.win.Add(rate)
	if !w.win.Still(w.cfg.MaxStd) || (!w.last.IsZero() && w.now().Sub(w.last) < w.cfg.Cooldown) {
		w.mu.Unlock()
		return false, nil
	}
	mean, std := w.win.Stats()
	w.win.Reset()
	w.last = w.now()
	w.mu.Unlock()

	if err := w.apply(ctx); err != nil {
		return false, fmt.Errorf("filter bias: %w", err)
	}
	w.log.WithFields(logrus.Fields{"mean": mean, "std": std}).Info("still, filter bias updated")
	if w.onApply != nil {
		w.onApply()
	}
	return true, nil
}

// Snapshot returns the current window statistics.
func (w *Watcher) Snapshot() (n int, mean, std measurement.Vec3) {
	w.mu.Lock()
	defer w.mu.Unlock()
	mean, std = w.win.Stats()
	return w.win.Len(), mean, std
}
