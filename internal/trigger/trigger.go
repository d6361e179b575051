// Package trigger drives a GPIO line wired to the sensor's SyncIn pin, so
// each pulse (a camera exposure, for example) is counted by the device.
package trigger

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"
)

const (
	DefaultWidth  = time.Millisecond
	DefaultPeriod = time.Second
)

// Line is one output line.
type Line interface {
	SetValue(v int) error
	Close() error
}

type Config struct {
	Chip   string
	Offset int
	Width  time.Duration
	Period time.Duration
}

// Pulser emits a Width-long high pulse every Period.
type Pulser struct {
	cfg     Config
	line    Line
	log     logrus.FieldLogger
	onPulse func()

	count atomic.Uint32
}

// NewPulser drives line. onPulse, if set, runs after each pulse.
func NewPulser(line Line, cfg Config, onPulse func(), log logrus.FieldLogger) (*Pulser, error) {
	if line == nil {
		return nil, fmt.Errorf("trigger: nil line")
	}
	if cfg.Width <= 0 {
		cfg.Width = DefaultWidth
	}
	if cfg.Period <= 0 {
		cfg.Period = DefaultPeriod
	}
	if cfg.Width >= cfg.Period {
		return nil, fmt.Errorf("trigger: width %s must be shorter than period %s", cfg.Width, cfg.Period)
	}
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Pulser{cfg: cfg, line: line, log: log.WithField("component", "trigger"), onPulse: onPulse}, nil
}

// Run pulses until ctx is done, then drives the line low.
func (p *Pulser) Run(ctx context.Context) error {
	t := time.NewTicker(p.cfg.Period)
	defer t.Stop()
	defer func() { _ = p.line.SetValue(0) }()
	p.log.WithFields(logrus.Fields{"period": p.cfg.Period, "width": p.cfg.Width}).Info("trigger running")
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-t.C:
			if err := p.Pulse(); err != nil {
				return err
			}
		}
	}
}

// Pulse emits one pulse now.
func (p *Pulser) Pulse() error {
	if err := p.line.SetValue(1); err != nil {
		return fmt.Errorf("trigger high: %w", err)
	}
	time.Sleep(p.cfg.Width)
	if err := p.line.SetValue(0); err != nil {
		return fmt.Errorf("trigger low: %w", err)
	}
	p.count.Add(1)
	if p.onPulse != nil {
		p.onPulse()
	}
	return nil
}

// Count is the number of pulses emitted.
func (p *Pulser) Count() uint32 { return p.count.Load() }

// Missed compares the pulses emitted since a baseline with the device's
// SyncIn count increase over the same span. Positive means the device
// missed pulses.
func Missed(emitted, deviceBase, deviceNow uint32) int64 {
	return int64(emitted) - int64(deviceNow-deviceBase)
}

func (p *Pulser) Close() error { return p.line.Close() }
