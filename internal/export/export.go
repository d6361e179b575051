// Package export writes decoded measurements to files, an MQTT broker and
// Redis. Each exporter owns a bounded queue and a writer goroutine, so the
// router sink it exposes never blocks the decode loop.
package export

import (
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"

	"vnsensor/internal/binout"
	"vnsensor/internal/frame"
	"vnsensor/internal/measurement"
	"vnsensor/internal/queue"
	"vnsensor/internal/router"
)

const DefaultQueueCapacity = 1000

// popWait bounds how long the writer goroutine sleeps between checks.
const popWait = 250 * time.Millisecond

// Exporter is a router sink backed by its own writer goroutine.
type Exporter interface {
	Sink(f frame.Frame)
	Close() error
}

// Subscriber is the part of a sensor session exporters attach to.
type Subscriber interface {
	SubscribeToMessage(f router.ASCIIFilter, sink router.Sink) router.ID
	SubscribeToBinaryMessage(f router.BinaryFilter, sink router.Sink) router.ID
}

// Attach subscribes e to every ASCII message and every binary frame.
// Command responses reach the sink too and are skipped when decoding.
func Attach(s Subscriber, e Exporter) []router.ID {
	return []router.ID{
		s.SubscribeToMessage(router.ASCIIFilter{Prefix: "VN"}, e.Sink),
		s.SubscribeToBinaryMessage(router.BinaryFilter{Header: binout.Header{}, Mode: router.NotExactMatch}, e.Sink),
	}
}

type item struct {
	f  frame.Frame
	at time.Time
}

// pump moves frames from a router sink to handle on one goroutine.
type pump struct {
	name   string
	log    logrus.FieldLogger
	q      *queue.Ring[item]
	handle func(measurement.CompositeData) error
	done   chan struct{}

	written atomic.Uint64
	failed  atomic.Uint64
}

func newPump(name string, capacity int, log logrus.FieldLogger, handle func(measurement.CompositeData) error) *pump {
	if capacity <= 0 {
		capacity = DefaultQueueCapacity
	}
	if log == nil {
		log = logrus.StandardLogger()
	}
	p := &pump{
		name:   name,
		log:    log.WithField("exporter", name),
		q:      queue.NewRing[item](capacity),
		handle: handle,
		done:   make(chan struct{}),
	}
	go p.run()
	return p
}

func (p *pump) Sink(f frame.Frame) {
	if p.q.Push(item{f: f, at: time.Now()}) {
		p.log.Debug("export queue full, dropped oldest")
	}
}

func (p *pump) run() {
	defer close(p.done)
	for {
		it, ok, err := p.q.PopNext(popWait)
		if err != nil {
			return
		}
		if !ok {
			continue
		}
		m, ok, err := measurement.FromFrame(it.f, it.at)
		if err != nil {
			p.log.WithError(err).Debug("decode")
			continue
		}
		if !ok {
			continue
		}
		if err := p.handle(m); err != nil {
			if p.failed.Add(1) == 1 {
				p.log.WithError(err).Warn("export failed")
			}
			continue
		}
		p.written.Add(1)
	}
}

// close stops accepting frames, drains what is queued and waits for the
// writer goroutine.
func (p *pump) close() {
	p.q.Close()
	<-p.done
}

// Written is the number of measurements handed off successfully.
func (p *pump) Written() uint64 { return p.written.Load() }

// Dropped counts frames evicted from the queue before they were written.
func (p *pump) Dropped() uint64 { return p.q.Dropped() }
