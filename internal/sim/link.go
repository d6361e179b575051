package sim

import (
	"io"
	"sync"
	"time"
)

// pipe is a one-directional byte buffer whose reads give up after a
// timeout, like a serial port configured with VTIME.
type pipe struct {
	mu     sync.Mutex
	buf    []byte
	closed bool
	notify chan struct{}
}

func newPipe() *pipe {
	return &pipe{notify: make(chan struct{})}
}

func (p *pipe) write(b []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return io.ErrClosedPipe
	}
	p.buf = append(p.buf, b...)
	close(p.notify)
	p.notify = make(chan struct{})
	return nil
}

func (p *pipe) read(b []byte, timeout time.Duration) (int, error) {
	var timer *time.Timer
	for {
		p.mu.Lock()
		if len(p.buf) > 0 {
			n := copy(b, p.buf)
			p.buf = p.buf[n:]
			p.mu.Unlock()
			if timer != nil {
				timer.Stop()
			}
			return n, nil
		}
		if p.closed {
			p.mu.Unlock()
			return 0, io.ErrClosedPipe
		}
		wait := p.notify
		p.mu.Unlock()

		if timer == nil {
			timer = time.NewTimer(timeout)
		}
		select {
		case <-wait:
		case <-timer.C:
			return 0, nil
		}
	}
}

func (p *pipe) close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return
	}
	p.closed = true
	close(p.notify)
}

// hostPort is the host end of a simulated serial link. It satisfies
// transport.Port.
type hostPort struct {
	dev  *Device
	baud int
	rx   *pipe
	done chan struct{}

	closeOnce sync.Once
}

func (p *hostPort) Read(b []byte) (int, error) {
	return p.rx.read(b, readTimeout)
}

func (p *hostPort) Write(b []byte) (int, error) {
	if err := p.dev.fromHost(p, b); err != nil {
		return 0, err
	}
	return len(b), nil
}

func (p *hostPort) Close() error {
	p.closeOnce.Do(func() {
		close(p.done)
		p.rx.close()
		p.dev.detach(p)
	})
	return nil
}

// garble models bytes sent at one baud and sampled at another: every bit
// lands in the wrong place.
func garble(b []byte) []byte {
	out := make([]byte, len(b))
	for i, c := range b {
		out[i] = ^c
	}
	return out
}
