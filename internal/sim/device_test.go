package sim

import (
	"strings"
	"sync"
	"testing"
	"time"

	"vnsensor/internal/binout"
	"vnsensor/internal/frame"
	"vnsensor/internal/measurement"
	"vnsensor/internal/register"
	"vnsensor/internal/transport"
)

// collector drains a port through a frame decoder in the background.
type collector struct {
	mu      sync.Mutex
	frames  []frame.Frame
	skipped int
	done    chan struct{}
}

func collect(t *testing.T, p transport.Port) *collector {
	t.Helper()
	c := &collector{done: make(chan struct{})}
	dec := frame.NewDecoder(func(f frame.Frame) {
		c.mu.Lock()
		c.frames = append(c.frames, f)
		c.mu.Unlock()
	}, func(b []byte) {
		c.mu.Lock()
		c.skipped += len(b)
		c.mu.Unlock()
	})
	go func() {
		defer close(c.done)
		buf := make([]byte, 512)
		for {
			n, err := p.Read(buf)
			if err != nil {
				return
			}
			dec.Feed(buf[:n])
		}
	}()
	t.Cleanup(func() {
		_ = p.Close()
		<-c.done
	})
	return c
}

func (c *collector) waitFor(t *testing.T, timeout time.Duration, pred func(frame.Frame) bool) frame.Frame {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		c.mu.Lock()
		for _, f := range c.frames {
			if pred(f) {
				c.mu.Unlock()
				return f
			}
		}
		c.mu.Unlock()
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("no matching frame within %v", timeout)
	return frame.Frame{}
}

func (c *collector) count() (int, int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.frames), c.skipped
}

func send(t *testing.T, p transport.Port, body string) {
	t.Helper()
	if _, err := p.Write(frame.AppendASCII(nil, body, frame.ChecksumCRC16)); err != nil {
		t.Fatalf("Write: %v", err)
	}
}

func bodyPrefix(prefix string) func(frame.Frame) bool {
	return func(f frame.Frame) bool { return f.Kind == frame.KindASCII && strings.HasPrefix(f.Body, prefix) }
}

func TestDevice_ReadRegister(t *testing.T) {
	d := NewDevice(Options{Model: "VN-100"})
	p, err := d.Open("sim0", 115200)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	c := collect(t, p)
	send(t, p, "VNRRG,01")
	f := c.waitFor(t, time.Second, bodyPrefix("VNRRG,01"))
	if f.Body != "VNRRG,01,VN-100" {
		t.Fatalf("body=%q", f.Body)
	}
	if got := d.Received(); len(got) != 1 || got[0] != "VNRRG,01" {
		t.Fatalf("received=%v", got)
	}
}

func TestDevice_Errors(t *testing.T) {
	d := NewDevice(Options{})
	p, _ := d.Open("sim0", 115200)
	c := collect(t, p)

	send(t, p, "VNRRG,200")
	c.waitFor(t, time.Second, bodyPrefix("VNERR,08"))
	send(t, p, "VNWRG,01,VN-999")
	c.waitFor(t, time.Second, bodyPrefix("VNERR,09"))
	send(t, p, "VNXYZ")
	c.waitFor(t, time.Second, bodyPrefix("VNERR,04"))
	if _, err := p.Write([]byte("$VNRRG,01*00\r\n")); err != nil {
		t.Fatalf("Write: %v", err)
	}
	c.waitFor(t, time.Second, bodyPrefix("VNERR,03"))
}

func TestDevice_WrongBaudIsSilent(t *testing.T) {
	d := NewDevice(Options{Baud: 57600})
	p, _ := d.Open("sim0", 115200)
	c := collect(t, p)
	send(t, p, "VNRRG,01")
	time.Sleep(100 * time.Millisecond)
	if n, _ := c.count(); n != 0 {
		t.Fatalf("got %d frames at the wrong baud", n)
	}
	if err := d.InjectASCII("VNYPR,+1.0,+2.0,+3.0"); err != nil {
		t.Fatalf("InjectASCII: %v", err)
	}
	time.Sleep(50 * time.Millisecond)
	n, skipped := c.count()
	if n != 0 || skipped == 0 {
		t.Fatalf("frames=%d skipped=%d", n, skipped)
	}
}

func TestDevice_BaudChange(t *testing.T) {
	d := NewDevice(Options{})
	p, _ := d.Open("sim0", 115200)
	c := collect(t, p)
	send(t, p, "VNWRG,05,921600")
	c.waitFor(t, time.Second, bodyPrefix("VNWRG,05,921600"))
	if d.Baud() != 921600 {
		t.Fatalf("baud=%d", d.Baud())
	}

	p2, _ := d.Open("sim0", 921600)
	c2 := collect(t, p2)
	send(t, p2, "VNRRG,05")
	c2.waitFor(t, time.Second, bodyPrefix("VNRRG,05,921600"))
}

func TestDevice_StreamsASCII(t *testing.T) {
	d := NewDevice(Options{AsyncType: register.AdorYMR, AsyncFreq: 50})
	p, _ := d.Open("sim0", 115200)
	c := collect(t, p)
	f := c.waitFor(t, time.Second, bodyPrefix("VNYMR"))
	m, ok, err := measurement.DecodeASCII(f.Body, time.Now())
	if !ok || err != nil {
		t.Fatalf("DecodeASCII(%q): ok=%v err=%v", f.Body, ok, err)
	}
	if _, ok := m.Accel(); !ok {
		t.Fatalf("no accel in %q", f.Body)
	}

	send(t, p, "VNASY,0")
	c.waitFor(t, time.Second, bodyPrefix("VNASY,0"))
	time.Sleep(30 * time.Millisecond)
	before, _ := c.count()
	time.Sleep(100 * time.Millisecond)
	if after, _ := c.count(); after != before {
		t.Fatalf("output continued after ASY,0: %d -> %d", before, after)
	}
}

func TestDevice_StreamsBinary(t *testing.T) {
	cfg := binout.Config{
		AsyncMode:   binout.AsyncSerial1,
		RateDivisor: 16,
		Common:      binout.CommonTimeStartup | binout.CommonYpr | binout.CommonAccel,
		GNSS:        binout.GnssSatInfo,
	}
	d := NewDevice(Options{Binary: [3]binout.Config{cfg}})
	p, _ := d.Open("sim0", 115200)
	c := collect(t, p)
	f := c.waitFor(t, time.Second, func(f frame.Frame) bool { return f.Kind == frame.KindBinary })
	if f.Header != cfg.Header() {
		t.Fatalf("header=%v want %v", f.Header, cfg.Header())
	}
	m, err := measurement.DecodeBinary(f.Header, f.Payload, time.Now())
	if err != nil {
		t.Fatalf("DecodeBinary: %v", err)
	}
	acc, ok := m.Accel()
	if !ok || acc[2] > -9 {
		t.Fatalf("accel=%v ok=%v", acc, ok)
	}
}

func TestDevice_PollBinaryOutput(t *testing.T) {
	cfg := binout.Config{Attitude: binout.AttitudeYpr | binout.AttitudeQuaternion}
	d := NewDevice(Options{Binary: [3]binout.Config{{}, cfg}})
	p, _ := d.Open("sim0", 115200)
	c := collect(t, p)
	time.Sleep(30 * time.Millisecond)
	if n, _ := c.count(); n != 0 {
		t.Fatalf("binary output without async mode should stay quiet")
	}
	send(t, p, "VNBOM,2")
	f := c.waitFor(t, time.Second, func(f frame.Frame) bool { return f.Kind == frame.KindBinary })
	if f.Header != cfg.Header() {
		t.Fatalf("header=%v", f.Header)
	}
}

func TestDevice_OpenReplacesLink(t *testing.T) {
	d := NewDevice(Options{})
	p1, _ := d.Open("sim0", 115200)
	p2, _ := d.Open("sim0", 115200)
	if _, err := p1.Write([]byte("x")); err == nil {
		t.Fatalf("old link still writable")
	}
	buf := make([]byte, 8)
	if _, err := p1.Read(buf); err == nil {
		t.Fatalf("old link still readable")
	}
	_ = p2.Close()
	if _, err := d.Open("", 115200); err == nil {
		t.Fatalf("expected error for empty name")
	}
}
