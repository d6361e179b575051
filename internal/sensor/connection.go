package sensor

import (
	"context"
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"

	"vnsensor/internal/command"
	"vnsensor/internal/frame"
	"vnsensor/internal/measurement"
	"vnsensor/internal/register"
	"vnsensor/internal/vnerr"
)

// AutoBauds is the order AutoConnect tries, most likely first.
var AutoBauds = []int{115200, 128000, 230400, 460800, 921600, 57600, 38400, 19200, 9600}

// Connect opens port at baud and starts decoding. It does not talk to the
// device; use VerifyConnectivity for that. An open session is closed first.
func (s *Sensor) Connect(ctx context.Context, port string, baud int) error {
	if s == nil {
		return fmt.Errorf("sensor is nil")
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	s.connMu.Lock()
	defer s.connMu.Unlock()
	s.closeLocked()
	return s.openLocked(port, baud, true)
}

// AutoConnect tries each of AutoBauds until the device answers a Model
// read, and returns that baud. A port that cannot be opened fails at once.
func (s *Sensor) AutoConnect(ctx context.Context, port string) (int, error) {
	if s == nil {
		return 0, fmt.Errorf("sensor is nil")
	}
	for _, baud := range AutoBauds {
		if err := s.Connect(ctx, port, baud); err != nil {
			return 0, err
		}
		if s.VerifyConnectivity(ctx) {
			s.log.WithFields(logrus.Fields{"port": port, "baud": baud}).Info("sensor connected")
			return baud, nil
		}
		if err := ctx.Err(); err != nil {
			_ = s.Disconnect()
			return 0, err
		}
		s.log.WithFields(logrus.Fields{"port": port, "baud": baud}).Debug("no answer")
	}
	_ = s.Disconnect()
	return 0, fmt.Errorf("%s: %w", port, vnerr.ErrNoResponsiveBaud)
}

// VerifyConnectivity reports whether a Model register read succeeds within
// the connectivity timeout. It makes a single attempt.
func (s *Sensor) VerifyConnectivity(ctx context.Context) bool {
	if s == nil {
		return false
	}
	ctx, cancel := context.WithTimeout(ctx, s.opts.ConnectivityTimeout)
	defer cancel()
	cmd := command.ReadRegister(register.IDModel)
	resp, err := s.SendCommand(ctx, cmd, command.Block)
	if err != nil {
		return false
	}
	var m register.Model
	return register.UnmarshalASCII(&m, resp.Fields(cmd.Match)) == nil
}

// ChangeBaudRate sets the device's serial baud and reopens the host side
// to match. If the reopen fails the session ends Closed: the device is
// already running at the new rate.
func (s *Sensor) ChangeBaudRate(ctx context.Context, baud int) error {
	if s == nil {
		return fmt.Errorf("sensor is nil")
	}
	if !register.Baud(baud).Valid() {
		return fmt.Errorf("unsupported baud %d", baud)
	}
	// connMu is not held while the command runs so Disconnect can abort it.
	s.mu.Lock()
	c := s.conn
	s.mu.Unlock()
	if c == nil {
		return vnerr.ErrDisconnected
	}
	if err := s.WriteRegister(ctx, &register.BaudRate{Baud: register.Baud(baud)}); err != nil {
		return fmt.Errorf("change baud to %d: %w", baud, err)
	}
	s.connMu.Lock()
	defer s.connMu.Unlock()
	s.mu.Lock()
	same := s.conn == c
	s.mu.Unlock()
	if !same {
		return fmt.Errorf("change baud to %d: %w", baud, vnerr.ErrDisconnected)
	}
	return s.reopenLocked(c.name, baud)
}

// ChangeHostBaudRate reopens the local port at baud without telling the
// device.
func (s *Sensor) ChangeHostBaudRate(baud int) error {
	if s == nil {
		return fmt.Errorf("sensor is nil")
	}
	s.connMu.Lock()
	defer s.connMu.Unlock()
	name, ok := s.ConnectedPortName()
	if !ok {
		return vnerr.ErrDisconnected
	}
	return s.reopenLocked(name, baud)
}

// Disconnect closes the port and wakes queue waiters and any pending
// command with vnerr.ErrDisconnected. It is safe to call more than once.
func (s *Sensor) Disconnect() error {
	if s == nil {
		return nil
	}
	s.connMu.Lock()
	defer s.connMu.Unlock()
	s.closeLocked()
	return nil
}

// reopenLocked swaps the port for one at a new baud. Queue waiters are not
// woken unless the reopen fails.
func (s *Sensor) reopenLocked(name string, baud int) error {
	if c := s.detach(); c != nil {
		s.stop(c)
	}
	if err := s.openLocked(name, baud, false); err != nil {
		s.queue.Close()
		s.exec.Abort(vnerr.ErrDisconnected)
		return err
	}
	s.log.WithFields(logrus.Fields{"port": name, "baud": baud}).Info("baud changed")
	return nil
}

func (s *Sensor) openLocked(name string, baud int, fresh bool) error {
	s.mu.Lock()
	s.setStateLocked(Opening)
	s.mu.Unlock()

	p, err := s.opts.Open(name, baud)
	if err != nil {
		s.mu.Lock()
		s.setStateLocked(Closed)
		s.mu.Unlock()
		return fmt.Errorf("open %s baud=%d: %w: %w", name, baud, vnerr.ErrTransportUnavailable, err)
	}
	if fresh {
		s.queue.Reopen()
	}
	c := &conn{port: p, name: name, baud: baud, done: make(chan struct{})}
	s.mu.Lock()
	s.conn = c
	s.setStateLocked(Open)
	s.mu.Unlock()
	go s.readLoop(c)
	return nil
}

func (s *Sensor) closeLocked() {
	c := s.detach()
	if c == nil {
		return
	}
	s.exec.Abort(vnerr.ErrDisconnected)
	s.stop(c)
	s.queue.Close()
}

// detach clears the current connection and moves to Closed.
func (s *Sensor) detach() *conn {
	s.mu.Lock()
	defer s.mu.Unlock()
	c := s.conn
	s.conn = nil
	s.setStateLocked(Closed)
	return c
}

// stop closes c's port and waits for its decode goroutine.
func (s *Sensor) stop(c *conn) {
	if err := c.port.Close(); err != nil {
		s.log.WithError(err).WithField("port", c.name).Debug("close")
	}
	<-c.done
}

func (s *Sensor) readLoop(c *conn) {
	defer close(c.done)
	dec := frame.NewDecoder(s.onFrame, s.onSkipped)
	buf := make([]byte, readBufferSize)
	for {
		n, err := c.port.Read(buf)
		if n > 0 {
			chunk := buf[:n]
			s.obs.BytesReceived(n)
			s.router.DispatchReceived(chunk)
			dec.Feed(chunk)
		}
		if err != nil {
			s.readFailed(c, err)
			return
		}
	}
}

// readFailed ends the session when the port fails underneath it. A read
// error after Disconnect closed the port is expected and ignored.
func (s *Sensor) readFailed(c *conn, err error) {
	s.mu.Lock()
	current := s.conn == c
	if current {
		s.conn = nil
		s.setStateLocked(Closed)
	}
	s.mu.Unlock()
	if !current {
		return
	}
	s.log.WithError(err).WithField("port", c.name).Warn("read stopped")
	_ = c.port.Close()
	s.exec.Abort(vnerr.ErrDisconnected)
	s.queue.Close()
}

func (s *Sensor) onSkipped(b []byte) {
	s.obs.BytesSkipped(len(b))
	s.router.DispatchSkipped(b)
}

func (s *Sensor) onFrame(f frame.Frame) {
	s.obs.FrameDecoded(f.Kind)
	if f.Kind == frame.KindASCII && s.exec.Deliver(f.Body) {
		s.router.DispatchFrame(f)
		return
	}
	m, ok, err := measurement.FromFrame(f, s.now())
	switch {
	case err != nil:
		s.log.WithError(err).Debug("measurement decode")
	case ok:
		s.last.Store(&m)
		if s.queue.Push(m) {
			s.obs.MeasurementDropped()
		}
	}
	s.router.DispatchFrame(f)
}

// FindSensor runs AutoConnect on each port in turn and stays connected to
// the first that answers.
func (s *Sensor) FindSensor(ctx context.Context, ports []string) (string, int, error) {
	var errs []error
	for _, p := range ports {
		baud, err := s.AutoConnect(ctx, p)
		if err == nil {
			return p, baud, nil
		}
		if ctx.Err() != nil {
			return "", 0, ctx.Err()
		}
		errs = append(errs, err)
	}
	if len(errs) == 0 {
		return "", 0, fmt.Errorf("no serial ports: %w", vnerr.ErrTransportUnavailable)
	}
	return "", 0, errors.Join(errs...)
}
