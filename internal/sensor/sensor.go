// Package sensor is one session with a serial inertial sensor. A Sensor
// owns the transport, runs the decode goroutine while connected and
// exposes the measurement queue, register access, named commands and
// message subscriptions.
//
// Sessions share no state, so several sensors can run side by side.
package sensor

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"

	"vnsensor/internal/binout"
	"vnsensor/internal/command"
	"vnsensor/internal/frame"
	"vnsensor/internal/measurement"
	"vnsensor/internal/queue"
	"vnsensor/internal/register"
	"vnsensor/internal/router"
	"vnsensor/internal/transport"
	"vnsensor/internal/vnerr"
)

// State is the connection state.
type State uint8

const (
	Closed State = iota
	Opening
	Open
)

func (s State) String() string {
	switch s {
	case Closed:
		return "closed"
	case Opening:
		return "opening"
	case Open:
		return "open"
	}
	return fmt.Sprintf("State(%d)", uint8(s))
}

const (
	DefaultQueueCapacity       = 1000
	DefaultConnectivityTimeout = 150 * time.Millisecond

	readBufferSize = 1024
)

// Observer is told about traffic on the session. Calls come from the
// decode goroutine and from command callers and must not block.
type Observer interface {
	BytesReceived(n int)
	BytesSkipped(n int)
	FrameDecoded(kind frame.Kind)
	MeasurementDropped()
	CommandFinished(cmd command.Command, elapsed time.Duration, err error)
	StateChanged(st State)
}

type nopObserver struct{}

func (nopObserver) BytesReceived(int)                                     {}
func (nopObserver) BytesSkipped(int)                                      {}
func (nopObserver) FrameDecoded(frame.Kind)                               {}
func (nopObserver) MeasurementDropped()                                   {}
func (nopObserver) CommandFinished(command.Command, time.Duration, error) {}
func (nopObserver) StateChanged(State)                                    {}

type Options struct {
	// Open opens the transport. Nil means transport.Open.
	Open transport.Opener

	QueueCapacity       int
	ConnectivityTimeout time.Duration
	Command             command.Options

	Log      logrus.FieldLogger
	Observer Observer
}

// conn is one open transport and its decode goroutine.
type conn struct {
	port transport.Port
	name string
	baud int
	done chan struct{}
}

type Sensor struct {
	opts Options
	log  logrus.FieldLogger
	obs  Observer
	now  func() time.Time

	exec   *command.Executor
	router *router.Router
	queue  *queue.Ring[measurement.CompositeData]
	last   atomic.Pointer[measurement.CompositeData]

	// connMu serializes connect, disconnect and baud changes.
	connMu sync.Mutex

	mu    sync.Mutex
	state State
	conn  *conn
	// binHeaders is the header each binary output slot was last read or
	// written with.
	binHeaders [3]binout.Header

	writeMu sync.Mutex
}

func New(opts Options) *Sensor {
	if opts.Open == nil {
		opts.Open = transport.Open
	}
	if opts.QueueCapacity <= 0 {
		opts.QueueCapacity = DefaultQueueCapacity
	}
	if opts.ConnectivityTimeout <= 0 {
		opts.ConnectivityTimeout = DefaultConnectivityTimeout
	}
	log := opts.Log
	if log == nil {
		log = logrus.StandardLogger()
	}
	obs := opts.Observer
	if obs == nil {
		obs = nopObserver{}
	}
	s := &Sensor{
		opts:   opts,
		log:    log.WithField("component", "sensor"),
		obs:    obs,
		now:    time.Now,
		router: router.New(),
		queue:  queue.NewRing[measurement.CompositeData](opts.QueueCapacity),
	}
	copts := opts.Command
	if copts.Log == nil {
		copts.Log = s.log
	}
	s.exec = command.NewExecutor(s.write, copts)
	s.queue.Close()
	return s
}

func (s *Sensor) write(p []byte) error {
	s.mu.Lock()
	c := s.conn
	s.mu.Unlock()
	if c == nil {
		return vnerr.ErrDisconnected
	}
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	_, err := c.port.Write(p)
	return err
}

// State returns the connection state.
func (s *Sensor) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Sensor) setStateLocked(st State) {
	if s.state == st {
		return
	}
	s.state = st
	s.obs.StateChanged(st)
}

// ConnectedPortName returns the port name while the session is open.
func (s *Sensor) ConnectedPortName() (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conn == nil {
		return "", false
	}
	return s.conn.name, true
}

// ConnectedBaudRate returns the host baud while the session is open.
func (s *Sensor) ConnectedBaudRate() (int, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conn == nil {
		return 0, false
	}
	return s.conn.baud, true
}

// HasMeasurement reports whether a measurement is waiting in the queue.
func (s *Sensor) HasMeasurement() bool { return s.queue.HasNext() }

// NextMeasurement pops the oldest queued measurement, waiting up to
// timeout. ok is false on timeout. After Disconnect it returns
// vnerr.ErrDisconnected once the queue is drained.
func (s *Sensor) NextMeasurement(timeout time.Duration) (measurement.CompositeData, bool, error) {
	return s.queue.PopNext(timeout)
}

// MostRecentMeasurement waits like NextMeasurement, then discards all but
// the newest measurement and returns it.
func (s *Sensor) MostRecentMeasurement(timeout time.Duration) (measurement.CompositeData, bool, error) {
	return s.queue.PopMostRecent(timeout)
}

// LastMeasurement returns the newest decoded measurement without touching
// the queue.
func (s *Sensor) LastMeasurement() (measurement.CompositeData, bool) {
	m := s.last.Load()
	if m == nil {
		return measurement.CompositeData{}, false
	}
	return *m, true
}

// SendCommand runs cmd through the command executor.
func (s *Sensor) SendCommand(ctx context.Context, cmd command.Command, mode command.Mode) (command.Response, error) {
	if s == nil {
		return command.Response{}, fmt.Errorf("sensor is nil")
	}
	start := s.now()
	resp, err := s.exec.Send(ctx, cmd, mode)
	s.obs.CommandFinished(cmd, s.now().Sub(start), err)
	return resp, err
}

// SerialSend frames msg as a command and writes it without waiting for a
// response. A leading "$" or "VN" is accepted.
func (s *Sensor) SerialSend(msg string) error {
	_, err := s.SendCommand(context.Background(), command.Raw(msg), command.FireAndForget)
	return err
}

func (s *Sensor) run(ctx context.Context, cmd command.Command) error {
	_, err := s.SendCommand(ctx, cmd, command.BlockWithRetry)
	return err
}

// ReadRegister reads r's id from the device and fills r from the response.
func (s *Sensor) ReadRegister(ctx context.Context, r register.Register) error {
	cmd := command.ReadRegister(r.ID())
	resp, err := s.SendCommand(ctx, cmd, command.BlockWithRetry)
	if err != nil {
		return err
	}
	if err := register.UnmarshalASCII(r, resp.Fields(cmd.Match)); err != nil {
		return fmt.Errorf("%s: %w", cmd, err)
	}
	s.noteBinaryOutput(r)
	return nil
}

// WriteRegister writes r to the device. Changes are volatile until
// WriteSettings.
func (s *Sensor) WriteRegister(ctx context.Context, r register.Writable) error {
	fields, err := register.EncodeASCII(r)
	if err != nil {
		return err
	}
	if err := s.run(ctx, command.WriteRegister(r.ID(), fields)); err != nil {
		return err
	}
	s.noteBinaryOutput(r)
	return nil
}

func (s *Sensor) noteBinaryOutput(r register.Register) {
	cfg, slot, ok := register.BinaryOutputConfig(r)
	if !ok {
		return
	}
	s.mu.Lock()
	s.binHeaders[slot-1] = cfg.Header()
	s.mu.Unlock()
}

// BinaryOutputHeader returns the header binary output slot (1..3) was last
// configured with through this session. ok is false for an unknown slot.
func (s *Sensor) BinaryOutputHeader(slot int) (binout.Header, bool) {
	if slot < 1 || slot > len(s.binHeaders) {
		return binout.Header{}, false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.binHeaders[slot-1], true
}

func (s *Sensor) WriteSettings(ctx context.Context) error { return s.run(ctx, command.WriteSettings()) }
func (s *Sensor) Reset(ctx context.Context) error         { return s.run(ctx, command.Reset()) }
func (s *Sensor) SetFilterBias(ctx context.Context) error { return s.run(ctx, command.SetFilterBias()) }

func (s *Sensor) RestoreFactorySettings(ctx context.Context) error {
	return s.run(ctx, command.RestoreFactorySettings())
}

func (s *Sensor) KnownMagneticDisturbance(ctx context.Context, present bool) error {
	return s.run(ctx, command.KnownMagneticDisturbance(present))
}

func (s *Sensor) KnownAccelerationDisturbance(ctx context.Context, present bool) error {
	return s.run(ctx, command.KnownAccelerationDisturbance(present))
}

func (s *Sensor) SetInitialHeading(ctx context.Context, heading float64) error {
	return s.run(ctx, command.SetInitialHeading(heading))
}

func (s *Sensor) SetInitialHeadingYPR(ctx context.Context, ypr measurement.Vec3) error {
	return s.run(ctx, command.SetInitialHeadingYPR(ypr[0], ypr[1], ypr[2]))
}

func (s *Sensor) SetInitialHeadingQuaternion(ctx context.Context, q measurement.Quat) error {
	return s.run(ctx, command.SetInitialHeadingQuaternion(q[0], q[1], q[2], q[3]))
}

func (s *Sensor) AsyncOutputEnable(ctx context.Context, enable bool) error {
	return s.run(ctx, command.AsyncOutputEnable(enable))
}

// PollBinaryOutput asks for one message of binary output n (1..3). The
// message arrives through the measurement queue.
func (s *Sensor) PollBinaryOutput(n int) error {
	_, err := s.SendCommand(context.Background(), command.PollBinaryOutput(n), command.FireAndForget)
	return err
}

// SubscribeToMessage routes verified ASCII frames matching f to sink.
// Command responses are included.
func (s *Sensor) SubscribeToMessage(f router.ASCIIFilter, sink router.Sink) router.ID {
	return s.router.SubscribeASCII(f, sink)
}

// SubscribeToBinaryMessage routes binary frames whose header matches f.
func (s *Sensor) SubscribeToBinaryMessage(f router.BinaryFilter, sink router.Sink) router.ID {
	return s.router.SubscribeBinary(f, sink)
}

// UnsubscribeFromMessage removes a subscription. The sink is not called
// after it returns.
func (s *Sensor) UnsubscribeFromMessage(id router.ID) bool { return s.router.Unsubscribe(id) }

// RegisterReceivedByteBuffer receives every byte read from the port.
func (s *Sensor) RegisterReceivedByteBuffer(sink router.ByteSink) router.ID {
	return s.router.RegisterReceivedBytes(sink)
}

// RegisterSkippedByteBuffer receives bytes the decoder could not frame.
func (s *Sensor) RegisterSkippedByteBuffer(sink router.ByteSink) router.ID {
	return s.router.RegisterSkippedBytes(sink)
}

func (s *Sensor) DeregisterReceivedByteBuffer(id router.ID) bool { return s.router.Unsubscribe(id) }
func (s *Sensor) DeregisterSkippedByteBuffer(id router.ID) bool  { return s.router.Unsubscribe(id) }

// AsynchronousErrorQueueSize is the number of device errors and unexpected
// responses not tied to a pending command.
func (s *Sensor) AsynchronousErrorQueueSize() int { return s.exec.AsyncErrorCount() }

func (s *Sensor) NextAsynchronousError(timeout time.Duration) (command.AsyncError, bool, error) {
	return s.exec.NextAsyncError(timeout)
}

// Status is a point-in-time view of the session.
type Status struct {
	State       string `json:"state"`
	Port        string `json:"port,omitempty"`
	Baud        int    `json:"baud,omitempty"`
	Queued      int    `json:"queued"`
	QueueCap    int    `json:"queue_cap"`
	Dropped     uint64 `json:"dropped"`
	AsyncErrors int    `json:"async_errors"`
	Subscribers int    `json:"subscribers"`
}

func (s *Sensor) Status() Status {
	st := Status{
		Queued:      s.queue.Len(),
		QueueCap:    s.queue.Cap(),
		Dropped:     s.queue.Dropped(),
		AsyncErrors: s.exec.AsyncErrorCount(),
		Subscribers: s.router.Len(),
	}
	s.mu.Lock()
	st.State = s.state.String()
	if s.conn != nil {
		st.Port = s.conn.name
		st.Baud = s.conn.baud
	}
	s.mu.Unlock()
	return st
}
