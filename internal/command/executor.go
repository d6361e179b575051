package command

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"vnsensor/internal/frame"
	"vnsensor/internal/queue"
	"vnsensor/internal/vnerr"
)

// Mode selects how Send waits for the response.
type Mode uint8

const (
	// BlockWithRetry waits for the response and resends on timeout.
	BlockWithRetry Mode = iota
	// Block waits for the response once.
	Block
	// FireAndForget writes the command and returns immediately.
	FireAndForget
)

func (m Mode) String() string {
	switch m {
	case BlockWithRetry:
		return "block-with-retry"
	case Block:
		return "block"
	case FireAndForget:
		return "fire-and-forget"
	}
	return fmt.Sprintf("Mode(%d)", uint8(m))
}

const (
	DefaultTimeout            = 500 * time.Millisecond
	DefaultRetries            = 3
	DefaultAsyncErrorCapacity = 100
)

// Response is the verified body answering a command, e.g.
// "VNRRG,05,115200".
type Response struct {
	Body     string
	Received time.Time
}

// Fields returns the comma separated values after the match prefix.
func (r Response) Fields(match string) string {
	rest := strings.TrimPrefix(r.Body, match)
	return strings.TrimPrefix(rest, ",")
}

// Writer puts one framed command on the wire. It must be safe for use
// from several goroutines.
type Writer func(p []byte) error

type Options struct {
	Timeout            time.Duration
	Retries            int
	AsyncErrorCapacity int
	Checksum           frame.Checksum
	Log                logrus.FieldLogger
}

type result struct {
	resp Response
	err  error
}

type pending struct {
	cmd  Command
	done chan result
}

// Executor runs at most one confirmable command at a time and routes
// responses and device errors delivered by the decode loop.
type Executor struct {
	write Writer
	opts  Options
	log   logrus.FieldLogger
	now   func() time.Time

	// serial is held for the whole lifetime of a blocking command.
	serial sync.Mutex

	mu      sync.Mutex
	pending *pending

	asyncErrs *queue.Ring[AsyncError]
}

func NewExecutor(w Writer, opts Options) *Executor {
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	if opts.Retries <= 0 {
		opts.Retries = DefaultRetries
	}
	if opts.AsyncErrorCapacity <= 0 {
		opts.AsyncErrorCapacity = DefaultAsyncErrorCapacity
	}
	log := opts.Log
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Executor{
		write:     w,
		opts:      opts,
		log:       log,
		now:       time.Now,
		asyncErrs: queue.NewRing[AsyncError](opts.AsyncErrorCapacity),
	}
}

// Send writes cmd and, unless mode is FireAndForget or cmd expects no
// response, waits for the matching response. A device error completes the
// command with *DeviceError and is not retried.
func (e *Executor) Send(ctx context.Context, cmd Command, mode Mode) (Response, error) {
	if e == nil {
		return Response{}, fmt.Errorf("executor is nil")
	}
	wire := frame.AppendASCII(nil, cmd.String(), e.opts.Checksum)
	if mode == FireAndForget || cmd.Match == "" {
		if err := e.write(wire); err != nil {
			return Response{}, fmt.Errorf("%s: write: %w", cmd, err)
		}
		return Response{}, nil
	}

	e.serial.Lock()
	defer e.serial.Unlock()

	attempts := 1
	if mode == BlockWithRetry {
		attempts = e.opts.Retries
	}
	for i := 0; i < attempts; i++ {
		if err := ctx.Err(); err != nil {
			return Response{}, err
		}
		p := &pending{cmd: cmd, done: make(chan result, 1)}
		e.mu.Lock()
		e.pending = p
		e.mu.Unlock()

		if err := e.write(wire); err != nil {
			e.clear(p)
			return Response{}, fmt.Errorf("%s: write: %w", cmd, err)
		}

		timer := time.NewTimer(e.opts.Timeout)
		select {
		case r := <-p.done:
			timer.Stop()
			return r.resp, r.err
		case <-timer.C:
			e.clear(p)
			e.log.WithFields(logrus.Fields{"cmd": cmd.String(), "attempt": i + 1}).Debug("command timeout")
		case <-ctx.Done():
			timer.Stop()
			e.clear(p)
			return Response{}, ctx.Err()
		}
	}
	return Response{}, fmt.Errorf("%s: %w after %d attempts", cmd, vnerr.ErrCommandTimeout, attempts)
}

func (e *Executor) clear(p *pending) {
	e.mu.Lock()
	if e.pending == p {
		e.pending = nil
	}
	e.mu.Unlock()
}

// complete hands r to the pending command, if any. The caller holds mu.
func (e *Executor) complete(r result) bool {
	p := e.pending
	if p == nil {
		return false
	}
	e.pending = nil
	p.done <- r
	return true
}

// Deliver offers a verified ASCII body from the decode loop. It reports
// whether the body was consumed as a response or error.
func (e *Executor) Deliver(body string) bool {
	if e == nil {
		return false
	}
	now := e.now()
	tag := frame.Tag(body)

	e.mu.Lock()
	defer e.mu.Unlock()

	if tag == "VNERR" {
		code, ok := parseErrorBody(body)
		if !ok {
			code = ReceivedUnexpectedMessage
		}
		if e.pending != nil {
			cmd := e.pending.cmd.String()
			return e.complete(result{err: &DeviceError{Code: code, Command: cmd}})
		}
		e.pushAsync(AsyncError{Code: code, Message: body, Received: now})
		return true
	}
	if e.pending != nil && matches(body, e.pending.cmd.Match) {
		return e.complete(result{resp: Response{Body: body, Received: now}})
	}
	if mnemonics[tag] {
		e.pushAsync(AsyncError{Code: ReceivedUnexpectedMessage, Message: body, Received: now})
		return true
	}
	return false
}

func (e *Executor) pushAsync(ae AsyncError) {
	if e.asyncErrs.Push(ae) {
		e.log.WithField("code", ae.Code.String()).Warn("async error queue full, dropped oldest")
	}
	e.log.WithFields(logrus.Fields{"code": ae.Code.String(), "msg": ae.Message}).Debug("async device error")
}

// Abort fails the pending command, if any, with err.
func (e *Executor) Abort(err error) {
	if e == nil {
		return
	}
	e.mu.Lock()
	e.complete(result{err: err})
	e.mu.Unlock()
}

// Pending reports whether a command is waiting for its response.
func (e *Executor) Pending() bool {
	if e == nil {
		return false
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.pending != nil
}

func (e *Executor) AsyncErrorCount() int { return e.asyncErrs.Len() }

// NextAsyncError pops the oldest async error, waiting up to timeout.
func (e *Executor) NextAsyncError(timeout time.Duration) (AsyncError, bool, error) {
	return e.asyncErrs.PopNext(timeout)
}
