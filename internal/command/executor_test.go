package command

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"vnsensor/internal/frame"
	"vnsensor/internal/vnerr"
)

// fakeDevice answers framed commands by calling reply with the body.
type fakeDevice struct {
	mu       sync.Mutex
	sent     []string
	inFlight int32
	overlap  int32
	reply    func(body string) string
	exec     *Executor
	delay    time.Duration
}

func (d *fakeDevice) write(p []byte) error {
	body, err := frame.VerifyASCII(p)
	if err != nil {
		return err
	}
	d.mu.Lock()
	d.sent = append(d.sent, body)
	d.mu.Unlock()
	if d.reply == nil {
		return nil
	}
	resp := d.reply(body)
	if resp == "" {
		return nil
	}
	if atomic.AddInt32(&d.inFlight, 1) > 1 {
		atomic.StoreInt32(&d.overlap, 1)
	}
	go func() {
		time.Sleep(d.delay)
		atomic.AddInt32(&d.inFlight, -1)
		d.exec.Deliver(resp)
	}()
	return nil
}

func (d *fakeDevice) sentBodies() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]string(nil), d.sent...)
}

func newFake(t *testing.T, opts Options, reply func(string) string) (*fakeDevice, *Executor) {
	t.Helper()
	d := &fakeDevice{reply: reply}
	d.exec = NewExecutor(d.write, opts)
	return d, d.exec
}

func echo(body string) string {
	switch {
	case strings.HasPrefix(body, "VNRRG,05"):
		return "VNRRG,05,115200"
	case strings.HasPrefix(body, "VNWRG,05"):
		return body
	}
	return body
}

func TestWireForm(t *testing.T) {
	cases := []struct {
		cmd  Command
		body string
	}{
		{ReadRegister(5), "RRG,05"},
		{WriteRegister(5, "115200"), "WRG,05,115200"},
		{WriteSettings(), "WNV"},
		{Reset(), "RST"},
		{RestoreFactorySettings(), "RFS"},
		{KnownMagneticDisturbance(true), "KMD,1"},
		{KnownAccelerationDisturbance(false), "KAD,0"},
		{SetInitialHeading(12.5), "SIH,+012.500"},
		{SetInitialHeadingYPR(1, -2, 3), "SIH,+001.000,-002.000,+003.000"},
		{SetInitialHeadingQuaternion(0.0012344, -0.5, 0, 0.8660254), "SIH,+0.001234,-0.500000,+0.000000,+0.866025"},
		{AsyncOutputEnable(false), "ASY,0"},
		{SetFilterBias(), "SFB"},
		{PollBinaryOutput(2), "BOM,2"},
	}
	for _, tc := range cases {
		if tc.cmd.Body != tc.body {
			t.Fatalf("body=%q want %q", tc.cmd.Body, tc.body)
		}
	}
	got := string(frame.AppendASCII(nil, ReadRegister(1).String(), frame.ChecksumCRC16))
	if got != "$VNRRG,01*E15F\r\n" {
		t.Fatalf("wire=%q", got)
	}
	if m := ReadRegister(5).Match; m != "VNRRG,05" {
		t.Fatalf("match=%q", m)
	}
}

func TestRaw(t *testing.T) {
	cases := []struct{ in, body, match string }{
		{"$VNRRG,01", "RRG,01", "VNRRG,01"},
		{"WRG,06,14", "WRG,06,14", "VNWRG,06"},
		{"VNWNV", "WNV", "VNWNV"},
		{"BOM,1", "BOM,1", ""},
	}
	for _, tc := range cases {
		c := Raw(tc.in)
		if c.Body != tc.body || c.Match != tc.match {
			t.Fatalf("Raw(%q)=%+v", tc.in, c)
		}
	}
}

func TestMatches_FieldBoundary(t *testing.T) {
	if !matches("VNRRG,10,abc", "VNRRG,10") || !matches("VNWNV", "VNWNV") {
		t.Fatalf("expected match")
	}
	if matches("VNRRG,100,abc", "VNRRG,10") {
		t.Fatalf("register 100 must not answer register 10")
	}
}

func TestSend_Response(t *testing.T) {
	_, ex := newFake(t, Options{}, echo)
	resp, err := ex.Send(context.Background(), ReadRegister(5), Block)
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	if resp.Body != "VNRRG,05,115200" || resp.Fields("VNRRG,05") != "115200" {
		t.Fatalf("resp=%+v", resp)
	}
	if ex.Pending() {
		t.Fatalf("pending after completion")
	}
}

func TestSend_RetryThenTimeout(t *testing.T) {
	d, ex := newFake(t, Options{Timeout: 20 * time.Millisecond, Retries: 3}, nil)
	start := time.Now()
	_, err := ex.Send(context.Background(), ReadRegister(1), BlockWithRetry)
	if !errors.Is(err, vnerr.ErrCommandTimeout) {
		t.Fatalf("err=%v", err)
	}
	if n := len(d.sentBodies()); n != 3 {
		t.Fatalf("sent %d times want 3", n)
	}
	if time.Since(start) < 60*time.Millisecond {
		t.Fatalf("returned too early")
	}

	_, err = ex.Send(context.Background(), ReadRegister(1), Block)
	if !errors.Is(err, vnerr.ErrCommandTimeout) || len(d.sentBodies()) != 4 {
		t.Fatalf("block: err=%v sent=%d", err, len(d.sentBodies()))
	}
}

func TestSend_DeviceErrorNotRetried(t *testing.T) {
	d, ex := newFake(t, Options{Timeout: 200 * time.Millisecond}, func(string) string { return "VNERR,08" })
	_, err := ex.Send(context.Background(), ReadRegister(99), BlockWithRetry)
	var de *DeviceError
	if !errors.As(err, &de) || de.Code != InvalidRegister {
		t.Fatalf("err=%v", err)
	}
	if !errors.Is(err, vnerr.ErrDeviceRejected) {
		t.Fatalf("DeviceError should wrap ErrDeviceRejected")
	}
	if n := len(d.sentBodies()); n != 1 {
		t.Fatalf("sent %d times", n)
	}
}

func TestSend_FireAndForget(t *testing.T) {
	d, ex := newFake(t, Options{}, nil)
	if _, err := ex.Send(context.Background(), WriteSettings(), FireAndForget); err != nil {
		t.Fatalf("Send: %v", err)
	}
	if _, err := ex.Send(context.Background(), PollBinaryOutput(1), Block); err != nil {
		t.Fatalf("poll: %v", err)
	}
	if got := d.sentBodies(); len(got) != 2 || got[0] != "VNWNV" || got[1] != "VNBOM,1" {
		t.Fatalf("sent=%v", got)
	}
	if ex.Pending() {
		t.Fatalf("fire-and-forget left a pending command")
	}
}

func TestSend_WriteError(t *testing.T) {
	boom := errors.New("boom")
	ex := NewExecutor(func([]byte) error { return boom }, Options{})
	if _, err := ex.Send(context.Background(), Reset(), Block); !errors.Is(err, boom) {
		t.Fatalf("err=%v", err)
	}
}

func TestSend_Serialized(t *testing.T) {
	d, ex := newFake(t, Options{Timeout: time.Second}, echo)
	d.delay = 5 * time.Millisecond
	var wg sync.WaitGroup
	errs := make(chan error, 20)
	for i := 0; i < 10; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			_, err := ex.Send(context.Background(), WriteRegister(5, "115200"), BlockWithRetry)
			errs <- err
		}()
		go func() {
			defer wg.Done()
			_, err := ex.Send(context.Background(), ReadRegister(5), BlockWithRetry)
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		if err != nil {
			t.Fatalf("Send: %v", err)
		}
	}
	if atomic.LoadInt32(&d.overlap) != 0 {
		t.Fatalf("two commands were in flight at once")
	}
	if n := len(d.sentBodies()); n != 20 {
		t.Fatalf("sent %d", n)
	}
}

func TestSend_Abort(t *testing.T) {
	_, ex := newFake(t, Options{Timeout: 5 * time.Second}, nil)
	done := make(chan error, 1)
	go func() {
		_, err := ex.Send(context.Background(), ReadRegister(1), Block)
		done <- err
	}()
	deadline := time.Now().Add(time.Second)
	for !ex.Pending() {
		if time.Now().After(deadline) {
			t.Fatalf("command never became pending")
		}
		time.Sleep(time.Millisecond)
	}
	ex.Abort(vnerr.ErrDisconnected)
	select {
	case err := <-done:
		if !errors.Is(err, vnerr.ErrDisconnected) {
			t.Fatalf("err=%v", err)
		}
	case <-time.After(time.Second):
		t.Fatalf("Abort did not wake Send")
	}
}

func TestSend_ContextCancel(t *testing.T) {
	_, ex := newFake(t, Options{Timeout: 5 * time.Second}, nil)
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if _, err := ex.Send(ctx, ReadRegister(1), BlockWithRetry); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("err=%v", err)
	}
}

func TestDeliver_AsyncErrors(t *testing.T) {
	ex := NewExecutor(func([]byte) error { return nil }, Options{AsyncErrorCapacity: 2})
	if !ex.Deliver("VNERR,0C") {
		t.Fatalf("VNERR not consumed")
	}
	if !ex.Deliver("VNWRG,06,14") {
		t.Fatalf("unexpected response not consumed")
	}
	if ex.Deliver("VNYMR,1,2,3") {
		t.Fatalf("measurement consumed as response")
	}
	if n := ex.AsyncErrorCount(); n != 2 {
		t.Fatalf("count=%d", n)
	}
	ae, ok, err := ex.NextAsyncError(0)
	if !ok || err != nil || ae.Code != InsufficientBaudRate {
		t.Fatalf("ae=%+v ok=%v err=%v", ae, ok, err)
	}
	ae, _, _ = ex.NextAsyncError(0)
	if ae.Code != ReceivedUnexpectedMessage || ae.Message != "VNWRG,06,14" {
		t.Fatalf("ae=%+v", ae)
	}
	if _, ok, _ := ex.NextAsyncError(10 * time.Millisecond); ok {
		t.Fatalf("queue should be empty")
	}
}

func TestErrorCode_String(t *testing.T) {
	if InvalidChecksum.String() != "InvalidChecksum" || ErrorCode(77).String() != "ErrorCode(77)" {
		t.Fatalf("names wrong")
	}
	if c, ok := parseErrorBody("VNERR,FF"); !ok || c != ErrorBufferOverflow {
		t.Fatalf("c=%v ok=%v", c, ok)
	}
}
