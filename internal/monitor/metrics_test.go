package monitor

import (
	"context"
	"errors"
	"fmt"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"vnsensor/internal/command"
	"vnsensor/internal/frame"
	"vnsensor/internal/sensor"
	"vnsensor/internal/vnerr"
)

func TestMetrics_Observer(t *testing.T) {
	m := New()
	m.BytesReceived(100)
	m.BytesReceived(28)
	m.BytesSkipped(3)
	m.FrameDecoded(frame.KindASCII)
	m.FrameDecoded(frame.KindBinary)
	m.FrameDecoded(frame.KindBinary)
	m.MeasurementDropped()
	m.StateChanged(sensor.Open)

	if got := testutil.ToFloat64(m.bytesReceived); got != 128 {
		t.Fatalf("received=%v", got)
	}
	if got := testutil.ToFloat64(m.bytesSkipped); got != 3 {
		t.Fatalf("skipped=%v", got)
	}
	if got := testutil.ToFloat64(m.frames.WithLabelValues("binary")); got != 2 {
		t.Fatalf("binary frames=%v", got)
	}
	if got := testutil.ToFloat64(m.state); got != 2 {
		t.Fatalf("state=%v", got)
	}
}

func TestMetrics_CommandResults(t *testing.T) {
	m := New()
	cmd := command.WriteSettings()
	m.CommandFinished(cmd, 3*time.Millisecond, nil)
	m.CommandFinished(cmd, time.Second, fmt.Errorf("x: %w", vnerr.ErrCommandTimeout))
	m.CommandFinished(cmd, time.Millisecond, &command.DeviceError{Code: command.InvalidParameter})
	m.CommandFinished(cmd, 0, context.DeadlineExceeded)
	m.CommandFinished(cmd, 0, fmt.Errorf("write: %w", vnerr.ErrDisconnected))
	m.CommandFinished(cmd, 0, errors.New("boom"))

	for result, want := range map[string]float64{"ok": 1, "timeout": 2, "rejected": 1, "disconnected": 1, "error": 1} {
		if got := testutil.ToFloat64(m.commands.WithLabelValues(result)); got != want {
			t.Fatalf("%s=%v want %v", result, got, want)
		}
	}
	if n := testutil.CollectAndCount(m.cmdDuration); n != 1 {
		t.Fatalf("histogram series=%d", n)
	}
}

func TestMetrics_Handler(t *testing.T) {
	m := New()
	s := sensor.New(sensor.Options{Observer: m})
	m.WatchSession(s)
	m.TriggerPulse()
	m.BiasUpdate()

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body := rec.Body.String()
	for _, name := range []string{
		"vnsensor_queue_depth 0",
		"vnsensor_async_errors 0",
		"vnsensor_trigger_pulses_total 1",
		"vnsensor_filter_bias_updates_total 1",
		"go_goroutines",
	} {
		if !strings.Contains(body, name) {
			t.Fatalf("missing %q in:\n%s", name, body)
		}
	}
}

func TestMetrics_Independent(t *testing.T) {
	a, b := New(), New()
	a.BytesReceived(5)
	if testutil.ToFloat64(b.bytesReceived) != 0 {
		t.Fatalf("registries share state")
	}
}
