package main

import (
	"bufio"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/sirupsen/logrus"

	"vnsensor/internal/config"
	"vnsensor/internal/vnerr"
)

func quietLogger() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

func loadConfig(t *testing.T, doc string) config.Config {
	t.Helper()
	path := filepath.Join(t.TempDir(), "vnsensor.yaml")
	if err := os.WriteFile(path, []byte(doc), 0o644); err != nil {
		t.Fatalf("WriteFile() error: %v", err)
	}
	cfg, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	return cfg
}

func TestNewLogger(t *testing.T) {
	cases := []struct {
		name    string
		cfg     config.LogConfig
		level   logrus.Level
		json    bool
		wantErr bool
	}{
		{name: "Text", cfg: config.LogConfig{Level: "debug", Format: "text"}, level: logrus.DebugLevel},
		{name: "JSON", cfg: config.LogConfig{Level: "warn", Format: "json"}, level: logrus.WarnLevel, json: true},
		{name: "BadLevel", cfg: config.LogConfig{Level: "loud"}, wantErr: true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			l, err := newLogger(tc.cfg, nil)
			if tc.wantErr {
				if err == nil {
					t.Fatalf("expected error")
				}
				return
			}
			if err != nil {
				t.Fatalf("newLogger: %v", err)
			}
			if l.GetLevel() != tc.level {
				t.Fatalf("level=%v want %v", l.GetLevel(), tc.level)
			}
			if _, ok := l.Formatter.(*logrus.JSONFormatter); ok != tc.json {
				t.Fatalf("formatter=%T", l.Formatter)
			}
		})
	}
}

func TestConnect_FixedBaudMismatch(t *testing.T) {
	cfg := loadConfig(t, "serial:\n  baud: 115200\ncommand:\n  timeout: 50ms\nsim:\n  enable: true\n  baud: 57600\n")
	s, err := newSession(cfg, quietLogger(), nil)
	if err != nil {
		t.Fatalf("newSession: %v", err)
	}
	err = connect(context.Background(), s, cfg, quietLogger())
	if !errors.Is(err, vnerr.ErrNoResponsiveBaud) {
		t.Fatalf("err=%v want ErrNoResponsiveBaud", err)
	}
	if _, ok := s.ConnectedPortName(); ok {
		t.Fatalf("session left open after failed verify")
	}
}

func TestConnect_SimAutobaud(t *testing.T) {
	cfg := loadConfig(t, "command:\n  timeout: 50ms\nsim:\n  enable: true\n  baud: 230400\n")
	s, err := newSession(cfg, quietLogger(), nil)
	if err != nil {
		t.Fatalf("newSession: %v", err)
	}
	t.Cleanup(func() { _ = s.Disconnect() })
	if err := connect(context.Background(), s, cfg, quietLogger()); err != nil {
		t.Fatalf("connect: %v", err)
	}
	if baud, _ := s.ConnectedBaudRate(); baud != 230400 {
		t.Fatalf("baud=%d want 230400", baud)
	}
}

func TestScanThenApply(t *testing.T) {
	cfg := loadConfig(t, "sim:\n  enable: true\n")
	path := filepath.Join(t.TempDir(), "regs.yaml")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := scan(ctx, cfg, quietLogger(), path); err != nil {
		t.Fatalf("scan: %v", err)
	}
	b, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if !strings.Contains(string(b), "registers:") {
		t.Fatalf("dump=%q", b)
	}
	if err := apply(ctx, cfg, quietLogger(), path); err != nil {
		t.Fatalf("apply: %v", err)
	}
}

func TestRun_SimulatedDevice(t *testing.T) {
	dir := t.TempDir()
	csvDir := filepath.Join(dir, "csv")
	raw := filepath.Join(dir, "raw.bin")
	cfg := loadConfig(t, `
sim:
  enable: true
output:
  configure: true
  async_type: YMR
  async_freq: 50
export:
  csv_dir: `+csvDir+`
  raw_log: `+raw+`
metrics:
  enable: true
bias:
  enable: true
  window: 10
`)

	ctx, cancel := context.WithTimeout(context.Background(), 800*time.Millisecond)
	defer cancel()
	if err := run(ctx, cfg, quietLogger(), nil); err != nil {
		t.Fatalf("run: %v", err)
	}

	f, err := os.Open(filepath.Join(csvDir, "VNYMR.csv"))
	if err != nil {
		t.Fatalf("open csv: %v", err)
	}
	defer f.Close()
	sc := bufio.NewScanner(f)
	lines := 0
	for sc.Scan() {
		lines++
	}
	if lines < 2 {
		t.Fatalf("csv has %d lines, want header plus rows", lines)
	}

	st, err := os.Stat(raw)
	if err != nil {
		t.Fatalf("stat raw log: %v", err)
	}
	if st.Size() == 0 {
		t.Fatalf("raw log is empty")
	}
}
