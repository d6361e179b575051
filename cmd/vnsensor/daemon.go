package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"vnsensor/internal/command"
	"vnsensor/internal/config"
	"vnsensor/internal/export"
	"vnsensor/internal/imustats"
	"vnsensor/internal/monitor"
	"vnsensor/internal/register"
	"vnsensor/internal/sensor"
	"vnsensor/internal/sim"
	"vnsensor/internal/transport"
	"vnsensor/internal/trigger"
	"vnsensor/internal/vnerr"
	"vnsensor/internal/web"
)

const (
	simPortName    = "sim0"
	popTimeout     = 250 * time.Millisecond
	reconnectDelay = time.Second
	syncCheckEvery = 10 * time.Second
)

// newSession builds the sensor session. With sim.enable the session talks
// to an in-process simulated device instead of a serial port.
func newSession(cfg config.Config, log logrus.FieldLogger, obs sensor.Observer) (*sensor.Sensor, error) {
	opts := sensor.Options{
		QueueCapacity: cfg.Queue.Capacity,
		Command: command.Options{
			Timeout: cfg.Command.Timeout,
			Retries: cfg.Command.Retries,
		},
		Log:      log,
		Observer: obs,
	}
	if cfg.Sim.Enable {
		dev, err := newSimDevice(cfg.Sim, log)
		if err != nil {
			return nil, err
		}
		opts.Open = dev.Open
	}
	return sensor.New(opts), nil
}

func newSimDevice(cfg config.SimConfig, log logrus.FieldLogger) (*sim.Device, error) {
	opts := sim.Options{Baud: cfg.Baud, Model: cfg.Model, Log: log}
	if cfg.Scenario != "" {
		script, err := sim.LoadScenarioScript(cfg.Scenario)
		if err != nil {
			return nil, fmt.Errorf("sim.scenario: %w", err)
		}
		sc, err := sim.NewScenario(script)
		if err != nil {
			return nil, fmt.Errorf("sim.scenario %s: %w", cfg.Scenario, err)
		}
		opts.Scenario = sc
	}
	return sim.NewDevice(opts), nil
}

// connect opens the configured port, finding it and its baud when they
// are not set.
func connect(ctx context.Context, s *sensor.Sensor, cfg config.Config, log logrus.FieldLogger) error {
	port := cfg.Serial.Port
	if port == "" && cfg.Sim.Enable {
		port = simPortName
	}
	if port == "" {
		var names []string
		for _, p := range transport.ListPorts() {
			names = append(names, p.Name)
		}
		found, baud, err := s.FindSensor(ctx, names)
		if err != nil {
			return fmt.Errorf("find sensor: %w", err)
		}
		log.WithFields(logrus.Fields{"port": found, "baud": baud}).Info("sensor found")
		return nil
	}
	if cfg.Serial.Baud == 0 {
		_, err := s.AutoConnect(ctx, port)
		return err
	}
	if err := s.Connect(ctx, port, cfg.Serial.Baud); err != nil {
		return err
	}
	if !s.VerifyConnectivity(ctx) {
		_ = s.Disconnect()
		return fmt.Errorf("%s baud=%d: %w", port, cfg.Serial.Baud, vnerr.ErrNoResponsiveBaud)
	}
	log.WithFields(logrus.Fields{"port": port, "baud": cfg.Serial.Baud}).Info("sensor connected")
	return nil
}

// configureOutput writes the async and binary output registers.
func configureOutput(ctx context.Context, s *sensor.Sensor, out config.OutputConfig) error {
	if err := s.WriteRegister(ctx, &register.AsyncOutputType{Ador: out.Ador}); err != nil {
		return fmt.Errorf("async output type: %w", err)
	}
	if out.AsyncFreq > 0 {
		if err := s.WriteRegister(ctx, &register.AsyncOutputFreq{Adof: out.AsyncFreq}); err != nil {
			return fmt.Errorf("async output freq: %w", err)
		}
	}
	for _, bo := range out.Binary {
		r, err := register.NewBinaryOutput(bo.Slot, bo.Register)
		if err != nil {
			return err
		}
		if err := s.WriteRegister(ctx, r); err != nil {
			return fmt.Errorf("binary output %d: %w", bo.Slot, err)
		}
	}
	return nil
}

func scan(ctx context.Context, cfg config.Config, log logrus.FieldLogger, path string) error {
	s, err := newSession(cfg, log, nil)
	if err != nil {
		return err
	}
	if err := connect(ctx, s, cfg, log); err != nil {
		return err
	}
	defer s.Disconnect()
	doc, err := s.ScanConfig(ctx)
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, doc, 0o644); err != nil {
		return err
	}
	log.WithField("path", path).Info("registers saved")
	return nil
}

func apply(ctx context.Context, cfg config.Config, log logrus.FieldLogger, path string) error {
	doc, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	s, err := newSession(cfg, log, nil)
	if err != nil {
		return err
	}
	if err := connect(ctx, s, cfg, log); err != nil {
		return err
	}
	defer s.Disconnect()
	if err := s.ApplyConfig(ctx, doc); err != nil {
		return err
	}
	log.WithField("path", path).Info("registers applied")
	return nil
}

// run is the daemon: it connects, wires exporters, the trigger and the
// bias watcher, serves the web API and moves measurements from the queue
// to the live stream until ctx is done.
func run(ctx context.Context, cfg config.Config, log *logrus.Logger, logs *web.LogBuffer) error {
	var (
		metrics *monitor.Metrics
		obs     sensor.Observer
	)
	if cfg.Metrics.Enable {
		metrics = monitor.New()
		obs = metrics
	}
	s, err := newSession(cfg, log, obs)
	if err != nil {
		return err
	}
	if metrics != nil {
		metrics.WatchSession(s)
	}
	if err := connect(ctx, s, cfg, log); err != nil {
		return err
	}
	defer s.Disconnect()

	var model register.Model
	if err := s.ReadRegister(ctx, &model); err != nil {
		return fmt.Errorf("read model: %w", err)
	}
	log.WithField("model", model.Model).Info("sensor ready")

	if cfg.Output.Configure {
		if err := configureOutput(ctx, s, cfg.Output); err != nil {
			return err
		}
	}

	closers, err := attachExporters(s, cfg.Export, log)
	defer func() {
		for i := len(closers) - 1; i >= 0; i-- {
			if err := closers[i](); err != nil {
				log.WithError(err).Warn("exporter close")
			}
		}
	}()
	if err != nil {
		return err
	}

	status := web.NewStatus()
	status.SetInfo(map[string]any{
		"model":     model.Model,
		"simulated": cfg.Sim.Enable,
		"exporters": len(closers),
	})

	// The pulser is closed after its goroutines have stopped.
	var pulser *trigger.Pulser
	defer func() {
		if pulser != nil {
			_ = pulser.Close()
		}
	}()
	var wg sync.WaitGroup
	defer wg.Wait()
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	if cfg.Trigger.Enable {
		pulser, err = startTrigger(ctx, &wg, s, cfg.Trigger, metrics, log)
		if err != nil {
			return err
		}
	}

	var watcher *imustats.Watcher
	if cfg.Bias.Enable {
		watcher = imustats.NewWatcher(imustats.WatcherConfig{
			Window:   cfg.Bias.Window,
			MaxStd:   cfg.Bias.MaxStd,
			Cooldown: cfg.Bias.Cooldown,
		}, s.SetFilterBias, func() {
			status.MarkBiasUpdate()
			if metrics != nil {
				metrics.BiasUpdate()
			}
		}, log)
	}

	hub := web.NewHub()
	if cfg.Web.Listen != "" {
		opts := web.Options{Source: s, Status: status, Hub: hub, Logs: logs, Log: log}
		if metrics != nil {
			opts.Metrics = metrics.Handler()
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			log.WithField("listen", cfg.Web.Listen).Info("web enabled")
			if err := web.Serve(ctx, cfg.Web.Listen, web.Handler(opts)); err != nil && ctx.Err() == nil {
				log.WithError(err).Error("web server stopped")
				cancel()
			}
		}()
	}

	for {
		m, ok, err := s.NextMeasurement(popTimeout)
		if ctx.Err() != nil {
			return nil
		}
		if errors.Is(err, vnerr.ErrDisconnected) {
			log.Warn("sensor disconnected")
			if err := reconnect(ctx, s, cfg, log); err != nil {
				return nil
			}
			continue
		}
		if err != nil {
			return err
		}
		if !ok {
			continue
		}
		status.MarkMeasurement(m.Received)
		hub.Publish(m)
		if watcher != nil {
			if _, err := watcher.Observe(ctx, m); err != nil {
				log.WithError(err).Warn("filter bias update failed")
			}
		}
	}
}

// reconnect retries connect until it succeeds or ctx is done.
func reconnect(ctx context.Context, s *sensor.Sensor, cfg config.Config, log logrus.FieldLogger) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(reconnectDelay):
		}
		err := connect(ctx, s, cfg, log)
		if err == nil {
			return nil
		}
		log.WithError(err).Debug("reconnect")
	}
}

// attachExporters starts every configured exporter and subscribes it to
// the session. The returned closers run in reverse order on shutdown.
func attachExporters(s *sensor.Sensor, cfg config.ExportConfig, log logrus.FieldLogger) ([]func() error, error) {
	var closers []func() error
	attach := func(e export.Exporter) {
		ids := export.Attach(s, e)
		closers = append(closers, func() error {
			for _, id := range ids {
				s.UnsubscribeFromMessage(id)
			}
			return e.Close()
		})
	}

	if cfg.CSVDir != "" {
		c, err := export.NewCSV(cfg.CSVDir, export.DefaultQueueCapacity, log)
		if err != nil {
			return closers, err
		}
		attach(c)
		log.WithField("dir", cfg.CSVDir).Info("csv export enabled")
	}
	if cfg.RawLog != "" {
		raw, err := export.NewRawLogger(cfg.RawLog, export.DefaultQueueCapacity, log)
		if err != nil {
			return closers, err
		}
		id := s.RegisterReceivedByteBuffer(raw.ByteSink)
		closers = append(closers, func() error {
			s.DeregisterReceivedByteBuffer(id)
			return raw.Close()
		})
		log.WithField("path", cfg.RawLog).Info("raw log enabled")
	}
	if cfg.MQTT.Broker != "" {
		m, err := export.NewMQTT(export.MQTTOptions{
			Broker:   cfg.MQTT.Broker,
			ClientID: cfg.MQTT.ClientID,
			Topic:    cfg.MQTT.Topic,
			Qos:      cfg.MQTT.QoS,
		}, export.DefaultQueueCapacity, log)
		if err != nil {
			return closers, err
		}
		attach(m)
		log.WithField("broker", cfg.MQTT.Broker).Info("mqtt export enabled")
	}
	if cfg.Redis.Addr != "" {
		r, err := export.NewRedis(export.RedisOptions{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
			Channel:  cfg.Redis.Channel,
			List:     cfg.Redis.List,
			MaxLen:   cfg.Redis.MaxLen,
		}, export.DefaultQueueCapacity, log)
		if err != nil {
			return closers, err
		}
		attach(r)
		log.WithField("addr", cfg.Redis.Addr).Info("redis export enabled")
	}
	return closers, nil
}

// startTrigger opens the GPIO line and pulses it until ctx is done. A
// second goroutine compares the pulse count with the device's SyncIn
// count and logs pulses the device missed.
func startTrigger(ctx context.Context, wg *sync.WaitGroup, s *sensor.Sensor, cfg config.TriggerConfig, metrics *monitor.Metrics, log logrus.FieldLogger) (*trigger.Pulser, error) {
	tcfg := trigger.Config{Chip: cfg.Chip, Offset: cfg.Line, Width: cfg.PulseWidth, Period: cfg.Period}
	line, err := trigger.Open(tcfg)
	if err != nil {
		return nil, err
	}
	var onPulse func()
	if metrics != nil {
		onPulse = metrics.TriggerPulse
	}
	p, err := trigger.NewPulser(line, tcfg, onPulse, log)
	if err != nil {
		_ = line.Close()
		return nil, err
	}

	var base register.SyncStatus
	if err := s.ReadRegister(ctx, &base); err != nil {
		log.WithError(err).Warn("sync status unavailable; missed pulses are not tracked")
	}
	log.WithFields(logrus.Fields{"chip": cfg.Chip, "line": cfg.Line, "period": cfg.Period}).Info("trigger enabled")

	wg.Add(2)
	go func() {
		defer wg.Done()
		if err := p.Run(ctx); err != nil && ctx.Err() == nil {
			log.WithError(err).Error("trigger stopped")
		}
	}()
	go func() {
		defer wg.Done()
		t := time.NewTicker(syncCheckEvery)
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-t.C:
			}
			var now register.SyncStatus
			if err := s.ReadRegister(ctx, &now); err != nil {
				continue
			}
			if missed := trigger.Missed(p.Count(), base.SyncInCount, now.SyncInCount); missed != 0 {
				log.WithFields(logrus.Fields{"missed": missed, "emitted": p.Count()}).Warn("sync pulses missed")
			}
		}
	}()
	return p, nil
}
