package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"

	"vnsensor/internal/config"
	"vnsensor/internal/web"
)

func main() {
	var (
		configPath string
		scanPath   string
		applyPath  string
	)
	flag.StringVar(&configPath, "config", "./vnsensor.yaml", "Path to YAML config")
	flag.StringVar(&scanPath, "scan", "", "Write the device's writable registers to this YAML file and exit")
	flag.StringVar(&applyPath, "apply", "", "Write registers from this YAML file to the device, save them and exit")
	flag.Parse()

	cfg, err := config.Load(configPath)
	if err != nil {
		logrus.Fatalf("config load failed: %v", err)
	}

	logs := web.NewLogBuffer(2000)
	log, err := newLogger(cfg.Log, logs)
	if err != nil {
		logrus.Fatalf("logger: %v", err)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	log.Info("vnsensor starting")
	switch {
	case scanPath != "":
		err = scan(ctx, cfg, log, scanPath)
	case applyPath != "":
		err = apply(ctx, cfg, log, applyPath)
	default:
		err = run(ctx, cfg, log, logs)
	}
	if err != nil && ctx.Err() == nil {
		log.WithError(err).Fatal("vnsensor stopped")
	}
	log.Info("vnsensor stopping")
}

func newLogger(cfg config.LogConfig, hook logrus.Hook) (*logrus.Logger, error) {
	level, err := logrus.ParseLevel(cfg.Level)
	if err != nil {
		return nil, fmt.Errorf("log.level: %w", err)
	}
	l := logrus.New()
	l.SetOutput(os.Stderr)
	l.SetLevel(level)
	if cfg.Format == "json" {
		l.SetFormatter(&logrus.JSONFormatter{})
	} else {
		l.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}
	if hook != nil {
		l.AddHook(hook)
	}
	return l, nil
}
