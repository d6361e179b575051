// Package web serves the daemon's HTTP API: session status, the latest
// measurement, a websocket measurement stream, logs and metrics.
package web

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"

	"vnsensor/internal/measurement"
	"vnsensor/internal/sensor"
)

// Source is the sensor session the API reports on.
type Source interface {
	Status() sensor.Status
	LastMeasurement() (measurement.CompositeData, bool)
}

type Options struct {
	Source  Source
	Status  *Status
	Hub     *Hub
	Logs    *LogBuffer
	Metrics http.Handler
	Log     logrus.FieldLogger
}

func Handler(opts Options) http.Handler {
	log := opts.Log
	if log == nil {
		log = logrus.StandardLogger()
	}
	log = log.WithField("component", "web")
	status := opts.Status
	if status == nil {
		status = NewStatus()
	}

	mux := http.NewServeMux()

	mux.HandleFunc("/api/status", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			w.Header().Set("Allow", http.MethodGet)
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		var st sensor.Status
		if opts.Source != nil {
			st = opts.Source.Status()
		}
		writeJSON(w, status.Snapshot(time.Now().UTC(), st))
	})

	mux.HandleFunc("/api/measurement", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			w.Header().Set("Allow", http.MethodGet)
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		if opts.Source == nil {
			http.Error(w, "no sensor", http.StatusServiceUnavailable)
			return
		}
		m, ok := opts.Source.LastMeasurement()
		if !ok {
			http.Error(w, "no measurement yet", http.StatusNotFound)
			return
		}
		writeJSON(w, m)
	})

	if opts.Hub != nil {
		mux.HandleFunc("/ws", handleStream(opts.Hub, log))
	}
	if opts.Logs != nil {
		mux.Handle("/api/logs", opts.Logs.Handler())
	}
	if opts.Metrics != nil {
		mux.Handle("/metrics", opts.Metrics)
	}

	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/" {
			http.NotFound(w, r)
			return
		}
		if r.Method != http.MethodGet {
			w.Header().Set("Allow", http.MethodGet)
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = fmt.Fprintf(w, "<!doctype html><html><head><meta charset=\"utf-8\"><title>vnsensor</title></head><body>")
		_, _ = fmt.Fprintf(w, "<h1>vnsensor</h1><ul>")
		_, _ = fmt.Fprintf(w, "<li><a href=\"/api/status\">/api/status</a></li>")
		_, _ = fmt.Fprintf(w, "<li><a href=\"/api/measurement\">/api/measurement</a></li>")
		if opts.Metrics != nil {
			_, _ = fmt.Fprintf(w, "<li><a href=\"/metrics\">/metrics</a></li>")
		}
		_, _ = fmt.Fprintf(w, "</ul></body></html>")
	})

	return mux
}

// Serve runs the API on listenAddr until ctx is done.
func Serve(ctx context.Context, listenAddr string, h http.Handler) error {
	srv := &http.Server{
		Addr:              listenAddr,
		Handler:           h,
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       30 * time.Second,
		MaxHeaderBytes:    1 << 20, // 1 MiB
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		return ctx.Err()
	case err := <-errCh:
		if err == http.ErrServerClosed {
			return nil
		}
		return err
	}
}
