package web

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// LogBuffer is a logrus hook that keeps the most recent log lines for
// /api/logs.
type LogBuffer struct {
	mu      sync.Mutex
	max     int
	entries []logLine
	dropped uint64
	format  logrus.Formatter
}

type logLine struct {
	level logrus.Level
	text  string
}

func NewLogBuffer(maxLines int) *LogBuffer {
	if maxLines <= 0 {
		maxLines = 2000
	}
	return &LogBuffer{
		max:    maxLines,
		format: &logrus.TextFormatter{DisableColors: true, FullTimestamp: true},
	}
}

func (b *LogBuffer) Levels() []logrus.Level { return logrus.AllLevels }

func (b *LogBuffer) Fire(e *logrus.Entry) error {
	out, err := b.format.Format(e)
	if err != nil {
		return err
	}
	text := strings.TrimRight(string(out), "\r\n")
	if text == "" {
		return nil
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.entries = append(b.entries, logLine{level: e.Level, text: text})
	if over := len(b.entries) - b.max; over > 0 {
		b.entries = b.entries[over:]
		b.dropped += uint64(over)
	}
	return nil
}

type LogsResponse struct {
	NowUTC  string   `json:"now_utc"`
	Dropped uint64   `json:"dropped"`
	Lines   []string `json:"lines"`
}

// Snapshot returns up to tail of the newest lines at or above level
// (logrus levels grow more verbose, so "at or above" means <= level).
func (b *LogBuffer) Snapshot(tail int, level logrus.Level) (lines []string, dropped uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if tail <= 0 {
		tail = 200
	}
	for i := len(b.entries) - 1; i >= 0 && len(lines) < tail; i-- {
		if b.entries[i].level <= level {
			lines = append(lines, b.entries[i].text)
		}
	}
	for i, j := 0, len(lines)-1; i < j; i, j = i+1, j-1 {
		lines[i], lines[j] = lines[j], lines[i]
	}
	return lines, b.dropped
}

func (b *LogBuffer) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			w.Header().Set("Allow", http.MethodGet)
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}

		q := r.URL.Query()
		tail := 200
		if s := strings.TrimSpace(q.Get("tail")); s != "" {
			v, err := strconv.Atoi(s)
			if err != nil || v < 1 || v > 5000 {
				http.Error(w, "tail must be an integer in [1,5000]", http.StatusBadRequest)
				return
			}
			tail = v
		}
		level := logrus.TraceLevel
		if s := strings.TrimSpace(q.Get("level")); s != "" {
			lv, err := logrus.ParseLevel(s)
			if err != nil {
				http.Error(w, err.Error(), http.StatusBadRequest)
				return
			}
			level = lv
		}

		lines, dropped := b.Snapshot(tail, level)
		if strings.EqualFold(q.Get("format"), "text") {
			w.Header().Set("Content-Type", "text/plain; charset=utf-8")
			w.Header().Set("Cache-Control", "no-store")
			if dropped > 0 {
				_, _ = fmt.Fprintf(w, "[dropped=%d]\n", dropped)
			}
			for _, line := range lines {
				_, _ = fmt.Fprintln(w, line)
			}
			return
		}

		writeJSON(w, LogsResponse{
			NowUTC:  time.Now().UTC().Format(time.RFC3339Nano),
			Dropped: dropped,
			Lines:   lines,
		})
	})
}

func writeJSON(w http.ResponseWriter, v any) {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		http.Error(w, "marshal failed", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	_, _ = w.Write(b)
	_, _ = w.Write([]byte("\n"))
}
