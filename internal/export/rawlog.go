package export

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/sirupsen/logrus"

	"vnsensor/internal/queue"
)

// RawLogger copies every received byte to a file, for replay or support.
// Register ByteSink with the sensor's received byte buffer.
type RawLogger struct {
	log  logrus.FieldLogger
	q    *queue.Ring[[]byte]
	f    *os.File
	w    *bufio.Writer
	done chan struct{}
	err  error
}

func NewRawLogger(path string, capacity int, log logrus.FieldLogger) (*RawLogger, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("raw log: %w", err)
	}
	if capacity <= 0 {
		capacity = DefaultQueueCapacity
	}
	if log == nil {
		log = logrus.StandardLogger()
	}
	l := &RawLogger{
		log:  log.WithField("exporter", "raw"),
		q:    queue.NewRing[[]byte](capacity),
		f:    f,
		w:    bufio.NewWriterSize(f, 64*1024),
		done: make(chan struct{}),
	}
	go l.run()
	return l, nil
}

// ByteSink copies b; the caller's slice is reused after the call.
func (l *RawLogger) ByteSink(b []byte) {
	if l.q.Push(append([]byte(nil), b...)) {
		l.log.Debug("raw log queue full, dropped oldest")
	}
}

func (l *RawLogger) run() {
	defer close(l.done)
	flush := time.NewTicker(time.Second)
	defer flush.Stop()
	for {
		b, ok, err := l.q.PopNext(popWait)
		if err != nil {
			return
		}
		if ok {
			if _, err := l.w.Write(b); err != nil && l.err == nil {
				l.err = err
				l.log.WithError(err).Warn("raw log write")
			}
		}
		select {
		case <-flush.C:
			_ = l.w.Flush()
		default:
		}
	}
}

func (l *RawLogger) Close() error {
	l.q.Close()
	<-l.done
	return errors.Join(l.err, l.w.Flush(), l.f.Close())
}
