// Package transport opens the serial link to the sensor.
package transport

import (
	"io"
	"time"
)

// DefaultReadTimeout bounds every Read so the decode loop can notice a
// disconnect.
const DefaultReadTimeout = 100 * time.Millisecond

// Port is an open serial link. Read returns within a bounded timeout and
// may return 0, nil when nothing arrived.
type Port interface {
	io.ReadWriteCloser
}

// Opener opens name at baud. Tests and the simulator substitute their own.
type Opener func(name string, baud int) (Port, error)

// Open opens a local serial device in raw 8N1 mode.
func Open(name string, baud int) (Port, error) {
	return openSerial(name, baud)
}
