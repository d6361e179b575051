//go:build !linux

package transport

import (
	"errors"
	"fmt"
	"io"

	"github.com/tarm/serial"
)

// tarmPort hides the io.EOF that some platforms report on a read timeout.
type tarmPort struct {
	*serial.Port
}

func openSerial(path string, baud int) (Port, error) {
	cfg := &serial.Config{
		Name:        path,
		Baud:        baud,
		Parity:      serial.ParityNone,
		Size:        8,
		StopBits:    serial.Stop1,
		ReadTimeout: DefaultReadTimeout,
	}
	p, err := serial.OpenPort(cfg)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	_ = p.Flush()
	return tarmPort{Port: p}, nil
}

func (p tarmPort) Read(b []byte) (int, error) {
	n, err := p.Port.Read(b)
	if errors.Is(err, io.EOF) {
		return n, nil
	}
	return n, err
}
