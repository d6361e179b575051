//go:build linux

package transport

import (
	"errors"
	"fmt"
	"sync/atomic"

	"golang.org/x/sys/unix"
)

type termiosPort struct {
	fd     int
	name   string
	closed atomic.Bool
}

func openSerial(path string, baud int) (Port, error) {
	flag := unix.O_RDWR | unix.O_NOCTTY | unix.O_CLOEXEC
	fd, err := unix.Open(path, flag, 0)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}

	ok := false
	defer func() {
		if !ok {
			_ = unix.Close(fd)
		}
	}()

	t, err := unix.IoctlGetTermios(fd, unix.TCGETS2)
	if err != nil {
		return nil, fmt.Errorf("tcgets %s: %w", path, err)
	}

	// Raw mode, 8N1, no flow control.
	t.Iflag &^= unix.IGNBRK | unix.BRKINT | unix.PARMRK | unix.ISTRIP | unix.INLCR | unix.IGNCR | unix.ICRNL | unix.IXON | unix.IXOFF | unix.IXANY
	t.Oflag &^= unix.OPOST
	t.Lflag &^= unix.ECHO | unix.ECHONL | unix.ICANON | unix.ISIG | unix.IEXTEN
	t.Cflag &^= unix.CSIZE | unix.PARENB | unix.CSTOPB | unix.CRTSCTS
	t.Cflag |= unix.CS8 | unix.CREAD | unix.CLOCAL

	// Return after one decisecond even when nothing arrived.
	t.Cc[unix.VMIN] = 0
	t.Cc[unix.VTIME] = 1

	// BOTHER takes the rate from Ispeed/Ospeed, which also covers 128000.
	t.Cflag &^= unix.CBAUD
	t.Cflag |= unix.BOTHER
	t.Ispeed = uint32(baud)
	t.Ospeed = uint32(baud)

	if err := unix.IoctlSetTermios(fd, unix.TCSETS2, t); err != nil {
		return nil, fmt.Errorf("set baud %d on %s: %w", baud, path, err)
	}
	_ = unix.IoctlSetInt(fd, unix.TCFLSH, unix.TCIOFLUSH)

	ok = true
	return &termiosPort{fd: fd, name: path}, nil
}

func (p *termiosPort) Read(b []byte) (int, error) {
	if p.closed.Load() {
		return 0, unix.EBADF
	}
	n, err := unix.Read(p.fd, b)
	if errors.Is(err, unix.EINTR) || errors.Is(err, unix.EAGAIN) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("read %s: %w", p.name, err)
	}
	return n, nil
}

func (p *termiosPort) Write(b []byte) (int, error) {
	if p.closed.Load() {
		return 0, unix.EBADF
	}
	total := 0
	for total < len(b) {
		n, err := unix.Write(p.fd, b[total:])
		if errors.Is(err, unix.EINTR) {
			continue
		}
		if err != nil {
			return total, fmt.Errorf("write %s: %w", p.name, err)
		}
		total += n
	}
	return total, nil
}

func (p *termiosPort) Close() error {
	if p.closed.Swap(true) {
		return nil
	}
	return unix.Close(p.fd)
}
