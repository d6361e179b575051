package frame

import (
	"bytes"
	"errors"

	"vnsensor/internal/binout"
)

// Kind classifies a verified frame.
type Kind uint8

const (
	KindASCII Kind = iota + 1
	KindBinary
)

func (k Kind) String() string {
	switch k {
	case KindASCII:
		return "ascii"
	case KindBinary:
		return "binary"
	}
	return "unknown"
}

// Frame is one verified frame. Raw holds the complete frame bytes and is
// owned by the receiver.
type Frame struct {
	Kind Kind
	Raw  []byte

	// Body is the ASCII text between '$' and '*'.
	Body string

	// Header and Payload are set for binary frames. Payload aliases Raw.
	Header  binout.Header
	Payload []byte
}

const (
	DefaultMaxASCII  = 512
	DefaultMaxBinary = 4096

	maxSkippedRun = 1024
)

type scanResult uint8

const (
	needMore scanResult = iota
	accept
	reject
)

// Decoder turns a byte stream into verified frames. It is not safe for
// concurrent use; one goroutine owns it.
//
// A candidate frame starts at a sync byte ('$' or 0xFA) and is accumulated
// until it can be verified. When verification fails only the sync byte is
// dropped and scanning restarts on the byte after it, so a corrupt frame
// never hides a valid one that follows. Dropped bytes are reported through
// OnSkipped in runs. While a binary candidate waits for its payload the
// bytes behind it are searched for a complete ASCII frame; if one is found
// the binary candidate is abandoned.
type Decoder struct {
	OnFrame   func(Frame)
	OnSkipped func([]byte)

	MaxASCII  int
	MaxBinary int

	buf       []byte
	skipped   []byte
	asciiScan int
	aheadScan int
}

func NewDecoder(onFrame func(Frame), onSkipped func([]byte)) *Decoder {
	return &Decoder{
		OnFrame:   onFrame,
		OnSkipped: onSkipped,
		MaxASCII:  DefaultMaxASCII,
		MaxBinary: DefaultMaxBinary,
	}
}

// Feed consumes p. Frames and skipped runs are delivered synchronously.
func (d *Decoder) Feed(p []byte) {
	d.buf = append(d.buf, p...)
	d.process()
	if len(d.buf) == 0 {
		d.flushSkipped()
	}
}

// Reset drops any partial frame and pending skipped bytes without
// reporting them.
func (d *Decoder) Reset() {
	d.buf = d.buf[:0]
	d.skipped = d.skipped[:0]
	d.asciiScan = 0
	d.aheadScan = 0
}

// Pending is the number of bytes held for an incomplete frame.
func (d *Decoder) Pending() int { return len(d.buf) }

func (d *Decoder) process() {
	for len(d.buf) > 0 {
		var n int
		res := reject
		switch d.buf[0] {
		case asciiSync:
			n, res = d.scanASCII()
		case binarySync:
			n, res = d.scanBinary()
			if res == needMore && d.asciiAhead() {
				res = reject
			}
		}
		switch res {
		case needMore:
			return
		case accept:
			d.emit(n)
		case reject:
			d.skipped = append(d.skipped, d.buf[0])
			d.buf = d.buf[1:]
			d.asciiScan = 0
			d.aheadScan = 0
			if len(d.skipped) >= maxSkippedRun {
				d.flushSkipped()
			}
		}
	}
}

func (d *Decoder) scanASCII() (int, scanResult) {
	limit := d.MaxASCII
	if limit <= 0 {
		limit = DefaultMaxASCII
	}
	i := d.asciiScan
	if i < 1 {
		i = 1
	}
	for ; i < len(d.buf); i++ {
		c := d.buf[i]
		switch {
		case c == '\n':
			if d.buf[i-1] != '\r' {
				return 0, reject
			}
			if _, err := VerifyASCII(d.buf[:i+1]); err != nil {
				return 0, reject
			}
			return i + 1, accept
		case c == '\r':
			if i+1 < len(d.buf) && d.buf[i+1] != '\n' {
				return 0, reject
			}
		case c == asciiSync || c < 0x20 || c > 0x7E:
			return 0, reject
		}
		if i+1 >= limit {
			return 0, reject
		}
	}
	d.asciiScan = len(d.buf)
	return 0, needMore
}

func (d *Decoder) scanBinary() (int, scanResult) {
	limit := d.MaxBinary
	if limit <= 0 {
		limit = DefaultMaxBinary
	}
	h, hlen, err := binout.ParseHeader(d.buf[1:])
	if errors.Is(err, binout.ErrIncomplete) {
		return 0, needMore
	}
	if err != nil || h.Validate() != nil {
		return 0, reject
	}
	start := 1 + hlen
	plen, ok := h.PayloadLen(d.buf[start:])
	if start+plen+2 > limit {
		return 0, reject
	}
	if !ok {
		return 0, needMore
	}
	total := start + plen + 2
	if len(d.buf) < total {
		return 0, needMore
	}
	if Checksum16(d.buf[1:total]) != 0 {
		return 0, reject
	}
	return total, accept
}

// asciiAhead reports whether a complete, verified ASCII frame sits in the
// buffer behind the sync byte at d.buf[0].
func (d *Decoder) asciiAhead() bool {
	limit := d.MaxASCII
	if limit <= 0 {
		limit = DefaultMaxASCII
	}
	i := d.aheadScan
	if i < 1 {
		i = 1
	}
	for ; i < len(d.buf); i++ {
		if d.buf[i] != asciiSync {
			continue
		}
		end := bytes.IndexByte(d.buf[i:], '\n')
		if end < 0 {
			d.aheadScan = i
			return false
		}
		if end+1 > limit || end < 2 || d.buf[i+end-1] != '\r' {
			continue
		}
		if _, err := VerifyASCII(d.buf[i : i+end+1]); err == nil {
			return true
		}
	}
	d.aheadScan = len(d.buf)
	return false
}

func (d *Decoder) emit(n int) {
	d.flushSkipped()
	raw := make([]byte, n)
	copy(raw, d.buf[:n])
	d.buf = d.buf[n:]
	d.asciiScan = 0
	d.aheadScan = 0

	f := Frame{Raw: raw}
	if raw[0] == asciiSync {
		f.Kind = KindASCII
		f.Body, _ = VerifyASCII(raw)
	} else {
		f.Kind = KindBinary
		h, hlen, _ := binout.ParseHeader(raw[1:])
		f.Header = h
		f.Payload = raw[1+hlen : n-2]
	}
	if d.OnFrame != nil {
		d.OnFrame(f)
	}
}

func (d *Decoder) flushSkipped() {
	if len(d.skipped) == 0 {
		return
	}
	run := make([]byte, len(d.skipped))
	copy(run, d.skipped)
	d.skipped = d.skipped[:0]
	if d.OnSkipped != nil {
		d.OnSkipped(run)
	}
}
