package frame

import (
	"bytes"
	"encoding/binary"
	"math"
	"testing"

	"vnsensor/internal/binout"
)

type capture struct {
	frames  []Frame
	skipped [][]byte
}

func newCapture() (*capture, *Decoder) {
	c := &capture{}
	d := NewDecoder(
		func(f Frame) { c.frames = append(c.frames, f) },
		func(b []byte) { c.skipped = append(c.skipped, b) },
	)
	return c, d
}

func yprPayload(y, p, r float32) []byte {
	var b []byte
	for _, v := range []float32{y, p, r} {
		b = binary.LittleEndian.AppendUint32(b, math.Float32bits(v))
	}
	return b
}

var yprHeader = binout.Config{Common: binout.CommonYpr}.Header()

func TestDecoder_ASCIIFrame(t *testing.T) {
	c, d := newCapture()
	d.Feed([]byte("$VNYPR,+010.071,-000.278,-001.026*A566\r\n"))
	if len(c.frames) != 1 || len(c.skipped) != 0 {
		t.Fatalf("frames=%d skipped=%d", len(c.frames), len(c.skipped))
	}
	f := c.frames[0]
	if f.Kind != KindASCII || f.Body != "VNYPR,+010.071,-000.278,-001.026" {
		t.Fatalf("frame=%+v", f)
	}
}

func TestDecoder_BinaryByteAtATime(t *testing.T) {
	c, d := newCapture()
	stream := AppendBinary(nil, yprHeader, yprPayload(1, 2, 3))
	stream = AppendBinary(stream, yprHeader, yprPayload(4, 5, 6))
	for _, b := range stream {
		d.Feed([]byte{b})
	}
	if len(c.frames) != 2 {
		t.Fatalf("frames=%d want 2", len(c.frames))
	}
	if len(c.skipped) != 0 {
		t.Fatalf("unexpected skipped runs: %v", c.skipped)
	}
	f := c.frames[1]
	if f.Kind != KindBinary || f.Header != yprHeader {
		t.Fatalf("frame kind=%s header=%s", f.Kind, f.Header)
	}
	if !bytes.Equal(f.Payload, yprPayload(4, 5, 6)) {
		t.Fatalf("payload=% X", f.Payload)
	}
	if d.Pending() != 0 {
		t.Fatalf("pending=%d", d.Pending())
	}
}

func TestDecoder_ResyncAfterCorruptFrame(t *testing.T) {
	c, d := newCapture()
	good1 := AppendBinary(nil, yprHeader, yprPayload(1, 2, 3))
	bad := AppendBinary(nil, yprHeader, yprPayload(1, 2, 3))
	bad[4] ^= 0x01
	good2 := AppendBinary(nil, yprHeader, yprPayload(2, 2, 3))

	var stream []byte
	stream = append(stream, good1...)
	stream = append(stream, bad...)
	stream = append(stream, good2...)
	d.Feed(stream)

	if len(c.frames) != 2 {
		t.Fatalf("frames=%d want 2", len(c.frames))
	}
	if len(c.skipped) != 1 {
		t.Fatalf("skipped runs=%d want 1", len(c.skipped))
	}
	if !bytes.Equal(c.skipped[0], bad) {
		t.Fatalf("skipped=% X want % X", c.skipped[0], bad)
	}
	if !bytes.Equal(c.frames[1].Raw, good2) {
		t.Fatalf("second frame=% X", c.frames[1].Raw)
	}
}

func TestDecoder_GarbageBeforeFrame(t *testing.T) {
	c, d := newCapture()
	d.Feed([]byte("noise"))
	if len(c.skipped) != 1 || string(c.skipped[0]) != "noise" {
		t.Fatalf("skipped=%q", c.skipped)
	}
	d.Feed(AppendASCII(nil, "VNRRG,01,VN-200", Checksum8Bit))
	if len(c.frames) != 1 || c.frames[0].Body != "VNRRG,01,VN-200" {
		t.Fatalf("frames=%+v", c.frames)
	}
}

func TestDecoder_TruncatedASCIIThenValid(t *testing.T) {
	c, d := newCapture()
	d.Feed([]byte("$VNYPR,1,2"))
	d.Feed(AppendASCII(nil, "VNRRG,05,115200", ChecksumCRC16))
	if len(c.frames) != 1 || c.frames[0].Body != "VNRRG,05,115200" {
		t.Fatalf("frames=%+v", c.frames)
	}
	if len(c.skipped) != 1 || string(c.skipped[0]) != "$VNYPR,1,2" {
		t.Fatalf("skipped=%q", c.skipped)
	}
}

func TestDecoder_BadASCIIChecksumSkipped(t *testing.T) {
	c, d := newCapture()
	d.Feed([]byte("$VNRRG,01*73\r\n"))
	if len(c.frames) != 0 {
		t.Fatalf("frames=%d want 0", len(c.frames))
	}
	if len(c.skipped) != 1 || string(c.skipped[0]) != "$VNRRG,01*73\r\n" {
		t.Fatalf("skipped=%q", c.skipped)
	}
}

func TestDecoder_VariableLengthPayload(t *testing.T) {
	c, d := newCapture()
	h := binout.Config{GNSS: binout.GnssNumSats | binout.GnssSatInfo}.Header()
	payload := []byte{2, 2, 0}
	payload = append(payload, bytes.Repeat([]byte{0x11}, 2*binout.SatInfoEntrySize)...)
	raw := AppendBinary(nil, h, payload)
	d.Feed(raw[:10])
	if len(c.frames) != 0 || d.Pending() != 10 {
		t.Fatalf("frames=%d pending=%d", len(c.frames), d.Pending())
	}
	d.Feed(raw[10:])
	if len(c.frames) != 1 || !bytes.Equal(c.frames[0].Payload, payload) {
		t.Fatalf("frames=%+v", c.frames)
	}
}

func TestDecoder_MixedStream(t *testing.T) {
	c, d := newCapture()
	var stream []byte
	stream = AppendASCII(stream, "VNYPR,1,2,3", ChecksumCRC16)
	stream = AppendBinary(stream, yprHeader, yprPayload(7, 8, 9))
	stream = AppendASCII(stream, "VNERR,03", Checksum8Bit)
	d.Feed(stream)
	if len(c.frames) != 3 {
		t.Fatalf("frames=%d want 3", len(c.frames))
	}
	kinds := []Kind{c.frames[0].Kind, c.frames[1].Kind, c.frames[2].Kind}
	if kinds[0] != KindASCII || kinds[1] != KindBinary || kinds[2] != KindASCII {
		t.Fatalf("kinds=%v", kinds)
	}
}

func TestDecoder_StrayBinarySyncDoesNotHoldASCII(t *testing.T) {
	stray := []byte{0xFA, 0x10, 0xFF, 0x01}
	var responses []byte
	for i := 0; i < 3; i++ {
		responses = AppendASCII(responses, "VNRRG,01,VN-100", ChecksumCRC16)
	}

	t.Run("Chunk", func(t *testing.T) {
		c, d := newCapture()
		d.Feed(stray)
		d.Feed(responses)
		if len(c.frames) != 3 || d.Pending() != 0 {
			t.Fatalf("frames=%d pending=%d", len(c.frames), d.Pending())
		}
		if len(c.skipped) != 1 || !bytes.Equal(c.skipped[0], stray) {
			t.Fatalf("skipped=% X", c.skipped)
		}
	})

	t.Run("ByteAtATime", func(t *testing.T) {
		c, d := newCapture()
		for _, b := range append(append([]byte{}, stray...), responses...) {
			d.Feed([]byte{b})
		}
		if len(c.frames) != 3 || d.Pending() != 0 {
			t.Fatalf("frames=%d pending=%d", len(c.frames), d.Pending())
		}
		if c.frames[0].Body != "VNRRG,01,VN-100" {
			t.Fatalf("body=%q", c.frames[0].Body)
		}
	})
}

func TestDecoder_BinaryCompletesBeforeLookahead(t *testing.T) {
	c, d := newCapture()
	raw := AppendBinary(nil, yprHeader, yprPayload(1, 2, 3))
	d.Feed(raw[:len(raw)-1])
	d.Feed(append([]byte{raw[len(raw)-1]}, AppendASCII(nil, "VNYPR,1,2,3", ChecksumCRC16)...))
	if len(c.frames) != 2 || c.frames[0].Kind != KindBinary || c.frames[1].Kind != KindASCII {
		t.Fatalf("frames=%+v", c.frames)
	}
	if len(c.skipped) != 0 {
		t.Fatalf("skipped=% X", c.skipped)
	}
}
