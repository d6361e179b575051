package register

import (
	"fmt"
	"strconv"
	"strings"

	"vnsensor/internal/binout"
)

// BinaryOutput1, BinaryOutput2 and BinaryOutput3 are the three independent
// binary streaming configurations.
type (
	BinaryOutput1 struct{ binout.Config }
	BinaryOutput2 struct{ binout.Config }
	BinaryOutput3 struct{ binout.Config }
)

func (*BinaryOutput1) ID() uint8 { return IDBinaryOutput1 }
func (*BinaryOutput2) ID() uint8 { return IDBinaryOutput2 }
func (*BinaryOutput3) ID() uint8 { return IDBinaryOutput3 }

func (*BinaryOutput1) Name() string { return "BinaryOutput1" }
func (*BinaryOutput2) Name() string { return "BinaryOutput2" }
func (*BinaryOutput3) Name() string { return "BinaryOutput3" }

func (*BinaryOutput1) writable() {}
func (*BinaryOutput2) writable() {}
func (*BinaryOutput3) writable() {}

func (r *BinaryOutput1) fields() []field { return binaryOutputFields(&r.Config) }
func (r *BinaryOutput2) fields() []field { return binaryOutputFields(&r.Config) }
func (r *BinaryOutput3) fields() []field { return binaryOutputFields(&r.Config) }

func (r *BinaryOutput1) encodeASCII() (string, error) { return binaryOutputASCII(r.Config), nil }
func (r *BinaryOutput2) encodeASCII() (string, error) { return binaryOutputASCII(r.Config), nil }
func (r *BinaryOutput3) encodeASCII() (string, error) { return binaryOutputASCII(r.Config), nil }

func (r *BinaryOutput1) decodeASCII(p []string) error { return parseBinaryOutput(&r.Config, p) }
func (r *BinaryOutput2) decodeASCII(p []string) error { return parseBinaryOutput(&r.Config, p) }
func (r *BinaryOutput3) decodeASCII(p []string) error { return parseBinaryOutput(&r.Config, p) }

// NewBinaryOutput returns the register for slot 1, 2 or 3 holding cfg.
func NewBinaryOutput(slot int, cfg binout.Config) (Writable, error) {
	switch slot {
	case 1:
		return &BinaryOutput1{Config: cfg}, nil
	case 2:
		return &BinaryOutput2{Config: cfg}, nil
	case 3:
		return &BinaryOutput3{Config: cfg}, nil
	}
	return nil, fmt.Errorf("binary output slot %d out of range 1..3", slot)
}

// BinaryOutputConfig extracts the configuration and slot from a binary
// output register.
func BinaryOutputConfig(r Register) (binout.Config, int, bool) {
	switch v := r.(type) {
	case *BinaryOutput1:
		return v.Config, 1, true
	case *BinaryOutput2:
		return v.Config, 2, true
	case *BinaryOutput3:
		return v.Config, 3, true
	}
	return binout.Config{}, 0, false
}

const reservedMask = uint64(binout.ReservedBit)

func binaryOutputFields(c *binout.Config) []field {
	return []field{
		u16("asyncMode", (*uint16)(&c.AsyncMode)).asHex(),
		u16("rateDivisor", &c.RateDivisor),
		u32("common", (*uint32)(&c.Common)).asHex().reserve(reservedMask),
		u32("time", (*uint32)(&c.Time)).asHex().reserve(reservedMask),
		u32("imu", (*uint32)(&c.IMU)).asHex().reserve(reservedMask),
		u32("gnss", (*uint32)(&c.GNSS)).asHex().reserve(reservedMask),
		u32("attitude", (*uint32)(&c.Attitude)).asHex().reserve(reservedMask),
		u32("ins", (*uint32)(&c.INS)).asHex().reserve(reservedMask),
		u32("gnss2", (*uint32)(&c.GNSS2)).asHex().reserve(reservedMask),
		u32("gnss3", (*uint32)(&c.GNSS3)).asHex().reserve(reservedMask),
	}
}

// binaryOutputASCII renders asyncMode, rateDivisor, then the header as the
// device prints it: group byte(s) and type words in hex.
func binaryOutputASCII(c binout.Config) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "%X,%d", uint16(c.AsyncMode), c.RateDivisor)
	h := c.Header()
	gb := h.GroupBytes()
	if h.Empty() {
		gb = []byte{0}
	}
	for _, b := range gb {
		fmt.Fprintf(&sb, ",%X", b)
	}
	for _, w := range h.TypeWords() {
		fmt.Fprintf(&sb, ",%X", w)
	}
	return sb.String()
}

func parseBinaryOutput(c *binout.Config, parts []string) error {
	if len(parts) < 3 {
		return fmt.Errorf("got %d fields, want at least 3", len(parts))
	}
	hex := func(s string, bits int) (uint64, error) {
		return strconv.ParseUint(strings.TrimSpace(s), 16, bits)
	}
	mode, err := hex(parts[0], 16)
	if err != nil {
		return fmt.Errorf("asyncMode: %w", err)
	}
	div, err := strconv.ParseUint(strings.TrimSpace(parts[1]), 10, 16)
	if err != nil {
		return fmt.Errorf("rateDivisor: %w", err)
	}
	wire := make([]byte, 0, 2*len(parts))
	for i, p := range parts[2:] {
		// Group byte(s) are one byte wide, type words two.
		bits := 16
		if i == 0 || (i == 1 && len(wire) == 1 && wire[0]&0x80 != 0) {
			bits = 8
		}
		v, err := hex(p, bits)
		if err != nil {
			return fmt.Errorf("header field %d: %w", i, err)
		}
		if bits == 8 {
			wire = append(wire, byte(v))
		} else {
			wire = append(wire, byte(v), byte(v>>8))
		}
	}
	c.AsyncMode = binout.AsyncMode(mode)
	c.RateDivisor = uint16(div)
	if len(wire) == 1 && wire[0] == 0 {
		c.SetHeader(binout.Header{})
		return nil
	}
	h, n, err := binout.ParseHeader(wire)
	if err != nil {
		return err
	}
	if n != len(wire) {
		return fmt.Errorf("header has %d trailing bytes", len(wire)-n)
	}
	c.SetHeader(h)
	return nil
}
