package measurement

import (
	"encoding/binary"
	"fmt"
	"math"
	"time"

	"vnsensor/internal/binout"
)

var le = binary.LittleEndian

// DecodeBinary walks payload in header order and returns the selected
// fields.
func DecodeBinary(h binout.Header, payload []byte, received time.Time) (CompositeData, error) {
	c := newComposite(received)
	c.Header = h
	off := 0
	for _, f := range h.Fields() {
		if !f.Known() {
			return CompositeData{}, fmt.Errorf("decode binary: unknown field %s", f)
		}
		rest := payload[off:]
		size, fixed := f.FixedSize()
		if !fixed {
			size = binout.VariableSize(f.Kind(), rest)
			if size == 0 {
				return CompositeData{}, fmt.Errorf("decode binary: %s: payload truncated at %d", f, off)
			}
		}
		if len(rest) < size {
			return CompositeData{}, fmt.Errorf("decode binary: %s: need %d bytes, have %d", f, size, len(rest))
		}
		c.set(f, decodeField(f, rest[:size]))
		off += size
	}
	if off != len(payload) {
		return CompositeData{}, fmt.Errorf("decode binary: %d trailing payload bytes", len(payload)-off)
	}
	return c, nil
}

func decodeField(f binout.Field, b []byte) Value {
	v := Value{Kind: f.Kind()}
	switch v.Kind {
	case binout.KindU8:
		v.Uint = uint64(b[0])
	case binout.KindU16:
		v.Uint = uint64(le.Uint16(b))
	case binout.KindU32:
		v.Uint = uint64(le.Uint32(b))
	case binout.KindU64:
		v.Uint = le.Uint64(b)
	case binout.KindF32:
		v.Floats = make([]float64, f.Count())
		for i := range v.Floats {
			v.Floats[i] = float64(math.Float32frombits(le.Uint32(b[4*i:])))
		}
	case binout.KindF64:
		v.Floats = make([]float64, f.Count())
		for i := range v.Floats {
			v.Floats[i] = math.Float64frombits(le.Uint64(b[8*i:]))
		}
	case binout.KindUTC:
		v.UTC = parseUTC(b)
	case binout.KindSatInfo:
		v.Sats = parseSatInfo(b)
	case binout.KindRawMeas:
		v.Raw = parseRawMeas(b)
	case binout.KindBytes:
		v.Bytes = append([]byte(nil), b...)
	}
	return v
}

func parseUTC(b []byte) TimeUTC {
	return TimeUTC{
		Year:   int8(b[0]),
		Month:  b[1],
		Day:    b[2],
		Hour:   b[3],
		Minute: b[4],
		Second: b[5],
		Millis: le.Uint16(b[6:]),
	}
}

func parseSatInfo(b []byte) []SatInfo {
	n := int(b[0])
	out := make([]SatInfo, n)
	for i := range out {
		e := b[2+i*binout.SatInfoEntrySize:]
		out[i] = SatInfo{
			Sys:   int8(e[0]),
			SvID:  e[1],
			Flags: e[2],
			Cno:   e[3],
			Qi:    e[4],
			El:    int8(e[5]),
			Az:    int16(le.Uint16(e[6:])),
		}
	}
	return out
}

func parseRawMeas(b []byte) *RawMeas {
	r := &RawMeas{
		Tow:  math.Float64frombits(le.Uint64(b)),
		Week: le.Uint16(b[8:]),
	}
	n := int(b[10])
	r.Meas = make([]RawSat, n)
	for i := range r.Meas {
		e := b[12+i*binout.RawMeasEntrySize:]
		r.Meas[i] = RawSat{
			Sys:     e[0],
			SvID:    e[1],
			Band:    e[2],
			Chan:    e[3],
			FreqNum: int8(e[4]),
			Cno:     e[5],
			Flags:   le.Uint16(e[6:]),
			Pr:      math.Float64frombits(le.Uint64(e[8:])),
			Cp:      math.Float64frombits(le.Uint64(e[16:])),
			Dp:      math.Float32frombits(le.Uint32(e[24:])),
		}
	}
	return r
}

// AppendPayload encodes the fields selected by h from c. Every selected
// field must be present in c.
func AppendPayload(dst []byte, h binout.Header, c CompositeData) ([]byte, error) {
	for _, f := range h.Fields() {
		v, ok := c.Get(f)
		if !ok {
			return dst, fmt.Errorf("encode binary: missing field %s", f)
		}
		var err error
		if dst, err = appendField(dst, f, v); err != nil {
			return dst, err
		}
	}
	return dst, nil
}

func appendField(dst []byte, f binout.Field, v Value) ([]byte, error) {
	switch f.Kind() {
	case binout.KindU8:
		return append(dst, byte(v.Uint)), nil
	case binout.KindU16:
		return le.AppendUint16(dst, uint16(v.Uint)), nil
	case binout.KindU32:
		return le.AppendUint32(dst, uint32(v.Uint)), nil
	case binout.KindU64:
		return le.AppendUint64(dst, v.Uint), nil
	case binout.KindF32, binout.KindF64:
		if len(v.Floats) != f.Count() {
			return dst, fmt.Errorf("encode binary: %s has %d values, want %d", f, len(v.Floats), f.Count())
		}
		for _, x := range v.Floats {
			if f.Kind() == binout.KindF32 {
				dst = le.AppendUint32(dst, math.Float32bits(float32(x)))
			} else {
				dst = le.AppendUint64(dst, math.Float64bits(x))
			}
		}
		return dst, nil
	case binout.KindUTC:
		u := v.UTC
		dst = append(dst, byte(u.Year), u.Month, u.Day, u.Hour, u.Minute, u.Second)
		return le.AppendUint16(dst, u.Millis), nil
	case binout.KindSatInfo:
		dst = append(dst, byte(len(v.Sats)), 0)
		for _, s := range v.Sats {
			dst = append(dst, byte(s.Sys), s.SvID, s.Flags, s.Cno, s.Qi, byte(s.El))
			dst = le.AppendUint16(dst, uint16(s.Az))
		}
		return dst, nil
	case binout.KindRawMeas:
		r := v.Raw
		if r == nil {
			r = &RawMeas{}
		}
		dst = le.AppendUint64(dst, math.Float64bits(r.Tow))
		dst = le.AppendUint16(dst, r.Week)
		dst = append(dst, byte(len(r.Meas)), 0)
		for _, m := range r.Meas {
			dst = append(dst, m.Sys, m.SvID, m.Band, m.Chan, byte(m.FreqNum), m.Cno)
			dst = le.AppendUint16(dst, m.Flags)
			dst = le.AppendUint64(dst, math.Float64bits(m.Pr))
			dst = le.AppendUint64(dst, math.Float64bits(m.Cp))
			dst = le.AppendUint32(dst, math.Float32bits(m.Dp))
		}
		return dst, nil
	case binout.KindBytes:
		size, _ := f.FixedSize()
		if len(v.Bytes) != size {
			return dst, fmt.Errorf("encode binary: %s has %d bytes, want %d", f, len(v.Bytes), size)
		}
		return append(dst, v.Bytes...), nil
	}
	return dst, fmt.Errorf("encode binary: unknown field %s", f)
}

// Builder assembles a CompositeData, mainly for simulators and tests.
type Builder struct {
	c CompositeData
}

func NewBuilder(received time.Time) *Builder {
	return &Builder{c: newComposite(received)}
}

func (b *Builder) Floats(f binout.Field, xs ...float64) *Builder {
	b.c.set(f, Value{Kind: f.Kind(), Floats: xs})
	return b
}

func (b *Builder) Uint(f binout.Field, x uint64) *Builder {
	b.c.set(f, Value{Kind: f.Kind(), Uint: x})
	return b
}

func (b *Builder) Set(f binout.Field, v Value) *Builder {
	v.Kind = f.Kind()
	b.c.set(f, v)
	return b
}

func (b *Builder) Build() CompositeData { return b.c }
