package register

import (
	"encoding/binary"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// EncodingError reports a field value that cannot be put on the wire.
type EncodingError struct {
	Register string
	Field    string
	Reason   string
}

func (e *EncodingError) Error() string {
	return fmt.Sprintf("encode %s.%s: %s", e.Register, e.Field, e.Reason)
}

// DecodingError reports wire data that does not describe a valid register
// value.
type DecodingError struct {
	Register string
	Field    string
	Reason   string
}

func (e *DecodingError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("decode %s: %s", e.Register, e.Reason)
	}
	return fmt.Sprintf("decode %s.%s: %s", e.Register, e.Field, e.Reason)
}

// field binds one declared field of a register to its storage.
type field struct {
	name string
	// ptr is one of *uint8, *uint16, *uint32, *uint64, *int8, *int16,
	// *int32, *float32, *float64 or *string.
	ptr   any
	width int // fixed string width
	codes []uint64
	hex   bool
	// optional fields are trailing ASCII fields the device may omit.
	// They are left out of the ASCII form while zero.
	optional bool
	// reserved bits must be clear when encoding.
	reserved uint64
}

func u8(name string, p *uint8) field    { return field{name: name, ptr: p} }
func u16(name string, p *uint16) field  { return field{name: name, ptr: p} }
func u32(name string, p *uint32) field  { return field{name: name, ptr: p} }
func f32(name string, p *float32) field { return field{name: name, ptr: p} }
func f64(name string, p *float64) field { return field{name: name, ptr: p} }
func str(name string, p *string, w int) field {
	return field{name: name, ptr: p, width: w}
}

func enum8(name string, p *uint8, codes ...uint64) field {
	return field{name: name, ptr: p, codes: codes}
}

func enum32(name string, p *uint32, codes ...uint64) field {
	return field{name: name, ptr: p, codes: codes}
}

func (f field) size() int {
	switch f.ptr.(type) {
	case *uint8, *int8:
		return 1
	case *uint16, *int16:
		return 2
	case *uint32, *int32, *float32:
		return 4
	case *uint64, *float64:
		return 8
	case *string:
		return f.width
	}
	return 0
}

func (f field) uintValue() (uint64, bool) {
	switch p := f.ptr.(type) {
	case *uint8:
		return uint64(*p), true
	case *uint16:
		return uint64(*p), true
	case *uint32:
		return uint64(*p), true
	case *uint64:
		return *p, true
	}
	return 0, false
}

func (f field) setUint(v uint64) {
	switch p := f.ptr.(type) {
	case *uint8:
		*p = uint8(v)
	case *uint16:
		*p = uint16(v)
	case *uint32:
		*p = uint32(v)
	case *uint64:
		*p = v
	}
}

func (f field) isZero() bool {
	switch p := f.ptr.(type) {
	case *string:
		return *p == ""
	case *float32:
		return *p == 0
	case *float64:
		return *p == 0
	case *int8:
		return *p == 0
	case *int16:
		return *p == 0
	case *int32:
		return *p == 0
	}
	v, _ := f.uintValue()
	return v == 0
}

func (f field) zero() {
	switch p := f.ptr.(type) {
	case *string:
		*p = ""
	case *float32:
		*p = 0
	case *float64:
		*p = 0
	case *int8:
		*p = 0
	case *int16:
		*p = 0
	case *int32:
		*p = 0
	default:
		f.setUint(0)
	}
}

func (f field) validCode(v uint64) bool {
	if len(f.codes) == 0 {
		return true
	}
	for _, c := range f.codes {
		if c == v {
			return true
		}
	}
	return false
}

func (f field) check(reg string) error {
	if v, ok := f.uintValue(); ok && !f.validCode(v) {
		return &EncodingError{Register: reg, Field: f.name, Reason: fmt.Sprintf("value %d is not a declared code", v)}
	}
	if v, ok := f.uintValue(); ok && v&f.reserved != 0 {
		return &EncodingError{Register: reg, Field: f.name, Reason: fmt.Sprintf("reserved bits 0x%X are set", v&f.reserved)}
	}
	if p, ok := f.ptr.(*string); ok {
		if len(*p) > f.width {
			return &EncodingError{Register: reg, Field: f.name, Reason: fmt.Sprintf("length %d exceeds %d", len(*p), f.width)}
		}
		if strings.ContainsAny(*p, ",*$\r\n") {
			return &EncodingError{Register: reg, Field: f.name, Reason: "contains a reserved character"}
		}
	}
	return nil
}

func (f field) appendBinary(dst []byte) []byte {
	le := binary.LittleEndian
	switch p := f.ptr.(type) {
	case *uint8:
		return append(dst, *p)
	case *int8:
		return append(dst, byte(*p))
	case *uint16:
		return le.AppendUint16(dst, *p)
	case *int16:
		return le.AppendUint16(dst, uint16(*p))
	case *uint32:
		return le.AppendUint32(dst, *p)
	case *int32:
		return le.AppendUint32(dst, uint32(*p))
	case *uint64:
		return le.AppendUint64(dst, *p)
	case *float32:
		return le.AppendUint32(dst, math.Float32bits(*p))
	case *float64:
		return le.AppendUint64(dst, math.Float64bits(*p))
	case *string:
		b := make([]byte, f.width)
		copy(b, *p)
		return append(dst, b...)
	}
	return dst
}

func (f field) readBinary(b []byte) {
	le := binary.LittleEndian
	switch p := f.ptr.(type) {
	case *uint8:
		*p = b[0]
	case *int8:
		*p = int8(b[0])
	case *uint16:
		*p = le.Uint16(b)
	case *int16:
		*p = int16(le.Uint16(b))
	case *uint32:
		*p = le.Uint32(b)
	case *int32:
		*p = int32(le.Uint32(b))
	case *uint64:
		*p = le.Uint64(b)
	case *float32:
		*p = math.Float32frombits(le.Uint32(b))
	case *float64:
		*p = math.Float64frombits(le.Uint64(b))
	case *string:
		*p = strings.TrimRight(string(b[:f.width]), "\x00")
	}
}

func (f field) formatASCII() string {
	switch p := f.ptr.(type) {
	case *float32:
		return strconv.FormatFloat(float64(*p), 'g', -1, 32)
	case *float64:
		return strconv.FormatFloat(*p, 'g', -1, 64)
	case *string:
		return *p
	case *int8:
		return strconv.FormatInt(int64(*p), 10)
	case *int16:
		return strconv.FormatInt(int64(*p), 10)
	case *int32:
		return strconv.FormatInt(int64(*p), 10)
	}
	v, _ := f.uintValue()
	if f.hex {
		return strconv.FormatUint(v, 16)
	}
	return strconv.FormatUint(v, 10)
}

func (f field) parseASCII(s string) error {
	s = strings.TrimSpace(s)
	switch p := f.ptr.(type) {
	case *float32:
		v, err := strconv.ParseFloat(s, 32)
		if err != nil {
			return err
		}
		*p = float32(v)
		return nil
	case *float64:
		v, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return err
		}
		*p = v
		return nil
	case *string:
		*p = s
		return nil
	case *int8, *int16, *int32:
		v, err := strconv.ParseInt(s, 10, f.size()*8)
		if err != nil {
			return err
		}
		switch p := p.(type) {
		case *int8:
			*p = int8(v)
		case *int16:
			*p = int16(v)
		case *int32:
			*p = int32(v)
		}
		return nil
	}
	base := 10
	if f.hex {
		base = 16
		s = strings.TrimPrefix(strings.TrimPrefix(s, "0x"), "0X")
	}
	v, err := strconv.ParseUint(s, base, f.size()*8)
	if err != nil {
		return err
	}
	f.setUint(v)
	return nil
}

// asciiCodec is implemented by registers whose ASCII form is not a plain
// list of their binary fields.
type asciiCodec interface {
	encodeASCII() (string, error)
	decodeASCII(fields []string) error
}

// BinarySize returns the packed size of the register.
func BinarySize(r Register) int {
	n := 0
	for _, f := range r.fields() {
		n += f.size()
	}
	return n
}

// EncodeBinary packs the register little-endian in declared field order.
func EncodeBinary(r Register) ([]byte, error) {
	fs := r.fields()
	out := make([]byte, 0, BinarySize(r))
	for _, f := range fs {
		if err := f.check(r.Name()); err != nil {
			return nil, err
		}
		out = f.appendBinary(out)
	}
	return out, nil
}

// DecodeBinary unpacks a register of the given id.
func DecodeBinary(id uint8, b []byte) (Register, error) {
	r, err := New(id)
	if err != nil {
		return nil, err
	}
	if err := UnmarshalBinary(r, b); err != nil {
		return nil, err
	}
	return r, nil
}

// UnmarshalBinary fills r from its packed form.
func UnmarshalBinary(r Register, b []byte) error {
	if want := BinarySize(r); len(b) != want {
		return &DecodingError{Register: r.Name(), Reason: fmt.Sprintf("length %d, want %d", len(b), want)}
	}
	off := 0
	for _, f := range r.fields() {
		f.readBinary(b[off:])
		off += f.size()
		if v, ok := f.uintValue(); ok && !f.validCode(v) {
			return &DecodingError{Register: r.Name(), Field: f.name, Reason: fmt.Sprintf("undeclared code %d", v)}
		}
	}
	return nil
}

// EncodeASCII renders the comma separated field list used after
// "$VNWRG,<id>,".
func EncodeASCII(r Register) (string, error) {
	for _, f := range r.fields() {
		if err := f.check(r.Name()); err != nil {
			return "", err
		}
	}
	if c, ok := r.(asciiCodec); ok {
		return c.encodeASCII()
	}
	fs := r.fields()
	end := len(fs)
	for end > 0 && fs[end-1].optional && fs[end-1].isZero() {
		end--
	}
	parts := make([]string, 0, end)
	for _, f := range fs[:end] {
		parts = append(parts, f.formatASCII())
	}
	return strings.Join(parts, ","), nil
}

// DecodeASCII parses the comma separated field list of a register response.
func DecodeASCII(id uint8, fields string) (Register, error) {
	r, err := New(id)
	if err != nil {
		return nil, err
	}
	if err := UnmarshalASCII(r, fields); err != nil {
		return nil, err
	}
	return r, nil
}

// UnmarshalASCII fills r from the field list of a register response.
func UnmarshalASCII(r Register, fields string) error {
	parts := splitFields(fields)
	if c, ok := r.(asciiCodec); ok {
		if err := c.decodeASCII(parts); err != nil {
			return &DecodingError{Register: r.Name(), Reason: err.Error()}
		}
		return nil
	}
	fs := r.fields()
	required := len(fs)
	for required > 0 && fs[required-1].optional {
		required--
	}
	if len(parts) < required || len(parts) > len(fs) {
		return &DecodingError{Register: r.Name(), Reason: fmt.Sprintf("got %d fields, want %d..%d", len(parts), required, len(fs))}
	}
	for i, p := range parts {
		f := fs[i]
		if err := f.parseASCII(p); err != nil {
			return &DecodingError{Register: r.Name(), Field: f.name, Reason: err.Error()}
		}
		if v, ok := f.uintValue(); ok && !f.validCode(v) {
			return &DecodingError{Register: r.Name(), Field: f.name, Reason: fmt.Sprintf("undeclared code %d", v)}
		}
	}
	for _, f := range fs[len(parts):] {
		f.zero()
	}
	return nil
}

// splitFields keeps an empty list as one empty field, the value of an
// unset string register.
func splitFields(s string) []string { return strings.Split(s, ",") }
