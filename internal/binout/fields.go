package binout

import (
	"encoding/binary"
	"fmt"
	"strings"
)

// Kind is the wire type of one binary output field.
type Kind uint8

const (
	KindU8 Kind = iota + 1
	KindU16
	KindU32
	KindU64
	KindF32
	KindF64
	// KindUTC is year(int8) month day hour min sec (uint8) ms(uint16).
	KindUTC
	// KindSatInfo is numSats, resv then numSats 8-byte entries.
	KindSatInfo
	// KindRawMeas is tow(f64) week(u16) numMeas resv then numMeas 28-byte entries.
	KindRawMeas
	// KindBytes is an opaque fixed-width field.
	KindBytes
)

func (k Kind) width() int {
	switch k {
	case KindU8, KindBytes:
		return 1
	case KindU16:
		return 2
	case KindU32, KindF32:
		return 4
	case KindU64, KindF64, KindUTC:
		return 8
	}
	return 0
}

const (
	SatInfoEntrySize = 8
	RawMeasEntrySize = 28

	satInfoHeadSize = 2
	rawMeasHeadSize = 12
)

type fieldSpec struct {
	name  string
	kind  Kind
	count int
}

var gnssFields = []fieldSpec{
	{"timeUtc", KindUTC, 1},
	{"tow", KindU64, 1},
	{"week", KindU16, 1},
	{"numSats", KindU8, 1},
	{"fix", KindU8, 1},
	{"posLla", KindF64, 3},
	{"posEcef", KindF64, 3},
	{"velNed", KindF32, 3},
	{"velEcef", KindF32, 3},
	{"posU", KindF32, 3},
	{"velU", KindF32, 1},
	{"timeU", KindF32, 1},
	{"timeInfo", KindU16, 1},
	{"dop", KindF32, 7},
	{"satInfo", KindSatInfo, 1},
	{},
	{"rawMeas", KindRawMeas, 1},
	{"status", KindU16, 1},
	{"altMSL", KindF64, 1},
}

// fieldTable is indexed by group then bit. A zero kind marks a bit with no
// field. GNSS2 and GNSS3 share the GNSS layout.
var fieldTable = [6][]fieldSpec{
	GroupCommon: {
		{"timeStartup", KindU64, 1},
		{"timeGps", KindU64, 1},
		{"timeSyncIn", KindU64, 1},
		{"ypr", KindF32, 3},
		{"quaternion", KindF32, 4},
		{"angularRate", KindF32, 3},
		{"posLla", KindF64, 3},
		{"velNed", KindF32, 3},
		{"accel", KindF32, 3},
		{"imu", KindF32, 6},
		{"magPres", KindF32, 5},
		{"deltas", KindF32, 7},
		{"insStatus", KindU16, 1},
		{"syncInCnt", KindU32, 1},
		{"timeGpsPps", KindU64, 1},
	},
	GroupTime: {
		{"timeStartup", KindU64, 1},
		{"timeGps", KindU64, 1},
		{"gpsTow", KindU64, 1},
		{"gpsWeek", KindU16, 1},
		{"timeSyncIn", KindU64, 1},
		{"timeGpsPps", KindU64, 1},
		{"timeUtc", KindUTC, 1},
		{"syncInCnt", KindU32, 1},
		{"syncOutCnt", KindU32, 1},
		{"timeStatus", KindU8, 1},
	},
	GroupIMU: {
		{"imuStatus", KindU16, 1},
		{"uncompMag", KindF32, 3},
		{"uncompAccel", KindF32, 3},
		{"uncompGyro", KindF32, 3},
		{"temperature", KindF32, 1},
		{"pressure", KindF32, 1},
		{"deltaTheta", KindF32, 4},
		{"deltaVel", KindF32, 3},
		{"mag", KindF32, 3},
		{"accel", KindF32, 3},
		{"angularRate", KindF32, 3},
		{"sensSat", KindU16, 1},
	},
	GroupGNSS: gnssFields,
	GroupAttitude: {
		{"ahrsStatus", KindU16, 1},
		{"ypr", KindF32, 3},
		{"quaternion", KindF32, 4},
		{"dcm", KindF32, 9},
		{"magNed", KindF32, 3},
		{"accelNed", KindF32, 3},
		{"linBodyAcc", KindF32, 3},
		{"linAccelNed", KindF32, 3},
		{"yprU", KindF32, 3},
		{"resv9", KindBytes, 12},
		{},
		{},
		{"heave", KindF32, 3},
		{"attU", KindF32, 1},
	},
	GroupINS: {
		{"insStatus", KindU16, 1},
		{"posLla", KindF64, 3},
		{"posEcef", KindF64, 3},
		{"velBody", KindF32, 3},
		{"velNed", KindF32, 3},
		{"velEcef", KindF32, 3},
		{"magEcef", KindF32, 3},
		{"accelEcef", KindF32, 3},
		{"linAccelEcef", KindF32, 3},
		{"posU", KindF32, 1},
		{"velU", KindF32, 1},
	},
}

func tableIndex(g Group) Group {
	if g == GroupGNSS2 || g == GroupGNSS3 {
		return GroupGNSS
	}
	return g
}

// Field addresses one bit of one group.
type Field struct {
	Group Group
	Bit   uint8
}

func (f Field) spec() (fieldSpec, bool) {
	if f.Group >= NumGroups {
		return fieldSpec{}, false
	}
	tbl := fieldTable[tableIndex(f.Group)]
	if int(f.Bit) >= len(tbl) || tbl[f.Bit].kind == 0 {
		return fieldSpec{}, false
	}
	return tbl[f.Bit], true
}

// Known reports whether the field has a defined wire layout.
func (f Field) Known() bool {
	_, ok := f.spec()
	return ok
}

// Name is the field's name within its group, e.g. "ypr".
func (f Field) Name() string {
	if s, ok := f.spec(); ok {
		return s.name
	}
	return fmt.Sprintf("bit%d", f.Bit)
}

// String is the qualified name, e.g. "attitude.ypr".
func (f Field) String() string { return f.Group.String() + "." + f.Name() }

func (f Field) Kind() Kind {
	s, _ := f.spec()
	return s.kind
}

// Count is the number of scalar elements of the field.
func (f Field) Count() int {
	s, _ := f.spec()
	return s.count
}

// FixedSize returns the byte size of the field, or false for variable
// length fields.
func (f Field) FixedSize() (int, bool) {
	s, ok := f.spec()
	if !ok || s.kind == KindSatInfo || s.kind == KindRawMeas {
		return 0, false
	}
	return s.kind.width() * s.count, true
}

// Fields returns the selected fields in payload order.
func (h Header) Fields() []Field {
	var out []Field
	for _, g := range Groups {
		m := h.masks[g]
		for bit := 0; bit < 32 && m != 0; bit++ {
			if bit == 15 || m&(1<<bit) == 0 {
				continue
			}
			out = append(out, Field{Group: g, Bit: uint8(bit)})
		}
	}
	return out
}

// Validate reports an error if the header selects a bit with no known field.
func (h Header) Validate() error {
	if h.Empty() {
		return fmt.Errorf("binary header is empty")
	}
	for _, f := range h.Fields() {
		if !f.Known() {
			return fmt.Errorf("binary header selects unknown field %s", f)
		}
	}
	return nil
}

// FixedPayloadLen returns the payload size when no variable length field is
// selected.
func (h Header) FixedPayloadLen() (int, bool) {
	n := 0
	for _, f := range h.Fields() {
		sz, ok := f.FixedSize()
		if !ok {
			return 0, false
		}
		n += sz
	}
	return n, true
}

// PayloadLen computes the payload length of a frame with this header from
// the payload bytes received so far. When prefix is too short to resolve a
// variable length field, it returns the minimum number of bytes needed to
// make progress and false.
func (h Header) PayloadLen(prefix []byte) (int, bool) {
	off := 0
	for _, f := range h.Fields() {
		if sz, ok := f.FixedSize(); ok {
			off += sz
			continue
		}
		switch f.Kind() {
		case KindSatInfo:
			if len(prefix) < off+1 {
				return off + 1, false
			}
			off += satInfoHeadSize + int(prefix[off])*SatInfoEntrySize
		case KindRawMeas:
			if len(prefix) < off+11 {
				return off + 11, false
			}
			off += rawMeasHeadSize + int(prefix[off+10])*RawMeasEntrySize
		default:
			return off, false
		}
	}
	return off, true
}

// VariableSize returns the size of a variable length field that starts at
// b[0]. It is used by payload walkers once PayloadLen has succeeded.
func VariableSize(k Kind, b []byte) int {
	switch k {
	case KindSatInfo:
		if len(b) < 1 {
			return 0
		}
		return satInfoHeadSize + int(b[0])*SatInfoEntrySize
	case KindRawMeas:
		if len(b) < 11 {
			return 0
		}
		return rawMeasHeadSize + int(b[10])*RawMeasEntrySize
	}
	return 0
}

// typeWord reads a little-endian u16.
func typeWord(b []byte) uint32 { return uint32(binary.LittleEndian.Uint16(b)) }

// FieldOf returns the field selected by a single-bit mask of group g.
func FieldOf[B ~uint32](g Group, bit B) Field {
	for i := 0; i < 32; i++ {
		if uint32(bit) == 1<<i {
			return Field{Group: g, Bit: uint8(i)}
		}
	}
	return Field{Group: g, Bit: 31}
}

// ParseField resolves a qualified name such as "attitude.ypr".
func ParseField(name string) (Field, error) {
	gname, fname, ok := strings.Cut(strings.TrimSpace(name), ".")
	if !ok {
		return Field{}, fmt.Errorf("field %q is not group.name", name)
	}
	g, err := ParseGroup(gname)
	if err != nil {
		return Field{}, err
	}
	m, err := ParseMask(g, []string{fname})
	if err != nil {
		return Field{}, err
	}
	return FieldOf(g, m), nil
}
