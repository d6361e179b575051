package binout

import (
	"encoding/binary"
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrIncomplete means more bytes are needed to parse the header.
	ErrIncomplete = errors.New("binary header incomplete")
	// ErrEmptyHeader means the group byte selects no group.
	ErrEmptyHeader = errors.New("binary header selects no group")
	// ErrUnknownGroup means an extension group byte selects an unsupported group.
	ErrUnknownGroup = errors.New("binary header selects unknown group")
)

// GroupMask is one (group, mask) entry of a header.
type GroupMask struct {
	Group Group
	Mask  uint32
}

// Header is the ordered set of group masks that describes a binary frame.
// The zero value is the empty header. Headers are values: With returns a
// copy, and two headers are equal iff == holds.
type Header struct {
	masks [NumGroups]uint32
}

// NewHeader builds a header from entries; order of the arguments does not
// matter, the header is always canonical.
func NewHeader(entries ...GroupMask) Header {
	var h Header
	for _, e := range entries {
		h = h.With(e.Group, e.Mask)
	}
	return h
}

// With returns a copy of h with group g set to mask. Bit 15 of mask is
// ignored; bits above 15 set the extension flag.
func (h Header) With(g Group, mask uint32) Header {
	if g >= NumGroups {
		return h
	}
	mask &^= extBit
	if mask>>16 != 0 {
		mask |= extBit
	}
	h.masks[g] = mask
	return h
}

// Mask returns the mask of g without the extension flag.
func (h Header) Mask(g Group) uint32 {
	if g >= NumGroups {
		return 0
	}
	return h.masks[g] &^ extBit
}

func (h Header) Empty() bool {
	return h == Header{}
}

// Groups returns the non-empty entries in canonical order.
func (h Header) Groups() []GroupMask {
	var out []GroupMask
	for _, g := range Groups {
		if h.masks[g] != 0 {
			out = append(out, GroupMask{Group: g, Mask: h.masks[g]})
		}
	}
	return out
}

// AnyMatch reports whether any field selected by filter is also selected by h.
func (h Header) AnyMatch(filter Header) bool {
	for g := range h.masks {
		if h.masks[g]&filter.masks[g]&^extBit != 0 {
			return true
		}
	}
	return false
}

// AllMatch reports whether every field selected by filter is also selected by h.
func (h Header) AllMatch(filter Header) bool {
	for g := range h.masks {
		if filter.masks[g]&^h.masks[g]&^extBit != 0 {
			return false
		}
	}
	return true
}

func (h Header) String() string {
	parts := make([]string, 0, NumGroups)
	for _, e := range h.Groups() {
		parts = append(parts, fmt.Sprintf("%s=0x%X", e.Group, e.Mask&^extBit))
	}
	if len(parts) == 0 {
		return "empty"
	}
	return strings.Join(parts, " ")
}

func (h Header) groupBytes() (byte, byte) {
	var gb, ext byte
	for g := GroupCommon; g <= GroupGNSS2; g++ {
		if h.masks[g] != 0 {
			gb |= 1 << g
		}
	}
	if h.masks[GroupGNSS3] != 0 {
		gb |= 0x80
		ext |= 0x01
	}
	return gb, ext
}

// TypeWords returns the u16 type words in wire order.
func (h Header) TypeWords() []uint16 {
	var out []uint16
	for _, e := range h.Groups() {
		out = append(out, uint16(e.Mask))
		if e.Mask&extBit != 0 {
			out = append(out, uint16(e.Mask>>16))
		}
	}
	return out
}

// GroupBytes returns the group byte followed by the extension byte when one
// is needed.
func (h Header) GroupBytes() []byte {
	gb, ext := h.groupBytes()
	if gb&0x80 != 0 {
		return []byte{gb, ext}
	}
	return []byte{gb}
}

// AppendWire appends the header as it appears after the sync byte.
func (h Header) AppendWire(dst []byte) []byte {
	dst = append(dst, h.GroupBytes()...)
	for _, w := range h.TypeWords() {
		dst = binary.LittleEndian.AppendUint16(dst, w)
	}
	return dst
}

// ParseHeader parses a header from the bytes following the sync byte and
// returns it with the number of bytes consumed.
func ParseHeader(b []byte) (Header, int, error) {
	var h Header
	if len(b) < 1 {
		return h, 0, ErrIncomplete
	}
	gb := b[0]
	n := 1
	var ext byte
	if gb&0x80 != 0 {
		if len(b) < 2 {
			return h, 0, ErrIncomplete
		}
		ext = b[1]
		n = 2
		if ext&^0x01 != 0 {
			return h, 0, ErrUnknownGroup
		}
	}
	if gb&0x7F == 0 && ext == 0 {
		return h, 0, ErrEmptyHeader
	}
	present := func(g Group) bool {
		if g == GroupGNSS3 {
			return ext&0x01 != 0
		}
		return gb&(1<<g) != 0
	}
	for _, g := range Groups {
		if !present(g) {
			continue
		}
		if len(b) < n+2 {
			return Header{}, 0, ErrIncomplete
		}
		m := typeWord(b[n:])
		n += 2
		if m&extBit != 0 {
			if len(b) < n+2 {
				return Header{}, 0, ErrIncomplete
			}
			m |= typeWord(b[n:]) << 16
			n += 2
		}
		if m == 0 {
			return Header{}, 0, ErrEmptyHeader
		}
		h.masks[g] = m
	}
	return h, n, nil
}
