package frame

import (
	"encoding/binary"

	"vnsensor/internal/binout"
)

// AppendBinary appends a complete binary frame: sync byte, header, payload
// and big-endian CRC16 over everything after the sync byte.
func AppendBinary(dst []byte, h binout.Header, payload []byte) []byte {
	start := len(dst)
	dst = append(dst, binarySync)
	dst = h.AppendWire(dst)
	dst = append(dst, payload...)
	return binary.BigEndian.AppendUint16(dst, Checksum16(dst[start+1:]))
}
