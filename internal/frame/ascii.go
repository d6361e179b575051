package frame

import (
	"bytes"
	"fmt"
	"strconv"
	"strings"
)

const (
	asciiSync  = '$'
	binarySync = 0xFA
)

// Checksum selects the checksum appended to outgoing ASCII frames.
type Checksum uint8

const (
	ChecksumCRC16 Checksum = iota
	Checksum8Bit
)

// AppendASCII appends "$<body>*<checksum>\r\n" to dst.
func AppendASCII(dst []byte, body string, cs Checksum) []byte {
	dst = append(dst, asciiSync)
	dst = append(dst, body...)
	if cs == Checksum8Bit {
		dst = append(dst, fmt.Sprintf("*%02X\r\n", Checksum8([]byte(body)))...)
	} else {
		dst = append(dst, fmt.Sprintf("*%04X\r\n", Checksum16([]byte(body)))...)
	}
	return dst
}

// VerifyASCII checks a complete ASCII frame and returns its body, the text
// between '$' and '*'. The checksum kind follows from its digit count.
func VerifyASCII(raw []byte) (string, error) {
	raw = bytes.TrimRight(raw, "\r\n")
	if len(raw) < 2 || raw[0] != asciiSync {
		return "", fmt.Errorf("ascii frame: missing '$'")
	}
	star := bytes.LastIndexByte(raw, '*')
	if star == -1 {
		return "", fmt.Errorf("ascii frame: missing checksum")
	}
	body := raw[1:star]
	digits := string(raw[star+1:])
	want, err := strconv.ParseUint(digits, 16, 16)
	if err != nil {
		return "", fmt.Errorf("ascii frame: bad checksum %q", digits)
	}
	switch len(digits) {
	case 2:
		if got := Checksum8(body); uint64(got) != want {
			return "", fmt.Errorf("ascii frame: checksum mismatch got=%02X want=%02X", got, want)
		}
	case 4:
		if got := Checksum16(body); uint64(got) != want {
			return "", fmt.Errorf("ascii frame: crc mismatch got=%04X want=%04X", got, want)
		}
	default:
		return "", fmt.Errorf("ascii frame: checksum has %d digits", len(digits))
	}
	return string(body), nil
}

// Tag returns the leading field of an ASCII body, e.g. "VNYPR".
func Tag(body string) string {
	if i := strings.IndexByte(body, ','); i >= 0 {
		return body[:i]
	}
	return body
}
