package frame

// Checksum16 is the CRC16 (polynomial 0x1021, zero seed) used by binary
// frames and by ASCII frames with a four digit checksum. Running it over
// a frame body followed by its big-endian CRC yields zero.
func Checksum16(data []byte) uint16 {
	var crc uint16
	for _, b := range data {
		crc = (crc << 8) ^ crc16Table[byte(crc>>8)^b]
	}
	return crc
}

var crc16Table = func() [256]uint16 {
	var table [256]uint16
	for i := 0; i < 256; i++ {
		crc := uint16(i) << 8
		for bit := 0; bit < 8; bit++ {
			if (crc & 0x8000) != 0 {
				crc = (crc << 1) ^ 0x1021
			} else {
				crc <<= 1
			}
		}
		table[i] = crc
	}
	return table
}()

// Checksum8 is the XOR of every byte, used by ASCII frames with a two digit
// checksum.
func Checksum8(data []byte) byte {
	var ck byte
	for _, b := range data {
		ck ^= b
	}
	return ck
}
