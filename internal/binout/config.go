package binout

// AsyncMode selects which serial ports carry a binary output.
type AsyncMode uint16

const (
	AsyncSerial1 AsyncMode = 1 << iota
	AsyncSerial2
	AsyncSPI
)

// Config is the value of one binary output register.
type Config struct {
	AsyncMode   AsyncMode
	RateDivisor uint16

	Common   CommonBits
	Time     TimeBits
	IMU      ImuBits
	GNSS     GnssBits
	Attitude AttitudeBits
	INS      InsBits
	GNSS2    GnssBits
	GNSS3    GnssBits
}

// Mask returns the mask of group g.
func (c Config) Mask(g Group) uint32 {
	switch g {
	case GroupCommon:
		return uint32(c.Common)
	case GroupTime:
		return uint32(c.Time)
	case GroupIMU:
		return uint32(c.IMU)
	case GroupGNSS:
		return uint32(c.GNSS)
	case GroupAttitude:
		return uint32(c.Attitude)
	case GroupINS:
		return uint32(c.INS)
	case GroupGNSS2:
		return uint32(c.GNSS2)
	case GroupGNSS3:
		return uint32(c.GNSS3)
	}
	return 0
}

// SetMask sets the mask of group g. The extension flag is never stored.
func (c *Config) SetMask(g Group, m uint32) {
	m &^= extBit
	switch g {
	case GroupCommon:
		c.Common = CommonBits(m)
	case GroupTime:
		c.Time = TimeBits(m)
	case GroupIMU:
		c.IMU = ImuBits(m)
	case GroupGNSS:
		c.GNSS = GnssBits(m)
	case GroupAttitude:
		c.Attitude = AttitudeBits(m)
	case GroupINS:
		c.INS = InsBits(m)
	case GroupGNSS2:
		c.GNSS2 = GnssBits(m)
	case GroupGNSS3:
		c.GNSS3 = GnssBits(m)
	}
}

// Header derives the binary header for this configuration. A configuration
// with every mask zero yields the empty header.
func (c Config) Header() Header {
	var h Header
	for _, g := range Groups {
		if m := c.Mask(g); m != 0 {
			h = h.With(g, m)
		}
	}
	return h
}

// SetHeader replaces every group mask with the masks of h.
func (c *Config) SetHeader(h Header) {
	for _, g := range Groups {
		c.SetMask(g, h.Mask(g))
	}
}
