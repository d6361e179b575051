package measurement

import (
	"time"

	"vnsensor/internal/frame"
)

// FromFrame decodes a verified frame. ok is false for ASCII frames that
// are not async measurements, such as command responses.
func FromFrame(f frame.Frame, received time.Time) (CompositeData, bool, error) {
	switch f.Kind {
	case frame.KindASCII:
		return DecodeASCII(f.Body, received)
	case frame.KindBinary:
		c, err := DecodeBinary(f.Header, f.Payload, received)
		return c, true, err
	}
	return CompositeData{}, false, nil
}
