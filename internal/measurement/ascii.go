package measurement

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"vnsensor/internal/binout"
)

type asciiPart struct {
	field binout.Field
	count int
}

// asciiLayouts maps async ASCII tags to the fields they carry, in order.
var asciiLayouts = map[string][]asciiPart{
	"VNYPR": {{fAttYpr, 3}},
	"VNQTN": {{fAttQuat, 4}},
	"VNQMR": {{fAttQuat, 4}, {fImuMag, 3}, {fImuAccel, 3}, {fImuRate, 3}},
	"VNMAG": {{fImuMag, 3}},
	"VNACC": {{fImuAccel, 3}},
	"VNGYR": {{fImuRate, 3}},
	"VNMAR": {{fImuMag, 3}, {fImuAccel, 3}, {fImuRate, 3}},
	"VNYMR": {{fAttYpr, 3}, {fImuMag, 3}, {fImuAccel, 3}, {fImuRate, 3}},
	"VNYBA": {{fAttYpr, 3}, {fAttLinBody, 3}, {fImuRate, 3}},
	"VNYIA": {{fAttYpr, 3}, {fAttLinNed, 3}, {fImuRate, 3}},
	"VNIMU": {{fImuUncompMag, 3}, {fImuUncompAccel, 3}, {fImuUncompGyro, 3}, {fImuTemp, 1}, {fImuPres, 1}},
	"VNDTV": {{fImuDeltaTheta, 4}, {fImuDeltaVel, 3}},
	"VNHVE": {{fAttHeave, 3}},
}

// IsASCIIMeasurement reports whether tag is an async output that decodes
// into a measurement.
func IsASCIIMeasurement(tag string) bool {
	_, ok := asciiLayouts[tag]
	return ok
}

// ASCIITags lists the decodable async tags.
func ASCIITags() []string {
	out := make([]string, 0, len(asciiLayouts))
	for t := range asciiLayouts {
		out = append(out, t)
	}
	return out
}

// DecodeASCII decodes a verified async message body such as
// "VNYPR,+010.071,-000.278,-001.026". Fields appended by the device after
// the measurement (counters, status) are ignored. The returned bool is
// false when the tag is not a measurement.
func DecodeASCII(body string, received time.Time) (CompositeData, bool, error) {
	parts := strings.Split(body, ",")
	layout, ok := asciiLayouts[parts[0]]
	if !ok {
		return CompositeData{}, false, nil
	}
	c := newComposite(received)
	c.Tag = parts[0]
	vals := parts[1:]
	for _, p := range layout {
		if len(vals) < p.count {
			return CompositeData{}, true, fmt.Errorf("decode %s: %s needs %d values, %d left", c.Tag, p.field, p.count, len(vals))
		}
		xs := make([]float64, p.count)
		for i := range xs {
			x, err := strconv.ParseFloat(strings.TrimSpace(vals[i]), 64)
			if err != nil {
				return CompositeData{}, true, fmt.Errorf("decode %s: %s: %w", c.Tag, p.field, err)
			}
			xs[i] = x
		}
		c.set(p.field, Value{Kind: p.field.Kind(), Floats: xs})
		vals = vals[p.count:]
	}
	return c, true, nil
}

// AppendASCII renders c as the body of the async message tag. Values use
// fixed point with three decimals.
func AppendASCII(dst []byte, tag string, c CompositeData) ([]byte, error) {
	layout, ok := asciiLayouts[tag]
	if !ok {
		return dst, fmt.Errorf("encode ascii: %q is not a measurement tag", tag)
	}
	dst = append(dst, tag...)
	for _, p := range layout {
		v, ok := c.Get(p.field)
		if !ok || len(v.Floats) != p.count {
			return dst, fmt.Errorf("encode ascii: %s missing %s", tag, p.field)
		}
		for _, x := range v.Floats {
			dst = append(dst, ',')
			if x >= 0 {
				dst = append(dst, '+')
			}
			dst = strconv.AppendFloat(dst, x, 'f', 3, 64)
		}
	}
	return dst, nil
}
