// Package measurement decodes telemetry frames into CompositeData.
package measurement

import (
	"encoding/json"
	"strconv"
	"time"

	"vnsensor/internal/binout"
)

type Vec3 [3]float64

// Quat is x, y, z, scalar.
type Quat [4]float64

// TimeUTC is the device UTC time. Year counts from 2000.
type TimeUTC struct {
	Year   int8
	Month  uint8
	Day    uint8
	Hour   uint8
	Minute uint8
	Second uint8
	Millis uint16
}

func (t TimeUTC) Time() time.Time {
	return time.Date(2000+int(t.Year), time.Month(t.Month), int(t.Day),
		int(t.Hour), int(t.Minute), int(t.Second), int(t.Millis)*int(time.Millisecond), time.UTC)
}

type SatInfo struct {
	Sys   int8
	SvID  uint8
	Flags uint8
	Cno   uint8
	Qi    uint8
	El    int8
	Az    int16
}

type RawSat struct {
	Sys     uint8
	SvID    uint8
	Band    uint8
	Chan    uint8
	FreqNum int8
	Cno     uint8
	Flags   uint16
	Pr      float64
	Cp      float64
	Dp      float32
}

type RawMeas struct {
	Tow  float64
	Week uint16
	Meas []RawSat
}

// InsStatus is the INS filter status word.
type InsStatus uint16

// Mode is 0 not tracking, 1 aligning, 2 tracking, 3 loss of GNSS.
func (s InsStatus) Mode() uint8      { return uint8(s & 0x3) }
func (s InsStatus) GnssFix() bool    { return s&(1<<2) != 0 }
func (s InsStatus) ImuErr() bool     { return s&(1<<4) != 0 }
func (s InsStatus) MagPresErr() bool { return s&(1<<5) != 0 }
func (s InsStatus) GnssErr() bool    { return s&(1<<6) != 0 }
func (s InsStatus) GnssCompassFix() uint8 {
	return uint8(s>>8) & 0x3
}

// TimeStatus reports which parts of the GNSS time are valid.
type TimeStatus uint8

func (s TimeStatus) TowValid() bool  { return s&0x1 != 0 }
func (s TimeStatus) DateValid() bool { return s&0x2 != 0 }
func (s TimeStatus) UtcValid() bool  { return s&0x4 != 0 }

// Value is one decoded field. Which member is set follows Kind: Uint for
// integer kinds, Floats for float kinds, UTC, Sats, Raw or Bytes otherwise.
type Value struct {
	Kind   binout.Kind
	Uint   uint64
	Floats []float64
	UTC    TimeUTC
	Sats   []SatInfo
	Raw    *RawMeas
	Bytes  []byte
}

// Strings renders the value as CSV cells.
func (v Value) Strings() []string {
	switch v.Kind {
	case binout.KindF32, binout.KindF64:
		out := make([]string, len(v.Floats))
		bits := 64
		if v.Kind == binout.KindF32 {
			bits = 32
		}
		for i, f := range v.Floats {
			out[i] = strconv.FormatFloat(f, 'g', -1, bits)
		}
		return out
	case binout.KindUTC:
		return []string{v.UTC.Time().Format("2006-01-02T15:04:05.000Z")}
	case binout.KindSatInfo:
		return []string{strconv.Itoa(len(v.Sats))}
	case binout.KindRawMeas:
		if v.Raw == nil {
			return []string{"0"}
		}
		return []string{strconv.Itoa(len(v.Raw.Meas))}
	case binout.KindBytes:
		return []string{strconv.Quote(string(v.Bytes))}
	}
	return []string{strconv.FormatUint(v.Uint, 10)}
}

func (v Value) jsonValue() any {
	switch v.Kind {
	case binout.KindF32, binout.KindF64:
		if len(v.Floats) == 1 {
			return v.Floats[0]
		}
		return v.Floats
	case binout.KindUTC:
		return v.UTC.Time()
	case binout.KindSatInfo:
		return v.Sats
	case binout.KindRawMeas:
		return v.Raw
	case binout.KindBytes:
		return v.Bytes
	}
	return v.Uint
}

// CompositeData is one decoded telemetry frame. Only the fields selected by
// the frame are present. It is not modified after decoding.
type CompositeData struct {
	Received time.Time
	// Tag is the ASCII message tag, e.g. "VNYMR". Empty for binary frames.
	Tag string
	// Header is the binary header of the frame. Empty for ASCII frames.
	Header binout.Header

	fields []binout.Field
	values map[binout.Field]Value
}

func newComposite(received time.Time) CompositeData {
	return CompositeData{Received: received, values: make(map[binout.Field]Value)}
}

func (c *CompositeData) set(f binout.Field, v Value) {
	if _, ok := c.values[f]; !ok {
		c.fields = append(c.fields, f)
	}
	c.values[f] = v
}

// IsBinary reports whether the data came from a binary frame.
func (c CompositeData) IsBinary() bool { return c.Tag == "" }

// Fields lists present fields in frame order.
func (c CompositeData) Fields() []binout.Field {
	out := make([]binout.Field, len(c.fields))
	copy(out, c.fields)
	return out
}

func (c CompositeData) Len() int { return len(c.fields) }

func (c CompositeData) Get(f binout.Field) (Value, bool) {
	v, ok := c.values[f]
	return v, ok
}

func (c CompositeData) first(fs ...binout.Field) (Value, bool) {
	for _, f := range fs {
		if v, ok := c.values[f]; ok {
			return v, true
		}
	}
	return Value{}, false
}

func (c CompositeData) vec3(fs ...binout.Field) (Vec3, bool) {
	v, ok := c.first(fs...)
	if !ok || len(v.Floats) < 3 {
		return Vec3{}, false
	}
	return Vec3{v.Floats[0], v.Floats[1], v.Floats[2]}, true
}

func (c CompositeData) scalar(fs ...binout.Field) (float64, bool) {
	v, ok := c.first(fs...)
	if !ok || len(v.Floats) < 1 {
		return 0, false
	}
	return v.Floats[0], true
}

func (c CompositeData) integer(fs ...binout.Field) (uint64, bool) {
	v, ok := c.first(fs...)
	if !ok || len(v.Floats) != 0 {
		return 0, false
	}
	return v.Uint, true
}

var (
	fAttYpr         = binout.FieldOf(binout.GroupAttitude, binout.AttitudeYpr)
	fComYpr         = binout.FieldOf(binout.GroupCommon, binout.CommonYpr)
	fAttQuat        = binout.FieldOf(binout.GroupAttitude, binout.AttitudeQuaternion)
	fComQuat        = binout.FieldOf(binout.GroupCommon, binout.CommonQuaternion)
	fImuAccel       = binout.FieldOf(binout.GroupIMU, binout.ImuAccel)
	fComAccel       = binout.FieldOf(binout.GroupCommon, binout.CommonAccel)
	fImuRate        = binout.FieldOf(binout.GroupIMU, binout.ImuAngularRate)
	fComRate        = binout.FieldOf(binout.GroupCommon, binout.CommonAngularRate)
	fImuMag         = binout.FieldOf(binout.GroupIMU, binout.ImuMag)
	fImuTemp        = binout.FieldOf(binout.GroupIMU, binout.ImuTemperature)
	fImuPres        = binout.FieldOf(binout.GroupIMU, binout.ImuPressure)
	fImuUncompMag   = binout.FieldOf(binout.GroupIMU, binout.ImuUncompMag)
	fImuUncompAccel = binout.FieldOf(binout.GroupIMU, binout.ImuUncompAccel)
	fImuUncompGyro  = binout.FieldOf(binout.GroupIMU, binout.ImuUncompGyro)
	fImuDeltaTheta  = binout.FieldOf(binout.GroupIMU, binout.ImuDeltaTheta)
	fImuDeltaVel    = binout.FieldOf(binout.GroupIMU, binout.ImuDeltaVel)
	fAttLinBody     = binout.FieldOf(binout.GroupAttitude, binout.AttitudeLinBodyAcc)
	fAttLinNed      = binout.FieldOf(binout.GroupAttitude, binout.AttitudeLinAccelNed)
	fAttHeave       = binout.FieldOf(binout.GroupAttitude, binout.AttitudeHeave)
	fTimeStartup    = binout.FieldOf(binout.GroupTime, binout.TimeTimeStartup)
	fComStartup     = binout.FieldOf(binout.GroupCommon, binout.CommonTimeStartup)
	fTimeUtc        = binout.FieldOf(binout.GroupTime, binout.TimeTimeUtc)
	fGnssUtc        = binout.FieldOf(binout.GroupGNSS, binout.GnssTimeUtc)
	fTimeStatus     = binout.FieldOf(binout.GroupTime, binout.TimeTimeStatus)
	fInsStatus      = binout.FieldOf(binout.GroupINS, binout.InsInsStatus)
	fComInsStatus   = binout.FieldOf(binout.GroupCommon, binout.CommonInsStatus)
	fInsPosLla      = binout.FieldOf(binout.GroupINS, binout.InsPosLla)
	fComPosLla      = binout.FieldOf(binout.GroupCommon, binout.CommonPosLla)
	fInsVelNed      = binout.FieldOf(binout.GroupINS, binout.InsVelNed)
	fComVelNed      = binout.FieldOf(binout.GroupCommon, binout.CommonVelNed)
	fTimeSyncInCnt  = binout.FieldOf(binout.GroupTime, binout.TimeSyncInCnt)
	fComSyncInCnt   = binout.FieldOf(binout.GroupCommon, binout.CommonSyncInCnt)
)

// YawPitchRoll in degrees.
func (c CompositeData) YawPitchRoll() (Vec3, bool) { return c.vec3(fAttYpr, fComYpr) }

func (c CompositeData) Quaternion() (Quat, bool) {
	v, ok := c.first(fAttQuat, fComQuat)
	if !ok || len(v.Floats) < 4 {
		return Quat{}, false
	}
	return Quat{v.Floats[0], v.Floats[1], v.Floats[2], v.Floats[3]}, true
}

// Accel is compensated acceleration in m/s^2.
func (c CompositeData) Accel() (Vec3, bool) { return c.vec3(fImuAccel, fComAccel) }

// AngularRate is compensated angular rate in rad/s.
func (c CompositeData) AngularRate() (Vec3, bool) { return c.vec3(fImuRate, fComRate) }

// Mag is compensated magnetic field in gauss.
func (c CompositeData) Mag() (Vec3, bool) { return c.vec3(fImuMag) }

func (c CompositeData) UncompAccel() (Vec3, bool) { return c.vec3(fImuUncompAccel) }
func (c CompositeData) UncompGyro() (Vec3, bool)  { return c.vec3(fImuUncompGyro) }
func (c CompositeData) UncompMag() (Vec3, bool)   { return c.vec3(fImuUncompMag) }
func (c CompositeData) LinBodyAcc() (Vec3, bool)  { return c.vec3(fAttLinBody) }
func (c CompositeData) LinAccelNed() (Vec3, bool) { return c.vec3(fAttLinNed) }
func (c CompositeData) Heave() (Vec3, bool)       { return c.vec3(fAttHeave) }
func (c CompositeData) DeltaVel() (Vec3, bool)    { return c.vec3(fImuDeltaVel) }

// DeltaTheta returns the integration interval in seconds and the delta
// angles in degrees.
func (c CompositeData) DeltaTheta() (float64, Vec3, bool) {
	v, ok := c.first(fImuDeltaTheta)
	if !ok || len(v.Floats) < 4 {
		return 0, Vec3{}, false
	}
	return v.Floats[0], Vec3{v.Floats[1], v.Floats[2], v.Floats[3]}, true
}

// Temperature in degrees Celsius.
func (c CompositeData) Temperature() (float64, bool) { return c.scalar(fImuTemp) }

// Pressure in kPa.
func (c CompositeData) Pressure() (float64, bool) { return c.scalar(fImuPres) }

// TimeStartup is the device time since startup.
func (c CompositeData) TimeStartup() (time.Duration, bool) {
	ns, ok := c.integer(fTimeStartup, fComStartup)
	return time.Duration(ns), ok
}

func (c CompositeData) TimeUTC() (TimeUTC, bool) {
	v, ok := c.first(fTimeUtc, fGnssUtc)
	if !ok || v.Kind != binout.KindUTC {
		return TimeUTC{}, false
	}
	return v.UTC, true
}

func (c CompositeData) TimeStatus() (TimeStatus, bool) {
	v, ok := c.integer(fTimeStatus)
	return TimeStatus(v), ok
}

func (c CompositeData) InsStatus() (InsStatus, bool) {
	v, ok := c.integer(fInsStatus, fComInsStatus)
	return InsStatus(v), ok
}

// PosLla is latitude, longitude (degrees) and altitude (m).
func (c CompositeData) PosLla() (Vec3, bool) { return c.vec3(fInsPosLla, fComPosLla) }

func (c CompositeData) VelNed() (Vec3, bool) { return c.vec3(fInsVelNed, fComVelNed) }

func (c CompositeData) SyncInCount() (uint32, bool) {
	v, ok := c.integer(fTimeSyncInCnt, fComSyncInCnt)
	return uint32(v), ok
}

// MarshalJSON renders the measurement with qualified field names.
func (c CompositeData) MarshalJSON() ([]byte, error) {
	fields := make(map[string]any, len(c.fields))
	for _, f := range c.fields {
		fields[f.String()] = c.values[f].jsonValue()
	}
	out := struct {
		Received time.Time      `json:"received"`
		Tag      string         `json:"tag,omitempty"`
		Header   string         `json:"header,omitempty"`
		Fields   map[string]any `json:"fields"`
	}{Received: c.Received, Tag: c.Tag, Fields: fields}
	if c.IsBinary() {
		out.Header = c.Header.String()
	}
	return json.Marshal(out)
}
