package sim

import (
	"time"

	"vnsensor/internal/binout"
	"vnsensor/internal/measurement"
)

// snapshot fills every known output field from st. Fields the simulation
// does not model are zero.
func snapshot(st State, elapsed time.Duration, now time.Time, syncIn uint32) measurement.CompositeData {
	b := measurement.NewBuilder(now)
	q := Quaternion(st.Ypr)
	for _, g := range binout.Groups {
		for bit := 0; bit < 32; bit++ {
			f := binout.Field{Group: g, Bit: uint8(bit)}
			if bit == 15 || !f.Known() {
				continue
			}
			b.Set(f, fieldValue(f, st, q, elapsed, now, syncIn))
		}
	}
	return b.Build()
}

func floats(xs ...float64) measurement.Value { return measurement.Value{Floats: xs} }

func fieldValue(f binout.Field, st State, q measurement.Quat, elapsed time.Duration, now time.Time, syncIn uint32) measurement.Value {
	switch f.Name() {
	case "ypr":
		return floats(st.Ypr[:]...)
	case "quaternion":
		return floats(q[:]...)
	case "angularRate", "uncompGyro":
		return floats(st.Gyro[:]...)
	case "accel", "uncompAccel":
		return floats(st.Accel[:]...)
	case "mag", "uncompMag":
		return floats(st.Mag[:]...)
	case "temperature":
		return floats(st.TempC)
	case "pressure":
		return floats(st.PresK)
	case "posLla":
		return floats(st.Lla[:]...)
	case "velNed":
		return floats(st.VelN[:]...)
	case "imu":
		return floats(st.Accel[0], st.Accel[1], st.Accel[2], st.Gyro[0], st.Gyro[1], st.Gyro[2])
	case "magPres":
		return floats(st.Mag[0], st.Mag[1], st.Mag[2], st.TempC, st.PresK)
	case "timeStartup":
		return measurement.Value{Uint: uint64(elapsed)}
	case "insStatus":
		// Tracking with a GNSS fix.
		return measurement.Value{Uint: 0x0006}
	case "timeStatus":
		return measurement.Value{Uint: 0x07}
	case "fix":
		return measurement.Value{Uint: 3}
	case "numSats":
		return measurement.Value{Uint: 12}
	case "syncInCnt":
		return measurement.Value{Uint: uint64(syncIn)}
	case "timeUtc":
		u := now.UTC()
		return measurement.Value{UTC: measurement.TimeUTC{
			Year:   int8(u.Year() - 2000),
			Month:  uint8(u.Month()),
			Day:    uint8(u.Day()),
			Hour:   uint8(u.Hour()),
			Minute: uint8(u.Minute()),
			Second: uint8(u.Second()),
			Millis: uint16(u.Nanosecond() / int(time.Millisecond)),
		}}
	}
	switch f.Kind() {
	case binout.KindF32, binout.KindF64:
		return measurement.Value{Floats: make([]float64, f.Count())}
	case binout.KindBytes:
		size, _ := f.FixedSize()
		return measurement.Value{Bytes: make([]byte, size)}
	}
	return measurement.Value{}
}
