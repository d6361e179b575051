package sim

import (
	"math"
	"time"

	"vnsensor/internal/measurement"
)

const gravity = 9.80665

// State is the simulated sensor state at one instant.
type State struct {
	Ypr   measurement.Vec3 // deg
	Gyro  measurement.Vec3 // rad/s, body
	Accel measurement.Vec3 // m/s^2, body, includes gravity
	Mag   measurement.Vec3 // gauss, body
	Lla   measurement.Vec3 // deg, deg, m
	VelN  measurement.Vec3 // m/s
	TempC float64
	PresK float64
}

// Motion produces a deterministic, gently moving attitude: a slow yaw
// sweep with small pitch and roll oscillations around CenterLat/Lon.
type Motion struct {
	CenterLatDeg float64
	CenterLonDeg float64
	AltM         float64
	Period       time.Duration
	PitchAmpDeg  float64
	RollAmpDeg   float64
}

func (m Motion) period() time.Duration {
	if m.Period <= 0 {
		return 60 * time.Second
	}
	return m.Period
}

// StateAt returns the state elapsed after the start of the run.
func (m Motion) StateAt(elapsed time.Duration) State {
	period := m.period()
	phase := float64(elapsed%period) / float64(period)
	w := 2 * math.Pi * phase
	omega := 2 * math.Pi / period.Seconds()

	pitchAmp, rollAmp := m.PitchAmpDeg, m.RollAmpDeg
	if pitchAmp == 0 && rollAmp == 0 {
		pitchAmp, rollAmp = 5, 10
	}

	// Yaw walks a full turn per period; pitch and roll run at twice and
	// three times that rate so the pattern does not look periodic per axis.
	yaw := wrap180(360 * phase)
	pitch := pitchAmp * math.Sin(2*w)
	roll := rollAmp * math.Sin(3*w)

	st := fromAttitude(yaw, pitch, roll)
	st.Gyro = measurement.Vec3{
		deg2rad(3 * rollAmp * omega * math.Cos(3*w)),
		deg2rad(2 * pitchAmp * omega * math.Cos(2*w)),
		deg2rad(360 / period.Seconds()),
	}
	alt := m.AltM
	if alt == 0 {
		alt = 100
	}
	st.Lla = measurement.Vec3{m.CenterLatDeg, m.CenterLonDeg, alt}
	return st
}

// fromAttitude fills gravity and the earth field rotated into the body
// frame. Gyro and position are left zero.
func fromAttitude(yaw, pitch, roll float64) State {
	th, ph := deg2rad(pitch), deg2rad(roll)
	st := State{
		Ypr: measurement.Vec3{yaw, pitch, roll},
		Accel: measurement.Vec3{
			gravity * math.Sin(th),
			-gravity * math.Cos(th) * math.Sin(ph),
			-gravity * math.Cos(th) * math.Cos(ph),
		},
		TempC: 25,
		PresK: 101.325,
	}
	// Horizontal field of 0.2 G north and 0.45 G down.
	ps := deg2rad(yaw)
	hn, hd := 0.2, 0.45
	bx := hn * math.Cos(ps)
	by := -hn * math.Sin(ps)
	st.Mag = measurement.Vec3{
		bx*math.Cos(th) - hd*math.Sin(th),
		bx*math.Sin(ph)*math.Sin(th) + by*math.Cos(ph) + hd*math.Sin(ph)*math.Cos(th),
		bx*math.Cos(ph)*math.Sin(th) - by*math.Sin(ph) + hd*math.Cos(ph)*math.Cos(th),
	}
	return st
}

// Quaternion converts a yaw, pitch, roll attitude (deg) to x, y, z, s.
func Quaternion(ypr measurement.Vec3) measurement.Quat {
	cy, sy := math.Cos(deg2rad(ypr[0])/2), math.Sin(deg2rad(ypr[0])/2)
	cp, sp := math.Cos(deg2rad(ypr[1])/2), math.Sin(deg2rad(ypr[1])/2)
	cr, sr := math.Cos(deg2rad(ypr[2])/2), math.Sin(deg2rad(ypr[2])/2)
	return measurement.Quat{
		sr*cp*cy - cr*sp*sy,
		cr*sp*cy + sr*cp*sy,
		cr*cp*sy - sr*sp*cy,
		cr*cp*cy + sr*sp*sy,
	}
}

func deg2rad(d float64) float64 { return d * math.Pi / 180 }

func wrap180(d float64) float64 {
	d = math.Mod(d+180, 360)
	if d < 0 {
		d += 360
	}
	return d - 180
}
