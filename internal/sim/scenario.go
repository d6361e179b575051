package sim

import (
	"fmt"
	"os"
	"sort"
	"time"

	"gopkg.in/yaml.v3"

	"vnsensor/internal/measurement"
)

// ScenarioScript is a script-driven attitude and position timeline for the
// simulated sensor.
//
// YAML schema (v1):
//
//	version: 1
//	duration: 30s
//	keyframes:
//	  - t: 0s
//	    yaw_deg: 350
//	    pitch_deg: 0
//	    roll_deg: 0
//	    lat_deg: 45.0
//	    lon_deg: -122.0
//	    alt_m: 100
//
// Keyframes must use non-decreasing t values.
type ScenarioScript struct {
	Version   int           `yaml:"version"`
	Duration  time.Duration `yaml:"duration"`
	Keyframes []Keyframe    `yaml:"keyframes"`
}

// Keyframe is a time-stamped sensor pose.
type Keyframe struct {
	T        time.Duration `yaml:"t"`
	YawDeg   float64       `yaml:"yaw_deg"`
	PitchDeg float64       `yaml:"pitch_deg"`
	RollDeg  float64       `yaml:"roll_deg"`
	LatDeg   float64       `yaml:"lat_deg"`
	LonDeg   float64       `yaml:"lon_deg"`
	AltM     float64       `yaml:"alt_m"`
}

// Scenario is the validated, runtime representation.
type Scenario struct {
	script   ScenarioScript
	duration time.Duration
}

// LoadScenarioScript reads and unmarshals a YAML scenario script from path.
func LoadScenarioScript(path string) (ScenarioScript, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return ScenarioScript{}, err
	}
	return ParseScenarioScriptYAML(b)
}

func ParseScenarioScriptYAML(b []byte) (ScenarioScript, error) {
	var s ScenarioScript
	if err := yaml.Unmarshal(b, &s); err != nil {
		return ScenarioScript{}, err
	}
	return s, nil
}

// NewScenario validates script and returns a runtime Scenario.
func NewScenario(script ScenarioScript) (*Scenario, error) {
	if script.Version == 0 {
		script.Version = 1
	}
	if script.Version != 1 {
		return nil, fmt.Errorf("unsupported scenario version %d", script.Version)
	}
	if len(script.Keyframes) == 0 {
		return nil, fmt.Errorf("keyframes is required")
	}
	for i, kf := range script.Keyframes {
		if kf.T < 0 {
			return nil, fmt.Errorf("keyframes[%d].t must be >= 0", i)
		}
		if i > 0 && kf.T < script.Keyframes[i-1].T {
			return nil, fmt.Errorf("keyframes must be sorted by t (index %d)", i)
		}
	}
	dur := script.Duration
	if dur <= 0 {
		dur = script.Keyframes[len(script.Keyframes)-1].T
	}
	if dur <= 0 {
		return nil, fmt.Errorf("duration is required (or derivable from keyframes)")
	}
	return &Scenario{script: script, duration: dur}, nil
}

func (s *Scenario) Duration() time.Duration {
	if s == nil {
		return 0
	}
	return s.duration
}

// StateAt computes the pose at elapsed, wrapping around Duration when
// loop is set and clamping otherwise. Angular rate is the keyframe
// segment's constant rate.
func (s *Scenario) StateAt(elapsed time.Duration, loop bool) State {
	if s == nil {
		return State{}
	}
	if elapsed < 0 {
		elapsed = 0
	}
	if loop {
		elapsed %= s.duration
	} else if elapsed > s.duration {
		elapsed = s.duration
	}

	k0, k1, alpha := selectSegment(s.script.Keyframes, elapsed)
	yaw := wrap180(lerpAngleDeg(k0.YawDeg, k1.YawDeg, alpha))
	pitch := lerp(k0.PitchDeg, k1.PitchDeg, alpha)
	roll := lerp(k0.RollDeg, k1.RollDeg, alpha)

	st := fromAttitude(yaw, pitch, roll)
	st.Lla = measurement.Vec3{
		lerp(k0.LatDeg, k1.LatDeg, alpha),
		lerp(k0.LonDeg, k1.LonDeg, alpha),
		lerp(k0.AltM, k1.AltM, alpha),
	}
	if dt := (k1.T - k0.T).Seconds(); dt > 0 {
		st.Gyro = measurement.Vec3{
			deg2rad((k1.RollDeg - k0.RollDeg) / dt),
			deg2rad((k1.PitchDeg - k0.PitchDeg) / dt),
			deg2rad(shortestDelta(k0.YawDeg, k1.YawDeg) / dt),
		}
	}
	return st
}

func selectSegment(kfs []Keyframe, t time.Duration) (Keyframe, Keyframe, float64) {
	if len(kfs) == 1 {
		return kfs[0], kfs[0], 0
	}
	idx := sort.Search(len(kfs), func(i int) bool { return kfs[i].T > t })
	if idx <= 0 {
		return kfs[0], kfs[0], 0
	}
	if idx >= len(kfs) {
		last := kfs[len(kfs)-1]
		return last, last, 0
	}
	k0 := kfs[idx-1]
	k1 := kfs[idx]
	dt := k1.T - k0.T
	if dt <= 0 {
		return k1, k1, 0
	}
	alpha := float64(t-k0.T) / float64(dt)
	if alpha < 0 {
		alpha = 0
	}
	if alpha > 1 {
		alpha = 1
	}
	return k0, k1, alpha
}

func lerp(a, b, t float64) float64 {
	return a + (b-a)*t
}

func norm360(x float64) float64 {
	for x < 0 {
		x += 360
	}
	for x >= 360 {
		x -= 360
	}
	return x
}

func shortestDelta(a0, a1 float64) float64 {
	delta := norm360(a1) - norm360(a0)
	if delta > 180 {
		delta -= 360
	} else if delta < -180 {
		delta += 360
	}
	return delta
}

// lerpAngleDeg interpolates along the shorter arc, returning [0, 360).
func lerpAngleDeg(a0, a1, t float64) float64 {
	return norm360(norm360(a0) + shortestDelta(a0, a1)*t)
}
