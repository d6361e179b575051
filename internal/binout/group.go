package binout

import (
	"fmt"
	"strings"
)

// Group is one of the binary output groups. The numeric value is also the
// group's bit position in the header's group byte (GNSS3 lives in the
// extension byte).
type Group uint8

const (
	GroupCommon Group = iota
	GroupTime
	GroupIMU
	GroupGNSS
	GroupAttitude
	GroupINS
	GroupGNSS2
	GroupGNSS3

	NumGroups = 8
)

// Groups lists every group in canonical wire order.
var Groups = [NumGroups]Group{
	GroupCommon, GroupTime, GroupIMU, GroupGNSS,
	GroupAttitude, GroupINS, GroupGNSS2, GroupGNSS3,
}

var groupNames = [NumGroups]string{"common", "time", "imu", "gnss", "attitude", "ins", "gnss2", "gnss3"}

func (g Group) String() string {
	if int(g) < len(groupNames) {
		return groupNames[g]
	}
	return fmt.Sprintf("group(%d)", uint8(g))
}

// ParseGroup maps a lowercase group name back to its Group.
func ParseGroup(name string) (Group, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	for i, n := range groupNames {
		if n == name {
			return Group(i), nil
		}
	}
	return 0, fmt.Errorf("unknown binary output group %q", name)
}

// extBit marks a type word that is followed by a second word carrying
// bits 16..31.
const extBit = 0x8000

// ReservedBit is bit 15 of a group mask. It selects no field.
const ReservedBit uint32 = extBit

// CommonBits selects fields of the Common group.
type CommonBits uint32

const (
	CommonTimeStartup CommonBits = 1 << iota
	CommonTimeGps
	CommonTimeSyncIn
	CommonYpr
	CommonQuaternion
	CommonAngularRate
	CommonPosLla
	CommonVelNed
	CommonAccel
	CommonImu
	CommonMagPres
	CommonDeltas
	CommonInsStatus
	CommonSyncInCnt
	CommonTimeGpsPps
)

// TimeBits selects fields of the Time group.
type TimeBits uint32

const (
	TimeTimeStartup TimeBits = 1 << iota
	TimeTimeGps
	TimeGpsTow
	TimeGpsWeek
	TimeTimeSyncIn
	TimeTimeGpsPps
	TimeTimeUtc
	TimeSyncInCnt
	TimeSyncOutCnt
	TimeTimeStatus
)

// ImuBits selects fields of the IMU group.
type ImuBits uint32

const (
	ImuImuStatus ImuBits = 1 << iota
	ImuUncompMag
	ImuUncompAccel
	ImuUncompGyro
	ImuTemperature
	ImuPressure
	ImuDeltaTheta
	ImuDeltaVel
	ImuMag
	ImuAccel
	ImuAngularRate
	ImuSensSat
)

// GnssBits selects fields of the GNSS, GNSS2 and GNSS3 groups.
type GnssBits uint32

const (
	GnssTimeUtc GnssBits = 1 << iota
	GnssTow
	GnssWeek
	GnssNumSats
	GnssFix
	GnssPosLla
	GnssPosEcef
	GnssVelNed
	GnssVelEcef
	GnssPosU
	GnssVelU
	GnssTimeU
	GnssTimeInfo
	GnssDop
	GnssSatInfo
	_ // extension flag
	GnssRawMeas
	GnssStatus
	GnssAltMSL
)

// AttitudeBits selects fields of the Attitude group.
type AttitudeBits uint32

const (
	AttitudeAhrsStatus AttitudeBits = 1 << iota
	AttitudeYpr
	AttitudeQuaternion
	AttitudeDcm
	AttitudeMagNed
	AttitudeAccelNed
	AttitudeLinBodyAcc
	AttitudeLinAccelNed
	AttitudeYprU
	_
	_
	_
	AttitudeHeave
	AttitudeAttU
)

// InsBits selects fields of the INS group.
type InsBits uint32

const (
	InsInsStatus InsBits = 1 << iota
	InsPosLla
	InsPosEcef
	InsVelBody
	InsVelNed
	InsVelEcef
	InsMagEcef
	InsAccelEcef
	InsLinAccelEcef
	InsPosU
	InsVelU
)

func (b CommonBits) Has(f CommonBits) bool     { return b&f == f }
func (b TimeBits) Has(f TimeBits) bool         { return b&f == f }
func (b ImuBits) Has(f ImuBits) bool           { return b&f == f }
func (b GnssBits) Has(f GnssBits) bool         { return b&f == f }
func (b AttitudeBits) Has(f AttitudeBits) bool { return b&f == f }
func (b InsBits) Has(f InsBits) bool           { return b&f == f }

func (b CommonBits) Names() []string   { return maskNames(GroupCommon, uint32(b)) }
func (b TimeBits) Names() []string     { return maskNames(GroupTime, uint32(b)) }
func (b ImuBits) Names() []string      { return maskNames(GroupIMU, uint32(b)) }
func (b GnssBits) Names() []string     { return maskNames(GroupGNSS, uint32(b)) }
func (b AttitudeBits) Names() []string { return maskNames(GroupAttitude, uint32(b)) }
func (b InsBits) Names() []string      { return maskNames(GroupINS, uint32(b)) }

func (b CommonBits) String() string   { return strings.Join(b.Names(), "|") }
func (b TimeBits) String() string     { return strings.Join(b.Names(), "|") }
func (b ImuBits) String() string      { return strings.Join(b.Names(), "|") }
func (b GnssBits) String() string     { return strings.Join(b.Names(), "|") }
func (b AttitudeBits) String() string { return strings.Join(b.Names(), "|") }
func (b InsBits) String() string      { return strings.Join(b.Names(), "|") }

func maskNames(g Group, m uint32) []string {
	var out []string
	for bit := 0; bit < 32; bit++ {
		if m&(1<<bit) == 0 || bit == 15 {
			continue
		}
		f := Field{Group: g, Bit: uint8(bit)}
		if spec, ok := f.spec(); ok {
			out = append(out, spec.name)
		} else {
			out = append(out, fmt.Sprintf("bit%d", bit))
		}
	}
	return out
}

// ParseMask turns field names of group g into its mask.
func ParseMask(g Group, names []string) (uint32, error) {
	var m uint32
	for _, raw := range names {
		name := strings.TrimSpace(raw)
		if name == "" {
			continue
		}
		found := false
		for bit, spec := range fieldTable[tableIndex(g)] {
			if spec.kind != 0 && strings.EqualFold(spec.name, name) {
				m |= 1 << bit
				found = true
				break
			}
		}
		if !found {
			return 0, fmt.Errorf("%s: unknown field %q", g, name)
		}
	}
	return m, nil
}
