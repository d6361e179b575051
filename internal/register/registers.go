package register

import (
	"fmt"
	"sort"
)

// Register is one of the register variants defined in this package. The
// set is closed: New maps every supported id to exactly one variant.
type Register interface {
	ID() uint8
	Name() string
	fields() []field
}

// Writable is implemented by configuration registers, which can be written
// and persisted with the write-settings command.
type Writable interface {
	Register
	writable()
}

func (f field) opt() field { f.optional = true; return f }

func (f field) asHex() field { f.hex = true; return f }

func (f field) reserve(bits uint64) field { f.reserved = bits; return f }

const (
	IDUserTag         uint8 = 0
	IDModel           uint8 = 1
	IDHwVer           uint8 = 2
	IDSerial          uint8 = 3
	IDFwVer           uint8 = 4
	IDBaudRate        uint8 = 5
	IDAsyncOutputType uint8 = 6
	IDAsyncOutputFreq uint8 = 7
	IDYawPitchRoll    uint8 = 8
	IDQuaternion      uint8 = 9
	IDMagGravRefVec   uint8 = 21
	IDProtocolControl uint8 = 30
	IDSyncControl     uint8 = 32
	IDSyncStatus      uint8 = 33
	IDVpeBasicControl uint8 = 35
	IDBinaryOutput1   uint8 = 75
	IDBinaryOutput2   uint8 = 76
	IDBinaryOutput3   uint8 = 77
)

var constructors = map[uint8]func() Register{
	IDUserTag:         func() Register { return &UserTag{} },
	IDModel:           func() Register { return &Model{} },
	IDHwVer:           func() Register { return &HwVer{} },
	IDSerial:          func() Register { return &Serial{} },
	IDFwVer:           func() Register { return &FwVer{} },
	IDBaudRate:        func() Register { return &BaudRate{} },
	IDAsyncOutputType: func() Register { return &AsyncOutputType{} },
	IDAsyncOutputFreq: func() Register { return &AsyncOutputFreq{} },
	IDYawPitchRoll:    func() Register { return &YawPitchRoll{} },
	IDQuaternion:      func() Register { return &Quaternion{} },
	IDMagGravRefVec:   func() Register { return &MagGravRefVec{} },
	IDProtocolControl: func() Register { return &ProtocolControl{} },
	IDSyncControl:     func() Register { return &SyncControl{} },
	IDSyncStatus:      func() Register { return &SyncStatus{} },
	IDVpeBasicControl: func() Register { return &VpeBasicControl{} },
	IDBinaryOutput1:   func() Register { return &BinaryOutput1{} },
	IDBinaryOutput2:   func() Register { return &BinaryOutput2{} },
	IDBinaryOutput3:   func() Register { return &BinaryOutput3{} },
}

// New returns the zero value of the register variant with the given id.
func New(id uint8) (Register, error) {
	c, ok := constructors[id]
	if !ok {
		return nil, fmt.Errorf("unknown register id %d", id)
	}
	return c(), nil
}

// IDs lists every supported register id in ascending order.
func IDs() []uint8 {
	out := make([]uint8, 0, len(constructors))
	for id := range constructors {
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// UserTag is a free-form tag stored on the device.
type UserTag struct {
	Tag string
}

func (*UserTag) ID() uint8         { return IDUserTag }
func (*UserTag) Name() string      { return "UserTag" }
func (*UserTag) writable()         {}
func (r *UserTag) fields() []field { return []field{str("tag", &r.Tag, 20)} }

// Model is the product name, e.g. "VN-200".
type Model struct {
	Model string
}

func (*Model) ID() uint8         { return IDModel }
func (*Model) Name() string      { return "Model" }
func (r *Model) fields() []field { return []field{str("model", &r.Model, 24)} }

type HwVer struct {
	HwVer    uint32
	HwMinVer uint32
}

func (*HwVer) ID() uint8    { return IDHwVer }
func (*HwVer) Name() string { return "HwVer" }
func (r *HwVer) fields() []field {
	return []field{u32("hwVer", &r.HwVer), u32("hwMinVer", &r.HwMinVer)}
}

type Serial struct {
	SerialNum uint32
}

func (*Serial) ID() uint8         { return IDSerial }
func (*Serial) Name() string      { return "Serial" }
func (r *Serial) fields() []field { return []field{u32("serialNum", &r.SerialNum)} }

type FwVer struct {
	FwVer string
}

func (*FwVer) ID() uint8         { return IDFwVer }
func (*FwVer) Name() string      { return "FwVer" }
func (r *FwVer) fields() []field { return []field{str("fwVer", &r.FwVer, 24)} }

// BaudRate sets the baud rate of a device serial port.
type BaudRate struct {
	Baud       Baud
	SerialPort SerialPort
}

func (*BaudRate) ID() uint8    { return IDBaudRate }
func (*BaudRate) Name() string { return "BaudRate" }
func (*BaudRate) writable()    {}
func (r *BaudRate) fields() []field {
	return []field{
		enum32("baudRate", (*uint32)(&r.Baud), baudCodes()...),
		enum8("serialPort", (*uint8)(&r.SerialPort), serialPortCodes...).opt(),
	}
}

// AsyncOutputType selects the ASCII message the device streams (ADOR).
type AsyncOutputType struct {
	Ador       Ador
	SerialPort SerialPort
}

func (*AsyncOutputType) ID() uint8    { return IDAsyncOutputType }
func (*AsyncOutputType) Name() string { return "AsyncOutputType" }
func (*AsyncOutputType) writable()    {}
func (r *AsyncOutputType) fields() []field {
	return []field{
		enum32("ador", (*uint32)(&r.Ador), adorCodes()...),
		enum8("serialPort", (*uint8)(&r.SerialPort), serialPortCodes...).opt(),
	}
}

// AsyncOutputFreq sets the ASCII output rate in Hz (ADOF).
type AsyncOutputFreq struct {
	Adof       uint32
	SerialPort SerialPort
}

func (*AsyncOutputFreq) ID() uint8    { return IDAsyncOutputFreq }
func (*AsyncOutputFreq) Name() string { return "AsyncOutputFreq" }
func (*AsyncOutputFreq) writable()    {}
func (r *AsyncOutputFreq) fields() []field {
	return []field{
		enum32("adof", &r.Adof, AdofRates...),
		enum8("serialPort", (*uint8)(&r.SerialPort), serialPortCodes...).opt(),
	}
}

type YawPitchRoll struct {
	Yaw, Pitch, Roll float32
}

func (*YawPitchRoll) ID() uint8    { return IDYawPitchRoll }
func (*YawPitchRoll) Name() string { return "YawPitchRoll" }
func (r *YawPitchRoll) fields() []field {
	return []field{f32("yaw", &r.Yaw), f32("pitch", &r.Pitch), f32("roll", &r.Roll)}
}

type Quaternion struct {
	X, Y, Z, S float32
}

func (*Quaternion) ID() uint8    { return IDQuaternion }
func (*Quaternion) Name() string { return "Quaternion" }
func (r *Quaternion) fields() []field {
	return []field{f32("quatX", &r.X), f32("quatY", &r.Y), f32("quatZ", &r.Z), f32("quatS", &r.S)}
}

// MagGravRefVec holds the magnetic and gravity reference vectors (NED).
type MagGravRefVec struct {
	MagRefN, MagRefE, MagRefD    float32
	GravRefN, GravRefE, GravRefD float32
}

func (*MagGravRefVec) ID() uint8    { return IDMagGravRefVec }
func (*MagGravRefVec) Name() string { return "MagGravRefVec" }
func (*MagGravRefVec) writable()    {}
func (r *MagGravRefVec) fields() []field {
	return []field{
		f32("magRefN", &r.MagRefN), f32("magRefE", &r.MagRefE), f32("magRefD", &r.MagRefD),
		f32("gravRefN", &r.GravRefN), f32("gravRefE", &r.GravRefE), f32("gravRefD", &r.GravRefD),
	}
}

// ProtocolControl configures ASCII framing, including the checksum type.
type ProtocolControl struct {
	AsciiAppendCount  uint8
	AsciiAppendStatus uint8
	SpiAppendCount    uint8
	SpiAppendStatus   uint8
	AsciiChecksum     ChecksumMode
	SpiChecksum       ChecksumMode
	ErrorMode         uint8
}

func (*ProtocolControl) ID() uint8    { return IDProtocolControl }
func (*ProtocolControl) Name() string { return "ProtocolControl" }
func (*ProtocolControl) writable()    {}
func (r *ProtocolControl) fields() []field {
	return []field{
		enum8("asciiAppendCount", &r.AsciiAppendCount, 0, 1, 2, 3, 4, 5),
		enum8("asciiAppendStatus", &r.AsciiAppendStatus, 0, 1, 2, 3, 4, 5, 6),
		enum8("spiAppendCount", &r.SpiAppendCount, 0, 1, 2, 3, 4, 5),
		enum8("spiAppendStatus", &r.SpiAppendStatus, 0, 1, 2, 3, 4, 5, 6),
		enum8("asciiChecksum", (*uint8)(&r.AsciiChecksum), uint64(Checksum8Bit), uint64(ChecksumCRC16)),
		enum8("spiChecksum", (*uint8)(&r.SpiChecksum), uint64(ChecksumOff), uint64(Checksum8Bit), uint64(ChecksumCRC16)),
		enum8("errorMode", &r.ErrorMode, 0, 1, 2),
	}
}

// SyncControl configures the SyncIn and SyncOut pins.
type SyncControl struct {
	SyncInMode        SyncInMode
	SyncInEdge        uint8
	SyncInSkipFactor  uint16
	Resv1             uint32
	SyncOutMode       SyncOutMode
	SyncOutPolarity   uint8
	SyncOutSkipFactor uint16
	SyncOutPulseWidth uint32
	Resv2             uint32
}

func (*SyncControl) ID() uint8    { return IDSyncControl }
func (*SyncControl) Name() string { return "SyncControl" }
func (*SyncControl) writable()    {}
func (r *SyncControl) fields() []field {
	return []field{
		enum8("syncInMode", (*uint8)(&r.SyncInMode), 0, 3, 4, 5, 6),
		enum8("syncInEdge", &r.SyncInEdge, 0, 1),
		u16("syncInSkipFactor", &r.SyncInSkipFactor),
		u32("resv1", &r.Resv1),
		enum8("syncOutMode", (*uint8)(&r.SyncOutMode), 0, 1, 2, 3, 6),
		enum8("syncOutPolarity", &r.SyncOutPolarity, 0, 1),
		u16("syncOutSkipFactor", &r.SyncOutSkipFactor),
		u32("syncOutPulseWidth", &r.SyncOutPulseWidth),
		u32("resv2", &r.Resv2),
	}
}

// SyncStatus counts SyncIn and SyncOut events.
type SyncStatus struct {
	SyncInCount  uint32
	SyncInTime   uint32
	SyncOutCount uint32
}

func (*SyncStatus) ID() uint8    { return IDSyncStatus }
func (*SyncStatus) Name() string { return "SyncStatus" }
func (r *SyncStatus) fields() []field {
	return []field{u32("syncInCount", &r.SyncInCount), u32("syncInTime", &r.SyncInTime), u32("syncOutCount", &r.SyncOutCount)}
}

type VpeBasicControl struct {
	Resv          uint8
	HeadingMode   uint8
	FilteringMode uint8
	TuningMode    uint8
}

func (*VpeBasicControl) ID() uint8    { return IDVpeBasicControl }
func (*VpeBasicControl) Name() string { return "VpeBasicControl" }
func (*VpeBasicControl) writable()    {}
func (r *VpeBasicControl) fields() []field {
	return []field{
		u8("resv", &r.Resv),
		enum8("headingMode", &r.HeadingMode, 0, 1, 2),
		enum8("filteringMode", &r.FilteringMode, 0, 1),
		enum8("tuningMode", &r.TuningMode, 0, 1),
	}
}
