package register

import (
	"errors"
	"reflect"
	"testing"

	"vnsensor/internal/binout"
)

func sampleRegisters() []Register {
	return []Register{
		&UserTag{Tag: "rig-7"},
		&Model{Model: "VN-200"},
		&HwVer{HwVer: 3, HwMinVer: 1},
		&Serial{SerialNum: 100234567},
		&FwVer{FwVer: "2.1.0.0"},
		&BaudRate{Baud: Baud921600, SerialPort: Port2},
		&AsyncOutputType{Ador: AdorYMR},
		&AsyncOutputFreq{Adof: 40, SerialPort: Port1},
		&YawPitchRoll{Yaw: 123.456, Pitch: -0.1234567, Roll: 1e-7},
		&Quaternion{X: 0.1, Y: -0.2, Z: 0.3, S: 0.92736185},
		&MagGravRefVec{MagRefN: 0.2, MagRefE: -0.05, MagRefD: 0.45, GravRefD: 9.80665},
		&ProtocolControl{AsciiAppendCount: 2, AsciiChecksum: ChecksumCRC16, SpiChecksum: ChecksumOff, ErrorMode: 1},
		&SyncControl{SyncInMode: SyncInCount, SyncInSkipFactor: 3, SyncOutMode: SyncOutImuReady, SyncOutPolarity: 1, SyncOutPulseWidth: 100000},
		&SyncStatus{SyncInCount: 12, SyncInTime: 3400, SyncOutCount: 5},
		&VpeBasicControl{Resv: 1, HeadingMode: 1, FilteringMode: 1, TuningMode: 1},
		&BinaryOutput1{Config: binout.Config{AsyncMode: binout.AsyncSerial1, RateDivisor: 8, Common: binout.CommonYpr | binout.CommonAccel}},
		&BinaryOutput2{Config: binout.Config{AsyncMode: binout.AsyncSerial2, RateDivisor: 400, Time: binout.TimeTimeUtc, GNSS: binout.GnssFix | binout.GnssAltMSL}},
		&BinaryOutput3{Config: binout.Config{RateDivisor: 1, GNSS3: binout.GnssPosLla}},
	}
}

func TestRoundTrip_Binary(t *testing.T) {
	for _, r := range sampleRegisters() {
		t.Run(r.Name(), func(t *testing.T) {
			b, err := EncodeBinary(r)
			if err != nil {
				t.Fatalf("EncodeBinary: %v", err)
			}
			if len(b) != BinarySize(r) {
				t.Fatalf("len=%d want %d", len(b), BinarySize(r))
			}
			got, err := DecodeBinary(r.ID(), b)
			if err != nil {
				t.Fatalf("DecodeBinary: %v", err)
			}
			if !reflect.DeepEqual(got, r) {
				t.Fatalf("got %#v want %#v", got, r)
			}
		})
	}
}

func TestRoundTrip_ASCII(t *testing.T) {
	for _, r := range sampleRegisters() {
		t.Run(r.Name(), func(t *testing.T) {
			s, err := EncodeASCII(r)
			if err != nil {
				t.Fatalf("EncodeASCII: %v", err)
			}
			got, err := DecodeASCII(r.ID(), s)
			if err != nil {
				t.Fatalf("DecodeASCII(%q): %v", s, err)
			}
			if !reflect.DeepEqual(got, r) {
				t.Fatalf("ascii %q decoded to %#v want %#v", s, got, r)
			}
		})
	}
}

func TestEncode_RejectsUndeclaredEnum(t *testing.T) {
	cases := []Register{
		&BaudRate{Baud: 12345},
		&AsyncOutputType{Ador: 3},
		&AsyncOutputFreq{Adof: 7},
		&ProtocolControl{AsciiChecksum: 2},
		&SyncControl{SyncInMode: 1},
	}
	for _, r := range cases {
		if _, err := EncodeBinary(r); err == nil {
			t.Fatalf("%s: expected binary encoding error", r.Name())
		}
		_, err := EncodeASCII(r)
		var ee *EncodingError
		if !errors.As(err, &ee) {
			t.Fatalf("%s: err=%v want *EncodingError", r.Name(), err)
		}
	}
}

func TestEncode_BinaryOutputReservedBit(t *testing.T) {
	r := &BinaryOutput1{Config: binout.Config{
		AsyncMode:   binout.AsyncSerial1,
		RateDivisor: 1,
		GNSS:        binout.GnssFix | binout.GnssBits(binout.ReservedBit),
	}}
	_, err := EncodeASCII(r)
	var ee *EncodingError
	if !errors.As(err, &ee) || ee.Field != "gnss" {
		t.Fatalf("err=%v", err)
	}
	if _, err := EncodeBinary(r); err == nil {
		t.Fatalf("expected binary encoding error")
	}
}

func TestEncode_StringTooLong(t *testing.T) {
	_, err := EncodeASCII(&UserTag{Tag: "this tag is far too long for the device"})
	var ee *EncodingError
	if !errors.As(err, &ee) || ee.Field != "tag" {
		t.Fatalf("err=%v", err)
	}
}

func TestDecodeBinary_LengthMismatch(t *testing.T) {
	_, err := DecodeBinary(IDYawPitchRoll, make([]byte, 11))
	var de *DecodingError
	if !errors.As(err, &de) {
		t.Fatalf("err=%v want *DecodingError", err)
	}
}

func TestDecode_UndeclaredEnum(t *testing.T) {
	var de *DecodingError
	if _, err := DecodeASCII(IDBaudRate, "115201"); !errors.As(err, &de) {
		t.Fatalf("ascii: err=%v", err)
	}
	b := []byte{0x39, 0x30, 0x00, 0x00, 0x00} // 12345, port 0
	if _, err := DecodeBinary(IDBaudRate, b); !errors.As(err, &de) {
		t.Fatalf("binary: err=%v", err)
	}
}

func TestDecodeASCII_OptionalField(t *testing.T) {
	r, err := DecodeASCII(IDBaudRate, "115200")
	if err != nil {
		t.Fatalf("DecodeASCII: %v", err)
	}
	br := r.(*BaudRate)
	if br.Baud != Baud115200 || br.SerialPort != PortActive {
		t.Fatalf("got %+v", br)
	}
	if s, _ := EncodeASCII(br); s != "115200" {
		t.Fatalf("EncodeASCII=%q want 115200", s)
	}
	if _, err := DecodeASCII(IDBaudRate, "115200,1,9"); err == nil {
		t.Fatalf("expected error for extra field")
	}
}

func TestUnmarshalASCII_ClearsOmittedOptional(t *testing.T) {
	br := &BaudRate{Baud: Baud9600, SerialPort: Port2}
	if err := UnmarshalASCII(br, "230400"); err != nil {
		t.Fatalf("UnmarshalASCII: %v", err)
	}
	if br.Baud != Baud230400 || br.SerialPort != PortActive {
		t.Fatalf("got %+v", br)
	}
}

func TestBinaryOutputASCII_DeviceForm(t *testing.T) {
	r := &BinaryOutput1{Config: binout.Config{
		AsyncMode:   binout.AsyncSerial1 | binout.AsyncSerial2,
		RateDivisor: 40,
		Common:      binout.CommonYpr | binout.CommonAngularRate,
		IMU:         binout.ImuAccel,
	}}
	s, err := EncodeASCII(r)
	if err != nil {
		t.Fatalf("EncodeASCII: %v", err)
	}
	if want := "3,40,5,28,200"; s != want {
		t.Fatalf("EncodeASCII=%q want %q", s, want)
	}

	empty, err := EncodeASCII(&BinaryOutput2{})
	if err != nil || empty != "0,0,0" {
		t.Fatalf("empty=%q err=%v", empty, err)
	}
	got, err := DecodeASCII(IDBinaryOutput2, empty)
	if err != nil {
		t.Fatalf("DecodeASCII(empty): %v", err)
	}
	if !got.(*BinaryOutput2).Header().Empty() {
		t.Fatalf("expected empty header")
	}
}

func TestNew_UnknownID(t *testing.T) {
	if _, err := New(250); err == nil {
		t.Fatalf("expected error")
	}
	ids := IDs()
	if len(ids) == 0 || ids[0] != IDUserTag || ids[len(ids)-1] != IDBinaryOutput3 {
		t.Fatalf("IDs=%v", ids)
	}
}
