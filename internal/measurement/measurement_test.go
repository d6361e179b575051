package measurement

import (
	"encoding/json"
	"math"
	"strings"
	"testing"
	"time"

	"vnsensor/internal/binout"
	"vnsensor/internal/frame"
)

var t0 = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func near(a, b float64) bool { return math.Abs(a-b) < 1e-5 }

func TestDecodeASCII_YMR(t *testing.T) {
	body := "VNYMR,+010.071,-000.278,-001.026,+00.2563,-00.0312,+00.4731,-00.044,+00.171,-09.807,+0.000134,-0.000522,+0.001221"
	c, ok, err := DecodeASCII(body, t0)
	if err != nil || !ok {
		t.Fatalf("ok=%v err=%v", ok, err)
	}
	ypr, ok := c.YawPitchRoll()
	if !ok || !near(ypr[0], 10.071) || !near(ypr[1], -0.278) || !near(ypr[2], -1.026) {
		t.Fatalf("ypr=%v ok=%v", ypr, ok)
	}
	acc, _ := c.Accel()
	if !near(acc[2], -9.807) {
		t.Fatalf("accel=%v", acc)
	}
	if c.Tag != "VNYMR" || c.IsBinary() || c.Len() != 4 {
		t.Fatalf("tag=%q len=%d", c.Tag, c.Len())
	}
	if !c.Received.Equal(t0) {
		t.Fatalf("received=%v", c.Received)
	}
}

func TestDecodeASCII_IgnoresAppendedCount(t *testing.T) {
	c, ok, err := DecodeASCII("VNYPR,+1.0,+2.0,+3.0,T001234", t0)
	if err != nil || !ok {
		t.Fatalf("ok=%v err=%v", ok, err)
	}
	if ypr, _ := c.YawPitchRoll(); ypr != (Vec3{1, 2, 3}) {
		t.Fatalf("ypr=%v", ypr)
	}
}

func TestDecodeASCII_NotMeasurement(t *testing.T) {
	for _, body := range []string{"VNRRG,05,115200", "VNERR,03", "VNWNV"} {
		_, ok, err := DecodeASCII(body, t0)
		if ok || err != nil {
			t.Fatalf("%q: ok=%v err=%v", body, ok, err)
		}
	}
}

func TestDecodeASCII_Malformed(t *testing.T) {
	for _, body := range []string{"VNYPR,+1.0,+2.0", "VNQTN,1,2,x,4", "VNIMU"} {
		_, ok, err := DecodeASCII(body, t0)
		if !ok || err == nil {
			t.Fatalf("%q: ok=%v err=%v", body, ok, err)
		}
	}
}

func TestASCII_RoundTrip(t *testing.T) {
	for _, tag := range ASCIITags() {
		t.Run(tag, func(t *testing.T) {
			b := NewBuilder(t0)
			for _, p := range asciiLayouts[tag] {
				xs := make([]float64, p.count)
				for i := range xs {
					xs[i] = float64(i) - 0.5
				}
				b.Floats(p.field, xs...)
			}
			body, err := AppendASCII(nil, tag, b.Build())
			if err != nil {
				t.Fatalf("AppendASCII: %v", err)
			}
			c, ok, err := DecodeASCII(string(body), t0)
			if err != nil || !ok {
				t.Fatalf("DecodeASCII(%q): ok=%v err=%v", body, ok, err)
			}
			if c.Len() != len(asciiLayouts[tag]) {
				t.Fatalf("len=%d", c.Len())
			}
		})
	}
}

func TestDecodeBinary_Fixed(t *testing.T) {
	h := binout.NewHeader(
		binout.GroupMask{Group: binout.GroupCommon, Mask: uint32(binout.CommonTimeStartup | binout.CommonYpr | binout.CommonInsStatus)},
		binout.GroupMask{Group: binout.GroupTime, Mask: uint32(binout.TimeTimeUtc)},
	)
	fStartup := binout.FieldOf(binout.GroupCommon, binout.CommonTimeStartup)
	fStatus := binout.FieldOf(binout.GroupCommon, binout.CommonInsStatus)
	in := NewBuilder(t0).
		Uint(fStartup, uint64(5*time.Second)).
		Floats(fComYpr, 45, -1.5, 0.25).
		Uint(fStatus, 0x0106).
		Set(fTimeUtc, Value{UTC: TimeUTC{Year: 26, Month: 3, Day: 1, Hour: 12, Minute: 30, Second: 15, Millis: 250}}).
		Build()
	payload, err := AppendPayload(nil, h, in)
	if err != nil {
		t.Fatalf("AppendPayload: %v", err)
	}
	if n, ok := h.FixedPayloadLen(); !ok || n != len(payload) {
		t.Fatalf("payload len=%d fixed=%d", len(payload), n)
	}

	c, err := DecodeBinary(h, payload, t0)
	if err != nil {
		t.Fatalf("DecodeBinary: %v", err)
	}
	if !c.IsBinary() || c.Header != h {
		t.Fatalf("header not kept")
	}
	if d, ok := c.TimeStartup(); !ok || d != 5*time.Second {
		t.Fatalf("startup=%v ok=%v", d, ok)
	}
	if ypr, ok := c.YawPitchRoll(); !ok || ypr != (Vec3{45, -1.5, 0.25}) {
		t.Fatalf("ypr=%v", ypr)
	}
	st, ok := c.InsStatus()
	if !ok || st.Mode() != 2 || !st.GnssFix() || st.GnssCompassFix() != 1 || st.ImuErr() {
		t.Fatalf("status=%#x", uint16(st))
	}
	utc, ok := c.TimeUTC()
	if !ok || !utc.Time().Equal(time.Date(2026, 3, 1, 12, 30, 15, 250e6, time.UTC)) {
		t.Fatalf("utc=%+v", utc)
	}
	fields := c.Fields()
	if len(fields) != 4 || fields[0] != fStartup || fields[3] != fTimeUtc {
		t.Fatalf("fields=%v", fields)
	}
}

func TestDecodeBinary_Variable(t *testing.T) {
	fSat := binout.FieldOf(binout.GroupGNSS, binout.GnssSatInfo)
	fRaw := binout.FieldOf(binout.GroupGNSS2, binout.GnssRawMeas)
	h := binout.NewHeader(
		binout.GroupMask{Group: binout.GroupGNSS, Mask: uint32(binout.GnssSatInfo)},
		binout.GroupMask{Group: binout.GroupGNSS2, Mask: uint32(binout.GnssRawMeas)},
	)
	sats := []SatInfo{{Sys: 0, SvID: 12, Flags: 1, Cno: 40, Qi: 7, El: 45, Az: -120}, {Sys: 6, SvID: 3, Cno: 33, El: -2, Az: 300}}
	raw := &RawMeas{Tow: 123456.5, Week: 2300, Meas: []RawSat{{Sys: 1, SvID: 9, Band: 2, FreqNum: -3, Cno: 41, Flags: 0x8001, Pr: 2.1e7, Cp: 1.1e8, Dp: -1234.5}}}
	in := NewBuilder(t0).Set(fSat, Value{Sats: sats}).Set(fRaw, Value{Raw: raw}).Build()
	payload, err := AppendPayload(nil, h, in)
	if err != nil {
		t.Fatalf("AppendPayload: %v", err)
	}
	want := 2 + 2*binout.SatInfoEntrySize + 12 + binout.RawMeasEntrySize
	if n, ok := h.PayloadLen(payload); !ok || n != want || len(payload) != want {
		t.Fatalf("PayloadLen=%d,%v len=%d want %d", n, ok, len(payload), want)
	}
	c, err := DecodeBinary(h, payload, t0)
	if err != nil {
		t.Fatalf("DecodeBinary: %v", err)
	}
	v, _ := c.Get(fSat)
	if len(v.Sats) != 2 || v.Sats[0] != sats[0] || v.Sats[1] != sats[1] {
		t.Fatalf("sats=%+v", v.Sats)
	}
	v, _ = c.Get(fRaw)
	if v.Raw == nil || v.Raw.Week != 2300 || len(v.Raw.Meas) != 1 || v.Raw.Meas[0] != raw.Meas[0] {
		t.Fatalf("raw=%+v", v.Raw)
	}
}

func TestDecodeBinary_LengthErrors(t *testing.T) {
	h := binout.NewHeader(binout.GroupMask{Group: binout.GroupCommon, Mask: uint32(binout.CommonYpr)})
	if _, err := DecodeBinary(h, make([]byte, 11), t0); err == nil {
		t.Fatalf("expected short payload error")
	}
	if _, err := DecodeBinary(h, make([]byte, 13), t0); err == nil {
		t.Fatalf("expected trailing bytes error")
	}
}

func TestMarshalJSON(t *testing.T) {
	c, _, _ := DecodeASCII("VNYPR,+1.5,+2.0,-3.0", t0)
	b, err := json.Marshal(c)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	s := string(b)
	if !strings.Contains(s, `"attitude.ypr":[1.5,2,-3]`) || !strings.Contains(s, `"tag":"VNYPR"`) {
		t.Fatalf("json=%s", s)
	}
}

func TestValueStrings(t *testing.T) {
	v := Value{Kind: binout.KindF32, Floats: []float64{1.5, -2}}
	if got := strings.Join(v.Strings(), ";"); got != "1.5;-2" {
		t.Fatalf("got %q", got)
	}
	v = Value{Kind: binout.KindU16, Uint: 7}
	if got := v.Strings(); len(got) != 1 || got[0] != "7" {
		t.Fatalf("got %v", got)
	}
}

func TestFromFrame(t *testing.T) {
	raw := frame.AppendASCII(nil, "VNYPR,+1.0,+2.0,+3.0", frame.Checksum8Bit)
	body, err := frame.VerifyASCII(raw)
	if err != nil {
		t.Fatalf("VerifyASCII: %v", err)
	}
	c, ok, err := FromFrame(frame.Frame{Kind: frame.KindASCII, Raw: raw, Body: body}, t0)
	if !ok || err != nil || c.Tag != "VNYPR" {
		t.Fatalf("ascii: ok=%v err=%v tag=%q", ok, err, c.Tag)
	}

	if _, ok, _ := FromFrame(frame.Frame{Kind: frame.KindASCII, Body: "VNRRG,01,VN-100"}, t0); ok {
		t.Fatalf("response decoded as a measurement")
	}

	h := binout.Config{Common: binout.CommonYpr}.Header()
	payload, err := AppendPayload(nil, h, NewBuilder(t0).Floats(fComYpr, 4, 5, 6).Build())
	if err != nil {
		t.Fatalf("AppendPayload: %v", err)
	}
	c, ok, err = FromFrame(frame.Frame{Kind: frame.KindBinary, Header: h, Payload: payload}, t0)
	if !ok || err != nil {
		t.Fatalf("binary: ok=%v err=%v", ok, err)
	}
	if ypr, _ := c.YawPitchRoll(); ypr != (Vec3{4, 5, 6}) {
		t.Fatalf("ypr=%v", ypr)
	}
}
