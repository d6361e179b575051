package frame

import "testing"

func TestChecksum16_KnownVectors(t *testing.T) {
	cases := []struct {
		in   string
		want uint16
	}{
		{"123456789", 0x31C3},
		{"VNRRG,01", 0xE15F},
		{"VNYPR,+010.071,-000.278,-001.026", 0xA566},
	}
	for _, tc := range cases {
		if got := Checksum16([]byte(tc.in)); got != tc.want {
			t.Fatalf("Checksum16(%q)=0x%04X want 0x%04X", tc.in, got, tc.want)
		}
	}
}

func TestChecksum16_ZeroOverTrailingCRC(t *testing.T) {
	data := []byte{0x01, 0x08, 0x00, 0x00, 0x00, 0x80, 0x3F}
	crc := Checksum16(data)
	data = append(data, byte(crc>>8), byte(crc))
	if got := Checksum16(data); got != 0 {
		t.Fatalf("residue=0x%04X want 0", got)
	}
}

func TestChecksum8(t *testing.T) {
	if got := Checksum8([]byte("VNRRG,01")); got != 0x72 {
		t.Fatalf("Checksum8=0x%02X want 0x72", got)
	}
}

func TestAppendASCII_VerifyASCII(t *testing.T) {
	for _, cs := range []Checksum{ChecksumCRC16, Checksum8Bit} {
		raw := AppendASCII(nil, "VNRRG,01", cs)
		body, err := VerifyASCII(raw)
		if err != nil {
			t.Fatalf("VerifyASCII(%q): %v", raw, err)
		}
		if body != "VNRRG,01" {
			t.Fatalf("body=%q", body)
		}
	}
	if got := string(AppendASCII(nil, "VNRRG,01", Checksum8Bit)); got != "$VNRRG,01*72\r\n" {
		t.Fatalf("frame=%q", got)
	}
	if got := string(AppendASCII(nil, "VNRRG,01", ChecksumCRC16)); got != "$VNRRG,01*E15F\r\n" {
		t.Fatalf("frame=%q", got)
	}
}

func TestVerifyASCII_Rejects(t *testing.T) {
	cases := []string{
		"VNRRG,01*72\r\n",
		"$VNRRG,01\r\n",
		"$VNRRG,01*73\r\n",
		"$VNRRG,01*E15E\r\n",
		"$VNRRG,01*E15\r\n",
	}
	for _, c := range cases {
		if _, err := VerifyASCII([]byte(c)); err == nil {
			t.Fatalf("VerifyASCII(%q): expected error", c)
		}
	}
}

func TestTag(t *testing.T) {
	if got := Tag("VNYPR,1,2,3"); got != "VNYPR" {
		t.Fatalf("Tag=%q", got)
	}
	if got := Tag("VNWNV"); got != "VNWNV" {
		t.Fatalf("Tag=%q", got)
	}
}
