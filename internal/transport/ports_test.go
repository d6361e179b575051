package transport

import (
	"os"
	"path/filepath"
	"testing"
)

func TestSortPorts_LikelyFirst(t *testing.T) {
	ports := []PortInfo{
		{Name: "/dev/ttyS0"},
		{Name: "/dev/ttyUSB1", IsUSB: true, VID: "0403", PID: "6001"},
		{Name: "/dev/ttyACM0", IsUSB: true, VID: "1546"},
		{Name: "/dev/ttyUSB0", IsUSB: true, VID: "0403"},
	}
	sortPorts(ports)
	want := []string{"/dev/ttyUSB0", "/dev/ttyUSB1", "/dev/ttyACM0", "/dev/ttyS0"}
	for i, p := range ports {
		if p.Name != want[i] {
			t.Fatalf("order=%v", ports)
		}
	}
}

func TestListByGlob(t *testing.T) {
	dir := t.TempDir()
	for _, n := range []string{"ttyUSB1", "ttyUSB0", "other"} {
		if err := os.WriteFile(filepath.Join(dir, n), nil, 0o600); err != nil {
			t.Fatalf("WriteFile: %v", err)
		}
	}
	pat := filepath.Join(dir, "ttyUSB*")
	got := listByGlob(pat, pat)
	if len(got) != 2 || filepath.Base(got[0]) != "ttyUSB0" {
		t.Fatalf("got %v", got)
	}
}

func TestOpen_MissingDevice(t *testing.T) {
	if _, err := Open(filepath.Join(t.TempDir(), "nope"), 115200); err == nil {
		t.Fatalf("expected error")
	}
}
