package transport

import (
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strings"

	"go.bug.st/serial/enumerator"
)

// PortInfo describes one serial device found on the host.
type PortInfo struct {
	Name    string `json:"name"`
	IsUSB   bool   `json:"is_usb"`
	VID     string `json:"vid,omitempty"`
	PID     string `json:"pid,omitempty"`
	Serial  string `json:"serial,omitempty"`
	Product string `json:"product,omitempty"`
}

// FTDI bridges are what the sensor's USB cable enumerates as.
const ftdiVID = "0403"

// Likely reports whether the port looks like the sensor's USB adapter.
func (p PortInfo) Likely() bool {
	return p.IsUSB && strings.EqualFold(p.VID, ftdiVID)
}

// ListPorts returns the serial ports of the host sorted by name, with
// likely sensor adapters first.
func ListPorts() []PortInfo {
	var out []PortInfo
	if ports, err := enumerator.GetDetailedPortsList(); err == nil && len(ports) > 0 {
		seen := make(map[string]struct{}, len(ports))
		for _, p := range ports {
			if p == nil || p.Name == "" {
				continue
			}
			if _, ok := seen[p.Name]; ok {
				continue
			}
			seen[p.Name] = struct{}{}
			out = append(out, PortInfo{
				Name:    p.Name,
				IsUSB:   p.IsUSB,
				VID:     p.VID,
				PID:     p.PID,
				Serial:  p.SerialNumber,
				Product: p.Product,
			})
		}
	} else {
		for _, name := range listByGlob(globPatterns()...) {
			out = append(out, PortInfo{Name: name})
		}
	}
	sortPorts(out)
	return out
}

func sortPorts(ports []PortInfo) {
	sort.SliceStable(ports, func(i, j int) bool {
		li, lj := ports[i].Likely(), ports[j].Likely()
		if li != lj {
			return li
		}
		return ports[i].Name < ports[j].Name
	})
}

func globPatterns() []string {
	switch runtime.GOOS {
	case "windows":
		return nil
	case "darwin":
		return []string{"/dev/cu.usbserial*", "/dev/cu.*"}
	}
	return []string{"/dev/ttyUSB*", "/dev/ttyACM*", "/dev/ttyS*"}
}

func listByGlob(patterns ...string) []string {
	seen := map[string]struct{}{}
	var out []string
	for _, pat := range patterns {
		matches, _ := filepath.Glob(pat)
		for _, m := range matches {
			if _, err := os.Stat(m); err != nil {
				continue
			}
			if _, ok := seen[m]; ok {
				continue
			}
			seen[m] = struct{}{}
			out = append(out, m)
		}
	}
	sort.Strings(out)
	return out
}
