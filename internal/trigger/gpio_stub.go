//go:build !linux

package trigger

import "fmt"

func Open(cfg Config) (Line, error) {
	return nil, fmt.Errorf("trigger: gpio unsupported on this platform")
}
