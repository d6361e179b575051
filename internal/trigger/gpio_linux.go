//go:build linux

package trigger

import (
	"fmt"

	"github.com/warthog618/go-gpiocdev"
)

type gpiodLine struct {
	chip *gpiocdev.Chip
	line *gpiocdev.Line
}

// Open requests cfg.Offset on cfg.Chip (e.g. "gpiochip0") as an output,
// initially low.
func Open(cfg Config) (Line, error) {
	chipName := cfg.Chip
	if chipName == "" {
		chipName = "gpiochip0"
	}
	chip, err := gpiocdev.NewChip(chipName)
	if err != nil {
		return nil, fmt.Errorf("trigger: open %s: %w", chipName, err)
	}
	line, err := chip.RequestLine(cfg.Offset, gpiocdev.AsOutput(0), gpiocdev.WithConsumer("vnsensor-trigger"))
	if err != nil {
		_ = chip.Close()
		return nil, fmt.Errorf("trigger: request %s:%d: %w", chipName, cfg.Offset, err)
	}
	return &gpiodLine{chip: chip, line: line}, nil
}

func (g *gpiodLine) SetValue(v int) error { return g.line.SetValue(v) }

func (g *gpiodLine) Close() error {
	if g.line == nil {
		return nil
	}
	_ = g.line.SetValue(0)
	err := g.line.Close()
	g.line = nil
	_ = g.chip.Close()
	return err
}
