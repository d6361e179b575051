package sensor

import (
	"context"
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"

	"vnsensor/internal/command"
	"vnsensor/internal/register"
)

// RegisterDump is the YAML document ScanConfig produces and ApplyConfig
// consumes.
type RegisterDump struct {
	Model     string          `yaml:"model,omitempty"`
	Serial    uint32          `yaml:"serial,omitempty"`
	Registers []RegisterValue `yaml:"registers"`
}

type RegisterValue struct {
	ID    uint8  `yaml:"id"`
	Name  string `yaml:"name"`
	Value string `yaml:"value"`
}

// ScanConfig reads every writable register the device accepts and returns
// them as YAML. Registers the device rejects are left out.
func (s *Sensor) ScanConfig(ctx context.Context) ([]byte, error) {
	var dump RegisterDump
	var model register.Model
	if err := s.ReadRegister(ctx, &model); err != nil {
		return nil, fmt.Errorf("scan: %w", err)
	}
	dump.Model = model.Model
	var serial register.Serial
	if err := s.ReadRegister(ctx, &serial); err == nil {
		dump.Serial = serial.SerialNum
	}

	for _, id := range register.IDs() {
		r, _ := register.New(id)
		if _, ok := r.(register.Writable); !ok {
			continue
		}
		if err := s.ReadRegister(ctx, r); err != nil {
			var de *command.DeviceError
			if errors.As(err, &de) {
				s.log.WithFields(logrus.Fields{"register": r.Name(), "code": de.Code.String()}).Debug("scan skipped register")
				continue
			}
			return nil, fmt.Errorf("scan: %w", err)
		}
		v, err := register.EncodeASCII(r)
		if err != nil {
			return nil, fmt.Errorf("scan %s: %w", r.Name(), err)
		}
		dump.Registers = append(dump.Registers, RegisterValue{ID: id, Name: r.Name(), Value: v})
	}
	return yaml.Marshal(&dump)
}

// ApplyConfig writes each register in a ScanConfig document, then saves
// with WriteSettings. The baud rate register is skipped; change it with
// ChangeBaudRate.
func (s *Sensor) ApplyConfig(ctx context.Context, doc []byte) error {
	var dump RegisterDump
	if err := yaml.Unmarshal(doc, &dump); err != nil {
		return fmt.Errorf("parse register dump: %w", err)
	}
	regs := make([]register.Writable, 0, len(dump.Registers))
	for _, rv := range dump.Registers {
		if rv.ID == register.IDBaudRate {
			continue
		}
		r, err := register.DecodeASCII(rv.ID, rv.Value)
		if err != nil {
			return fmt.Errorf("register %d (%s): %w", rv.ID, rv.Name, err)
		}
		w, ok := r.(register.Writable)
		if !ok {
			return fmt.Errorf("register %d (%s) is read-only", rv.ID, r.Name())
		}
		regs = append(regs, w)
	}
	for _, w := range regs {
		if err := s.WriteRegister(ctx, w); err != nil {
			return fmt.Errorf("apply %s: %w", w.Name(), err)
		}
	}
	return s.WriteSettings(ctx)
}
