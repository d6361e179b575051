package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"vnsensor/internal/binout"
	"vnsensor/internal/register"
)

type Config struct {
	Serial  SerialConfig  `yaml:"serial"`
	Command CommandConfig `yaml:"command"`
	Queue   QueueConfig   `yaml:"queue"`
	Output  OutputConfig  `yaml:"output"`
	Export  ExportConfig  `yaml:"export"`
	Web     WebConfig     `yaml:"web"`
	Metrics MetricsConfig `yaml:"metrics"`
	Trigger TriggerConfig `yaml:"trigger"`
	Bias    BiasConfig    `yaml:"bias"`
	Log     LogConfig     `yaml:"log"`
	Sim     SimConfig     `yaml:"sim"`
}

// SerialConfig selects the port. An empty port means scan every likely
// port; a zero baud means try each supported baud.
type SerialConfig struct {
	Port string `yaml:"port"`
	Baud int    `yaml:"baud"`
}

type CommandConfig struct {
	Timeout time.Duration `yaml:"timeout"`
	Retries int           `yaml:"retries"`
}

type QueueConfig struct {
	Capacity int `yaml:"capacity"`
}

type OutputConfig struct {
	// Configure writes the output registers after connecting. When false
	// the device keeps whatever it has saved.
	Configure bool           `yaml:"configure"`
	AsyncType string         `yaml:"async_type"`
	AsyncFreq uint32         `yaml:"async_freq"`
	Binary    []BinaryOutput `yaml:"binary"`

	// Ador is AsyncType parsed by Load.
	Ador register.Ador `yaml:"-"`
}

type BinaryOutput struct {
	Slot        int      `yaml:"slot"`
	RateDivisor uint16   `yaml:"rate_divisor"`
	AsyncMode   []string `yaml:"async_mode"`
	Common      []string `yaml:"common"`
	Time        []string `yaml:"time"`
	IMU         []string `yaml:"imu"`
	GNSS        []string `yaml:"gnss"`
	Attitude    []string `yaml:"attitude"`
	INS         []string `yaml:"ins"`
	GNSS2       []string `yaml:"gnss2"`
	GNSS3       []string `yaml:"gnss3"`

	// Register is the parsed register value, filled by Load.
	Register binout.Config `yaml:"-"`
}

type ExportConfig struct {
	CSVDir string      `yaml:"csv_dir"`
	RawLog string      `yaml:"raw_log"`
	MQTT   MQTTConfig  `yaml:"mqtt"`
	Redis  RedisConfig `yaml:"redis"`
}

type MQTTConfig struct {
	Broker   string `yaml:"broker"`
	ClientID string `yaml:"client_id"`
	Topic    string `yaml:"topic"`
	QoS      byte   `yaml:"qos"`
}

type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	Channel  string `yaml:"channel"`
	List     string `yaml:"list"`
	MaxLen   int64  `yaml:"max_len"`
}

type WebConfig struct {
	Listen string `yaml:"listen"`
}

type MetricsConfig struct {
	Enable bool `yaml:"enable"`
}

type TriggerConfig struct {
	Enable     bool          `yaml:"enable"`
	Chip       string        `yaml:"chip"`
	Line       int           `yaml:"line"`
	PulseWidth time.Duration `yaml:"pulse_width"`
	Period     time.Duration `yaml:"period"`
}

type BiasConfig struct {
	Enable   bool          `yaml:"enable"`
	Window   int           `yaml:"window"`
	MaxStd   float64       `yaml:"max_std"`
	Cooldown time.Duration `yaml:"cooldown"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// SimConfig runs the daemon against the built-in simulated device instead
// of a serial port.
type SimConfig struct {
	Enable   bool   `yaml:"enable"`
	Model    string `yaml:"model"`
	Baud     int    `yaml:"baud"`
	Scenario string `yaml:"scenario"`
}

func Load(path string) (Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return Config{}, err
	}

	var cfg Config
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return Config{}, err
	}

	if cfg.Serial.Baud != 0 && !register.Baud(cfg.Serial.Baud).Valid() {
		return Config{}, fmt.Errorf("serial.baud %d is not supported", cfg.Serial.Baud)
	}

	if cfg.Command.Timeout <= 0 {
		cfg.Command.Timeout = 500 * time.Millisecond
	}
	if cfg.Command.Retries < 0 {
		return Config{}, fmt.Errorf("command.retries must be >= 0")
	}
	if cfg.Command.Retries == 0 {
		cfg.Command.Retries = 3
	}
	if cfg.Queue.Capacity <= 0 {
		cfg.Queue.Capacity = 1000
	}

	if err := cfg.Output.parse(); err != nil {
		return Config{}, err
	}

	if cfg.Export.MQTT.Broker != "" {
		if cfg.Export.MQTT.QoS > 2 {
			return Config{}, fmt.Errorf("export.mqtt.qos must be 0, 1 or 2")
		}
		if cfg.Export.MQTT.ClientID == "" {
			cfg.Export.MQTT.ClientID = "vnsensor"
		}
		if cfg.Export.MQTT.Topic == "" {
			cfg.Export.MQTT.Topic = "vnsensor"
		}
	}
	if cfg.Export.Redis.Addr != "" {
		if cfg.Export.Redis.Channel == "" && cfg.Export.Redis.List == "" {
			return Config{}, fmt.Errorf("export.redis needs a channel or a list")
		}
		if cfg.Export.Redis.MaxLen < 0 {
			return Config{}, fmt.Errorf("export.redis.max_len must be >= 0")
		}
	}

	if cfg.Trigger.Enable {
		if cfg.Trigger.Chip == "" {
			cfg.Trigger.Chip = "gpiochip0"
		}
		if cfg.Trigger.Line < 0 {
			return Config{}, fmt.Errorf("trigger.line must be >= 0")
		}
		if cfg.Trigger.Period <= 0 {
			return Config{}, fmt.Errorf("trigger.period is required when trigger.enable is true")
		}
		if cfg.Trigger.PulseWidth <= 0 {
			cfg.Trigger.PulseWidth = time.Millisecond
		}
		if cfg.Trigger.PulseWidth >= cfg.Trigger.Period {
			return Config{}, fmt.Errorf("trigger.pulse_width must be shorter than trigger.period")
		}
	}

	// Bias defaults (safe even if disabled).
	if cfg.Bias.Window <= 0 {
		cfg.Bias.Window = 400
	}
	if cfg.Bias.MaxStd <= 0 {
		cfg.Bias.MaxStd = 0.002
	}
	if cfg.Bias.Cooldown <= 0 {
		cfg.Bias.Cooldown = time.Minute
	}

	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	switch cfg.Log.Format {
	case "":
		cfg.Log.Format = "text"
	case "text", "json":
	default:
		return Config{}, fmt.Errorf("log.format must be 'text' or 'json'")
	}

	if cfg.Sim.Enable {
		if cfg.Sim.Model == "" {
			cfg.Sim.Model = "VN-200"
		}
		if cfg.Sim.Baud == 0 {
			cfg.Sim.Baud = 115200
		}
		if !register.Baud(cfg.Sim.Baud).Valid() {
			return Config{}, fmt.Errorf("sim.baud %d is not supported", cfg.Sim.Baud)
		}
	}

	return cfg, nil
}

func (o *OutputConfig) parse() error {
	if o.AsyncType != "" {
		a, err := register.ParseAdor(o.AsyncType)
		if err != nil {
			return fmt.Errorf("output.async_type: %w", err)
		}
		o.Ador = a
	}
	if !validAdof(o.AsyncFreq) {
		return fmt.Errorf("output.async_freq %d is not supported", o.AsyncFreq)
	}
	seen := make(map[int]bool, len(o.Binary))
	for i := range o.Binary {
		bo := &o.Binary[i]
		if bo.Slot < 1 || bo.Slot > 3 {
			return fmt.Errorf("output.binary[%d].slot must be 1, 2 or 3", i)
		}
		if seen[bo.Slot] {
			return fmt.Errorf("output.binary slot %d is configured twice", bo.Slot)
		}
		seen[bo.Slot] = true
		if err := bo.parse(); err != nil {
			return fmt.Errorf("output.binary[%d]: %w", i, err)
		}
	}
	return nil
}

func (b *BinaryOutput) parse() error {
	if b.RateDivisor == 0 {
		b.RateDivisor = 1
	}
	c := binout.Config{RateDivisor: b.RateDivisor}
	modes := b.AsyncMode
	if len(modes) == 0 {
		modes = []string{"serial1"}
	}
	for _, m := range modes {
		switch strings.ToLower(strings.TrimSpace(m)) {
		case "none":
		case "serial1":
			c.AsyncMode |= binout.AsyncSerial1
		case "serial2":
			c.AsyncMode |= binout.AsyncSerial2
		case "spi":
			c.AsyncMode |= binout.AsyncSPI
		default:
			return fmt.Errorf("unknown async_mode %q", m)
		}
	}
	lists := [binout.NumGroups][]string{b.Common, b.Time, b.IMU, b.GNSS, b.Attitude, b.INS, b.GNSS2, b.GNSS3}
	for i, g := range binout.Groups {
		m, err := binout.ParseMask(g, lists[i])
		if err != nil {
			return err
		}
		c.SetMask(g, m)
	}
	if c.Header().Empty() {
		return fmt.Errorf("slot %d selects no fields", b.Slot)
	}
	b.Register = c
	return nil
}

func validAdof(hz uint32) bool {
	for _, r := range register.AdofRates {
		if uint64(hz) == r {
			return true
		}
	}
	return false
}
