package config

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"
	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/physic"

	"pwmcode-go/bus"
	"pwmcode-go/services/hal"
	"pwmcode-go/types"
)

const (
	serviceName = "config"

	DefaultChip      = hal.DefaultChip
	DefaultFrequency = 50 * physic.KiloHertz
	DefaultDriver    = "auto"
	DefaultLogLevel  = "info"
)

// Config is the on-disk description of one board.
type Config struct {
	Chip     string   `yaml:"chip"`
	LogLevel string   `yaml:"log_level"`
	Outputs  []Output `yaml:"outputs"`
}

// Output describes one PWM output. Pointer fields are optional; nil means
// "let the allocator choose".
type Output struct {
	ID            string   `yaml:"id"`
	Pin           *int     `yaml:"pin"`
	Frequency     Freq     `yaml:"frequency"`
	Driver        string   `yaml:"driver"`
	Channel       *int     `yaml:"channel"`
	Unit          *int     `yaml:"unit"`
	Timer         *int     `yaml:"timer"`
	Operator      string   `yaml:"operator"`
	Inverted      bool     `yaml:"inverted"`
	MinPower      float32  `yaml:"min_power"`
	MaxPower      *float32 `yaml:"max_power"`
	ZeroMeansZero bool     `yaml:"zero_means_zero"`
	Initial       Level    `yaml:"initial"`
	Domain        string   `yaml:"domain"`
	Name          string   `yaml:"name"`
}

// Freq accepts "25kHz", "1MHz" or a bare number of hertz.
type Freq physic.Frequency

func (f *Freq) UnmarshalYAML(n *yaml.Node) error {
	s := strings.TrimSpace(n.Value)
	if n.Tag == "!!int" || n.Tag == "!!float" {
		s += "Hz"
	}
	var v physic.Frequency
	if err := v.Set(s); err != nil {
		return fmt.Errorf("line %d: frequency %q: %w", n.Line, n.Value, err)
	}
	*f = Freq(v)
	return nil
}

// Level accepts a fraction (0.25) or a percentage ("25%").
type Level float32

func (l *Level) UnmarshalYAML(n *yaml.Node) error {
	if n.Tag == "!!int" || n.Tag == "!!float" {
		v, err := strconv.ParseFloat(n.Value, 32)
		if err != nil {
			return fmt.Errorf("line %d: level %q: %w", n.Line, n.Value, err)
		}
		*l = Level(v)
		return nil
	}
	d, err := gpio.ParseDuty(strings.TrimSpace(n.Value))
	if err != nil {
		return fmt.Errorf("line %d: level %q: %w", n.Line, n.Value, err)
	}
	*l = Level(float32(d) / float32(gpio.DutyMax))
	return nil
}

// Load reads and validates a YAML config file.
func Load(path string) (Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return Config{}, err
	}
	return Parse(b)
}

// Parse decodes YAML, fills defaults and validates the result.
func Parse(b []byte) (Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return Config{}, err
	}

	if cfg.Chip == "" {
		cfg.Chip = DefaultChip
	}
	cfg.Chip = strings.ToLower(cfg.Chip)
	if !knownChip(cfg.Chip) {
		return Config{}, fmt.Errorf("chip %q is not supported (have %s)", cfg.Chip, strings.Join(hal.Chips(), ", "))
	}
	if cfg.LogLevel == "" {
		cfg.LogLevel = DefaultLogLevel
	}
	if _, err := logrus.ParseLevel(cfg.LogLevel); err != nil {
		return Config{}, fmt.Errorf("log_level: %w", err)
	}

	seen := make(map[string]bool, len(cfg.Outputs))
	pins := make(map[int]string, len(cfg.Outputs))
	for i := range cfg.Outputs {
		o := &cfg.Outputs[i]
		if o.ID == "" {
			return Config{}, fmt.Errorf("outputs[%d].id is required", i)
		}
		if seen[o.ID] {
			return Config{}, fmt.Errorf("outputs[%d].id %q is duplicated", i, o.ID)
		}
		seen[o.ID] = true

		if o.Pin == nil {
			return Config{}, fmt.Errorf("outputs.%s.pin is required", o.ID)
		}
		if other, dup := pins[*o.Pin]; dup {
			return Config{}, fmt.Errorf("outputs.%s.pin %d is already used by %s", o.ID, *o.Pin, other)
		}
		pins[*o.Pin] = o.ID

		if o.Frequency == 0 {
			o.Frequency = Freq(DefaultFrequency)
		}
		if o.Frequency < 0 {
			return Config{}, fmt.Errorf("outputs.%s.frequency must be > 0", o.ID)
		}
		if o.Driver == "" {
			o.Driver = DefaultDriver
		}
		switch strings.ToLower(o.Driver) {
		case "auto", "ledc", "mcpwm":
			o.Driver = strings.ToLower(o.Driver)
		default:
			return Config{}, fmt.Errorf("outputs.%s.driver %q must be auto, ledc or mcpwm", o.ID, o.Driver)
		}
		if o.Driver == "ledc" && (o.Unit != nil || o.Timer != nil || o.Operator != "") {
			return Config{}, fmt.Errorf("outputs.%s: unit/timer/operator cannot be used with driver ledc", o.ID)
		}
		if o.Driver == "mcpwm" && o.Channel != nil {
			return Config{}, fmt.Errorf("outputs.%s: channel cannot be used with driver mcpwm", o.ID)
		}
		if o.MaxPower == nil {
			one := float32(1)
			o.MaxPower = &one
		}
		if o.MinPower < 0 || *o.MaxPower > 1 || o.MinPower > *o.MaxPower {
			return Config{}, fmt.Errorf("outputs.%s: need 0 <= min_power <= max_power <= 1", o.ID)
		}
		if o.Initial < 0 || o.Initial > 1 {
			return Config{}, fmt.Errorf("outputs.%s.initial must be within [0, 1]", o.ID)
		}
	}
	return cfg, nil
}

func knownChip(name string) bool {
	for _, c := range hal.Chips() {
		if c == name {
			return true
		}
	}
	return false
}

// LogrusLevel returns the parsed log level. Parse has already validated it.
func (c Config) LogrusLevel() logrus.Level {
	lvl, err := logrus.ParseLevel(c.LogLevel)
	if err != nil {
		return logrus.InfoLevel
	}
	return lvl
}

// HALConfig converts the outputs into HAL device entries.
func (c Config) HALConfig() types.HALConfig {
	out := types.HALConfig{Devices: make([]types.HALDevice, 0, len(c.Outputs))}
	for _, o := range c.Outputs {
		p := types.PWMOutParams{
			Pin:           *o.Pin,
			Frequency:     physic.Frequency(o.Frequency),
			Driver:        o.Driver,
			Channel:       o.Channel,
			Unit:          o.Unit,
			Timer:         o.Timer,
			Operator:      o.Operator,
			Inverted:      o.Inverted,
			MinPower:      o.MinPower,
			ZeroMeansZero: o.ZeroMeansZero,
			Initial:       float32(o.Initial),
			Domain:        o.Domain,
			Name:          o.Name,
		}
		if o.MaxPower != nil {
			p.MaxPower = *o.MaxPower
		}
		out.Devices = append(out.Devices, types.HALDevice{ID: o.ID, Type: "pwm_out", Params: p})
	}
	return out
}

// -----------------------------------------------------------------------------
// Config Service
// -----------------------------------------------------------------------------

// ConfigService publishes a parsed config as the retained HAL config.
type ConfigService struct {
	Name string
	cfg  Config
}

func NewConfigService(cfg Config) *ConfigService {
	return &ConfigService{Name: serviceName, cfg: cfg}
}

// Publish sends the HAL config retained, so a HAL started later still sees it.
func (s *ConfigService) Publish(conn *bus.Connection) {
	conn.Publish(conn.NewMessage(hal.TopicConfig(), s.cfg.HALConfig(), true))
}

// Start publishes once ctx is live. It never blocks.
func (s *ConfigService) Start(ctx context.Context, conn *bus.Connection) {
	go func() {
		if ctx.Err() != nil {
			return
		}
		s.Publish(conn)
	}()
}
