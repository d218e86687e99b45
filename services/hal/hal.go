// services/hal/hal.go
package hal

import (
	"context"

	"pwmcode-go/bus"
	"pwmcode-go/services/hal/internal/core"
	"pwmcode-go/services/hal/internal/platform/sim"
	"pwmcode-go/services/hal/internal/provider"
	"pwmcode-go/services/hal/internal/provider/setups"
	"pwmcode-go/types"

	// Register device builders.
	_ "pwmcode-go/services/hal/devices/pwm_out"
)

// Peripheral binding and logging types, re-exported for callers outside
// services/hal.
type (
	Logger         = core.Logger
	PrintLogger    = core.PrintLogger
	LEDCDriver     = core.LEDCDriver
	MCPWMDriver    = core.MCPWMDriver
	LEDCConfig     = core.LEDCConfig
	MCPWMConfig    = core.MCPWMConfig
	Handle         = core.Handle
	SimPeripherals = sim.Peripherals
)

// DefaultChip is used when Config.Chip is empty.
const DefaultChip = "esp32"

type Config struct {
	Chip  string
	LEDC  LEDCDriver  // nil => simulated
	MCPWM MCPWMDriver // nil => simulated (chips with MCPWM only)
	Log   Logger      // nil => discard
}

// HAL owns the resource registry for one chip and runs the device loop.
type HAL struct {
	chip provider.Chip
	reg  *provider.Registry
	sim  *sim.Peripherals
	loop *core.HAL
}

// New builds a HAL for cfg.Chip. It does not start any goroutine.
func New(conn *bus.Connection, cfg Config) (*HAL, error) {
	name := cfg.Chip
	if name == "" {
		name = DefaultChip
	}
	chip, err := provider.LookupChip(name)
	if err != nil {
		return nil, err
	}

	h := &HAL{chip: chip, reg: provider.NewRegistry(chip)}
	res := core.Resources{Reg: h.reg, LEDC: cfg.LEDC, MCPWM: cfg.MCPWM, Log: cfg.Log}
	if res.LEDC == nil || (chip.HasMCPWM() && res.MCPWM == nil) {
		h.sim = sim.New()
	}
	if res.LEDC == nil {
		res.LEDC = h.sim
	}
	if !chip.HasMCPWM() {
		res.MCPWM = nil
	} else if res.MCPWM == nil {
		res.MCPWM = h.sim
	}
	h.loop = core.NewHAL(conn, res)
	return h, nil
}

// Run blocks until ctx is cancelled. Devices are torn down on exit.
func (h *HAL) Run(ctx context.Context) { h.loop.Run(ctx) }

func (h *HAL) Chip() string { return h.chip.Name }

// Usage snapshots the resource registry.
func (h *HAL) Usage() types.ResourceUsage { return h.reg.Usage() }

// Sim returns the simulated peripherals, or nil when real bindings were
// supplied for every block.
func (h *HAL) Sim() *SimPeripherals { return h.sim }

// Chips lists the supported chip names.
func Chips() []string { return provider.ChipNames() }

// Board returns a built-in board's chip and device configuration.
func Board(name string) (chip string, cfg types.HALConfig, ok bool) {
	b, ok := setups.Lookup(name)
	return b.Chip, b.Setup, ok
}

// Boards lists the built-in boards.
func Boards() []string { return setups.Names() }

// ---- Topics ----

func TopicConfig() bus.Topic    { return core.TopicConfigHAL() }
func TopicState() bus.Topic     { return core.TopicHALState() }
func TopicResources() bus.Topic { return core.TopicResources() }

func ControlTopic(domain, kind, name, verb string) bus.Topic {
	return core.CapCtrl(domain, kind, name, verb)
}
func InfoTopic(domain, kind, name string) bus.Topic   { return core.CapInfo(domain, kind, name) }
func ValueTopic(domain, kind, name string) bus.Topic  { return core.CapValue(domain, kind, name) }
func StatusTopic(domain, kind, name string) bus.Topic { return core.CapStatus(domain, kind, name) }
