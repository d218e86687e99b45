// Package sim provides host-side LEDC and MCPWM bindings that model duty
// quantisation and init-time failures without hardware.
package sim

import (
	"errors"
	"sync"

	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/physic"

	"pwmcode-go/services/hal/internal/core"
)

const (
	// LEDCSourceClock is the APB clock feeding the low-speed LEDC timers.
	LEDCSourceClock = 80 * physic.MegaHertz
	// MCPWMTimerClock is the default MCPWM timer resolution.
	MCPWMTimerClock = 10 * physic.MegaHertz
)

var (
	ErrInvalidArg    = errors.New("esp_err_invalid_arg")
	ErrInvalidState  = errors.New("esp_err_invalid_state")
	ErrDeinitialised = errors.New("output deinitialised")
)

// LEDCResolutionBits picks the duty resolution for freq, trading resolution
// for reachable frequency.
func LEDCResolutionBits(freq physic.Frequency) uint8 {
	switch {
	case freq >= 40*physic.KiloHertz:
		return 10
	case freq >= 20*physic.KiloHertz:
		return 11
	case freq >= 10*physic.KiloHertz:
		return 12
	case freq >= 5*physic.KiloHertz:
		return 13
	default:
		return 14
	}
}

// Peripherals simulates both PWM blocks of one chip.
type Peripherals struct {
	mu        sync.Mutex
	outputs   map[int]*Output // by pin, live handles only
	ledcFail  map[int]error
	mcpwmFail map[core.MotorSlot]error
	ledcInits int
	mcpInits  int
}

var (
	_ core.LEDCDriver  = (*Peripherals)(nil)
	_ core.MCPWMDriver = (*Peripherals)(nil)
)

func New() *Peripherals {
	return &Peripherals{
		outputs:   make(map[int]*Output),
		ledcFail:  make(map[int]error),
		mcpwmFail: make(map[core.MotorSlot]error),
	}
}

// FailLEDC makes the next inits on channel ch fail with err (nil clears).
func (p *Peripherals) FailLEDC(ch int, err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err == nil {
		delete(p.ledcFail, ch)
		return
	}
	p.ledcFail[ch] = err
}

// FailMCPWM makes inits on slot s fail with err (nil clears).
func (p *Peripherals) FailMCPWM(s core.MotorSlot, err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err == nil {
		delete(p.mcpwmFail, s)
		return
	}
	p.mcpwmFail[s] = err
}

func (p *Peripherals) InitLEDC(cfg core.LEDCConfig) (core.Handle, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.ledcInits++
	if err := p.ledcFail[cfg.Channel]; err != nil {
		return nil, err
	}
	bits := LEDCResolutionBits(cfg.Freq)
	if cfg.Freq <= 0 || cfg.Freq*physic.Frequency(uint64(1)<<bits) > LEDCSourceClock {
		return nil, ErrInvalidArg
	}
	if _, busy := p.outputs[cfg.Pin]; busy {
		return nil, ErrInvalidState
	}
	o := &Output{
		owner:   p,
		Pin:     cfg.Pin,
		Backend: core.BackendLEDC,
		Freq:    cfg.Freq,
		Channel: cfg.Channel,
		Timer:   cfg.Timer,
		resBits: bits,
	}
	p.outputs[cfg.Pin] = o
	return o, nil
}

func (p *Peripherals) InitMCPWM(cfg core.MCPWMConfig) (core.Handle, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.mcpInits++
	slot := core.MotorSlot{Unit: cfg.Unit, Timer: cfg.Timer, Operator: cfg.Operator}
	if err := p.mcpwmFail[slot]; err != nil {
		return nil, err
	}
	// At least two timer ticks per period.
	if cfg.Freq <= 0 || cfg.Freq*2 > MCPWMTimerClock {
		return nil, ErrInvalidArg
	}
	if _, busy := p.outputs[cfg.Pin]; busy {
		return nil, ErrInvalidState
	}
	o := &Output{
		owner:   p,
		Pin:     cfg.Pin,
		Backend: core.BackendMCPWM,
		Freq:    cfg.Freq,
		Slot:    slot,
	}
	p.outputs[cfg.Pin] = o
	return o, nil
}

// Output returns the live handle driving pin, if any.
func (p *Peripherals) Output(pin int) (*Output, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	o, ok := p.outputs[pin]
	return o, ok
}

// Inits reports how many init calls each block has seen (failed ones included).
func (p *Peripherals) Inits() (ledc, mcpwm int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.ledcInits, p.mcpInits
}

func (p *Peripherals) drop(o *Output) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.outputs[o.Pin] == o {
		delete(p.outputs, o.Pin)
	}
}

// Output is one simulated peripheral output.
type Output struct {
	owner *Peripherals

	Pin     int
	Backend core.Backend
	Freq    physic.Frequency
	Channel int            // LEDC
	Timer   int            // LEDC
	Slot    core.MotorSlot // MCPWM

	resBits uint8

	mu      sync.Mutex
	duty    gpio.Duty
	raw     uint32  // LEDC compare value
	percent float32 // MCPWM duty in percent
	writes  int
	closed  bool
}

func (o *Output) ResolutionBits() uint8 { return o.resBits }

func (o *Output) SetDuty(d gpio.Duty) error {
	if d < 0 {
		d = 0
	}
	if d > gpio.DutyMax {
		d = gpio.DutyMax
	}
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.closed {
		return ErrDeinitialised
	}
	o.duty = d
	o.writes++
	switch o.Backend {
	case core.BackendLEDC:
		max := uint64(1)<<o.resBits - 1
		o.raw = uint32(uint64(d) * max / uint64(gpio.DutyMax))
	case core.BackendMCPWM:
		o.percent = float32(d) * 100 / float32(gpio.DutyMax)
	}
	return nil
}

func (o *Output) Deinit() error {
	o.mu.Lock()
	if o.closed {
		o.mu.Unlock()
		return ErrInvalidState
	}
	o.closed = true
	o.duty, o.raw, o.percent = 0, 0, 0
	o.mu.Unlock()
	o.owner.drop(o)
	return nil
}

// Duty returns the last duty written.
func (o *Output) Duty() gpio.Duty {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.duty
}

// Raw returns the LEDC compare value for the last duty.
func (o *Output) Raw() uint32 {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.raw
}

// Percent returns the MCPWM duty for the last write.
func (o *Output) Percent() float32 {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.percent
}

func (o *Output) Writes() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.writes
}

func (o *Output) Closed() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.closed
}
