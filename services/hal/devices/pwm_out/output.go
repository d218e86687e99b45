package pwm_out

import (
	"math"
	"sync"

	"periph.io/x/conn/v3/gpio"

	"pwmcode-go/errcode"
	"pwmcode-go/services/hal/internal/core"
	"pwmcode-go/types"
	"pwmcode-go/x/mathx"
	"pwmcode-go/x/timex"
)

type State uint8

const (
	Uninitialized State = iota
	Ready
	TornDown
)

func (s State) String() string {
	switch s {
	case Ready:
		return "ready"
	case TornDown:
		return "torn_down"
	default:
		return "uninitialized"
	}
}

// Output drives one pin at a fixed frequency on whichever backend Setup
// selects. Write is safe to call in any state.
type Output struct {
	id  string
	cfg Settings
	res core.Resources
	log core.Logger

	mu      sync.Mutex
	state   State
	backend core.Backend
	rsv     core.Reservation
	h       core.Handle
	duty    float32
}

func NewOutput(id string, s Settings, res core.Resources) *Output {
	return &Output{id: id, cfg: s, res: res, log: core.LogOrNop(res.Log)}
}

// Setup claims the pin, selects a backend and initialises the peripheral.
// On failure nothing stays claimed and the output remains Uninitialized.
func (o *Output) Setup() error {
	o.mu.Lock()
	defer o.mu.Unlock()

	switch o.state {
	case Ready:
		return nil
	case TornDown:
		return errcode.Wrap(errcode.Closed, "setup", nil, o.id)
	}

	reg := o.res.Reg
	caps, _ := reg.Caps(o.cfg.Pin)
	b, err := Select(o.cfg.Pref, caps, o.cfg.Motor)
	if err != nil {
		return err
	}
	if err := reg.ClaimPin(o.id, o.cfg.Pin); err != nil {
		return err
	}

	h, rsv, err := Configure(o.id, b, o.cfg, o.res)
	if err != nil && o.canFallBack(b, caps, err) {
		o.log.Infof("pwm %s: ledc exhausted, falling back to mcpwm", o.id)
		b = core.BackendMCPWM
		h, rsv, err = Configure(o.id, b, o.cfg, o.res)
	}
	if err != nil {
		reg.ReleasePin(o.id, o.cfg.Pin)
		return err
	}

	o.backend, o.rsv, o.h = b, rsv, h
	o.state = Ready
	o.duty = 0
	if b == core.BackendLEDC {
		o.log.Infof("pwm %s: pin %d on ledc channel %d timer %d at %s",
			o.id, o.cfg.Pin, rsv.Channel, rsv.LEDCTimer, o.cfg.Freq)
	} else {
		o.log.Infof("pwm %s: pin %d on mcpwm unit %d timer %d operator %s at %s",
			o.id, o.cfg.Pin, rsv.Slot.Unit, rsv.Slot.Timer, rsv.Slot.Operator, o.cfg.Freq)
	}
	return nil
}

// canFallBack allows auto outputs without an explicit channel to move to
// MCPWM once LEDC has nothing left for them.
func (o *Output) canFallBack(b core.Backend, caps core.PinCaps, err error) bool {
	return o.cfg.Pref == core.PreferAuto &&
		b == core.BackendLEDC &&
		o.cfg.Channel == nil &&
		caps.MCPWM &&
		errcode.Of(err) == errcode.ResourceExhausted
}

// Write sets the duty fraction. NaN is treated as 0 and the value is clamped
// to [0, 1]. It does nothing unless the output is Ready; binding errors are
// logged, never returned.
func (o *Output) Write(f float32) {
	f = mathx.ClampFraction(f)

	o.mu.Lock()
	defer o.mu.Unlock()
	if o.state != Ready {
		return
	}
	if err := o.h.SetDuty(ToDuty(f)); err != nil {
		o.log.Warnf("pwm %s: set duty: %v", o.id, err)
		return
	}
	o.duty = f
}

// Teardown releases the peripheral handle, the reservation and the pin.
// It is idempotent, and an output that was never set up cannot be set up
// afterwards.
func (o *Output) Teardown() {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.state == Ready {
		if err := o.h.Deinit(); err != nil {
			o.log.Warnf("pwm %s: deinit: %v", o.id, err)
		}
		o.res.Reg.Release(o.rsv)
		o.res.Reg.ReleasePin(o.id, o.cfg.Pin)
		o.h = nil
		o.log.Infof("pwm %s: released", o.id)
	}
	o.state = TornDown
}

func (o *Output) State() State {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.state
}

// Duty returns the last fraction accepted by the peripheral.
func (o *Output) Duty() float32 {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.duty
}

func (o *Output) Backend() core.Backend {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.backend
}

func (o *Output) Reservation() core.Reservation {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.rsv
}

// Info describes the output for the capability info topic.
func (o *Output) Info() types.PWMInfo {
	o.mu.Lock()
	defer o.mu.Unlock()
	in := types.PWMInfo{
		Pin:     o.cfg.Pin,
		Backend: string(o.backend),
		FreqHz:  timex.WholeHz(o.cfg.Freq),
	}
	switch o.backend {
	case core.BackendLEDC:
		in.Channel = o.rsv.Channel
		in.LEDCTmr = o.rsv.LEDCTimer
	case core.BackendMCPWM:
		in.Unit = o.rsv.Slot.Unit
		in.Timer = o.rsv.Slot.Timer
		in.Operator = o.rsv.Slot.Operator.String()
	}
	if r, ok := o.h.(core.Resolution); ok {
		in.ResBits = r.ResolutionBits()
	}
	return in
}

// ToDuty converts a fraction in [0, 1] to a gpio.Duty.
func ToDuty(f float32) gpio.Duty {
	f = mathx.ClampFraction(f)
	return gpio.Duty(math.Round(float64(f) * float64(gpio.DutyMax)))
}
