package pwm_out

import (
	"errors"

	"pwmcode-go/errcode"
	"pwmcode-go/services/hal/internal/core"
)

// Configure reserves resources for backend b and initialises the peripheral.
// The reservation is taken before init so concurrent setups cannot both
// initialise the same slot; it is returned to the registry if init fails.
func Configure(owner string, b core.Backend, s Settings, res core.Resources) (core.Handle, core.Reservation, error) {
	switch b {
	case core.BackendLEDC:
		return configureLEDC(owner, s, res)
	case core.BackendMCPWM:
		return configureMCPWM(owner, s, res)
	}
	return nil, core.Reservation{}, errcode.Wrap(errcode.InvalidParams, "configure", nil, string(b))
}

func configureLEDC(owner string, s Settings, res core.Resources) (core.Handle, core.Reservation, error) {
	const op = "configure ledc"
	if res.LEDC == nil {
		return nil, core.Reservation{}, errcode.Wrap(errcode.HardwareInit, op, nil, "no ledc binding")
	}
	rsv, err := reserveLEDC(owner, s, res.Reg)
	if err != nil {
		return nil, core.Reservation{}, errcode.Wrap(errcode.ResourceExhausted, op, unwrapCause(err), "")
	}
	rsv.Pin = s.Pin

	h, err := res.LEDC.InitLEDC(core.LEDCConfig{
		Pin:     s.Pin,
		Freq:    s.Freq,
		Channel: rsv.Channel,
		Timer:   rsv.LEDCTimer,
	})
	if err != nil {
		res.Reg.Release(rsv)
		return nil, core.Reservation{}, errcode.Wrap(errcode.HardwareInit, op, err, "")
	}
	return h, rsv, nil
}

func reserveLEDC(owner string, s Settings, reg core.PWMRegistry) (core.Reservation, error) {
	if s.Channel != nil {
		return reg.ReserveChannel(owner, *s.Channel, s.Freq)
	}
	// Another output may take the scanned channel before we reserve it;
	// rescan until the scan stops moving.
	last, lastErr := -1, error(nil)
	for {
		ch, ok := reg.NextFreeChannel()
		if !ok {
			return core.Reservation{}, errors.New("no free channel")
		}
		if ch == last {
			return core.Reservation{}, lastErr
		}
		rsv, err := reg.ReserveChannel(owner, ch, s.Freq)
		if err == nil {
			return rsv, nil
		}
		last, lastErr = ch, err
	}
}

func configureMCPWM(owner string, s Settings, res core.Resources) (core.Handle, core.Reservation, error) {
	const op = "configure mcpwm"
	if res.MCPWM == nil {
		return nil, core.Reservation{}, errcode.Wrap(errcode.HardwareInit, op, nil, "no mcpwm binding")
	}
	rsv, err := reserveMCPWM(owner, s, res.Reg)
	if err != nil {
		return nil, core.Reservation{}, errcode.Wrap(errcode.ResourceExhausted, op, unwrapCause(err), "")
	}
	rsv.Pin = s.Pin

	h, err := res.MCPWM.InitMCPWM(core.MCPWMConfig{
		Pin:      s.Pin,
		Freq:     s.Freq,
		Unit:     rsv.Slot.Unit,
		Timer:    rsv.Slot.Timer,
		Operator: rsv.Slot.Operator,
	})
	if err != nil {
		res.Reg.Release(rsv)
		return nil, core.Reservation{}, errcode.Wrap(errcode.HardwareInit, op, err, "")
	}
	return h, rsv, nil
}

func reserveMCPWM(owner string, s Settings, reg core.PWMRegistry) (core.Reservation, error) {
	if s.Motor.Complete() {
		return reg.ReserveMotorSlot(owner, s.Motor.Slot(), s.Freq)
	}
	var last *core.MotorSlot
	var lastErr error
	for {
		slot, ok := reg.NextFreeMotorSlot(s.Motor, s.Freq)
		if !ok {
			return core.Reservation{}, errors.New("no free motor slot")
		}
		if last != nil && *last == slot {
			return core.Reservation{}, lastErr
		}
		rsv, err := reg.ReserveMotorSlot(owner, slot, s.Freq)
		if err == nil {
			return rsv, nil
		}
		last, lastErr = &slot, err
	}
}

// unwrapCause keeps the registry's message but drops its code, which the
// configurator replaces.
func unwrapCause(err error) error {
	var e *errcode.E
	if errors.As(err, &e) && e.Msg != "" {
		return errors.New(e.Msg)
	}
	return err
}
