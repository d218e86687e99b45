package pwm_out

import (
	"pwmcode-go/errcode"
	"pwmcode-go/services/hal/internal/core"
)

// Select resolves the backend for a pin. Explicit preferences are honoured
// or rejected; auto picks MCPWM only when a motor resource was named.
// Frequency feasibility is left to the peripheral binding.
func Select(pref core.Preference, caps core.PinCaps, hint core.MotorHint) (core.Backend, error) {
	const op = "select"
	switch pref {
	case core.PreferLEDC:
		if caps.LEDC {
			return core.BackendLEDC, nil
		}
		return "", errcode.Wrap(errcode.UnsupportedPin, op, nil, "no ledc on pin")
	case core.PreferMCPWM:
		if caps.MCPWM {
			return core.BackendMCPWM, nil
		}
		return "", errcode.Wrap(errcode.UnsupportedPin, op, nil, "no mcpwm on pin")
	case core.PreferAuto, "":
		switch {
		case caps.MCPWM && hint.Any():
			return core.BackendMCPWM, nil
		case caps.LEDC:
			return core.BackendLEDC, nil
		case caps.MCPWM:
			return core.BackendMCPWM, nil
		}
		return "", errcode.Wrap(errcode.UnsupportedPin, op, nil, "pin cannot output pwm")
	}
	return "", errcode.Wrap(errcode.InvalidParams, op, nil, string(pref))
}
