package pwm_out

import (
	"testing"

	"pwmcode-go/errcode"
	"pwmcode-go/services/hal/internal/core"
)

func TestSelect(t *testing.T) {
	both := core.PinCaps{LEDC: true, MCPWM: true}
	ledcOnly := core.PinCaps{LEDC: true}
	mcpwmOnly := core.PinCaps{MCPWM: true}
	none := core.PinCaps{}
	timer := core.MotorHint{Timer: ptr(1)}
	opB := core.MotorHint{Operator: ptr(core.OperatorB)}

	cases := []struct {
		name string
		pref core.Preference
		caps core.PinCaps
		hint core.MotorHint
		want core.Backend
		err  errcode.Code
	}{
		{"ledc honoured", core.PreferLEDC, both, timer, core.BackendLEDC, ""},
		{"ledc on mcpwm-only pin", core.PreferLEDC, mcpwmOnly, core.MotorHint{}, "", errcode.UnsupportedPin},
		{"mcpwm honoured", core.PreferMCPWM, both, core.MotorHint{}, core.BackendMCPWM, ""},
		{"mcpwm on ledc-only pin", core.PreferMCPWM, ledcOnly, timer, "", errcode.UnsupportedPin},
		{"auto without hints", core.PreferAuto, both, core.MotorHint{}, core.BackendLEDC, ""},
		{"auto with timer hint", core.PreferAuto, both, timer, core.BackendMCPWM, ""},
		{"auto with operator hint", core.PreferAuto, both, opB, core.BackendMCPWM, ""},
		{"auto hint on ledc-only pin", core.PreferAuto, ledcOnly, timer, core.BackendLEDC, ""},
		{"auto on mcpwm-only pin", core.PreferAuto, mcpwmOnly, core.MotorHint{}, core.BackendMCPWM, ""},
		{"auto on dead pin", core.PreferAuto, none, core.MotorHint{}, "", errcode.UnsupportedPin},
		{"unknown preference", core.Preference("dac"), both, core.MotorHint{}, "", errcode.InvalidParams},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			got, err := Select(c.pref, c.caps, c.hint)
			wantCode := c.err
			if wantCode == "" {
				wantCode = errcode.OK
			}
			if code := errcode.Of(err); code != wantCode {
				t.Fatalf("err = %v, want %q", err, c.err)
			}
			if got != c.want {
				t.Fatalf("backend = %q, want %q", got, c.want)
			}
		})
	}
}
