package pwm_out

import (
	"testing"

	"periph.io/x/conn/v3/physic"

	"pwmcode-go/errcode"
	"pwmcode-go/services/hal/internal/core"
	"pwmcode-go/types"
)

func TestParseParamsDefaults(t *testing.T) {
	p, err := ParseParams("fan", types.PWMOutParams{Pin: 18})
	if err != nil {
		t.Fatal(err)
	}
	s := p.Settings
	if s.Freq != DefaultFrequency || s.Pref != core.PreferAuto || s.Channel != nil || s.Motor.Any() {
		t.Fatalf("settings = %+v", s)
	}
	if p.Policy.MaxPower != 1 || p.Policy.MinPower != 0 {
		t.Fatalf("policy = %+v", p.Policy)
	}
	if p.Domain != "io" || p.Name != "fan" {
		t.Fatalf("address = %s/%s", p.Domain, p.Name)
	}
}

func TestParseParamsExplicit(t *testing.T) {
	p, err := ParseParams("m", &types.PWMOutParams{
		Pin: 25, Frequency: 20 * physic.KiloHertz, Driver: "MCPWM",
		Unit: ptr(1), Timer: ptr(2), Operator: "b", Name: "motor",
	})
	if err != nil {
		t.Fatal(err)
	}
	s := p.Settings
	if s.Pref != core.PreferMCPWM || !s.Motor.Complete() {
		t.Fatalf("settings = %+v", s)
	}
	if s.Motor.Slot() != (core.MotorSlot{Unit: 1, Timer: 2, Operator: core.OperatorB}) {
		t.Fatalf("slot = %+v", s.Motor.Slot())
	}
}

func TestParseParamsRejects(t *testing.T) {
	cases := map[string]types.PWMOutParams{
		"pin":       {Pin: -1},
		"frequency": {Pin: 1, Frequency: -physic.Hertz},
		"driver":    {Pin: 1, Driver: "dac"},
		"channel":   {Pin: 1, Channel: ptr(20)},
		"unit":      {Pin: 1, Unit: ptr(2)},
		"timer":     {Pin: 1, Timer: ptr(3)},
		"operator":  {Pin: 1, Operator: "C"},
		"power":     {Pin: 1, MinPower: 0.8, MaxPower: 0.2},
		"initial":   {Pin: 1, Initial: 1.5},
	}
	for name, raw := range cases {
		if _, err := ParseParams("x", raw); errcode.Of(err) != errcode.InvalidParams {
			t.Fatalf("%s: err = %v", name, err)
		}
	}
	if _, err := ParseParams("x", "pin 4"); errcode.Of(err) != errcode.InvalidParams {
		t.Fatalf("wrong type: %v", err)
	}
	if _, err := ParseParams("x", nil); errcode.Of(err) != errcode.InvalidParams {
		t.Fatalf("nil: %v", err)
	}
}

func TestPolicyApply(t *testing.T) {
	cases := []struct {
		name string
		p    Policy
		in   float32
		want float32
	}{
		{"identity", Policy{MaxPower: 1}, 0.4, 0.4},
		{"inverted", Policy{MaxPower: 1, Inverted: true}, 0.25, 0.75},
		{"scaled", Policy{MinPower: 0.2, MaxPower: 0.6}, 0.5, 0.4},
		{"scaled zero", Policy{MinPower: 0.2, MaxPower: 0.6}, 0, 0.2},
		{"zero means zero", Policy{MinPower: 0.2, MaxPower: 0.6, ZeroMeansZero: true}, 0, 0},
		{"inverted zero means zero", Policy{MinPower: 0.2, MaxPower: 1, ZeroMeansZero: true, Inverted: true}, 0, 1},
		{"clamped", Policy{MaxPower: 1}, 3, 1},
	}
	for _, c := range cases {
		if got := c.p.Apply(c.in); got < c.want-1e-6 || got > c.want+1e-6 {
			t.Fatalf("%s: Apply(%v) = %v want %v", c.name, c.in, got, c.want)
		}
	}
}
