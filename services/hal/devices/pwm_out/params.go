package pwm_out

import (
	"periph.io/x/conn/v3/physic"

	"pwmcode-go/errcode"
	"pwmcode-go/services/hal/internal/core"
	"pwmcode-go/types"
	"pwmcode-go/x/mathx"
)

// DefaultFrequency applies when the configuration leaves frequency unset.
const DefaultFrequency = 50 * physic.KiloHertz

// Configuration ranges accepted for explicit resources.
const (
	MaxChannel = 19
	MaxUnit    = 1
	MaxTimer   = 2
)

// Settings is the hardware-facing part of a pwm_out configuration.
type Settings struct {
	Pin     int
	Freq    physic.Frequency
	Pref    core.Preference
	Channel *int // explicit LEDC channel
	Motor   core.MotorHint
}

// Params is a validated pwm_out configuration.
type Params struct {
	Settings Settings
	Policy   Policy
	Initial  float32
	Domain   string
	Name     string
}

// ParseParams validates a types.PWMOutParams (value or pointer) and fills
// defaults. id names the capability when Name is empty.
func ParseParams(id string, v any) (Params, error) {
	const op = "pwm_out params"
	raw, code := core.As[types.PWMOutParams](v)
	if code != "" || v == nil {
		return Params{}, errcode.Wrap(errcode.InvalidParams, op, nil, "want types.PWMOutParams")
	}
	bad := func(msg string) (Params, error) {
		return Params{}, errcode.Wrap(errcode.InvalidParams, op, nil, msg)
	}

	if raw.Pin < 0 {
		return bad("pin")
	}
	freq := raw.Frequency
	if freq == 0 {
		freq = DefaultFrequency
	}
	if freq < 0 {
		return bad("frequency")
	}
	pref, err := core.ParsePreference(raw.Driver)
	if err != nil {
		return Params{}, err
	}
	if raw.Channel != nil && !mathx.Between(*raw.Channel, 0, MaxChannel) {
		return bad("channel")
	}
	if raw.Unit != nil && !mathx.Between(*raw.Unit, 0, MaxUnit) {
		return bad("unit")
	}
	if raw.Timer != nil && !mathx.Between(*raw.Timer, 0, MaxTimer) {
		return bad("timer")
	}

	hint := core.MotorHint{Unit: raw.Unit, Timer: raw.Timer}
	if raw.Operator != "" {
		opr, err := core.ParseOperator(raw.Operator)
		if err != nil {
			return Params{}, err
		}
		hint.Operator = &opr
	}

	pol := Policy{
		Inverted:      raw.Inverted,
		MinPower:      raw.MinPower,
		MaxPower:      raw.MaxPower,
		ZeroMeansZero: raw.ZeroMeansZero,
	}
	if pol.MaxPower == 0 {
		pol.MaxPower = 1
	}
	if !mathx.Between(pol.MinPower, 0, 1) || !mathx.Between(pol.MaxPower, 0, 1) || pol.MinPower > pol.MaxPower {
		return bad("power range")
	}
	if !mathx.Between(raw.Initial, 0, 1) {
		return bad("initial")
	}

	p := Params{
		Settings: Settings{
			Pin:     raw.Pin,
			Freq:    freq,
			Pref:    pref,
			Channel: raw.Channel,
			Motor:   hint,
		},
		Policy:  pol,
		Initial: raw.Initial,
		Domain:  raw.Domain,
		Name:    raw.Name,
	}
	if p.Domain == "" {
		p.Domain = "io"
	}
	if p.Name == "" {
		p.Name = id
	}
	return p, nil
}

// Policy is the float-output layer applied before the duty controller.
type Policy struct {
	Inverted      bool
	MinPower      float32
	MaxPower      float32
	ZeroMeansZero bool
}

// Apply maps a logical level to the duty fraction handed to Output.Write.
func (p Policy) Apply(level float32) float32 {
	level = mathx.ClampFraction(level)
	if level != 0 || !p.ZeroMeansZero {
		level = p.MinPower + level*(p.MaxPower-p.MinPower)
	}
	if p.Inverted {
		level = 1 - level
	}
	return level
}
