package types

import "periph.io/x/conn/v3/physic"

// ------------------------
// PWM output (analog-style float output)
// ------------------------

// PWMOutParams configures one "pwm_out" device.
// Optional resource pins are nil when the allocator should choose.
type PWMOutParams struct {
	Pin       int              `json:"pin"`
	Frequency physic.Frequency `json:"frequency"`          // 0 => 50 kHz
	Driver    string           `json:"driver,omitempty"`   // "auto" | "ledc" | "mcpwm"
	Channel   *int             `json:"channel,omitempty"`  // LEDC channel 0..19
	Unit      *int             `json:"unit,omitempty"`     // MCPWM unit 0..1
	Timer     *int             `json:"timer,omitempty"`    // MCPWM timer 0..2
	Operator  string           `json:"operator,omitempty"` // "A" | "B"; "" => first free

	// Float-output policy applied ahead of the duty controller.
	Inverted      bool    `json:"inverted,omitempty"`
	MinPower      float32 `json:"min_power,omitempty"`
	MaxPower      float32 `json:"max_power,omitempty"` // 0 => 1
	ZeroMeansZero bool    `json:"zero_means_zero,omitempty"`
	Initial       float32 `json:"initial,omitempty"` // logical level applied after setup

	Domain string `json:"domain,omitempty"`
	Name   string `json:"name,omitempty"`
}

type PWMInfo struct {
	Pin      int    `json:"pin"`
	Backend  string `json:"backend"`            // "ledc" | "mcpwm"
	Channel  int    `json:"channel"`            // LEDC only
	LEDCTmr  int    `json:"ledc_timer"`         // LEDC only
	Unit     int    `json:"unit"`               // MCPWM only
	Timer    int    `json:"timer"`              // MCPWM only
	Operator string `json:"operator,omitempty"` // MCPWM only
	FreqHz   uint64 `json:"freq_hz"`
	ResBits  uint8  `json:"resolution_bits,omitempty"`
	Inverted bool   `json:"inverted"`
}

type PWMValue struct {
	Level float32 `json:"level"` // logical 0..1
}

type PWMSet struct {
	Level float32 `json:"level"` // logical 0..1, clamped
}

type PWMRamp struct {
	To         float32 `json:"to"`          // logical 0..1
	DurationMs uint32  `json:"duration_ms"` // total duration
	Steps      uint16  `json:"steps"`       // 0 => immediate
}

// ------------------------
// Resource usage (retained on hal/resources)
// ------------------------

type ResourceUsage struct {
	Chip         string          `json:"chip"`
	LEDCChannels []ChannelUse    `json:"ledc_channels"`
	LEDCTimers   []TimerUse      `json:"ledc_timers"`
	MCPWMSlots   []MotorSlotUse  `json:"mcpwm_slots"`
	MCPWMTimers  []MotorTimerUse `json:"mcpwm_timers"`
	Pins         []PinUse        `json:"pins"`
}

type ChannelUse struct {
	Channel int    `json:"channel"`
	Owner   string `json:"owner,omitempty"` // "" => free
	Timer   int    `json:"timer"`
}

type TimerUse struct {
	Timer  int    `json:"timer"`
	FreqHz uint64 `json:"freq_hz"`
	Users  int    `json:"users"`
}

type MotorSlotUse struct {
	Unit     int    `json:"unit"`
	Timer    int    `json:"timer"`
	Operator string `json:"operator"`
	Owner    string `json:"owner,omitempty"`
}

type MotorTimerUse struct {
	Unit   int    `json:"unit"`
	Timer  int    `json:"timer"`
	FreqHz uint64 `json:"freq_hz"`
	Users  int    `json:"users"`
}

type PinUse struct {
	Pin   int    `json:"pin"`
	Owner string `json:"owner"`
}

// FreeLEDC reports how many LEDC channels are unclaimed.
func (u ResourceUsage) FreeLEDC() int {
	n := 0
	for _, c := range u.LEDCChannels {
		if c.Owner == "" {
			n++
		}
	}
	return n
}

// FreeMCPWM reports how many MCPWM operator slots are unclaimed.
func (u ResourceUsage) FreeMCPWM() int {
	n := 0
	for _, s := range u.MCPWMSlots {
		if s.Owner == "" {
			n++
		}
	}
	return n
}
