package core

import (
	"strings"

	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/physic"

	"pwmcode-go/errcode"
	"pwmcode-go/types"
)

// ---- Backends ----

// Backend is the peripheral block an output runs on. Fixed after setup.
type Backend string

const (
	BackendLEDC  Backend = "ledc"
	BackendMCPWM Backend = "mcpwm"
)

// Preference is the configured backend choice.
type Preference string

const (
	PreferAuto  Preference = "auto"
	PreferLEDC  Preference = "ledc"
	PreferMCPWM Preference = "mcpwm"
)

// ParsePreference is case-insensitive; "" means auto.
func ParsePreference(s string) (Preference, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "auto":
		return PreferAuto, nil
	case "ledc":
		return PreferLEDC, nil
	case "mcpwm":
		return PreferMCPWM, nil
	}
	return "", errcode.Wrap(errcode.InvalidParams, "driver", nil, s)
}

// Operator selects the MCPWM generator. Values match the native enumeration.
type Operator uint8

const (
	OperatorA Operator = 0
	OperatorB Operator = 1

	NumOperators = 2
)

func (o Operator) String() string {
	if o == OperatorB {
		return "B"
	}
	return "A"
}

func ParseOperator(s string) (Operator, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "A":
		return OperatorA, nil
	case "B":
		return OperatorB, nil
	}
	return 0, errcode.Wrap(errcode.InvalidParams, "operator", nil, s)
}

// MotorSlot identifies one MCPWM (unit, timer, operator) output.
type MotorSlot struct {
	Unit     int
	Timer    int
	Operator Operator
}

// MotorHint is the explicitly configured subset of a MotorSlot.
type MotorHint struct {
	Unit     *int
	Timer    *int
	Operator *Operator
}

// Any reports whether at least one field was set explicitly.
func (h MotorHint) Any() bool { return h.Unit != nil || h.Timer != nil || h.Operator != nil }

// Complete reports whether every field was set explicitly.
func (h MotorHint) Complete() bool { return h.Unit != nil && h.Timer != nil && h.Operator != nil }

// Slot returns the hinted slot; only valid when Complete.
func (h MotorHint) Slot() MotorSlot {
	return MotorSlot{Unit: *h.Unit, Timer: *h.Timer, Operator: *h.Operator}
}

// Matches reports whether s satisfies every explicit field of h.
func (h MotorHint) Matches(s MotorSlot) bool {
	return (h.Unit == nil || *h.Unit == s.Unit) &&
		(h.Timer == nil || *h.Timer == s.Timer) &&
		(h.Operator == nil || *h.Operator == s.Operator)
}

// PinCaps lists what a GPIO can be driven by.
type PinCaps struct {
	LEDC  bool
	MCPWM bool
}

// Reservation is a live claim on peripheral resources.
type Reservation struct {
	Owner     string
	Backend   Backend
	Pin       int
	Freq      physic.Frequency
	Channel   int // LEDC
	LEDCTimer int // LEDC
	Slot      MotorSlot
}

// ---- Peripheral bindings ----

// Handle is an initialised peripheral output.
type Handle interface {
	SetDuty(d gpio.Duty) error
	Deinit() error
}

// Resolution is implemented by handles that know their duty resolution.
type Resolution interface {
	ResolutionBits() uint8
}

type LEDCConfig struct {
	Pin     int
	Freq    physic.Frequency
	Channel int
	Timer   int
}

type MCPWMConfig struct {
	Pin      int
	Freq     physic.Frequency
	Unit     int
	Timer    int
	Operator Operator
}

type LEDCDriver interface {
	InitLEDC(cfg LEDCConfig) (Handle, error)
}

type MCPWMDriver interface {
	InitMCPWM(cfg MCPWMConfig) (Handle, error)
}

// ---- Resource registry ----

// PWMRegistry tracks process-wide claims. All methods are safe for
// concurrent use; each Reserve is atomic with respect to the others.
type PWMRegistry interface {
	Chip() string
	Caps(pin int) (PinCaps, bool)

	ClaimPin(owner string, pin int) error
	ReleasePin(owner string, pin int)

	NextFreeChannel() (int, bool)
	ReserveChannel(owner string, ch int, freq physic.Frequency) (Reservation, error)

	NextFreeMotorSlot(hint MotorHint, freq physic.Frequency) (MotorSlot, bool)
	ReserveMotorSlot(owner string, slot MotorSlot, freq physic.Frequency) (Reservation, error)

	// Release is idempotent and only frees claims still held by r.Owner.
	Release(r Reservation)

	Usage() types.ResourceUsage
}
