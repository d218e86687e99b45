package core

import (
	"context"

	"pwmcode-go/errcode"
	"pwmcode-go/types"
)

// ---- Capability & device model ----

// CapAddr is the public bus address of a capability.
type CapAddr struct {
	Domain string
	Kind   string
	Name   string
}

type CapabilitySpec struct {
	Domain string // "" => inferred from Kind
	Kind   types.Kind
	Name   string // "" => device ID
	Info   types.Info
}

// EnqueueResult reports whether a control request was accepted.
// Error is only meaningful when OK is false.
type EnqueueResult struct {
	OK    bool
	Error errcode.Code
}

type Device interface {
	ID() string
	Capabilities() []CapabilitySpec
	Init(ctx context.Context) error
	// Control must not block; long-running work is handed to the device's
	// own goroutine and reported later through the EventEmitter.
	Control(addr CapAddr, verb string, payload any) (EnqueueResult, error)
	Close() error
}

// ---- Device → HAL telemetry (single shape) ----
// By default an Event is a value update, published retained on .../value.
// IsEvent publishes non-retained on .../event[/<tag>] instead. A non-empty
// Err publishes only .../status=degraded.

type Event struct {
	Addr     CapAddr
	Payload  any
	TS       int64 // unix ns
	Err      string
	IsEvent  bool
	EventTag string
}

type EventEmitter interface {
	// Emit must not block; false means the event was dropped.
	Emit(ev Event) bool
}

// ---- HAL-injected resources ----

type Resources struct {
	Reg   PWMRegistry
	LEDC  LEDCDriver
	MCPWM MCPWMDriver // nil on chips without MCPWM
	Pub   EventEmitter
	Log   Logger
}

// Builder input
type BuilderInput struct {
	ID, Type string
	Params   any
	Res      Resources
}

type Builder interface {
	Build(ctx context.Context, in BuilderInput) (Device, error)
}
