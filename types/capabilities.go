package types

// ------------------------
// Capability addressing & kinds
// ------------------------

type Kind string

const (
	KindPWM Kind = "pwm"
)

// CapabilityAddress identifies a public capability on the bus.
type CapabilityAddress struct {
	Domain string `json:"domain"` // e.g. "io"
	Kind   Kind   `json:"kind"`
	Name   string `json:"name"`
}
