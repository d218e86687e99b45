package provider

import (
	"sort"
	"strings"

	"pwmcode-go/errcode"
	"pwmcode-go/services/hal/internal/core"
)

// Chip describes the PWM peripheral inventory of one SoC variant.
type Chip struct {
	Name string

	// OutputPins are GPIOs that can be routed to LEDC.
	OutputPins []int
	// MCPWMPins are GPIOs that can be routed to MCPWM. Ignored when
	// MCPWMUnits is 0.
	MCPWMPins []int

	LEDCChannels int // low-speed channels only
	LEDCTimers   int
	MCPWMUnits   int
	MCPWMTimers  int // per unit
}

// HasMCPWM reports whether the chip has a motor-control block.
func (c Chip) HasMCPWM() bool { return c.MCPWMUnits > 0 && c.MCPWMTimers > 0 }

// PinCaps builds the capability map for every routable pin.
func (c Chip) PinCaps() map[int]core.PinCaps {
	m := make(map[int]core.PinCaps, len(c.OutputPins))
	for _, p := range c.OutputPins {
		pc := m[p]
		pc.LEDC = c.LEDCChannels > 0
		m[p] = pc
	}
	if c.HasMCPWM() {
		for _, p := range c.MCPWMPins {
			pc := m[p]
			pc.MCPWM = true
			m[p] = pc
		}
	}
	return m
}

// span returns the inclusive ranges flattened, e.g. span(0, 5, 12, 19).
func span(bounds ...int) []int {
	var out []int
	for i := 0; i+1 < len(bounds); i += 2 {
		for p := bounds[i]; p <= bounds[i+1]; p++ {
			out = append(out, p)
		}
	}
	return out
}

// The GPIO matrix routes either block to any output-capable pin; pins
// reserved for flash/PSRAM and input-only pins are excluded.
var (
	esp32Pins   = span(0, 5, 12, 19, 21, 23, 25, 27, 32, 33)
	esp32s2Pins = span(0, 21, 33, 45)
	esp32s3Pins = span(0, 21, 33, 48)
	esp32c3Pins = span(0, 10, 18, 21)
)

var chips = map[string]Chip{
	"esp32": {
		Name: "esp32", OutputPins: esp32Pins, MCPWMPins: esp32Pins,
		LEDCChannels: 8, LEDCTimers: 4, MCPWMUnits: 2, MCPWMTimers: 3,
	},
	"esp32s3": {
		Name: "esp32s3", OutputPins: esp32s3Pins, MCPWMPins: esp32s3Pins,
		LEDCChannels: 8, LEDCTimers: 4, MCPWMUnits: 2, MCPWMTimers: 3,
	},
	"esp32s2": {
		Name: "esp32s2", OutputPins: esp32s2Pins,
		LEDCChannels: 8, LEDCTimers: 4,
	},
	"esp32c3": {
		Name: "esp32c3", OutputPins: esp32c3Pins,
		LEDCChannels: 6, LEDCTimers: 4,
	},
}

// LookupChip finds a built-in chip descriptor by (case-insensitive) name.
func LookupChip(name string) (Chip, error) {
	c, ok := chips[strings.ToLower(strings.TrimSpace(name))]
	if !ok {
		return Chip{}, errcode.Wrap(errcode.InvalidParams, "chip", nil, name)
	}
	return c, nil
}

// ChipNames lists the built-in descriptors.
func ChipNames() []string {
	out := make([]string, 0, len(chips))
	for n := range chips {
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}
