package setups

import (
	"sort"

	"periph.io/x/conn/v3/physic"

	"pwmcode-go/types"
)

// Board pairs a chip with the outputs wired on it.
type Board struct {
	Name  string
	Chip  string
	Setup types.HALConfig
}

func ptr[T any](v T) *T { return &v }

var boards = map[string]Board{
	// Fan + status LED on LEDC, a two-phase motor driver on one MCPWM timer.
	"esp32_devkit": {
		Name: "esp32_devkit",
		Chip: "esp32",
		Setup: types.HALConfig{Devices: []types.HALDevice{
			{ID: "fan", Type: "pwm_out", Params: types.PWMOutParams{
				Pin: 18, Frequency: 25 * physic.KiloHertz,
				MinPower: 0.15, MaxPower: 1, ZeroMeansZero: true,
			}},
			{ID: "status_led", Type: "pwm_out", Params: types.PWMOutParams{
				Pin: 2, Frequency: 5 * physic.KiloHertz, Driver: "ledc", Inverted: true,
			}},
			{ID: "motor_a", Type: "pwm_out", Params: types.PWMOutParams{
				Pin: 25, Frequency: 20 * physic.KiloHertz, Driver: "mcpwm",
				Unit: ptr(0), Timer: ptr(0), Operator: "A", Domain: "drive",
			}},
			{ID: "motor_b", Type: "pwm_out", Params: types.PWMOutParams{
				Pin: 26, Frequency: 20 * physic.KiloHertz, Driver: "mcpwm",
				Unit: ptr(0), Timer: ptr(0), Operator: "B", Domain: "drive",
			}},
		}},
	},
	"esp32s3_devkit": {
		Name: "esp32s3_devkit",
		Chip: "esp32s3",
		Setup: types.HALConfig{Devices: []types.HALDevice{
			{ID: "backlight", Type: "pwm_out", Params: types.PWMOutParams{Pin: 45, Initial: 0.8}},
			{ID: "pump", Type: "pwm_out", Params: types.PWMOutParams{
				Pin: 4, Frequency: 10 * physic.KiloHertz, Timer: ptr(1),
			}},
		}},
	},
	"esp32c3_mini": {
		Name: "esp32c3_mini",
		Chip: "esp32c3",
		Setup: types.HALConfig{Devices: []types.HALDevice{
			{ID: "led", Type: "pwm_out", Params: types.PWMOutParams{
				Pin: 8, Frequency: 1 * physic.KiloHertz, Inverted: true,
			}},
		}},
	},
}

// Lookup returns a built-in board by name.
func Lookup(name string) (Board, bool) {
	b, ok := boards[name]
	return b, ok
}

// Names lists the built-in boards.
func Names() []string {
	out := make([]string, 0, len(boards))
	for n := range boards {
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}
