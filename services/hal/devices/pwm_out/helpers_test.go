package pwm_out

import (
	"sync"
	"testing"

	"pwmcode-go/services/hal/internal/core"
	"pwmcode-go/services/hal/internal/platform/sim"
	"pwmcode-go/services/hal/internal/provider"
)

type testEnv struct {
	reg *provider.Registry
	hw  *sim.Peripherals
	pub *recorder
	res core.Resources
}

func newEnv(t *testing.T, chip provider.Chip) *testEnv {
	t.Helper()
	e := &testEnv{reg: provider.NewRegistry(chip), hw: sim.New(), pub: &recorder{}}
	e.res = core.Resources{Reg: e.reg, LEDC: e.hw, Pub: e.pub}
	if chip.HasMCPWM() {
		e.res.MCPWM = e.hw
	}
	return e
}

func esp32(t *testing.T) provider.Chip {
	t.Helper()
	c, err := provider.LookupChip("esp32")
	if err != nil {
		t.Fatal(err)
	}
	return c
}

// mixedChip routes pin 2 to LEDC only, pin 3 to both and pin 4 to MCPWM only.
func mixedChip() provider.Chip {
	return provider.Chip{
		Name:         "test",
		OutputPins:   []int{2, 3},
		MCPWMPins:    []int{3, 4},
		LEDCChannels: 2, LEDCTimers: 1,
		MCPWMUnits: 1, MCPWMTimers: 1,
	}
}

func (e *testEnv) output(id string, s Settings) *Output { return NewOutput(id, s, e.res) }

func (e *testEnv) simOut(t *testing.T, pin int) *sim.Output {
	t.Helper()
	o, ok := e.hw.Output(pin)
	if !ok {
		t.Fatalf("no live peripheral output on pin %d", pin)
	}
	return o
}

func auto(pin int) Settings {
	return Settings{Pin: pin, Freq: DefaultFrequency, Pref: core.PreferAuto}
}

func ptr[T any](v T) *T { return &v }

// recorder is an EventEmitter that keeps everything it is given.
type recorder struct {
	mu  sync.Mutex
	evs []core.Event
}

func (r *recorder) Emit(ev core.Event) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.evs = append(r.evs, ev)
	return true
}

func (r *recorder) events() []core.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]core.Event(nil), r.evs...)
}
