package sim

import (
	"errors"
	"testing"

	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/physic"

	"pwmcode-go/services/hal/internal/core"
)

func TestLEDCResolutionTable(t *testing.T) {
	cases := []struct {
		f    physic.Frequency
		bits uint8
	}{
		{100 * physic.KiloHertz, 10},
		{40 * physic.KiloHertz, 10},
		{39999 * physic.Hertz, 11},
		{20 * physic.KiloHertz, 11},
		{10 * physic.KiloHertz, 12},
		{5 * physic.KiloHertz, 13},
		{1 * physic.KiloHertz, 14},
	}
	for _, c := range cases {
		if got := LEDCResolutionBits(c.f); got != c.bits {
			t.Fatalf("%s: got %d bits, want %d", c.f, got, c.bits)
		}
	}
}

func TestLEDCQuantisation(t *testing.T) {
	p := New()
	h, err := p.InitLEDC(core.LEDCConfig{Pin: 18, Freq: 50 * physic.KiloHertz, Channel: 0})
	if err != nil {
		t.Fatal(err)
	}
	o := h.(*Output)
	if o.ResolutionBits() != 10 {
		t.Fatalf("bits = %d", o.ResolutionBits())
	}
	if err := h.SetDuty(gpio.DutyMax); err != nil {
		t.Fatal(err)
	}
	if o.Raw() != 1023 {
		t.Fatalf("full duty raw = %d", o.Raw())
	}
	_ = h.SetDuty(gpio.DutyHalf)
	if o.Raw() != 511 {
		t.Fatalf("half duty raw = %d", o.Raw())
	}
	_ = h.SetDuty(0)
	if o.Raw() != 0 {
		t.Fatalf("zero duty raw = %d", o.Raw())
	}
}

func TestMCPWMPercent(t *testing.T) {
	p := New()
	h, err := p.InitMCPWM(core.MCPWMConfig{Pin: 25, Freq: 20 * physic.KiloHertz, Unit: 0, Timer: 1, Operator: core.OperatorB})
	if err != nil {
		t.Fatal(err)
	}
	o := h.(*Output)
	_ = h.SetDuty(gpio.DutyMax / 4)
	if o.Percent() != 25 {
		t.Fatalf("percent = %v", o.Percent())
	}
	if o.Slot != (core.MotorSlot{Unit: 0, Timer: 1, Operator: core.OperatorB}) {
		t.Fatalf("slot = %+v", o.Slot)
	}
}

func TestInitRejections(t *testing.T) {
	p := New()
	if _, err := p.InitLEDC(core.LEDCConfig{Pin: 1, Freq: 100 * physic.KiloHertz}); !errors.Is(err, ErrInvalidArg) {
		t.Fatalf("100kHz at 10 bits exceeds the source clock: %v", err)
	}
	if _, err := p.InitMCPWM(core.MCPWMConfig{Pin: 1, Freq: 6 * physic.MegaHertz}); !errors.Is(err, ErrInvalidArg) {
		t.Fatalf("6MHz MCPWM: %v", err)
	}

	boom := errors.New("boom")
	p.FailLEDC(2, boom)
	if _, err := p.InitLEDC(core.LEDCConfig{Pin: 1, Freq: physic.KiloHertz, Channel: 2}); !errors.Is(err, boom) {
		t.Fatalf("injected: %v", err)
	}
	p.FailLEDC(2, nil)
	if _, err := p.InitLEDC(core.LEDCConfig{Pin: 1, Freq: physic.KiloHertz, Channel: 2}); err != nil {
		t.Fatalf("after clear: %v", err)
	}
	if _, err := p.InitMCPWM(core.MCPWMConfig{Pin: 1, Freq: physic.KiloHertz}); !errors.Is(err, ErrInvalidState) {
		t.Fatalf("pin already driven: %v", err)
	}
	if l, m := p.Inits(); l != 3 || m != 2 {
		t.Fatalf("inits = %d,%d", l, m)
	}
}

func TestDeinit(t *testing.T) {
	p := New()
	h, _ := p.InitLEDC(core.LEDCConfig{Pin: 4, Freq: physic.KiloHertz})
	if _, ok := p.Output(4); !ok {
		t.Fatal("output should be live")
	}
	if err := h.Deinit(); err != nil {
		t.Fatal(err)
	}
	if _, ok := p.Output(4); ok {
		t.Fatal("output should be gone")
	}
	if err := h.SetDuty(gpio.DutyHalf); !errors.Is(err, ErrDeinitialised) {
		t.Fatalf("write after deinit: %v", err)
	}
	if err := h.Deinit(); err == nil {
		t.Fatal("second deinit should fail")
	}
}
