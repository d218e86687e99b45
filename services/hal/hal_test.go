package hal

import (
	"context"
	"testing"
	"time"

	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/physic"

	"pwmcode-go/bus"
	"pwmcode-go/errcode"
	"pwmcode-go/types"
)

func startBoard(t *testing.T, board string) (*HAL, *bus.Connection) {
	t.Helper()
	chip, cfg, ok := Board(board)
	if !ok {
		t.Fatalf("no board %q", board)
	}
	b := bus.NewBus(32)
	h, err := New(b.NewConnection("hal"), Config{Chip: chip})
	if err != nil {
		t.Fatal(err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go h.Run(ctx)

	c := b.NewConnection("test")
	c.Publish(c.NewMessage(TopicConfig(), cfg, true))
	return h, c
}

func waitFor[T any](t *testing.T, sub *bus.Subscription, match func(T) bool) T {
	t.Helper()
	deadline := time.After(time.Second)
	for {
		select {
		case m := <-sub.Channel():
			if v, ok := m.Payload.(T); ok && match(v) {
				return v
			}
		case <-deadline:
			var zero T
			t.Fatalf("timeout waiting on %v", sub.Topic())
			return zero
		}
	}
}

func TestUnknownChip(t *testing.T) {
	b := bus.NewBus(4)
	if _, err := New(b.NewConnection("hal"), Config{Chip: "esp8266"}); errcode.Of(err) != errcode.InvalidParams {
		t.Fatalf("err = %v", err)
	}
}

func TestBoardBringUp(t *testing.T) {
	h, c := startBoard(t, "esp32_devkit")

	res := c.Subscribe(TopicResources())
	u := waitFor(t, res, func(u types.ResourceUsage) bool { return len(u.Pins) == 4 })
	if u.Chip != "esp32" || u.FreeLEDC() != 6 || u.FreeMCPWM() != 10 {
		t.Fatalf("usage = %+v", u)
	}
	if u.MCPWMTimers[0].Users != 2 || u.MCPWMTimers[0].FreqHz != 20000 {
		t.Fatalf("motor timer = %+v", u.MCPWMTimers[0])
	}

	info := c.Subscribe(InfoTopic("drive", "pwm", "motor_b"))
	in := waitFor(t, info, func(i types.Info) bool { return true })
	detail := in.Detail.(types.PWMInfo)
	if detail.Backend != "mcpwm" || detail.Operator != "B" || detail.Unit != 0 || detail.Timer != 0 {
		t.Fatalf("motor_b info = %+v", detail)
	}

	// Duty control over the bus.
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	reply, err := c.RequestWait(ctx, c.NewMessage(ControlTopic("io", "pwm", "fan", "set"), types.PWMSet{Level: 1}, false))
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := reply.Payload.(types.OKReply); !ok {
		t.Fatalf("reply = %#v", reply.Payload)
	}
	out, ok := h.Sim().Output(18)
	if !ok || out.Duty() < gpio.DutyMax-2 || out.Freq != 25*physic.KiloHertz {
		t.Fatalf("fan output = %+v", out)
	}

	val := c.Subscribe(ValueTopic("io", "pwm", "fan"))
	waitFor(t, val, func(v types.PWMValue) bool { return v.Level == 1 })
}

func TestConfigRemovalTearsDown(t *testing.T) {
	h, c := startBoard(t, "esp32_devkit")
	res := c.Subscribe(TopicResources())
	waitFor(t, res, func(u types.ResourceUsage) bool { return len(u.Pins) == 4 })

	_, cfg, _ := Board("esp32_devkit")
	cfg.Devices = cfg.Devices[:3] // drop motor_b
	c.Publish(c.NewMessage(TopicConfig(), cfg, true))

	u := waitFor(t, res, func(u types.ResourceUsage) bool { return len(u.Pins) == 3 })
	if u.FreeMCPWM() != 11 || u.MCPWMTimers[0].Users != 1 {
		t.Fatalf("usage = %+v", u)
	}
	if _, ok := h.Sim().Output(26); ok {
		t.Fatal("motor_b peripheral still live")
	}
}

func TestSetupFailureReportsStatus(t *testing.T) {
	_, c := startBoard(t, "esp32c3_mini")

	status := c.Subscribe(StatusTopic("io", "pwm", "motor"))
	c.Publish(c.NewMessage(TopicConfig(), types.HALConfig{Devices: []types.HALDevice{
		{ID: "led", Type: "pwm_out", Params: types.PWMOutParams{Pin: 8}},
		{ID: "motor", Type: "pwm_out", Params: types.PWMOutParams{Pin: 9, Driver: "mcpwm"}},
	}}, true))

	st := waitFor(t, status, func(s types.CapabilityStatus) bool { return s.Error != "" })
	if st.Link != types.LinkDown || st.Error != string(errcode.UnsupportedPin) {
		t.Fatalf("status = %+v", st)
	}
}
