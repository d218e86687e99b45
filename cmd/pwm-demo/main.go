package main

import (
	"context"
	"runtime"
	"time"

	"pwmcode-go/bus"
	"pwmcode-go/services/hal"
	"pwmcode-go/types"
)

func printTopicWith(prefix string, t bus.Topic) {
	print(prefix)
	print(" ")
	for i := 0; i < t.Len(); i++ {
		if i > 0 {
			print("/")
		}
		switch v := t.At(i).(type) {
		case string:
			print(v)
		case int:
			print(v)
		default:
			print("?")
		}
	}
	println()
}

// Drives a two-phase motor pair on one MCPWM timer: A ramps up while B
// ramps down, then they swap.
func main() {
	time.Sleep(3 * time.Second)
	ctx := context.Background()

	println("[main] bootstrapping bus …")
	b := bus.NewBus(4)
	uiConn := b.NewConnection("ui")

	h, err := hal.New(b.NewConnection("hal"), hal.Config{
		Chip: "esp32",
		Log:  hal.PrintLogger{Prefix: "[hal]"},
	})
	if err != nil {
		println("[main] hal:", err.Error())
		return
	}

	println("[main] subscribing to hal/# for diagnostics …")
	mon := uiConn.Subscribe(bus.T("hal", "#"))
	go func() {
		for m := range mon.Channel() {
			printTopicWith("[monitor] <-", m.Topic)
		}
	}()

	println("[main] starting hal.Run …")
	go h.Run(ctx)

	_, cfg, _ := hal.Board("esp32_devkit")
	println("[main] publishing config/hal …")
	uiConn.Publish(uiConn.NewMessage(hal.TopicConfig(), cfg, true))

	time.Sleep(250 * time.Millisecond)

	rampA := hal.ControlTopic("drive", "pwm", "motor_a", "ramp")
	rampB := hal.ControlTopic("drive", "pwm", "motor_b", "ramp")

	var up float32 = 1
	for {
		ramp := func(t bus.Topic, to float32) {
			p := types.PWMRamp{To: to, DurationMs: 1500, Steps: 30}
			if reply, err := uiConn.RequestWait(ctx, uiConn.NewMessage(t, p, false)); err != nil {
				println("[main] ramp error:", err.Error())
			} else if e, ok := reply.Payload.(types.ErrorReply); ok {
				println("[main] ramp rejected:", e.Error)
			}
		}
		ramp(rampA, up)
		ramp(rampB, 1-up)
		up = 1 - up

		u := h.Usage()
		println("[main] mcpwm free:", u.FreeMCPWM(), "ledc free:", u.FreeLEDC())
		printMem()
		time.Sleep(2 * time.Second)
	}
}

// printMem prints a compact snapshot of runtime memory stats.
// Uses builtin println to avoid fmt overhead/allocations.
func printMem() {
	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)

	println(
		"[mem]",
		"alloc:", uint32(ms.Alloc),
		"heapInuse:", uint32(ms.HeapInuse),
		"heapSys:", uint32(ms.HeapSys),
		"mallocs:", uint32(ms.Mallocs),
		"frees:", uint32(ms.Frees),
	)
}
