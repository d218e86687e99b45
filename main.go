package main

import (
	"context"
	"time"

	"pwmcode-go/bus"
	"pwmcode-go/services/hal"
	"pwmcode-go/services/heartbeat"
	"pwmcode-go/types"
)

const board = "esp32_devkit"

func main() {
	// Allow USB CDC to enumerate before we print.
	time.Sleep(2 * time.Second)
	println("boot")

	ctx := context.Background()
	log := hal.PrintLogger{Prefix: "[hal]"}

	chip, cfg, ok := hal.Board(board)
	if !ok {
		println("unknown board", board)
		return
	}

	b := bus.NewBus(8)
	h, err := hal.New(b.NewConnection("hal"), hal.Config{Chip: chip, Log: log})
	if err != nil {
		println("hal:", err.Error())
		return
	}
	go h.Run(ctx)

	hb := &heartbeat.Service{Interval: 5 * time.Second, Log: hal.PrintLogger{Prefix: "[hb]"}}
	_ = hb.Start(ctx, b.NewConnection("heartbeat"))

	conn := b.NewConnection("main")
	conn.Publish(conn.NewMessage(hal.TopicConfig(), cfg, true))

	// Sweep the fan through its range in 10% steps.
	set := hal.ControlTopic("io", "pwm", "fan", "set")
	tick := time.NewTicker(1 * time.Second)
	defer tick.Stop()

	step := 0
	for range tick.C {
		level := float32(step) / 10
		reqCtx, cancel := context.WithTimeout(ctx, time.Second)
		if _, err := conn.RequestWait(reqCtx, conn.NewMessage(set, types.PWMSet{Level: level}, false)); err != nil {
			println("fan set:", err.Error())
		}
		cancel()
		step = (step + 1) % 11
	}
}
