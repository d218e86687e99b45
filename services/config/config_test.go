package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"periph.io/x/conn/v3/physic"

	"pwmcode-go/bus"
	"pwmcode-go/services/hal"
	"pwmcode-go/types"
)

func TestParseDefaults(t *testing.T) {
	cfg, err := Parse([]byte(`
outputs:
  - id: fan
    pin: 18
`))
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Chip != "esp32" || cfg.LogLevel != "info" || cfg.LogrusLevel() != logrus.InfoLevel {
		t.Fatalf("cfg = %+v", cfg)
	}
	o := cfg.Outputs[0]
	if physic.Frequency(o.Frequency) != 50*physic.KiloHertz || o.Driver != "auto" || *o.MaxPower != 1 {
		t.Fatalf("output = %+v", o)
	}
	if o.Channel != nil || o.Unit != nil || o.Timer != nil || o.Operator != "" {
		t.Fatalf("allocation hints should stay unset: %+v", o)
	}
}

func TestParseUnits(t *testing.T) {
	cfg, err := Parse([]byte(`
chip: ESP32S3
log_level: debug
outputs:
  - {id: a, pin: 1, frequency: 25kHz, initial: 25%}
  - {id: b, pin: 2, frequency: 1000, initial: 0.5}
  - {id: c, pin: 3, frequency: 1.5MHz, driver: LEDC}
`))
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Chip != "esp32s3" || cfg.LogrusLevel() != logrus.DebugLevel {
		t.Fatalf("cfg = %+v", cfg)
	}
	want := []struct {
		freq    physic.Frequency
		initial float32
	}{
		{25 * physic.KiloHertz, 0.25},
		{1 * physic.KiloHertz, 0.5},
		{1500 * physic.KiloHertz, 0},
	}
	for i, w := range want {
		o := cfg.Outputs[i]
		if physic.Frequency(o.Frequency) != w.freq {
			t.Fatalf("%s: freq = %v want %v", o.ID, physic.Frequency(o.Frequency), w.freq)
		}
		if d := float32(o.Initial) - w.initial; d > 1e-4 || d < -1e-4 {
			t.Fatalf("%s: initial = %v want %v", o.ID, o.Initial, w.initial)
		}
	}
	if cfg.Outputs[2].Driver != "ledc" {
		t.Fatalf("driver not normalised: %q", cfg.Outputs[2].Driver)
	}
}

func TestParseRejects(t *testing.T) {
	cases := map[string]string{
		"chip":          "chip: esp8266\n",
		"log level":     "log_level: chatty\n",
		"missing id":    "outputs: [{pin: 1}]\n",
		"duplicate id":  "outputs: [{id: a, pin: 1}, {id: a, pin: 2}]\n",
		"missing pin":   "outputs: [{id: a}]\n",
		"shared pin":    "outputs: [{id: a, pin: 1}, {id: b, pin: 1}]\n",
		"frequency":     "outputs: [{id: a, pin: 1, frequency: fast}]\n",
		"driver":        "outputs: [{id: a, pin: 1, driver: dac}]\n",
		"ledc + motor":  "outputs: [{id: a, pin: 1, driver: ledc, unit: 0}]\n",
		"mcpwm + chan":  "outputs: [{id: a, pin: 1, driver: mcpwm, channel: 0}]\n",
		"power order":   "outputs: [{id: a, pin: 1, min_power: 0.9, max_power: 0.1}]\n",
		"power range":   "outputs: [{id: a, pin: 1, max_power: 2}]\n",
		"initial":       "outputs: [{id: a, pin: 1, initial: 1.5}]\n",
		"initial text":  "outputs: [{id: a, pin: 1, initial: half}]\n",
		"not yaml list": "outputs: 3\n",
	}
	for name, doc := range cases {
		if _, err := Parse([]byte(doc)); err == nil {
			t.Fatalf("%s: accepted", name)
		}
	}
}

func TestHALConfig(t *testing.T) {
	cfg, err := Embedded("sim")
	if err != nil {
		t.Fatal(err)
	}
	hc := cfg.HALConfig()
	if len(hc.Devices) != 4 {
		t.Fatalf("devices = %d", len(hc.Devices))
	}
	fan := hc.Devices[0].Params.(types.PWMOutParams)
	if hc.Devices[0].Type != "pwm_out" || fan.Pin != 18 || fan.Frequency != 25*physic.KiloHertz || fan.MaxPower != 1 || !fan.ZeroMeansZero {
		t.Fatalf("fan = %+v", fan)
	}
	mb := hc.Devices[3].Params.(types.PWMOutParams)
	if mb.Driver != "mcpwm" || *mb.Unit != 0 || *mb.Timer != 0 || mb.Operator != "B" || mb.Domain != "drive" {
		t.Fatalf("motor_b = %+v", mb)
	}
}

func TestEmbeddedConfigsParse(t *testing.T) {
	for name := range embeddedConfigs {
		if _, err := Embedded(name); err != nil {
			t.Fatalf("%s: %v", name, err)
		}
	}
	if _, err := Embedded("nope"); err == nil {
		t.Fatal("unknown embedded config accepted")
	}
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "board.yaml")
	if err := os.WriteFile(path, embeddedConfigs["minimal"], 0o644); err != nil {
		t.Fatal(err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Chip != "esp32c3" || physic.Frequency(cfg.Outputs[0].Frequency) != physic.KiloHertz {
		t.Fatalf("cfg = %+v", cfg)
	}
	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatal("missing file accepted")
	}
}

func TestServicePublishesRetained(t *testing.T) {
	cfg, err := Embedded("minimal")
	if err != nil {
		t.Fatal(err)
	}
	b := bus.NewBus(4)
	NewConfigService(cfg).Publish(b.NewConnection("config"))

	// Retained: a late subscriber still sees it.
	sub := b.NewConnection("late").Subscribe(hal.TopicConfig())
	select {
	case m := <-sub.Channel():
		hc, ok := m.Payload.(types.HALConfig)
		if !ok || !m.Retained || len(hc.Devices) != 1 || !strings.EqualFold(hc.Devices[0].ID, "led") {
			t.Fatalf("msg = %+v", m)
		}
	case <-time.After(time.Second):
		t.Fatal("no retained config")
	}
}
