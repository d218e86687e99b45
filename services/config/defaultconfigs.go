package config

import "errors"

// Embedded configurations, keyed by name. Used when no file is given.

const cfgSim = `
chip: esp32
log_level: info
outputs:
  - id: fan
    pin: 18
    frequency: 25kHz
    min_power: 0.15
    zero_means_zero: true
  - id: status_led
    pin: 2
    frequency: 5kHz
    driver: ledc
    inverted: true
    initial: 10%
  - id: motor_a
    pin: 25
    frequency: 20kHz
    driver: mcpwm
    unit: 0
    timer: 0
    operator: A
    domain: drive
  - id: motor_b
    pin: 26
    frequency: 20kHz
    driver: mcpwm
    unit: 0
    timer: 0
    operator: B
    domain: drive
`

const cfgMinimal = `
chip: esp32c3
outputs:
  - id: led
    pin: 8
    frequency: 1000
`

var embeddedConfigs = map[string][]byte{
	"sim":     []byte(cfgSim),
	"minimal": []byte(cfgMinimal),
}

// EmbeddedConfigLookup allows overriding how embedded configs are resolved.
var EmbeddedConfigLookup = func(name string) ([]byte, bool) {
	b, ok := embeddedConfigs[name]
	return b, ok
}

// Embedded parses a named embedded config.
func Embedded(name string) (Config, error) {
	raw, ok := EmbeddedConfigLookup(name)
	if !ok || len(raw) == 0 {
		return Config{}, errors.New("no embedded config: " + name)
	}
	return Parse(raw)
}
