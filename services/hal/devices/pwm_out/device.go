package pwm_out

import (
	"context"
	"sync"
	"time"

	"pwmcode-go/errcode"
	"pwmcode-go/services/hal/internal/core"
	"pwmcode-go/types"
	"pwmcode-go/x/mathx"
	"pwmcode-go/x/ramp"
	"pwmcode-go/x/timex"
)

type Device struct {
	id      string
	out     *Output
	pol     Policy
	initial float32
	addr    core.CapAddr
	pub     core.EventEmitter
	log     core.Logger

	mu    sync.Mutex
	level float32 // logical, before policy
	stop  chan struct{}
	done  chan struct{}
}

func (d *Device) ID() string { return d.id }

// Output exposes the duty controller, mainly for diagnostics.
func (d *Device) Output() *Output { return d.out }

func (d *Device) Capabilities() []core.CapabilitySpec {
	info := d.out.Info()
	info.Inverted = d.pol.Inverted
	return []core.CapabilitySpec{{
		Domain: d.addr.Domain,
		Kind:   types.KindPWM,
		Name:   d.addr.Name,
		Info: types.Info{
			SchemaVersion: 1,
			Driver:        "pwm_out",
			Detail:        info,
		},
	}}
}

func (d *Device) Init(ctx context.Context) error {
	if err := d.out.Setup(); err != nil {
		return err
	}
	d.apply(d.initial)
	return nil
}

// Close stops any active ramp and tears the output down.
func (d *Device) Close() error {
	d.stopRamp()
	d.out.Teardown()
	return nil
}

func (d *Device) Control(_ core.CapAddr, verb string, payload any) (core.EnqueueResult, error) {
	switch verb {
	case "set":
		p, code := core.As[types.PWMSet](payload)
		if code != "" {
			return core.EnqueueResult{Error: code}, nil
		}
		d.stopRamp()
		d.apply(p.Level)
		return core.EnqueueResult{OK: true}, nil

	case "ramp":
		p, code := core.As[types.PWMRamp](payload)
		if code != "" {
			return core.EnqueueResult{Error: code}, nil
		}
		d.startRamp(p)
		return core.EnqueueResult{OK: true}, nil

	case "stop_ramp":
		d.stopRamp()
		return core.EnqueueResult{OK: true}, nil

	default:
		return core.EnqueueResult{Error: errcode.Unsupported}, nil
	}
}

// apply maps a logical level through the policy, writes it and publishes
// the logical value.
func (d *Device) apply(level float32) {
	level = mathx.ClampFraction(level)
	d.out.Write(d.pol.Apply(level))

	d.mu.Lock()
	d.level = level
	d.mu.Unlock()

	if d.pub == nil {
		return
	}
	if !d.pub.Emit(core.Event{
		Addr:    d.addr,
		Payload: types.PWMValue{Level: level},
		TS:      timex.NowNs(),
	}) {
		d.log.Debugf("pwm %s: value event dropped", d.id)
	}
}

// Level returns the last logical level applied.
func (d *Device) Level() float32 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.level
}

// startRamp replaces any running ramp.
func (d *Device) startRamp(p types.PWMRamp) {
	d.stopRamp()

	stop := make(chan struct{})
	done := make(chan struct{})
	d.mu.Lock()
	d.stop, d.done = stop, done
	from := d.level
	d.mu.Unlock()

	tick := func(dur time.Duration) bool {
		t := time.NewTimer(dur)
		defer t.Stop()
		select {
		case <-t.C:
			return true
		case <-stop:
			return false
		}
	}
	go func() {
		defer close(done)
		ramp.StartLinear(from, p.To, p.DurationMs, p.Steps, tick, d.apply)
	}()
}

// stopRamp cancels a running ramp and waits for its goroutine to exit.
func (d *Device) stopRamp() {
	d.mu.Lock()
	stop, done := d.stop, d.done
	d.stop, d.done = nil, nil
	d.mu.Unlock()
	if stop == nil {
		return
	}
	close(stop)
	<-done
}
