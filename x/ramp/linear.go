package ramp

import (
	"time"

	"pwmcode-go/x/mathx"
)

// Step sets the new duty fraction in [0..1].
type Step func(level float32)

// Tick waits for d and reports whether to continue (false => cancelled).
type Tick func(d time.Duration) bool

// StartLinear runs a synchronous (caller-driven) linear ramp from cur to to.
// Call it from a goroutine and provide Tick to handle timing & cancellation.
// steps==0 or durationMs==0 snaps to 'to'. The last step always lands on 'to'.
func StartLinear(cur, to float32, durationMs uint32, steps uint16, tick Tick, set Step) {
	cur = mathx.ClampFraction(cur)
	to = mathx.ClampFraction(to)
	if steps == 0 || durationMs == 0 {
		set(to)
		return
	}
	stepDurMs := durationMs / uint32(steps)
	if stepDurMs == 0 {
		stepDurMs = 1
	}
	stepDur := time.Duration(stepDurMs) * time.Millisecond

	for i := uint16(1); i < steps; i++ {
		if !tick(stepDur) {
			return
		}
		set(mathx.Lerp(cur, to, float32(i)/float32(steps)))
	}
	if !tick(stepDur) {
		return
	}
	set(to)
}
