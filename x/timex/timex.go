package timex

import (
	"time"

	"periph.io/x/conn/v3/physic"
)

// NowNs returns Unix nanoseconds as int64.
func NowNs() int64 { return time.Now().UnixNano() }

// Period returns the PWM period for f. f<=0 yields 0.
func Period(f physic.Frequency) time.Duration {
	if f <= 0 {
		return 0
	}
	return f.Period()
}

// WholeHz returns f truncated to whole hertz.
func WholeHz(f physic.Frequency) uint64 {
	if f <= 0 {
		return 0
	}
	return uint64(f / physic.Hertz)
}
