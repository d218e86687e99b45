package provider

import (
	"sort"
	"strconv"
	"sync"

	"periph.io/x/conn/v3/physic"

	"pwmcode-go/errcode"
	"pwmcode-go/services/hal/internal/core"
	"pwmcode-go/types"
	"pwmcode-go/x/timex"
)

// timerCfg is the shared-frequency accounting for one hardware timer.
// freq is only meaningful while users > 0.
type timerCfg struct {
	freq  physic.Frequency
	users int
}

func (tc *timerCfg) accepts(f physic.Frequency) bool {
	return tc.users == 0 || tc.freq == f
}

func (tc *timerCfg) acquire(f physic.Frequency) {
	tc.freq = f
	tc.users++
}

func (tc *timerCfg) release() {
	if tc.users > 0 {
		tc.users--
	}
	if tc.users == 0 {
		tc.freq = 0
	}
}

type ledcChan struct {
	owner string
	timer int
}

// Registry is the process-wide claim table for LEDC channels/timers, MCPWM
// operator slots and GPIO pins of one chip.
type Registry struct {
	mu   sync.Mutex
	chip Chip
	caps map[int]core.PinCaps

	pins map[int]string // pin -> owner

	ledc       []ledcChan
	ledcTimers []timerCfg

	slots   map[core.MotorSlot]string // slot -> owner
	mtimers [][]timerCfg              // [unit][timer]
}

var _ core.PWMRegistry = (*Registry)(nil)

func NewRegistry(chip Chip) *Registry {
	r := &Registry{
		chip:       chip,
		caps:       chip.PinCaps(),
		pins:       make(map[int]string),
		ledc:       make([]ledcChan, chip.LEDCChannels),
		ledcTimers: make([]timerCfg, chip.LEDCTimers),
		slots:      make(map[core.MotorSlot]string),
	}
	if chip.HasMCPWM() {
		r.mtimers = make([][]timerCfg, chip.MCPWMUnits)
		for u := range r.mtimers {
			r.mtimers[u] = make([]timerCfg, chip.MCPWMTimers)
		}
	}
	return r
}

func (r *Registry) Chip() string { return r.chip.Name }

func (r *Registry) Caps(pin int) (core.PinCaps, bool) {
	pc, ok := r.caps[pin]
	return pc, ok
}

// -----------------------------------------------------------------------------
// GPIO
// -----------------------------------------------------------------------------

func (r *Registry) ClaimPin(owner string, pin int) error {
	if _, ok := r.caps[pin]; !ok {
		return errcode.Wrap(errcode.UnknownPin, "claim pin", nil, strconv.Itoa(pin))
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if cur, inUse := r.pins[pin]; inUse && cur != owner {
		return errcode.Wrap(errcode.PinInUse, "claim pin", nil, strconv.Itoa(pin)+" held by "+cur)
	}
	r.pins[pin] = owner
	return nil
}

func (r *Registry) ReleasePin(owner string, pin int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.pins[pin] == owner {
		delete(r.pins, pin)
	}
}

// -----------------------------------------------------------------------------
// LEDC
// -----------------------------------------------------------------------------

func (r *Registry) NextFreeChannel() (int, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for ch := range r.ledc {
		if r.ledc[ch].owner == "" {
			return ch, true
		}
	}
	return 0, false
}

// ReserveChannel claims ch and binds it to an LEDC timer already running at
// freq, or to an idle timer.
func (r *Registry) ReserveChannel(owner string, ch int, freq physic.Frequency) (core.Reservation, error) {
	const op = "reserve ledc"
	if freq <= 0 {
		return core.Reservation{}, errcode.Wrap(errcode.InvalidParams, op, nil, "frequency")
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	if ch < 0 || ch >= len(r.ledc) {
		return core.Reservation{}, errcode.Wrap(errcode.AlreadyClaimed, op, nil, "channel "+strconv.Itoa(ch)+" not present")
	}
	if cur := r.ledc[ch].owner; cur != "" {
		return core.Reservation{}, errcode.Wrap(errcode.AlreadyClaimed, op, nil, "channel "+strconv.Itoa(ch)+" held by "+cur)
	}
	timer := r.pickLEDCTimer(freq)
	if timer < 0 {
		return core.Reservation{}, errcode.Wrap(errcode.AlreadyClaimed, op, nil, "no timer for "+freq.String())
	}

	r.ledcTimers[timer].acquire(freq)
	r.ledc[ch] = ledcChan{owner: owner, timer: timer}
	return core.Reservation{
		Owner:     owner,
		Backend:   core.BackendLEDC,
		Freq:      freq,
		Channel:   ch,
		LEDCTimer: timer,
	}, nil
}

// caller holds r.mu
func (r *Registry) pickLEDCTimer(freq physic.Frequency) int {
	idle := -1
	for t := range r.ledcTimers {
		tc := &r.ledcTimers[t]
		if tc.users > 0 && tc.freq == freq {
			return t
		}
		if tc.users == 0 && idle < 0 {
			idle = t
		}
	}
	return idle
}

// -----------------------------------------------------------------------------
// MCPWM
// -----------------------------------------------------------------------------

// NextFreeMotorSlot scans unit, then timer, then operator in ascending order
// for a slot matching hint whose timer can run at freq.
func (r *Registry) NextFreeMotorSlot(hint core.MotorHint, freq physic.Frequency) (core.MotorSlot, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for u := range r.mtimers {
		for t := range r.mtimers[u] {
			if !r.mtimers[u][t].accepts(freq) {
				continue
			}
			for op := core.Operator(0); op < core.NumOperators; op++ {
				s := core.MotorSlot{Unit: u, Timer: t, Operator: op}
				if !hint.Matches(s) {
					continue
				}
				if _, taken := r.slots[s]; !taken {
					return s, true
				}
			}
		}
	}
	return core.MotorSlot{}, false
}

func (r *Registry) ReserveMotorSlot(owner string, s core.MotorSlot, freq physic.Frequency) (core.Reservation, error) {
	const op = "reserve mcpwm"
	if freq <= 0 {
		return core.Reservation{}, errcode.Wrap(errcode.InvalidParams, op, nil, "frequency")
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.slotInRange(s) {
		return core.Reservation{}, errcode.Wrap(errcode.AlreadyClaimed, op, nil, slotName(s)+" not present")
	}
	if cur, taken := r.slots[s]; taken {
		return core.Reservation{}, errcode.Wrap(errcode.AlreadyClaimed, op, nil, slotName(s)+" held by "+cur)
	}
	tc := &r.mtimers[s.Unit][s.Timer]
	if !tc.accepts(freq) {
		return core.Reservation{}, errcode.Wrap(errcode.AlreadyClaimed, op, nil,
			slotName(s)+" timer runs at "+tc.freq.String())
	}

	tc.acquire(freq)
	r.slots[s] = owner
	return core.Reservation{
		Owner:   owner,
		Backend: core.BackendMCPWM,
		Freq:    freq,
		Slot:    s,
	}, nil
}

// caller holds r.mu
func (r *Registry) slotInRange(s core.MotorSlot) bool {
	return s.Unit >= 0 && s.Unit < len(r.mtimers) &&
		s.Timer >= 0 && s.Timer < len(r.mtimers[s.Unit]) &&
		s.Operator < core.NumOperators
}

func slotName(s core.MotorSlot) string {
	return "mcpwm" + strconv.Itoa(s.Unit) + " timer" + strconv.Itoa(s.Timer) + " op" + s.Operator.String()
}

// -----------------------------------------------------------------------------
// Release
// -----------------------------------------------------------------------------

func (r *Registry) Release(res core.Reservation) {
	r.mu.Lock()
	defer r.mu.Unlock()
	switch res.Backend {
	case core.BackendLEDC:
		if res.Channel < 0 || res.Channel >= len(r.ledc) {
			return
		}
		c := r.ledc[res.Channel]
		if c.owner == "" || c.owner != res.Owner {
			return
		}
		r.ledcTimers[c.timer].release()
		r.ledc[res.Channel] = ledcChan{}
	case core.BackendMCPWM:
		if cur, ok := r.slots[res.Slot]; !ok || cur != res.Owner {
			return
		}
		delete(r.slots, res.Slot)
		r.mtimers[res.Slot.Unit][res.Slot.Timer].release()
	}
}

// -----------------------------------------------------------------------------
// Diagnostics
// -----------------------------------------------------------------------------

// Usage returns a point-in-time snapshot of every claim.
func (r *Registry) Usage() types.ResourceUsage {
	r.mu.Lock()
	defer r.mu.Unlock()

	u := types.ResourceUsage{Chip: r.chip.Name}
	for ch, c := range r.ledc {
		cu := types.ChannelUse{Channel: ch, Owner: c.owner, Timer: -1}
		if c.owner != "" {
			cu.Timer = c.timer
		}
		u.LEDCChannels = append(u.LEDCChannels, cu)
	}
	for t, tc := range r.ledcTimers {
		u.LEDCTimers = append(u.LEDCTimers, types.TimerUse{Timer: t, FreqHz: timex.WholeHz(tc.freq), Users: tc.users})
	}
	for un := range r.mtimers {
		for t, tc := range r.mtimers[un] {
			u.MCPWMTimers = append(u.MCPWMTimers, types.MotorTimerUse{
				Unit: un, Timer: t, FreqHz: timex.WholeHz(tc.freq), Users: tc.users,
			})
			for op := core.Operator(0); op < core.NumOperators; op++ {
				s := core.MotorSlot{Unit: un, Timer: t, Operator: op}
				u.MCPWMSlots = append(u.MCPWMSlots, types.MotorSlotUse{
					Unit: un, Timer: t, Operator: op.String(), Owner: r.slots[s],
				})
			}
		}
	}
	for pin, owner := range r.pins {
		u.Pins = append(u.Pins, types.PinUse{Pin: pin, Owner: owner})
	}
	sort.Slice(u.Pins, func(i, j int) bool { return u.Pins[i].Pin < u.Pins[j].Pin })
	return u
}
