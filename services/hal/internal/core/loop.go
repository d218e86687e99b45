package core

import (
	"context"
	"sort"

	"pwmcode-go/bus"
	"pwmcode-go/errcode"
	"pwmcode-go/types"
	"pwmcode-go/x/timex"
)

const eventQueueLen = 16

type capKey struct {
	domain string
	kind   string
	name   string
}

type HAL struct {
	conn *bus.Connection
	res  Resources
	log  Logger

	// Device registry
	dev map[string]Device // devID -> device

	// Capability index: (domain,kind,name) -> devID
	capIndex map[capKey]string

	cfgSub  *bus.Subscription
	ctrlSub *bus.Subscription

	// Single-threaded publication of device events
	evCh chan Event
}

func NewHAL(conn *bus.Connection, res Resources) *HAL {
	h := &HAL{
		conn:     conn,
		res:      res,
		log:      LogOrNop(res.Log),
		dev:      map[string]Device{},
		capIndex: map[capKey]string{},
		evCh:     make(chan Event, eventQueueLen),
	}
	// HAL provides the emitter and logger to devices.
	h.res.Pub = h
	h.res.Log = h.log
	return h
}

func (h *HAL) Run(ctx context.Context) {
	h.cfgSub = h.conn.Subscribe(TopicConfigHAL())
	h.ctrlSub = h.conn.Subscribe(ctrlWildcard())
	defer h.conn.Unsubscribe(h.cfgSub)
	defer h.conn.Unsubscribe(h.ctrlSub)

	h.pubHALState("idle", "awaiting_config")
	ready := false
	for {
		select {
		case <-ctx.Done():
			h.closeAll()
			h.pubHALState("stopped", "context_cancelled")
			return
		case msg := <-h.cfgSub.Channel():
			cfg, code := As[types.HALConfig](msg.Payload)
			if code != "" || msg.Payload == nil {
				h.log.Warnf("hal: ignoring config payload %T", msg.Payload)
				continue
			}
			h.applyConfig(ctx, cfg)
			if !ready {
				ready = true
				h.pubHALState("ready", "")
			}
		case m := <-h.ctrlSub.Channel():
			if !ready {
				// Reject controls until HAL has a configuration.
				h.replyErr(m, errcode.HALNotReady)
				continue
			}
			h.handleControl(m) // strictly non-blocking
		case ev := <-h.evCh:
			// All device→HAL telemetry is published from this goroutine.
			h.handleEvent(ev)
		}
	}
}

// applyConfig reconciles running devices with cfg: devices no longer listed
// are closed, new ones are built and initialised. Devices already running
// are left untouched.
func (h *HAL) applyConfig(ctx context.Context, cfg types.HALConfig) {
	want := make(map[string]bool, len(cfg.Devices))
	for _, dc := range cfg.Devices {
		want[dc.ID] = true
	}
	var gone []string
	for id := range h.dev {
		if !want[id] {
			gone = append(gone, id)
		}
	}
	sort.Strings(gone)
	for _, id := range gone {
		h.removeDevice(id)
	}

	for i := range cfg.Devices {
		dc := cfg.Devices[i]
		if _, exists := h.dev[dc.ID]; exists {
			continue
		}
		h.addDevice(ctx, dc)
	}

	if h.res.Reg != nil {
		h.conn.Publish(h.conn.NewMessage(TopicResources(), h.res.Reg.Usage(), true))
	}
}

func (h *HAL) addDevice(ctx context.Context, dc types.HALDevice) {
	b, ok := lookupBuilder(dc.Type)
	if !ok {
		h.log.Errorf("hal: no builder for type %q (id %s)", dc.Type, dc.ID)
		return
	}
	dev, err := b.Build(ctx, BuilderInput{
		ID:     dc.ID,
		Type:   dc.Type,
		Params: dc.Params,
		Res:    h.res,
	})
	if err != nil {
		h.log.Errorf("hal: build %s failed: %v", dc.ID, err)
		return
	}

	if err := dev.Init(ctx); err != nil {
		code := errcode.Of(err)
		h.log.Errorf("hal: init %s failed: %v", dc.ID, err)
		_ = dev.Close()
		for _, cs := range dev.Capabilities() {
			a := h.addrFor(dev, cs)
			h.conn.Publish(h.conn.NewMessage(
				CapStatus(a.Domain, a.Kind, a.Name),
				types.CapabilityStatus{Link: types.LinkDown, TS: timex.NowNs(), Error: string(code)},
				true,
			))
		}
		return
	}
	h.dev[dev.ID()] = dev

	// Register capabilities, publish retained info + initial status:down.
	// The first value event flips status to up.
	for _, cs := range dev.Capabilities() {
		a := h.addrFor(dev, cs)
		h.capIndex[capKey{domain: a.Domain, kind: a.Kind, name: a.Name}] = dev.ID()
		h.conn.Publish(h.conn.NewMessage(CapInfo(a.Domain, a.Kind, a.Name), cs.Info, true))
		h.conn.Publish(h.conn.NewMessage(
			CapStatus(a.Domain, a.Kind, a.Name),
			types.CapabilityStatus{Link: types.LinkDown, TS: timex.NowNs()},
			true,
		))
	}
	h.log.Infof("hal: device %s up", dev.ID())
}

func (h *HAL) removeDevice(id string) {
	dev := h.dev[id]
	if err := dev.Close(); err != nil {
		h.log.Warnf("hal: close %s: %v", id, err)
	}
	delete(h.dev, id)
	for k, owner := range h.capIndex {
		if owner != id {
			continue
		}
		delete(h.capIndex, k)
		// Clear retained state for the capability.
		h.conn.Publish(h.conn.NewMessage(CapInfo(k.domain, k.kind, k.name), nil, true))
		h.conn.Publish(h.conn.NewMessage(CapValue(k.domain, k.kind, k.name), nil, true))
		h.conn.Publish(h.conn.NewMessage(CapStatus(k.domain, k.kind, k.name), nil, true))
	}
	h.log.Infof("hal: device %s removed", id)
}

func (h *HAL) closeAll() {
	ids := make([]string, 0, len(h.dev))
	for id := range h.dev {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, id := range ids {
		if err := h.dev[id].Close(); err != nil {
			h.log.Warnf("hal: close %s: %v", id, err)
		}
	}
}

func (h *HAL) addrFor(dev Device, cs CapabilitySpec) CapAddr {
	k := string(cs.Kind)
	domain := cs.Domain
	if domain == "" {
		domain = defaultDomainFor(k)
	}
	name := cs.Name
	if name == "" {
		name = dev.ID()
	}
	return CapAddr{Domain: domain, Kind: k, Name: name}
}

func (h *HAL) handleControl(msg *bus.Message) {
	// hal/cap/<domain>/<kind>/<name>/control/<verb>
	if msg.Topic.Len() < 7 {
		h.replyErr(msg, errcode.InvalidTopic)
		return
	}
	domain, _ := msg.Topic.At(2).(string)
	kind, _ := msg.Topic.At(3).(string)
	name, _ := msg.Topic.At(4).(string)
	verb, _ := msg.Topic.At(6).(string)

	ownerID, ok := h.capIndex[capKey{domain: domain, kind: kind, name: name}]
	if !ok {
		h.replyErr(msg, errcode.UnknownCapability)
		return
	}
	dev := h.dev[ownerID]
	if dev == nil {
		h.replyErr(msg, errcode.Error)
		return
	}

	res, err := dev.Control(CapAddr{Domain: domain, Kind: kind, Name: name}, verb, msg.Payload)
	if err != nil {
		h.replyFromError(msg, err)
		return
	}
	if res.OK {
		h.replyOK(msg)
		return
	}
	code := res.Error
	if code == "" {
		code = errcode.Busy
	}
	h.replyErr(msg, code)
}

func (h *HAL) handleEvent(ev Event) {
	d := ev.Addr.Domain
	k := ev.Addr.Kind
	n := ev.Addr.Name

	// Error → retained status:degraded; no value/event published.
	if ev.Err != "" {
		h.conn.Publish(h.conn.NewMessage(
			CapStatus(d, k, n),
			types.CapabilityStatus{Link: types.LinkDegraded, TS: ev.TS, Error: ev.Err},
			true,
		))
		return
	}

	if ev.IsEvent {
		if ev.EventTag != "" {
			h.conn.Publish(h.conn.NewMessage(capEventTagged(d, k, n, ev.EventTag), ev.Payload, false))
		} else {
			h.conn.Publish(h.conn.NewMessage(capEvent(d, k, n), ev.Payload, false))
		}
	} else {
		h.conn.Publish(h.conn.NewMessage(CapValue(d, k, n), ev.Payload, true))
	}
	h.conn.Publish(h.conn.NewMessage(
		CapStatus(d, k, n),
		types.CapabilityStatus{Link: types.LinkUp, TS: ev.TS},
		true,
	))
}

func (h *HAL) pubHALState(level, status string) {
	h.conn.Publish(h.conn.NewMessage(
		TopicHALState(),
		types.HALState{Level: level, Status: status, TS: timex.NowNs()},
		true,
	))
}

func defaultDomainFor(kind string) string {
	if kind == string(types.KindPWM) {
		return "io"
	}
	return kind
}

// ---- HAL as EventEmitter (enqueue to single publisher) ----

func (h *HAL) Emit(ev Event) bool {
	select {
	case h.evCh <- ev:
		return true
	default:
		return false
	}
}
