package heartbeat

import (
	"context"
	"time"

	"pwmcode-go/bus"
	"pwmcode-go/services/hal"
	"pwmcode-go/types"
)

var topicConfigHeartbeat = bus.T("config", "heartbeat")

// Config is accepted on config/heartbeat.
type Config struct {
	Interval time.Duration `json:"interval"`
}

// Service periodically logs the HAL state and how much of the PWM
// hardware is still free.
type Service struct {
	Interval time.Duration // 0 => 1s
	Log      hal.Logger    // nil => println

	state types.HALState
	usage *types.ResourceUsage
}

func (s *Service) serviceLoop(ctx context.Context, conn *bus.Connection) {
	cfgSub := conn.Subscribe(topicConfigHeartbeat)
	defer conn.Unsubscribe(cfgSub)
	stateSub := conn.Subscribe(hal.TopicState())
	defer conn.Unsubscribe(stateSub)
	resSub := conn.Subscribe(hal.TopicResources())
	defer conn.Unsubscribe(resSub)

	tick := time.NewTicker(s.Interval)
	defer tick.Stop()

	// loop until context is cancelled, respond to tick and config changes
	for {
		select {
		case <-ctx.Done():
			s.Log.Infof("heartbeat service stopping")
			return
		case t := <-tick.C:
			s.beat(t)
		case msg := <-stateSub.Channel():
			if st, ok := msg.Payload.(types.HALState); ok {
				s.state = st
			}
		case msg := <-resSub.Channel():
			if u, ok := msg.Payload.(types.ResourceUsage); ok {
				s.usage = &u
			}
		case msg := <-cfgSub.Channel():
			if c, ok := msg.Payload.(Config); ok && c.Interval > 0 {
				tick.Reset(c.Interval)
				s.Log.Infof("heartbeat interval set to %v", c.Interval)
			}
		}
	}
}

func (s *Service) beat(t time.Time) {
	if s.usage == nil {
		s.Log.Infof("%s heartbeat hal=%s", t.Format("15:04:05"), s.state.Level)
		return
	}
	u := s.usage
	s.Log.Infof("%s heartbeat hal=%s chip=%s ledc %d/%d free, mcpwm %d/%d free, %d pins held",
		t.Format("15:04:05"), s.state.Level, u.Chip,
		u.FreeLEDC(), len(u.LEDCChannels), u.FreeMCPWM(), len(u.MCPWMSlots), len(u.Pins))
}

// Start the heartbeat service.
func (s *Service) Start(ctx context.Context, conn *bus.Connection) error {
	if s.Interval <= 0 {
		s.Interval = time.Second
	}
	if s.Log == nil {
		s.Log = hal.PrintLogger{}
	}
	go s.serviceLoop(ctx, conn)
	return nil
}
