// services/hal/devices/pwm_out/builder.go
package pwm_out

import (
	"context"

	"pwmcode-go/errcode"
	"pwmcode-go/services/hal/internal/core"
	"pwmcode-go/types"
)

// Type is the HAL device type name.
const Type = "pwm_out"

func init() { core.RegisterBuilder(Type, builder{}) }

type builder struct{}

func (builder) Build(ctx context.Context, in core.BuilderInput) (core.Device, error) {
	p, err := ParseParams(in.ID, in.Params)
	if err != nil {
		return nil, err
	}
	if in.Res.Reg == nil {
		return nil, errcode.Wrap(errcode.HALNotReady, "pwm_out build", nil, "no resource registry")
	}
	return &Device{
		id:      in.ID,
		out:     NewOutput(in.ID, p.Settings, in.Res),
		pol:     p.Policy,
		initial: p.Initial,
		addr:    core.CapAddr{Domain: p.Domain, Kind: string(types.KindPWM), Name: p.Name},
		pub:     in.Res.Pub,
		log:     core.LogOrNop(in.Res.Log),
	}, nil
}
