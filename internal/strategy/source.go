package strategy

import (
	"context"

	"github.com/CrisisCore-Systems/Autotrader-sub002/internal/domain"
)

// Decision logic lives outside this subsystem. This package only
// provides the adapters that deliver external decisions to the engine.

// HoldSource emits HOLD forever. It is the default source when no
// strategy collaborator is attached: the engine idles, executing
// nothing, while all monitors and feeds keep running.
type HoldSource struct{}

func (HoldSource) NextDecision(ctx context.Context) (domain.Decision, error) {
	return domain.Decision{Action: domain.ActionHold}, nil
}

// ChannelSource delivers decisions pushed by an external collaborator
// over a channel. When the channel is empty the source reports HOLD
// rather than blocking, so the engine loop keeps its own pace.
type ChannelSource struct {
	ch <-chan domain.Decision
}

func NewChannelSource(ch <-chan domain.Decision) *ChannelSource {
	return &ChannelSource{ch: ch}
}

func (s *ChannelSource) NextDecision(ctx context.Context) (domain.Decision, error) {
	if err := ctx.Err(); err != nil {
		return domain.Decision{}, err
	}
	select {
	case d, ok := <-s.ch:
		if !ok {
			return domain.Decision{Action: domain.ActionHold}, nil
		}
		return d, nil
	default:
		return domain.Decision{Action: domain.ActionHold}, nil
	}
}
