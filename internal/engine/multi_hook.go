package engine

import "context"

type Hooks []Hook

func (hs Hooks) OnEvent(ctx context.Context, ev Event) {
	for _, h := range hs {
		h.OnEvent(ctx, ev)
	}
}
