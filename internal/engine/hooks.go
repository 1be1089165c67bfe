// engine/hooks.go
package engine

import "context"

// Hook observes every event of a run synchronously, before the event is
// delivered on the stream. Hooks must not block.
type Hook interface {
	OnEvent(ctx context.Context, ev Event)
}

// HookFunc adapts a function to Hook.
type HookFunc func(ctx context.Context, ev Event)

func (f HookFunc) OnEvent(ctx context.Context, ev Event) { f(ctx, ev) }

// NopHook ignores every event.
type NopHook struct{}

func (NopHook) OnEvent(context.Context, Event) {}
