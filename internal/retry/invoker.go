package retry

import "context"

// Invocable is the call surface of a tool the controller can guard.
type Invocable interface {
	Invoke(ctx context.Context, args map[string]any) (any, error)
}

type guardedInvocable struct {
	ctrl  *Controller
	inner Invocable
}

func (g *guardedInvocable) Invoke(ctx context.Context, args map[string]any) (any, error) {
	return DoValue(ctx, g.ctrl, func(ctx context.Context) (any, error) {
		return g.inner.Invoke(ctx, args)
	})
}

// WrapInvocable puts a tool behind this controller's retry schedule and
// breaker. Wrapping an already-wrapped tool is a no-op, so each tool
// instance is guarded exactly once.
func (c *Controller) WrapInvocable(inv Invocable) Invocable {
	if g, ok := inv.(*guardedInvocable); ok {
		return g
	}
	return &guardedInvocable{ctrl: c, inner: inv}
}
