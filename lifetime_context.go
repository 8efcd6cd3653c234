package svcgraph

import (
	"context"
	"time"
)

// lifetimeContext takes its values from one context and its cancellation from another.
// Background constructions use it to keep the caller's values after the caller's
// context is gone.
type lifetimeContext struct {
	values   context.Context
	lifetime context.Context
}

func (l *lifetimeContext) Deadline() (deadline time.Time, ok bool) {
	return l.lifetime.Deadline()
}

func (l *lifetimeContext) Done() <-chan struct{} {
	return l.lifetime.Done()
}

func (l *lifetimeContext) Err() error {
	return l.lifetime.Err()
}

func (l *lifetimeContext) Value(key any) any {
	return l.values.Value(key)
}
