package svcgraph

import (
	"context"
)

type containerKeyType int

const containerKey containerKeyType = 0

// NewContext returns a copy of ctx that carries c. Constructors receive such a
// context, so code deeper in the call tree can reach the container without it being
// passed around explicitly.
func NewContext(ctx context.Context, c *Container) context.Context {
	return context.WithValue(ctx, containerKey, c)
}

// FromContext returns the container carried by ctx. It panics if there is none.
func FromContext(ctx context.Context) *Container {
	c, ok := ctx.Value(containerKey).(*Container)
	if !ok || c == nil {
		panic("no container available in context")
	}
	return c
}

// MustGet resolves def in the container carried by ctx. It panics if ctx carries no
// container or the service cannot be resolved.
//
//	func handle(ctx context.Context) {
//	    db := svcgraph.MustGet(ctx, DBService)
//	    ...
//	}
func MustGet[T any](ctx context.Context, def *Definition[T]) T {
	v, err := Resolve(ctx, def)
	if err != nil {
		panic(err)
	}
	return v
}

// Resolve resolves def in the container carried by ctx.
func Resolve[T any](ctx context.Context, def *Definition[T]) (T, error) {
	c, _ := ctx.Value(containerKey).(*Container)
	if c == nil {
		var zero T
		return zero, ErrNoContainer
	}
	return GetWithError(ctx, c, def)
}
