// Package dobridge connects svcgraph containers with samber/do injectors, in both
// directions. Provide exposes a svcgraph definition to an injector and Import declares
// a svcgraph definition whose value comes from an injector.
package dobridge

import (
	"context"

	"github.com/gburgyan/go-svcgraph"
	"github.com/samber/do/v2"
)

// Provide returns a do package entry that resolves def in c. Single-instance kinds are
// provided lazily, so the injector asks the container once and keeps the value; for
// Shared definitions the injector holds that one reference. Transient and Unique kinds
// are provided as transient services, so every invocation constructs a new value.
//
//	injector := do.New(
//	    dobridge.Provide(c, DBService),
//	    dobridge.Provide(c, RequestService),
//	)
func Provide[T any](c *svcgraph.Container, def *svcgraph.Definition[T]) func(do.Injector) {
	provider := func(i do.Injector) (T, error) {
		return svcgraph.GetWithError(context.Background(), c, def)
	}
	if def.Kind().PerRequest() {
		return do.Transient[T](provider)
	}
	return do.Lazy[T](provider)
}

// Import declares a Single definition whose constructor invokes T from the injector.
// The options are those of svcgraph.Single, except that the constructor takes no
// dependencies.
//
//	var ConfigService = dobridge.Import[*config.Config](injector)
func Import[T any](i do.Injector, opts ...svcgraph.ServiceOption) *svcgraph.Definition[T] {
	return svcgraph.Single[T](func() (T, error) {
		return do.Invoke[T](i)
	}, opts...)
}
