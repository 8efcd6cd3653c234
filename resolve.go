package svcgraph

import (
	"context"
	"fmt"
	"reflect"
	"strconv"

	"github.com/gburgyan/go-timing"
	"github.com/sirupsen/logrus"
)

// Get returns the value def forwards in container c. It panics if the service cannot be
// resolved; use GetWithError where a failure is expected.
//
//	db := svcgraph.Get(ctx, c, DBService)
func Get[T any](ctx context.Context, c *Container, def *Definition[T]) T {
	v, err := GetWithError(ctx, c, def)
	if err != nil {
		panic(err)
	}
	return v
}

// GetWithError returns the value def forwards in container c: the instance for Single
// and Abstract definitions, a new value for Transient, a new *Owned[T] for Unique and a
// new reference for Shared and AbstractShared.
func GetWithError[T any](ctx context.Context, c *Container, def *Definition[T]) (T, error) {
	v, err := c.resolve(ctx, def.svc, nil)
	if err != nil {
		var zero T
		return zero, err
	}
	return valueAs[T](v), nil
}

// GetOptional returns the value def forwards along with a boolean indicating whether it
// could be resolved. Unlike Get, this function does not panic.
func GetOptional[T any](ctx context.Context, c *Container, def *Definition[T]) (T, bool) {
	v, err := GetWithError(ctx, c, def)
	if err != nil {
		return v, false
	}
	return v, true
}

// Construct is GetWithError for Transient and Unique definitions whose constructors
// take call arguments after their dependencies. The arguments must match those
// parameters in number and type.
//
//	req, err := svcgraph.Construct(ctx, c, RequestService, "request-id", 42)
func Construct[T any](ctx context.Context, c *Container, def *Definition[T], args ...any) (T, error) {
	if len(args) > 0 && !def.svc.kind.PerRequest() {
		var zero T
		return zero, fmt.Errorf("%w: %s does not take call arguments", ErrArgumentMismatch, def.svc)
	}
	v, err := c.resolve(ctx, def.svc, args)
	if err != nil {
		var zero T
		return zero, err
	}
	return valueAs[T](v), nil
}

// resolve produces the forwarded value of svc.
func (c *Container) resolve(ctx context.Context, svc *service, args []any) (any, error) {
	if c.isShutdown() {
		return nil, ErrShutdown
	}

	switch svc.kind {
	case KindSingle:
		inst, err := c.single(ctx, svc)
		if err != nil {
			return nil, err
		}
		return inst.value, nil

	case KindShared:
		inst, err := c.single(ctx, svc)
		if err != nil {
			return nil, err
		}
		return svc.share(inst.state)

	case KindTransient, KindUnique:
		chainCtx, err := enterChain(ctx, svc)
		if err != nil {
			return nil, err
		}
		v, err := c.build(chainCtx, svc, args)
		if err != nil {
			return nil, err
		}
		if svc.kind == KindUnique {
			return svc.own(v, c.cleanupFunc(svc.valueType)), nil
		}
		return v, nil

	case KindAbstract, KindAbstractShared:
		concrete := c.binding(svc)
		if concrete == nil {
			return nil, &ServiceError{
				Message:     "cannot resolve",
				Service:     svc.name,
				Chain:       chainOf(ctx),
				SourceError: ErrNotBound,
			}
		}
		inst, err := c.single(ctx, concrete)
		if err != nil {
			return nil, err
		}
		if svc.kind == KindAbstractShared {
			return svc.share(inst.state)
		}
		return inst.value, nil
	}

	return nil, fmt.Errorf("%w: unknown kind for %s", ErrKindMismatch, svc)
}

// resolveDependency resolves one declared dependency of a constructor.
func (c *Container) resolveDependency(ctx context.Context, dep depRef) (any, error) {
	if dep.optional && dep.svc.kind.isAbstract() && c.binding(dep.svc) == nil {
		return nil, nil
	}
	return c.resolve(ctx, dep.svc, nil)
}

// single returns the instance of a single-instance service, constructing it if this
// is the first request. Concurrent first requests share one construction.
func (c *Container) single(ctx context.Context, svc *service) (*instance, error) {
	if inst, ok := c.findInstance(svc.id); ok {
		return inst, nil
	}

	chainCtx, err := enterChain(ctx, svc)
	if err != nil {
		return nil, err
	}
	if err := c.ensureAcyclic(svc); err != nil {
		return nil, err
	}

	ch := c.flights.DoChan(strconv.FormatUint(svc.id, 10), func() (any, error) {
		if inst, ok := c.findInstance(svc.id); ok {
			return inst, nil
		}
		value, err := c.build(chainCtx, svc, nil)
		if err != nil {
			return nil, err
		}
		inst := &instance{svc: svc}
		if svc.kind == KindShared {
			inst.state = newRefState(value, c.cleanupFunc(svc.valueType))
		} else {
			inst.value = value
		}
		return c.store(inst)
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*instance), nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// build calls the constructor of svc with its dependencies and args, then runs the
// WithCall methods. The result is the constructed value typed as the service's value
// type. A panic in the constructor or a WithCall method is returned as an error
// wrapping ErrConstructorPanic.
func (c *Container) build(ctx context.Context, svc *service, args []any) (result any, err error) {
	defer func() {
		if r := recover(); r != nil {
			result = nil
			err = &ServiceError{
				Message:     "cannot construct",
				Service:     svc.name,
				Chain:       chainOf(ctx),
				SourceError: fmt.Errorf("%w: %v", ErrConstructorPanic, r),
			}
		}
	}()

	if c.timing == TimingConstruction {
		timingCtx, complete := timing.Start(ctx, svc.name)
		defer complete()
		ctx = timingCtx
	}
	if ctx.Value(containerKey) != c {
		ctx = NewContext(ctx, c)
	}

	c.log.WithFields(logrus.Fields{"service": svc.name, "kind": svc.kind.String()}).Debug("constructing service")

	params, err := c.constructorParams(ctx, svc, args)
	if err != nil {
		return nil, err
	}

	results := svc.ctor.Call(params)
	if err := resultError(results); err != nil {
		return nil, &ServiceError{
			Message:     "cannot construct",
			Service:     svc.name,
			Chain:       chainOf(ctx),
			SourceError: err,
		}
	}
	value := results[0]

	for _, method := range svc.calls {
		callResults, err := c.callFunc(ctx, method, []reflect.Value{value}, nil)
		if err == nil {
			err = resultError(callResults)
		}
		if err != nil {
			return nil, &ServiceError{
				Message:     "call after construction failed",
				Service:     svc.name,
				Chain:       chainOf(ctx),
				SourceError: err,
			}
		}
	}

	if value.Type() != svc.valueType {
		typed := reflect.New(svc.valueType).Elem()
		typed.Set(value)
		value = typed
	}
	return value.Interface(), nil
}

// constructorParams assembles the constructor arguments: the context when asked for,
// the forwarded dependencies, then the call arguments.
func (c *Container) constructorParams(ctx context.Context, svc *service, args []any) ([]reflect.Value, error) {
	if len(args) != len(svc.args) {
		return nil, fmt.Errorf("%w: %s takes %d call arguments, got %d", ErrArgumentMismatch, svc, len(svc.args), len(args))
	}

	info := svc.ctorInfo
	params := make([]reflect.Value, 0, len(info.in))
	in := info.in
	if info.hasContextAt(0) {
		params = append(params, reflect.ValueOf(ctx))
		in = in[1:]
	}

	for i, dep := range svc.deps {
		v, err := c.resolveDependency(ctx, dep)
		if err != nil {
			return nil, err
		}
		params = append(params, valueOf(v, in[i]))
	}

	for i, arg := range args {
		v, err := argValue(arg, svc.args[i])
		if err != nil {
			return nil, fmt.Errorf("argument %d of %s: %w", i, svc, err)
		}
		params = append(params, v)
	}
	return params, nil
}

// resultError finds the error result of a call, if it exists. If no error is present
// or it doesn't have an error, this returns nil.
func resultError(results []reflect.Value) error {
	if len(results) == 0 {
		return nil
	}
	last := results[len(results)-1]
	if last.Type() != errorType || last.IsNil() {
		return nil
	}
	return last.Interface().(error)
}
