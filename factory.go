package svcgraph

import (
	"context"
	"fmt"
	"reflect"
)

// Factory turns a Transient or Unique definition into a typed constructor function.
// F must be a function type that optionally takes a context.Context first, then the
// call arguments of the definition's constructor, and returns the forwarded type,
// optionally followed by an error. A factory without an error result panics when the
// construction fails.
//
// Example:
//
//	type RequestFactory func(ctx context.Context, requestID string) (Request, error)
//
//	var RequestService = svcgraph.Transient[Request](NewRequest, svcgraph.DependsOn(DBService))
//
//	newRequest, err := svcgraph.Factory[RequestFactory](c, RequestService)
//	req, err := newRequest(ctx, "request-1")
//
// Any kind can be wrapped; for single-instance kinds the factory takes no arguments and
// returns the instance.
func Factory[F any, T any](c *Container, def *Definition[T]) (F, error) {
	var zero F
	target := typeOf[F]()
	if target.Kind() != reflect.Func {
		return zero, fmt.Errorf("%w: Factory type must be a function, got %v", ErrInvalidFunction, target)
	}
	svc := def.svc
	info := getFuncInfo(target)
	if info.variadic {
		return zero, fmt.Errorf("%w: variadic factory %v", ErrInvalidFunction, target)
	}

	withCtx := info.hasContextAt(0)
	params := info.in
	if withCtx {
		params = params[1:]
	}
	if len(params) != len(svc.args) {
		return zero, fmt.Errorf("%w: %v takes %d arguments, %s takes %d", ErrArgumentMismatch, target, len(params), svc, len(svc.args))
	}
	for i, p := range params {
		if !p.AssignableTo(svc.args[i]) {
			return zero, fmt.Errorf("%w: argument %d of %v is %v, %s expects %v", ErrArgumentMismatch, i, target, p, svc, svc.args[i])
		}
	}
	if len(info.results) != 1 || !svc.forwardType.AssignableTo(info.results[0]) {
		return zero, fmt.Errorf("%w: %v must return %v", ErrInvalidFunction, target, svc.forwardType)
	}
	resultType := info.results[0]

	fn := reflect.MakeFunc(target, func(in []reflect.Value) []reflect.Value {
		ctx := context.Background()
		if withCtx {
			if callCtx, ok := in[0].Interface().(context.Context); ok && callCtx != nil {
				ctx = callCtx
			}
			in = in[1:]
		}
		args := make([]any, len(in))
		for i, v := range in {
			args[i] = v.Interface()
		}

		v, err := c.resolve(ctx, svc, args)
		if err != nil {
			return errorResults(target, info, err)
		}
		out := []reflect.Value{valueOf(v, resultType)}
		if info.hasError {
			out = append(out, reflect.Zero(errorType))
		}
		return out
	})
	return fn.Interface().(F), nil
}

// errorResults builds the results of a generated function that failed: zero values
// followed by err. Functions without an error result panic with err instead.
func errorResults(fnType reflect.Type, info *funcInfo, err error) []reflect.Value {
	if !info.hasError {
		panic(err)
	}
	out := make([]reflect.Value, fnType.NumOut())
	for i := 0; i < len(out)-1; i++ {
		out[i] = reflect.Zero(fnType.Out(i))
	}
	out[len(out)-1] = reflect.ValueOf(&err).Elem()
	return out
}
