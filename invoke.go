package svcgraph

import (
	"context"
	"fmt"
	"reflect"

	"github.com/hashicorp/go-multierror"
)

// Invoke calls fn with its parameters filled from the container. fn may start with a
// context.Context, which receives ctx. The last len(args) parameters receive args; every
// other parameter is injected by type from the registered definitions (see Register).
// A trailing error result is returned as the error, the other results are returned in
// order.
//
//	results, err := svcgraph.Invoke(ctx, c, func(db *DB, log Logger, id string) (*User, error) {
//	    ...
//	}, "user-1")
func Invoke(ctx context.Context, c *Container, fn any, args ...any) ([]any, error) {
	fv := reflect.ValueOf(fn)
	if fn == nil || fv.Kind() != reflect.Func {
		return nil, fmt.Errorf("%w: Invoke requires a function, got %T", ErrInvalidFunction, fn)
	}
	results, err := c.callFunc(ctx, fv, nil, args)
	if err != nil {
		return nil, err
	}
	return splitResults(results)
}

// Call forwards a method call to the service def provides. method is a method
// expression, or any function whose first parameter accepts the service value; for
// Unique and Shared definitions that is the value inside the handle. The remaining
// parameters follow the rules of Invoke.
//
// Unique values are closed and shared references released once the call returns.
//
//	_, err := svcgraph.Call(ctx, c, ServerService, (*Server).Listen, ":8080")
func Call[T any](ctx context.Context, c *Container, def *Definition[T], method any, args ...any) ([]any, error) {
	mv := reflect.ValueOf(method)
	if method == nil || mv.Kind() != reflect.Func || mv.Type().NumIn() == 0 {
		return nil, fmt.Errorf("%w: Call requires a function taking the service as its first parameter, got %T", ErrInvalidFunction, method)
	}

	v, err := c.resolve(ctx, def.svc, nil)
	if err != nil {
		return nil, err
	}
	receiver := v
	h, isHandle := v.(handle)
	if isHandle {
		receiver = h.underlying()
	}

	recvType := mv.Type().In(0)
	var results []reflect.Value
	if receiver != nil && !reflect.TypeOf(receiver).AssignableTo(recvType) {
		err = fmt.Errorf("%w: %s provides %T, not assignable to %v", ErrInvalidFunction, def.svc, receiver, recvType)
	} else {
		results, err = c.callFunc(ctx, mv, []reflect.Value{valueOf(receiver, recvType)}, args)
	}

	var values []any
	if err == nil {
		values, err = splitResults(results)
	}
	if isHandle {
		if herr := h.releaseHandle(); herr != nil {
			err = multierror.Append(err, herr).ErrorOrNil()
		}
	}
	return values, err
}

// callFunc calls fn with the leading values, then a context if the next parameter
// asks for one, then injected parameters, then args. The returned error only covers
// filling the parameters; the function's own error result is left in the results.
func (c *Container) callFunc(ctx context.Context, fn reflect.Value, leading []reflect.Value, args []any) ([]reflect.Value, error) {
	info := getFuncInfo(fn.Type())
	if info.variadic {
		return nil, fmt.Errorf("%w: variadic functions are not supported: %v", ErrInvalidFunction, fn.Type())
	}

	in := info.in
	params := make([]reflect.Value, 0, len(in))
	params = append(params, leading...)
	pos := len(leading)
	if info.hasContextAt(pos) {
		params = append(params, reflect.ValueOf(ctx))
		pos++
	}

	injected := len(in) - pos - len(args)
	if injected < 0 {
		return nil, fmt.Errorf("%w: %v takes %d parameters after injection, got %d arguments", ErrArgumentMismatch, fn.Type(), len(in)-pos, len(args))
	}

	// Handles resolved for fn belong to it once it is called; until then they are
	// released on failure.
	var handles []handle
	fail := func(err error) ([]reflect.Value, error) {
		for _, h := range handles {
			if herr := h.releaseHandle(); herr != nil {
				err = multierror.Append(err, herr)
			}
		}
		return nil, err
	}

	for i := 0; i < injected; i++ {
		paramType := in[pos+i]
		svc, err := c.lookupType(paramType)
		if err != nil {
			return fail(err)
		}
		v, err := c.resolve(ctx, svc, nil)
		if err != nil {
			return fail(fmt.Errorf("parameter %d (%v): %w", pos+i, paramType, err))
		}
		if h, ok := v.(handle); ok {
			handles = append(handles, h)
		}
		params = append(params, valueOf(v, paramType))
	}
	pos += injected

	for i, arg := range args {
		v, err := argValue(arg, in[pos+i])
		if err != nil {
			return fail(fmt.Errorf("argument %d: %w", i, err))
		}
		params = append(params, v)
	}

	return fn.Call(params), nil
}

// splitResults separates the results of a call into values and the trailing error.
func splitResults(results []reflect.Value) ([]any, error) {
	err := resultError(results)
	if len(results) > 0 && results[len(results)-1].Type() == errorType {
		results = results[:len(results)-1]
	}
	values := make([]any, len(results))
	for i, r := range results {
		values[i] = r.Interface()
	}
	return values, err
}
