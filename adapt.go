package svcgraph

import (
	"context"
	"fmt"
	"reflect"
)

// Adapt binds the injectable parameters of fn to the container and returns a function
// of type F that takes only the rest. fn may take a context.Context first; after that
// come parameters filled by type from the registered definitions, then the parameters F
// supplies. F may take a context.Context first as well, and its results must be exactly
// those of fn.
//
// The injected parameters are checked against the container when Adapt is called and
// resolved on every call of the returned function. If resolving fails the function
// returns the failure as its error result, or panics if it has none.
//
// Example:
//
//	type UserLookup func(ctx context.Context, userID string) (*User, error)
//
//	func LookupUser(ctx context.Context, db *Database, userID string) (*User, error) {
//	    // implementation
//	}
//
//	lookup, err := svcgraph.Adapt[UserLookup](c, LookupUser)
//	user, err := lookup(ctx, "user123")
func Adapt[F any](c *Container, fn any) (F, error) {
	var zero F
	target := typeOf[F]()
	if target.Kind() != reflect.Func {
		return zero, fmt.Errorf("%w: Adapt type must be a function, got %v", ErrInvalidFunction, target)
	}
	fv := reflect.ValueOf(fn)
	if fn == nil || fv.Kind() != reflect.Func {
		return zero, fmt.Errorf("%w: Adapt requires a function, got %T", ErrInvalidFunction, fn)
	}
	fnType := fv.Type()

	targetInfo := getFuncInfo(target)
	fnInfo := getFuncInfo(fnType)
	if targetInfo.variadic || fnInfo.variadic {
		return zero, fmt.Errorf("%w: variadic functions are not supported: %v", ErrInvalidFunction, fnType)
	}

	if fnType.NumOut() != target.NumOut() {
		return zero, fmt.Errorf("%w: %v returns %d values, %v returns %d", ErrInvalidFunction, fnType, fnType.NumOut(), target, target.NumOut())
	}
	for i := 0; i < fnType.NumOut(); i++ {
		if fnType.Out(i) != target.Out(i) {
			return zero, fmt.Errorf("%w: result %d of %v is %v, %v returns %v", ErrInvalidFunction, i, fnType, fnType.Out(i), target, target.Out(i))
		}
	}

	targetCtx := targetInfo.hasContextAt(0)
	runtime := targetInfo.in
	if targetCtx {
		runtime = runtime[1:]
	}
	fnParams := fnInfo.in
	if fnInfo.hasContextAt(0) {
		fnParams = fnParams[1:]
	}
	injected := len(fnParams) - len(runtime)
	if injected < 0 {
		return zero, fmt.Errorf("%w: %v takes %d parameters, %v can only take %d", ErrArgumentMismatch, target, len(runtime), fnType, len(fnParams))
	}
	for i, p := range runtime {
		if want := fnParams[injected+i]; !p.AssignableTo(want) {
			return zero, fmt.Errorf("%w: parameter %d of %v is %v, %v expects %v", ErrArgumentMismatch, i, target, p, fnType, want)
		}
	}
	for _, p := range fnParams[:injected] {
		if _, err := c.lookupType(p); err != nil {
			return zero, fmt.Errorf("adapting %v: %w", fnType, err)
		}
	}

	adapted := reflect.MakeFunc(target, func(in []reflect.Value) []reflect.Value {
		ctx := context.Background()
		if targetCtx {
			if callCtx, ok := in[0].Interface().(context.Context); ok && callCtx != nil {
				ctx = callCtx
			}
			in = in[1:]
		}
		args := make([]any, len(in))
		for i, v := range in {
			args[i] = v.Interface()
		}

		results, err := c.callFunc(ctx, fv, nil, args)
		if err != nil {
			return errorResults(target, targetInfo, err)
		}
		return results
	})
	return adapted.Interface().(F), nil
}
