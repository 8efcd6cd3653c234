package svcgraph

import (
	"context"
	"fmt"
	"reflect"
	"sync"
)

var (
	contextType = reflect.TypeOf((*context.Context)(nil)).Elem()
	errorType   = reflect.TypeOf((*error)(nil)).Elem()
)

// funcInfo caches the reflection work needed to call a constructor or injected function
type funcInfo struct {
	in       []reflect.Type
	results  []reflect.Type // non-error results
	hasError bool
	variadic bool
}

// hasContextAt reports whether parameter i is a context.Context.
func (fi *funcInfo) hasContextAt(i int) bool {
	return i < len(fi.in) && fi.in[i] == contextType
}

// Global function cache to avoid repeated reflection operations
var globalFuncCache sync.Map // map[reflect.Type]*funcInfo

// getFuncInfo returns cached information about a function type. It panics if the
// function has an error result anywhere but last.
func getFuncInfo(t reflect.Type) *funcInfo {
	if cached, ok := globalFuncCache.Load(t); ok {
		return cached.(*funcInfo)
	}

	info := &funcInfo{
		in:       make([]reflect.Type, t.NumIn()),
		results:  make([]reflect.Type, 0, t.NumOut()),
		variadic: t.IsVariadic(),
	}
	for i := 0; i < t.NumIn(); i++ {
		info.in[i] = t.In(i)
	}
	for i := 0; i < t.NumOut(); i++ {
		out := t.Out(i)
		if out == errorType {
			if i != t.NumOut()-1 {
				panic("an error result must be the last result of a function")
			}
			info.hasError = true
			continue
		}
		info.results = append(info.results, out)
	}

	actual, _ := globalFuncCache.LoadOrStore(t, info)
	return actual.(*funcInfo)
}

// interfaceCache caches which concrete types implement which interfaces
type interfaceCache struct {
	mu    sync.RWMutex
	cache map[interfaceCacheKey]bool
}

type interfaceCacheKey struct {
	concrete reflect.Type
	iface    reflect.Type
}

var globalInterfaceCache = &interfaceCache{
	cache: make(map[interfaceCacheKey]bool),
}

// canAssign checks if concrete type can be assigned to interface type, with caching
func canAssign(concrete, iface reflect.Type) bool {
	if iface.Kind() != reflect.Interface {
		return concrete == iface
	}

	key := interfaceCacheKey{concrete: concrete, iface: iface}

	// Fast path: check cache
	globalInterfaceCache.mu.RLock()
	if result, ok := globalInterfaceCache.cache[key]; ok {
		globalInterfaceCache.mu.RUnlock()
		return result
	}
	globalInterfaceCache.mu.RUnlock()

	// Slow path: compute and cache
	result := concrete.AssignableTo(iface)

	globalInterfaceCache.mu.Lock()
	globalInterfaceCache.cache[key] = result
	globalInterfaceCache.mu.Unlock()

	return result
}

// valueOf converts a forwarded value into a reflect.Value usable as a parameter of
// type t. A nil value becomes the zero value of t.
func valueOf(v any, t reflect.Type) reflect.Value {
	if v == nil {
		return reflect.Zero(t)
	}
	rv := reflect.ValueOf(v)
	if rv.Type().AssignableTo(t) {
		return rv
	}
	return rv.Convert(t)
}

// argValue is valueOf for caller supplied arguments, where a mismatch is an error and
// not a programming bug inside the container.
func argValue(v any, t reflect.Type) (reflect.Value, error) {
	if v == nil {
		switch t.Kind() {
		case reflect.Chan, reflect.Func, reflect.Interface, reflect.Map, reflect.Pointer, reflect.Slice:
			return reflect.Zero(t), nil
		}
		return reflect.Value{}, fmt.Errorf("%w: nil is not a valid %v", ErrArgumentMismatch, t)
	}
	rv := reflect.ValueOf(v)
	if !rv.Type().AssignableTo(t) {
		return reflect.Value{}, fmt.Errorf("%w: %v is not assignable to %v", ErrArgumentMismatch, rv.Type(), t)
	}
	return rv, nil
}

// valueAs turns an untyped forwarded value back into T.
func valueAs[T any](v any) T {
	if v == nil {
		var zero T
		return zero
	}
	return v.(T)
}

func typeOf[T any]() reflect.Type {
	return reflect.TypeOf((*T)(nil)).Elem()
}
