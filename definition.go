package svcgraph

import (
	"fmt"
	"reflect"
	"sync/atomic"

	typetostring "github.com/samber/go-type-to-string"
)

// Kind is the lifetime and forwarding strategy of a definition.
type Kind int

const (
	// KindSingle services are constructed once per container and forwarded as is.
	KindSingle Kind = iota

	// KindTransient services are constructed on every request and forwarded by value.
	KindTransient

	// KindUnique services are constructed on every request and forwarded as an
	// *Owned[T]. The container keeps no reference to them.
	KindUnique

	// KindShared services are constructed once per container and forwarded as a
	// reference counted *Ref[T].
	KindShared

	// KindAbstract services have no constructor. They forward the value of the
	// KindSingle definition they are bound to.
	KindAbstract

	// KindAbstractShared services have no constructor. They forward a new reference to
	// the KindShared definition they are bound to.
	KindAbstractShared
)

// String returns the human-readable name of the kind.
func (k Kind) String() string {
	switch k {
	case KindSingle:
		return "single"
	case KindTransient:
		return "transient"
	case KindUnique:
		return "unique"
	case KindShared:
		return "shared"
	case KindAbstract:
		return "abstract"
	case KindAbstractShared:
		return "abstract shared"
	default:
		return "unknown"
	}
}

// IsSingleInstance reports whether the kind constructs at most one value per container.
func (k Kind) IsSingleInstance() bool {
	return k == KindSingle || k == KindShared
}

// PerRequest reports whether every request constructs a new value.
func (k Kind) PerRequest() bool {
	return k == KindTransient || k == KindUnique
}

func (k Kind) isAbstract() bool {
	return k == KindAbstract || k == KindAbstractShared
}

// Dependency is anything that can be listed in DependsOn or Register: a *Definition
// or the result of Optional.
type Dependency interface {
	serviceRef() depRef
}

type depRef struct {
	svc      *service
	optional bool
}

// Definition declares how a service forwarding values of type T is built. Use Single,
// Transient, Unique, Shared, Abstract or AbstractShared to create one. Definitions
// are immutable and may be shared by any number of containers.
type Definition[T any] struct {
	svc *service
}

// Name returns the name used in errors and diagnostics.
func (d *Definition[T]) Name() string {
	return d.svc.name
}

// Kind returns the definition's kind.
func (d *Definition[T]) Kind() Kind {
	return d.svc.kind
}

func (d *Definition[T]) String() string {
	return d.svc.String()
}

func (d *Definition[T]) serviceRef() depRef {
	if d == nil {
		return depRef{}
	}
	return depRef{svc: d.svc}
}

type optionalRef struct {
	ref depRef
}

func (o optionalRef) serviceRef() depRef {
	return o.ref
}

// Optional marks a dependency on an abstract service as optional. When the abstract is
// neither bound nor has a default, the constructor receives the zero value instead of
// the resolution failing. On non-abstract definitions it has no effect.
func Optional(dep Dependency) Dependency {
	ref := dep.serviceRef()
	ref.optional = true
	return optionalRef{ref: ref}
}

// service is the untyped core shared by every Definition[T].
type service struct {
	id          uint64
	name        string
	kind        Kind
	valueType   reflect.Type // what the constructor builds
	forwardType reflect.Type // what consumers receive

	ctor     reflect.Value
	ctorInfo *funcInfo
	deps     []depRef
	args     []reflect.Type
	calls    []reflect.Value
	eager    bool
	fallback *service

	// own and share build the forwarded handle for unique and shared kinds.
	own   func(v any, cleanup cleanupFunc) any
	share func(st *refState) (any, error)
}

func (s *service) String() string {
	return fmt.Sprintf("%s [%s]", s.name, s.kind)
}

// ServiceOption configures a definition when it is created.
type ServiceOption func(*serviceConfig)

type serviceConfig struct {
	name     string
	deps     []depRef
	calls    []any
	eager    bool
	fallback Dependency
}

// DependsOn declares the services the constructor receives, in parameter order. Each
// dependency's forwarded type must be assignable to the matching parameter.
func DependsOn(deps ...Dependency) ServiceOption {
	return func(cfg *serviceConfig) {
		for _, dep := range deps {
			cfg.deps = append(cfg.deps, dep.serviceRef())
		}
	}
}

// Named overrides the name used in errors and diagnostics. The default is the Go type
// name of the service.
func Named(name string) ServiceOption {
	return func(cfg *serviceConfig) {
		cfg.name = name
	}
}

// WithCall registers a method (usually a method expression such as
// (*Server).SetLogger) to run right after construction. The first parameter receives
// the new value; an optional context.Context may follow; all other parameters are
// injected by type from the container's registered definitions. A returned error
// fails the construction.
func WithCall(method any) ServiceOption {
	return func(cfg *serviceConfig) {
		cfg.calls = append(cfg.calls, method)
	}
}

// Eager marks a single-instance definition to be constructed by Container.Start.
func Eager() ServiceOption {
	return func(cfg *serviceConfig) {
		cfg.eager = true
	}
}

// WithDefault gives an abstract definition a binding to use in containers that don't
// bind it explicitly.
func WithDefault(dep Dependency) ServiceOption {
	return func(cfg *serviceConfig) {
		cfg.fallback = dep
	}
}

var nextServiceID atomic.Uint64

// Single declares a service constructed once per container. ctor has the form
// func([ctx], deps...) T or func([ctx], deps...) (T, error).
func Single[T any](ctor any, opts ...ServiceOption) *Definition[T] {
	svc := newService(KindSingle, typeOf[T](), typeOf[T](), typetostring.GetType[T](), ctor, opts)
	return &Definition[T]{svc: svc}
}

// Transient declares a service constructed on every request. ctor has the form
// func([ctx], deps..., args...) T or (T, error); the trailing args are supplied through
// Construct or Factory.
func Transient[T any](ctor any, opts ...ServiceOption) *Definition[T] {
	svc := newService(KindTransient, typeOf[T](), typeOf[T](), typetostring.GetType[T](), ctor, opts)
	return &Definition[T]{svc: svc}
}

// Unique declares a service constructed on every request and forwarded as an
// *Owned[T] the consumer owns exclusively. ctor takes the same form as for Transient.
func Unique[T any](ctor any, opts ...ServiceOption) *Definition[*Owned[T]] {
	svc := newService(KindUnique, typeOf[T](), typeOf[*Owned[T]](), typetostring.GetType[T](), ctor, opts)
	svc.own = func(v any, cleanup cleanupFunc) any {
		return newOwned[T](v, cleanup)
	}
	return &Definition[*Owned[T]]{svc: svc}
}

// Shared declares a service constructed once per container and forwarded as a
// reference counted *Ref[T]. ctor takes the same form as for Single.
func Shared[T any](ctor any, opts ...ServiceOption) *Definition[*Ref[T]] {
	svc := newService(KindShared, typeOf[T](), typeOf[*Ref[T]](), typetostring.GetType[T](), ctor, opts)
	svc.share = shareFunc[T]()
	return &Definition[*Ref[T]]{svc: svc}
}

// Abstract declares a service that forwards the value of whatever Single definition a
// container binds to it with Bind.
func Abstract[T any](opts ...ServiceOption) *Definition[T] {
	svc := newService(KindAbstract, typeOf[T](), typeOf[T](), typetostring.GetType[T](), nil, opts)
	return &Definition[T]{svc: svc}
}

// AbstractShared declares a service that forwards references to whatever Shared
// definition a container binds to it with Bind.
func AbstractShared[T any](opts ...ServiceOption) *Definition[*Ref[T]] {
	svc := newService(KindAbstractShared, typeOf[T](), typeOf[*Ref[T]](), typetostring.GetType[T](), nil, opts)
	svc.share = shareFunc[T]()
	return &Definition[*Ref[T]]{svc: svc}
}

// newService validates the constructor against the declared dependencies and builds
// the untyped definition. Any mismatch is a wiring bug and panics.
func newService(kind Kind, valueType, forwardType reflect.Type, name string, ctor any, opts []ServiceOption) *service {
	cfg := serviceConfig{}
	for _, opt := range opts {
		opt(&cfg)
	}

	svc := &service{
		id:          nextServiceID.Add(1),
		name:        name,
		kind:        kind,
		valueType:   valueType,
		forwardType: forwardType,
		deps:        cfg.deps,
		eager:       cfg.eager,
	}
	if cfg.name != "" {
		svc.name = cfg.name
	}

	if kind.isAbstract() {
		if len(cfg.deps) > 0 || len(cfg.calls) > 0 || cfg.eager {
			panic(fmt.Sprintf("abstract service %s cannot declare dependencies, calls or eager construction", svc.name))
		}
		if cfg.fallback != nil {
			fallback := cfg.fallback.serviceRef().svc
			if err := checkBinding(svc, fallback); err != nil {
				panic(fmt.Sprintf("invalid default for %s: %v", svc.name, err))
			}
			svc.fallback = fallback
		}
		return svc
	}

	if cfg.fallback != nil {
		panic(fmt.Sprintf("WithDefault only applies to abstract services, not %s", svc))
	}
	if cfg.eager && !kind.IsSingleInstance() {
		panic(fmt.Sprintf("Eager only applies to single-instance services, not %s", svc))
	}

	svc.ctor = reflect.ValueOf(ctor)
	if ctor == nil || svc.ctor.Kind() != reflect.Func {
		panic(fmt.Sprintf("constructor for %s must be a function, got %T", svc.name, ctor))
	}
	info := getFuncInfo(svc.ctor.Type())
	svc.ctorInfo = info
	if info.variadic {
		panic(fmt.Sprintf("constructor for %s cannot be variadic", svc.name))
	}
	if len(info.results) != 1 {
		panic(fmt.Sprintf("constructor for %s must return exactly one value and an optional error", svc.name))
	}
	if !info.results[0].AssignableTo(valueType) {
		panic(fmt.Sprintf("constructor for %s returns %v, not assignable to %v", svc.name, info.results[0], valueType))
	}

	params := info.in
	if info.hasContextAt(0) {
		params = params[1:]
	}
	if len(params) < len(svc.deps) {
		panic(fmt.Sprintf("constructor for %s takes %d parameters but declares %d dependencies", svc.name, len(params), len(svc.deps)))
	}
	for i, dep := range svc.deps {
		if dep.svc == nil {
			panic(fmt.Sprintf("dependency %d of %s is an uninitialized definition", i, svc.name))
		}
		if !dep.svc.forwardType.AssignableTo(params[i]) {
			panic(fmt.Sprintf("dependency %s forwards %v, not assignable to parameter %d (%v) of %s",
				dep.svc.name, dep.svc.forwardType, i, params[i], svc.name))
		}
		if len(dep.svc.args) > 0 {
			panic(fmt.Sprintf("dependency %s of %s requires call arguments", dep.svc.name, svc.name))
		}
	}
	svc.args = params[len(svc.deps):]
	if len(svc.args) > 0 && !kind.PerRequest() {
		panic(fmt.Sprintf("constructor for %s has %d parameters beyond its dependencies; only transient and unique services take call arguments",
			svc, len(svc.args)))
	}

	for _, method := range cfg.calls {
		svc.calls = append(svc.calls, checkMethod(svc, method))
	}

	return svc
}

// checkMethod validates a WithCall method against the service's value type.
func checkMethod(svc *service, method any) reflect.Value {
	mv := reflect.ValueOf(method)
	if method == nil || mv.Kind() != reflect.Func {
		panic(fmt.Sprintf("WithCall for %s requires a function, got %T", svc.name, method))
	}
	info := getFuncInfo(mv.Type())
	if info.variadic {
		panic(fmt.Sprintf("WithCall for %s cannot use a variadic function", svc.name))
	}
	if len(info.in) == 0 || !svc.ctorInfo.results[0].AssignableTo(info.in[0]) {
		panic(fmt.Sprintf("WithCall for %s requires a function whose first parameter accepts %v", svc.name, svc.ctorInfo.results[0]))
	}
	return mv
}

// checkBinding verifies that concrete can stand in for abstract.
func checkBinding(abstract, concrete *service) error {
	var want Kind
	switch abstract.kind {
	case KindAbstract:
		want = KindSingle
	case KindAbstractShared:
		want = KindShared
	default:
		return fmt.Errorf("%w: %s is not abstract", ErrKindMismatch, abstract)
	}
	if concrete == nil {
		return fmt.Errorf("%w: %s bound to an uninitialized definition", ErrKindMismatch, abstract)
	}
	if concrete.kind != want {
		return fmt.Errorf("%w: %s must be bound to a %s service, got %s", ErrKindMismatch, abstract, want, concrete)
	}
	if !concrete.valueType.AssignableTo(abstract.valueType) {
		return fmt.Errorf("%w: %s builds %v, not assignable to %v", ErrKindMismatch, concrete, concrete.valueType, abstract.valueType)
	}
	return nil
}
