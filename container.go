package svcgraph

import (
	"context"
	"fmt"
	"io"
	"reflect"
	"sync"
	"sync/atomic"

	"github.com/hashicorp/go-multierror"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/singleflight"
)

// Container holds the instances of single-instance services and the bindings of
// abstract services. Definitions themselves carry no state, so the same definitions
// can be used with any number of containers.
//
// Services are constructed lazily on first request. Single and Shared services are
// constructed at most once per container even when requested concurrently; other
// requesters wait for the construction in progress, honoring their context.
//
// A container can be forked. The fork sees every instance the parent has already
// constructed and every binding the parent has, but anything it constructs or binds
// stays in the fork. This makes forks suitable for request or test scopes:
//
//	root := svcgraph.New()
//	svcgraph.Bind(root, LoggerService, FileLoggerService)
//
//	test := root.Fork()
//	svcgraph.Bind(test, LoggerService, MemoryLoggerService) // shadows the root binding
//
// Shutdown disposes of the single-instance values in reverse construction order.
type Container struct {
	parent *Container

	mu         sync.RWMutex
	instances  map[uint64]*instance
	order      []*instance
	bindings   map[uint64]binding
	registry   map[reflect.Type]*service
	registered []*service
	shutdown   bool

	// acyclic maps a service to the graph generation it was last found acyclic in.
	acyclic  map[uint64]uint64
	graphGen atomic.Uint64

	flights singleflight.Group

	log          logrus.FieldLogger
	timing       TimingMode
	overrides    bool
	cleanupFuncs map[reflect.Type]cleanupFunc

	// lifetime is cancelled by Shutdown; background constructions use it for
	// cancellation.
	lifetime context.Context
	cancel   context.CancelFunc
}

type instance struct {
	svc   *service
	value any       // single
	state *refState // shared
}

type binding struct {
	abstract *service
	concrete *service
}

// New creates an empty Container.
func New(opts ...Option) *Container {
	logger := logrus.New()
	logger.SetLevel(logrus.InfoLevel)

	c := newContainer(context.Background())
	c.log = logger
	c.cleanupFuncs = map[reflect.Type]cleanupFunc{}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func newContainer(parent context.Context) *Container {
	lifetime, cancel := context.WithCancel(parent)
	return &Container{
		instances: map[uint64]*instance{},
		bindings:  map[uint64]binding{},
		registry:  map[reflect.Type]*service{},
		acyclic:   map[uint64]uint64{},
		lifetime:  lifetime,
		cancel:    cancel,
	}
}

// Fork returns a child container. The child inherits the parent's configuration,
// instances and bindings; instances it constructs and bindings it adds stay in the
// child. Shutting down the parent cancels the child's background constructions but
// does not dispose of the child's instances.
func (c *Container) Fork() *Container {
	child := newContainer(c.lifetime)
	child.parent = c
	child.log = c.log
	child.timing = c.timing
	child.overrides = c.overrides
	child.cleanupFuncs = c.cleanupFuncs
	return child
}

// Bind makes abstract forward the value of concrete in this container and its forks.
// An Abstract must be bound to a Single and an AbstractShared to a Shared, and the
// concrete value type must be assignable to the abstract one.
func Bind[T, C any](c *Container, abstract *Definition[T], concrete *Definition[C]) error {
	return c.bind(abstract.svc, concrete.svc)
}

func (c *Container) bind(abstract, concrete *service) error {
	if err := checkBinding(abstract, concrete); err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.shutdown {
		return ErrShutdown
	}
	if existing, ok := c.bindings[abstract.id]; ok && !c.overrides {
		return fmt.Errorf("%w: %s to %s", ErrAlreadyBound, abstract, existing.concrete)
	}
	c.bindings[abstract.id] = binding{abstract: abstract, concrete: concrete}
	c.graphGen.Add(1)

	c.log.WithFields(logrus.Fields{"abstract": abstract.name, "concrete": concrete.name}).Debug("bound abstract service")
	return nil
}

// binding finds the concrete service for an abstract one: the closest binding in the
// container chain, else the definition's default. It returns nil if there is neither.
func (c *Container) binding(abstract *service) *service {
	for cur := c; cur != nil; cur = cur.parent {
		cur.mu.RLock()
		b, ok := cur.bindings[abstract.id]
		cur.mu.RUnlock()
		if ok {
			return b.concrete
		}
	}
	return abstract.fallback
}

// Register indexes definitions by the type they forward. Registered definitions are
// what Invoke, Call, Adapt and WithCall inject from, and what Start constructs when
// they are Eager. Registering the same definition twice is harmless; two different
// definitions forwarding the same type need WithOverrides.
func (c *Container) Register(deps ...Dependency) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	var result *multierror.Error
	for _, dep := range deps {
		svc := dep.serviceRef().svc
		if svc == nil {
			result = multierror.Append(result, fmt.Errorf("%w: uninitialized definition", ErrKindMismatch))
			continue
		}
		existing, ok := c.registry[svc.forwardType]
		if ok && existing == svc {
			continue
		}
		if ok && !c.overrides {
			result = multierror.Append(result, fmt.Errorf("%w: %v provided by %s and %s", ErrDuplicateService, svc.forwardType, existing, svc))
			continue
		}
		if ok {
			for i, r := range c.registered {
				if r == existing {
					c.registered = append(c.registered[:i], c.registered[i+1:]...)
					break
				}
			}
		}
		c.registry[svc.forwardType] = svc
		c.registered = append(c.registered, svc)
		c.graphGen.Add(1)
	}
	return result.ErrorOrNil()
}

// graphGeneration changes whenever a binding or registration changes anywhere in the
// container chain.
func (c *Container) graphGeneration() uint64 {
	var gen uint64
	for cur := c; cur != nil; cur = cur.parent {
		gen += cur.graphGen.Load()
	}
	return gen
}

// lookupType finds the registered definition that can fill a parameter of type t: an
// exact match anywhere in the container chain, else the only definition whose
// forwarded type is assignable to an interface t. Containers are searched closest
// first; a forwarded type registered in a fork hides the parent's registration of it.
func (c *Container) lookupType(t reflect.Type) (*service, error) {
	for cur := c; cur != nil; cur = cur.parent {
		cur.mu.RLock()
		svc, ok := cur.registry[t]
		cur.mu.RUnlock()
		if ok {
			return svc, nil
		}
	}

	if t.Kind() == reflect.Interface {
		shadowed := map[reflect.Type]bool{}
		for cur := c; cur != nil; cur = cur.parent {
			level := cur.currentRegistrations()
			var found *service
			for _, svc := range level {
				if shadowed[svc.forwardType] || !canAssign(svc.forwardType, t) {
					continue
				}
				if found != nil {
					return nil, fmt.Errorf("%w: %v is provided by %s and %s", ErrAmbiguousService, t, found, svc)
				}
				found = svc
			}
			if found != nil {
				return found, nil
			}
			for _, svc := range level {
				shadowed[svc.forwardType] = true
			}
		}
	}

	return nil, fmt.Errorf("%w: %v", ErrServiceNotFound, t)
}

// currentRegistrations lists the definitions registered in this container, in
// registration order.
func (c *Container) currentRegistrations() []*service {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return append([]*service(nil), c.registered...)
}

// Instance stores value as the instance of a Single definition, as if its constructor
// had returned it.
func Instance[T any](c *Container, def *Definition[T], value T) error {
	if def.svc.kind != KindSingle {
		return fmt.Errorf("%w: Instance requires a single service, got %s", ErrKindMismatch, def.svc)
	}
	return c.seed(&instance{svc: def.svc, value: value})
}

// SharedInstance stores value as the instance of a Shared definition. The container
// holds the first reference.
func SharedInstance[T any](c *Container, def *Definition[*Ref[T]], value T) error {
	if def.svc.kind != KindShared {
		return fmt.Errorf("%w: SharedInstance requires a shared service, got %s", ErrKindMismatch, def.svc)
	}
	return c.seed(&instance{svc: def.svc, state: newRefState(value, c.cleanupFunc(def.svc.valueType))})
}

// seed stores a given instance. An instance it replaces is disposed of the way Shutdown
// would have.
func (c *Container) seed(inst *instance) error {
	c.mu.Lock()
	if c.shutdown {
		c.mu.Unlock()
		return ErrShutdown
	}
	old, replaced := c.instances[inst.svc.id]
	if replaced {
		if !c.overrides {
			c.mu.Unlock()
			return fmt.Errorf("%w: %s", ErrAlreadyConstructed, inst.svc)
		}
		for i, o := range c.order {
			if o == old {
				c.order = append(c.order[:i], c.order[i+1:]...)
				break
			}
		}
	}
	c.instances[inst.svc.id] = inst
	c.order = append(c.order, inst)
	c.mu.Unlock()

	if replaced {
		if err := c.dispose(old); err != nil {
			c.log.WithError(err).WithField("service", inst.svc.name).Warn("cleanup of replaced instance failed")
		}
	}
	return nil
}

// store records a freshly constructed single-instance value. If the container was shut
// down in the meantime the value is disposed of right away.
func (c *Container) store(inst *instance) (*instance, error) {
	c.mu.Lock()
	if c.shutdown {
		c.mu.Unlock()
		if err := c.dispose(inst); err != nil {
			c.log.WithError(err).WithField("service", inst.svc.name).Warn("cleanup after shutdown failed")
		}
		return nil, ErrShutdown
	}
	c.instances[inst.svc.id] = inst
	c.order = append(c.order, inst)
	c.mu.Unlock()
	return inst, nil
}

// findInstance looks for a constructed single-instance value in the container chain.
func (c *Container) findInstance(id uint64) (*instance, bool) {
	for cur := c; cur != nil; cur = cur.parent {
		cur.mu.RLock()
		inst, ok := cur.instances[id]
		cur.mu.RUnlock()
		if ok {
			return inst, true
		}
	}
	return nil, false
}

// Contains reports whether the service has a value in this container or a parent. For
// abstract services it checks the bound concrete service.
func (c *Container) Contains(dep Dependency) bool {
	svc := dep.serviceRef().svc
	if svc.kind.isAbstract() {
		svc = c.binding(svc)
		if svc == nil {
			return false
		}
	}
	_, ok := c.findInstance(svc.id)
	return ok
}

func (c *Container) isShutdown() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.shutdown
}

// Shutdown disposes of every single-instance value this container constructed or was
// given, in reverse construction order (dependents before their dependencies). Single
// values go through the cleanup function registered for their type or, failing that,
// io.Closer. Shared values only lose the container's reference; they are cleaned up
// once consumers release theirs. The context bounds the whole shutdown; once it
// expires the remaining values are skipped and the context error is included in the
// result.
//
// Shutdown is safe to call multiple times; subsequent calls return ErrAlreadyShutdown.
func (c *Container) Shutdown(ctx context.Context) error {
	c.mu.Lock()
	if c.shutdown {
		c.mu.Unlock()
		return ErrAlreadyShutdown
	}
	c.shutdown = true
	order := c.order
	c.order = nil
	c.mu.Unlock()

	c.cancel()

	var result *multierror.Error
	for i := len(order) - 1; i >= 0; i-- {
		if err := ctx.Err(); err != nil {
			result = multierror.Append(result, err)
			break
		}
		inst := order[i]
		if err := c.dispose(inst); err != nil {
			c.log.WithError(err).WithField("service", inst.svc.name).Warn("cleanup failed")
			result = multierror.Append(result, fmt.Errorf("closing %s: %w", inst.svc.name, err))
		}
	}

	c.log.WithField("services", len(order)).Debug("container shut down")
	return result.ErrorOrNil()
}

func (c *Container) dispose(inst *instance) error {
	if inst.state != nil {
		return inst.state.release()
	}
	return c.runCleanup(inst.svc.valueType, inst.value)
}

func (c *Container) cleanupFunc(valueType reflect.Type) cleanupFunc {
	return func(v any) error {
		return c.runCleanup(valueType, v)
	}
}

// runCleanup disposes of v with the cleanup function registered for its dynamic type
// or its declared type, else io.Closer.
func (c *Container) runCleanup(valueType reflect.Type, v any) error {
	if v == nil {
		return nil
	}
	if fn, ok := c.cleanupFuncs[reflect.TypeOf(v)]; ok {
		return fn(v)
	}
	if fn, ok := c.cleanupFuncs[valueType]; ok {
		return fn(v)
	}
	if closer, ok := v.(io.Closer); ok {
		return closer.Close()
	}
	return nil
}
