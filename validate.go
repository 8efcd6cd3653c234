package svcgraph

import (
	"fmt"
	"reflect"

	"github.com/hashicorp/go-multierror"
)

type visitState int

const (
	unvisited visitState = iota
	visiting
	visited
)

// graphWalker walks a dependency graph depth-first with the bindings of one
// container. Every reachable service is appended to order after its dependencies.
type graphWalker struct {
	c          *Container
	states     map[uint64]visitState
	order      []*service
	errs       *multierror.Error
	cyclesOnly bool
}

func (c *Container) newWalker(cyclesOnly bool) *graphWalker {
	return &graphWalker{
		c:          c,
		states:     map[uint64]visitState{},
		cyclesOnly: cyclesOnly,
	}
}

func (w *graphWalker) fail(err error) {
	w.errs = multierror.Append(w.errs, err)
}

func (w *graphWalker) visit(dep depRef, stack []*service) {
	svc := dep.svc
	if svc == nil {
		return
	}
	if svc.kind.isAbstract() {
		concrete := w.c.binding(svc)
		if concrete == nil {
			if !dep.optional && !w.cyclesOnly {
				w.fail(&ServiceError{
					Message:     "cannot resolve",
					Service:     svc.name,
					Chain:       append(names(stack), svc.name),
					SourceError: ErrNotBound,
				})
			}
			return
		}
		svc = concrete
	}

	switch w.states[svc.id] {
	case visiting:
		chain := names(stack)
		for i, s := range stack {
			if s == svc {
				chain = chain[i:]
				break
			}
		}
		w.fail(circularError(append(chain, svc.name)))
		return
	case visited:
		return
	}

	w.states[svc.id] = visiting
	stack = append(stack, svc)

	for _, d := range svc.deps {
		w.visit(d, stack)
	}
	for _, method := range svc.calls {
		w.visitCall(svc, method, stack)
	}

	w.states[svc.id] = visited
	w.order = append(w.order, svc)
}

// visitCall treats the injected parameters of a WithCall method as dependencies.
func (w *graphWalker) visitCall(svc *service, method reflect.Value, stack []*service) {
	info := getFuncInfo(method.Type())
	for i := 1; i < len(info.in); i++ {
		if i == 1 && info.hasContextAt(1) {
			continue
		}
		target, err := w.c.lookupType(info.in[i])
		if err != nil {
			if !w.cyclesOnly {
				w.fail(fmt.Errorf("call after constructing %s: %w", svc.name, err))
			}
			continue
		}
		w.visit(depRef{svc: target}, stack)
	}
}

func names(stack []*service) []string {
	result := make([]string, len(stack))
	for i, s := range stack {
		result[i] = s.name
	}
	return result
}

// Validate checks that every listed service, and everything it depends on, can be
// resolved in this container: abstract services are bound (or have a default, or are
// only reached through Optional), the graph has no cycles and WithCall parameters can
// be injected. All problems are reported together. With no arguments every
// registered service is checked.
//
// Nothing is constructed; Validate is the up-front equivalent of a graph that does not
// compile.
func (c *Container) Validate(deps ...Dependency) error {
	w := c.newWalker(false)
	for _, ref := range c.roots(deps) {
		w.visit(ref, nil)
	}
	return w.errs.ErrorOrNil()
}

// ConstructionChain returns the names of the services that building dep involves, in
// the order they are constructed: dependencies first, each once, dep last.
func (c *Container) ConstructionChain(dep Dependency) ([]string, error) {
	w := c.newWalker(false)
	w.visit(dep.serviceRef(), nil)
	if err := w.errs.ErrorOrNil(); err != nil {
		return nil, err
	}
	return names(w.order), nil
}

func (c *Container) roots(deps []Dependency) []depRef {
	if len(deps) > 0 {
		refs := make([]depRef, len(deps))
		for i, dep := range deps {
			refs[i] = dep.serviceRef()
		}
		return refs
	}

	var refs []depRef
	for cur := c; cur != nil; cur = cur.parent {
		cur.mu.RLock()
		for _, svc := range cur.registered {
			refs = append(refs, depRef{svc: svc})
		}
		cur.mu.RUnlock()
	}
	return refs
}

// ensureAcyclic checks the static graph below svc for cycles before its first
// construction. A cycle between services constructed on different goroutines would
// otherwise leave each waiting on the other. A verdict holds until a binding or
// registration changes anywhere in the container chain.
func (c *Container) ensureAcyclic(svc *service) error {
	gen := c.graphGeneration()
	c.mu.RLock()
	checked, ok := c.acyclic[svc.id]
	c.mu.RUnlock()
	if ok && checked == gen {
		return nil
	}

	w := c.newWalker(true)
	w.visit(depRef{svc: svc}, nil)
	if w.errs != nil && len(w.errs.Errors) > 0 {
		return w.errs.Errors[0]
	}

	c.mu.Lock()
	for _, s := range w.order {
		c.acyclic[s.id] = gen
	}
	c.mu.Unlock()
	return nil
}
