package svcgraph

import (
	"fmt"
	"reflect"
	"sort"
	"strings"
)

// Status is a diagnostic tool that returns a string describing the state of the
// container. Every service the container knows about, through Register, Bind or
// construction, gets one line saying whether it has been constructed and what its
// constructor looks like. Abstract services show what they are bound to. The status
// of the parent container follows after a separator line.
func (c *Container) Status() string {
	c.mu.RLock()
	known := map[uint64]*service{}
	for _, svc := range c.registered {
		known[svc.id] = svc
	}
	for _, inst := range c.instances {
		known[inst.svc.id] = inst.svc
	}
	bound := map[uint64]*service{}
	for id, b := range c.bindings {
		known[id] = b.abstract
		bound[id] = b.concrete
	}
	constructed := map[uint64]bool{}
	for id := range c.instances {
		constructed[id] = true
	}
	c.mu.RUnlock()

	lines := make([]string, 0, len(known))
	for id, svc := range known {
		var line string
		switch {
		case svc.kind.isAbstract():
			if concrete, ok := bound[id]; ok {
				line = fmt.Sprintf("%s - bound to %s", svc, concrete.name)
			} else if svc.fallback != nil {
				line = fmt.Sprintf("%s - default %s", svc, svc.fallback.name)
			} else {
				line = fmt.Sprintf("%s - not bound", svc)
			}
		case constructed[id]:
			line = fmt.Sprintf("%s - constructed - ctor: %s", svc, formatSignature(svc.ctor))
		default:
			line = fmt.Sprintf("%s - not constructed - ctor: %s", svc, formatSignature(svc.ctor))
		}
		lines = append(lines, line)
	}
	sort.Strings(lines)

	result := strings.Builder{}
	result.WriteString(strings.Join(lines, "\n"))

	if c.parent != nil {
		result.WriteString("\n----\nparent container:\n")
		result.WriteString(c.parent.Status())
	}
	return result.String()
}

// formatSignature returns a string representation of a constructor. This is used
// instead of `%#v` to leave out the function's address.
func formatSignature(fn reflect.Value) string {
	if !fn.IsValid() {
		return "-"
	}
	fnType := fn.Type()
	builder := strings.Builder{}
	builder.WriteString("(")
	for i := 0; i < fnType.NumIn(); i++ {
		if i > 0 {
			builder.WriteString(", ")
		}
		builder.WriteString(fnType.In(i).String())
	}
	builder.WriteString(") ")
	for i := 0; i < fnType.NumOut(); i++ {
		if i > 0 {
			builder.WriteString(", ")
		}
		builder.WriteString(fnType.Out(i).String())
	}
	return builder.String()
}
