package svcgraph

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrNotBound is returned when an abstract service is requested and the container
	// has no binding and the definition has no default.
	ErrNotBound = errors.New("abstract service not bound")

	// ErrAlreadyBound is returned when Bind is called for an abstract that already has
	// a binding in the same container and overrides are not enabled.
	ErrAlreadyBound = errors.New("abstract service already bound")

	// ErrCircularDependency is returned when the dependency graph contains a cycle.
	// The error message includes the full chain.
	ErrCircularDependency = errors.New("circular dependency detected")

	// ErrDuplicateService is returned by Register when two definitions forward the
	// same type and overrides are not enabled.
	ErrDuplicateService = errors.New("duplicate service for type")

	// ErrServiceNotFound is returned when a parameter type cannot be matched to a
	// registered definition.
	ErrServiceNotFound = errors.New("no service registered for type")

	// ErrAmbiguousService is returned when an interface parameter is satisfied by more
	// than one registered definition.
	ErrAmbiguousService = errors.New("multiple services match type")

	// ErrArgumentMismatch is returned when call arguments do not fit a constructor or
	// function.
	ErrArgumentMismatch = errors.New("argument mismatch")

	// ErrKindMismatch is returned when an operation is not valid for a definition's kind
	// or when a binding's types don't line up.
	ErrKindMismatch = errors.New("service kind mismatch")

	// ErrAlreadyConstructed is returned when Instance is used for a service that already
	// has a value and overrides are not enabled.
	ErrAlreadyConstructed = errors.New("service already constructed")

	// ErrShutdown is returned by any resolution after Shutdown.
	ErrShutdown = errors.New("container is shut down")

	// ErrAlreadyShutdown is returned by the second call to Shutdown.
	ErrAlreadyShutdown = errors.New("container already shut down")

	// ErrConstructorPanic wraps a panic raised by the constructor of a single-instance
	// service.
	ErrConstructorPanic = errors.New("constructor panicked")

	// ErrInvalidFunction is returned when a function handed to Invoke, Call, Factory or
	// Adapt has an unusable signature.
	ErrInvalidFunction = errors.New("invalid function")

	// ErrNoContainer is returned by Resolve when the context carries no container.
	ErrNoContainer = errors.New("no container available in context")
)

// ServiceError reports a failure while building a specific service. Chain is the
// resolution chain that led to it, outermost service first.
type ServiceError struct {
	Message     string
	Service     string
	Chain       []string
	SourceError error
}

func (e *ServiceError) Error() string {
	b := strings.Builder{}
	b.WriteString(fmt.Sprintf("%s: %s", e.Message, e.Service))
	if len(e.Chain) > 1 {
		b.WriteString(" (")
		b.WriteString(strings.Join(e.Chain, pathSep))
		b.WriteString(")")
	}
	if e.SourceError != nil {
		b.WriteString(": ")
		b.WriteString(e.SourceError.Error())
	}
	return b.String()
}

func (e *ServiceError) Unwrap() error {
	return e.SourceError
}

const pathSep = " -> "

func circularError(chain []string) error {
	return fmt.Errorf("%w: %s", ErrCircularDependency, strings.Join(chain, pathSep))
}
