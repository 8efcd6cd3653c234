package svcgraph

import (
	"context"
)

type chain int

const chainKey chain = 0

// chainLink is one step of the resolution chain carried in the context. Each
// construction pushes its service so a constructor that asks for one of its own
// dependents, directly or through the container in its context, is caught.
type chainLink struct {
	svc    *service
	parent *chainLink
}

// enterChain pushes svc onto the resolution chain of ctx and fails if it is already
// on it.
func enterChain(ctx context.Context, svc *service) (context.Context, error) {
	head, _ := ctx.Value(chainKey).(*chainLink)
	for l := head; l != nil; l = l.parent {
		if l.svc == svc {
			names := head.names()
			for i, name := range names {
				if name == svc.name {
					names = names[i:]
					break
				}
			}
			return nil, circularError(append(names, svc.name))
		}
	}
	return context.WithValue(ctx, chainKey, &chainLink{svc: svc, parent: head}), nil
}

// names returns the chain outermost first.
func (l *chainLink) names() []string {
	var names []string
	for cur := l; cur != nil; cur = cur.parent {
		names = append(names, cur.svc.name)
	}
	for i, j := 0, len(names)-1; i < j; i, j = i+1, j-1 {
		names[i], names[j] = names[j], names[i]
	}
	return names
}

// chainOf returns the names on the resolution chain of ctx.
func chainOf(ctx context.Context) []string {
	head, _ := ctx.Value(chainKey).(*chainLink)
	if head == nil {
		return nil
	}
	return head.names()
}
