package svcgraph

import (
	"context"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

// Start constructs every registered Eager service concurrently and waits for them. It
// returns the first construction error; services that were constructed stay
// constructed.
func (c *Container) Start(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)
	for _, svc := range c.eagerServices() {
		svc := svc
		g.Go(func() error {
			_, err := c.single(gctx, svc)
			return err
		})
	}
	return g.Wait()
}

// StartAsync constructs every registered Eager service in the background and returns
// immediately. The constructions see the values of ctx, but they are only cancelled when
// the container shuts down, not when ctx is. Failures are logged; a failed service is
// constructed again on its next request.
func (c *Container) StartAsync(ctx context.Context) {
	bg := &lifetimeContext{values: ctx, lifetime: c.lifetime}
	for _, svc := range c.eagerServices() {
		go func(svc *service) {
			defer func() {
				if r := recover(); r != nil {
					c.log.WithField("service", svc.name).Errorf("panic constructing eager service: %v", r)
				}
			}()
			if _, err := c.single(bg, svc); err != nil {
				c.log.WithFields(logrus.Fields{"service": svc.name}).WithError(err).Error("eager construction failed")
			}
		}(svc)
	}
}

// eagerServices lists the Eager services registered in this container and its
// parents, each once.
func (c *Container) eagerServices() []*service {
	seen := map[uint64]bool{}
	var result []*service
	for cur := c; cur != nil; cur = cur.parent {
		cur.mu.RLock()
		for _, svc := range cur.registered {
			if svc.eager && !seen[svc.id] {
				seen[svc.id] = true
				result = append(result, svc)
			}
		}
		cur.mu.RUnlock()
	}
	return result
}
