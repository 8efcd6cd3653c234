// Package svcgraph is a dependency injection container built around typed service
// definitions. A definition pairs a constructor with the list of definitions it depends
// on and a kind that controls lifetime and how the value is handed to consumers:
//
//   - Single: constructed once per container, every consumer gets the same value.
//   - Transient: constructed on every request and handed over by value. The constructor
//     may take call arguments after its dependencies.
//   - Unique: constructed on every request and handed over as an *Owned[T], which the
//     consumer owns exclusively and closes.
//   - Shared: constructed once and handed over as a reference counted *Ref[T]. The value
//     is cleaned up when the last reference is released.
//   - Abstract / AbstractShared: interface-typed definitions that are bound per container
//     to a concrete Single / Shared definition.
//
// Definitions are normally package level variables:
//
//	var ConfigService = svcgraph.Single[*Config](LoadConfig)
//	var DBService = svcgraph.Shared[*sql.DB](OpenDB, svcgraph.DependsOn(ConfigService))
//	var RequestService = svcgraph.Transient[*Request](NewRequest, svcgraph.DependsOn(DBService))
//
//	c := svcgraph.New()
//	req, err := svcgraph.Construct(ctx, c, RequestService, "request-id")
//
// Constructor signatures are checked against the declared dependencies when the
// definition is created, so a miswired graph fails at program start. The Container's
// Validate walks a whole graph (bindings included) and reports every problem at once.
//
// The Container has comprehensive documentation on forking, bindings and shutdown.
package svcgraph
