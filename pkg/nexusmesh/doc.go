/*
Package nexusmesh is the control-plane half of a service mesh: a registry
that durably records routes (a path and its backend endpoints) and announces
every change so that out-of-process routers can update their live routing
tables without a restart.

# Overview

A RouteRegistry is built from two collaborators chosen by the caller:

  - a store.Store that holds one value per route under "route:<path>"
  - a bus.Bus that carries change notifications on "config_updates"

When both are the same Redis connection (redisconn.Conn), a registration is
written and announced in a single pipelined round trip. Otherwise the
registry writes, then publishes.

# Basic Usage

	conn, err := redisconn.Dial(ctx, "redis://localhost:6379")
	if err != nil {
	    log.Fatal(err)
	}

	registry, err := nexusmesh.New(conn, conn)
	if err != nil {
	    log.Fatal(err)
	}
	defer registry.Disconnect()

	result, err := registry.RegisterService(ctx, "/api/v1",
	    []string{"http://h1:3001", "http://h2:3001"})

	routes, err := registry.ListServices(ctx)

# Delivery

Notifications are fire-and-forget. A consumer that was not subscribed when
a route was announced never receives that announcement; it recovers by
listing the store (see the routetable package, which subscribes first and
then reconciles).

# Failure Semantics

Input is validated before any I/O and rejected with errors.ValidationError.
A registration that fails after validation returns errors.OperationError,
whose Stored and Published fields tell the caller which half took effect.
The registry never retries and never rolls back; callers that want retries
wrap calls with errors.WithRetryContext.
*/
package nexusmesh
