// Package httpserver provides the reusable HTTP shell for the tick relay
// binaries.
//
// BaseServer wires a chi router with structured request logging, standard
// health endpoints, optional pprof, and a separate Prometheus metrics
// listener. Relay-specific endpoints are attached through the
// RouteRegistrar interface, keeping the transport surface (package
// services) independent of server lifecycle concerns.
//
// Every server built on BaseServer exposes:
//
//   - /livez: liveness check
//   - /readyz: readiness check, toggled by drain state
//   - /drain, /undrain: readiness control for load balancers ahead of a
//     graceful shutdown
//   - /debug: pprof handlers, when enabled
//
// Shutdown waits for in-flight requests up to the configured grace
// period. Draining stops new participants from joining but does not
// interrupt a running round; stopping the round is the embedding
// service's decision.
package httpserver
