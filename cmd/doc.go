// Package cmd provides the CLI commands for the tick relay.
//
// # Commands
//
// relay: Runs the lockstep relay host. Participants join over WebSocket;
// once the configured number have joined, the round starts and the relay
// synchronizes tick advancement until the round is stopped.
//
//	go run ./cmd/relay --addr=:8080 --participants=2
//	go run ./cmd/relay --addr=:8080 --metrics-addr=:9090 --tick-interval=50ms
//
// Flags default from RELAY_* environment variables, so containerized
// deployments can configure the binary without a wrapper script.
package cmd
