// Package services exposes the tick relay to participants over HTTP and
// WebSocket.
//
// The relay core (package protocol) is transport-agnostic; this package
// is the host runtime side of the boundary. Participants join a lobby
// over a WebSocket connection; once the configured number have joined
// (or an operator posts /round/start), the service starts a round over
// the collected connections. Each connection doubles as the
// participant's delivery handle: the begin signal and per-tick fan-out
// payloads are pushed as JSON messages, and intent submissions are read
// from the same socket. A plain HTTP submission endpoint exists for
// hosts that separate their control and data paths.
//
// Submission rejections are silent toward the sender: the endpoints
// acknowledge receipt regardless of whether the intent was recorded,
// and drops are only visible in logs and metrics.
package services
