// Package server provides the HTTP server for the tadowatch API.
//
// This package is internal to tadowatch and handles all HTTP concerns:
//
//   - REST API: JSON endpoints at "/api/state" for the latest home
//     snapshot and "/api/usage" for live quota accounting
//   - Server-Sent Events: Real-time snapshot stream at "/api/sse"
//   - Liveness: "/healthz"
//
// Cancelling the Start context triggers graceful shutdown; in-flight
// requests get 5 seconds to drain.
//
// Users of the tadowatch library should not need to interact with this
// package directly. The server is started automatically by the watcher.
package server
