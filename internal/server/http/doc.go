// Package httpserver exposes the agent's local control API over HTTP JSON.
//
// The API is how on-device producers (and the bundled CLI) enqueue
// locations and inspect or drive the queue. It is a loopback surface,
// not the upstream ingestion endpoint.
package httpserver
