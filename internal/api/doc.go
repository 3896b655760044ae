// Package api implements the HTTP query API and the WebSocket feed of
// climated.
//
// This package provides:
//   - read-only endpoints for devices, rooms and stored readings
//   - JWT-protected provisioning and placement endpoints
//   - a WebSocket hub that pushes every accepted reading to subscribers
//   - middleware for request IDs, logging, recovery, CORS and rate limiting
//
// The server follows the same lifecycle pattern as other infrastructure
// components:
//
//	server, err := api.New(deps)
//	server.Start(ctx)
//	defer server.Close()
//
// # Live readings
//
// Server implements ingest.Observer. Registered on the consumer, it drops
// cached latest-reading responses and broadcasts the reading on the
// "reading.ingested" channel and on the device's own "device.{uid}" channel.
//
// # Security
//
// Query endpoints are public. Provisioning and placement changes need a
// bearer token minted with IssueToken (see "climated token"); without a
// configured secret they always answer 401.
//
// Thread Safety: All methods are safe for concurrent use from multiple goroutines.
package api
