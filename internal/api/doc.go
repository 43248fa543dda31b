// Package api implements the HTTP API and WebSocket live feed of the device server.
//
// This package provides:
//   - Publish endpoints that validate commands and settings and hand them
//     to the gateway (send-command, update-settings, request-settings)
//   - Query endpoints over stored readings, settings snapshots and the audit trail
//   - A WebSocket live feed of ingested readings, filtered by device
//   - Optional HS256 bearer authentication
//   - Middleware stack (request ID, logging, recovery, CORS, body limit)
//
// # Response formats
//
// The send-command and update-settings endpoints keep the plain-text bodies
// the mobile app expects ("Command sent successfully.", "Invalid command
// data."). Every other response is JSON; errors use the envelope
//
//	{"error": {"code": "not_found", "message": "..."}}
//
// # Graceful Degradation
//
// The server runs with the broker disconnected. Reads and the live feed keep
// working; publish endpoints return 502.
package api
