// Package server provides the HTTP server for the Mission Control dashboard
// and API.
//
//   - Dashboard serving: the embedded HTML dashboard at "/"
//   - Widgets: "/api/widgets" for the current summary and "/api/widgets/sse"
//     for a stream of summaries
//   - Collections: one-shot reads, SSE streams and the websocket listener
//     protocol under "/api/collections/{name}"
//   - Writes and commands: PATCH/POST under "/api/collections" and
//     "/api/commands", guarded by an HS256 bearer token when an
//     [Authenticator] is set
//
// The server supports graceful shutdown via context cancellation, with a
// 5-second timeout for in-flight requests.
package server
