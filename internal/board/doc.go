// Package board keeps the dashboard's widgets current.
//
// A [Board] subscribes to System_Status, ledger, Active_Agents and config
// through one subscription store. Every snapshot or error recomputes a
// [Summary], which is fanned out to subscribers such as the SSE endpoint.
package board
