// Package telemetry feeds the System_Status collection.
//
// The main components are:
//
//   - [Scheduler]: probes [Target] URLs on a worker pool and emits [Reading]s
//   - [Publish]: writes readings to System_Status documents
//   - [Heartbeat]: samples CPU temperature into System_Status/thermal
//
// Writes go through a dispatch.Dispatcher, so the dashboard sees them only
// when its own listeners deliver them.
package telemetry
