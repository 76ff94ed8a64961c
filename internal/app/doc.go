// Package app wires the remark publisher: config, logging, schedule,
// endpoint registry, transport, delivery journal, fan-out and runner.
//
// Lifecycle: New (fatal on any config or schedule error), Start, then Stop
// bounded by runner.shutdown_timeout. While running, config edits apply
// logging changes live, schedule edits and SIGHUP reload the schedule, and
// systemd is told READY/RELOADING/STOPPING.
package app
