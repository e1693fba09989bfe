// Package probe implements the agent's check execution engine. Each
// probe type watches one data source (a tailed log file, a polled
// URL, a pinged host), counts matcher hits inside a tumbling window,
// and emits an event for every matching unit at or past the
// configured threshold. Factory: New(config, sink) validates the
// config eagerly and returns the right instance for its type tag.
//
// Implemented types: log-scan (logscan.go), http (httpprobe.go),
// icmp (icmp.go). The window counter shared by all types lives in
// window.go.
package probe
