// Package eventstore holds received events in memory, keyed by id,
// with secondary indexes by check, customer and zone. The primary
// write and the index appends are separate steps; a reader racing a
// writer can briefly see an event by id before it shows up in a list.
// Events carry their own expiry and a background loop (Run) evicts
// them when it passes.
package eventstore
