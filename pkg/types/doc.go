// Package types holds the wire and data types shared between the
// vantage agent and master tiers: probe configurations, config
// snapshots, events, and contacts.
package types
