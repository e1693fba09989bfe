// Package probesync keeps per-zone probe configuration in step with
// the master. A cheap digest check (HEAD, Content-MD5) decides whether
// the full config is fetched; fetched bodies are verified against the
// advertised digest before they replace the cached snapshot. Any
// failure leaves the last-known-good snapshot in place.
//
// The agent-wide probe set is synced the same way under the GlobalZone
// pseudo-zone, against /agentprobes instead of /config.
package probesync
