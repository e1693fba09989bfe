// Package api is the master's HTTP surface for agents: checksum-gated
// probe config on /config and /agentprobes, event intake on /events.
// Config responses always carry Content-MD5 so agents can HEAD first
// and skip unchanged bodies.
package api
