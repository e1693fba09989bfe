package types

import "encoding/json"

// Probe type tags recognized by the agent runtime.
const (
	ProbeLogScan = "log-scan"
	ProbeHTTP    = "http"
	ProbeICMP    = "icmp"
)

// ProbeConfig describes one configured check. Identity is ID; whether
// a running instance must be replaced is decided by comparing
// serialized forms, never by identity alone.
//
// Period is the tumbling-window length in seconds. Interval is the
// poll cadence of polling probe types (http, icmp) and must be
// shorter than Period for a threshold above one to be reachable;
// unset means the probe type's default.
type ProbeConfig struct {
	ID          string `json:"id"`
	Type        string `json:"type"`
	Zone        string `json:"zone,omitempty"`
	User        string `json:"user,omitempty"`
	Path        string `json:"path,omitempty"`
	URL         string `json:"url,omitempty"`
	Host        string `json:"host,omitempty"`
	Period      int    `json:"period"`
	Interval    int    `json:"interval,omitempty"`
	Match       string `json:"match,omitempty"`
	StatusCodes []int  `json:"status_codes,omitempty"`
	Threshold   int    `json:"threshold"`
}

// Serialized returns the canonical serialized form used for change
// detection between config snapshots.
func (p ProbeConfig) Serialized() string {
	b, _ := json.Marshal(p)
	return string(b)
}

// ConfigSnapshot is the full probe set for one zone as fetched from
// upstream. A snapshot is immutable once built and is only ever
// replaced whole, never mutated in place.
type ConfigSnapshot struct {
	Zone     string        `json:"zone"`
	Checksum string        `json:"-"`
	Probes   []ProbeConfig `json:"probes"`
}
