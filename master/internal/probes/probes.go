// Package probes is the master's probe configuration source: a yaml
// file mapping zones to the probes that should run in them, plus the
// probes every agent runs in its global zone.
package probes

import (
	"fmt"
	"os"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/vantagehq/vantage/pkg/types"
)

// file is the on-disk shape of the probe repository.
type file struct {
	Zones map[string][]types.ProbeConfig `yaml:"zones"`
	Agent []types.ProbeConfig            `yaml:"agent"`
}

// Repo serves probe sets by zone. Reload swaps the whole table.
type Repo struct {
	mu    sync.RWMutex
	zones map[string][]types.ProbeConfig
	agent []types.ProbeConfig
}

// Load reads the probe repository from path.
func Load(path string) (*Repo, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("probes: read file: %w", err)
	}
	var f file
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("probes: parse yaml: %w", err)
	}
	if err := validate(f); err != nil {
		return nil, fmt.Errorf("probes: %w", err)
	}

	r := &Repo{zones: f.Zones, agent: f.Agent}
	if r.zones == nil {
		r.zones = make(map[string][]types.ProbeConfig)
	}
	return r, nil
}

func validate(f file) error {
	check := func(where string, ps []types.ProbeConfig) error {
		seen := make(map[string]bool, len(ps))
		for i, p := range ps {
			if p.ID == "" {
				return fmt.Errorf("%s[%d]: id is required", where, i)
			}
			if seen[p.ID] {
				return fmt.Errorf("%s: duplicate probe id %q", where, p.ID)
			}
			seen[p.ID] = true
			switch p.Type {
			case types.ProbeLogScan, types.ProbeHTTP, types.ProbeICMP:
			default:
				return fmt.Errorf("%s %q: unknown type %q", where, p.ID, p.Type)
			}
		}
		return nil
	}
	for zone, ps := range f.Zones {
		if err := check("zones."+zone, ps); err != nil {
			return err
		}
	}
	return check("agent", f.Agent)
}

// ProbesForZone returns the probe set configured for one zone, empty
// when the zone is unknown.
func (r *Repo) ProbesForZone(zone string) []types.ProbeConfig {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]types.ProbeConfig(nil), r.zones[zone]...)
}

// AgentProbes returns the probes every agent runs outside any zone.
func (r *Repo) AgentProbes() []types.ProbeConfig {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]types.ProbeConfig(nil), r.agent...)
}

// Replace swaps in a freshly loaded repository, for hot reload.
func (r *Repo) Replace(fresh *Repo) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.zones = fresh.zones
	r.agent = fresh.agent
}
