package probesync

import "github.com/vantagehq/vantage/pkg/types"

// Changes is the result of comparing two config snapshots by probe id.
type Changes struct {
	Added   []types.ProbeConfig
	Updated []types.ProbeConfig
	Removed []string
}

func (c Changes) Empty() bool {
	return len(c.Added) == 0 && len(c.Updated) == 0 && len(c.Removed) == 0
}

// Diff compares snapshots by probe id. A probe whose serialized form
// is unchanged is left out entirely; a changed one shows up in Updated
// and must be rebuilt from scratch. old may be nil.
func Diff(old, new *types.ConfigSnapshot) Changes {
	var ch Changes

	prev := make(map[string]string)
	if old != nil {
		for _, p := range old.Probes {
			prev[p.ID] = p.Serialized()
		}
	}

	seen := make(map[string]bool, len(new.Probes))
	for _, p := range new.Probes {
		seen[p.ID] = true
		was, ok := prev[p.ID]
		switch {
		case !ok:
			ch.Added = append(ch.Added, p)
		case was != p.Serialized():
			ch.Updated = append(ch.Updated, p)
		}
	}
	if old != nil {
		for _, p := range old.Probes {
			if !seen[p.ID] {
				ch.Removed = append(ch.Removed, p.ID)
			}
		}
	}
	return ch
}
