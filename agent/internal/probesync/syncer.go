package probesync

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/vantagehq/vantage/pkg/types"
)

// DefaultPollInterval is how often each tracked zone is re-synced when
// the agent config does not say otherwise.
const DefaultPollInterval = 60 * time.Second

// OnChange is invoked after a zone's snapshot is replaced. old is nil
// on the first successful sync of a zone.
type OnChange func(zone string, old, new *types.ConfigSnapshot)

// Syncer tracks the last-known-good config snapshot per zone and keeps
// it current against the master.
type Syncer struct {
	client   *Client
	interval time.Duration
	onChange OnChange

	mu    sync.Mutex
	zones map[string]*types.ConfigSnapshot
}

func NewSyncer(client *Client, interval time.Duration, onChange OnChange) *Syncer {
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	return &Syncer{
		client:   client,
		interval: interval,
		onChange: onChange,
		zones:    make(map[string]*types.ConfigSnapshot),
	}
}

// AddZone starts tracking a zone. The next sync pass picks it up; no
// request is made here.
func (s *Syncer) AddZone(zone string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.zones[zone]; !ok {
		s.zones[zone] = nil
	}
}

// Forget drops a zone and its cached snapshot.
func (s *Syncer) Forget(zone string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.zones, zone)
}

// Snapshot returns the cached snapshot for a zone, nil if the zone has
// never synced successfully.
func (s *Syncer) Snapshot(zone string) *types.ConfigSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.zones[zone]
}

// Zones lists the tracked zone names.
func (s *Syncer) Zones() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.zones))
	for z := range s.zones {
		out = append(out, z)
	}
	return out
}

// Sync brings one zone up to date. When the cached snapshot's digest
// still matches the master's, no body is transferred and changed is
// false. Any error leaves the cached snapshot untouched.
func (s *Syncer) Sync(ctx context.Context, zone string) (changed bool, snap *types.ConfigSnapshot, err error) {
	s.mu.Lock()
	cached := s.zones[zone]
	s.mu.Unlock()

	if cached != nil {
		digest, err := s.client.Digest(ctx, zone)
		if err != nil {
			return false, cached, err
		}
		if digest == cached.Checksum {
			return false, cached, nil
		}
	}

	fresh, err := s.client.Fetch(ctx, zone)
	if err != nil {
		return false, cached, err
	}

	s.mu.Lock()
	s.zones[zone] = fresh
	s.mu.Unlock()

	slog.Info("sync: config updated", "zone", zone, "probes", len(fresh.Probes), "digest", fresh.Checksum)
	if s.onChange != nil {
		s.onChange(zone, cached, fresh)
	}
	return true, fresh, nil
}

// syncAll runs one pass over every tracked zone. Per-zone failures are
// logged and do not stop the pass.
func (s *Syncer) syncAll(ctx context.Context) {
	for _, zone := range s.Zones() {
		if ctx.Err() != nil {
			return
		}
		if _, _, err := s.Sync(ctx, zone); err != nil {
			slog.Error("sync: zone sync failed, keeping last config", "zone", zone, "error", err)
		}
	}
}

// Run polls all tracked zones until ctx is canceled, starting with an
// immediate pass.
func (s *Syncer) Run(ctx context.Context) error {
	s.syncAll(ctx)

	tick := time.NewTicker(s.interval)
	defer tick.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-tick.C:
			s.syncAll(ctx)
		}
	}
}
