// Package supervisor owns the running probe instances of every zone on
// the host. It reacts to zone lifecycle callbacks, applies config
// snapshots by diffing them against what is running, and drains probe
// events to the master.
package supervisor

import (
	"context"
	"log/slog"
	"sync"

	"github.com/vantagehq/vantage/agent/internal/probe"
	"github.com/vantagehq/vantage/agent/internal/probesync"
	"github.com/vantagehq/vantage/pkg/types"
)

const defaultEventBuffer = 256

// Forwarder delivers one event upstream.
type Forwarder interface {
	Forward(ctx context.Context, ev types.Event) error
}

type instance struct {
	serialized string
	inst       probe.Probe
}

// Supervisor reconciles desired probe config with running instances,
// zone by zone.
type Supervisor struct {
	syncer *probesync.Syncer
	fwd    Forwarder
	events chan types.Event

	// newProbe builds a probe instance; tests substitute fakes.
	newProbe func(cfg types.ProbeConfig, sink probe.Sink) (probe.Probe, error)

	mu     sync.Mutex
	ctx    context.Context
	zones  map[string]map[string]*instance
	closed bool
}

func New(syncer *probesync.Syncer, fwd Forwarder, eventBuffer int) *Supervisor {
	if eventBuffer <= 0 {
		eventBuffer = defaultEventBuffer
	}
	return &Supervisor{
		syncer:   syncer,
		fwd:      fwd,
		events:   make(chan types.Event, eventBuffer),
		newProbe: probe.New,
		zones:    make(map[string]map[string]*instance),
	}
}

// emit queues an event for delivery. When the buffer is full the
// oldest queued event is dropped so probes never block on a slow or
// unreachable master.
func (s *Supervisor) emit(ev types.Event) {
	for {
		select {
		case s.events <- ev:
			return
		default:
		}
		select {
		case dropped := <-s.events:
			slog.Warn("supervisor: event buffer full, dropping oldest",
				"dropped_check", dropped.Check, "dropped_zone", dropped.Zone)
		default:
		}
	}
}

// ZoneUp starts tracking a zone and syncs its config right away.
func (s *Supervisor) ZoneUp(zone string) {
	s.syncer.AddZone(zone)

	s.mu.Lock()
	ctx := s.ctx
	s.mu.Unlock()
	if ctx == nil {
		return // Run not started yet, the initial sync pass covers it
	}
	go func() {
		if _, _, err := s.syncer.Sync(ctx, zone); err != nil {
			slog.Error("supervisor: initial sync for new zone failed", "zone", zone, "error", err)
		}
	}()
}

// ZoneDown stops every probe in the zone and forgets its config.
func (s *Supervisor) ZoneDown(zone string) {
	s.mu.Lock()
	insts := s.zones[zone]
	delete(s.zones, zone)
	s.mu.Unlock()

	for id, in := range insts {
		slog.Info("supervisor: stopping probe, zone went down", "zone", zone, "probe", id)
		in.inst.Stop()
	}
	s.syncer.Forget(zone)
}

// Apply reconciles a zone's running probes with a fresh snapshot. It
// is the Syncer's OnChange callback.
func (s *Supervisor) Apply(zone string, old, new *types.ConfigSnapshot) {
	ch := probesync.Diff(old, new)
	if ch.Empty() {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	running := s.zones[zone]
	if running == nil {
		running = make(map[string]*instance)
		s.zones[zone] = running
	}

	for _, id := range ch.Removed {
		if in, ok := running[id]; ok {
			slog.Info("supervisor: probe removed", "zone", zone, "probe", id)
			in.inst.Stop()
			delete(running, id)
		}
	}
	for _, cfg := range ch.Updated {
		s.startLocked(zone, cfg, running, "updated")
	}
	for _, cfg := range ch.Added {
		s.startLocked(zone, cfg, running, "added")
	}
}

// startLocked replaces running[cfg.ID] with a fresh instance. An
// existing entry with the same serialized form is left alone: two
// syncs can race to apply the same snapshot and the loser must not
// orphan the winner's probe. A differing entry is stopped first.
func (s *Supervisor) startLocked(zone string, cfg types.ProbeConfig, running map[string]*instance, why string) {
	if cfg.Zone == "" {
		cfg.Zone = zone
	}
	if prev, ok := running[cfg.ID]; ok {
		if prev.serialized == cfg.Serialized() {
			return
		}
		prev.inst.Stop()
		delete(running, cfg.ID)
	}
	in, err := s.newProbe(cfg, s.emit)
	if err != nil {
		slog.Error("supervisor: bad probe config, skipping", "zone", zone, "probe", cfg.ID, "error", err)
		return
	}
	ctx := s.ctx
	if ctx == nil {
		ctx = context.Background()
	}
	if err := in.Start(ctx); err != nil {
		slog.Error("supervisor: probe failed to start", "zone", zone, "probe", cfg.ID, "error", err)
		return
	}
	slog.Info("supervisor: probe "+why, "zone", zone, "probe", cfg.ID, "type", cfg.Type)
	running[cfg.ID] = &instance{serialized: cfg.Serialized(), inst: in}
}

// Running reports the ids of the probes currently running in a zone.
func (s *Supervisor) Running(zone string) []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := make([]string, 0, len(s.zones[zone]))
	for id := range s.zones[zone] {
		ids = append(ids, id)
	}
	return ids
}

// Run drains probe events to the master until ctx is canceled, then
// stops every probe. Delivery failures are logged and the event is
// dropped; the master keeps the durable copy only after a 201.
func (s *Supervisor) Run(ctx context.Context) error {
	s.mu.Lock()
	s.ctx = ctx
	s.mu.Unlock()

	for {
		select {
		case <-ctx.Done():
			s.shutdown()
			return ctx.Err()
		case ev := <-s.events:
			if err := s.fwd.Forward(ctx, ev); err != nil {
				slog.Error("supervisor: event delivery failed",
					"check", ev.Check, "zone", ev.Zone, "error", err)
			}
		}
	}
}

func (s *Supervisor) shutdown() {
	s.mu.Lock()
	s.closed = true
	zones := s.zones
	s.zones = make(map[string]map[string]*instance)
	s.mu.Unlock()

	for zone, insts := range zones {
		for id, in := range insts {
			slog.Info("supervisor: stopping probe on shutdown", "zone", zone, "probe", id)
			in.inst.Stop()
		}
	}
}
