package supervisor

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/vantagehq/vantage/agent/internal/probe"
	"github.com/vantagehq/vantage/agent/internal/probesync"
	"github.com/vantagehq/vantage/pkg/types"
)

type fakeProbe struct {
	cfg     types.ProbeConfig
	started atomic.Bool
	stopped atomic.Bool
}

func (f *fakeProbe) Start(ctx context.Context) error { f.started.Store(true); return nil }
func (f *fakeProbe) Stop()                           { f.stopped.Store(true) }

type fakeForwarder struct {
	mu     sync.Mutex
	events []types.Event
}

func (f *fakeForwarder) Forward(ctx context.Context, ev types.Event) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, ev)
	return nil
}

func (f *fakeForwarder) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.events)
}

// newTestSupervisor wires a supervisor whose probes are fakes tracked
// by id. The syncer points nowhere; tests drive Apply directly.
func newTestSupervisor(buffer int) (*Supervisor, map[string]*fakeProbe, *fakeForwarder) {
	fwd := &fakeForwarder{}
	sy := probesync.NewSyncer(probesync.NewClient("http://127.0.0.1:0"), 0, nil)
	s := New(sy, fwd, buffer)

	probes := make(map[string]*fakeProbe)
	s.newProbe = func(cfg types.ProbeConfig, sink probe.Sink) (probe.Probe, error) {
		fp := &fakeProbe{cfg: cfg}
		probes[cfg.ID] = fp
		return fp, nil
	}
	return s, probes, fwd
}

func probeCfg(id, match string) types.ProbeConfig {
	return types.ProbeConfig{
		ID: id, Type: types.ProbeLogScan,
		Path: "/var/log/app.log", Period: 60, Match: match, Threshold: 3,
	}
}

func snap(probes ...types.ProbeConfig) *types.ConfigSnapshot {
	return &types.ConfigSnapshot{Zone: "zone-1", Probes: probes}
}

func TestApply_StartsNewProbes(t *testing.T) {
	s, probes, _ := newTestSupervisor(0)

	s.Apply("zone-1", nil, snap(probeCfg("p1", "ERROR"), probeCfg("p2", "WARN")))

	if len(probes) != 2 {
		t.Fatalf("created probes: got %d, want 2", len(probes))
	}
	for id, fp := range probes {
		if !fp.started.Load() {
			t.Errorf("probe %s never started", id)
		}
	}
	if got := s.Running("zone-1"); len(got) != 2 {
		t.Errorf("Running: got %v, want 2 ids", got)
	}
}

func TestApply_UnchangedProbeUntouched(t *testing.T) {
	s, probes, _ := newTestSupervisor(0)
	old := snap(probeCfg("p1", "ERROR"))
	s.Apply("zone-1", nil, old)
	first := probes["p1"]

	s.Apply("zone-1", old, snap(probeCfg("p1", "ERROR")))

	if first.stopped.Load() {
		t.Error("unchanged probe was stopped")
	}
	if probes["p1"] != first {
		t.Error("unchanged probe was rebuilt")
	}
}

func TestApply_ChangedProbeRebuilt(t *testing.T) {
	s, probes, _ := newTestSupervisor(0)
	old := snap(probeCfg("p1", "ERROR"))
	s.Apply("zone-1", nil, old)
	first := probes["p1"]

	s.Apply("zone-1", old, snap(probeCfg("p1", "FATAL")))

	if !first.stopped.Load() {
		t.Error("stale instance kept running after config change")
	}
	second := probes["p1"]
	if second == first || !second.started.Load() {
		t.Error("changed probe not rebuilt from the new config")
	}
	if second.cfg.Match != "FATAL" {
		t.Errorf("new instance config: got match %q, want FATAL", second.cfg.Match)
	}
}

func TestApply_DuplicateSnapshotDoesNotOrphanProbes(t *testing.T) {
	s, probes, _ := newTestSupervisor(0)
	var created int
	s.newProbe = func(cfg types.ProbeConfig, sink probe.Sink) (probe.Probe, error) {
		created++
		fp := &fakeProbe{cfg: cfg}
		probes[cfg.ID] = fp
		return fp, nil
	}

	// Two sync passes for the same zone can race, both see no cached
	// snapshot, and both apply the same fresh one. The second apply
	// must leave the first instance running, not bury it.
	s.Apply("zone-1", nil, snap(probeCfg("p1", "ERROR")))
	first := probes["p1"]
	s.Apply("zone-1", nil, snap(probeCfg("p1", "ERROR")))

	if created != 1 {
		t.Errorf("probe instances created: got %d, want 1", created)
	}
	if first.stopped.Load() {
		t.Error("running probe stopped by the duplicate apply")
	}
	if got := s.Running("zone-1"); len(got) != 1 {
		t.Errorf("Running: got %v, want exactly [p1]", got)
	}
}

func TestApply_FillsZoneOnProbeConfig(t *testing.T) {
	s, probes, _ := newTestSupervisor(0)

	s.Apply("zone-1", nil, snap(probeCfg("p1", "ERROR")))

	if got := probes["p1"].cfg.Zone; got != "zone-1" {
		t.Errorf("probe config zone: got %q, want zone-1", got)
	}
}

func TestApply_RemovedProbeStopped(t *testing.T) {
	s, probes, _ := newTestSupervisor(0)
	old := snap(probeCfg("p1", "ERROR"), probeCfg("p2", "WARN"))
	s.Apply("zone-1", nil, old)

	s.Apply("zone-1", old, snap(probeCfg("p2", "WARN")))

	if !probes["p1"].stopped.Load() {
		t.Error("removed probe still running")
	}
	if probes["p2"].stopped.Load() {
		t.Error("surviving probe was stopped")
	}
	if got := s.Running("zone-1"); len(got) != 1 || got[0] != "p2" {
		t.Errorf("Running: got %v, want [p2]", got)
	}
}

func TestApply_BadConfigSkippedOthersStart(t *testing.T) {
	s, probes, _ := newTestSupervisor(0)
	s.newProbe = func(cfg types.ProbeConfig, sink probe.Sink) (probe.Probe, error) {
		if cfg.ID == "bad" {
			return nil, &types.ValidationError{Field: "match"}
		}
		fp := &fakeProbe{cfg: cfg}
		probes[cfg.ID] = fp
		return fp, nil
	}

	s.Apply("zone-1", nil, snap(probeCfg("bad", ""), probeCfg("good", "ERROR")))

	if got := s.Running("zone-1"); len(got) != 1 || got[0] != "good" {
		t.Errorf("Running: got %v, want [good]", got)
	}
}

func TestZoneDown_StopsZoneProbes(t *testing.T) {
	s, probes, _ := newTestSupervisor(0)
	s.Apply("zone-1", nil, snap(probeCfg("p1", "ERROR")))
	s.Apply("zone-2", nil, snap(probeCfg("p9", "ERROR")))

	s.ZoneDown("zone-1")

	if !probes["p1"].stopped.Load() {
		t.Error("probe in the downed zone still running")
	}
	if probes["p9"].stopped.Load() {
		t.Error("probe in an unrelated zone was stopped")
	}
	if got := s.Running("zone-1"); len(got) != 0 {
		t.Errorf("Running after ZoneDown: got %v, want none", got)
	}
}

func TestRun_DrainsEventsToForwarder(t *testing.T) {
	s, _, fwd := newTestSupervisor(8)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan struct{})
	go func() { s.Run(ctx); close(done) }()

	s.emit(types.Event{Check: "p1", Zone: "zone-1", Customer: "c", Status: types.StatusError,
		Metrics: []types.Metric{{Name: "m", Type: "Integer", Value: 1}}})

	deadline := time.Now().Add(2 * time.Second)
	for fwd.count() == 0 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	if fwd.count() != 1 {
		t.Fatalf("forwarded events: got %d, want 1", fwd.count())
	}

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

func TestEmit_FullBufferDropsOldest(t *testing.T) {
	s, _, _ := newTestSupervisor(2)

	for i := 0; i < 3; i++ {
		s.emit(types.Event{Check: "p" + string(rune('1'+i))})
	}

	first := <-s.events
	second := <-s.events
	if first.Check != "p2" || second.Check != "p3" {
		t.Errorf("buffered events: got %s, %s; want p2, p3 (oldest dropped)", first.Check, second.Check)
	}
}
