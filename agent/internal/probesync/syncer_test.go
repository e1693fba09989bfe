package probesync

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/vantagehq/vantage/pkg/types"
)

// configServer serves a fixed probe set on /config plus an agent-wide
// set on /agentprobes, and counts how it is asked for them.
type configServer struct {
	*httptest.Server
	heads atomic.Int64
	gets  atomic.Int64

	body   atomic.Value // []byte
	digest atomic.Value // string, overrides the real digest when set

	agentBody atomic.Value // []byte

	noGetDigest atomic.Bool // suppress Content-MD5 on GET responses
}

func newConfigServer(t *testing.T, probes []types.ProbeConfig) *configServer {
	t.Helper()
	cs := &configServer{}
	cs.setProbes(t, probes)
	cs.setAgentProbes(t, nil)

	cs.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body []byte
		var digest string
		var headStatus int
		switch {
		case r.URL.Path == "/config" && r.URL.Query().Get("zone") != "":
			body = cs.body.Load().([]byte)
			digest = cs.digest.Load().(string)
			headStatus = http.StatusNoContent
		case r.URL.Path == "/agentprobes":
			body = cs.agentBody.Load().([]byte)
			digest = types.ContentMD5(body)
			headStatus = http.StatusOK
		default:
			http.Error(w, "bad request", http.StatusBadRequest)
			return
		}
		switch r.Method {
		case http.MethodHead:
			cs.heads.Add(1)
			w.Header().Set(types.HeaderContentMD5, digest)
			w.WriteHeader(headStatus)
		case http.MethodGet:
			cs.gets.Add(1)
			if !cs.noGetDigest.Load() {
				w.Header().Set(types.HeaderContentMD5, digest)
			}
			w.Header().Set("Content-Type", "application/json")
			w.Write(body)
		default:
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		}
	}))
	t.Cleanup(cs.Close)
	return cs
}

func (cs *configServer) setProbes(t *testing.T, probes []types.ProbeConfig) {
	t.Helper()
	body, err := json.Marshal(types.ConfigSnapshot{Zone: "zone-1", Probes: probes})
	if err != nil {
		t.Fatalf("marshal config: %v", err)
	}
	cs.body.Store(body)
	cs.digest.Store(types.ContentMD5(body))
}

func (cs *configServer) setAgentProbes(t *testing.T, probes []types.ProbeConfig) {
	t.Helper()
	body, err := json.Marshal(probes)
	if err != nil {
		t.Fatalf("marshal agent probes: %v", err)
	}
	cs.agentBody.Store(body)
}

func logScanProbe(id, match string) types.ProbeConfig {
	return types.ProbeConfig{
		ID: id, Type: types.ProbeLogScan,
		Path: "/var/log/app.log", Period: 60, Match: match, Threshold: 3,
	}
}

func TestSync_FirstPassFetches(t *testing.T) {
	cs := newConfigServer(t, []types.ProbeConfig{logScanProbe("p1", "ERROR")})
	s := NewSyncer(NewClient(cs.URL), 0, nil)
	s.AddZone("zone-1")

	changed, snap, err := s.Sync(context.Background(), "zone-1")
	if err != nil {
		t.Fatalf("Sync: %v", err)
	}
	if !changed {
		t.Error("first sync reported unchanged")
	}
	if snap == nil || len(snap.Probes) != 1 || snap.Probes[0].ID != "p1" {
		t.Fatalf("snapshot: got %+v", snap)
	}
	if snap.Checksum == "" {
		t.Error("snapshot checksum not recorded")
	}
	if got := cs.gets.Load(); got != 1 {
		t.Errorf("GETs: got %d, want 1", got)
	}
}

func TestSync_UnchangedDigestSkipsFetch(t *testing.T) {
	cs := newConfigServer(t, []types.ProbeConfig{logScanProbe("p1", "ERROR")})
	s := NewSyncer(NewClient(cs.URL), 0, nil)
	s.AddZone("zone-1")

	if _, _, err := s.Sync(context.Background(), "zone-1"); err != nil {
		t.Fatalf("first Sync: %v", err)
	}
	getsAfterFirst := cs.gets.Load()

	changed, _, err := s.Sync(context.Background(), "zone-1")
	if err != nil {
		t.Fatalf("second Sync: %v", err)
	}
	if changed {
		t.Error("unchanged config reported as changed")
	}
	if got := cs.gets.Load(); got != getsAfterFirst {
		t.Errorf("second sync transferred a body: %d GETs total, want %d", got, getsAfterFirst)
	}
	if cs.heads.Load() == 0 {
		t.Error("second sync never asked for the digest")
	}
}

func TestSync_ChangedDigestRefetches(t *testing.T) {
	cs := newConfigServer(t, []types.ProbeConfig{logScanProbe("p1", "ERROR")})

	var gotOld, gotNew *types.ConfigSnapshot
	s := NewSyncer(NewClient(cs.URL), 0, func(zone string, old, new *types.ConfigSnapshot) {
		gotOld, gotNew = old, new
	})
	s.AddZone("zone-1")

	if _, _, err := s.Sync(context.Background(), "zone-1"); err != nil {
		t.Fatalf("first Sync: %v", err)
	}
	cs.setProbes(t, []types.ProbeConfig{logScanProbe("p1", "FATAL")})

	changed, snap, err := s.Sync(context.Background(), "zone-1")
	if err != nil {
		t.Fatalf("second Sync: %v", err)
	}
	if !changed {
		t.Fatal("changed config reported as unchanged")
	}
	if snap.Probes[0].Match != "FATAL" {
		t.Errorf("snapshot not refreshed: %+v", snap.Probes[0])
	}
	if gotOld == nil || gotOld.Probes[0].Match != "ERROR" {
		t.Errorf("onChange old: got %+v", gotOld)
	}
	if gotNew == nil || gotNew.Probes[0].Match != "FATAL" {
		t.Errorf("onChange new: got %+v", gotNew)
	}
}

func TestSync_IntegrityFailureKeepsSnapshot(t *testing.T) {
	cs := newConfigServer(t, []types.ProbeConfig{logScanProbe("p1", "ERROR")})
	s := NewSyncer(NewClient(cs.URL), 0, nil)
	s.AddZone("zone-1")

	if _, _, err := s.Sync(context.Background(), "zone-1"); err != nil {
		t.Fatalf("first Sync: %v", err)
	}
	before := s.Snapshot("zone-1")

	// Advertise a digest that cannot match any body.
	cs.digest.Store(types.ContentMD5([]byte("something else")))

	changed, snap, err := s.Sync(context.Background(), "zone-1")
	var ierr *IntegrityError
	if !errors.As(err, &ierr) {
		t.Fatalf("Sync: got %v, want IntegrityError", err)
	}
	if ierr.Zone != "zone-1" || ierr.Advertised == ierr.Computed {
		t.Errorf("IntegrityError fields: %+v", ierr)
	}
	if changed {
		t.Error("failed sync reported as changed")
	}
	if snap != before || s.Snapshot("zone-1") != before {
		t.Error("failed sync replaced the last-known-good snapshot")
	}
}

func TestSync_ServerErrorKeepsSnapshot(t *testing.T) {
	cs := newConfigServer(t, []types.ProbeConfig{logScanProbe("p1", "ERROR")})
	s := NewSyncer(NewClient(cs.URL), 0, nil)
	s.AddZone("zone-1")

	if _, _, err := s.Sync(context.Background(), "zone-1"); err != nil {
		t.Fatalf("first Sync: %v", err)
	}
	before := s.Snapshot("zone-1")
	cs.Close()

	changed, snap, err := s.Sync(context.Background(), "zone-1")
	if err == nil {
		t.Fatal("Sync against a dead master: expected error")
	}
	if changed || snap != before {
		t.Error("unreachable master disturbed the cached snapshot")
	}
}

func TestSync_MissingDigestHeaderRejected(t *testing.T) {
	cs := newConfigServer(t, []types.ProbeConfig{logScanProbe("p1", "ERROR")})
	s := NewSyncer(NewClient(cs.URL), 0, nil)
	s.AddZone("zone-1")

	if _, _, err := s.Sync(context.Background(), "zone-1"); err != nil {
		t.Fatalf("first Sync: %v", err)
	}
	before := s.Snapshot("zone-1")

	// New config, but the GET response carries no Content-MD5. The
	// body cannot be verified and must not replace the cached one.
	cs.setProbes(t, []types.ProbeConfig{logScanProbe("p1", "FATAL")})
	cs.noGetDigest.Store(true)

	changed, snap, err := s.Sync(context.Background(), "zone-1")
	if err == nil {
		t.Fatal("Sync accepted a body without a digest header")
	}
	if changed || snap != before || s.Snapshot("zone-1") != before {
		t.Error("unverifiable body disturbed the last-known-good snapshot")
	}
}

func TestSync_GlobalZoneUsesAgentProbes(t *testing.T) {
	cs := newConfigServer(t, nil)
	cs.setAgentProbes(t, []types.ProbeConfig{logScanProbe("smf", "maintenance")})
	s := NewSyncer(NewClient(cs.URL), 0, nil)
	s.AddZone(GlobalZone)

	changed, snap, err := s.Sync(context.Background(), GlobalZone)
	if err != nil {
		t.Fatalf("Sync: %v", err)
	}
	if !changed {
		t.Error("first global sync reported unchanged")
	}
	if snap.Zone != GlobalZone || len(snap.Probes) != 1 || snap.Probes[0].ID != "smf" {
		t.Fatalf("global snapshot: got %+v", snap)
	}
	getsAfterFirst := cs.gets.Load()

	changed, _, err = s.Sync(context.Background(), GlobalZone)
	if err != nil {
		t.Fatalf("second Sync: %v", err)
	}
	if changed {
		t.Error("unchanged agent probes reported as changed")
	}
	if got := cs.gets.Load(); got != getsAfterFirst {
		t.Errorf("second global sync transferred a body: %d GETs total, want %d", got, getsAfterFirst)
	}
}

func TestSyncer_ForgetDropsZone(t *testing.T) {
	cs := newConfigServer(t, []types.ProbeConfig{logScanProbe("p1", "ERROR")})
	s := NewSyncer(NewClient(cs.URL), 0, nil)
	s.AddZone("zone-1")
	if _, _, err := s.Sync(context.Background(), "zone-1"); err != nil {
		t.Fatalf("Sync: %v", err)
	}

	s.Forget("zone-1")
	if s.Snapshot("zone-1") != nil {
		t.Error("snapshot survived Forget")
	}
	if len(s.Zones()) != 0 {
		t.Errorf("Zones: got %v, want none", s.Zones())
	}
}
