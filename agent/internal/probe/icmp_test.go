package probe

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/vantagehq/vantage/pkg/types"
)

func icmpConfig(threshold int) types.ProbeConfig {
	return types.ProbeConfig{
		ID:        "test/icmp",
		Type:      types.ProbeICMP,
		Zone:      "zone-1",
		User:      "cust-1",
		Host:      "10.0.0.1",
		Period:    60,
		Threshold: threshold,
	}
}

func TestICMPProbe_EmitsOnUnreachableHost(t *testing.T) {
	cfg := icmpConfig(2)
	cfg.Interval = 1

	events := make(chan types.Event, 16)
	p, err := newICMPProbe(cfg, func(ev types.Event) { events <- ev })
	if err != nil {
		t.Fatalf("newICMPProbe: %v", err)
	}
	p.ping = func(ctx context.Context, host string) error {
		return errors.New("100% packet loss")
	}

	if err := p.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer p.Stop()

	select {
	case ev := <-events:
		if ev.Metrics[0].Value != 2 {
			t.Errorf("counter: got %v, want 2 (threshold)", ev.Metrics[0].Value)
		}
		if ev.Data["host"] != "10.0.0.1" {
			t.Errorf("host context: got %q", ev.Data["host"])
		}
	case <-time.After(10 * time.Second):
		t.Fatal("no event emitted for unreachable host")
	}
}

func TestICMPProbe_HealthyHostEmitsNothing(t *testing.T) {
	cfg := icmpConfig(1)
	cfg.Interval = 1

	events := make(chan types.Event, 16)
	p, _ := newICMPProbe(cfg, func(ev types.Event) { events <- ev })
	p.ping = func(ctx context.Context, host string) error { return nil }

	if err := p.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer p.Stop()

	time.Sleep(1500 * time.Millisecond)
	select {
	case ev := <-events:
		t.Fatalf("unexpected event from healthy host: %+v", ev)
	default:
	}
}

func TestICMPProbe_Validation(t *testing.T) {
	cfg := icmpConfig(1)
	cfg.Host = ""
	_, err := New(cfg, func(types.Event) {})
	var verr *types.ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("New: got %v, want ValidationError", err)
	}
	if verr.Field != "host" {
		t.Errorf("Field: got %q, want host", verr.Field)
	}
}
