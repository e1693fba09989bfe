package probe

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os/exec"
	"strconv"
	"sync"
	"time"

	"github.com/vantagehq/vantage/pkg/types"
)

const icmpPackets = 5

// pinger sends one round of ICMP echoes to host and returns an error
// when the host is unreachable. The production pinger shells out to
// ping(1); tests substitute their own.
type pinger func(ctx context.Context, host string) error

func pingCommand(ctx context.Context, host string) error {
	cmd := exec.CommandContext(ctx, "ping", "-c", strconv.Itoa(icmpPackets), host)
	out, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("ping %s: %w (%s)", host, err, out)
	}
	return nil
}

// icmpProbe pings a host on the configured interval, with the window
// counter reset on the period timer. A failed round counts as one
// matching unit.
type icmpProbe struct {
	cfg      types.ProbeConfig
	sink     Sink
	win      *window
	ping     pinger
	interval time.Duration

	mu     sync.Mutex
	state  int
	cancel context.CancelFunc
}

func newICMPProbe(cfg types.ProbeConfig, sink Sink) (*icmpProbe, error) {
	switch {
	case cfg.Host == "":
		return nil, &types.ValidationError{Field: "host"}
	case cfg.Period <= 0:
		return nil, &types.ValidationError{Field: "period"}
	case cfg.Interval < 0:
		return nil, &types.ValidationError{Field: "interval"}
	case cfg.Threshold <= 0:
		return nil, &types.ValidationError{Field: "threshold"}
	}
	return &icmpProbe{
		cfg:      cfg,
		sink:     sink,
		win:      newWindow(cfg.Threshold),
		ping:     pingCommand,
		interval: pollIntervalOf(cfg),
	}, nil
}

func (p *icmpProbe) Start(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.state != stateCreated {
		return errors.New("probe " + p.cfg.ID + ": already started")
	}
	ctx, cancel := context.WithCancel(ctx)
	p.cancel = cancel
	p.state = stateRunning

	go p.pollLoop(ctx)
	return nil
}

func (p *icmpProbe) Stop() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.state = stateStopped
	if p.cancel != nil {
		p.cancel()
	}
}

func (p *icmpProbe) running() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state == stateRunning
}

func (p *icmpProbe) pollLoop(ctx context.Context) {
	poll := time.NewTicker(p.interval)
	defer poll.Stop()
	reset := time.NewTicker(periodOf(p.cfg))
	defer reset.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-reset.C:
			if !p.running() {
				return
			}
			p.win.reset()
		case <-poll.C:
			if !p.running() {
				return
			}
			p.observe(ctx)
		}
	}
}

func (p *icmpProbe) observe(ctx context.Context) {
	err := p.ping(ctx, p.cfg.Host)
	if err == nil {
		return
	}
	fire, count := p.win.hit()
	if !fire {
		return
	}
	slog.Info("probe: icmp alarm", "id", p.cfg.ID, "count", count, "host", p.cfg.Host)
	p.sink(alarmEvent(p.cfg, "vantage.icmp", count, map[string]string{
		"host":   p.cfg.Host,
		"reason": err.Error(),
	}))
}
