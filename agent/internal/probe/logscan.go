package probe

import (
	"bufio"
	"context"
	"errors"
	"io"
	"log/slog"
	"os/exec"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/vantagehq/vantage/pkg/types"
)

// tailSource attaches to the stream of new lines for a logscan probe.
// The production source spawns tail(1); tests substitute a pipe. The
// returned wait func blocks until the underlying stream producer has
// finished and reports its exit error.
type tailSource func(ctx context.Context, path string) (io.ReadCloser, func() error, error)

func tailCommand(ctx context.Context, path string) (io.ReadCloser, func() error, error) {
	cmd := exec.CommandContext(ctx, "/usr/bin/tail", "-1cF", path)
	out, err := cmd.StdoutPipe()
	if err != nil {
		return nil, nil, err
	}
	if err := cmd.Start(); err != nil {
		return nil, nil, err
	}
	return out, cmd.Wait, nil
}

// logScan tails a file and counts lines matching a regex.
type logScan struct {
	cfg    types.ProbeConfig
	regex  *regexp.Regexp
	sink   Sink
	win    *window
	source tailSource

	mu     sync.Mutex
	state  int
	cancel context.CancelFunc
}

func newLogScan(cfg types.ProbeConfig, sink Sink) (*logScan, error) {
	switch {
	case cfg.Path == "":
		return nil, &types.ValidationError{Field: "path"}
	case cfg.Period <= 0:
		return nil, &types.ValidationError{Field: "period"}
	case cfg.Match == "":
		return nil, &types.ValidationError{Field: "match"}
	case cfg.Threshold <= 0:
		return nil, &types.ValidationError{Field: "threshold"}
	}
	re, err := regexp.Compile(cfg.Match)
	if err != nil {
		return nil, &types.ValidationError{Field: "match", Reason: err.Error()}
	}
	return &logScan{
		cfg:    cfg,
		regex:  re,
		sink:   sink,
		win:    newWindow(cfg.Threshold),
		source: tailCommand,
	}, nil
}

func (p *logScan) Start(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.state != stateCreated {
		return errors.New("probe " + p.cfg.ID + ": already started")
	}

	ctx, cancel := context.WithCancel(ctx)
	rc, wait, err := p.source(ctx, p.cfg.Path)
	if err != nil {
		cancel()
		return err
	}
	p.cancel = cancel
	p.state = stateRunning

	go p.resetLoop(ctx, periodOf(p.cfg))
	go p.consume(rc, wait)
	return nil
}

// Stop tears down the tail and cancels the window timer. Safe to call
// repeatedly or before Start.
func (p *logScan) Stop() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.state = stateStopped
	if p.cancel != nil {
		p.cancel()
	}
}

func (p *logScan) running() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state == stateRunning
}

func (p *logScan) resetLoop(ctx context.Context, period time.Duration) {
	t := time.NewTicker(period)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			if !p.running() {
				return
			}
			slog.Debug("probe: logscan window reset", "id", p.cfg.ID)
			p.win.reset()
		}
	}
}

func (p *logScan) consume(rc io.ReadCloser, wait func() error) {
	defer rc.Close()

	sc := bufio.NewScanner(rc)
	for sc.Scan() {
		// A line delivered after Stop must be a no-op.
		if !p.running() {
			return
		}
		line := strings.TrimSpace(sc.Text())
		if line == "" || !p.regex.MatchString(line) {
			continue
		}
		fire, count := p.win.hit()
		slog.Debug("probe: logscan match",
			"id", p.cfg.ID, "count", count, "threshold", p.cfg.Threshold)
		if fire {
			slog.Info("probe: logscan alarm", "id", p.cfg.ID, "count", count, "match", line)
			p.sink(alarmEvent(p.cfg, "vantage.logscan", count, map[string]string{"match": line}))
		}
	}

	// The stream ending while we are still marked running means the
	// tail process died underneath us. Fatal for this instance only;
	// no automatic restart.
	if p.running() {
		exitErr := sc.Err()
		if wait != nil {
			if werr := wait(); werr != nil {
				exitErr = werr
			}
		}
		perr := &ProcessExitError{ProbeID: p.cfg.ID, Err: exitErr}
		slog.Error("probe: logscan tail exited, probe is dead", "id", p.cfg.ID, "err", perr)
		p.Stop()
	}
}
