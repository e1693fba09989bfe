// Package zonewatch follows the host's zone lifecycle event stream and
// turns state transitions into up/down callbacks. The stream is
// expected to run for the life of the agent; losing it means the agent
// is blind to zone churn, so stream loss is fatal for the process.
package zonewatch

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os/exec"
)

// Transition is one line of the zone event stream.
type Transition struct {
	Zone     string `json:"zonename"`
	OldState string `json:"oldstate"`
	NewState string `json:"newstate"`
}

// Handler receives zone lifecycle callbacks. Calls arrive from the
// watcher goroutine, one at a time, in stream order.
type Handler interface {
	ZoneUp(zone string)
	ZoneDown(zone string)
}

// StreamFatalError means the zone event stream ended or produced
// output the watcher cannot parse. The process must exit; a blind
// agent running probes for dead zones is worse than no agent.
type StreamFatalError struct {
	Err error
}

func (e *StreamFatalError) Error() string {
	return fmt.Sprintf("zonewatch: event stream lost: %v", e.Err)
}

func (e *StreamFatalError) Unwrap() error { return e.Err }

// Run consumes the event stream until ctx is canceled. Any other way
// out is a *StreamFatalError.
func Run(ctx context.Context, r io.Reader, h Handler) error {
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		var tr Transition
		if err := json.Unmarshal(sc.Bytes(), &tr); err != nil {
			return &StreamFatalError{Err: fmt.Errorf("parse %q: %w", sc.Text(), err)}
		}
		dispatch(tr, h)
	}
	if ctx.Err() != nil {
		return ctx.Err()
	}
	err := sc.Err()
	if err == nil {
		err = io.EOF
	}
	return &StreamFatalError{Err: err}
}

func dispatch(tr Transition, h Handler) {
	switch {
	case tr.OldState == "running" && tr.NewState == "shutting_down":
		slog.Info("zonewatch: zone down", "zone", tr.Zone)
		h.ZoneDown(tr.Zone)
	case tr.OldState == "ready" && tr.NewState == "running":
		slog.Info("zonewatch: zone up", "zone", tr.Zone)
		h.ZoneUp(tr.Zone)
	default:
		slog.Debug("zonewatch: ignoring transition",
			"zone", tr.Zone, "old", tr.OldState, "new", tr.NewState)
	}
}

// StartCommand launches the platform's zone event emitter and returns
// its stdout for Run. The returned wait func reaps the subprocess.
func StartCommand(ctx context.Context, command string) (io.ReadCloser, func() error, error) {
	cmd := exec.CommandContext(ctx, command)
	out, err := cmd.StdoutPipe()
	if err != nil {
		return nil, nil, fmt.Errorf("zonewatch: pipe %s: %w", command, err)
	}
	if err := cmd.Start(); err != nil {
		return nil, nil, fmt.Errorf("zonewatch: start %s: %w", command, err)
	}
	return out, cmd.Wait, nil
}
