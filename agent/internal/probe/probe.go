package probe

import (
	"context"
	"fmt"
	"time"

	"github.com/vantagehq/vantage/pkg/types"
)

// Sink receives the events a running probe emits.
type Sink func(types.Event)

// Probe is a single configured check instance.
//
// The lifecycle is Created -> Running -> Stopped. Start moves a probe
// to Running exactly once; Stop is idempotent and safe to call before
// Start. Stopped is terminal: a config change always builds a fresh
// instance, never restarts an old one.
type Probe interface {
	Start(ctx context.Context) error
	Stop()
}

// ProcessExitError reports that the subprocess backing a probe
// terminated while the probe was marked running. It is fatal for that
// instance only; restarting is the supervisor's business.
type ProcessExitError struct {
	ProbeID string
	Err     error
}

func (e *ProcessExitError) Error() string {
	return fmt.Sprintf("probe %s: monitored process exited: %v", e.ProbeID, e.Err)
}

func (e *ProcessExitError) Unwrap() error { return e.Err }

// New builds the probe instance for cfg, validating required fields
// eagerly. When validation fails a *types.ValidationError naming the
// missing field is returned and no instance exists.
func New(cfg types.ProbeConfig, sink Sink) (Probe, error) {
	if sink == nil {
		return nil, &types.ValidationError{Field: "sink"}
	}
	switch cfg.Type {
	case types.ProbeLogScan:
		return newLogScan(cfg, sink)
	case types.ProbeHTTP:
		return newHTTPProbe(cfg, sink)
	case types.ProbeICMP:
		return newICMPProbe(cfg, sink)
	default:
		return nil, &types.ValidationError{
			Field:  "type",
			Reason: fmt.Sprintf("unknown probe type %q", cfg.Type),
		}
	}
}

// lifecycle states shared by all probe types.
const (
	stateCreated = iota
	stateRunning
	stateStopped
)

func periodOf(cfg types.ProbeConfig) time.Duration {
	return time.Duration(cfg.Period) * time.Second
}

// defaultPollInterval is the poll cadence for polling probe types when
// the config leaves interval unset.
const defaultPollInterval = 90 * time.Second

// pollIntervalOf returns the poll cadence for cfg. The cadence must be
// shorter than the window period or a threshold above one can never be
// reached, so the default is capped at half the period.
func pollIntervalOf(cfg types.ProbeConfig) time.Duration {
	if cfg.Interval > 0 {
		return time.Duration(cfg.Interval) * time.Second
	}
	if period := periodOf(cfg); defaultPollInterval >= period {
		return period / 2
	}
	return defaultPollInterval
}

func alarmEvent(cfg types.ProbeConfig, metricName string, count int, data map[string]string) types.Event {
	return types.Event{
		Check:    cfg.ID,
		Zone:     cfg.Zone,
		Customer: cfg.User,
		Status:   types.StatusError,
		Metrics: []types.Metric{{
			Name:  metricName,
			Type:  "Integer",
			Value: float64(count),
		}},
		Data:    data,
		Created: time.Now().UTC(),
	}
}
