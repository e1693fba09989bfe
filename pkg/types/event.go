package types

import (
	"fmt"
	"time"
)

// Event status values.
const (
	StatusOK    = "ok"
	StatusError = "error"
)

// DefaultEventExpiry is how long the master retains an event, in
// seconds, when the event carries no expiry of its own.
const DefaultEventExpiry = 604800

// Metric is a single named measurement attached to an event.
type Metric struct {
	Name  string  `json:"name"`
	Type  string  `json:"type"`
	Value float64 `json:"value"`
}

// Event is one alarm-worthy observation emitted by a probe and
// forwarded upstream. The master owns an event once it has been
// forwarded; agents keep no durable copy.
type Event struct {
	ID       string            `json:"id"`
	Check    string            `json:"check"`
	Zone     string            `json:"zone"`
	Customer string            `json:"customer"`
	Status   string            `json:"status"`
	Metrics  []Metric          `json:"metrics"`
	Data     map[string]string `json:"data,omitempty"`
	Created  time.Time         `json:"created"`
	Expiry   int               `json:"expiry,omitempty"`
}

// Validate checks the fields every tier requires before an event may
// cross a trust boundary. It returns a *ValidationError naming the
// first missing field.
func (e Event) Validate() error {
	switch {
	case e.Check == "":
		return &ValidationError{Field: "check"}
	case e.Zone == "":
		return &ValidationError{Field: "zone"}
	case e.Status == "":
		return &ValidationError{Field: "status"}
	case e.Customer == "":
		return &ValidationError{Field: "customer"}
	case len(e.Metrics) == 0:
		return &ValidationError{Field: "metrics"}
	}
	if e.Status != StatusOK && e.Status != StatusError {
		return &ValidationError{Field: "status", Reason: fmt.Sprintf("must be %q or %q", StatusOK, StatusError)}
	}
	return nil
}

// ValidationError reports a required field missing or malformed at a
// trust boundary. It is always returned before any side effect has
// taken place.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Reason != "" {
		return fmt.Sprintf("%s %s", e.Field, e.Reason)
	}
	return fmt.Sprintf("%s is required", e.Field)
}
