// Package forward delivers finished events to the master. Validation
// happens before any network traffic so a malformed event never leaves
// the agent; delivery itself is single-shot, retry policy belongs to
// the caller.
package forward

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/vantagehq/vantage/pkg/types"
)

const requestTimeout = 30 * time.Second

// TransportError is a delivery failure after validation passed. A zero
// StatusCode means the request never completed.
type TransportError struct {
	StatusCode int
	Err        error
}

func (e *TransportError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("forward: master answered %d", e.StatusCode)
	}
	return fmt.Sprintf("forward: %v", e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// Client posts events to the master's /events endpoint.
type Client struct {
	baseURL string
	http    *http.Client
}

func New(baseURL string) *Client {
	return &Client{
		baseURL: baseURL,
		http:    &http.Client{Timeout: requestTimeout},
	}
}

// Forward validates ev, stamps id, creation time and expiry when they
// are unset, and posts it. Only a 201 counts as delivered.
func (c *Client) Forward(ctx context.Context, ev types.Event) error {
	if err := ev.Validate(); err != nil {
		return err
	}
	if ev.ID == "" {
		ev.ID = uuid.NewString()
	}
	if ev.Created.IsZero() {
		ev.Created = time.Now().UTC()
	}
	if ev.Expiry == 0 {
		ev.Expiry = types.DefaultEventExpiry
	}

	body, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("forward: encode event %s: %w", ev.ID, err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/events", bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(types.HeaderAPIVersion, types.APIVersion)
	req.Header.Set(types.HeaderContentMD5, types.ContentMD5(body))

	resp, err := c.http.Do(req)
	if err != nil {
		return &TransportError{Err: err}
	}
	io.Copy(io.Discard, resp.Body)
	resp.Body.Close()

	if resp.StatusCode != http.StatusCreated {
		return &TransportError{StatusCode: resp.StatusCode}
	}
	return nil
}
