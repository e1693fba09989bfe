package probesync

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/vantagehq/vantage/pkg/types"
)

const requestTimeout = 30 * time.Second

// GlobalZone is the pseudo-zone for the agent-wide probe set that runs
// on the host itself. It syncs through /agentprobes instead of
// /config but with the same digest gating.
const GlobalZone = "global"

// IntegrityError reports a config body whose computed digest does not
// match the one the master advertised. The payload must be discarded.
type IntegrityError struct {
	Zone       string
	Advertised string
	Computed   string
}

func (e *IntegrityError) Error() string {
	return fmt.Sprintf("config for zone %s failed integrity check: advertised %s, computed %s",
		e.Zone, e.Advertised, e.Computed)
}

// Client fetches probe configuration from the master config API.
type Client struct {
	baseURL string
	http    *http.Client
}

func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: baseURL,
		http:    &http.Client{Timeout: requestTimeout},
	}
}

// endpoint returns the config URL for a zone and the status a HEAD of
// it answers. The master replies 204 for per-zone config and 200 for
// the agent-wide set.
func (c *Client) endpoint(zone string) (configURL string, headStatus int) {
	if zone == GlobalZone {
		return c.baseURL + "/agentprobes", http.StatusOK
	}
	return c.baseURL + "/config?zone=" + url.QueryEscape(zone), http.StatusNoContent
}

// Digest asks the master for the current config checksum of a zone
// without transferring the body.
func (c *Client) Digest(ctx context.Context, zone string) (string, error) {
	configURL, headStatus := c.endpoint(zone)
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, configURL, nil)
	if err != nil {
		return "", err
	}
	req.Header.Set(types.HeaderAPIVersion, types.APIVersion)

	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("sync: digest for zone %s: %w", zone, err)
	}
	io.Copy(io.Discard, resp.Body)
	resp.Body.Close()

	if resp.StatusCode != headStatus {
		return "", fmt.Errorf("sync: digest for zone %s: unexpected status %d", zone, resp.StatusCode)
	}
	digest := resp.Header.Get(types.HeaderContentMD5)
	if digest == "" {
		return "", fmt.Errorf("sync: digest for zone %s: master sent no %s header", zone, types.HeaderContentMD5)
	}
	return digest, nil
}

// Fetch retrieves the full config for a zone and verifies the body
// against the advertised Content-MD5 before decoding it.
func (c *Client) Fetch(ctx context.Context, zone string) (*types.ConfigSnapshot, error) {
	configURL, _ := c.endpoint(zone)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, configURL, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set(types.HeaderAPIVersion, types.APIVersion)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("sync: fetch for zone %s: %w", zone, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("sync: fetch for zone %s: unexpected status %d", zone, resp.StatusCode)
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("sync: fetch for zone %s: read body: %w", zone, err)
	}

	// The master always advertises a digest; a body arriving without
	// one cannot be verified and must not be applied.
	advertised := resp.Header.Get(types.HeaderContentMD5)
	if advertised == "" {
		return nil, fmt.Errorf("sync: fetch for zone %s: master sent no %s header", zone, types.HeaderContentMD5)
	}
	computed := types.ContentMD5(body)
	if advertised != computed {
		return nil, &IntegrityError{Zone: zone, Advertised: advertised, Computed: computed}
	}

	var snap types.ConfigSnapshot
	if zone == GlobalZone {
		if err := json.Unmarshal(body, &snap.Probes); err != nil {
			return nil, fmt.Errorf("sync: fetch for zone %s: decode: %w", zone, err)
		}
	} else if err := json.Unmarshal(body, &snap); err != nil {
		return nil, fmt.Errorf("sync: fetch for zone %s: decode: %w", zone, err)
	}
	snap.Zone = zone
	snap.Checksum = computed
	return &snap, nil
}
