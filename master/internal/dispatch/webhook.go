package dispatch

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"
)

// Webhook notifies contacts whose medium ends in "webhook" with a
// single JSON POST. Delivery is best-effort: the receiver owns its own
// reliability, so failures are logged and never bubble up as dispatch
// failures.
type Webhook struct {
	datacenter string
	http       *http.Client
}

// webhookPayload is the body POSTed to the contact's URL.
type webhookPayload struct {
	Alarm      int               `json:"alarm"`
	Monitor    string            `json:"monitor"`
	Message    string            `json:"message"`
	Time       time.Time         `json:"time"`
	Datacenter string            `json:"datacenter"`
	Details    map[string]string `json:"details,omitempty"`
}

func NewWebhook(datacenter string) *Webhook {
	return &Webhook{
		datacenter: datacenter,
		http:       &http.Client{Timeout: 30 * time.Second},
	}
}

func (w *Webhook) Name() string { return "webhook" }

func (w *Webhook) AcceptsMedium(medium string) bool {
	return mediumHasSuffix(medium, "webhook")
}

func (w *Webhook) SanitizeAddress(address string) (string, error) {
	u, err := url.Parse(address)
	if err != nil || u.Hostname() == "" || (u.Scheme != "http" && u.Scheme != "https") {
		return "", fmt.Errorf("not an http(s) url: %q", address)
	}
	return u.String(), nil
}

func (w *Webhook) Notify(ctx context.Context, n Notification) error {
	m := renderMessage(w.datacenter, n)
	body, err := json.Marshal(webhookPayload{
		Alarm:      n.Alarm.ID,
		Monitor:    n.Alarm.Monitor,
		Message:    m.Subject,
		Time:       n.Event.Created,
		Datacenter: w.datacenter,
		Details:    n.Event.Data,
	})
	if err != nil {
		slog.Error("dispatch: webhook payload encode failed", "err", err)
		return nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.Contact.Address, bytes.NewReader(body))
	if err != nil {
		slog.Error("dispatch: webhook request build failed", "url", n.Contact.Address, "err", err)
		return nil
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := w.http.Do(req)
	if err != nil {
		slog.Error("dispatch: webhook delivery failed", "url", n.Contact.Address, "err", err)
		return nil
	}
	io.Copy(io.Discard, resp.Body)
	resp.Body.Close()
	if resp.StatusCode >= 300 {
		slog.Error("dispatch: webhook receiver answered badly",
			"url", n.Contact.Address, "status", resp.StatusCode)
	}
	return nil
}
