package dispatch

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/sethvargo/go-retry"
)

const (
	defaultSMSRetries = 3
	smsBackoffBase    = 500 * time.Millisecond
	smsBodyLimit      = 160
)

// SMSConfig points at a Twilio-style message gateway.
type SMSConfig struct {
	// GatewayURL is the full URL messages are POSTed to.
	GatewayURL string `yaml:"gateway_url"`

	// AccountID is the gateway account, sent as the basic-auth user.
	AccountID string `yaml:"account_id"`

	// AuthTokenEnv names the environment variable holding the auth
	// token.
	AuthTokenEnv string `yaml:"auth_token_env"`

	// From is the sending phone number.
	From string `yaml:"from"`

	// CallbackURL, when set, is passed to the gateway for delivery
	// status callbacks.
	CallbackURL string `yaml:"callback_url"`

	// MaxRetries bounds re-attempts after gateway 5xx responses.
	MaxRetries int `yaml:"max_retries"`
}

// Token returns the auth token resolved from the environment.
func (c SMSConfig) Token() string {
	if c.AuthTokenEnv == "" {
		return ""
	}
	return os.Getenv(c.AuthTokenEnv)
}

// SMS notifies contacts whose medium ends in "phone" or "sms". Gateway
// 5xx responses are retried with bounded exponential backoff; 4xx
// means the request itself is bad and fails immediately.
type SMS struct {
	cfg        SMSConfig
	datacenter string
	http       *http.Client
}

func NewSMS(cfg SMSConfig, datacenter string) (*SMS, error) {
	if cfg.GatewayURL == "" {
		return nil, fmt.Errorf("dispatch: sms: gateway_url is required")
	}
	if cfg.From == "" {
		return nil, fmt.Errorf("dispatch: sms: from is required")
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = defaultSMSRetries
	}
	return &SMS{
		cfg:        cfg,
		datacenter: datacenter,
		http:       &http.Client{Timeout: 30 * time.Second},
	}, nil
}

func (s *SMS) Name() string { return "sms" }

func (s *SMS) AcceptsMedium(medium string) bool {
	return mediumHasSuffix(medium, "phone") || mediumHasSuffix(medium, "sms")
}

// SanitizeAddress reduces a US phone number to +1XXXXXXXXXX form.
func (s *SMS) SanitizeAddress(address string) (string, error) {
	stripped := strings.Map(func(r rune) rune {
		switch r {
		case ' ', '(', ')', '-', '.':
			return -1
		}
		return r
	}, address)
	if strings.HasPrefix(stripped, "+1") && len(stripped) == 12 {
		stripped = stripped[2:]
	}
	if len(stripped) != 10 {
		return "", fmt.Errorf("not a 10-digit US phone number: %q", address)
	}
	for _, r := range stripped {
		if r < '0' || r > '9' {
			return "", fmt.Errorf("not a 10-digit US phone number: %q", address)
		}
	}
	return "+1" + stripped, nil
}

func (s *SMS) Notify(ctx context.Context, n Notification) error {
	m := renderMessage(s.datacenter, n)
	body := m.Subject
	if len(body) > smsBodyLimit {
		body = body[:smsBodyLimit]
	}

	form := url.Values{}
	form.Set("From", s.cfg.From)
	form.Set("To", n.Contact.Address)
	form.Set("Body", body)
	if s.cfg.CallbackURL != "" {
		form.Set("StatusCallback", s.cfg.CallbackURL)
	}
	payload := form.Encode()

	backoff := retry.WithMaxRetries(uint64(s.cfg.MaxRetries), retry.NewExponential(smsBackoffBase))
	return retry.Do(ctx, backoff, func(ctx context.Context) error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.cfg.GatewayURL, strings.NewReader(payload))
		if err != nil {
			return err
		}
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		if s.cfg.AccountID != "" {
			req.SetBasicAuth(s.cfg.AccountID, s.cfg.Token())
		}

		resp, err := s.http.Do(req)
		if err != nil {
			return retry.RetryableError(fmt.Errorf("gateway: %w", err))
		}
		io.Copy(io.Discard, resp.Body)
		resp.Body.Close()

		switch {
		case resp.StatusCode >= 500:
			return retry.RetryableError(fmt.Errorf("gateway answered %d", resp.StatusCode))
		case resp.StatusCode >= 400:
			return fmt.Errorf("gateway rejected message: %d", resp.StatusCode)
		}
		return nil
	})
}
