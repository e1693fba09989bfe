package probe

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"regexp"
	"strconv"
	"sync"
	"time"

	"github.com/vantagehq/vantage/pkg/types"
)

// httpOK is the default set of status codes considered healthy.
var httpOK = []int{200, 201, 202, 203, 204}

const httpRequestTimeout = 30 * time.Second

// httpProbe polls a URL on the configured interval. A response outside
// the expected status-code set, or one whose body fails the configured
// pattern, counts as one matching unit. The interval is independent of
// the window period so several observations can land per window.
type httpProbe struct {
	cfg      types.ProbeConfig
	target   *url.URL
	expected map[int]bool
	bodyRe   *regexp.Regexp
	sink     Sink
	win      *window
	client   *http.Client
	interval time.Duration

	mu     sync.Mutex
	state  int
	cancel context.CancelFunc
}

func newHTTPProbe(cfg types.ProbeConfig, sink Sink) (*httpProbe, error) {
	switch {
	case cfg.URL == "":
		return nil, &types.ValidationError{Field: "url"}
	case cfg.Period <= 0:
		return nil, &types.ValidationError{Field: "period"}
	case cfg.Interval < 0:
		return nil, &types.ValidationError{Field: "interval"}
	case cfg.Threshold <= 0:
		return nil, &types.ValidationError{Field: "threshold"}
	}
	target, err := url.Parse(cfg.URL)
	if err != nil || target.Hostname() == "" || (target.Scheme != "http" && target.Scheme != "https") {
		return nil, &types.ValidationError{Field: "url", Reason: "must be a valid http(s) url"}
	}

	var bodyRe *regexp.Regexp
	if cfg.Match != "" {
		bodyRe, err = regexp.Compile(cfg.Match)
		if err != nil {
			return nil, &types.ValidationError{Field: "match", Reason: err.Error()}
		}
	}

	codes := cfg.StatusCodes
	if len(codes) == 0 {
		codes = httpOK
	}
	expected := make(map[int]bool, len(codes))
	for _, c := range codes {
		expected[c] = true
	}

	return &httpProbe{
		cfg:      cfg,
		target:   target,
		expected: expected,
		bodyRe:   bodyRe,
		sink:     sink,
		win:      newWindow(cfg.Threshold),
		client:   &http.Client{Timeout: httpRequestTimeout},
		interval: pollIntervalOf(cfg),
	}, nil
}

func (p *httpProbe) Start(ctx context.Context) error {
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

func (p *httpProbe) Stop() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.state = stateStopped
	if p.cancel != nil {
		p.cancel()
	}
}

func (p *httpProbe) running() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state == stateRunning
}

func (p *httpProbe) pollLoop(ctx context.Context) {
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

// observe performs one request and feeds the result to the window.
func (p *httpProbe) observe(ctx context.Context) {
	reason, ok := p.check(ctx)
	if ok {
		return
	}
	fire, count := p.win.hit()
	if !fire {
		return
	}
	slog.Info("probe: http alarm", "id", p.cfg.ID, "count", count, "reason", reason)
	p.sink(alarmEvent(p.cfg, "vantage.http", count, map[string]string{
		"url":    p.cfg.URL,
		"reason": reason,
	}))
}

// check reports whether the target currently looks healthy; when it
// does not, reason says why.
func (p *httpProbe) check(ctx context.Context) (reason string, ok bool) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.target.String(), nil)
	if err != nil {
		return err.Error(), false
	}
	resp, err := p.client.Do(req)
	if err != nil {
		return fmt.Sprintf("request failed: %v", err), false
	}
	defer resp.Body.Close()

	if !p.expected[resp.StatusCode] {
		io.Copy(io.Discard, resp.Body)
		return "unexpected status " + strconv.Itoa(resp.StatusCode), false
	}
	if p.bodyRe != nil {
		body, err := io.ReadAll(resp.Body)
		if err != nil {
			return fmt.Sprintf("read body: %v", err), false
		}
		if !p.bodyRe.Match(body) {
			return "body did not match " + p.cfg.Match, false
		}
	}
	return "", true
}
