// ABOUTME: Readiness poller that health-checks a candidate URI until it answers 200
// ABOUTME: Retry pacing and bounds come from Policy, built on cenkalti/backoff

package readiness

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/2389/strategic-faas/internal/route"
)

// ErrNotReady is returned when a bounded policy gives up before the endpoint
// answered successfully. The default policy never returns it.
var ErrNotReady = errors.New("endpoint not ready")

// DefaultInterval is the fixed delay between failed probes.
const DefaultInterval = 5 * time.Second

// Policy bounds and paces polling. The zero value of MaxAttempts and Timeout
// means unbounded: polling continues until success or cancellation.
type Policy struct {
	Interval    time.Duration
	MaxAttempts int
	Timeout     time.Duration
}

// DefaultPolicy polls every 5 seconds forever.
func DefaultPolicy() Policy {
	return Policy{Interval: DefaultInterval}
}

func (p Policy) backOff(ctx context.Context) backoff.BackOff {
	interval := p.Interval
	if interval <= 0 {
		interval = DefaultInterval
	}
	var b backoff.BackOff = backoff.NewConstantBackOff(interval)
	if p.MaxAttempts > 0 {
		b = backoff.WithMaxRetries(b, uint64(p.MaxAttempts-1))
	}
	return backoff.WithContext(b, ctx)
}

// Prober issues one health probe and reports the HTTP status code.
type Prober interface {
	Probe(ctx context.Context, uri string) (int, error)
}

// Config configures a Poller.
type Config struct {
	Prober Prober
	Policy Policy
	// Output receives the operator-facing progress lines.
	Output io.Writer
	Logger *slog.Logger
}

// Poller waits for an HTTP endpoint to become reachable.
type Poller struct {
	prober Prober
	policy Policy
	out    io.Writer
	logger *slog.Logger
}

// NewPoller creates a Poller. A nil Prober defaults to an HTTPProber with a
// 10 second request timeout.
func NewPoller(cfg Config) *Poller {
	prober := cfg.Prober
	if prober == nil {
		prober = NewHTTPProber(10 * time.Second)
	}
	out := cfg.Output
	if out == nil {
		out = io.Discard
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Poller{
		prober: prober,
		policy: cfg.Policy,
		out:    out,
		logger: logger.With("component", "readiness"),
	}
}

// AwaitReady probes uri until it answers 200 and returns a descriptor for
// path proxying to uri. Failed probes, whether a non-200 status or a network
// error, are retried after the policy interval.
func (p *Poller) AwaitReady(ctx context.Context, path, uri string) (route.Descriptor, error) {
	if p.policy.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.policy.Timeout)
		defer cancel()
	}

	attempts := 0
	probe := func() error {
		attempts++
		fmt.Fprintf(p.out, "waiting on server up [url=%s]\n", uri)
		status, err := p.prober.Probe(ctx, uri)
		if err != nil {
			p.logger.Debug("probe failed", "url", uri, "attempt", attempts, "error", err)
			return err
		}
		if status != http.StatusOK {
			p.logger.Debug("probe not ready", "url", uri, "attempt", attempts, "status", status)
			return fmt.Errorf("unexpected status %d", status)
		}
		return nil
	}

	notify := func(err error, wait time.Duration) {
		fmt.Fprintln(p.out, "sleeping")
	}

	if err := backoff.RetryNotify(probe, p.policy.backOff(ctx), notify); err != nil {
		p.logger.Warn("endpoint never became ready", "url", uri, "attempts", attempts, "error", err)
		return route.Descriptor{}, fmt.Errorf("%w: %s after %d attempt(s): %w", ErrNotReady, uri, attempts, err)
	}

	fmt.Fprintln(p.out, "success")
	p.logger.Info("endpoint ready", "url", uri, "attempts", attempts)
	return route.Descriptor{Path: path, Target: route.HTTPProxy(uri)}, nil
}

// HTTPProber probes with an HTTP GET.
type HTTPProber struct {
	client *http.Client
}

// NewHTTPProber returns a prober whose requests time out after timeout.
func NewHTTPProber(timeout time.Duration) *HTTPProber {
	return &HTTPProber{client: &http.Client{Timeout: timeout}}
}

// Probe issues GET uri and returns the response status code.
func (h *HTTPProber) Probe(ctx context.Context, uri string) (int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, uri, nil)
	if err != nil {
		return 0, fmt.Errorf("creating request: %w", err)
	}
	resp, err := h.client.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)
	return resp.StatusCode, nil
}
