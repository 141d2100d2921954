// ABOUTME: Tests for the readiness poller
// ABOUTME: Covers probe counting, progress lines, bounded policies and the HTTP prober

package readiness

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2389/strategic-faas/internal/route"
)

// scriptedProber fails the first `failures` probes, then answers 200.
type scriptedProber struct {
	mu       sync.Mutex
	failures int
	calls    int
	useError bool
}

func (s *scriptedProber) Probe(ctx context.Context, uri string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	if s.calls <= s.failures {
		if s.useError {
			return 0, errors.New("connection refused")
		}
		return http.StatusServiceUnavailable, nil
	}
	return http.StatusOK, nil
}

func (s *scriptedProber) Calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

func countLines(out, line string) int {
	n := 0
	for _, l := range strings.Split(out, "\n") {
		if l == line {
			n++
		}
	}
	return n
}

func TestAwaitReady_FailsNTimesThenSucceeds(t *testing.T) {
	for _, n := range []int{0, 1, 2, 5} {
		for _, useError := range []bool{false, true} {
			prober := &scriptedProber{failures: n, useError: useError}
			var out bytes.Buffer
			p := NewPoller(Config{
				Prober: prober,
				Policy: Policy{Interval: time.Millisecond},
				Output: &out,
			})

			d, err := p.AwaitReady(context.Background(), "/hello", "http://10.0.0.5:80")
			require.NoError(t, err)

			assert.Equal(t, n+1, prober.Calls(), "probes for n=%d", n)
			assert.Equal(t, n, countLines(out.String(), "sleeping"), "sleeping lines for n=%d", n)
			assert.Equal(t, 1, countLines(out.String(), "success"))
			assert.Equal(t, n+1, countLines(out.String(), "waiting on server up [url=http://10.0.0.5:80]"))
			assert.True(t, strings.HasSuffix(out.String(), "success\n"), "success must be the last line")

			assert.Equal(t, "/hello", d.Path)
			assert.Equal(t, route.HTTPProxy("http://10.0.0.5:80"), d.Target)
		}
	}
}

func TestAwaitReady_MaxAttempts(t *testing.T) {
	prober := &scriptedProber{failures: 100}
	var out bytes.Buffer
	p := NewPoller(Config{
		Prober: prober,
		Policy: Policy{Interval: time.Millisecond, MaxAttempts: 3},
		Output: &out,
	})

	_, err := p.AwaitReady(context.Background(), "/hello", "http://10.0.0.5:80")
	require.ErrorIs(t, err, ErrNotReady)
	assert.Equal(t, 3, prober.Calls())
	assert.Equal(t, 0, countLines(out.String(), "success"))
}

func TestAwaitReady_Timeout(t *testing.T) {
	prober := &scriptedProber{failures: 1 << 30}
	p := NewPoller(Config{
		Prober: prober,
		Policy: Policy{Interval: 5 * time.Millisecond, Timeout: 30 * time.Millisecond},
	})

	start := time.Now()
	_, err := p.AwaitReady(context.Background(), "/hello", "http://10.0.0.5:80")
	require.ErrorIs(t, err, ErrNotReady)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, time.Since(start), time.Second)
}

func TestAwaitReady_ContextCancelled(t *testing.T) {
	prober := &scriptedProber{failures: 1 << 30}
	p := NewPoller(Config{Prober: prober, Policy: Policy{Interval: time.Hour}})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		_, err := p.AwaitReady(ctx, "/hello", "http://10.0.0.5:80")
		done <- err
	}()

	time.Sleep(10 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("poller did not stop after cancellation")
	}
}

func TestAwaitReady_RealServer(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if hits.Add(1) <= 2 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	var out bytes.Buffer
	p := NewPoller(Config{
		Prober: NewHTTPProber(time.Second),
		Policy: Policy{Interval: time.Millisecond},
		Output: &out,
	})

	d, err := p.AwaitReady(context.Background(), "/hello", srv.URL)
	require.NoError(t, err)
	assert.Equal(t, srv.URL, d.Target.URI)
	assert.Equal(t, int32(3), hits.Load())
	assert.Equal(t, 2, countLines(out.String(), "sleeping"))
}

func TestHTTPProber_NetworkError(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	_, err := NewHTTPProber(time.Second).Probe(context.Background(), url)
	assert.Error(t, err)
}

func TestDefaultPolicy(t *testing.T) {
	p := DefaultPolicy()
	assert.Equal(t, 5*time.Second, p.Interval)
	assert.Zero(t, p.MaxAttempts)
	assert.Zero(t, p.Timeout)
}
