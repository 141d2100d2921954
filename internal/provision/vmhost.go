// ABOUTME: Loopback HTTP host standing in for a virtual-machine web server
// ABOUTME: Answers 503 until its boot delay has elapsed, then serves the callback on GET /

package provision

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/2389/strategic-faas/internal/route"
)

type vmHost struct {
	ln       net.Listener
	srv      *http.Server
	callback route.Callback
	readyAt  time.Time
	logger   *slog.Logger
}

func newVMHost(ln net.Listener, cb route.Callback, bootDelay time.Duration, logger *slog.Logger) *vmHost {
	h := &vmHost{
		ln:       ln,
		callback: cb,
		readyAt:  time.Now().Add(bootDelay),
		logger:   logger,
	}
	mux := http.NewServeMux()
	mux.HandleFunc("GET /{$}", h.handleRoot)
	h.srv = &http.Server{
		Handler:           h.booting(mux),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return h
}

func (h *vmHost) url() string {
	return "http://" + h.ln.Addr().String() + "/"
}

func (h *vmHost) serve() {
	if err := h.srv.Serve(h.ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		h.logger.Error("server stopped", "error", err)
	}
}

func (h *vmHost) shutdown(ctx context.Context) error {
	return h.srv.Shutdown(ctx)
}

// booting answers 503 until the host has finished starting.
func (h *vmHost) booting(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if time.Now().Before(h.readyAt) {
			http.Error(w, "booting", http.StatusServiceUnavailable)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (h *vmHost) handleRoot(w http.ResponseWriter, r *http.Request) {
	event := route.Event{
		Method:  r.Method,
		Path:    r.URL.Path,
		Headers: flatten(r.Header),
		Query:   flatten(r.URL.Query()),
	}

	out, err := h.callback(r.Context(), event)
	if err != nil {
		h.logger.Warn("callback failed", "error", err)
		http.Error(w, `{"error":"callback failed"}`, http.StatusInternalServerError)
		return
	}
	body, err := decorate(out, "ec2")
	if err != nil {
		http.Error(w, `{"error":"encoding failed"}`, http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write(body)
}

// flatten keeps the first value of each key.
func flatten(values map[string][]string) map[string]string {
	out := make(map[string]string, len(values))
	for k, v := range values {
		if len(v) > 0 {
			out[k] = v[0]
		}
	}
	return out
}
