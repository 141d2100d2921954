// ABOUTME: Local gateway registrar serving registered routes over HTTP
// ABOUTME: Event handler routes run in process, HTTP proxy routes are reverse proxied

package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/http/httputil"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"tailscale.com/tsnet"

	"github.com/2389/strategic-faas/internal/auth"
	"github.com/2389/strategic-faas/internal/route"
)

// Server errors
var (
	ErrInvalidRoute   = errors.New("invalid route")
	ErrDuplicateRoute = errors.New("duplicate route")
	ErrServerClosed   = errors.New("gateway server closed")
)

// HandlerResolver looks up the in-process handler behind an event handler target.
type HandlerResolver interface {
	Resolve(ref string) (route.Handler, bool)
}

// ServerConfig configures a Server.
type ServerConfig struct {
	// Addr is the TCP listen address. Defaults to 127.0.0.1:0.
	Addr     string
	Resolver HandlerResolver
	// Verifier, when set, requires a bearer token on every route.
	Verifier  auth.TokenVerifier
	Tailscale TailscaleConfig
	Logger    *slog.Logger
}

// Server is the local gateway: one HTTP listener whose route table is
// replaced on every Register.
type Server struct {
	cfg    ServerConfig
	logger *slog.Logger

	handler atomic.Pointer[http.Handler]

	mu          sync.Mutex
	httpServer  *http.Server
	tsnetServer *tsnet.Server
	baseURL     string
	closed      bool
}

// NewServer creates a Server. Nothing listens until the first Register.
func NewServer(cfg ServerConfig) *Server {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Addr == "" {
		cfg.Addr = "127.0.0.1:0"
	}
	s := &Server{
		cfg:    cfg,
		logger: logger.With("component", "gateway"),
	}
	var empty http.Handler = s.newRouter()
	s.handler.Store(&empty)
	return s
}

// Register swaps the route table to routes and returns the base URL. The
// base URL ends with "/".
func (s *Server) Register(ctx context.Context, routes []route.Descriptor) (string, error) {
	if err := validateRoutes(routes); err != nil {
		return "", err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return "", ErrServerClosed
	}
	if s.httpServer == nil {
		if err := s.start(ctx); err != nil {
			return "", err
		}
	}

	r := s.newRouter()
	for _, d := range routes {
		h := s.targetHandler(d)
		if d.Method == route.MethodAny {
			r.Handle(d.Path, h)
		} else {
			r.Method(string(d.Method), d.Path, h)
		}
		s.logger.Info("route registered", "method", d.Method, "path", d.Path, "target", d.Target.String())
	}

	var h http.Handler = r
	s.handler.Store(&h)
	return s.baseURL, nil
}

func validateRoutes(routes []route.Descriptor) error {
	seen := make(map[string]bool, len(routes))
	for _, d := range routes {
		if !strings.HasPrefix(d.Path, "/") {
			return fmt.Errorf("%w: path %q must start with /", ErrInvalidRoute, d.Path)
		}
		if d.Method == "" {
			return fmt.Errorf("%w: %s has no method", ErrInvalidRoute, d.Path)
		}
		switch d.Target.Kind {
		case route.TargetEventHandler:
			if d.Target.HandlerRef == "" {
				return fmt.Errorf("%w: %s has an empty handler ref", ErrInvalidRoute, d.Path)
			}
		case route.TargetHTTPProxy:
			if _, err := url.Parse(d.Target.URI); err != nil || d.Target.URI == "" {
				return fmt.Errorf("%w: %s has a bad proxy uri %q", ErrInvalidRoute, d.Path, d.Target.URI)
			}
		default:
			return fmt.Errorf("%w: %s has no target", ErrInvalidRoute, d.Path)
		}
		key := string(d.Method) + " " + d.Path
		if seen[key] {
			return fmt.Errorf("%w: %s", ErrDuplicateRoute, key)
		}
		seen[key] = true
	}
	return nil
}

// start opens the listener and begins serving. Callers hold s.mu.
func (s *Server) start(ctx context.Context) error {
	var ln net.Listener
	var err error
	if s.cfg.Tailscale.Enabled {
		ln, err = s.listenTailscale(ctx)
	} else {
		ln, err = s.listenTCP()
	}
	if err != nil {
		return err
	}

	s.httpServer = &http.Server{
		Handler:           http.HandlerFunc(s.serveHTTP),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		s.logger.Info("gateway listening", "addr", ln.Addr().String(), "base_url", s.baseURL)
		if err := s.httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("gateway server stopped", "error", err)
		}
	}()
	return nil
}

func (s *Server) listenTCP() (net.Listener, error) {
	ln, err := net.Listen("tcp", s.cfg.Addr)
	if err != nil {
		return nil, fmt.Errorf("listening on gateway address: %w", err)
	}
	s.baseURL = "http://" + ln.Addr().String() + "/"
	return ln, nil
}

func (s *Server) serveHTTP(w http.ResponseWriter, r *http.Request) {
	(*s.handler.Load()).ServeHTTP(w, r)
}

func (s *Server) newRouter() *chi.Mux {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(s.loggingMiddleware)
	if s.cfg.Verifier != nil {
		r.Use(auth.BearerMiddleware(s.cfg.Verifier, s.logger))
	}
	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusNotFound, map[string]string{"message": "Not Found"})
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"message": "Method Not Allowed"})
	})
	return r
}

func (s *Server) targetHandler(d route.Descriptor) http.Handler {
	switch d.Target.Kind {
	case route.TargetEventHandler:
		return s.eventHandler(d.Target.HandlerRef)
	default:
		return s.proxyHandler(d.Target.URI)
	}
}

// eventHandler invokes the function bound to ref. The binding is looked up
// per request so a destroyed function stops answering at once.
func (s *Server) eventHandler(ref string) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.cfg.Resolver == nil {
			writeJSON(w, http.StatusBadGateway, map[string]string{"message": "Internal server error"})
			return
		}
		h, ok := s.cfg.Resolver.Resolve(ref)
		if !ok {
			s.logger.Warn("no handler bound", "ref", ref)
			writeJSON(w, http.StatusBadGateway, map[string]string{"message": "Internal server error"})
			return
		}

		body, err := io.ReadAll(io.LimitReader(r.Body, 6<<20))
		if err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"message": "unreadable body"})
			return
		}

		resp, err := h(r.Context(), route.Event{
			Method:  r.Method,
			Path:    r.URL.Path,
			Headers: flatten(r.Header),
			Query:   flatten(r.URL.Query()),
			Body:    string(body),
		})
		if err != nil {
			s.logger.Warn("handler failed", "ref", ref, "error", err)
			writeJSON(w, http.StatusBadGateway, map[string]string{"message": "Internal server error"})
			return
		}

		for k, v := range resp.Headers {
			w.Header().Set(k, v)
		}
		if w.Header().Get("Content-Type") == "" {
			w.Header().Set("Content-Type", "application/json")
		}
		status := resp.StatusCode
		if status == 0 {
			status = http.StatusOK
		}
		w.WriteHeader(status)
		_, _ = io.WriteString(w, resp.Body)
	})
}

// proxyHandler forwards to the exact target URI, keeping the query string.
func (s *Server) proxyHandler(uri string) http.Handler {
	target, _ := url.Parse(uri)
	return &httputil.ReverseProxy{
		Rewrite: func(pr *httputil.ProxyRequest) {
			pr.Out.URL.Scheme = target.Scheme
			pr.Out.URL.Host = target.Host
			pr.Out.URL.Path = target.Path
			pr.Out.URL.RawPath = target.RawPath
			pr.Out.Host = target.Host
			pr.SetXForwarded()
		},
		ErrorHandler: func(w http.ResponseWriter, r *http.Request, err error) {
			s.logger.Warn("proxy failed", "target", uri, "error", err)
			writeJSON(w, http.StatusBadGateway, map[string]string{"message": "Internal server error"})
		},
	}
}

func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		s.logger.Debug("request", "method", r.Method, "path", r.URL.Path, "status", ww.Status(), "duration", time.Since(start))
	})
}

// BaseURL returns the base URL, or "" before the first Register.
func (s *Server) BaseURL() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.baseURL
}

// Close stops the server. A closed server cannot register again.
func (s *Server) Close(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true
	s.logger.Info("shutting down gateway")

	var errs []error
	if s.httpServer != nil {
		if err := s.httpServer.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("HTTP shutdown: %w", err))
		}
	}
	if s.tsnetServer != nil {
		if err := s.tsnetServer.Close(); err != nil {
			errs = append(errs, fmt.Errorf("tailscale shutdown: %w", err))
		}
	}
	return errors.Join(errs...)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
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

var _ Registrar = (*Server)(nil)
