// ABOUTME: Tests for the local gateway server
// ABOUTME: Exercises event handler routes, reverse proxying, route swaps and bearer auth

package gateway

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2389/strategic-faas/internal/auth"
	"github.com/2389/strategic-faas/internal/route"
)

type mapResolver struct {
	mu       sync.Mutex
	handlers map[string]route.Handler
}

func (m *mapResolver) Resolve(ref string) (route.Handler, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	h, ok := m.handlers[ref]
	return h, ok
}

func (m *mapResolver) remove(ref string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.handlers, ref)
}

func newTestServer(t *testing.T, cfg ServerConfig) *Server {
	t.Helper()
	s := NewServer(cfg)
	t.Cleanup(func() { s.Close(context.Background()) })
	return s
}

func get(t *testing.T, url, token string) (int, string) {
	t.Helper()
	req, err := http.NewRequest(http.MethodGet, url, nil)
	require.NoError(t, err)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp.StatusCode, string(body)
}

func TestServer_EventHandlerRoute(t *testing.T) {
	resolver := &mapResolver{handlers: map[string]route.Handler{
		"fn": func(ctx context.Context, e route.Event) (*route.IntegrationResponse, error) {
			return &route.IntegrationResponse{StatusCode: 200, Body: `{"message":"Hello World","host":"lambda","q":"` + e.Query["name"] + `"}`}, nil
		},
	}}
	s := newTestServer(t, ServerConfig{Resolver: resolver})

	base, err := s.Register(context.Background(), []route.Descriptor{
		{Path: "/hello", Method: route.MethodGet, Target: route.EventHandler("fn")},
	})
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(base, "http://127.0.0.1:"))
	assert.True(t, strings.HasSuffix(base, "/"))
	assert.Equal(t, base, s.BaseURL())

	status, body := get(t, route.JoinURL(base, "/hello")+"?name=x", "")
	assert.Equal(t, http.StatusOK, status)
	assert.JSONEq(t, `{"message":"Hello World","host":"lambda","q":"x"}`, body)

	status, _ = get(t, route.JoinURL(base, "/missing"), "")
	assert.Equal(t, http.StatusNotFound, status)

	resolver.remove("fn")
	status, _ = get(t, route.JoinURL(base, "/hello"), "")
	assert.Equal(t, http.StatusBadGateway, status)
}

func TestServer_HandlerError(t *testing.T) {
	resolver := &mapResolver{handlers: map[string]route.Handler{
		"fn": func(ctx context.Context, e route.Event) (*route.IntegrationResponse, error) {
			return nil, errors.New("boom")
		},
	}}
	s := newTestServer(t, ServerConfig{Resolver: resolver})

	base, err := s.Register(context.Background(), []route.Descriptor{
		{Path: "/hello", Method: route.MethodGet, Target: route.EventHandler("fn")},
	})
	require.NoError(t, err)

	status, _ := get(t, route.JoinURL(base, "/hello"), "")
	assert.Equal(t, http.StatusBadGateway, status)
}

func TestServer_HTTPProxyRoute(t *testing.T) {
	var gotPath string
	backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"message":"Hello World","host":"ec2"}`)
	}))
	defer backend.Close()

	s := newTestServer(t, ServerConfig{})
	base, err := s.Register(context.Background(), []route.Descriptor{
		{Path: "/hello", Method: route.MethodGet, Target: route.HTTPProxy(backend.URL + "/")},
	})
	require.NoError(t, err)

	status, body := get(t, route.JoinURL(base, "/hello"), "")
	assert.Equal(t, http.StatusOK, status)
	assert.JSONEq(t, `{"message":"Hello World","host":"ec2"}`, body)
	assert.Equal(t, "/", gotPath, "proxy forwards to the exact target uri")
}

func TestServer_ProxyBackendDown(t *testing.T) {
	backend := httptest.NewServer(http.NotFoundHandler())
	uri := backend.URL + "/"
	backend.Close()

	s := newTestServer(t, ServerConfig{})
	base, err := s.Register(context.Background(), []route.Descriptor{
		{Path: "/hello", Method: route.MethodGet, Target: route.HTTPProxy(uri)},
	})
	require.NoError(t, err)

	status, _ := get(t, route.JoinURL(base, "/hello"), "")
	assert.Equal(t, http.StatusBadGateway, status)
}

func TestServer_RegisterSwapsRoutes(t *testing.T) {
	resolver := &mapResolver{handlers: map[string]route.Handler{
		"a": func(ctx context.Context, e route.Event) (*route.IntegrationResponse, error) {
			return &route.IntegrationResponse{StatusCode: 200, Body: "a"}, nil
		},
		"b": func(ctx context.Context, e route.Event) (*route.IntegrationResponse, error) {
			return &route.IntegrationResponse{StatusCode: 200, Body: "b"}, nil
		},
	}}
	s := newTestServer(t, ServerConfig{Resolver: resolver})
	ctx := context.Background()

	base1, err := s.Register(ctx, []route.Descriptor{{Path: "/hello", Method: route.MethodGet, Target: route.EventHandler("a")}})
	require.NoError(t, err)
	_, body := get(t, route.JoinURL(base1, "/hello"), "")
	assert.Equal(t, "a", body)

	base2, err := s.Register(ctx, []route.Descriptor{{Path: "/hello", Method: route.MethodGet, Target: route.EventHandler("b")}})
	require.NoError(t, err)
	assert.Equal(t, base1, base2, "base url is stable across registrations")
	_, body = get(t, route.JoinURL(base2, "/hello"), "")
	assert.Equal(t, "b", body)
}

func TestServer_MethodFiltering(t *testing.T) {
	resolver := &mapResolver{handlers: map[string]route.Handler{
		"fn": func(ctx context.Context, e route.Event) (*route.IntegrationResponse, error) {
			return &route.IntegrationResponse{StatusCode: 200, Body: e.Method}, nil
		},
	}}
	s := newTestServer(t, ServerConfig{Resolver: resolver})
	base, err := s.Register(context.Background(), []route.Descriptor{
		{Path: "/hello", Method: route.MethodGet, Target: route.EventHandler("fn")},
		{Path: "/any", Method: route.MethodAny, Target: route.EventHandler("fn")},
	})
	require.NoError(t, err)

	resp, err := http.Post(route.JoinURL(base, "/hello"), "text/plain", nil)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)

	resp, err = http.Post(route.JoinURL(base, "/any"), "text/plain", strings.NewReader("x"))
	require.NoError(t, err)
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "POST", string(body))
}

func TestServer_InvalidRoutes(t *testing.T) {
	s := newTestServer(t, ServerConfig{})
	ctx := context.Background()

	tests := []struct {
		name   string
		routes []route.Descriptor
		want   error
	}{
		{"relative path", []route.Descriptor{{Path: "hello", Method: route.MethodGet, Target: route.EventHandler("fn")}}, ErrInvalidRoute},
		{"no method", []route.Descriptor{{Path: "/hello", Target: route.EventHandler("fn")}}, ErrInvalidRoute},
		{"no target", []route.Descriptor{{Path: "/hello", Method: route.MethodGet}}, ErrInvalidRoute},
		{"empty proxy", []route.Descriptor{{Path: "/hello", Method: route.MethodGet, Target: route.HTTPProxy("")}}, ErrInvalidRoute},
		{"duplicate", []route.Descriptor{
			{Path: "/hello", Method: route.MethodGet, Target: route.EventHandler("a")},
			{Path: "/hello", Method: route.MethodGet, Target: route.EventHandler("b")},
		}, ErrDuplicateRoute},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := s.Register(ctx, tt.routes)
			assert.ErrorIs(t, err, tt.want)
		})
	}
	assert.Empty(t, s.BaseURL(), "invalid routes never start the listener")
}

func TestServer_BearerAuth(t *testing.T) {
	verifier, err := auth.NewJWTVerifier([]byte("gateway-test-secret-of-32-bytes!"))
	require.NoError(t, err)
	token, err := verifier.Generate("operator", time.Hour)
	require.NoError(t, err)

	resolver := &mapResolver{handlers: map[string]route.Handler{
		"fn": func(ctx context.Context, e route.Event) (*route.IntegrationResponse, error) {
			return &route.IntegrationResponse{StatusCode: 200, Body: auth.SubjectFromContext(ctx)}, nil
		},
	}}
	s := newTestServer(t, ServerConfig{Resolver: resolver, Verifier: verifier})
	base, err := s.Register(context.Background(), []route.Descriptor{
		{Path: "/hello", Method: route.MethodGet, Target: route.EventHandler("fn")},
	})
	require.NoError(t, err)

	status, _ := get(t, route.JoinURL(base, "/hello"), "")
	assert.Equal(t, http.StatusUnauthorized, status)

	status, body := get(t, route.JoinURL(base, "/hello"), token)
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, "operator", body)
}

func TestServer_Close(t *testing.T) {
	s := NewServer(ServerConfig{})
	base, err := s.Register(context.Background(), nil)
	require.NoError(t, err)

	require.NoError(t, s.Close(context.Background()))
	require.NoError(t, s.Close(context.Background()), "close is idempotent")

	_, err = http.Get(base)
	assert.Error(t, err)

	_, err = s.Register(context.Background(), nil)
	assert.ErrorIs(t, err, ErrServerClosed)
}

func TestTailnetBaseURL(t *testing.T) {
	assert.Equal(t, "http://faas/", tailnetBaseURL("faas", nil))
}

func TestResolveTailscaleAuthKey(t *testing.T) {
	t.Setenv("TS_AUTHKEY", "")
	_, err := resolveTailscaleAuthKey("")
	assert.Error(t, err)

	t.Setenv("TS_AUTHKEY", "tskey-env")
	key, err := resolveTailscaleAuthKey("")
	require.NoError(t, err)
	assert.Equal(t, "tskey-env", key)

	key, err = resolveTailscaleAuthKey("tskey-cfg")
	require.NoError(t, err)
	assert.Equal(t, "tskey-cfg", key)
}
