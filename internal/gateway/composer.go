// ABOUTME: Gateway composer aggregating route descriptors behind one base URL
// ABOUTME: Waits for every member route, then registers them with the registrar

package gateway

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/2389/strategic-faas/internal/future"
	"github.com/2389/strategic-faas/internal/route"
)

// Composition errors
var (
	ErrRouteFailed        = errors.New("route failed")
	ErrRegistrationFailed = errors.New("gateway registration failed")
)

// Registrar exposes a set of routes under one externally addressable base URL.
// Register replaces any previously registered set.
type Registrar interface {
	Register(ctx context.Context, routes []route.Descriptor) (string, error)
	Close(ctx context.Context) error
}

// Composer turns route futures into a registered gateway.
type Composer struct {
	registrar Registrar
	logger    *slog.Logger
}

// NewComposer creates a Composer.
func NewComposer(registrar Registrar, logger *slog.Logger) *Composer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Composer{
		registrar: registrar,
		logger:    logger.With("component", "gateway"),
	}
}

// Gateway is a composed set of routes. Its base URL resolves once every
// member route has resolved and registration has succeeded.
type Gateway struct {
	baseURL *future.Future[string]

	mu     sync.Mutex
	routes []route.Descriptor
}

// Compose starts composing routes and returns immediately. No retries are
// made: the first failing route or a failed registration rejects the gateway.
func (c *Composer) Compose(ctx context.Context, routes []*future.Future[route.Descriptor]) *Gateway {
	g := &Gateway{}
	g.baseURL = future.Go(func() (string, error) {
		descs, err := future.All(ctx, routes)
		if err != nil {
			return "", fmt.Errorf("%w: %w", ErrRouteFailed, err)
		}

		url, err := c.registrar.Register(ctx, descs)
		if err != nil {
			c.logger.Error("registration failed", "routes", len(descs), "error", err)
			return "", fmt.Errorf("%w: %w", ErrRegistrationFailed, err)
		}

		g.mu.Lock()
		g.routes = descs
		g.mu.Unlock()

		c.logger.Info("gateway composed", "routes", len(descs), "base_url", url)
		return url, nil
	})
	return g
}

// BaseURL returns the future base URL.
func (g *Gateway) BaseURL() *future.Future[string] {
	return g.baseURL
}

// Await blocks until the base URL is known or ctx is done.
func (g *Gateway) Await(ctx context.Context) (string, error) {
	return g.baseURL.Await(ctx)
}

// Routes returns the registered descriptors. It is empty until the base URL
// resolves.
func (g *Gateway) Routes() []route.Descriptor {
	g.mu.Lock()
	defer g.mu.Unlock()
	out := make([]route.Descriptor, len(g.routes))
	copy(out, g.routes)
	return out
}
