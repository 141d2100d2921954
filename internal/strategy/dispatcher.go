// ABOUTME: Strategy dispatcher mapping a selector to a provisioned route descriptor
// ABOUTME: Functions resolve immediately, servers resolve once the readiness poller succeeds

package strategy

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/2389/strategic-faas/internal/future"
	"github.com/2389/strategic-faas/internal/provision"
	"github.com/2389/strategic-faas/internal/route"
)

// Dispatch errors
var (
	ErrInvalidSelector = errors.New("invalid strategy selector")
	ErrNotImplemented  = errors.New("strategy not implemented")
	ErrProvisionFailed = errors.New("provisioning failed")
)

// ReadinessWaiter waits for an HTTP endpoint and describes the route to it.
type ReadinessWaiter interface {
	AwaitReady(ctx context.Context, path, uri string) (route.Descriptor, error)
}

// Dispatch is the outcome of one dispatch: the route, possibly still pending,
// and the handles of every resource created for it.
type Dispatch struct {
	Route     *future.Future[route.Descriptor]
	Resources []string
}

// Dispatcher provisions a request through the strategy a selector names.
// It holds no per-deployment state.
type Dispatcher struct {
	backend provision.Backend
	waiter  ReadinessWaiter
	logger  *slog.Logger
}

// NewDispatcher creates a Dispatcher.
func NewDispatcher(backend provision.Backend, waiter ReadinessWaiter, logger *slog.Logger) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{
		backend: backend,
		waiter:  waiter,
		logger:  logger.With("component", "strategy"),
	}
}

// Dispatch provisions req using sel. The returned route is already resolved
// for FunctionCompute and pending for VirtualMachine until the server
// answers. Polling runs under ctx.
func (d *Dispatcher) Dispatch(ctx context.Context, sel Selector, req route.Request) (*Dispatch, error) {
	switch sel {
	case FunctionCompute:
		res, err := d.create(ctx, provision.KindFunction, req)
		if err != nil {
			return nil, err
		}
		desc := route.NewDescriptor(req, route.EventHandler(res.HandlerRef))
		return &Dispatch{
			Route:     future.Resolved(desc),
			Resources: []string{res.Handle},
		}, nil

	case VirtualMachine:
		res, err := d.create(ctx, provision.KindServer, req)
		if err != nil {
			return nil, err
		}
		pending := future.Go(func() (route.Descriptor, error) {
			desc, err := d.waiter.AwaitReady(ctx, req.Path, res.URI)
			if err != nil {
				return route.Descriptor{}, err
			}
			desc.Method = req.Method
			return desc, nil
		})
		return &Dispatch{
			Route:     pending,
			Resources: []string{res.Handle},
		}, nil

	case ContainerCluster:
		return nil, fmt.Errorf("%w: %s", ErrNotImplemented, sel)

	default:
		return nil, fmt.Errorf("%w: %s", ErrInvalidSelector, sel)
	}
}

func (d *Dispatcher) create(ctx context.Context, kind provision.Kind, req route.Request) (*provision.Result, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	res, err := d.backend.Create(ctx, kind, req)
	if err != nil {
		d.logger.Error("provisioning failed", "kind", kind, "path", req.Path, "error", err)
		return nil, fmt.Errorf("%w: %s: %w", ErrProvisionFailed, kind, err)
	}
	d.logger.Debug("provisioned", "kind", kind, "handle", res.Handle)
	return res, nil
}
