// ABOUTME: Deployment orchestrator owning the single DeploymentState of the process
// ABOUTME: Serializes deploy and destroy, replaces resources on redeploy and records history

package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/2389/strategic-faas/internal/future"
	"github.com/2389/strategic-faas/internal/gateway"
	"github.com/2389/strategic-faas/internal/provision"
	"github.com/2389/strategic-faas/internal/route"
	"github.com/2389/strategic-faas/internal/store"
	"github.com/2389/strategic-faas/internal/strategy"
)

// ErrTerminated is returned by every operation after a destroy.
var ErrTerminated = errors.New("orchestrator terminated")

// GatewayName is the stack resource name of the composed gateway.
const GatewayName = "routes"

// State is the orchestrator lifecycle state.
type State int32

const (
	Idle State = iota
	Deploying
	Destroying
	Terminated
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Deploying:
		return "deploying"
	case Destroying:
		return "destroying"
	case Terminated:
		return "terminated"
	default:
		return "unknown"
	}
}

// DeploymentState is the live deployment: the selected strategy, its route
// (nil after a failed attempt), the stack it belongs to and every resource
// handle a destroy must reclaim.
type DeploymentState struct {
	Selector    strategy.Selector
	Route       *future.Future[route.Descriptor]
	StackHandle string
	BaseURL     string
	Resources   []string
}

// Dispatcher provisions a request through a strategy.
type Dispatcher interface {
	Dispatch(ctx context.Context, sel strategy.Selector, req route.Request) (*strategy.Dispatch, error)
}

// Config wires an Orchestrator.
type Config struct {
	Stack  store.StackRef
	Region string
	// Request is copied for every deploy attempt.
	Request    route.Request
	Dispatcher Dispatcher
	Composer   *gateway.Composer
	Registrar  gateway.Registrar
	Backend    provision.Backend
	Store      store.Store
	// Output receives operator-facing lines.
	Output io.Writer
	Logger *slog.Logger
}

// Orchestrator runs deploys and the final destroy one at a time.
type Orchestrator struct {
	cfg    Config
	out    io.Writer
	logger *slog.Logger

	state atomic.Int32

	// mu serializes lifecycle operations and guards current.
	mu              sync.Mutex
	current         DeploymentState
	gatewayRecorded bool
}

// New creates an Orchestrator in the Idle state.
func New(cfg Config) *Orchestrator {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	out := cfg.Output
	if out == nil {
		out = io.Discard
	}
	return &Orchestrator{
		cfg:     cfg,
		out:     out,
		logger:  logger.With("component", "orchestrator", "stack", cfg.Stack.String()),
		current: DeploymentState{StackHandle: cfg.Stack.String()},
	}
}

// State returns the lifecycle state.
func (o *Orchestrator) State() State {
	return State(o.state.Load())
}

// Current returns a copy of the deployment state. It blocks while a
// lifecycle operation is running.
func (o *Orchestrator) Current() DeploymentState {
	o.mu.Lock()
	defer o.mu.Unlock()
	c := o.current
	c.Resources = slices.Clone(o.current.Resources)
	return c
}

// Start selects the stack, records its config and adopts resources left
// behind by an earlier process so the next destroy reclaims them.
func (o *Orchestrator) Start(ctx context.Context) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.State() == Terminated {
		return ErrTerminated
	}
	if o.cfg.Store == nil {
		return nil
	}

	if _, err := o.cfg.Store.CreateOrSelectStack(ctx, o.cfg.Stack); err != nil {
		return fmt.Errorf("selecting stack %s: %w", o.cfg.Stack, err)
	}
	if o.cfg.Region != "" {
		if err := o.cfg.Store.SetConfig(ctx, o.cfg.Stack, "aws:region", o.cfg.Region); err != nil {
			return fmt.Errorf("setting stack config: %w", err)
		}
	}

	stale, err := o.cfg.Store.ListResources(ctx, o.cfg.Stack)
	if err != nil {
		return fmt.Errorf("listing stack resources: %w", err)
	}
	for _, r := range stale {
		o.logger.Warn("adopting resource from earlier run", "urn", r.URN, "type", r.Type)
		if r.Type == store.ResourceGateway {
			o.gatewayRecorded = true
		}
		o.current.Resources = append(o.current.Resources, r.URN)
	}
	return nil
}

// Deploy replaces the current deployment with one using sel. A
// ContainerCluster selector is a no-op. Failures are reported on the output
// and returned; the orchestrator is Idle again afterwards, except for
// strategy.ErrInvalidSelector which callers should treat as fatal.
func (o *Orchestrator) Deploy(ctx context.Context, sel strategy.Selector) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.State() == Terminated {
		return ErrTerminated
	}
	if sel == strategy.ContainerCluster {
		fmt.Fprintln(o.out, "[skipping unimplemented]")
		o.logger.Info("strategy not implemented", "strategy", sel)
		return nil
	}
	if !sel.Implemented() {
		return fmt.Errorf("%w: %s", strategy.ErrInvalidSelector, sel)
	}

	o.state.Store(int32(Deploying))
	defer o.state.Store(int32(Idle))

	started := time.Now()
	depID := uuid.NewString()
	o.recordStart(ctx, depID, sel.String(), started)

	previous := o.current.Resources
	o.current.Selector = sel
	o.current.Route = nil

	url, created, err := o.deploy(ctx, sel)
	if err != nil {
		// Keep everything so destroy can reclaim it.
		o.current.Resources = append(slices.Clone(previous), created...)
		fmt.Fprintf(o.out, "deploy failed: %v\n", err)
		o.logger.Error("deploy failed", "strategy", sel, "error", err)
		o.recordFinish(ctx, depID, store.DeploymentFailed, "", err.Error())
		return err
	}

	fmt.Fprintf(o.out, "function deployed to: %s\n", url)
	o.recordFinish(ctx, depID, store.DeploymentSucceeded, url, "")

	// Create before delete: the old resources go only once the new route is live.
	remaining := o.release(ctx, previous)
	o.current.Resources = append(remaining, created...)

	o.logger.Info("deployed", "strategy", sel, "url", url, "duration", time.Since(started))
	return nil
}

// deploy dispatches and composes one attempt. It returns the handles it
// created even on failure.
func (o *Orchestrator) deploy(ctx context.Context, sel strategy.Selector) (string, []string, error) {
	req := o.cfg.Request

	d, err := o.cfg.Dispatcher.Dispatch(ctx, sel, req)
	if err != nil {
		return "", nil, err
	}
	created := slices.Clone(d.Resources)
	o.current.Route = d.Route

	gw := o.cfg.Composer.Compose(ctx, []*future.Future[route.Descriptor]{d.Route})
	baseURL, err := gw.Await(ctx)
	if err != nil {
		o.current.Route = nil
		return "", created, err
	}
	o.current.BaseURL = baseURL

	if gwURN := o.recordGateway(ctx, baseURL); gwURN != "" {
		created = append(created, gwURN)
	}
	return route.JoinURL(baseURL, req.Path), created, nil
}

// release destroys handles and returns those that could not be destroyed.
func (o *Orchestrator) release(ctx context.Context, handles []string) []string {
	var kept []string
	for _, h := range handles {
		if h == o.gatewayURN() {
			kept = append(kept, h)
			continue
		}
		if err := o.cfg.Backend.Destroy(ctx, h); err != nil {
			o.logger.Warn("releasing previous resource failed", "handle", h, "error", err)
			kept = append(kept, h)
		}
	}
	return kept
}

// Destroy tears down every recorded resource and the gateway, then moves to
// Terminated. It is terminal even when teardown fails; the error is returned.
func (o *Orchestrator) Destroy(ctx context.Context) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.State() == Terminated {
		return ErrTerminated
	}
	o.state.Store(int32(Destroying))
	defer o.state.Store(int32(Terminated))

	started := time.Now()
	depID := uuid.NewString()
	o.recordStart(ctx, depID, "destroy", started)

	var errs []error
	resources := o.current.Resources
	for i := len(resources) - 1; i >= 0; i-- {
		h := resources[i]
		if h == o.gatewayURN() {
			continue
		}
		if err := o.cfg.Backend.Destroy(ctx, h); err != nil {
			errs = append(errs, fmt.Errorf("destroying %s: %w", h, err))
		}
	}

	if o.cfg.Registrar != nil {
		if err := o.cfg.Registrar.Close(ctx); err != nil {
			errs = append(errs, fmt.Errorf("closing gateway: %w", err))
		}
	}

	if o.cfg.Store != nil {
		if o.gatewayRecorded {
			if err := o.cfg.Store.DeleteResource(ctx, o.gatewayURN()); err != nil && !errors.Is(err, store.ErrNotFound) {
				errs = append(errs, fmt.Errorf("removing gateway record: %w", err))
			}
		}
		if err := o.cfg.Store.MarkStackDestroyed(ctx, o.cfg.Stack); err != nil && !errors.Is(err, store.ErrNotFound) {
			errs = append(errs, fmt.Errorf("marking stack destroyed: %w", err))
		}
	}

	o.current = DeploymentState{StackHandle: o.cfg.Stack.String()}
	o.gatewayRecorded = false

	if err := errors.Join(errs...); err != nil {
		o.logger.Error("destroy failed", "error", err)
		o.recordFinish(ctx, depID, store.DeploymentFailed, "", err.Error())
		return err
	}

	o.recordFinish(ctx, depID, store.DeploymentDestroyed, "", "")
	o.logger.Info("stack destroyed", "duration", time.Since(started))
	return nil
}

func (o *Orchestrator) gatewayURN() string {
	return fmt.Sprintf("urn:%s:%s:%s:%s", o.cfg.Stack.Project, o.cfg.Stack.Name, store.ResourceGateway, GatewayName)
}

// recordGateway stores the gateway resource the first time it comes up and
// returns its URN, or "" when it was already recorded.
func (o *Orchestrator) recordGateway(ctx context.Context, baseURL string) string {
	if o.gatewayRecorded || o.cfg.Store == nil {
		return ""
	}
	err := o.cfg.Store.AddResource(ctx, &store.Resource{
		URN:       o.gatewayURN(),
		Stack:     o.cfg.Stack,
		Type:      store.ResourceGateway,
		Name:      GatewayName,
		Outputs:   map[string]string{"url": baseURL},
		CreatedAt: time.Now(),
	})
	if err != nil {
		o.logger.Warn("recording gateway failed", "error", err)
		return ""
	}
	o.gatewayRecorded = true
	return o.gatewayURN()
}

func (o *Orchestrator) recordStart(ctx context.Context, id, strategyName string, started time.Time) {
	if o.cfg.Store == nil {
		return
	}
	err := o.cfg.Store.StartDeployment(ctx, &store.Deployment{
		ID:        id,
		Stack:     o.cfg.Stack,
		Strategy:  strategyName,
		Status:    store.DeploymentRunning,
		StartedAt: started,
	})
	if err != nil {
		o.logger.Warn("recording deployment start failed", "id", id, "error", err)
	}
}

func (o *Orchestrator) recordFinish(ctx context.Context, id string, status store.DeploymentStatus, url, errMsg string) {
	if o.cfg.Store == nil {
		return
	}
	// History is written even when ctx was cancelled mid-deploy.
	if err := o.cfg.Store.FinishDeployment(context.WithoutCancel(ctx), id, status, url, errMsg); err != nil {
		o.logger.Warn("recording deployment result failed", "id", id, "error", err)
	}
}
