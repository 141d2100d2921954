// ABOUTME: Local provisioning backend that hosts callbacks on this machine
// ABOUTME: Functions become in-process handlers, servers become loopback HTTP hosts

package provision

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/2389/strategic-faas/internal/route"
	"github.com/2389/strategic-faas/internal/store"
)

// Resource names
const (
	FunctionSuffix = "-xbow-lambda"
	ServerName     = "myexpress"
)

// LocalConfig configures a Local backend.
type LocalConfig struct {
	// Name prefixes function names: <Name>-xbow-lambda.
	Name  string
	Stack store.StackRef
	Store store.Store
	// BootDelay is how long a new server answers 503 before serving.
	BootDelay time.Duration
	// ListenAddr is the address servers bind to. Defaults to 127.0.0.1:0.
	ListenAddr string
	Logger     *slog.Logger
}

// Local provisions resources on the local machine and records them in the
// stack store.
type Local struct {
	name       string
	stack      store.StackRef
	store      store.Store
	bootDelay  time.Duration
	listenAddr string
	logger     *slog.Logger

	mu        sync.Mutex
	handlers  map[string]route.Handler // keyed by handler ref
	functions map[string]string        // handle -> handler ref
	servers   map[string]*vmHost       // keyed by handle
}

// NewLocal creates a Local backend.
func NewLocal(cfg LocalConfig) *Local {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	name := cfg.Name
	if name == "" {
		name = "myfaas"
	}
	addr := cfg.ListenAddr
	if addr == "" {
		addr = "127.0.0.1:0"
	}
	return &Local{
		name:       name,
		stack:      cfg.Stack,
		store:      cfg.Store,
		bootDelay:  cfg.BootDelay,
		listenAddr: addr,
		logger:     logger.With("component", "provision"),
		handlers:   make(map[string]route.Handler),
		functions:  make(map[string]string),
		servers:    make(map[string]*vmHost),
	}
}

// physicalName appends a short random suffix so a replacement can coexist
// with the resource it replaces.
func physicalName(logical string) string {
	return logical + "-" + uuid.NewString()[:7]
}

func (l *Local) urn(kind Kind, name string) string {
	return fmt.Sprintf("urn:%s:%s:%s:%s", l.stack.Project, l.stack.Name, kind, name)
}

// Create provisions a function or server for req.
func (l *Local) Create(ctx context.Context, kind Kind, req route.Request) (*Result, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	var res *Result
	var outputs map[string]string
	switch kind {
	case KindFunction:
		res = l.createFunction(req)
		outputs = map[string]string{"handler": res.HandlerRef}
	case KindServer:
		var err error
		if res, err = l.createServer(req); err != nil {
			return nil, err
		}
		outputs = map[string]string{"url": res.URI}
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedKind, kind)
	}

	if l.store != nil {
		rec := &store.Resource{
			URN:       res.Handle,
			Stack:     l.stack,
			Type:      kind.String(),
			Name:      res.Name,
			Outputs:   outputs,
			CreatedAt: time.Now(),
		}
		if err := l.store.AddResource(ctx, rec); err != nil {
			_ = l.release(context.Background(), res.Handle)
			return nil, fmt.Errorf("recording %s: %w", res.Name, err)
		}
	}

	l.logger.Info("created resource", "kind", kind, "name", res.Name, "handle", res.Handle)
	return res, nil
}

func (l *Local) createFunction(req route.Request) *Result {
	name := physicalName(l.name + FunctionSuffix)
	handle := l.urn(KindFunction, name)
	callback := req.Callback

	handler := func(ctx context.Context, event route.Event) (*route.IntegrationResponse, error) {
		out, err := callback(ctx, event)
		if err != nil {
			return nil, err
		}
		body, err := decorate(out, "lambda")
		if err != nil {
			return nil, err
		}
		return &route.IntegrationResponse{
			StatusCode: http.StatusOK,
			Headers:    map[string]string{},
			Body:       string(body),
		}, nil
	}

	l.mu.Lock()
	l.handlers[name] = handler
	l.functions[handle] = name
	l.mu.Unlock()

	return &Result{Handle: handle, Kind: KindFunction, Name: name, HandlerRef: name}
}

func (l *Local) createServer(req route.Request) (*Result, error) {
	ln, err := net.Listen("tcp", l.listenAddr)
	if err != nil {
		return nil, fmt.Errorf("listening for %s: %w", ServerName, err)
	}

	name := physicalName(ServerName)
	handle := l.urn(KindServer, name)
	host := newVMHost(ln, req.Callback, l.bootDelay, l.logger.With("server", name))
	go host.serve()

	l.mu.Lock()
	l.servers[handle] = host
	l.mu.Unlock()

	return &Result{Handle: handle, Kind: KindServer, Name: name, URI: host.url()}, nil
}

// Destroy tears down the resource and removes it from the stack store.
// Handles recorded by an earlier process only have their record removed.
// When the live resource fails to stop, its record is kept so a later
// Destroy can retry.
func (l *Local) Destroy(ctx context.Context, handle string) error {
	err := l.release(ctx, handle)
	if err != nil && !errors.Is(err, ErrUnknownHandle) {
		return fmt.Errorf("releasing %s: %w", handle, err)
	}
	released := err == nil

	if l.store != nil {
		err := l.store.DeleteResource(ctx, handle)
		if err == nil {
			released = true
		} else if !errors.Is(err, store.ErrNotFound) {
			return fmt.Errorf("removing record for %s: %w", handle, err)
		}
	}

	if !released {
		return fmt.Errorf("%w: %s", ErrUnknownHandle, handle)
	}
	l.logger.Info("destroyed resource", "handle", handle)
	return nil
}

// release stops the live resource behind handle. A server that fails to
// shut down stays tracked.
func (l *Local) release(ctx context.Context, handle string) error {
	l.mu.Lock()
	ref, isFunc := l.functions[handle]
	host, isServer := l.servers[handle]
	if isFunc {
		delete(l.functions, handle)
		delete(l.handlers, ref)
	}
	l.mu.Unlock()

	switch {
	case isFunc:
		return nil
	case isServer:
		if err := host.shutdown(ctx); err != nil {
			return err
		}
		l.mu.Lock()
		delete(l.servers, handle)
		l.mu.Unlock()
		return nil
	default:
		return ErrUnknownHandle
	}
}

// Resolve returns the handler bound to ref. It lets the gateway invoke
// functions in process.
func (l *Local) Resolve(ref string) (route.Handler, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	h, ok := l.handlers[ref]
	return h, ok
}

// Close stops every live server. Records are left in the store.
func (l *Local) Close(ctx context.Context) error {
	l.mu.Lock()
	hosts := make([]*vmHost, 0, len(l.servers))
	for _, h := range l.servers {
		hosts = append(hosts, h)
	}
	l.servers = make(map[string]*vmHost)
	l.functions = make(map[string]string)
	l.handlers = make(map[string]route.Handler)
	l.mu.Unlock()

	var firstErr error
	for _, h := range hosts {
		if err := h.shutdown(ctx); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// decorate adds the host tag to a callback result and encodes it.
func decorate(out map[string]any, host string) ([]byte, error) {
	body := make(map[string]any, len(out)+1)
	for k, v := range out {
		body[k] = v
	}
	body["host"] = host
	b, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("encoding callback result: %w", err)
	}
	return b, nil
}

var _ Backend = (*Local)(nil)
