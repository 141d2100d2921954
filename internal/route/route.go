// ABOUTME: Route model shared by every deployment strategy and the gateway composer
// ABOUTME: Defines RouteRequest, the EventHandler/HTTPProxy target union and RouteDescriptor

package route

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// ErrInvalidRequest is returned when a route request is missing required fields.
var ErrInvalidRequest = errors.New("invalid route request")

// Method is the HTTP method a route answers to.
type Method string

// Supported methods. MethodAny matches every method.
const (
	MethodGet     Method = "GET"
	MethodPost    Method = "POST"
	MethodPut     Method = "PUT"
	MethodDelete  Method = "DELETE"
	MethodPatch   Method = "PATCH"
	MethodOptions Method = "OPTIONS"
	MethodHead    Method = "HEAD"
	MethodAny     Method = "ANY"
)

// ParseMethod converts a method name into a Method, case-insensitively.
func ParseMethod(s string) (Method, error) {
	m := Method(strings.ToUpper(strings.TrimSpace(s)))
	switch m {
	case MethodGet, MethodPost, MethodPut, MethodDelete, MethodPatch, MethodOptions, MethodHead, MethodAny:
		return m, nil
	default:
		return "", fmt.Errorf("%w: unsupported method %q", ErrInvalidRequest, s)
	}
}

// Event is the invocation payload handed to a callback.
type Event struct {
	Method  string
	Path    string
	Headers map[string]string
	Query   map[string]string
	Body    string
}

// Callback is the user function being deployed. Its result is JSON-encoded
// into the response body by whichever backend hosts it.
type Callback func(ctx context.Context, event Event) (map[string]any, error)

// IntegrationResponse is the response shape an event handler returns to the gateway.
type IntegrationResponse struct {
	StatusCode int
	Headers    map[string]string
	Body       string
}

// Handler is a callback bound by a function-compute backend.
type Handler func(ctx context.Context, event Event) (*IntegrationResponse, error)

// Request describes what to deploy: a callback answering Method on Path.
// A Request is built fresh for each deploy attempt and never mutated.
type Request struct {
	Path     string
	Method   Method
	Callback Callback
}

// Validate checks that the request is well formed.
func (r Request) Validate() error {
	if !strings.HasPrefix(r.Path, "/") {
		return fmt.Errorf("%w: path %q must start with /", ErrInvalidRequest, r.Path)
	}
	if r.Method == "" {
		return fmt.Errorf("%w: method is required", ErrInvalidRequest)
	}
	if r.Callback == nil {
		return fmt.Errorf("%w: callback is required", ErrInvalidRequest)
	}
	return nil
}

// TargetKind tags which variant of Target is populated.
type TargetKind string

const (
	TargetEventHandler TargetKind = "event_handler"
	TargetHTTPProxy    TargetKind = "http_proxy"
)

// Target is a tagged union: either an event handler binding (HandlerRef) or
// an HTTP endpoint (URI). Use the constructors to build one.
type Target struct {
	Kind       TargetKind
	HandlerRef string
	URI        string
}

// EventHandler returns a target bound to a function-compute handler.
func EventHandler(ref string) Target {
	return Target{Kind: TargetEventHandler, HandlerRef: ref}
}

// HTTPProxy returns a target that forwards to a reachable HTTP endpoint.
func HTTPProxy(uri string) Target {
	return Target{Kind: TargetHTTPProxy, URI: uri}
}

func (t Target) String() string {
	switch t.Kind {
	case TargetEventHandler:
		return "event_handler:" + t.HandlerRef
	case TargetHTTPProxy:
		return "http_proxy:" + t.URI
	default:
		return "unknown"
	}
}

// Descriptor is the normalized output of a strategy: the request's path and
// method plus where the gateway should send matching traffic.
type Descriptor struct {
	Path   string
	Method Method
	Target Target
}

// NewDescriptor builds a descriptor for req pointing at target.
func NewDescriptor(req Request, target Target) Descriptor {
	return Descriptor{Path: req.Path, Method: req.Method, Target: target}
}

// JoinURL appends path to baseURL, dropping the duplicated separator when
// baseURL ends with "/" and path starts with one.
func JoinURL(baseURL, path string) string {
	if strings.HasSuffix(baseURL, "/") && strings.HasPrefix(path, "/") {
		return baseURL + path[1:]
	}
	if baseURL != "" && !strings.HasSuffix(baseURL, "/") && path != "" && !strings.HasPrefix(path, "/") {
		return baseURL + "/" + path
	}
	return baseURL + path
}
