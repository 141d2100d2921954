// ABOUTME: Provisioning backend contract used by the strategy dispatcher
// ABOUTME: Defines resource kinds, the Create/Destroy interface and its result

package provision

import (
	"context"
	"errors"

	"github.com/2389/strategic-faas/internal/route"
)

// Provisioning errors
var (
	ErrUnsupportedKind = errors.New("unsupported resource kind")
	ErrUnknownHandle   = errors.New("unknown resource handle")
)

// Kind is the compute shape a backend is asked to create.
type Kind int

const (
	KindFunction Kind = iota
	KindServer
	KindContainer
)

func (k Kind) String() string {
	switch k {
	case KindFunction:
		return "function"
	case KindServer:
		return "server"
	case KindContainer:
		return "container"
	default:
		return "unknown"
	}
}

// Result describes a created resource. Functions populate HandlerRef,
// servers populate URI. Handle is what Destroy takes back.
type Result struct {
	Handle     string
	Kind       Kind
	Name       string
	URI        string
	HandlerRef string
}

// Backend creates and destroys compute resources hosting a route's callback.
// Create returns as soon as the resource exists; a server's URI may not
// answer yet.
type Backend interface {
	Create(ctx context.Context, kind Kind, req route.Request) (*Result, error)
	Destroy(ctx context.Context, handle string) error
}
