// ABOUTME: Store interface and data types for strategic-faas stack state
// ABOUTME: Defines Stack, Resource and Deployment records and the Store interface

package store

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when a requested entity does not exist
var ErrNotFound = errors.New("not found")

// ErrStackDestroyed is returned when writing resources to a destroyed stack
var ErrStackDestroyed = errors.New("stack destroyed")

// StackRef identifies a stack within a project.
type StackRef struct {
	Project string
	Name    string
}

// String returns the stack handle in "project/name" form.
func (r StackRef) String() string {
	return r.Project + "/" + r.Name
}

// Stack is a named deployment target that owns resources.
type Stack struct {
	Ref         StackRef
	CreatedAt   time.Time
	DestroyedAt *time.Time
}

// Resource types recorded in the stack
const (
	ResourceFunction = "function"
	ResourceServer   = "server"
	ResourceGateway  = "gateway"
)

// Resource is one provisioned object owned by a stack.
type Resource struct {
	URN       string
	Stack     StackRef
	Type      string // function, server, gateway
	Name      string
	Outputs   map[string]string
	CreatedAt time.Time
}

// DeploymentStatus values
type DeploymentStatus string

const (
	DeploymentRunning   DeploymentStatus = "running"
	DeploymentSucceeded DeploymentStatus = "succeeded"
	DeploymentFailed    DeploymentStatus = "failed"
	DeploymentDestroyed DeploymentStatus = "destroyed"
)

// Deployment is one entry in a stack's history: an up or a destroy.
type Deployment struct {
	ID         string
	Stack      StackRef
	Strategy   string
	Status     DeploymentStatus
	RouteURL   string
	Error      string
	StartedAt  time.Time
	FinishedAt *time.Time
}

// Store defines persistence for stacks, their config, resources and history
type Store interface {
	// Stacks
	CreateOrSelectStack(ctx context.Context, ref StackRef) (*Stack, error)
	GetStack(ctx context.Context, ref StackRef) (*Stack, error)
	MarkStackDestroyed(ctx context.Context, ref StackRef) error

	// Config
	SetConfig(ctx context.Context, ref StackRef, key, value string) error
	GetConfig(ctx context.Context, ref StackRef) (map[string]string, error)

	// Resources
	AddResource(ctx context.Context, res *Resource) error
	GetResource(ctx context.Context, urn string) (*Resource, error)
	DeleteResource(ctx context.Context, urn string) error
	ListResources(ctx context.Context, ref StackRef) ([]*Resource, error)

	// History
	StartDeployment(ctx context.Context, d *Deployment) error
	FinishDeployment(ctx context.Context, id string, status DeploymentStatus, routeURL, errMsg string) error
	ListDeployments(ctx context.Context, ref StackRef, limit int) ([]*Deployment, error)

	// Close releases any resources held by the store
	Close() error
}
