// ABOUTME: Mock Store implementation for testing
// ABOUTME: Allows tests to run without SQLite

package store

import (
	"context"
	"sort"
	"sync"
	"time"
)

// MockStore is an in-memory Store implementation for testing.
type MockStore struct {
	mu          sync.RWMutex
	stacks      map[StackRef]*Stack
	config      map[StackRef]map[string]string
	resources   map[string]*Resource // keyed by URN
	deployments map[string]*Deployment
	order       []string // deployment IDs in insertion order
}

// NewMockStore creates a new MockStore.
func NewMockStore() *MockStore {
	return &MockStore{
		stacks:      make(map[StackRef]*Stack),
		config:      make(map[StackRef]map[string]string),
		resources:   make(map[string]*Resource),
		deployments: make(map[string]*Deployment),
	}
}

// CreateOrSelectStack returns the stack, creating or reviving it.
func (m *MockStore) CreateOrSelectStack(ctx context.Context, ref StackRef) (*Stack, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	st, ok := m.stacks[ref]
	if !ok {
		st = &Stack{Ref: ref, CreatedAt: time.Now().UTC()}
		m.stacks[ref] = st
	}
	st.DestroyedAt = nil
	result := *st
	return &result, nil
}

// GetStack retrieves a stack.
func (m *MockStore) GetStack(ctx context.Context, ref StackRef) (*Stack, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	st, ok := m.stacks[ref]
	if !ok {
		return nil, ErrNotFound
	}
	result := *st
	return &result, nil
}

// MarkStackDestroyed records that the stack has been torn down.
func (m *MockStore) MarkStackDestroyed(ctx context.Context, ref StackRef) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	st, ok := m.stacks[ref]
	if !ok {
		return ErrNotFound
	}
	now := time.Now().UTC()
	st.DestroyedAt = &now
	return nil
}

// SetConfig stores a config value on the stack.
func (m *MockStore) SetConfig(ctx context.Context, ref StackRef, key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.stacks[ref]; !ok {
		return ErrNotFound
	}
	if m.config[ref] == nil {
		m.config[ref] = make(map[string]string)
	}
	m.config[ref][key] = value
	return nil
}

// GetConfig returns a copy of the stack's config.
func (m *MockStore) GetConfig(ctx context.Context, ref StackRef) (map[string]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make(map[string]string, len(m.config[ref]))
	for k, v := range m.config[ref] {
		out[k] = v
	}
	return out, nil
}

// AddResource records a resource.
func (m *MockStore) AddResource(ctx context.Context, res *Resource) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	st, ok := m.stacks[res.Stack]
	if !ok {
		return ErrNotFound
	}
	if st.DestroyedAt != nil {
		return ErrStackDestroyed
	}
	r := *res
	m.resources[r.URN] = &r
	return nil
}

// GetResource retrieves a resource by URN.
func (m *MockStore) GetResource(ctx context.Context, urn string) (*Resource, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	r, ok := m.resources[urn]
	if !ok {
		return nil, ErrNotFound
	}
	result := *r
	return &result, nil
}

// DeleteResource removes a resource.
func (m *MockStore) DeleteResource(ctx context.Context, urn string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.resources[urn]; !ok {
		return ErrNotFound
	}
	delete(m.resources, urn)
	return nil
}

// ListResources returns the stack's resources, oldest first.
func (m *MockStore) ListResources(ctx context.Context, ref StackRef) ([]*Resource, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []*Resource
	for _, r := range m.resources {
		if r.Stack == ref {
			c := *r
			out = append(out, &c)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].URN < out[j].URN
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

// StartDeployment records a new deployment.
func (m *MockStore) StartDeployment(ctx context.Context, d *Deployment) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	c := *d
	if c.Status == "" {
		c.Status = DeploymentRunning
	}
	m.deployments[c.ID] = &c
	m.order = append(m.order, c.ID)
	return nil
}

// FinishDeployment sets the final status of a deployment.
func (m *MockStore) FinishDeployment(ctx context.Context, id string, status DeploymentStatus, routeURL, errMsg string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	d, ok := m.deployments[id]
	if !ok {
		return ErrNotFound
	}
	now := time.Now().UTC()
	d.Status = status
	d.RouteURL = routeURL
	d.Error = errMsg
	d.FinishedAt = &now
	return nil
}

// ListDeployments returns the stack's history, newest first.
func (m *MockStore) ListDeployments(ctx context.Context, ref StackRef, limit int) ([]*Deployment, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []*Deployment
	for i := len(m.order) - 1; i >= 0; i-- {
		d := m.deployments[m.order[i]]
		if d.Stack != ref {
			continue
		}
		c := *d
		out = append(out, &c)
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

// Close is a no-op for the mock store.
func (m *MockStore) Close() error {
	return nil
}

// Verify MockStore implements Store
var _ Store = (*MockStore)(nil)
