// ABOUTME: Tests for the route model
// ABOUTME: Covers request validation, target variants and base URL joining

package route

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func noop(ctx context.Context, e Event) (map[string]any, error) {
	return map[string]any{}, nil
}

func TestRequest_Validate(t *testing.T) {
	tests := []struct {
		name    string
		req     Request
		wantErr bool
	}{
		{"valid", Request{Path: "/hello", Method: MethodGet, Callback: noop}, false},
		{"relative path", Request{Path: "hello", Method: MethodGet, Callback: noop}, true},
		{"missing method", Request{Path: "/hello", Callback: noop}, true},
		{"missing callback", Request{Path: "/hello", Method: MethodGet}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.req.Validate()
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidRequest)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestParseMethod(t *testing.T) {
	m, err := ParseMethod("get")
	require.NoError(t, err)
	assert.Equal(t, MethodGet, m)

	_, err = ParseMethod("BREW")
	assert.ErrorIs(t, err, ErrInvalidRequest)
}

func TestNewDescriptor_KeepsRequestPath(t *testing.T) {
	req := Request{Path: "/hello", Method: MethodGet, Callback: noop}

	d := NewDescriptor(req, EventHandler("fn-1"))
	assert.Equal(t, "/hello", d.Path)
	assert.Equal(t, TargetEventHandler, d.Target.Kind)
	assert.Equal(t, "fn-1", d.Target.HandlerRef)
	assert.Empty(t, d.Target.URI)

	d = NewDescriptor(req, HTTPProxy("http://10.0.0.1:8080"))
	assert.Equal(t, "/hello", d.Path)
	assert.Equal(t, TargetHTTPProxy, d.Target.Kind)
	assert.Empty(t, d.Target.HandlerRef)
}

func TestJoinURL(t *testing.T) {
	tests := []struct {
		base, path, want string
	}{
		{"http://gw.local/stage/", "/hello", "http://gw.local/stage/hello"},
		{"http://gw.local/stage", "/hello", "http://gw.local/stage/hello"},
		{"http://gw.local/", "/", "http://gw.local/"},
		{"http://gw.local/", "/a/b", "http://gw.local/a/b"},
		{"http://gw.local", "hello", "http://gw.local/hello"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, JoinURL(tt.base, tt.path), "JoinURL(%q, %q)", tt.base, tt.path)
	}
}
