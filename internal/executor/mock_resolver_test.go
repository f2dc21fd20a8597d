package executor

import (
	"context"
	"fmt"
	"sync"
)

// MockFunc resolves a single field in tests.
type MockFunc func(ctx context.Context, source any, args map[string]any) (any, error)

// NewMockValueResolver returns a MockFunc that always returns the provided value.
func NewMockValueResolver(val any) MockFunc {
	return func(ctx context.Context, source any, args map[string]any) (any, error) {
		return val, nil
	}
}

// NewMockErrorResolver returns a MockFunc that always returns the provided error.
func NewMockErrorResolver(err error) MockFunc {
	return func(ctx context.Context, source any, args map[string]any) (any, error) {
		return nil, err
	}
}

// Call records one ResolveField invocation.
type Call struct {
	ObjectType string
	Field      string
	Source     any
	Args       map[string]any
}

// MockResolver implements Resolver from a map keyed "ObjectType.Field".
// Fields without an entry read the key from a map[string]any source.
type MockResolver struct {
	mu        sync.Mutex
	resolvers map[string]MockFunc
	calls     []Call

	typeResolver func(value any) (string, error)
}

func NewMockResolver(resolvers map[string]MockFunc) *MockResolver {
	return &MockResolver{
		resolvers: resolvers,
		typeResolver: func(value any) (string, error) {
			if m, ok := value.(map[string]any); ok {
				if typename, ok := m["__typename"].(string); ok {
					return typename, nil
				}
			}
			return "", fmt.Errorf("cannot resolve type")
		},
	}
}

func (m *MockResolver) ResolveField(ctx context.Context, objectType, field string, source any, args map[string]any) (any, error) {
	m.mu.Lock()
	r := m.resolvers[objectType+"."+field]
	m.calls = append(m.calls, Call{ObjectType: objectType, Field: field, Source: source, Args: args})
	m.mu.Unlock()

	if r != nil {
		return r(ctx, source, args)
	}
	if src, ok := source.(map[string]any); ok {
		return src[field], nil
	}
	return nil, nil
}

func (m *MockResolver) ResolveType(ctx context.Context, abstractType string, value any) (string, error) {
	return m.typeResolver(value)
}

func (m *MockResolver) GetCalls() []Call {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Call(nil), m.calls...)
}
