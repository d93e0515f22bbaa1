package core

import (
	"context"
	"sync"
	"time"

	"blackhub/internal/types"
)

// MockAuthenticator implements Authenticator for tests. ResolveTokenFunc takes
// precedence over Err, which takes precedence over Actor.
//
//	mock := &MockAuthenticator{
//	    Actor: &types.Actor{ID: "user-1", Email: "a@b.co", Type: types.ActorTypeUser},
//	}
type MockAuthenticator struct {
	Actor            *types.Actor
	Err              error
	ResolveTokenFunc func(ctx context.Context, token string) (*types.Actor, error)

	mu    sync.Mutex
	Calls []string
}

func (m *MockAuthenticator) ResolveToken(ctx context.Context, token string) (*types.Actor, error) {
	m.mu.Lock()
	m.Calls = append(m.Calls, token)
	m.mu.Unlock()

	if m.ResolveTokenFunc != nil {
		return m.ResolveTokenFunc(ctx, token)
	}
	if m.Err != nil {
		return nil, m.Err
	}
	return m.Actor, nil
}

// MockAccessChecker implements AccessChecker for tests.
type MockAccessChecker struct {
	Subscription *types.Subscription
	Err          error

	mu    sync.Mutex
	Calls []string
}

func (m *MockAccessChecker) Check(_ context.Context, userID string, _ time.Time) (*types.Subscription, error) {
	m.mu.Lock()
	m.Calls = append(m.Calls, userID)
	m.mu.Unlock()

	if m.Err != nil {
		return nil, m.Err
	}
	return m.Subscription, nil
}

// MockHealthProbe implements HealthProbe for tests.
type MockHealthProbe struct {
	ProbeName string
	Err       error
	Delay     time.Duration
}

func (m *MockHealthProbe) Name() string { return m.ProbeName }

func (m *MockHealthProbe) Check(ctx context.Context) error {
	if m.Delay > 0 {
		select {
		case <-time.After(m.Delay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return m.Err
}
