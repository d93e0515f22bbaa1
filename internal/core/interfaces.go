package core

import (
	"context"
	"time"

	"blackhub/internal/types"
)

// Authenticator resolves a bearer credential to an Actor.
//
// Implementations return ErrCodeAuthTokenExpired for an expired but otherwise
// valid credential and ErrCodeAuthTokenInvalid for everything else.
type Authenticator interface {
	ResolveToken(ctx context.Context, token string) (*types.Actor, error)
}

// AccessChecker decides whether a user may perform seller writes.
// subscription.Gate implements it.
type AccessChecker interface {
	Check(ctx context.Context, userID string, now time.Time) (*types.Subscription, error)
}
