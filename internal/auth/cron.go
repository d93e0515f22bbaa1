package auth

import (
	"context"
	"crypto/subtle"

	"blackhub/internal/types"
)

// SchedulerActorID identifies scheduler-initiated work in logs.
const SchedulerActorID = "scheduler"

// CronVerifier authenticates the external scheduler by its shared secret.
type CronVerifier struct {
	secret []byte
}

func NewCronVerifier(secret types.SecretString) *CronVerifier {
	return &CronVerifier{secret: []byte(secret.Unmask())}
}

// ResolveToken compares token with the shared secret in constant time. An
// unset secret rejects everything.
func (c *CronVerifier) ResolveToken(_ context.Context, token string) (*types.Actor, error) {
	if len(c.secret) == 0 || token == "" {
		return nil, types.NewAppError(types.ErrCodeAuthTokenInvalid, "invalid scheduler credentials", nil)
	}
	if subtle.ConstantTimeCompare([]byte(token), c.secret) != 1 {
		return nil, types.NewAppError(types.ErrCodeAuthTokenInvalid, "invalid scheduler credentials", nil)
	}
	return &types.Actor{ID: SchedulerActorID, Type: types.ActorTypeScheduler}, nil
}
