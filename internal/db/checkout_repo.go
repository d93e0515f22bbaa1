package db

import (
	"context"

	"blackhub/internal/types"
)

// CheckoutRepository records gateway transaction initiations.
type CheckoutRepository struct {
	db DBTX
}

func NewCheckoutRepository(db DBTX) *CheckoutRepository {
	return &CheckoutRepository{db: db}
}

// Create persists a pending session. Re-initializing the same reference is
// a no-op.
func (r *CheckoutRepository) Create(ctx context.Context, s *types.CheckoutSession) error {
	_, err := r.db.Exec(ctx,
		`INSERT INTO checkout_sessions (session_id, user_id, plan, interval, status)
		 VALUES ($1, $2, $3, $4, 'pending')
		 ON CONFLICT (session_id) DO NOTHING`,
		s.SessionID, s.UserID, s.Plan, s.Interval,
	)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to create checkout session", err)
	}
	return nil
}

// MarkCompleted flips a session to completed and reports whether this call
// made the change. Unknown references are not an error; the gateway is the
// source of truth and a session may have been created elsewhere.
func (r *CheckoutRepository) MarkCompleted(ctx context.Context, sessionID string) (bool, error) {
	tag, err := r.db.Exec(ctx,
		`UPDATE checkout_sessions
		 SET status = 'completed', updated_at = NOW()
		 WHERE session_id = $1 AND status = 'pending'`,
		sessionID,
	)
	if err != nil {
		return false, types.NewAppError(types.ErrCodeInternalDB, "failed to complete checkout session", err)
	}
	return tag.RowsAffected() == 1, nil
}
