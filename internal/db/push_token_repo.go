package db

import (
	"context"

	"blackhub/internal/types"
)

// PushTokenRepository stores device and browser push registrations.
type PushTokenRepository struct {
	db DBTX
}

func NewPushTokenRepository(db DBTX) *PushTokenRepository {
	return &PushTokenRepository{db: db}
}

// Upsert registers a token for a user, refreshing its platform.
func (r *PushTokenRepository) Upsert(ctx context.Context, t types.PushToken) error {
	_, err := r.db.Exec(ctx,
		`INSERT INTO push_tokens (user_id, token, platform)
		 VALUES ($1, $2, $3)
		 ON CONFLICT (user_id, token) DO UPDATE SET platform = EXCLUDED.platform`,
		t.UserID, t.Token, t.Platform,
	)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to register push token", err)
	}
	return nil
}

// ListByUser returns every registration of a user.
func (r *PushTokenRepository) ListByUser(ctx context.Context, userID string) ([]types.PushToken, error) {
	rows, err := r.db.Query(ctx,
		`SELECT user_id, token, platform, created_at FROM push_tokens WHERE user_id = $1`,
		userID,
	)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to list push tokens", err)
	}
	defer rows.Close()

	var out []types.PushToken
	for rows.Next() {
		var t types.PushToken
		if err := rows.Scan(&t.UserID, &t.Token, &t.Platform, &t.CreatedAt); err != nil {
			return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to scan push token", err)
		}
		out = append(out, t)
	}
	if err := rows.Err(); err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to iterate push tokens", err)
	}
	return out, nil
}

// Delete removes a registration the push service reported as gone.
func (r *PushTokenRepository) Delete(ctx context.Context, userID, token string) error {
	if _, err := r.db.Exec(ctx, `DELETE FROM push_tokens WHERE user_id = $1 AND token = $2`, userID, token); err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to delete push token", err)
	}
	return nil
}
