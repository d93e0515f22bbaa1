package db

import (
	"context"

	"blackhub/internal/types"
)

// NotificationLogRepository guards lifecycle notifications so each
// (user, template) pair is delivered at most once.
type NotificationLogRepository struct {
	db DBTX
}

func NewNotificationLogRepository(db DBTX) *NotificationLogRepository {
	return &NotificationLogRepository{db: db}
}

// Claim reserves (userID, template). It returns false when the pair was
// already claimed, in which case the caller must not send.
func (r *NotificationLogRepository) Claim(ctx context.Context, userID string, template types.TemplateType) (bool, error) {
	tag, err := r.db.Exec(ctx,
		`INSERT INTO email_log (user_id, template_type) VALUES ($1, $2)
		 ON CONFLICT (user_id, template_type) DO NOTHING`,
		userID, template,
	)
	if err != nil {
		return false, types.NewAppError(types.ErrCodeInternalDB, "failed to claim notification", err)
	}
	return tag.RowsAffected() == 1, nil
}

// Release drops a claim after every delivery channel failed, so a later
// attempt may send again.
func (r *NotificationLogRepository) Release(ctx context.Context, userID string, template types.TemplateType) error {
	if _, err := r.db.Exec(ctx,
		`DELETE FROM email_log WHERE user_id = $1 AND template_type = $2`,
		userID, template,
	); err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to release notification claim", err)
	}
	return nil
}
