package db

import (
	"context"

	"blackhub/internal/types"
)

// ReferralRepository owns the referral_earnings ledger and the running
// balance on accounts.
type ReferralRepository struct {
	db DBTX
}

func NewReferralRepository(db DBTX) *ReferralRepository {
	return &ReferralRepository{db: db}
}

// creditSQL appends the ledger row and adds the same amount to the
// referrer's balance in one statement. A repeated (source, dedupe_key)
// inserts nothing, so the UPDATE joins zero rows and the balance is left
// alone.
const creditSQL = `WITH ins AS (
	INSERT INTO referral_earnings (referrer_id, referred_id, amount_cents, source, dedupe_key)
	VALUES ($1, $2, $3, $4, $5)
	ON CONFLICT (source, dedupe_key) DO NOTHING
	RETURNING referrer_id, amount_cents
)
UPDATE accounts a
SET referral_earnings_cents = a.referral_earnings_cents + ins.amount_cents,
    updated_at = NOW()
FROM ins
WHERE a.id = ins.referrer_id`

// Credit records a commission and reports whether it was applied. false
// means an entry with the same source and dedupeKey already exists.
func (r *ReferralRepository) Credit(ctx context.Context, e types.ReferralEarning, dedupeKey string) (bool, error) {
	tag, err := r.db.Exec(ctx, creditSQL, e.ReferrerID, e.ReferredID, e.AmountCents, e.Source, dedupeKey)
	if err != nil {
		return false, types.NewAppError(types.ErrCodeInternalDB, "failed to credit referral", err)
	}
	return tag.RowsAffected() == 1, nil
}

// ListRecent returns the newest earnings of a referrer.
func (r *ReferralRepository) ListRecent(ctx context.Context, referrerID string, limit int) ([]types.ReferralEarning, error) {
	rows, err := r.db.Query(ctx,
		`SELECT id, referrer_id, referred_id, amount_cents, source, created_at
		 FROM referral_earnings
		 WHERE referrer_id = $1
		 ORDER BY created_at DESC
		 LIMIT $2`,
		referrerID, limit,
	)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to list referral earnings", err)
	}
	defer rows.Close()

	out := make([]types.ReferralEarning, 0, limit)
	for rows.Next() {
		var e types.ReferralEarning
		if err := rows.Scan(&e.ID, &e.ReferrerID, &e.ReferredID, &e.AmountCents, &e.Source, &e.CreatedAt); err != nil {
			return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to scan referral earning", err)
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to iterate referral earnings", err)
	}
	return out, nil
}
