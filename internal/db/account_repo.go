package db

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"

	"blackhub/internal/types"
)

// AccountRepository provides data access for the accounts table.
type AccountRepository struct {
	db DBTX
}

func NewAccountRepository(db DBTX) *AccountRepository {
	return &AccountRepository{db: db}
}

const accountColumns = `id, email, role, country, display_name, business_name, phone,
	suspended, verified_seller, referral_code, referred_by, referral_earnings_cents,
	created_at, updated_at`

// scanAccount reads accountColumns followed by any extra returned columns.
func scanAccount(row pgx.Row, extra ...any) (*types.Account, error) {
	var a types.Account
	var displayName, businessName, phone *string
	dest := []any{
		&a.ID,
		&a.Email,
		&a.Role,
		&a.Country,
		&displayName,
		&businessName,
		&phone,
		&a.Suspended,
		&a.VerifiedSeller,
		&a.ReferralCode,
		&a.ReferredBy,
		&a.ReferralEarningsCents,
		&a.CreatedAt,
		&a.UpdatedAt,
	}
	if err := row.Scan(append(dest, extra...)...); err != nil {
		return nil, err
	}
	if displayName != nil {
		a.DisplayName = *displayName
	}
	if businessName != nil {
		a.BusinessName = *businessName
	}
	if phone != nil {
		a.Phone = *phone
	}
	return &a, nil
}

func (r *AccountRepository) getOne(ctx context.Context, query string, arg any) (*types.Account, error) {
	a, err := scanAccount(r.db.QueryRow(ctx, query, arg))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, types.NewAppError(types.ErrCodeNotFoundAccount, "account not found", nil)
		}
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to retrieve account", err)
	}
	return a, nil
}

// GetByID returns ErrCodeNotFoundAccount when no row exists.
func (r *AccountRepository) GetByID(ctx context.Context, id string) (*types.Account, error) {
	return r.getOne(ctx, `SELECT `+accountColumns+` FROM accounts WHERE id = $1`, id)
}

// GetByReferralCode resolves a referral code to its owner.
func (r *AccountRepository) GetByReferralCode(ctx context.Context, code string) (*types.Account, error) {
	return r.getOne(ctx, `SELECT `+accountColumns+` FROM accounts WHERE referral_code = $1`, code)
}

// Upsert creates the account or refreshes email and country. Role is only
// written on insert. created reports whether this call inserted the row.
func (r *AccountRepository) Upsert(ctx context.Context, a *types.Account) (*types.Account, bool, error) {
	row := r.db.QueryRow(ctx,
		`INSERT INTO accounts (id, email, role, country)
		 VALUES ($1, $2, $3, $4)
		 ON CONFLICT (id) DO UPDATE
		 SET email = EXCLUDED.email,
		     country = EXCLUDED.country,
		     updated_at = NOW()
		 RETURNING `+accountColumns+`, (xmax = 0) AS inserted`,
		a.ID, a.Email, a.Role, a.Country,
	)
	var created bool
	out, err := scanAccount(row, &created)
	if err != nil {
		return nil, false, types.NewAppError(types.ErrCodeInternalDB, "failed to upsert account", err)
	}
	return out, created, nil
}

// SetReferredBy records the referrer once. It returns false when the account
// already has a referrer or referrerID is the account itself.
func (r *AccountRepository) SetReferredBy(ctx context.Context, id, referrerID string) (bool, error) {
	tag, err := r.db.Exec(ctx,
		`UPDATE accounts
		 SET referred_by = $2, updated_at = NOW()
		 WHERE id = $1 AND referred_by IS NULL AND id <> $2`,
		id, referrerID,
	)
	if err != nil {
		return false, types.NewAppError(types.ErrCodeInternalDB, "failed to set referrer", err)
	}
	return tag.RowsAffected() == 1, nil
}

// SetReferralCode stores code if the account has none yet and returns the
// code the account ends up with. A collision with another account's code
// yields ErrCodeConflictReferralCode so the caller can mint a new one.
func (r *AccountRepository) SetReferralCode(ctx context.Context, id, code string) (string, error) {
	var stored string
	err := r.db.QueryRow(ctx,
		`UPDATE accounts
		 SET referral_code = COALESCE(referral_code, $2), updated_at = NOW()
		 WHERE id = $1
		 RETURNING referral_code`,
		id, code,
	).Scan(&stored)
	if err != nil {
		switch {
		case errors.Is(err, pgx.ErrNoRows):
			return "", types.NewAppError(types.ErrCodeNotFoundAccount, "account not found", nil)
		case isUniqueViolation(err):
			return "", types.NewAppError(types.ErrCodeConflictReferralCode, "referral code already taken", err)
		}
		return "", types.NewAppError(types.ErrCodeInternalDB, "failed to set referral code", err)
	}
	return stored, nil
}

// ProfileUpdate holds optional profile edits.
type ProfileUpdate struct {
	DisplayName  *string
	BusinessName *string
	Phone        *string
}

// UpdateProfile applies non-nil fields of u.
func (r *AccountRepository) UpdateProfile(ctx context.Context, id string, u ProfileUpdate) (*types.Account, error) {
	row := r.db.QueryRow(ctx,
		`UPDATE accounts
		 SET display_name = COALESCE($2, display_name),
		     business_name = COALESCE($3, business_name),
		     phone = COALESCE($4, phone),
		     updated_at = NOW()
		 WHERE id = $1
		 RETURNING `+accountColumns,
		id, u.DisplayName, u.BusinessName, u.Phone,
	)
	a, err := scanAccount(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, types.NewAppError(types.ErrCodeNotFoundAccount, "account not found", nil)
		}
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to update profile", err)
	}
	return a, nil
}

// SetSuspended toggles the administrative suspension flag.
func (r *AccountRepository) SetSuspended(ctx context.Context, id string, suspended bool) error {
	return r.setFlag(ctx, `UPDATE accounts SET suspended = $2, updated_at = NOW() WHERE id = $1`, id, suspended)
}

// SetVerifiedSeller toggles the administrative trust flag.
func (r *AccountRepository) SetVerifiedSeller(ctx context.Context, id string, verified bool) error {
	return r.setFlag(ctx, `UPDATE accounts SET verified_seller = $2, updated_at = NOW() WHERE id = $1`, id, verified)
}

func (r *AccountRepository) setFlag(ctx context.Context, query, id string, value bool) error {
	tag, err := r.db.Exec(ctx, query, id, value)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to update account", err)
	}
	if tag.RowsAffected() == 0 {
		return types.NewAppError(types.ErrCodeNotFoundAccount, "account not found", nil)
	}
	return nil
}
