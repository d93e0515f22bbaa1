package db

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"blackhub/internal/types"
)

// ListingRepository stores seller listings. Mutations are always scoped by
// seller_id so a caller can only touch rows they own.
type ListingRepository struct {
	db DBTX
}

func NewListingRepository(db DBTX) *ListingRepository {
	return &ListingRepository{db: db}
}

const listingColumns = `id, seller_id, name, COALESCE(description, ''), price_cents, currency,
	COALESCE(category, ''), COALESCE(image_url, ''), created_at, updated_at`

func scanListing(row pgx.Row) (*types.Listing, error) {
	var l types.Listing
	err := row.Scan(&l.ID, &l.SellerID, &l.Name, &l.Description, &l.PriceCents, &l.Currency,
		&l.Category, &l.ImageURL, &l.CreatedAt, &l.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &l, nil
}

// ListBySeller returns a seller's listings, newest first.
func (r *ListingRepository) ListBySeller(ctx context.Context, sellerID string) ([]types.Listing, error) {
	rows, err := r.db.Query(ctx,
		`SELECT `+listingColumns+` FROM listings WHERE seller_id = $1 ORDER BY created_at DESC`,
		sellerID,
	)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to list listings", err)
	}
	defer rows.Close()

	out := []types.Listing{}
	for rows.Next() {
		l, err := scanListing(rows)
		if err != nil {
			return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to scan listing", err)
		}
		out = append(out, *l)
	}
	if err := rows.Err(); err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to iterate listings", err)
	}
	return out, nil
}

// CountBySeller returns how many listings a seller holds.
func (r *ListingRepository) CountBySeller(ctx context.Context, sellerID string) (int, error) {
	var n int
	if err := r.db.QueryRow(ctx, `SELECT COUNT(*) FROM listings WHERE seller_id = $1`, sellerID).Scan(&n); err != nil {
		return 0, types.NewAppError(types.ErrCodeInternalDB, "failed to count listings", err)
	}
	return n, nil
}

// Create inserts l, assigning an ID when empty.
func (r *ListingRepository) Create(ctx context.Context, l *types.Listing) (*types.Listing, error) {
	if l.ID == "" {
		l.ID = uuid.NewString()
	}
	row := r.db.QueryRow(ctx,
		`INSERT INTO listings (id, seller_id, name, description, price_cents, currency, category, image_url)
		 VALUES ($1, $2, $3, NULLIF($4, ''), $5, $6, NULLIF($7, ''), NULLIF($8, ''))
		 RETURNING `+listingColumns,
		l.ID, l.SellerID, l.Name, l.Description, l.PriceCents, l.Currency, l.Category, l.ImageURL,
	)
	out, err := scanListing(row)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to create listing", err)
	}
	return out, nil
}

// Update applies p to the listing id owned by sellerID.
func (r *ListingRepository) Update(ctx context.Context, sellerID, id string, p types.ListingPatch) (*types.Listing, error) {
	row := r.db.QueryRow(ctx,
		`UPDATE listings
		 SET name = COALESCE($3, name),
		     description = COALESCE($4, description),
		     price_cents = COALESCE($5, price_cents),
		     category = COALESCE($6, category),
		     image_url = COALESCE($7, image_url),
		     updated_at = NOW()
		 WHERE id = $1 AND seller_id = $2
		 RETURNING `+listingColumns,
		id, sellerID, p.Name, p.Description, p.PriceCents, p.Category, p.ImageURL,
	)
	out, err := scanListing(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, types.NewAppError(types.ErrCodeNotFoundListing, "listing not found", nil)
		}
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to update listing", err)
	}
	return out, nil
}

// Delete removes the listing id owned by sellerID.
func (r *ListingRepository) Delete(ctx context.Context, sellerID, id string) error {
	tag, err := r.db.Exec(ctx, `DELETE FROM listings WHERE id = $1 AND seller_id = $2`, id, sellerID)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to delete listing", err)
	}
	if tag.RowsAffected() == 0 {
		return types.NewAppError(types.ErrCodeNotFoundListing, "listing not found", nil)
	}
	return nil
}
