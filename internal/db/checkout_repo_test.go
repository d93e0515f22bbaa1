package db

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"blackhub/internal/types"
)

func TestCheckoutRepository_Create(t *testing.T) {
	db := new(mockDBTX)
	repo := NewCheckoutRepository(db)

	db.On("Exec", mock.Anything, mock.MatchedBy(func(sql string) bool {
		return strings.Contains(sql, "ON CONFLICT (session_id) DO NOTHING")
	}), []any{"ref_1", "u1", types.PlanPro, types.IntervalYearly}).
		Return(pgconn.NewCommandTag("INSERT 0 1"), nil)

	err := repo.Create(context.Background(), &types.CheckoutSession{
		SessionID: "ref_1",
		UserID:    "u1",
		Plan:      types.PlanPro,
		Interval:  types.IntervalYearly,
	})
	require.NoError(t, err)
	db.AssertExpectations(t)
}

func TestCheckoutRepository_CreateError(t *testing.T) {
	db := new(mockDBTX)
	db.On("Exec", mock.Anything, mock.Anything, mock.Anything).
		Return(pgconn.CommandTag{}, errors.New("connection reset"))

	err := NewCheckoutRepository(db).Create(context.Background(), &types.CheckoutSession{SessionID: "ref_1"})
	assert.True(t, types.IsCode(err, types.ErrCodeInternalDB))
}

func TestCheckoutRepository_MarkCompleted(t *testing.T) {
	db := new(mockDBTX)
	repo := NewCheckoutRepository(db)

	db.On("Exec", mock.Anything, mock.AnythingOfType("string"), []any{"ref_1"}).
		Return(pgconn.NewCommandTag("UPDATE 1"), nil).Once()
	db.On("Exec", mock.Anything, mock.AnythingOfType("string"), []any{"ref_1"}).
		Return(pgconn.NewCommandTag("UPDATE 0"), nil).Once()

	changed, err := repo.MarkCompleted(context.Background(), "ref_1")
	require.NoError(t, err)
	assert.True(t, changed)

	changed, err = repo.MarkCompleted(context.Background(), "ref_1")
	require.NoError(t, err)
	assert.False(t, changed, "second completion is a no-op")
}
