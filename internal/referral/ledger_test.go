package referral

import (
	"context"
	"errors"
	"regexp"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"blackhub/internal/types"
)

type fakeAccounts struct {
	byID      map[string]*types.Account
	setCalls  []string
	setErrs   []error
	getErr    error
	lookupErr error
}

func newFakeAccounts(accts ...*types.Account) *fakeAccounts {
	f := &fakeAccounts{byID: map[string]*types.Account{}}
	for _, a := range accts {
		f.byID[a.ID] = a
	}
	return f
}

func (f *fakeAccounts) GetByID(_ context.Context, id string) (*types.Account, error) {
	if f.getErr != nil {
		return nil, f.getErr
	}
	a, ok := f.byID[id]
	if !ok {
		return nil, types.NewAppError(types.ErrCodeNotFoundAccount, "account not found", nil)
	}
	cp := *a
	return &cp, nil
}

func (f *fakeAccounts) GetByReferralCode(_ context.Context, code string) (*types.Account, error) {
	if f.lookupErr != nil {
		return nil, f.lookupErr
	}
	for _, a := range f.byID {
		if a.ReferralCode != nil && *a.ReferralCode == code {
			cp := *a
			return &cp, nil
		}
	}
	return nil, types.NewAppError(types.ErrCodeNotFoundAccount, "account not found", nil)
}

func (f *fakeAccounts) SetReferralCode(_ context.Context, id, code string) (string, error) {
	f.setCalls = append(f.setCalls, code)
	if len(f.setErrs) > 0 {
		err := f.setErrs[0]
		f.setErrs = f.setErrs[1:]
		if err != nil {
			return "", err
		}
	}
	a := f.byID[id]
	if a.ReferralCode == nil {
		a.ReferralCode = &code
	}
	return *a.ReferralCode, nil
}

type fakeEarnings struct {
	seen     map[string]bool
	credits  []types.ReferralEarning
	keys     []string
	balances map[string]int64
	recent   []types.ReferralEarning
	limit    int
	err      error
}

func (f *fakeEarnings) Credit(_ context.Context, e types.ReferralEarning, key string) (bool, error) {
	if f.err != nil {
		return false, f.err
	}
	if f.seen == nil {
		f.seen = map[string]bool{}
	}
	k := string(e.Source) + "/" + key
	if f.seen[k] {
		return false, nil
	}
	f.seen[k] = true
	if f.balances != nil {
		f.balances[e.ReferrerID] += e.AmountCents
	}
	f.credits = append(f.credits, e)
	f.keys = append(f.keys, key)
	return true, nil
}

func (f *fakeEarnings) ListRecent(_ context.Context, _ string, limit int) ([]types.ReferralEarning, error) {
	f.limit = limit
	return f.recent, nil
}

func strPtr(s string) *string { return &s }

func TestCommission(t *testing.T) {
	tests := []struct {
		amount int64
		want   int64
	}{
		{0, 500},
		{900, 500},
		{4999, 500},
		{5000, 500},
		{5004, 500},
		{5005, 501},
		{500000, 50000},
		{1000000, 100000},
		{-10, 500},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Commission(tt.amount), "amount %d", tt.amount)
	}
}

func TestGenerateCode(t *testing.T) {
	pattern := regexp.MustCompile(`^BH[A-Z0-9]{8}$`)
	seen := map[string]bool{}
	for range 50 {
		code, err := GenerateCode()
		require.NoError(t, err)
		assert.Regexp(t, pattern, code)
		seen[code] = true
	}
	assert.Greater(t, len(seen), 45, "codes should be effectively unique")
}

func TestLinkFor_ExistingCode(t *testing.T) {
	accts := newFakeAccounts(&types.Account{ID: "u1", ReferralCode: strPtr("BHAAAA1111")})
	l := NewLedger(accts, &fakeEarnings{}, "https://blackhub.app/", nil)

	link, err := l.LinkFor(context.Background(), "u1")
	require.NoError(t, err)

	assert.Equal(t, "BHAAAA1111", link.Code)
	assert.Equal(t, "https://blackhub.app/signup?ref=BHAAAA1111", link.Link)
	assert.Empty(t, accts.setCalls, "existing code must not be replaced")
}

func TestLinkFor_MintsAndRetriesOnCollision(t *testing.T) {
	accts := newFakeAccounts(&types.Account{ID: "u1"})
	accts.setErrs = []error{types.NewAppError(types.ErrCodeConflictReferralCode, "taken", nil), nil}

	codes := []string{"BHTAKEN000", "BHFRESH111"}
	l := NewLedger(accts, &fakeEarnings{}, "https://blackhub.app", nil)
	l.newCode = func() (string, error) {
		c := codes[0]
		codes = codes[1:]
		return c, nil
	}

	link, err := l.LinkFor(context.Background(), "u1")
	require.NoError(t, err)

	assert.Equal(t, "BHFRESH111", link.Code)
	assert.Equal(t, []string{"BHTAKEN000", "BHFRESH111"}, accts.setCalls)
}

func TestLinkFor_GivesUpAfterRepeatedCollisions(t *testing.T) {
	accts := newFakeAccounts(&types.Account{ID: "u1"})
	for range maxCodeAttempt {
		accts.setErrs = append(accts.setErrs, types.NewAppError(types.ErrCodeConflictReferralCode, "taken", nil))
	}
	l := NewLedger(accts, &fakeEarnings{}, "https://blackhub.app", nil)

	_, err := l.LinkFor(context.Background(), "u1")

	assert.True(t, types.IsCode(err, types.ErrCodeInternalUnexpected))
	assert.Len(t, accts.setCalls, maxCodeAttempt)
}

func TestSummary(t *testing.T) {
	accts := newFakeAccounts(&types.Account{ID: "u1", ReferralCode: strPtr("BHXYZ12345"), ReferralEarningsCents: 1500})
	earnings := &fakeEarnings{recent: []types.ReferralEarning{{ID: "e1", AmountCents: 500}}}
	l := NewLedger(accts, earnings, "https://blackhub.app", nil)

	s, err := l.Summary(context.Background(), "u1")
	require.NoError(t, err)

	assert.Equal(t, "BHXYZ12345", s.Code)
	assert.Equal(t, int64(1500), s.BalanceCents)
	assert.Len(t, s.Earnings, 1)
	assert.Equal(t, RecentEarningsLimit, earnings.limit)
}

func TestResolveCode(t *testing.T) {
	accts := newFakeAccounts(&types.Account{ID: "ref", ReferralCode: strPtr("BHREFER001")})
	l := NewLedger(accts, &fakeEarnings{}, "https://blackhub.app", nil)
	ctx := context.Background()

	id, ok, err := l.ResolveCode(ctx, " bhrefer001 ", "new-user")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "ref", id)

	_, ok, err = l.ResolveCode(ctx, "BHREFER001", "ref")
	require.NoError(t, err)
	assert.False(t, ok, "self-referral is ignored")

	_, ok, err = l.ResolveCode(ctx, "BHUNKNOWN0", "new-user")
	require.NoError(t, err)
	assert.False(t, ok)

	_, ok, err = l.ResolveCode(ctx, "", "new-user")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestResolveCode_StoreError(t *testing.T) {
	accts := newFakeAccounts()
	accts.lookupErr = types.NewAppError(types.ErrCodeInternalDB, "boom", nil)
	l := NewLedger(accts, &fakeEarnings{}, "https://blackhub.app", nil)

	_, _, err := l.ResolveCode(context.Background(), "BHREFER001", "u")
	assert.True(t, types.IsCode(err, types.ErrCodeInternalDB))
}

func TestCreditSignup_OncePerReferredUser(t *testing.T) {
	earnings := &fakeEarnings{}
	l := NewLedger(newFakeAccounts(), earnings, "https://blackhub.app", nil)
	ctx := context.Background()

	applied, err := l.CreditSignup(ctx, "ref", "seller")
	require.NoError(t, err)
	assert.True(t, applied)

	applied, err = l.CreditSignup(ctx, "ref", "seller")
	require.NoError(t, err)
	assert.False(t, applied)

	require.Len(t, earnings.credits, 1)
	assert.Equal(t, SignupCommission, earnings.credits[0].AmountCents)
	assert.Equal(t, types.ReferralSourceSignup, earnings.credits[0].Source)
	assert.Equal(t, "seller", earnings.keys[0])
}

func TestCreditPayment_DedupedByReference(t *testing.T) {
	earnings := &fakeEarnings{}
	l := NewLedger(newFakeAccounts(), earnings, "https://blackhub.app", nil)
	ctx := context.Background()

	applied, err := l.CreditPayment(ctx, "ref", "seller", 1000000, "pay_1")
	require.NoError(t, err)
	assert.True(t, applied)

	applied, err = l.CreditPayment(ctx, "ref", "seller", 1000000, "pay_1")
	require.NoError(t, err)
	assert.False(t, applied, "redelivery must not double credit")

	applied, err = l.CreditPayment(ctx, "ref", "seller", 900, "pay_2")
	require.NoError(t, err)
	assert.True(t, applied)

	require.Len(t, earnings.credits, 2)
	assert.Equal(t, int64(100000), earnings.credits[0].AmountCents)
	assert.Equal(t, int64(500), earnings.credits[1].AmountCents)
	assert.Equal(t, types.ReferralSourceSubscription, earnings.credits[0].Source)
}

func TestCreditPayment_Guards(t *testing.T) {
	earnings := &fakeEarnings{}
	l := NewLedger(newFakeAccounts(), earnings, "https://blackhub.app", nil)
	ctx := context.Background()

	_, err := l.CreditPayment(ctx, "ref", "seller", 1000, "")
	assert.True(t, types.IsCode(err, types.ErrCodeValidationMissingField))

	applied, err := l.CreditPayment(ctx, "same", "same", 1000, "pay")
	require.NoError(t, err)
	assert.False(t, applied)
	assert.Empty(t, earnings.credits)
}

func TestCredit_StoreError(t *testing.T) {
	earnings := &fakeEarnings{err: errors.New("db down")}
	l := NewLedger(newFakeAccounts(), earnings, "https://blackhub.app", nil)

	_, err := l.CreditSignup(context.Background(), "ref", "seller")
	assert.Error(t, err)
}

func TestCreditPayment_FiftyDollarPlanAddsMinimum(t *testing.T) {
	earnings := &fakeEarnings{balances: map[string]int64{"ref": 1000}}
	l := NewLedger(newFakeAccounts(), earnings, "https://blackhub.app", nil)

	applied, err := l.CreditPayment(context.Background(), "ref", "seller", 5000, "pay_50")
	require.NoError(t, err)
	require.True(t, applied)

	require.Len(t, earnings.credits, 1)
	assert.Equal(t, int64(500), earnings.credits[0].AmountCents)
	assert.Equal(t, types.ReferralSourceSubscription, earnings.credits[0].Source)
	assert.Equal(t, int64(1500), earnings.balances["ref"])
}

