package handlers

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"blackhub/internal/billing"
	"blackhub/internal/types"
)

type mockCheckoutService struct {
	startFn    func(ctx context.Context, in billing.CheckoutInput) (*billing.CheckoutResult, error)
	verifyFn   func(ctx context.Context, reference string) (*billing.VerifyResult, error)
	lastInput  billing.CheckoutInput
	verifyRefs []string
}

func (m *mockCheckoutService) StartCheckout(ctx context.Context, in billing.CheckoutInput) (*billing.CheckoutResult, error) {
	m.lastInput = in
	if m.startFn != nil {
		return m.startFn(ctx, in)
	}
	return &billing.CheckoutResult{
		AuthorizationURL: "https://checkout.paystack.com/abc",
		Reference:        "ref-1",
		AmountCents:      500000,
		Currency:         in.Currency,
	}, nil
}

func (m *mockCheckoutService) VerifyPayment(ctx context.Context, reference string) (*billing.VerifyResult, error) {
	m.verifyRefs = append(m.verifyRefs, reference)
	if m.verifyFn != nil {
		return m.verifyFn(ctx, reference)
	}
	return &billing.VerifyResult{Status: "success", Reference: reference, Plan: types.PlanStarter, Activated: true}, nil
}

type mockSubscriptionReader struct {
	sub *types.Subscription
	err error
}

func (m *mockSubscriptionReader) GetByUserID(context.Context, string) (*types.Subscription, error) {
	return m.sub, m.err
}

type mockAccountReader struct {
	accounts map[string]*types.Account
	err      error
}

func (m *mockAccountReader) GetByID(_ context.Context, id string) (*types.Account, error) {
	if m.err != nil {
		return nil, m.err
	}
	if a, ok := m.accounts[id]; ok {
		return a, nil
	}
	return nil, types.NewAppError(types.ErrCodeNotFoundAccount, "account not found", nil)
}

var (
	_ CheckoutService    = (*mockCheckoutService)(nil)
	_ SubscriptionReader = (*mockSubscriptionReader)(nil)
	_ AccountReader      = (*mockAccountReader)(nil)
)

func newTestBillingHandler(svc *mockCheckoutService, subs *mockSubscriptionReader) *BillingHandler {
	accounts := &mockAccountReader{accounts: map[string]*types.Account{
		"seller-ng":  {ID: "seller-ng", Email: "ng@example.com", Role: types.RoleSeller, Country: types.CountryNG},
		"seller-int": {ID: "seller-int", Email: "int@example.com", Role: types.RoleSeller, Country: types.CountryINT},
		"buyer-ng":   {ID: "buyer-ng", Email: "buyer@example.com", Role: types.RoleBuyer, Country: types.CountryNG},
	}}
	return NewBillingHandler(svc, subs, accounts, testValidator(), testLogger())
}

// --- StartCheckout ---

func TestStartCheckout_Success(t *testing.T) {
	svc := &mockCheckoutService{}
	h := newTestBillingHandler(svc, &mockSubscriptionReader{})

	req := makeRequest(userContext("seller-ng", "ng@example.com"), http.MethodPost, "/v1/checkout",
		map[string]string{"plan": "pro", "currency": "NGN", "billing": "yearly"})
	rr := httptest.NewRecorder()
	h.StartCheckout(rr, req)

	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	assert.Equal(t, billing.CheckoutInput{
		UserID:   "seller-ng",
		Email:    "ng@example.com",
		Plan:     types.PlanPro,
		Currency: types.CurrencyNGN,
		Interval: types.IntervalYearly,
	}, svc.lastInput)

	var res billing.CheckoutResult
	decodeBody(t, rr, &res)
	assert.Equal(t, "https://checkout.paystack.com/abc", res.AuthorizationURL)
	assert.Equal(t, "ref-1", res.Reference)
}

func TestStartCheckout_DefaultsCurrencyFromCountry(t *testing.T) {
	svc := &mockCheckoutService{}
	h := newTestBillingHandler(svc, &mockSubscriptionReader{})

	rr := httptest.NewRecorder()
	h.StartCheckout(rr, makeRequest(userContext("seller-int", ""), http.MethodPost, "/v1/checkout",
		map[string]string{"plan": "starter"}))

	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	assert.Equal(t, types.CurrencyUSD, svc.lastInput.Currency)
	assert.Equal(t, "int@example.com", svc.lastInput.Email, "email falls back to the account")
}

func TestStartCheckout_ValidationErrors(t *testing.T) {
	tests := []struct {
		name string
		body string
		code types.ErrorCode
	}{
		{"missing plan", `{}`, types.ErrCodeValidationMissingField},
		{"unknown plan", `{"plan":"gold"}`, types.ErrCodeValidationInvalidInput},
		{"bad currency", `{"plan":"pro","currency":"EUR"}`, types.ErrCodeValidationInvalidInput},
		{"bad interval", `{"plan":"pro","billing":"weekly"}`, types.ErrCodeValidationInvalidInput},
		{"malformed", `{"plan":`, types.ErrCodeValidationInvalidJSON},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := &mockCheckoutService{}
			h := newTestBillingHandler(svc, &mockSubscriptionReader{})

			rr := httptest.NewRecorder()
			h.StartCheckout(rr, makeRequest(userContext("seller-ng", "ng@example.com"), http.MethodPost, "/v1/checkout", tt.body))

			assert.Equal(t, http.StatusBadRequest, rr.Code)
			assert.Equal(t, string(tt.code), errorCode(t, rr))
			assert.Empty(t, svc.lastInput.UserID, "service must not be called")
		})
	}
}

func TestStartCheckout_RejectsNonSellers(t *testing.T) {
	tests := []struct {
		name   string
		userID string
		status int
		code   types.ErrorCode
	}{
		{"buyer", "buyer-ng", http.StatusForbidden, types.ErrCodePermissionRole},
		{"not onboarded", "stranger", http.StatusNotFound, types.ErrCodeNotFoundAccount},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := &mockCheckoutService{}
			h := newTestBillingHandler(svc, &mockSubscriptionReader{})

			rr := httptest.NewRecorder()
			h.StartCheckout(rr, makeRequest(userContext(tt.userID, "x@example.com"), http.MethodPost, "/v1/checkout",
				map[string]string{"plan": "pro", "currency": "NGN"}))

			assert.Equal(t, tt.status, rr.Code)
			assert.Equal(t, string(tt.code), errorCode(t, rr))
			assert.Empty(t, svc.lastInput.UserID, "service must not be called")
		})
	}
}

func TestStartCheckout_GatewayFailure(t *testing.T) {
	svc := &mockCheckoutService{
		startFn: func(context.Context, billing.CheckoutInput) (*billing.CheckoutResult, error) {
			return nil, types.NewAppError(types.ErrCodeUpstreamPayment, "Currency not supported by merchant", nil)
		},
	}
	h := newTestBillingHandler(svc, &mockSubscriptionReader{})

	rr := httptest.NewRecorder()
	h.StartCheckout(rr, makeRequest(userContext("seller-ng", "ng@example.com"), http.MethodPost, "/v1/checkout",
		map[string]string{"plan": "pro"}))

	assert.Equal(t, http.StatusBadGateway, rr.Code)
	assert.Equal(t, string(types.ErrCodeUpstreamPayment), errorCode(t, rr))
}

// --- Verify ---

func TestVerify_QueryAndBody(t *testing.T) {
	svc := &mockCheckoutService{}
	h := newTestBillingHandler(svc, &mockSubscriptionReader{})

	rr := httptest.NewRecorder()
	h.Verify(rr, makeRequest(context.Background(), http.MethodGet, "/v1/checkout/verify?reference=%20ref-q%20", nil))
	require.Equal(t, http.StatusOK, rr.Code)

	rr = httptest.NewRecorder()
	h.Verify(rr, makeRequest(context.Background(), http.MethodPost, "/v1/checkout/verify", map[string]string{"reference": "ref-b"}))
	require.Equal(t, http.StatusOK, rr.Code)

	assert.Equal(t, []string{"ref-q", "ref-b"}, svc.verifyRefs)

	var res billing.VerifyResult
	decodeBody(t, rr, &res)
	assert.True(t, res.Activated)
}

func TestVerify_MissingReference(t *testing.T) {
	svc := &mockCheckoutService{}
	h := newTestBillingHandler(svc, &mockSubscriptionReader{})

	rr := httptest.NewRecorder()
	h.Verify(rr, makeRequest(context.Background(), http.MethodGet, "/v1/checkout/verify?reference=%20", nil))

	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Equal(t, string(types.ErrCodeValidationMissingField), errorCode(t, rr))
	assert.Empty(t, svc.verifyRefs)
}

func TestVerify_FailedPaymentIs200(t *testing.T) {
	svc := &mockCheckoutService{
		verifyFn: func(_ context.Context, ref string) (*billing.VerifyResult, error) {
			return &billing.VerifyResult{Status: "abandoned", Reference: ref}, nil
		},
	}
	h := newTestBillingHandler(svc, &mockSubscriptionReader{})

	rr := httptest.NewRecorder()
	h.Verify(rr, makeRequest(context.Background(), http.MethodGet, "/v1/checkout/verify?reference=r", nil))

	require.Equal(t, http.StatusOK, rr.Code)
	var res billing.VerifyResult
	decodeBody(t, rr, &res)
	assert.False(t, res.Activated)
	assert.Equal(t, "abandoned", res.Status)
}

func TestVerify_ServiceError(t *testing.T) {
	svc := &mockCheckoutService{
		verifyFn: func(context.Context, string) (*billing.VerifyResult, error) {
			return nil, errors.New("boom")
		},
	}
	h := newTestBillingHandler(svc, &mockSubscriptionReader{})

	rr := httptest.NewRecorder()
	h.Verify(rr, makeRequest(context.Background(), http.MethodGet, "/v1/checkout/verify?reference=r", nil))
	assert.Equal(t, http.StatusInternalServerError, rr.Code)
}

// --- GetSubscription ---

func TestGetSubscription(t *testing.T) {
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	trialEnd := now.Add(24 * time.Hour)
	lapsed := now.Add(-time.Hour)

	tests := []struct {
		name      string
		reader    *mockSubscriptionReader
		hasAccess bool
		maxList   *int
		wantNil   bool
	}{
		{
			name:      "trialing starter",
			reader:    &mockSubscriptionReader{sub: &types.Subscription{Plan: types.PlanStarter, Status: types.SubscriptionTrialing, TrialEndsAt: &trialEnd}},
			hasAccess: true,
			maxList:   intPtr(5),
		},
		{
			name:      "lapsed pro",
			reader:    &mockSubscriptionReader{sub: &types.Subscription{Plan: types.PlanPro, Status: types.SubscriptionActive, CurrentPeriodEndsAt: &lapsed}},
			hasAccess: false,
		},
		{
			name:    "no subscription",
			reader:  &mockSubscriptionReader{err: types.NewAppError(types.ErrCodeNotFoundSubscription, "nope", nil)},
			wantNil: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newTestBillingHandler(&mockCheckoutService{}, tt.reader)
			h.now = func() time.Time { return now }

			rr := httptest.NewRecorder()
			h.GetSubscription(rr, makeRequest(userContext("u1", "a@b.co"), http.MethodGet, "/v1/subscription", nil))
			require.Equal(t, http.StatusOK, rr.Code)

			var resp SubscriptionResponse
			decodeBody(t, rr, &resp)
			assert.Equal(t, tt.hasAccess, resp.HasAccess)
			assert.Equal(t, tt.maxList, resp.MaxListings)
			assert.Equal(t, tt.wantNil, resp.Subscription == nil)
		})
	}
}

func TestGetSubscription_DBError(t *testing.T) {
	h := newTestBillingHandler(&mockCheckoutService{},
		&mockSubscriptionReader{err: types.NewAppError(types.ErrCodeInternalDB, "down", nil)})

	rr := httptest.NewRecorder()
	h.GetSubscription(rr, makeRequest(userContext("u1", "a@b.co"), http.MethodGet, "/v1/subscription", nil))
	assert.Equal(t, http.StatusInternalServerError, rr.Code)
}

func intPtr(n int) *int { return &n }
