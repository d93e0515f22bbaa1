package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"blackhub/internal/billing"
	"blackhub/internal/external"
	"blackhub/internal/types"
)

const testKey = "sk_test_paystack_tool"

func TestParseOptions(t *testing.T) {
	t.Setenv("PAYSTACK_SECRET_KEY", testKey)

	o, err := parseOptions([]string{"--email=me@example.com", "--plan=PRO", "--currency=usd", "--interval=yearly"}, io.Discard)
	require.NoError(t, err)

	assert.Equal(t, testKey, o.SecretKey)
	assert.Equal(t, types.PlanPro, o.Plan)
	assert.Equal(t, types.CurrencyUSD, o.Currency)
	assert.Equal(t, types.IntervalYearly, o.Interval)
	assert.NotEmpty(t, o.UserID)
}

func TestParseOptions_Errors(t *testing.T) {
	tests := []struct {
		name string
		env  string
		args []string
	}{
		{"no key", "", []string{"--email=me@example.com"}},
		{"no email or reference", testKey, nil},
		{"unknown plan", testKey, []string{"--email=me@example.com", "--plan=gold"}},
		{"unsupported currency", testKey, []string{"--email=me@example.com", "--currency=EUR"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("PAYSTACK_SECRET_KEY", tt.env)
			_, err := parseOptions(tt.args, io.Discard)
			assert.Error(t, err)
		})
	}
}

func TestParseOptions_ReferenceSkipsPlanChecks(t *testing.T) {
	t.Setenv("PAYSTACK_SECRET_KEY", testKey)

	o, err := parseOptions([]string{"--reference=T123", "--plan=gold"}, io.Discard)
	require.NoError(t, err)
	assert.Equal(t, "T123", o.Reference)
}

func TestSignedChargeEvent(t *testing.T) {
	o := options{SecretKey: testKey, Email: "me@example.com", UserID: "u1", Plan: types.PlanStarter, Currency: types.CurrencyNGN, Interval: types.IntervalMonthly}

	body, sig, err := signedChargeEvent(o, "T999")
	require.NoError(t, err)
	require.NoError(t, external.PaystackVerifier{}.Verify(body, sig, testKey))

	var envelope struct {
		Event string               `json:"event"`
		Data  external.Transaction `json:"data"`
	}
	require.NoError(t, json.Unmarshal(body, &envelope))
	assert.Equal(t, "charge.success", envelope.Event)
	assert.True(t, envelope.Data.Succeeded())

	meta, err := billing.ParsePaymentMetadata(envelope.Data.Metadata)
	require.NoError(t, err)
	assert.Equal(t, "u1", meta.UserID)
	assert.Equal(t, types.PlanStarter, meta.Plan)
}

type fakeVerifier struct {
	statuses []string
	err      error
	calls    int
}

func (f *fakeVerifier) VerifyTransaction(_ context.Context, reference string) (*external.Transaction, error) {
	if f.err != nil {
		return nil, f.err
	}
	i := f.calls
	if i >= len(f.statuses) {
		i = len(f.statuses) - 1
	}
	f.calls++
	return &external.Transaction{Reference: reference, Status: f.statuses[i]}, nil
}

func TestPollTransaction(t *testing.T) {
	v := &fakeVerifier{statuses: []string{"ongoing", "pending", "success"}}
	opts := options{Wait: true, PollInterval: time.Millisecond, Timeout: time.Minute}

	tx, err := pollTransaction(context.Background(), v, "T1", opts, io.Discard)
	require.NoError(t, err)
	assert.Equal(t, "success", tx.Status)
	assert.Equal(t, 3, v.calls)
}

func TestPollTransaction_SingleCheckWithoutWait(t *testing.T) {
	v := &fakeVerifier{statuses: []string{"ongoing"}}

	tx, err := pollTransaction(context.Background(), v, "T1", options{}, io.Discard)
	require.NoError(t, err)
	assert.Equal(t, "ongoing", tx.Status)
	assert.Equal(t, 1, v.calls)
}

func TestPollTransaction_Errors(t *testing.T) {
	_, err := pollTransaction(context.Background(), &fakeVerifier{err: errors.New("boom")}, "T1", options{}, io.Discard)
	assert.Error(t, err)

	v := &fakeVerifier{statuses: []string{"ongoing"}}
	_, err = pollTransaction(context.Background(), v, "T1", options{Wait: true, PollInterval: time.Millisecond, Timeout: -time.Second}, io.Discard)
	assert.ErrorContains(t, err, "still ongoing")
}

func TestReportTransaction(t *testing.T) {
	meta, _ := json.Marshal(billing.PaymentMetadata{Type: billing.MetadataTypeSubscription, UserID: "u1", Plan: types.PlanPro})

	var out bytes.Buffer
	reportTransaction(&out, &external.Transaction{Reference: "T1", Status: "success", Amount: 500000, Currency: "NGN", Metadata: meta})
	assert.Contains(t, out.String(), "user=u1 plan=pro")
	assert.Contains(t, out.String(), "will activate")

	out.Reset()
	reportTransaction(&out, &external.Transaction{Reference: "T2", Status: "failed"})
	assert.Contains(t, out.String(), "not a subscription payment")
}
