package billing

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"blackhub/internal/types"
)

func TestParsePaymentMetadata(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		want    PaymentMetadata
		wantErr bool
	}{
		{
			name: "monthly default",
			raw:  `{"type":"subscription","userId":"u1","plan":"starter"}`,
			want: PaymentMetadata{Type: "subscription", UserID: "u1", Plan: types.PlanStarter, Interval: types.IntervalMonthly},
		},
		{
			name: "yearly with currency",
			raw:  `{"type":"subscription","userId":"u1","plan":"pro","currency":"USD","billing":"yearly"}`,
			want: PaymentMetadata{Type: "subscription", UserID: "u1", Plan: types.PlanPro, Currency: types.CurrencyUSD, Interval: types.IntervalYearly},
		},
		{
			name: "string encoded",
			raw:  `"{\"type\":\"subscription\",\"userId\":\"u2\",\"plan\":\"pro\"}"`,
			want: PaymentMetadata{Type: "subscription", UserID: "u2", Plan: types.PlanPro, Interval: types.IntervalMonthly},
		},
		{name: "empty", raw: ``, wantErr: true},
		{name: "null", raw: `null`, wantErr: true},
		{name: "empty string", raw: `""`, wantErr: true},
		{name: "not json", raw: `{type:`, wantErr: true},
		{name: "other type", raw: `{"type":"order","userId":"u1","plan":"pro"}`, wantErr: true},
		{name: "missing user", raw: `{"type":"subscription","plan":"pro"}`, wantErr: true},
		{name: "unknown plan", raw: `{"type":"subscription","userId":"u1","plan":"gold"}`, wantErr: true},
		{name: "unknown interval", raw: `{"type":"subscription","userId":"u1","plan":"pro","billing":"weekly"}`, wantErr: true},
		{name: "unknown currency", raw: `{"type":"subscription","userId":"u1","plan":"pro","currency":"EUR"}`, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParsePaymentMetadata(json.RawMessage(tt.raw))
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, types.IsCode(err, types.ErrCodeValidationInvalidMetadata))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}
