package mpgs

import (
	"encoding/json"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func decode(t *testing.T, raw string) Response {
	t.Helper()
	var r Response
	require.NoError(t, json.Unmarshal([]byte(raw), &r))
	return r
}

func TestNormalizeSessionShapes(t *testing.T) {
	cases := []struct {
		name string
		raw  string
		want Session
	}{
		{
			name: "nested_session",
			raw:  `{"session":{"id":"S1","version":"v1"},"successIndicator":"I1"}`,
			want: Session{ID: "S1", SuccessIndicator: "I1", Version: "v1"},
		},
		{
			name: "top_level_session_id",
			raw:  `{"sessionId":"S2","successIndicator":"I2","checkoutJs":"https://gw/checkout.js"}`,
			want: Session{ID: "S2", SuccessIndicator: "I2", CheckoutJS: "https://gw/checkout.js"},
		},
		{
			name: "indicator_inside_session",
			raw:  `{"id":"S3","session":{"successIndicator":"I3","checkoutJs":"js"}}`,
			want: Session{ID: "S3", SuccessIndicator: "I3", CheckoutJS: "js"},
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := NormalizeSession(decode(t, tc.raw))
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestNormalizeSessionRejectsUnknownShape(t *testing.T) {
	for _, raw := range []string{
		`{"result":"SUCCESS"}`,
		`{"session":{"id":"S1"}}`,
		`{"successIndicator":"I1"}`,
		`{"session":"S1","successIndicator":"I1"}`,
	} {
		_, err := NormalizeSession(decode(t, raw))
		assert.ErrorIs(t, err, ErrUnrecognizedResponse, raw)
		assert.ErrorIs(t, err, ErrGatewayProtocol, raw)
	}
}

func TestLatestTransactionID(t *testing.T) {
	r := decode(t, `{"transaction":[{"transaction":{"id":"1"}},{"transaction":{"id":"2"}}]}`)
	assert.Equal(t, "2", r.LatestTransactionID())
	assert.Empty(t, decode(t, `{"transaction":[]}`).LatestTransactionID())
	assert.Empty(t, decode(t, `{}`).LatestTransactionID())
}

func TestFormatAmount(t *testing.T) {
	assert.Equal(t, "25.500", FormatAmount(decimal.RequireFromString("25.5"), "JOD"))
	assert.Equal(t, "10.00", FormatAmount(decimal.RequireFromString("10"), "usd"))
	assert.Equal(t, "1000", FormatAmount(decimal.RequireFromString("999.6"), "JPY"))
}
