package mpgs

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/Mujanati13/Qabalan-sub007/internal/config"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestClient(t *testing.T, gatewayURL string, mutate func(*config.MPGSConfig)) *Client {
	t.Helper()
	cfg := config.Config{MPGS: config.MPGSConfig{
		MerchantID:  "TEST9800",
		APIVersion:  "61",
		GatewayURL:  gatewayURL,
		APIPassword: "secret",
		Timeout:     2 * time.Second,
	}}
	if mutate != nil {
		mutate(&cfg.MPGS)
	}
	return NewClient(ClientParams{Config: cfg, Log: zap.NewNop()})
}

func TestCreateSessionSendsAuthAndPayload(t *testing.T) {
	var gotPath, gotUser, gotPass string
	var gotBody map[string]interface{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotUser, gotPass, _ = r.BasicAuth()
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"result":"SUCCESS","session":{"id":"SESSION1"},"successIndicator":"IND1"}`))
	}))
	defer srv.Close()

	client := newTestClient(t, srv.URL, nil)
	resp, err := client.CreateSession(context.Background(), map[string]interface{}{"apiOperation": "CREATE_CHECKOUT_SESSION"})
	require.NoError(t, err)

	assert.Equal(t, "/api/rest/version/61/merchant/TEST9800/session", gotPath)
	assert.Equal(t, "merchant.TEST9800", gotUser)
	assert.Equal(t, "secret", gotPass)
	assert.Equal(t, "CREATE_CHECKOUT_SESSION", gotBody["apiOperation"])
	assert.Equal(t, "SESSION1", resp.String("session.id"))
}

func TestMissingPasswordMakesNoNetworkCall(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
	}))
	defer srv.Close()

	client := newTestClient(t, srv.URL, func(c *config.MPGSConfig) { c.APIPassword = "" })

	_, err := client.CreateSession(context.Background(), map[string]interface{}{})
	assert.ErrorIs(t, err, ErrConfiguration)
	_, err = client.GetOrder(context.Background(), "42")
	assert.ErrorIs(t, err, ErrConfiguration)
	assert.Zero(t, atomic.LoadInt32(&calls))
}

func TestRejectionSurfacesExplanation(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"result":"ERROR","error":{"cause":"INVALID_REQUEST","explanation":"Unsupported field: sourceOfFunds.type","field":"sourceOfFunds.type","validationType":"UNSUPPORTED"}}`))
	}))
	defer srv.Close()

	_, err := newTestClient(t, srv.URL, nil).CreateSession(context.Background(), map[string]interface{}{})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrGatewayRejected)
	assert.False(t, errors.Is(err, ErrGatewayUnreachable))

	rejected, ok := AsRejected(err)
	require.True(t, ok)
	assert.Equal(t, http.StatusBadRequest, rejected.StatusCode)
	assert.Equal(t, "Unsupported field: sourceOfFunds.type", rejected.Explanation)
	assert.True(t, rejected.Mentions("sourceOfFunds"))
}

func TestErrorResultWith200IsRejection(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"result":"ERROR","error":{"cause":"SERVER_BUSY","explanation":"Try later"}}`))
	}))
	defer srv.Close()

	_, err := newTestClient(t, srv.URL, nil).GetOrder(context.Background(), "42")
	assert.ErrorIs(t, err, ErrGatewayRejected)
}

func TestProtocolErrors(t *testing.T) {
	cases := map[string]struct {
		status int
		body   string
	}{
		"html_502":   {status: http.StatusBadGateway, body: "<html>bad gateway</html>"},
		"not_json":   {status: http.StatusOK, body: "ok"},
		"json_array": {status: http.StatusOK, body: "[1,2]"},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tc.status)
				_, _ = w.Write([]byte(tc.body))
			}))
			defer srv.Close()

			_, err := newTestClient(t, srv.URL, nil).GetOrder(context.Background(), "42")
			assert.ErrorIs(t, err, ErrGatewayProtocol)
			assert.False(t, errors.Is(err, ErrGatewayRejected))
		})
	}
}

func TestTimeoutIsUnreachable(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-release
	}))
	defer srv.Close()
	defer close(release)

	client := newTestClient(t, srv.URL, func(c *config.MPGSConfig) { c.Timeout = 50 * time.Millisecond })
	_, err := client.CreateSession(context.Background(), map[string]interface{}{})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrGatewayUnreachable)
	assert.False(t, errors.Is(err, ErrGatewayRejected))
}

func TestPutOrderAndRunTransaction(t *testing.T) {
	type call struct {
		method string
		path   string
		body   map[string]interface{}
	}
	var calls []call
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]interface{}
		_ = json.NewDecoder(r.Body).Decode(&body)
		calls = append(calls, call{method: r.Method, path: r.URL.Path, body: body})
		_, _ = w.Write([]byte(`{"result":"SUCCESS"}`))
	}))
	defer srv.Close()

	client := newTestClient(t, srv.URL, nil)
	_, err := client.PutOrder(context.Background(), "42", decimal.RequireFromString("25.5"), "jod")
	require.NoError(t, err)
	_, err = client.RunTransaction(context.Background(), "42", TransactionRequest{
		TransactionID: "refund-1",
		Operation:     OperationRefund,
		Amount:        decimal.RequireFromString("10"),
		Currency:      "USD",
	})
	require.NoError(t, err)
	_, err = client.RunTransaction(context.Background(), "42", TransactionRequest{Operation: OperationVoid})
	require.NoError(t, err)

	require.Len(t, calls, 3)
	assert.Equal(t, http.MethodPut, calls[0].method)
	assert.Equal(t, "/api/rest/version/61/merchant/TEST9800/order/42", calls[0].path)
	assert.Equal(t, map[string]interface{}{"amount": "25.500", "currency": "JOD"}, calls[0].body["order"])

	assert.Equal(t, "/api/rest/version/61/merchant/TEST9800/order/42/transaction/refund-1", calls[1].path)
	assert.Equal(t, "REFUND", calls[1].body["apiOperation"])
	assert.Equal(t, map[string]interface{}{"amount": "10.00", "currency": "USD"}, calls[1].body["transaction"])

	assert.Regexp(t, `/order/42/transaction/[0-9a-f-]{36}$`, calls[2].path)
	assert.Nil(t, calls[2].body["transaction"])

	_, err = client.RunTransaction(context.Background(), "42", TransactionRequest{})
	assert.ErrorIs(t, err, ErrInvalidRequest)
}
