package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/Mujanati13/Qabalan-sub007/internal/clock"
	"github.com/Mujanati13/Qabalan-sub007/internal/config"
	"github.com/Mujanati13/Qabalan-sub007/internal/migration"
	"github.com/Mujanati13/Qabalan-sub007/internal/mpgs"
	"github.com/Mujanati13/Qabalan-sub007/internal/observability"
	orderdomain "github.com/Mujanati13/Qabalan-sub007/internal/order/domain"
	orderrepo "github.com/Mujanati13/Qabalan-sub007/internal/order/repository"
	paymentdomain "github.com/Mujanati13/Qabalan-sub007/internal/payment/domain"
	paymentservice "github.com/Mujanati13/Qabalan-sub007/internal/payment/service"
	"github.com/Mujanati13/Qabalan-sub007/internal/schemaguard"
	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	"github.com/glebarez/sqlite"
	"github.com/golang-jwt/jwt/v5"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const testJWTSecret = "server-test-secret"

type stubGateway struct {
	mu       sync.Mutex
	sessions []mpgs.Session
	rejectAs string
	calls    int
}

func (g *stubGateway) CreateSession(context.Context, map[string]interface{}) (mpgs.Response, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.calls++
	if g.rejectAs != "" {
		return nil, &mpgs.RejectedError{StatusCode: http.StatusBadRequest, Cause: "INVALID_REQUEST", Explanation: g.rejectAs}
	}
	if len(g.sessions) == 0 {
		return nil, fmt.Errorf("no session queued")
	}
	next := g.sessions[0]
	g.sessions = g.sessions[1:]
	return mpgs.Response{
		"session":          map[string]interface{}{"id": next.ID},
		"successIndicator": next.SuccessIndicator,
	}, nil
}

func (g *stubGateway) GetOrder(context.Context, string) (mpgs.Response, error) {
	return mpgs.Response{"status": "CAPTURED"}, nil
}

func (g *stubGateway) PutOrder(context.Context, string, decimal.Decimal, string) (mpgs.Response, error) {
	return mpgs.Response{}, nil
}

func (g *stubGateway) RunTransaction(context.Context, string, mpgs.TransactionRequest) (mpgs.Response, error) {
	return mpgs.Response{}, nil
}

func (g *stubGateway) queue(id, indicator string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.sessions = append(g.sessions, mpgs.Session{ID: id, SuccessIndicator: indicator})
}

type nopPublisher struct{}

func (nopPublisher) PublishStatusChanged(context.Context, paymentdomain.StatusChanged) error {
	return nil
}

type testServer struct {
	db      *gorm.DB
	gateway *stubGateway
	engine  *gin.Engine
}

func testConfig() config.Config {
	return config.Config{
		AuthJWTSecret: testJWTSecret,
		MPGS: config.MPGSConfig{
			MerchantID:      "TESTQABALAN",
			APIPassword:     "secret",
			APIVersion:      "61",
			GatewayURL:      "https://test-gateway.mastercard.com",
			DefaultCurrency: "JOD",
			ReturnBaseURL:   "https://api.qabalan.test/api/payments/mpgs",
			FrontendBaseURL: "https://qabalan.test",
			MerchantName:    "Qabalan",
		},
	}
}

func newTestServer(t *testing.T, cfg config.Config) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)

	dsn := fmt.Sprintf("file:server_%d?mode=memory&cache=shared", time.Now().UnixNano())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })
	require.NoError(t, migration.EnsureBaseTables(db))

	node, err := snowflake.NewNode(2)
	require.NoError(t, err)
	holder, err := config.NewStaticNegotiationHolder(config.DefaultNegotiationConfig())
	require.NoError(t, err)

	gateway := &stubGateway{}
	guard := schemaguard.New(schemaguard.Params{
		Store:  schemaguard.NewGormStore(db),
		Status: schemaguard.NewStatus(),
		Config: cfg,
		Log:    zap.NewNop(),
	})
	params := paymentservice.Params{
		DB:     db,
		Log:    zap.NewNop(),
		Config: cfg,
		Clock:  clock.NewFakeClock(time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)),
		GenID:  node,
		Repo:   orderrepo.Provide(),
		Guard:  guard,
		Negotiator: mpgs.NewNegotiator(mpgs.NegotiatorParams{
			Gateway:    gateway,
			Classifier: mpgs.NewClassifier(holder),
			Log:        zap.NewNop(),
		}),
		Gateway:   gateway,
		Publisher: nopPublisher{},
	}

	engine := NewEngine(observability.Config{Environment: "test"}, nil)
	NewServer(ServerParams{
		Gin:        engine,
		Cfg:        cfg,
		Log:        zap.NewNop(),
		Checkout:   paymentservice.NewCheckoutService(params),
		Reconciler: paymentservice.NewReconciler(params),
	})

	return &testServer{db: db, gateway: gateway, engine: engine}
}

func (s *testServer) seedOrder(t *testing.T, id int64, amount string) {
	t.Helper()
	now := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	require.NoError(t, s.db.Exec(
		`INSERT INTO orders (id, total_amount, order_status, payment_status, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		id, amount, "confirmed", "pending", now, now,
	).Error)
}

func (s *testServer) paymentStatus(t *testing.T, id int64) string {
	t.Helper()
	var status string
	require.NoError(t, s.db.Raw(`SELECT payment_status FROM orders WHERE id = ?`, id).Scan(&status).Error)
	return status
}

func (s *testServer) do(req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	s.engine.ServeHTTP(rec, req)
	return rec
}

func (s *testServer) postJSON(path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, routePrefix+path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	return s.do(req)
}

func (s *testServer) get(path string) *httptest.ResponseRecorder {
	return s.do(httptest.NewRequest(http.MethodGet, routePrefix+path, nil))
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body
}

func signToken(t *testing.T, secret string, exp time.Time) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": "admin-7",
		"exp": exp.Unix(),
	})
	signed, err := token.SignedString([]byte(secret))
	require.NoError(t, err)
	return signed
}

func TestCreateSessionThenReturnRedirects(t *testing.T) {
	s := newTestServer(t, testConfig())
	s.seedOrder(t, 42, "25.50")
	s.gateway.queue("SESSION1", "IND1")

	rec := s.postJSON("/session", `{"order_id": 42, "total": "25.50", "currencyCode": "JOD"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	body := decodeBody(t, rec)
	assert.Equal(t, true, body["success"])
	assert.Equal(t, "SESSION1", body["sessionId"])
	assert.Equal(t, "IND1", body["successIndicator"])
	assert.Equal(t, "https://test-gateway.mastercard.com/checkout/pay/SESSION1", body["checkoutUrl"])
	assert.Equal(t, body["checkoutUrl"], body["redirectUrl"])
	assert.Equal(t, "https://api.qabalan.test/api/payments/mpgs/return?orderId=42", body["returnUrl"])

	rec = s.get("/return?orderId=42&resultIndicator=WRONG")
	assert.Equal(t, http.StatusFound, rec.Code)
	assert.Equal(t, "https://qabalan.test/payment-failed?orderId=42", rec.Header().Get("Location"))
	assert.Equal(t, "failed", s.paymentStatus(t, 42))

	rec = s.get("/return?orderId=42&resultIndicator=IND1")
	assert.Equal(t, http.StatusFound, rec.Code)
	assert.Equal(t, "https://qabalan.test/payment-success?orderId=42", rec.Header().Get("Location"))
	assert.Equal(t, "paid", s.paymentStatus(t, 42))

	rec = s.get("/return?orderId=42&resultIndicator=IND1")
	assert.Equal(t, "https://qabalan.test/payment-success?orderId=42", rec.Header().Get("Location"))

	rec = s.get("/payment/status?orderId=42")
	require.Equal(t, http.StatusOK, rec.Code)
	body = decodeBody(t, rec)
	assert.Equal(t, "paid", body["paymentStatus"])
	assert.Equal(t, "IND1", body["resultIndicator"])
}

func TestReturnForUnknownOrderRedirectsToFailure(t *testing.T) {
	s := newTestServer(t, testConfig())

	rec := s.get("/return?orderId=999&resultIndicator=IND1")
	assert.Equal(t, http.StatusFound, rec.Code)
	assert.Equal(t, "https://qabalan.test/payment-failed?orderId=999", rec.Header().Get("Location"))
}

func TestCreateSessionErrorMapping(t *testing.T) {
	t.Run("missing order id", func(t *testing.T) {
		s := newTestServer(t, testConfig())
		rec := s.postJSON("/session", `{}`)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		body := decodeBody(t, rec)
		assert.Equal(t, false, body["success"])
		assert.Equal(t, "validation_error", body["details"])
	})

	t.Run("bad amount", func(t *testing.T) {
		s := newTestServer(t, testConfig())
		rec := s.postJSON("/session", `{"orderId": "42", "amount": "abc"}`)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("unknown order", func(t *testing.T) {
		s := newTestServer(t, testConfig())
		rec := s.postJSON("/session", `{"orderId": "404"}`)
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})

	t.Run("missing credentials", func(t *testing.T) {
		cfg := testConfig()
		cfg.MPGS.APIPassword = ""
		s := newTestServer(t, cfg)
		s.seedOrder(t, 42, "25.50")

		rec := s.postJSON("/session", `{"orderId": "42"}`)
		assert.Equal(t, http.StatusInternalServerError, rec.Code)
		assert.Equal(t, "configuration_error", decodeBody(t, rec)["details"])
		assert.Zero(t, s.gateway.calls)
	})

	t.Run("gateway rejection hides detail", func(t *testing.T) {
		s := newTestServer(t, testConfig())
		s.seedOrder(t, 42, "25.50")
		s.gateway.rejectAs = "Merchant TESTQABALAN is disabled"

		rec := s.postJSON("/session", `{"orderId": "42"}`)
		assert.Equal(t, http.StatusBadGateway, rec.Code)
		assert.NotContains(t, rec.Body.String(), "TESTQABALAN")
		assert.Equal(t, "gateway_rejected", decodeBody(t, rec)["details"])
	})
}

func TestCreateMobileSessionAcceptsForm(t *testing.T) {
	s := newTestServer(t, testConfig())
	s.seedOrder(t, 7, "10.000")
	s.gateway.queue("MOBILE1", "MIND")

	form := url.Values{"orderID": {"7"}, "amount": {"10"}}
	req := httptest.NewRequest(http.MethodPost, routePrefix+"/mobile/session", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	rec := s.do(req)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	body := decodeBody(t, rec)
	assert.Equal(t, "MOBILE1", body["sessionId"])
	assert.Equal(t, "MIND", body["successIndicator"])
	assert.Equal(t, "https://api.qabalan.test/api/payments/mpgs/payment/view?orderId=7&sessionId=MOBILE1", body["paymentUrl"])
}

func TestPaymentViewRendersCheckoutPage(t *testing.T) {
	s := newTestServer(t, testConfig())
	s.seedOrder(t, 42, "25.50")
	s.gateway.queue("HOSTED1", "HIND")

	rec := s.get("/payment/view?orderId=42&lang=ar")
	require.Equal(t, http.StatusOK, rec.Code)
	html := rec.Body.String()
	assert.Contains(t, html, `dir="rtl"`)
	assert.Contains(t, html, "HOSTED1")
	assert.Contains(t, html, "https://test-gateway.mastercard.com/static/checkout/checkout.min.js")

	// The stored session is reused without another gateway call.
	rec = s.get("/payment/view?orderId=42&sessionId=HOSTED1&mobile=true")
	require.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody(t, rec)
	assert.Equal(t, "HOSTED1", body["sessionId"])
	assert.Equal(t, 1, s.gateway.calls)
}

func TestPaymentViewFailureRedirects(t *testing.T) {
	s := newTestServer(t, testConfig())

	rec := s.get("/payment/view?orderId=999")
	assert.Equal(t, http.StatusFound, rec.Code)
	assert.Equal(t, "https://qabalan.test/payment-failed?orderId=999", rec.Header().Get("Location"))
}

func TestPaymentViewForPaidOrderRedirectsToSuccess(t *testing.T) {
	s := newTestServer(t, testConfig())
	s.seedOrder(t, 42, "25.50")
	s.gateway.queue("HOSTED1", "HIND")

	rec := s.get("/payment/view?orderId=42")
	require.Equal(t, http.StatusOK, rec.Code)
	rec = s.get("/return?orderId=42&resultIndicator=HIND")
	require.Equal(t, "https://qabalan.test/payment-success?orderId=42", rec.Header().Get("Location"))

	for _, path := range []string{
		"/payment/view?orderId=42&sessionId=HOSTED1",
		"/payment/view?orderId=42",
	} {
		rec = s.get(path)
		assert.Equal(t, http.StatusFound, rec.Code, path)
		assert.Equal(t, "https://qabalan.test/payment-success?orderId=42", rec.Header().Get("Location"), path)
	}
	assert.Equal(t, 1, s.gateway.calls)

	rec = s.get("/payment/view?orderId=42&mobile=true")
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestPaymentSuccessAndCancel(t *testing.T) {
	s := newTestServer(t, testConfig())
	s.seedOrder(t, 42, "25.50")

	rec := s.get("/payment/success?orderId=42&mobile=1")
	require.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody(t, rec)
	assert.Equal(t, true, body["success"])
	assert.Equal(t, "paid", body["paymentStatus"])
	assert.Equal(t, "paid", s.paymentStatus(t, 42))

	rec = s.get("/payment/success?orderId=42")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "https://qabalan.test/payment-success?orderId=42")

	rec = s.get("/payment/cancel?orderId=42")
	assert.Equal(t, http.StatusFound, rec.Code)
	assert.Equal(t, "https://qabalan.test/payment-cancelled?orderId=42", rec.Header().Get("Location"))
	assert.Equal(t, "pending", s.paymentStatus(t, 42))

	rec = s.get("/payment/cancel?orderId=42&mobile=true")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "pending", decodeBody(t, rec)["paymentStatus"])
}

func TestAuthenticatedRoutes(t *testing.T) {
	s := newTestServer(t, testConfig())
	s.seedOrder(t, 42, "25.50")
	s.gateway.queue("HOSTED1", "HIND")

	rec := s.postJSON("/checkout-session", `{"orderId": "42"}`)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	expired := signToken(t, testJWTSecret, time.Now().Add(-time.Hour))
	req := httptest.NewRequest(http.MethodGet, routePrefix+"/order/42", nil)
	req.Header.Set("Authorization", "Bearer "+expired)
	assert.Equal(t, http.StatusUnauthorized, s.do(req).Code)

	forged := signToken(t, "other-secret", time.Now().Add(time.Hour))
	req = httptest.NewRequest(http.MethodGet, routePrefix+"/order/42", nil)
	req.Header.Set("Authorization", "Bearer "+forged)
	assert.Equal(t, http.StatusUnauthorized, s.do(req).Code)

	valid := signToken(t, testJWTSecret, time.Now().Add(time.Hour))
	req = httptest.NewRequest(http.MethodPost, routePrefix+"/checkout-session", strings.NewReader(`{"orderId": "42"}`))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+valid)
	rec = s.do(req)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	body := decodeBody(t, rec)
	assert.Equal(t, "HOSTED1", body["sessionId"])
	assert.Equal(t, "https://test-gateway.mastercard.com/static/checkout/checkout.min.js", body["checkoutScript"])

	req = httptest.NewRequest(http.MethodGet, routePrefix+"/order/42?gateway=true", nil)
	req.Header.Set("Authorization", "Bearer "+valid)
	rec = s.do(req)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	body = decodeBody(t, rec)
	assert.NotNil(t, body["order"])
	gateway, ok := body["gateway"].(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, "CAPTURED", gateway["status"])
}

func TestAuthRejectsWithoutSecret(t *testing.T) {
	cfg := testConfig()
	cfg.AuthJWTSecret = ""
	s := newTestServer(t, cfg)

	req := httptest.NewRequest(http.MethodGet, routePrefix+"/order/42", nil)
	req.Header.Set("Authorization", "Bearer "+signToken(t, testJWTSecret, time.Now().Add(time.Hour)))
	assert.Equal(t, http.StatusUnauthorized, s.do(req).Code)
}

func TestMapError(t *testing.T) {
	cases := []struct {
		err    error
		status int
	}{
		{paymentdomain.ErrMissingOrderID, http.StatusBadRequest},
		{orderdomain.ErrOrderNotFound, http.StatusNotFound},
		{paymentdomain.ErrAlreadyPaid, http.StatusConflict},
		{paymentdomain.ErrSessionInProgress, http.StatusConflict},
		{paymentdomain.ErrTooManyAttempts, http.StatusTooManyRequests},
		{mpgs.ErrGatewayUnreachable, http.StatusBadGateway},
		{paymentdomain.ErrSchemaUnavailable, http.StatusServiceUnavailable},
		{fmt.Errorf("boom"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.status, mapError(tc.err).status, tc.err.Error())
	}
}

func TestBearerToken(t *testing.T) {
	token, ok := bearerToken("Bearer abc")
	assert.True(t, ok)
	assert.Equal(t, "abc", token)

	_, ok = bearerToken("Basic abc")
	assert.False(t, ok)
	_, ok = bearerToken("")
	assert.False(t, ok)
}
